package storage

import (
	"database/sql"
	"time"
)

// The methods on Tx are the ledger mutations applied per payment event.
// All of them run on the enclosing transaction so one failing step rolls
// back the whole event.

// InsertPayment appends a ledger row. Returns ErrDuplicate when the
// transaction id was already recorded; the UNIQUE constraint is the
// idempotency guarantee, not a prior read.
func (t *Tx) InsertPayment(userID int64, transactionID string, amount float64) error {
	_, err := t.tx.Exec(
		`INSERT INTO payments (telegram_id, amount, transaction_id, payment_date)
		 VALUES (?, ?, ?, ?)`,
		userID, amount, transactionID, time.Now().Unix(),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// CreditUser adds amount to the user's paid total and returns the new total
// along with whether the user was already premium before this credit.
func (t *Tx) CreditUser(userID int64, amount float64) (newTotal float64, wasPremium bool, err error) {
	err = t.tx.QueryRow(
		"SELECT paid_amount, is_premium FROM users WHERE telegram_id = ?",
		userID,
	).Scan(&newTotal, &wasPremium)
	if err == sql.ErrNoRows {
		return 0, false, ErrNotFound
	}
	if err != nil {
		return 0, false, err
	}

	newTotal += amount
	_, err = t.tx.Exec(
		"UPDATE users SET paid_amount = ?, updated_at = ? WHERE telegram_id = ?",
		newTotal, time.Now().Unix(), userID,
	)
	return newTotal, wasPremium, err
}

// SetPremium flips the user's premium flag.
func (t *Tx) SetPremium(userID int64) error {
	_, err := t.tx.Exec(
		"UPDATE users SET is_premium = 1, updated_at = ? WHERE telegram_id = ?",
		time.Now().Unix(), userID,
	)
	return err
}

// UnconvertedReferrer returns the referrer of userID if an unconverted
// referral link exists.
func (t *Tx) UnconvertedReferrer(userID int64) (int64, error) {
	var referrerID int64
	err := t.tx.QueryRow(
		"SELECT referrer_id FROM referrals WHERE referred_id = ? AND converted = 0",
		userID,
	).Scan(&referrerID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return referrerID, err
}

// ConvertReferral marks the referral of userID converted, records the
// commission on the link, and credits the referrer's running total. The
// converted = 0 guard makes a second conversion a no-op at write time.
func (t *Tx) ConvertReferral(referrerID, userID int64, commission float64) error {
	result, err := t.tx.Exec(
		`UPDATE referrals SET converted = 1, commission_amount = ?
		 WHERE referrer_id = ? AND referred_id = ? AND converted = 0`,
		commission, referrerID, userID,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	_, err = t.tx.Exec(
		`UPDATE users SET total_commission = total_commission + ?, updated_at = ?
		 WHERE telegram_id = ?`,
		commission, time.Now().Unix(), referrerID,
	)
	return err
}

// RedeemAuthToken flips a live token to used and returns its owner. The
// used = 0 AND expires_at > now guard in the UPDATE is the check-and-set:
// of two concurrent verifications only one can match the row.
func (t *Tx) RedeemAuthToken(token string, now time.Time) (int64, error) {
	result, err := t.tx.Exec(
		"UPDATE auth_tokens SET used = 1 WHERE token = ? AND used = 0 AND expires_at > ?",
		token, now.Unix(),
	)
	if err != nil {
		return 0, err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return 0, ErrNotFound
	}

	var userID int64
	err = t.tx.QueryRow(
		"SELECT telegram_id FROM auth_tokens WHERE token = ?", token,
	).Scan(&userID)
	return userID, err
}
