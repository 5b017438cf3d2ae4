package storage

import "time"

// ConversationState is the pending awaited-input state of a user's chat.
// Persisted on the user row so the dialog survives process restarts.
type ConversationState string

const (
	StateNone              ConversationState = ""
	StateAwaitWallet       ConversationState = "AWAIT_WALLET"
	StateAwaitReferralCode ConversationState = "AWAIT_REFERRAL_CODE"
	StateAwaitPayoutWallet ConversationState = "AWAIT_PAYOUT_WALLET"
)

// User is a bot user and the owner of the payment ledger state.
type User struct {
	TelegramID      int64
	Username        string
	IsPremium       bool
	PaidAmount      float64
	State           ConversationState
	PayoutWallet    string
	TotalCommission float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Wallet links a Solana address to a user for payment attribution.
type Wallet struct {
	ID        int64
	UserID    int64
	Address   string
	CreatedAt time.Time
}

// Payment is an append-only ledger entry keyed by the on-chain signature.
type Payment struct {
	ID            int64
	UserID        int64
	Amount        float64
	TransactionID string
	PaymentDate   time.Time
}

// Referral records who brought a user in. A referred user has at most one
// referrer; converted flips once when the referred user goes premium.
type Referral struct {
	ID               int64
	ReferrerID       int64
	ReferredID       int64
	Converted        bool
	CommissionAmount float64
	CreatedAt        time.Time
}

// ReferralCode is a user's permanent deep-link code.
type ReferralCode struct {
	ID        int64
	UserID    int64
	Code      string
	CreatedAt time.Time
}

// AuthToken is a single-use bridge credential from bot identity to a web
// session.
type AuthToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
