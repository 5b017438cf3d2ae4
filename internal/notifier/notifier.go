// Package notifier turns reconciliation outcomes into chat messages.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/sol-gate/internal/config"
	"github.com/suspectuso/sol-gate/internal/reconcile"
	"github.com/suspectuso/sol-gate/internal/storage"
)

// Sender delivers a rendered message to a user. Satisfied by telegram.Bot.
type Sender interface {
	SendNotification(ctx context.Context, userID int64, text string, keyboard *models.InlineKeyboardMarkup) error
}

// Notifier renders payment outcomes and relays them to users
type Notifier struct {
	cfg   *config.Config
	store *storage.Storage
	bot   Sender
	log   *slog.Logger
}

// New creates a new Notifier
func New(cfg *config.Config, store *storage.Storage, bot Sender, log *slog.Logger) *Notifier {
	return &Notifier{
		cfg:   cfg,
		store: store,
		bot:   bot,
		log:   log,
	}
}

// HandleOutcome notifies the affected users about an applied payment event.
// Duplicates, ignored transfers, and unattributed funds are log-only.
func (n *Notifier) HandleOutcome(ctx context.Context, out reconcile.Outcome) {
	switch out.Kind {
	case reconcile.OutcomePremiumGranted:
		n.notifyPremiumGranted(ctx, out)
	case reconcile.OutcomePartial:
		n.notifyPartial(ctx, out)
	case reconcile.OutcomeUnattributed:
		n.log.Warn("unattributed funds received", "amount", out.Amount)
	}
}

func (n *Notifier) notifyPremiumGranted(ctx context.Context, out reconcile.Outcome) {
	text := "🎉 <b>Payment Confirmed!</b> 🎉\n\n" +
		"You now have full access to all premium features."

	if err := n.bot.SendNotification(ctx, out.UserID, text, nil); err != nil {
		n.log.Error("send premium notification", "user_id", out.UserID, "error", err)
	}

	if out.Conversion == nil {
		return
	}

	conv := out.Conversion
	total := conv.Commission
	if stats, err := n.store.GetReferralStats(ctx, conv.ReferrerID); err == nil {
		total = stats.TotalCommission
	}

	referrerText := "🎉 <b>Referral Converted!</b> 🎉\n\n" +
		fmt.Sprintf("You earned <b>%.3f SOL</b> in commission.\n\n", conv.Commission) +
		fmt.Sprintf("Total commission earned: <b>%.3f SOL</b>", total)

	if err := n.bot.SendNotification(ctx, conv.ReferrerID, referrerText, nil); err != nil {
		n.log.Error("send commission notification", "user_id", conv.ReferrerID, "error", err)
	}
}

func (n *Notifier) notifyPartial(ctx context.Context, out reconcile.Outcome) {
	var text string
	if out.Remaining > 0 {
		text = "💰 <b>Partial Payment Received</b> 💰\n\n" +
			fmt.Sprintf("• Amount received: <b>%.3f SOL</b>\n", out.Amount) +
			fmt.Sprintf("• Total paid so far: <b>%.3f SOL</b>\n", out.NewTotal) +
			fmt.Sprintf("• Remaining amount: <b>%.3f SOL</b>\n\n", out.Remaining) +
			"Please complete the payment to gain full access."
	} else {
		// Already premium; the credit is recorded but nothing changes.
		text = "💰 <b>Payment Received</b> 💰\n\n" +
			fmt.Sprintf("• Amount received: <b>%.3f SOL</b>\n\n", out.Amount) +
			"You already have full access. Thank you!"
	}

	if err := n.bot.SendNotification(ctx, out.UserID, text, nil); err != nil {
		n.log.Error("send partial notification", "user_id", out.UserID, "error", err)
	}
}
