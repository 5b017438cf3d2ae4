package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/sol-gate/internal/storage"
)

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	username := update.Message.From.Username

	if _, err := b.store.EnsureUser(ctx, userID, username); err != nil {
		b.log.Error("ensure user", "error", err)
		return
	}

	// Deep-link referral payload: /start <code>
	invited := false
	payload := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/start"))
	if payload != "" {
		invited = b.attributeReferral(ctx, userID, payload)
	}

	user, err := b.store.GetUser(ctx, userID)
	if err != nil {
		b.log.Error("get user", "error", err)
		return
	}

	var text string
	if user.IsPremium {
		text = "🌟 <b>Welcome back!</b>\n\n" +
			"✅ You have lifetime access to all premium features.\n\n" +
			fmt.Sprintf("Amount paid: <b>%.3f SOL</b>", user.PaidAmount)
	} else {
		text = "👋 <b>Welcome!</b>\n\n" +
			fmt.Sprintf("Get lifetime access by making a one-time payment of <b>%.2f SOL</b>.\n\n", b.cfg.RequiredPayment) +
			"Link a wallet first so your payment can be credited, then pay from that wallet."
		if invited {
			text += "\n\nYou were invited by a friend. 🤝"
		}
	}

	b.sendMessage(ctx, update.Message.Chat.ID, text, StartKeyboard(user.IsPremium))
}

// attributeReferral resolves a /start payload to a referrer and records the
// link. Self-referrals and repeat attributions are rejected silently.
func (b *Bot) attributeReferral(ctx context.Context, userID int64, code string) bool {
	referrerID, ok, err := b.referrals.ResolveCode(ctx, code)
	if err != nil {
		b.log.Error("resolve referral code", "error", err)
		return false
	}
	if !ok {
		return false
	}

	recorded, err := b.referrals.RecordLink(ctx, referrerID, userID)
	if err != nil {
		b.log.Error("record referral", "error", err)
		return false
	}
	return recorded
}

func (b *Bot) myidHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	username := update.Message.From.Username
	if username == "" {
		username = "none"
	}

	text := fmt.Sprintf("Your Telegram information:\n\nID: <code>%d</code>\nUsername: @%s", userID, username)
	b.sendMessage(ctx, update.Message.Chat.ID, text, nil)
}

func (b *Bot) referralHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	if _, err := b.store.EnsureUser(ctx, userID, update.Message.From.Username); err != nil {
		b.log.Error("ensure user", "error", err)
		return
	}

	text, keyboard := b.referralView(ctx, userID)
	b.sendMessage(ctx, update.Message.Chat.ID, text, keyboard)
}

// referralView renders either the stats screen (user has a code) or the
// program pitch (user has none yet).
func (b *Bot) referralView(ctx context.Context, userID int64) (string, *models.InlineKeyboardMarkup) {
	code, hasCode, err := b.referrals.Code(ctx, userID)
	if err != nil {
		b.log.Error("get referral code", "error", err)
		return "Something went wrong, please try again.", nil
	}

	if !hasCode {
		text := "🔄 <b>Referral Program</b>\n\n" +
			"Invite friends and earn rewards!\n\n" +
			fmt.Sprintf("For each friend who purchases lifetime access through your link, "+
				"you earn <b>%.0f%%</b> commission on their payment.\n\n", b.cfg.CommissionPercent) +
			"Ready to create your personal referral link?"
		return text, ReferralCreateKeyboard()
	}

	stats, err := b.referrals.Stats(ctx, userID)
	if err != nil {
		b.log.Error("get referral stats", "error", err)
		return "Something went wrong, please try again.", nil
	}

	payout := "not set"
	if user, err := b.store.GetUser(ctx, userID); err == nil && user.PayoutWallet != "" {
		payout = shortAddr(user.PayoutWallet)
	}

	text := "🔄 <b>Your Referral Link</b>\n\n" +
		fmt.Sprintf("🔗 t.me/%s?start=%s\n\n", b.cfg.BotUsername, code) +
		fmt.Sprintf("Payout wallet: <code>%s</code>\n\n", payout) +
		"Referral stats:\n" +
		fmt.Sprintf("• Total referrals: <b>%d</b>\n", stats.Total) +
		fmt.Sprintf("• Successful conversions: <b>%d</b>\n", stats.Converted) +
		fmt.Sprintf("• Commission earned: <b>%.3f SOL</b>", stats.TotalCommission)
	return text, ReferralStatsKeyboard()
}

func (b *Bot) adminStatsHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	if !b.cfg.AdminIDs[userID] {
		b.sendMessage(ctx, update.Message.Chat.ID, "⛔ You don't have permission to use this command.", nil)
		return
	}

	stats, err := b.store.GetStats(ctx)
	if err != nil {
		b.log.Error("get stats", "error", err)
		return
	}

	conversionRate := 0.0
	if stats.TotalUsers > 0 {
		conversionRate = float64(stats.PremiumUsers) / float64(stats.TotalUsers) * 100
	}

	text := "📊 <b>Admin Statistics</b>\n\n" +
		fmt.Sprintf("Users:\n• Total: <b>%d</b>\n• Premium: <b>%d</b>\n• Conversion rate: <b>%.1f%%</b>\n\n",
			stats.TotalUsers, stats.PremiumUsers, conversionRate) +
		fmt.Sprintf("Payments:\n• Count: <b>%d</b>\n• Total: <b>%.3f SOL</b>\n\n",
			stats.TotalPayments, stats.TotalPaid) +
		fmt.Sprintf("Referrals:\n• Total: <b>%d</b>\n• Converted: <b>%d</b>\n• Commission owed: <b>%.3f SOL</b>",
			stats.TotalReferrals, stats.ConvertedReferrals, stats.TotalCommission)

	b.sendMessage(ctx, update.Message.Chat.ID, text, nil)
}

// defaultHandler feeds free text through the persisted state machine.
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	userID := update.Message.From.ID
	text := strings.TrimSpace(update.Message.Text)

	reply, handled, err := b.sm.HandleText(ctx, userID, text)
	if err != nil {
		b.log.Error("handle text input", "user_id", userID, "error", err)
		b.sendMessage(ctx, update.Message.Chat.ID, "Something went wrong, please try again.", nil)
		return
	}
	if !handled {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, reply.Text, reply.Keyboard)
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	data := cb.Data

	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	switch {
	case data == "back_to_start":
		b.showStart(ctx, cb)
	case data == "wallet_menu":
		b.showWalletMenu(ctx, cb)
	case data == "add_wallet":
		b.promptAddWallet(ctx, cb)
	case strings.HasPrefix(data, "del:"):
		b.handleRemoveWallet(ctx, cb, strings.TrimPrefix(data, "del:"))
	case data == "pay_now":
		b.showPayment(ctx, cb)
	case data == "check_payment":
		b.showPaymentStatus(ctx, cb)
	case data == "referral_menu":
		b.showReferralMenu(ctx, cb)
	case data == "create_referral":
		b.promptCreateReferral(ctx, cb)
	case data == "connect_payout_wallet":
		b.promptPayoutWallet(ctx, cb)
	case data == "web_auth":
		b.handleWebAuth(ctx, cb)
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", cb.From.ID)
	}
}

func (b *Bot) showStart(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	// Leaving a flow via the menu cancels any pending input.
	if err := b.sm.Cancel(ctx, userID); err != nil {
		b.log.Error("cancel state", "error", err)
	}

	user, err := b.store.GetUser(ctx, userID)
	if err != nil {
		b.log.Error("get user", "error", err)
		return
	}

	var text string
	if user.IsPremium {
		text = "🌟 <b>Welcome back!</b>\n\n✅ You have lifetime access to all premium features."
	} else {
		text = "👋 <b>Welcome!</b>\n\n" +
			fmt.Sprintf("Get lifetime access by making a one-time payment of <b>%.2f SOL</b>.", b.cfg.RequiredPayment)
	}

	b.editMessage(ctx, cb.Message, text, StartKeyboard(user.IsPremium))
}

func (b *Bot) showWalletMenu(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	if err := b.sm.Cancel(ctx, userID); err != nil {
		b.log.Error("cancel state", "error", err)
	}

	wallets, err := b.store.ListWallets(ctx, userID)
	if err != nil {
		b.log.Error("list wallets", "error", err)
		return
	}

	text := "💰 <b>Wallet Management</b>\n\n"
	if len(wallets) == 0 {
		text += "You don't have any wallets linked yet. Add the wallet you will pay from."
	} else {
		text += "Your linked wallets:\n\n"
		for i, w := range wallets {
			text += fmt.Sprintf("%d. <code>%s</code>\n", i+1, shortAddr(w.Address))
		}
		text += "\nPayments are credited by their source wallet. Tap a wallet to unlink it."
	}

	b.editMessage(ctx, cb.Message, text, WalletMenuKeyboard(wallets))
}

func (b *Bot) promptAddWallet(ctx context.Context, cb *models.CallbackQuery) {
	// Persist the state before prompting so the next message is routed
	// correctly even across a restart.
	if err := b.sm.Enter(ctx, cb.From.ID, storage.StateAwaitWallet); err != nil {
		b.log.Error("enter state", "error", err)
		return
	}

	b.editMessage(ctx, cb.Message,
		"Please send your Solana wallet address.\n\n"+
			"It should look like: <code>5WvztoHrHhJmxWwnJGT3Kh9cZxSDbuHqVowDHEStQ55j</code>\n\n"+
			"Send the address as text, or go back to cancel.",
		BackKeyboard("wallet_menu"),
	)
}

func (b *Bot) handleRemoveWallet(ctx context.Context, cb *models.CallbackQuery, address string) {
	if err := b.store.RemoveWallet(ctx, cb.From.ID, address); err != nil {
		b.log.Error("remove wallet", "error", err)
	}
	b.showWalletMenu(ctx, cb)
}

func (b *Bot) showPayment(ctx context.Context, cb *models.CallbackQuery) {
	text := "💸 <b>Payment Information</b>\n\n" +
		fmt.Sprintf("Please send <b>%.2f SOL</b> from a linked wallet to:\n\n", b.cfg.RequiredPayment) +
		fmt.Sprintf("<code>%s</code>\n\n", b.cfg.DepositAddress) +
		"⚠️ Pay from a wallet you linked, otherwise the payment cannot be credited to you.\n\n" +
		"Once your payment is confirmed you'll automatically get premium access."

	b.editMessage(ctx, cb.Message, text, PaymentKeyboard())
}

func (b *Bot) showPaymentStatus(ctx context.Context, cb *models.CallbackQuery) {
	user, err := b.store.GetUser(ctx, cb.From.ID)
	if err != nil {
		b.log.Error("get user", "error", err)
		return
	}

	if user.IsPremium {
		b.editMessage(ctx, cb.Message,
			"✅ <b>Premium is active!</b>\n\nYou have full access to all features.",
			BackKeyboard("back_to_start"),
		)
		return
	}

	remaining := b.cfg.RequiredPayment - user.PaidAmount
	text := "🔍 <b>Payment Status</b>\n\n" +
		fmt.Sprintf("• Paid so far: <b>%.3f SOL</b>\n", user.PaidAmount) +
		fmt.Sprintf("• Remaining: <b>%.3f SOL</b>\n\n", remaining) +
		"If you just sent funds, wait a few seconds and check again."

	b.editMessage(ctx, cb.Message, text, PaymentKeyboard())
}

func (b *Bot) showReferralMenu(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	if err := b.sm.Cancel(ctx, userID); err != nil {
		b.log.Error("cancel state", "error", err)
	}

	text, keyboard := b.referralView(ctx, userID)
	b.editMessage(ctx, cb.Message, text, keyboard)
}

func (b *Bot) promptCreateReferral(ctx context.Context, cb *models.CallbackQuery) {
	if err := b.sm.Enter(ctx, cb.From.ID, storage.StateAwaitReferralCode); err != nil {
		b.log.Error("enter state", "error", err)
		return
	}

	b.editMessage(ctx, cb.Message,
		"Please enter a code for your referral link.\n\n"+
			"Requirements:\n"+
			"• 3-15 characters\n"+
			"• Letters, numbers, and underscores only\n"+
			"• Must be unique\n\n"+
			fmt.Sprintf("This will create a link like: t.me/%s?start=yourcode", b.cfg.BotUsername),
		BackKeyboard("referral_menu"),
	)
}

func (b *Bot) promptPayoutWallet(ctx context.Context, cb *models.CallbackQuery) {
	if err := b.sm.Enter(ctx, cb.From.ID, storage.StateAwaitPayoutWallet); err != nil {
		b.log.Error("enter state", "error", err)
		return
	}

	b.editMessage(ctx, cb.Message,
		"Please send the Solana wallet address where you'd like to receive referral commissions.\n\n"+
			"You can change it later if needed.",
		BackKeyboard("referral_menu"),
	)
}

func (b *Bot) handleWebAuth(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	token, err := b.auth.Issue(ctx, userID, b.cfg.AuthTokenTTL)
	if err != nil {
		b.log.Error("issue auth token", "error", err)
		b.editMessage(ctx, cb.Message, "❌ Could not create a login link, please try again.", BackKeyboard("back_to_start"))
		return
	}

	url := fmt.Sprintf("%s/auth?token=%s", b.cfg.PublicURL, token.Token)
	text := "🌐 <b>Web Login</b>\n\n" +
		"Use the button below to sign in on the website.\n\n" +
		fmt.Sprintf("The link is single-use and expires in %d minutes.", int(b.cfg.AuthTokenTTL.Minutes()))

	b.editMessage(ctx, cb.Message, text, WebAuthKeyboard(url))
}
