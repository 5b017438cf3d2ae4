package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/sol-gate/internal/storage"
)

// StartKeyboard returns the main menu keyboard
func StartKeyboard(isPremium bool) *models.InlineKeyboardMarkup {
	rows := [][]models.InlineKeyboardButton{
		{
			{Text: "💰 My Wallets", CallbackData: "wallet_menu"},
			{Text: "🔄 Referrals", CallbackData: "referral_menu"},
		},
	}

	if !isPremium {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "💸 Pay Now", CallbackData: "pay_now"},
		})
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "🌐 Web Login", CallbackData: "web_auth"},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// WalletMenuKeyboard returns the wallet management keyboard with a remove
// button per linked wallet
func WalletMenuKeyboard(wallets []storage.Wallet) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	for _, w := range wallets {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "🗑 " + shortAddr(w.Address), CallbackData: fmt.Sprintf("del:%s", w.Address)},
		})
	}

	rows = append(rows,
		[]models.InlineKeyboardButton{
			{Text: "➕ Add Wallet", CallbackData: "add_wallet"},
		},
		[]models.InlineKeyboardButton{
			{Text: "🔙 Back", CallbackData: "back_to_start"},
		},
	)

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// AfterWalletKeyboard is shown right after a wallet is linked
func AfterWalletKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "💸 Pay Now", CallbackData: "pay_now"},
			},
			{
				{Text: "🔙 Back to Wallets", CallbackData: "wallet_menu"},
			},
		},
	}
}

// PaymentKeyboard returns the payment screen keyboard
func PaymentKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔄 Check Payment", CallbackData: "check_payment"},
			},
			{
				{Text: "🔙 Back", CallbackData: "wallet_menu"},
			},
		},
	}
}

// ReferralCreateKeyboard invites the user to create their code
func ReferralCreateKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✨ Create Referral Link", CallbackData: "create_referral"},
			},
			{
				{Text: "🔙 Back", CallbackData: "back_to_start"},
			},
		},
	}
}

// ReferralStatsKeyboard is shown with an existing referral link
func ReferralStatsKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔗 Connect Payout Wallet", CallbackData: "connect_payout_wallet"},
			},
			{
				{Text: "🔙 Back", CallbackData: "back_to_start"},
			},
		},
	}
}

// ConnectPayoutKeyboard prompts for a payout wallet after code creation
func ConnectPayoutKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔗 Connect Payout Wallet", CallbackData: "connect_payout_wallet"},
			},
			{
				{Text: "🔙 Back", CallbackData: "referral_menu"},
			},
		},
	}
}

// WebAuthKeyboard links to the one-time web login URL
func WebAuthKeyboard(url string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🌐 Open Website", URL: url},
			},
			{
				{Text: "🔙 Back", CallbackData: "back_to_start"},
			},
		},
	}
}

// BackKeyboard returns a single back button to the given menu
func BackKeyboard(target string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔙 Back", CallbackData: target},
			},
		},
	}
}
