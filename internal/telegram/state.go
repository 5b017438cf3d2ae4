package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/sol-gate/internal/referral"
	"github.com/suspectuso/sol-gate/internal/storage"
)

// Reply is what the state machine wants said back to the user.
type Reply struct {
	Text     string
	Keyboard *models.InlineKeyboardMarkup
}

// StateMachine routes free-text input according to the user's persisted
// conversation state. State lives on the user row, not in memory, so a
// prompt sent before a restart still gets its answer routed afterwards.
type StateMachine struct {
	store       *storage.Storage
	referrals   *referral.Engine
	botUsername string
}

// NewStateMachine creates a new state machine
func NewStateMachine(store *storage.Storage, referrals *referral.Engine, botUsername string) *StateMachine {
	return &StateMachine{
		store:       store,
		referrals:   referrals,
		botUsername: botUsername,
	}
}

// Enter persists the awaited-input state. Callers must do this before
// sending the prompt so the very next message is routed correctly.
func (m *StateMachine) Enter(ctx context.Context, userID int64, state storage.ConversationState) error {
	return m.store.SetUserState(ctx, userID, state)
}

// Cancel clears any pending awaited input.
func (m *StateMachine) Cancel(ctx context.Context, userID int64) error {
	return m.store.SetUserState(ctx, userID, storage.StateNone)
}

type textHandler func(m *StateMachine, ctx context.Context, userID int64, text string) (Reply, error)

// transitions is the state × text-input table. A state missing here means
// free text is inert. Each handler resets the state to none on success and
// leaves it untouched on validation failure so the user can retry.
var transitions = map[storage.ConversationState]textHandler{
	storage.StateAwaitWallet:       (*StateMachine).handleAwaitWallet,
	storage.StateAwaitReferralCode: (*StateMachine).handleAwaitReferralCode,
	storage.StateAwaitPayoutWallet: (*StateMachine).handleAwaitPayoutWallet,
}

// HandleText dispatches free text through the transition table. handled is
// false when the user has no pending state; routing such text is the chat
// layer's concern, not ours.
func (m *StateMachine) HandleText(ctx context.Context, userID int64, text string) (Reply, bool, error) {
	state, err := m.store.UserState(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Reply{}, false, nil
	}
	if err != nil {
		return Reply{}, false, err
	}

	handler, ok := transitions[state]
	if !ok {
		return Reply{}, false, nil
	}

	reply, err := handler(m, ctx, userID, text)
	if err != nil {
		return Reply{}, false, err
	}
	return reply, true, nil
}

func (m *StateMachine) handleAwaitWallet(ctx context.Context, userID int64, text string) (Reply, error) {
	if !ValidWalletAddress(text) {
		return Reply{
			Text:     "❌ Invalid Solana address format.\n\nPlease send a valid Solana wallet address, or go back to cancel.",
			Keyboard: BackKeyboard("wallet_menu"),
		}, nil
	}

	err := m.store.AddWallet(ctx, userID, text)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return Reply{
			Text:     "❌ This wallet is already linked to your account.\n\nSend a different address, or go back to cancel.",
			Keyboard: BackKeyboard("wallet_menu"),
		}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("add wallet: %w", err)
	}

	if err := m.store.SetUserState(ctx, userID, storage.StateNone); err != nil {
		return Reply{}, err
	}

	return Reply{
		Text: fmt.Sprintf("✅ Wallet successfully linked!\n\nAddress: <code>%s</code>\n\n"+
			"Payments sent from this wallet will be credited to your account.", shortAddr(text)),
		Keyboard: AfterWalletKeyboard(),
	}, nil
}

func (m *StateMachine) handleAwaitReferralCode(ctx context.Context, userID int64, text string) (Reply, error) {
	err := m.referrals.CreateCode(ctx, userID, text)
	switch {
	case errors.Is(err, referral.ErrInvalidCode):
		return Reply{
			Text:     "❌ Code must be 3-15 characters: letters, numbers, and underscores only.\n\nPlease try again.",
			Keyboard: BackKeyboard("referral_menu"),
		}, nil
	case errors.Is(err, referral.ErrReservedCode):
		return Reply{
			Text:     "❌ This code is reserved and cannot be used.\n\nPlease try again with a different code.",
			Keyboard: BackKeyboard("referral_menu"),
		}, nil
	case errors.Is(err, referral.ErrCodeTaken):
		return Reply{
			Text:     fmt.Sprintf("❌ The code '%s' is already taken.\n\nPlease try again with a different code.", text),
			Keyboard: BackKeyboard("referral_menu"),
		}, nil
	case errors.Is(err, referral.ErrHasCode):
		// Permanent codes: nothing to await anymore.
		if err := m.store.SetUserState(ctx, userID, storage.StateNone); err != nil {
			return Reply{}, err
		}
		return Reply{
			Text:     "You already have a referral code. Codes are permanent and cannot be changed.",
			Keyboard: BackKeyboard("referral_menu"),
		}, nil
	case err != nil:
		return Reply{}, fmt.Errorf("create referral code: %w", err)
	}

	if err := m.store.SetUserState(ctx, userID, storage.StateNone); err != nil {
		return Reply{}, err
	}

	return Reply{
		Text: fmt.Sprintf("✅ Your referral link has been created!\n\n"+
			"🔗 t.me/%s?start=%s\n\n"+
			"Now connect a wallet to receive your referral commissions:", m.botUsername, text),
		Keyboard: ConnectPayoutKeyboard(),
	}, nil
}

func (m *StateMachine) handleAwaitPayoutWallet(ctx context.Context, userID int64, text string) (Reply, error) {
	if !ValidWalletAddress(text) {
		return Reply{
			Text:     "❌ Invalid Solana address format.\n\nPlease send a valid wallet address for your payouts.",
			Keyboard: BackKeyboard("referral_menu"),
		}, nil
	}

	if err := m.store.SetPayoutWallet(ctx, userID, text); err != nil {
		return Reply{}, fmt.Errorf("set payout wallet: %w", err)
	}
	if err := m.store.SetUserState(ctx, userID, storage.StateNone); err != nil {
		return Reply{}, err
	}

	return Reply{
		Text: fmt.Sprintf("✅ Payout wallet connected!\n\nAddress: <code>%s</code>\n\n"+
			"Referral commissions will be paid to this wallet.", shortAddr(text)),
		Keyboard: BackKeyboard("referral_menu"),
	}, nil
}
