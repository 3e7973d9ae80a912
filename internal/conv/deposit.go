package conv

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tisuway/walletbot/internal/logger"
	"github.com/tisuway/walletbot/internal/payment"
	"github.com/tisuway/walletbot/internal/validate"
	"github.com/tisuway/walletbot/internal/wallet"
	"log/slog"
)

// EcoCash deposit sub-flow: phone capture, amount capture, then a
// confirm step that calls the payment gateway and credits the wallet.

// startDeposit enters the guided sub-flow from the EFT menu, pinning the
// mobile-money channel in scratch.
func (e *Engine) startDeposit(channel string) handlerFunc {
	return func(ctx context.Context, sess *Session, _ *wallet.Profile, _ string) (string, error) {
		e.sessions.SetData(sess.Sender, dataDepositChannel, channel)
		if err := e.transition(ctx, sess, StateEcocashPhone); err != nil {
			return "", err
		}
		return ecocashPhonePrompt(), nil
	}
}

func (e *Engine) handleEcocashPhone(ctx context.Context, sess *Session, _ *wallet.Profile, input string) (string, error) {
	phone := strings.TrimSpace(input)
	if !validate.MobilePhone(phone) {
		return `Invalid phone number format. Please enter a valid EcoCash number:

Format: 077xxxxxxx or 078xxxxxxx
Type 'back' to return to payment methods
Type 'menu' for Main Menu`, nil
	}
	e.sessions.SetData(sess.Sender, dataDepositPhone, phone)
	if err := e.transition(ctx, sess, StateEcocashAmount); err != nil {
		return "", err
	}
	return ecocashAmountPrompt(), nil
}

func (e *Engine) handleEcocashAmount(ctx context.Context, sess *Session, _ *wallet.Profile, input string) (string, error) {
	amount, ok := validate.Amount(input)
	if !ok {
		return `Invalid amount. Please enter a valid number:
Example: 10.00

Type 'back' to re-enter phone number
Type 'menu' for Main Menu`, nil
	}

	phone, ok := e.sessions.Data(sess.Sender, dataDepositPhone)
	if !ok {
		return "", fmt.Errorf("deposit phone missing from scratch for %s", sess.Sender)
	}

	e.sessions.SetData(sess.Sender, dataDepositAmount, amount.StringFixed(2))
	if err := e.transition(ctx, sess, StateEcocashConfirm); err != nil {
		return "", err
	}
	return ecocashConfirmPrompt(phone, amount.StringFixed(2)), nil
}

func (e *Engine) handleEcocashConfirm(ctx context.Context, sess *Session, prof *wallet.Profile, input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "yes":
		return e.confirmDeposit(ctx, sess, prof)
	case "2", "no", "cancel":
		e.sessions.ClearData(sess.Sender, dataDepositChannel, dataDepositPhone, dataDepositAmount)
		if err := e.transition(ctx, sess, StateEFTMenu); err != nil {
			return "", err
		}
		return eftMenu(), nil
	default:
		return `Invalid selection. Please choose:
1. Confirm
2. Cancel

Type 'back' to re-enter amount
Type 'menu' for Main Menu`, nil
	}
}

// confirmDeposit makes the single synchronous gateway call and, on
// success, credits the wallet and appends the ledger entry atomically.
// Gateway failure keeps the confirmation step active with scratch intact
// so the user may retry manually.
func (e *Engine) confirmDeposit(ctx context.Context, sess *Session, _ *wallet.Profile) (string, error) {
	phone, okPhone := e.sessions.Data(sess.Sender, dataDepositPhone)
	amountStr, okAmount := e.sessions.Data(sess.Sender, dataDepositAmount)
	if !okPhone || !okAmount {
		return "", fmt.Errorf("deposit scratch missing for %s", sess.Sender)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return "", fmt.Errorf("parse scratch amount %q: %w", amountStr, err)
	}
	channel, ok := e.sessions.Data(sess.Sender, dataDepositChannel)
	if !ok {
		channel = "ecocash"
	}

	result, err := e.payments.Initiate(ctx, payment.Request{
		Channel: channel,
		Phone:   phone,
		Amount:  amount,
	})
	if err != nil {
		logger.ENG.Warn("payment initiation error",
			slog.String("event", "deposit.initiate"),
			slog.String("sender", sess.Sender),
			slog.String("channel", channel),
			slog.String("err", err.Error()),
		)
		return paymentFailedText("payment service is unavailable"), nil
	}
	if !result.Success {
		return paymentFailedText(result.Error), nil
	}

	entry, err := e.profiles.Credit(ctx, sess.Sender, amount, wallet.EntryDeposit,
		fmt.Sprintf("EcoCash deposit %s", result.Reference))
	if err != nil {
		return "", fmt.Errorf("credit after initiation %s: %w", result.Reference, err)
	}

	logger.ENG.Info("deposit confirmed",
		slog.String("event", "deposit.confirm"),
		slog.String("sender", sess.Sender),
		slog.String("reference", result.Reference),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("entry_id", entry.ID),
	)
	e.sessions.ClearData(sess.Sender, dataDepositChannel, dataDepositPhone, dataDepositAmount)

	// The deposit already happened; a failing mirror write must not turn
	// the success reply into an apology.
	e.sessions.SetState(sess.Sender, StateEFTMenu)
	if err := e.profiles.SetState(ctx, sess.Sender, string(StateEFTMenu)); err != nil {
		logger.ENG.Warn("state mirror failed",
			slog.String("event", "deposit.mirror"),
			slog.String("sender", sess.Sender),
			slog.String("err", err.Error()),
		)
	}

	instructions := result.Instructions
	if instructions == "" {
		instructions = "Approve the payment request on your phone."
	}
	return fmt.Sprintf(`Payment initiated successfully!

%s

Reference: %s
$%s has been credited to your wallet.

Type 'menu' for Main Menu`, instructions, result.Reference, amount.StringFixed(2)), nil
}

func paymentFailedText(reason string) string {
	if reason == "" {
		reason = "unknown error"
	}
	return fmt.Sprintf(`Payment initiation failed: %s

Reply 1 to try again or 2 to cancel.
Type 'menu' for Main Menu`, reason)
}
