package conv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tisuway/walletbot/internal/logger"
	"github.com/tisuway/walletbot/internal/payment"
	"github.com/tisuway/walletbot/internal/wallet"
	"log/slog"
)

// handlerFunc processes one turn for a specific state and returns the
// reply text. A returned error means an internal fault; the caller maps
// it to the generic apology and leaves state unchanged.
type handlerFunc func(ctx context.Context, sess *Session, prof *wallet.Profile, input string) (string, error)

// Engine drives the conversation state machine. One Handle call is one
// turn: it resolves the session and profile, applies universal commands,
// and dispatches to the current state's handler.
type Engine struct {
	sessions     SessionManager
	profiles     wallet.Store
	payments     payment.Initiator
	historyLimit int
	handlers     map[State]handlerFunc
}

// Option customizes Engine construction.
type Option func(*Engine)

// WithHistoryLimit sets how many ledger entries Balance and History shows.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// NewEngine wires the engine with its collaborators and registers the
// per-state handlers.
func NewEngine(sessions SessionManager, profiles wallet.Store, payments payment.Initiator, opts ...Option) *Engine {
	e := &Engine{
		sessions:     sessions,
		profiles:     profiles,
		payments:     payments,
		historyLimit: 5,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.handlers = map[State]handlerFunc{
		StateFirstName:    e.handleFirstName,
		StateSurname:      e.handleSurname,
		StateNationality:  e.handleNationality,
		StateAddress:      e.handleAddress,
		StateIDType:       e.handleIDType,
		StateIDNumber:     e.handleIDNumber,
		StateVerification: e.handleVerification,
		StatePasscode:     e.handlePasscode,

		StateMainMenu: e.menu(StateMainMenu, map[string]handlerFunc{
			"1": e.gotoState(StateWalletMenu),
			"2": e.gotoState(StateZimServicesMenu),
			"3": say(comingSoon("South Africa Services", "Main Menu")),
			"4": say(comingSoon("Order Groceries", "Main Menu")),
			"5": say(comingSoon("Merchant Services", "Main Menu")),
			"6": say(comingSoon("Help & Support", "Main Menu")),
		}),
		StateWalletMenu: e.menu(StateWalletMenu, map[string]handlerFunc{
			"1": e.gotoState(StateEFTMenu),
			"2": e.gotoState(StateVoucherMenu),
			"3": e.gotoState(StateBuyVoucherMenu),
			"4": say(comingSoon("Send Token", "Wallet Menu")),
			"5": e.handleBalanceHistory,
			"6": e.gotoState(StateMainMenu),
		}),
		StateEFTMenu: e.menu(StateEFTMenu, map[string]handlerFunc{
			"1": e.startDeposit("ecocash"),
			"2": say(comingSoon("ONEMONEY", "Wallet Menu")),
			"3": say(comingSoon("CBZ", "Wallet Menu")),
			"4": say(comingSoon("STANDARD BANK", "Wallet Menu")),
		}),
		StateVoucherMenu: e.menu(StateVoucherMenu, map[string]handlerFunc{
			"1": say(leafPrompt("NEDBANK CashOut", "Please enter your voucher number.", "voucher types")),
			"2": say(leafPrompt("OTT", "Please enter your voucher number.", "voucher types")),
			"3": say(leafPrompt("STANDARD BANK CashOut", "Please enter your voucher number.", "voucher types")),
			"4": say(leafPrompt("1 Voucher", "Please enter your voucher number.", "voucher types")),
		}),
		StateBuyVoucherMenu: e.menu(StateBuyVoucherMenu, map[string]handlerFunc{
			"1": say(leafPrompt("Blu Voucher", "Please enter the amount you want to purchase.", "voucher types")),
			"2": say(leafPrompt("Hollywood", "Please enter the amount you want to purchase.", "voucher types")),
		}),
		StateZimServicesMenu: e.menu(StateZimServicesMenu, map[string]handlerFunc{
			"1": e.gotoState(StateAirtimeMenu),
			"2": e.gotoState(StateDataMenu),
			"3": e.gotoState(StateDSTVMenu),
			"4": e.gotoState(StateZESAMenu),
			"5": say(leafPrompt("Pay Nyaradzo", "Please enter the policy number.", "Zimbabwe Services")),
			"6": say(leafPrompt("Pay Liquid Home", "Please enter the account number.", "Zimbabwe Services")),
			"7": e.gotoState(StateMainMenu),
		}),
		StateAirtimeMenu: e.menu(StateAirtimeMenu, map[string]handlerFunc{
			"1": say(leafPrompt("ECONET", "Please enter the phone number.", "network selection")),
			"2": say(leafPrompt("NETONE", "Please enter the phone number.", "network selection")),
			"3": say(leafPrompt("TELECEL", "Please enter the phone number.", "network selection")),
			"4": say(leafPrompt("Airtime Voucher(PIN)", "Please enter your voucher PIN number.", "network selection")),
		}),
		StateDataMenu: e.menu(StateDataMenu, map[string]handlerFunc{
			"1": say(leafPrompt("ECONET", "Please enter the phone number.", "network selection")),
			"2": say(leafPrompt("NETONE", "Please enter the phone number.", "network selection")),
			"3": say(leafPrompt("TELECEL", "Please enter the phone number.", "network selection")),
		}),
		StateDSTVMenu: e.menu(StateDSTVMenu, map[string]handlerFunc{
			"1": say(leafPrompt("Use my balance", "Please enter your DSTV account number.", "payment methods")),
			"2": say(leafPrompt("Use Ecocash USD", "Please enter your DSTV account number.", "payment methods")),
			"3": say(leafPrompt("Use Ecocash ZiG", "Please enter your DSTV account number.", "payment methods")),
			"4": say(leafPrompt("Use InnBucks", "Please enter your DSTV account number.", "payment methods")),
		}),
		StateZESAMenu: e.menu(StateZESAMenu, map[string]handlerFunc{
			"1": say(leafPrompt("Buy Token", "Please enter your meter number.", "ZESA services")),
			"2": say(leafPrompt("View Token", "Please enter your reference number.", "ZESA services")),
		}),

		StateEcocashPhone:   e.handleEcocashPhone,
		StateEcocashAmount:  e.handleEcocashAmount,
		StateEcocashConfirm: e.handleEcocashConfirm,
	}
	return e
}

// Handle processes one inbound message and always returns reply text.
// Internal failures are logged and collapsed into a generic apology with
// the conversation state left unchanged so the user may retry.
func (e *Engine) Handle(ctx context.Context, sender, text string) string {
	start := time.Now()
	unlock := e.sessions.Lock(sender)
	defer unlock()

	input := strings.TrimSpace(text)
	reply, err := e.dispatch(ctx, sender, input)
	if err != nil {
		logger.ENG.Error("turn failed",
			slog.String("event", "engine.turn"),
			slog.String("sender", sender),
			slog.String("state", string(e.sessions.StateOf(sender))),
			slog.String("payload", logger.SanitizeLimit(input, 128)),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return somethingWrongText
	}

	logger.ENG.Debug("turn handled",
		slog.String("event", "engine.turn"),
		slog.String("status", "ok"),
		slog.String("sender", sender),
		slog.String("state", string(e.sessions.StateOf(sender))),
		slog.Duration("duration", logger.Took(start)),
	)
	return reply
}

func (e *Engine) dispatch(ctx context.Context, sender, input string) (string, error) {
	sess := e.sessions.Get(sender)

	prof, err := e.profiles.Profile(ctx, sender)
	if err != nil && !errors.Is(err, wallet.ErrNotFound) {
		return "", err
	}

	if prof == nil {
		if strings.EqualFold(input, "hi") {
			if err := e.profiles.Create(ctx, sender, string(StateFirstName)); err != nil {
				return "", err
			}
			e.sessions.SetState(sender, StateFirstName)
			return welcomeText, nil
		}
		return greetHint, nil
	}

	// A fresh session resumes from the durable state mirror.
	if sess.State == StateNone {
		st := State(prof.CurrentState)
		if st == StateNone || st == StateWelcome {
			st = StateFirstName
		}
		e.sessions.SetState(sender, st)
	}

	// Universal commands apply only once registration is complete;
	// registration steps treat all text as data for that step.
	if prof.RegistrationComplete {
		if reply, handled, err := e.universal(ctx, sess, prof, input); handled || err != nil {
			return reply, err
		}
	}

	h, ok := e.handlers[sess.State]
	if !ok {
		return "", fmt.Errorf("no handler for state %q", sess.State)
	}
	return h(ctx, sess, prof, input)
}

// universal evaluates the "menu" and "back" commands ahead of any
// state-specific handler.
func (e *Engine) universal(ctx context.Context, sess *Session, prof *wallet.Profile, input string) (reply string, handled bool, err error) {
	switch strings.ToLower(input) {
	case "menu":
		if err := e.transition(ctx, sess, StateMainMenu); err != nil {
			return "", true, err
		}
		return mainMenu(), true, nil
	case "back":
		parent, ok := ParentOf(sess.State)
		if !ok {
			return cannotGoBackText, true, nil
		}
		if err := e.transition(ctx, sess, parent); err != nil {
			return "", true, err
		}
		return e.promptFor(parent, prof), true, nil
	}
	return "", false, nil
}

// transition moves the conversation to st, updating the durable mirror
// first so a store failure leaves the session where it was.
func (e *Engine) transition(ctx context.Context, sess *Session, st State) error {
	if err := e.profiles.SetState(ctx, sess.Sender, string(st)); err != nil {
		return fmt.Errorf("persist state %q: %w", st, err)
	}
	e.sessions.SetState(sess.Sender, st)
	return nil
}

// menu builds the handler for a menu state from its static option table.
// Unrecognized options re-render the menu verbatim and never transition.
func (e *Engine) menu(st State, options map[string]handlerFunc) handlerFunc {
	return func(ctx context.Context, sess *Session, prof *wallet.Profile, input string) (string, error) {
		if h, ok := options[input]; ok {
			return h(ctx, sess, prof, input)
		}
		return e.promptFor(st, prof), nil
	}
}

// gotoState transitions to a child state and renders its prompt.
func (e *Engine) gotoState(st State) handlerFunc {
	return func(ctx context.Context, sess *Session, prof *wallet.Profile, _ string) (string, error) {
		if err := e.transition(ctx, sess, st); err != nil {
			return "", err
		}
		return e.promptFor(st, prof), nil
	}
}

// say replies with fixed text and leaves state untouched.
func say(text string) handlerFunc {
	return func(context.Context, *Session, *wallet.Profile, string) (string, error) {
		return text, nil
	}
}

// handleBalanceHistory renders the balance with recent ledger entries.
func (e *Engine) handleBalanceHistory(ctx context.Context, sess *Session, prof *wallet.Profile, _ string) (string, error) {
	entries, err := e.profiles.RecentEntries(ctx, sess.Sender, e.historyLimit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Balance: $%s\n", prof.WalletBalance.StringFixed(2))
	if len(entries) == 0 {
		b.WriteString("\nNo transactions yet.\n")
	} else {
		b.WriteString("\nRecent transactions:\n")
		for _, en := range entries {
			fmt.Fprintf(&b, "%s  %s  $%s  %s\n",
				en.CreatedAt.Format("02 Jan 15:04"), en.Type, en.Amount.StringFixed(2), en.Description)
		}
	}
	b.WriteString("\nType 'back' to return to Wallet Menu\nType 'menu' for Main Menu")
	return b.String(), nil
}
