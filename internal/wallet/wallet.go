// Package wallet defines the durable per-sender profile, the append-only
// transaction ledger, and the Postgres store backing both.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no profile exists for a sender.
var ErrNotFound = errors.New("wallet: profile not found")

// ErrInsufficientBalance is returned when a debit would take the balance negative.
var ErrInsufficientBalance = errors.New("wallet: insufficient balance")

// Ledger entry types.
const (
	EntryDeposit = "deposit"
	EntryPayment = "payment"
)

// Profile is the durable record for one sender. Identity fields are
// populated monotonically during registration, one per state transition.
type Profile struct {
	Sender               string          `db:"phone_number"`
	FirstName            string          `db:"first_name"`
	Surname              string          `db:"surname"`
	Nationality          string          `db:"nationality"`
	Address              string          `db:"address"`
	IDType               string          `db:"id_type"`
	IDNumber             string          `db:"id_number"`
	VerificationMethod   string          `db:"verification_method"`
	PasscodeHash         string          `db:"passcode_hash"`
	RegistrationComplete bool            `db:"registration_complete"`
	CurrentState         string          `db:"current_state"`
	WalletBalance        decimal.Decimal `db:"wallet_balance"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

// LedgerEntry is one immutable balance-affecting event.
type LedgerEntry struct {
	ID          string          `db:"id"`
	Sender      string          `db:"phone_number"`
	Type        string          `db:"entry_type"`
	Amount      decimal.Decimal `db:"amount"`
	Description string          `db:"description"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Fields carries a partial profile update keyed by column name.
// Only columns known to allowedFields are accepted.
type Fields map[string]any

// Store is the durable profile/ledger contract the engine depends on.
// Credit must update the balance and append the matching ledger entry in
// one transaction; a reader never observes one without the other.
type Store interface {
	Profile(ctx context.Context, sender string) (*Profile, error)
	Create(ctx context.Context, sender, state string) error
	Update(ctx context.Context, sender string, fields Fields) error
	SetState(ctx context.Context, sender, state string) error
	Credit(ctx context.Context, sender string, amount decimal.Decimal, entryType, description string) (*LedgerEntry, error)
	RecentEntries(ctx context.Context, sender string, limit int) ([]LedgerEntry, error)
}
