package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tisuway/walletbot/internal/logger"
	"log/slog"
)

// allowedFields whitelists the profile columns Update may touch.
var allowedFields = map[string]struct{}{
	"first_name":            {},
	"surname":               {},
	"nationality":           {},
	"address":               {},
	"id_type":               {},
	"id_number":             {},
	"verification_method":   {},
	"passcode_hash":         {},
	"registration_complete": {},
	"current_state":         {},
}

// PostgresStore implements Store on top of sqlx/Postgres.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps the given database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Profile loads the durable record for a sender, or ErrNotFound.
func (s *PostgresStore) Profile(ctx context.Context, sender string) (*Profile, error) {
	var p Profile
	err := s.db.GetContext(ctx, &p,
		`SELECT phone_number, first_name, surname, nationality, address,
		        id_type, id_number, verification_method, passcode_hash,
		        registration_complete, current_state, wallet_balance,
		        created_at, updated_at
		   FROM users WHERE phone_number = $1`, sender)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &p, nil
}

// Create inserts an empty profile in the given conversation state.
func (s *PostgresStore) Create(ctx context.Context, sender, state string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (phone_number, current_state, registration_complete)
		 VALUES ($1, $2, FALSE)`, sender, state)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// Concurrent greeting; the existing row wins.
			return nil
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	logger.DB.Debug("profile created",
		slog.String("event", "profile.create"),
		slog.String("sender", sender),
		slog.String("state", state),
	)
	return nil
}

// Update applies a partial profile update. Unknown columns are rejected
// before any SQL is built.
func (s *PostgresStore) Update(ctx context.Context, sender string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if _, ok := allowedFields[col]; !ok {
			return fmt.Errorf("update profile: unknown column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	set := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		set = append(set, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, fields[col])
	}
	set = append(set, "updated_at = NOW()")
	args = append(args, sender)

	query := fmt.Sprintf("UPDATE users SET %s WHERE phone_number = $%d",
		strings.Join(set, ", "), len(cols)+1)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetState refreshes the durable mirror of the conversation state.
func (s *PostgresStore) SetState(ctx context.Context, sender, state string) error {
	return s.Update(ctx, sender, Fields{"current_state": state})
}

// Credit locks the profile row, moves the balance, and appends the
// matching ledger entry inside one transaction so readers never observe
// a balance change without its ledger entry.
func (s *PostgresStore) Credit(ctx context.Context, sender string, amount decimal.Decimal, entryType, description string) (*LedgerEntry, error) {
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("credit: zero amount")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback()

	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT wallet_balance FROM users WHERE phone_number = $1 FOR UPDATE`,
		sender).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock profile: %w", err)
	}

	newBalance := balance.Add(amount)
	if newBalance.Sign() < 0 {
		return nil, ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET wallet_balance = $1, updated_at = NOW() WHERE phone_number = $2`,
		newBalance, sender); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	entry := &LedgerEntry{
		ID:          uuid.NewString(),
		Sender:      sender,
		Type:        entryType,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, phone_number, entry_type, amount, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Sender, entry.Type, entry.Amount, entry.Description, entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credit tx: %w", err)
	}

	logger.DB.Info("wallet credited",
		slog.String("event", "wallet.credit"),
		slog.String("sender", sender),
		slog.String("type", entryType),
		slog.String("amount", amount.String()),
		slog.String("entry_id", entry.ID),
	)
	return entry, nil
}

// RecentEntries returns the newest ledger entries for a sender.
func (s *PostgresStore) RecentEntries(ctx context.Context, sender string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	var entries []LedgerEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT id, phone_number, entry_type, amount, description, created_at
		   FROM transactions
		  WHERE phone_number = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`, sender, limit)
	if err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", err)
	}
	return entries, nil
}
