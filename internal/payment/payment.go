// Package payment integrates the external mobile-money gateway. The
// engine sees a single synchronous Initiate call with a structured
// result; the wire protocol stays behind the Client.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Request describes one mobile-money transfer to initiate.
type Request struct {
	// Channel is the mobile-money method, e.g. "ecocash".
	Channel string
	// Phone is the payer's validated wallet number.
	Phone string
	// Amount is the positive amount in USD.
	Amount decimal.Decimal
	// Reference identifies the transfer on both sides. Generated by the
	// client when empty.
	Reference string
}

// Result is the structured outcome of an initiation attempt.
type Result struct {
	Success      bool
	Reference    string
	PollURL      string
	Instructions string
	Error        string
}

// Initiator performs the external transfer. Implementations make a
// single attempt; retries are the user's decision, not the engine's.
type Initiator interface {
	Initiate(ctx context.Context, req Request) (Result, error)
}
