package payment

import (
	"context"
	"crypto/sha512"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tisuway/walletbot/internal/config"
	"github.com/tisuway/walletbot/internal/logger"
	"log/slog"
)

const remoteTransactionPath = "/interface/remotetransaction"

// Client talks to a Paynow-style gateway over its form-encoded remote
// transaction interface.
type Client struct {
	baseURL        string
	integrationID  string
	integrationKey string
	resultURL      string
	returnURL      string
	http           *http.Client
}

// NewClient builds a gateway client from configuration. The HTTP client
// carries a hard timeout and no transport-level retries: one confirm is
// one attempt.
func NewClient(cfg config.PaynowConfig) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		integrationID:  cfg.IntegrationID,
		integrationKey: cfg.IntegrationKey,
		resultURL:      cfg.ResultURL,
		returnURL:      cfg.ReturnURL,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Initiate posts one remote transaction and decodes the gateway verdict.
// A transport or protocol failure is an error; a gateway rejection is a
// Result with Success=false and the gateway's message.
func (c *Client) Initiate(ctx context.Context, req Request) (Result, error) {
	if req.Reference == "" {
		req.Reference = "EFT-" + uuid.NewString()
	}

	form := url.Values{}
	form.Set("id", c.integrationID)
	form.Set("reference", req.Reference)
	form.Set("amount", req.Amount.StringFixed(2))
	form.Set("additionalinfo", "wallet deposit")
	form.Set("returnurl", c.returnURL)
	form.Set("resulturl", c.resultURL)
	form.Set("phone", req.Phone)
	form.Set("method", req.Channel)
	form.Set("status", "Message")
	form.Set("hash", c.hash(form))

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+remoteTransactionPath, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("build initiate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.PAY.Error("initiate failed",
			slog.String("event", "pay.initiate"),
			slog.String("reference", req.Reference),
			slog.String("channel", req.Channel),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return Result{}, fmt.Errorf("initiate transaction: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Result{}, fmt.Errorf("read initiate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("initiate transaction: unexpected status %s", resp.Status)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return Result{}, fmt.Errorf("parse initiate response: %w", err)
	}

	result := Result{
		Reference:    req.Reference,
		PollURL:      values.Get("pollurl"),
		Instructions: values.Get("instructions"),
	}
	switch strings.ToLower(values.Get("status")) {
	case "ok":
		result.Success = true
	default:
		result.Error = values.Get("error")
		if result.Error == "" {
			result.Error = "gateway rejected the transaction"
		}
	}

	logger.PAY.Info("initiate result",
		slog.String("event", "pay.initiate"),
		slog.String("reference", req.Reference),
		slog.String("channel", req.Channel),
		slog.Bool("success", result.Success),
		slog.Duration("duration", logger.Took(start)),
	)
	return result, nil
}

// hash computes the gateway's SHA-512 request signature: every field
// value in insertion order followed by the integration key.
func (c *Client) hash(form url.Values) string {
	var b strings.Builder
	for _, key := range []string{
		"id", "reference", "amount", "additionalinfo",
		"returnurl", "resulturl", "phone", "method", "status",
	} {
		b.WriteString(form.Get(key))
	}
	b.WriteString(c.integrationKey)
	sum := sha512.Sum512([]byte(b.String()))
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}
