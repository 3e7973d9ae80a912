// Package whatsapp serves the Twilio WhatsApp webhook: inbound messages
// arrive as form posts and replies go back as TwiML.
package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tisuway/walletbot/internal/config"
	"github.com/tisuway/walletbot/internal/logger"
	"log/slog"
)

// Engine is the conversation entry point the webhook drives.
type Engine interface {
	Handle(ctx context.Context, sender, text string) string
}

// Server is the HTTP front for the Twilio webhook.
type Server struct {
	cfg    config.WhatsAppConfig
	engine Engine
	srv    *http.Server
}

// NewServer wires the webhook routes onto a fresh router.
func NewServer(cfg config.WhatsAppConfig, engine Engine) *Server {
	s := &Server{cfg: cfg, engine: engine}

	r := mux.NewRouter()
	r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Use(recoverMiddleware)

	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WA.Info("webhook listening",
			slog.String("event", "wa.listen"),
			slog.String("addr", s.cfg.Listen),
		)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// twimlResponse is the minimal reply document Twilio expects.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if s.cfg.ValidateSignature && !s.validSignature(r) {
		logger.WA.Warn("signature rejected",
			slog.String("event", "wa.signature"),
			slog.String("remote", r.RemoteAddr),
		)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	sender := normalizeSender(r.PostFormValue("From"))
	body := r.PostFormValue("Body")
	if sender == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx := logger.WithSender(r.Context(), sender)
	reply := s.engine.Handle(ctx, sender, body)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(twimlResponse{Message: reply}); err != nil {
		logger.WA.Error("twiml encode failed",
			slog.String("event", "wa.reply"),
			slog.String("err", err.Error()),
		)
		return
	}

	logger.WA.Debug("webhook handled",
		slog.String("event", "wa.webhook"),
		slog.String("status", "ok"),
		slog.String("sender", logger.Sanitize(sender)),
		slog.Duration("duration", logger.Took(start)),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// validSignature checks the X-Twilio-Signature header: base64 HMAC-SHA1
// over the public webhook URL concatenated with every POST parameter as
// key+value in lexical key order.
func (s *Server) validSignature(r *http.Request) bool {
	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(s.cfg.AuthToken))
	mac.Write([]byte(strings.TrimRight(s.cfg.PublicURL, "/") + "/webhook"))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(r.PostFormValue(k)))
	}
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	got := r.Header.Get("X-Twilio-Signature")
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// normalizeSender strips the channel prefix Twilio adds to the number.
func normalizeSender(from string) string {
	from = strings.TrimSpace(from)
	from = strings.TrimPrefix(from, "whatsapp:")
	return strings.TrimPrefix(from, "+")
}

// recoverMiddleware converts handler panics into HTTP 500s.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WA.Error("handler panic",
					slog.String("event", "wa.panic"),
					slog.Any("panic", rec),
				)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
