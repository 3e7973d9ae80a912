package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/tisuway/walletbot/internal/config"
)

var (
	initOnce sync.Once

	levelVar slog.LevelVar

	// L is the base logger shared across packages.
	L *slog.Logger

	// DB logs database-related events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// ENG logs conversation engine events.
	ENG *slog.Logger
	// WA logs WhatsApp webhook transport events.
	WA *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// PAY logs payment gateway activity.
	PAY *slog.Logger
	// SESS logs session store activity.
	SESS *slog.Logger
)

func init() {
	// Keep loggers usable before InitLogger runs (tests, early startup).
	wire(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &levelVar})))
}

// InitLogger configures the global structured logger. It may be called only once.
func InitLogger(cfg *config.Config) error {
	initOnce.Do(func() {
		levelVar.Set(selectLevel(cfg))

		opts := &slog.HandlerOptions{Level: &levelVar}
		var handler slog.Handler
		if selectFormat(cfg) == "json" {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(os.Stdout, opts)
		}

		logger := slog.New(handler)
		slog.SetDefault(logger)
		wire(logger)

		if cfg != nil {
			L.Info("logger ready",
				slog.String("event", "logger.init"),
				slog.String("level", levelVar.Level().String()),
				slog.String("profile", cfg.Logging.Profile),
			)
		}
	})
	return nil
}

func wire(logger *slog.Logger) {
	L = logger
	DB = L.With("component", "db")
	MIG = L.With("component", "db.migrate")
	ENG = L.With("component", "engine")
	WA = L.With("component", "wa")
	TG = L.With("component", "tg")
	PAY = L.With("component", "payment")
	SESS = L.With("component", "session")
}

// Component returns a child logger tagged with the given component name.
func Component(name string) *slog.Logger {
	return L.With("component", name)
}

func selectLevel(cfg *config.Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func selectFormat(cfg *config.Config) string {
	if cfg == nil {
		return "kv"
	}
	if strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) == "json" {
		return "json"
	}
	return "kv"
}
