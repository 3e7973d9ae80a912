package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tisuway/walletbot/internal/bootstrap"
	"github.com/tisuway/walletbot/internal/config"
	"github.com/tisuway/walletbot/internal/conv"
	"github.com/tisuway/walletbot/internal/logger"
	"github.com/tisuway/walletbot/internal/payment"
	"github.com/tisuway/walletbot/internal/transport/telegram"
	"github.com/tisuway/walletbot/internal/transport/whatsapp"
	"github.com/tisuway/walletbot/internal/wallet"
	"log/slog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("walletbot: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	startedAt := time.Now()
	infra, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer infra.DB.Close()

	store := wallet.NewPostgresStore(infra.DB)
	sessions := conv.NewMemoryManager(conv.MemoryOptions{
		TTL:           time.Duration(cfg.Session.TTLMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Session.SweepSeconds) * time.Second,
		MaxEntries:    cfg.Session.MaxEntries,
	})
	defer sessions.Stop()

	gateway := payment.NewClient(cfg.Paynow)
	engine := conv.NewEngine(sessions, store, gateway,
		conv.WithHistoryLimit(cfg.Session.HistoryEntries))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	type runner struct {
		name string
		run  func(context.Context) error
	}
	var runners []runner

	if cfg.WhatsApp.Enabled {
		srv := whatsapp.NewServer(cfg.WhatsApp, engine)
		runners = append(runners, runner{"whatsapp", srv.Run})
	}
	if cfg.Telegram.Enabled {
		bot, err := telegram.NewBot(cfg.Telegram, engine)
		if err != nil {
			return fmt.Errorf("telegram bot initialization failed: %w", err)
		}
		runners = append(runners, runner{"telegram", bot.Run})
	}

	logger.L.With("component", "app").Info("app ready",
		slog.String("event", "ready"),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	errCh := make(chan error, len(runners))
	for _, r := range runners {
		r := r
		go func() {
			if err := r.run(ctx); err != nil {
				errCh <- fmt.Errorf("%s transport: %w", r.name, err)
				return
			}
			errCh <- nil
		}()
	}

	var firstErr error
	for range runners {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	logger.L.With("component", "app").Info("shutting down...",
		slog.String("event", "shutdown"),
	)
	return firstErr
}
