// Package telegram adapts the conversation engine to Telegram long
// polling. The chat ID stands in for the sender identifier, so Telegram
// users get their own profile keyed by chat ID rather than phone number.
package telegram

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/tisuway/walletbot/internal/config"
	"github.com/tisuway/walletbot/internal/httpx"
	"github.com/tisuway/walletbot/internal/logger"
	"log/slog"
)

// Engine is the conversation entry point the bot drives.
type Engine interface {
	Handle(ctx context.Context, sender, text string) string
}

// Bot wraps a telebot instance bound to the engine.
type Bot struct {
	bot    *tele.Bot
	engine Engine
}

// NewBot builds the long-polling bot with the shared retrying HTTP client.
func NewBot(cfg config.TelegramConfig, engine Engine) (*Bot, error) {
	timeoutSec := cfg.LongPollTimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 10
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: time.Duration(timeoutSec) * time.Second},
		Client: httpx.BuildClient(),
	})
	if err != nil {
		return nil, err
	}

	b := &Bot{bot: bot, engine: engine}
	bot.Use(recoverMiddleware)
	bot.Handle(tele.OnText, b.onText)
	bot.Handle("/start", b.onText)

	logger.TG.Info("polling mode",
		slog.String("event", "mode"),
		slog.String("mode", "polling"),
		slog.Int("timeout_seconds", timeoutSec),
	)
	return b, nil
}

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.bot.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		b.bot.Stop()
		<-done
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (b *Bot) onText(c tele.Context) error {
	sender := strconv.FormatInt(c.Sender().ID, 10)
	text := c.Text()
	if text == "/start" {
		text = "hi"
	}

	ctx := logger.WithSender(context.Background(), sender)
	reply := b.engine.Handle(ctx, sender, text)
	return c.Send(reply)
}

// recoverMiddleware catches panics in handlers and keeps the poller alive.
func recoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logger.TG.Error("panic recovered",
					slog.String("event", "tg.panic"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		return next(c)
	}
}
