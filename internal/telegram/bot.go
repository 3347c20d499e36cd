// Package telegram runs the bot session and bridges inbound chat messages to
// the command processor.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
)

// CommandHandler executes one inbound chat message and formats the reply.
// An empty reply means the message is not for the bot.
type CommandHandler interface {
	Handle(ctx context.Context, userID int64, text string) string
}

// ReplyFunc delivers one reply for the update that triggered it.
type ReplyFunc func(ctx context.Context, entities tg.Entities, update *tg.UpdateNewMessage, text string) error

// SessionClient abstracts gotd session execution.
type SessionClient interface {
	// Run starts the session and executes fn within the connected lifecycle.
	Run(ctx context.Context, fn func(runCtx context.Context) error) error
}

// Config carries the Telegram API credentials for the bot session.
type Config struct {
	AppID   int
	AppHash string
	Token   string
}

// Validate reports the first missing credential.
func (c Config) Validate() error {
	if c.AppID == 0 {
		return errors.New("telegram config: missing app id")
	}
	if c.AppHash == "" {
		return errors.New("telegram config: missing app hash")
	}
	if c.Token == "" {
		return errors.New("telegram config: missing bot token")
	}
	return nil
}

// BotOption mutates bot configuration.
type BotOption func(*Bot)

// WithBotLogger sets the logger for session and delivery failures.
func WithBotLogger(logger *slog.Logger) BotOption {
	return func(b *Bot) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Bot owns one authorized bot session and dispatches inbound messages to the
// command handler.
type Bot struct {
	cfg     Config
	handler CommandHandler
	logger  *slog.Logger
}

// NewBot creates a bot for the given credentials and command handler.
func NewBot(cfg Config, handler CommandHandler, options ...BotOption) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new telegram bot: %w", err)
	}
	if handler == nil {
		return nil, errors.New("new telegram bot: nil handler")
	}

	b := &Bot{
		cfg:     cfg,
		handler: handler,
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(b)
	}
	return b, nil
}

// Run connects, authorizes the bot token, and serves updates until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	dispatcher := tg.NewUpdateDispatcher()
	client := gotdtelegram.NewClient(b.cfg.AppID, b.cfg.AppHash, gotdtelegram.Options{
		UpdateHandler: dispatcher,
	})
	sender := message.NewSender(client.API())
	dispatcher.OnNewMessage(b.onNewMessage(func(ctx context.Context, entities tg.Entities, update *tg.UpdateNewMessage, text string) error {
		_, err := sender.Reply(entities, update).Text(ctx, text)
		return err
	}))

	authorize := func(runCtx context.Context) error {
		status, err := client.Auth().Status(runCtx)
		if err != nil {
			return fmt.Errorf("telegram auth status: %w", err)
		}
		if status.Authorized {
			return nil
		}
		if _, err := client.Auth().Bot(runCtx, b.cfg.Token); err != nil {
			return fmt.Errorf("telegram bot authorization: %w", err)
		}
		return nil
	}

	return b.run(ctx, client, authorize)
}

func (b *Bot) run(ctx context.Context, client SessionClient, authorize func(runCtx context.Context) error) error {
	err := client.Run(ctx, func(runCtx context.Context) error {
		if authorize != nil {
			if err := authorize(runCtx); err != nil {
				return err
			}
		}
		b.logger.InfoContext(runCtx, "telegram bot session started")
		<-runCtx.Done()
		return runCtx.Err()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run telegram bot: %w", err)
	}
	return nil
}

// onNewMessage adapts the gotd new-message callback to the command handler.
func (b *Bot) onNewMessage(reply ReplyFunc) func(ctx context.Context, entities tg.Entities, update *tg.UpdateNewMessage) error {
	return func(ctx context.Context, entities tg.Entities, update *tg.UpdateNewMessage) error {
		userID, text, ok := inboundMessage(update)
		if !ok {
			return nil
		}

		answer := b.handler.Handle(ctx, userID, text)
		if answer == "" {
			return nil
		}
		if err := reply(ctx, entities, update, answer); err != nil {
			// A failed reply must not take the update loop down.
			b.logger.ErrorContext(ctx, "sending chat reply failed", "user_id", userID, "error", err)
		}
		return nil
	}
}

// inboundMessage extracts the sender id and text of a user-authored message.
// Outgoing, service, and anonymous-peer messages report ok=false.
func inboundMessage(update *tg.UpdateNewMessage) (userID int64, text string, ok bool) {
	if update == nil {
		return 0, "", false
	}
	msg, isMessage := update.Message.(*tg.Message)
	if !isMessage || msg.Out || msg.Message == "" {
		return 0, "", false
	}

	if from, hasFrom := msg.GetFromID(); hasFrom {
		if peer, isUser := from.(*tg.PeerUser); isUser {
			return peer.UserID, msg.Message, true
		}
		return 0, "", false
	}
	// Direct chats carry the counterparty only in PeerID.
	if peer, isUser := msg.PeerID.(*tg.PeerUser); isUser {
		return peer.UserID, msg.Message, true
	}
	return 0, "", false
}
