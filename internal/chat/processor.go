// Package chat parses bot commands, runs them against the feed service and
// formats the replies. It is transport neutral; internal/telegram adapts it
// to a live bot session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"wikistream/pkg/wikistream"
)

// CommandPrefix marks a chat message as a bot command.
const CommandPrefix = "!"

const helpReply = `available commands:
!help - show this message
!ping - check that the bot is alive
!recent - show the latest changes for your language
!stats [YYYY-MM-DD] - show change statistics, today by default
!setlang <code> - set your wiki language, e.g. !setlang de`

// Feed is the slice of the feed service the processor consumes.
type Feed interface {
	Subscribe(ctx context.Context, lang wikistream.LanguageKey) (wikistream.Subscription, error)
	Recent(lang wikistream.LanguageKey, count int) ([]wikistream.ChangeEvent, error)
	Stats(ctx context.Context, lang wikistream.LanguageKey, day wikistream.Day) (wikistream.DailyStats, bool, error)
}

// ProcessorOption mutates processor configuration.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger used for command failures.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProcessorClock overrides the time source used for the default stats
// day. Tests pin it.
func WithProcessorClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// Processor executes chat commands against the feed service.
//
// The first recent-changes command for a language opens its upstream stream
// and keeps it open, so the cache keeps filling between commands.
type Processor struct {
	feed   Feed
	prefs  *Prefs
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	streams map[wikistream.LanguageKey]wikistream.Subscription
}

// NewProcessor creates a command processor backed by feed.
func NewProcessor(feed Feed, options ...ProcessorOption) (*Processor, error) {
	if feed == nil {
		return nil, errors.New("chat: nil feed")
	}

	p := &Processor{
		feed:    feed,
		prefs:   NewPrefs(),
		logger:  slog.Default(),
		clock:   time.Now,
		streams: make(map[wikistream.LanguageKey]wikistream.Subscription),
	}
	for _, option := range options {
		option(p)
	}
	return p, nil
}

// Handle runs one inbound message for one user. The returned reply is empty
// for non-command messages, which the transport must not answer.
func (p *Processor) Handle(ctx context.Context, userID int64, text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, CommandPrefix) {
		return ""
	}

	fields := strings.Fields(strings.TrimPrefix(trimmed, CommandPrefix))
	if len(fields) == 0 {
		return ""
	}
	command, args := strings.ToLower(fields[0]), fields[1:]

	switch command {
	case "help":
		return helpReply
	case "ping":
		return "pong! bot is alive"
	case "recent":
		return p.handleRecent(ctx, userID)
	case "stats":
		return p.handleStats(ctx, userID, args)
	case "setlang":
		return p.handleSetLang(ctx, userID, args)
	default:
		return fmt.Sprintf("unknown command %q, try !help", CommandPrefix+command)
	}
}

func (p *Processor) handleRecent(ctx context.Context, userID int64) string {
	lang := p.prefs.Language(userID)
	if err := p.ensureStream(ctx, lang); err != nil {
		p.logger.ErrorContext(ctx, "opening change stream for command failed", "lang", lang, "error", err)
		return "something went wrong, please try again later"
	}

	// Count zero defers to the cache's own query default.
	events, err := p.feed.Recent(lang, 0)
	if err != nil {
		p.logger.ErrorContext(ctx, "recent query failed", "lang", lang, "error", err)
		return "something went wrong, please try again later"
	}
	if len(events) == 0 {
		return fmt.Sprintf("no recent changes for %q yet, check back in a moment", lang)
	}

	var reply strings.Builder
	fmt.Fprintf(&reply, "latest changes for %q:", lang)
	for _, event := range events {
		fmt.Fprintf(&reply, "\n%s by %s at %s",
			event.Title,
			event.Editor(),
			event.OccurredAt().Format(time.RFC3339),
		)
		if event.SourceURI != "" {
			fmt.Fprintf(&reply, "\n%s", event.SourceURI)
		}
	}
	return reply.String()
}

func (p *Processor) handleStats(ctx context.Context, userID int64, args []string) string {
	day := wikistream.DayOf(p.clock().Unix())
	if len(args) > 0 {
		parsed, err := wikistream.ParseDay(args[0])
		if err != nil {
			return "usage: !stats [YYYY-MM-DD]"
		}
		day = parsed
	}

	lang := p.prefs.Language(userID)
	stats, found, err := p.feed.Stats(ctx, lang, day)
	if err != nil {
		p.logger.ErrorContext(ctx, "stats query failed", "lang", lang, "day", day.String(), "error", err)
		return "something went wrong, please try again later"
	}
	if !found {
		return fmt.Sprintf("no statistics for %q on %s", lang, day)
	}

	var reply strings.Builder
	fmt.Fprintf(&reply, "%d changes for %q on %s", stats.ChangeCount, lang, day)
	for rank, entry := range stats.Leaderboard(wikistream.DefaultLeaderboardSize) {
		fmt.Fprintf(&reply, "\n%d. %s: %d", rank+1, entry.Stat.DisplayName, entry.Stat.ChangeCount)
	}
	return reply.String()
}

func (p *Processor) handleSetLang(ctx context.Context, userID int64, args []string) string {
	if len(args) == 0 {
		return "usage: !setlang <code>, e.g. !setlang de"
	}
	lang, err := wikistream.ParseLanguage(args[0])
	if err != nil {
		return fmt.Sprintf("%q is not a valid language code, e.g. en, de, fr", args[0])
	}

	p.prefs.SetLanguage(userID, lang)
	// Warm the stream so the cache is already filling when the first
	// recent-changes command arrives. Best effort: the preference holds
	// either way and the next command retries the stream.
	if err := p.ensureStream(ctx, lang); err != nil {
		p.logger.WarnContext(ctx, "warming change stream after language switch failed", "lang", lang, "error", err)
	}
	return fmt.Sprintf("language set to %q", lang)
}

// ensureStream opens the language's upstream stream once and retains the
// subscription so the recent cache keeps filling. The hub's drop-oldest
// policy keeps the undrained subscription harmless.
func (p *Processor) ensureStream(ctx context.Context, lang wikistream.LanguageKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.streams[lang]; ok {
		return nil
	}
	sub, err := p.feed.Subscribe(ctx, lang)
	if err != nil {
		return err
	}
	p.streams[lang] = sub
	return nil
}

// Close releases the processor's retained stream subscriptions.
func (p *Processor) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for lang, sub := range p.streams {
		if err := sub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s stream: %w", lang, err))
		}
		delete(p.streams, lang)
	}
	return errors.Join(errs...)
}
