package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/llm"
	otelPkg "github.com/svetasakovets-dev/telegram-summarizer-bot/internal/otel"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/store"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/summarize"
)

// MaxReplyLen is the transport message-size limit replies are split under.
// Telegram caps messages at 4096 characters; 3500 leaves headroom for the
// server counting entities differently than len().
const MaxReplyLen = 3500

// fallbackAuthor labels messages whose sender exposes no usable name.
const fallbackAuthor = "Channel"

// Summarizer is the slice of the pipeline the transport drives.
type Summarizer interface {
	Summarize(ctx context.Context, conversationID int64, spec summarize.WindowSpec) (summarize.Result, error)
}

// TelegramConfig holds the transport settings the channel needs.
type TelegramConfig struct {
	Token          string
	AllowedChatIDs []int64
	WebhookURL     string
	WebhookSecret  string
	ListenAddr     string
	RunTimeout     time.Duration
}

// TelegramChannel ingests chat messages into the store and serves the
// interactive summary commands. It is the only place that branches on
// Telegram's sender kinds; everything downstream sees the uniform Message.
type TelegramChannel struct {
	cfg        TelegramConfig
	allowed    map[int64]struct{}
	store      store.Store
	subs       *store.Subscriptions
	summarizer Summarizer
	logger     *slog.Logger
	metrics    *otelPkg.Metrics
	bot        *tgbotapi.BotAPI
}

// NewTelegramChannel wires the channel. Metrics may be nil.
func NewTelegramChannel(cfg TelegramConfig, st store.Store, subs *store.Subscriptions, summarizer Summarizer, logger *slog.Logger, metrics *otelPkg.Metrics) *TelegramChannel {
	allowed := make(map[int64]struct{})
	for _, id := range cfg.AllowedChatIDs {
		allowed[id] = struct{}{}
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramChannel{
		cfg:        cfg,
		allowed:    allowed,
		store:      st,
		subs:       subs,
		summarizer: summarizer,
		logger:     logger.With("component", "telegram"),
		metrics:    metrics,
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Start connects to Telegram and serves updates until ctx is cancelled.
// Long-polling is the default; a configured webhook URL switches to webhook
// mode with a health endpoint.
func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}

	t.logger.Info("telegram bot started", "user", t.bot.Self.UserName)

	if t.cfg.WebhookURL != "" {
		return t.serveWebhook(ctx)
	}
	return t.pollLoop(ctx)
}

// pollLoop long-polls with reconnection and exponential backoff.
func (t *TelegramChannel) pollLoop(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)

		// Always clean up the old polling goroutine before reconnecting.
		t.bot.StopReceivingUpdates()

		if pollErr != nil {
			t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// pollUpdates returned nil means ctx was cancelled.
		return nil
	}
}

// pollUpdates reads from the update channel until ctx is done, the channel
// closes, or no updates arrive within 2x the long-poll timeout (stall
// detection). Returns nil on context cancellation, or an error to trigger
// reconnection.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	// tgbotapi uses a 60s long-poll timeout. If we see nothing for 2.5
	// minutes the connection is likely dead (the library blocks rather than
	// closing the channel).
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}

			// Reset stall timer on every received update (including empty
			// long-poll returns).
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			t.handleUpdate(ctx, update)

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

// serveWebhook registers the webhook and serves updates plus /healthz until
// ctx is cancelled.
func (t *TelegramChannel) serveWebhook(ctx context.Context) error {
	path := "/telegram/" + t.cfg.WebhookSecret
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(t.cfg.WebhookURL, "/") + path)
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := t.bot.Request(wh); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}

	updates := t.bot.ListenForWebhook(path)

	mux := http.NewServeMux()
	mux.Handle(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// tgbotapi installed its handler on http.DefaultServeMux; delegate.
		http.DefaultServeMux.ServeHTTP(w, r)
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: t.cfg.ListenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	t.logger.Info("webhook mode", "listen_addr", t.cfg.ListenAddr)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server: %w", err)
	}
}

// handleUpdate routes one update: commands to the command handler, regular
// messages and channel posts into the store. Everything else is dropped.
func (t *TelegramChannel) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return
	}

	chatID := msg.Chat.ID
	if len(t.allowed) > 0 {
		if _, ok := t.allowed[chatID]; !ok {
			t.logger.Warn("telegram access denied", "chat_id", chatID)
			return
		}
	}

	if msg.IsCommand() {
		t.handleCommand(ctx, msg)
		return
	}

	t.store.Append(chatID, normalizeMessage(msg))
	if t.metrics != nil {
		t.metrics.MessagesIngested.Add(ctx, 1)
	}
}

// normalizeMessage maps a Telegram message to the uniform store entry. Media
// captions count as text; media without a caption ingests as an empty-text
// entry that counts toward totals but never reaches the transcript.
func normalizeMessage(msg *tgbotapi.Message) store.Message {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return store.Message{
		Text:      text,
		Author:    authorLabel(msg),
		Timestamp: msg.Time(),
	}
}

// authorLabel resolves the display label: username, then first name, then
// the channel or sender-chat title, then the fixed fallback.
func authorLabel(msg *tgbotapi.Message) string {
	if msg.From != nil {
		if msg.From.UserName != "" {
			return msg.From.UserName
		}
		if msg.From.FirstName != "" {
			return msg.From.FirstName
		}
	}
	if msg.SenderChat != nil && msg.SenderChat.Title != "" {
		return msg.SenderChat.Title
	}
	if msg.Chat != nil && msg.Chat.IsChannel() && msg.Chat.Title != "" {
		return msg.Chat.Title
	}
	return fallbackAuthor
}

const helpText = `I buffer this chat's messages and produce summaries on demand.

/summary — summarize the last 24 hours
/summary_custom N — summarize the last N hours (1-168)
/summary_days N — summarize the last N days (1-30)
/yesterday — summarize the 24-48h-ago window
/digest_on — enable the daily digest for this chat
/digest_off — disable the daily digest
/clear — drop this chat's buffered messages
/status — buffered message count and digest state`

func (t *TelegramChannel) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		t.reply(chatID, helpText)

	case "summary":
		spec, _ := summarize.LastHours(24)
		t.runSummary(ctx, chatID, spec)

	case "summary_custom":
		n, err := parseCount(args, 1)
		if err != nil {
			t.reply(chatID, "Usage: /summary_custom N — N is hours, 1 to 168.")
			return
		}
		spec, err := summarize.LastHours(n)
		if err != nil {
			t.reply(chatID, validationReply(err))
			return
		}
		t.runSummary(ctx, chatID, spec)

	case "summary_days":
		n, err := parseCount(args, 1)
		if err != nil {
			t.reply(chatID, "Usage: /summary_days N — N is days, 1 to 30.")
			return
		}
		spec, err := summarize.LastDays(n)
		if err != nil {
			t.reply(chatID, validationReply(err))
			return
		}
		t.runSummary(ctx, chatID, spec)

	case "yesterday":
		t.runSummary(ctx, chatID, summarize.Yesterday())

	case "digest_on":
		if t.subs.Add(chatID) {
			t.reply(chatID, "Daily digest enabled for this chat.")
		} else {
			t.reply(chatID, "Daily digest is already enabled here.")
		}

	case "digest_off":
		if t.subs.Remove(chatID) {
			t.reply(chatID, "Daily digest disabled for this chat.")
		} else {
			t.reply(chatID, "Daily digest was not enabled here.")
		}

	case "clear":
		removed := t.store.Clear(chatID)
		t.reply(chatID, fmt.Sprintf("Cleared %d buffered messages.", removed))

	case "status":
		state := "off"
		if t.subs.Contains(chatID) {
			state = "on"
		}
		t.reply(chatID, fmt.Sprintf("Buffered messages: %d. Daily digest: %s.", t.store.Len(chatID), state))

	default:
		t.reply(chatID, "Unknown command. Try /help.")
	}
}

// runSummary acks immediately, then runs the pipeline in its own goroutine
// so the update loop keeps ingesting while completions are in flight.
func (t *TelegramChannel) runSummary(ctx context.Context, chatID int64, spec summarize.WindowSpec) {
	t.reply(chatID, fmt.Sprintf("Summarizing %s, give me a moment...", spec.String()))

	go func() {
		runCtx, cancel := context.WithTimeout(ctx, t.cfg.RunTimeout)
		defer cancel()

		result, err := t.summarizer.Summarize(runCtx, chatID, spec)
		if err != nil {
			t.logger.Error("interactive summary failed", "chat_id", chatID, "error", err)
			t.reply(chatID, failureReply(err))
			return
		}
		t.reply(chatID, result.Text)
	}()
}

// SendDigest delivers a scheduled digest to a chat. Satisfies the digest
// scheduler's sender dependency.
func (t *TelegramChannel) SendDigest(chatID int64, text string) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not started")
	}
	for _, part := range SplitMessage(text, MaxReplyLen) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("send digest part: %w", err)
		}
	}
	return nil
}

// reply sends text to a chat, splitting it under the transport limit.
func (t *TelegramChannel) reply(chatID int64, text string) {
	for _, part := range SplitMessage(text, MaxReplyLen) {
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Error("failed to send telegram reply", "chat_id", chatID, "error", err)
			return
		}
	}
}

// SplitMessage splits text into transport-sized parts, preferring blank-line
// boundaries so sections stay intact, then falling back to a hard cut.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var parts []string
	rest := text
	for len(rest) > limit {
		cut := strings.LastIndex(rest[:limit], "\n\n")
		if cut <= 0 {
			if nl := strings.LastIndex(rest[:limit], "\n"); nl > 0 {
				cut = nl
			} else {
				// Hard cut: back off to a rune boundary so a multi-byte
				// character is never split across parts.
				cut = limit
				for cut > 0 && !utf8.RuneStart(rest[cut]) {
					cut--
				}
				if cut == 0 {
					cut = limit
				}
			}
		}
		parts = append(parts, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimLeft(rest[cut:], "\n")
	}
	if strings.TrimSpace(rest) != "" {
		parts = append(parts, strings.TrimSpace(rest))
	}
	return parts
}

// parseCount parses a positive integer command argument, defaulting when
// the argument is absent.
func parseCount(args string, def int) (int, error) {
	if args == "" {
		return def, nil
	}
	fields := strings.Fields(args)
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", fields[0])
	}
	return n, nil
}

func validationReply(err error) string {
	var ve *summarize.ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("That window is out of range: %s.", ve.Error())
	}
	return "That window is out of range."
}

// failureReply maps a pipeline error to the user-facing line. Timeouts get
// a distinct message suggesting a smaller window; other completion-service
// failures get guidance matching their class.
func failureReply(err error) string {
	var runErr *summarize.RunError
	if errors.As(err, &runErr) && runErr.Timeout() {
		return "The summarization service didn't respond in time. Try again with a smaller window."
	}
	switch llm.Classify(err) {
	case llm.FailureTimeout:
		return "The summarization service didn't respond in time. Try again with a smaller window."
	case llm.FailureRateLimit:
		return "The summarization service is rate-limiting us. Wait a minute and try again."
	case llm.FailureTooLarge:
		return "That window is too large for the summarization service. Try a smaller one."
	case llm.FailureAuth:
		return "The summarization service rejected our credentials. This needs operator attention."
	default:
		return "Couldn't produce a summary right now. Please try again later."
	}
}
