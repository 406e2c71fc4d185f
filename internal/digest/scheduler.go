// Package digest runs the scheduled daily digest: at each cron fire it
// produces a digest for every subscribed conversation and hands the text to
// the delivery sender.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	cronlib "github.com/robfig/cron/v3"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/llm"
	otelPkg "github.com/svetasakovets-dev/telegram-summarizer-bot/internal/otel"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/store"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/summarize"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Producer is the slice of the pipeline the scheduler drives.
type Producer interface {
	ProduceDigest(ctx context.Context, conversationID int64, window time.Duration) (summarize.Result, error)
}

// Sender delivers one digest to one conversation.
type Sender interface {
	SendDigest(conversationID int64, text string) error
}

// Config holds the scheduler dependencies and tuning.
type Config struct {
	Schedule   string // 5-field cron expression
	Window     time.Duration
	RunTimeout time.Duration // per-conversation pipeline deadline

	Subscriptions *store.Subscriptions
	Producer      Producer
	Sender        Sender
	Logger        *slog.Logger
	Metrics       *otelPkg.Metrics

	// Interval is the fire-check tick; defaults to 30s. Now is the clock,
	// injectable for tests.
	Interval time.Duration
	Now      func() time.Time
}

// Scheduler fires the digest batch at each cron boundary. One
// conversation's failure never aborts the rest of the batch; failed digests
// are logged and skipped, never retried within the cycle.
type Scheduler struct {
	cfg    Config
	sched  cronlib.Schedule
	logger *slog.Logger

	mu      sync.Mutex
	nextRun time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates the cron expression and builds the scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	sched, err := cronParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse digest schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 60 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		sched:  sched,
		logger: logger.With("component", "digest"),
	}, nil
}

// Start begins the scheduler loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	next := s.sched.Next(s.cfg.Now())
	s.setNextRun(next)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("digest scheduler started",
		"schedule", s.cfg.Schedule, "window", s.cfg.Window, "next_run_at", next)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("digest scheduler stopped")
}

// NextRun returns the pending fire time.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.cfg.Now()
			if now.Before(s.NextRun()) {
				continue
			}
			s.RunBatch(ctx)
			// Roll past any fire boundaries crossed while the batch ran.
			next := s.sched.Next(s.cfg.Now())
			s.setNextRun(next)
			s.logger.Info("digest cycle complete", "next_run_at", next)
		}
	}
}

// RunBatch produces and delivers one digest per subscribed conversation.
func (s *Scheduler) RunBatch(ctx context.Context) {
	ids := s.cfg.Subscriptions.IDs()
	s.logger.Info("digest batch started", "subscribed", len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		s.runOne(ctx, id)
	}
}

// runOne produces and delivers a single conversation's digest. Empty
// windows are skipped silently; failures are logged and skipped.
func (s *Scheduler) runOne(ctx context.Context, conversationID int64) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	result, err := s.cfg.Producer.ProduceDigest(runCtx, conversationID, s.cfg.Window)
	if err != nil {
		s.logger.Error("digest production failed, skipping conversation",
			"conversation_id", conversationID,
			"failure_class", string(llm.Classify(err)),
			"error", err)
		s.countDigest(ctx, "failed")
		return
	}
	if result.Empty {
		s.logger.Info("digest skipped, nothing to summarize", "conversation_id", conversationID)
		s.countDigest(ctx, "empty")
		return
	}

	if err := s.cfg.Sender.SendDigest(conversationID, result.Text); err != nil {
		s.logger.Error("digest delivery failed, skipping conversation",
			"conversation_id", conversationID, "error", err)
		s.countDigest(ctx, "delivery_failed")
		return
	}

	s.logger.Info("digest delivered",
		"conversation_id", conversationID, "messages", result.MessageCount, "blocks", result.Blocks)
	s.countDigest(ctx, "ok")
}

func (s *Scheduler) countDigest(ctx context.Context, outcome string) {
	if s.cfg.Metrics == nil {
		return
	}
	s.cfg.Metrics.DigestRuns.Add(ctx, 1,
		metric.WithAttributes(otelPkg.AttrOutcome.String(outcome)))
}

// NextRunTime parses the cron expression and returns the next run time
// after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
