package summarize

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	otelPkg "github.com/svetasakovets-dev/telegram-summarizer-bot/internal/otel"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/shared"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/store"
)

// Completer is the single capability the pipeline needs from the completion
// service. Implementations must honor ctx cancellation and deadlines.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)
}

// Config tunes the summarization pipeline.
type Config struct {
	ChunkCeiling int           // approximate cost ceiling per block
	MaxParallel  int           // bound on concurrent Stage-1 calls
	RunTimeout   time.Duration // overall two-stage deadline

	// Sampling temperatures per stage. Zero is valid (deterministic
	// sampling); negative values select the defaults.
	PartialTemperature float32
	PartialMaxTokens   int
	FinalTemperature   float32
	FinalMaxTokens     int
}

func (c *Config) applyDefaults() {
	if c.ChunkCeiling <= 0 {
		c.ChunkCeiling = DefaultChunkCeiling
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 3
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 60 * time.Second
	}
	if c.PartialTemperature < 0 {
		c.PartialTemperature = 0.2
	}
	if c.PartialMaxTokens <= 0 {
		c.PartialMaxTokens = 700
	}
	if c.FinalTemperature < 0 {
		c.FinalTemperature = 0.5
	}
	if c.FinalMaxTokens <= 0 {
		c.FinalMaxTokens = 1100
	}
}

// Result is what a summarization run produces. MessageCount counts every
// entry in the window, including empty-text ones that never reach the
// transcript.
type Result struct {
	Text         string
	MessageCount int
	LineCount    int
	Blocks       int
	Empty        bool
}

// NothingToSummarize is the fixed reply for a window with no summarizable
// text. Runs that end here never touch the completion service.
const NothingToSummarize = "No text messages in this window yet — nothing to summarize."

// Service runs the two-stage summarization over stored conversations. It
// only ever reads the store; ingestion stays independently schedulable.
type Service struct {
	store     store.Store
	completer Completer
	prompts   *PromptSet
	cfg       Config
	logger    *slog.Logger
	metrics   *otelPkg.Metrics
	tracer    trace.Tracer
}

// NewService wires the pipeline. Metrics may be nil; a nil tracer degrades
// to no-op spans.
func NewService(st store.Store, completer Completer, prompts *PromptSet, cfg Config, logger *slog.Logger, metrics *otelPkg.Metrics, tracer trace.Tracer) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(otelPkg.TracerName)
	}
	return &Service{
		store:     st,
		completer: completer,
		prompts:   prompts,
		cfg:       cfg,
		logger:    logger.With("component", "summarize"),
		metrics:   metrics,
		tracer:    tracer,
	}
}

// Summarize produces a digest for an interactive window request. The spec
// must come from one of the WindowSpec constructors, which own range
// validation.
func (s *Service) Summarize(ctx context.Context, conversationID int64, spec WindowSpec) (Result, error) {
	msgs := s.store.All(conversationID)
	var window []store.Message
	if spec.IsYesterday() {
		window = YesterdayWindow(msgs)
	} else {
		window = LastWindow(msgs, spec.Duration())
	}
	return s.run(ctx, conversationID, spec.String(), window)
}

// ProduceDigest produces the scheduled digest over a trailing window,
// returning the digest text and the window's message count. Delivery is the
// caller's concern.
func (s *Service) ProduceDigest(ctx context.Context, conversationID int64, window time.Duration) (Result, error) {
	msgs := s.store.All(conversationID)
	selected := LastWindow(msgs, window)
	return s.run(ctx, conversationID, "digest "+window.String(), selected)
}

// run drives one two-stage summarization over an already-selected window.
func (s *Service) run(ctx context.Context, conversationID int64, windowDesc string, window []store.Message) (Result, error) {
	runID := shared.RunID(ctx)
	if runID == "" {
		runID = shared.NewRunID()
		ctx = shared.WithRunID(ctx, runID)
	}
	log := s.logger.With("run_id", runID, "conversation_id", conversationID)

	lines := FormatLines(window)
	if len(lines) == 0 {
		log.Info("nothing to summarize", "window", windowDesc, "messages", len(window))
		s.countRun(ctx, "empty")
		return Result{
			Text:         NothingToSummarize,
			MessageCount: len(window),
			Empty:        true,
		}, nil
	}

	blocks := SplitBlocks(lines, s.cfg.ChunkCeiling)

	ctx, span := otelPkg.StartSpan(ctx, s.tracer, "summarize.run",
		otelPkg.AttrConversationID.Int64(conversationID),
		otelPkg.AttrRunID.String(runID),
		otelPkg.AttrWindow.String(windowDesc),
		otelPkg.AttrBlocks.Int(len(blocks)),
	)
	defer span.End()

	// One deadline bounds both stages; cancelling it aborts every pending
	// completion call without retry.
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	log.Info("summarization started", "window", windowDesc,
		"messages", len(window), "lines", len(lines), "blocks", len(blocks))
	start := time.Now()

	partials, err := s.mapBlocks(ctx, blocks)
	if err != nil {
		s.failRun(ctx, log, err, start)
		return Result{}, err
	}

	final, err := s.fuse(ctx, partials)
	if err != nil {
		s.failRun(ctx, log, err, start)
		return Result{}, err
	}

	elapsed := time.Since(start)
	log.Info("summary produced", "blocks", len(blocks), "duration_ms", elapsed.Milliseconds())
	s.countRun(ctx, "ok")
	if s.metrics != nil {
		s.metrics.RunDuration.Record(ctx, elapsed.Seconds())
		s.metrics.BlocksPerRun.Record(ctx, int64(len(blocks)))
	}

	return Result{
		Text:         final,
		MessageCount: len(window),
		LineCount:    len(lines),
		Blocks:       len(blocks),
	}, nil
}

// mapBlocks issues one partial-summary completion per block with bounded
// concurrency. Results keep block order regardless of completion order. The
// first failure cancels the remaining calls and is returned as a RunError
// naming the block; the fusion stage never sees an incomplete set.
func (s *Service) mapBlocks(ctx context.Context, blocks []string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := s.cfg.MaxParallel
	if limit > len(blocks) {
		limit = len(blocks)
	}
	sem := make(chan struct{}, limit)

	results := make([]string, len(blocks))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr *RunError
	)
	record := func(block int, err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = &RunError{Stage: StagePartial, Block: block, Err: err}
			cancel()
		}
		mu.Unlock()
	}

	for i, block := range blocks {
		wg.Add(1)
		go func(i int, block string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				record(i, ctx.Err())
				return
			}
			if err := ctx.Err(); err != nil {
				record(i, err)
				return
			}
			text, err := s.complete(ctx, StagePartial, i, s.prompts.Partial(block),
				s.cfg.PartialTemperature, s.cfg.PartialMaxTokens)
			if err != nil {
				record(i, err)
				return
			}
			results[i] = text
		}(i, block)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// fuse concatenates the partials in block order and issues the single
// fusion call. Only called once every Stage-1 call has succeeded.
func (s *Service) fuse(ctx context.Context, partials []string) (string, error) {
	text, err := s.complete(ctx, StageFusion, -1, s.prompts.Fusion(partials),
		s.cfg.FinalTemperature, s.cfg.FinalMaxTokens)
	if err != nil {
		return "", &RunError{Stage: StageFusion, Block: -1, Err: err}
	}
	return strings.TrimSpace(text), nil
}

// complete wraps one completion call with a client span, latency metrics,
// and a failure log line.
func (s *Service) complete(ctx context.Context, stage Stage, block int, prompt string, temperature float32, maxTokens int) (string, error) {
	ctx, span := otelPkg.StartClientSpan(ctx, s.tracer, "llm.complete",
		otelPkg.AttrStage.String(string(stage)),
		otelPkg.AttrBlock.Int(block),
	)
	defer span.End()

	start := time.Now()
	text, err := s.completer.Complete(ctx, prompt, temperature, maxTokens)
	elapsed := time.Since(start)

	if s.metrics != nil {
		stageAttr := metric.WithAttributes(otelPkg.AttrStage.String(string(stage)))
		s.metrics.CompletionCalls.Add(ctx, 1, stageAttr)
		s.metrics.CompletionDuration.Record(ctx, elapsed.Seconds(), stageAttr)
	}
	if err != nil {
		s.logger.Warn("completion call failed",
			"stage", stage, "block", block,
			"duration_ms", elapsed.Milliseconds(), "error", err)
		return "", err
	}
	return text, nil
}

func (s *Service) failRun(ctx context.Context, log *slog.Logger, err error, start time.Time) {
	outcome := "failed"
	var runErr *RunError
	if errors.As(err, &runErr) && runErr.Timeout() {
		outcome = "timeout"
	}
	log.Error("summarization failed", "outcome", outcome,
		"duration_ms", time.Since(start).Milliseconds(), "error", err)
	s.countRun(ctx, outcome)
}

func (s *Service) countRun(ctx context.Context, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RunsTotal.Add(ctx, 1,
		metric.WithAttributes(otelPkg.AttrOutcome.String(outcome)))
}
