package digest_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/digest"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/store"
	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/summarize"
)

// waitFor polls check at short intervals until it returns true or the
// deadline elapses. This avoids fixed time.Sleep calls that cause flaky
// tests.
func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

// fakeProducer returns canned results per conversation.
type fakeProducer struct {
	mu      sync.Mutex
	results map[int64]summarize.Result
	errs    map[int64]error
	calls   []int64
}

func (f *fakeProducer) ProduceDigest(_ context.Context, id int64, _ time.Duration) (summarize.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return summarize.Result{}, err
	}
	return f.results[id], nil
}

func (f *fakeProducer) called() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

// fakeSender records deliveries.
type fakeSender struct {
	mu    sync.Mutex
	sent  map[int64]string
	fail  map[int64]bool
	count int
}

func (f *fakeSender) SendDigest(id int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[id] {
		return errors.New("delivery refused")
	}
	if f.sent == nil {
		f.sent = make(map[int64]string)
	}
	f.sent[id] = text
	f.count++
	return nil
}

func subsWith(ids ...int64) *store.Subscriptions {
	subs := store.NewSubscriptions()
	for _, id := range ids {
		subs.Add(id)
	}
	return subs
}

func TestNewScheduler_RejectsBadCron(t *testing.T) {
	_, err := digest.NewScheduler(digest.Config{Schedule: "not a cron"})
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNextRunTime_DailyAtHour(t *testing.T) {
	after := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	next, err := digest.NextRunTime("0 21 * * *", after)
	if err != nil {
		t.Fatalf("NextRunTime: %v", err)
	}
	want := time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}

	// Already past today's fire time: rolls to the next day.
	after = time.Date(2025, 6, 1, 21, 30, 0, 0, time.UTC)
	next, err = digest.NextRunTime("0 21 * * *", after)
	if err != nil {
		t.Fatalf("NextRunTime: %v", err)
	}
	want = time.Date(2025, 6, 2, 21, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected roll to next day %v, got %v", want, next)
	}
}

func TestRunBatch_DeliversToAllSubscribed(t *testing.T) {
	producer := &fakeProducer{results: map[int64]summarize.Result{
		1: {Text: "digest one", MessageCount: 3},
		2: {Text: "digest two", MessageCount: 5},
	}}
	sender := &fakeSender{}

	s, err := digest.NewScheduler(digest.Config{
		Schedule:      "0 21 * * *",
		Subscriptions: subsWith(1, 2),
		Producer:      producer,
		Sender:        sender,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.RunBatch(context.Background())

	if sender.sent[1] != "digest one" || sender.sent[2] != "digest two" {
		t.Fatalf("unexpected deliveries: %#v", sender.sent)
	}
}

func TestRunBatch_OneFailureDoesNotAbortBatch(t *testing.T) {
	producer := &fakeProducer{
		results: map[int64]summarize.Result{
			3: {Text: "digest three"},
		},
		errs: map[int64]error{
			1: errors.New("completion exploded"),
		},
	}
	sender := &fakeSender{fail: map[int64]bool{2: true}}
	producer.results[2] = summarize.Result{Text: "digest two"}

	s, err := digest.NewScheduler(digest.Config{
		Schedule:      "0 21 * * *",
		Subscriptions: subsWith(1, 2, 3),
		Producer:      producer,
		Sender:        sender,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.RunBatch(context.Background())

	// All three were attempted despite conversation 1 failing production
	// and conversation 2 failing delivery.
	if got := producer.called(); len(got) != 3 {
		t.Fatalf("expected 3 production attempts, got %v", got)
	}
	if _, ok := sender.sent[3]; !ok {
		t.Fatal("expected conversation 3 delivered after earlier failures")
	}
	if _, ok := sender.sent[1]; ok {
		t.Fatal("failed production must not deliver")
	}
}

func TestRunBatch_SkipsEmptyResults(t *testing.T) {
	producer := &fakeProducer{results: map[int64]summarize.Result{
		1: {Text: summarize.NothingToSummarize, Empty: true},
	}}
	sender := &fakeSender{}

	s, err := digest.NewScheduler(digest.Config{
		Schedule:      "0 21 * * *",
		Subscriptions: subsWith(1),
		Producer:      producer,
		Sender:        sender,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.RunBatch(context.Background())

	if sender.count != 0 {
		t.Fatalf("expected no delivery for empty digest, got %d", sender.count)
	}
}

func TestScheduler_FiresAtBoundaryWithVirtualClock(t *testing.T) {
	producer := &fakeProducer{results: map[int64]summarize.Result{
		7: {Text: "scheduled digest"},
	}}
	sender := &fakeSender{}

	var clockMu sync.Mutex
	now := time.Date(2025, 6, 1, 20, 59, 0, 0, time.UTC)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	s, err := digest.NewScheduler(digest.Config{
		Schedule:      "0 21 * * *",
		Subscriptions: subsWith(7),
		Producer:      producer,
		Sender:        sender,
		Interval:      5 * time.Millisecond,
		Now:           clock,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop()

	next := s.NextRun()
	want := time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected next run %v, got %v", want, next)
	}

	// Before the boundary nothing fires.
	time.Sleep(30 * time.Millisecond)
	if len(producer.called()) != 0 {
		t.Fatal("fired before the schedule boundary")
	}

	// Fast-forward past the boundary.
	clockMu.Lock()
	now = time.Date(2025, 6, 1, 21, 0, 1, 0, time.UTC)
	clockMu.Unlock()

	waitFor(t, 2*time.Second, func() bool {
		return len(producer.called()) == 1
	})

	// The next fire rolls to tomorrow; no repeat fire this cycle.
	waitFor(t, 2*time.Second, func() bool {
		return s.NextRun().Day() == 2
	})
	time.Sleep(30 * time.Millisecond)
	if len(producer.called()) != 1 {
		t.Fatalf("expected exactly one batch, got %d", len(producer.called()))
	}
}

func TestRunBatch_LogsFailureClass(t *testing.T) {
	producer := &fakeProducer{
		errs: map[int64]error{
			1: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limit reached"},
		},
	}
	sender := &fakeSender{}

	var logged bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logged, nil))

	s, err := digest.NewScheduler(digest.Config{
		Schedule:      "0 21 * * *",
		Subscriptions: subsWith(1),
		Producer:      producer,
		Sender:        sender,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.RunBatch(context.Background())

	if sender.count != 0 {
		t.Fatalf("expected no delivery after production failure, got %d", sender.count)
	}
	if !strings.Contains(logged.String(), `"failure_class":"RATE_LIMIT"`) {
		t.Fatalf("expected failure log to carry the failure class, got: %s", logged.String())
	}
}
