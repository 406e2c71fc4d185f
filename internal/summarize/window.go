// Package summarize implements the hierarchical summarization pipeline:
// time-window selection over a conversation's buffered messages, transcript
// chunking under an approximate cost ceiling, one partial-summary completion
// per chunk, and a single fusion completion producing the final digest.
package summarize

import (
	"fmt"
	"time"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/store"
)

// Accepted ranges for interactive window requests.
const (
	MinHours = 1
	MaxHours = 168
	MinDays  = 1
	MaxDays  = 30
)

// WindowSpec names a trailing slice of a conversation's history: the last N
// hours, the last N days, or the fixed "yesterday" band 24-48h back. The
// zero value is not valid; use the constructors.
type WindowSpec struct {
	hours     int
	days      int
	yesterday bool
}

// ValidationError reports a window parameter outside the accepted range.
// It is produced and handled at the command boundary; the pipeline never
// sees an unvalidated window.
type ValidationError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s must be between %d and %d, got %d", e.Field, e.Min, e.Max, e.Value)
}

// LastHours builds a window over the last n hours.
func LastHours(n int) (WindowSpec, error) {
	if n < MinHours || n > MaxHours {
		return WindowSpec{}, &ValidationError{Field: "hours", Value: n, Min: MinHours, Max: MaxHours}
	}
	return WindowSpec{hours: n}, nil
}

// LastDays builds a window over the last n days.
func LastDays(n int) (WindowSpec, error) {
	if n < MinDays || n > MaxDays {
		return WindowSpec{}, &ValidationError{Field: "days", Value: n, Min: MinDays, Max: MaxDays}
	}
	return WindowSpec{days: n}, nil
}

// Yesterday builds the fixed 24-48h-ago window.
func Yesterday() WindowSpec {
	return WindowSpec{yesterday: true}
}

// IsYesterday reports whether this is the fixed 24-48h band rather than a
// trailing duration.
func (w WindowSpec) IsYesterday() bool { return w.yesterday }

// Duration returns the trailing duration; zero for the yesterday band.
func (w WindowSpec) Duration() time.Duration {
	switch {
	case w.yesterday:
		return 0
	case w.days > 0:
		return time.Duration(w.days) * 24 * time.Hour
	default:
		return time.Duration(w.hours) * time.Hour
	}
}

// String renders the short description used in acknowledgment replies.
func (w WindowSpec) String() string {
	switch {
	case w.yesterday:
		return "yesterday"
	case w.days == 1:
		return "the last day"
	case w.days > 0:
		return fmt.Sprintf("the last %d days", w.days)
	case w.hours == 1:
		return "the last hour"
	default:
		return fmt.Sprintf("the last %d hours", w.hours)
	}
}

// referenceNow returns the current instant in the timezone of the most
// recent message, so cutoff comparisons share the entries' own basis
// instead of mixing zones.
func referenceNow(msgs []store.Message) time.Time {
	if len(msgs) == 0 {
		return time.Now()
	}
	return time.Now().In(msgs[len(msgs)-1].Timestamp.Location())
}

// LastWindow returns the entries with timestamp >= now-d, preserving the
// original order. An empty input yields an empty result, never an error.
// The duration is assumed validated by the caller; no clamping happens here.
func LastWindow(msgs []store.Message, d time.Duration) []store.Message {
	if len(msgs) == 0 {
		return nil
	}
	cutoff := referenceNow(msgs).Add(-d)
	var out []store.Message
	for _, m := range msgs {
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// YesterdayWindow returns the entries with now-48h <= timestamp < now-24h,
// preserving the original order.
func YesterdayWindow(msgs []store.Message) []store.Message {
	if len(msgs) == 0 {
		return nil
	}
	now := referenceNow(msgs)
	from := now.Add(-48 * time.Hour)
	to := now.Add(-24 * time.Hour)
	var out []store.Message
	for _, m := range msgs {
		if !m.Timestamp.Before(from) && m.Timestamp.Before(to) {
			out = append(out, m)
		}
	}
	return out
}
