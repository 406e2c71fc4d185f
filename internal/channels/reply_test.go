package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/summarize"
)

func TestFailureReply_ByFailureClass(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "run deadline",
			err: &summarize.RunError{
				Stage: summarize.StagePartial,
				Block: 0,
				Err:   fmt.Errorf("chat completion: %w", context.DeadlineExceeded),
			},
			want: "didn't respond in time",
		},
		{
			name: "rate limited",
			err: &summarize.RunError{
				Stage: summarize.StagePartial,
				Block: 2,
				Err:   &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests},
			},
			want: "rate-limiting",
		},
		{
			name: "request too large",
			err: &summarize.RunError{
				Stage: summarize.StageFusion,
				Block: -1,
				Err:   errors.New("request too large for model"),
			},
			want: "too large",
		},
		{
			name: "bad credentials",
			err: &summarize.RunError{
				Stage: summarize.StagePartial,
				Block: 0,
				Err:   &openai.APIError{HTTPStatusCode: http.StatusUnauthorized},
			},
			want: "credentials",
		},
		{
			name: "unrecognized failure",
			err:  errors.New("something odd"),
			want: "try again later",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := failureReply(tc.err)
			if !strings.Contains(got, tc.want) {
				t.Fatalf("failureReply(%v) = %q, want it to mention %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestFailureReply_TimeoutBeatsClassification(t *testing.T) {
	// A run that died to its deadline keeps the smaller-window suggestion
	// even when the wrapped error would classify differently.
	err := &summarize.RunError{
		Stage: summarize.StagePartial,
		Block: 1,
		Err:   fmt.Errorf("rate limit reached: %w", context.DeadlineExceeded),
	}
	got := failureReply(err)
	if !strings.Contains(got, "smaller window") {
		t.Fatalf("failureReply for a timed-out run = %q, want the smaller-window suggestion", got)
	}
}
