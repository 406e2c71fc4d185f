package summarize

import (
	"context"
	"errors"
	"fmt"
)

// Stage identifies which half of the two-stage run an error came from.
type Stage string

const (
	StagePartial Stage = "partial"
	StageFusion  Stage = "fusion"
)

// RunError is a failed summarization run. Block is the zero-based index of
// the failed block for partial-stage errors and -1 for the fusion stage.
// The underlying completion-service error is preserved for errors.Is/As.
type RunError struct {
	Stage Stage
	Block int
	Err   error
}

func (e *RunError) Error() string {
	if e.Stage == StagePartial {
		return fmt.Sprintf("partial summary for block %d: %v", e.Block, e.Err)
	}
	return fmt.Sprintf("final fusion: %v", e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Timeout reports whether the run died to a deadline rather than an
// upstream failure, so callers can suggest retrying with a smaller window.
func (e *RunError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
