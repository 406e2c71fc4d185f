package channels

import (
	"context"
)

// Channel is a chat transport the bot ingests messages from and replies
// through.
type Channel interface {
	// Name identifies the transport in logs and startup output.
	Name() string

	// Start runs the transport's receive loop. It blocks until the context
	// is canceled or the transport fails fatally.
	Start(ctx context.Context) error
}
