package supervisor

import (
	"context"

	"github.com/randalmurphal/claudebridge/frame"
)

// Backend starts work units. Cancelling ctx aborts the unit: the backend
// must stop it, forcibly if it does not exit promptly, and still close the
// stream's message channel.
type Backend interface {
	Launch(ctx context.Context, inv Invocation) (Stream, error)
}

// Stream is a launched unit's output.
type Stream interface {
	// Messages yields messages in production order and is closed when the
	// unit's output ends.
	Messages() <-chan frame.Message

	// Wait blocks until the unit has exited. It must only be called after
	// Messages is closed. The error is non-nil for abnormal exits.
	Wait() (exitCode int, err error)
}
