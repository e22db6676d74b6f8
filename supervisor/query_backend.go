package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/claudebridge/frame"
	"github.com/randalmurphal/claudebridge/query"
)

const interruptTimeout = time.Second

// QueryBackend drives a long-lived stream-json process. The prompt is sent
// as a user message, and stdin is closed once the turn's result arrives so
// the process exits. Cancellation interrupts the turn before closing.
type QueryBackend struct {
	Grace  time.Duration
	Logger *slog.Logger
}

// NewQueryBackend returns a QueryBackend with the default grace period.
func NewQueryBackend() *QueryBackend {
	return &QueryBackend{Grace: DefaultAbortGrace}
}

// Launch implements Backend.
func (b *QueryBackend) Launch(ctx context.Context, inv Invocation) (Stream, error) {
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}
	grace := b.Grace
	if grace <= 0 {
		grace = DefaultAbortGrace
	}

	opts := []query.Option{
		query.WithCommand(inv.Command),
		query.WithWorkdir(inv.WorkDir),
		query.WithModel(inv.Model),
		query.WithMCPConfig(inv.MCPConfigPath),
		query.WithPermissionMode(inv.PermissionMode.String()),
		query.WithSkipPermissions(inv.SkipPermissions),
		query.WithAllowedTools(inv.AllowedTools),
		query.WithDisallowedTools(inv.DisallowedTools),
		query.WithCloseGrace(grace),
		query.WithLogger(log),
	}
	if inv.Resume {
		opts = append(opts, query.WithResume(inv.SessionID))
	}

	if err := checkWorkDir(inv.WorkDir); err != nil {
		return nil, err
	}

	q, err := query.Start(ctx, opts...)
	if err != nil {
		return nil, startError(err)
	}

	if inv.Prompt != "" {
		if err := q.Send(ctx, query.NewUserMessage(inv.Prompt)); err != nil {
			_ = q.Close()
			return nil, fmt.Errorf("send prompt: %w", err)
		}
	} else {
		// Nothing to ask; let the process exit once it has started.
		go q.Close()
	}

	s := &queryStream{q: q, msgs: make(chan frame.Message, 64), log: log}
	go s.forward(ctx)
	return s, nil
}

type queryStream struct {
	q    *query.Query
	msgs chan frame.Message
	log  *slog.Logger
}

func (s *queryStream) forward(ctx context.Context) {
	defer close(s.msgs)

	stop := context.AfterFunc(ctx, func() {
		ictx, cancel := context.WithTimeout(context.Background(), interruptTimeout)
		defer cancel()
		if err := s.q.Interrupt(ictx); err != nil {
			s.log.Debug("interrupt failed", "error", err)
		}
		_ = s.q.Close()
	})
	defer stop()

	for out := range s.q.Messages() {
		msg := frame.Passthrough(out.Raw)
		select {
		case s.msgs <- msg:
		case <-ctx.Done():
		}
		if out.IsResult() {
			// One turn per unit: closing stdin ends the process.
			go s.q.Close()
		}
	}
}

func (s *queryStream) Messages() <-chan frame.Message {
	return s.msgs
}

func (s *queryStream) Wait() (int, error) {
	return s.q.Wait()
}
