package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/claudebridge/frame"
)

func line(s string) frame.Message {
	return frame.Classify([]byte(s))
}

type launchRecord struct {
	inv Invocation
	ctx context.Context
	// priorLive counts earlier launches whose context was still live.
	priorLive int
}

// fakeBackend replays canned messages. With block set it keeps the stream
// open until the unit is cancelled, then sends postAbort.
type fakeBackend struct {
	msgs      []frame.Message
	postAbort []frame.Message
	block     bool
	exitCode  int
	waitErr   error
	launchErr error

	// feed, when set, is read after msgs until closed or cancelled.
	feed chan frame.Message

	mu        sync.Mutex
	launches  []launchRecord
	cancelled atomic.Int32
}

func (f *fakeBackend) Launch(ctx context.Context, inv Invocation) (Stream, error) {
	f.mu.Lock()
	rec := launchRecord{inv: inv, ctx: ctx}
	for _, prev := range f.launches {
		if prev.ctx.Err() == nil {
			rec.priorLive++
		}
	}
	f.launches = append(f.launches, rec)
	f.mu.Unlock()

	if f.launchErr != nil {
		return nil, f.launchErr
	}

	s := &fakeStream{ch: make(chan frame.Message)}
	go func() {
		defer close(s.ch)
		s.code, s.err = f.exitCode, f.waitErr
		for _, m := range f.msgs {
			select {
			case s.ch <- m:
			case <-ctx.Done():
				f.aborted(s)
				return
			}
		}
		if f.feed != nil {
			for {
				select {
				case m, ok := <-f.feed:
					if !ok {
						return
					}
					s.ch <- m
				case <-ctx.Done():
					f.aborted(s)
					return
				}
			}
		}
		if f.block {
			<-ctx.Done()
			f.aborted(s)
		}
	}()
	return s, nil
}

func (f *fakeBackend) aborted(s *fakeStream) {
	f.cancelled.Add(1)
	for _, m := range f.postAbort {
		s.ch <- m
	}
	s.code, s.err = -1, context.Canceled
}

func (f *fakeBackend) records() []launchRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]launchRecord(nil), f.launches...)
}

type fakeStream struct {
	ch   chan frame.Message
	code int
	err  error
}

func (s *fakeStream) Messages() <-chan frame.Message { return s.ch }
func (s *fakeStream) Wait() (int, error)             { return s.code, s.err }

// recordingSink stores every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	// panicOn makes Send panic for the given type.
	panicOn EventType
}

func (r *recordingSink) Send(ev Event) error {
	if r.panicOn != "" && ev.Type == r.panicOn {
		panic("sink exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordingSink) types() []EventType {
	var out []EventType
	for _, ev := range r.all() {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recordingSink) count(typ EventType) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recordingSink) waitFor(t *testing.T, typ EventType, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count(typ) >= n }, 5*time.Second, 5*time.Millisecond,
		"waiting for %d %s events, have %v", n, typ, r.types())
}

func waitDone(t *testing.T, u *Unit) {
	t.Helper()
	select {
	case <-u.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("unit %s did not terminate (state %s)", u.ID(), u.State())
	}
}

// assertLifecycle checks the envelope invariants every unit must satisfy.
func assertLifecycle(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)

	var created, complete int
	for _, ev := range events {
		switch ev.Type {
		case EventSessionCreated:
			created++
		case EventSessionComplete:
			complete++
		}
	}
	require.Equal(t, 1, created, "exactly one session-created")
	require.Equal(t, 1, complete, "exactly one session-complete")
	require.Equal(t, EventSessionComplete, events[len(events)-1].Type, "session-complete is last")
}

type staticMCP struct {
	path    string
	project string
}

func (s staticMCP) ConfigPath(projectPath string) (string, bool) {
	if projectPath != s.project {
		return "", false
	}
	return s.path, true
}
