package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/claudebridge/claudecontract"
	"github.com/randalmurphal/claudebridge/frame"
	"github.com/randalmurphal/claudebridge/query"
	"github.com/randalmurphal/claudebridge/registry"
	"github.com/randalmurphal/claudebridge/sandbox"
)

// launchFailureCode is reported as the exit code of a unit that never ran.
const launchFailureCode = 1

// Unit is one work-unit invocation. It is created by Supervisor.Start and
// runs on its own goroutine; every event it emits comes from that goroutine.
type Unit struct {
	inv        Invocation
	images     []sandbox.Attachment
	sandboxDir string
	isNew      bool

	backend Backend
	reg     *registry.Registry
	sink    Sink

	// log is re-scoped when the session id is latched and read from
	// abort callers on other goroutines.
	log atomic.Pointer[slog.Logger]

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State

	aborted atomic.Bool
	id      atomic.Value // string: latched id, else provisional

	// Owned by the run goroutine.
	key       string // current registry key
	created   bool   // session-created emitted
	sawResult bool
	notFound  bool
	box       *sandbox.Sandbox

	terminal sync.Once
	done     chan struct{}
}

// ID returns the session id reported by the unit, or the provisional id
// until one is reported.
func (u *Unit) ID() string {
	return u.id.Load().(string)
}

func (u *Unit) logger() *slog.Logger {
	return u.log.Load()
}

// State returns the current lifecycle state.
func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Done is closed once teardown has finished and session-complete was sent.
func (u *Unit) Done() <-chan struct{} {
	return u.done
}

// Abort asks the unit to stop. Calling it after the unit has begun
// completing, or more than once, has no further effect.
func (u *Unit) Abort() {
	if !u.aborted.CompareAndSwap(false, true) {
		return
	}
	if u.transition(StateAborting) {
		u.logger().Debug("abort requested")
	}
	u.cancel()
}

func (u *Unit) transition(to State) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.state.CanTransition(to) {
		u.logger().Debug("ignoring state transition", "from", u.state, "to", to)
		return false
	}
	u.state = to
	return true
}

// markAborting records an abort that arrived through the parent context
// rather than through Abort.
func (u *Unit) markAborting() {
	if u.State() != StateAborting {
		u.transition(StateAborting)
	}
}

func (u *Unit) stopping() bool {
	return u.aborted.Load() || u.ctx.Err() != nil
}

func (u *Unit) run() {
	exitCode := launchFailureCode
	var stream Stream
	defer close(u.done)
	defer func() { u.teardown(exitCode) }()
	defer func() {
		if r := recover(); r != nil {
			u.logger().Error("unit panicked", "panic", r)
			u.cancel()
			if stream != nil {
				go func() {
					u.drain(stream)
					_, _ = stream.Wait()
				}()
			}
			if u.transition(StateFailed) {
				u.emit(Failure(u.ID(), fmt.Sprintf("internal error: %v", r)))
			}
		}
	}()

	var err error
	stream, err = u.launch()
	if err != nil {
		u.failLaunch(err)
		return
	}
	if !u.transition(StateRunning) {
		// Aborted while launching; the backend has already seen the cancel.
		u.drain(stream)
		exitCode, _ = stream.Wait()
		return
	}

	for msg := range stream.Messages() {
		if u.stopping() {
			continue
		}
		u.handle(msg)
	}

	code, werr := stream.Wait()
	exitCode = code
	switch {
	case u.stopping():
		u.markAborting()
	case (werr != nil || code != 0) && !u.sawResult:
		if u.transition(StateFailed) {
			u.logger().Warn("unit failed", "error", &Error{SessionID: u.ID(), Op: "run", Err: fmt.Errorf("%w: %v", ErrRuntime, werr)}, "exitCode", code)
			u.emit(Failure(u.ID(), u.runtimeMessage(werr, code)))
		}
	default:
		u.transition(StateCompleting)
	}
}

func (u *Unit) launch() (Stream, error) {
	box, paths, err := sandbox.Acquire(u.sandboxDir, u.images, sandbox.WithLogger(u.logger()))
	if err != nil {
		return nil, err
	}
	u.box = box
	u.inv = u.inv.WithAttachments(paths)

	return u.backend.Launch(u.ctx, u.inv)
}

func (u *Unit) failLaunch(err error) {
	if u.stopping() || IsAbort(err) {
		u.markAborting()
		return
	}
	u.transition(StateFailed)
	u.logger().Warn("launch failed", "error", &Error{SessionID: u.ID(), Op: "launch", Err: fmt.Errorf("%w: %w", ErrLaunch, err)})

	msg := err.Error()
	if IsNotFound(err) {
		msg = claudecontract.InstallHint
	}
	u.emit(Failure(u.ID(), msg))
}

func (u *Unit) runtimeMessage(err error, code int) string {
	if u.notFound {
		return claudecontract.InstallHint
	}
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("claude exited with code %d", code)
}

func (u *Unit) drain(s Stream) {
	for range s.Messages() {
	}
}

// handle relays one message. It runs only on the unit goroutine.
func (u *Unit) handle(msg frame.Message) {
	u.latch(msg)

	switch msg.Kind {
	case frame.KindError:
		if msg.Raw == nil {
			// Diagnostic output, not a structured message.
			if strings.Contains(strings.ToLower(msg.Text), "not found") {
				u.notFound = true
			}
			u.emit(Failure(u.ID(), msg.Text))
			return
		}
	case frame.KindRawUnparsed:
		u.logger().Debug("relaying unparsed line", "bytes", len(msg.Text))
		u.emit(Response(u.ID(), rawPayload(msg)))
		return
	case frame.KindUser:
		if isPromptEcho(msg) {
			return
		}
	case frame.KindResult:
		u.sawResult = true
	}

	u.emit(Response(u.ID(), msg.Raw))

	if msg.Kind == frame.KindResult {
		u.emitBudget(msg)
	}
}

// latch captures the first session id the unit reports, moves the registry
// entry to it and announces the session. It fires at most once.
func (u *Unit) latch(msg frame.Message) {
	if u.created || !msg.HasSessionID() {
		return
	}
	id := msg.SessionID
	if id != u.key {
		if !u.reg.Rekey(u.key, id, u) {
			u.logger().Warn("registry entry was replaced before rekey", "from", u.key, "to", id)
		}
		u.key = id
		u.log.Store(u.logger().With("sessionID", id))
	}
	u.id.Store(id)
	u.created = true
	u.emit(SessionCreated(id))
}

// isPromptEcho reports whether a user message only reflects the prompt.
// User messages carrying tool results are real output.
func isPromptEcho(msg frame.Message) bool {
	out, err := query.ParseOutputMessage(msg.Raw)
	if err != nil || out.User == nil {
		return true
	}
	return !out.User.HasToolResult()
}

func (u *Unit) emitBudget(msg frame.Message) {
	out, err := query.ParseOutputMessage(msg.Raw)
	if err != nil || out.Result == nil || len(out.Result.ModelUsage) == 0 {
		return
	}
	var used, total int
	for _, mu := range out.Result.ModelUsage {
		used += mu.Used()
		total = max(total, mu.ContextWindow)
	}
	if total == 0 {
		total = DefaultContextWindow
	}
	u.emit(TokenBudget(u.ID(), used, total))
}

func (u *Unit) emit(ev Event) {
	if err := u.sink.Send(ev); err != nil {
		u.logger().Debug("sink rejected event", "type", ev.Type, "error", err)
	}
}

// teardown releases everything the unit holds and sends the terminal event.
// Each step runs even if an earlier one panics.
func (u *Unit) teardown(exitCode int) {
	u.step("release sandbox", func() {
		if err := u.box.Release(); err != nil {
			u.logger().Warn("sandbox cleanup failed", "error", &Error{SessionID: u.ID(), Op: "release sandbox", Err: fmt.Errorf("%w: %w", ErrTeardown, err)})
		}
	})
	u.step("release registry entry", func() {
		u.reg.Release(u.key, u)
	})
	u.step("announce session", func() {
		if !u.created {
			u.created = true
			u.emit(SessionCreated(u.ID()))
		}
	})
	u.terminal.Do(func() {
		u.step("complete", func() {
			u.emit(Complete(u.ID(), exitCode, u.isNew))
		})
	})
	u.transition(StateTerminated)
	u.cancel()
	u.logger().Debug("unit terminated", "exitCode", exitCode)
}

func (u *Unit) step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			u.logger().Error("teardown step panicked", "step", name, "panic", r)
		}
	}()
	fn()
}
