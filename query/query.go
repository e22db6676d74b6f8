package query

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/claudebridge/claudecontract"
)

const (
	maxScanTokenSize = 10 * 1024 * 1024 // 10MB
	stderrTailBytes  = 8 * 1024
	killWait         = 2 * time.Second
)

// ErrNotActive is returned when writing to a Query that is closing or closed.
var ErrNotActive = errors.New("query not active")

// Query is one running stream-json Claude process.
type Query struct {
	config config
	log    *slog.Logger

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdinMu sync.Mutex
	stdout  io.ReadCloser
	stderr  *tailBuffer

	out  chan OutputMessage
	stop chan struct{}
	done chan struct{}

	status atomic.Value // Status
	id     atomic.Value // string

	// Set by readOutput before done is closed.
	exitCode int
	waitErr  error

	closeOnce sync.Once
	closeErr  error
}

// Start spawns the process. ctx bounds only the start itself; the process
// lives until it exits on its own or Close is called.
func Start(ctx context.Context, opts ...Option) (*Query, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.Default()
	}

	q := &Query{
		config: cfg,
		log:    log.With("component", "query"),
		stderr: &tailBuffer{max: stderrTailBytes},
		out:    make(chan OutputMessage, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	q.status.Store(StatusCreating)
	q.id.Store(cfg.sessionID)

	if err := q.start(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Query) start() error {
	args := append(append([]string(nil), q.config.command[1:]...), q.buildArgs()...)
	q.cmd = exec.Command(q.config.command[0], args...)

	// A new process group lets Close take down MCP servers and other
	// children along with the CLI itself.
	q.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	q.cmd.Dir = q.config.workdir
	q.cmd.WaitDelay = time.Second
	q.setupEnv()

	var err error
	q.stdin, err = q.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	q.stdout, err = q.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	q.cmd.Stderr = q.stderr

	if err := q.cmd.Start(); err != nil {
		return fmt.Errorf("start claude: %w", err)
	}
	q.log.Debug("claude started", "pid", q.cmd.Process.Pid, "args", args)

	go q.readOutput()

	q.status.Store(StatusActive)
	return nil
}

// buildArgs constructs CLI arguments for bidirectional stream-json mode.
func (q *Query) buildArgs() []string {
	args := []string{
		claudecontract.FlagInputFormat, claudecontract.FormatStreamJSON,
		claudecontract.FlagOutputFormat, claudecontract.FormatStreamJSON,
		claudecontract.FlagVerbose,
	}

	if q.config.sessionID != "" {
		if q.config.resume {
			args = append(args, claudecontract.FlagResume, q.config.sessionID)
		} else {
			args = append(args, claudecontract.FlagSessionID, q.config.sessionID)
		}
	}
	if q.config.model != "" {
		args = append(args, claudecontract.FlagModel, q.config.model)
	}
	if q.config.mcpConfigPath != "" {
		args = append(args, claudecontract.FlagMCPConfig, q.config.mcpConfigPath)
	}

	for _, tool := range q.config.allowedTools {
		args = append(args, claudecontract.FlagAllowedTools, tool)
	}
	for _, tool := range q.config.disallowedTools {
		args = append(args, claudecontract.FlagDisallowedTools, tool)
	}

	if q.config.skipPermissions {
		args = append(args, claudecontract.FlagDangerouslySkipPermissions)
	}
	if q.config.permissionMode != "" {
		args = append(args, claudecontract.FlagPermissionMode, q.config.permissionMode)
	}
	return args
}

func (q *Query) setupEnv() {
	if len(q.config.extraEnv) == 0 {
		return
	}
	q.cmd.Env = os.Environ()
	for k, v := range q.config.extraEnv {
		q.cmd.Env = setEnvVar(q.cmd.Env, k, v)
	}
}

// setEnvVar updates or adds an environment variable.
func setEnvVar(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// readOutput parses stdout until EOF. Once stop is closed messages are
// discarded, but stdout is still drained so the process can exit.
func (q *Query) readOutput() {
	defer close(q.done)
	defer close(q.out)

	scanner := bufio.NewScanner(q.stdout)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		msg, err := ParseOutputMessage(line)
		if err != nil {
			// Hand the line over as-is; the consumer decides what an
			// unparseable line means.
			q.log.Debug("unparsed output line", "error", err)
			msg = &OutputMessage{Raw: append([]byte(nil), line...)}
		}

		if msg.SessionID != "" && (msg.IsInit() || q.ID() == "") {
			q.id.Store(msg.SessionID)
		}
		if msg.IsControl() || (msg.IsHook() && !q.config.includeHookOutput) {
			continue
		}

		select {
		case q.out <- *msg:
		case <-q.stop:
		}
	}

	var readErr error
	if err := scanner.Err(); err != nil {
		readErr = fmt.Errorf("read output: %w", err)
		// Unblock the writer side so Wait can return.
		_, _ = io.Copy(io.Discard, q.stdout)
	}

	waitErr := q.cmd.Wait()
	q.exitCode = q.cmd.ProcessState.ExitCode()
	switch {
	case readErr != nil:
		q.waitErr = readErr
	case waitErr != nil:
		q.waitErr = fmt.Errorf("claude exited with code %d: %w%s", q.exitCode, waitErr, q.stderrSuffix())
	}
	q.status.Store(StatusClosed)
}

func (q *Query) stderrSuffix() string {
	if tail := strings.TrimSpace(q.stderr.String()); tail != "" {
		return ": " + tail
	}
	return ""
}

// ID returns the session id: the one requested at start, replaced by the
// id the process reports at init.
func (q *Query) ID() string {
	return q.id.Load().(string)
}

// Status returns the current lifecycle state.
func (q *Query) Status() Status {
	return q.status.Load().(Status)
}

// Messages returns the ordered output. The channel is closed when stdout
// reaches EOF.
func (q *Query) Messages() <-chan OutputMessage {
	return q.out
}

// Send writes a user message.
func (q *Query) Send(ctx context.Context, msg UserMessage) error {
	return q.writeJSON(ctx, msg)
}

// Interrupt asks the process to stop the turn in progress. The process stays
// up and answers with a result message.
func (q *Query) Interrupt(ctx context.Context) error {
	req := ControlRequest{
		Type:      claudecontract.EventTypeControlRequest,
		RequestID: "req_" + uuid.NewString(),
		Request:   ControlRequestBody{Subtype: claudecontract.ControlSubtypeInterrupt},
	}
	return q.writeJSON(ctx, req)
}

func (q *Query) writeJSON(ctx context.Context, v any) error {
	if s := q.Status(); s != StatusActive {
		return fmt.Errorf("%w: %s", ErrNotActive, s)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	done := make(chan error, 1)
	go func() {
		q.stdinMu.Lock()
		defer q.stdinMu.Unlock()
		_, err := q.stdin.Write(data)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write message: %w", err)
		}
	}
	return nil
}

// Close closes stdin and waits for the process to exit. If it is still
// running after the close grace period the whole process group is killed.
// Close is safe to call more than once.
func (q *Query) Close() error {
	q.closeOnce.Do(func() {
		if q.Status() == StatusActive {
			q.status.Store(StatusClosing)
		}
		close(q.stop)

		q.stdinMu.Lock()
		_ = q.stdin.Close()
		q.stdinMu.Unlock()

		select {
		case <-q.done:
			return
		case <-time.After(q.config.closeGrace):
		}

		q.log.Debug("close grace expired, killing process group", "pid", q.cmd.Process.Pid)
		_ = syscall.Kill(-q.cmd.Process.Pid, syscall.SIGKILL)

		select {
		case <-q.done:
		case <-time.After(killWait):
			q.closeErr = errors.New("process did not exit after kill")
		}
	})
	return q.closeErr
}

// Wait blocks until the process exits and returns its exit code. The error
// is non-nil for a non-zero exit or a failure reading stdout.
func (q *Query) Wait() (int, error) {
	<-q.done
	return q.exitCode, q.waitErr
}

// Done is closed once the process has exited and Messages is drained.
func (q *Query) Done() <-chan struct{} {
	return q.done
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
