package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/randalmurphal/claudebridge/frame"
)

// DefaultAbortGrace is how long a unit may take to exit after it is asked
// to stop before its process group is killed.
const DefaultAbortGrace = 5 * time.Second

// pipeDrainDelay is how long output may stay open after claude exits
// before the rest of its process group is killed.
const pipeDrainDelay = time.Second

// CLIBackend runs `claude --print` as a subprocess in its own process group.
// Stdout is decoded as newline-delimited JSON; each stderr line becomes an
// error-kind message.
type CLIBackend struct {
	Grace  time.Duration
	Logger *slog.Logger
}

// NewCLIBackend returns a CLIBackend with the default grace period.
func NewCLIBackend() *CLIBackend {
	return &CLIBackend{Grace: DefaultAbortGrace}
}

// Launch implements Backend.
func (b *CLIBackend) Launch(ctx context.Context, inv Invocation) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkWorkDir(inv.WorkDir); err != nil {
		return nil, err
	}

	argv := append(append([]string(nil), inv.Command[1:]...), inv.Args()...)
	cmd := exec.Command(inv.Command[0], argv...)
	cmd.Dir = inv.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// The child gets the write ends directly. Reaping the process does not
	// depend on the pipes, since descendants may keep them open after
	// claude itself has exited.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		stdout.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start claude: %w", startError(err))
	}

	log := b.logger().With("pid", cmd.Process.Pid)
	log.Debug("claude started", "args", argv, "dir", cmd.Dir)

	s := &cliStream{
		cmd:      cmd,
		msgs:     make(chan frame.Message, 64),
		procDone: make(chan struct{}),
		exited:   make(chan struct{}),
		log:      log,
	}

	go func() {
		s.waitErr = cmd.Wait()
		s.exitCode = cmd.ProcessState.ExitCode()
		close(s.procDone)
	}()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		if err := frame.Pump(ctx, stdout, s.msgs); err != nil && !IsAbort(err) {
			log.Debug("stdout read failed", "error", err)
		}
		// Keep draining so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
	}()
	go func() {
		defer readers.Done()
		s.pumpStderr(ctx, stderr)
	}()

	readersDone := make(chan struct{})
	go func() {
		readers.Wait()
		close(readersDone)
		stdout.Close()
		stderr.Close()
		close(s.msgs)
		<-s.procDone
		close(s.exited)
	}()

	go b.watch(ctx, s)
	go b.reapOrphans(s, readersDone, stdout, stderr)
	return s, nil
}

// reapOrphans waits for output to end once claude has exited. Whatever is
// still holding the pipes after pipeDrainDelay is killed with the process
// group; buffered output stays readable. If the pipes are still open after
// the grace period as well (a descendant left the group), the read ends are
// closed.
func (b *CLIBackend) reapOrphans(s *cliStream, readersDone <-chan struct{}, pipes ...*os.File) {
	<-s.procDone
	select {
	case <-readersDone:
		return
	case <-time.After(pipeDrainDelay):
	}

	s.log.Debug("output still open after exit, killing process group")
	_ = syscall.Kill(-s.cmd.Process.Pid, syscall.SIGKILL)

	select {
	case <-readersDone:
		return
	case <-time.After(b.grace()):
	}

	s.log.Warn("output still open after killing process group, closing pipes")
	for _, p := range pipes {
		_ = p.Close()
	}
}

// watch terminates the process group when ctx is cancelled: SIGTERM first,
// then SIGKILL once the grace period runs out.
func (b *CLIBackend) watch(ctx context.Context, s *cliStream) {
	select {
	case <-s.procDone:
		return
	case <-ctx.Done():
	}

	pgid := -s.cmd.Process.Pid
	s.log.Debug("terminating claude process group")
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	grace := b.grace()
	select {
	case <-s.procDone:
	case <-time.After(grace):
		s.log.Warn("claude did not exit within grace period, killing", "grace", grace)
		_ = syscall.Kill(pgid, syscall.SIGKILL)
	}
}

func (b *CLIBackend) grace() time.Duration {
	if b.Grace <= 0 {
		return DefaultAbortGrace
	}
	return b.Grace
}

func (b *CLIBackend) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

type cliStream struct {
	cmd  *exec.Cmd
	msgs chan frame.Message
	log  *slog.Logger

	// procDone is closed once the process has been reaped; exited once,
	// in addition, every message has been delivered.
	procDone chan struct{}
	exited   chan struct{}
	exitCode int
	waitErr  error
}

func (s *cliStream) Messages() <-chan frame.Message {
	return s.msgs
}

func (s *cliStream) Wait() (int, error) {
	<-s.exited
	if s.waitErr != nil {
		return s.exitCode, fmt.Errorf("claude exited with code %d: %w", s.exitCode, s.waitErr)
	}
	return s.exitCode, nil
}

func (s *cliStream) pumpStderr(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), frame.DefaultMaxLineBytes)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		select {
		case s.msgs <- frame.Diagnostic(text):
		case <-ctx.Done():
		}
	}
	_, _ = io.Copy(io.Discard, r)
}
