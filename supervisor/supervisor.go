package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/claudebridge/registry"
)

// MCPResolver reports the MCP configuration file to pass for a project, if
// any servers are configured for it.
type MCPResolver interface {
	ConfigPath(projectPath string) (string, bool)
}

// Supervisor starts and tracks units. It is safe for concurrent use.
type Supervisor struct {
	reg        *registry.Registry
	backends   map[string]Backend
	defaults   Defaults
	sandboxDir string
	grace      time.Duration // applied to the built-in backends
	mcp        MCPResolver
	log        *slog.Logger

	mu     sync.Mutex
	closed bool
	units  sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRegistry shares a registry. By default each Supervisor has its own.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Supervisor) { s.reg = r }
}

// WithBackend registers a backend under name, replacing a built-in one.
func WithBackend(name string, b Backend) Option {
	return func(s *Supervisor) { s.backends[name] = b }
}

// WithDefaults sets the values used when a request leaves them out.
func WithDefaults(d Defaults) Option {
	return func(s *Supervisor) { s.defaults = d }
}

// WithSandboxDir sets the parent directory for attachment sandboxes.
func WithSandboxDir(dir string) Option {
	return func(s *Supervisor) { s.sandboxDir = dir }
}

// WithAbortGrace sets how long the built-in backends wait before killing an
// aborted unit. A non-positive d keeps DefaultAbortGrace.
func WithAbortGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// WithMCPResolver enables MCP configuration discovery.
func WithMCPResolver(r MCPResolver) Option {
	return func(s *Supervisor) { s.mcp = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// New creates a Supervisor with the "cli" and "query" backends.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		backends:   make(map[string]Backend),
		sandboxDir: filepath.Join(os.TempDir(), "claudebridge"),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reg == nil {
		s.reg = registry.New()
	}
	s.log = s.log.With("component", "supervisor")

	if _, ok := s.backends[BackendCLI]; !ok {
		b := NewCLIBackend()
		b.Logger = s.log
		if s.grace > 0 {
			b.Grace = s.grace
		}
		s.backends[BackendCLI] = b
	}
	if _, ok := s.backends[BackendQuery]; !ok {
		b := NewQueryBackend()
		b.Logger = s.log
		if s.grace > 0 {
			b.Grace = s.grace
		}
		s.backends[BackendQuery] = b
	}
	return s
}

// Registry returns the registry the supervisor registers units in.
func (s *Supervisor) Registry() *registry.Registry {
	return s.reg
}

// Start launches a unit for req and returns without waiting for it. Events
// go to sink. Cancelling ctx aborts the unit.
//
// If a live unit is already registered under the request's session id it
// is aborted before the new one starts.
func (s *Supervisor) Start(ctx context.Context, req StartRequest, sink Sink) (*Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShutdown
	}

	name := firstNonEmpty(req.Backend, s.defaults.Backend, BackendCLI)
	backend, ok := s.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}

	inv := Resolve(req, s.defaults)
	if s.mcp != nil {
		if path, ok := s.mcp.ConfigPath(firstNonEmpty(req.ProjectPath, inv.WorkDir)); ok {
			inv.MCPConfigPath = path
		}
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	u := &Unit{
		inv:        inv,
		images:     req.Images,
		sandboxDir: s.sandboxDir,
		isNew:      req.IsNewSession(),
		backend:    backend,
		reg:        s.reg,
		sink:       sink,
		key:        id,
		state:      StateLaunching,
		done:       make(chan struct{}),
	}
	u.id.Store(id)
	u.log.Store(s.log.With("sessionID", id, "backend", name))
	u.ctx, u.cancel = context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, u.Abort)

	if prev := s.reg.Register(id, u); prev != nil {
		u.logger().Info("replaced live unit for session")
	}

	s.units.Add(1)
	go func() {
		defer s.units.Done()
		defer stop()
		u.run()
	}()
	return u, nil
}

// Abort stops the unit registered under id. It reports false if there is
// none.
func (s *Supervisor) Abort(id string) bool {
	return s.reg.Abort(id)
}

// Sessions returns the ids of live units.
func (s *Supervisor) Sessions() []string {
	return s.reg.List()
}

// Shutdown stops accepting work, aborts every live unit and waits for their
// teardown or for ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if n := s.reg.AbortAll(); n > 0 {
		s.log.Info("aborted live units", "count", n)
	}

	done := make(chan struct{})
	go func() {
		s.units.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
