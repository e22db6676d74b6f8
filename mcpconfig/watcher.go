package mcpconfig

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/randalmurphal/claudebridge/claudecontract"
)

// Watcher caches the parsed Claude user config and drops the cache whenever
// the file changes on disk. Without fsnotify it re-reads on every lookup.
type Watcher struct {
	path string
	log  *slog.Logger

	mu     sync.Mutex
	cached *userConfig

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher watches configPath (~/.claude.json when empty). It never fails:
// if the file system cannot be watched, lookups simply skip the cache.
func NewWatcher(configPath string, opts ...WatcherOption) *Watcher {
	if configPath == "" {
		configPath = claudecontract.UserConfigPath()
	}
	w := &Watcher{
		path: configPath,
		log:  slog.Default(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("component", "mcpconfig", "path", configPath)

	if configPath == "" {
		return w
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("file watching unavailable, MCP config will be re-read per session", "error", err)
		return w
	}
	// Watch the directory; editors and the CLI replace the file atomically.
	if err := fsw.Add(filepath.Dir(configPath)); err != nil {
		w.log.Warn("cannot watch config directory", "error", err)
		_ = fsw.Close()
		return w
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.loop()
	return w
}

// Path returns the watched config file.
func (w *Watcher) Path() string {
	return w.path
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	base := filepath.Base(w.path)

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			w.log.Debug("config changed", "op", event.Op.String())
			w.invalidate()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Debug("watch error", "error", err)
			w.invalidate()
		}
	}
}

func (w *Watcher) invalidate() {
	w.mu.Lock()
	w.cached = nil
	w.mu.Unlock()
}

func (w *Watcher) load() (*userConfig, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cached != nil {
		return w.cached, nil
	}

	cfg, err := loadUserConfig(w.path)
	if err != nil {
		return nil, err
	}
	if w.fsw != nil {
		w.cached = cfg
	}
	return cfg, nil
}

// Discover is like the package-level Discover but served from the cache.
func (w *Watcher) Discover(projectPath string) (*Result, error) {
	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	return cfg.result(w.path, projectPath), nil
}

// ConfigPath returns the config file to pass as --mcp-config for
// projectPath, and false when no servers are configured. A config file that
// cannot be parsed counts as having no servers.
func (w *Watcher) ConfigPath(projectPath string) (string, bool) {
	res, err := w.Discover(projectPath)
	if err != nil {
		w.log.Warn("MCP discovery failed", "error", err)
		return "", false
	}
	servers := res.Servers().Enabled()
	if len(servers) == 0 {
		return "", false
	}
	w.log.Debug("attaching MCP config", "project", projectPath, "servers", servers)
	return res.ConfigPath, true
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
