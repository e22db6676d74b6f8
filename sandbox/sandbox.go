// Package sandbox materialises inline attachments into a private scratch
// directory that a single work unit owns for its lifetime.
//
// Attachments arrive as data URIs (data:<mime>;base64,<payload>). Acquire
// decodes each one into a file and returns the paths so the unit can refer
// to them; Release removes the directory. A malformed attachment is skipped,
// never fatal.
package sandbox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for sandbox operations.
var (
	// ErrIO indicates the scratch directory could not be created.
	ErrIO = errors.New("sandbox I/O failure")

	// ErrMalformedAttachment indicates an attachment was not a base64 data URI.
	ErrMalformedAttachment = errors.New("malformed attachment")
)

const base64Marker = ";base64,"

// Attachment is a caller-supplied inline binary payload.
type Attachment struct {
	// Name is informational only; files are renamed on disk.
	Name string `json:"name,omitempty"`
	// Data is a data URI: data:<mime>;base64,<payload>.
	Data string `json:"data"`
}

// Sandbox is a scratch directory owned by exactly one unit.
type Sandbox struct {
	path string
	once sync.Once
	err  error
	log  *slog.Logger
}

// Option configures Acquire.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for skipped attachments and release failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Acquire creates a private directory under baseDir and writes every well
// formed attachment into it. It returns a nil Sandbox and no paths when there
// are no attachments. Only directory creation failures are returned; bad
// attachments are logged and skipped.
func Acquire(baseDir string, attachments []Attachment, opts ...Option) (*Sandbox, []string, error) {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if len(attachments) == 0 {
		return nil, nil, nil
	}

	name := fmt.Sprintf("%d-%s", o.now().UnixMilli(), uuid.NewString()[:8])
	dir := filepath.Join(baseDir, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("%w: create %s: %v", ErrIO, dir, err)
	}

	sb := &Sandbox{path: dir, log: o.logger}

	paths := make([]string, 0, len(attachments))
	for i, a := range attachments {
		mime, data, err := DecodeDataURI(a.Data)
		if err != nil {
			o.logger.Warn("skipping attachment", "index", i, "name", a.Name, "error", err)
			continue
		}

		file := filepath.Join(dir, fmt.Sprintf("attachment_%d.%s", i, Extension(mime)))
		if filepath.Dir(file) != dir {
			o.logger.Warn("skipping attachment", "index", i, "name", a.Name, "error", fmt.Errorf("%w: path escapes sandbox", ErrMalformedAttachment))
			continue
		}
		if err := os.WriteFile(file, data, 0o600); err != nil {
			o.logger.Warn("skipping attachment", "index", i, "name", a.Name, "error", fmt.Errorf("write %s: %w", file, err))
			continue
		}
		paths = append(paths, file)
	}

	return sb, paths, nil
}

// Path returns the sandbox directory, or "" for a nil sandbox.
func (s *Sandbox) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Release removes the sandbox directory. It is safe to call more than once
// and on a nil Sandbox. The first call's result is returned to every caller.
func (s *Sandbox) Release() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		s.err = Release(s.path)
		if s.err != nil && s.log != nil {
			s.log.Warn("sandbox release failed", "path", s.path, "error", s.err)
		}
	})
	return s.err
}

// Release removes path recursively. A missing path is not an error.
func Release(path string) error {
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sandbox %s: %w", path, err)
	}
	return nil
}

// DecodeDataURI splits a data:<mime>;base64,<payload> URI into its mime type
// and decoded bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrMalformedAttachment)
	}
	mime, payload, ok := strings.Cut(rest, base64Marker)
	if !ok {
		return "", nil, fmt.Errorf("%w: missing %s marker", ErrMalformedAttachment, base64Marker)
	}
	if mime == "" {
		return "", nil, fmt.Errorf("%w: empty mime type", ErrMalformedAttachment)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedAttachment, err)
	}
	return mime, data, nil
}

// Extension maps a mime type to a file extension.
func Extension(mime string) string {
	_, sub, ok := strings.Cut(strings.ToLower(mime), "/")
	if !ok || sub == "" {
		return "bin"
	}
	switch sub {
	case "jpeg":
		return "jpg"
	case "svg+xml":
		return "svg"
	}
	// Drop structured-syntax suffixes and parameters.
	if i := strings.IndexAny(sub, "+;"); i > 0 {
		sub = sub[:i]
	}
	if !isAlnum(sub) {
		return "bin"
	}
	return sub
}

// isAlnum reports whether s is non-empty and only [a-z0-9].
func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// PromptWithAttachments appends the attachment footer the CLI understands.
// The prompt is returned unchanged when there are no paths.
func PromptWithAttachments(prompt string, paths []string) string {
	if len(paths) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n[Images provided at the following paths:]\n")
	for i, p := range paths {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p)
	}
	return strings.TrimRight(sb.String(), "\n")
}
