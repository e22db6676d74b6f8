package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	err := &Error{SessionID: "s1", Op: "launch", Err: ErrLaunch}
	assert.Equal(t, "session s1: launch: launch failed", err.Error())
	assert.ErrorIs(t, err, ErrLaunch)

	err = &Error{Op: "run", Err: ErrRuntime}
	assert.Equal(t, "run: unit failed", err.Error())
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", fmt.Errorf("start: %w", ErrCLINotFound), true},
		{"exec", &exec.Error{Name: "claude", Err: exec.ErrNotFound}, true},
		{"missing file", fmt.Errorf("start: %w", fs.ErrNotExist), false},
		{"work dir", fmt.Errorf("%w: %w", ErrWorkDir, fs.ErrNotExist), false},
		{"text only", errors.New("claude: command not found"), false},
		{"other", errors.New("permission denied"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFound(tt.err))
		})
	}
}

func TestIsAbort(t *testing.T) {
	assert.True(t, IsAbort(ErrAborted))
	assert.True(t, IsAbort(fmt.Errorf("pump: %w", context.Canceled)))
	assert.False(t, IsAbort(ErrRuntime))
}

func TestCheckWorkDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	assert.NoError(t, checkWorkDir(""))
	assert.NoError(t, checkWorkDir(dir))
	assert.ErrorIs(t, checkWorkDir(filepath.Join(dir, "missing")), ErrWorkDir)
	assert.ErrorIs(t, checkWorkDir(file), ErrWorkDir)
}

func TestStartError(t *testing.T) {
	assert.ErrorIs(t, startError(&exec.Error{Name: "claude", Err: exec.ErrNotFound}), ErrCLINotFound)
	assert.ErrorIs(t, startError(&fs.PathError{Op: "fork/exec", Path: "/x/claude", Err: fs.ErrNotExist}), ErrCLINotFound)

	denied := &fs.PathError{Op: "fork/exec", Path: "/x/claude", Err: fs.ErrPermission}
	assert.Same(t, error(denied), startError(denied))
}
