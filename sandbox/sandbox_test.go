package sandbox

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngURI(payload string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestAcquire_NoAttachments(t *testing.T) {
	base := t.TempDir()

	sb, paths, err := Acquire(base, nil)
	require.NoError(t, err)
	assert.Nil(t, sb)
	assert.Empty(t, paths)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "no directory should be created without attachments")

	assert.NoError(t, sb.Release(), "nil sandbox release is a no-op")
}

func TestAcquire_WritesAttachments(t *testing.T) {
	base := t.TempDir()

	sb, paths, err := Acquire(base, []Attachment{
		{Name: "a.png", Data: pngURI("first")},
		{Name: "b.jpg", Data: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("second"))},
	})
	require.NoError(t, err)
	require.NotNil(t, sb)
	require.Len(t, paths, 2)

	assert.Equal(t, sb.Path(), filepath.Dir(paths[0]))
	assert.Equal(t, ".png", filepath.Ext(paths[0]))
	assert.Equal(t, ".jpg", filepath.Ext(paths[1]))

	got, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	info, err := os.Stat(sb.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestAcquire_SkipsMalformed(t *testing.T) {
	base := t.TempDir()

	sb, paths, err := Acquire(base, []Attachment{
		{Name: "no-marker", Data: "data:image/png," + "aGVsbG8="},
		{Name: "good", Data: pngURI("ok")},
		{Name: "not-a-uri", Data: "https://example.com/x.png"},
		{Name: "bad-base64", Data: "data:image/png;base64,!!!"},
	})
	require.NoError(t, err)
	require.NotNil(t, sb)
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "attachment_1.png")

	require.NoError(t, sb.Release())
}

func TestAcquire_DirectoryFailure(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, _, err := Acquire(blocker, []Attachment{{Data: pngURI("x")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
}

func TestRelease_Idempotent(t *testing.T) {
	sb, _, err := Acquire(t.TempDir(), []Attachment{{Data: pngURI("x")}})
	require.NoError(t, err)

	require.NoError(t, sb.Release())
	_, statErr := os.Stat(sb.Path())
	assert.True(t, os.IsNotExist(statErr))

	assert.NoError(t, sb.Release())
	assert.NoError(t, Release(sb.Path()), "missing path is tolerated")
	assert.NoError(t, Release(""))
}

func TestDecodeDataURI(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		wantMime string
		wantErr  bool
	}{
		{name: "png", uri: pngURI("x"), wantMime: "image/png"},
		{name: "missing prefix", uri: "image/png;base64,eA==", wantErr: true},
		{name: "missing marker", uri: "data:image/png,eA==", wantErr: true},
		{name: "empty mime", uri: "data:;base64,eA==", wantErr: true},
		{name: "bad payload", uri: "data:image/png;base64,%%%", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, _, err := DecodeDataURI(tt.uri)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedAttachment)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMime, mime)
		})
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/png", "png"},
		{"image/jpeg", "jpg"},
		{"image/svg+xml", "svg"},
		{"IMAGE/WEBP", "webp"},
		{"image/png;charset=x", "png"},
		{"garbage", "bin"},
		{"image/", "bin"},
		{"image/../../../escaped", "bin"},
		{"image/..", "bin"},
		{"image/a/b", "bin"},
		{`image/x\y`, "bin"},
		{"application/vnd.ms-excel", "bin"},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.mime))
		})
	}
}

func TestAcquire_TraversalMimeStaysInside(t *testing.T) {
	base := filepath.Join(t.TempDir(), "sandboxes")

	sb, paths, err := Acquire(base, []Attachment{
		{Name: "evil", Data: "data:image/../../../escaped;base64,aGVsbG8="},
		{Name: "evil2", Data: "data:image/../../x/../../y;base64,aGVsbG8="},
	})
	require.NoError(t, err)
	require.NotNil(t, sb)
	defer sb.Release()

	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.Equal(t, sb.Path(), filepath.Dir(p))
		assert.Equal(t, ".bin", filepath.Ext(p))
	}

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the sandbox directory may exist under base")
	_, err = os.Stat(filepath.Join(filepath.Dir(base), "escaped"))
	assert.True(t, os.IsNotExist(err))
}

func TestPromptWithAttachments(t *testing.T) {
	assert.Equal(t, "list files", PromptWithAttachments("list files", nil))

	got := PromptWithAttachments("describe", []string{"/tmp/a.png", "/tmp/b.png"})
	assert.Equal(t, "describe\n\n[Images provided at the following paths:]\n1. /tmp/a.png\n2. /tmp/b.png", got)
}
