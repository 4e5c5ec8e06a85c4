package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debsources/debsources/internal/archerr"
)

func newBackend(t *testing.T) *LocalBackend {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "acl", "2.2.49-4", "src")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte("0123456789"), 0o644))

	b, err := New(Config{RootPath: root})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func read(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestGetObject(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	key := "acl/2.2.49-4/src/main.c"

	tests := []struct {
		name           string
		offset, length int64
		want           string
	}{
		{"whole", 0, 0, "0123456789"},
		{"prefix", 0, 4, "0123"},
		{"middle", 3, 4, "3456"},
		{"suffix", 6, 0, "6789"},
		{"length past end", 8, 100, "89"},
		{"offset past end", 20, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, size, err := b.GetObject(ctx, key, tt.offset, tt.length)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), size)
			assert.Equal(t, tt.want, read(t, rc))
		})
	}
}

func TestGetObjectMissing(t *testing.T) {
	b := newBackend(t)
	_, _, err := b.GetObject(context.Background(), "acl/2.2.49-4/nope.c", 0, 0)
	assert.ErrorIs(t, err, archerr.ErrNotFound)

	_, _, err = b.GetObject(context.Background(), "acl/2.2.49-4/src", 0, 0)
	assert.ErrorIs(t, err, archerr.ErrNotFound)
}

func TestGetObjectCannotEscapeRoot(t *testing.T) {
	b := newBackend(t)
	_, _, err := b.GetObject(context.Background(), "../../etc/passwd", 0, 0)
	assert.Error(t, err)
}

func TestObjectExists(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	ok, err := b.ObjectExists(ctx, "acl/2.2.49-4/src/main.c")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.ObjectExists(ctx, "acl/2.2.49-4/src")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.ObjectExists(ctx, "acl/missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "local", b.Type())
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(Config{RootPath: file})
	assert.Error(t, err)
}
