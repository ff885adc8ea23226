package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newWriter(t *testing.T) *LocalWriter {
	t.Helper()
	w, err := NewLocalWriter(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return w
}

func TestWriteToFile(t *testing.T) {
	w := newWriter(t)

	path, err := w.WriteToFile(context.Background(), "tools/calc.py", "def add(a, b):\n    return a + b\n")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(w.Root(), "tools", "calc.py"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "def add(a, b):\n    return a + b\n", string(data))

	// overwrite leaves no temp files behind
	_, err = w.WriteToFile(context.Background(), "tools/calc.py", "x = 1\n")
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "calc.py", entries[0].Name())
}

func TestWriteToFile_AbsoluteInsideRoot(t *testing.T) {
	w := newWriter(t)
	target := filepath.Join(w.Root(), "abs.py")

	path, err := w.WriteToFile(context.Background(), target, "pass\n")
	require.NoError(t, err)
	assert.Equal(t, target, path)
}

func TestWriteToFile_RejectsEscape(t *testing.T) {
	w := newWriter(t)

	for _, p := range []string{"../evil.py", "a/../../evil.py", "/etc/evil.py", "", "."} {
		t.Run(p, func(t *testing.T) {
			_, err := w.WriteToFile(context.Background(), p, "pass\n")
			assert.Error(t, err)
		})
	}
	_, err := w.Resolve("../x.py")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestWriteToFile_Cancelled(t *testing.T) {
	w := newWriter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.WriteToFile(ctx, "never.py", "pass\n")
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(w.Root(), "never.py"))
	assert.True(t, os.IsNotExist(statErr))
}
