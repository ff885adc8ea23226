// Package storage persists generated code on the local file system
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrOutsideRoot is returned for target paths that escape the output root
var ErrOutsideRoot = errors.New("path escapes output root")

// LocalWriter writes files below a fixed root directory
type LocalWriter struct {
	root   string
	logger *zap.Logger
}

// NewLocalWriter creates a writer rooted at root, creating it if needed
func NewLocalWriter(root string, logger *zap.Logger) (*LocalWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}
	return &LocalWriter{root: abs, logger: logger}, nil
}

// Root returns the absolute output root
func (w *LocalWriter) Root() string {
	return w.root
}

// WriteToFile atomically writes content to path, relative to the root, and
// returns the absolute path written. Readers never observe a partial file.
func (w *LocalWriter) WriteToFile(ctx context.Context, path, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := WriteFileAtomic(full, []byte(content), 0o644); err != nil {
		return "", err
	}
	w.logger.Info("wrote generated code",
		zap.String("path", full),
		zap.Int("bytes", len(content)),
	)
	return full, nil
}

// Resolve maps path onto an absolute path inside the root
func (w *LocalWriter) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty target path")
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(w.root, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(w.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return full, nil
}

// WriteFileAtomic writes data to a temporary file in the target directory and
// renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
