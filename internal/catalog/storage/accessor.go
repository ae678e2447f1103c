// Package storage provides sandboxed JSON read/write/delete/exists
// access over a warehouse root, dispatching to a local-filesystem or S3
// backend based on the resolved URI scheme.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/icebergrest/catalog/internal/catalog/catalogerr"
)

// Backend is a byte-oriented store for one URI scheme (local disk, S3, ...).
type Backend interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// Accessor resolves paths against a warehouse root and a set of
// scheme-keyed backends, then performs JSON (de)serialization.
type Accessor struct {
	warehouseRoot string
	local         Backend
	s3            Backend
}

// New constructs an Accessor rooted at warehouseRoot, with an optional S3
// backend (nil disables s3:// locations).
func New(warehouseRoot string, s3Backend Backend) *Accessor {
	return &Accessor{
		warehouseRoot: warehouseRoot,
		local:         newLocalBackend(warehouseRoot),
		s3:            s3Backend,
	}
}

// resolve determines which backend serves path and what path to hand it.
// A path containing "://" or absolute is used as-is; file:// is stripped.
// A relative path is resolved against the warehouse root and must remain
// a descendant of it.
func (a *Accessor) resolve(path string) (Backend, string, error) {
	switch {
	case strings.HasPrefix(path, "s3://"):
		if a.s3 == nil {
			return nil, "", catalogerr.NewValidation("s3 backend not configured for path %q", path)
		}
		return a.s3, path, nil
	case strings.Contains(path, "://"):
		if strings.HasPrefix(path, "file://") {
			return a.local, strings.TrimPrefix(path, "file://"), nil
		}
		return nil, "", catalogerr.NewValidation("unsupported storage scheme for path %q", path)
	case filepath.IsAbs(path):
		return a.local, path, nil
	default:
		full := filepath.Clean(filepath.Join(a.warehouseRoot, path))
		root := filepath.Clean(a.warehouseRoot)
		if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
			return nil, "", catalogerr.NewValidation("path traversal attempt detected for relative path: %s", path)
		}
		return a.local, full, nil
	}
}

// ReadJSON reads and decodes the JSON document at path.
func (a *Accessor) ReadJSON(ctx context.Context, path string, out any) error {
	backend, resolved, err := a.resolve(path)
	if err != nil {
		return err
	}
	data, err := backend.ReadFile(ctx, resolved)
	if err != nil {
		if ce, ok := catalogerr.As(err); ok {
			return ce
		}
		return catalogerr.Wrap(fmt.Errorf("reading %s: %w", resolved, err))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return catalogerr.NewValidation("could not parse JSON from %s: %v", resolved, err)
	}
	return nil
}

// WriteJSON pretty-prints v and writes it to path, creating parent
// directories as needed.
func (a *Accessor) WriteJSON(ctx context.Context, path string, v any) error {
	backend, resolved, err := a.resolve(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return catalogerr.Wrap(fmt.Errorf("marshaling JSON for %s: %w", resolved, err))
	}
	if err := backend.WriteFile(ctx, resolved, data); err != nil {
		if ce, ok := catalogerr.As(err); ok {
			return ce
		}
		return catalogerr.Wrap(fmt.Errorf("writing %s: %w", resolved, err))
	}
	return nil
}

// Exists reports whether path is present.
func (a *Accessor) Exists(ctx context.Context, path string) (bool, error) {
	backend, resolved, err := a.resolve(path)
	if err != nil {
		return false, err
	}
	ok, err := backend.Exists(ctx, resolved)
	if err != nil {
		return false, catalogerr.Wrap(fmt.Errorf("checking existence of %s: %w", resolved, err))
	}
	return ok, nil
}

// Delete removes path. Missing files are not an error.
func (a *Accessor) Delete(ctx context.Context, path string) error {
	backend, resolved, err := a.resolve(path)
	if err != nil {
		return err
	}
	if err := backend.Delete(ctx, resolved); err != nil {
		return catalogerr.Wrap(fmt.Errorf("deleting %s: %w", resolved, err))
	}
	return nil
}

// WarehouseRoot returns the configured warehouse root directory.
func (a *Accessor) WarehouseRoot() string {
	return a.warehouseRoot
}

type localBackend struct {
	root string
}

func newLocalBackend(root string) *localBackend {
	return &localBackend{root: root}
}

func (l *localBackend) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, catalogerr.NewNotFound("file not found: %s", path)
		}
		return nil, err
	}
	return data, nil
}

func (l *localBackend) WriteFile(_ context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming temp file into place for %s: %w", path, err)
	}
	return nil
}

func (l *localBackend) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *localBackend) Delete(_ context.Context, path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
