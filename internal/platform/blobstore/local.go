package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
	"github.com/veralex/clausebridge-backend/internal/pkg/logger"
)

// Config carries the process-wide storage settings. Passed explicitly at
// construction; the store reads no ambient state.
type Config struct {
	Root string
}

// Local is a filesystem-backed Store rooted at Config.Root.
type Local struct {
	root string
	log  *logger.Logger
}

func NewLocal(cfg Config, baseLog *logger.Logger) (*Local, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("blobstore: %w: empty storage root", errs.ErrInvalidArgument)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root %s: %w", root, err)
	}
	storeLog := baseLog.With("service", "BlobStore", "root", root)
	return &Local{root: root, log: storeLog}, nil
}

// Path resolves a key to its location on disk. Keys containing path escapes
// are rejected upstream by resolve.
func (s *Local) Path(key string) string {
	p, _ := s.resolve(key)
	return p
}

func (s *Local) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blobstore: %w: empty key", errs.ErrInvalidArgument)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("blobstore: %w: key %q escapes root", errs.ErrInvalidArgument, key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put copies src into place atomically and durably:
// temp file in the destination directory -> fsync -> rename -> fsync of the
// target and its directory. A reader racing Put sees either the previous
// complete blob or none, never a partial one. On any failure the temp
// artifact is removed and the destination key observes nothing.
func (s *Local) Put(ctx context.Context, key string, src io.Reader) error {
	dst, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("blobstore: mkdir %s: %w", dir, err)
	}

	// Same directory as the destination so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("blobstore: create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		cleanup()
		return fmt.Errorf("blobstore: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("blobstore: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("blobstore: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("blobstore: rename %s -> %s: %w", tmpName, dst, err)
	}
	if err := syncPath(dst); err != nil {
		return fmt.Errorf("blobstore: sync %s: %w", dst, err)
	}
	// Persist the rename itself. Best effort on filesystems that refuse
	// directory fsync.
	if err := syncPath(dir); err != nil {
		s.log.Warn("directory sync failed after rename", "dir", dir, "error", err)
	}
	return nil
}

func (s *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blobstore: open %s: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", p, err)
	}
	return f, nil
}

func (s *Local) Head(ctx context.Context, key string) (BlobInfo, error) {
	p, err := s.resolve(key)
	if err != nil {
		return BlobInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return BlobInfo{}, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return BlobInfo{}, fmt.Errorf("blobstore: head %s: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return BlobInfo{}, fmt.Errorf("blobstore: head %s: %w", p, err)
	}
	return BlobInfo{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Delete is idempotent: removing a missing key succeeds.
func (s *Local) Delete(ctx context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err = os.Remove(p)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("blobstore: delete %s: %w", p, err)
}

func syncPath(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
