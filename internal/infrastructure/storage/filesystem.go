// Package storage keeps rendered SVG images. The filesystem store serves
// single-host deployments; the minio subpackage holds the object storage
// backend.
package storage

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// FileStore stores images below a root directory, one file per key.
type FileStore struct {
	root string
}

var _ ports.ImagePort = (*FileStore)(nil)

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeStorageError, "failed to create image root %q", root)
	}
	return &FileStore{root: root}, nil
}

// Root returns the directory images are stored in.
func (s *FileStore) Root() string { return s.root }

// CleanKey validates an image key and returns its canonical form. Keys are
// relative slash paths without "..".
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", errors.Newf(errors.ErrCodeBadRequest, "invalid image key %q", key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Newf(errors.ErrCodeBadRequest, "invalid image key %q", key)
	}
	return clean, nil
}

func (s *FileStore) pathOf(key string) (string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// PutFile moves src to key, falling back to a copy when src lives on
// another filesystem.
func (s *FileStore) PutFile(_ context.Context, key, src string) error {
	dst, err := s.pathOf(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create image dir")
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorageError, "failed to store image %s", key)
	}
	os.Remove(src)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".img-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Open returns ErrCodeNotFound when no image is stored under key.
func (s *FileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.pathOf(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("image not found").WithDetail(key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to open image")
	}
	return f, nil
}

// DeletePrefix removes every image whose key starts with prefix. Prefixes
// ending in "/" remove a whole directory.
func (s *FileStore) DeletePrefix(_ context.Context, prefix string) error {
	clean, err := CleanKey(prefix)
	if err != nil {
		return err
	}
	if strings.HasSuffix(prefix, "/") {
		if err := os.RemoveAll(filepath.Join(s.root, filepath.FromSlash(clean))); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to delete images")
		}
		return nil
	}

	dir, base := path.Split(clean)
	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(dir)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to list images")
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base) {
			if err := os.RemoveAll(filepath.Join(s.root, filepath.FromSlash(dir), e.Name())); err != nil {
				return errors.Wrap(err, errors.ErrCodeStorageError, "failed to delete images")
			}
		}
	}
	return nil
}
