package minio

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/storage"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

const svgContentType = "image/svg+xml"

// ImageStore is the MinIO backed ports.ImagePort.
type ImageStore struct {
	client *MinIOClient
	logger logging.Logger
}

var _ ports.ImagePort = (*ImageStore)(nil)

// NewImageStore builds an ImageStore on client.
func NewImageStore(client *MinIOClient, log logging.Logger) *ImageStore {
	return &ImageStore{client: client, logger: log}
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// PutFile uploads the file at path and removes it afterwards.
func (s *ImageStore) PutFile(ctx context.Context, key, path string) error {
	key, err := storage.CleanKey(key)
	if err != nil {
		return err
	}
	api, err := s.client.api()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to open rendered image")
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat rendered image")
	}

	if _, err := api.PutObject(ctx, s.client.bucket, key, f, st.Size(), minio.PutObjectOptions{ContentType: svgContentType}); err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorageError, "upload of %s failed", key)
	}
	f.Close()
	os.Remove(path)
	return nil
}

// Open returns ErrCodeNotFound when the object does not exist.
func (s *ImageStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := storage.CleanKey(key)
	if err != nil {
		return nil, err
	}
	api, err := s.client.api()
	if err != nil {
		return nil, err
	}

	if _, err := api.StatObject(ctx, s.client.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, errors.NotFound("image not found").WithDetail(key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "stat failed")
	}
	obj, err := api.GetObject(ctx, s.client.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "download failed")
	}
	return obj, nil
}

// DeletePrefix removes every object under prefix.
func (s *ImageStore) DeletePrefix(ctx context.Context, prefix string) error {
	if _, err := storage.CleanKey(prefix); err != nil {
		return err
	}
	api, err := s.client.api()
	if err != nil {
		return err
	}

	objectsCh := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	go func() {
		defer close(objectsCh)
		for obj := range api.ListObjects(ctx, s.client.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr <- obj.Err
				return
			}
			if !strings.HasPrefix(obj.Key, prefix) {
				continue
			}
			select {
			case objectsCh <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := 0
	for rerr := range api.RemoveObjects(ctx, s.client.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed++
		s.logger.Warn("failed to remove image",
			logging.String("key", rerr.ObjectName), logging.Err(rerr.Err))
	}
	select {
	case err := <-listErr:
		return errors.Wrap(err, errors.ErrCodeStorageError, "listing images failed")
	default:
	}
	if failed > 0 {
		return errors.Newf(errors.ErrCodeStorageError, "%d image(s) under %s could not be removed", failed, prefix)
	}
	return nil
}
