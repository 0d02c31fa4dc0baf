package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/inkwell-comics/modsvc/config"
	"github.com/inkwell-comics/modsvc/internal/metrics"
)

// ErrObjectNotFound is returned by Stat when the key does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStorage defines the object operations the audit archive needs.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Bucket() string
}

// NewObjectStorage builds the backend selected by cfg.Backend.
func NewObjectStorage(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "minio":
		return NewMinioClient(cfg.Minio)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Archive is the audit export store. Every backend call is counted and timed.
type Archive struct {
	backend ObjectStorage
}

func NewArchive(backend ObjectStorage) *Archive {
	return &Archive{backend: backend}
}

func (a *Archive) EnsureBucket(ctx context.Context) error {
	return observe("ensure_bucket", func() error {
		return a.backend.EnsureBucket(ctx)
	})
}

// PutBytes uploads an in-memory object.
func (a *Archive) PutBytes(ctx context.Context, key string, data []byte, contentType string) error {
	return observe("put", func() error {
		return a.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	})
}

// Exists reports whether key is already stored.
func (a *Archive) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := observe("stat", func() error {
		_, err := a.backend.Stat(ctx, key)
		switch {
		case err == nil:
			found = true
		case errors.Is(err, ErrObjectNotFound):
		default:
			return err
		}
		return nil
	})
	return found, err
}

// List returns the objects under prefix.
func (a *Archive) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := observe("list", func() error {
		var err error
		objects, err = a.backend.List(ctx, prefix)
		return err
	})
	return objects, err
}

func (a *Archive) Bucket() string {
	return a.backend.Bucket()
}

func observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ArchiveDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ArchiveOperations.WithLabelValues(op, outcome).Inc()
	return err
}
