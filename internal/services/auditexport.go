package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkwell-comics/modsvc/internal/storage"
	"github.com/inkwell-comics/modsvc/types"
)

// AuditRange reads audit entries inside a time window.
type AuditRange interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]types.AuditEntry, error)
}

// ObjectArchive stores finished exports.
type ObjectArchive interface {
	Exists(ctx context.Context, key string) (bool, error)
	PutBytes(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

const auditExportPrefix = "audit/"

// AuditExportService writes audit entries to object storage as JSON lines.
type AuditExportService struct {
	audit   AuditRange
	objects ObjectArchive
	logger  *slog.Logger
}

func NewAuditExportService(audit AuditRange, objects ObjectArchive, logger *slog.Logger) *AuditExportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditExportService{audit: audit, objects: objects, logger: logger}
}

// Export uploads the entries created inside [from, to) and returns the object
// key and the number of entries written. An existing export for the same
// window is an ErrConflict unless overwrite is set.
func (s *AuditExportService) Export(ctx context.Context, from, to time.Time, overwrite bool) (string, int, error) {
	if !from.Before(to) {
		return "", 0, fmt.Errorf("%w: export window is empty", ErrInvalidInput)
	}

	key := AuditExportKey(from, to)
	if !overwrite {
		exists, err := s.objects.Exists(ctx, key)
		if err != nil {
			return "", 0, fmt.Errorf("checking %s: %w", key, err)
		}
		if exists {
			return key, 0, fmt.Errorf("%w: %s already exported", ErrConflict, key)
		}
	}

	entries, err := s.audit.ListBetween(ctx, from, to)
	if err != nil {
		return "", 0, fmt.Errorf("listing audit entries: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return "", 0, fmt.Errorf("encoding audit entry %d: %w", entry.ID, err)
		}
	}

	if err := s.objects.PutBytes(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return "", 0, fmt.Errorf("uploading %s: %w", key, err)
	}
	s.logger.Info("audit export written", "key", key, "entries", len(entries))
	return key, len(entries), nil
}

// Exports lists the stored exports.
func (s *AuditExportService) Exports(ctx context.Context) ([]storage.ObjectInfo, error) {
	return s.objects.List(ctx, auditExportPrefix)
}

// AuditExportKey names the object for a window.
func AuditExportKey(from, to time.Time) string {
	const layout = "20060102T150405Z"
	return fmt.Sprintf("%s%s_%s.jsonl", auditExportPrefix, from.UTC().Format(layout), to.UTC().Format(layout))
}
