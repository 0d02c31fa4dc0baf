package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkwell-comics/modsvc/types"
)

// AuditLogRepository appends and reads the account audit trail.
type AuditLogRepository struct {
	db *sql.DB
}

func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Append(ctx context.Context, entry types.AuditEntry) (types.AuditEntry, error) {
	entry.CreatedAt = time.Now()

	const query = `
		INSERT INTO audit_logs (user_id, actor_id, action, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query,
		entry.UserID,
		entry.ActorID,
		entry.Action,
		entry.CreatedAt,
	).Scan(&entry.ID); err != nil {
		return types.AuditEntry{}, err
	}
	return entry, nil
}

// List returns entries newest first.
func (r *AuditLogRepository) List(ctx context.Context, offset, limit int) ([]types.AuditEntry, int, error) {
	offset, limit = normalizePage(offset, limit)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM audit_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	entries, err := r.query(ctx, `
		SELECT id, user_id, actor_id, action, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListBetween returns entries created inside [from, to), oldest first.
func (r *AuditLogRepository) ListBetween(ctx context.Context, from, to time.Time) ([]types.AuditEntry, error) {
	return r.query(ctx, `
		SELECT id, user_id, actor_id, action, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC, id ASC`, from, to)
}

func (r *AuditLogRepository) query(ctx context.Context, query string, args ...any) ([]types.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.AuditEntry, 0)
	for rows.Next() {
		var entry types.AuditEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.ActorID, &entry.Action, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
