package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-comics/modsvc/internal/db"
	"github.com/inkwell-comics/modsvc/types"
)

// ModerationRepository handles persistence for comics and their moderation
// records. Every write that changes a record's status also writes the
// comic's public status in the same transaction.
type ModerationRepository struct {
	db *sql.DB
}

func NewModerationRepository(db *sql.DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

const recordSelect = `
	SELECT m.id, m.comic_id, m.status, m.reviewer_id, m.note, m.processed_at, m.created_at,
		c.title, c.author_id, c.created_at
	FROM comic_moderations m
	JOIN comics c ON c.id = m.comic_id`

func scanRecord(row interface{ Scan(...any) error }) (types.ModerationRecord, error) {
	var rec types.ModerationRecord
	err := row.Scan(
		&rec.ID,
		&rec.ComicID,
		&rec.Status,
		&rec.ReviewerID,
		&rec.Note,
		&rec.ProcessedAt,
		&rec.CreatedAt,
		&rec.ComicTitle,
		&rec.ComicAuthorID,
		&rec.ComicCreatedAt,
	)
	return rec, err
}

func getRecord(ctx context.Context, q queryer, id int) (types.ModerationRecord, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, recordSelect+` WHERE m.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ModerationRecord{}, ErrNotFound
		}
		return types.ModerationRecord{}, err
	}
	return rec, nil
}

// CreateSubmission inserts an unpublished comic together with its Pending
// moderation record.
func (r *ModerationRepository) CreateSubmission(ctx context.Context, comic types.Comic) (types.Comic, types.ModerationRecord, error) {
	now := time.Now()
	comic.PublicStatus = types.PublicStatusUnpublished
	comic.CreatedAt = now
	comic.UpdatedAt = now

	var rec types.ModerationRecord
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const insertComic = `
			INSERT INTO comics (author_id, title, description, public_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`
		if err := tx.QueryRowContext(ctx, insertComic,
			comic.AuthorID,
			comic.Title,
			comic.Description,
			comic.PublicStatus,
			comic.CreatedAt,
			comic.UpdatedAt,
		).Scan(&comic.ID); err != nil {
			return err
		}

		const insertRecord = `
			INSERT INTO comic_moderations (comic_id, status, created_at)
			VALUES ($1, 'pending', $2)
			RETURNING id`
		var recordID int
		if err := tx.QueryRowContext(ctx, insertRecord, comic.ID, now).Scan(&recordID); err != nil {
			return err
		}

		var err error
		rec, err = getRecord(ctx, tx, recordID)
		return err
	})
	if err != nil {
		return types.Comic{}, types.ModerationRecord{}, err
	}
	return comic, rec, nil
}

// Reopen starts a new Pending cycle for a comic. It yields ErrConflict when
// the comic already has a Pending record, and unpublishes the comic.
func (r *ModerationRepository) Reopen(ctx context.Context, comicID int) (types.ModerationRecord, error) {
	now := time.Now()
	var rec types.ModerationRecord
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const insertRecord = `
			INSERT INTO comic_moderations (comic_id, status, created_at)
			SELECT $1, 'pending', $2
			WHERE NOT EXISTS (
				SELECT 1 FROM comic_moderations WHERE comic_id = $1 AND status = 'pending'
			)
			RETURNING id`
		var recordID int
		if err := tx.QueryRowContext(ctx, insertRecord, comicID, now).Scan(&recordID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return missOrConflict(ctx, tx, "comics", comicID)
			}
			return err
		}

		if err := setPublicStatus(ctx, tx, comicID, types.PublicStatusUnpublished, now); err != nil {
			return err
		}

		var err error
		rec, err = getRecord(ctx, tx, recordID)
		return err
	})
	if err != nil {
		return types.ModerationRecord{}, err
	}
	return rec, nil
}

func (r *ModerationRepository) Get(ctx context.Context, id int) (types.ModerationRecord, error) {
	return getRecord(ctx, r.db, id)
}

// Latest returns the most recent record for a comic.
func (r *ModerationRepository) Latest(ctx context.Context, comicID int) (types.ModerationRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		recordSelect+` WHERE m.comic_id = $1 ORDER BY m.id DESC LIMIT 1`, comicID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ModerationRecord{}, ErrNotFound
		}
		return types.ModerationRecord{}, err
	}
	return rec, nil
}

func (r *ModerationRepository) GetComic(ctx context.Context, id int) (types.Comic, error) {
	const query = `
		SELECT id, author_id, title, description, public_status, created_at, updated_at
		FROM comics
		WHERE id = $1`
	var comic types.Comic
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&comic.ID,
		&comic.AuthorID,
		&comic.Title,
		&comic.Description,
		&comic.PublicStatus,
		&comic.CreatedAt,
		&comic.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Comic{}, ErrNotFound
		}
		return types.Comic{}, err
	}
	return comic, nil
}

// ListPending returns Pending records oldest comic first.
func (r *ModerationRepository) ListPending(ctx context.Context, offset, limit int) ([]types.ModerationRecord, int, error) {
	offset, limit = normalizePage(offset, limit)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM comic_moderations WHERE status = 'pending'`).Scan(&total); err != nil {
		return nil, 0, err
	}

	records, err := r.list(ctx,
		recordSelect+` WHERE m.status = 'pending' ORDER BY c.created_at ASC, m.id ASC OFFSET $1 LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListProcessed returns decided records, most recently processed first.
func (r *ModerationRepository) ListProcessed(ctx context.Context, offset, limit int) ([]types.ModerationRecord, int, error) {
	offset, limit = normalizePage(offset, limit)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM comic_moderations WHERE status <> 'pending'`).Scan(&total); err != nil {
		return nil, 0, err
	}

	records, err := r.list(ctx,
		recordSelect+` WHERE m.status <> 'pending' ORDER BY m.processed_at DESC, m.id DESC OFFSET $1 LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *ModerationRepository) list(ctx context.Context, query string, args ...any) ([]types.ModerationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]types.ModerationRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Transition moves a record from one status to another only if it is still
// in the expected status, and mirrors the result onto the comic. A record
// that has moved on yields ErrConflict.
func (r *ModerationRepository) Transition(
	ctx context.Context,
	id int,
	from, to types.ModerationStatus,
	reviewerID int,
	note string,
	at time.Time,
) (types.ModerationRecord, error) {
	var rec types.ModerationRecord
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const update = `
			UPDATE comic_moderations
			SET status = $1, reviewer_id = $2, note = $3, processed_at = $4
			WHERE id = $5 AND status = $6
			RETURNING comic_id`
		var comicID int
		if err := tx.QueryRowContext(ctx, update, to, reviewerID, note, at, id, from).Scan(&comicID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return missOrConflict(ctx, tx, "comic_moderations", id)
			}
			return err
		}

		if err := setPublicStatus(ctx, tx, comicID, to.PublicStatus(), at); err != nil {
			return err
		}

		var err error
		rec, err = getRecord(ctx, tx, id)
		return err
	})
	if err != nil {
		return types.ModerationRecord{}, err
	}
	return rec, nil
}

func setPublicStatus(ctx context.Context, q queryer, comicID int, status types.PublicStatus, at time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE comics SET public_status = $1, updated_at = $2 WHERE id = $3`, status, at, comicID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("comic %d: %w", comicID, ErrNotFound)
	}
	return nil
}

// Counts returns the backlog size, decisions inside [monthStart, monthEnd)
// and the number of hidden records.
func (r *ModerationRepository) Counts(ctx context.Context, monthStart, monthEnd time.Time) (types.ModerationCounts, error) {
	const query = `
		SELECT
			COUNT(1) FILTER (WHERE status = 'pending'),
			COUNT(1) FILTER (WHERE status = 'approved' AND processed_at >= $1 AND processed_at < $2),
			COUNT(1) FILTER (WHERE status = 'rejected' AND processed_at >= $1 AND processed_at < $2),
			COUNT(1) FILTER (WHERE status = 'hidden')
		FROM comic_moderations`
	var counts types.ModerationCounts
	err := r.db.QueryRowContext(ctx, query, monthStart, monthEnd).Scan(
		&counts.Pending,
		&counts.ApprovedThisMonth,
		&counts.RejectedThisMonth,
		&counts.Hidden,
	)
	return counts, err
}
