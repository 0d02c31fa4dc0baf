package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/inkwell-comics/modsvc/types"
)

// ReportRepository handles persistence for conduct reports.
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportSelect = `
	SELECT r.id, r.reporter_id, r.target_id, r.reason, r.description, r.status, r.action_taken,
		r.resolution_note, r.processed_by, r.processed_at, r.created_at,
		ru.username, tu.username, tu.role
	FROM reports r
	JOIN users ru ON ru.id = r.reporter_id
	JOIN users tu ON tu.id = r.target_id`

func scanReport(row interface{ Scan(...any) error }) (types.Report, error) {
	var report types.Report
	err := row.Scan(
		&report.ID,
		&report.ReporterID,
		&report.TargetID,
		&report.Reason,
		&report.Description,
		&report.Status,
		&report.ActionTaken,
		&report.ResolutionNote,
		&report.ProcessedBy,
		&report.ProcessedAt,
		&report.CreatedAt,
		&report.ReporterName,
		&report.TargetName,
		&report.TargetRole,
	)
	return report, err
}

func (r *ReportRepository) Get(ctx context.Context, id int) (types.Report, error) {
	report, err := scanReport(r.db.QueryRowContext(ctx, reportSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Report{}, ErrNotFound
		}
		return types.Report{}, err
	}
	return report, nil
}

// Create inserts a Pending report. A second Pending report for the same
// (reporter, target) pair yields ErrDuplicate.
func (r *ReportRepository) Create(ctx context.Context, report types.Report) (types.Report, error) {
	report.Status = types.ReportPending
	report.CreatedAt = time.Now()

	const query = `
		INSERT INTO reports (reporter_id, target_id, reason, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	var id int
	if err := r.db.QueryRowContext(ctx, query,
		report.ReporterID,
		report.TargetID,
		report.Reason,
		report.Description,
		report.Status,
		report.CreatedAt,
	).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return types.Report{}, ErrDuplicate
		}
		return types.Report{}, err
	}
	return r.Get(ctx, id)
}

// HasPending reports whether a Pending report exists for the pair.
func (r *ReportRepository) HasPending(ctx context.Context, reporterID, targetID int) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM reports
			WHERE reporter_id = $1 AND target_id = $2 AND status = 'pending'
		)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, reporterID, targetID).Scan(&exists)
	return exists, err
}

// ListPendingByTargetRole returns Pending reports whose target currently has
// the given role, newest first.
func (r *ReportRepository) ListPendingByTargetRole(ctx context.Context, role types.Role, offset, limit int) ([]types.Report, int, error) {
	offset, limit = normalizePage(offset, limit)

	total, err := r.CountPendingByTargetRole(ctx, role)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		reportSelect+` WHERE r.status = 'pending' AND tu.role = $1 ORDER BY r.created_at DESC, r.id DESC OFFSET $2 LIMIT $3`,
		role, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reports := make([]types.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

func (r *ReportRepository) CountPendingByTargetRole(ctx context.Context, role types.Role) (int, error) {
	const query = `
		SELECT COUNT(1)
		FROM reports r
		JOIN users tu ON tu.id = r.target_id
		WHERE r.status = 'pending' AND tu.role = $1`
	var total int
	err := r.db.QueryRowContext(ctx, query, role).Scan(&total)
	return total, err
}

// Resolve closes a Pending report. A report that already left Pending
// yields ErrConflict.
func (r *ReportRepository) Resolve(ctx context.Context, id int, res types.ReportResolution) (types.Report, error) {
	const query = `
		UPDATE reports
		SET status = $1, action_taken = $2, resolution_note = $3, processed_by = $4, processed_at = $5
		WHERE id = $6 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query,
		res.Status,
		res.Action,
		res.Note,
		res.ProcessedBy,
		res.ProcessedAt,
		id,
	)
	if err != nil {
		return types.Report{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Report{}, err
	}
	if affected == 0 {
		return types.Report{}, missOrConflict(ctx, r.db, "reports", id)
	}
	return r.Get(ctx, id)
}
