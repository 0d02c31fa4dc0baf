package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwell-comics/modsvc/internal/metrics"
	"github.com/inkwell-comics/modsvc/internal/rbac"
	"github.com/inkwell-comics/modsvc/internal/store"
	"github.com/inkwell-comics/modsvc/types"
)

// ReportRepository defines persistence operations for conduct reports.
type ReportRepository interface {
	Get(ctx context.Context, id int) (types.Report, error)
	Create(ctx context.Context, report types.Report) (types.Report, error)
	HasPending(ctx context.Context, reporterID, targetID int) (bool, error)
	ListPendingByTargetRole(ctx context.Context, role types.Role, offset, limit int) ([]types.Report, int, error)
	CountPendingByTargetRole(ctx context.Context, role types.Role) (int, error)
	Resolve(ctx context.Context, id int, res types.ReportResolution) (types.Report, error)
}

// UserLookup loads accounts by id.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// ReportService files conduct reports and applies their outcome.
type ReportService struct {
	reports   ReportRepository
	users     UserLookup
	accounts  *AdminAccountService
	publisher DecisionPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewReportService(
	reports ReportRepository,
	users UserLookup,
	accounts *AdminAccountService,
	publisher DecisionPublisher,
	logger *slog.Logger,
) *ReportService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		reports:   reports,
		users:     users,
		accounts:  accounts,
		publisher: publisher,
		logger:    logger.With("component", "reports"),
		now:       time.Now,
	}
}

// CreateReport files a Pending report against targetID.
func (s *ReportService) CreateReport(ctx context.Context, reporterID, targetID int, reason, description string) (types.Report, error) {
	if reporterID == targetID {
		return types.Report{}, ErrSelfReport
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return types.Report{}, ErrReasonRequired
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return types.Report{}, err
	}
	if _, ok := rbac.ReportPermission(target.Role); !ok {
		return types.Report{}, fmt.Errorf("%w: %s accounts cannot be reported", ErrForbidden, target.Role)
	}

	pending, err := s.reports.HasPending(ctx, reporterID, targetID)
	if err != nil {
		return types.Report{}, err
	}
	if pending {
		return types.Report{}, ErrDuplicateReport
	}

	report, err := s.reports.Create(ctx, types.Report{
		ReporterID:  reporterID,
		TargetID:    targetID,
		Reason:      reason,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Report{}, ErrDuplicateReport
		}
		return types.Report{}, err
	}
	s.logger.Info("report filed", "report_id", report.ID, "reporter_id", reporterID, "target_id", targetID)
	return report, nil
}

func (s *ReportService) Get(ctx context.Context, id int) (types.Report, error) {
	return s.reports.Get(ctx, id)
}

// ListUserReports is the moderator queue: Pending reports against users.
func (s *ReportService) ListUserReports(ctx context.Context, offset, limit int) ([]types.Report, int, error) {
	return s.reports.ListPendingByTargetRole(ctx, types.RoleUser, offset, limit)
}

// ListModeratorReports is the admin queue: Pending reports against moderators.
func (s *ReportService) ListModeratorReports(ctx context.Context, offset, limit int) ([]types.Report, int, error) {
	return s.reports.ListPendingByTargetRole(ctx, types.RoleModerator, offset, limit)
}

func (s *ReportService) CountUserReports(ctx context.Context) (int, error) {
	return s.reports.CountPendingByTargetRole(ctx, types.RoleUser)
}

func (s *ReportService) CountModeratorReports(ctx context.Context) (int, error) {
	return s.reports.CountPendingByTargetRole(ctx, types.RoleModerator)
}

// Queue returns the queue handled by role.
func (s *ReportService) Queue(ctx context.Context, role types.Role, offset, limit int) ([]types.Report, int, error) {
	targetRole, ok := rbac.ReportQueueRole(role)
	if !ok {
		return nil, 0, ErrForbidden
	}
	return s.reports.ListPendingByTargetRole(ctx, targetRole, offset, limit)
}

// ProcessReport resolves a Pending report and applies action to its target.
func (s *ReportService) ProcessReport(
	ctx context.Context,
	reportID, processorID int,
	actingAs types.Role,
	action types.EnforcementAction,
	note string,
) (types.Report, error) {
	report, err := s.claimable(ctx, reportID, actingAs)
	if err != nil {
		return report, err
	}
	if !action.Valid() {
		return report, fmt.Errorf("%w: unknown action", ErrInvalidTransition)
	}
	if action == types.ActionRemoveRole && report.TargetRole != types.RoleModerator {
		return report, fmt.Errorf("%w: target is not a moderator", ErrInvalidTransition)
	}

	note = strings.TrimSpace(note)
	resolved, err := s.reports.Resolve(ctx, reportID, types.ReportResolution{
		Status:      types.ReportResolved,
		Action:      action,
		Note:        note,
		ProcessedBy: processorID,
		ProcessedAt: s.now(),
	})
	if err != nil {
		metrics.ReportActions.WithLabelValues(action.String(), outcome(err)).Inc()
		return s.reload(ctx, report), err
	}

	if err := s.enforce(ctx, resolved, processorID, action, note); err != nil {
		metrics.ReportActions.WithLabelValues(action.String(), "error").Inc()
		s.logger.Error("failed to enforce report outcome",
			"report_id", reportID,
			"target_id", resolved.TargetID,
			"action", action.String(),
			"err", err,
		)
		return resolved, fmt.Errorf("applying %s: %w", action, err)
	}

	metrics.ReportActions.WithLabelValues(action.String(), "ok").Inc()
	s.logger.Info("report resolved",
		"report_id", reportID,
		"processor_id", processorID,
		"target_id", resolved.TargetID,
		"action", action.String(),
	)
	s.publisher.PublishDecision(ctx, types.DecisionEvent{
		Kind:    types.DecisionReportResolved,
		UserID:  resolved.ReporterID,
		Title:   "Report resolved",
		Message: fmt.Sprintf("Your report against %s has been resolved.", resolved.TargetName),
	})
	return resolved, nil
}

func (s *ReportService) enforce(ctx context.Context, report types.Report, processorID int, action types.EnforcementAction, note string) error {
	actor := &processorID
	switch action {
	case types.ActionWarning:
		s.accounts.RecordAudit(ctx, report.TargetID, actor, fmt.Sprintf("Warning: %s - %s", report.Reason, note))
		s.publisher.PublishDecision(ctx, types.DecisionEvent{
			Kind:    types.DecisionWarning,
			UserID:  report.TargetID,
			Title:   "Account warning",
			Message: warningMessage(report.Reason, note),
		})
	case types.ActionBan:
		action := "Banned: " + report.Reason
		_, err := s.accounts.BanAccount(ctx, actor, report.TargetID, action)
		if errors.Is(err, ErrConflict) {
			// Already banned; the resolution is still audited.
			s.accounts.RecordAudit(ctx, report.TargetID, actor, action)
			return nil
		}
		if err != nil {
			return err
		}
	case types.ActionRemoveRole:
		if _, err := s.accounts.DemoteModerator(ctx, actor, report.TargetID, "Moderator role removed: "+report.Reason); err != nil {
			return err
		}
	case types.ActionDismiss:
	}
	return nil
}

func warningMessage(reason, note string) string {
	if note == "" {
		return "You received a warning: " + reason
	}
	return fmt.Sprintf("You received a warning: %s - %s", reason, note)
}

// RejectReport closes a Pending report without consequence.
func (s *ReportService) RejectReport(ctx context.Context, reportID, processorID int, actingAs types.Role, note string) (types.Report, error) {
	report, err := s.claimable(ctx, reportID, actingAs)
	if err != nil {
		return report, err
	}

	rejected, err := s.reports.Resolve(ctx, reportID, types.ReportResolution{
		Status:      types.ReportRejected,
		Action:      types.ActionDismiss,
		Note:        strings.TrimSpace(note),
		ProcessedBy: processorID,
		ProcessedAt: s.now(),
	})
	if err != nil {
		return s.reload(ctx, report), err
	}

	s.logger.Info("report rejected", "report_id", reportID, "processor_id", processorID)
	s.publisher.PublishDecision(ctx, types.DecisionEvent{
		Kind:    types.DecisionReportRejected,
		UserID:  rejected.ReporterID,
		Title:   "Report reviewed",
		Message: fmt.Sprintf("Your report against %s was reviewed and no action was taken.", rejected.TargetName),
	})
	return rejected, nil
}

// claimable loads a report and checks that it is Pending and that actingAs
// handles reports against its target.
func (s *ReportService) claimable(ctx context.Context, reportID int, actingAs types.Role) (types.Report, error) {
	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return types.Report{}, err
	}
	perm, ok := rbac.ReportPermission(report.TargetRole)
	if !ok || !rbac.HasPermission(actingAs, perm) {
		return report, ErrForbidden
	}
	if report.Status != types.ReportPending {
		return report, ErrConflict
	}
	return report, nil
}

func (s *ReportService) reload(ctx context.Context, fallback types.Report) types.Report {
	report, err := s.reports.Get(ctx, fallback.ID)
	if err != nil {
		return fallback
	}
	return report
}
