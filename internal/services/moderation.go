package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwell-comics/modsvc/internal/metrics"
	"github.com/inkwell-comics/modsvc/types"
)

// ModerationRepository defines persistence operations for comics and their
// moderation records.
type ModerationRepository interface {
	CreateSubmission(ctx context.Context, comic types.Comic) (types.Comic, types.ModerationRecord, error)
	Reopen(ctx context.Context, comicID int) (types.ModerationRecord, error)
	Get(ctx context.Context, id int) (types.ModerationRecord, error)
	Latest(ctx context.Context, comicID int) (types.ModerationRecord, error)
	GetComic(ctx context.Context, id int) (types.Comic, error)
	ListPending(ctx context.Context, offset, limit int) ([]types.ModerationRecord, int, error)
	ListProcessed(ctx context.Context, offset, limit int) ([]types.ModerationRecord, int, error)
	Transition(ctx context.Context, id int, from, to types.ModerationStatus, reviewerID int, note string, at time.Time) (types.ModerationRecord, error)
	Counts(ctx context.Context, monthStart, monthEnd time.Time) (types.ModerationCounts, error)
}

// DecisionPublisher hands decision events to the message queue. It never
// fails the caller.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, event types.DecisionEvent)
}

type nopPublisher struct{}

func (nopPublisher) PublishDecision(context.Context, types.DecisionEvent) {}

// ModerationService runs the comic review workflow.
type ModerationService struct {
	repo      ModerationRepository
	publisher DecisionPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewModerationService(repo ModerationRepository, publisher DecisionPublisher, logger *slog.Logger) *ModerationService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModerationService{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With("component", "moderation"),
		now:       time.Now,
	}
}

// SubmitComic creates an unpublished comic with a Pending record.
func (s *ModerationService) SubmitComic(ctx context.Context, authorID int, title, description string) (types.Comic, types.ModerationRecord, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return types.Comic{}, types.ModerationRecord{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return s.repo.CreateSubmission(ctx, types.Comic{
		AuthorID:    authorID,
		Title:       title,
		Description: strings.TrimSpace(description),
	})
}

// Submit opens a new review cycle for a Rejected or Hidden comic. Only the
// author may resubmit.
func (s *ModerationService) Submit(ctx context.Context, comicID, requesterID int) (types.ModerationRecord, error) {
	comic, err := s.repo.GetComic(ctx, comicID)
	if err != nil {
		return types.ModerationRecord{}, err
	}
	if comic.AuthorID != requesterID {
		return types.ModerationRecord{}, ErrForbidden
	}

	latest, err := s.repo.Latest(ctx, comicID)
	if err != nil {
		return types.ModerationRecord{}, err
	}
	switch latest.Status {
	case types.ModerationPending:
		return latest, ErrConflict
	case types.ModerationApproved:
		return latest, fmt.Errorf("%w: comic is already published", ErrInvalidTransition)
	}

	rec, err := s.repo.Reopen(ctx, comicID)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return s.current(ctx, latest.ID, latest), err
		}
		return latest, err
	}
	return rec, nil
}

func (s *ModerationService) GetComic(ctx context.Context, id int) (types.Comic, error) {
	return s.repo.GetComic(ctx, id)
}

// Approve publishes a Pending record's comic.
func (s *ModerationService) Approve(ctx context.Context, recordID, reviewerID int) (types.ModerationRecord, error) {
	return s.decide(ctx, recordID, reviewerID, types.ModerationPending, types.ModerationApproved, "")
}

// Reject closes a Pending record. The reason is required.
func (s *ModerationService) Reject(ctx context.Context, recordID, reviewerID int, reason string) (types.ModerationRecord, error) {
	return s.decide(ctx, recordID, reviewerID, types.ModerationPending, types.ModerationRejected, reason)
}

// Hide unpublishes an Approved record's comic. The reason is required.
func (s *ModerationService) Hide(ctx context.Context, recordID, reviewerID int, reason string) (types.ModerationRecord, error) {
	return s.decide(ctx, recordID, reviewerID, types.ModerationApproved, types.ModerationHidden, reason)
}

// decide applies from -> to. Except for ErrNotFound, the current record is
// returned with any error.
func (s *ModerationService) decide(
	ctx context.Context,
	recordID, reviewerID int,
	from, to types.ModerationStatus,
	note string,
) (types.ModerationRecord, error) {
	rec, err := s.repo.Get(ctx, recordID)
	if err != nil {
		return types.ModerationRecord{}, err
	}

	if err := checkTransition(rec.Status, from, to); err != nil {
		metrics.ModerationDecisions.WithLabelValues(to.String(), outcome(err)).Inc()
		return rec, err
	}

	note = strings.TrimSpace(note)
	if to.RequiresNote() && note == "" {
		metrics.ModerationDecisions.WithLabelValues(to.String(), outcome(ErrReasonRequired)).Inc()
		return rec, ErrReasonRequired
	}

	updated, err := s.repo.Transition(ctx, recordID, from, to, reviewerID, note, s.now())
	if err != nil {
		metrics.ModerationDecisions.WithLabelValues(to.String(), outcome(err)).Inc()
		if errors.Is(err, ErrConflict) {
			s.logger.Info("moderation decision lost race",
				"record_id", recordID,
				"reviewer_id", reviewerID,
				"status", to.String(),
			)
		} else {
			s.logger.Error("failed to apply moderation decision", "record_id", recordID, "err", err)
		}
		return s.current(ctx, recordID, rec), err
	}

	metrics.ModerationDecisions.WithLabelValues(to.String(), "ok").Inc()
	s.logger.Info("moderation decision applied",
		"record_id", recordID,
		"comic_id", updated.ComicID,
		"reviewer_id", reviewerID,
		"status", to.String(),
	)
	s.publisher.PublishDecision(ctx, decisionEvent(updated))
	return updated, nil
}

// checkTransition distinguishes a record another reviewer already moved
// (ErrConflict) from an edge the graph does not have (ErrInvalidTransition).
func checkTransition(current, from, to types.ModerationStatus) error {
	if current == from {
		return nil
	}
	if current == to || from == types.ModerationPending {
		return ErrConflict
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
}

// current reloads a record after a failed write, falling back to the copy
// read before the attempt.
func (s *ModerationService) current(ctx context.Context, id int, fallback types.ModerationRecord) types.ModerationRecord {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return fallback
	}
	return rec
}

func decisionEvent(rec types.ModerationRecord) types.DecisionEvent {
	event := types.DecisionEvent{
		UserID: rec.ComicAuthorID,
		Link:   fmt.Sprintf("/comics/%d", rec.ComicID),
	}
	switch rec.Status {
	case types.ModerationApproved:
		event.Kind = types.DecisionComicApproved
		event.Title = "Comic approved"
		event.Message = fmt.Sprintf("Your comic %q has been approved and is now public.", rec.ComicTitle)
	case types.ModerationRejected:
		event.Kind = types.DecisionComicRejected
		event.Title = "Comic rejected"
		event.Message = fmt.Sprintf("Your comic %q was rejected: %s", rec.ComicTitle, rec.Note)
	case types.ModerationHidden:
		event.Kind = types.DecisionComicHidden
		event.Title = "Comic hidden"
		event.Message = fmt.Sprintf("Your comic %q was hidden: %s", rec.ComicTitle, rec.Note)
	}
	return event
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid"
	default:
		return "error"
	}
}

func (s *ModerationService) Get(ctx context.Context, id int) (types.ModerationRecord, error) {
	return s.repo.Get(ctx, id)
}

// ListPending returns the review queue, oldest comic first.
func (s *ModerationService) ListPending(ctx context.Context, offset, limit int) ([]types.ModerationRecord, int, error) {
	return s.repo.ListPending(ctx, offset, limit)
}

// History returns decided records, most recent decision first.
func (s *ModerationService) History(ctx context.Context, offset, limit int) ([]types.ModerationRecord, int, error) {
	return s.repo.ListProcessed(ctx, offset, limit)
}

// Counts summarizes the backlog and the decisions made in now's calendar month.
func (s *ModerationService) Counts(ctx context.Context, now time.Time) (types.ModerationCounts, error) {
	start, end := monthBounds(now)
	return s.repo.Counts(ctx, start, end)
}

func monthBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 1, 0)
}
