package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inkwell-comics/modsvc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectThenSecondDecisionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	comic, rec, err := f.moderation.SubmitComic(ctx, 10, "Night Shift", "a comic")
	require.NoError(t, err)
	require.Equal(t, types.ModerationPending, rec.Status)

	rejected, err := f.moderation.Reject(ctx, rec.ID, 2, "  copyright violation ")
	require.NoError(t, err)
	assert.Equal(t, types.ModerationRejected, rejected.Status)
	assert.Equal(t, "copyright violation", rejected.Note)
	require.NotNil(t, rejected.ReviewerID)
	assert.Equal(t, 2, *rejected.ReviewerID)
	require.NotNil(t, rejected.ProcessedAt)

	stored, ok := f.store.Comic(comic.ID)
	require.True(t, ok)
	assert.False(t, stored.PublicStatus.Visible())

	current, err := f.moderation.Reject(ctx, rec.ID, 3, "again")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, types.ModerationRejected, current.Status)
	assert.Equal(t, "copyright violation", current.Note)

	current, err = f.moderation.Approve(ctx, rec.ID, 3)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, types.ModerationRejected, current.Status)

	stored, _ = f.store.Comic(comic.ID)
	assert.False(t, stored.PublicStatus.Visible())
}

func TestApproveThenHide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	comic, rec, err := f.moderation.SubmitComic(ctx, 10, "Moonlight", "")
	require.NoError(t, err)

	approved, err := f.moderation.Approve(ctx, rec.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, types.ModerationApproved, approved.Status)
	stored, _ := f.store.Comic(comic.ID)
	assert.True(t, stored.PublicStatus.Visible())

	hidden, err := f.moderation.Hide(ctx, rec.ID, 2, "reported by readers")
	require.NoError(t, err)
	assert.Equal(t, types.ModerationHidden, hidden.Status)
	stored, _ = f.store.Comic(comic.ID)
	assert.False(t, stored.PublicStatus.Visible())

	_, err = f.moderation.Hide(ctx, rec.ID, 2, "again")
	assert.ErrorIs(t, err, ErrConflict)

	events := f.publisher.published()
	require.Len(t, events, 2)
	assert.Equal(t, types.DecisionComicApproved, events[0].Kind)
	assert.Equal(t, 10, events[0].UserID)
	assert.Equal(t, types.DecisionComicHidden, events[1].Kind)
	assert.Contains(t, events[1].Message, "reported by readers")
}

func TestHideRequiresApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, pending, err := f.moderation.SubmitComic(ctx, 10, "Pending", "")
	require.NoError(t, err)
	current, err := f.moderation.Hide(ctx, pending.ID, 2, "reason")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, types.ModerationPending, current.Status)

	_, rejected, err := f.moderation.SubmitComic(ctx, 10, "Rejected", "")
	require.NoError(t, err)
	_, err = f.moderation.Reject(ctx, rejected.ID, 2, "no")
	require.NoError(t, err)
	_, err = f.moderation.Hide(ctx, rejected.ID, 2, "reason")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReasonRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, rec, err := f.moderation.SubmitComic(ctx, 10, "Blank", "")
	require.NoError(t, err)

	current, err := f.moderation.Reject(ctx, rec.ID, 2, "   ")
	assert.ErrorIs(t, err, ErrReasonRequired)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, types.ModerationPending, current.Status)
	assert.Empty(t, f.publisher.published())
}

func TestDecisionOnMissingRecord(t *testing.T) {
	f := newFixture(t)
	rec, err := f.moderation.Approve(context.Background(), 99, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, rec.ID)
}

func TestConcurrentDecisionsSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, rec, err := f.moderation.SubmitComic(ctx, 10, "Race", "")
	require.NoError(t, err)

	const reviewers = 8
	var wg sync.WaitGroup
	errs := make([]error, reviewers)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.moderation.Approve(ctx, rec.ID, 100+i)
			} else {
				_, errs[i] = f.moderation.Reject(ctx, rec.ID, 100+i, "no")
			}
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, ErrConflict), "unexpected error %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, f.publisher.published(), 1)
}

func TestDecisionWriteFailureReturnsCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, rec, err := f.moderation.SubmitComic(ctx, 10, "Flaky", "")
	require.NoError(t, err)

	boom := errors.New("db down")
	f.store.Fail("moderation.transition", boom)
	current, err := f.moderation.Approve(ctx, rec.ID, 2)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.ModerationPending, current.Status)
}

func TestPendingQueueOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, late := f.store.Moderation().SeedSubmission(types.Comic{AuthorID: 1, Title: "late", CreatedAt: base.Add(2 * time.Hour)})
	_, early := f.store.Moderation().SeedSubmission(types.Comic{AuthorID: 1, Title: "early", CreatedAt: base})
	_, tieA := f.store.Moderation().SeedSubmission(types.Comic{AuthorID: 1, Title: "tie a", CreatedAt: base.Add(time.Hour)})
	_, tieB := f.store.Moderation().SeedSubmission(types.Comic{AuthorID: 1, Title: "tie b", CreatedAt: base.Add(time.Hour)})

	records, total, err := f.moderation.ListPending(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	ids := make([]int, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []int{early.ID, tieA.ID, tieB.ID, late.ID}, ids)
}

func TestHistoryAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, a, _ := f.moderation.SubmitComic(ctx, 1, "a", "")
	_, b, _ := f.moderation.SubmitComic(ctx, 1, "b", "")
	_, c, _ := f.moderation.SubmitComic(ctx, 1, "c", "")
	_, _, _ = f.moderation.SubmitComic(ctx, 1, "d", "")

	_, err := f.moderation.Approve(ctx, a.ID, 2)
	require.NoError(t, err)
	f.moderation.now = func() time.Time { return fixedNow.AddDate(0, -1, 0) }
	_, err = f.moderation.Reject(ctx, b.ID, 2, "last month")
	require.NoError(t, err)
	f.moderation.now = func() time.Time { return fixedNow.Add(time.Minute) }
	_, err = f.moderation.Approve(ctx, c.ID, 2)
	require.NoError(t, err)
	_, err = f.moderation.Hide(ctx, c.ID, 2, "hidden")
	require.NoError(t, err)

	counts, err := f.moderation.Counts(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, types.ModerationCounts{
		Pending:           1,
		ApprovedThisMonth: 1,
		RejectedThisMonth: 0,
		Hidden:            1,
	}, counts)

	history, total, err := f.moderation.History(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, history, 3)
	assert.Equal(t, c.ID, history[0].ID)
	assert.Equal(t, b.ID, history[2].ID)
}

func TestResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	comic, rec, err := f.moderation.SubmitComic(ctx, 10, "Again", "")
	require.NoError(t, err)

	_, err = f.moderation.Submit(ctx, comic.ID, 10)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.moderation.Reject(ctx, rec.ID, 2, "fix panels")
	require.NoError(t, err)

	_, err = f.moderation.Submit(ctx, comic.ID, 11)
	assert.ErrorIs(t, err, ErrForbidden)

	next, err := f.moderation.Submit(ctx, comic.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, types.ModerationPending, next.Status)
	assert.NotEqual(t, rec.ID, next.ID)
}

func TestSubmitComicRequiresTitle(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.moderation.SubmitComic(context.Background(), 1, "  ", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name     string
		current  types.ModerationStatus
		from, to types.ModerationStatus
		want     error
	}{
		{"approve pending", types.ModerationPending, types.ModerationPending, types.ModerationApproved, nil},
		{"approve approved", types.ModerationApproved, types.ModerationPending, types.ModerationApproved, ErrConflict},
		{"reject hidden", types.ModerationHidden, types.ModerationPending, types.ModerationRejected, ErrConflict},
		{"hide approved", types.ModerationApproved, types.ModerationApproved, types.ModerationHidden, nil},
		{"hide hidden", types.ModerationHidden, types.ModerationApproved, types.ModerationHidden, ErrConflict},
		{"hide pending", types.ModerationPending, types.ModerationApproved, types.ModerationHidden, ErrInvalidTransition},
		{"hide rejected", types.ModerationRejected, types.ModerationApproved, types.ModerationHidden, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTransition(tt.current, tt.from, tt.to)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
