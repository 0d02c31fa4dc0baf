package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/inkwell-comics/modsvc/internal/logging"
	"github.com/inkwell-comics/modsvc/internal/presence"
	"github.com/inkwell-comics/modsvc/internal/store/memory"
	"github.com/inkwell-comics/modsvc/types"
)

type sentEvent struct {
	audience presence.Audience
	event    string
	payload  any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	sent   []sentEvent
	closed []int
}

func (b *recordingBroadcaster) CloseUser(userID int, _ string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, userID)
	return 1
}

func (b *recordingBroadcaster) closedUsers() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.closed...)
}

func (b *recordingBroadcaster) Notify(audience presence.Audience, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentEvent{audience: audience, event: event, payload: payload})
}

func (b *recordingBroadcaster) events() []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentEvent(nil), b.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.DecisionEvent
}

func (p *recordingPublisher) PublishDecision(_ context.Context, event types.DecisionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) published() []types.DecisionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.DecisionEvent(nil), p.events...)
}

var fixedNow = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store       *memory.Store
	broadcaster *recordingBroadcaster
	publisher   *recordingPublisher

	moderation    *ModerationService
	admin         *AdminAccountService
	reports       *ReportService
	notifications *NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewWithClock(func() time.Time { return fixedNow })
	b := &recordingBroadcaster{}
	p := &recordingPublisher{}
	logger := logging.Discard()

	admin := NewAdminAccountService(st.Users(), st.Audit(), b, logger)
	f := &fixture{
		store:         st,
		broadcaster:   b,
		publisher:     p,
		moderation:    NewModerationService(st.Moderation(), p, logger),
		admin:         admin,
		reports:       NewReportService(st.Reports(), st.Users(), admin, p, logger),
		notifications: NewNotificationService(st.Notifications(), st.Users(), b, logger),
	}
	f.moderation.now = func() time.Time { return fixedNow }
	f.reports.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) seedUser(id int, username string, role types.Role) types.User {
	return f.store.SeedUser(types.User{
		ID:       id,
		Username: username,
		Email:    username + "@example.com",
		Name:     username,
		Role:     role,
		Status:   types.StatusOffline,
	})
}
