package presence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/inkwell-comics/modsvc/internal/logging"
	"github.com/inkwell-comics/modsvc/internal/store/memory"
	"github.com/inkwell-comics/modsvc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	audience Audience
	event    string
	payload  any
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sent
}

func (b *recordingBroadcaster) Notify(audience Audience, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sent{audience, event, payload})
}

func (b *recordingBroadcaster) events() []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sent(nil), b.sent...)
}

// writeLog wraps the memory store and records every presence write.
type writeLog struct {
	mu     sync.Mutex
	inner  StatusWriter
	writes []types.AccountStatus
}

func (w *writeLog) SetPresence(ctx context.Context, id int, status types.AccountStatus) (bool, error) {
	w.mu.Lock()
	w.writes = append(w.writes, status)
	w.mu.Unlock()
	return w.inner.SetPresence(ctx, id, status)
}

func newTrackerFixture(t *testing.T) (*Tracker, *memory.Store, *writeLog, *recordingBroadcaster) {
	t.Helper()
	st := memory.New()
	wl := &writeLog{inner: st.Users()}
	bc := &recordingBroadcaster{}
	tr := NewTracker(NewRegistry(), wl, bc, logging.Discard(), TrackerOptions{})
	return tr, st, wl, bc
}

func TestTrackerThreeTabs(t *testing.T) {
	tr, st, wl, bc := newTrackerFixture(t)
	user := st.SeedUser(types.User{Username: "u", Role: types.RoleUser, Status: types.StatusOffline})

	assert.True(t, tr.Connect(user.ID, "tab-1"))
	assert.False(t, tr.Connect(user.ID, "tab-2"))
	assert.False(t, tr.Connect(user.ID, "tab-3"))
	assert.False(t, tr.Disconnect(user.ID, "tab-1"))
	assert.False(t, tr.Disconnect(user.ID, "tab-2"))
	assert.True(t, tr.Disconnect(user.ID, "tab-3"))
	tr.Close()

	assert.Equal(t, []types.AccountStatus{types.StatusOnline, types.StatusOffline}, wl.writes)

	events := bc.events()
	require.Len(t, events, 2)
	assert.Equal(t, Admins(), events[0].audience)
	assert.Equal(t, EventUserOnline, events[0].event)
	assert.Equal(t, UserPayload{UserID: user.ID}, events[0].payload)
	assert.Equal(t, EventUserOffline, events[1].event)

	got, _ := st.User(user.ID)
	assert.Equal(t, types.StatusOffline, got.Status)
}

func TestTrackerOnlineWhileConnected(t *testing.T) {
	tr, st, _, _ := newTrackerFixture(t)
	user := st.SeedUser(types.User{Username: "u", Status: types.StatusOffline})

	tr.Connect(user.ID, "a")
	tr.Close()

	got, _ := st.User(user.ID)
	assert.Equal(t, types.StatusOnline, got.Status)
	assert.True(t, tr.Registry().IsOnline(user.ID))
}

func TestTrackerNeverTouchesBannedAccount(t *testing.T) {
	tr, st, _, bc := newTrackerFixture(t)
	user := st.SeedUser(types.User{Username: "b", Status: types.StatusBanned})

	tr.Connect(user.ID, "a")
	tr.Connect(user.ID, "b")
	tr.Disconnect(user.ID, "a")
	tr.Disconnect(user.ID, "b")
	tr.Close()

	got, _ := st.User(user.ID)
	assert.Equal(t, types.StatusBanned, got.Status)
	assert.Empty(t, bc.events())
}

func TestTrackerAbsorbsWriteFailures(t *testing.T) {
	tr, st, _, bc := newTrackerFixture(t)
	user := st.SeedUser(types.User{Username: "u"})
	st.Fail("users.setpresence", errors.New("connection reset"))

	assert.True(t, tr.Connect(user.ID, "a"))
	assert.True(t, tr.Disconnect(user.ID, "a"))
	tr.Close()

	assert.False(t, tr.Registry().IsOnline(user.ID))
	assert.Empty(t, bc.events())
}

func TestTrackerWriteFailureHidesBannedAccount(t *testing.T) {
	tr, st, _, bc := newTrackerFixture(t)
	user := st.SeedUser(types.User{Username: "b", Status: types.StatusBanned})
	st.Fail("users.setpresence", errors.New("connection reset"))

	assert.True(t, tr.Connect(user.ID, "a"))
	tr.Close()

	assert.True(t, tr.Registry().IsOnline(user.ID))
	assert.Empty(t, bc.events())
	got, _ := st.User(user.ID)
	assert.Equal(t, types.StatusBanned, got.Status)
}

func TestTrackerAfterCloseStillTracksConnections(t *testing.T) {
	tr, st, wl, _ := newTrackerFixture(t)
	user := st.SeedUser(types.User{Username: "u"})
	tr.Close()
	tr.Close()

	assert.True(t, tr.Connect(user.ID, "late"))
	assert.True(t, tr.Registry().IsOnline(user.ID))
	assert.Empty(t, wl.writes)
}

func TestSweepResetsOnlineAccounts(t *testing.T) {
	st := memory.New()
	for i := 0; i < 5; i++ {
		st.SeedUser(types.User{Status: types.StatusOnline})
	}
	banned := st.SeedUser(types.User{Status: types.StatusBanned})
	offline := st.SeedUser(types.User{Status: types.StatusOffline})

	n, err := Sweep(context.Background(), st.Users(), logging.Discard())
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	for id := 1; id <= 5; id++ {
		got, _ := st.User(id)
		assert.Equal(t, types.StatusOffline, got.Status)
	}
	got, _ := st.User(banned.ID)
	assert.Equal(t, types.StatusBanned, got.Status)
	got, _ = st.User(offline.ID)
	assert.Equal(t, types.StatusOffline, got.Status)
}

func TestSweepPropagatesStoreError(t *testing.T) {
	st := memory.New()
	st.Fail("users.resetonline", errors.New("db down"))
	_, err := Sweep(context.Background(), st.Users(), nil)
	assert.Error(t, err)
}
