package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/inkwell-comics/modsvc/internal/logging"
	"github.com/inkwell-comics/modsvc/internal/presence"
	"github.com/inkwell-comics/modsvc/internal/services"
	"github.com/inkwell-comics/modsvc/internal/store/memory"
	"github.com/inkwell-comics/modsvc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanDropsAccountFromPresence(t *testing.T) {
	st := memory.New()
	st.SeedUser(types.User{ID: 1, Username: "root", Role: types.RoleAdmin, Status: types.StatusOffline})
	st.SeedUser(types.User{ID: 5, Username: "mod", Role: types.RoleModerator, Status: types.StatusOffline})

	logger := logging.Discard()
	hub := NewHub(logger)
	registry := presence.NewRegistry()
	tracker := presence.NewTracker(registry, st.Users(), hub, logger, presence.TrackerOptions{})
	hub.Observe(tracker)
	base := serveHub(t, hub)
	admin := services.NewAdminAccountService(st.Users(), st.Audit(), hub, logger)

	dial(t, base, 5, "moderator")
	dial(t, base, 5, "moderator")
	require.Eventually(t, func() bool { return registry.Connections(5) == 2 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	_, err := admin.BanModerator(ctx, 1, 5)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !registry.IsOnline(5) }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, registry.OnlineUsers())
	assert.Equal(t, 0, hub.Count())

	unbanned, err := admin.UnbanModerator(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOffline, unbanned.Status)
	assert.False(t, registry.IsOnline(5))

	hub.Close()
	tracker.Close()
	got, _ := st.User(5)
	assert.Equal(t, types.StatusOffline, got.Status)
}
