package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/inkwell-comics/modsvc/internal/logging"
	"github.com/inkwell-comics/modsvc/internal/presence"
	"github.com/inkwell-comics/modsvc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observerLog struct {
	mu          sync.Mutex
	connects    map[int]int
	disconnects map[int]int
}

func newObserverLog() *observerLog {
	return &observerLog{connects: map[int]int{}, disconnects: map[int]int{}}
}

func (o *observerLog) Connect(userID int, _ string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connects[userID]++
	return true
}

func (o *observerLog) Disconnect(userID int, _ string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disconnects[userID]++
	return true
}

func (o *observerLog) counts(userID int) (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connects[userID], o.disconnects[userID]
}

func newHubServer(t *testing.T) (*Hub, *observerLog, string) {
	t.Helper()
	hub := NewHub(logging.Discard())
	obs := newObserverLog()
	hub.Observe(obs)
	return hub, obs, serveHub(t, hub)
}

// serveHub exposes hub on a test server. The identity comes from the query.
func serveHub(t *testing.T, hub *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.URL.Query().Get("user"))
		role, _ := types.ParseRole(r.URL.Query().Get("role"))
		_ = hub.Serve(w, r, Identity{UserID: id, Role: role})
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, base string, userID int, role string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+"?user="+strconv.Itoa(userID)+"&role="+role, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubDeliversByAudience(t *testing.T) {
	hub, _, base := newHubServer(t)
	admin := dial(t, base, 1, "admin")
	user := dial(t, base, 2, "user")
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	hub.Notify(presence.Admins(), presence.EventUserOnline, presence.UserPayload{UserID: 7})
	hub.Notify(presence.User(2), presence.EventForceLogout, nil)

	msg := readMessage(t, admin)
	assert.Equal(t, presence.EventUserOnline, msg.Event)
	payload, ok := msg.Payload.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 7, payload["userId"])

	msg = readMessage(t, user)
	assert.Equal(t, presence.EventForceLogout, msg.Event)

	hub.Notify(presence.All(), presence.EventUserStatusChanged, presence.StatusPayload{UserID: 3, Status: types.StatusBanned.String()})
	assert.Equal(t, presence.EventUserStatusChanged, readMessage(t, admin).Event)
	assert.Equal(t, presence.EventUserStatusChanged, readMessage(t, user).Event)
}

func TestHubReportsConnectAndDisconnect(t *testing.T) {
	hub, obs, base := newHubServer(t)
	conn := dial(t, base, 5, "user")
	require.Eventually(t, func() bool { c, _ := obs.counts(5); return c == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { _, d := obs.counts(5); return d == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Count())
}

func TestHubNotifyWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	assert.NotPanics(t, func() {
		hub.Notify(presence.All(), presence.EventUserOffline, presence.UserPayload{UserID: 1})
	})
}

func TestHubCloseUserFlushesThenCloses(t *testing.T) {
	hub, obs, base := newHubServer(t)
	tab1 := dial(t, base, 5, "moderator")
	tab2 := dial(t, base, 5, "moderator")
	other := dial(t, base, 6, "user")
	require.Eventually(t, func() bool { return hub.Count() == 3 }, time.Second, 10*time.Millisecond)

	hub.Notify(presence.User(5), presence.EventForceLogout, nil)
	assert.Equal(t, 2, hub.CloseUser(5, "account banned"))

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		assert.Equal(t, presence.EventForceLogout, readMessage(t, conn).Event)
		_, _, err := conn.ReadMessage()
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
		assert.Equal(t, "account banned", closeErr.Text)
	}

	require.Eventually(t, func() bool { _, d := obs.counts(5); return d == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.Count())

	hub.Notify(presence.User(6), presence.EventReceiveNotification, nil)
	assert.Equal(t, presence.EventReceiveNotification, readMessage(t, other).Event)
	assert.Equal(t, 0, hub.CloseUser(42, "gone"))
}

func TestHubCloseWaitsForDisconnects(t *testing.T) {
	hub, obs, base := newHubServer(t)
	dial(t, base, 1, "user")
	dial(t, base, 2, "user")
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	hub.Close()

	_, d1 := obs.counts(1)
	_, d2 := obs.counts(2)
	assert.Equal(t, 1, d1)
	assert.Equal(t, 1, d2)
	assert.Equal(t, 0, hub.Count())

	_, resp, err := websocket.DefaultDialer.Dial(base+"?user=3&role=user", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
}
