package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwell-comics/modsvc/internal/metrics"
	"github.com/inkwell-comics/modsvc/types"
)

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 5 * time.Second
)

// StatusWriter persists presence. SetPresence must leave banned accounts
// untouched and report whether the row changed.
type StatusWriter interface {
	SetPresence(ctx context.Context, userID int, status types.AccountStatus) (bool, error)
}

// TrackerOptions tunes the persisted-write worker.
type TrackerOptions struct {
	QueueSize    int
	WriteTimeout time.Duration
}

type transition struct {
	userID int
	status types.AccountStatus
}

// Tracker turns connection lifecycle events into presence transitions.
// Persisted writes and admin broadcasts run on a single worker so that
// transitions for one user are applied in the order they were decided.
// Admins only hear about transitions the store accepted.
// Neither a slow store nor a failed write ever blocks the caller.
type Tracker struct {
	registry     *Registry
	writer       StatusWriter
	broadcaster  Broadcaster
	logger       *slog.Logger
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan transition
	done   chan struct{}
}

func NewTracker(registry *Registry, writer StatusWriter, broadcaster Broadcaster, logger *slog.Logger, opts TrackerOptions) *Tracker {
	if opts.QueueSize < 1 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		registry:     registry,
		writer:       writer,
		broadcaster:  broadcaster,
		logger:       logger.With("component", "presence"),
		writeTimeout: opts.WriteTimeout,
		queue:        make(chan transition, opts.QueueSize),
		done:         make(chan struct{}),
	}
	go t.run()
	return t
}

// Registry exposes the underlying connection registry.
func (t *Tracker) Registry() *Registry {
	return t.registry
}

// Connect registers a connection and reports whether it was the user's
// first.
func (t *Tracker) Connect(userID int, connID string) bool {
	t.mu.Lock()
	first := t.registry.RegisterConnection(userID, connID)
	if first {
		t.enqueueLocked(transition{userID: userID, status: types.StatusOnline})
	}
	t.mu.Unlock()

	t.updateGauges()
	return first
}

// Disconnect deregisters a connection and reports whether it was the user's
// last. Unknown connections are ignored.
func (t *Tracker) Disconnect(userID int, connID string) bool {
	t.mu.Lock()
	last := t.registry.DeregisterConnection(userID, connID)
	if last {
		t.enqueueLocked(transition{userID: userID, status: types.StatusOffline})
	}
	t.mu.Unlock()

	t.updateGauges()
	return last
}

func (t *Tracker) enqueueLocked(tr transition) {
	if t.closed {
		t.logger.Debug("tracker closed, presence transition not persisted", "user_id", tr.userID, "status", tr.status)
		return
	}
	select {
	case t.queue <- tr:
	default:
		metrics.PresenceEventsDropped.Inc()
		t.logger.Warn("presence queue full, dropping transition", "user_id", tr.userID, "status", tr.status)
	}
}

// Close stops accepting transitions and waits for queued ones to finish.
func (t *Tracker) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	<-t.done
}

func (t *Tracker) run() {
	defer close(t.done)
	for tr := range t.queue {
		t.apply(tr)
	}
}

func (t *Tracker) apply(tr transition) {
	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
	applied, err := t.writer.SetPresence(ctx, tr.userID, tr.status)
	cancel()

	if err != nil {
		// Without the write the ban guard was never checked, so admins are
		// not told either. The registry still holds the live truth.
		metrics.PresenceWriteFailures.Inc()
		t.logger.Warn("failed to persist presence", "user_id", tr.userID, "status", tr.status, "err", err)
		return
	}
	if !applied {
		t.logger.Debug("presence write skipped", "user_id", tr.userID, "status", tr.status)
		return
	}

	event := EventUserOnline
	if tr.status == types.StatusOffline {
		event = EventUserOffline
	}
	t.broadcaster.Notify(Admins(), event, UserPayload{UserID: tr.userID})
}

func (t *Tracker) updateGauges() {
	users, conns := t.registry.Stats()
	metrics.OnlineUsers.Set(float64(users))
	metrics.OpenConnections.Set(float64(conns))
}

// Resetter clears stale Online rows left by a previous process.
type Resetter interface {
	ResetOnline(ctx context.Context) (int64, error)
}

// Sweep sets every persisted Online account to Offline. It must run before
// the process accepts connections.
func Sweep(ctx context.Context, resetter Resetter, logger *slog.Logger) (int64, error) {
	n, err := resetter.ResetOnline(ctx)
	if err != nil {
		return 0, err
	}
	if logger != nil {
		logger.Info("reset stale online accounts", "count", n)
	}
	return n, nil
}
