package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkwell-comics/modsvc/config"
	"github.com/inkwell-comics/modsvc/internal/logging"
	"github.com/inkwell-comics/modsvc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	published int
	closed    int
	attrs     map[string]string
}

func (f *failingBackend) Publish(_ context.Context, _ string, _ []byte, attrs map[string]string) (string, error) {
	f.published++
	f.attrs = attrs
	return "", errors.New("broker unavailable")
}

func (f *failingBackend) Subscribe(context.Context, string, Handler) error { return nil }

func (f *failingBackend) Close() error {
	f.closed++
	return nil
}

func TestLocalBackendDeliversDecision(t *testing.T) {
	backend := NewLocalBackend(4)
	t.Cleanup(func() { _ = backend.Close() })
	bus := New(backend)

	pub := NewDecisionPublisher(bus, "moderation.decisions", logging.Discard())
	event := types.DecisionEvent{Kind: types.DecisionComicApproved, UserID: 9, Title: "Comic approved"}
	pub.PublishDecision(context.Background(), event)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan types.DecisionEvent, 1)
	go func() {
		_ = SubscribeDecisions(ctx, bus, "moderation.decisions", logging.Discard(),
			func(_ context.Context, e types.DecisionEvent) error {
				got <- e
				return nil
			})
	}()

	select {
	case e := <-got:
		assert.Equal(t, event, e)
	case <-ctx.Done():
		t.Fatal("decision event not delivered")
	}
}

func TestLocalBackendBufferFull(t *testing.T) {
	backend := NewLocalBackend(1)
	ctx := context.Background()

	_, err := backend.Publish(ctx, "c", []byte("a"), nil)
	require.NoError(t, err)
	_, err = backend.Publish(ctx, "c", []byte("b"), nil)
	assert.ErrorIs(t, err, ErrBufferFull)
}

func TestLocalBackendClosed(t *testing.T) {
	backend := NewLocalBackend(1)
	require.NoError(t, backend.Close())
	require.NoError(t, backend.Close())

	_, err := backend.Publish(context.Background(), "c", nil, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscribeStopsOnClose(t *testing.T) {
	backend := NewLocalBackend(1)
	done := make(chan error, 1)
	go func() {
		done <- backend.Subscribe(context.Background(), "c", func(context.Context, Message) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, backend.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestPublishDecisionSwallowsBrokerErrors(t *testing.T) {
	backend := &failingBackend{}
	pub := NewDecisionPublisher(New(backend), "d", logging.Discard())

	assert.NotPanics(t, func() {
		pub.PublishDecision(context.Background(), types.DecisionEvent{Kind: types.DecisionWarning, UserID: 1})
	})
	assert.Equal(t, 1, backend.published)
}

func TestNewBackend(t *testing.T) {
	backend, err := NewBackend(context.Background(), config.MQConfig{Backend: "local", LocalBuffer: 2})
	require.NoError(t, err)
	assert.IsType(t, &LocalBackend{}, backend)

	_, err = NewBackend(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)

	_, err = NewBackend(context.Background(), config.MQConfig{Backend: "rabbitmq"})
	assert.Error(t, err)
}

func TestPublishJSONSetsContentType(t *testing.T) {
	backend := &failingBackend{}
	bus := New(backend)

	_, err := bus.PublishJSON(context.Background(), "d", map[string]int{"a": 1}, map[string]string{"kind": "x"})
	require.Error(t, err)
	assert.Equal(t, "application/json", backend.attrs[AttrContentType])
	assert.Equal(t, "x", backend.attrs["kind"])

	_, err = bus.PublishJSON(context.Background(), "d", make(chan int), nil)
	assert.ErrorContains(t, err, "encode payload")
	assert.Equal(t, 1, backend.published)
}

func TestCloseOnce(t *testing.T) {
	backend := &failingBackend{}
	bus := New(backend)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.Equal(t, 1, backend.closed)
}

func TestSubscribeDecisionsSkipsMalformed(t *testing.T) {
	backend := NewLocalBackend(4)
	t.Cleanup(func() { _ = backend.Close() })
	bus := New(backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := bus.Publish(ctx, "d", []byte("{not json"), nil)
	require.NoError(t, err)
	_, err = bus.PublishJSON(ctx, "d", types.DecisionEvent{Kind: types.DecisionWarning, UserID: 4}, nil)
	require.NoError(t, err)

	got := make(chan types.DecisionEvent, 2)
	go func() {
		_ = SubscribeDecisions(ctx, bus, "d", logging.Discard(), func(_ context.Context, e types.DecisionEvent) error {
			got <- e
			return nil
		})
	}()

	select {
	case e := <-got:
		assert.Equal(t, 4, e.UserID)
	case <-ctx.Done():
		t.Fatal("valid event after malformed one was not delivered")
	}
}
