package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
)

const (
	// AttrContentType is the attribute key carrying the payload media type.
	AttrContentType = "content-type"
	// AttrOrderingKey groups messages that must be delivered in order.
	AttrOrderingKey = "ordering-key"

	contentTypeJSON = "application/json"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Attr returns the named attribute, or "" when it is absent.
func (m Message) Attr(key string) string {
	return m.Attributes[key]
}

// Handler processes a message. Return an error to signal a retry/nack on
// backends that redeliver.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with JSON helpers and a close that is safe to repeat.
type MQ struct {
	backend Backend

	closeOnce sync.Once
	closeErr  error
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends raw bytes to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// PublishJSON encodes v and publishes it with a JSON content type. Entries
// in attrs win over the default content type.
func (m *MQ) PublishJSON(ctx context.Context, channel string, v any, attrs map[string]string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	merged := make(map[string]string, len(attrs)+1)
	merged[AttrContentType] = contentTypeJSON
	maps.Copy(merged, attrs)
	return m.backend.Publish(ctx, channel, data, merged)
}

// Subscribe consumes messages from the named channel.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// SubscribeJSON decodes every message on channel into T before calling
// handle. Messages that fail to decode go to malformed and are acknowledged.
func SubscribeJSON[T any](
	ctx context.Context,
	m *MQ,
	channel string,
	handle func(ctx context.Context, v T, msg Message) error,
	malformed func(msg Message, err error),
) error {
	return m.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			if malformed != nil {
				malformed(msg, err)
			}
			return nil
		}
		return handle(ctx, v, msg)
	})
}

// Close closes the underlying backend once; later calls return the first result.
func (m *MQ) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.backend.Close()
	})
	return m.closeErr
}
