package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrBufferFull is returned by LocalBackend.Publish when a channel's buffer
// has no room left.
var ErrBufferFull = errors.New("mq: local buffer full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("mq: backend closed")

// LocalBackend delivers messages in process through bounded channels. A
// message is handed to one subscriber at most once; handler errors drop it.
type LocalBackend struct {
	buffer int

	mu       sync.Mutex
	channels map[string]chan Message
	closed   bool
	done     chan struct{}
}

func NewLocalBackend(buffer int) *LocalBackend {
	if buffer < 1 {
		buffer = 256
	}
	return &LocalBackend{
		buffer:   buffer,
		channels: make(map[string]chan Message),
		done:     make(chan struct{}),
	}
}

func (l *LocalBackend) queue(channel string) (chan Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	ch, ok := l.channels[channel]
	if !ok {
		ch = make(chan Message, l.buffer)
		l.channels[channel] = ch
	}
	return ch, nil
}

// Publish enqueues without blocking.
func (l *LocalBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("local channel is required")
	}
	ch, err := l.queue(channel)
	if err != nil {
		return "", err
	}

	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	select {
	case ch <- msg:
		return msg.ID, nil
	default:
		return "", ErrBufferFull
	}
}

// Subscribe consumes until ctx is cancelled or the backend is closed.
func (l *LocalBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("local channel is required")
	}
	ch, err := l.queue(channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case msg := <-ch:
			_ = handler(ctx, msg)
		}
	}
}

func (l *LocalBackend) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	return nil
}
