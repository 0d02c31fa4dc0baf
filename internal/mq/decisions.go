package mq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/inkwell-comics/modsvc/config"
	"github.com/inkwell-comics/modsvc/internal/metrics"
	"github.com/inkwell-comics/modsvc/types"
)

// NewBackend builds the backend selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "local":
		return NewLocalBackend(cfg.LocalBuffer), nil
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// DecisionPublisher sends decision events to the decisions channel. Publish
// failures are logged and never returned: the decision itself has already
// been committed.
type DecisionPublisher struct {
	mq      *MQ
	channel string
	logger  *slog.Logger
}

func NewDecisionPublisher(mq *MQ, channel string, logger *slog.Logger) *DecisionPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionPublisher{mq: mq, channel: channel, logger: logger}
}

func (p *DecisionPublisher) PublishDecision(ctx context.Context, event types.DecisionEvent) {
	id, err := p.mq.PublishJSON(ctx, p.channel, event, map[string]string{
		"kind":          event.Kind,
		AttrOrderingKey: "user:" + strconv.Itoa(event.UserID),
	})
	if err != nil {
		metrics.DecisionEventsPublished.WithLabelValues("error").Inc()
		p.logger.Warn("failed to publish decision event",
			"kind", event.Kind,
			"user_id", event.UserID,
			"err", err,
		)
		return
	}
	metrics.DecisionEventsPublished.WithLabelValues("ok").Inc()
	p.logger.Debug("published decision event", "kind", event.Kind, "user_id", event.UserID, "message_id", id)
}

// SubscribeDecisions decodes decision events from the channel and passes
// them to handle. Undecodable messages are logged and acknowledged.
func SubscribeDecisions(
	ctx context.Context,
	mq *MQ,
	channel string,
	logger *slog.Logger,
	handle func(context.Context, types.DecisionEvent) error,
) error {
	if logger == nil {
		logger = slog.Default()
	}
	onMalformed := func(msg Message, err error) {
		logger.Warn("dropping malformed decision event", "message_id", msg.ID, "err", err)
	}
	return SubscribeJSON(ctx, mq, channel, func(ctx context.Context, event types.DecisionEvent, msg Message) error {
		if err := handle(ctx, event); err != nil {
			logger.Warn("failed to handle decision event",
				"message_id", msg.ID,
				"kind", event.Kind,
				"user_id", event.UserID,
				"err", err,
			)
			return err
		}
		return nil
	}, onMalformed)
}
