// Package events carries identity-changed notifications between the session
// and the aggregates that must reset when the identity changes.
package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/domain/session"
)

// TopicIdentity is the topic identity events are published on.
const TopicIdentity = "identity.changed"

// Handler reacts to an identity event. Errors are logged; the event is
// acknowledged regardless, since redelivery would reset state twice.
type Handler func(ctx context.Context, e session.Event) error

// Bus is an in-process publish/subscribe bus. Publish returns only after
// every subscriber has acknowledged the event, so subscribers are done by the
// time the publisher continues. Handlers must not publish.
type Bus struct {
	pubsub *gochannel.GoChannel
	lg     *zap.Logger
}

// NewBus returns a Bus. Close releases it.
func NewBus(lg *zap.Logger) *Bus {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
			PreserveContext:                true,
		}, NewLoggerAdapter(lg.Named("watermill"))),
		lg: lg,
	}
}

// Publish implements session.Publisher.
func (b *Bus) Publish(ctx context.Context, e session.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(TopicIdentity, msg); err != nil {
		return errors.Wrap(err, "publish")
	}
	return nil
}

// Subscribe registers h under name. The subscription ends when ctx is done
// or the bus is closed. Subscribers registered after a Publish do not see it.
func (b *Bus) Subscribe(ctx context.Context, name string, h Handler) error {
	messages, err := b.pubsub.Subscribe(ctx, TopicIdentity)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", name)
	}

	lg := b.lg.With(zap.String("subscriber", name))
	go func() {
		for msg := range messages {
			b.handle(lg, msg, h)
		}
	}()
	return nil
}

func (b *Bus) handle(lg *zap.Logger, msg *message.Message, h Handler) {
	defer msg.Ack()

	var e session.Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		lg.Error("Decode event", zap.String("message_uuid", msg.UUID), zap.Error(err))
		return
	}
	if err := h(msg.Context(), e); err != nil {
		lg.Error("Handle event",
			zap.String("message_uuid", msg.UUID),
			zap.String("kind", string(e.Kind)),
			zap.Error(err),
		)
	}
}

// Close stops every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
