// Package events publishes engine change notifications over an in-process
// watermill pub/sub so HTTP clients can follow a context live.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/roach88/finishline/internal/engine"
)

// TopicContextChanged carries one message per committed mutating operation.
const TopicContextChanged = "context.changed"

// Metadata keys set on every change message.
const (
	MetaContextID = "context_id"
	MetaOp        = "op"
	MetaToken     = "token"
)

// Bus implements engine.Notifier on a gochannel pub/sub.
//
// Thread-safety: Bus is safe for concurrent use.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// NewBus creates a Bus. Messages published with no subscriber are dropped.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewSlogLogger(logger)),
		logger: logger,
	}
}

// Notify publishes c on TopicContextChanged.
func (b *Bus) Notify(_ context.Context, c engine.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaContextID, strconv.FormatInt(c.ContextID, 10))
	msg.Metadata.Set(MetaOp, c.Op)
	msg.Metadata.Set(MetaToken, c.Token)

	if err := b.pubsub.Publish(TopicContextChanged, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicContextChanged, err)
	}
	b.logger.Debug("change published", "context_id", c.ContextID, "op", c.Op, "token", c.Token)
	return nil
}

// Subscribe streams changes for contextID, or for every context when
// contextID is 0, until ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, contextID int64) (<-chan engine.Change, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicContextChanged)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicContextChanged, err)
	}

	want := strconv.FormatInt(contextID, 10)
	out := make(chan engine.Change)
	go func() {
		defer close(out)
		for msg := range msgs {
			msg.Ack()
			if contextID != 0 && msg.Metadata.Get(MetaContextID) != want {
				continue
			}
			var c engine.Change
			if err := json.Unmarshal(msg.Payload, &c); err != nil {
				b.logger.Warn("dropping malformed change message", "uuid", msg.UUID, "error", err)
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the pub/sub down and ends every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
