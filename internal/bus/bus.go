package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MessageBus connects channels to the gateway. Channels push to Inbound;
// the gateway pushes to Outbound and DispatchOutbound fans replies out to the
// subscribed channel.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string][]func(OutboundMessage)
	log         *zap.Logger
}

func NewMessageBus(bufSize int, log *zap.Logger) *MessageBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageBus{
		Inbound:     make(chan InboundMessage, bufSize),
		Outbound:    make(chan OutboundMessage, bufSize),
		subscribers: make(map[string][]func(OutboundMessage)),
		log:         log.Named("bus"),
	}
}

func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], fn)
}

// Subscribed reports whether any handler is registered for channel.
func (b *MessageBus) Subscribed(channel string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel]) > 0
}

// PublishOutbound queues msg, giving up when ctx is done.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.Outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			subs := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			if len(subs) == 0 {
				b.log.Warn("no subscriber for outbound message", zap.String("channel", msg.Channel))
				continue
			}
			for _, fn := range subs {
				fn(msg)
			}
		case <-ctx.Done():
			return
		}
	}
}
