package channel

import (
	"context"

	"github.com/stellarlinkco/todoclaw/internal/bus"
)

// Channel is a chat transport. Inbound messages go to the bus; Send delivers
// an outbound message to a chat on this transport.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// Connector is implemented by channels that can send without a running
// receive loop.
type Connector interface {
	Connect() error
}

type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]struct{}
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	allowed := make(map[string]struct{}, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = struct{}{}
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// IsAllowed reports whether senderID may talk to the bot. An empty allow
// list admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	_, ok := c.allowFrom[senderID]
	return ok
}
