package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/stellarlinkco/todoclaw/internal/bus"
	"github.com/stellarlinkco/todoclaw/internal/config"
)

type ChannelManager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	log      *zap.Logger
}

func NewChannelManager(cfg config.ChannelsConfig, gwCfg config.GatewayConfig, b *bus.MessageBus, log *zap.Logger) (*ChannelManager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
		log:      log.Named("channel-mgr"),
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram, b, log)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.Register(ch)
	}

	if cfg.Web.Enabled {
		ch, err := NewWebChannel(cfg.Web, gwCfg, b, log)
		if err != nil {
			return nil, fmt.Errorf("init web channel: %w", err)
		}
		m.Register(ch)
	}

	return m, nil
}

// Register adds ch and subscribes it to outbound messages for its name.
func (m *ChannelManager) Register(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			m.log.Warn("send failed", zap.String("channel", ch.Name()), zap.String("chat", msg.ChatID), zap.Error(err))
		}
	})
}

// Send delivers msg directly through the named channel, bypassing the bus.
func (m *ChannelManager) Send(msg bus.OutboundMessage) error {
	ch, ok := m.channels[msg.Channel]
	if !ok {
		return fmt.Errorf("channel %q not enabled", msg.Channel)
	}
	return ch.Send(msg)
}

// ConnectAll prepares channels for sending without starting their receive
// loops. Channels that cannot push on their own are skipped.
func (m *ChannelManager) ConnectAll() error {
	for name, ch := range m.channels {
		c, ok := ch.(Connector)
		if !ok {
			continue
		}
		if err := c.Connect(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(m.channels))

	for name, ch := range m.channels {
		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()
			m.log.Info("starting channel", zap.String("channel", name))
			if err := ch.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, ch)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

func (m *ChannelManager) StopAll() error {
	for name, ch := range m.channels {
		m.log.Info("stopping channel", zap.String("channel", name))
		if err := ch.Stop(); err != nil {
			m.log.Warn("error stopping channel", zap.String("channel", name), zap.Error(err))
		}
	}
	return nil
}

// EnabledChannels returns the registered channel names, sorted.
func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
