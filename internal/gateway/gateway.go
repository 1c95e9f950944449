package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/todoclaw/internal/bus"
	"github.com/stellarlinkco/todoclaw/internal/channel"
	"github.com/stellarlinkco/todoclaw/internal/command"
	"github.com/stellarlinkco/todoclaw/internal/config"
	"github.com/stellarlinkco/todoclaw/internal/cron"
	"github.com/stellarlinkco/todoclaw/internal/format"
	"github.com/stellarlinkco/todoclaw/internal/reminder"
	"github.com/stellarlinkco/todoclaw/internal/store"
	"github.com/stellarlinkco/todoclaw/internal/task"
	"github.com/stellarlinkco/todoclaw/internal/timeexpr"
)

// Options for creating a Gateway
type Options struct {
	Logger     *zap.Logger
	SignalChan chan os.Signal // for testing signal handling
	Now        func() time.Time
	// Directory resolves unknown @mentions. Neither built-in channel can
	// list users, so it is nil outside tests.
	Directory task.Directory
	// CronStatePath overrides the default job state file.
	CronStatePath string
}

type Gateway struct {
	cfg        *config.Config
	log        *zap.Logger
	bus        *bus.MessageBus
	store      *store.Store
	tasks      *task.Manager
	handler    *Handler
	scheduler  *reminder.Scheduler
	cron       *cron.Service
	channels   *channel.ChannelManager
	signalChan chan os.Signal

	// direct makes reminders bypass the bus and go straight to the
	// channel, so one-shot runs see delivery failures.
	direct atomic.Bool
}

// New creates a Gateway with default options
func New(cfg *config.Config, log *zap.Logger) (*Gateway, error) {
	return NewWithOptions(cfg, Options{Logger: log})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc, err := cfg.Reminders.Location()
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:        cfg,
		log:        log.Named("gateway"),
		signalChan: opts.SignalChan,
	}
	g.bus = bus.NewMessageBus(config.DefaultBufSize, log)

	st, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	times := timeexpr.New(now)
	g.tasks = task.NewManager(st, task.ManagerOptions{
		Users:        task.NewCachedResolver(st, opts.Directory, log),
		Cache:        st,
		Times:        times,
		Logger:       log,
		Now:          now,
		DefaultLimit: cfg.Tasks.DefaultLimit,
	})

	f := format.New(loc)
	g.handler = NewHandler(g.tasks, command.NewParser(times), f, HandlerOptions{
		ListLimit: cfg.Tasks.ListLimit,
		Now:       now,
		Logger:    log,
	})

	g.scheduler = reminder.New(st, newReminderSink(g.deliver, f, now), reminder.Options{
		Location:         loc,
		OverdueThreshold: cfg.Reminders.OverdueThreshold,
		Retention:        cfg.Reminders.Retention(),
		Now:              now,
		Logger:           log,
	})

	g.cron, err = NewCronService(cfg, g.scheduler, opts)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create cron service: %w", err)
	}

	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	return g, nil
}

func (g *Gateway) deliver(ctx context.Context, msg bus.OutboundMessage) error {
	if g.direct.Load() {
		return g.channels.Send(msg)
	}
	if !g.bus.Subscribed(msg.Channel) {
		return fmt.Errorf("channel %q not enabled", msg.Channel)
	}
	return g.bus.PublishOutbound(ctx, msg)
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		_ = g.Shutdown()
		return fmt.Errorf("start channels: %w", err)
	}
	g.log.Info("channels started", zap.Strings("channels", g.channels.EnabledChannels()))

	if err := g.cron.Start(ctx); err != nil {
		g.log.Warn("cron start failed", zap.Error(err))
	}

	go g.processLoop(ctx)

	g.log.Info("running", zap.String("host", g.cfg.Gateway.Host), zap.Int("port", g.cfg.Gateway.Port))

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	g.log.Info("shutting down")
	return g.Shutdown()
}

// RunOnce runs a single sweep now, delivering reminders synchronously, and
// records the outcome in the job state.
func (g *Gateway) RunOnce(ctx context.Context, kind reminder.Kind) (string, error) {
	if err := g.channels.ConnectAll(); err != nil {
		return "", fmt.Errorf("connect channels: %w", err)
	}
	g.direct.Store(true)
	defer g.direct.Store(false)
	return g.cron.Trigger(ctx, string(kind))
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.log.Debug("inbound",
				zap.String("session", msg.SessionKey()),
				zap.String("sender", msg.SenderID),
				zap.String("content", truncate(msg.Content, 80)))

			for _, out := range g.handler.Handle(ctx, msg) {
				if err := g.bus.PublishOutbound(ctx, out); err != nil {
					g.log.Warn("publish reply failed", zap.String("chat", out.ChatID), zap.Error(err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Cron exposes the job service for status reporting.
func (g *Gateway) Cron() *cron.Service {
	return g.cron
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	if err := g.store.Close(); err != nil {
		g.log.Warn("close store failed", zap.Error(err))
	}
	g.log.Info("shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
