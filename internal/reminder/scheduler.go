package reminder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/todoclaw/internal/task"
)

const (
	DefaultOverdueThreshold = 5
	DefaultRetention        = 30 * 24 * time.Hour
)

type Options struct {
	// Location defines "today" for the daily digest.
	Location         *time.Location
	OverdueThreshold int
	Retention        time.Duration
	Now              func() time.Time
	Logger           *zap.Logger
}

// Scheduler runs the reminder sweeps. It holds no state between runs and
// is safe for concurrent use.
type Scheduler struct {
	store     Store
	sink      Sink
	loc       *time.Location
	threshold int
	retention time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func New(store Store, sink Sink, opts Options) *Scheduler {
	s := &Scheduler{
		store:     store,
		sink:      sink,
		loc:       opts.Location,
		threshold: opts.OverdueThreshold,
		retention: opts.Retention,
		now:       opts.Now,
		log:       opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.threshold <= 0 {
		s.threshold = DefaultOverdueThreshold
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("scheduler")
	return s
}

// Run executes the sweep named by kind.
func (s *Scheduler) Run(ctx context.Context, kind Kind) (Report, error) {
	switch kind {
	case KindDaily:
		return s.DailyDigest(ctx)
	case KindSnooze:
		return s.SnoozeSweep(ctx)
	case KindCleanup:
		return s.RetentionSweep(ctx)
	}
	return Report{Kind: kind}, fmt.Errorf("unknown reminder kind %q", kind)
}

// DailyDigest sends every owner of a task due today or overdue one reminder
// with both buckets, plus a channel digest for teams at or above the overdue
// threshold. It does not modify tasks.
func (s *Scheduler) DailyDigest(ctx context.Context) (Report, error) {
	r := Report{Kind: KindDaily}
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	endOfDay := time.Date(y, m, d, 23, 59, 59, 0, s.loc)

	teams, err := s.store.ActiveTeams(ctx)
	if err != nil {
		return r, fmt.Errorf("daily digest: %w", err)
	}

	for _, teamID := range teams {
		tasks, err := s.store.DueOrOverdue(ctx, teamID, endOfDay, now)
		if err != nil {
			r.Failed++
			s.log.Warn("load due tasks failed", zap.String("team", teamID), zap.Error(err))
			continue
		}
		if len(tasks) == 0 {
			continue
		}
		r.Teams++

		overdue := 0
		for _, owner := range groupByOwner(tasks, now) {
			overdue += len(owner.event.Overdue)
			to := Recipient{TeamID: teamID, UserID: owner.ref.ID, Username: owner.ref.Username}
			s.deliver(ctx, &r, to, owner.event)
		}

		if overdue >= s.threshold {
			s.channelDigest(ctx, &r, teamID, overdue)
		}
	}

	s.log.Info("daily digest done", zap.Int("teams", r.Teams), zap.Int("sent", r.Sent), zap.Int("failed", r.Failed))
	return r, nil
}

func (s *Scheduler) channelDigest(ctx context.Context, r *Report, teamID string, overdue int) {
	channelID, err := s.store.BusiestChannel(ctx, teamID)
	if err != nil {
		r.Failed++
		s.log.Warn("pick digest channel failed", zap.String("team", teamID), zap.Error(err))
		return
	}
	if channelID == "" {
		return
	}
	to := Recipient{TeamID: teamID, ChannelID: channelID}
	s.deliver(ctx, r, to, Event{Kind: EventChannelDigest, OverdueCount: overdue})
}

// SnoozeSweep reminds owners of tasks whose snooze has passed and clears the
// snooze. The snooze is cleared whether or not delivery succeeded, and only
// if it still holds the value this sweep saw.
func (s *Scheduler) SnoozeSweep(ctx context.Context) (Report, error) {
	r := Report{Kind: KindSnooze}
	now := s.now()

	tasks, err := s.store.SnoozeExpired(ctx, now)
	if err != nil {
		return r, fmt.Errorf("snooze sweep: %w", err)
	}

	for i := range tasks {
		t := &tasks[i]
		if t.SnoozeUntil == nil {
			continue
		}
		owner := t.Owner()
		to := Recipient{TeamID: t.TeamID, UserID: owner.ID, Username: owner.Username}
		s.deliver(ctx, &r, to, Event{Kind: EventSnooze, Task: t})

		cleared, err := s.store.ClearSnooze(ctx, t.ID, *t.SnoozeUntil, now)
		if err != nil {
			r.Failed++
			s.log.Warn("clear snooze failed", zap.String("task", t.ID), zap.Error(err))
			continue
		}
		if !cleared {
			s.log.Debug("snooze changed during sweep", zap.String("task", t.ID))
			continue
		}
		r.Cleared++
	}

	s.log.Info("snooze sweep done", zap.Int("sent", r.Sent), zap.Int("failed", r.Failed), zap.Int("cleared", r.Cleared))
	return r, nil
}

// RetentionSweep deletes completed tasks older than the retention window.
func (s *Scheduler) RetentionSweep(ctx context.Context) (Report, error) {
	r := Report{Kind: KindCleanup}
	cutoff := s.now().Add(-s.retention)

	tasks, err := s.store.FindStaleCompleted(ctx, cutoff, 0)
	if err != nil {
		return r, fmt.Errorf("retention sweep: %w", err)
	}

	for _, t := range tasks {
		deleted, err := s.store.DeleteTask(ctx, t.ID)
		if err != nil {
			r.Failed++
			s.log.Warn("delete stale task failed", zap.String("task", t.ID), zap.Error(err))
			continue
		}
		if deleted {
			r.Removed++
		}
	}

	s.log.Info("retention sweep done", zap.Int("removed", r.Removed), zap.Time("cutoff", cutoff))
	return r, nil
}

func (s *Scheduler) deliver(ctx context.Context, r *Report, to Recipient, ev Event) {
	if err := s.sink.Send(ctx, to, ev); err != nil {
		r.Failed++
		s.log.Warn("send reminder failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("to", to.String()),
			zap.Error(err))
		return
	}
	r.Sent++
}

type ownerTasks struct {
	ref   task.UserRef
	event Event
}

// groupByOwner buckets tasks per owner, ordered by owner id.
func groupByOwner(tasks []task.Task, now time.Time) []ownerTasks {
	byID := make(map[string]*ownerTasks)
	for _, t := range tasks {
		ref := t.Owner()
		o, ok := byID[ref.ID]
		if !ok {
			o = &ownerTasks{ref: ref, event: Event{Kind: EventDaily}}
			byID[ref.ID] = o
		}
		if t.IsOverdue(now) {
			o.event.Overdue = append(o.event.Overdue, t)
		} else {
			o.event.DueToday = append(o.event.DueToday, t)
		}
	}

	out := make([]ownerTasks, 0, len(byID))
	for _, o := range byID {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ref.ID < out[j].ref.ID })
	return out
}
