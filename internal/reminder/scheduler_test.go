package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/todoclaw/internal/store"
	"github.com/stellarlinkco/todoclaw/internal/task"
)

const team = "telegram"

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var (
	alice = task.UserRef{ID: "U1", Username: "alice"}
	bob   = task.UserRef{ID: "U2", Username: "bob"}
)

type sent struct {
	to Recipient
	ev Event
}

type recordingSink struct {
	mu     sync.Mutex
	sent   []sent
	failTo map[string]bool
}

func (s *recordingSink) Send(_ context.Context, to Recipient, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTo[to.UserID] {
		return errors.New("chat unavailable")
	}
	s.sent = append(s.sent, sent{to: to, ev: ev})
	return nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "todoclaw.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type seed struct {
	title    string
	creator  task.UserRef
	assignee *task.UserRef
	due      *time.Time
	snooze   *time.Time
	done     *time.Time
	channel  string
}

func add(t *testing.T, s *store.Store, in seed) *task.Task {
	t.Helper()
	tk := &task.Task{
		Title:       in.title,
		Status:      task.StatusPending,
		Priority:    task.PriorityMedium,
		Creator:     in.creator,
		Assignee:    in.assignee,
		TeamID:      team,
		ChannelID:   in.channel,
		DueAt:       in.due,
		SnoozeUntil: in.snooze,
		CreatedAt:   now.Add(-48 * time.Hour),
	}
	if tk.ChannelID == "" {
		tk.ChannelID = "C1"
	}
	if in.done != nil {
		tk.Status = task.StatusCompleted
		tk.CompletedAt = in.done
	}
	require.NoError(t, s.CreateTask(context.Background(), tk))
	return tk
}

func at(d time.Duration) *time.Time {
	v := now.Add(d)
	return &v
}

func newScheduler(st Store, sink Sink, threshold int) *Scheduler {
	return New(st, sink, Options{
		Location:         time.UTC,
		OverdueThreshold: threshold,
		Now:              func() time.Time { return now },
	})
}

func TestDailyDigest(t *testing.T) {
	st := openStore(t)
	add(t, st, seed{title: "overdue", creator: alice, due: at(-24 * time.Hour)})
	add(t, st, seed{title: "today", creator: alice, due: at(8 * time.Hour)})
	add(t, st, seed{title: "bob overdue", creator: alice, assignee: &bob, due: at(-time.Hour)})
	add(t, st, seed{title: "tomorrow", creator: alice, due: at(26 * time.Hour)})
	add(t, st, seed{title: "snoozed", creator: alice, due: at(-time.Hour), snooze: at(time.Hour)})
	add(t, st, seed{title: "done", creator: alice, due: at(-time.Hour), done: at(-2 * time.Hour)})
	add(t, st, seed{title: "unresolved", creator: alice, assignee: &task.UserRef{Username: "zed"}, due: at(time.Hour)})

	sink := &recordingSink{}
	r, err := newScheduler(st, sink, 5).DailyDigest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Kind: KindDaily, Teams: 1, Sent: 2}, r)
	require.Len(t, sink.sent, 2)

	first := sink.sent[0]
	assert.Equal(t, Recipient{TeamID: team, UserID: "U1", Username: "alice"}, first.to)
	assert.Equal(t, EventDaily, first.ev.Kind)
	assert.Equal(t, []string{"overdue"}, titles(first.ev.Overdue))
	assert.ElementsMatch(t, []string{"today", "unresolved"}, titles(first.ev.DueToday))

	second := sink.sent[1]
	assert.Equal(t, "U2", second.to.UserID)
	assert.Equal(t, []string{"bob overdue"}, titles(second.ev.Overdue))
	assert.Empty(t, second.ev.DueToday)
}

func TestDailyDigest_Idempotent(t *testing.T) {
	st := openStore(t)
	add(t, st, seed{title: "overdue", creator: alice, due: at(-24 * time.Hour)})
	add(t, st, seed{title: "bob", creator: alice, assignee: &bob, due: at(time.Hour)})

	sink := &recordingSink{}
	sched := newScheduler(st, sink, 5)

	_, err := sched.DailyDigest(context.Background())
	require.NoError(t, err)
	firstRun := sink.sent
	sink.sent = nil

	_, err = sched.DailyDigest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, firstRun, sink.sent)
}

func TestDailyDigest_ChannelDigest(t *testing.T) {
	st := openStore(t)
	add(t, st, seed{title: "a", creator: alice, due: at(-time.Hour), channel: "C2"})
	add(t, st, seed{title: "b", creator: alice, due: at(-time.Hour), channel: "C2"})
	add(t, st, seed{title: "c", creator: alice, assignee: &bob, due: at(-time.Hour), channel: "C1"})

	sink := &recordingSink{}
	r, err := newScheduler(st, sink, 3).DailyDigest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, r.Sent)

	last := sink.sent[len(sink.sent)-1]
	assert.Equal(t, EventChannelDigest, last.ev.Kind)
	assert.Equal(t, 3, last.ev.OverdueCount)
	assert.Equal(t, Recipient{TeamID: team, ChannelID: "C2"}, last.to)
}

func TestDailyDigest_BelowThresholdHasNoChannelDigest(t *testing.T) {
	st := openStore(t)
	add(t, st, seed{title: "a", creator: alice, due: at(-time.Hour)})

	sink := &recordingSink{}
	_, err := newScheduler(st, sink, 5).DailyDigest(context.Background())
	require.NoError(t, err)
	for _, s := range sink.sent {
		assert.NotEqual(t, EventChannelDigest, s.ev.Kind)
	}
}

func TestDailyDigest_FailureDoesNotAbortOthers(t *testing.T) {
	st := openStore(t)
	add(t, st, seed{title: "alice", creator: alice, due: at(-time.Hour)})
	add(t, st, seed{title: "bob", creator: alice, assignee: &bob, due: at(-time.Hour)})

	sink := &recordingSink{failTo: map[string]bool{"U1": true}}
	r, err := newScheduler(st, sink, 5).DailyDigest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Sent)
	assert.Equal(t, 1, r.Failed)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "U2", sink.sent[0].to.UserID)
}

func TestSnoozeSweep(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	expiredA := add(t, st, seed{title: "a", creator: alice, snooze: at(-time.Minute)})
	expiredB := add(t, st, seed{title: "b", creator: alice, assignee: &bob, snooze: at(-time.Hour)})
	future := add(t, st, seed{title: "later", creator: alice, snooze: at(time.Hour)})
	add(t, st, seed{title: "done", creator: alice, snooze: at(-time.Hour), done: at(-time.Hour)})

	// delivery failure still clears the snooze
	sink := &recordingSink{failTo: map[string]bool{"U1": true}}
	sched := newScheduler(st, sink, 5)

	r, err := sched.SnoozeSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Kind: KindSnooze, Sent: 1, Failed: 1, Cleared: 2}, r)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, EventSnooze, sink.sent[0].ev.Kind)
	assert.Equal(t, expiredB.ID, sink.sent[0].ev.Task.ID)
	assert.Equal(t, "U2", sink.sent[0].to.UserID)

	for _, id := range []string{expiredA.ID, expiredB.ID} {
		got, err := st.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got.SnoozeUntil)
	}
	got, err := st.GetTask(ctx, future.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.SnoozeUntil)

	sink.failTo = nil
	r, err = sched.SnoozeSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Kind: KindSnooze}, r)
	assert.Len(t, sink.sent, 1)
}

// resnoozingStore moves the snooze forward between the sweep's read and its
// clear, as a concurrent snooze command would.
type resnoozingStore struct {
	*store.Store
	until time.Time
}

func (s *resnoozingStore) ClearSnooze(ctx context.Context, id string, seen, now time.Time) (bool, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return false, err
	}
	t.SnoozeUntil = &s.until
	if err := s.UpdateTask(ctx, t); err != nil {
		return false, err
	}
	return s.Store.ClearSnooze(ctx, id, seen, now)
}

func TestSnoozeSweep_KeepsFreshSnooze(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tk := add(t, st, seed{title: "a", creator: alice, snooze: at(-time.Minute)})

	wrapped := &resnoozingStore{Store: st, until: now.Add(3 * time.Hour)}
	r, err := newScheduler(wrapped, &recordingSink{}, 5).SnoozeSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Cleared)

	got, err := st.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SnoozeUntil)
	assert.True(t, wrapped.until.Equal(*got.SnoozeUntil))
}

func TestRetentionSweep(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	old := add(t, st, seed{title: "old", creator: alice, done: at(-31 * 24 * time.Hour)})
	recent := add(t, st, seed{title: "recent", creator: alice, done: at(-24 * time.Hour)})
	open := add(t, st, seed{title: "open", creator: alice})

	r, err := newScheduler(st, &recordingSink{}, 5).RetentionSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Kind: KindCleanup, Removed: 1}, r)

	got, err := st.GetTask(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	for _, id := range []string{recent.ID, open.ID} {
		got, err := st.GetTask(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got)
	}
}

func TestRun(t *testing.T) {
	st := openStore(t)
	sched := newScheduler(st, &recordingSink{}, 5)

	for _, k := range Kinds {
		r, err := sched.Run(context.Background(), k)
		require.NoError(t, err)
		assert.Equal(t, k, r.Kind)
	}

	_, err := sched.Run(context.Background(), Kind("weekly"))
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("snooze")
	require.NoError(t, err)
	assert.Equal(t, KindSnooze, k)

	_, err = ParseKind("hourly")
	assert.Error(t, err)
}

func TestReportString(t *testing.T) {
	assert.Equal(t, "daily: 2 teams, 3 sent, 1 failed", Report{Kind: KindDaily, Teams: 2, Sent: 3, Failed: 1}.String())
	assert.Equal(t, "cleanup: 4 removed, 0 failed", Report{Kind: KindCleanup, Removed: 4}.String())
}

func titles(tasks []task.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}
