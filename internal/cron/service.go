package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Service struct {
	statePath string
	loc       *time.Location
	log       *zap.Logger

	mu       sync.Mutex
	jobs     map[string]Job
	order    []string
	states   map[string]*JobState
	cron     *rcron.Cron
	entryMap map[string]rcron.EntryID // job name -> cron entry ID
	runCtx   context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
}

// NewService creates a scheduler whose run state lives at statePath. A nil
// loc uses time.Local.
func NewService(statePath string, loc *time.Location, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		statePath: statePath,
		loc:       loc,
		log:       log.Named("cron"),
		jobs:      make(map[string]Job),
		states:    make(map[string]*JobState),
		entryMap:  make(map[string]rcron.EntryID),
	}
	if err := s.load(); err != nil {
		s.log.Warn("failed to load job state", zap.String("path", statePath), zap.Error(err))
	}
	return s
}

// AddJob registers a job. Jobs added after Start are scheduled immediately.
func (s *Service) AddJob(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: missing run func", job.Name)
	}
	if _, err := rcron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	s.jobs[job.Name] = job
	s.order = append(s.order, job.Name)

	st := s.stateLocked(job.Name)
	st.Schedule = job.Schedule

	if s.cron != nil {
		s.registerJob(job)
	}
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})

	logger := cronLogger{s.log.Sugar()}
	c := rcron.New(
		rcron.WithLocation(s.loc),
		rcron.WithLogger(logger),
		rcron.WithChain(rcron.Recover(logger), rcron.SkipIfStillRunning(logger)),
	)

	s.mu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	s.stopCh = stopCh
	s.cron = c
	for _, name := range s.order {
		s.registerJob(s.jobs[name])
	}
	n := len(s.order)
	s.mu.Unlock()

	c.Start()
	s.log.Info("started", zap.Int("jobs", n), zap.String("timezone", s.loc.String()))

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
			return
		}
	}()

	return nil
}

// registerJob must be called with s.mu held.
func (s *Service) registerJob(job Job) {
	name := job.Name
	id, err := s.cron.AddFunc(job.Schedule, func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		_, _ = s.executeJob(ctx, name)
	})
	if err != nil {
		s.log.Error("failed to register job", zap.String("job", name), zap.String("schedule", job.Schedule), zap.Error(err))
		return
	}
	s.entryMap[name] = id
}

// Trigger runs a job now, outside its schedule, and records the outcome.
func (s *Service) Trigger(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("job %s not found", name)
	}
	return s.executeJob(ctx, name)
}

func (s *Service) executeJob(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("job %s not found", name)
	}

	s.log.Info("executing job", zap.String("job", name))
	result, err := job.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(name)
	st.Runs++
	st.LastRunAtMs = time.Now().UnixMilli()
	if err != nil {
		st.LastStatus = StatusError
		st.LastError = err.Error()
		st.LastResult = ""
		s.log.Error("job failed", zap.String("job", name), zap.Error(err))
	} else {
		st.LastStatus = StatusOK
		st.LastError = ""
		st.LastResult = truncate(result, 200)
		s.log.Info("job done", zap.String("job", name), zap.String("result", truncate(result, 100)))
	}

	if serr := s.save(); serr != nil {
		s.log.Warn("failed to save job state", zap.Error(serr))
	}
	return result, err
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopCh := s.stopCh
	c := s.cron
	s.cancel = nil
	s.stopCh = nil
	s.runCtx = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if stopCh != nil {
		close(stopCh)
	}

	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			s.log.Warn("stop timeout waiting for running jobs")
		}
	}
	s.log.Info("stopped")
}

// Status reports every registered job with its persisted state and next
// fire time after now.
func (s *Service) Status(now time.Time) []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		job := s.jobs[name]
		st := *s.stateLocked(name)
		status := JobStatus{JobState: st}
		if sched, err := rcron.ParseStandard(job.Schedule); err == nil {
			status.Next = sched.Next(now.In(s.loc))
		}
		out = append(out, status)
	}
	return out
}

// stateLocked must be called with s.mu held.
func (s *Service) stateLocked(name string) *JobState {
	st, ok := s.states[name]
	if !ok {
		st = &JobState{Name: name}
		s.states[name] = st
	}
	return st
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var states []JobState
	if err := json.Unmarshal(data, &states); err != nil {
		return err
	}
	for i := range states {
		st := states[i]
		s.states[st.Name] = &st
	}
	return nil
}

// save must be called with s.mu held.
func (s *Service) save() error {
	dir := filepath.Dir(s.statePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	states := make([]JobState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, *st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.statePath, data, 0644)
}

// cronLogger adapts zap to robfig/cron's logger interface.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
