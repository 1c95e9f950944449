package gateway

import (
	"context"
	"fmt"

	"github.com/stellarlinkco/todoclaw/internal/config"
	"github.com/stellarlinkco/todoclaw/internal/cron"
	"github.com/stellarlinkco/todoclaw/internal/reminder"
)

// Sweeper runs one reminder sweep.
type Sweeper interface {
	Run(ctx context.Context, kind reminder.Kind) (reminder.Report, error)
}

// ReminderJobs maps each sweep to its cron schedule.
func ReminderJobs(cfg config.RemindersConfig, sweeper Sweeper) ([]cron.Job, error) {
	daily, err := cfg.DailySchedule()
	if err != nil {
		return nil, err
	}
	schedules := map[reminder.Kind]string{
		reminder.KindDaily:   daily,
		reminder.KindSnooze:  cfg.SnoozeCheck,
		reminder.KindCleanup: cfg.Cleanup,
	}

	jobs := make([]cron.Job, 0, len(reminder.Kinds))
	for _, kind := range reminder.Kinds {
		jobs = append(jobs, cron.Job{
			Name:     string(kind),
			Schedule: schedules[kind],
			Run: func(ctx context.Context) (string, error) {
				report, err := sweeper.Run(ctx, kind)
				if err != nil {
					return "", err
				}
				return report.String(), nil
			},
		})
	}
	return jobs, nil
}

// NewCronService builds the scheduler service with the reminder jobs
// registered. It does not start it.
func NewCronService(cfg *config.Config, sweeper Sweeper, opts Options) (*cron.Service, error) {
	loc, err := cfg.Reminders.Location()
	if err != nil {
		return nil, err
	}
	statePath := opts.CronStatePath
	if statePath == "" {
		statePath = config.CronStatePath()
	}

	svc := cron.NewService(statePath, loc, opts.Logger)
	jobs, err := ReminderJobs(cfg.Reminders, sweeper)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if err := svc.AddJob(job); err != nil {
			return nil, fmt.Errorf("register %s job: %w", job.Name, err)
		}
	}
	return svc, nil
}
