// Package format renders task replies and reminder bodies as chat text.
// Markup is limited to **bold** and `code`, which the Telegram channel turns
// into HTML and the web channel shows as is.
package format

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stellarlinkco/todoclaw/internal/reminder"
	"github.com/stellarlinkco/todoclaw/internal/task"
)

const maxCompletedShown = 5

type Formatter struct {
	loc *time.Location
}

// New returns a Formatter that prints clock times in loc. A nil loc uses
// time.Local.
func New(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{loc: loc}
}

// Task renders a one-line summary.
func (f *Formatter) Task(t *task.Task, now time.Time) string {
	var sb strings.Builder
	if t.IsCompleted() {
		sb.WriteString("[x] ")
	} else {
		sb.WriteString("[ ] ")
	}
	fmt.Fprintf(&sb, "`%s` %s", task.ShortID(t.ID), t.Title)
	if p := priorityLabel(t.Priority); p != "" {
		sb.WriteString(" ")
		sb.WriteString(p)
	}
	if t.Assignee != nil && t.Assignee.Username != "" {
		fmt.Fprintf(&sb, " -> @%s", t.Assignee.Username)
	}
	for _, tag := range t.Tags {
		fmt.Fprintf(&sb, " #%s", tag)
	}
	if t.DueAt != nil && !t.IsCompleted() {
		fmt.Fprintf(&sb, " (%s)", DueText(*t.DueAt, now))
	}
	return sb.String()
}

// TaskDetail renders everything known about a task.
func (f *Formatter) TaskDetail(t *task.Task, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n", t.Title)
	fmt.Fprintf(&sb, "ID: `%s`\n", t.ID)
	fmt.Fprintf(&sb, "Status: %s\n", statusLabel(t.Status))
	fmt.Fprintf(&sb, "Priority: %s\n", t.Priority)
	if t.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", t.Description)
	}
	if t.Assignee != nil {
		fmt.Fprintf(&sb, "Assignee: @%s", t.Assignee.Username)
		if !t.Assignee.Resolved() {
			sb.WriteString(" (not yet seen)")
		}
		sb.WriteString("\n")
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(&sb, "Tags: #%s\n", strings.Join(t.Tags, " #"))
	}
	if t.DueAt != nil {
		fmt.Fprintf(&sb, "Due: %s", f.When(*t.DueAt, now))
		if !t.IsCompleted() {
			fmt.Fprintf(&sb, " (%s)", DueText(*t.DueAt, now))
		}
		sb.WriteString("\n")
	}
	if t.IsSnoozed(now) {
		fmt.Fprintf(&sb, "Snoozed until: %s\n", f.When(*t.SnoozeUntil, now))
	}
	fmt.Fprintf(&sb, "Created by @%s %s", t.Creator.Username, f.When(t.CreatedAt, now))
	if t.CompletedAt != nil {
		fmt.Fprintf(&sb, "\nCompleted %s", f.When(*t.CompletedAt, now))
	}
	return sb.String()
}

// ListTitle names the list a view produces.
func ListTitle(view task.View) string {
	switch view {
	case task.ViewAll:
		return "All Your Tasks"
	case task.ViewCompleted:
		return "Your Completed Tasks"
	case task.ViewOverdue:
		return "Your Overdue Tasks"
	}
	return "Your Pending Tasks"
}

// TaskList renders tasks under title. Open tasks come first; completed ones
// are capped to the most recent few.
func (f *Formatter) TaskList(title string, tasks []task.Task, now time.Time) string {
	if len(tasks) == 0 {
		return fmt.Sprintf("**%s**\nNo tasks found.", title)
	}

	var open, done []task.Task
	for _, t := range tasks {
		if t.IsCompleted() {
			done = append(done, t)
		} else {
			open = append(open, t)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** (%d)\n", title, len(tasks))
	for i := range open {
		sb.WriteString(f.Task(&open[i], now))
		sb.WriteString("\n")
	}
	if len(done) > 0 {
		shown := done
		if len(open) > 0 && len(shown) > maxCompletedShown {
			shown = shown[:maxCompletedShown]
		}
		if len(open) > 0 {
			fmt.Fprintf(&sb, "\n**Recently Completed** (showing %d of %d)\n", len(shown), len(done))
		}
		for i := range shown {
			sb.WriteString(f.Task(&shown[i], now))
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) Created(t *task.Task, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("**Task created!**\n")
	sb.WriteString(f.Task(t, now))
	if t.DueAt != nil {
		fmt.Fprintf(&sb, "\nDue %s", f.When(*t.DueAt, now))
	}
	if t.Assignee != nil && !t.Assignee.Resolved() {
		fmt.Fprintf(&sb, "\nI don't know @%s yet; they'll be linked once they message me.", t.Assignee.Username)
	}
	fmt.Fprintf(&sb, "\nUse `done %s` to mark it complete.", task.ShortID(t.ID))
	return sb.String()
}

// AssignedNotice is the direct message sent to a new assignee.
func (f *Formatter) AssignedNotice(t *task.Task, now time.Time) string {
	return fmt.Sprintf("@%s assigned you a task:\n%s", t.Creator.Username, f.Task(t, now))
}

func (f *Formatter) Completed(t *task.Task) string {
	return fmt.Sprintf("**Task completed!** `%s` %s\nGreat job!", task.ShortID(t.ID), t.Title)
}

func (f *Formatter) AlreadyDone(t *task.Task) string {
	return fmt.Sprintf("`%s` %s is already completed.", task.ShortID(t.ID), t.Title)
}

func (f *Formatter) Snoozed(t *task.Task, until, now time.Time) string {
	return fmt.Sprintf("**Task snoozed** `%s` %s\nI'll remind you again %s.", task.ShortID(t.ID), t.Title, f.When(until, now))
}

func (f *Formatter) Deleted(t *task.Task) string {
	return fmt.Sprintf("**Task deleted** `%s` %s", task.ShortID(t.ID), t.Title)
}

func (f *Formatter) Reassigned(t *task.Task) string {
	name := ""
	if t.Assignee != nil {
		name = t.Assignee.Username
	}
	return fmt.Sprintf("**Task reassigned** `%s` %s -> @%s", task.ShortID(t.ID), t.Title, name)
}

func (f *Formatter) SearchResults(query string, tasks []task.Task, now time.Time) string {
	if len(tasks) == 0 {
		return fmt.Sprintf("No tasks match %q.", query)
	}
	return f.TaskList(fmt.Sprintf("Tasks matching %q", query), tasks, now)
}

// Error turns a handler error into a reply. Unknown errors get a generic
// message; their details belong in the log.
func Error(err error) string {
	switch {
	case errors.Is(err, task.ErrInvalidCommand),
		errors.Is(err, task.ErrNotFound),
		errors.Is(err, task.ErrForbidden),
		errors.Is(err, task.ErrInvalidState):
		return "Sorry, " + userMessage(err) + "\nType `help` for usage."
	}
	return "Oops! Something went wrong. Please try again in a moment."
}

// userMessage strips the sentinel prefix from a wrapped error.
func userMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{task.ErrInvalidCommand, task.ErrNotFound, task.ErrForbidden, task.ErrInvalidState} {
		prefix := sentinel.Error() + ": "
		if i := strings.Index(msg, prefix); i >= 0 {
			switch sentinel {
			case task.ErrNotFound:
				return "I couldn't find task " + msg[i+len(prefix):] + "."
			default:
				return msg[i+len(prefix):] + "."
			}
		}
		if msg == sentinel.Error() {
			return msg + "."
		}
	}
	return msg
}

// Reminder renders a scheduler event for its recipient.
func (f *Formatter) Reminder(ev reminder.Event, now time.Time) string {
	switch ev.Kind {
	case reminder.EventDaily:
		return f.dailyReminder(ev, now)
	case reminder.EventSnooze:
		if ev.Task == nil {
			return ""
		}
		return fmt.Sprintf("**Snooze is over!**\n%s", f.Task(ev.Task, now))
	case reminder.EventChannelDigest:
		return fmt.Sprintf("**Heads up, team!** There are %d overdue tasks. Type `list overdue` to review yours.", ev.OverdueCount)
	}
	return ""
}

func (f *Formatter) dailyReminder(ev reminder.Event, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("**Good morning!** Here is your task summary.\n")
	if len(ev.Overdue) > 0 {
		fmt.Fprintf(&sb, "\n**Overdue** (%d)\n", len(ev.Overdue))
		for i := range ev.Overdue {
			sb.WriteString(f.Task(&ev.Overdue[i], now))
			sb.WriteString("\n")
		}
	}
	if len(ev.DueToday) > 0 {
		fmt.Fprintf(&sb, "\n**Due Today** (%d)\n", len(ev.DueToday))
		for i := range ev.DueToday {
			sb.WriteString(f.Task(&ev.DueToday[i], now))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nHave a productive day!")
	return sb.String()
}

// When prints an instant relative to today: "today at 3:04 PM",
// "tomorrow at 9:00 AM" or "Mon Jan 2 at 3:04 PM".
func (f *Formatter) When(t, now time.Time) string {
	t = t.In(f.loc)
	now = now.In(f.loc)
	clock := t.Format("3:04 PM")

	ty, tm, td := t.Date()
	switch {
	case sameDay(ty, tm, td, now):
		return "today at " + clock
	case sameDay(ty, tm, td, now.AddDate(0, 0, 1)):
		return "tomorrow at " + clock
	case sameDay(ty, tm, td, now.AddDate(0, 0, -1)):
		return "yesterday at " + clock
	case ty != now.Year():
		return t.Format("Mon Jan 2 2006") + " at " + clock
	}
	return t.Format("Mon Jan 2") + " at " + clock
}

func sameDay(y int, m time.Month, d int, other time.Time) bool {
	oy, om, od := other.Date()
	return y == oy && m == om && d == od
}

// DueText describes a due date relative to now.
func DueText(due, now time.Time) string {
	diff := due.Sub(now)
	const day = 24 * time.Hour

	if diff < 0 {
		switch days := int(-diff / day); days {
		case 0:
			return "overdue today"
		case 1:
			return "overdue 1 day"
		default:
			return fmt.Sprintf("overdue %d days", days)
		}
	}

	days := int(diff / day)
	switch {
	case days == 0:
		if hours := int(diff / time.Hour); hours > 1 {
			return fmt.Sprintf("due in %dh", hours)
		}
		return "due soon"
	case days == 1:
		return "due tomorrow"
	case days <= 7:
		return fmt.Sprintf("due in %d days", days)
	}
	return "due " + due.Format("Jan 2")
}

func priorityLabel(p task.Priority) string {
	switch p {
	case task.PriorityUrgent:
		return "[urgent]"
	case task.PriorityHigh:
		return "[high]"
	case task.PriorityLow:
		return "[low]"
	}
	return ""
}

func statusLabel(s task.Status) string {
	switch s {
	case task.StatusInProgress:
		return "in progress"
	case "":
		return string(task.StatusPending)
	}
	return string(s)
}
