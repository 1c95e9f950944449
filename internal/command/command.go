// Package command interprets chat messages as task management commands or
// task-creation requests.
package command

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/stellarlinkco/todoclaw/internal/task"
)

type Kind int

const (
	KindNone Kind = iota
	KindCreate
	KindList
	KindComplete
	KindSnooze
	KindDelete
	KindShow
	KindHelp
	KindReassign
	KindSearch
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindList:
		return "list"
	case KindComplete:
		return "complete"
	case KindSnooze:
		return "snooze"
	case KindDelete:
		return "delete"
	case KindShow:
		return "show"
	case KindHelp:
		return "help"
	case KindReassign:
		return "reassign"
	case KindSearch:
		return "search"
	}
	return "none"
}

// Command is a parsed message. Only the fields relevant to Kind are set.
type Command struct {
	Kind     Kind
	TaskID   string
	View     task.View
	TimeExpr string
	Assignee string
	Query    string
	Draft    task.Draft
}

var (
	listRe     = regexp.MustCompile(`(?i)^(?:list|show|tasks?)(?:\s+(all|pending|completed|overdue))?$`)
	completeRe = regexp.MustCompile(`(?i)^(?:done|complete|finish|finished)\s+([a-z0-9-]+)$`)
	snoozeRe   = regexp.MustCompile(`(?i)^snooze\s+([a-z0-9-]+)\s+(.+)$`)
	deleteRe   = regexp.MustCompile(`(?i)^(?:delete|remove|cancel)\s+([a-z0-9-]+)$`)
	helpRe     = regexp.MustCompile(`(?i)^(?:help|\?|commands?)$`)
	showRe     = regexp.MustCompile(`(?i)^(?:show|task)\s+([a-z0-9-]+)$`)
	reassignRe = regexp.MustCompile(`(?i)^(?:assign|reassign)\s+([a-z0-9-]+)\s+(?:to\s+)?@?([a-z0-9._-]+)$`)
	searchRe   = regexp.MustCompile(`(?i)^(?:search|find)\s+(.+)$`)

	greetingRe      = regexp.MustCompile(`(?i)^(?:hi|hello|hey|thanks|thank you|ok|okay|yes|no|sure)[!.]*$`)
	questionMarksRe = regexp.MustCompile(`^\?+$`)
	interrogativeRe = regexp.MustCompile(`(?i)^(?:what|how|when|where|why|who)\b`)
)

// ParseManagement recognises management commands. The second result is false
// when text is not one.
func ParseManagement(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{}, false
	}

	if m := listRe.FindStringSubmatch(text); m != nil {
		view, _ := task.ParseView(m[1])
		return Command{Kind: KindList, View: view}, true
	}
	if m := completeRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindComplete, TaskID: strings.ToLower(m[1])}, true
	}
	if m := snoozeRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindSnooze, TaskID: strings.ToLower(m[1]), TimeExpr: strings.TrimSpace(m[2])}, true
	}
	if m := deleteRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindDelete, TaskID: strings.ToLower(m[1])}, true
	}
	if helpRe.MatchString(text) {
		return Command{Kind: KindHelp}, true
	}
	if m := showRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindShow, TaskID: strings.ToLower(m[1])}, true
	}
	if m := reassignRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindReassign, TaskID: strings.ToLower(m[1]), Assignee: m[2]}, true
	}
	if m := searchRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindSearch, Query: strings.TrimSpace(m[1])}, true
	}
	return Command{}, false
}

// IsTaskCreation reports whether free text should become a new task rather
// than be ignored.
func IsTaskCreation(text string) bool {
	trimmed := strings.TrimSpace(text)
	if _, ok := ParseManagement(trimmed); ok {
		return false
	}
	if utf8.RuneCountInString(trimmed) < 3 {
		return false
	}
	if greetingRe.MatchString(trimmed) || questionMarksRe.MatchString(trimmed) || interrogativeRe.MatchString(trimmed) {
		return false
	}
	return true
}
