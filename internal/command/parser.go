package command

import (
	"regexp"
	"strings"

	"github.com/stellarlinkco/todoclaw/internal/task"
	"github.com/stellarlinkco/todoclaw/internal/timeexpr"
)

var (
	mentionRe = regexp.MustCompile(`@([a-zA-Z0-9._-]+)`)
	hashtagRe = regexp.MustCompile(`#([a-zA-Z0-9_-]+)`)

	urgentRe = regexp.MustCompile(`(?i)\b(?:urgent|asap|emergency|critical|high priority)\b|!!+|‼`)
	highRe   = regexp.MustCompile(`(?i)\b(?:important|high|priority|soon)\b|❗`)
	lowRe    = regexp.MustCompile(`(?i)\b(?:low priority|low|whenever|optional|maybe)\b`)

	// "low priority" would otherwise hit the high group's bare "priority".
	lowPhraseRe = regexp.MustCompile(`(?i)\blow priority\b`)

	priorityWordRe = regexp.MustCompile(`(?i)\b(?:urgent|asap|emergency|critical|high priority|important|high|priority|soon|low priority|low|whenever|optional|maybe)\b|!!+|‼|❗`)

	spaceRe = regexp.MustCompile(`\s+`)

	// Connective left dangling once the date after it is removed.
	datePrepRe = regexp.MustCompile(`(?i)\b(?:due\s+)?(?:at|by|on|before|due)\s*$`)
)

// DateDetector finds the first date expression in a text.
type DateDetector interface {
	Detect(text string) (timeexpr.Match, bool)
}

type Parser struct {
	dates DateDetector
}

func NewParser(dates DateDetector) *Parser {
	return &Parser{dates: dates}
}

// Parse classifies a message. KindNone means the message is neither a
// command nor a task.
func (p *Parser) Parse(text string) Command {
	if cmd, ok := ParseManagement(text); ok {
		return cmd
	}
	if IsTaskCreation(text) {
		return Command{Kind: KindCreate, Draft: p.ParseTask(text)}
	}
	return Command{}
}

// extraction is the working state of ParseTask. Each rule reads from and
// removes its spans from text.
type extraction struct {
	text  string
	draft task.Draft
}

// ParseTask extracts a task from free text. Rules run in a fixed order:
// mentions, tags, priority, date, then whatever is left is the title. The
// title falls back to the original text without mentions and tags, and
// finally to task.UntitledTitle.
func (p *Parser) ParseTask(text string) task.Draft {
	x := &extraction{
		text:  strings.TrimSpace(text),
		draft: task.Draft{Priority: task.PriorityMedium},
	}

	x.mentions()
	x.tags()
	x.priority()
	x.date(p.dates)

	title := collapse(x.text)
	if title == "" {
		title = collapse(hashtagRe.ReplaceAllString(mentionRe.ReplaceAllString(text, ""), ""))
	}
	if title == "" {
		title = task.UntitledTitle
	}
	x.draft.Title = title
	return x.draft
}

func (x *extraction) mentions() {
	if m := mentionRe.FindStringSubmatch(x.text); m != nil {
		x.draft.AssigneeName = m[1]
	}
	x.text = mentionRe.ReplaceAllString(x.text, " ")
}

func (x *extraction) tags() {
	var tags []string
	for _, m := range hashtagRe.FindAllStringSubmatch(x.text, -1) {
		tags = append(tags, m[1])
	}
	x.draft.Tags = task.NormalizeTags(tags)
	x.text = hashtagRe.ReplaceAllString(x.text, " ")
}

func (x *extraction) priority() {
	x.draft.Priority = detectPriority(x.text)
	x.text = priorityWordRe.ReplaceAllString(x.text, " ")
}

func (x *extraction) date(dates DateDetector) {
	if dates == nil {
		return
	}
	x.text = collapse(x.text)
	m, ok := dates.Detect(x.text)
	if !ok {
		return
	}
	due := m.Time
	x.draft.DueAt = &due

	i := strings.Index(x.text, m.Text)
	if m.Index >= 0 && m.Index <= len(x.text) {
		if j := strings.Index(x.text[m.Index:], m.Text); j >= 0 {
			i = m.Index + j
		}
	}
	if i < 0 {
		return
	}
	before := datePrepRe.ReplaceAllString(x.text[:i], "")
	x.text = before + " " + x.text[i+len(m.Text):]
}

func detectPriority(text string) task.Priority {
	if urgentRe.MatchString(text) {
		return task.PriorityUrgent
	}
	if highRe.MatchString(lowPhraseRe.ReplaceAllString(text, " ")) {
		return task.PriorityHigh
	}
	if lowRe.MatchString(text) {
		return task.PriorityLow
	}
	return task.PriorityMedium
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
