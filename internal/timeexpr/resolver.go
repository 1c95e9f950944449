// Package timeexpr turns natural-language time phrases into instants.
package timeexpr

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DefaultDelay is used when an expression cannot be understood at all.
const DefaultDelay = time.Hour

var (
	relativeRe = regexp.MustCompile(`(?i)^\+?(\d+)\s*(m|mins?|minutes?|h|hrs?|hours?|d|days?|w|weeks?)$`)

	// A month name with no day or time is usually a word in the title
	// ("Ask Jan", "the March numbers"), not a due date.
	bareMonthRe = regexp.MustCompile(`(?i)^(?:(?:in|on|by)\s+)?(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?$`)
)

// Match is a date expression found inside a larger text.
type Match struct {
	Text  string
	Index int
	Time  time.Time
}

type Resolver struct {
	parser *when.Parser
	now    func() time.Time
}

// New builds a resolver. A nil now uses time.Now.
func New(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Resolver{parser: w, now: now}
}

// Detect finds the first date expression in text. Bare month names are
// skipped and the search continues after them. Parse errors count as no
// match.
func (r *Resolver) Detect(text string) (Match, bool) {
	now := r.now()
	for offset := 0; offset < len(text); {
		rest := text[offset:]
		if strings.TrimSpace(rest) == "" {
			break
		}
		res, err := r.parser.Parse(rest, now)
		if err != nil || res == nil {
			break
		}
		matched := strings.TrimSpace(res.Text)
		if matched == "" {
			break
		}
		if !bareMonthRe.MatchString(matched) {
			return Match{Text: matched, Index: offset + res.Index, Time: res.Time}, true
		}
		next := res.Index + len(res.Text)
		if next <= 0 {
			break
		}
		offset += next
	}
	return Match{}, false
}

// Resolve turns a snooze expression into an instant. It tries a relative
// token like "+2h", then general date parsing, and otherwise returns one
// hour from now. It never fails.
func (r *Resolver) Resolve(expr string) time.Time {
	now := r.now()
	expr = strings.TrimSpace(expr)

	if d, ok := ParseRelative(expr); ok {
		return now.Add(d)
	}
	if m, ok := r.Detect(expr); ok {
		return m.Time
	}
	return now.Add(DefaultDelay)
}

// ParseRelative parses "+<n><unit>" with unit m, h, d or w (long forms
// accepted).
func ParseRelative(expr string) (time.Duration, bool) {
	m := relativeRe.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}

	var unit time.Duration
	switch strings.ToLower(m[2])[0] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, false
	}
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
