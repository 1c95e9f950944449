package timeexpr

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 10, 9, 30, 0, 0, time.Local)

func fixedNow() time.Time { return base }

func TestParseRelative(t *testing.T) {
	tests := []struct {
		expr string
		want time.Duration
	}{
		{"+30m", 30 * time.Minute},
		{"+2h", 2 * time.Hour},
		{"+1d", 24 * time.Hour},
		{"+3w", 3 * 7 * 24 * time.Hour},
		{"45m", 45 * time.Minute},
		{"+2 hours", 2 * time.Hour},
		{"+10 mins", 10 * time.Minute},
		{"+1 week", 7 * 24 * time.Hour},
		{"+0h", 0},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, ok := ParseRelative(tt.expr)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRelative_Rejects(t *testing.T) {
	for _, expr := range []string{"", "+h", "soon", "+2y", "2 months", "+-1h"} {
		_, ok := ParseRelative(expr)
		assert.False(t, ok, "expr %q", expr)
	}
}

func TestResolve_RelativeIsExact(t *testing.T) {
	r := New(fixedNow)
	for n := 1; n <= 5; n++ {
		assert.Equal(t, base.Add(time.Duration(n)*time.Minute), r.Resolve("+"+strconv.Itoa(n)+"m"))
		assert.Equal(t, base.Add(time.Duration(n)*time.Hour), r.Resolve("+"+strconv.Itoa(n)+"h"))
		assert.Equal(t, base.Add(time.Duration(n)*24*time.Hour), r.Resolve("+"+strconv.Itoa(n)+"d"))
		assert.Equal(t, base.Add(time.Duration(n)*7*24*time.Hour), r.Resolve("+"+strconv.Itoa(n)+"w"))
	}
}

func TestResolve_FallsBackToNaturalLanguage(t *testing.T) {
	r := New(fixedNow)
	got := r.Resolve("tomorrow 5pm")

	want := base.AddDate(0, 0, 1)
	assert.Equal(t, want.Day(), got.Day())
	assert.Equal(t, 17, got.Hour())
	assert.Equal(t, 0, got.Minute())
}

func TestResolve_DefaultsToOneHour(t *testing.T) {
	r := New(fixedNow)
	assert.Equal(t, base.Add(time.Hour), r.Resolve("whenever you feel like it"))
	assert.Equal(t, base.Add(time.Hour), r.Resolve(""))
}

func TestDetect(t *testing.T) {
	r := New(fixedNow)

	m, ok := r.Detect("Pay electricity bill @ali #finance tomorrow 5pm")
	require.True(t, ok)
	assert.Equal(t, "tomorrow 5pm", m.Text)
	assert.Equal(t, base.AddDate(0, 0, 1).Day(), m.Time.Day())
	assert.Equal(t, 17, m.Time.Hour())

	_, ok = r.Detect("buy milk")
	assert.False(t, ok)

	_, ok = r.Detect("   ")
	assert.False(t, ok)
}

func TestDetect_IgnoresBareMonthNames(t *testing.T) {
	r := New(fixedNow)

	for _, text := range []string{
		"Ask Jan about the report",
		"Update the March numbers",
		"Plan the May offsite",
		"Review dec budget",
	} {
		t.Run(text, func(t *testing.T) {
			_, ok := r.Detect(text)
			assert.False(t, ok)
		})
	}
}

func TestDetect_SkipsMonthThenFindsDate(t *testing.T) {
	r := New(fixedNow)
	text := "Ask Jan about the report tomorrow 5pm"

	m, ok := r.Detect(text)
	require.True(t, ok)
	assert.Equal(t, "tomorrow 5pm", m.Text)
	assert.Equal(t, strings.Index(text, "tomorrow"), m.Index)
	assert.Equal(t, 17, m.Time.Hour())
}

func TestParseRelative_Overflow(t *testing.T) {
	for _, expr := range []string{"+999999999999w", "+9999999999999d", "+99999999999999999m"} {
		_, ok := ParseRelative(expr)
		assert.False(t, ok, "expr %q", expr)
	}

	r := New(fixedNow)
	assert.Equal(t, base.Add(time.Hour), r.Resolve("+999999999999w"))
}
