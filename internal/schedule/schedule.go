// Package schedule turns loose visit-time phrases into approximate timestamps.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Hint is the outcome of parsing a schedule phrase. At is nil when nothing was recognised;
// Note is a short suffix for confirmation messages.
type Hint struct {
	At   *time.Time
	Note string
}

// Parser converts free text into a Hint. Implementations must not fail: an unparsed phrase
// is reported through Hint.Note only.
type Parser interface {
	Parse(text string, now time.Time) Hint
}

type hourRule struct {
	token string
	hour  int
}

// Keyword recognises "tonight" and "tomorrow" with a handful of hour hints.
type Keyword struct{}

var (
	tonightRules = []hourRule{{"7", 19}, {"8", 20}, {"9", 21}}
	// checked in order; a later match overrides an earlier one
	tomorrowRules = []hourRule{{"am", 10}, {"pm", 14}, {"2", 14}, {"3", 15}}
)

const (
	tonightDefaultHour  = 20
	tomorrowDefaultHour = 14

	undeterminedNote = " (Could not precisely determine schedule)"
)

// Parse implements Parser.
func (Keyword) Parse(text string, now time.Time) Hint {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Hint{}
	}

	switch {
	case strings.Contains(lower, "tonight"):
		at := atHour(now, 0, pickHour(lower, tonightDefaultHour, tonightRules))
		return Hint{At: &at, Note: fmt.Sprintf(" (Scheduled for approx. tonight at %s)", at.Format("03:04 PM"))}
	case strings.Contains(lower, "tomorrow"):
		at := atHour(now, 1, pickHour(lower, tomorrowDefaultHour, tomorrowRules))
		return Hint{At: &at, Note: fmt.Sprintf(" (Scheduled for approx. tomorrow at %s)", at.Format("03:04 PM"))}
	}
	return Hint{Note: undeterminedNote}
}

func pickHour(text string, hour int, rules []hourRule) int {
	for _, r := range rules {
		if strings.Contains(text, r.token) {
			hour = r.hour
		}
	}
	return hour
}

func atHour(now time.Time, dayOffset, hour int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+dayOffset, hour, 0, 0, 0, now.Location())
}
