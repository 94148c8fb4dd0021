package ics

import (
	"regexp"
	"strconv"
	"strings"
)

var timeRangeRe = regexp.MustCompile(`(\d{1,2}:\d{2})(?:\s*-\s*(\d{1,2}:\d{2}))?`)

// TimeRange is the first "H:MM" or "H:MM-H:MM" token found in a text.
type TimeRange struct {
	Start string // "9:30", empty when nothing matched
	End   string // "10:15", empty for a single time

	// span of the whole match in the source text
	from, to int
}

// ExtractTimeRange scans text for an embedded time or time range. Only the
// first match is considered.
func ExtractTimeRange(text string) TimeRange {
	loc := timeRangeRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return TimeRange{}
	}
	r := TimeRange{
		Start: text[loc[2]:loc[3]],
		from:  loc[0],
		to:    loc[1],
	}
	if loc[4] >= 0 {
		r.End = text[loc[4]:loc[5]]
	}
	return r
}

// Found reports whether a start time was matched.
func (r TimeRange) Found() bool {
	return r.Start != ""
}

// Strip returns text with the matched token removed, along with a "-"
// separator left dangling at either edge of the cut ("Call - 14:00").
// Hyphens inside words are kept. The whitespace around the removed span
// collapses to one space and the result is trimmed.
func (r TimeRange) Strip(text string) string {
	if !r.Found() || r.to > len(text) {
		return strings.TrimSpace(text)
	}
	before := strings.TrimRight(text[:r.from], " \t")
	if rest, ok := strings.CutSuffix(before, "-"); ok && (rest == "" || strings.HasSuffix(rest, " ") || strings.HasSuffix(rest, "\t")) {
		before = strings.TrimRight(rest, " \t")
	}
	after := strings.TrimLeft(text[r.to:], " \t")
	if rest, ok := strings.CutPrefix(after, "-"); ok && (rest == "" || strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "\t")) {
		after = strings.TrimLeft(rest, " \t")
	}
	if before != "" && after != "" {
		return strings.TrimSpace(before + " " + after)
	}
	return strings.TrimSpace(before + after)
}

// clock splits "H:MM" into hour and minute.
func clock(s string) (hour, minute int, ok bool) {
	h, m, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(m)
	if err != nil {
		return 0, 0, false
	}
	return hour, minute, true
}
