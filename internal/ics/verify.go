package ics

import (
	"errors"
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"
)

// Verify re-reads an encoded calendar with an independent iCalendar parser
// and returns the number of events. Every event must carry a UID and a
// DTSTART the parser can interpret.
func Verify(text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, errors.New("ics: verify: empty calendar")
	}

	cal, err := ical.ParseCalendar(strings.NewReader(text))
	if err != nil {
		return 0, fmt.Errorf("ics: verify: %w", err)
	}

	events := cal.Events()
	for i, ev := range events {
		uid := ev.GetProperty(ical.ComponentPropertyUniqueId)
		if uid == nil || uid.Value == "" {
			return 0, fmt.Errorf("ics: verify: event %d has no UID", i)
		}
		if p := ev.GetProperty(ical.ComponentPropertyDtStart); p == nil || p.Value == "" {
			return 0, fmt.Errorf("ics: verify: event %q has no DTSTART", uid.Value)
		}
		if _, err := ev.GetStartAt(); err != nil {
			return 0, fmt.Errorf("ics: verify: event %q: %w", uid.Value, err)
		}
	}
	return len(events), nil
}
