package ics

import (
	"fmt"
	"strings"
	"time"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

type decodeState int

const (
	outsideEvent decodeState = iota
	insideEvent
)

// Decoder turns ICS text back into tasks.
type Decoder struct {
	// Resolver maps TZID names to offsets. Nil means LocationResolver.
	Resolver ZoneResolver
}

func NewDecoder() *Decoder {
	return &Decoder{Resolver: LocationResolver{}}
}

// Decode parses text with the default decoder.
func Decode(text string) ([]model.Task, error) {
	return NewDecoder().Decode(text)
}

// Decode walks the VEVENT blocks of text in source order. An event is kept
// only if it carries both a SUMMARY and a DTSTART. A date-time that cannot be
// parsed aborts the whole decode with a *MalformedDateError in the chain.
func (d *Decoder) Decode(text string) ([]model.Task, error) {
	var (
		state   = outsideEvent
		scratch model.Task
		nested  int
		tasks   = make([]model.Task, 0)
	)

	for _, ln := range unfoldLines(text) {
		name, rest := splitProperty(ln.text)

		switch state {
		case outsideEvent:
			if name == "BEGIN" && strings.EqualFold(propertyValue(rest), "VEVENT") {
				state = insideEvent
				scratch = model.Task{}
				nested = 0
			}

		case insideEvent:
			// Skip nested components such as VALARM.
			if name == "BEGIN" {
				nested++
				continue
			}
			if name == "END" {
				if nested > 0 {
					nested--
					continue
				}
				if strings.EqualFold(propertyValue(rest), "VEVENT") {
					if scratch.Title != "" && scratch.ScheduledDate != nil {
						tasks = append(tasks, scratch)
					}
					state = outsideEvent
				}
				continue
			}
			if nested > 0 {
				continue
			}

			if err := d.assign(&scratch, name, rest); err != nil {
				return nil, fmt.Errorf("ics: line %d: %s: %w", ln.number, name, err)
			}
		}
	}

	return tasks, nil
}

func (d *Decoder) assign(task *model.Task, name, rest string) error {
	switch name {
	case "SUMMARY":
		task.Title = textValue(rest)
	case "DESCRIPTION":
		task.Description = textValue(rest)
	case "LOCATION":
		task.Location = textValue(rest)
	case "UID":
		task.ID = textValue(rest)
	case "DTSTART", "DTEND":
		t, err := parseDateTime(rest, d.resolver())
		if err != nil {
			return err
		}
		if name == "DTSTART" {
			task.ScheduledDate = &t
		} else {
			task.DueDate = &t
		}
	case "DTSTAMP":
		// Best effort: a bad stamp only loses the creation date.
		t, err := parseDateTime(rest, d.resolver())
		if err != nil {
			appLog.Debug("ics: ignoring unparsable DTSTAMP", "value", propertyValue(rest), "err", err)
			return nil
		}
		task.CreationDate = &t
	}
	return nil
}

func (d *Decoder) resolver() ZoneResolver {
	if d.Resolver == nil {
		return LocationResolver{}
	}
	return d.Resolver
}

// ParseDateTime parses a token with the decoder's resolver.
func (d *Decoder) ParseDateTime(token string) (time.Time, error) {
	return parseDateTime(token, d.resolver())
}

type logicalLine struct {
	text   string
	number int // 1-based number of the first physical line
}

// unfoldLines normalises line endings and joins RFC 5545 continuation lines
// (those starting with a space or tab) onto their predecessor.
func unfoldLines(text string) []logicalLine {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []logicalLine
	for i, raw := range strings.Split(text, "\n") {
		if len(out) > 0 && raw != "" && (raw[0] == ' ' || raw[0] == '\t') {
			out[len(out)-1].text += raw[1:]
			continue
		}
		out = append(out, logicalLine{text: strings.TrimRight(raw, " \t"), number: i + 1})
	}
	return out
}

// splitProperty returns the upper-cased property name and everything after
// it, parameters included (";TZID=Europe/Paris:2024...").
func splitProperty(line string) (name, rest string) {
	i := strings.IndexAny(line, ":;")
	if i < 0 {
		return strings.ToUpper(strings.TrimSpace(line)), ""
	}
	return strings.ToUpper(strings.TrimSpace(line[:i])), line[i:]
}

// propertyValue drops the parameters and the separating colon.
func propertyValue(rest string) string {
	if _, v, ok := strings.Cut(rest, ":"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func textValue(rest string) string {
	return unescapeText(propertyValue(rest))
}
