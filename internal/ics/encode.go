package ics

import (
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

// Calendar header and event defaults used by NewEncoder.
const (
	DefaultProdID   = "-//taskcal//EN"
	DefaultCalName  = "Tasks"
	DefaultLocation = "ONLINE"

	// descriptionPlaceholder is written instead of the task body; the body
	// already lives in SUMMARY.
	descriptionPlaceholder = "TODO"

	crlf = "\r\n"
)

// Encoder turns tasks into VEVENT blocks and a VCALENDAR document.
//
// The zero value is usable. Now, Suffix and Location are the only ambient
// inputs; tests pin them to get byte-identical output.
type Encoder struct {
	ProdID string
	Name   string

	// DefaultLocation is emitted for tasks without a location of their own.
	DefaultLocation string

	// Location is the wall-clock zone in which "9:30" style tokens from the
	// description are applied. Nil means time.Local.
	Location *time.Location

	// Now supplies the creation instant for tasks without one.
	Now func() time.Time

	// Suffix disambiguates derived UIDs.
	Suffix func() string
}

// NewEncoder returns an Encoder with the stock calendar headers.
func NewEncoder() *Encoder {
	return &Encoder{
		ProdID:          DefaultProdID,
		Name:            DefaultCalName,
		DefaultLocation: DefaultLocation,
		Location:        time.Local,
		Now:             time.Now,
		Suffix:          randomSuffix,
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// EncodeCalendar wraps the events of all scheduled tasks in a VCALENDAR
// envelope. Lines are CRLF separated and never blank.
func (e *Encoder) EncodeCalendar(tasks []model.Task) string {
	var out lines
	out.add("BEGIN", "VCALENDAR")
	out.add("VERSION", "2.0")
	out.add("PRODID", orDefault(e.ProdID, DefaultProdID))
	out.add("X-WR-CALNAME", orDefault(e.Name, DefaultCalName))
	out.add("CALSCALE", "GREGORIAN")

	skipped := 0
	for _, task := range tasks {
		ev := e.EncodeEvent(task)
		if ev == nil {
			skipped++
			continue
		}
		out = append(out, ev...)
	}
	out.add("END", "VCALENDAR")

	appLog.Debug("ics: calendar encoded", "tasks", len(tasks), "skipped", skipped)
	return strings.Join(out, crlf)
}

// EncodeEvent returns the lines of one VEVENT block, or nil when the task
// has no scheduled date.
func (e *Encoder) EncodeEvent(task model.Task) []string {
	if task.ScheduledDate == nil {
		return nil
	}

	begin := *task.ScheduledDate
	end := begin
	if task.DueDate != nil {
		end = *task.DueDate
	}
	creation := e.now()
	if task.CreationDate != nil {
		creation = *task.CreationDate
	}

	text := task.Description
	if strings.TrimSpace(text) == "" {
		text = task.Title
	}

	tr := ExtractTimeRange(text)
	if h, m, ok := clock(tr.Start); ok {
		begin = setClock(begin, h, m, e.location())
		if h, m, ok := clock(tr.End); ok {
			end = setClock(end, h, m, e.location())
		}
	}
	summary := tr.Strip(text)

	uid := task.ID
	if uid == "" {
		uid = summary + FormatDateTime(creation) + "-" + e.suffix()
	}

	location := task.Location
	if location == "" {
		location = e.DefaultLocation
	}

	var out lines
	out.add("BEGIN", "VEVENT")
	out.add("UID", escapeText(uid))
	out.add("SUMMARY", escapeText(summary))
	out.add("DTSTAMP", FormatDateTime(creation))
	out.add("DTSTART", FormatDateTime(begin))
	out.add("DTEND", FormatDateTime(end))
	out.add("DESCRIPTION", descriptionPlaceholder)
	out.add("LOCATION", escapeText(location))
	out.add("END", "VEVENT")
	return out
}

func (e *Encoder) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Encoder) suffix() string {
	if e.Suffix == nil {
		return randomSuffix()
	}
	return e.Suffix()
}

func (e *Encoder) location() *time.Location {
	if e.Location == nil {
		return time.Local
	}
	return e.Location
}

// setClock moves t to hour:minute on the same calendar day in loc, keeping
// seconds.
func setClock(t time.Time, hour, minute int, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), hour, minute, lt.Second(), lt.Nanosecond(), loc)
}

// lines only ever holds non-empty content lines.
type lines []string

func (l *lines) add(name, value string) {
	if value == "" {
		return
	}
	*l = append(*l, name+":"+value)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var (
	textEscaper   = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\r", `\n`, "\n", `\n`)
	textUnescaper = strings.NewReplacer(`\\`, `\`, `\;`, ";", `\,`, ",", `\n`, "\n", `\N`, "\n")
)

// escapeText applies RFC 5545 TEXT escaping.
func escapeText(s string) string {
	return textEscaper.Replace(s)
}

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
