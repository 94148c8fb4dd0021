package ics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	appLog "taskcal/internal/log"
)

// dateTimeLayout is the ICS UTC "basic" date-time form.
const dateTimeLayout = "20060102T150405Z"

var (
	dateTimeRe = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})(T(\d{2})(\d{2})(\d{2})Z?)?$`)
	nonDigitRe = regexp.MustCompile(`\D`)

	gmtOffsetRe  = regexp.MustCompile(`^(?:GMT|UTC)(?:([+-])(\d{1,2})(?::?(\d{2}))?)?$`)
	isoOffsetRe  = regexp.MustCompile(`^([+-])(\d{2}):?(\d{2})$`)
	valueStartRe = regexp.MustCompile(`^\d{4}`)
)

// MalformedDateError reports a date-time token that could not be recovered,
// not even after stripping every non-digit character.
type MalformedDateError struct {
	Token string
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("ics: malformed date-time %q", e.Token)
}

// FormatDateTime renders t as YYYYMMDDTHHMMSSZ using its UTC fields.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(dateTimeLayout)
}

// ParseDateTime parses a bare or TZID-qualified ICS date-time token using
// the IANA timezone database for zone offsets.
//
// Accepted forms:
//   - 20240105T090000Z (UTC)
//   - 20240105T090000 (floating, read in the local zone)
//   - 20240105 (date only, local midnight)
//   - TZID=Europe/Paris:20240105T090000
//
// Tokens with stray separators ("2024-01-05T09:00:00Z") are retried with
// their digits only.
func ParseDateTime(token string) (time.Time, error) {
	return parseDateTime(token, LocationResolver{})
}

func parseDateTime(token string, resolver ZoneResolver) (time.Time, error) {
	token = strings.TrimLeft(strings.TrimSpace(token), ";:")
	zone, value := splitZone(token)

	m := dateTimeRe.FindStringSubmatch(value)
	if m == nil {
		m = dateTimeRe.FindStringSubmatch(digitsOnly(value))
	}
	if m == nil {
		return time.Time{}, &MalformedDateError{Token: token}
	}

	// The pattern only matches digits, so Atoi cannot fail here.
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	var hour, minute, second int
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[5])
		minute, _ = strconv.Atoi(m[6])
		second, _ = strconv.Atoi(m[7])
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)

	if strings.HasSuffix(m[4], "Z") {
		return t, nil
	}
	return t.Add(-resolveOffset(resolver, zone, t)), nil
}

// splitZone separates an optional zone prefix ("TZID=Europe/Paris:",
// ";TZID=Europe/Paris:", "Europe/Paris:") from the date-time value.
func splitZone(token string) (zone, value string) {
	token = strings.TrimLeft(strings.TrimSpace(token), ";:")
	if token == "" || (token[0] >= '0' && token[0] <= '9') {
		return "", token
	}

	// The value starts after the first colon that is followed by a year.
	// Offset-style zones ("+02:00") contain colons of their own.
	cut := -1
	for i := 0; i < len(token); i++ {
		if token[i] == ':' && valueStartRe.MatchString(token[i+1:]) {
			cut = i
			break
		}
	}
	if cut < 0 {
		cut = strings.LastIndex(token, ":")
	}
	if cut < 0 {
		return "", token
	}

	return zoneFromParams(token[:cut]), strings.TrimSpace(token[cut+1:])
}

// zoneFromParams extracts the TZID from a ";"-separated parameter list.
// A list without any NAME=value pair is taken as a bare zone name.
func zoneFromParams(params string) string {
	hasParam := false
	for _, p := range strings.Split(params, ";") {
		name, val, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		hasParam = true
		if strings.EqualFold(strings.TrimSpace(name), "TZID") {
			return strings.Trim(strings.TrimSpace(val), `"`)
		}
	}
	if hasParam {
		return ""
	}
	return strings.TrimSpace(params)
}

// digitsOnly strips separators from a mangled token and re-inserts the "T"
// so the strict pattern can match again. A trailing Z is kept.
func digitsOnly(value string) string {
	utc := strings.HasSuffix(strings.ToUpper(value), "Z")
	d := nonDigitRe.ReplaceAllString(value, "")
	switch len(d) {
	case 14:
		d = d[:8] + "T" + d[8:]
	case 12:
		d = d[:8] + "T" + d[8:] + "00"
	default:
		return d
	}
	if utc {
		d += "Z"
	}
	return d
}

// ZoneResolver maps a zone name ("" meaning the system zone) to its UTC
// offset at the given instant, in "GMT+2" or "+05:30" form.
type ZoneResolver interface {
	Offset(zone string, at time.Time) (string, error)
}

// LocationResolver resolves zones through time.LoadLocation. Zone names that
// already are offsets ("GMT-5", "+02:00") are returned unchanged.
type LocationResolver struct{}

func (LocationResolver) Offset(zone string, at time.Time) (string, error) {
	if _, err := parseOffset(zone); err == nil {
		return zone, nil
	}
	loc := time.Local
	if zone != "" {
		var err error
		loc, err = time.LoadLocation(zone)
		if err != nil {
			return "", fmt.Errorf("ics: unknown zone %q: %w", zone, err)
		}
	}
	_, secs := at.In(loc).Zone()
	return formatOffset(secs), nil
}

func formatOffset(secs int) string {
	if secs%3600 == 0 {
		return fmt.Sprintf("GMT%+d", secs/3600)
	}
	sign := '+'
	if secs < 0 {
		sign = '-'
		secs = -secs
	}
	return fmt.Sprintf("%c%02d:%02d", sign, secs/3600, secs%3600/60)
}

// parseOffset understands GMT±H[H][:MM], bare GMT/UTC and ±HH:MM.
func parseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var sign, hh, mm string
	if m := gmtOffsetRe.FindStringSubmatch(s); m != nil {
		sign, hh, mm = m[1], m[2], m[3]
	} else if m := isoOffsetRe.FindStringSubmatch(s); m != nil {
		sign, hh, mm = m[1], m[2], m[3]
	} else {
		return 0, fmt.Errorf("ics: unrecognised offset %q", s)
	}
	if sign == "" {
		return 0, nil
	}

	h, _ := strconv.Atoi(hh)
	var minutes int
	if mm != "" {
		minutes, _ = strconv.Atoi(mm)
	}
	d := time.Duration(h)*time.Hour + time.Duration(minutes)*time.Minute
	if sign == "-" {
		d = -d
	}
	return d, nil
}

// resolveOffset never fails: anything the resolver cannot answer falls back
// to the system zone's offset at that instant.
func resolveOffset(resolver ZoneResolver, zone string, at time.Time) time.Duration {
	name, err := resolver.Offset(zone, at)
	if err == nil {
		d, perr := parseOffset(name)
		if perr == nil {
			return d
		}
		err = perr
	}

	appLog.Warn("ics: zone offset unresolved, using local offset", "zone", zone, "err", err)
	_, secs := at.In(time.Local).Zone()
	return time.Duration(secs) * time.Second
}
