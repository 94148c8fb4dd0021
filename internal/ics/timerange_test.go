package ics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTimeRange(t *testing.T) {
	var tests = []struct {
		text       string
		start, end string
		stripped   string
	}{
		{"Meeting 9:30-10:15 with team", "9:30", "10:15", "Meeting with team"},
		{"Standup 09:00 daily", "09:00", "", "Standup daily"},
		{"Call 14:00 - 15:30", "14:00", "15:30", "Call"},
		{"8:00-9:00 gym", "8:00", "9:00", "gym"},
		{"First 7:00 then 8:00-9:00", "7:00", "", "First then 8:00-9:00"},
		{"Call - 14:00", "14:00", "", "Call"},
		{"14:00 - Standup", "14:00", "", "Standup"},
		{"Follow-up - 9:00 with Anna", "9:00", "", "Follow-up with Anna"},
		{"Follow-up with Anna", "", "", "Follow-up with Anna"},
		{"  plain text  ", "", "", "plain text"},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		r := ExtractTimeRange(tt.text)
		assert.Equal(t, tt.start, r.Start, tt.text)
		assert.Equal(t, tt.end, r.End, tt.text)
		assert.Equal(t, tt.start != "", r.Found(), tt.text)
		assert.Equal(t, tt.stripped, r.Strip(tt.text), tt.text)
	}
}

func TestClock(t *testing.T) {
	h, m, ok := clock("9:05")
	assert.True(t, ok)
	assert.Equal(t, 9, h)
	assert.Equal(t, 5, m)

	_, _, ok = clock("")
	assert.False(t, ok)
	_, _, ok = clock("nine")
	assert.False(t, ok)
}
