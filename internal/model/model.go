package model

import "time"

// Task is the work item exchanged between task discovery, the ICS codec and
// the publishing sinks. Date fields are pointers because every one of them is
// optional in the source notes.
type Task struct {
	// ID is an opaque stable identifier. When empty the encoder derives one.
	ID string `json:"id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	// ScheduledDate is the begin instant. Tasks without it are not exported.
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	// DueDate is the end instant; it defaults to ScheduledDate.
	DueDate *time.Time `json:"due_date,omitempty"`
	// CreationDate defaults to the encode time.
	CreationDate *time.Time `json:"creation_date,omitempty"`

	Completed bool   `json:"completed,omitempty"`
	Source    string `json:"source,omitempty"` // note path the task came from
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
