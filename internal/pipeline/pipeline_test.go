package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskcal/internal/config"
	"taskcal/internal/ics"
	"taskcal/internal/model"
	"taskcal/internal/sink"
)

type staticSource struct {
	tasks []model.Task
	err   error
}

func (s staticSource) Scan(context.Context) ([]model.Task, error) {
	return s.tasks, s.err
}

type recordingSink struct {
	name  string
	err   error
	calls atomic.Int32
	body  atomic.Value
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, body []byte) error {
	s.calls.Add(1)
	s.body.Store(string(body))
	return s.err
}

func testRunner(sinks ...sink.Sink) *Runner {
	enc := ics.NewEncoder()
	enc.Location = time.UTC
	enc.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	enc.Suffix = func() string { return "s" }

	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	return &Runner{
		Source: staticSource{tasks: []model.Task{
			{Title: "Meeting 9:30-10:15 with team", Description: "Meeting 9:30-10:15 with team", ScheduledDate: &start},
			{Title: "someday"},
		}},
		Encoder: enc,
		Sinks:   sinks,
		Verify:  true,
	}
}

func TestRunPublishesToAllSinks(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	r := testRunner(a, b)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Tasks)
	assert.Equal(t, 1, res.Events)
	assert.Contains(t, res.Calendar, "SUMMARY:Meeting with team")

	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
	assert.Equal(t, res.Calendar, a.body.Load())

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, res, last)
}

func TestRunContinuesAfterSinkFailure(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("offline")}
	good := &recordingSink{name: "good"}

	_, err := testRunner(bad, good).Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad: offline")
	assert.EqualValues(t, 1, good.calls.Load())
}

func TestRunDiscoveryFailure(t *testing.T) {
	s := &recordingSink{name: "s"}
	r := testRunner(s)
	r.Source = staticSource{err: errors.New("disk gone")}

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "discover tasks: disk gone")
	assert.Zero(t, s.calls.Load())

	_, ok := r.Last()
	assert.False(t, ok)
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(notes, "todo.md"),
		[]byte("- [ ] Dentist 14:00 ⏳ 2024-03-01\n- [x] done ⏳ 2024-03-02\n"), 0o600))

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Vault.Path = notes
	cfg.File.Path = filepath.Join(dir, "out", "tasks.ics")
	cfg.Calendar.Name = "Vault"

	r, err := New(cfg)
	require.NoError(t, err)
	require.Len(t, r.Sinks, 1)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Events)

	data, err := os.ReadFile(cfg.File.Path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "X-WR-CALNAME:Vault")
	assert.Contains(t, text, "SUMMARY:Dentist")
	assert.Contains(t, text, "DTSTART:20240301T140000Z")
	assert.NotContains(t, text, "done")
	for _, line := range strings.Split(text, "\r\n") {
		assert.NotEmpty(t, line)
	}
}

func TestSinksFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CalDAV = config.CalDAVSinkConfig{Enabled: true, URL: "https://dav.example.com/a.ics"}
	cfg.Gist = config.GistSinkConfig{Enabled: true, GistID: "g", Filename: "f.ics", Token: "t"}

	var names []string
	for _, s := range Sinks(cfg) {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"file", "caldav", "gist"}, names)
}

func TestNewRejectsBadTimezone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "Mars/Colony"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestScheduleInvalidSpec(t *testing.T) {
	err := testRunner().Schedule(context.Background(), "not a cron spec", time.UTC)
	assert.Error(t, err)
}

func TestScheduleRunsUntilCancelled(t *testing.T) {
	s := &recordingSink{name: "s"}
	r := testRunner(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Schedule(ctx, "@every 1s", time.UTC) }()

	require.Eventually(t, func() bool { return s.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Schedule did not return after cancel")
	}
}
