package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskcal/internal/config"
	"taskcal/internal/ics"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/sink"
	"taskcal/internal/vault"
)

// TaskSource supplies the tasks to export.
type TaskSource interface {
	Scan(ctx context.Context) ([]model.Task, error)
}

// Result describes one export.
type Result struct {
	Tasks    int
	Events   int
	Calendar string
	BuiltAt  time.Time
}

// Runner turns discovered tasks into a calendar and hands it to the sinks.
// Runs are serialised; cron ticks never overlap.
type Runner struct {
	Source  TaskSource
	Encoder *ics.Encoder
	Sinks   []sink.Sink
	Verify  bool

	runMu sync.Mutex

	lastMu sync.RWMutex
	last   *Result
}

// New wires a Runner from configuration.
func New(cfg *config.Config) (*Runner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	enc := ics.NewEncoder()
	enc.ProdID = cfg.Calendar.ProdID
	enc.Name = cfg.Calendar.Name
	enc.DefaultLocation = cfg.Calendar.DefaultLocation
	enc.Location = loc

	return &Runner{
		Source: &vault.Scanner{
			Root:            cfg.Vault.Path,
			IgnoreCompleted: cfg.Vault.IgnoreCompleted,
			Location:        loc,
		},
		Encoder: enc,
		Sinks:   Sinks(cfg),
		Verify:  cfg.Calendar.Verify,
	}, nil
}

// Sinks builds the enabled sinks in a fixed order: file, caldav, gist.
func Sinks(cfg *config.Config) []sink.Sink {
	var out []sink.Sink
	if cfg.File.Enabled {
		out = append(out, &sink.FileSink{Path: cfg.File.Path})
	}
	if cfg.CalDAV.Enabled {
		out = append(out, &sink.CalDAVSink{
			URL:      cfg.CalDAV.URL,
			Username: cfg.CalDAV.Username,
			Password: cfg.CalDAV.Password,
		})
	}
	if cfg.Gist.Enabled {
		out = append(out, &sink.GistSink{
			GistID:   cfg.Gist.GistID,
			Filename: cfg.Gist.Filename,
			Token:    cfg.Gist.Token,
		})
	}
	return out
}

// Build scans and encodes without publishing.
func (r *Runner) Build(ctx context.Context) (Result, error) {
	tasks, err := r.Source.Scan(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("discover tasks: %w", err)
	}

	res := Result{
		Tasks:    len(tasks),
		Calendar: r.Encoder.EncodeCalendar(tasks),
		BuiltAt:  time.Now(),
	}
	for _, t := range tasks {
		if t.ScheduledDate != nil {
			res.Events++
		}
	}

	if r.Verify {
		n, err := ics.Verify(res.Calendar)
		if err != nil {
			return Result{}, err
		}
		if n != res.Events {
			return Result{}, fmt.Errorf("verify: parsed %d events, encoded %d", n, res.Events)
		}
	}

	r.lastMu.Lock()
	r.last = &res
	r.lastMu.Unlock()

	appLog.Info("calendar built", "tasks", res.Tasks, "events", res.Events)
	return res, nil
}

// Run builds the calendar and publishes it to every sink. A failing sink
// does not stop the others; all failures are returned joined.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	res, err := r.Build(ctx)
	if err != nil {
		return Result{}, err
	}

	if len(r.Sinks) == 0 {
		appLog.Warn("no sinks enabled; calendar not published")
	}

	var errs []error
	for _, s := range r.Sinks {
		if err := s.Publish(ctx, []byte(res.Calendar)); err != nil {
			appLog.Error("publish failed", err, "sink", s.Name())
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return res, errors.Join(errs...)
}

// Last returns the most recently built calendar, if any.
func (r *Runner) Last() (Result, bool) {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	if r.last == nil {
		return Result{}, false
	}
	return *r.last, true
}

// Schedule runs the pipeline on a cron spec in loc until ctx is cancelled.
// A tick that fires while a run is still busy is skipped.
func (r *Runner) Schedule(ctx context.Context, spec string, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx); err != nil {
			appLog.Error("scheduled export failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	appLog.Info("export scheduled", "spec", spec, "timezone", loc.String())
	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	appLog.Info("export scheduler stopped")
	return nil
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
