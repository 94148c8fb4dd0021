package vault

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

const dateLayout = "2006-01-02"

var (
	// "- [ ] text", "* [x] text", "1. [ ] text"
	taskLineRe = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+\[(.)\]\s+(.*)$`)
	markerRe   = regexp.MustCompile(`(⏳|📅|🛫|➕|✅|❌)\x{FE0F}?\s*(\d{4}-\d{2}-\d{2})`)
	idRe       = regexp.MustCompile(`🆔\x{FE0F}?\s*([A-Za-z0-9_-]+)`)
	locationRe = regexp.MustCompile(`@location\(([^)]*)\)`)
	dailyRe    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})$`)
)

// Scanner discovers tasks in a tree of Markdown notes.
type Scanner struct {
	Root            string
	IgnoreCompleted bool
	// Location is the zone note dates are read in. Nil means time.Local.
	Location *time.Location
}

// Scan walks Root in lexical order and parses every *.md file. Hidden
// directories (".obsidian", ".git", ...) are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]model.Task, error) {
	var files []string
	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.Root, err)
	}

	tasks := make([]model.Task, 0)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := s.parseFile(path)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, found...)
	}

	appLog.Info("vault scanned", "root", s.Root, "files", len(files), "tasks", len(tasks))
	return tasks, nil
}

func (s *Scanner) parseFile(path string) ([]model.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	source := path
	if rel, err := filepath.Rel(s.Root, path); err == nil {
		source = filepath.ToSlash(rel)
	}
	tasks, err := s.Parse(f, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	appLog.Debug("vault file parsed", "path", source, "tasks", len(tasks))
	return tasks, nil
}

// Parse extracts checklist items from one note. source is recorded on every
// task; when it names a daily note ("2024-01-05.md") undated tasks are
// scheduled on that day.
func (s *Scanner) Parse(r io.Reader, source string) ([]model.Task, error) {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	var daily *time.Time
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if m := dailyRe.FindStringSubmatch(base); m != nil {
		if t, err := time.ParseInLocation(dateLayout, m[1], loc); err == nil {
			daily = &t
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var tasks []model.Task
	for sc.Scan() {
		m := taskLineRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		task, ok := parseItem(m[1], m[2], loc)
		if !ok {
			continue
		}
		if task.Completed && s.IgnoreCompleted {
			continue
		}
		if task.ScheduledDate == nil && daily != nil {
			task.ScheduledDate = model.TimePtr(*daily)
		}
		task.Source = source
		tasks = append(tasks, task)
	}
	return tasks, sc.Err()
}

// parseItem reads the markers of one checklist item and strips them from
// its text.
func parseItem(status, text string, loc *time.Location) (model.Task, bool) {
	var task model.Task
	task.Completed = strings.ContainsAny(status, "xX-")

	var start *time.Time
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		t, err := time.ParseInLocation(dateLayout, m[2], loc)
		if err != nil {
			continue
		}
		switch m[1] {
		case "⏳":
			task.ScheduledDate = model.TimePtr(t)
		case "🛫":
			start = model.TimePtr(t)
		case "📅":
			task.DueDate = model.TimePtr(t)
		case "➕":
			task.CreationDate = model.TimePtr(t)
		case "✅", "❌":
			task.Completed = true
		}
	}
	text = markerRe.ReplaceAllString(text, "")

	if m := idRe.FindStringSubmatch(text); m != nil {
		task.ID = m[1]
		text = idRe.ReplaceAllString(text, "")
	}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		task.Location = strings.TrimSpace(m[1])
		text = locationRe.ReplaceAllString(text, "")
	}

	if task.ScheduledDate == nil {
		if start != nil {
			task.ScheduledDate = start
		} else if task.DueDate != nil {
			task.ScheduledDate = model.TimePtr(*task.DueDate)
		}
	}

	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return model.Task{}, false
	}
	task.Title = text
	task.Description = text
	return task, true
}
