package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"taskcal/internal/fsutil"
	appLog "taskcal/internal/log"
)

// Sink receives the final calendar text. It does not interpret it.
type Sink interface {
	Name() string
	Publish(ctx context.Context, body []byte) error
}

// FileSink writes the calendar to a local path.
type FileSink struct {
	Path string
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Publish(ctx context.Context, body []byte) error {
	if s.Path == "" {
		return errors.New("file sink: path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.Path, body); err != nil {
		return fmt.Errorf("file sink: %w", err)
	}
	appLog.Info("calendar written", "path", s.Path, "bytes", len(body))
	return nil
}

// CalDAVSink stores the calendar as one resource of a CalDAV collection.
type CalDAVSink struct {
	URL      string
	Username string
	Password string
	Client   *http.Client
}

func (s *CalDAVSink) Name() string { return "caldav" }

func (s *CalDAVSink) Publish(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("caldav sink: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}

	resp, err := httpClient(s.Client).Do(req)
	if err != nil {
		return fmt.Errorf("caldav sink: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("caldav sink: %w", err)
	}
	appLog.Info("calendar uploaded", "sink", "caldav", "host", hostOf(s.URL), "status", resp.StatusCode)
	return nil
}

const githubAPI = "https://api.github.com"

// GistSink replaces one file of an existing GitHub Gist, giving the
// calendar a stable raw URL that calendar apps can subscribe to.
type GistSink struct {
	GistID   string
	Filename string
	Token    string

	// BaseURL overrides the GitHub API root.
	BaseURL string
	// Client is the transport wrapped by the OAuth2 token client.
	Client *http.Client
}

func (s *GistSink) Name() string { return "gist" }

type gistFile struct {
	Content string `json:"content"`
}

type gistPatch struct {
	Files map[string]gistFile `json:"files"`
}

func (s *GistSink) Publish(ctx context.Context, body []byte) error {
	if s.GistID == "" || s.Filename == "" {
		return errors.New("gist sink: gist id and filename are required")
	}

	payload, err := json.Marshal(gistPatch{Files: map[string]gistFile{
		s.Filename: {Content: string(body)},
	}})
	if err != nil {
		return fmt.Errorf("gist sink: %w", err)
	}

	base := strings.TrimSuffix(s.BaseURL, "/")
	if base == "" {
		base = githubAPI
	}
	endpoint := base + "/gists/" + url.PathEscape(s.GistID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gist sink: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := s.oauthClient(ctx).Do(req)
	if err != nil {
		return fmt.Errorf("gist sink: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("gist sink: %w", err)
	}
	appLog.Info("calendar uploaded", "sink", "gist", "gist_id", s.GistID, "file", s.Filename)
	return nil
}

func (s *GistSink) oauthClient(ctx context.Context) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient(s.Client))
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.Token, TokenType: "Bearer"})
	return oauth2.NewClient(ctx, ts)
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// checkStatus turns a non-2xx response into an error quoting the start of
// the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return fmt.Errorf("unexpected status %s: %s", resp.Status, msg)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
