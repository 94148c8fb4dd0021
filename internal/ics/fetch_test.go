package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nSUMMARY:Remote\r\nDTSTART:20240105T090000Z\r\nEND:VEVENT\r\nEND:VCALENDAR"

func TestFetchOneCachesAndRevalidates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		assert.Equal(t, "text/calendar", r.Header.Get("Accept"))
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", URL: srv.URL + "/cal.ics?token=secret"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, feed, string(first.Body))

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, feed, string(second.Body))
	assert.EqualValues(t, 2, calls.Load())

	tasks, err := Decode(string(second.Body))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Remote", tasks[0].Title)
}

func TestFetchOneFallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", URL: srv.URL}

	_, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, feed, string(res.Body))
}

func TestFetchOneRejectsOversizedFeed(t *testing.T) {
	var big atomic.Bool
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case fail.Load():
			http.Error(w, "down", http.StatusBadGateway)
		case big.Load():
			_, _ = w.Write([]byte(feed + strings.Repeat("X", 100)))
		default:
			_, _ = w.Write([]byte(feed))
		}
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	f.MaxBytes = int64(len(feed))
	src := Source{ID: "remote", URL: srv.URL}

	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err, "a body of exactly MaxBytes is accepted")
	assert.Equal(t, feed, string(res.Body))

	big.Store(true)
	_, err = f.FetchOne(context.Background(), src)
	assert.ErrorContains(t, err, "exceeds")

	// The oversized body must not have replaced the cached copy.
	fail.Store(true)
	res, err = f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, feed, string(res.Body))
}

func TestFetchOneErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Source{ID: "x", URL: srv.URL})
	assert.ErrorContains(t, err, "404")
}

func TestFetchOneBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "admin" || p != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	res, err := NewFetcher(t.TempDir()).FetchOne(context.Background(),
		Source{ID: "dav", URL: srv.URL, Username: "admin", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, feed, string(res.Body))
}

func TestFetchAllCollectsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	results, err := NewFetcher(t.TempDir()).FetchAll(context.Background(), []Source{
		{ID: "ok", URL: srv.URL},
		{ID: "empty"},
	})
	assert.Len(t, results, 1)
	assert.ErrorContains(t, err, "empty: source URL is empty")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private.ics?token=abcd"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
