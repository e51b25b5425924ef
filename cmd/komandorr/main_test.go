package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nomis52/komandorr/poller"
	"github.com/nomis52/komandorr/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, feedURL, stateDir string, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`feed:
  url: %s
state:
  backend: disk
  path: %s
logging:
  level: error
  output: stderr
`, feedURL, stateDir)
	content += strings.Join(extra, "")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPollCmd(t *testing.T) {
	feed := feedServer(t, `[{"id":"a","title":"Morning Show","subtitle":"S01E01","progress":0},{"id":"b","title":"Evening News","progress":55}]`)
	cfg := writeConfig(t, feed.URL, t.TempDir())

	out, err := execute(t, "poll", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Active (2)")
	assert.Contains(t, out, "Morning Show")
	assert.Contains(t, out, "Evening News")
	assert.Contains(t, out, "unknown", "activity first seen mid-way has no start time")
	assert.Contains(t, out, "peak:")
}

func TestPollCmd_PushesMetrics(t *testing.T) {
	var requests atomic.Int32
	vm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		requests.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer vm.Close()

	feed := feedServer(t, `[{"id":"a","title":"Morning Show","progress":0}]`)
	cfg := writeConfig(t, feed.URL, t.TempDir(), fmt.Sprintf("monitoring:\n  victoriametrics_url: %s\n", vm.URL))

	_, err := execute(t, "poll", "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load(), "one batched write per poll")
}

func TestPollCmd_StateSurvivesRuns(t *testing.T) {
	stateDir := t.TempDir()
	first := writeConfig(t, feedServer(t, `[{"id":"a","title":"Morning Show","progress":0}]`).URL, stateDir)
	second := writeConfig(t, feedServer(t, `[{"id":"a","title":"Morning Show","progress":100}]`).URL, stateDir)

	_, err := execute(t, "poll", "-c", first)
	require.NoError(t, err)

	out, err := execute(t, "poll", "-c", second)
	require.NoError(t, err)
	assert.Contains(t, out, "Recently finished (1)")
	assert.Contains(t, out, "completed")
}

func TestPollCmd_FeedFailure(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer feed.Close()
	cfg := writeConfig(t, feed.URL, t.TempDir())

	_, err := execute(t, "poll", "-c", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching activity feed")
}

func TestPeakCmds(t *testing.T) {
	cfg := writeConfig(t, "http://uploader:8080", t.TempDir())

	out, err := execute(t, "peak", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "peak: 0")

	out, err = execute(t, "peak", "offer", "7", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "peak: 7")

	out, err = execute(t, "peak", "offer", "3", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "peak: 7")

	_, err = execute(t, "peak", "offer", "-c", cfg, "--", "-1")
	assert.Error(t, err)

	_, err = execute(t, "peak", "offer", "many", "-c", cfg)
	assert.Error(t, err)

	out, err = execute(t, "peak", "reset", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "peak: 0")
}

func TestValidateCmd(t *testing.T) {
	cfg := writeConfig(t, "http://uploader:8080", t.TempDir())
	out, err := execute(t, "validate", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration validation successful")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("feed:\n  url: uploader\n"), 0644))
	_, err = execute(t, "validate", "-c", bad)
	assert.Error(t, err)

	_, err = execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config flag")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "komandorr dev")
}

func TestRenderStatus(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	elapsed := int64(90 * time.Second / time.Millisecond)

	st := poller.Status{
		Active: []tracker.ActivityView{
			{ID: "a", Title: "A very long title that will certainly not fit in the column", Progress: 42.5, StartedAt: &started, ElapsedMs: &elapsed, Present: true},
			{ID: "b", Progress: 10},
		},
		Recent: []tracker.CompletedRecord{
			{ID: "c", Title: "Done", CompletedAt: started, Elapsed: time.Hour, Cancelled: true},
		},
		ActiveCount: 1,
		Peak:        4,
		LastError:   "feed down",
	}

	out := renderStatus(st)
	assert.Contains(t, out, "42.5%")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "…")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "cancelled")
	assert.Contains(t, out, "1h0m0s")
	assert.Contains(t, out, "last poll failed: feed down")
	assert.Contains(t, out, "b", "untitled activities show their id")
}

func TestRenderEmpty(t *testing.T) {
	out := renderStatus(poller.Status{})
	assert.Contains(t, out, "no active activities")
	assert.Contains(t, out, "nothing finished recently")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated", 5, "trun…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n))
	}
}
