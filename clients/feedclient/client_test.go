package feedclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nomis52/komandorr/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		host    string
		opts    []Option
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid http host",
			host: "http://uploader:8080",
			opts: []Option{WithLogger(logger)},
		},
		{
			name: "valid https host with options",
			host: "https://komandorr.example.com",
			opts: []Option{WithAPIKey("k"), WithPath("/api/v1/streams"), WithTimeout(time.Second)},
		},
		{
			name:    "missing scheme",
			host:    "uploader:8080/path",
			wantErr: true,
			errMsg:  "host URL must include scheme",
		},
		{
			name:    "invalid url",
			host:    "http://:invalid",
			wantErr: true,
			errMsg:  "invalid host URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.host, tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, client)
			} else {
				require.NoError(t, err)
				require.NotNil(t, client)
				assert.Equal(t, tt.host, client.Host)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse string
		status         int
		wantErr        string
		verifyFn       func(t *testing.T, result Result)
	}{
		{
			name: "bare array",
			serverResponse: `[
				{"id": "a1", "type": "download", "title": "Dune", "subtitle": "2160p", "progress": 12.5},
				{"uuid": "b2", "type": "Transcode", "title": "Alien", "subtitle": "", "progress": 100}
			]`,
			status: http.StatusOK,
			verifyFn: func(t *testing.T, result Result) {
				require.Len(t, result.Snapshots, 2)
				assert.Empty(t, result.Errors)
				assert.Equal(t, tracker.Snapshot{ID: "a1", Type: tracker.TypeDownload, Title: "Dune", Subtitle: "2160p", Progress: 12.5}, result.Snapshots[0])
				assert.Equal(t, "b2", result.Snapshots[1].ID)
				assert.Equal(t, tracker.TypeTranscode, result.Snapshots[1].Type)
			},
		},
		{
			name:           "wrapped in activities",
			serverResponse: `{"activities": [{"id": 42, "title": "Numeric id", "progress": "55%"}]}`,
			status:         http.StatusOK,
			verifyFn: func(t *testing.T, result Result) {
				require.Len(t, result.Snapshots, 1)
				assert.Equal(t, "42", result.Snapshots[0].ID)
				assert.Equal(t, 55.0, result.Snapshots[0].Progress)
			},
		},
		{
			name:           "wrapped in data",
			serverResponse: `{"data": [{"id": "x", "progress": 0}]}`,
			status:         http.StatusOK,
			verifyFn: func(t *testing.T, result Result) {
				require.Len(t, result.Snapshots, 1)
				assert.Equal(t, 0.0, result.Snapshots[0].Progress)
			},
		},
		{
			name:           "missing progress",
			serverResponse: `[{"id": "x", "progress": null}, {"id": "y"}, {"id": "z", "progress": 3}]`,
			status:         http.StatusOK,
			verifyFn: func(t *testing.T, result Result) {
				require.Len(t, result.Snapshots, 1)
				assert.Equal(t, "z", result.Snapshots[0].ID)
				require.Len(t, result.Errors, 2)
				for _, err := range result.Errors {
					assert.ErrorIs(t, err, tracker.ErrInvalidSnapshot)
					assert.Contains(t, err.Error(), "missing progress")
				}
			},
		},
		{
			name:           "empty list",
			serverResponse: `[]`,
			status:         http.StatusOK,
			verifyFn: func(t *testing.T, result Result) {
				assert.Empty(t, result.Snapshots)
				assert.Empty(t, result.Errors)
			},
		},
		{
			name: "partially invalid data",
			serverResponse: `[
				{"id": "ok", "progress": 10},
				"invalid",
				{"title": "no id", "progress": 10},
				{"id": "bad", "progress": "lots"},
				{"id": {"nested": true}, "progress": 1},
				{"id": "ok2", "progress": 20}
			]`,
			status: http.StatusOK,
			verifyFn: func(t *testing.T, result Result) {
				require.Len(t, result.Snapshots, 2)
				assert.Equal(t, "ok", result.Snapshots[0].ID)
				assert.Equal(t, "ok2", result.Snapshots[1].ID)
				require.Len(t, result.Errors, 4)
				for _, err := range result.Errors {
					assert.True(t, errors.Is(err, tracker.ErrInvalidSnapshot))
				}
			},
		},
		{
			name:           "invalid json",
			serverResponse: `invalid json`,
			status:         http.StatusOK,
			wantErr:        "failed to unmarshal response",
		},
		{
			name:           "empty body",
			serverResponse: ``,
			status:         http.StatusOK,
			wantErr:        "failed to unmarshal response",
		},
		{
			name:           "http error",
			serverResponse: "",
			status:         http.StatusInternalServerError,
			wantErr:        "unexpected status code: 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/activities", r.URL.Path)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.serverResponse))
			}))
			defer ts.Close()

			client, err := New(ts.URL)
			require.NoError(t, err)

			result, err := client.Fetch(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				if tt.verifyFn != nil {
					tt.verifyFn(t, result)
				}
			}
		})
	}
}

func TestFetch_SendsAPIKeyAndPath(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/streams", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client, err := New(ts.URL, WithPath("/api/v1/streams"), WithAPIKey("secret"))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background())
	require.NoError(t, err)
}

func TestFetch_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client, err := New(ts.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
