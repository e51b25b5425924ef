package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

// DefaultTimeout bounds a single remote write request.
const DefaultTimeout = 30 * time.Second

// PushRegistry implements Registry by buffering the latest sample of every
// series and writing them in one remote write request on Flush. A process
// that exits right after a poll calls Flush before it returns.
type PushRegistry struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
	logger     *slog.Logger
	clock      func() time.Time

	mu      sync.Mutex
	pending map[string]sample
}

// sample is the latest value of one series.
type sample struct {
	name   string
	labels map[string]string
	value  float64
	at     time.Time
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint, e.g. http://vm:8428.
	URL string
	// Prefix is prepended to metric names with an underscore.
	Prefix string
	// Job and Instance are attached to every series.
	Job      string
	Instance string
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewPushRegistry creates a PushRegistry writing to cfg.URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PushRegistry{
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		logger:     logger,
		clock:      time.Now,
		pending:    make(map[string]sample),
	}
}

// NewGauge creates a buffered Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{registry: r, name: opts.Name}, nil
}

// NewCounter creates a buffered Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{registry: r, name: opts.Name}, nil
}

// NewCounterVec creates a buffered CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{
		registry: r,
		name:     opts.Name,
		counters: make(map[string]*pushCounter),
	}, nil
}

// Pending returns the number of series waiting to be flushed.
func (r *PushRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *PushRegistry) record(name string, labels map[string]string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[name+"{"+labelsToKey(labels)+"}"] = sample{
		name:   name,
		labels: labels,
		value:  value,
		at:     r.clock(),
	}
}

// Flush writes every buffered series in a single request. On failure the
// samples stay buffered; a later value for the same series replaces them.
func (r *PushRegistry) Flush(ctx context.Context) error {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return nil
	}
	keys := make([]string, 0, len(r.pending))
	for k := range r.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	series := make([]prompb.TimeSeries, 0, len(keys))
	sent := make(map[string]sample, len(keys))
	for _, k := range keys {
		s := r.pending[k]
		series = append(series, r.timeSeries(s))
		sent[k] = s
	}
	r.mu.Unlock()

	if err := r.write(ctx, series); err != nil {
		return fmt.Errorf("pushing %d series: %w", len(series), err)
	}

	r.mu.Lock()
	for k, s := range sent {
		if cur, ok := r.pending[k]; ok && cur.at.Equal(s.at) && cur.value == s.value {
			delete(r.pending, k)
		}
	}
	r.mu.Unlock()

	r.logger.Debug("pushed metrics", "series", len(series))
	return nil
}

func (r *PushRegistry) write(ctx context.Context, series []prompb.TimeSeries) error {
	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: series})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(snappy.Encode(nil, data)))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (r *PushRegistry) timeSeries(s sample) prompb.TimeSeries {
	name := s.name
	if r.prefix != "" {
		name = r.prefix + "_" + name
	}

	labels := make([]prompb.Label, 0, len(s.labels)+3)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	if r.job != "" {
		labels = append(labels, prompb.Label{Name: "job", Value: r.job})
	}
	if r.instance != "" {
		labels = append(labels, prompb.Label{Name: "instance", Value: r.instance})
	}
	for _, k := range sortedNames(s.labels) {
		labels = append(labels, prompb.Label{Name: k, Value: s.labels[k]})
	}

	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: s.value, Timestamp: s.at.UnixMilli()}},
	}
}

type pushGauge struct {
	registry *PushRegistry
	name     string
}

func (g *pushGauge) Set(v float64) {
	g.registry.record(g.name, nil, v)
}

type pushCounter struct {
	registry *PushRegistry
	name     string
	labels   map[string]string

	mu    sync.Mutex
	value float64
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.mu.Lock()
	c.value += v
	value := c.value
	c.mu.Unlock()
	c.registry.record(c.name, c.labels, value)
}

type pushCounterVec struct {
	registry *PushRegistry
	name     string

	mu       sync.Mutex
	counters map[string]*pushCounter
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	key := labelsToKey(labels)

	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, ok := c.counters[key]; ok {
		return counter
	}
	counter := &pushCounter{registry: c.registry, name: c.name, labels: labels}
	c.counters[key] = counter
	return counter
}

func sortedNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// labelsToKey renders labels in name order.
func labelsToKey(labels map[string]string) string {
	var b strings.Builder
	for _, k := range sortedNames(labels) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
