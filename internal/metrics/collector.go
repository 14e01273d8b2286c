// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for the tool host. It renders the text exposition format.
package metrics

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector owns metric families keyed by name. Series within a family
// are keyed by their rendered label set.
type MetricsCollector struct {
	mu        sync.Mutex
	families  map[string]*family
	startTime time.Time
}

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

type family struct {
	name   string
	help   string
	kind   kind
	series map[string]series // labels -> series
}

type series interface {
	write(w io.Writer, name, labels string)
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{families: make(map[string]*family), startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct{ value atomic.Int64 }

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n int64) { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

func (c *Counter) write(w io.Writer, name, labels string) {
	fmt.Fprintf(w, "%s%s %d\n", name, braces(labels), c.Value())
}

// Gauge is a value that can go up and down.
type Gauge struct{ value atomic.Int64 }

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Inc() { g.value.Add(1) }
func (g *Gauge) Dec() { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

func (g *Gauge) write(w io.Writer, name, labels string) {
	fmt.Fprintf(w, "%s%s %d\n", name, braces(labels), g.Value())
}

// Histogram tracks the distribution of observed values. Bucket counts are
// cumulative; the +Inf bucket equals the total count.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	count  int64
	sum    float64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

func (h *Histogram) write(w io.Writer, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sep := ""
	if labels != "" {
		sep = ","
	}
	for i, le := range h.bounds {
		fmt.Fprintf(w, "%s_bucket{%s%sle=%q} %d\n", name, labels, sep, strconv.FormatFloat(le, 'g', -1, 64), h.counts[i])
	}
	fmt.Fprintf(w, "%s_bucket{%s%sle=\"+Inf\"} %d\n", name, labels, sep, h.count)
	fmt.Fprintf(w, "%s_sum%s %s\n", name, braces(labels), strconv.FormatFloat(h.sum, 'f', -1, 64))
	fmt.Fprintf(w, "%s_count%s %d\n", name, braces(labels), h.count)
}

// Counter returns the counter series for name and labels, creating it once.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	return c.get(name, help, kindCounter, labels, func() series { return &Counter{} }).(*Counter)
}

// Gauge returns the gauge series for name and labels, creating it once.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	return c.get(name, help, kindGauge, labels, func() series { return &Gauge{} }).(*Gauge)
}

// Histogram returns the histogram series for name and labels. Buckets are
// fixed by the first call; +Inf is implicit.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	return c.get(name, help, kindHistogram, labels, func() series {
		bounds := slices.DeleteFunc(slices.Sorted(slices.Values(buckets)), func(b float64) bool { return math.IsInf(b, 1) })
		return &Histogram{bounds: bounds, counts: make([]int64, len(bounds))}
	}).(*Histogram)
}

// get panics when name is reused with a different metric type.
func (c *MetricsCollector) get(name, help string, k kind, labels string, create func() series) series {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.families[name]
	if !ok {
		f = &family{name: name, help: help, kind: k, series: make(map[string]series)}
		c.families[name] = f
	} else if f.kind != k {
		panic(fmt.Sprintf("metrics: %s registered as %s, requested as %s", name, f.kind, k))
	}
	s, ok := f.series[labels]
	if !ok {
		s = create()
		f.series[labels] = s
	}
	return s
}

// Render writes every family, sorted by name, then series sorted by labels.
func (c *MetricsCollector) Render(w io.Writer) {
	fmt.Fprintf(w, "# HELP toolhost_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(w, "# TYPE toolhost_uptime_seconds gauge\n")
	fmt.Fprintf(w, "toolhost_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	c.mu.Lock()
	families := make([]*family, 0, len(c.families))
	for _, f := range c.families {
		families = append(families, f)
	}
	c.mu.Unlock()
	slices.SortFunc(families, func(a, b *family) int { return cmp.Compare(a.name, b.name) })

	for _, f := range families {
		c.mu.Lock()
		labels := make([]string, 0, len(f.series))
		for l := range f.series {
			labels = append(labels, l)
		}
		c.mu.Unlock()
		slices.Sort(labels)

		fmt.Fprintf(w, "# HELP %s %s\n", f.name, f.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", f.name, f.kind)
		for _, l := range labels {
			c.mu.Lock()
			s := f.series[l]
			c.mu.Unlock()
			s.write(w, f.name, l)
		}
	}
}

// Handler serves the Prometheus text exposition.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		var sb strings.Builder
		c.Render(&sb)
		_, _ = io.WriteString(w, sb.String())
	}
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Labels renders key/value pairs as a Prometheus label set body.
func Labels(kv ...string) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, kv[i]+`="`+labelEscaper.Replace(kv[i+1])+`"`)
	}
	return strings.Join(parts, ",")
}

func braces(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

var (
	RequestsTotal       = Collector.Counter("toolhost_requests_total", "Total orchestrated requests", "")
	PlannerCallsTotal   = Collector.Counter("toolhost_planner_calls_total", "Total planner calls", "")
	PlannerFailures     = Collector.Counter("toolhost_planner_failures_total", "Planner calls that failed or timed out", "")
	HeuristicDecisions  = Collector.Counter("toolhost_heuristic_decisions_total", "Selections made by the heuristic fallback", "")
	BlockingInFlight    = Collector.Gauge("toolhost_blocking_inflight", "Blocking tool executions in flight", "")
	RegisteredProviders = Collector.Gauge("toolhost_registered_providers", "Registered capability providers", "")

	PlannerLatency = Collector.Histogram("toolhost_planner_latency_seconds", "Planner call latency in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60})
	ToolLatency = Collector.Histogram("toolhost_tool_duration_seconds", "Tool execution latency in seconds", "",
		[]float64{0.1, 0.5, 1, 5, 10, 30})
)

// ToolInvocations counts invocations of one tool by outcome.
func ToolInvocations(provider, tool, outcome string) *Counter {
	return Collector.Counter("toolhost_tool_invocations_total", "Tool invocations by outcome",
		Labels("provider", provider, "tool", tool, "outcome", outcome))
}
