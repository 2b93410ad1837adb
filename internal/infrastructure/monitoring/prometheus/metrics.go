package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
)

// AppMetrics holds every metric the services and the HTTP layer record.
type AppMetrics struct {
	ToolInvocations  CounterVec
	ToolDuration     HistogramVec
	PipelineRuns     CounterVec
	PipelineDuration HistogramVec
	EdgesAdded       CounterVec
	EdgeDuplicates   CounterVec
	MatchesAdded     CounterVec
	ImagesRendered   CounterVec
	ImagesFailed     CounterVec
	HTTPRequests     CounterVec
	HTTPDuration     HistogramVec
	PipelineInFlight GaugeVec
}

var (
	_ ports.MetricsPort = (*AppMetrics)(nil)
	_ process.Observer  = (*AppMetrics)(nil)
)

func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		ToolInvocations:  c.RegisterCounter("tool_invocations_total", "External tool runs by tool and outcome.", "tool", "outcome"),
		ToolDuration:     c.RegisterHistogram("tool_duration_seconds", "External tool run time.", nil, "tool", "outcome"),
		PipelineRuns:     c.RegisterCounter("pipeline_runs_total", "Pipeline runs by kind and outcome.", "kind", "outcome"),
		PipelineDuration: c.RegisterHistogram("pipeline_duration_seconds", "Pipeline run time.", nil, "kind"),
		EdgesAdded:       c.RegisterCounter("edges_added_total", "Edges stored by calculation mode.", "mode"),
		EdgeDuplicates:   c.RegisterCounter("edge_duplicates_total", "Duplicate edge pairs skipped by calculation mode.", "mode"),
		MatchesAdded:     c.RegisterCounter("matches_added_total", "Molecule to SMARTS matches stored."),
		ImagesRendered:   c.RegisterCounter("images_rendered_total", "Images rendered by kind.", "kind"),
		ImagesFailed:     c.RegisterCounter("images_failed_total", "Images that failed to render by kind.", "kind"),
		HTTPRequests:     c.RegisterCounter("http_requests_total", "HTTP requests by method, route and status.", "method", "route", "status"),
		HTTPDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request latency.",
			[]float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}, "method", "route"),
		PipelineInFlight: c.RegisterGauge("pipeline_in_flight", "Pipeline runs currently executing.", "kind"),
	}
}

func (m *AppMetrics) ObservePipeline(kind, outcome string, d time.Duration) {
	m.PipelineRuns.WithLabelValues(kind, outcome).Inc()
	m.PipelineDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// TrackPipeline marks a run of kind as in flight until the returned func
// is called.
func (m *AppMetrics) TrackPipeline(kind string) func() {
	g := m.PipelineInFlight.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}

func (m *AppMetrics) AddEdges(mode string, added, duplicates int) {
	m.EdgesAdded.WithLabelValues(mode).Add(float64(added))
	m.EdgeDuplicates.WithLabelValues(mode).Add(float64(duplicates))
}

func (m *AppMetrics) AddMatches(n int) {
	m.MatchesAdded.WithLabelValues().Add(float64(n))
}

func (m *AppMetrics) AddImages(kind string, rendered, failed int) {
	m.ImagesRendered.WithLabelValues(kind).Add(float64(rendered))
	m.ImagesFailed.WithLabelValues(kind).Add(float64(failed))
}

func (m *AppMetrics) ObserveTool(tool, outcome string, d time.Duration) {
	m.ToolInvocations.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool, outcome).Observe(d.Seconds())
}

// ObserveHTTP records one request. route is the matched pattern, not the
// raw path, to keep label cardinality bounded.
func (m *AppMetrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
