package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Tags is a set of metric label values, keyed by label name.
type Tags map[string]string

// Metrics is the counter/gauge/timing facade the pipeline reports through.
// A disabled Metrics is a no-op for every operation.
type Metrics interface {
	Increment(name string, value float64, tags Tags)
	Gauge(name string, value float64, tags Tags)
	Timing(name string, ms float64, tags Tags)
}

// noopMetrics discards every call.
type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) Increment(string, float64, Tags) {}
func (noopMetrics) Gauge(string, float64, Tags)     {}
func (noopMetrics) Timing(string, float64, Tags)    {}

// PromMetrics reports through prometheus/client_golang, creating
// CounterVec/GaugeVec/HistogramVec families lazily per metric name, the way
// the pack's operator code registers per-target gauges. A family's label
// names are fixed by the tags of the first call for that name; later calls
// for the same name must use the same tag keys.
type PromMetrics struct {
	registerer prometheus.Registerer
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	timings    map[string]*prometheus.HistogramVec
}

// NewPromMetrics builds a PromMetrics that registers families against reg.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	return &PromMetrics{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		timings:    make(map[string]*prometheus.HistogramVec),
	}
}

func labelKeys(tags Tags) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	return keys
}

func (m *PromMetrics) Increment(name string, value float64, tags Tags) {
	cv, ok := m.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelKeys(tags))
		m.registerer.MustRegister(cv)
		m.counters[name] = cv
	}
	cv.With(prometheus.Labels(tags)).Add(value)
}

func (m *PromMetrics) Gauge(name string, value float64, tags Tags) {
	gv, ok := m.gauges[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelKeys(tags))
		m.registerer.MustRegister(gv)
		m.gauges[name] = gv
	}
	gv.With(prometheus.Labels(tags)).Set(value)
}

func (m *PromMetrics) Timing(name string, ms float64, tags Tags) {
	hv, ok := m.timings[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Buckets: prometheus.DefBuckets,
		}, labelKeys(tags))
		m.registerer.MustRegister(hv)
		m.timings[name] = hv
	}
	hv.With(prometheus.Labels(tags)).Observe(ms)
}

// RecordingMetrics captures every call for assertion in tests.
type RecordingMetrics struct {
	Increments []MetricCall
	Gauges     []MetricCall
	Timings    []MetricCall
}

// MetricCall is one recorded Metrics invocation.
type MetricCall struct {
	Name  string
	Value float64
	Tags  Tags
}

func NewRecordingMetrics() *RecordingMetrics { return &RecordingMetrics{} }

func (m *RecordingMetrics) Increment(name string, value float64, tags Tags) {
	m.Increments = append(m.Increments, MetricCall{Name: name, Value: value, Tags: tags})
}

func (m *RecordingMetrics) Gauge(name string, value float64, tags Tags) {
	m.Gauges = append(m.Gauges, MetricCall{Name: name, Value: value, Tags: tags})
}

func (m *RecordingMetrics) Timing(name string, ms float64, tags Tags) {
	m.Timings = append(m.Timings, MetricCall{Name: name, Value: ms, Tags: tags})
}

// CountIncrements sums every Increment call recorded for name.
func (m *RecordingMetrics) CountIncrements(name string) float64 {
	var total float64
	for _, c := range m.Increments {
		if c.Name == name {
			total += c.Value
		}
	}
	return total
}
