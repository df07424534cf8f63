package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lockevod/karoo-powerbar/internal/powerbar"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

// Recorder implements powerbar.Observer using Prometheus.
type Recorder struct {
	accepted       *prometheus.CounterVec
	suppressed     *prometheus.CounterVec
	renders        *prometheus.CounterVec
	halts          *prometheus.CounterVec
	lastValue      *prometheus.GaugeVec
	lastProgress   *prometheus.GaugeVec
	renderInterval *prometheus.HistogramVec

	now        func() time.Time
	mu         sync.Mutex
	lastRender map[telemetry.Kind]time.Time
}

// NewRecorder registers the pipeline metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		accepted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerbar_samples_accepted_total",
				Help: "Samples that passed the duplicate filter",
			},
			[]string{"kind"},
		),
		suppressed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerbar_samples_suppressed_total",
				Help: "Samples dropped before rendering, by reason",
			},
			[]string{"kind", "outcome"},
		),
		renders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerbar_renders_total",
				Help: "Render commands sent to the bar",
			},
			[]string{"kind"},
		),
		halts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerbar_halts_total",
				Help: "Pipelines stopped by a stream error",
			},
			[]string{"kind"},
		),
		lastValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "powerbar_last_value",
				Help: "Last rendered reading",
			},
			[]string{"kind"},
		),
		lastProgress: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "powerbar_last_progress",
				Help: "Last rendered bar fill fraction",
			},
			[]string{"kind"},
		),
		renderInterval: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "powerbar_render_interval_seconds",
				Help:    "Time between consecutive renders",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		),
		now:        time.Now,
		lastRender: make(map[telemetry.Kind]time.Time),
	}
}

func (r *Recorder) SampleAccepted(kind telemetry.Kind) {
	r.accepted.WithLabelValues(kind.String()).Inc()
}

func (r *Recorder) SampleSuppressed(kind telemetry.Kind, outcome powerbar.Outcome) {
	r.suppressed.WithLabelValues(kind.String(), outcome.String()).Inc()
}

func (r *Recorder) Rendered(kind telemetry.Kind, value float64, cmd powerbar.RenderCommand) {
	label := kind.String()
	r.renders.WithLabelValues(label).Inc()
	r.lastValue.WithLabelValues(label).Set(value)
	r.lastProgress.WithLabelValues(label).Set(cmd.Progress)

	now := r.now()
	r.mu.Lock()
	prev, ok := r.lastRender[kind]
	r.lastRender[kind] = now
	r.mu.Unlock()
	if ok {
		r.renderInterval.WithLabelValues(label).Observe(now.Sub(prev).Seconds())
	}
}

// Halted also forgets the last render time so a reopened pipeline does not
// report the downtime as an interval.
func (r *Recorder) Halted(kind telemetry.Kind, _ error) {
	r.halts.WithLabelValues(kind.String()).Inc()
	r.mu.Lock()
	delete(r.lastRender, kind)
	r.mu.Unlock()
}

var _ powerbar.Observer = (*Recorder)(nil)
