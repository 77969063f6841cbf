package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records task runs in a dedicated prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	tasks    *prometheus.CounterVec
	records  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	scores   *prometheus.GaugeVec
}

// NewMetrics creates the collectors in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evalkit",
			Subsystem: "runner",
			Name:      "tasks_total",
			Help:      "Task runs by outcome",
		}, []string{"model", "task", "status"}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evalkit",
			Subsystem: "runner",
			Name:      "records_total",
			Help:      "Records evaluated",
		}, []string{"model", "task"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evalkit",
			Subsystem: "runner",
			Name:      "task_duration_seconds",
			Help:      "Wall time of a task evaluation in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"model", "task"}),
		scores: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "evalkit",
			Subsystem: "runner",
			Name:      "score",
			Help:      "Last metric value of a task",
		}, []string{"model", "task", "metric"}),
	}
}

// WriteTextfile writes the current values in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observe(model, task string, elapsed time.Duration, records int, scores map[string]float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.tasks.WithLabelValues(model, task, status).Inc()
	m.duration.WithLabelValues(model, task).Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	m.records.WithLabelValues(model, task).Add(float64(records))
	for name, v := range scores {
		m.scores.WithLabelValues(model, task, name).Set(v)
	}
}
