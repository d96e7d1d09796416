package quiz

import (
	"avtotest-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts finished attempts and records their scores.
type Metrics struct {
	finished *prometheus.CounterVec
	scores   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avtotest_quiz_finished_total",
			Help: "Finished quiz attempts by mode and finishing reason.",
		}, []string{"mode", "reason"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "avtotest_quiz_score",
			Help:    "Final score of finished quiz attempts.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"mode"}),
	}
	reg.MustRegister(m.finished, m.scores)
	return m
}

func (m *Metrics) observe(mode domain.QuizMode, reason string, score int) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(string(mode), reason).Inc()
	m.scores.WithLabelValues(string(mode)).Observe(float64(score))
}
