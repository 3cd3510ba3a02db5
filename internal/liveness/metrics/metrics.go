package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChallengesStarted      prometheus.Counter
	ChallengeStartFailures prometheus.Counter
	VerifyDuration         prometheus.Histogram
	Decisions              *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ChallengesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritas_challenges_started_total",
			Help: "Total number of challenges successfully started",
		}),
		ChallengeStartFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritas_challenge_start_failures_total",
			Help: "Total number of failed challenge start attempts",
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritas_verify_duration_seconds",
			Help:    "Duration of verification submissions (network critical path)",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_verify_decisions_total",
			Help: "Verification outcomes by decision",
		}, []string{"decision"}),
	}
}

func (m *Metrics) IncrementChallengesStarted() {
	m.ChallengesStarted.Inc()
}

func (m *Metrics) IncrementChallengeStartFailures() {
	m.ChallengeStartFailures.Inc()
}

func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementDecision(decision string) {
	m.Decisions.WithLabelValues(decision).Inc()
}
