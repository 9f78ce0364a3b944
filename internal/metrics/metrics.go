// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks workflow transitions, group resolution, generated compliances and notification delivery.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transitions          *prometheus.CounterVec
	TransitionDuration   *prometheus.HistogramVec
	GroupResolutions     *prometheus.CounterVec
	CompliancesGenerated prometheus.Counter
	Notifications        *prometheus.CounterVec
}

// New registers the workflow metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_transitions_total",
			Help: "Proposal workflow operations by outcome",
		}, []string{"operation", "outcome"}),
		TransitionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "licensing_transition_duration_seconds",
			Help:    "Duration of proposal workflow operations including the transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		GroupResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_group_resolutions_total",
			Help: "Assessor/approver group resolutions by kind and source (scope, default, cache)",
		}, []string{"kind", "source"}),
		CompliancesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "licensing_compliances_generated_total",
			Help: "Future compliance obligations created by the recurrence engine",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_notifications_total",
			Help: "Notification attempts by template and delivery status",
		}, []string{"template", "status"}),
	}
}

// ObserveTransition records the outcome label ("ok", "rejected" or "error") and duration of a workflow operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransition(operation string, start time.Time, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(operation, outcome).Inc()
	m.TransitionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncGroupResolution(kind, source string) {
	if m == nil {
		return
	}
	m.GroupResolutions.WithLabelValues(kind, source).Inc()
}

func (m *Metrics) AddCompliancesGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CompliancesGenerated.Add(float64(n))
}

func (m *Metrics) IncNotification(template, status string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(template, status).Inc()
}
