package reputation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricActionsRecorded = "reputation_actions_recorded_total"
	MetricProposals       = "reputation_proposals_total"
	MetricActorLevel      = "reputation_actor_level"
)

// levelValue maps levels to a numeric gauge value.
var levelValue = map[Level]float64{
	LevelNewcomer:    0,
	LevelContributor: 1,
	LevelTrusted:     2,
	LevelExpert:      3,
	LevelAuthority:   4,
}

// Metrics contains Prometheus metrics for the reputation subsystem.
// All operations are thread-safe.
type Metrics struct {
	actionsRecorded *prometheus.CounterVec
	proposals       *prometheus.CounterVec
	actorLevel      *prometheus.GaugeVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		actionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricActionsRecorded,
			Help: "Total number of reputation actions recorded, by action type",
		}, []string{"action"}),
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricProposals,
			Help: "Total number of proposal status transitions, by status",
		}, []string{"status"}),
		actorLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricActorLevel,
			Help: "Current reputation level per actor (0=newcomer .. 4=authority)",
		}, []string{"actor"}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.actionsRecorded,
		m.proposals,
		m.actorLevel,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncActions increments the actions counter for an action type.
func (m *Metrics) IncActions(action ActionType) {
	m.actionsRecorded.WithLabelValues(string(action)).Inc()
}

// IncProposals increments the proposals counter for a status transition.
func (m *Metrics) IncProposals(status ProposalStatus) {
	m.proposals.WithLabelValues(string(status)).Inc()
}

// SetLevel updates the level gauge for an actor.
func (m *Metrics) SetLevel(actor string, level Level) {
	m.actorLevel.WithLabelValues(actor).Set(levelValue[level])
}
