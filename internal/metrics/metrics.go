// Package metrics exposes executor and monitor progress to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bundle_deployer"

// Metrics satisfies the executor and monitor Metricer interfaces.
type Metrics struct {
	BatchesTotal      *prometheus.CounterVec
	ActionsExecuted   *prometheus.CounterVec
	BatchGas          *prometheus.HistogramVec
	BatchEstimates    prometheus.Counter
	UpgradeSteps      *prometheus.CounterVec
	PhaseTransitions  *prometheus.CounterVec
	DeploymentsTotal  *prometheus.CounterVec
	FundingShortfalls prometheus.Counter
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of action batches submitted",
			},
			[]string{"kind"}, // deploy-contract/set-storage
		),
		ActionsExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_executed_total",
				Help:      "Total number of actions submitted in confirmed batches",
			},
			[]string{"kind"},
		),
		BatchGas: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_gas",
				Help:      "Estimated gas of submitted batches",
				Buckets:   prometheus.ExponentialBuckets(50_000, 2, 10),
			},
			[]string{"kind"},
		),
		BatchEstimates: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_estimates_total",
				Help:      "Total number of batch gas estimates taken while sizing batches",
			},
		),
		UpgradeSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upgrade_steps_total",
				Help:      "Total number of proxy upgrade transactions",
			},
			[]string{"step"}, // initiate/finalize
		),
		PhaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_transitions_total",
				Help:      "Total number of deployment phase changes observed by the monitor",
			},
			[]string{"phase"},
		),
		DeploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Total number of deployments finished",
			},
			[]string{"result"}, // completed/cancelled/failed/error
		),
		FundingShortfalls: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "funding_shortfalls_total",
				Help:      "Total number of polls that found the manager underfunded",
			},
		),
	}
}

func (m *Metrics) RecordBatch(kind string, size int, gas uint64) {
	m.BatchesTotal.WithLabelValues(kind).Inc()
	m.ActionsExecuted.WithLabelValues(kind).Add(float64(size))
	m.BatchGas.WithLabelValues(kind).Observe(float64(gas))
}

func (m *Metrics) RecordEstimate() {
	m.BatchEstimates.Inc()
}

func (m *Metrics) RecordUpgradeStep(step string) {
	m.UpgradeSteps.WithLabelValues(step).Inc()
}

func (m *Metrics) RecordPhase(phase string) {
	m.PhaseTransitions.WithLabelValues(phase).Inc()
}

func (m *Metrics) RecordFundingShortfall() {
	m.FundingShortfalls.Inc()
}

func (m *Metrics) RecordDeployment(result string) {
	m.DeploymentsTotal.WithLabelValues(result).Inc()
}
