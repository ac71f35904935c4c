package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors for runs and stages
type Metrics struct {
	Runs          *prometheus.CounterVec
	Instruments   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	Trades        *prometheus.CounterVec
	PendingOrders prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hybrid_runs_total", Help: "Finished runs by kind and status"},
			[]string{"kind", "status"},
		),
		Instruments: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hybrid_instrument_results_total", Help: "Instrument outcomes by kind and terminal state"},
			[]string{"kind", "state"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hybrid_stage_duration_seconds",
				Help:    "Pipeline stage duration",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"kind", "stage"},
		),
		StageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hybrid_stage_failures_total", Help: "Stage failures by stage"},
			[]string{"kind", "stage"},
		),
		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hybrid_trades_total", Help: "Fills by mode and side"},
			[]string{"mode", "side"},
		),
		PendingOrders: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hybrid_pending_orders_total", Help: "Orders queued while the market was closed"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Instruments, m.StageDuration, m.StageFailures, m.Trades, m.PendingOrders)
	}
	return m
}

func (m *Metrics) observeStage(kind RunKind, stage Stage, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(string(kind), string(stage)).Observe(d.Seconds())
	if failed {
		m.StageFailures.WithLabelValues(string(kind), string(stage)).Inc()
	}
}

func (m *Metrics) observeResult(kind RunKind, result InstrumentResult) {
	if m == nil {
		return
	}
	m.Instruments.WithLabelValues(string(kind), string(result.State)).Inc()
	for _, trade := range result.Trades {
		m.Trades.WithLabelValues(trade.Mode, string(trade.Action)).Inc()
	}
	if len(result.Pending) > 0 {
		m.PendingOrders.Add(float64(len(result.Pending)))
	}
}

func (m *Metrics) observeRun(kind RunKind, status RunStatus) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(kind), string(status)).Inc()
}
