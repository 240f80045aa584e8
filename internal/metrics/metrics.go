// Package metrics exposes Prometheus instrumentation for the ledger.
package metrics

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Operation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// LedgerMetrics records ledger mutations. A nil *LedgerMetrics is valid and
// records nothing.
type LedgerMetrics struct {
	operations   *prometheus.CounterVec
	totalSupply  prometheus.Gauge
	transactions prometheus.Gauge
	holders      prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide metrics registered with the default
// Prometheus registerer.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = NewLedgerMetrics(prometheus.DefaultRegisterer)
	})
	return ledgerRegistry
}

// NewLedgerMetrics creates ledger metrics and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nftledger",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nftledger",
			Subsystem: "ledger",
			Name:      "total_supply",
			Help:      "Number of token records, burned tokens included.",
		}),
		transactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nftledger",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Value of the ledger transaction counter.",
		}),
		holders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nftledger",
			Subsystem: "ledger",
			Name:      "unique_holders",
			Help:      "Number of accounts owning at least one token.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.totalSupply, m.transactions, m.holders)
	}
	return m
}

// ObserveOperation counts one mutation attempt.
func (m *LedgerMetrics) ObserveOperation(op, outcome string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// SetState publishes the ledger's aggregate counters.
func (m *LedgerMetrics) SetState(supply, txCount uint64, holders int) {
	if m == nil {
		return
	}
	m.totalSupply.Set(float64(supply))
	m.transactions.Set(float64(txCount))
	m.holders.Set(float64(holders))
}

// Prefix is the name prefix shared by every ledger metric.
const Prefix = "nftledger_"

// WriteText gathers g and writes the families whose names start with prefix
// in the Prometheus text exposition format. An empty prefix writes all.
func WriteText(w io.Writer, g prometheus.Gatherer, prefix string) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), prefix) {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
