package engine

import (
	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvm_executions_total",
		Help: "Number of committed execution batches.",
	})
	executionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvm_execution_failures_total",
		Help: "Number of execution batches rolled back.",
	})
	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pvm_reconcile_duration_seconds",
		Help:    "Duration of post-batch market reconciliation.",
		Buckets: prometheus.DefBuckets,
	})
	totalAssetsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvm_total_assets_wad",
		Help: "Vault total assets, WAD-denominated (float approximation).",
	})
)

// observeTotalAssets updates the NAV gauge. The float conversion is lossy
// and only feeds dashboards; accounting always uses the exact integers.
func observeTotalAssets(total sdkmath.Int) {
	f, err := total.ToLegacyDec().Float64()
	if err != nil {
		return
	}
	totalAssetsGauge.Set(f)
}
