package scheduling

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsProvider exposes the Prometheus instruments the scheduler core
// records into. Every accessor may return nil when the corresponding
// instrument is disabled; callers must check.
type MetricsProvider interface {
	// PlacementLatencyMicrosecondsHistogram observes the latency of each
	// placement attempt, labeled by outcome.
	PlacementLatencyMicrosecondsHistogram() *prometheus.HistogramVec

	// TasksPlacedCounter counts tasks successfully placed, labeled by tier.
	TasksPlacedCounter() *prometheus.CounterVec

	// UnplaceableTasksCounter counts tasks no placement tier could serve.
	UnplaceableTasksCounter() prometheus.Counter

	// PerformanceBoostsCounter counts P0 boosts issued for at-risk tasks.
	PerformanceBoostsCounter() prometheus.Counter

	// MigrationsRequestedCounter counts VM migrations requested by the core.
	MigrationsRequestedCounter() prometheus.Counter

	// MemoryWarningsCounter counts memory overcommit warnings delivered by
	// the host.
	MemoryWarningsCounter() prometheus.Counter

	// ActiveMachinesGauge tracks the number of machines powered on by the
	// provisioner.
	ActiveMachinesGauge() prometheus.Gauge

	// ClusterEnergyGauge tracks the host-reported cumulative cluster energy
	// in KW-hour.
	ClusterEnergyGauge() prometheus.Gauge
}
