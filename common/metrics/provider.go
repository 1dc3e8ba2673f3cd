package metrics

import (
	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetricsProvider owns the Prometheus instruments recorded by the
// scheduler core. It satisfies scheduling.MetricsProvider.
type SchedulerMetricsProvider struct {
	log logger.Logger

	placementLatencyMicroseconds *prometheus.HistogramVec
	tasksPlaced                  *prometheus.CounterVec
	unplaceableTasks             prometheus.Counter
	performanceBoosts            prometheus.Counter
	migrationsRequested          prometheus.Counter
	memoryWarnings               prometheus.Counter
	activeMachines               prometheus.Gauge
	clusterEnergy                prometheus.Gauge
}

// NewSchedulerMetricsProvider creates the scheduler's instruments and
// registers them with the given registerer. Pass nil to skip registration
// (e.g., in tests that only exercise the instruments in-process).
func NewSchedulerMetricsProvider(registerer prometheus.Registerer) (*SchedulerMetricsProvider, error) {
	p := &SchedulerMetricsProvider{
		placementLatencyMicroseconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cloudsim",
			Subsystem: "scheduler",
			Name:      "placement_latency_microseconds",
			Buckets:   []float64{1, 10, 100, 1_000, 10_000, 100_000},
		}, []string{"outcome"}),
		tasksPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudsim",
			Subsystem: "scheduler",
			Name:      "tasks_placed_total",
		}, []string{"tier"}),
		unplaceableTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudsim",
			Subsystem: "scheduler",
			Name:      "unplaceable_tasks_total",
		}),
		performanceBoosts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudsim",
			Subsystem: "scheduler",
			Name:      "performance_boosts_total",
		}),
		migrationsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudsim",
			Subsystem: "scheduler",
			Name:      "migrations_requested_total",
		}),
		memoryWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudsim",
			Subsystem: "scheduler",
			Name:      "memory_warnings_total",
		}),
		activeMachines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudsim",
			Subsystem: "scheduler",
			Name:      "active_machines",
		}),
		clusterEnergy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudsim",
			Subsystem: "scheduler",
			Name:      "cluster_energy_kwh",
		}),
	}
	config.InitLogger(&p.log, p)

	if registerer != nil {
		collectors := []prometheus.Collector{
			p.placementLatencyMicroseconds, p.tasksPlaced, p.unplaceableTasks,
			p.performanceBoosts, p.migrationsRequested, p.memoryWarnings,
			p.activeMachines, p.clusterEnergy,
		}

		for _, collector := range collectors {
			if err := registerer.Register(collector); err != nil {
				p.log.Error("Failed to register scheduler metric: %v", err)
				return nil, err
			}
		}
	}

	return p, nil
}

func (p *SchedulerMetricsProvider) PlacementLatencyMicrosecondsHistogram() *prometheus.HistogramVec {
	return p.placementLatencyMicroseconds
}

func (p *SchedulerMetricsProvider) TasksPlacedCounter() *prometheus.CounterVec {
	return p.tasksPlaced
}

func (p *SchedulerMetricsProvider) UnplaceableTasksCounter() prometheus.Counter {
	return p.unplaceableTasks
}

func (p *SchedulerMetricsProvider) PerformanceBoostsCounter() prometheus.Counter {
	return p.performanceBoosts
}

func (p *SchedulerMetricsProvider) MigrationsRequestedCounter() prometheus.Counter {
	return p.migrationsRequested
}

func (p *SchedulerMetricsProvider) MemoryWarningsCounter() prometheus.Counter {
	return p.memoryWarnings
}

func (p *SchedulerMetricsProvider) ActiveMachinesGauge() prometheus.Gauge {
	return p.activeMachines
}

func (p *SchedulerMetricsProvider) ClusterEnergyGauge() prometheus.Gauge {
	return p.clusterEnergy
}
