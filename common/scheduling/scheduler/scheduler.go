package scheduler

import (
	"fmt"
	"io"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/google/uuid"

	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/types"
	"github.com/scusemua/cloudsim/common/utils"
)

// Scheduler is the placement-and-power policy engine. It owns the fleet
// inventory, provisioner, placement engine, DVFS controller and deadline
// tracker, and exposes the handlers the host invokes at each event.
//
// There is exactly one Scheduler per simulation. Handlers run serially under
// the host's event dispatcher and never block; all asynchrony is event
// driven through the StateChangeComplete and MigrationDone callbacks.
// Handlers never panic or return errors across the host boundary: failures
// are reported through the host's trace sink and by leaving state unchanged.
type Scheduler struct {
	log logger.Logger

	runID string

	platform  scheduling.Platform
	inventory scheduling.FleetInventory
	prov      scheduling.Provisioner
	placer    scheduling.Placer
	dvfs      scheduling.DVFSController
	tracker   scheduling.DeadlineTracker
	metrics   scheduling.MetricsProvider
	opts      *scheduling.SchedulerOptions

	reportWriter io.Writer
	shutdownDone bool
}

// Init provisions the initial fleet. Invoked by the host exactly once,
// before the first event.
func (s *Scheduler) Init() {
	s.log.Info("Initializing scheduler (run %s, budget %d machine(s)).", s.runID, s.opts.ActiveMachinesBudget)

	if err := s.prov.ProvisionInitialFleet(); err != nil {
		s.log.Error(utils.RedStyle.Render("Initial provisioning failed: %v"), err)
		s.platform.Output(fmt.Sprintf("Scheduler: initial provisioning failed: %v", err), 1)
	}
}

// HandleNewTask places an arriving task and records its deadline metadata.
func (s *Scheduler) HandleNewTask(now types.Time, task types.TaskID) {
	placement := s.placer.Place(now, task)
	if placement.Outcome != scheduling.PlacementPlaced {
		s.log.Debug("Task %s not placed: %s.", task, placement.Outcome)
		return
	}

	info := s.platform.TaskInfo(task)
	s.tracker.TrackPlacement(task, info.SLA, info.Deadline, placement.VM)
}

// HandleTaskCompletion removes the task's active record. Any consolidation
// opportunity this opens is taken by the next periodic check.
func (s *Scheduler) HandleTaskCompletion(now types.Time, task types.TaskID) {
	s.tracker.TaskCompleted(task)
}

// MemoryWarning reacts to a host-detected memory overcommit. The placement
// engine never chooses an overcommitting placement itself, so this signals
// host-side growth; the core records it and leaves remediation to the host.
func (s *Scheduler) MemoryWarning(now types.Time, machine types.MachineID) {
	s.platform.Output(fmt.Sprintf("Scheduler: memory overcommit on %s at %d", machine, now), 0)
	s.log.Error(utils.RedStyle.Render("Memory overcommit reported for %s."), machine)

	if s.metrics != nil && s.metrics.MemoryWarningsCounter() != nil {
		s.metrics.MemoryWarningsCounter().Inc()
	}
}

// MigrationDone settles a migrated VM, making it eligible for placements
// again.
func (s *Scheduler) MigrationDone(now types.Time, vm types.VMID) {
	s.inventory.MarkVMSettled(vm)
}

// SchedulerCheck is the periodic pass: the DVFS sweep first, then deadline
// re-estimation, so a deadline boost is never immediately undone by the
// utilization-based target within the same tick.
func (s *Scheduler) SchedulerCheck(now types.Time) {
	s.dvfs.Tick(now)
	s.tracker.CheckDeadlines(now)

	if s.metrics != nil && s.metrics.ClusterEnergyGauge() != nil {
		s.metrics.ClusterEnergyGauge().Set(s.platform.ClusterEnergy().InexactFloat64())
	}
}

// SLAWarning is the host's reactive signal that a task is at risk.
func (s *Scheduler) SLAWarning(now types.Time, task types.TaskID) {
	s.tracker.HandleSLAWarning(now, task)
}

// StateChangeComplete confirms an asynchronous S-state transition. The
// machine becomes eligible for placements (or, after retiring, stops being
// tracked as active).
func (s *Scheduler) StateChangeComplete(now types.Time, machine types.MachineID) {
	s.inventory.MarkMachineReady(machine)
	s.log.Debug("Machine %s finished its state transition (now %s).",
		machine, s.platform.MachineInfo(machine).State)
}

// SimulationComplete prints the final report and shuts down every VM the
// scheduler created, each exactly once.
func (s *Scheduler) SimulationComplete(now types.Time) {
	if s.shutdownDone {
		s.log.Warn("SimulationComplete invoked more than once; ignoring.")
		return
	}
	s.shutdownDone = true

	_, _ = fmt.Fprintln(s.reportWriter, "SLA violation report")
	for _, class := range []types.SLAClass{types.SLA0, types.SLA1, types.SLA2} {
		_, _ = fmt.Fprintf(s.reportWriter, "%s: %v%%\n", class, s.platform.SLAReport(class))
	}
	_, _ = fmt.Fprintf(s.reportWriter, "Total Energy %s KW-Hour\n", s.platform.ClusterEnergy())
	_, _ = fmt.Fprintf(s.reportWriter, "Simulation run finished in %v seconds\n", now.Seconds())

	for _, vm := range s.inventory.VMs() {
		if err := s.platform.ShutdownVM(vm); err != nil {
			s.log.Error("Failed to shut down VM %s: %v", vm, err)
		}
	}

	s.log.Info(utils.GreenStyle.Render("Simulation complete at %d; shut down %d VM(s)."),
		now, s.inventory.NumVMs())
}

// RunID returns the unique identifier of this simulation run.
func (s *Scheduler) RunID() string {
	return s.runID
}

// Inventory exposes the fleet inventory, mainly for inspection in tests and
// the driver.
func (s *Scheduler) Inventory() scheduling.FleetInventory {
	return s.inventory
}

func newScheduler() *Scheduler {
	s := &Scheduler{runID: uuid.NewString()}
	config.InitLogger(&s.log, s)
	return s
}
