package scheduling

import (
	"github.com/scusemua/cloudsim/common/types"
)

// PlacementOutcome classifies the result of a placement attempt.
type PlacementOutcome int

const (
	// PlacementPlaced means the task was added to a VM.
	PlacementPlaced PlacementOutcome = iota

	// PlacementDeferred means no capacity was available right now, but a
	// matching machine is mid-transition (warming or retiring); the host's
	// next event may open capacity without any further action from the core.
	PlacementDeferred

	// PlacementUnplaceable means every placement tier was exhausted.
	PlacementUnplaceable
)

func (o PlacementOutcome) String() string {
	switch o {
	case PlacementPlaced:
		return "Placed"
	case PlacementDeferred:
		return "Deferred"
	case PlacementUnplaceable:
		return "Unplaceable"
	default:
		return "Unknown"
	}
}

// Placement is the result of Placer.Place.
type Placement struct {
	Outcome PlacementOutcome

	// VM is the VM the task was added to. Only valid when Outcome is
	// PlacementPlaced.
	VM types.VMID
}

// FleetInventory is the scheduler's cache of entity identifiers (C1). It is
// deliberately a pure bookkeeping layer: the authoritative numeric state
// (memory, task counts, S-/P-states) lives in the host's tables and is read
// through the Platform each time freshness matters, because the host mutates
// those fields as tasks run.
type FleetInventory interface {
	// AddMachine registers a machine under its CPU architecture group.
	AddMachine(id types.MachineID, cpu types.CPUType)

	// MachinesByCPU returns the machines of one architecture group in
	// ascending identifier order.
	MachinesByCPU(cpu types.CPUType) []types.MachineID

	// CPUGroups returns the known architecture groups in a deterministic
	// order.
	CPUGroups() []types.CPUType

	// NumMachines returns the number of registered machines.
	NumMachines() int

	// RegisterVM records a VM created by the scheduler, in creation order.
	RegisterVM(id types.VMID)

	// VMs returns every scheduler-created VM in creation order.
	VMs() []types.VMID

	// NumVMs returns the number of scheduler-created VMs.
	NumVMs() int

	// MarkVMMigrating flags a VM as mid-migration towards dst. A migrating
	// VM is not eligible for new placements.
	MarkVMMigrating(vm types.VMID, dst types.MachineID)

	// MarkVMSettled clears a VM's migrating flag once MigrationDone arrives.
	MarkVMSettled(vm types.VMID)

	// VMMigrating reports whether a VM is mid-migration.
	VMMigrating(vm types.VMID) bool

	// MarkMachineWarming flags a machine as transitioning towards S0. A
	// warming machine is not eligible for placements until the host's
	// StateChangeComplete callback arrives.
	MarkMachineWarming(id types.MachineID)

	// MarkMachineRetiring flags a machine as transitioning towards S5.
	MarkMachineRetiring(id types.MachineID)

	// MarkMachineReady clears a machine's transition flags once the host's
	// StateChangeComplete callback arrives.
	MarkMachineReady(id types.MachineID)

	// MachineTransitioning reports whether a machine has an S-state
	// transition in flight.
	MachineTransitioning(id types.MachineID) bool
}

// Provisioner powers machines on and off and creates VMs on them (C2).
type Provisioner interface {
	// ProvisionInitialFleet enumerates the fleet, powers on a budgeted
	// subset of each CPU group with one default-typed VM each, and sends the
	// remainder to S5. Architecture groups with no default guest mapping are
	// skipped.
	ProvisionInitialFleet() error

	// DefaultVMFor returns the default guest type for a CPU architecture.
	DefaultVMFor(cpu types.CPUType) (types.VMType, error)

	// CreateVMOn creates a VM of the given guest type, attaches it to an
	// active machine and registers it in the inventory.
	CreateVMOn(machine types.MachineID, vmType types.VMType, cpu types.CPUType) (types.VMID, error)

	// WakeMachine requests an S5→S0 transition, marks the machine warming,
	// and optimistically creates and attaches a VM of the given guest type.
	// The host buffers work until the machine is ready.
	WakeMachine(machine types.MachineID, vmType types.VMType, cpu types.CPUType) (types.VMID, error)
}

// Placer selects a VM for each arriving task (C3).
type Placer interface {
	// Place runs the three-tier placement algorithm for a task and, on
	// success, adds the task to the chosen VM. Place never returns an error
	// across the host boundary: failures surface as Deferred or Unplaceable
	// outcomes plus diagnostics.
	Place(now types.Time, task types.TaskID) Placement
}

// DVFSController drives per-machine P-states from observed utilization and
// optionally consolidates empty machines (C4).
type DVFSController interface {
	// Tick recomputes and applies the P-state target of every active
	// machine. Idempotent with respect to repeated calls with no
	// intervening task events.
	Tick(now types.Time)

	// PStateForUtilization maps a utilization ratio to a P-state target.
	PStateForUtilization(utilization float64) types.CPUPerformance
}

// DeadlineTracker owns the per-task deadline records and the SLA rescue
// responses (C5).
type DeadlineTracker interface {
	// TrackPlacement inserts an active-task record at placement time.
	TrackPlacement(task types.TaskID, sla types.SLAClass, deadline types.Time, vm types.VMID)

	// TaskVM returns the VM an active task was placed on.
	TaskVM(task types.TaskID) (types.VMID, bool)

	// CheckDeadlines re-estimates time-to-completion for every active task
	// and boosts the performance of machines hosting at-risk tasks.
	CheckDeadlines(now types.Time)

	// HandleSLAWarning reacts to a host SLA warning for a task.
	HandleSLAWarning(now types.Time, task types.TaskID)

	// TaskCompleted removes a task's record.
	TaskCompleted(task types.TaskID)

	// NumActiveTasks returns the number of tracked, not-yet-completed tasks.
	NumActiveTasks() int
}
