package scheduling

import (
	"github.com/shopspring/decimal"

	"github.com/scusemua/cloudsim/common/types"
)

// Platform is the host simulator as seen from the scheduler core. The host
// owns the clock, the hardware model and all entity tables; the scheduler
// only ever holds identifiers and queries the platform whenever it needs
// fresh state.
//
// Query methods are pure reads. SetMachineState and MigrateVM are
// asynchronous requests: they return immediately and the host confirms
// completion later through the Scheduler's StateChangeComplete and
// MigrationDone handlers. Until the confirmation arrives the affected entity
// is in a transient state and must not be selected for new placements.
type Platform interface {
	// TotalMachines returns the number of physical machines in the cluster.
	// Machine identifiers are dense: 0 .. TotalMachines()-1.
	TotalMachines() int

	// MachineInfo returns the authoritative state of a machine.
	MachineInfo(id types.MachineID) types.MachineInfo

	// VMInfo returns the authoritative state of a VM.
	VMInfo(id types.VMID) types.VMInfo

	// TaskInfo returns the authoritative state of a task, including its
	// re-estimated remaining instruction count.
	TaskInfo(id types.TaskID) types.TaskInfo

	// TaskCompleted reports whether the given task has finished.
	TaskCompleted(id types.TaskID) bool

	// SetMachineState requests an S-state transition. Asynchronous; the host
	// confirms via StateChangeComplete. Requesting the machine's current
	// state is a no-op that produces no confirmation.
	SetMachineState(id types.MachineID, state types.MachineState)

	// SetCorePerformance sets the P-state of one core. Per the host
	// contract, core 0 broadcasts the setting to every core. Synchronous.
	SetCorePerformance(id types.MachineID, core int, p types.CPUPerformance)

	// CreateVM creates a new, unattached VM of the given guest type.
	CreateVM(vmType types.VMType, cpu types.CPUType) (types.VMID, error)

	// AttachVM attaches a VM to a machine, charging the per-VM memory
	// overhead against the machine.
	AttachVM(vm types.VMID, machine types.MachineID) error

	// AddTask starts a task on a VM with the given priority.
	AddTask(vm types.VMID, task types.TaskID, priority types.Priority) error

	// MigrateVM requests a live migration of a VM to another machine.
	// Asynchronous; the host confirms via MigrationDone.
	MigrateVM(vm types.VMID, dst types.MachineID) error

	// ShutdownVM destroys a VM. The VM must not be hosting incomplete tasks.
	ShutdownVM(vm types.VMID) error

	// SLAReport returns the violation percentage for an SLA class.
	SLAReport(class types.SLAClass) float64

	// ClusterEnergy returns the cumulative cluster energy in KW-hour.
	// Non-decreasing between events.
	ClusterEnergy() decimal.Decimal

	// Output writes a diagnostic message to the host's trace sink at the
	// given verbosity level (0 is the most severe).
	Output(msg string, level int)
}
