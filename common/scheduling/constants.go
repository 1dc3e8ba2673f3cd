package scheduling

const (
	// DefaultActiveMachinesBudget is the number of machines the provisioner
	// powers on at init, split evenly across CPU architecture groups.
	DefaultActiveMachinesBudget = 64

	// RoundRobinActiveMachinesBudget is the smaller init budget used by the
	// round-robin preset.
	RoundRobinActiveMachinesBudget = 16

	// DefaultVMMemoryOverhead is the fixed memory tax, in bytes, the host
	// charges a machine for each attached VM. The real value is host-defined;
	// this default matches the simulated platform.
	DefaultVMMemoryOverhead uint64 = 8 << 20

	// GPUSpeedupFactor discounts the placement score of a GPU-bearing
	// machine when the task can use the GPU.
	GPUSpeedupFactor = 0.5

	// DeadlineSlackRatio is the fraction of the remaining slack the
	// estimated time-to-completion may consume before the deadline tracker
	// boosts the hosting machine.
	DeadlineSlackRatio = 0.5

	// HighUtilizationThreshold and friends are the DVFS step boundaries:
	// utilization above High runs at P0, above Medium at P1, above Low at
	// P2, and at or below Low at P3.
	HighUtilizationThreshold   = 0.80
	MediumUtilizationThreshold = 0.50
	LowUtilizationThreshold    = 0.20

	// BroadcastCore is the core identifier that, per the host contract,
	// broadcasts a SetCorePerformance call to every core of the machine.
	BroadcastCore = 0

	// MIPSScale converts a MIPS figure to instructions per second.
	MIPSScale = 1_000_000
)
