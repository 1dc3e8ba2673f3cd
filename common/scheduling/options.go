package scheduling

import (
	"fmt"

	"github.com/Scusemua/go-utils/config"
)

// SchedulerOptions configures the scheduler core. Field tags follow the
// go-utils config conventions so the options can be populated from a YAML
// file and/or command-line flags.
type SchedulerOptions struct {
	config.LoggerOptions

	ActiveMachinesBudget int  `name:"active-machines-budget" description:"Number of machines to power on at init, split evenly across CPU architecture groups."`
	VMMemoryOverheadMB   int  `name:"vm-memory-overhead-mb" description:"Per-VM memory overhead in MB, charged against machine memory on attach. Must match the host's value."`
	ConsolidationEnabled bool `name:"consolidation-enabled" description:"If enabled, the periodic check powers off machines with no active tasks and no active VMs."`
	GPUMigrationEnabled  bool `name:"gpu-migration-enabled" description:"If enabled, an SLA warning for a GPU-capable task on a GPU-less machine may trigger a migration to a GPU-bearing machine."`
}

func (o *SchedulerOptions) Validate() error {
	if o.ActiveMachinesBudget <= 0 {
		return fmt.Errorf("active-machines-budget must be positive, got %d", o.ActiveMachinesBudget)
	}

	if o.VMMemoryOverheadMB < 0 {
		return fmt.Errorf("vm-memory-overhead-mb must be non-negative, got %d", o.VMMemoryOverheadMB)
	}

	return nil
}

// VMMemoryOverhead returns the per-VM overhead in bytes.
func (o *SchedulerOptions) VMMemoryOverhead() uint64 {
	if o.VMMemoryOverheadMB == 0 {
		return DefaultVMMemoryOverhead
	}
	return uint64(o.VMMemoryOverheadMB) << 20
}

// SLAAwareOptions is the energy-conservative, SLA-aware preset.
func SLAAwareOptions() *SchedulerOptions {
	return &SchedulerOptions{
		ActiveMachinesBudget: DefaultActiveMachinesBudget,
		GPUMigrationEnabled:  true,
	}
}

// RoundRobinOptions is the smaller-footprint preset used by the round-robin
// variant of the scheduler.
func RoundRobinOptions() *SchedulerOptions {
	return &SchedulerOptions{
		ActiveMachinesBudget: RoundRobinActiveMachinesBudget,
	}
}
