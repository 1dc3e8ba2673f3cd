package provisioner

import (
	"fmt"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/pkg/errors"

	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/types"
	"github.com/scusemua/cloudsim/common/utils"
)

// Provisioner powers machines on and off and creates VMs on them (C2).
type Provisioner struct {
	log logger.Logger

	platform  scheduling.Platform
	inventory scheduling.FleetInventory
	metrics   scheduling.MetricsProvider
	opts      *scheduling.SchedulerOptions
}

// New creates a Provisioner. The metrics provider may be nil.
func New(platform scheduling.Platform, inv scheduling.FleetInventory,
	metrics scheduling.MetricsProvider, opts *scheduling.SchedulerOptions) *Provisioner {

	p := &Provisioner{
		platform:  platform,
		inventory: inv,
		metrics:   metrics,
		opts:      opts,
	}
	config.InitLogger(&p.log, p)
	return p
}

// DefaultVMFor returns the default guest type attached to each machine of an
// architecture group at init. Architectures without a mapping cannot be
// provisioned by default and yield scheduling.ErrUnknownCPU.
func (p *Provisioner) DefaultVMFor(cpu types.CPUType) (types.VMType, error) {
	switch cpu {
	case types.CPUX86:
		return types.VMLinux, nil
	case types.CPUPower:
		return types.VMAix, nil
	case types.CPUArm:
		return types.VMWin, nil
	default:
		return 0, errors.Wrap(scheduling.ErrUnknownCPU, cpu.String())
	}
}

// ProvisionInitialFleet enumerates every machine, partitions the fleet by CPU
// architecture, powers on an even share of the active-machine budget per
// group with one default-typed VM each, and sends the remainder to S5.
func (p *Provisioner) ProvisionInitialFleet() error {
	total := p.platform.TotalMachines()
	for i := 0; i < total; i++ {
		info := p.platform.MachineInfo(types.MachineID(i))
		p.inventory.AddMachine(info.ID, info.CPU)
	}

	groups := p.inventory.CPUGroups()
	if len(groups) == 0 {
		p.log.Warn("No machines enumerated; nothing to provision.")
		return nil
	}

	budgetPerGroup := p.opts.ActiveMachinesBudget / len(groups)
	poweredOn := 0

	for _, cpu := range groups {
		group := p.inventory.MachinesByCPU(cpu)

		vmType, err := p.DefaultVMFor(cpu)
		if err != nil {
			p.platform.Output(fmt.Sprintf("Provisioner: no default guest type for CPU %s; skipping %d machine(s)",
				cpu, len(group)), 1)
			p.log.Error(utils.RedStyle.Render("Skipping architecture group %s (%d machines): %v"),
				cpu, len(group), err)

			for _, id := range group {
				p.sendToSleep(id)
			}
			continue
		}

		initCount := len(group)
		if budgetPerGroup < initCount {
			initCount = budgetPerGroup
		}

		for _, id := range group[:initCount] {
			p.platform.SetMachineState(id, types.S0)

			if _, err := p.CreateVMOn(id, vmType, cpu); err != nil {
				p.log.Error("Failed to provision default %s VM on %s: %v", vmType, id, err)
				continue
			}
			poweredOn++
		}

		for _, id := range group[initCount:] {
			p.sendToSleep(id)
		}

		p.log.Info("Provisioned %d/%d %s machine(s) with default guest %s.",
			initCount, len(group), cpu, vmType)
	}

	if p.metrics != nil && p.metrics.ActiveMachinesGauge() != nil {
		p.metrics.ActiveMachinesGauge().Set(float64(poweredOn))
	}

	p.log.Info(utils.GreenStyle.Render("Initial fleet provisioned: %d machine(s) on across %d architecture group(s)."),
		poweredOn, len(groups))
	return nil
}

// sendToSleep requests an S5 transition. The transition is asynchronous, so
// the machine is marked retiring until StateChangeComplete confirms it;
// otherwise a placement could select a machine that still reads as S0 while
// it is powering down.
func (p *Provisioner) sendToSleep(id types.MachineID) {
	// A machine that is already off produces no completion callback.
	if p.platform.MachineInfo(id).State == types.S5 {
		return
	}

	p.platform.SetMachineState(id, types.S5)
	p.inventory.MarkMachineRetiring(id)
}

// CreateVMOn creates a VM of the given guest type, attaches it to an active
// machine and registers it with the inventory. If the attach fails, the
// freshly created VM is shut down again so it does not leak.
func (p *Provisioner) CreateVMOn(machine types.MachineID, vmType types.VMType, cpu types.CPUType) (types.VMID, error) {
	vm, err := p.platform.CreateVM(vmType, cpu)
	if err != nil {
		return 0, errors.Wrapf(scheduling.ErrVMCreationFailed, "type=%s cpu=%s: %v", vmType, cpu, err)
	}

	if err = p.platform.AttachVM(vm, machine); err != nil {
		if shutdownErr := p.platform.ShutdownVM(vm); shutdownErr != nil {
			p.log.Error("Failed to shut down orphaned VM %s: %v", vm, shutdownErr)
		}
		return 0, errors.Wrapf(scheduling.ErrVMAttachFailed, "vm=%s machine=%s: %v", vm, machine, err)
	}

	p.inventory.RegisterVM(vm)
	p.log.Debug("Created %s VM %s on %s.", vmType, vm, machine)
	return vm, nil
}

// WakeMachine requests an S5→S0 transition for a dormant machine, marks it
// warming so no other placement selects it before StateChangeComplete, and
// optimistically creates and attaches a VM of the given guest type. The host
// buffers the VM's work until the machine is ready.
func (p *Provisioner) WakeMachine(machine types.MachineID, vmType types.VMType, cpu types.CPUType) (types.VMID, error) {
	p.platform.SetMachineState(machine, types.S0)
	p.inventory.MarkMachineWarming(machine)
	p.log.Debug("Waking dormant machine %s for a %s VM.", machine, vmType)

	return p.CreateVMOn(machine, vmType, cpu)
}
