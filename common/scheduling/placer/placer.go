package placer

import (
	"fmt"
	"math"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/types"
	"github.com/scusemua/cloudsim/common/utils"
)

const (
	tierReuse  = "reuse"
	tierCreate = "create"
	tierWake   = "wake"
)

// ScoredPlacer implements the three-tier placement algorithm (C3): reuse the
// best-scoring existing VM, else create a VM on an active machine, else wake
// a dormant machine. Warm capacity is cheapest, expanding in place costs a
// VM, and paying the wake-up latency comes last.
type ScoredPlacer struct {
	log logger.Logger

	platform    scheduling.Platform
	inventory   scheduling.FleetInventory
	provisioner scheduling.Provisioner
	metrics     scheduling.MetricsProvider
	opts        *scheduling.SchedulerOptions
}

// New creates a ScoredPlacer. The metrics provider may be nil.
func New(platform scheduling.Platform, inv scheduling.FleetInventory, prov scheduling.Provisioner,
	metrics scheduling.MetricsProvider, opts *scheduling.SchedulerOptions) *ScoredPlacer {

	p := &ScoredPlacer{
		platform:    platform,
		inventory:   inv,
		provisioner: prov,
		metrics:     metrics,
		opts:        opts,
	}
	config.InitLogger(&p.log, p)
	return p
}

// Place runs the placement tiers for a task. On success the task has been
// added to the returned VM; the caller records the active-task entry.
// Place never panics or returns an error across the host boundary.
func (p *ScoredPlacer) Place(now types.Time, task types.TaskID) scheduling.Placement {
	st := time.Now()
	info := p.platform.TaskInfo(task)

	placement := p.place(info)

	if p.metrics != nil && p.metrics.PlacementLatencyMicrosecondsHistogram() != nil {
		p.metrics.PlacementLatencyMicrosecondsHistogram().
			With(prometheus.Labels{"outcome": placement.Outcome.String()}).
			Observe(float64(time.Since(st).Microseconds()))
	}

	return placement
}

func (p *ScoredPlacer) place(task types.TaskInfo) scheduling.Placement {
	if vm, ok := p.assignToBestVM(task); ok {
		return scheduling.Placement{Outcome: scheduling.PlacementPlaced, VM: vm}
	}

	if vm, ok := p.createOnActiveMachine(task); ok {
		return scheduling.Placement{Outcome: scheduling.PlacementPlaced, VM: vm}
	}

	if vm, ok := p.wakeDormantMachine(task); ok {
		return scheduling.Placement{Outcome: scheduling.PlacementPlaced, VM: vm}
	}

	if p.groupHasTransitioningMachine(task.RequiredCPU) {
		p.log.Debug("Deferring task %s: a %s machine is mid-transition.", task.ID, task.RequiredCPU)
		return scheduling.Placement{Outcome: scheduling.PlacementDeferred}
	}

	p.platform.Output(fmt.Sprintf("Placer: task %s is unplaceable (cpu=%s, guest=%s, memory=%d bytes)",
		task.ID, task.RequiredCPU, task.RequiredVM, task.RequiredMemory), 1)
	p.log.Warn(utils.OrangeStyle.Render("Task %s exhausted all placement tiers."), task.ID)

	if p.metrics != nil && p.metrics.UnplaceableTasksCounter() != nil {
		p.metrics.UnplaceableTasksCounter().Inc()
	}

	return scheduling.Placement{Outcome: scheduling.PlacementUnplaceable}
}

// score rates one candidate machine for a task. Lower is better. The product
// balances load while discounting throttled machines and rewarding
// hardware-accelerated fits. NaN rates as the worst possible candidate so a
// corrupt MIPS vector can never win a tie.
func (p *ScoredPlacer) score(task types.TaskInfo, mach types.MachineInfo) float64 {
	load := float64(mach.ActiveTasks) / float64(mach.NumCores)
	speedRatio := float64(mach.MIPS[types.P0]) / float64(mach.MIPS[mach.PState])

	gpuFactor := 1.0
	if task.GPUCapable && mach.GPUs {
		gpuFactor = scheduling.GPUSpeedupFactor
	}

	score := load * speedRatio * gpuFactor
	if math.IsNaN(score) {
		return math.Inf(1)
	}
	return score
}

// assignToBestVM is tier 1: select the minimum-score VM that passes every
// hard filter. Candidates are visited in ascending VM identifier order and
// only a strictly lower score displaces the incumbent, so ties resolve to
// the lowest identifier.
func (p *ScoredPlacer) assignToBestVM(task types.TaskInfo) (types.VMID, bool) {
	var (
		bestVM    types.VMID
		bestScore = math.Inf(1)
		found     bool
	)

	for _, vm := range p.inventory.VMs() {
		if p.inventory.VMMigrating(vm) {
			continue
		}

		vmInfo := p.platform.VMInfo(vm)
		mach := p.platform.MachineInfo(vmInfo.Machine)

		if mach.State != types.S0 || p.inventory.MachineTransitioning(mach.ID) {
			continue
		}

		if mach.CPU != task.RequiredCPU || vmInfo.Type != task.RequiredVM {
			continue
		}

		// The per-VM overhead is already paid for an existing VM; only the
		// task's own memory must still fit.
		if mach.MemoryUsed+task.RequiredMemory > mach.MemoryCapacity {
			continue
		}

		if score := p.score(task, mach); score < bestScore {
			bestScore = score
			bestVM = vm
			found = true
		}
	}

	if !found {
		return 0, false
	}

	if err := p.platform.AddTask(bestVM, task.ID, task.Priority); err != nil {
		p.log.Error("Host rejected task %s on VM %s: %v", task.ID, bestVM, err)
		return 0, false
	}

	p.log.Debug("Task %s assigned to existing VM %s (score=%.4f).", task.ID, bestVM, bestScore)
	p.countPlaced(tierReuse)
	return bestVM, true
}

// createOnActiveMachine is tier 2: create a VM of the task's required guest
// type on the first active machine with capacity. An SLA0 task raises a
// throttled machine to at least P1 before the VM lands on it.
func (p *ScoredPlacer) createOnActiveMachine(task types.TaskInfo) (types.VMID, bool) {
	overhead := p.opts.VMMemoryOverhead()

	for _, id := range p.inventory.MachinesByCPU(task.RequiredCPU) {
		mach := p.platform.MachineInfo(id)

		if mach.State != types.S0 || p.inventory.MachineTransitioning(id) {
			continue
		}

		if mach.MemoryUsed+task.RequiredMemory+overhead > mach.MemoryCapacity {
			continue
		}

		if task.SLA == types.SLA0 && mach.PState.SlowerThan(types.P1) {
			p.platform.SetCorePerformance(id, scheduling.BroadcastCore, types.P1)
		}

		vm, err := p.provisioner.CreateVMOn(id, task.RequiredVM, task.RequiredCPU)
		if err != nil {
			p.log.Error("Failed to create %s VM on %s for task %s: %v", task.RequiredVM, id, task.ID, err)
			continue
		}

		if err = p.platform.AddTask(vm, task.ID, task.Priority); err != nil {
			p.log.Error("Host rejected task %s on fresh VM %s: %v", task.ID, vm, err)
			continue
		}

		p.log.Debug("Task %s placed on fresh VM %s on active machine %s.", task.ID, vm, id)
		p.countPlaced(tierCreate)
		return vm, true
	}

	return 0, false
}

// wakeDormantMachine is tier 3: wake the first dormant machine of the right
// architecture. The task is placed optimistically; the host buffers it until
// the machine finishes warming, and the machine stays ineligible for further
// placements until StateChangeComplete.
func (p *ScoredPlacer) wakeDormantMachine(task types.TaskInfo) (types.VMID, bool) {
	for _, id := range p.inventory.MachinesByCPU(task.RequiredCPU) {
		mach := p.platform.MachineInfo(id)

		if mach.State != types.S5 || p.inventory.MachineTransitioning(id) {
			continue
		}

		vm, err := p.provisioner.WakeMachine(id, task.RequiredVM, task.RequiredCPU)
		if err != nil {
			p.log.Error("Failed to wake %s for task %s: %v", id, task.ID, err)
			continue
		}

		if err = p.platform.AddTask(vm, task.ID, task.Priority); err != nil {
			p.log.Error("Host rejected task %s on VM %s of waking machine %s: %v", task.ID, vm, id, err)
			continue
		}

		p.log.Info(utils.LightBlueStyle.Render("Woke dormant machine %s for task %s (VM %s)."), id, task.ID, vm)
		p.countPlaced(tierWake)
		return vm, true
	}

	return 0, false
}

func (p *ScoredPlacer) groupHasTransitioningMachine(cpu types.CPUType) bool {
	for _, id := range p.inventory.MachinesByCPU(cpu) {
		if p.inventory.MachineTransitioning(id) {
			return true
		}
	}
	return false
}

func (p *ScoredPlacer) countPlaced(tier string) {
	if p.metrics != nil && p.metrics.TasksPlacedCounter() != nil {
		p.metrics.TasksPlacedCounter().With(prometheus.Labels{"tier": tier}).Inc()
	}
}
