package deadline

import (
	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/elliotchance/orderedmap/v2"

	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/types"
	"github.com/scusemua/cloudsim/common/utils"
)

// ActiveTask is the scheduler-owned record of one placed, not-yet-complete
// task. Created at placement, destroyed at completion.
//
// Lifecycle: Placed → (Boosted?) → (Migrating?) → removed. Boosted and
// Migrating are not mutually exclusive.
type ActiveTask struct {
	Task     types.TaskID
	SLA      types.SLAClass
	Deadline types.Time
	VM       types.VMID

	Boosted   bool
	Migrating bool
}

// Tracker maintains deadline metadata for every active task, re-estimates
// time-to-completion on each periodic check, and reacts to host SLA
// warnings (C5).
type Tracker struct {
	log logger.Logger

	platform  scheduling.Platform
	inventory scheduling.FleetInventory
	metrics   scheduling.MetricsProvider
	opts      *scheduling.SchedulerOptions

	active *orderedmap.OrderedMap[types.TaskID, *ActiveTask]
}

// New creates a Tracker. The metrics provider may be nil.
func New(platform scheduling.Platform, inv scheduling.FleetInventory,
	metrics scheduling.MetricsProvider, opts *scheduling.SchedulerOptions) *Tracker {

	t := &Tracker{
		platform:  platform,
		inventory: inv,
		metrics:   metrics,
		opts:      opts,
		active:    orderedmap.NewOrderedMap[types.TaskID, *ActiveTask](),
	}
	config.InitLogger(&t.log, t)
	return t
}

func (t *Tracker) TrackPlacement(task types.TaskID, sla types.SLAClass, deadline types.Time, vm types.VMID) {
	t.active.Set(task, &ActiveTask{
		Task:     task,
		SLA:      sla,
		Deadline: deadline,
		VM:       vm,
	})
}

func (t *Tracker) TaskVM(task types.TaskID) (types.VMID, bool) {
	record, loaded := t.active.Get(task)
	if !loaded {
		return 0, false
	}
	return record.VM, true
}

func (t *Tracker) NumActiveTasks() int {
	return t.active.Len()
}

func (t *Tracker) TaskCompleted(task types.TaskID) {
	if deleted := t.active.Delete(task); !deleted {
		t.log.Warn("Completion for task %s, which has no active record.", task)
		return
	}

	t.log.Debug("Task %s completed; %d task(s) still active.", task, t.active.Len())
}

// CheckDeadlines walks every active task and estimates whether it will meet
// its deadline at the hosting machine's current P-state. A task whose
// estimated time-to-completion consumes at least half its remaining slack
// gets its machine boosted to P0. Tasks already past their deadline are skipped: no
// recovery is available from the core.
func (t *Tracker) CheckDeadlines(now types.Time) {
	for el := t.active.Front(); el != nil; el = el.Next() {
		record := el.Value

		if t.platform.TaskCompleted(record.Task) {
			continue
		}

		info := t.platform.TaskInfo(record.Task)
		if now > record.Deadline {
			t.log.Debug("Task %s is already past its deadline (%d > %d).", record.Task, now, record.Deadline)
			continue
		}

		if info.RemainingInstructions == 0 {
			continue
		}

		// A migrating VM is unattached; there is no machine to estimate
		// against until MigrationDone.
		if t.inventory.VMMigrating(record.VM) {
			continue
		}

		vmInfo := t.platform.VMInfo(record.VM)
		mach := t.platform.MachineInfo(vmInfo.Machine)

		mips := mach.MIPS[mach.PState]
		etaSeconds := float64(info.RemainingInstructions) / (float64(mips) * scheduling.MIPSScale)
		eta := types.Time(etaSeconds * float64(types.MicrosecondsPerSecond))

		slack := record.Deadline - now
		if eta >= types.Time(float64(slack)*scheduling.DeadlineSlackRatio) {
			t.log.Debug("Task %s at risk: eta=%dus, slack=%dus; boosting %s.",
				record.Task, eta, slack, mach.ID)
			t.boost(mach.ID)
			record.Boosted = true
		}
	}
}

// HandleSLAWarning is the reactive path: the host has flagged a task as at
// risk, so its machine is boosted immediately. A GPU-capable task stuck on a
// GPU-less machine may additionally be migrated to a compatible GPU-bearing
// machine when the feature is enabled.
func (t *Tracker) HandleSLAWarning(now types.Time, task types.TaskID) {
	record, loaded := t.active.Get(task)
	if !loaded {
		t.log.Warn("SLA warning for task %s, which has no active record.", task)
		return
	}

	if t.inventory.VMMigrating(record.VM) {
		t.log.Debug("SLA warning for task %s while its VM %s is mid-migration; nothing to boost.",
			task, record.VM)
		return
	}

	info := t.platform.TaskInfo(task)
	vmInfo := t.platform.VMInfo(record.VM)
	mach := t.platform.MachineInfo(vmInfo.Machine)

	t.log.Warn(utils.YellowStyle.Render("SLA warning for %s task %s on %s; boosting."),
		record.SLA, task, mach.ID)
	t.boost(mach.ID)
	record.Boosted = true

	if t.opts.GPUMigrationEnabled && info.GPUCapable && !mach.GPUs && !t.inventory.VMMigrating(record.VM) {
		t.migrateTowardsGPU(record, info, vmInfo, mach)
	}
}

// migrateTowardsGPU requests a migration of the task's VM to the first
// compatible GPU-bearing machine with memory headroom. The VM stays
// ineligible for placements until MigrationDone arrives.
func (t *Tracker) migrateTowardsGPU(record *ActiveTask, task types.TaskInfo,
	vmInfo types.VMInfo, current types.MachineInfo) {

	overhead := t.opts.VMMemoryOverhead()

	for _, id := range t.inventory.MachinesByCPU(task.RequiredCPU) {
		if id == current.ID || t.inventory.MachineTransitioning(id) {
			continue
		}

		candidate := t.platform.MachineInfo(id)
		if candidate.State != types.S0 || !candidate.GPUs {
			continue
		}

		if candidate.MemoryUsed+task.RequiredMemory+overhead > candidate.MemoryCapacity {
			continue
		}

		if err := t.platform.MigrateVM(record.VM, id); err != nil {
			t.log.Error("Failed to request migration of VM %s to %s: %v", record.VM, id, err)
			return
		}

		t.inventory.MarkVMMigrating(record.VM, id)
		record.Migrating = true

		if t.metrics != nil && t.metrics.MigrationsRequestedCounter() != nil {
			t.metrics.MigrationsRequestedCounter().Inc()
		}

		t.log.Info(utils.LightBlueStyle.Render("Migrating VM %s to GPU machine %s for task %s."),
			record.VM, id, record.Task)
		return
	}

	t.log.Debug("No GPU-bearing %s machine available for task %s.", task.RequiredCPU, record.Task)
}

func (t *Tracker) boost(id types.MachineID) {
	t.platform.SetCorePerformance(id, scheduling.BroadcastCore, types.P0)

	if t.metrics != nil && t.metrics.PerformanceBoostsCounter() != nil {
		t.metrics.PerformanceBoostsCounter().Inc()
	}
}
