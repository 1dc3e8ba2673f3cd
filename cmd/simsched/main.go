package main

import (
	"fmt"
	"os"

	"github.com/Scusemua/go-utils/config"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scusemua/cloudsim/common/metrics"
	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/scheduling/scheduler"
	"github.com/scusemua/cloudsim/common/types"
	"github.com/scusemua/cloudsim/simhost"
)

var (
	options = Options{
		SchedulerOptions: *scheduling.SLAAwareOptions(),

		NumX86Machines:   8,
		NumPowerMachines: 4,
		NumArmMachines:   4,
		NumTasks:         64,
		CheckIntervalMs:  100,
	}
	logger = config.GetLogger("")
)

// Options configures the demo driver: a small heterogeneous fleet and a
// synthetic workload replayed against the scheduler core.
type Options struct {
	scheduling.SchedulerOptions

	NumX86Machines   int `name:"num-x86-machines" description:"Number of X86 machines in the simulated fleet."`
	NumPowerMachines int `name:"num-power-machines" description:"Number of POWER machines in the simulated fleet."`
	NumArmMachines   int `name:"num-arm-machines" description:"Number of ARM machines in the simulated fleet."`
	NumTasks         int `name:"num-tasks" description:"Number of tasks to replay."`
	CheckIntervalMs  int `name:"check-interval-ms" description:"Milliseconds of simulated time between periodic scheduler checks."`
}

func init() {
	if _, err := config.ValidateOptions(&options); err != nil {
		if err == config.ErrPrintUsage {
			config.Flag.PrintDefaults()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "invalid options: %v\n", err)
		os.Exit(1)
	}
}

func buildFleet(host *simhost.SimHost) {
	add := func(n int, cpu types.CPUType) {
		for i := 0; i < n; i++ {
			host.AddMachine(simhost.MachineSpec{
				CPU:            cpu,
				NumCores:       8,
				MemoryCapacity: 16 << 30,
				GPUs:           i%4 == 0,
				MIPS:           [types.NumPStates]int{3000, 2200, 1400, 800},
			})
		}
	}

	add(options.NumX86Machines, types.CPUX86)
	add(options.NumPowerMachines, types.CPUPower)
	add(options.NumArmMachines, types.CPUArm)
}

// taskFor synthesizes a deterministic workload: tasks cycle through the
// architecture groups and SLA classes, with the occasional non-default
// guest type to force the placement engine off the reuse tier.
func taskFor(i int, now types.Time) simhost.TaskSpec {
	cpus := []types.CPUType{types.CPUX86, types.CPUPower, types.CPUArm}
	defaults := map[types.CPUType]types.VMType{
		types.CPUX86:   types.VMLinux,
		types.CPUPower: types.VMAix,
		types.CPUArm:   types.VMWin,
	}

	cpu := cpus[i%len(cpus)]
	guest := defaults[cpu]
	if cpu == types.CPUX86 && i%9 == 0 {
		guest = types.VMLinuxRT
	}

	return simhost.TaskSpec{
		RequiredCPU:           cpu,
		RequiredVM:            guest,
		RequiredMemory:        256 << 20,
		SLA:                   types.SLAClass(i % 4),
		Arrival:               now,
		Deadline:              now + 2_000_000,
		RemainingInstructions: uint64(1_000_000_000 + i*10_000_000),
		GPUCapable:            i%5 == 0,
	}
}

func main() {
	host := simhost.New(options.VMMemoryOverhead())
	buildFleet(host)

	metricsProvider, err := metrics.NewSchedulerMetricsProvider(prometheus.NewRegistry())
	if err != nil {
		logger.Error("Failed to initialize metrics: %v", err)
		os.Exit(1)
	}

	sched, err := scheduler.NewBuilder().
		WithPlatform(host).
		WithOptions(&options.SchedulerOptions).
		WithMetricsProvider(metricsProvider).
		Build()
	if err != nil {
		logger.Error("Failed to build scheduler: %v", err)
		os.Exit(1)
	}

	sched.Init()

	now := types.Time(0)
	drain := func() {
		host.DrainStateChanges(func(id types.MachineID) { sched.StateChangeComplete(now, id) })
		host.DrainMigrations(func(vm types.VMID) { sched.MigrationDone(now, vm) })
		for _, id := range host.Overcommitted() {
			sched.MemoryWarning(now, id)
		}
	}
	drain()

	checkInterval := types.Time(options.CheckIntervalMs) * 1_000
	nextCheck := checkInterval

	var outstanding []types.TaskID
	completeOldest := func() {
		task := outstanding[0]
		outstanding = outstanding[1:]
		if err := host.CompleteTask(task); err != nil {
			logger.Error("Failed to complete %s: %v", task, err)
			return
		}
		sched.HandleTaskCompletion(now, task)
	}

	for i := 0; i < options.NumTasks; i++ {
		now += 10_000
		host.AdvanceTo(now)

		task := host.SubmitTask(taskFor(i, now))
		sched.HandleNewTask(now, task)
		outstanding = append(outstanding, task)

		if now >= nextCheck {
			sched.SchedulerCheck(now)
			nextCheck += checkInterval
		}
		drain()

		if len(outstanding) > 16 {
			completeOldest()
		}
	}

	for len(outstanding) > 0 {
		now += 10_000
		host.AdvanceTo(now)
		completeOldest()
		drain()
	}

	now += checkInterval
	host.AdvanceTo(now)
	sched.SchedulerCheck(now)
	drain()

	sched.SimulationComplete(now)
}
