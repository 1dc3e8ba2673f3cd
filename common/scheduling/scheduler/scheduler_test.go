package scheduler_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/scusemua/cloudsim/common/metrics"
	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/scheduling/scheduler"
	"github.com/scusemua/cloudsim/common/types"
	"github.com/scusemua/cloudsim/simhost"
)

const second = types.MicrosecondsPerSecond

var _ = Describe("Scheduler", func() {
	var (
		host   *simhost.SimHost
		opts   *scheduling.SchedulerOptions
		sched  *scheduler.Scheduler
		report *bytes.Buffer
		now    types.Time
	)

	drain := func() {
		host.DrainStateChanges(func(id types.MachineID) { sched.StateChangeComplete(now, id) })
		host.DrainMigrations(func(vm types.VMID) { sched.MigrationDone(now, vm) })
		for _, id := range host.Overcommitted() {
			sched.MemoryWarning(now, id)
		}
	}

	build := func() {
		var err error
		sched, err = scheduler.NewBuilder().
			WithPlatform(host).
			WithOptions(opts).
			WithReportWriter(report).
			Build()
		Expect(err).ToNot(HaveOccurred())

		sched.Init()
		drain()
	}

	addFleet := func(x86, power int) {
		for i := 0; i < x86; i++ {
			host.AddMachine(simhost.MachineSpec{
				CPU:            types.CPUX86,
				NumCores:       4,
				MemoryCapacity: 16 << 30,
				GPUs:           i%2 == 1,
				MIPS:           [types.NumPStates]int{3000, 2000, 1000, 800},
			})
		}
		for i := 0; i < power; i++ {
			host.AddMachine(simhost.MachineSpec{
				CPU:            types.CPUPower,
				NumCores:       4,
				MemoryCapacity: 16 << 30,
				MIPS:           [types.NumPStates]int{2500, 1800, 900, 600},
			})
		}
	}

	submit := func(spec simhost.TaskSpec) types.TaskID {
		spec.Arrival = now
		id := host.SubmitTask(spec)
		sched.HandleNewTask(now, id)
		return id
	}

	BeforeEach(func() {
		host = simhost.New(scheduling.DefaultVMMemoryOverhead)
		opts = scheduling.SLAAwareOptions()
		report = new(bytes.Buffer)
		now = 0
	})

	It("Will provision one default VM per powered machine at init", func() {
		addFleet(4, 2)
		build()

		Expect(sched.Inventory().NumMachines()).To(Equal(6))
		Expect(sched.Inventory().NumVMs()).To(Equal(6))

		for _, vm := range sched.Inventory().VMs() {
			info := host.VMInfo(vm)
			switch host.MachineInfo(info.Machine).CPU {
			case types.CPUX86:
				Expect(info.Type).To(Equal(types.VMLinux))
			case types.CPUPower:
				Expect(info.Type).To(Equal(types.VMAix))
			}
		}
	})

	It("Will place tasks and track them until completion", func() {
		addFleet(2, 0)
		build()

		task := submit(simhost.TaskSpec{
			RequiredCPU:    types.CPUX86,
			RequiredVM:     types.VMLinux,
			RequiredMemory: 512 << 20,
			SLA:            types.SLA1,
			Deadline:       now + 10*second,
		})

		Expect(host.MachineInfo(0).ActiveTasks).To(Equal(1))

		now += second
		host.AdvanceTo(now)
		Expect(host.CompleteTask(task)).To(Succeed())
		sched.HandleTaskCompletion(now, task)

		Expect(host.MachineInfo(0).ActiveTasks).To(BeZero())
	})

	It("Will adjust P-states on the periodic check", func() {
		addFleet(1, 0)
		build()

		for i := 0; i < 4; i++ {
			submit(simhost.TaskSpec{
				RequiredCPU:    types.CPUX86,
				RequiredVM:     types.VMLinux,
				RequiredMemory: 128 << 20,
				Deadline:       now + 10*second,
			})
		}

		now += second
		host.AdvanceTo(now)
		sched.SchedulerCheck(now)

		// 4 tasks on 4 cores is full utilization.
		Expect(host.MachineInfo(0).PState).To(Equal(types.P0))
	})

	It("Will boost and migrate in response to an SLA warning", func() {
		addFleet(2, 0) // machine 0 plain, machine 1 GPU
		build()

		task := submit(simhost.TaskSpec{
			RequiredCPU:           types.CPUX86,
			RequiredVM:            types.VMLinux,
			RequiredMemory:        256 << 20,
			SLA:                   types.SLA0,
			Deadline:              now + 10*second,
			RemainingInstructions: 1_000_000_000,
			GPUCapable:            true,
		})

		vm := host.VMInfo(types.VMID(0)).ID
		Expect(host.VMInfo(vm).Tasks).To(ContainElement(task))

		sched.SLAWarning(now, task)

		Expect(host.MachineInfo(0).PState).To(Equal(types.P0))
		Expect(sched.Inventory().VMMigrating(vm)).To(BeTrue())

		drain()

		Expect(sched.Inventory().VMMigrating(vm)).To(BeFalse())
		Expect(host.VMInfo(vm).Machine).To(Equal(types.MachineID(1)))
	})

	It("Will record a memory warning metric", func() {
		provider, err := metrics.NewSchedulerMetricsProvider(prometheus.NewRegistry())
		Expect(err).ToNot(HaveOccurred())

		addFleet(1, 0)
		sched, err = scheduler.NewBuilder().
			WithPlatform(host).
			WithOptions(opts).
			WithMetricsProvider(provider).
			WithReportWriter(report).
			Build()
		Expect(err).ToNot(HaveOccurred())
		sched.Init()
		drain()

		sched.MemoryWarning(now, 0)

		Expect(testutil.ToFloat64(provider.MemoryWarningsCounter())).To(Equal(1.0))
		traces := host.Traces()
		Expect(traces).ToNot(BeEmpty())
		Expect(traces[len(traces)-1].Level).To(BeZero())
	})

	It("Will print the final report and shut every VM down exactly once", func() {
		addFleet(2, 1)
		build()

		task := submit(simhost.TaskSpec{
			RequiredCPU:    types.CPUX86,
			RequiredVM:     types.VMLinux,
			RequiredMemory: 256 << 20,
			SLA:            types.SLA0,
			Deadline:       now + 1*second,
		})

		// Finish late so the SLA0 report shows a violation.
		now += 2 * second
		host.AdvanceTo(now)
		Expect(host.CompleteTask(task)).To(Succeed())
		sched.HandleTaskCompletion(now, task)

		vms := sched.Inventory().VMs()
		sched.SimulationComplete(now)

		out := report.String()
		Expect(out).To(ContainSubstring("SLA violation report"))
		Expect(out).To(ContainSubstring("SLA0: 100%"))
		Expect(out).To(ContainSubstring("Total Energy"))
		Expect(out).To(ContainSubstring("KW-Hour"))
		Expect(out).To(ContainSubstring("finished in 2 seconds"))

		// Every VM is already shut down, so a second shutdown errors.
		for _, vm := range vms {
			Expect(host.ShutdownVM(vm)).ToNot(Succeed())
		}

		// A duplicate SimulationComplete is ignored outright.
		sched.SimulationComplete(now)
		Expect(report.String()).To(Equal(out))
	})
})
