package simhost_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scusemua/cloudsim/common/types"
	"github.com/scusemua/cloudsim/simhost"
)

const (
	second   = types.MicrosecondsPerSecond
	overhead = uint64(8 << 20)
)

var _ = Describe("SimHost", func() {
	var host *simhost.SimHost

	BeforeEach(func() {
		host = simhost.New(overhead)
	})

	machineSpec := simhost.MachineSpec{
		CPU:            types.CPUX86,
		NumCores:       4,
		MemoryCapacity: 1 << 30,
		MIPS:           [types.NumPStates]int{3000, 2000, 1000, 800},
	}

	Context("Memory accounting", func() {
		It("Will charge the per-VM overhead on attach and free it on shutdown", func() {
			id := host.AddMachine(machineSpec)

			vm, err := host.CreateVM(types.VMLinux, types.CPUX86)
			Expect(err).ToNot(HaveOccurred())
			Expect(host.AttachVM(vm, id)).To(Succeed())
			Expect(host.MachineInfo(id).MemoryUsed).To(Equal(overhead))
			Expect(host.MachineInfo(id).ActiveVMs).To(Equal(1))

			Expect(host.ShutdownVM(vm)).To(Succeed())
			Expect(host.MachineInfo(id).MemoryUsed).To(BeZero())
			Expect(host.MachineInfo(id).ActiveVMs).To(BeZero())
		})

		It("Will charge task memory on add and free it on completion", func() {
			id := host.AddMachine(machineSpec)

			vm, _ := host.CreateVM(types.VMLinux, types.CPUX86)
			Expect(host.AttachVM(vm, id)).To(Succeed())

			task := host.SubmitTask(simhost.TaskSpec{
				RequiredCPU:    types.CPUX86,
				RequiredVM:     types.VMLinux,
				RequiredMemory: 256 << 20,
				Deadline:       10 * second,
			})
			Expect(host.AddTask(vm, task, 0)).To(Succeed())
			Expect(host.MachineInfo(id).MemoryUsed).To(Equal(overhead + 256<<20))
			Expect(host.MachineInfo(id).ActiveTasks).To(Equal(1))

			Expect(host.CompleteTask(task)).To(Succeed())
			Expect(host.MachineInfo(id).MemoryUsed).To(Equal(overhead))
			Expect(host.MachineInfo(id).ActiveTasks).To(BeZero())
			Expect(host.TaskCompleted(task)).To(BeTrue())
		})

		It("Will flag memory overcommit", func() {
			tight := machineSpec
			tight.MemoryCapacity = overhead + 1<<20
			id := host.AddMachine(tight)

			vm, _ := host.CreateVM(types.VMLinux, types.CPUX86)
			Expect(host.AttachVM(vm, id)).To(Succeed())

			task := host.SubmitTask(simhost.TaskSpec{
				RequiredMemory: 2 << 20,
				Deadline:       10 * second,
			})
			Expect(host.AddTask(vm, task, 0)).To(Succeed())

			Expect(host.Overcommitted()).To(Equal([]types.MachineID{id}))
			// The queue drains on read.
			Expect(host.Overcommitted()).To(BeEmpty())
		})
	})

	Context("Asynchronous state changes", func() {
		It("Will keep the old S-state visible until the change is drained", func() {
			id := host.AddMachine(machineSpec)

			host.SetMachineState(id, types.S5)
			Expect(host.MachineInfo(id).State).To(Equal(types.S0))

			var completed []types.MachineID
			host.DrainStateChanges(func(m types.MachineID) { completed = append(completed, m) })

			Expect(completed).To(Equal([]types.MachineID{id}))
			Expect(host.MachineInfo(id).State).To(Equal(types.S5))
		})

		It("Will treat a same-state request as a no-op", func() {
			id := host.AddMachine(machineSpec)

			host.SetMachineState(id, types.S0)

			var completed []types.MachineID
			host.DrainStateChanges(func(m types.MachineID) { completed = append(completed, m) })
			Expect(completed).To(BeEmpty())
		})
	})

	Context("Migration", func() {
		It("Will detach the VM until the migration is drained", func() {
			src := host.AddMachine(machineSpec)
			dst := host.AddMachine(machineSpec)

			vm, _ := host.CreateVM(types.VMLinux, types.CPUX86)
			Expect(host.AttachVM(vm, src)).To(Succeed())

			Expect(host.MigrateVM(vm, dst)).To(Succeed())
			Expect(host.VMInfo(vm).Machine).To(Equal(types.MachineID(-1)))
			Expect(host.MachineInfo(src).ActiveVMs).To(BeZero())

			host.DrainMigrations(nil)
			Expect(host.VMInfo(vm).Machine).To(Equal(dst))
			Expect(host.MachineInfo(dst).ActiveVMs).To(Equal(1))
			Expect(host.MachineInfo(dst).MemoryUsed).To(Equal(overhead))
		})
	})

	Context("Energy accounting", func() {
		It("Will accumulate monotonically non-decreasing energy", func() {
			host.AddMachine(machineSpec)

			previous := host.ClusterEnergy()
			for i := 1; i <= 5; i++ {
				host.AdvanceTo(types.Time(i) * second)
				current := host.ClusterEnergy()
				Expect(current.GreaterThanOrEqual(previous)).To(BeTrue())
				previous = current
			}

			Expect(previous.IsPositive()).To(BeTrue())
		})

		It("Will draw no power from a machine in S5", func() {
			off := machineSpec
			off.InitialState = types.S5
			host.AddMachine(off)

			host.AdvanceTo(10 * second)
			Expect(host.ClusterEnergy().IsZero()).To(BeTrue())
		})
	})

	Context("SLA reporting", func() {
		It("Will report the violation percentage per class", func() {
			id := host.AddMachine(machineSpec)
			vm, _ := host.CreateVM(types.VMLinux, types.CPUX86)
			Expect(host.AttachVM(vm, id)).To(Succeed())

			onTime := host.SubmitTask(simhost.TaskSpec{SLA: types.SLA0, Deadline: 10 * second})
			late := host.SubmitTask(simhost.TaskSpec{SLA: types.SLA0, Deadline: 1 * second})
			Expect(host.AddTask(vm, onTime, 0)).To(Succeed())
			Expect(host.AddTask(vm, late, 0)).To(Succeed())

			host.AdvanceTo(5 * second)
			Expect(host.CompleteTask(onTime)).To(Succeed())
			Expect(host.CompleteTask(late)).To(Succeed())

			Expect(host.SLAReport(types.SLA0)).To(Equal(50.0))
			Expect(host.SLAReport(types.SLA1)).To(BeZero())
		})
	})
})
