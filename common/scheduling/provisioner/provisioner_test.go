package provisioner_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/scheduling/inventory"
	"github.com/scusemua/cloudsim/common/scheduling/provisioner"
	"github.com/scusemua/cloudsim/common/types"
	"github.com/scusemua/cloudsim/simhost"
)

var defaultMIPS = [types.NumPStates]int{3000, 2000, 1000, 800}

func addMachines(host *simhost.SimHost, n int, cpu types.CPUType) {
	for i := 0; i < n; i++ {
		host.AddMachine(simhost.MachineSpec{
			CPU:            cpu,
			NumCores:       4,
			MemoryCapacity: 16 << 30,
			MIPS:           defaultMIPS,
		})
	}
}

var _ = Describe("Provisioner", func() {
	var (
		host *simhost.SimHost
		inv  *inventory.FleetInventory
		opts *scheduling.SchedulerOptions
		prov *provisioner.Provisioner
	)

	BeforeEach(func() {
		host = simhost.New(scheduling.DefaultVMMemoryOverhead)
		inv = inventory.New()
		opts = scheduling.SLAAwareOptions()
		prov = provisioner.New(host, inv, nil, opts)
	})

	Context("Default guest mapping", func() {
		It("Will map each known architecture to its default guest", func() {
			Expect(prov.DefaultVMFor(types.CPUX86)).To(Equal(types.VMLinux))
			Expect(prov.DefaultVMFor(types.CPUPower)).To(Equal(types.VMAix))
			Expect(prov.DefaultVMFor(types.CPUArm)).To(Equal(types.VMWin))
		})

		It("Will reject an architecture without a mapping", func() {
			_, err := prov.DefaultVMFor(types.CPURiscV)
			Expect(err).To(HaveOccurred())
			Expect(err).To(MatchError(scheduling.ErrUnknownCPU))
		})
	})

	Context("Initial fleet provisioning", func() {
		It("Will split the budget evenly across architecture groups", func() {
			addMachines(host, 4, types.CPUX86)   // machines 0-3
			addMachines(host, 4, types.CPUPower) // machines 4-7

			opts.ActiveMachinesBudget = 4 // 2 per group

			Expect(prov.ProvisionInitialFleet()).To(Succeed())
			Expect(inv.NumMachines()).To(Equal(8))
			Expect(inv.NumVMs()).To(Equal(4))

			// One default-typed VM per powered machine. Architecture groups
			// are visited in enum order, so POWER (machines 4-7) first.
			Expect(host.VMInfo(0).Machine).To(Equal(types.MachineID(4)))
			Expect(host.VMInfo(0).Type).To(Equal(types.VMAix))
			Expect(host.VMInfo(1).Machine).To(Equal(types.MachineID(5)))
			Expect(host.VMInfo(2).Machine).To(Equal(types.MachineID(0)))
			Expect(host.VMInfo(2).Type).To(Equal(types.VMLinux))
			Expect(host.VMInfo(3).Machine).To(Equal(types.MachineID(1)))

			// The remainder of each group was sent to S5.
			host.DrainStateChanges(nil)
			for _, id := range []types.MachineID{2, 3, 6, 7} {
				Expect(host.MachineInfo(id).State).To(Equal(types.S5))
			}
			for _, id := range []types.MachineID{0, 1, 4, 5} {
				Expect(host.MachineInfo(id).State).To(Equal(types.S0))
			}
		})

		It("Will cap each group at its size when the budget is generous", func() {
			addMachines(host, 2, types.CPUX86)

			opts.ActiveMachinesBudget = 64

			Expect(prov.ProvisionInitialFleet()).To(Succeed())
			Expect(inv.NumVMs()).To(Equal(2))
		})

		It("Will skip an architecture group with no default guest mapping", func() {
			addMachines(host, 2, types.CPUX86)
			addMachines(host, 2, types.CPURiscV) // machines 2-3

			opts.ActiveMachinesBudget = 4

			Expect(prov.ProvisionInitialFleet()).To(Succeed())
			Expect(inv.NumVMs()).To(Equal(2))

			host.DrainStateChanges(nil)
			Expect(host.MachineInfo(2).State).To(Equal(types.S5))
			Expect(host.MachineInfo(3).State).To(Equal(types.S5))

			traces := host.Traces()
			Expect(traces).ToNot(BeEmpty())
			Expect(traces[0].Level).To(Equal(1))
			Expect(traces[0].Msg).To(ContainSubstring("RISCV"))
		})
	})

	Context("On-demand provisioning", func() {
		It("Will create and attach a VM of the requested guest type", func() {
			addMachines(host, 1, types.CPUX86)
			inv.AddMachine(0, types.CPUX86)

			vm, err := prov.CreateVMOn(0, types.VMLinuxRT, types.CPUX86)
			Expect(err).ToNot(HaveOccurred())
			Expect(host.VMInfo(vm).Type).To(Equal(types.VMLinuxRT))
			Expect(host.VMInfo(vm).Machine).To(Equal(types.MachineID(0)))
			Expect(inv.NumVMs()).To(Equal(1))

			// The per-VM overhead is charged on attach.
			Expect(host.MachineInfo(0).MemoryUsed).To(Equal(scheduling.DefaultVMMemoryOverhead))
		})

		It("Will wake a dormant machine and mark it warming", func() {
			host.AddMachine(simhost.MachineSpec{
				CPU:            types.CPUX86,
				NumCores:       4,
				MemoryCapacity: 16 << 30,
				MIPS:           defaultMIPS,
				InitialState:   types.S5,
			})
			inv.AddMachine(0, types.CPUX86)

			vm, err := prov.WakeMachine(0, types.VMLinux, types.CPUX86)
			Expect(err).ToNot(HaveOccurred())
			Expect(inv.MachineTransitioning(0)).To(BeTrue())
			Expect(host.VMInfo(vm).Machine).To(Equal(types.MachineID(0)))

			// The transition is asynchronous: still S5 until the host
			// delivers the completion.
			Expect(host.MachineInfo(0).State).To(Equal(types.S5))

			completed := make([]types.MachineID, 0, 1)
			host.DrainStateChanges(func(id types.MachineID) {
				completed = append(completed, id)
				inv.MarkMachineReady(id)
			})

			Expect(completed).To(Equal([]types.MachineID{0}))
			Expect(host.MachineInfo(0).State).To(Equal(types.S0))
			Expect(inv.MachineTransitioning(0)).To(BeFalse())
		})
	})
})
