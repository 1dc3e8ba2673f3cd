package inventory

import (
	"sort"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/elliotchance/orderedmap/v2"

	"github.com/scusemua/cloudsim/common/types"
)

// vmRecord tracks the transient migration state of a scheduler-created VM.
type vmRecord struct {
	migrating   bool
	destination types.MachineID
}

// machineRecord tracks a machine's CPU group and any in-flight S-state
// transition.
type machineRecord struct {
	cpu      types.CPUType
	warming  bool
	retiring bool
}

// FleetInventory is the scheduler's identifier cache (C1). All numeric state
// (memory, task counts, S-/P-states) is read fresh through the platform;
// caching it here would drift as the host advances tasks between events.
//
// The scheduler runs single-threaded under the host's event dispatcher, so
// the inventory needs no locking.
type FleetInventory struct {
	log logger.Logger

	machines    *orderedmap.OrderedMap[types.MachineID, *machineRecord]
	machinesCPU map[types.CPUType][]types.MachineID
	vms         *orderedmap.OrderedMap[types.VMID, *vmRecord]
}

// New creates an empty FleetInventory.
func New() *FleetInventory {
	inv := &FleetInventory{
		machines:    orderedmap.NewOrderedMap[types.MachineID, *machineRecord](),
		machinesCPU: make(map[types.CPUType][]types.MachineID),
		vms:         orderedmap.NewOrderedMap[types.VMID, *vmRecord](),
	}
	config.InitLogger(&inv.log, inv)
	return inv
}

func (inv *FleetInventory) AddMachine(id types.MachineID, cpu types.CPUType) {
	if _, loaded := inv.machines.Get(id); loaded {
		return
	}

	inv.machines.Set(id, &machineRecord{cpu: cpu})
	inv.machinesCPU[cpu] = append(inv.machinesCPU[cpu], id)
	sort.Slice(inv.machinesCPU[cpu], func(i, j int) bool {
		return inv.machinesCPU[cpu][i] < inv.machinesCPU[cpu][j]
	})
}

func (inv *FleetInventory) MachinesByCPU(cpu types.CPUType) []types.MachineID {
	group := inv.machinesCPU[cpu]
	out := make([]types.MachineID, len(group))
	copy(out, group)
	return out
}

// CPUGroups returns the known architecture groups in ascending enum order so
// that every pass over the fleet is deterministic.
func (inv *FleetInventory) CPUGroups() []types.CPUType {
	groups := make([]types.CPUType, 0, len(inv.machinesCPU))
	for cpu := range inv.machinesCPU {
		groups = append(groups, cpu)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

func (inv *FleetInventory) NumMachines() int {
	return inv.machines.Len()
}

func (inv *FleetInventory) RegisterVM(id types.VMID) {
	if _, loaded := inv.vms.Get(id); loaded {
		inv.log.Warn("VM %s is already registered; ignoring.", id)
		return
	}

	inv.vms.Set(id, &vmRecord{})
}

// VMs returns every scheduler-created VM in creation order. The host issues
// VM identifiers in increasing order, so creation order doubles as ascending
// identifier order, which is what keeps placement tie-breaking deterministic.
func (inv *FleetInventory) VMs() []types.VMID {
	return inv.vms.Keys()
}

func (inv *FleetInventory) NumVMs() int {
	return inv.vms.Len()
}

func (inv *FleetInventory) MarkVMMigrating(vm types.VMID, dst types.MachineID) {
	record, loaded := inv.vms.Get(vm)
	if !loaded {
		inv.log.Warn("Cannot mark unknown VM %s as migrating.", vm)
		return
	}

	record.migrating = true
	record.destination = dst
	inv.log.Debug("VM %s is migrating to %s.", vm, dst)
}

func (inv *FleetInventory) MarkVMSettled(vm types.VMID) {
	record, loaded := inv.vms.Get(vm)
	if !loaded {
		inv.log.Warn("Cannot settle unknown VM %s.", vm)
		return
	}

	record.migrating = false
	record.destination = 0
	inv.log.Debug("VM %s has settled and is eligible for placements again.", vm)
}

func (inv *FleetInventory) VMMigrating(vm types.VMID) bool {
	record, loaded := inv.vms.Get(vm)
	return loaded && record.migrating
}

func (inv *FleetInventory) MarkMachineWarming(id types.MachineID) {
	if record, loaded := inv.machines.Get(id); loaded {
		record.warming = true
		inv.log.Debug("Machine %s is warming.", id)
	}
}

func (inv *FleetInventory) MarkMachineRetiring(id types.MachineID) {
	if record, loaded := inv.machines.Get(id); loaded {
		record.retiring = true
		inv.log.Debug("Machine %s is retiring.", id)
	}
}

func (inv *FleetInventory) MarkMachineReady(id types.MachineID) {
	if record, loaded := inv.machines.Get(id); loaded {
		record.warming = false
		record.retiring = false
	}
}

func (inv *FleetInventory) MachineTransitioning(id types.MachineID) bool {
	record, loaded := inv.machines.Get(id)
	return loaded && (record.warming || record.retiring)
}
