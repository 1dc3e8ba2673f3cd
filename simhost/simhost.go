// Package simhost provides an in-memory host platform: a small synchronous
// model of the data center (machines, VMs, tasks, energy accounting) that
// the driver and the package tests run the scheduler core against. The
// asynchronous pieces of the host contract (S-state transitions, VM
// migrations) are queued and completed explicitly by whoever owns the event
// loop, mirroring the StateChangeComplete / MigrationDone callbacks of the
// real simulator.
package simhost

import (
	"fmt"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/shopspring/decimal"

	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/types"
)

// unattached marks a VM that is not on any machine (mid-migration).
const unattached types.MachineID = -1

var (
	// wattsByPState is the incremental draw of a running machine at each
	// P-state, on top of basePowerWatts.
	wattsByPState = [types.NumPStates]int64{200, 120, 60, 20}

	basePowerWatts  int64 = 100
	sleepPowerWatts int64 = 10 // S1..S4; S5 draws nothing

	wattSecondsPerKWh = decimal.NewFromInt(3_600_000)
)

// MachineSpec describes one physical machine to model.
type MachineSpec struct {
	CPU            types.CPUType
	NumCores       int
	MemoryCapacity uint64 // bytes
	GPUs           bool
	MIPS           [types.NumPStates]int
	InitialState   types.MachineState
	InitialPState  types.CPUPerformance
}

// TaskSpec describes one workload task to submit.
type TaskSpec struct {
	RequiredCPU           types.CPUType
	RequiredVM            types.VMType
	RequiredMemory        uint64 // bytes
	Priority              types.Priority
	SLA                   types.SLAClass
	Arrival               types.Time
	Deadline              types.Time
	RemainingInstructions uint64
	GPUCapable            bool
}

// TraceEntry is one message written through the Output sink.
type TraceEntry struct {
	Msg   string
	Level int
}

type machine struct {
	spec        MachineSpec
	state       types.MachineState
	pstate      types.CPUPerformance
	memoryUsed  uint64
	activeTasks int
	activeVMs   int

	// pendingState is the target of an in-flight asynchronous transition.
	pendingState *types.MachineState
}

type vm struct {
	id       types.VMID
	vmType   types.VMType
	cpu      types.CPUType
	machine  types.MachineID
	attached bool
	tasks    []types.TaskID
	shutdown bool
}

type task struct {
	spec      TaskSpec
	id        types.TaskID
	vm        types.VMID
	placed    bool
	completed bool
	violated  bool
}

type pendingMigration struct {
	vm  types.VMID
	dst types.MachineID
}

// SimHost implements scheduling.Platform.
type SimHost struct {
	log logger.Logger

	now        types.Time
	energyKWh  decimal.Decimal
	vmOverhead uint64

	machines []*machine
	vms      map[types.VMID]*vm
	tasks    map[types.TaskID]*task
	nextVMID types.VMID

	pendingStateChanges []types.MachineID
	pendingMigrations   []pendingMigration

	traces         []TraceEntry
	overcommitted  []types.MachineID
	completedBySLA map[types.SLAClass]int
	violatedBySLA  map[types.SLAClass]int
}

// New creates an empty SimHost charging the given per-VM memory overhead in
// bytes on attach.
func New(vmOverhead uint64) *SimHost {
	h := &SimHost{
		vmOverhead:     vmOverhead,
		energyKWh:      decimal.Zero,
		vms:            make(map[types.VMID]*vm),
		tasks:          make(map[types.TaskID]*task),
		completedBySLA: make(map[types.SLAClass]int),
		violatedBySLA:  make(map[types.SLAClass]int),
	}
	config.InitLogger(&h.log, h)
	return h
}

// AddMachine registers a machine and returns its identifier. Identifiers are
// dense and issued in call order.
func (h *SimHost) AddMachine(spec MachineSpec) types.MachineID {
	if spec.NumCores <= 0 {
		spec.NumCores = 1
	}

	h.machines = append(h.machines, &machine{
		spec:   spec,
		state:  spec.InitialState,
		pstate: spec.InitialPState,
	})
	return types.MachineID(len(h.machines) - 1)
}

// SubmitTask registers a task with the host so the scheduler can query it.
// Task identifiers are dense and issued in call order.
func (h *SimHost) SubmitTask(spec TaskSpec) types.TaskID {
	id := types.TaskID(len(h.tasks))
	h.tasks[id] = &task{spec: spec, id: id, vm: -1}
	return id
}

// Now returns the host clock.
func (h *SimHost) Now() types.Time {
	return h.now
}

// AdvanceTo moves the host clock forward, integrating cluster energy over
// the elapsed interval at each machine's current power draw.
func (h *SimHost) AdvanceTo(t types.Time) {
	if t < h.now {
		h.log.Warn("Clock cannot move backwards (%d < %d); ignoring.", t, h.now)
		return
	}

	elapsed := decimal.NewFromInt(int64(t - h.now)).Div(decimal.NewFromInt(int64(types.MicrosecondsPerSecond)))
	for _, m := range h.machines {
		watts := h.machineWatts(m)
		if watts == 0 {
			continue
		}

		h.energyKWh = h.energyKWh.Add(
			decimal.NewFromInt(watts).Mul(elapsed).Div(wattSecondsPerKWh))
	}

	h.now = t
}

func (h *SimHost) machineWatts(m *machine) int64 {
	switch m.state {
	case types.S0:
		return basePowerWatts + wattsByPState[m.pstate]
	case types.S5:
		return 0
	default:
		return sleepPowerWatts
	}
}

// DrainStateChanges applies every pending S-state transition and invokes fn
// once per affected machine, in request order. fn is typically the
// scheduler's StateChangeComplete handler.
func (h *SimHost) DrainStateChanges(fn func(types.MachineID)) {
	pending := h.pendingStateChanges
	h.pendingStateChanges = nil

	for _, id := range pending {
		m := h.machines[id]
		if m.pendingState == nil {
			continue
		}

		m.state = *m.pendingState
		m.pendingState = nil
		h.log.Debug("Machine %s reached %s.", id, m.state)

		if fn != nil {
			fn(id)
		}
	}
}

// DrainMigrations completes every pending VM migration and invokes fn once
// per migrated VM, in request order. fn is typically the scheduler's
// MigrationDone handler.
func (h *SimHost) DrainMigrations(fn func(types.VMID)) {
	pending := h.pendingMigrations
	h.pendingMigrations = nil

	for _, mig := range pending {
		v := h.vms[mig.vm]
		h.attach(v, mig.dst)
		h.log.Debug("VM %s landed on %s.", mig.vm, mig.dst)

		if fn != nil {
			fn(mig.vm)
		}
	}
}

// CompleteTask finishes a task: it leaves its VM, frees its memory, and its
// SLA outcome is recorded against the current clock.
func (h *SimHost) CompleteTask(id types.TaskID) error {
	t, ok := h.tasks[id]
	if !ok {
		return fmt.Errorf("unknown task %s", id)
	}
	if t.completed {
		return fmt.Errorf("task %s already completed", id)
	}
	if !t.placed {
		return fmt.Errorf("task %s was never placed", id)
	}

	v := h.vms[t.vm]
	for i, tid := range v.tasks {
		if tid == id {
			v.tasks = append(v.tasks[:i], v.tasks[i+1:]...)
			break
		}
	}

	if v.attached {
		m := h.machines[v.machine]
		m.activeTasks--
		m.memoryUsed -= t.spec.RequiredMemory
	}

	t.completed = true
	t.spec.RemainingInstructions = 0

	h.completedBySLA[t.spec.SLA]++
	if h.now > t.spec.Deadline {
		t.violated = true
		h.violatedBySLA[t.spec.SLA]++
	}

	return nil
}

// SetRemainingInstructions overrides a task's remaining instruction count,
// standing in for execution progress between events.
func (h *SimHost) SetRemainingInstructions(id types.TaskID, remaining uint64) {
	if t, ok := h.tasks[id]; ok {
		t.spec.RemainingInstructions = remaining
	}
}

// Traces returns every message written through Output, in order.
func (h *SimHost) Traces() []TraceEntry {
	return h.traces
}

// Overcommitted returns the machines whose memory capacity was exceeded by
// an AddTask or AttachVM call, in detection order. The event-loop owner
// forwards these to the scheduler's MemoryWarning handler.
func (h *SimHost) Overcommitted() []types.MachineID {
	out := h.overcommitted
	h.overcommitted = nil
	return out
}

// ---- scheduling.Platform ----

func (h *SimHost) TotalMachines() int {
	return len(h.machines)
}

func (h *SimHost) MachineInfo(id types.MachineID) types.MachineInfo {
	m := h.machines[id]
	return types.MachineInfo{
		ID:             id,
		CPU:            m.spec.CPU,
		State:          m.state,
		PState:         m.pstate,
		MemoryCapacity: m.spec.MemoryCapacity,
		MemoryUsed:     m.memoryUsed,
		NumCores:       m.spec.NumCores,
		ActiveTasks:    m.activeTasks,
		ActiveVMs:      m.activeVMs,
		GPUs:           m.spec.GPUs,
		MIPS:           m.spec.MIPS,
	}
}

func (h *SimHost) VMInfo(id types.VMID) types.VMInfo {
	v := h.vms[id]
	info := types.VMInfo{
		ID:      id,
		Type:    v.vmType,
		CPU:     v.cpu,
		Machine: unattached,
		Tasks:   append([]types.TaskID(nil), v.tasks...),
	}
	if v.attached {
		info.Machine = v.machine
	}
	return info
}

func (h *SimHost) TaskInfo(id types.TaskID) types.TaskInfo {
	t := h.tasks[id]
	return types.TaskInfo{
		ID:                    id,
		RequiredCPU:           t.spec.RequiredCPU,
		RequiredVM:            t.spec.RequiredVM,
		RequiredMemory:        t.spec.RequiredMemory,
		Priority:              t.spec.Priority,
		SLA:                   t.spec.SLA,
		Arrival:               t.spec.Arrival,
		Deadline:              t.spec.Deadline,
		RemainingInstructions: t.spec.RemainingInstructions,
		GPUCapable:            t.spec.GPUCapable,
	}
}

func (h *SimHost) TaskCompleted(id types.TaskID) bool {
	t, ok := h.tasks[id]
	return ok && t.completed
}

func (h *SimHost) SetMachineState(id types.MachineID, state types.MachineState) {
	m := h.machines[id]

	// Requesting the current state with nothing in flight is a no-op and
	// produces no completion callback.
	if m.pendingState == nil && m.state == state {
		return
	}

	target := state
	m.pendingState = &target
	h.pendingStateChanges = append(h.pendingStateChanges, id)
}

func (h *SimHost) SetCorePerformance(id types.MachineID, core int, p types.CPUPerformance) {
	// Core 0 broadcasts; the model keeps one P-state per machine, so any
	// other core id is accepted and coalesced.
	h.machines[id].pstate = p
}

func (h *SimHost) CreateVM(vmType types.VMType, cpu types.CPUType) (types.VMID, error) {
	id := h.nextVMID
	h.nextVMID++

	h.vms[id] = &vm{id: id, vmType: vmType, cpu: cpu, machine: unattached}
	return id, nil
}

func (h *SimHost) AttachVM(vmID types.VMID, machineID types.MachineID) error {
	v, ok := h.vms[vmID]
	if !ok || v.shutdown {
		return fmt.Errorf("unknown or shut-down VM %s", vmID)
	}
	if v.attached {
		return fmt.Errorf("VM %s is already attached to %s", vmID, v.machine)
	}
	if int(machineID) < 0 || int(machineID) >= len(h.machines) {
		return fmt.Errorf("unknown machine %s", machineID)
	}

	h.attach(v, machineID)
	return nil
}

func (h *SimHost) attach(v *vm, machineID types.MachineID) {
	m := h.machines[machineID]

	v.machine = machineID
	v.attached = true

	m.activeVMs++
	m.memoryUsed += h.vmOverhead
	for _, tid := range v.tasks {
		m.memoryUsed += h.tasks[tid].spec.RequiredMemory
		m.activeTasks++
	}

	h.checkOvercommit(machineID)
}

func (h *SimHost) AddTask(vmID types.VMID, taskID types.TaskID, priority types.Priority) error {
	v, ok := h.vms[vmID]
	if !ok || v.shutdown {
		return fmt.Errorf("unknown or shut-down VM %s", vmID)
	}

	t, ok := h.tasks[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	if t.placed {
		return fmt.Errorf("task %s is already placed on %s", taskID, t.vm)
	}

	v.tasks = append(v.tasks, taskID)
	t.vm = vmID
	t.placed = true
	t.spec.Priority = priority

	if v.attached {
		m := h.machines[v.machine]
		m.activeTasks++
		m.memoryUsed += t.spec.RequiredMemory
		h.checkOvercommit(v.machine)
	}

	return nil
}

func (h *SimHost) MigrateVM(vmID types.VMID, dst types.MachineID) error {
	v, ok := h.vms[vmID]
	if !ok || v.shutdown {
		return fmt.Errorf("unknown or shut-down VM %s", vmID)
	}
	if !v.attached {
		return fmt.Errorf("VM %s is already migrating", vmID)
	}
	if int(dst) < 0 || int(dst) >= len(h.machines) {
		return fmt.Errorf("unknown machine %s", dst)
	}

	h.detach(v)
	h.pendingMigrations = append(h.pendingMigrations, pendingMigration{vm: vmID, dst: dst})
	return nil
}

func (h *SimHost) detach(v *vm) {
	m := h.machines[v.machine]

	m.activeVMs--
	m.memoryUsed -= h.vmOverhead
	for _, tid := range v.tasks {
		m.memoryUsed -= h.tasks[tid].spec.RequiredMemory
		m.activeTasks--
	}

	v.attached = false
	v.machine = unattached
}

func (h *SimHost) ShutdownVM(vmID types.VMID) error {
	v, ok := h.vms[vmID]
	if !ok {
		return fmt.Errorf("unknown VM %s", vmID)
	}
	if v.shutdown {
		return fmt.Errorf("VM %s is already shut down", vmID)
	}

	for _, tid := range v.tasks {
		if !h.tasks[tid].completed {
			return fmt.Errorf("VM %s still hosts incomplete task %s", vmID, tid)
		}
	}

	if v.attached {
		h.detach(v)
	}
	v.shutdown = true
	return nil
}

func (h *SimHost) SLAReport(class types.SLAClass) float64 {
	completed := h.completedBySLA[class]
	if completed == 0 {
		return 0
	}
	return float64(h.violatedBySLA[class]) / float64(completed) * 100
}

func (h *SimHost) ClusterEnergy() decimal.Decimal {
	return h.energyKWh
}

func (h *SimHost) Output(msg string, level int) {
	h.traces = append(h.traces, TraceEntry{Msg: msg, Level: level})
	h.log.Trace("[level %d] %s", level, msg)
}

func (h *SimHost) checkOvercommit(id types.MachineID) {
	m := h.machines[id]
	if m.memoryUsed > m.spec.MemoryCapacity {
		h.overcommitted = append(h.overcommitted, id)
		h.log.Warn("Machine %s memory overcommitted: %d/%d bytes.", id, m.memoryUsed, m.spec.MemoryCapacity)
	}
}

var _ scheduling.Platform = (*SimHost)(nil)
