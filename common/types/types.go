package types

import (
	"fmt"
	"time"
)

// Time is the simulator clock in microseconds since the start of the run.
// The host owns the clock; the scheduler only ever receives Time values.
type Time int64

// Seconds converts a simulator timestamp (or interval) to seconds.
func (t Time) Seconds() float64 {
	return float64(t) / float64(MicrosecondsPerSecond)
}

// Duration converts a simulator interval to a time.Duration.
func (t Time) Duration() time.Duration {
	return time.Duration(t) * time.Microsecond
}

const MicrosecondsPerSecond Time = 1_000_000

// MachineID identifies a physical machine. Issued by the host; opaque to the scheduler.
type MachineID int

func (id MachineID) String() string {
	return fmt.Sprintf("machine-%d", int(id))
}

// VMID identifies a virtual machine. Issued by the host; opaque to the scheduler.
type VMID int

func (id VMID) String() string {
	return fmt.Sprintf("vm-%d", int(id))
}

// TaskID identifies a workload task. Issued by the host; opaque to the scheduler.
type TaskID int

func (id TaskID) String() string {
	return fmt.Sprintf("task-%d", int(id))
}

// Priority is the host-defined scheduling priority a task carries onto its VM.
type Priority int

// CPUType is the instruction-set architecture of a machine, and the
// architecture a task or VM requires.
type CPUType int

const (
	CPUArm CPUType = iota
	CPUPower
	CPURiscV
	CPUX86
)

func (c CPUType) String() string {
	switch c {
	case CPUArm:
		return "ARM"
	case CPUPower:
		return "POWER"
	case CPURiscV:
		return "RISCV"
	case CPUX86:
		return "X86"
	default:
		return fmt.Sprintf("CPUType(%d)", int(c))
	}
}

// VMType is the guest operating system flavor of a virtual machine.
type VMType int

const (
	VMLinux VMType = iota
	VMLinuxRT
	VMWin
	VMAix
)

func (v VMType) String() string {
	switch v {
	case VMLinux:
		return "LINUX"
	case VMLinuxRT:
		return "LINUX_RT"
	case VMWin:
		return "WIN"
	case VMAix:
		return "AIX"
	default:
		return fmt.Sprintf("VMType(%d)", int(v))
	}
}

// SLAClass is the service-level tier of a task. SLA0 is the strictest tier;
// SLA3 carries no violation penalty.
type SLAClass int

const (
	SLA0 SLAClass = iota
	SLA1
	SLA2
	SLA3
)

func (s SLAClass) String() string {
	return fmt.Sprintf("SLA%d", int(s))
}

// CPUPerformance is a processor P-state. P0 is the fastest and draws the most
// power; P3 is the slowest.
type CPUPerformance int

const (
	P0 CPUPerformance = iota
	P1
	P2
	P3

	// NumPStates sizes per-P-state vectors such as MachineInfo.MIPS.
	NumPStates = 4
)

func (p CPUPerformance) String() string {
	return fmt.Sprintf("P%d", int(p))
}

// SlowerThan reports whether p is a lower-performance state than other.
func (p CPUPerformance) SlowerThan(other CPUPerformance) bool {
	return p > other
}

// MachineState is a machine S-state. S0 is fully on; S5 is off.
type MachineState int

const (
	S0 MachineState = iota
	S1
	S2
	S3
	S4
	S5
)

func (s MachineState) String() string {
	return fmt.Sprintf("S%d", int(s))
}

// MachineInfo is the host's authoritative view of one physical machine.
// The scheduler re-reads it through the platform whenever freshness matters;
// it is never cached across events.
type MachineInfo struct {
	ID             MachineID
	CPU            CPUType
	State          MachineState
	PState         CPUPerformance
	MemoryCapacity uint64 // bytes
	MemoryUsed     uint64 // bytes
	NumCores       int
	ActiveTasks    int
	ActiveVMs      int
	GPUs           bool
	MIPS           [NumPStates]int // achievable MIPS indexed by P-state
}

// MemoryAvailable returns the machine's unclaimed memory in bytes.
func (m MachineInfo) MemoryAvailable() uint64 {
	if m.MemoryUsed >= m.MemoryCapacity {
		return 0
	}
	return m.MemoryCapacity - m.MemoryUsed
}

// VMInfo is the host's authoritative view of one virtual machine.
type VMInfo struct {
	ID      VMID
	Type    VMType
	CPU     CPUType
	Machine MachineID
	Tasks   []TaskID
}

// TaskInfo is the host's authoritative view of one task, including the
// re-estimated remaining instruction count.
type TaskInfo struct {
	ID                    TaskID
	RequiredCPU           CPUType
	RequiredVM            VMType
	RequiredMemory        uint64 // bytes
	Priority              Priority
	SLA                   SLAClass
	Arrival               Time
	Deadline              Time // target completion time
	RemainingInstructions uint64
	GPUCapable            bool
}
