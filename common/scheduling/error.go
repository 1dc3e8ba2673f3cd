package scheduling

import (
	"errors"
)

var (
	// ErrUnknownCPU indicates a CPU architecture with no default guest type
	// mapping. The provisioner skips the affected architecture group.
	ErrUnknownCPU = errors.New("no default guest type for CPU architecture")

	// ErrUnknownVM indicates a VM identifier the inventory has no record of.
	ErrUnknownVM = errors.New("VM is not registered in the fleet inventory")

	// ErrUnknownTask indicates a task with no active-task record.
	ErrUnknownTask = errors.New("task has no active record")

	ErrVMCreationFailed = errors.New("host failed to create VM")
	ErrVMAttachFailed   = errors.New("host failed to attach VM to machine")
	ErrAddTaskFailed    = errors.New("host failed to add task to VM")
)
