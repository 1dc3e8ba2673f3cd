package dvfs

import (
	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/shopspring/decimal"

	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/types"
)

var (
	highUtilization   = decimal.NewFromFloat(scheduling.HighUtilizationThreshold)
	mediumUtilization = decimal.NewFromFloat(scheduling.MediumUtilizationThreshold)
	lowUtilization    = decimal.NewFromFloat(scheduling.LowUtilizationThreshold)
)

// Controller drives per-machine P-states from observed utilization on every
// periodic check, and optionally consolidates machines that have gone
// completely empty (C4). Consolidation is disabled in the
// energy-conservative preset.
type Controller struct {
	log logger.Logger

	platform  scheduling.Platform
	inventory scheduling.FleetInventory
	opts      *scheduling.SchedulerOptions
}

// New creates a Controller.
func New(platform scheduling.Platform, inv scheduling.FleetInventory, opts *scheduling.SchedulerOptions) *Controller {
	c := &Controller{
		platform:  platform,
		inventory: inv,
		opts:      opts,
	}
	config.InitLogger(&c.log, c)
	return c
}

// PStateForUtilization maps a utilization ratio (active tasks per core) to
// the P-state target.
func (c *Controller) PStateForUtilization(utilization float64) types.CPUPerformance {
	u := decimal.NewFromFloat(utilization)

	switch {
	case u.GreaterThan(highUtilization):
		return types.P0
	case u.GreaterThan(mediumUtilization):
		return types.P1
	case u.GreaterThan(lowUtilization):
		return types.P2
	default:
		return types.P3
	}
}

// Tick recomputes the P-state target of every active machine and applies it
// with a broadcast SetCorePerformance. The target is a pure function of the
// host-reported utilization, so repeated ticks with no intervening task
// events settle on identical targets. The set is issued unconditionally; the
// host defines the cost of a redundant set.
func (c *Controller) Tick(now types.Time) {
	for _, cpu := range c.inventory.CPUGroups() {
		for _, id := range c.inventory.MachinesByCPU(cpu) {
			if c.inventory.MachineTransitioning(id) {
				continue
			}

			mach := c.platform.MachineInfo(id)
			if mach.State != types.S0 {
				continue
			}

			utilization := float64(mach.ActiveTasks) / float64(mach.NumCores)
			target := c.PStateForUtilization(utilization)
			c.platform.SetCorePerformance(id, scheduling.BroadcastCore, target)
			c.log.Trace("Machine %s utilization %.2f → %s.", id, utilization, target)

			if c.opts.ConsolidationEnabled && mach.ActiveTasks == 0 && mach.ActiveVMs == 0 {
				c.consolidate(id)
			}
		}
	}
}

// consolidate sends an empty machine to S5. The transition is asynchronous:
// the machine is marked retiring and stays ineligible for placements until
// the host's StateChangeComplete callback arrives.
func (c *Controller) consolidate(id types.MachineID) {
	c.platform.SetMachineState(id, types.S5)
	c.inventory.MarkMachineRetiring(id)
	c.log.Info("Consolidating empty machine %s to S5.", id)
}
