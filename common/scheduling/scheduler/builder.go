package scheduler

import (
	"errors"
	"io"
	"os"

	"github.com/scusemua/cloudsim/common/scheduling"
	"github.com/scusemua/cloudsim/common/scheduling/deadline"
	"github.com/scusemua/cloudsim/common/scheduling/dvfs"
	"github.com/scusemua/cloudsim/common/scheduling/inventory"
	"github.com/scusemua/cloudsim/common/scheduling/placer"
	"github.com/scusemua/cloudsim/common/scheduling/provisioner"
)

var (
	ErrNilPlatform = errors.New("cannot build a scheduler without a platform")
)

// Builder assembles a Scheduler and its five components. Platform is
// required; everything else has a sensible default.
type Builder struct {
	platform     scheduling.Platform
	opts         *scheduling.SchedulerOptions
	metrics      scheduling.MetricsProvider
	reportWriter io.Writer
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) WithPlatform(platform scheduling.Platform) *Builder {
	b.platform = platform
	return b
}

// WithOptions sets the scheduler options. Defaults to the SLA-aware preset.
func (b *Builder) WithOptions(opts *scheduling.SchedulerOptions) *Builder {
	b.opts = opts
	return b
}

// WithMetricsProvider sets the metrics provider. Metrics are skipped
// entirely when no provider is configured.
func (b *Builder) WithMetricsProvider(metrics scheduling.MetricsProvider) *Builder {
	b.metrics = metrics
	return b
}

// WithReportWriter redirects the final simulation report. Defaults to
// standard output.
func (b *Builder) WithReportWriter(w io.Writer) *Builder {
	b.reportWriter = w
	return b
}

func (b *Builder) Build() (*Scheduler, error) {
	if b.platform == nil {
		return nil, ErrNilPlatform
	}

	opts := b.opts
	if opts == nil {
		opts = scheduling.SLAAwareOptions()
	}

	reportWriter := b.reportWriter
	if reportWriter == nil {
		reportWriter = os.Stdout
	}

	s := newScheduler()
	s.platform = b.platform
	s.opts = opts
	s.metrics = b.metrics
	s.reportWriter = reportWriter

	inv := inventory.New()
	prov := provisioner.New(b.platform, inv, b.metrics, opts)

	s.inventory = inv
	s.prov = prov
	s.placer = placer.New(b.platform, inv, prov, b.metrics, opts)
	s.dvfs = dvfs.New(b.platform, inv, opts)
	s.tracker = deadline.New(b.platform, inv, b.metrics, opts)

	return s, nil
}
