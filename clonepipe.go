// Package clonepipe is the high-level entry point for the repertoire
// analysis pipeline. It wraps the internal stage controller and provides a
// simplified API for hosts that embed the pipeline instead of driving the
// clonepipe binary over stdio.
package clonepipe

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bioseqio/clonepipe/internal/logging"
	"github.com/bioseqio/clonepipe/internal/pipeline"
	"github.com/bioseqio/clonepipe/pkg/adapters/process"
	"github.com/bioseqio/clonepipe/pkg/domain"
	"github.com/bioseqio/clonepipe/pkg/observability"
	"github.com/bioseqio/clonepipe/pkg/protocol"
)

// Version is the released pipeline version.
var Version = "0.3.0"

// Pipeline runs one analysis end to end: protocol messages out, host
// responses in. A Pipeline is single-use.
type Pipeline struct {
	cfg    domain.RunConfig
	in     io.Reader
	out    io.Writer
	tools  map[string]process.Tool
	logger *slog.Logger

	metrics *observability.Metrics
	store   pipeline.RunStore
	runID   string

	thresholdTimeout time.Duration
}

// Option defines a functional option for configuring the Pipeline.
type Option func(*Pipeline)

// WithIO sets the protocol streams. Defaults are os.Stdin and os.Stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(p *Pipeline) {
		p.in = in
		p.out = out
	}
}

// WithTools overrides entries of the default external tool registry.
func WithTools(tools map[string]process.Tool) Option {
	return func(p *Pipeline) { p.tools = tools }
}

// WithLogger sets a custom structured logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRunStore mirrors run progress and the final report to an external
// store under the given run ID.
func WithRunStore(store pipeline.RunStore, runID string) Option {
	return func(p *Pipeline) {
		p.store = store
		p.runID = runID
	}
}

// WithThresholdTimeout bounds the wait for the host's threshold response.
// The default is to wait indefinitely.
func WithThresholdTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.thresholdTimeout = d }
}

// New configures a pipeline for one run.
func New(cfg domain.RunConfig, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg: cfg,
		in:  os.Stdin,
		out: os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Run executes every stage and reports whether the run completed
// successfully. The outcome is also emitted as the protocol's final
// complete message; Run itself never returns an error.
func (p *Pipeline) Run(ctx context.Context) bool {
	runner := process.NewRunner(process.WithRegistry(p.tools))

	opts := []pipeline.Option{
		pipeline.WithLogger(p.logger),
		pipeline.WithMetrics(p.metrics),
		pipeline.WithThresholdTimeout(p.thresholdTimeout),
	}
	if p.store != nil {
		opts = append(opts, pipeline.WithRunStore(p.store, p.runID))
	}

	ctrl := pipeline.NewController(
		p.cfg,
		protocol.NewEncoder(p.out),
		protocol.NewDecoder(p.in),
		runner,
		opts...,
	)
	return ctrl.Run(ctx)
}
