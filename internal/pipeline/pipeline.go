// Package pipeline drives a full repertoire analysis run: a fixed sequence
// of stages over the run's output directory, reported to the host over the
// line protocol. Stages execute strictly sequentially; external tools are
// invoked synchronously; the only suspension point is the threshold
// negotiation. Exactly one run may own an output directory at a time; the
// caller enforces that.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bioseqio/clonepipe/pkg/adapters/process"
	"github.com/bioseqio/clonepipe/pkg/airr"
	"github.com/bioseqio/clonepipe/pkg/domain"
	"github.com/bioseqio/clonepipe/pkg/observability"
	"github.com/bioseqio/clonepipe/pkg/protocol"
)

// RunStore mirrors run progress and results for out-of-band monitoring.
// The pipeline tolerates a nil store and logs (but ignores) store errors.
type RunStore interface {
	SaveStatus(ctx context.Context, st domain.RunStatus) error
	SaveReport(ctx context.Context, runID string, report any) error
}

// Controller executes the stage sequence for one run. It is single-use:
// create one per run.
type Controller struct {
	cfg    domain.RunConfig
	enc    *protocol.Encoder
	dec    *protocol.Decoder
	runner *process.Runner
	logger *slog.Logger

	metrics *observability.Metrics
	store   RunStore
	runID   string

	thresholdTimeout time.Duration

	// cancelled is set only by an explicit host cancel during the threshold
	// negotiation and checked only at stage boundaries. A stage already in
	// progress always runs to completion; launched external processes are
	// never interrupted.
	cancelled bool

	// lastPercent enforces monotonically non-decreasing progress.
	lastPercent int

	// Per-run artifacts threaded between stages.
	fastaPaths  []string
	sequenceIDs []string
	combined    string

	dbV, dbD, dbJ          string
	cleanV, cleanD, cleanJ string
	blastV, blastD, blastJ string

	hits      *airr.HitTable
	threshold float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the operator logger (stderr side).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics attaches stage metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithRunStore mirrors progress and the final report under the given run ID.
func WithRunStore(store RunStore, runID string) Option {
	return func(c *Controller) {
		c.store = store
		c.runID = runID
	}
}

// WithThresholdTimeout bounds the negotiation wait. Zero (the default)
// preserves the indefinite blocking read.
func WithThresholdTimeout(d time.Duration) Option {
	return func(c *Controller) { c.thresholdTimeout = d }
}

// NewController wires a run.
func NewController(cfg domain.RunConfig, enc *protocol.Encoder, dec *protocol.Decoder, runner *process.Runner, opts ...Option) *Controller {
	c := &Controller{
		cfg:    cfg,
		enc:    enc,
		dec:    dec,
		runner: runner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// stage is one entry of the fixed stage table.
type stage struct {
	name  string
	fatal bool
	run   func(context.Context) error
}

// failureMessage is the complete.error text for a fatal stage, matching the
// wording hosts already key on.
var failureMessage = map[string]string{
	"loading":   "Failed to load FASTA files",
	"cleaning":  "Failed to clean FASTA files",
	"setup":     "Failed to setup databases",
	"combining": "Failed to combine FASTA files",
	"blast_db":  "Failed to build BLAST databases",
	"igblast":   "IgBLAST analysis failed",
	"threshold": "Threshold calculation failed",
	"clonality": "Clonality analysis failed",
	"results":   "Failed to load results",
}

// Run executes the pipeline. It always emits exactly one complete message
// and reports the run's success; no fault escapes the run boundary.
func (c *Controller) Run(ctx context.Context) (success bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("pipeline panicked", "err", r)
			c.protoLog(domain.LevelError, fmt.Sprintf("Pipeline failed: %v", r))
			c.complete(false, fmt.Sprint(r))
			success = false
		}
	}()

	if err := c.cfg.Validate(); err != nil {
		c.protoLog(domain.LevelError, err.Error())
		c.complete(false, err.Error())
		return false
	}

	stages := []stage{
		{name: "loading", fatal: true, run: c.stageLoad},
		{name: "cleaning", fatal: true, run: c.stageClean},
		{name: "setup", fatal: true, run: c.stageSetup},
		{name: "combining", fatal: true, run: c.stageCombine},
		{name: "blast_db", fatal: true, run: c.stageBlastDB},
		{name: "igblast", fatal: true, run: c.stageAlign},
		{name: "threshold", fatal: true, run: c.stageThreshold},
		{name: "clonality", fatal: true, run: c.stageClonality},
		{name: "trees", fatal: false, run: c.stageTrees},
		{name: "visualize", fatal: false, run: c.stageVisualizeTrees},
		{name: "results", fatal: true, run: c.stageResults},
	}

	for _, st := range stages {
		// Cancellation is cooperative and coarse: checked here only.
		if c.cancelled || ctx.Err() != nil {
			c.complete(false, "Cancelled by user")
			return false
		}

		if err := c.runStage(ctx, st); err != nil {
			if st.fatal {
				reason := failureMessage[st.name]
				if c.cancelled {
					reason = "Cancelled by user"
				} else {
					c.protoLog(domain.LevelError, fmt.Sprintf("%s: %v", st.name, err))
				}
				c.logger.Error("fatal stage failed", "stage", st.name, "err", err)
				c.complete(false, reason)
				return false
			}
			c.protoLog(domain.LevelWarn, fmt.Sprintf("%s failed (non-fatal): %v", st.name, err))
			c.logger.Warn("non-fatal stage failed", "stage", st.name, "err", err)
		}
	}

	c.progress("complete", 100, "Analysis complete!")
	c.complete(true, "")
	return true
}

// runStage contains the per-stage fault boundary: panics become errors.
func (c *Controller) runStage(ctx context.Context, st stage) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
		c.metrics.ObserveStage(st.name, start, err != nil, st.fatal)
	}()
	return st.run(ctx)
}

// progress emits a protocol progress message. Percent never decreases
// across the run regardless of what a stage reports.
func (c *Controller) progress(stage string, percent int, msg string) {
	if percent < c.lastPercent {
		percent = c.lastPercent
	}
	c.lastPercent = percent
	if err := c.enc.Progress(stage, percent, msg); err != nil {
		c.logger.Error("emitting progress", "err", err)
	}
	c.mirrorStatus(stage, percent, msg, false, false, "")
}

func (c *Controller) protoLog(level domain.LogLevel, msg string) {
	if err := c.enc.Log(level, msg); err != nil {
		c.logger.Error("emitting log message", "err", err)
	}
}

func (c *Controller) result(artifact, path string, data map[string]any) {
	if err := c.enc.Result(artifact, path, data); err != nil {
		c.logger.Error("emitting result", "err", err, "artifact", artifact)
	}
}

func (c *Controller) complete(success bool, errMsg string) {
	if err := c.enc.Complete(success, errMsg); err != nil {
		c.logger.Error("emitting complete", "err", err)
	}
	c.metrics.ObserveRun(success)
	c.mirrorStatus("complete", c.lastPercent, errMsg, true, success, errMsg)
}

func (c *Controller) mirrorStatus(stage string, percent int, msg string, done, success bool, errMsg string) {
	if c.store == nil {
		return
	}
	err := c.store.SaveStatus(context.WithoutCancel(context.Background()), domain.RunStatus{
		RunID:   c.runID,
		Stage:   stage,
		Percent: percent,
		Message: msg,
		Done:    done,
		Success: success,
		Error:   errMsg,
	})
	if err != nil {
		c.logger.Warn("mirroring run status", "err", err)
	}
}
