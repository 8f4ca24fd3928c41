// Package pipeline runs the monitoring steps in order and records each run
// in the history store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Step names, also used as CLI subcommands.
const (
	StepIngest        = "ingest"
	StepContentChecks = "content-checks"
	StepIndex         = "index"
	StepEmbed         = "embed"
	StepEvaluate      = "evaluate"
	StepReport        = "report"
	StepDashboard     = "dashboard"
	StepNotify        = "notify"
)

// Order is the run-all sequence.
var Order = []string{
	StepIngest,
	StepContentChecks,
	StepIndex,
	StepEmbed,
	StepEvaluate,
	StepReport,
	StepDashboard,
	StepNotify,
}

// ErrStep wraps the error of the step that stopped a run.
var ErrStep = errors.New("pipeline: step failed")

// Step is one named unit of work.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Recorder persists run and step outcomes. The history store implements it.
type Recorder interface {
	StartRun(ctx context.Context, command string) (string, error)
	RecordStep(ctx context.Context, runID, name string, started time.Time, stepErr error) error
	FinishRun(ctx context.Context, runID string, runErr error) error
}

// Pipeline executes steps sequentially, stopping at the first failure.
type Pipeline struct {
	steps []Step
	rec   Recorder
	log   *slog.Logger
	now   func() time.Time
}

// New returns a pipeline. rec may be nil when history is disabled.
func New(steps []Step, rec Recorder, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{steps: steps, rec: rec, log: log, now: time.Now}
}

// Run executes every step and returns the run id.
func (p *Pipeline) Run(ctx context.Context, command string) (string, error) {
	runID := p.startRun(ctx, command)
	log := p.log.With("run_id", runID, "command", command)
	log.Info("run started", "steps", len(p.steps))

	var runErr error
	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		started := p.now()
		log.Info("step started", "step", s.Name)
		err := s.Run(ctx)
		p.recordStep(ctx, log, runID, s.Name, started, err)
		if err != nil {
			log.Error("step failed", "step", s.Name, "err", err)
			runErr = fmt.Errorf("%w: %s: %w", ErrStep, s.Name, err)
			break
		}
		log.Info("step finished", "step", s.Name, "dur", p.now().Sub(started))
	}

	if p.rec != nil {
		if err := p.rec.FinishRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
			log.Warn("could not record run outcome", "err", err)
		}
	}
	if runErr != nil {
		return runID, runErr
	}
	log.Info("run finished")
	return runID, nil
}

func (p *Pipeline) startRun(ctx context.Context, command string) string {
	if p.rec == nil {
		return uuid.NewString()
	}
	id, err := p.rec.StartRun(ctx, command)
	if err != nil {
		p.log.Warn("could not record run start", "err", err)
		return uuid.NewString()
	}
	return id
}

func (p *Pipeline) recordStep(ctx context.Context, log *slog.Logger, runID, name string, started time.Time, stepErr error) {
	if p.rec == nil {
		return
	}
	if err := p.rec.RecordStep(context.WithoutCancel(ctx), runID, name, started, stepErr); err != nil {
		log.Warn("could not record step", "step", name, "err", err)
	}
}
