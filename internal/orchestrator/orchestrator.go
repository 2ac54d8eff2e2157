package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mpataki/apsweep/internal/models"
	"github.com/mpataki/apsweep/internal/schedule"
	"github.com/mpataki/apsweep/internal/storage"
	"github.com/mpataki/apsweep/internal/tool"
	"github.com/mpataki/apsweep/internal/workspace"
)

// Runner runs the external tool. *tool.Tool satisfies it.
type Runner interface {
	tool.Runner
	CommandLine(target string, spec models.RunSpec) string
}

type Orchestrator struct {
	storage *storage.Storage
	ws      *workspace.Workspace
	runner  Runner
	logger  *zap.Logger
}

func New(store *storage.Storage, ws *workspace.Workspace, runner Runner, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		storage: store,
		ws:      ws,
		runner:  runner,
		logger:  logger,
	}
}

// Summary describes a finished or aborted sweep. Artifacts lists only the
// files actually produced, in schedule order.
type Summary struct {
	SweepID   int64
	Token     string
	Target    string
	WorkDir   string
	LogPath   string
	State     models.SweepState
	Schedule  []models.RunSpec
	Cleanup   *workspace.Cleanup
	Artifacts []string
	// NonZero lists runs whose tool exited non-zero but still left an artifact.
	NonZero []models.RunSpec
}

// Prepare clears stale artifacts and the log without running anything.
func (o *Orchestrator) Prepare() (*workspace.Cleanup, error) {
	stale, err := o.ws.Prepare()
	if stale != nil && len(stale.Deleted) > 0 {
		o.logger.Warn("deleted generated files", zap.Strings("files", stale.Deleted))
	}
	if err != nil {
		return stale, err
	}
	o.logger.Info("removed generated files", zap.Int("count", len(stale.Deleted)))
	if stale.LogRemoved {
		o.logger.Info("removed log file", zap.String("path", o.ws.LogPath()))
	}
	return stale, nil
}

// Sweep prepares the workspace and runs every schedule entry in order. The
// first failure aborts the sweep; entries after it are not run.
func (o *Orchestrator) Sweep(ctx context.Context, target string, specs []models.RunSpec) (*Summary, error) {
	if err := schedule.Validate(specs); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	sweep := &models.Sweep{
		Token:        uuid.NewString(),
		Target:       target,
		WorkDir:      o.ws.Path,
		LogPath:      o.ws.LogPath(),
		State:        models.SweepStateNotStarted,
		CurrentIndex: -1,
	}
	id, err := o.storage.CreateSweep(sweep)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep: %w", err)
	}
	sweep.ID = id

	logger := o.logger.With(zap.Int64("sweep", sweep.ID), zap.String("token", sweep.Token))
	summary := &Summary{
		SweepID:  sweep.ID,
		Token:    sweep.Token,
		Target:   target,
		WorkDir:  sweep.WorkDir,
		LogPath:  sweep.LogPath,
		Schedule: specs,
	}

	if err := o.advance(sweep, models.SweepStatePreparing); err != nil {
		return summary, o.abort(sweep, summary, err)
	}

	cleanup, err := o.Prepare()
	summary.Cleanup = cleanup
	if err != nil {
		return summary, o.abort(sweep, summary, err)
	}

	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return summary, o.abort(sweep, summary, err)
		}

		sweep.CurrentIndex = i
		if err := o.advance(sweep, models.SweepStateRunning); err != nil {
			return summary, o.abort(sweep, summary, err)
		}

		artifact, exitCode, err := o.runOne(ctx, logger, sweep, i, spec)
		if artifact != "" {
			summary.Artifacts = append(summary.Artifacts, artifact)
		}
		if err != nil {
			return summary, o.abort(sweep, summary, err)
		}
		if exitCode != 0 {
			summary.NonZero = append(summary.NonZero, spec)
		}
	}

	if err := o.advance(sweep, models.SweepStateDone); err != nil {
		return summary, o.abort(sweep, summary, err)
	}
	summary.State = sweep.State
	logger.Info("sweep complete", zap.Int("artifacts", len(summary.Artifacts)))
	return summary, nil
}

func (o *Orchestrator) runOne(ctx context.Context, logger *zap.Logger, sweep *models.Sweep, idx int, spec models.RunSpec) (string, int, error) {
	logger = logger.With(zap.Stringer("run", spec), zap.Int("index", idx))

	exec := &models.Execution{
		SweepID:     sweep.ID,
		SequenceNum: idx + 1,
		Spec:        spec,
		CommandLine: o.runner.CommandLine(sweep.Target, spec),
		Status:      models.ExecStatusPending,
	}
	execID, err := o.storage.CreateExecution(exec)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create execution: %w", err)
	}
	exec.ID = execID

	logFile, err := o.ws.OpenLog()
	if err != nil {
		o.failExecution(exec)
		return "", 0, err
	}
	defer logFile.Close()

	now := time.Now()
	exec.StartedAt = &now
	exec.Status = models.ExecStatusRunning
	if err := o.storage.UpdateExecution(exec); err != nil {
		o.failExecution(exec)
		return "", 0, fmt.Errorf("failed to record execution start: %w", err)
	}

	logger.Info("launching", zap.String("command", exec.CommandLine))
	res, err := o.runner.Run(ctx, tool.Invocation{
		Target:   sweep.Target,
		Spec:     spec,
		Expected: o.ws.GeneratedName(sweep.Target),
		Output:   logFile,
		OnStart: func(pid int) {
			if err := o.storage.UpdateExecutionPID(exec.ID, pid); err != nil {
				logger.Debug("failed to record pid", zap.Error(err))
			}
		},
	})
	if err != nil {
		o.failExecution(exec)
		return "", 0, err
	}

	completedAt := res.CompletedAt
	exitCode := res.ExitCode
	exec.CompletedAt = &completedAt
	exec.ExitCode = &exitCode
	logger.Info("done", zap.Int("exit_code", exitCode), zap.Duration("elapsed", exec.Duration()))

	if err := ctx.Err(); err != nil {
		o.failExecution(exec)
		return "", exitCode, err
	}

	// A non-zero exit is not fatal on its own; the artifact check decides.
	if exitCode != 0 {
		logger.Warn("tool exited non-zero, checking for artifact anyway", zap.Int("exit_code", exitCode))
	}

	artifact, err := o.ws.Collect(sweep.Target, spec)
	if err != nil {
		o.failExecution(exec)
		return "", exitCode, err
	}
	logger.Info("renamed", zap.String("from", res.Expected), zap.String("to", artifact))

	exec.Artifact = artifact
	exec.Status = models.ExecStatusComplete
	if err := o.storage.UpdateExecution(exec); err != nil {
		o.failExecution(exec)
		return artifact, exitCode, fmt.Errorf("failed to record execution result: %w", err)
	}
	return artifact, exitCode, nil
}

// advance moves the sweep to next and persists it. If the write fails the
// in-memory state is rolled back so the caller can still abort.
func (o *Orchestrator) advance(sweep *models.Sweep, next models.SweepState) error {
	prevState, prevCompleted := sweep.State, sweep.CompletedAt
	if err := sweep.Advance(next); err != nil {
		return err
	}
	if err := o.storage.UpdateSweep(sweep); err != nil {
		sweep.State, sweep.CompletedAt = prevState, prevCompleted
		return fmt.Errorf("failed to record sweep state %s: %w", next, err)
	}
	return nil
}

func (o *Orchestrator) abort(sweep *models.Sweep, summary *Summary, cause error) error {
	sweep.Error = cause.Error()
	summary.State = models.SweepStateAborted
	o.logger.Error("sweep aborted",
		zap.Int64("sweep", sweep.ID),
		zap.Int("index", sweep.CurrentIndex),
		zap.Error(cause))
	if err := o.advance(sweep, models.SweepStateAborted); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (o *Orchestrator) failExecution(exec *models.Execution) {
	exec.Status = models.ExecStatusFailed
	if exec.CompletedAt == nil {
		now := time.Now()
		exec.CompletedAt = &now
	}
	if err := o.storage.UpdateExecution(exec); err != nil {
		o.logger.Debug("failed to record execution failure", zap.Error(err))
	}
}

// Read methods for the CLI and TUI

func (o *Orchestrator) ListSweeps(limit int) ([]*models.Sweep, error) {
	return o.storage.ListSweeps(limit)
}

func (o *Orchestrator) GetSweep(id int64) (*models.Sweep, error) {
	return o.storage.GetSweep(id)
}

func (o *Orchestrator) GetExecutionsForSweep(sweepID int64) ([]*models.Execution, error) {
	return o.storage.GetExecutionsForSweep(sweepID)
}

func (o *Orchestrator) DeleteSweep(id int64) error {
	return o.storage.DeleteSweep(id)
}
