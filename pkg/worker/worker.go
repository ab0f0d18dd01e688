// Package worker runs one engine instance against the job server: acquire a
// job, execute it, report the result, repeat — matching the original
// client's per-worker run loop, including its invalid-job-type fallback and
// HTTP failure backoff.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/herohde/uciworker/pkg/backoff"
	"github.com/herohde/uciworker/pkg/executor"
	"github.com/herohde/uciworker/pkg/jobapi"
	"github.com/herohde/uciworker/pkg/logx"
	"github.com/herohde/uciworker/pkg/uci"
	"github.com/seekerror/stdlib/pkg/util/iox"
	"go.uber.org/atomic"
)

// ErrEngineDead is returned by Run when the engine process backing this
// worker has exited and must be restarted by the supervisor.
var ErrEngineDead = errors.New("worker's engine process is dead")

// JobClient is the subset of *jobapi.Client a worker needs, so tests can
// supply a fake job server.
type JobClient interface {
	Acquire(ctx context.Context, req jobapi.AcquireRequest) (*jobapi.Job, error)
	SubmitAnalysis(ctx context.Context, jobID string, env jobapi.Envelope) error
	SubmitMove(ctx context.Context, jobID string, env jobapi.Envelope) error
	Abort(ctx context.Context, jobID string, env jobapi.Envelope) error
}

// Worker runs one engine instance against the job server.
type Worker struct {
	iox.AsyncCloser

	ID      string
	client  JobClient
	driver  executor.EngineDriver
	threads int
	version string
	runtime string
	apiKey  string

	backoff backoff.Generator

	job *jobapi.Job

	positions atomic.Uint64
	nodes     atomic.Uint64
}

// New returns a Worker driving the given engine instance.
func New(id string, client JobClient, driver executor.EngineDriver, threads int, version, runtime, apiKey string, bo backoff.Generator) *Worker {
	return &Worker{
		AsyncCloser: iox.NewAsyncCloser(),
		ID:          id,
		client:      client,
		driver:      driver,
		threads:     threads,
		version:     version,
		runtime:     runtime,
		apiKey:      apiKey,
		backoff:     bo,
	}
}

// Positions and Nodes report cumulative work done, for supervisor stats.
func (w *Worker) Positions() uint64 { return w.positions.Load() }
func (w *Worker) Nodes() uint64     { return w.nodes.Load() }

// HasJob reports whether a job is currently in hand (used for the
// shutdown farewell message).
func (w *Worker) HasJob() bool {
	return w.job != nil
}

// KillEngine force-kills the underlying engine process. Safe to call after
// the engine has already died on its own (EOF/broken pipe): killing an
// already-dead process group is a no-op.
func (w *Worker) KillEngine() {
	w.driver.Kill()
}

// Run loops acquiring and executing jobs until Close is called, the engine
// dies, or the job server requires an update. It returns nil,
// ErrEngineDead (after aborting any job in hand) or jobapi.ErrUpdateRequired
// respectively; any other step error is followed by a backoff wait.
func (w *Worker) Run(ctx context.Context) error {
	defer w.Close()

	for {
		select {
		case <-w.Closed():
			return nil
		default:
		}

		if err := w.step(ctx); err != nil {
			if errors.Is(err, uci.ErrEngineDead) {
				w.abortInHand(ctx)
				return ErrEngineDead
			}
			if errors.Is(err, jobapi.ErrUpdateRequired) {
				return jobapi.ErrUpdateRequired
			}
			// HTTP failure: back off, then step again. A job whose result
			// failed to submit was already cleared, so that step acquires.
			w.wait(ctx, w.backoff.Next())
			continue
		}
		w.backoff.Reset()
	}
}

func (w *Worker) step(ctx context.Context) error {
	env := w.buildEnvelope()

	switch {
	case w.job != nil && w.job.Work.Type == jobapi.Analysis:
		result, err := executor.Analysis(ctx, w.driver, *w.job, func(partial jobapi.AnalysisResult) {
			progress := env
			progress.Analysis = partial
			if err := w.client.SubmitAnalysis(ctx, w.job.Work.ID, progress); err != nil {
				logx.Warningf(ctx, "Could not send progress report: %v", err)
			}
		})
		if err != nil {
			return err
		}
		w.accumulate(result)

		env.Analysis = result
		id := w.job.Work.ID
		w.job = nil
		return w.client.SubmitAnalysis(ctx, id, env)

	case w.job != nil && w.job.Work.Type == jobapi.Move:
		mv, info, err := executor.Bestmove(ctx, w.driver, w.threads, *w.job)
		if err != nil {
			return err
		}
		w.accumulate(jobapi.AnalysisResult{&info})

		env.Move = &mv
		id := w.job.Work.ID
		w.job = nil
		return w.client.SubmitMove(ctx, id, env)

	case w.job != nil:
		logx.Errorf(ctx, "Invalid job type: %v", w.job.Work.Type)
		w.job = nil
		return w.acquire(ctx, env)

	default:
		return w.acquire(ctx, env)
	}
}

func (w *Worker) acquire(ctx context.Context, env jobapi.Envelope) error {
	job, err := w.client.Acquire(ctx, jobapi.AcquireRequest{Envelope: env})
	if err != nil {
		return err
	}
	w.job = job
	return nil
}

func (w *Worker) accumulate(result jobapi.AnalysisResult) {
	w.positions.Add(uint64(len(result)))
	for _, r := range result {
		if r == nil {
			continue
		}
		if n, ok := r.Nodes.V(); ok {
			w.nodes.Add(uint64(n))
		}
	}
}

func (w *Worker) buildEnvelope() jobapi.Envelope {
	return jobapi.Envelope{
		Fishnet: jobapi.FishnetInfo{
			Version: w.version,
			Runtime: w.runtime,
			APIKey:  w.apiKey,
		},
		Stockfish: w.driver.Info(),
	}
}

// abortInHand reports a job still in hand as aborted, best effort, when the
// engine has died.
func (w *Worker) abortInHand(ctx context.Context) {
	if w.job == nil {
		return
	}
	if err := w.client.Abort(ctx, w.job.Work.ID, w.buildEnvelope()); err != nil {
		logx.Warningf(ctx, "Could not abort job %v: %v", w.job.Work.ID, err)
	}
	w.job = nil
}

// Stop aborts any job in hand and closes the worker.
func (w *Worker) Stop(ctx context.Context) {
	w.abortInHand(ctx)
	w.Close()
}

func (w *Worker) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-w.Closed():
	case <-ctx.Done():
	}
}
