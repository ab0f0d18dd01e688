// Package supervisor owns the worker pool: it distributes configured cores
// into engine instances, runs each as a Worker, restarts a worker whose
// engine dies, and reacts to shutdown/update-required signals the way the
// original client's cmd_run supervisor loop does.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/herohde/uciworker/pkg/backoff"
	"github.com/herohde/uciworker/pkg/config"
	"github.com/herohde/uciworker/pkg/jobapi"
	"github.com/herohde/uciworker/pkg/logx"
	"github.com/herohde/uciworker/pkg/uci"
	"github.com/herohde/uciworker/pkg/worker"
)

// Exit codes returned by Run, matching the original client's process exit
// contract.
const (
	ExitNormal         = 0
	ExitUpdateRequired = 70
)

// statInterval matches the original client's aggregate stat-log cadence.
const statInterval = 60 * time.Second

// checkUpdateChance matches CHECK_PYPI_CHANCE: the probability, per
// supervisor tick, that an update check is even attempted.
const checkUpdateChance = 0.01

// UpdateChecker decides whether a newer client version is available. The
// default NoopUpdateChecker never reports an update; a real implementation
// (pinging a release endpoint) is out of scope here.
type UpdateChecker interface {
	ShouldUpdate(ctx context.Context) bool
}

// NoopUpdateChecker always reports that no update is available.
type NoopUpdateChecker struct{}

func (NoopUpdateChecker) ShouldUpdate(context.Context) bool { return false }

// Supervisor runs a pool of workers, one per engine instance.
type Supervisor struct {
	cfg     config.Config
	client  *jobapi.Client
	version string
	runtime string
	checker UpdateChecker

	mu      sync.Mutex
	workers map[string]*worker.Worker
}

// New returns a Supervisor for the given configuration and job-server client.
func New(cfg config.Config, client *jobapi.Client, version, runtimeVersion string, checker UpdateChecker) *Supervisor {
	if checker == nil {
		checker = NoopUpdateChecker{}
	}
	return &Supervisor{
		cfg:     cfg,
		client:  client,
		version: version,
		runtime: runtimeVersion,
		checker: checker,
		workers: map[string]*worker.Worker{},
	}
}

// Run starts Instances() workers and blocks until sig requests a shutdown or
// an update, or ctx is canceled. It returns the process exit code.
func (s *Supervisor) Run(ctx context.Context, sig *SignalHandler) int {
	buckets := s.cfg.InstanceThreadBuckets()
	n := len(buckets)

	var wg sync.WaitGroup
	done := make(chan struct{})

	for i, threads := range buckets {
		id := fmt.Sprintf("worker-%d", i)
		wg.Add(1)
		go func(id string, threads int) {
			defer wg.Done()
			s.runInstance(ctx, id, threads, sig)
		}(id, threads)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	exitCode := s.statLoop(ctx, sig, done, n)

	s.farewell(ctx)
	return exitCode
}

// runInstance spawns one engine instance and keeps restarting its worker
// (with a fresh engine process) until the supervisor is shutting down. The
// backoff generator is created once per instance and carried across
// restarts, so repeated engine deaths grow the wait the same way repeated
// HTTP failures do, rather than resetting on every respawn.
func (s *Supervisor) runInstance(ctx context.Context, id string, threads int, sig *SignalHandler) {
	bo := s.newBackoff()

	for {
		select {
		case <-sig.Shutdown():
			return
		case <-sig.UpdateRequired():
			return
		default:
		}

		w, err := s.spawnWorker(ctx, id, threads, bo)
		if err != nil {
			logx.Errorf(ctx, "Could not start engine for %v: %v", id, err)
			s.wait(ctx, sig, 5*time.Second)
			continue
		}

		s.register(id, w)

		go func() {
			select {
			case <-sig.Shutdown():
				w.Stop(ctx)
			case <-sig.UpdateRequired():
				w.Stop(ctx)
			case <-w.Closed():
			}
		}()

		err = w.Run(ctx)
		s.unregister(id)

		if errors.Is(err, jobapi.ErrUpdateRequired) {
			logx.Infof(ctx, "%v: job server requires an update", id)
			sig.fireUpdateRequired()
			return
		}
		if err == nil {
			return // closed deliberately (shutdown/update-required)
		}

		// DeadEngine: abort of any job in hand already happened inside
		// Run(); sleep backoff, then force-kill the engine before it is
		// replaced.
		logx.Warningf(ctx, "%v restarting after engine death: %v", id, err)
		s.wait(ctx, sig, bo.Next())
		w.KillEngine()
	}
}

func (s *Supervisor) newBackoff() backoff.Generator {
	if s.cfg.FixedBackoff {
		return backoff.NewFixed(3 * time.Second)
	}
	return backoff.NewExponential(30)
}

func (s *Supervisor) spawnWorker(ctx context.Context, id string, threads int, bo backoff.Generator) (*worker.Worker, error) {
	driver, err := uci.NewDriver(ctx, s.cfg.EngineCommand, nil, s.cfg.EngineDir)
	if err != nil {
		return nil, fmt.Errorf("spawn engine: %v", err)
	}

	// Lowercase option names, matching the envelope's "stockfish.options"
	// convention; UCI option matching is case-insensitive in practice. These
	// are the only options recorded into the envelope: fixed at startup and
	// never touched again.
	if err := driver.RecordOption(ctx, "threads", strconv.Itoa(threads)); err != nil {
		return nil, err
	}
	if err := driver.RecordOption(ctx, "hash", strconv.Itoa(s.cfg.MemoryPerInstanceMB())); err != nil {
		return nil, err
	}
	for name, value := range s.cfg.SetOptions {
		if err := driver.RecordOption(ctx, name, value); err != nil {
			return nil, err
		}
	}
	if err := driver.Sync(ctx); err != nil {
		return nil, err
	}

	return worker.New(id, s.client, driver, threads, s.version, s.runtime, s.cfg.APIKey, bo), nil
}

func (s *Supervisor) register(id string, w *worker.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[id] = w
}

func (s *Supervisor) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, id)
}

// statLoop logs aggregate throughput every statInterval/n (n being the
// worker count) until every worker has finished, shutdown, update-required
// or ctx cancellation, then returns the corresponding exit code.
func (s *Supervisor) statLoop(ctx context.Context, sig *SignalHandler, done <-chan struct{}, n int) int {
	perWorker := statInterval
	if n > 0 {
		perWorker = statInterval / time.Duration(n)
	}

	for {
		select {
		case <-done:
			return ExitNormal
		case <-sig.Shutdown():
			return ExitNormal
		case <-sig.UpdateRequired():
			return ExitUpdateRequired
		case <-ctx.Done():
			return ExitNormal
		case <-time.After(perWorker):
			s.logStats(ctx)
			s.maybeCheckUpdate(ctx, sig)
		}
	}
}

func (s *Supervisor) logStats(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions, nodes uint64
	for _, w := range s.workers {
		positions += w.Positions()
		nodes += w.Nodes()
	}
	logx.Infof(ctx, "Workers: %v, positions: %v, nodes: %v", len(s.workers), positions, nodes)
}

func (s *Supervisor) maybeCheckUpdate(ctx context.Context, sig *SignalHandler) {
	if rand.Float64() >= checkUpdateChance {
		return
	}
	if s.checker.ShouldUpdate(ctx) {
		logx.Infof(ctx, "Update available")
		sig.fireUpdateRequired()
	}
}

func (s *Supervisor) wait(ctx context.Context, sig *SignalHandler, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-sig.Shutdown():
	case <-sig.UpdateRequired():
	case <-ctx.Done():
	}
}

// farewell logs one of two goodbye messages, matching the original client's
// distinction between workers that had a job in hand and those that didn't.
func (s *Supervisor) farewell(ctx context.Context) {
	s.mu.Lock()
	anyInHand := false
	for _, w := range s.workers {
		if w.HasJob() {
			anyInHand = true
			break
		}
	}
	s.mu.Unlock()

	if anyInHand {
		logx.Infof(ctx, "Good-bye! Aborting jobs still in hand.")
	} else {
		logx.Infof(ctx, "Good-bye!")
	}
}

