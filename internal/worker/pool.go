// Package worker implements the load-generating worker pool.
//
// Each worker repeatedly picks a workload step, optionally leases a pooled
// resource, executes the operation against the target, records a Sample and
// then thinks. Workers only check for cancellation between iterations: an
// operation in flight when a worker is stopped runs to completion or to its
// own timeout.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"yqhp/bench-engine/internal/pool"
	"yqhp/bench-engine/internal/target"
	"yqhp/bench-engine/pkg/types"
)

// DefaultOperationTimeout bounds a single operation when none is configured.
const DefaultOperationTimeout = 30 * time.Second

// Recorder receives every completed sample.
type Recorder interface {
	Record(sample types.Sample)
}

// Gate leases a shared resource for the duration of one operation.
type Gate interface {
	Acquire(ctx context.Context, timeout time.Duration) (release func(), err error)
}

// PoolGate adapts a resource pool to a Gate.
func PoolGate[T any](p *pool.Pool[T]) Gate {
	return poolGate[T]{p: p}
}

type poolGate[T any] struct {
	p *pool.Pool[T]
}

func (g poolGate[T]) Acquire(ctx context.Context, timeout time.Duration) (func(), error) {
	h, err := g.p.Acquire(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return func() { _ = g.p.Release(h) }, nil
}

// Config configures a worker pool.
type Config struct {
	Scenario         string
	Target           target.Target
	Steps            []Step
	Sequential       bool
	ThinkTime        time.Duration
	ThinkJitter      time.Duration
	OperationTimeout time.Duration
	AcquireTimeout   time.Duration
	Gate             Gate
	Limiter          *rate.Limiter
	Recorder         Recorder
	// Seed makes step selection reproducible; 0 seeds from the clock.
	Seed uint64
}

type worker struct {
	id     int
	cancel context.CancelFunc
	done   chan struct{}
}

// Pool runs workers against a target.
type Pool struct {
	ctx    context.Context
	cfg    Config
	picker *picker
	seed   uint64

	mu      sync.Mutex
	workers []*worker
	nextID  int
	wg      sync.WaitGroup

	active     atomic.Int32
	iterations atomic.Int64
}

// New creates a pool whose workers live at most as long as ctx.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Target == nil {
		return nil, ErrNilTarget
	}
	if cfg.Recorder == nil {
		return nil, ErrNilRecorder
	}
	p, err := newPicker(cfg.Steps, cfg.Sequential)
	if err != nil {
		return nil, err
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Pool{ctx: ctx, cfg: cfg, picker: p, seed: seed}, nil
}

// Spawn starts n workers and returns the resulting active count.
// The count is updated before Spawn returns.
func (p *Pool) Spawn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < n; i++ {
		if p.ctx.Err() != nil {
			break
		}
		ctx, cancel := context.WithCancel(p.ctx)
		w := &worker{id: p.nextID, cancel: cancel, done: make(chan struct{})}
		p.nextID++
		p.workers = append(p.workers, w)
		p.active.Add(1)
		p.wg.Add(1)
		go p.run(ctx, w)
	}
	return len(p.workers)
}

// Stop stops the n most recently spawned workers and waits until they have exited.
func (p *Pool) Stop(n int) int {
	p.mu.Lock()
	if n > len(p.workers) {
		n = len(p.workers)
	}
	stopping := append([]*worker(nil), p.workers[len(p.workers)-n:]...)
	p.workers = p.workers[:len(p.workers)-n]
	remaining := len(p.workers)
	p.active.Add(int32(-n))
	p.mu.Unlock()

	for _, w := range stopping {
		w.cancel()
	}
	for _, w := range stopping {
		<-w.done
	}
	return remaining
}

// StopAll stops every worker and waits for them.
func (p *Pool) StopAll() {
	p.Stop(p.Active())
	p.wg.Wait()
}

// Active returns the number of running workers.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Iterations returns the number of completed operations.
func (p *Pool) Iterations() int64 {
	return p.iterations.Load()
}

// Wait blocks until every spawned worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, w *worker) {
	defer p.wg.Done()
	defer close(w.done)

	rng := rand.New(rand.NewPCG(p.seed, uint64(w.id)))
	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			return
		}
		if p.cfg.Limiter != nil {
			if err := p.cfg.Limiter.Wait(ctx); err != nil {
				return
			}
		}

		step := p.picker.pick(rng, iteration)
		sample, ok := p.execute(ctx, w.id, step, rng, iteration)
		if !ok {
			return
		}
		p.cfg.Recorder.Record(sample)
		p.iterations.Add(1)

		if !p.think(ctx, rng) {
			return
		}
	}
}

// execute runs one step. ok is false when the worker was stopped before the operation started.
func (p *Pool) execute(ctx context.Context, workerID int, step *Step, rng *rand.Rand, iteration int) (sample types.Sample, ok bool) {
	sample = types.Sample{WorkerID: workerID, Scenario: p.cfg.Scenario}
	start := time.Now()

	if step.NeedsResource && p.cfg.Gate != nil {
		release, err := p.cfg.Gate.Acquire(ctx, p.cfg.AcquireTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return sample, false
			}
			sample.Timestamp = time.Now()
			sample.LatencyMs = msSince(start)
			sample.ErrorKind = "resource_timeout"
			if !errors.Is(err, pool.ErrAcquireTimeout) {
				sample.ErrorKind = "resource_error"
			}
			return sample, true
		}
		defer release()
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.OperationTimeout)
	defer cancel()

	res := safeExecute(opCtx, p.cfg.Target, func() target.Operation {
		return step.Build(rng, workerID, iteration)
	})

	sample.Timestamp = time.Now()
	sample.LatencyMs = msSince(start)
	if res.Latency > 0 {
		sample.LatencyMs = float64(res.Latency) / float64(time.Millisecond)
	}
	sample.Success = res.Success
	sample.ErrorKind = res.ErrorKind()
	sample.Bytes = res.Bytes
	return sample, true
}

func (p *Pool) think(ctx context.Context, rng *rand.Rand) bool {
	d := p.cfg.ThinkTime
	if p.cfg.ThinkJitter > 0 {
		d += time.Duration(rng.Int64N(int64(p.cfg.ThinkJitter)))
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// safeExecute builds and runs one operation; a panic in either becomes a failed result.
func safeExecute(ctx context.Context, tgt target.Target, build func() target.Operation) (res target.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = target.Fail("panic", fmt.Errorf("operation panic: %v", r))
		}
	}()
	op := build()
	if op == nil {
		return target.Fail("invalid_operation", errors.New("step built a nil operation"))
	}
	return tgt.Execute(ctx, op)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
