// Package pool provides a bounded resource pool with FIFO waiters and acquire timeouts.
package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("resource pool is closed")

	// ErrAcquireTimeout is returned when no handle became available in time.
	ErrAcquireTimeout = errors.New("resource acquire timeout")

	// ErrInvalidHandle is returned when releasing a handle that is not outstanding.
	ErrInvalidHandle = errors.New("invalid or already released handle")

	// ErrInvalidCapacity is returned when the capacity is not positive.
	ErrInvalidCapacity = errors.New("pool capacity must be positive")
)

// Factory creates the resource behind a handle. id is stable for the lifetime of the handle.
type Factory[T any] func(ctx context.Context, id int) (T, error)

// Handle is an exclusive lease on one pooled resource.
type Handle[T any] struct {
	ID    int
	Value T

	acquiredAt  time.Time
	outstanding bool
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Capacity        int           `json:"capacity"`
	Created         int           `json:"created"`
	Active          int           `json:"active"`
	Idle            int           `json:"idle"`
	Waiting         int           `json:"waiting"`
	Acquired        int64         `json:"acquired"`
	Released        int64         `json:"released"`
	Timeouts        int64         `json:"timeouts"`
	Handoffs        int64         `json:"handoffs"`
	TotalWait       time.Duration `json:"totalWait"`
	PeakActive      int           `json:"peakActive"`
	Utilization     float64       `json:"utilization"`
	PeakUtilization float64       `json:"peakUtilization"`
}

// AverageWait returns the mean time callers spent waiting for a handle.
func (s Stats) AverageWait() time.Duration {
	if s.Acquired == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(s.Acquired)
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithCloser sets the function called for each created resource on Close.
func WithCloser[T any](fn func(T) error) Option[T] {
	return func(p *Pool[T]) {
		p.closer = fn
	}
}

// WithUtilizationObserver is called with active/capacity after every acquire and release.
func WithUtilizationObserver[T any](fn func(float64)) Option[T] {
	return func(p *Pool[T]) {
		p.observer = fn
	}
}

// grant 交给等待者的结果。create 为 true 时句柄是新占用的槽位，资源由等待者自己创建。
// h 为 nil 表示资源池已关闭。
type grant[T any] struct {
	h      *Handle[T]
	create bool
}

type waiter[T any] struct {
	ch    chan grant[T]
	since time.Time
}

// Pool 有界资源池。空闲句柄立即返回，否则按 FIFO 排队等待释放。
type Pool[T any] struct {
	mu       sync.Mutex
	capacity int
	factory  Factory[T]
	closer   func(T) error
	observer func(float64)

	all     []*Handle[T]
	nextID  int
	idle    []*Handle[T]
	active  int
	waiters *list.List
	closed  bool

	acquired   int64
	released   int64
	timeouts   int64
	handoffs   int64
	totalWait  time.Duration
	peakActive int
}

// New 创建容量为 capacity 的资源池。factory 为 nil 时句柄只携带零值。
func New[T any](capacity int, factory Factory[T], opts ...Option[T]) (*Pool[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	p := &Pool[T]{
		capacity: capacity,
		factory:  factory,
		waiters:  list.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Acquire 获取一个句柄，最多等待 timeout（<=0 表示只受 ctx 约束）。
func (p *Pool[T]) Acquire(ctx context.Context, timeout time.Duration) (*Handle[T], error) {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.grantLocked(h, start)
		util := p.utilizationLocked()
		p.mu.Unlock()
		p.notify(util)
		return h, nil
	}

	if len(p.all) < p.capacity {
		h := p.reserveLocked(start)
		util := p.utilizationLocked()
		p.mu.Unlock()
		p.notify(util)
		return p.take(ctx, grant[T]{h: h, create: true})
	}

	w := &waiter[T]{ch: make(chan grant[T], 1), since: start}
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case g := <-w.ch:
		return p.take(ctx, g)
	case <-timer:
		return p.abandon(w, elem, ErrAcquireTimeout)
	case <-ctx.Done():
		return p.abandon(w, elem, ctx.Err())
	}
}

// abandon removes a waiter that gave up. A handle handed over concurrently is returned instead.
func (p *Pool[T]) abandon(w *waiter[T], elem *list.Element, cause error) (*Handle[T], error) {
	p.mu.Lock()
	select {
	case g := <-w.ch:
		if g.create {
			// 放弃前刚好分到槽位，不创建资源，直接转交
			if errors.Is(cause, ErrAcquireTimeout) {
				p.timeouts++
			}
			p.mu.Unlock()
			p.discard(g.h)
			return nil, cause
		}
		p.mu.Unlock()
		return p.take(context.Background(), g)
	default:
	}
	p.waiters.Remove(elem)
	if errors.Is(cause, ErrAcquireTimeout) {
		p.timeouts++
	}
	p.mu.Unlock()
	return nil, cause
}

// Release 归还句柄。存在等待者时直接交给最早的等待者。
func (p *Pool[T]) Release(h *Handle[T]) error {
	if h == nil {
		return ErrInvalidHandle
	}

	p.mu.Lock()
	if !h.outstanding {
		p.mu.Unlock()
		return ErrInvalidHandle
	}
	p.released++

	if p.closed {
		h.outstanding = false
		p.active--
		p.mu.Unlock()
		return nil
	}

	if front := p.waiters.Front(); front != nil {
		w := p.waiters.Remove(front).(*waiter[T])
		now := time.Now()
		p.handoffs++
		p.acquired++
		p.totalWait += now.Sub(w.since)
		h.acquiredAt = now
		// active is unchanged: the handle moves straight to the waiter
		w.ch <- grant[T]{h: h}
		util := p.utilizationLocked()
		p.mu.Unlock()
		p.notify(util)
		return nil
	}

	h.outstanding = false
	p.active--
	p.idle = append(p.idle, h)
	util := p.utilizationLocked()
	p.mu.Unlock()
	p.notify(util)
	return nil
}

// Close 关闭资源池，唤醒所有等待者并关闭已创建的资源。
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		e.Value.(*waiter[T]).ch <- grant[T]{}
	}
	p.waiters.Init()
	all := append([]*Handle[T](nil), p.all...)
	p.idle = nil
	p.mu.Unlock()

	if p.closer == nil {
		return nil
	}
	var errs []error
	for _, h := range all {
		if err := p.closer(h.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Utilization 返回 active/capacity。
func (p *Pool[T]) Utilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.utilizationLocked()
}

// Capacity 返回池容量。
func (p *Pool[T]) Capacity() int {
	return p.capacity
}

// Stats 返回统计快照。
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Capacity:        p.capacity,
		Created:         len(p.all),
		Active:          p.active,
		Idle:            len(p.idle),
		Waiting:         p.waiters.Len(),
		Acquired:        p.acquired,
		Released:        p.released,
		Timeouts:        p.timeouts,
		Handoffs:        p.handoffs,
		TotalWait:       p.totalWait,
		PeakActive:      p.peakActive,
		Utilization:     p.utilizationLocked(),
		PeakUtilization: float64(p.peakActive) / float64(p.capacity),
	}
}

func (p *Pool[T]) grantLocked(h *Handle[T], requested time.Time) {
	now := time.Now()
	h.outstanding = true
	h.acquiredAt = now
	p.active++
	p.acquired++
	p.totalWait += now.Sub(requested)
	if p.active > p.peakActive {
		p.peakActive = p.active
	}
}

// reserveLocked 占用一个新槽位并记为已获取，资源尚未创建。
func (p *Pool[T]) reserveLocked(requested time.Time) *Handle[T] {
	h := &Handle[T]{ID: p.nextID}
	p.nextID++
	p.all = append(p.all, h)
	p.grantLocked(h, requested)
	return h
}

// take 完成一次授予：关闭时返回 ErrPoolClosed，新槽位先调用 factory 创建资源。
func (p *Pool[T]) take(ctx context.Context, g grant[T]) (*Handle[T], error) {
	if g.h == nil {
		return nil, ErrPoolClosed
	}
	if !g.create || p.factory == nil {
		return g.h, nil
	}
	v, err := p.factory(ctx, g.h.ID)
	if err != nil {
		p.discard(g.h)
		return nil, fmt.Errorf("create pooled resource: %w", err)
	}
	g.h.Value = v
	return g.h, nil
}

// discard drops a handle whose resource could not be created. The freed slot goes to
// the oldest waiter, which then runs the factory itself.
func (p *Pool[T]) discard(h *Handle[T]) {
	p.mu.Lock()
	h.outstanding = false
	p.active--
	p.acquired--
	for i, x := range p.all {
		if x == h {
			p.all = append(p.all[:i], p.all[i+1:]...)
			break
		}
	}
	if front := p.waiters.Front(); front != nil && !p.closed {
		w := p.waiters.Remove(front).(*waiter[T])
		w.ch <- grant[T]{h: p.reserveLocked(w.since), create: true}
	}
	util := p.utilizationLocked()
	p.mu.Unlock()
	p.notify(util)
}

func (p *Pool[T]) utilizationLocked() float64 {
	return float64(p.active) / float64(p.capacity)
}

func (p *Pool[T]) notify(util float64) {
	if p.observer != nil {
		p.observer(util)
	}
}
