package target

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ErrOverloaded 模拟服务排队超时
var ErrOverloaded = errors.New("simulated service overloaded")

// ServiceProfile 模拟服务参数
type ServiceProfile struct {
	Base   time.Duration
	Jitter time.Duration
	// Concurrency 同时处理的请求数上限，<=0 表示不限制
	Concurrency int
	// QueueTimeout 排队等待上限，超过后请求失败
	QueueTimeout time.Duration
}

// SimulatedService 有限并发的模拟服务，超出并发的请求排队，排队时间计入延迟。
type SimulatedService struct {
	profile ServiceProfile
	slots   chan struct{}
}

// NewSimulatedService 创建模拟服务。
func NewSimulatedService(profile ServiceProfile) *SimulatedService {
	s := &SimulatedService{profile: profile}
	if profile.Concurrency > 0 {
		s.slots = make(chan struct{}, profile.Concurrency)
	}
	return s
}

// Execute 接受任意操作。
func (s *SimulatedService) Execute(ctx context.Context, op Operation) Result {
	start := time.Now()
	if s.slots != nil {
		wait := ctx
		if s.profile.QueueTimeout > 0 {
			var cancel context.CancelFunc
			wait, cancel = context.WithTimeout(ctx, s.profile.QueueTimeout)
			defer cancel()
		}
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-wait.Done():
			if ctx.Err() != nil {
				return Fail("timeout", ctx.Err())
			}
			return Result{Status: "overloaded", Err: ErrOverloaded, Latency: time.Since(start)}
		}
	}

	d := s.profile.Base
	if s.profile.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(s.profile.Jitter)))
	}
	if err := sleepCtx(ctx, d); err != nil {
		return Fail("timeout", err)
	}
	var n int64
	if r, ok := op.(HTTPRequest); ok {
		n = int64(len(r.Body))
	}
	return Result{Success: true, Latency: time.Since(start), Bytes: n}
}

// InFlight 返回正在处理的请求数。
func (s *SimulatedService) InFlight() int {
	if s.slots == nil {
		return 0
	}
	return len(s.slots)
}
