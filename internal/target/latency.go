package target

import (
	"context"
	"math/rand/v2"
	"time"
)

// LatencyProfile 模拟延迟分布
type LatencyProfile struct {
	Base   time.Duration
	Jitter time.Duration
	// ErrorRate 为 0-1 之间的注入失败概率
	ErrorRate float64
}

type latencyTarget struct {
	next    Target
	profile LatencyProfile
}

// WithLatency 在 next 之前注入模拟延迟和随机失败。
func WithLatency(next Target, profile LatencyProfile) Target {
	return &latencyTarget{next: next, profile: profile}
}

func (t *latencyTarget) Execute(ctx context.Context, op Operation) Result {
	d := t.profile.Base
	if t.profile.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(t.profile.Jitter)))
	}
	if err := sleepCtx(ctx, d); err != nil {
		return Fail("timeout", err)
	}
	if t.profile.ErrorRate > 0 && rand.Float64() < t.profile.ErrorRate {
		return Fail("injected", nil)
	}
	return t.next.Execute(ctx, op)
}
