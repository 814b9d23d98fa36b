package scenario

import (
	"context"
	"fmt"
	"io"
	"time"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/target"
	"yqhp/bench-engine/pkg/types"
)

// TargetFactory 为场景打开被测目标。目标若实现 io.Closer，场景结束时会被关闭。
type TargetFactory interface {
	Open(ctx context.Context, sc *config.ScenarioConfig) (target.Target, error)
}

// TargetFactoryFunc 将函数适配为 TargetFactory。
type TargetFactoryFunc func(ctx context.Context, sc *config.ScenarioConfig) (target.Target, error)

// Open 调用函数本身。
func (f TargetFactoryFunc) Open(ctx context.Context, sc *config.ScenarioConfig) (target.Target, error) {
	return f(ctx, sc)
}

// Default simulated service behaviour for scenarios without explicit latency settings.
const (
	defaultSimulatedBase   = 10 * time.Millisecond
	defaultSimulatedJitter = 20 * time.Millisecond
)

// ConfigTargets 根据套件的 targets 配置打开目标。
type ConfigTargets struct {
	Config config.TargetsConfig
}

// Open 按场景的 target 字段构造适配器。
func (f ConfigTargets) Open(ctx context.Context, sc *config.ScenarioConfig) (target.Target, error) {
	switch sc.Target {
	case config.TargetHTTP:
		h := f.Config.HTTP
		return target.NewHTTPTarget(target.HTTPConfig{
			BaseURL:         h.BaseURL,
			Timeout:         h.Timeout,
			MaxConnsPerHost: h.MaxConnsPerHost,
			Headers:         h.Headers,
		})

	case config.TargetRedis:
		if sc.Type != types.ScenarioCache {
			return nil, fmt.Errorf("%w: redis/%s", ErrUnsupportedType, sc.Type)
		}
		r := f.Config.Redis
		return target.NewRedisCache(ctx, target.RedisConfig{
			Addr:      r.Addr,
			Password:  r.Password,
			DB:        r.DB,
			PoolSize:  r.PoolSize,
			KeyPrefix: r.KeyPrefix,
		})

	case config.TargetDatabase:
		if sc.Type != types.ScenarioDatabase {
			return nil, fmt.Errorf("%w: database/%s", ErrUnsupportedType, sc.Type)
		}
		d := f.Config.Database
		return target.OpenSQL(ctx, target.SQLConfig{
			Driver:       d.Driver,
			DSN:          d.DSN,
			MaxOpenConns: max(d.MaxOpenConns, sc.Database.PoolSize),
			MaxIdleConns: sc.Database.PoolSize,
		})

	case config.TargetMemory:
		switch sc.Type {
		case types.ScenarioCache:
			return target.NewMemoryCache(sc.Cache.Capacity), nil
		case types.ScenarioMemory:
			return target.NewAllocator(sc.Memory.MaxRetained), nil
		}
		return nil, fmt.Errorf("%w: memory/%s", ErrUnsupportedType, sc.Type)

	case config.TargetSimulated, "":
		switch sc.Type {
		case types.ScenarioDatabase:
			return target.NewSimulatedDB(sc.Database.ReadLatency, sc.Database.WriteLatency), nil
		case types.ScenarioCache:
			return target.NewMemoryCache(sc.Cache.Capacity), nil
		case types.ScenarioMemory:
			return target.NewAllocator(sc.Memory.MaxRetained), nil
		}
		return target.NewSimulatedService(serviceProfile(sc.Latency)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, sc.Target)
}

func serviceProfile(l config.LatencyConfig) target.ServiceProfile {
	p := target.ServiceProfile{
		Base:         l.Base,
		Jitter:       l.Jitter,
		Concurrency:  l.Concurrency,
		QueueTimeout: l.QueueTimeout,
	}
	if p.Base == 0 && p.Jitter == 0 {
		p.Base, p.Jitter = defaultSimulatedBase, defaultSimulatedJitter
	}
	return p
}

// binding 场景持有的目标：raw 用于读取统计，tgt 可能叠加了延迟注入。
type binding struct {
	raw target.Target
	tgt target.Target
}

func (e *Env) bind(ctx context.Context, sc *config.ScenarioConfig) (*binding, error) {
	if e == nil || e.Targets == nil {
		return nil, fmt.Errorf("no target factory configured")
	}
	raw, err := e.Targets.Open(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("打开目标 %s 失败: %w", sc.Target, err)
	}
	if raw == nil {
		return nil, target.ErrNilTarget
	}
	b := &binding{raw: raw, tgt: raw}

	// 模拟服务自身已处理延迟，其余目标按配置叠加
	_, isService := raw.(*target.SimulatedService)
	l := sc.Latency
	if !isService && (l.Base > 0 || l.Jitter > 0 || l.ErrorRate > 0) {
		b.tgt = target.WithLatency(raw, target.LatencyProfile{Base: l.Base, Jitter: l.Jitter, ErrorRate: l.ErrorRate})
	} else if isService && l.ErrorRate > 0 {
		b.tgt = target.WithLatency(raw, target.LatencyProfile{ErrorRate: l.ErrorRate})
	}
	return b, nil
}

func (b *binding) Close() error {
	if c, ok := b.raw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
