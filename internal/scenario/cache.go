package scenario

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/target"
	"yqhp/bench-engine/internal/worker"
	"yqhp/bench-engine/pkg/types"
)

// CacheEngine 按键分布和读写比例压测缓存，统计命中率和淘汰数。
type CacheEngine struct{}

func (CacheEngine) Type() types.ScenarioType { return types.ScenarioCache }

// cacheStatter 内存缓存和 Redis 适配器都提供命中统计。
type cacheStatter interface {
	Stats() target.CacheStats
}

func (CacheEngine) Run(ctx context.Context, sc *config.ScenarioConfig, env *Env) (*types.ScenarioResult, error) {
	start := time.Now()
	tr := newTracker(ctx, env, sc.Name, sc.Type)
	tr.enter(StageSetup, "opening cache")

	b, err := env.bind(ctx, sc)
	if err != nil {
		return nil, setupError(sc.Name, err)
	}
	defer b.Close()

	p := sc.Cache
	value := payload(p.ValueSize)
	keys := newKeyGenerator(p.Distribution, p.KeySpace, p.ZipfS, p.HotspotKeys, p.HotspotTraffic)

	tr.enter(StageWarmup, fmt.Sprintf("preloading %d keys", p.Warmup))
	if err := warmCache(ctx, b.raw, p, value); err != nil {
		return nil, setupError(sc.Name, err)
	}
	statter, hasStats := b.raw.(cacheStatter)
	var before target.CacheStats
	if hasStats {
		before = statter.Stats()
	}

	steps := []worker.Step{
		{
			Name:   "get",
			Weight: p.ReadRatio,
			Build: func(rng *rand.Rand, _, _ int) target.Operation {
				return target.CacheGet{Key: cacheKey(keys(rng))}
			},
		},
		{
			Name:   "set",
			Weight: 1 - p.ReadRatio,
			Build: func(rng *rand.Rand, _, _ int) target.Operation {
				return target.CacheSet{Key: cacheKey(keys(rng)), Value: value, TTL: p.TTL}
			},
		},
	}
	run := phasedRun{
		phases:      phaseConfig(sc, sc.Users),
		steps:       steps,
		criteria:    criteriaFor(sc),
		trackPhases: true,
	}
	out, err := runPhased(ctx, env, sc, b.tgt, tr, run)
	if err != nil {
		return nil, setupError(sc.Name, err)
	}

	tr.enter(StageAnalysis, "")
	res := newResult(sc, start)
	applyOutcome(res, out)
	if hasStats {
		after := statter.Stats()
		delta := target.CacheStats{
			Hits:      after.Hits - before.Hits,
			Misses:    after.Misses - before.Misses,
			Evictions: after.Evictions - before.Evictions,
		}
		res.Metrics[types.MetricHitRatio] = delta.HitRatio()
		res.Metrics[types.MetricEvictions] = float64(delta.Evictions)
	} else {
		res.AddIssue(types.SeverityInfo, "hit_ratio", "cache target does not report hit statistics")
	}
	return finalize(env, sc, res, tr), nil
}

// warmCache 预先写入最热的 Warmup 个键。
func warmCache(ctx context.Context, tgt target.Target, p config.CacheParams, value []byte) error {
	n := min(p.Warmup, max(p.KeySpace, 1))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := tgt.Execute(ctx, target.CacheSet{Key: cacheKey(i), Value: value, TTL: p.TTL})
		if !res.Success {
			return fmt.Errorf("warmup write %s failed: %s", cacheKey(i), res.ErrorKind())
		}
	}
	return nil
}
