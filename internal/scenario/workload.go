package scenario

import (
	"math/rand/v2"
	"strconv"
	"sync"

	"yqhp/bench-engine/internal/config"
)

// keyGenerator 在 [0, keySpace) 中选择一个键序号。
type keyGenerator func(rng *rand.Rand) int

// newKeyGenerator 按分布构造键生成器，未知分布按均匀分布处理。
func newKeyGenerator(distribution string, keySpace int, zipfS, hotKeys, hotTraffic float64) keyGenerator {
	n := max(keySpace, 1)
	switch distribution {
	case config.DistributionZipf:
		return zipfKeys(n, zipfS)
	case config.DistributionHotspot:
		return hotspotKeys(n, hotKeys, hotTraffic)
	default:
		return func(rng *rand.Rand) int {
			return rng.IntN(n)
		}
	}
}

// zipfKeys 序号越小越热。rand.Zipf 绑定到具体的 rng，按 worker 缓存。
func zipfKeys(n int, s float64) keyGenerator {
	if s <= 1 {
		s = 1.1
	}
	var perWorker sync.Map
	return func(rng *rand.Rand) int {
		z, ok := perWorker.Load(rng)
		if !ok {
			z, _ = perWorker.LoadOrStore(rng, rand.NewZipf(rng, s, 1, uint64(n-1)))
		}
		return int(z.(*rand.Zipf).Uint64())
	}
}

// hotspotKeys 前 hotKeys 比例的键承担 hotTraffic 比例的访问。
func hotspotKeys(n int, hotKeys, hotTraffic float64) keyGenerator {
	hot := min(max(int(float64(n)*hotKeys), 1), n)
	return func(rng *rand.Rand) int {
		if hot == n || rng.Float64() < hotTraffic {
			return rng.IntN(hot)
		}
		return hot + rng.IntN(n-hot)
	}
}

func cacheKey(i int) string {
	return "key:" + strconv.Itoa(i)
}

// payload 返回 size 字节的确定性内容。
func payload(size int) []byte {
	b := make([]byte, max(size, 0))
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}
