package suite

import (
	"github.com/duke-git/lancet/v2/slice"

	"yqhp/bench-engine/internal/config"
)

// Plan 执行计划：拓扑顺序以及每个场景需要等待的前置场景。
type Plan struct {
	Order []string
	// Wait 只包含在 Order 中排在前面的依赖，保证并行执行不会死锁
	Wait map[string][]string
	// Unresolved 因循环依赖按声明顺序追加的场景
	Unresolved []string
}

// ResolveOrder 对启用的场景做 Kahn 拓扑排序，同一轮中按声明顺序选取。
// 依赖跳过的场景视为已满足；存在循环时剩余场景按声明顺序追加，不会阻塞。
func ResolveOrder(scenarios []config.ScenarioConfig) Plan {
	enabled := slice.Filter(scenarios, func(_ int, sc config.ScenarioConfig) bool { return !sc.Skip })
	names := slice.Map(enabled, func(_ int, sc config.ScenarioConfig) string { return sc.Name })

	pending := make(map[string]map[string]bool, len(enabled))
	for _, sc := range enabled {
		deps := make(map[string]bool)
		for _, d := range sc.DependsOn {
			if d != sc.Name && slice.Contain(names, d) {
				deps[d] = true
			}
		}
		pending[sc.Name] = deps
	}

	plan := Plan{Wait: make(map[string][]string, len(enabled))}
	placed := make(map[string]bool, len(enabled))
	for len(plan.Order) < len(names) {
		next := ""
		for _, n := range names {
			if !placed[n] && len(pending[n]) == 0 {
				next = n
				break
			}
		}
		if next == "" {
			break
		}
		placed[next] = true
		plan.Order = append(plan.Order, next)
		for _, n := range names {
			delete(pending[n], next)
		}
	}
	for _, n := range names {
		if !placed[n] {
			placed[n] = true
			plan.Order = append(plan.Order, n)
			plan.Unresolved = append(plan.Unresolved, n)
		}
	}

	position := make(map[string]int, len(plan.Order))
	for i, n := range plan.Order {
		position[n] = i
	}
	for _, sc := range enabled {
		for _, d := range slice.Unique(sc.DependsOn) {
			if p, ok := position[d]; ok && p < position[sc.Name] {
				plan.Wait[sc.Name] = append(plan.Wait[sc.Name], d)
			}
		}
	}
	return plan
}
