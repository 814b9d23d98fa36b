package suite

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/pkg/types"
)

// scenarios 由 "name:dep1,dep2" 形式的描述构造场景列表。
func scenarios(specs ...string) []config.ScenarioConfig {
	out := make([]config.ScenarioConfig, 0, len(specs))
	for _, s := range specs {
		name, deps, _ := strings.Cut(s, ":")
		sc := config.ScenarioConfig{Name: name, Type: types.ScenarioLoad}
		if deps != "" {
			sc.DependsOn = strings.Split(deps, ",")
		}
		out = append(out, sc)
	}
	return out
}

func TestResolveOrder(t *testing.T) {
	t.Run("declared order without dependencies", func(t *testing.T) {
		plan := ResolveOrder(scenarios("a", "b", "c"))
		assert.Equal(t, []string{"a", "b", "c"}, plan.Order)
		assert.Empty(t, plan.Unresolved)
	})

	t.Run("dependencies first with declared tie-break", func(t *testing.T) {
		plan := ResolveOrder(scenarios("a:c", "b", "c", "d:a,b"))
		assert.Equal(t, []string{"b", "c", "a", "d"}, plan.Order)
		assert.Equal(t, []string{"c"}, plan.Wait["a"])
		assert.ElementsMatch(t, []string{"a", "b"}, plan.Wait["d"])
		assert.Empty(t, plan.Wait["b"])
	})

	t.Run("cycle falls back to declared order", func(t *testing.T) {
		plan := ResolveOrder(scenarios("x", "a:b", "b:a", "c"))
		assert.Equal(t, []string{"x", "c", "a", "b"}, plan.Order)
		assert.Equal(t, []string{"a", "b"}, plan.Unresolved)
		assert.Empty(t, plan.Wait["a"], "a waits on nothing placed before it")
		assert.Equal(t, []string{"a"}, plan.Wait["b"])
	})

	t.Run("skipped dependencies are satisfied", func(t *testing.T) {
		scs := scenarios("a:b", "b")
		scs[1].Skip = true
		plan := ResolveOrder(scs)
		assert.Equal(t, []string{"a"}, plan.Order)
		assert.Empty(t, plan.Wait["a"])
	})
}

// 任意依赖图下：每个启用场景恰好出现一次；可解析的依赖总是排在前面。
func TestResolveOrderProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		scs := make([]config.ScenarioConfig, n)
		for i := range scs {
			scs[i] = config.ScenarioConfig{Name: fmt.Sprintf("s%d", i), Type: types.ScenarioLoad}
			scs[i].Skip = rapid.IntRange(0, 5).Draw(t, fmt.Sprintf("skip%d", i)) == 0
			deps := rapid.SliceOfDistinct(rapid.IntRange(0, n-1), rapid.ID[int]).Draw(t, fmt.Sprintf("deps%d", i))
			for _, d := range deps {
				scs[i].DependsOn = append(scs[i].DependsOn, fmt.Sprintf("s%d", d))
			}
		}

		plan := ResolveOrder(scs)

		var enabled []string
		for _, sc := range scs {
			if !sc.Skip {
				enabled = append(enabled, sc.Name)
			}
		}
		got := slices.Clone(plan.Order)
		slices.Sort(got)
		slices.Sort(enabled)
		if !slices.Equal(got, enabled) {
			t.Fatalf("order %v does not cover enabled %v", plan.Order, enabled)
		}

		pos := map[string]int{}
		for i, name := range plan.Order {
			pos[name] = i
		}
		for name, wait := range plan.Wait {
			for _, dep := range wait {
				if pos[dep] >= pos[name] {
					t.Fatalf("%s waits on %s which is not placed before it", name, dep)
				}
			}
		}
		if len(plan.Unresolved) == 0 {
			for _, sc := range scs {
				if sc.Skip {
					continue
				}
				for _, dep := range sc.DependsOn {
					if p, ok := pos[dep]; ok && dep != sc.Name && p > pos[sc.Name] {
						t.Fatalf("acyclic graph placed %s after its dependent %s", dep, sc.Name)
					}
				}
			}
		}
	})
}

func TestComputeScore(t *testing.T) {
	results := map[string]*types.ScenarioResult{
		"load-a": {Type: types.ScenarioLoad, PerformanceScore: 80},
		"load-b": {Type: types.ScenarioLoad, PerformanceScore: 100},
		"cache":  {Type: types.ScenarioCache, PerformanceScore: 70},
	}
	score := ComputeScore(results)
	assert.Equal(t, 90.0, score.Categories["load"])
	assert.Equal(t, 70.0, score.Categories["cache"])
	assert.InDelta(t, (25*90.0+10*70.0)/35, score.Overall, 0.01)
	assert.Equal(t, types.GradeB, score.Grade)
	assert.Equal(t, 25.0, score.Weights["load"])

	empty := ComputeScore(nil)
	assert.Zero(t, empty.Overall)
	assert.Equal(t, types.GradeF, empty.Grade)
}
