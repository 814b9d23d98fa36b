package config

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"yqhp/bench-engine/pkg/types"
)

func genScenario() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf(
			types.ScenarioLoad, types.ScenarioStress, types.ScenarioCache, types.ScenarioDatabase,
			types.ScenarioAPI, types.ScenarioMemory, types.ScenarioScalability,
		),
		gen.IntRange(0, 500),
		gen.IntRange(0, 20),
	).Map(func(vals []any) ScenarioConfig {
		return ScenarioConfig{
			Type:      vals[0].(types.ScenarioType),
			Users:     vals[1].(int),
			RampSteps: vals[2].(int),
			API:       APIParams{Endpoints: []EndpointConfig{{Path: "/a"}}},
		}
	})
}

func TestApplyDefaultsIdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("applying defaults twice changes nothing", prop.ForAll(
		func(s ScenarioConfig) bool {
			s.applyDefaults()
			once := s
			once.API.Endpoints = append([]EndpointConfig(nil), s.API.Endpoints...)
			once.Scalability.Levels = append([]int(nil), s.Scalability.Levels...)
			s.applyDefaults()
			return reflect.DeepEqual(once.API.Endpoints, s.API.Endpoints) &&
				reflect.DeepEqual(once.Scalability.Levels, s.Scalability.Levels) &&
				once.Name == s.Name && once.Target == s.Target &&
				once.RampSteps == s.RampSteps && once.Cache == s.Cache &&
				once.Database == s.Database && once.BreakingPoint == s.BreakingPoint
		},
		genScenario(),
	))

	properties.Property("defaulted scenarios always have a positive ramp", prop.ForAll(
		func(s ScenarioConfig) bool {
			s.applyDefaults()
			return s.RampSteps > 0 && s.StepDuration > 0 && s.SampleInterval > 0 && s.Name != ""
		},
		genScenario(),
	))

	properties.TestingRun(t)
}

func TestCmdOverrideProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("scenario override sets exactly the requested value", prop.ForAll(
		func(users int) bool {
			cfg := DefaultConfig()
			cfg.Scenarios = []ScenarioConfig{{Name: "a", Type: types.ScenarioLoad, Users: 1}, {Name: "b", Type: types.ScenarioLoad, Users: 1}}
			if err := setConfigValue(cfg, "scenarios.b.users", strconv.Itoa(users)); err != nil {
				return false
			}
			return cfg.Scenarios[1].Users == users && cfg.Scenarios[0].Users == 1
		},
		gen.IntRange(-1000, 1000),
	))

	properties.TestingRun(t)
}
