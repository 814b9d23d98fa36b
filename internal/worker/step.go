package worker

import (
	"math/rand/v2"

	"yqhp/bench-engine/internal/target"
)

// Builder produces the operation for one iteration of a worker.
type Builder func(rng *rand.Rand, workerID, iteration int) target.Operation

// Step is one weighted entry of a workload.
type Step struct {
	Name          string
	Weight        float64
	NeedsResource bool
	Build         Builder
}

// Static returns a builder that always yields op.
func Static(op target.Operation) Builder {
	return func(*rand.Rand, int, int) target.Operation {
		return op
	}
}

// picker selects steps either by weight or in declared order.
type picker struct {
	steps      []Step
	cumulative []float64
	total      float64
	sequential bool
}

func newPicker(steps []Step, sequential bool) (*picker, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	p := &picker{steps: steps, sequential: sequential, cumulative: make([]float64, len(steps))}
	for i, s := range steps {
		if s.Build == nil {
			return nil, ErrNilBuilder
		}
		w := s.Weight
		if w < 0 {
			return nil, ErrInvalidWeights
		}
		if !sequential && len(steps) == 1 && w == 0 {
			w = 1
		}
		p.total += w
		p.cumulative[i] = p.total
	}
	if !sequential && p.total <= 0 {
		return nil, ErrInvalidWeights
	}
	return p, nil
}

func (p *picker) pick(rng *rand.Rand, iteration int) *Step {
	if p.sequential || len(p.steps) == 1 {
		return &p.steps[iteration%len(p.steps)]
	}
	r := rng.Float64() * p.total
	for i, c := range p.cumulative {
		if r < c {
			return &p.steps[i]
		}
	}
	return &p.steps[len(p.steps)-1]
}
