package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DistSpec parameterizes a sampled quantity (tonnage, grade, lead time, cost).
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// Sampler draws non-negative values from a distribution.
type Sampler interface {
	// Sample returns a finite value >= 0.
	Sample(rng *rand.Rand) float64
}

// ConstantSampler always returns the same fixed value and never consumes a draw.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(_ *rand.Rand) float64 {
	return math.Max(0, s.value)
}

// UniformSampler draws uniformly from [min, max).
type UniformSampler struct {
	min, max float64
}

func (s *UniformSampler) Sample(rng *rand.Rand) float64 {
	return math.Max(0, s.min+rng.Float64()*(s.max-s.min))
}

// GaussianSampler produces clamped Gaussian values.
type GaussianSampler struct {
	mean, stdDev float64
	min, max     float64
}

func (s *GaussianSampler) Sample(rng *rand.Rand) float64 {
	if s.min == s.max {
		return math.Max(0, s.min)
	}
	val := rng.NormFloat64()*s.stdDev + s.mean
	return math.Max(0, math.Min(s.max, math.Max(s.min, val)))
}

// LogNormalSampler draws multiplier * exp(mu + sigma*Z), capped at max when max > 0.
type LogNormalSampler struct {
	mu, sigma  float64
	multiplier float64
	max        float64
}

func (s *LogNormalSampler) Sample(rng *rand.Rand) float64 {
	val := s.multiplier * math.Exp(s.mu+s.sigma*rng.NormFloat64())
	// Guard against +Inf from extreme sigma values
	if math.IsInf(val, 0) || math.IsNaN(val) {
		if s.max > 0 {
			return s.max
		}
		return 0
	}
	if s.max > 0 && val > s.max {
		return s.max
	}
	return math.Abs(val)
}

// ExponentialSampler produces exponentially-distributed values.
type ExponentialSampler struct {
	mean float64
}

func (s *ExponentialSampler) Sample(rng *rand.Rand) float64 {
	return rng.ExpFloat64() * s.mean
}

// EmpiricalSampler samples from a discrete distribution using inverse CDF via
// binary search.
type EmpiricalSampler struct {
	values []float64 // sorted support
	cdf    []float64 // cumulative probabilities (same length as values)
}

// NewEmpiricalSampler creates a sampler from a value → probability map.
// Automatically normalizes probabilities if they don't sum to 1.0.
func NewEmpiricalSampler(pdf map[float64]float64) *EmpiricalSampler {
	keys := make([]float64, 0, len(pdf))
	for k := range pdf {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	total := 0.0
	for _, k := range keys {
		if pdf[k] > 0 {
			total += pdf[k]
		}
	}

	values := make([]float64, 0, len(keys))
	cdf := make([]float64, 0, len(keys))
	cumulative := 0.0
	for _, k := range keys {
		p := pdf[k]
		if p <= 0 {
			continue
		}
		cumulative += p / total
		values = append(values, k)
		cdf = append(cdf, cumulative)
	}
	if len(cdf) > 0 {
		cdf[len(cdf)-1] = 1.0
	}
	return &EmpiricalSampler{values: values, cdf: cdf}
}

func (s *EmpiricalSampler) Sample(rng *rand.Rand) float64 {
	if len(s.values) == 0 {
		return 0
	}
	if len(s.values) == 1 {
		return math.Max(0, s.values[0])
	}
	idx := sort.SearchFloat64s(s.cdf, rng.Float64())
	if idx >= len(s.values) {
		idx = len(s.values) - 1
	}
	return math.Max(0, s.values[idx])
}

// validDistTypes lists the recognized distribution types.
var validDistTypes = map[string]bool{
	"constant": true, "uniform": true, "gaussian": true, "lognormal": true, "exponential": true, "empirical": true,
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewSampler creates a Sampler from a DistSpec.
func NewSampler(spec DistSpec) (Sampler, error) {
	for name, val := range spec.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("params.%s must be a finite number, got %f", name, val)
		}
	}
	switch spec.Type {
	case "constant":
		if err := requireParam(spec.Params, "value"); err != nil {
			return nil, err
		}
		return &ConstantSampler{value: spec.Params["value"]}, nil

	case "uniform":
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		if spec.Params["max"] < spec.Params["min"] {
			return nil, fmt.Errorf("uniform max %f below min %f", spec.Params["max"], spec.Params["min"])
		}
		return &UniformSampler{min: spec.Params["min"], max: spec.Params["max"]}, nil

	case "gaussian":
		if err := requireParam(spec.Params, "mean", "std_dev", "min", "max"); err != nil {
			return nil, err
		}
		return &GaussianSampler{
			mean:   spec.Params["mean"],
			stdDev: spec.Params["std_dev"],
			min:    spec.Params["min"],
			max:    spec.Params["max"],
		}, nil

	case "lognormal":
		if err := requireParam(spec.Params, "mu", "sigma"); err != nil {
			return nil, err
		}
		multiplier := 1.0
		if m, ok := spec.Params["multiplier"]; ok {
			multiplier = m
		}
		return &LogNormalSampler{
			mu:         spec.Params["mu"],
			sigma:      spec.Params["sigma"],
			multiplier: multiplier,
			max:        spec.Params["max"],
		}, nil

	case "exponential":
		if err := requireParam(spec.Params, "mean"); err != nil {
			return nil, err
		}
		return &ExponentialSampler{mean: spec.Params["mean"]}, nil

	case "empirical":
		// Params keys are ignored for ordering; values are read as "v<i>"/"p<i>" pairs.
		pdf := make(map[float64]float64)
		for i := 0; ; i++ {
			v, okV := spec.Params[fmt.Sprintf("v%d", i)]
			p, okP := spec.Params[fmt.Sprintf("p%d", i)]
			if !okV || !okP {
				break
			}
			pdf[v] += p
		}
		if len(pdf) == 0 {
			return nil, fmt.Errorf("empirical distribution has no v0/p0 bins")
		}
		return NewEmpiricalSampler(pdf), nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q%s", spec.Type, suggest(spec.Type, validNames(validDistTypes)))
	}
}
