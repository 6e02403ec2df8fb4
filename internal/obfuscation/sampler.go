package obfuscation

import (
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mrcode/meal-obfuscator/internal/models"
)

// Lower-tail anchors of the skewed displacement distributions
const (
	leftSkewAnchor  = 0.05
	rightSkewAnchor = 0.01
)

// NewSource returns a deterministic random source for one patient, derived
// from the run seed and the patient key
func NewSource(seed uint64, key string) rand.Source {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.NewPCG(seed, h.Sum64())
}

// TimingParams is one freshly drawn displacement distribution
type TimingParams struct {
	Habit models.TimingHabit

	// Normal habit
	Mean float64
	Std  float64

	// Skewed habits
	Shape  float64
	Scale  float64
	Offset float64
}

// Sampler draws per-meal displacement distributions and displacements
type Sampler struct {
	src    rand.Source
	ranges models.TimingRanges
}

// NewSampler creates a sampler reading from src
func NewSampler(src rand.Source, ranges models.TimingRanges) *Sampler {
	return &Sampler{src: src, ranges: ranges}
}

func (s *Sampler) uniform(r models.Range) float64 {
	if r.Min == r.Max {
		return r.Min
	}
	return distuv.Uniform{Min: r.Min, Max: r.Max, Src: s.src}.Rand()
}

// Sample draws a new set of distribution parameters for habit.
// Every call perturbs the hyper-parameters independently.
func (s *Sampler) Sample(habit models.TimingHabit) (TimingParams, error) {
	p := TimingParams{Habit: habit}

	switch habit {
	case models.TimingNormal:
		p.Mean = s.uniform(s.ranges.Normal.Mean)
		p.Std = s.uniform(s.ranges.Normal.Std)
	case models.TimingLeftSkew:
		p.Shape = s.uniform(s.ranges.LeftSkew.Shape)
		p.Scale = s.uniform(s.ranges.LeftSkew.Scale)
		p.Offset = s.uniform(s.ranges.LeftSkew.Offset)
	case models.TimingRightSkew:
		p.Shape = s.uniform(s.ranges.RightSkew.Shape)
		p.Scale = s.uniform(s.ranges.RightSkew.Scale)
		p.Offset = s.uniform(s.ranges.RightSkew.Offset)
	default:
		return p, errors.Errorf("habit %s has no displacement distribution", habit)
	}

	return p, nil
}

// GammaMedian approximates the median of Gamma(shape, scale) with Wilson-Hilferty
func GammaMedian(shape, scale float64) float64 {
	return shape * scale * math.Pow(1-2/(9*shape), 3)
}

// Displacement draws one displacement in minutes from the distribution p.
// Skewed draws are re-centred on the distribution median: the early-logging
// case subtracts only half of it and anchors on a higher quantile.
func (s *Sampler) Displacement(p TimingParams) float64 {
	if p.Habit == models.TimingNormal {
		return distuv.Normal{Mu: p.Mean, Sigma: p.Std, Src: s.src}.Rand()
	}

	g := distuv.Gamma{Alpha: p.Shape, Beta: 1 / p.Scale, Src: s.src}
	raw := g.Rand()
	median := GammaMedian(p.Shape, p.Scale)

	if p.Habit == models.TimingLeftSkew {
		return raw + g.Quantile(leftSkewAnchor) + p.Offset - median/2
	}
	return raw + g.Quantile(rightSkewAnchor) + p.Offset - median
}

// Draw samples fresh parameters for habit and one displacement from them
func (s *Sampler) Draw(habit models.TimingHabit) (float64, TimingParams, error) {
	p, err := s.Sample(habit)
	if err != nil {
		return 0, p, err
	}
	return s.Displacement(p), p, nil
}
