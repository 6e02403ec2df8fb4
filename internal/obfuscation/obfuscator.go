package obfuscation

import (
	"math/rand/v2"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/mrcode/meal-obfuscator/internal/models"
)

// Config holds everything the two-stage pipeline needs
type Config struct {
	OmissionBuckets models.Buckets
	TimingBuckets   models.Buckets
	Omission        OmissionOptions
	Timing          models.TimingRanges

	// Forced policies skip the bucket lookup; the draws are still consumed
	ForceOmission *models.OmissionPolicy
	ForceTiming   *models.TimingHabit
}

// ConfigFromSettings builds a pipeline config from application settings
func ConfigFromSettings(s *models.Settings) (Config, error) {
	s = s.Clone()

	cfg := Config{
		OmissionBuckets: s.OmissionBuckets,
		TimingBuckets:   s.TimingBuckets,
		Omission: OmissionOptions{
			DailyTargetRate:  s.DailyTargetRate,
			WeeklyTargetRate: s.WeeklyTargetRate,
		},
		Timing: s.Timing,
	}

	if s.ForceOmission != "" {
		p, err := models.ParseOmissionPolicy(s.ForceOmission)
		if err != nil {
			return cfg, err
		}
		cfg.ForceOmission = &p
	}
	if s.ForceTiming != "" {
		h, err := models.ParseTimingHabit(s.ForceTiming)
		if err != nil {
			return cfg, err
		}
		cfg.ForceTiming = &h
	}

	return cfg, nil
}

// Stats summarises one patient's obfuscation
type Stats struct {
	TrueMeals    int
	LoggedMeals  int
	ShiftedMeals int

	Threshold   float64
	Thresholded bool

	OutOfWindow      int
	Collisions       int
	MeanDisplacement float64 // Minutes, 0 when nothing was displaced
}

// Result is the outcome of Obfuscate
type Result struct {
	Omission models.OmissionPolicy
	Timing   models.TimingHabit
	Stats    Stats
}

// OmissionLabel returns the omission label for file names
func (r *Result) OmissionLabel() string {
	return r.Omission.Label()
}

// TimingLabel returns the timing label for file names
func (r *Result) TimingLabel() string {
	return r.Timing.Label()
}

// Obfuscator runs omission followed by timing displacement on a series
type Obfuscator struct {
	cfg Config
}

// New creates an Obfuscator
func New(cfg Config) *Obfuscator {
	return &Obfuscator{cfg: cfg}
}

// DrawPolicies draws one omission policy and one timing habit from src
func (o *Obfuscator) DrawPolicies(src rand.Source) (models.OmissionPolicy, models.TimingHabit, error) {
	rng := rand.New(src)
	uOmission, uTiming := rng.Float64(), rng.Float64()

	omission, err := o.cfg.OmissionBuckets.PickOmission(uOmission)
	if err != nil {
		return 0, 0, err
	}
	timing, err := o.cfg.TimingBuckets.PickTiming(uTiming)
	if err != nil {
		return 0, 0, err
	}

	if o.cfg.ForceOmission != nil {
		omission = *o.cfg.ForceOmission
	}
	if o.cfg.ForceTiming != nil {
		timing = *o.cfg.ForceTiming
	}
	return omission, timing, nil
}

// Obfuscate draws the patient's policies from src and fills in both derived
// columns of series. src must not be shared with another goroutine.
func (o *Obfuscator) Obfuscate(series *models.Series, src rand.Source) (*Result, error) {
	omission, timing, err := o.DrawPolicies(src)
	if err != nil {
		return nil, err
	}
	return o.Apply(series, omission, timing, src)
}

// Apply runs both stages with fixed policies
func (o *Obfuscator) Apply(series *models.Series, omission models.OmissionPolicy, timing models.TimingHabit, src rand.Source) (*Result, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}

	omitted, err := ApplyOmission(series, omission, o.cfg.Omission)
	if err != nil {
		return nil, errors.Wrap(err, "omission")
	}

	shifted, err := ApplyTiming(series, timing, NewSampler(src, o.cfg.Timing))
	if err != nil {
		return nil, errors.Wrap(err, "timing")
	}

	res := &Result{
		Omission: omission,
		Timing:   timing,
		Stats: Stats{
			TrueMeals:    series.MealCount(),
			LoggedMeals:  series.LoggedMealCount(),
			ShiftedMeals: series.ShiftedMealCount(),
			Threshold:    omitted.Threshold,
			Thresholded:  omitted.Thresholded,
			OutOfWindow:  shifted.OutOfWindow,
			Collisions:   shifted.Collisions,
		},
	}

	if len(shifted.Displacements) > 0 {
		mean, err := stats.Mean(shifted.Displacements)
		if err != nil {
			return nil, errors.Wrap(err, "mean displacement")
		}
		res.Stats.MeanDisplacement = mean
	}

	return res, nil
}
