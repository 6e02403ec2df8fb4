package obfuscation

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/mrcode/meal-obfuscator/internal/models"
)

// OmissionOptions are the report-rate targets of the threshold policies
type OmissionOptions struct {
	DailyTargetRate  float64
	WeeklyTargetRate float64
}

// DefaultOmissionOptions returns 1.8 meals/day and 3 meals/week
func DefaultOmissionOptions() OmissionOptions {
	return OmissionOptions{DailyTargetRate: 1.8, WeeklyTargetRate: 3}
}

// OmissionResult describes what ApplyOmission did
type OmissionResult struct {
	Policy models.OmissionPolicy
	Label  string

	// Threshold is the food_g cutoff used by top2 and weekly; valid when Thresholded is set
	Threshold   float64
	Thresholded bool
}

// ApplyOmission writes the as-logged column of series according to policy.
// The ground-truth columns are left untouched.
func ApplyOmission(series *models.Series, policy models.OmissionPolicy, opts OmissionOptions) (OmissionResult, error) {
	res := OmissionResult{Policy: policy, Label: policy.Label()}

	// Start from a copy of the ground truth
	for i := range series.Records {
		r := &series.Records[i]
		r.Logged = nil
		if r.MsgType != "" {
			r.Logged = models.StringPtr(r.MsgType)
		}
	}

	switch policy {
	case models.OmissionFull:
		return res, nil

	case models.OmissionTopTwoPerDay:
		return dropBelowThreshold(series, Daily, opts.DailyTargetRate, res)

	case models.OmissionTopOnePerDay:
		keepDailyTopMeal(series)
		return res, nil

	case models.OmissionFewPerWeek:
		return dropBelowThreshold(series, Weekly, opts.WeeklyTargetRate, res)

	case models.OmissionNone:
		for i := range series.Records {
			series.Records[i].Logged = nil
		}
		return res, nil
	}

	return res, errors.Errorf("unknown omission policy %d", int(policy))
}

// dropBelowThreshold nulls every logged meal lighter than the rate threshold.
// A patient without meals has nothing to drop.
func dropBelowThreshold(series *models.Series, period Period, rate float64, res OmissionResult) (OmissionResult, error) {
	threshold, err := EstimateThreshold(series, period, rate)
	if errors.Is(err, ErrNoMeals) {
		return res, nil
	}
	if err != nil {
		return res, errors.Wrapf(err, "%s threshold", period)
	}

	res.Threshold = threshold
	res.Thresholded = true

	for _, i := range series.MealIndices() {
		r := &series.Records[i]
		if r.HasFood && r.FoodG < threshold {
			r.Logged = nil
		}
	}
	return res, nil
}

// keepDailyTopMeal keeps only the largest meal of each calendar day.
// On equal sizes the earliest meal is kept.
func keepDailyTopMeal(series *models.Series) {
	byDay := lo.GroupBy(series.MealIndices(), func(i int) string {
		return periodKey(series.Records[i].Time, Daily)
	})

	for _, meals := range byDay {
		if len(meals) == 0 {
			continue
		}

		top := lo.MaxBy(meals, func(a, b int) bool {
			return mealSize(&series.Records[a]) > mealSize(&series.Records[b])
		})

		for _, i := range meals {
			if i != top {
				series.Records[i].Logged = nil
			}
		}
	}
}

// mealSize treats a missing food_g as smaller than any recorded size
func mealSize(r *models.Record) float64 {
	if !r.HasFood {
		return -1
	}
	return r.FoodG
}
