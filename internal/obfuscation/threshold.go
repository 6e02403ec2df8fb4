// Package obfuscation turns a ground-truth meal log into a simulated self-reported log
package obfuscation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/mrcode/meal-obfuscator/internal/models"
)

// ErrNoMeals is returned when a series has no sized meal records to threshold
var ErrNoMeals = errors.New("series has no meal records")

// Period is the grouping window used to measure a meal rate
type Period int

// Grouping windows
const (
	Daily Period = iota
	Weekly
)

func (p Period) String() string {
	if p == Weekly {
		return "weekly"
	}
	return "daily"
}

// periodKey returns the calendar day or the ISO (year, week) of t
func periodKey(t time.Time, period Period) string {
	if period == Weekly {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	}
	return t.Format("2006-01-02")
}

// MealRate returns the mean number of meal records per non-empty period
func MealRate(series *models.Series, period Period) (float64, error) {
	meals := series.MealIndices()
	if len(meals) == 0 {
		return 0, ErrNoMeals
	}

	// Records are time ordered, so every period forms one contiguous run
	var counts stats.Float64Data
	prev := ""
	for _, i := range meals {
		key := periodKey(series.Records[i].Time, period)
		if len(counts) == 0 || key != prev {
			counts = append(counts, 0)
			prev = key
		}
		counts[len(counts)-1]++
	}

	return stats.Mean(counts)
}

// EstimateThreshold returns the food_g cutoff which, when every smaller meal is
// dropped, leaves on average targetRate meals per period. The cutoff is an
// empirical percentile of the patient's own meal sizes.
func EstimateThreshold(series *models.Series, period Period, targetRate float64) (float64, error) {
	if targetRate <= 0 {
		return 0, errors.Errorf("target rate must be positive, got %f", targetRate)
	}

	avg, err := MealRate(series, period)
	if err != nil {
		return 0, err
	}

	var sizes []float64
	for _, i := range series.MealIndices() {
		if r := &series.Records[i]; r.HasFood {
			sizes = append(sizes, r.FoodG)
		}
	}
	if len(sizes) == 0 {
		return 0, ErrNoMeals
	}

	p := (1 - targetRate/avg) * 100
	return Percentile(sizes, p), nil
}

// Percentile returns the p-th percentile of values using linear interpolation
// between closest ranks, h = (n-1)*p/100. p is clamped to [0, 100].
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p = math.Max(0, math.Min(100, p))
	h := float64(n-1) * p / 100
	lower := math.Floor(h)
	i := int(lower)
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-lower)*(sorted[i+1]-sorted[i])
}
