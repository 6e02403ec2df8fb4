package obfuscation

import (
	"time"

	"github.com/pkg/errors"

	"github.com/mrcode/meal-obfuscator/internal/models"
)

// TimingResult describes what ApplyTiming did
type TimingResult struct {
	Habit models.TimingHabit
	Label string

	// Displacements holds every drawn shift in minutes, in meal order
	Displacements []float64
	OutOfWindow   int // Shifted past t_min/t_max and dropped
	Collisions    int // Landed on a slot already marked by an earlier meal
}

// ApplyTiming writes the shifted column of series from its as-logged column.
// Each logged meal gets its own displacement, reprojected onto the nearest
// existing timestamp. Meals shifted outside the observed window are dropped.
// When two meals land on the same slot the later one overwrites the earlier.
func ApplyTiming(series *models.Series, habit models.TimingHabit, sampler *Sampler) (TimingResult, error) {
	res := TimingResult{Habit: habit, Label: habit.Label()}

	if habit == models.TimingUnchanged {
		for i := range series.Records {
			r := &series.Records[i]
			r.Shifted = nil
			if r.Logged != nil {
				r.Shifted = models.StringPtr(*r.Logged)
			}
		}
		return res, nil
	}

	if sampler == nil {
		return res, errors.New("sampler is required for shifted timing habits")
	}

	var logged []int
	for i := range series.Records {
		series.Records[i].Shifted = nil
		if series.Records[i].IsLoggedMeal() {
			logged = append(logged, i)
		}
	}

	for _, i := range logged {
		minutes, _, err := sampler.Draw(habit)
		if err != nil {
			return res, err
		}
		res.Displacements = append(res.Displacements, minutes)

		target := series.Records[i].Time.Add(time.Duration(minutes * float64(time.Minute)))
		if !series.Contains(target) {
			res.OutOfWindow++
			continue
		}

		slot := &series.Records[series.Nearest(target)]
		if slot.IsShiftedMeal() {
			res.Collisions++
		}
		slot.Shifted = models.StringPtr(models.MsgAnnounceMeal)
	}

	return res, nil
}
