package obfuscation

import (
	"time"

	"github.com/mrcode/meal-obfuscator/internal/models"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type meal struct {
	at    time.Time
	grams float64
}

// buildSeries returns a 5-minute glucose grid over [start, end] with the
// given meals placed on their grid slots
func buildSeries(start, end time.Time, meals ...meal) *models.Series {
	s := &models.Series{Patient: "test"}
	byTime := make(map[time.Time]float64, len(meals))
	for _, m := range meals {
		byTime[m.at] = m.grams
	}

	for t := start; !t.After(end); t = t.Add(5 * time.Minute) {
		rec := models.Record{Time: t, MsgType: "GLUCOSE"}
		if grams, ok := byTime[t]; ok {
			rec.MsgType = models.MsgAnnounceMeal
			rec.FoodG = grams
			rec.HasFood = true
		}
		s.Records = append(s.Records, rec)
	}
	return s
}

// dailyMeals places one meal per size on each of days, one hour apart from 07:00
func dailyMeals(days int, sizes ...float64) []meal {
	var meals []meal
	for d := 0; d < days; d++ {
		for i, g := range sizes {
			meals = append(meals, meal{at: day0.AddDate(0, 0, d).Add(time.Duration(7+i) * time.Hour), grams: g})
		}
	}
	return meals
}

func loggedMeals(s *models.Series) []time.Time {
	var out []time.Time
	for i := range s.Records {
		if s.Records[i].IsLoggedMeal() {
			out = append(out, s.Records[i].Time)
		}
	}
	return out
}
