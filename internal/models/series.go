// Package models contains data structures used throughout the application
package models

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// MsgAnnounceMeal is the message type of a ground-truth meal record
const MsgAnnounceMeal = "ANNOUNCE_MEAL"

// ErrDuplicateTimestamp is returned when two records share the same instant
var ErrDuplicateTimestamp = errors.New("duplicate timestamp")

// Record is a single row of a patient event series.
// MsgType and FoodG are ground truth and are never written by the obfuscator;
// Logged and Shifted are the derived as-logged columns (nil = empty cell).
type Record struct {
	Time    time.Time
	MsgType string
	FoodG   float64 // Grams of carbohydrate, only meaningful when HasFood is set
	HasFood bool

	Logged  *string // msg_type_log
	Shifted *string // msg_type_log_shifted

	// Raw holds every upstream cell verbatim, in Series.Header order
	Raw []string
}

// IsMeal returns true if the ground-truth type is a meal announcement
func (r *Record) IsMeal() bool {
	return r.MsgType == MsgAnnounceMeal
}

// IsLoggedMeal returns true if the as-logged type is a meal announcement
func (r *Record) IsLoggedMeal() bool {
	return r.Logged != nil && *r.Logged == MsgAnnounceMeal
}

// IsShiftedMeal returns true if the shifted type is a meal announcement
func (r *Record) IsShiftedMeal() bool {
	return r.Shifted != nil && *r.Shifted == MsgAnnounceMeal
}

// Series is one patient's event log, ordered by strictly increasing time
type Series struct {
	Patient string
	// Header names the columns carried in Record.Raw
	Header  []string
	Records []Record
}

// Len returns the number of records
func (s *Series) Len() int {
	return len(s.Records)
}

// Sort orders the records by time
func (s *Series) Sort() {
	sort.SliceStable(s.Records, func(i, j int) bool {
		return s.Records[i].Time.Before(s.Records[j].Time)
	})
}

// Validate checks that timestamps are unique and sorted
func (s *Series) Validate() error {
	for i := 1; i < len(s.Records); i++ {
		prev, cur := s.Records[i-1].Time, s.Records[i].Time
		if cur.Equal(prev) {
			return errors.Wrapf(ErrDuplicateTimestamp, "row %d: %s", i, cur.Format(time.RFC3339))
		}
		if cur.Before(prev) {
			return errors.Errorf("row %d: %s is before %s", i, cur.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	return nil
}

// Bounds returns the first and last timestamp of the series
func (s *Series) Bounds() (time.Time, time.Time) {
	if len(s.Records) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Records[0].Time, s.Records[len(s.Records)-1].Time
}

// Contains reports whether t lies inside [t_min, t_max]
func (s *Series) Contains(t time.Time) bool {
	if len(s.Records) == 0 {
		return false
	}
	lo, hi := s.Bounds()
	return !t.Before(lo) && !t.After(hi)
}

// Nearest returns the index of the record closest in time to t.
// On an exact tie between two neighbours the later record wins.
// Returns -1 for an empty series.
func (s *Series) Nearest(t time.Time) int {
	n := len(s.Records)
	if n == 0 {
		return -1
	}

	// First index with Time >= t
	right := sort.Search(n, func(i int) bool {
		return !s.Records[i].Time.Before(t)
	})
	if right == 0 {
		return 0
	}
	if right == n {
		return n - 1
	}

	left := right - 1
	if t.Sub(s.Records[left].Time) < s.Records[right].Time.Sub(t) {
		return left
	}
	return right
}

// MealIndices returns the indices of ground-truth meal records
func (s *Series) MealIndices() []int {
	var idx []int
	for i := range s.Records {
		if s.Records[i].IsMeal() {
			idx = append(idx, i)
		}
	}
	return idx
}

// MealCount returns the number of ground-truth meal records
func (s *Series) MealCount() int {
	return len(s.MealIndices())
}

// LoggedMealCount returns the number of as-logged meal records
func (s *Series) LoggedMealCount() int {
	count := 0
	for i := range s.Records {
		if s.Records[i].IsLoggedMeal() {
			count++
		}
	}
	return count
}

// ShiftedMealCount returns the number of shifted meal records
func (s *Series) ShiftedMealCount() int {
	count := 0
	for i := range s.Records {
		if s.Records[i].IsShiftedMeal() {
			count++
		}
	}
	return count
}

// ResetDerived clears both derived columns
func (s *Series) ResetDerived() {
	for i := range s.Records {
		s.Records[i].Logged = nil
		s.Records[i].Shifted = nil
	}
}

// StringPtr returns a pointer to a copy of v
func StringPtr(v string) *string {
	return &v
}
