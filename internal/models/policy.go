// Package models contains data structures used throughout the application
package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// OmissionPolicy describes how many of a patient's true meals end up in the log
type OmissionPolicy int

// Omission policies, in bucket order
const (
	OmissionFull OmissionPolicy = iota
	OmissionTopTwoPerDay
	OmissionTopOnePerDay
	OmissionFewPerWeek
	OmissionNone
)

var omissionLabels = []string{"full", "top2", "once", "weekly", "none"}

// OmissionPolicies lists every omission policy in bucket order
var OmissionPolicies = []OmissionPolicy{
	OmissionFull,
	OmissionTopTwoPerDay,
	OmissionTopOnePerDay,
	OmissionFewPerWeek,
	OmissionNone,
}

// Label returns the short name used in output file names
func (p OmissionPolicy) Label() string {
	if p < 0 || int(p) >= len(omissionLabels) {
		return fmt.Sprintf("omission(%d)", int(p))
	}
	return omissionLabels[p]
}

func (p OmissionPolicy) String() string {
	return p.Label()
}

// ParseOmissionPolicy returns the policy for a label
func ParseOmissionPolicy(label string) (OmissionPolicy, error) {
	for i, l := range omissionLabels {
		if l == label {
			return OmissionPolicy(i), nil
		}
	}
	return 0, errors.Errorf("unknown omission policy %q", label)
}

// TimingHabit describes how a patient's logged meal times drift from the truth
type TimingHabit int

// Timing habits, in bucket order
const (
	TimingRightSkew TimingHabit = iota // forgetful, logs late
	TimingLeftSkew                     // hasty, logs early
	TimingNormal
	TimingUnchanged
)

var timingLabels = []string{"forgetful", "hasty", "normal", "unchanged"}

// TimingHabits lists every timing habit in bucket order
var TimingHabits = []TimingHabit{
	TimingRightSkew,
	TimingLeftSkew,
	TimingNormal,
	TimingUnchanged,
}

// Label returns the short name used in output file names
func (h TimingHabit) Label() string {
	if h < 0 || int(h) >= len(timingLabels) {
		return fmt.Sprintf("timing(%d)", int(h))
	}
	return timingLabels[h]
}

func (h TimingHabit) String() string {
	return h.Label()
}

// ParseTimingHabit returns the habit for a label
func ParseTimingHabit(label string) (TimingHabit, error) {
	for i, l := range timingLabels {
		if l == label {
			return TimingHabit(i), nil
		}
	}
	return 0, errors.Errorf("unknown timing habit %q", label)
}

// Buckets are the cumulative edges of a categorical distribution, e.g.
// [0, 0.2, 0.45, 0.65, 0.85, 1]. Range i is [edges[i], edges[i+1]); the last
// range also includes its upper edge.
type Buckets []float64

// DefaultOmissionBuckets: full 20%, top2 25%, once 20%, weekly 20%, none 15%
var DefaultOmissionBuckets = Buckets{0, 0.20, 0.45, 0.65, 0.85, 1.0}

// DefaultTimingBuckets: forgetful 38%, hasty 23%, normal 28%, unchanged 11%
var DefaultTimingBuckets = Buckets{0, 0.38, 0.61, 0.89, 1.0}

// Validate checks that the edges are non-decreasing and span [0, 1] with the expected count
func (b Buckets) Validate(categories int) error {
	if len(b) != categories+1 {
		return errors.Errorf("need %d bucket edges, got %d", categories+1, len(b))
	}
	if b[0] != 0 || b[len(b)-1] != 1 {
		return errors.Errorf("bucket edges must start at 0 and end at 1, got %v", []float64(b))
	}
	for i := 1; i < len(b); i++ {
		if b[i] < b[i-1] {
			return errors.Errorf("bucket edges must be non-decreasing, got %v", []float64(b))
		}
	}
	return nil
}

// Pick returns the index of the range containing u, or -1 if u is outside [0, 1]
func (b Buckets) Pick(u float64) int {
	last := len(b) - 2
	for i := 0; i <= last; i++ {
		if u >= b[i] && (u < b[i+1] || (i == last && u <= b[i+1])) {
			return i
		}
	}
	return -1
}

// PickOmission maps a uniform draw onto an omission policy
func (b Buckets) PickOmission(u float64) (OmissionPolicy, error) {
	i := b.Pick(u)
	if i < 0 || i >= len(OmissionPolicies) {
		return 0, errors.Errorf("draw %f outside omission buckets %v", u, []float64(b))
	}
	return OmissionPolicies[i], nil
}

// PickTiming maps a uniform draw onto a timing habit
func (b Buckets) PickTiming(u float64) (TimingHabit, error) {
	i := b.Pick(u)
	if i < 0 || i >= len(TimingHabits) {
		return 0, errors.Errorf("draw %f outside timing buckets %v", u, []float64(b))
	}
	return TimingHabits[i], nil
}
