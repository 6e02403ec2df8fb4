// Package models contains data structures used throughout the application
package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// Range is a closed interval for a uniformly drawn hyper-parameter
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Validate checks that Min <= Max
func (r Range) Validate(name string) error {
	if r.Min > r.Max {
		return errors.Errorf("%s: min %f > max %f", name, r.Min, r.Max)
	}
	return nil
}

// SkewRanges are the hyper-parameter ranges of a shifted Gamma displacement
type SkewRanges struct {
	Shape  Range `json:"shape"`
	Scale  Range `json:"scale"`
	Offset Range `json:"offset"` // Minutes
}

// NormalRanges are the hyper-parameter ranges of a Normal displacement
type NormalRanges struct {
	Mean Range `json:"mean"` // Minutes
	Std  Range `json:"std"`  // Minutes
}

// TimingRanges groups the per-habit hyper-parameter ranges
type TimingRanges struct {
	Normal    NormalRanges `json:"normal"`
	LeftSkew  SkewRanges   `json:"leftSkew"`
	RightSkew SkewRanges   `json:"rightSkew"`
}

// Columns names the CSV columns read and written for each patient
type Columns struct {
	Date    string `json:"date"`
	MsgType string `json:"msgType"`
	FoodG   string `json:"foodG"`
	Logged  string `json:"logged"`
	Shifted string `json:"shifted"`
}

// Settings contains all obfuscation and batch settings
type Settings struct {
	mu sync.RWMutex `json:"-"`

	// Batch settings
	InputDir     string `json:"inputDir"`
	OutputDir    string `json:"outputDir"`
	ManifestPath string `json:"manifestPath"` // Empty = no manifest
	PlotDir      string `json:"plotDir"`      // Empty = no preview plots
	Seed         uint64 `json:"seed"`         // 0 = random seed per run
	Workers      int    `json:"workers"`      // Patients processed concurrently
	Notify       bool   `json:"notify"`       // Desktop notification when the batch finishes

	Columns Columns `json:"columns"`

	// Policy sampling
	OmissionBuckets Buckets `json:"omissionBuckets"`
	TimingBuckets   Buckets `json:"timingBuckets"`
	ForceOmission   string  `json:"forceOmission"` // Label; empty = sample
	ForceTiming     string  `json:"forceTiming"`   // Label; empty = sample

	// Report-rate targets
	DailyTargetRate  float64 `json:"dailyTargetRate"`  // Meals per day for top2
	WeeklyTargetRate float64 `json:"weeklyTargetRate"` // Meals per week for weekly

	Timing TimingRanges `json:"timing"`

	// Logging
	LogLevel  string `json:"logLevel"`  // "debug", "info", "warn", "error"
	LogFormat string `json:"logFormat"` // "json" or "console"
}

// DefaultSettings returns settings with default values
func DefaultSettings() *Settings {
	return &Settings{
		InputDir:  "data/raw/sim",
		OutputDir: "data/raw/obfuscated",
		Workers:   1,

		Columns: Columns{
			Date:    "date",
			MsgType: "msg_type",
			FoodG:   "food_g",
			Logged:  "msg_type_log",
			Shifted: "msg_type_log_shifted",
		},

		OmissionBuckets: append(Buckets(nil), DefaultOmissionBuckets...),
		TimingBuckets:   append(Buckets(nil), DefaultTimingBuckets...),

		DailyTargetRate:  1.8,
		WeeklyTargetRate: 3,

		Timing: TimingRanges{
			Normal: NormalRanges{
				Mean: Range{Min: -15, Max: 15},
				Std:  Range{Min: 8, Max: 12},
			},
			// Higher shape and smaller scale give a tighter, less extreme early shift
			LeftSkew: SkewRanges{
				Shape:  Range{Min: 2.5, Max: 3.5},
				Scale:  Range{Min: 2, Max: 3},
				Offset: Range{Min: -8, Max: -5},
			},
			RightSkew: SkewRanges{
				Shape:  Range{Min: 1.5, Max: 2.5},
				Scale:  Range{Min: 4, Max: 6},
				Offset: Range{Min: 5, Max: 10},
			},
		},

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, "meal-obfuscator"), nil
}

// GetConfigPath returns the full path to the default config file
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// Load loads settings from path, or from the default config path if path is empty.
// A missing file leaves the current values untouched.
func (s *Settings) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path) //nolint:gosec // Path comes from the operator
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "reading settings")
	}

	if err := json.Unmarshal(data, s); err != nil {
		return errors.Wrapf(err, "parsing settings %s", path)
	}

	return nil
}

// Save saves settings to path
func (s *Settings) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Clone creates a deep copy of the settings
func (s *Settings) Clone() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Create a new Settings struct with copied values (not the mutex)
	clone := &Settings{}
	clone.copySettingsFields(s)
	return clone
}

// Update updates settings from another Settings object
func (s *Settings) Update(other *Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	s.copySettingsFields(other)
}

// copySettingsFields copies all fields from other to s, excluding the mutex.
// The caller must hold the necessary locks on s and other.
func (s *Settings) copySettingsFields(other *Settings) {
	s.InputDir = other.InputDir
	s.OutputDir = other.OutputDir
	s.ManifestPath = other.ManifestPath
	s.PlotDir = other.PlotDir
	s.Seed = other.Seed
	s.Workers = other.Workers
	s.Notify = other.Notify
	s.Columns = other.Columns
	s.OmissionBuckets = append(Buckets(nil), other.OmissionBuckets...)
	s.TimingBuckets = append(Buckets(nil), other.TimingBuckets...)
	s.ForceOmission = other.ForceOmission
	s.ForceTiming = other.ForceTiming
	s.DailyTargetRate = other.DailyTargetRate
	s.WeeklyTargetRate = other.WeeklyTargetRate
	s.Timing = other.Timing
	s.LogLevel = other.LogLevel
	s.LogFormat = other.LogFormat
}

// Validate checks that the settings can drive a batch run
func (s *Settings) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.InputDir == "" || s.OutputDir == "" {
		return errors.New("input and output directories are required")
	}
	if s.Workers < 1 {
		return errors.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if err := s.OmissionBuckets.Validate(len(OmissionPolicies)); err != nil {
		return errors.Wrap(err, "omission buckets")
	}
	if err := s.TimingBuckets.Validate(len(TimingHabits)); err != nil {
		return errors.Wrap(err, "timing buckets")
	}
	if s.DailyTargetRate <= 0 || s.WeeklyTargetRate <= 0 {
		return errors.New("target rates must be positive")
	}
	if s.ForceOmission != "" {
		if _, err := ParseOmissionPolicy(s.ForceOmission); err != nil {
			return err
		}
	}
	if s.ForceTiming != "" {
		if _, err := ParseTimingHabit(s.ForceTiming); err != nil {
			return err
		}
	}

	t := s.Timing
	for name, r := range map[string]Range{
		"normal.mean":      t.Normal.Mean,
		"normal.std":       t.Normal.Std,
		"leftSkew.shape":   t.LeftSkew.Shape,
		"leftSkew.scale":   t.LeftSkew.Scale,
		"leftSkew.offset":  t.LeftSkew.Offset,
		"rightSkew.shape":  t.RightSkew.Shape,
		"rightSkew.scale":  t.RightSkew.Scale,
		"rightSkew.offset": t.RightSkew.Offset,
	} {
		if err := r.Validate(name); err != nil {
			return err
		}
	}
	if t.Normal.Std.Min <= 0 || t.LeftSkew.Shape.Min <= 0 || t.LeftSkew.Scale.Min <= 0 ||
		t.RightSkew.Shape.Min <= 0 || t.RightSkew.Scale.Min <= 0 {
		return errors.New("std, shape and scale ranges must be positive")
	}

	return nil
}
