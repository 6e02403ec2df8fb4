package models

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	if settings.DailyTargetRate != 1.8 {
		t.Errorf("Default daily target = %f, want 1.8", settings.DailyTargetRate)
	}
	if settings.WeeklyTargetRate != 3 {
		t.Errorf("Default weekly target = %f, want 3", settings.WeeklyTargetRate)
	}
	if settings.Workers != 1 {
		t.Errorf("Default workers = %d, want 1", settings.Workers)
	}
	if settings.Columns.Logged != "msg_type_log" {
		t.Errorf("Default logged column = %s, want msg_type_log", settings.Columns.Logged)
	}
	if settings.Timing.RightSkew.Offset != (Range{Min: 5, Max: 10}) {
		t.Errorf("Default right skew offset = %+v, want 5..10", settings.Timing.RightSkew.Offset)
	}
	assert.NoError(t, settings.Validate())
}

func TestSettings_Clone(t *testing.T) {
	original := DefaultSettings()
	original.InputDir = "/data/in"

	clone := original.Clone()
	assert.Equal(t, original.InputDir, clone.InputDir)

	clone.InputDir = "/data/other"
	clone.OmissionBuckets[1] = 0.5
	assert.Equal(t, "/data/in", original.InputDir, "modifying clone affected original")
	assert.Equal(t, 0.20, original.OmissionBuckets[1], "clone shares bucket slice with original")
}

func TestSettings_Update(t *testing.T) {
	settings := DefaultSettings()
	other := DefaultSettings()
	other.Seed = 42
	other.ForceTiming = "hasty"

	settings.Update(other)
	assert.Equal(t, uint64(42), settings.Seed)
	assert.Equal(t, "hasty", settings.ForceTiming)
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"No input", func(s *Settings) { s.InputDir = "" }},
		{"No workers", func(s *Settings) { s.Workers = 0 }},
		{"Bad omission buckets", func(s *Settings) { s.OmissionBuckets = Buckets{0, 1} }},
		{"Bad timing buckets", func(s *Settings) { s.TimingBuckets = Buckets{0, 0.5, 0.4, 0.9, 1} }},
		{"Zero daily rate", func(s *Settings) { s.DailyTargetRate = 0 }},
		{"Unknown forced omission", func(s *Settings) { s.ForceOmission = "sometimes" }},
		{"Unknown forced timing", func(s *Settings) { s.ForceTiming = "late" }},
		{"Inverted range", func(s *Settings) { s.Timing.Normal.Mean = Range{Min: 5, Max: -5} }},
		{"Non-positive shape", func(s *Settings) { s.Timing.LeftSkew.Shape = Range{Min: 0, Max: 1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			tt.mutate(settings)
			assert.Error(t, settings.Validate())
		})
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	settings := DefaultSettings()
	settings.Seed = 7
	settings.Workers = 4
	settings.ForceOmission = "once"
	settings.TimingBuckets = Buckets{0, 0.25, 0.5, 0.75, 1}
	require.NoError(t, settings.Save(path))

	loaded := DefaultSettings()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, uint64(7), loaded.Seed)
	assert.Equal(t, 4, loaded.Workers)
	assert.Equal(t, "once", loaded.ForceOmission)
	assert.Equal(t, Buckets{0, 0.25, 0.5, 0.75, 1}, loaded.TimingBuckets)
	assert.Equal(t, settings.Timing, loaded.Timing)
}

func TestSettings_LoadMissingFile(t *testing.T) {
	settings := DefaultSettings()
	require.NoError(t, settings.Load(filepath.Join(t.TempDir(), "missing.json")))
	assert.Equal(t, DefaultSettings().InputDir, settings.InputDir)
}
