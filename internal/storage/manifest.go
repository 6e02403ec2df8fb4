package storage

import (
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Manifest row statuses
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ManifestRow records the outcome of one patient file
type ManifestRow struct {
	RunID            string  `csv:"run_id"`
	File             string  `csv:"file"`
	Output           string  `csv:"output"`
	Omission         string  `csv:"omission"`
	Timing           string  `csv:"timing"`
	TrueMeals        int     `csv:"true_meals"`
	LoggedMeals      int     `csv:"logged_meals"`
	ShiftedMeals     int     `csv:"shifted_meals"`
	Threshold        string  `csv:"threshold_g"` // Empty when no threshold was used
	OutOfWindow      int     `csv:"out_of_window"`
	Collisions       int     `csv:"collisions"`
	MeanDisplacement float64 `csv:"mean_displacement_min"`
	Status           string  `csv:"status"`
	Error            string  `csv:"error"`
}

// FormatThreshold renders a threshold cell
func FormatThreshold(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// WriteManifest writes rows as CSV to path, creating parent directories
func WriteManifest(fs afero.Fs, path string, rows []*ManifestRow) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(err, "creating manifest directory")
	}

	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating manifest")
	}
	defer func() {
		_ = f.Close()
	}()

	if err := gocsv.Marshal(&rows, f); err != nil {
		return errors.Wrap(err, "writing manifest")
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest
func ReadManifest(fs afero.Fs, path string) ([]*ManifestRow, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening manifest")
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []*ManifestRow
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	return rows, nil
}
