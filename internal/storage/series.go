// Package storage reads and writes patient event series and batch manifests
package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/mrcode/meal-obfuscator/internal/models"
)

// Input errors, checked with errors.Is
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrMalformedRow  = errors.New("malformed row")
)

// timeLayouts are tried in order when parsing the date column
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses a timestamp in any of the supported layouts
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unparsable timestamp %q", value)
}

// isIndexColumn matches the unnamed row-index column written by dataframe tools
func isIndexColumn(name string) bool {
	return name == "" || strings.HasPrefix(name, "Unnamed: ")
}

// ReadSeries loads one patient file. The leading index column and any
// previously derived columns are dropped; all other cells are kept verbatim.
func ReadSeries(fs afero.Fs, path string, cols models.Columns) (*models.Series, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening series")
	}
	defer func() {
		_ = f.Close()
	}()

	series, err := DecodeSeries(f, cols)
	if err != nil {
		return nil, errors.Wrap(err, filepath.Base(path))
	}
	series.Patient = PatientName(filepath.Base(path))
	return series, nil
}

// DecodeSeries parses a patient table from r
func DecodeSeries(r io.Reader, cols models.Columns) (*models.Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(ErrMissingColumn, "empty file")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}

	// keep maps output position -> input position
	var keep []int
	series := &models.Series{}
	for i, name := range header {
		if i == 0 && isIndexColumn(name) {
			continue
		}
		if name == cols.Logged || name == cols.Shifted {
			continue
		}
		keep = append(keep, i)
		series.Header = append(series.Header, name)
	}

	dateCol, typeCol, foodCol := -1, -1, -1
	for pos, name := range series.Header {
		switch name {
		case cols.Date:
			dateCol = pos
		case cols.MsgType:
			typeCol = pos
		case cols.FoodG:
			foodCol = pos
		}
	}
	for name, pos := range map[string]int{cols.Date: dateCol, cols.MsgType: typeCol, cols.FoodG: foodCol} {
		if pos < 0 {
			return nil, errors.Wrap(ErrMissingColumn, name)
		}
	}

	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedRow, "line %d: %v", line, err)
		}
		if len(row) != len(header) {
			return nil, errors.Wrapf(ErrMalformedRow, "line %d: %d fields, want %d", line, len(row), len(header))
		}

		raw := make([]string, len(keep))
		for pos, i := range keep {
			raw[pos] = row[i]
		}

		rec, err := parseRecord(raw, dateCol, typeCol, foodCol)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedRow, "line %d: %v", line, err)
		}
		series.Records = append(series.Records, rec)
	}

	series.Sort()
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}

func parseRecord(raw []string, dateCol, typeCol, foodCol int) (models.Record, error) {
	rec := models.Record{Raw: raw}

	t, err := ParseTime(raw[dateCol])
	if err != nil {
		return rec, err
	}
	rec.Time = t
	rec.MsgType = strings.TrimSpace(raw[typeCol])

	food := strings.TrimSpace(raw[foodCol])
	if food == "" {
		return rec, nil
	}
	v, err := strconv.ParseFloat(food, 64)
	if err != nil {
		return rec, errors.Errorf("food value %q", food)
	}
	if !math.IsNaN(v) {
		rec.FoodG = v
		rec.HasFood = true
	}
	return rec, nil
}

// WriteSeries writes the series with both derived columns appended.
// The file is written to a temporary path first and renamed into place.
func WriteSeries(fs afero.Fs, path string, series *models.Series, cols models.Columns) error {
	tempPath := path + ".tmp"

	f, err := fs.Create(tempPath)
	if err != nil {
		return errors.Wrap(err, "creating output")
	}

	if err := EncodeSeries(f, series, cols); err != nil {
		_ = f.Close()
		_ = fs.Remove(tempPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tempPath)
		return errors.Wrap(err, "closing output")
	}

	return fs.Rename(tempPath, path)
}

// EncodeSeries writes the series table to w
func EncodeSeries(w io.Writer, series *models.Series, cols models.Columns) error {
	writer := csv.NewWriter(w)

	header := make([]string, 0, len(series.Header)+2)
	header = append(header, series.Header...)
	header = append(header, cols.Logged, cols.Shifted)
	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	row := make([]string, len(header))
	for i := range series.Records {
		r := &series.Records[i]
		copy(row, r.Raw)
		row[len(header)-2] = deref(r.Logged)
		row[len(header)-1] = deref(r.Shifted)
		if err := writer.Write(row); err != nil {
			return errors.Wrapf(err, "writing row %d", i+1)
		}
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "flushing output")
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// PatientName strips the extension from a patient file name
func PatientName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}

// OutputName encodes both sampled labels in the output file name
func OutputName(file, omissionLabel, timingLabel string) string {
	return fmt.Sprintf("%s_%s_%s.csv", PatientName(file), omissionLabel, timingLabel)
}

// ListPatients returns the sorted names of the *.csv files in dir
func ListPatients(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}
