package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrcode/meal-obfuscator/internal/models"
	"github.com/mrcode/meal-obfuscator/internal/obfuscation"
	"github.com/mrcode/meal-obfuscator/internal/storage"
)

// patientCSV renders days of 5-minute rows with three meals a day
func patientCSV(days int) string {
	var b strings.Builder
	b.WriteString(",date,bgl,msg_type,food_g\n")

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	meals := map[int]string{7 * 12: "35", 12 * 12: "80", 19 * 12: "55"}
	i := 0
	for t := start; t.Before(start.AddDate(0, 0, days)); t = t.Add(5 * time.Minute) {
		msg, food := "", ""
		if g, ok := meals[i%288]; ok {
			msg, food = models.MsgAnnounceMeal, g
		}
		fmt.Fprintf(&b, "%d,%s,%d,%s,%s\n", i, t.Format("2006-01-02 15:04:05"), 100+i%40, msg, food)
		i++
	}
	return b.String()
}

func setupFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range []string{"p1.csv", "p2.csv", "p3.csv"} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("in", name), []byte(patientCSV(3)), 0644))
	}
	require.NoError(t, afero.WriteFile(fs, "in/broken.csv", []byte("date,msg_type\n2024-01-01 00:00:00,\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "in/readme.txt", []byte("not a patient"), 0644))
	return fs
}

func testSettings() *models.Settings {
	s := models.DefaultSettings()
	s.InputDir = "in"
	s.OutputDir = "out"
	s.Seed = 1234
	return s
}

type countingPlotter struct {
	calls int
}

func (p *countingPlotter) Render(w io.Writer, series *models.Series, res *obfuscation.Result) error {
	p.calls++
	_, err := io.WriteString(w, series.Patient)
	return err
}

func TestRunner_Run(t *testing.T) {
	fs := setupFs(t)
	settings := testSettings()
	settings.ManifestPath = "reports/manifest.csv"

	var out bytes.Buffer
	r, err := NewRunner(fs, settings, zap.NewNop(), WithOutput(&out), WithRunID("run-1"))
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Failed())
	assert.Equal(t, uint64(1234), summary.Seed)

	console := out.String()
	assert.True(t, strings.HasPrefix(console, "Total patients: 4\n"), console)
	assert.Contains(t, console, "Error processing broken.csv:")
	assert.True(t, strings.HasSuffix(console, "Total file processed: 3\n"), console)

	for _, fr := range summary.Files {
		if fr.File == "broken.csv" {
			assert.ErrorIs(t, fr.Err, storage.ErrMissingColumn)
			continue
		}
		require.True(t, fr.OK(), "%s: %v", fr.File, fr.Err)
		assert.Equal(t, storage.OutputName(fr.File, fr.Result.OmissionLabel(), fr.Result.TimingLabel()), fr.Output)
		assert.Contains(t, console, "Successfully processed and saved "+fr.Output+"\n")

		exists, err := afero.Exists(fs, filepath.Join("out", fr.Output))
		require.NoError(t, err)
		assert.True(t, exists, fr.Output)
	}

	rows, err := storage.ReadManifest(fs, "reports/manifest.csv")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.Equal(t, "run-1", row.RunID)
		if row.File == "broken.csv" {
			assert.Equal(t, storage.StatusFailed, row.Status)
			assert.NotEmpty(t, row.Error)
		} else {
			assert.Equal(t, storage.StatusOK, row.Status)
			assert.Equal(t, 9, row.TrueMeals)
		}
	}
}

// failingFs refuses to create files whose base name starts with prefix
type failingFs struct {
	afero.Fs
	prefix string
}

func (f failingFs) Create(name string) (afero.File, error) {
	if strings.HasPrefix(filepath.Base(name), f.prefix) {
		return nil, errors.New("disk full")
	}
	return f.Fs.Create(name)
}

func TestRunner_WriteFailure(t *testing.T) {
	fs := failingFs{Fs: setupFs(t), prefix: "p2_"}
	settings := testSettings()
	settings.ForceOmission = "full"
	settings.ForceTiming = "unchanged"

	var out bytes.Buffer
	r, err := NewRunner(fs, settings, nil, WithOutput(&out))
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Contains(t, out.String(), "Error processing p2.csv:")

	for _, fr := range summary.Files {
		switch fr.File {
		case "p2.csv":
			assert.ErrorContains(t, fr.Err, "disk full")
			assert.Empty(t, fr.Output)
		case "p1.csv", "p3.csv":
			require.True(t, fr.OK(), "%s: %v", fr.File, fr.Err)
			exists, err := afero.Exists(fs, filepath.Join("out", fr.Output))
			require.NoError(t, err)
			assert.True(t, exists, fr.Output)
		}
	}

	exists, err := afero.Exists(fs, "out/p2_full_unchanged.csv")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunner_WorkersDoNotChangeResults(t *testing.T) {
	outputs := func(workers int) map[string]string {
		fs := setupFs(t)
		settings := testSettings()
		settings.Workers = workers

		r, err := NewRunner(fs, settings, nil, WithOutput(io.Discard))
		require.NoError(t, err)
		_, err = r.Run(context.Background())
		require.NoError(t, err)

		files, err := afero.ReadDir(fs, "out")
		require.NoError(t, err)
		got := make(map[string]string, len(files))
		for _, f := range files {
			data, err := afero.ReadFile(fs, filepath.Join("out", f.Name()))
			require.NoError(t, err)
			got[f.Name()] = string(data)
		}
		return got
	}

	serial := outputs(1)
	assert.Len(t, serial, 3)
	assert.Equal(t, serial, outputs(4))
}

func TestRunner_GroundTruthPreserved(t *testing.T) {
	fs := setupFs(t)
	r, err := NewRunner(fs, testSettings(), nil, WithOutput(io.Discard))
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	cols := testSettings().Columns
	for _, fr := range summary.Files {
		if !fr.OK() {
			continue
		}
		in, err := storage.ReadSeries(fs, filepath.Join("in", fr.File), cols)
		require.NoError(t, err)
		out, err := storage.ReadSeries(fs, filepath.Join("out", fr.Output), cols)
		require.NoError(t, err)

		require.Equal(t, in.Len(), out.Len())
		for i := range in.Records {
			assert.Equal(t, in.Records[i].Raw, out.Records[i].Raw)
		}
	}
}

func TestRunner_Plotter(t *testing.T) {
	fs := setupFs(t)
	settings := testSettings()
	settings.PlotDir = "plots"
	plotter := &countingPlotter{}

	r, err := NewRunner(fs, settings, nil, WithOutput(io.Discard), WithPlotter(plotter))
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, plotter.calls)
	data, err := afero.ReadFile(fs, "plots/p2.png")
	require.NoError(t, err)
	assert.Equal(t, "p2", string(data))
}

func TestRunner_MissingInputDir(t *testing.T) {
	r, err := NewRunner(afero.NewMemMapFs(), testSettings(), nil, WithOutput(io.Discard))
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	assert.Error(t, err)
	assert.Nil(t, summary)
}

func TestRunner_Cancelled(t *testing.T) {
	fs := setupFs(t)
	r, err := NewRunner(fs, testSettings(), nil, WithOutput(io.Discard))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 4, summary.Total)
	assert.Zero(t, summary.Processed)
}

func TestNewRunner_InvalidSettings(t *testing.T) {
	settings := testSettings()
	settings.Workers = 0

	_, err := NewRunner(afero.NewMemMapFs(), settings, nil)
	assert.Error(t, err)
}

func TestNewRunner_RandomSeed(t *testing.T) {
	settings := testSettings()
	settings.Seed = 0

	r, err := NewRunner(afero.NewMemMapFs(), settings, nil)
	require.NoError(t, err)
	assert.NotZero(t, r.Seed())
}
