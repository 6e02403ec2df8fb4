// Package batch runs the obfuscation pipeline over a directory of patient files
package batch

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrcode/meal-obfuscator/internal/models"
	"github.com/mrcode/meal-obfuscator/internal/obfuscation"
	"github.com/mrcode/meal-obfuscator/internal/storage"
)

// Plotter renders a preview of an obfuscated series
type Plotter interface {
	Render(w io.Writer, series *models.Series, res *obfuscation.Result) error
}

// FileResult is the outcome of one patient file
type FileResult struct {
	File   string
	Output string // Output file name, empty on failure
	Result *obfuscation.Result
	Err    error
}

// OK returns true if the file was processed and saved
func (f *FileResult) OK() bool {
	return f.Err == nil
}

// Summary is the outcome of a batch run
type Summary struct {
	RunID     string
	Seed      uint64
	Total     int
	Processed int
	Files     []FileResult
	Duration  time.Duration
}

// Failed returns the number of files that were not processed
func (s *Summary) Failed() int {
	return s.Total - s.Processed
}

// Runner processes every patient file of the input directory
type Runner struct {
	fs         afero.Fs
	settings   *models.Settings
	obfuscator *obfuscation.Obfuscator
	logger     *zap.Logger
	out        io.Writer
	plotter    Plotter
	runID      string
	seed       uint64

	outMu sync.Mutex
}

// Option configures a Runner
type Option func(*Runner)

// WithOutput sets where per-file status lines are printed (default stdout)
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// WithPlotter enables preview images in settings.PlotDir
func WithPlotter(p Plotter) Option {
	return func(r *Runner) {
		r.plotter = p
	}
}

// WithRunID overrides the generated run id
func WithRunID(id string) Option {
	return func(r *Runner) {
		r.runID = id
	}
}

// NewRunner creates a runner over fs. The settings are copied.
func NewRunner(fs afero.Fs, settings *models.Settings, logger *zap.Logger, opts ...Option) (*Runner, error) {
	settings = settings.Clone()
	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}

	cfg, err := obfuscation.ConfigFromSettings(settings)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		fs:         fs,
		settings:   settings,
		obfuscator: obfuscation.New(cfg),
		logger:     logger,
		out:        os.Stdout,
		runID:      uuid.NewString(),
		seed:       settings.Seed,
	}
	if r.seed == 0 {
		r.seed = rand.Uint64()
	}

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Seed returns the seed the per-patient generators are derived from
func (r *Runner) Seed() uint64 {
	return r.seed
}

// Run processes all patient files. Only a failure to list the input directory
// or to create the output directory is returned as an error; per-file failures
// are reported in the summary.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	files, err := storage.ListPatients(r.fs, r.settings.InputDir)
	if err != nil {
		return nil, err
	}
	if err := r.fs.MkdirAll(r.settings.OutputDir, 0750); err != nil {
		return nil, errors.Wrapf(err, "creating %s", r.settings.OutputDir)
	}
	if r.plotter != nil && r.settings.PlotDir != "" {
		if err := r.fs.MkdirAll(r.settings.PlotDir, 0750); err != nil {
			return nil, errors.Wrapf(err, "creating %s", r.settings.PlotDir)
		}
	}

	r.logger.Info("Starting batch",
		zap.String("run_id", r.runID),
		zap.Uint64("seed", r.seed),
		zap.Int("patients", len(files)),
		zap.Int("workers", r.settings.Workers),
	)
	r.printf("Total patients: %d\n", len(files))

	results := make([]FileResult, len(files))
	for i, file := range files {
		results[i] = FileResult{File: file, Err: context.Canceled}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.settings.Workers)
	for i, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = r.processFile(file)
			r.report(&results[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{
		RunID:    r.runID,
		Seed:     r.seed,
		Total:    len(files),
		Files:    results,
		Duration: time.Since(started),
	}
	for i := range results {
		if results[i].OK() {
			summary.Processed++
		}
	}

	r.printf("Total file processed: %d\n", summary.Processed)
	r.logger.Info("Batch finished",
		zap.String("run_id", r.runID),
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Duration("duration", summary.Duration),
	)

	if r.settings.ManifestPath != "" {
		if err := storage.WriteManifest(r.fs, r.settings.ManifestPath, r.manifest(summary)); err != nil {
			r.logger.Error("Failed to write manifest", zap.String("path", r.settings.ManifestPath), zap.Error(err))
		}
	}

	return summary, ctx.Err()
}

// processFile runs one patient end to end. Panics are turned into errors so a
// single bad file cannot stop the batch.
func (r *Runner) processFile(file string) (fr FileResult) {
	fr.File = file
	defer func() {
		if p := recover(); p != nil {
			fr.Err = errors.Errorf("panic: %v", p)
		}
	}()

	series, err := storage.ReadSeries(r.fs, filepath.Join(r.settings.InputDir, file), r.settings.Columns)
	if err != nil {
		fr.Err = err
		return fr
	}

	res, err := r.obfuscator.Obfuscate(series, obfuscation.NewSource(r.seed, file))
	if err != nil {
		fr.Err = errors.Wrap(err, "obfuscating")
		return fr
	}
	fr.Result = res

	output := storage.OutputName(file, res.OmissionLabel(), res.TimingLabel())
	if err := storage.WriteSeries(r.fs, filepath.Join(r.settings.OutputDir, output), series, r.settings.Columns); err != nil {
		fr.Err = err
		return fr
	}
	fr.Output = output

	if r.plotter != nil && r.settings.PlotDir != "" {
		if err := r.plot(series, res); err != nil {
			r.logger.Warn("Failed to render preview", zap.String("file", file), zap.Error(err))
		}
	}

	return fr
}

func (r *Runner) plot(series *models.Series, res *obfuscation.Result) error {
	path := filepath.Join(r.settings.PlotDir, series.Patient+".png")
	f, err := r.fs.Create(path)
	if err != nil {
		return err
	}
	if err := r.plotter.Render(f, series, res); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r *Runner) report(fr *FileResult) {
	if fr.OK() {
		r.logger.Debug("Processed patient",
			zap.String("file", fr.File),
			zap.String("output", fr.Output),
			zap.String("omission", fr.Result.OmissionLabel()),
			zap.String("timing", fr.Result.TimingLabel()),
			zap.Int("true_meals", fr.Result.Stats.TrueMeals),
			zap.Int("logged_meals", fr.Result.Stats.LoggedMeals),
			zap.Int("shifted_meals", fr.Result.Stats.ShiftedMeals),
		)
		r.printf("Successfully processed and saved %s\n", fr.Output)
		return
	}

	r.logger.Error("Failed to process patient", zap.String("file", fr.File), zap.Error(fr.Err))
	r.printf("Error processing %s: %v\n", fr.File, fr.Err)
}

func (r *Runner) printf(format string, args ...interface{}) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *Runner) manifest(summary *Summary) []*storage.ManifestRow {
	rows := make([]*storage.ManifestRow, 0, len(summary.Files))
	for i := range summary.Files {
		fr := &summary.Files[i]
		row := &storage.ManifestRow{
			RunID:  summary.RunID,
			File:   fr.File,
			Output: fr.Output,
			Status: storage.StatusOK,
		}
		if res := fr.Result; res != nil {
			row.Omission = res.OmissionLabel()
			row.Timing = res.TimingLabel()
			row.TrueMeals = res.Stats.TrueMeals
			row.LoggedMeals = res.Stats.LoggedMeals
			row.ShiftedMeals = res.Stats.ShiftedMeals
			row.Threshold = storage.FormatThreshold(res.Stats.Threshold, res.Stats.Thresholded)
			row.OutOfWindow = res.Stats.OutOfWindow
			row.Collisions = res.Stats.Collisions
			row.MeanDisplacement = res.Stats.MeanDisplacement
		}
		if fr.Err != nil {
			row.Status = storage.StatusFailed
			row.Error = fr.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}
