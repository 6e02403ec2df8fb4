// Package app provides the main application logic
package app

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/mrcode/meal-obfuscator/internal/batch"
	"github.com/mrcode/meal-obfuscator/internal/models"
	"github.com/mrcode/meal-obfuscator/internal/notifications"
	"github.com/mrcode/meal-obfuscator/internal/plot"
)

// App wires settings, storage, the batch runner and notifications together
type App struct {
	settings      *models.Settings
	logger        *zap.Logger
	fs            afero.Fs
	out           io.Writer
	notifyManager *notifications.Manager
}

// Option configures an App
type Option func(*App)

// WithFs replaces the OS filesystem
func WithFs(fs afero.Fs) Option {
	return func(a *App) {
		a.fs = fs
	}
}

// WithOutput sets where console status lines go (default stdout)
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		a.out = w
	}
}

// WithNotifier replaces the notification manager
func WithNotifier(m *notifications.Manager) Option {
	return func(a *App) {
		a.notifyManager = m
	}
}

// New creates a new App instance
func New(settings *models.Settings, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		settings:      settings.Clone(),
		logger:        logger,
		fs:            afero.NewOsFs(),
		out:           os.Stdout,
		notifyManager: notifications.NewManager(settings.Notify),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run processes the whole input directory once
func (a *App) Run(ctx context.Context) (*batch.Summary, error) {
	opts := []batch.Option{batch.WithOutput(a.out)}
	if a.settings.PlotDir != "" {
		opts = append(opts, batch.WithPlotter(plot.NewTimeline()))
	}

	runner, err := batch.NewRunner(a.fs, a.settings, a.logger, opts...)
	if err != nil {
		return nil, err
	}

	summary, err := runner.Run(ctx)
	if summary == nil {
		return nil, errors.Wrap(err, "batch run")
	}

	outcome := notifications.Outcome{
		RunID:     summary.RunID,
		Total:     summary.Total,
		Processed: summary.Processed,
		Duration:  summary.Duration,
	}
	if nerr := a.notifyManager.NotifyBatch(outcome); nerr != nil {
		a.logger.Warn("Failed to send notification", zap.Error(nerr))
	}

	return summary, err
}
