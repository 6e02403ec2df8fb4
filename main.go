// Package main is the entry point for the meal-log obfuscator
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/mrcode/meal-obfuscator/internal/app"
	"github.com/mrcode/meal-obfuscator/internal/logging"
	"github.com/mrcode/meal-obfuscator/internal/models"
)

type args struct {
	Config     string `arg:"--config,env:MEALOBF_CONFIG" help:"settings JSON file (default: user config dir)"`
	Input      string `arg:"-i,--input,env:MEALOBF_INPUT" help:"directory of per-patient CSV files"`
	Output     string `arg:"-o,--output,env:MEALOBF_OUTPUT" help:"directory for obfuscated CSV files"`
	Manifest   string `arg:"--manifest,env:MEALOBF_MANIFEST" help:"write a per-file summary CSV here"`
	PlotDir    string `arg:"--plot-dir" help:"write a PNG timeline per patient here"`
	Seed       uint64 `arg:"--seed,env:MEALOBF_SEED" help:"run seed (0 = random)"`
	Workers    int    `arg:"-w,--workers" help:"patients processed concurrently"`
	Omission   string `arg:"--omission" help:"force an omission policy: full, top2, once, weekly, none"`
	Timing     string `arg:"--timing" help:"force a timing habit: forgetful, hasty, normal, unchanged"`
	Notify     bool   `arg:"--notify" help:"desktop notification when the batch finishes"`
	LogLevel   string `arg:"--log-level,env:MEALOBF_LOG_LEVEL" help:"debug, info, warn or error"`
	LogFormat  string `arg:"--log-format,env:MEALOBF_LOG_FORMAT" help:"console or json"`
	SaveConfig string `arg:"--save-config" help:"write the effective settings to this file and exit"`
}

func (args) Description() string {
	return "Simulates imperfect meal self-reporting on ground-truth patient meal logs."
}

// apply overrides settings with every flag that was set
func (a *args) apply(s *models.Settings) {
	if a.Input != "" {
		s.InputDir = a.Input
	}
	if a.Output != "" {
		s.OutputDir = a.Output
	}
	if a.Manifest != "" {
		s.ManifestPath = a.Manifest
	}
	if a.PlotDir != "" {
		s.PlotDir = a.PlotDir
	}
	if a.Seed != 0 {
		s.Seed = a.Seed
	}
	if a.Workers != 0 {
		s.Workers = a.Workers
	}
	if a.Omission != "" {
		s.ForceOmission = a.Omission
	}
	if a.Timing != "" {
		s.ForceTiming = a.Timing
	}
	if a.Notify {
		s.Notify = true
	}
	if a.LogLevel != "" {
		s.LogLevel = a.LogLevel
	}
	if a.LogFormat != "" {
		s.LogFormat = a.LogFormat
	}
}

func main() {
	var cli args
	arg.MustParse(&cli)

	settings := models.DefaultSettings()
	if err := settings.Load(cli.Config); err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	cli.apply(settings)

	if err := settings.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	if cli.SaveConfig != "" {
		if err := settings.Save(cli.SaveConfig); err != nil {
			log.Fatalf("Failed to save settings: %v", err)
		}
		fmt.Printf("Settings written to %s\n", cli.SaveConfig)
		return
	}

	logger, err := logging.New(settings.LogLevel, settings.LogFormat, "meal-obfuscator")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, settings, logger)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}

// run executes one batch and returns the process exit code. An interrupted or
// aborted batch exits non-zero even when some files were written.
func run(ctx context.Context, settings *models.Settings, logger *zap.Logger, opts ...app.Option) int {
	if _, err := app.New(settings, logger, opts...).Run(ctx); err != nil {
		logger.Error("Batch aborted", zap.Error(err))
		return 1
	}
	return 0
}
