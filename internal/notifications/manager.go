// Package notifications handles desktop notifications for finished batches
package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
)

const appName = "Meal Obfuscator"

// Outcome is what a notification reports about a batch run
type Outcome struct {
	RunID     string
	Total     int
	Processed int
	Duration  time.Duration
}

// Failed returns the number of files that were not processed
func (o Outcome) Failed() int {
	return o.Total - o.Processed
}

// Manager sends batch completion notifications
type Manager struct {
	enabled bool
	send    func(title, message string) error

	mu       sync.Mutex
	lastSent map[string]time.Time // Run id -> time of notification
}

// NewManager creates a notification manager; a disabled manager never notifies
func NewManager(enabled bool) *Manager {
	return &Manager{
		enabled:  enabled,
		send:     sendNotification,
		lastSent: make(map[string]time.Time),
	}
}

// NotifyBatch reports a finished run once per run id
func (m *Manager) NotifyBatch(outcome Outcome) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lastSent[outcome.RunID]; ok {
		return nil
	}

	title, message := formatNotification(outcome)
	if err := m.send(title, message); err != nil {
		return err
	}

	m.lastSent[outcome.RunID] = time.Now()
	return nil
}

// formatNotification creates the notification title and message
func formatNotification(outcome Outcome) (string, string) {
	elapsed := outcome.Duration.Round(time.Second)

	switch {
	case outcome.Total == 0:
		return appName + ": nothing to do", "No patient files found"
	case outcome.Failed() == 0:
		return appName + ": batch complete",
			fmt.Sprintf("Obfuscated %d patient files in %s", outcome.Processed, elapsed)
	case outcome.Processed == 0:
		return "⚠️ " + appName + ": batch failed",
			fmt.Sprintf("All %d patient files failed", outcome.Total)
	default:
		return "⚠️ " + appName + ": batch finished with errors",
			fmt.Sprintf("%d of %d patient files processed, %d failed (%s)",
				outcome.Processed, outcome.Total, outcome.Failed(), elapsed)
	}
}

// sendNotification sends a system notification
func sendNotification(title, message string) error {
	// Use beeep for cross-platform notifications
	return beeep.Notify(title, message, "")
}
