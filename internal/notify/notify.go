// Package notify sends desktop notifications.
package notify

import (
	"io"
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"
)

const appName = "goclockin"

var setAppName sync.Once

type Desktop struct {
	enabled bool
	logger  *slog.Logger
	send    func(title, message string, icon any) error
}

func NewDesktop(enabled bool, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	setAppName.Do(func() { beeep.AppName = appName })
	return &Desktop{enabled: enabled, logger: logger, send: beeep.Notify}
}

// Notify shows a notification. Delivery failures are logged and returned;
// a disabled notifier only logs.
func (d *Desktop) Notify(title, message string) error {
	d.logger.Info("notification", "title", title, "message", message)
	if !d.enabled {
		return nil
	}
	if err := d.send(title, message, ""); err != nil {
		d.logger.Warn("desktop notification failed", "error", err)
		return err
	}
	return nil
}
