package app

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/ctxlog"
)

// Run executes the task id, or the default task when id is empty.
func (a *App) Run(ctx context.Context, id string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if id == "" {
		id = config.DefaultTask
	}
	a.logger.Debug("App.Run method started.", "task", id)

	err := a.tasks.Run(ctx, id)
	for _, rep := range a.tasks.Reports() {
		a.logger.Info("Backup run summary.",
			"task", rep.TaskID,
			"run_id", rep.RunID,
			"prefix", rep.Prefix,
			"objects", len(rep.Objects),
			"retained", humanize.IBytes(uint64(max(rep.Retained(), 0))),
			"rotated", len(rep.Rotated),
			"elapsed", rep.End.Sub(rep.Start).Round(1e6),
		)
	}
	if err != nil {
		return fmt.Errorf("task %q failed: %w", id, err)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}
