package vite

import (
	"context"
	"log/slog"

	"github.com/loykin/vitesrv/internal/history"
	"github.com/loykin/vitesrv/internal/registry"
)

// HistoryHook converts registry lifecycle events into history events for rec.
// Pass it to registry.WithEventHook. A nil rec yields a nil hook.
func HistoryHook(rec *history.Recorder, log *slog.Logger) func(registry.Event) {
	if rec == nil {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return func(ev registry.Event) {
		e := history.Event{
			Type:       history.EventType(ev.Type),
			OccurredAt: ev.At.UTC(),
			Record: history.Record{
				ServerID: ev.Server.ID,
				PID:      ev.Server.PID,
				Kind:     ev.Server.Kind,
				Cwd:      ev.Server.Cwd,
				URL:      ev.Server.URL,
				ExitCode: ev.ExitCode,
			},
		}
		log.Debug("history event", "type", e.Type, "server_id", e.Record.ServerID)
		rec.Record(context.Background(), e)
	}
}
