package events

import (
	"context"
	"log/slog"
)

// LogNotifier returns a handler that writes every event to logger. It is the
// default notification sink.
func LogNotifier(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, e Event) {
		t := e.Transfer
		logger.InfoContext(ctx, "transfer event",
			"event", e.Type,
			"transfer", t.ID,
			"status", t.Status,
			"type", t.Type,
			"assets", len(t.AssetIDs),
			"requested_by", t.RequestedBy,
			"actor", e.ActorID,
		)
	}
}
