package service

import (
	"context"
	"time"

	"ixmanager_bridge/internal/logger"
	"ixmanager_bridge/internal/models"
	"ixmanager_bridge/internal/repository"

	"github.com/google/uuid"
)

// recordEvent appends to the event log. Append errors are logged and swallowed.
func recordEvent(ctx context.Context, repo repository.EventRepo, log *logger.Logger, typ, desc string, meta map[string]any) {
	if repo == nil {
		return
	}
	ev := models.ChargerEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}
	if err := repo.Append(ctx, ev); err != nil {
		log.Warnw("event_append_failed", "type", typ, "err", err)
	}
}
