package service

import (
	"context"
	"time"

	"ixmanager_bridge/internal/models"
)

// SnapshotSource is the read side of the polling coordinator.
type SnapshotSource interface {
	Latest() models.Snapshot
	Refresh(ctx context.Context) (models.Snapshot, error)
	Subscribe(fn func(models.Snapshot)) func()
}

type MonitoringService struct {
	source SnapshotSource
}

func NewMonitoringService(source SnapshotSource) *MonitoringService {
	return &MonitoringService{source: source}
}

// GetState returns the cached snapshot. It never calls the remote service.
func (s *MonitoringService) GetState(ctx context.Context) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}
	return normalizeSnapshot(s.source.Latest()), nil
}

// Refresh forces a poll and returns the resulting snapshot. A failed poll
// still returns the (stale) snapshot alongside the error.
func (s *MonitoringService) Refresh(ctx context.Context) (models.Snapshot, error) {
	snap, err := s.source.Refresh(ctx)
	return normalizeSnapshot(snap), err
}

func (s *MonitoringService) Subscribe(fn func(models.Snapshot)) func() {
	return s.source.Subscribe(func(snap models.Snapshot) { fn(normalizeSnapshot(snap)) })
}

func normalizeSnapshot(s models.Snapshot) models.Snapshot {
	s.Status.UpdatedAt = toUTC(s.Status.UpdatedAt)
	s.LastAttempt = toUTC(s.LastAttempt)
	return s
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
