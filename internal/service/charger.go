package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"ixmanager_bridge/internal/logger"
	"ixmanager_bridge/internal/models"
	"ixmanager_bridge/internal/repository"
)

// CommandDispatcher sends commands and exposes the last known snapshot.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd models.Command) (models.CommandAck, error)
	Latest() models.Snapshot
}

var ErrCurrentTooLow = fmt.Errorf("%w: charging current below %v A", models.ErrInvalidValue, models.MinChargingCurrentA)

type ChargerService struct {
	dispatcher CommandDispatcher
	eventRepo  repository.EventRepo
	cable      models.CableType
	log        *logger.Logger
}

func NewChargerService(d CommandDispatcher, eventRepo repository.EventRepo, cable models.CableType, log *logger.Logger) *ChargerService {
	if log == nil {
		log = logger.Nop()
	}
	return &ChargerService{dispatcher: d, eventRepo: eventRepo, cable: cable, log: log.Named("charger")}
}

func (s *ChargerService) StartCharging(ctx context.Context) error {
	return s.send(ctx, models.StartCharging(), nil)
}

func (s *ChargerService) StopCharging(ctx context.Context) error {
	return s.send(ctx, models.StopCharging(), nil)
}

func (s *ChargerService) SetSinglePhase(ctx context.Context, enabled bool) error {
	return s.send(ctx, models.SetSinglePhase(enabled), map[string]any{"enabled": enabled})
}

// SetMaximumCurrent rejects values below the charger minimum and clamps to the
// cable rating. It returns the value actually sent.
func (s *ChargerService) SetMaximumCurrent(ctx context.Context, amps float64) (float64, error) {
	applied, err := s.clampCurrent(amps)
	if err != nil {
		return 0, err
	}
	meta := map[string]any{"requested_a": amps, "applied_a": applied}
	if err := s.send(ctx, models.SetMaximumCurrent(applied), meta); err != nil {
		return 0, err
	}
	return applied, nil
}

// SetTargetCurrent behaves like SetMaximumCurrent and additionally never
// exceeds the maximum current last reported by the charger.
func (s *ChargerService) SetTargetCurrent(ctx context.Context, amps float64) (float64, error) {
	applied, err := s.clampCurrent(amps)
	if err != nil {
		return 0, err
	}
	if snap := s.dispatcher.Latest(); snap.HasData {
		if limit := snap.Status.MaximumCurrentA; limit >= models.MinChargingCurrentA && applied > limit {
			applied = limit
		}
	}
	meta := map[string]any{"requested_a": amps, "applied_a": applied}
	if err := s.send(ctx, models.SetTargetCurrent(applied), meta); err != nil {
		return 0, err
	}
	return applied, nil
}

func (s *ChargerService) clampCurrent(amps float64) (float64, error) {
	if math.IsNaN(amps) || amps < models.MinChargingCurrentA {
		return 0, ErrCurrentTooLow
	}
	amps = math.Round(amps/models.ChargingCurrentStepA) * models.ChargingCurrentStepA
	if limit := s.cable.MaxCurrent(); amps > limit {
		amps = limit
	}
	return amps, nil
}

func (s *ChargerService) send(ctx context.Context, cmd models.Command, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["kind"] = string(cmd.Kind)

	_, err := s.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		meta["err"] = err.Error()
		recordEvent(ctx, s.eventRepo, s.log, models.EventCommandFailed, string(cmd.Kind)+" failed", meta)
		return err
	}
	recordEvent(ctx, s.eventRepo, s.log, models.EventCommand, string(cmd.Kind)+" accepted", meta)
	return nil
}
