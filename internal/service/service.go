package service

import (
	"context"

	"ixmanager_bridge/internal/logger"
	"ixmanager_bridge/internal/models"
	"ixmanager_bridge/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Charger exposes control commands. Current setters return the value sent.
type Charger interface {
	StartCharging(ctx context.Context) error
	StopCharging(ctx context.Context) error
	SetSinglePhase(ctx context.Context, enabled bool) error
	SetMaximumCurrent(ctx context.Context, amps float64) (float64, error)
	SetTargetCurrent(ctx context.Context, amps float64) (float64, error)
}

// Monitoring exposes the cached charger snapshot.
type Monitoring interface {
	GetState(ctx context.Context) (models.Snapshot, error)
	Refresh(ctx context.Context) (models.Snapshot, error)
	Subscribe(fn func(models.Snapshot)) func()
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ChargerEvent, error)
}

type Setup interface {
	ValidateCredentials(ctx context.Context, creds models.Credentials) (SetupResult, error)
}

// Poller runs the background polling loop. Stop is called on shutdown.
type Poller interface {
	Start(ctx context.Context) error
	Stop()
}

type Service struct {
	Charger
	Monitoring
	EventLog
	Setup
	Authorization
	Poller Poller
}

type Options struct {
	Coordinator      CoordinatorConfig
	Cable            models.CableType
	Auth             AuthConfig
	NewAuthenticator AuthenticatorFactory
}

// NewService wires the repositories and the remote client into concrete services.
func NewService(repos *repository.Repository, client ChargerClient, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	coord := NewCoordinator(client, repos.StatusRepo, repos.EventRepo, opts.Coordinator, log)
	return &Service{
		Charger:       NewChargerService(coord, repos.EventRepo, opts.Cable, log),
		Monitoring:    NewMonitoringService(coord),
		EventLog:      NewEventLogService(repos.EventRepo),
		Setup:         NewSetupService(opts.NewAuthenticator, log),
		Authorization: NewAuthService(repos.Auth, opts.Auth),
		Poller:        coord,
	}
}
