package service

import (
	"context"
	"errors"

	"ixmanager_bridge/internal/ixmanager"
	"ixmanager_bridge/internal/logger"
	"ixmanager_bridge/internal/models"
)

// SetupResult is the outcome of a credential check, named after the
// error keys a setup form shows.
type SetupResult string

const (
	SetupOK            SetupResult = "ok"
	SetupInvalidAuth   SetupResult = "invalid_auth"
	SetupCannotConnect SetupResult = "cannot_connect"
	SetupUnknown       SetupResult = "unknown"
)

// Authenticator checks one credential pair against the remote service.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// AuthenticatorFactory builds a throwaway client for the given credentials.
type AuthenticatorFactory func(creds models.Credentials) (Authenticator, error)

type SetupService struct {
	newAuthenticator AuthenticatorFactory
	log              *logger.Logger
}

func NewSetupService(factory AuthenticatorFactory, log *logger.Logger) *SetupService {
	if log == nil {
		log = logger.Nop()
	}
	return &SetupService{newAuthenticator: factory, log: log.Named("setup")}
}

// ValidateCredentials reports whether creds can talk to the charger.
// The returned error is the underlying cause and is nil only for SetupOK.
func (s *SetupService) ValidateCredentials(ctx context.Context, creds models.Credentials) (SetupResult, error) {
	if err := creds.Validate(); err != nil {
		return SetupInvalidAuth, err
	}

	client, err := s.newAuthenticator(creds)
	if err != nil {
		return SetupUnknown, err
	}

	err = client.Authenticate(ctx)
	result := classifySetupError(err)
	if result != SetupOK {
		s.log.Infow("setup_validation_failed", "serial", creds.SerialNumber, "result", result, "err", err)
	}
	return result, err
}

func classifySetupError(err error) SetupResult {
	switch {
	case err == nil:
		return SetupOK
	case errors.Is(err, ixmanager.ErrAuth):
		return SetupInvalidAuth
	case errors.Is(err, ixmanager.ErrNetwork):
		return SetupCannotConnect
	default:
		return SetupUnknown
	}
}
