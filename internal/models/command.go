package models

import (
	"errors"
	"fmt"
	"time"
)

// CommandKind names a control action against the charger.
type CommandKind string

const (
	CommandStartCharging     CommandKind = "start_charging"
	CommandStopCharging      CommandKind = "stop_charging"
	CommandSetMaximumCurrent CommandKind = "set_maximum_current"
	CommandSetTargetCurrent  CommandKind = "set_target_current"
	CommandSetSinglePhase    CommandKind = "set_single_phase"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidValue   = errors.New("invalid command value")
)

// Command is a fire-and-forget request; its effect is only observed on the next poll.
type Command struct {
	Kind CommandKind `json:"kind"`
	// Amps for current commands, Enabled for set_single_phase.
	Amps    float64 `json:"amps,omitempty"`
	Enabled bool    `json:"enabled,omitempty"`
}

func StartCharging() Command { return Command{Kind: CommandStartCharging} }

func StopCharging() Command { return Command{Kind: CommandStopCharging} }

func SetMaximumCurrent(amps float64) Command {
	return Command{Kind: CommandSetMaximumCurrent, Amps: amps}
}

func SetTargetCurrent(amps float64) Command {
	return Command{Kind: CommandSetTargetCurrent, Amps: amps}
}

func SetSinglePhase(enabled bool) Command {
	return Command{Kind: CommandSetSinglePhase, Enabled: enabled}
}

// Validate checks that the command is known and carries a usable value.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandStartCharging, CommandStopCharging, CommandSetSinglePhase:
		return nil
	case CommandSetMaximumCurrent, CommandSetTargetCurrent:
		if c.Amps <= 0 {
			return fmt.Errorf("%w: %s requires a positive current, got %v", ErrInvalidValue, c.Kind, c.Amps)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Kind)
	}
}

// CommandAck is returned when the remote service accepted a command.
type CommandAck struct {
	Kind       CommandKind `json:"kind"`
	Property   string      `json:"property"`
	Value      any         `json:"value"`
	AcceptedAt time.Time   `json:"accepted_at"`
}
