package models

import "time"

// ConnectionState is the coarse charger state derived from the SAE J1772 pilot status.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnected    ConnectionState = "connected"
	StateCharging     ConnectionState = "charging"
	StateError        ConnectionState = "error"
)

// Raw chargingStatus values reported by iXmanager.
const (
	RawStatusInit                    = "INIT"
	RawStatusIdle                    = "IDLE"
	RawStatusConnected               = "CONNECTED"
	RawStatusCharging                = "CHARGING"
	RawStatusChargingWithVentilation = "CHARGING_WITH_VENTILATION"
	RawStatusControlPilotError       = "CONTROL_PILOT_ERROR"
	RawStatusError                   = "ERROR"
)

// StateFromRaw maps an iXmanager chargingStatus to a ConnectionState.
// Unknown values are reported as StateError.
func StateFromRaw(raw string) ConnectionState {
	switch raw {
	case RawStatusInit, RawStatusIdle:
		return StateDisconnected
	case RawStatusConnected:
		return StateConnected
	case RawStatusCharging, RawStatusChargingWithVentilation:
		return StateCharging
	default:
		return StateError
	}
}

// ChargerStatus is a snapshot of the remote charger state.
// It is replaced as a whole on every successful poll.
type ChargerStatus struct {
	State           ConnectionState `json:"state"`
	RawStatus       string          `json:"raw_status"`
	ChargingEnabled bool            `json:"charging_enabled"`
	PowerW          float64         `json:"power_w"`
	EnergyKWh       float64         `json:"energy_kwh"`
	CurrentL1A      float64         `json:"current_l1_a"`
	CurrentL2A      float64         `json:"current_l2_a"`
	CurrentL3A      float64         `json:"current_l3_a"`
	MaximumCurrentA float64         `json:"maximum_current_a"`
	TargetCurrentA  float64         `json:"target_current_a"`
	SinglePhase     bool            `json:"single_phase"`
	SignalStrength  float64         `json:"signal_strength"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Phase is the coordinator's position in its poll cycle.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePolling Phase = "polling"
	PhaseUpdated Phase = "updated"
	PhaseFailed  Phase = "failed"
)

// Snapshot is what consumers read from the polling coordinator.
type Snapshot struct {
	Status              ChargerStatus `json:"status"`
	HasData             bool          `json:"has_data"`
	Stale               bool          `json:"stale"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
	LastAttempt         time.Time     `json:"last_attempt,omitempty"`
	Phase               Phase         `json:"phase,omitempty"`
}

// Available reports whether there is a fresh status to act on.
func (s Snapshot) Available() bool {
	return s.HasData && !s.Stale
}
