package ixmanager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ixmanager_bridge/internal/models"
)

// Property keys exposed by the iXmanager thing API.
const (
	PropertyChargingEnable       = "chargingEnable"
	PropertyMaximumCurrent       = "maximumCurrent"
	PropertyTargetCurrent        = "targetCurrent"
	PropertyCurrentChargingPower = "currentChargingPower"
	PropertyChargingCurrent      = "chargingCurrent"
	PropertyChargingCurrentL2    = "chargingCurrentL2"
	PropertyChargingCurrentL3    = "chargingCurrentL3"
	PropertyTotalEnergy          = "totalEnergy"
	PropertySinglePhase          = "singlePhase"
	PropertySignal               = "signal"
	PropertyChargingStatus       = "chargingStatus"
)

// StatusProperties is the full set read on every poll.
var StatusProperties = []string{
	PropertyChargingEnable,
	PropertyMaximumCurrent,
	PropertyTargetCurrent,
	PropertyCurrentChargingPower,
	PropertyChargingCurrent,
	PropertyChargingCurrentL2,
	PropertyChargingCurrentL3,
	PropertyTotalEnergy,
	PropertySinglePhase,
	PropertySignal,
	PropertyChargingStatus,
}

// Properties is a raw properties response. A value is either bare or
// wrapped as {"value": X}.
type Properties map[string]json.RawMessage

// Raw returns the unwrapped value for key; ok is false when missing or null.
func (p Properties) Raw(key string) (json.RawMessage, bool, error) {
	v, ok := p[key]
	if !ok {
		return nil, false, nil
	}
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil, false, nil
	}
	if v[0] == '{' {
		var wrapped struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(v, &wrapped); err != nil {
			return nil, false, fmt.Errorf("property %s: %w", key, err)
		}
		if len(wrapped.Value) == 0 {
			return nil, false, fmt.Errorf("property %s: object without value", key)
		}
		if bytes.Equal(bytes.TrimSpace(wrapped.Value), []byte("null")) {
			return nil, false, nil
		}
		v = wrapped.Value
	}
	return v, true, nil
}

// Float reads a numeric property; numeric strings are accepted.
func (p Properties) Float(key string) (float64, bool, error) {
	v, ok, err := p.Raw(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, true, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false, fmt.Errorf("property %s: not a number: %s", key, v)
	}
	f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false, fmt.Errorf("property %s: not a number: %q", key, s)
	}
	return f, true, nil
}

// Bool reads a boolean property; "true"/"false" strings are accepted.
func (p Properties) Bool(key string) (bool, bool, error) {
	v, ok, err := p.Raw(key)
	if err != nil || !ok {
		return false, ok, err
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, true, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return false, false, fmt.Errorf("property %s: not a boolean: %s", key, v)
	}
	b, err = strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false, fmt.Errorf("property %s: not a boolean: %q", key, s)
	}
	return b, true, nil
}

// String reads a string property.
func (p Properties) String(key string) (string, bool, error) {
	v, ok, err := p.Raw(key)
	if err != nil || !ok {
		return "", ok, err
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false, fmt.Errorf("property %s: not a string: %s", key, v)
	}
	return s, true, nil
}

// toStatus builds a ChargerStatus. chargingStatus is mandatory; other
// properties default to zero when absent but must parse when present.
func toStatus(p Properties, now time.Time) (models.ChargerStatus, error) {
	raw, ok, err := p.String(PropertyChargingStatus)
	if err != nil {
		return models.ChargerStatus{}, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return models.ChargerStatus{}, fmt.Errorf("property %s missing", PropertyChargingStatus)
	}
	return p.Apply(models.ChargerStatus{}, now)
}

// Apply returns a copy of st with every property present in p written over
// it. Absent keys keep their value from st. The result is stamped with now.
func (p Properties) Apply(st models.ChargerStatus, now time.Time) (models.ChargerStatus, error) {
	raw, ok, err := p.String(PropertyChargingStatus)
	if err != nil {
		return models.ChargerStatus{}, err
	}
	if ok && strings.TrimSpace(raw) != "" {
		st.RawStatus = strings.ToUpper(strings.TrimSpace(raw))
		st.State = models.StateFromRaw(st.RawStatus)
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{PropertyCurrentChargingPower, &st.PowerW},
		{PropertyChargingCurrent, &st.CurrentL1A},
		{PropertyChargingCurrentL2, &st.CurrentL2A},
		{PropertyChargingCurrentL3, &st.CurrentL3A},
		{PropertyMaximumCurrent, &st.MaximumCurrentA},
		{PropertyTargetCurrent, &st.TargetCurrentA},
		{PropertySignal, &st.SignalStrength},
	}
	for _, f := range floats {
		v, ok, err := p.Float(f.key)
		if err != nil {
			return models.ChargerStatus{}, err
		}
		if ok {
			*f.dst = v
		}
	}

	energyWh, ok, err := p.Float(PropertyTotalEnergy)
	if err != nil {
		return models.ChargerStatus{}, err
	}
	if ok {
		st.EnergyKWh = energyWh / 1000
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{PropertyChargingEnable, &st.ChargingEnabled},
		{PropertySinglePhase, &st.SinglePhase},
	}
	for _, b := range bools {
		v, ok, err := p.Bool(b.key)
		if err != nil {
			return models.ChargerStatus{}, err
		}
		if ok {
			*b.dst = v
		}
	}

	st.UpdatedAt = now.UTC()
	return st, nil
}

// commandProperty maps a command onto the property write that carries it out.
func commandProperty(cmd models.Command) (string, any, error) {
	if err := cmd.Validate(); err != nil {
		return "", nil, err
	}
	switch cmd.Kind {
	case models.CommandStartCharging:
		return PropertyChargingEnable, true, nil
	case models.CommandStopCharging:
		return PropertyChargingEnable, false, nil
	case models.CommandSetMaximumCurrent:
		return PropertyMaximumCurrent, cmd.Amps, nil
	case models.CommandSetTargetCurrent:
		return PropertyTargetCurrent, cmd.Amps, nil
	case models.CommandSetSinglePhase:
		return PropertySinglePhase, cmd.Enabled, nil
	}
	return "", nil, fmt.Errorf("%w: %q", models.ErrUnknownCommand, cmd.Kind)
}
