package models

import "fmt"

// CableType is the charging cable rating configured for the wallbox.
type CableType string

const (
	Cable16A CableType = "16A"
	Cable32A CableType = "32A"
)

// Charging current limits in amps.
const (
	MinChargingCurrentA  = 6.0
	ChargingCurrentStepA = 1.0
)

// MaxCurrent returns the cable's rated maximum in amps.
func (c CableType) MaxCurrent() float64 {
	if c == Cable32A {
		return 32
	}
	return 16
}

// ParseCableType accepts "16A" or "32A".
func ParseCableType(s string) (CableType, error) {
	switch CableType(s) {
	case Cable16A, Cable32A:
		return CableType(s), nil
	}
	return "", fmt.Errorf("unsupported cable type %q: expected 16A or 32A", s)
}
