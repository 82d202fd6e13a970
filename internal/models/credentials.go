package models

import (
	"errors"
	"strings"
)

// Credentials identify one charger on the iXmanager service.
type Credentials struct {
	SerialNumber string `json:"serial_number"`
	APIKey       string `json:"-"`
}

// Validate rejects blank serial numbers or keys.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.SerialNumber) == "" {
		return errors.New("serial number is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("api key is required")
	}
	return nil
}

// String never includes the API key.
func (c Credentials) String() string {
	return "serial=" + c.SerialNumber + " api_key=***"
}
