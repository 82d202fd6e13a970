package ixmanager

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ixmanager_bridge/internal/logger"
	"ixmanager_bridge/internal/models"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://evcharger.ixcommand.com/api/v1"
	DefaultTimeout = 30 * time.Second

	apiKeyHeader   = "X-API-KEY"
	propertiesPath = "/thing/{serial}/properties"
)

// Config holds transport settings for the API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the iXmanager cloud API for one charger.
// It keeps no state beyond the credentials and the HTTP client.
type Client struct {
	http   *resty.Client
	serial string
	log    *logger.Logger
	now    func() time.Time
}

// NewClient validates the credentials and builds a client.
func NewClient(cfg Config, creds models.Credentials, log *logger.Logger) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader(apiKeyHeader, creds.APIKey).
		SetHeader("Accept", "application/json").
		SetPathParam("serial", creds.SerialNumber).
		SetLogger(log.SugaredLogger)

	return &Client{
		http:   rc,
		serial: creds.SerialNumber,
		log:    log,
		now:    time.Now,
	}, nil
}

// SerialNumber returns the charger this client is bound to.
func (c *Client) SerialNumber() string { return c.serial }

// Authenticate checks the credentials with a minimal property read.
// Unknown serial numbers surface as ErrAuth as well.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.getProperties(ctx, "authenticate", []string{PropertyChargingEnable})
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == ErrAPI && apiErr.StatusCode == http.StatusNotFound {
		apiErr.Kind = ErrAuth
		apiErr.Err = errors.New("controller not found")
	}
	if err != nil {
		return err
	}
	c.log.Infow("ixmanager_authenticated", "serial", c.serial)
	return nil
}

// FetchStatus reads all status properties and converts them.
func (c *Client) FetchStatus(ctx context.Context) (models.ChargerStatus, error) {
	props, err := c.getProperties(ctx, "fetch status", StatusProperties)
	if err != nil {
		return models.ChargerStatus{}, err
	}
	st, err := toStatus(props, c.now())
	if err != nil {
		return models.ChargerStatus{}, &Error{Op: "fetch status", Kind: ErrParse, Err: err}
	}
	return st, nil
}

// GetProperties reads the given property keys.
func (c *Client) GetProperties(ctx context.Context, keys ...string) (Properties, error) {
	return c.getProperties(ctx, "get properties", keys)
}

// SendCommand writes the property behind cmd. It is never retried.
func (c *Client) SendCommand(ctx context.Context, cmd models.Command) (models.CommandAck, error) {
	key, value, err := commandProperty(cmd)
	if err != nil {
		return models.CommandAck{}, err
	}
	if err := c.setProperty(ctx, "send command", key, value); err != nil {
		return models.CommandAck{}, err
	}
	return models.CommandAck{
		Kind:       cmd.Kind,
		Property:   key,
		Value:      value,
		AcceptedAt: c.now().UTC(),
	}, nil
}

// SetProperty writes a single property.
func (c *Client) SetProperty(ctx context.Context, key string, value any) error {
	return c.setProperty(ctx, "set property", key, value)
}

func (c *Client) getProperties(ctx context.Context, op string, keys []string) (Properties, error) {
	c.log.Debugw("ixmanager_get_properties", "serial", c.serial, "keys", keys)

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(url.Values{"keys": keys}).
		Get(propertiesPath)
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrNetwork, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, statusError(op, resp.StatusCode(), resp.Body(), false)
	}

	var props Properties
	if err := json.Unmarshal(resp.Body(), &props); err != nil {
		return nil, &Error{Op: op, Kind: ErrParse, StatusCode: resp.StatusCode(), Err: err}
	}
	if props == nil {
		return nil, &Error{Op: op, Kind: ErrParse, StatusCode: resp.StatusCode(), Err: errors.New("empty body")}
	}
	return props, nil
}

func (c *Client) setProperty(ctx context.Context, op, key string, value any) error {
	c.log.Debugw("ixmanager_set_property", "serial", c.serial, "key", key, "value", value)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{key: value}).
		Patch(propertiesPath)
	if err != nil {
		return &Error{Op: op, Kind: ErrNetwork, Err: err}
	}
	if !resp.IsSuccess() {
		return statusError(op, resp.StatusCode(), resp.Body(), true)
	}
	return nil
}
