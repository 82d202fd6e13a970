package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ixmanager_bridge/internal/ixmanager"
	"ixmanager_bridge/internal/models"
)

// memEventRepo records appended events and serves canned List results.
type memEventRepo struct {
	mu        sync.Mutex
	appended  []models.ChargerEvent
	appendErr error

	gotFrom time.Time
	gotTo   time.Time
	gotType string
	listOut []models.ChargerEvent
	listErr error
	calls   int
}

func (r *memEventRepo) Append(_ context.Context, e models.ChargerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, e)
	return r.appendErr
}

func (r *memEventRepo) List(_ context.Context, from, to time.Time, typ string) ([]models.ChargerEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.gotFrom, r.gotTo, r.gotType = from, to, typ
	return r.listOut, r.listErr
}

func (r *memEventRepo) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.appended))
	for _, e := range r.appended {
		out = append(out, e.Type)
	}
	return out
}

func (r *memEventRepo) count(typ string) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

type memStatusRepo struct {
	mu      sync.Mutex
	status  models.ChargerStatus
	found   bool
	loadErr error
	saves   int
}

func (r *memStatusRepo) Save(_ context.Context, s models.ChargerStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status, r.found = s, true
	r.saves++
	return nil
}

func (r *memStatusRepo) Load(_ context.Context) (models.ChargerStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.found, r.loadErr
}

type fetchResult struct {
	status models.ChargerStatus
	err    error
}

// scriptedCharger returns queued fetch results in order, repeating the last
// one once the queue is drained. Commands are recorded and can mutate state
// through onCommand. Property reads are served from props.
type scriptedCharger struct {
	mu          sync.Mutex
	results     []fetchResult
	fetches     int
	commands    []models.Command
	cmdErr      error
	ackProperty string
	onCommand   func(cmd models.Command)
	fetchHook   func()
	props       map[string]any
	propErr     error
	propReads   [][]string
}

func (c *scriptedCharger) FetchStatus(ctx context.Context) (models.ChargerStatus, error) {
	if c.fetchHook != nil {
		c.fetchHook()
	}
	if err := ctx.Err(); err != nil {
		return models.ChargerStatus{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	if len(c.results) == 0 {
		return models.ChargerStatus{}, nil
	}
	r := c.results[0]
	if len(c.results) > 1 {
		c.results = c.results[1:]
	}
	return r.status, r.err
}

func (c *scriptedCharger) SendCommand(_ context.Context, cmd models.Command) (models.CommandAck, error) {
	c.mu.Lock()
	c.commands = append(c.commands, cmd)
	err := c.cmdErr
	hook := c.onCommand
	c.mu.Unlock()
	if err != nil {
		return models.CommandAck{}, err
	}
	if hook != nil {
		hook(cmd)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CommandAck{Kind: cmd.Kind, Property: c.ackProperty, AcceptedAt: time.Now().UTC()}, nil
}

func (c *scriptedCharger) GetProperties(ctx context.Context, keys ...string) (ixmanager.Properties, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.propReads = append(c.propReads, keys)
	if c.propErr != nil {
		return nil, c.propErr
	}
	out := ixmanager.Properties{}
	for _, k := range keys {
		v, ok := c.props[k]
		if !ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return out, nil
}

func (c *scriptedCharger) setProp(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.props == nil {
		c.props = map[string]any{}
	}
	c.props[key] = v
}

func (c *scriptedCharger) propertyReads() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.propReads...)
}

func (c *scriptedCharger) push(r ...fetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r...)
}

// set replaces the queue with a single repeating result.
func (c *scriptedCharger) set(r fetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = []fetchResult{r}
}

func (c *scriptedCharger) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func (c *scriptedCharger) sent() []models.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Command(nil), c.commands...)
}

func connectedStatus() models.ChargerStatus {
	return models.ChargerStatus{
		State:           models.StateConnected,
		RawStatus:       models.RawStatusConnected,
		EnergyKWh:       12.4,
		MaximumCurrentA: 16,
		TargetCurrentA:  10,
	}
}

func chargingStatus() models.ChargerStatus {
	s := connectedStatus()
	s.State = models.StateCharging
	s.RawStatus = models.RawStatusCharging
	s.ChargingEnabled = true
	s.PowerW = 7200
	return s
}
