package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ixmanager_bridge/internal/ixmanager"
	"ixmanager_bridge/internal/logger"
	"ixmanager_bridge/internal/models"
	"ixmanager_bridge/internal/repository"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultMaxBackoff   = 5 * time.Minute
	DefaultRefreshDelay = 500 * time.Millisecond
)

// ChargerClient is the remote side the coordinator polls and commands.
type ChargerClient interface {
	FetchStatus(ctx context.Context) (models.ChargerStatus, error)
	GetProperties(ctx context.Context, keys ...string) (ixmanager.Properties, error)
	SendCommand(ctx context.Context, cmd models.Command) (models.CommandAck, error)
}

var ErrCoordinatorRunning = errors.New("coordinator already running")

type CoordinatorConfig struct {
	Interval     time.Duration
	MaxBackoff   time.Duration
	RefreshDelay time.Duration
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.Interval {
		c.MaxBackoff = c.Interval
	}
	if c.RefreshDelay <= 0 {
		c.RefreshDelay = DefaultRefreshDelay
	}
	return c
}

// Coordinator polls the charger on a fixed cadence, caches the latest snapshot
// and serializes every remote call through a single slot.
type Coordinator struct {
	client     ChargerClient
	statusRepo repository.StatusRepo
	eventRepo  repository.EventRepo
	log        *logger.Logger
	cfg        CoordinatorConfig
	now        func() time.Time

	// slot holds the in-flight remote call; bo is only touched while holding it.
	slot chan struct{}
	bo   *backoff.ExponentialBackOff

	mu    sync.RWMutex
	snap  models.Snapshot
	phase models.Phase
	seq   uint64

	// notified is the seq of the newest snapshot handed to subscribers.
	subMu    sync.Mutex
	subs     map[int]func(models.Snapshot)
	nextSub  int
	notified uint64

	// runMu serializes Start and Stop. lifeMu guards the fields below it and
	// is never held across a remote call or a subscriber callback.
	runMu        sync.Mutex
	lifeMu       sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
	refreshTimer *time.Timer
	refreshReq   chan struct{}
}

func NewCoordinator(client ChargerClient, statusRepo repository.StatusRepo, eventRepo repository.EventRepo, cfg CoordinatorConfig, log *logger.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.Interval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	return &Coordinator{
		client:     client,
		statusRepo: statusRepo,
		eventRepo:  eventRepo,
		log:        log.Named("coordinator"),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		slot:       make(chan struct{}, 1),
		bo:         bo,
		phase:      models.PhaseIdle,
		subs:       make(map[int]func(models.Snapshot)),
		refreshReq: make(chan struct{}, 1),
	}
}

// Start seeds the cache from the persisted status (marked stale), runs one
// refresh and launches the polling loop. The loop stops on Stop or when ctx ends.
func (c *Coordinator) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.lifeMu.Lock()
	running := c.cancel != nil
	c.lifeMu.Unlock()
	if running {
		return ErrCoordinatorRunning
	}

	c.seed(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.lifeMu.Lock()
	c.cancel, c.done = cancel, done
	c.lifeMu.Unlock()

	next, err := c.refresh(loopCtx)
	if err != nil {
		c.log.Warnw("initial_refresh_failed", "err", err, "retry_in", next)
	}
	go c.run(loopCtx, next, done)

	c.log.Infow("coordinator_started", "interval", c.cfg.Interval, "max_backoff", c.cfg.MaxBackoff)
	return nil
}

// Stop cancels the loop and waits for it to exit. No poll starts after Stop
// returns, including refreshes requested by commands sent before it.
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.lifeMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.lifeMu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	select {
	case <-c.refreshReq:
	default:
	}
	c.log.Infow("coordinator_stopped")
}

func (c *Coordinator) run(ctx context.Context, first time.Duration, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-c.refreshReq:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		if ctx.Err() != nil {
			return
		}

		next, _ := c.refresh(ctx)
		timer.Reset(next)
	}
}

// Latest returns the cached snapshot, tagged with the current poll phase,
// without blocking on remote calls.
func (c *Coordinator) Latest() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := c.snap
	snap.Phase = c.phase
	return snap
}

// Refresh polls the charger now and returns the resulting snapshot.
func (c *Coordinator) Refresh(ctx context.Context) (models.Snapshot, error) {
	_, err := c.refresh(ctx)
	return c.Latest(), err
}

// RefreshProperty reads a single property and swaps in a new snapshot with
// that property applied to the cached status. Without cached data it falls
// back to a full Refresh. On failure the snapshot is left untouched.
func (c *Coordinator) RefreshProperty(ctx context.Context, key string) (models.Snapshot, error) {
	if err := c.acquire(ctx); err != nil {
		return c.Latest(), err
	}

	c.mu.RLock()
	hasData := c.snap.HasData
	c.mu.RUnlock()
	if !hasData {
		c.release()
		return c.Refresh(ctx)
	}

	props, err := c.client.GetProperties(ctx, key)
	if err != nil {
		c.release()
		c.log.Warnw("property_refresh_failed", "key", key, "err", err)
		return c.Latest(), err
	}

	c.mu.Lock()
	prev := c.snap
	status, err := props.Apply(prev.Status, c.now())
	if err != nil {
		c.mu.Unlock()
		c.release()
		err = &ixmanager.Error{Op: "get properties", Kind: ixmanager.ErrParse, Err: err}
		c.log.Warnw("property_refresh_failed", "key", key, "err", err)
		return c.Latest(), err
	}
	c.snap = models.Snapshot{
		Status:              status,
		HasData:             true,
		Stale:               prev.Stale,
		ConsecutiveFailures: prev.ConsecutiveFailures,
		LastError:           prev.LastError,
		LastAttempt:         prev.LastAttempt,
	}
	c.seq++
	seq, snap := c.seq, c.snap
	c.mu.Unlock()

	c.log.Debugw("property_refreshed", "key", key)
	if err := c.statusRepo.Save(ctx, status); err != nil {
		c.log.Warnw("status_persist_failed", "err", err)
	}
	c.noteStateChange(ctx, prev, status)
	c.release()

	snap.Phase = models.PhaseUpdated
	c.notify(seq, snap)
	return c.Latest(), nil
}

// Dispatch validates and sends a command. An accepted command has its
// property read back at once; either way a full out-of-cycle refresh is
// scheduled.
func (c *Coordinator) Dispatch(ctx context.Context, cmd models.Command) (models.CommandAck, error) {
	if err := cmd.Validate(); err != nil {
		return models.CommandAck{}, err
	}

	if err := c.acquire(ctx); err != nil {
		return models.CommandAck{}, err
	}
	ack, err := c.client.SendCommand(ctx, cmd)
	c.release()

	if err != nil {
		c.scheduleRefresh()
		c.log.Warnw("command_failed", "kind", cmd.Kind, "err", err)
		return models.CommandAck{}, err
	}
	c.log.Infow("command_accepted", "kind", cmd.Kind, "property", ack.Property, "value", ack.Value)

	if ack.Property != "" {
		_, _ = c.RefreshProperty(ctx, ack.Property)
	}
	c.scheduleRefresh()
	return ack, nil
}

// Subscribe registers fn to receive every snapshot produced by a refresh.
// The returned func removes the subscription.
func (c *Coordinator) Subscribe(fn func(models.Snapshot)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

// refresh performs one poll and returns the delay until the next scheduled
// one. Subscribers are notified after the slot is released so they may call
// back into the coordinator.
func (c *Coordinator) refresh(ctx context.Context) (time.Duration, error) {
	if err := c.acquire(ctx); err != nil {
		return c.cfg.Interval, err
	}

	c.setPhase(models.PhasePolling)

	status, err := c.client.FetchStatus(ctx)
	if err != nil && ctx.Err() != nil {
		// shutting down, leave the snapshot alone
		c.setPhase(models.PhaseIdle)
		c.release()
		return c.cfg.Interval, err
	}

	delay := c.cfg.Interval
	var seq uint64
	var snap models.Snapshot
	if err != nil {
		delay = c.bo.NextBackOff()
		seq, snap = c.recordFailure(ctx, err, delay)
	} else {
		c.bo.Reset()
		seq, snap = c.recordSuccess(ctx, status)
	}
	c.setPhase(models.PhaseIdle)
	c.release()

	c.notify(seq, snap)
	return delay, err
}

func (c *Coordinator) recordSuccess(ctx context.Context, status models.ChargerStatus) (uint64, models.Snapshot) {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = c.now()
	}

	c.mu.Lock()
	prev := c.snap
	c.snap = models.Snapshot{
		Status:      status,
		HasData:     true,
		LastAttempt: c.now(),
	}
	c.phase = models.PhaseUpdated
	c.seq++
	seq, snap := c.seq, c.snap
	c.mu.Unlock()
	snap.Phase = models.PhaseUpdated

	if err := c.statusRepo.Save(ctx, status); err != nil {
		c.log.Warnw("status_persist_failed", "err", err)
	}

	if prev.ConsecutiveFailures > 0 {
		c.log.Infow("poll_recovered", "failures", prev.ConsecutiveFailures)
		c.appendEvent(ctx, models.EventPollRecovered,
			fmt.Sprintf("polling recovered after %d failed attempts", prev.ConsecutiveFailures),
			map[string]any{"failures": prev.ConsecutiveFailures})
	}
	c.noteStateChange(ctx, prev, status)
	return seq, snap
}

func (c *Coordinator) recordFailure(ctx context.Context, err error, retryIn time.Duration) (uint64, models.Snapshot) {
	c.mu.Lock()
	c.snap.Stale = true
	c.snap.ConsecutiveFailures++
	c.snap.LastError = err.Error()
	c.snap.LastAttempt = c.now()
	c.phase = models.PhaseFailed
	c.seq++
	seq, snap := c.seq, c.snap
	c.mu.Unlock()
	snap.Phase = models.PhaseFailed

	if ixmanager.IsTransient(err) {
		c.log.Warnw("poll_failed", "err", err, "failures", snap.ConsecutiveFailures, "retry_in", retryIn)
	} else {
		c.log.Errorw("poll_failed", "err", err, "failures", snap.ConsecutiveFailures, "retry_in", retryIn)
	}
	if snap.ConsecutiveFailures == 1 {
		c.appendEvent(ctx, models.EventPollFailed, err.Error(), map[string]any{"retry_in": retryIn.String()})
	}
	return seq, snap
}

func (c *Coordinator) noteStateChange(ctx context.Context, prev models.Snapshot, status models.ChargerStatus) {
	if !prev.HasData || prev.Status.State == status.State {
		return
	}
	c.log.Infow("charger_state_changed", "from", prev.Status.State, "to", status.State, "raw", status.RawStatus)
	c.appendEvent(ctx, models.EventStateChange,
		fmt.Sprintf("%s -> %s", prev.Status.State, status.State),
		map[string]any{"from": prev.Status.State, "to": status.State, "raw_status": status.RawStatus})
}

func (c *Coordinator) seed(ctx context.Context) {
	status, found, err := c.statusRepo.Load(ctx)
	if err != nil {
		c.log.Warnw("status_seed_failed", "err", err)
		return
	}
	if !found {
		return
	}
	c.mu.Lock()
	c.snap = models.Snapshot{Status: status, HasData: true, Stale: true}
	c.seq++
	c.mu.Unlock()
}

func (c *Coordinator) scheduleRefresh() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.cancel == nil {
		return
	}
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	done := c.done
	c.refreshTimer = time.AfterFunc(c.cfg.RefreshDelay, func() {
		c.lifeMu.Lock()
		defer c.lifeMu.Unlock()
		if c.done != done {
			// stopped or restarted since this refresh was requested
			return
		}
		select {
		case c.refreshReq <- struct{}{}:
		default:
		}
	})
}

// notify hands snap to every subscriber. Snapshots older than one already
// delivered are dropped.
func (c *Coordinator) notify(seq uint64, snap models.Snapshot) {
	c.subMu.Lock()
	if seq <= c.notified {
		c.subMu.Unlock()
		return
	}
	c.notified = seq
	fns := make([]func(models.Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Coordinator) appendEvent(ctx context.Context, typ, desc string, meta map[string]any) {
	recordEvent(ctx, c.eventRepo, c.log, typ, desc, meta)
}

func (c *Coordinator) setPhase(p models.Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() { <-c.slot }
