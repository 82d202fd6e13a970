package history

import (
	"context"
	"fmt"
	"time"

	"ixmanager_bridge/internal/logger"
	"ixmanager_bridge/internal/models"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	DefaultMeasurement = "charger_status"
	writeTimeout       = 5 * time.Second
	queueSize          = 32
)

type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// InfluxSink records every fresh charger status as an InfluxDB point.
// Observe never blocks; points are written by Run.
type InfluxSink struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
	serial      string
	log         *logger.Logger
	queue       chan models.ChargerStatus
}

func NewInfluxSink(cfg Config, serial string, log *logger.Logger) *InfluxSink {
	if log == nil {
		log = logger.Nop()
	}
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
		serial:      serial,
		log:         log.Named("history"),
		queue:       make(chan models.ChargerStatus, queueSize),
	}
}

// Ping checks that the InfluxDB server is reachable and healthy.
func (s *InfluxSink) Ping(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health: %w", err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("influxdb unhealthy: %s", health.Status)
	}
	return nil
}

// Observe queues fresh snapshots. Stale or empty snapshots carry no new data.
func (s *InfluxSink) Observe(snap models.Snapshot) {
	if !snap.Available() {
		return
	}
	select {
	case s.queue <- snap.Status:
	default:
		s.log.Warnw("history_queue_full", "dropped_at", snap.Status.UpdatedAt)
	}
}

// Run writes queued points until ctx is canceled, then closes the client.
func (s *InfluxSink) Run(ctx context.Context) {
	defer s.client.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-s.queue:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := s.Write(wctx, st); err != nil {
				s.log.Warnw("history_write_failed", "err", err)
			}
			cancel()
		}
	}
}

// Write stores one status point synchronously.
func (s *InfluxSink) Write(ctx context.Context, st models.ChargerStatus) error {
	if err := s.writeAPI.WritePoint(ctx, s.point(st)); err != nil {
		return fmt.Errorf("write %s point: %w", s.measurement, err)
	}
	return nil
}

func (s *InfluxSink) point(st models.ChargerStatus) *write.Point {
	ts := st.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPoint(
		s.measurement,
		map[string]string{
			"serial": s.serial,
			"state":  string(st.State),
		},
		map[string]interface{}{
			"raw_status":        st.RawStatus,
			"charging_enabled":  st.ChargingEnabled,
			"power_w":           st.PowerW,
			"energy_kwh":        st.EnergyKWh,
			"current_l1_a":      st.CurrentL1A,
			"current_l2_a":      st.CurrentL2A,
			"current_l3_a":      st.CurrentL3A,
			"maximum_current_a": st.MaximumCurrentA,
			"target_current_a":  st.TargetCurrentA,
			"single_phase":      st.SinglePhase,
			"signal_strength":   st.SignalStrength,
		},
		ts,
	)
}
