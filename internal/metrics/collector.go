package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"ixmanager_bridge/internal/models"
)

// SnapshotSource provides the cached charger snapshot.
type SnapshotSource interface {
	Latest() models.Snapshot
}

var connectionStates = []models.ConnectionState{
	models.StateDisconnected,
	models.StateConnected,
	models.StateCharging,
	models.StateError,
}

// Collector implements prometheus.Collector on top of the cached snapshot.
// Scrapes never reach the iXmanager API.
type Collector struct {
	source SnapshotSource
	serial string

	up              *prometheus.Desc
	stale           *prometheus.Desc
	pollFailures    *prometheus.Desc
	lastUpdate      *prometheus.Desc
	state           *prometheus.Desc
	chargingEnabled *prometheus.Desc
	power           *prometheus.Desc
	energy          *prometheus.Desc
	current         *prometheus.Desc
	maximumCurrent  *prometheus.Desc
	targetCurrent   *prometheus.Desc
	singlePhase     *prometheus.Desc
	signal          *prometheus.Desc
}

func NewCollector(source SnapshotSource, serial string) *Collector {
	labels := []string{"serial"}
	return &Collector{
		source: source,
		serial: serial,
		up: prometheus.NewDesc(
			"ixmanager_up",
			"Whether the last poll of the iXmanager API succeeded (1) or the data is stale/missing (0)",
			labels, nil,
		),
		stale: prometheus.NewDesc(
			"ixmanager_status_stale",
			"Whether the exported status is older than the last poll attempt",
			labels, nil,
		),
		pollFailures: prometheus.NewDesc(
			"ixmanager_consecutive_poll_failures",
			"Number of consecutive failed polls",
			labels, nil,
		),
		lastUpdate: prometheus.NewDesc(
			"ixmanager_last_update_timestamp_seconds",
			"Unix time of the last successful poll",
			labels, nil,
		),
		state: prometheus.NewDesc(
			"ixmanager_connection_state",
			"Current connection state (1 for the active state)",
			[]string{"serial", "state"}, nil,
		),
		chargingEnabled: prometheus.NewDesc(
			"ixmanager_charging_enabled",
			"Charging switch (1=on, 0=off)",
			labels, nil,
		),
		power: prometheus.NewDesc(
			"ixmanager_charging_power_watts",
			"Current charging power in watts",
			labels, nil,
		),
		energy: prometheus.NewDesc(
			"ixmanager_energy_total_kwh",
			"Total energy delivered in kilowatt-hours",
			labels, nil,
		),
		current: prometheus.NewDesc(
			"ixmanager_charging_current_amps",
			"Charging current per phase in amps",
			[]string{"serial", "phase"}, nil,
		),
		maximumCurrent: prometheus.NewDesc(
			"ixmanager_maximum_current_amps",
			"Configured maximum charging current in amps",
			labels, nil,
		),
		targetCurrent: prometheus.NewDesc(
			"ixmanager_target_current_amps",
			"Configured target charging current in amps",
			labels, nil,
		),
		singlePhase: prometheus.NewDesc(
			"ixmanager_single_phase",
			"Single-phase charging (1=on, 0=off)",
			labels, nil,
		),
		signal: prometheus.NewDesc(
			"ixmanager_signal_strength",
			"Reported signal strength",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.stale
	ch <- c.pollFailures
	ch <- c.lastUpdate
	ch <- c.state
	ch <- c.chargingEnabled
	ch <- c.power
	ch <- c.energy
	ch <- c.current
	ch <- c.maximumCurrent
	ch <- c.targetCurrent
	ch <- c.singlePhase
	ch <- c.signal
}

// Collect implements prometheus.Collector. Status gauges are only emitted
// once a status has been received.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Latest()

	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, boolToFloat(snap.Available()), c.serial)
	ch <- prometheus.MustNewConstMetric(c.pollFailures, prometheus.GaugeValue, float64(snap.ConsecutiveFailures), c.serial)
	if !snap.HasData {
		return
	}

	st := snap.Status
	ch <- prometheus.MustNewConstMetric(c.stale, prometheus.GaugeValue, boolToFloat(snap.Stale), c.serial)
	if !st.UpdatedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastUpdate, prometheus.GaugeValue, float64(st.UpdatedAt.Unix()), c.serial)
	}
	for _, s := range connectionStates {
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, boolToFloat(st.State == s), c.serial, string(s))
	}
	ch <- prometheus.MustNewConstMetric(c.chargingEnabled, prometheus.GaugeValue, boolToFloat(st.ChargingEnabled), c.serial)
	ch <- prometheus.MustNewConstMetric(c.power, prometheus.GaugeValue, st.PowerW, c.serial)
	ch <- prometheus.MustNewConstMetric(c.energy, prometheus.GaugeValue, st.EnergyKWh, c.serial)
	ch <- prometheus.MustNewConstMetric(c.current, prometheus.GaugeValue, st.CurrentL1A, c.serial, "L1")
	ch <- prometheus.MustNewConstMetric(c.current, prometheus.GaugeValue, st.CurrentL2A, c.serial, "L2")
	ch <- prometheus.MustNewConstMetric(c.current, prometheus.GaugeValue, st.CurrentL3A, c.serial, "L3")
	ch <- prometheus.MustNewConstMetric(c.maximumCurrent, prometheus.GaugeValue, st.MaximumCurrentA, c.serial)
	ch <- prometheus.MustNewConstMetric(c.targetCurrent, prometheus.GaugeValue, st.TargetCurrentA, c.serial)
	ch <- prometheus.MustNewConstMetric(c.singlePhase, prometheus.GaugeValue, boolToFloat(st.SinglePhase), c.serial)
	ch <- prometheus.MustNewConstMetric(c.signal, prometheus.GaugeValue, st.SignalStrength, c.serial)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
