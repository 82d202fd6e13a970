package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"ixmanager_bridge/internal/ixmanager"
	"ixmanager_bridge/internal/models"
	"ixmanager_bridge/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

func chargingSnapshot() models.Snapshot {
	return models.Snapshot{
		HasData: true,
		Phase:   models.PhaseIdle,
		Status: models.ChargerStatus{
			State:           models.StateCharging,
			RawStatus:       models.RawStatusCharging,
			ChargingEnabled: true,
			PowerW:          7200,
			EnergyKWh:       12.4,
			MaximumCurrentA: 16,
			UpdatedAt:       time.Date(2025, 8, 27, 15, 4, 5, 0, time.UTC),
		},
	}
}

func TestChargerHandlers_StatusStartStop(t *testing.T) {
	auth := &mockAuth{parseID: 7}
	mon := &mockMonitoring{state: chargingSnapshot()}
	ch := &mockCharger{}
	s := &service.Service{
		Authorization: auth,
		Monitoring:    mon,
		Charger:       ch,
	}
	r := newTestRouter(s)

	// status requires auth → 401 without header
	w := serve(r, http.MethodGet, "/api/v1/charger/status", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	w = serve(r, http.MethodGet, "/api/v1/charger/status", nil, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var st models.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if st.Status.State != models.StateCharging || st.Status.PowerW != 7200 || st.Stale {
		t.Fatalf("unexpected snapshot: %+v", st)
	}
	if !strings.Contains(w.Body.String(), `"phase":"idle"`) {
		t.Fatalf("status body must carry the poll phase: %s", w.Body.String())
	}

	w = serve(r, http.MethodPost, "/api/v1/charger/start", nil, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("start status=%d, body=%s", w.Code, w.Body.String())
	}
	if ch.startCalled != 1 {
		t.Fatalf("expected StartCharging once, got %d", ch.startCalled)
	}
	var resp struct {
		Status string          `json:"status"`
		State  models.Snapshot `json:"state"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusStarted {
		t.Fatalf("expected status %q, got %q", statusStarted, resp.Status)
	}
	if !resp.State.HasData || resp.State.Status.EnergyKWh != 12.4 {
		t.Fatalf("state missing/invalid in response: %+v", resp.State)
	}

	w = serve(r, http.MethodPost, "/api/v1/charger/stop", nil, "valid")
	if w.Code != http.StatusOK || ch.stopCalled != 1 {
		t.Fatalf("stop status=%d calls=%d", w.Code, ch.stopCalled)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusStopped {
		t.Fatalf("expected status %q, got %q", statusStopped, resp.Status)
	}
}

func TestChargerHandlers_CurrentAndSinglePhase(t *testing.T) {
	ch := &mockCharger{applied: 16}
	s := &service.Service{
		Authorization: &mockAuth{parseID: 1},
		Monitoring:    &mockMonitoring{state: chargingSnapshot()},
		Charger:       ch,
	}
	r := newTestRouter(s)

	w := serve(r, http.MethodPost, "/api/v1/charger/maximum-current", bytes.NewBufferString(`{"amps":40}`), "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("maximum-current status=%d, body=%s", w.Code, w.Body.String())
	}
	if ch.lastAmps != 40 {
		t.Fatalf("service got %v A, want 40", ch.lastAmps)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != statusMaximumCurrentSet || resp["amps"].(float64) != 16 {
		t.Fatalf("unexpected response: %v", resp)
	}

	w = serve(r, http.MethodPost, "/api/v1/charger/target-current", bytes.NewBufferString(`{"amps":10}`), "valid")
	if w.Code != http.StatusOK || ch.lastAmps != 10 {
		t.Fatalf("target-current status=%d amps=%v", w.Code, ch.lastAmps)
	}

	// missing field and wrong type are rejected before the service is called
	ch.lastAmps = 0
	for _, body := range []string{`{}`, `{"amps":"x"}`} {
		w = serve(r, http.MethodPost, "/api/v1/charger/target-current", bytes.NewBufferString(body), "valid")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
	}
	if ch.lastAmps != 0 {
		t.Fatalf("service called on invalid body")
	}

	w = serve(r, http.MethodPost, "/api/v1/charger/single-phase", bytes.NewBufferString(`{"enabled":false}`), "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("single-phase status=%d, body=%s", w.Code, w.Body.String())
	}
	if ch.lastPhase == nil || *ch.lastPhase {
		t.Fatalf("expected SetSinglePhase(false), got %v", ch.lastPhase)
	}
}

func TestChargerHandlers_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"too_low", service.ErrCurrentTooLow, http.StatusBadRequest, service.ErrCurrentTooLow.Error()},
		{"rejected", &ixmanager.Error{Op: "send command", Kind: ixmanager.ErrRejected, StatusCode: 409}, http.StatusConflict, errRejected},
		{"auth", &ixmanager.Error{Op: "send command", Kind: ixmanager.ErrAuth, StatusCode: 401}, http.StatusBadGateway, errInvalidAuth},
		{"network", &ixmanager.Error{Op: "send command", Kind: ixmanager.ErrNetwork}, http.StatusServiceUnavailable, errUnreachable},
		{"api", &ixmanager.Error{Op: "send command", Kind: ixmanager.ErrAPI, StatusCode: 500}, http.StatusBadGateway, errUpstream},
		{"timeout", fmt.Errorf("dispatch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, errTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError, errInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&service.Service{
				Authorization: &mockAuth{parseID: 1},
				Monitoring:    &mockMonitoring{},
				Charger:       &mockCharger{err: tc.err},
			})
			w := serve(r, http.MethodPost, "/api/v1/charger/maximum-current", bytes.NewBufferString(`{"amps":16}`), "valid")
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d, want %d", w.Code, tc.wantCode)
			}
			var out struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &out)
			if out.Error != tc.wantMsg {
				t.Fatalf("error=%q, want %q", out.Error, tc.wantMsg)
			}
		})
	}
}

func TestChargerHandlers_Refresh(t *testing.T) {
	mon := &mockMonitoring{state: chargingSnapshot()}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 1}, Monitoring: mon})

	w := serve(r, http.MethodPost, "/api/v1/charger/refresh", nil, "valid")
	if w.Code != http.StatusOK || mon.refreshes != 1 {
		t.Fatalf("refresh status=%d refreshes=%d", w.Code, mon.refreshes)
	}

	stale := chargingSnapshot()
	stale.Stale = true
	stale.ConsecutiveFailures = 2
	mon.state = stale
	mon.refreshErr = &ixmanager.Error{Op: "fetch status", Kind: ixmanager.ErrNetwork}

	w = serve(r, http.MethodPost, "/api/v1/charger/refresh", nil, "valid")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("failed refresh status=%d, want 503", w.Code)
	}
	var resp struct {
		Error string          `json:"error"`
		State models.Snapshot `json:"state"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.State.Stale || resp.State.Status.PowerW != 7200 {
		t.Fatalf("stale snapshot not returned: %+v", resp.State)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ixmanager_test_gauge", Help: "test"})
	g.Set(3)
	reg.MustRegister(g)

	r := newTestRouter(&service.Service{}, WithGatherer(reg))

	w := serve(r, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), statusOK) {
		t.Fatalf("health status=%d body=%s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ixmanager_test_gauge 3") {
		t.Fatalf("gauge missing from exposition:\n%s", w.Body.String())
	}

	// no gatherer, no route
	r = newTestRouter(&service.Service{})
	if w := serve(r, http.MethodGet, "/metrics", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("metrics without gatherer status=%d, want 404", w.Code)
	}
}
