package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"ixmanager_bridge/internal/models"
	"ixmanager_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockCharger struct {
	err error

	startCalled int
	stopCalled  int
	lastAmps    float64
	lastPhase   *bool
	applied     float64
}

func (m *mockCharger) StartCharging(ctx context.Context) error {
	m.startCalled++
	return m.err
}
func (m *mockCharger) StopCharging(ctx context.Context) error {
	m.stopCalled++
	return m.err
}
func (m *mockCharger) SetSinglePhase(ctx context.Context, enabled bool) error {
	m.lastPhase = &enabled
	return m.err
}
func (m *mockCharger) SetMaximumCurrent(ctx context.Context, amps float64) (float64, error) {
	m.lastAmps = amps
	if m.err != nil {
		return 0, m.err
	}
	return m.applied, nil
}
func (m *mockCharger) SetTargetCurrent(ctx context.Context, amps float64) (float64, error) {
	return m.SetMaximumCurrent(ctx, amps)
}

type mockMonitoring struct {
	mu         sync.Mutex
	state      models.Snapshot
	err        error
	refreshErr error
	refreshes  int
	subs       map[int]func(models.Snapshot)
	nextSub    int
}

func (m *mockMonitoring) GetState(ctx context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.err
}

func (m *mockMonitoring) Refresh(ctx context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return m.state, m.refreshErr
}

func (m *mockMonitoring) Subscribe(fn func(models.Snapshot)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs == nil {
		m.subs = make(map[int]func(models.Snapshot))
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *mockMonitoring) subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *mockMonitoring) publish(s models.Snapshot) {
	m.mu.Lock()
	fns := make([]func(models.Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

type mockEventLog struct {
	resp     []models.ChargerEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.ChargerEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockSetup struct {
	result    service.SetupResult
	err       error
	lastCreds models.Credentials
}

func (m *mockSetup) ValidateCredentials(ctx context.Context, creds models.Credentials) (service.SetupResult, error) {
	m.lastCreds = creds
	return m.result, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, opts ...Option) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, nil, opts...)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// serve runs one request through r with a bearer token (if any) and a JSON body.
func serve(r http.Handler, method, target string, body io.Reader, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
