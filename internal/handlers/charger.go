package handlers

import (
	"context"
	"errors"
	"net/http"

	"ixmanager_bridge/internal/ixmanager"
	"ixmanager_bridge/internal/models"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK                = "ok"
	statusStarted           = "started"
	statusStopped           = "stopped"
	statusMaximumCurrentSet = "maximum_current_set"
	statusTargetCurrentSet  = "target_current_set"
	statusSinglePhaseSet    = "single_phase_set"
	statusRefreshed         = "refreshed"

	errInvalidAuth     = "invalid_auth"
	errRejected        = "command rejected by charger"
	errUnreachable     = "charger service unreachable"
	errTimeout         = "charger service timed out"
	errUpstream        = "charger service error"
	errInternal        = "internal error"
	errGetState        = "failed to load state"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		if httpCode >= http.StatusInternalServerError {
			h.log.Errorw(logKey, fields...)
		} else {
			h.log.Infow(logKey, fields...)
		}
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// chargerErrorStatus maps service and remote errors to an HTTP status and a
// message safe to show to clients.
func chargerErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidValue), errors.Is(err, models.ErrUnknownCommand):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ixmanager.ErrRejected):
		return http.StatusConflict, errRejected
	case errors.Is(err, ixmanager.ErrAuth):
		return http.StatusBadGateway, errInvalidAuth
	case errors.Is(err, ixmanager.ErrNetwork):
		return http.StatusServiceUnavailable, errUnreachable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errTimeout
	case errors.Is(err, ixmanager.ErrAPI), errors.Is(err, ixmanager.ErrParse):
		return http.StatusBadGateway, errUpstream
	default:
		return http.StatusInternalServerError, errInternal
	}
}

func (h *Handler) chargerError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code, msg := chargerErrorStatus(err)
	h.logAndJSONError(c, code, msg, logKey, err, kv...)
}

// Respond with a status and include current state if available (best-effort).
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	st, err := h.services.Monitoring.GetState(ctx)
	if err == nil {
		resp["state"] = st
	}
	c.JSON(http.StatusOK, resp)
}

type currentRequest struct {
	Amps *float64 `json:"amps" binding:"required"`
}

type singlePhaseRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// CurrentRequest is an exported model for Swagger docs of the current setters.
type CurrentRequest struct {
	// Requested current in amperes, minimum 6, clamped to the cable rating
	Amps float64 `json:"amps" example:"16"`
}

// SinglePhaseRequest is an exported model for Swagger docs of the single-phase switch.
type SinglePhaseRequest struct {
	Enabled bool `json:"enabled" example:"true"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Get charger status
// @Description  Returns the cached snapshot. "stale" is true when the last poll failed.
// @Tags         charger
// @Produce      json
// @Success      200  {object}  models.Snapshot
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/charger/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.services.Monitoring.GetState(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "charger_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Refresh charger status
// @Description  Polls the charger now. On failure the stale snapshot is returned next to the error.
// @Tags         charger
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]interface{}
// @Failure      502  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /api/v1/charger/refresh [post]
// @Security     BearerAuth
func (h *Handler) refreshStatus(c *gin.Context) {
	st, err := h.services.Monitoring.Refresh(c.Request.Context())
	if err != nil {
		code, msg := chargerErrorStatus(err)
		h.log.Warnw("charger_refresh_failed", "err", err, "failures", st.ConsecutiveFailures)
		c.JSON(code, gin.H{"error": msg, "state": st})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusRefreshed, "state": st})
}

// @Summary      Start charging
// @Tags         charger
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/charger/start [post]
// @Security     BearerAuth
func (h *Handler) startCharging(c *gin.Context) {
	if err := h.services.Charger.StartCharging(c.Request.Context()); err != nil {
		h.chargerError(c, "charger_start_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusStarted, gin.H{})
}

// @Summary      Stop charging
// @Tags         charger
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/charger/stop [post]
// @Security     BearerAuth
func (h *Handler) stopCharging(c *gin.Context) {
	if err := h.services.Charger.StopCharging(c.Request.Context()); err != nil {
		h.chargerError(c, "charger_stop_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusStopped, gin.H{})
}

// @Summary      Set maximum charging current
// @Description  Values below 6 A are rejected, values above the cable rating are clamped.
// @Tags         charger
// @Accept       json
// @Produce      json
// @Param        body  body      CurrentRequest  true  "Current payload"
// @Success      200   {object}  map[string]interface{}  "status, amps, state"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/charger/maximum-current [post]
// @Security     BearerAuth
func (h *Handler) setMaximumCurrent(c *gin.Context) {
	var req currentRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	applied, err := h.services.Charger.SetMaximumCurrent(c.Request.Context(), *req.Amps)
	if err != nil {
		h.chargerError(c, "charger_set_maximum_current_failed", err, "amps", *req.Amps)
		return
	}
	h.respondWithStatusAndState(c, statusMaximumCurrentSet, gin.H{"amps": applied})
}

// @Summary      Set target charging current
// @Description  Like maximum-current, additionally capped at the charger's reported maximum current.
// @Tags         charger
// @Accept       json
// @Produce      json
// @Param        body  body      CurrentRequest  true  "Current payload"
// @Success      200   {object}  map[string]interface{}  "status, amps, state"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/charger/target-current [post]
// @Security     BearerAuth
func (h *Handler) setTargetCurrent(c *gin.Context) {
	var req currentRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	applied, err := h.services.Charger.SetTargetCurrent(c.Request.Context(), *req.Amps)
	if err != nil {
		h.chargerError(c, "charger_set_target_current_failed", err, "amps", *req.Amps)
		return
	}
	h.respondWithStatusAndState(c, statusTargetCurrentSet, gin.H{"amps": applied})
}

// @Summary      Switch single-phase charging
// @Tags         charger
// @Accept       json
// @Produce      json
// @Param        body  body      SinglePhaseRequest  true  "Single-phase payload"
// @Success      200   {object}  map[string]interface{}  "status, enabled, state"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/charger/single-phase [post]
// @Security     BearerAuth
func (h *Handler) setSinglePhase(c *gin.Context) {
	var req singlePhaseRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Charger.SetSinglePhase(c.Request.Context(), *req.Enabled); err != nil {
		h.chargerError(c, "charger_set_single_phase_failed", err, "enabled", *req.Enabled)
		return
	}
	h.respondWithStatusAndState(c, statusSinglePhaseSet, gin.H{"enabled": *req.Enabled})
}
