package handlers

import (
	"net/http"

	"ixmanager_bridge/internal/models"
	"ixmanager_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

type setupRequest struct {
	SerialNumber string `json:"serial_number" binding:"required"`
	APIKey       string `json:"api_key" binding:"required"`
}

// SetupValidateRequest is an exported model for Swagger docs of the setup check.
type SetupValidateRequest struct {
	SerialNumber string `json:"serial_number" example:"ABC123"`
	APIKey       string `json:"api_key" example:"secret-key"`
}

// @Summary      Validate charger credentials
// @Description  Checks a serial number and API key against iXmanager. "result" is one of ok, invalid_auth, cannot_connect, unknown.
// @Tags         setup
// @Accept       json
// @Produce      json
// @Param        body  body      SetupValidateRequest  true  "Credentials"
// @Success      200   {object}  map[string]string  "result"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/setup/validate [post]
// @Security     BearerAuth
func (h *Handler) validateSetup(c *gin.Context) {
	var req setupRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	creds := models.Credentials{SerialNumber: req.SerialNumber, APIKey: req.APIKey}

	// the service logs failures; the cause stays server side
	result, _ := h.services.Setup.ValidateCredentials(c.Request.Context(), creds)
	c.JSON(http.StatusOK, gin.H{"result": result, "ok": result == service.SetupOK})
}
