package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/colegio-adp-api/internal/service"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
	"github.com/noah-isme/colegio-adp-api/pkg/response"
)

// PeriodHandler exposes period lifecycle and lapse endpoints.
type PeriodHandler struct {
	service *service.PeriodService
}

// NewPeriodHandler constructs a period handler.
func NewPeriodHandler(svc *service.PeriodService) *PeriodHandler {
	return &PeriodHandler{service: svc}
}

// List godoc
// @Summary List periods
// @Tags Periods
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	periods, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, periods, nil)
}

// GetActive godoc
// @Summary Get active period
// @Tags Periods
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /periods/active [get]
func (h *PeriodHandler) GetActive(c *gin.Context) {
	period, err := h.service.GetActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Get godoc
// @Summary Get period
// @Tags Periods
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /periods/{id} [get]
func (h *PeriodHandler) Get(c *gin.Context) {
	period, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Create godoc
// @Summary Create period
// @Description Open a new ACTIVO school period
// @Tags Periods
// @Accept json
// @Produce json
// @Param payload body service.CreatePeriodRequest true "Period payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /periods [post]
func (h *PeriodHandler) Create(c *gin.Context) {
	var req service.CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	period, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// RequestDeactivationCode godoc
// @Summary Request deactivation code
// @Description Email a six-digit verification code to the requesting administrator
// @Tags Periods
// @Produce json
// @Param id path string true "Period ID"
// @Success 202 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /periods/{id}/deactivation-code [post]
func (h *PeriodHandler) RequestDeactivationCode(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.RequestDeactivationCode(c.Request.Context(), c.Param("id"), userInfoFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"message": "verification code sent"}, nil)
}

// Deactivate godoc
// @Summary Confirm period deactivation
// @Description Verify the emailed code and retire every INSCRITO enrollment
// @Tags Periods
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param payload body service.ConfirmDeactivationRequest true "Verification code"
// @Success 200 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /periods/{id}/deactivate [post]
func (h *PeriodHandler) Deactivate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ConfirmDeactivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.service.ConfirmDeactivation(c.Request.Context(), c.Param("id"), userInfoFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListLapses godoc
// @Summary List lapses of a period
// @Tags Periods
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /periods/{id}/lapses [get]
func (h *PeriodHandler) ListLapses(c *gin.Context) {
	lapses, err := h.service.ListLapses(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lapses, nil)
}

// CreateLapse godoc
// @Summary Create lapse
// @Tags Periods
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param payload body service.CreateLapseRequest true "Lapse payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /periods/{id}/lapses [post]
func (h *PeriodHandler) CreateLapse(c *gin.Context) {
	var req service.CreateLapseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lapse, err := h.service.CreateLapse(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lapse)
}

// SetLapseStatus godoc
// @Summary Change lapse status
// @Tags Periods
// @Accept json
// @Produce json
// @Param lapseId path string true "Lapse ID"
// @Param payload body service.SetLapseStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lapses/{lapseId}/status [put]
func (h *PeriodHandler) SetLapseStatus(c *gin.Context) {
	var req service.SetLapseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lapse, err := h.service.SetLapseStatus(c.Request.Context(), c.Param("lapseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lapse, nil)
}
