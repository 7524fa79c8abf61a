package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/colegio-adp-api/internal/service"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
	"github.com/noah-isme/colegio-adp-api/pkg/response"
)

// NotificationHandler exposes the contact-form endpoint.
type NotificationHandler struct {
	service *service.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// Contact godoc
// @Summary Send contact message
// @Description Relay a contact-form message to the school inbox
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.ContactRequest true "Contact payload"
// @Success 202 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /contact [post]
func (h *NotificationHandler) Contact(c *gin.Context) {
	var req service.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.SendContactMessage(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"message": "mensaje enviado"}, nil)
}
