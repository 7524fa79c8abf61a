package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/colegio-adp-api/internal/service"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
	"github.com/noah-isme/colegio-adp-api/pkg/response"
)

// RosterHandler exposes the cursor-paginated roster browser. Navigation
// state lives server side, keyed by session: the X-Session-ID header when
// the client sends one, the authenticated user otherwise.
type RosterHandler struct {
	service *service.RosterService
}

// NewRosterHandler constructs a roster handler.
func NewRosterHandler(svc *service.RosterService) *RosterHandler {
	return &RosterHandler{service: svc}
}

func (h *RosterHandler) sessionID(c *gin.Context) string {
	if sid := c.GetHeader("X-Session-ID"); sid != "" {
		return sid
	}
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

// Page godoc
// @Summary Load roster page
// @Description Navigate the collection to the target page
// @Tags Roster
// @Produce json
// @Param collection path string true "Collection (students, sections, enrollments)"
// @Param page query int false "Target page"
// @Param reload query bool false "Discard cached cursors and reload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /roster/{collection} [get]
func (h *RosterHandler) Page(c *gin.Context) {
	sessionID := h.sessionID(c)
	if sessionID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer"))
		return
	}
	reload, _ := strconv.ParseBool(c.DefaultQuery("reload", "false"))

	view, err := h.service.LoadPage(c.Request.Context(), sessionID, c.Param("collection"), page, reload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Search godoc
// @Summary Search roster
// @Description Filter the collection by a case-insensitive substring. Calls
// are debounced per session; a superseded call returns 202 with no body.
// @Tags Roster
// @Produce json
// @Param collection path string true "Collection (students, sections, enrollments)"
// @Param q query string true "Query"
// @Param field query string false "Restrict matching to one field"
// @Success 200 {object} response.Envelope
// @Success 202
// @Router /roster/{collection}/search [get]
func (h *RosterHandler) Search(c *gin.Context) {
	sessionID := h.sessionID(c)
	if sessionID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	view, err := h.service.Search(c.Request.Context(), sessionID, c.Param("collection"), c.Query("q"), c.Query("field"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if view == nil {
		// Superseded by a newer keystroke.
		c.Status(http.StatusAccepted)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Reset godoc
// @Summary Reset roster state
// @Description Drop the session's cached cursors for a collection
// @Tags Roster
// @Produce json
// @Param collection path string true "Collection (students, sections, enrollments)"
// @Success 204
// @Router /roster/{collection} [delete]
func (h *RosterHandler) Reset(c *gin.Context) {
	sessionID := h.sessionID(c)
	if sessionID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	h.service.Reset(sessionID, c.Param("collection"))
	response.NoContent(c)
}
