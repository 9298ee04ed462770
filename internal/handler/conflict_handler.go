package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meetsync/meetsync-api/internal/service"
	appErrors "github.com/meetsync/meetsync-api/pkg/errors"
	"github.com/meetsync/meetsync-api/pkg/response"
)

// ConflictHandler wires HTTP endpoints to the conflict service.
type ConflictHandler struct {
	service *service.ConflictService
}

// NewConflictHandler creates a new handler.
func NewConflictHandler(svc *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{service: svc}
}

// Check godoc
// @Summary Check a proposed event for conflicts
// @Description Reconcile a proposed time against every participant's schedule
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param payload body service.CheckConflictsRequest true "Proposed event"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Security BearerAuth
// @Router /conflicts/check [post]
func (h *ConflictHandler) Check(c *gin.Context) {
	var req service.CheckConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conflict check payload"))
		return
	}

	report, err := h.service.CheckEvent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, report, nil)
}
