package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/dto"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
	"github.com/noah-isme/assessment-archive/pkg/response"
)

type eventObserver interface {
	HandleEvent(ctx context.Context, event dto.EventRequest) (bool, error)
}

// EventHandler receives attempt and activity events forwarded by the LMS.
type EventHandler struct {
	observer  eventObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventHandler constructs the handler.
func NewEventHandler(observer eventObserver, validate *validator.Validate, logger *zap.Logger) *EventHandler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{observer: observer, validator: validate, logger: logger}
}

// Receive godoc
// @Summary Receive an LMS event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.EventRequest true "Event"
// @Success 202 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Receive(c *gin.Context) {
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid event payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error()))
		return
	}

	scheduled, err := h.observer.HandleEvent(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("event handling failed",
			zap.String("event", req.Event),
			zap.Int64("activity_id", req.ActivityID),
			zap.String("actor", actorFromContext(c)),
			zap.Error(err),
		)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.EventResponse{Event: req.Event, Scheduled: scheduled})
}
