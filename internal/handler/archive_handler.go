package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/dto"
	"github.com/noah-isme/assessment-archive/internal/models"
	"github.com/noah-isme/assessment-archive/internal/service"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
	"github.com/noah-isme/assessment-archive/pkg/response"
)

const defaultHistoryLimit = 50

type archivingPolicy interface {
	Evaluate(ctx context.Context, activityID int64) (*service.PolicyDecision, error)
	SetArchivingEnabled(ctx context.Context, activityID int64, enabled bool, method *string) (bool, error)
	ResetArchivingEnabled(ctx context.Context, activityID int64) error
}

type initialArchiver interface {
	ArchivingEnabled(ctx context.Context, activityID int64) (bool, error)
}

type archiveHistory interface {
	HasBeenArchived(ctx context.Context, activityID int64) (bool, error)
	ListNeverArchived(ctx context.Context, courseID *int64) ([]models.CourseActivity, error)
	ListByActivity(ctx context.Context, activityID int64, limit int) (*dto.ActivityHistoryResponse, error)
}

type activityLookup interface {
	GetActivity(ctx context.Context, activityID int64) (*models.Activity, error)
}

// ArchiveHandler exposes per activity archiving settings and history.
type ArchiveHandler struct {
	policy     archivingPolicy
	archiver   initialArchiver
	history    archiveHistory
	activities activityLookup
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewArchiveHandler constructs the handler. activities may be nil to skip existence checks.
func NewArchiveHandler(policy archivingPolicy, archiver initialArchiver, history archiveHistory, activities activityLookup, validate *validator.Validate, logger *zap.Logger) *ArchiveHandler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveHandler{
		policy:     policy,
		archiver:   archiver,
		history:    history,
		activities: activities,
		validator:  validate,
		logger:     logger,
	}
}

// GetArchiving godoc
// @Summary Effective archiving policy of an activity
// @Tags Archiving
// @Produce json
// @Param id path int true "Activity (course module) ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/archiving [get]
func (h *ArchiveHandler) GetArchiving(c *gin.Context) {
	activityID, err := h.activityID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.status(c.Request.Context(), activityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// UpdateArchiving godoc
// @Summary Enable or disable archiving for an activity
// @Tags Archiving
// @Accept json
// @Produce json
// @Param id path int true "Activity (course module) ID"
// @Param payload body dto.ArchivingSettingRequest true "Setting"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/archiving [put]
func (h *ArchiveHandler) UpdateArchiving(c *gin.Context) {
	activityID, err := h.activityID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ArchivingSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid archiving payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error()))
		return
	}

	ctx := c.Request.Context()
	flipped, err := h.policy.SetArchivingEnabled(ctx, activityID, *req.Enabled, req.Method)
	if err != nil {
		response.Error(c, err)
		return
	}

	scheduled := false
	if flipped && h.archiver != nil {
		scheduled, err = h.archiver.ArchivingEnabled(ctx, activityID)
		if err != nil {
			h.logger.Warn("initial archiving not scheduled", zap.Int64("activity_id", activityID), zap.Error(err))
			response.Error(c, err)
			return
		}
	}

	status, err := h.status(ctx, activityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("archiving setting updated",
		zap.Int64("activity_id", activityID),
		zap.Bool("enabled", status.Enabled),
		zap.Bool("scheduled", scheduled),
		zap.String("actor", actorFromContext(c)),
	)
	response.JSON(c, http.StatusOK, dto.ArchivingUpdateResponse{ArchivingStatusResponse: *status, Scheduled: scheduled})
}

// ResetArchiving godoc
// @Summary Drop the explicit archiving flag of an activity
// @Tags Archiving
// @Produce json
// @Param id path int true "Activity (course module) ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/archiving [delete]
func (h *ArchiveHandler) ResetArchiving(c *gin.Context) {
	activityID, err := h.activityID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.policy.ResetArchivingEnabled(ctx, activityID); err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.status(ctx, activityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("archiving setting reset", zap.Int64("activity_id", activityID), zap.String("actor", actorFromContext(c)))
	response.JSON(c, http.StatusOK, status)
}

// ActivityHistory godoc
// @Summary Archive history and recent jobs of an activity
// @Tags Archiving
// @Produce json
// @Param id path int true "Activity (course module) ID"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/history [get]
func (h *ArchiveHandler) ActivityHistory(c *gin.Context) {
	activityID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, convErr := strconv.Atoi(raw)
		if convErr != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid limit"))
			return
		}
		limit = parsed
	}
	result, err := h.history.ListByActivity(c.Request.Context(), activityID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// NeverArchived godoc
// @Summary Archivable activities without any bundle
// @Tags Archiving
// @Produce json
// @Param courseId query int false "Restrict to a course"
// @Success 200 {object} response.Envelope
// @Router /history/never-archived [get]
func (h *ArchiveHandler) NeverArchived(c *gin.Context) {
	courseID, err := optionalInt64Query(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	activities, err := h.history.ListNeverArchived(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if activities == nil {
		activities = []models.CourseActivity{}
	}
	response.JSON(c, http.StatusOK, dto.NeverArchivedResponse{CourseID: courseID, Activities: activities})
}

func (h *ArchiveHandler) activityID(c *gin.Context) (int64, error) {
	activityID, err := int64Param(c, "id")
	if err != nil {
		return 0, err
	}
	if h.activities == nil {
		return activityID, nil
	}
	if _, err := h.activities.GetActivity(c.Request.Context(), activityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.ErrActivityNotFound
		}
		return 0, appErrors.Internal(err, "failed to load activity")
	}
	return activityID, nil
}

func (h *ArchiveHandler) status(ctx context.Context, activityID int64) (*dto.ArchivingStatusResponse, error) {
	decision, err := h.policy.Evaluate(ctx, activityID)
	if err != nil {
		return nil, err
	}
	archived, err := h.history.HasBeenArchived(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return &dto.ArchivingStatusResponse{
		ActivityID: activityID,
		Enabled:    decision.Enabled,
		Source:     decision.Source,
		Explicit:   decision.Explicit,
		Method:     decision.Method,
		Archived:   archived,
	}, nil
}
