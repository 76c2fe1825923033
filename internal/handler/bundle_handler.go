package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-archive/internal/dto"
	"github.com/noah-isme/assessment-archive/internal/service"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
	"github.com/noah-isme/assessment-archive/pkg/response"
)

type bundleService interface {
	ListCourseBundles(ctx context.Context, courseID int64, activityID *int64) ([]dto.BundleResponse, error)
	Download(ctx context.Context, token string) (*service.BundleDownload, error)
}

// BundleHandler lists published bundles and streams their files.
type BundleHandler struct {
	service bundleService
}

// NewBundleHandler constructs the handler.
func NewBundleHandler(service bundleService) *BundleHandler {
	return &BundleHandler{service: service}
}

// CourseBundles godoc
// @Summary Published bundles of a course
// @Tags Bundles
// @Produce json
// @Param id path int true "Course ID"
// @Param activityId query int false "Restrict to an activity"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/bundles [get]
func (h *BundleHandler) CourseBundles(c *gin.Context) {
	courseID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	activityID, err := optionalInt64Query(c, "activityId")
	if err != nil {
		response.Error(c, err)
		return
	}
	bundles, err := h.service.ListCourseBundles(c.Request.Context(), courseID, activityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, bundles, len(bundles))
}

// Download godoc
// @Summary Download a bundle file through a signed link
// @Tags Bundles
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /bundles/download [get]
func (h *BundleHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	response.Attachment(c, result.Filename, result.MimeType, result.SizeBytes, result.File)
}
