package handler

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
	"github.com/noah-isme/assessment-archive/pkg/export"
	"github.com/noah-isme/assessment-archive/pkg/response"
)

type coverageReporter interface {
	Render(ctx context.Context, courseID *int64, format export.Format) ([]byte, error)
}

// ReportHandler exposes archive coverage reports.
type ReportHandler struct {
	coverage coverageReporter
}

// NewReportHandler constructs handler.
func NewReportHandler(coverage coverageReporter) *ReportHandler {
	return &ReportHandler{coverage: coverage}
}

// Coverage godoc
// @Summary Archive coverage report
// @Tags Reports
// @Produce text/csv,application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param courseId query int false "Restrict to a course"
// @Success 200 {file} binary
// @Router /reports/coverage [get]
func (h *ReportHandler) Coverage(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatCSV)))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	courseID, err := optionalInt64Query(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	body, err := h.coverage.Render(c.Request.Context(), courseID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	renderer, _ := export.NewRenderer(format)
	filename := fmt.Sprintf("archive-coverage-%s.%s", time.Now().UTC().Format("20060102"), format)
	response.Attachment(c, filename, renderer.ContentType(), int64(len(body)), bytes.NewReader(body))
}
