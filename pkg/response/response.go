package response

import (
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
	"github.com/noah-isme/assessment-archive/pkg/middleware/requestid"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data  interface{}      `json:"data,omitempty"`
	Error *appErrors.Error `json:"error,omitempty"`
	Meta  *Meta            `json:"meta,omitempty"`
}

// Meta carries the request id so the LMS can correlate a response with the service log.
type Meta struct {
	RequestID string `json:"requestId,omitempty"`
	Count     *int   `json:"count,omitempty"`
}

// JSON sends a success response.
func JSON(c *gin.Context, status int, data interface{}) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Meta: meta(c, nil)})
}

// List sends a success response for a collection and reports its size in meta.count.
func List(c *gin.Context, data interface{}, count int) {
	noStore(c)
	c.JSON(http.StatusOK, Envelope{Data: data, Meta: meta(c, &count)})
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr, Meta: meta(c, nil)})
}

// Attachment streams a bundle or report as a download named filename.
func Attachment(c *gin.Context, filename, contentType string, size int64, body io.Reader) {
	noStore(c)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.DataFromReader(http.StatusOK, size, contentType, body, nil)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

func meta(c *gin.Context, count *int) *Meta {
	id := requestid.Value(c)
	if id == "" && count == nil {
		return nil
	}
	return &Meta{RequestID: id, Count: count}
}
