package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
	"github.com/noah-isme/assessment-archive/pkg/middleware/requestid"
)

func serve(t *testing.T, h gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/", h)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorCarriesRequestID(t *testing.T) {
	w := serve(t, func(c *gin.Context) {
		Error(c, appErrors.ErrArchiveDirectoryNotSet)
	})
	require.Equal(t, appErrors.ErrArchiveDirectoryNotSet.Status, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var envelope Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	require.Equal(t, appErrors.ErrArchiveDirectoryNotSet.Code, envelope.Error.Code)
	require.NotNil(t, envelope.Meta)
	require.Equal(t, "req-42", envelope.Meta.RequestID)
	require.Nil(t, envelope.Meta.Count)
}

func TestListReportsCount(t *testing.T) {
	w := serve(t, func(c *gin.Context) {
		List(c, []string{"a.json", "b.json"}, 2)
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":["a.json","b.json"],"meta":{"requestId":"req-42","count":2}}`, w.Body.String())
}

func TestJSONWithoutRequestIDOmitsMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(c, http.StatusAccepted, map[string]bool{"scheduled": true})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.JSONEq(t, `{"data":{"scheduled":true}}`, w.Body.String())
}

func TestAttachmentQuotesFilename(t *testing.T) {
	w := serve(t, func(c *gin.Context) {
		Attachment(c, "17-2-2026-03-14T09:26:53Z.json", "application/json", 2, strings.NewReader("{}"))
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `attachment; filename="17-2-2026-03-14T09:26:53Z.json"`, w.Header().Get("Content-Disposition"))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Equal(t, "{}", w.Body.String())
}
