package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/context"
)

func TestContext(t *testing.T) {
	tests := []struct {
		name      string
		headers   map[string]string
		requestID string
		runID     string
	}{
		{"generates a request id", nil, "", ""},
		{"keeps the caller request id", map[string]string{echo.HeaderXRequestID: "req-1"}, "req-1", ""},
		{"carries the caller run id", map[string]string{HeaderRunID: "run-7"}, "", "run-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(Context())

			var gotRequestID, gotRunID, gotMethod string
			e.POST("/api/v1/match", func(c echo.Context) error {
				ctx := c.Request().Context()
				gotRequestID = context.GetRequestID(ctx)
				gotRunID = context.GetRunID(ctx)
				gotMethod = context.GetMethod(ctx)
				return c.NoContent(http.StatusAccepted)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/match", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusAccepted, rec.Code)
			assert.NotEmpty(t, gotRequestID)
			if tt.requestID != "" {
				assert.Equal(t, tt.requestID, gotRequestID)
			}
			assert.Equal(t, gotRequestID, rec.Header().Get(echo.HeaderXRequestID))
			assert.Equal(t, tt.runID, gotRunID)
			assert.Equal(t, tt.runID, rec.Header().Get(HeaderRunID))
			assert.Equal(t, http.MethodPost, gotMethod)
		})
	}
}
