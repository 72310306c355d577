package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		check    func(t *testing.T, id string)
	}{
		{
			name: "generated",
			check: func(t *testing.T, id string) {
				if _, err := uuid.Parse(id); err != nil {
					t.Errorf("X-Request-ID = %q, want a UUID: %v", id, err)
				}
			},
		},
		{
			name:     "kept from client",
			incoming: "edge-1234",
			check: func(t *testing.T, id string) {
				if id != "edge-1234" {
					t.Errorf("X-Request-ID = %q, want %q", id, "edge-1234")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(RequestID())
			e.GET("/test", func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			if tt.incoming != "" {
				req.Header.Set(echo.HeaderXRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			tt.check(t, rec.Header().Get(echo.HeaderXRequestID))
		})
	}
}
