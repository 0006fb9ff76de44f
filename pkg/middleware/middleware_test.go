package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Astemirdum/circulation-service/pkg/auth"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func whoami(c echo.Context) error {
	userID, role, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.String(http.StatusOK, userID+":"+role)
}

func TestAuthContext(t *testing.T) {
	e := echo.New()
	e.GET("/", whoami, AuthContext)

	tests := []struct {
		name       string
		userID     string
		role       string
		wantStatus int
		wantBody   string
	}{
		{name: "ok", userID: "alice", role: "student", wantStatus: http.StatusOK, wantBody: "alice:student"},
		{name: "no user", role: "student", wantStatus: http.StatusUnauthorized},
		{name: "no role", userID: "alice", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.userID != "" {
				req.Header.Set(auth.XUserIDHeader, tt.userID)
			}
			if tt.role != "" {
				req.Header.Set(auth.XUserRoleHeader, tt.role)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestNewRateLimiter(t *testing.T) {
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewRateLimiter(1))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	require.Equal(t, http.StatusOK, codes[0])
	require.Contains(t, codes[1:], http.StatusTooManyRequests)
}

func TestRequestLoggerConfig(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := echo.New()
	e.Use(echoRequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/fail", func(c echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "busy") })

	for _, path := range []string{"/ok", "/fail"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	require.Equal(t, "echo", entries[0].LoggerName)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, zap.ErrorLevel, entries[1].Level)
	require.EqualValues(t, http.StatusConflict, entries[1].ContextMap()["status"])
}

func echoRequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(RequestLoggerConfig(log))
}
