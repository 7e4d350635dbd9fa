package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pscheid92/aurahealth/internal/platform/errors"
)

const testRemoteAddr = "1.2.3.4:1234"

func runLimited(t *testing.T, mw echo.MiddlewareFunc, remoteAddr string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/api/session/check", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	err := handler(echo.New().NewContext(req, rec))
	return rec, err
}

func TestCheckLimiter_AllowsBurst(t *testing.T) {
	mw := newCheckLimiter(10, 3)

	for range 3 {
		rec, err := runLimited(t, mw, testRemoteAddr)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestCheckLimiter_RejectsWithRetryAfter(t *testing.T) {
	mw := newCheckLimiter(0.1, 1)

	_, err := runLimited(t, mw, testRemoteAddr)
	require.NoError(t, err)

	rec, err := runLimited(t, mw, testRemoteAddr)
	appErr := apperrors.AsStructuredError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.TypeRateLimited, appErr.Type)
	assert.Equal(t, "1.2.3.4", appErr.Context["client_ip"])
	assert.Equal(t, 10, appErr.Context["retry_after_seconds"])
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
}

func TestCheckLimiter_ClientsAreIndependent(t *testing.T) {
	mw := newCheckLimiter(0.01, 1)

	_, err := runLimited(t, mw, testRemoteAddr)
	require.NoError(t, err)
	_, err = runLimited(t, mw, "5.6.7.8:5678")
	require.NoError(t, err)

	_, err = runLimited(t, mw, testRemoteAddr)
	assert.Error(t, err)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(5))
	assert.Equal(t, 1, retryAfterSeconds(1))
	assert.Equal(t, 4, retryAfterSeconds(0.25))
	assert.Equal(t, 1, retryAfterSeconds(0))
}
