package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5123"
	require.Equal(t, "192.0.2.10", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.4")
	require.Equal(t, "198.51.100.4", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	require.Equal(t, "198.51.100.4", ClientIP(req))

	require.Empty(t, ClientIP(nil))
}

func TestJSONError(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONError(rr, http.StatusConflict, "NO_PENDING", "no pending addition", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":{"code":"NO_PENDING","message":"no pending addition"}}`, rr.Body.String())
}

func TestAppErrorUnwrap(t *testing.T) {
	base := http.ErrNoCookie
	err := NewAppError("X", "x", http.StatusTeapot, base).WithDetails(map[string]any{"a": 1})
	require.ErrorIs(t, err, base)
	require.Equal(t, base.Error(), err.Error())
	require.Equal(t, map[string]any{"a": 1}, err.Details)
}
