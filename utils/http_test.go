package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "ok", response["status"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteJSON(w, http.StatusNoContent, nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name            string
		write           func(w http.ResponseWriter) error
		expectedStatus  int
		expectedError   string
		expectedMessage string
	}{
		{
			name:            "bad request",
			write:           func(w http.ResponseWriter) error { return WriteBadRequest(w, "invalid body", nil) },
			expectedStatus:  http.StatusBadRequest,
			expectedError:   "bad_request",
			expectedMessage: "invalid body",
		},
		{
			name:            "unauthorized default message",
			write:           func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") },
			expectedStatus:  http.StatusUnauthorized,
			expectedError:   "unauthorized",
			expectedMessage: "Authentication required",
		},
		{
			name:            "forbidden default message",
			write:           func(w http.ResponseWriter) error { return WriteForbidden(w, "") },
			expectedStatus:  http.StatusForbidden,
			expectedError:   "forbidden",
			expectedMessage: "Access forbidden",
		},
		{
			name:            "not found",
			write:           func(w http.ResponseWriter) error { return WriteNotFound(w, "principal not found") },
			expectedStatus:  http.StatusNotFound,
			expectedError:   "not_found",
			expectedMessage: "principal not found",
		},
		{
			name:            "conflict",
			write:           func(w http.ResponseWriter) error { return WriteConflict(w, "already exists", nil) },
			expectedStatus:  http.StatusConflict,
			expectedError:   "conflict",
			expectedMessage: "already exists",
		},
		{
			name:            "too many requests default message",
			write:           func(w http.ResponseWriter) error { return WriteTooManyRequests(w, "", nil) },
			expectedStatus:  http.StatusTooManyRequests,
			expectedError:   "rate_limit_exceeded",
			expectedMessage: "Rate limit exceeded",
		},
		{
			name:            "service unavailable",
			write:           func(w http.ResponseWriter) error { return WriteServiceUnavailable(w, "") },
			expectedStatus:  http.StatusServiceUnavailable,
			expectedError:   "service_unavailable",
			expectedMessage: "Service unavailable",
		},
		{
			name:            "internal server error",
			write:           func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") },
			expectedStatus:  http.StatusInternalServerError,
			expectedError:   "internal_error",
			expectedMessage: "Internal server error",
		},
		{
			name:            "method not allowed",
			write:           func(w http.ResponseWriter) error { return WriteError(w, http.StatusMethodNotAllowed, "use POST", nil) },
			expectedStatus:  http.StatusMethodNotAllowed,
			expectedError:   "method_not_allowed",
			expectedMessage: "use POST",
		},
		{
			name:            "unknown status",
			write:           func(w http.ResponseWriter) error { return WriteError(w, http.StatusTeapot, "odd", nil) },
			expectedStatus:  http.StatusTeapot,
			expectedError:   "internal_error",
			expectedMessage: "odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedError, response.Error)
			assert.Equal(t, tt.expectedMessage, response.Message)
		})
	}
}

func TestWriteError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	details := map[string]interface{}{"code": "FORBIDDEN"}

	require.NoError(t, WriteError(w, http.StatusForbidden, "Staff access required.", details))

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "FORBIDDEN", response.Details["code"])
}
