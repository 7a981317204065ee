package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticket-inventory/internal/dto"
)

type fakeBackend struct {
	err error
}

func (b *fakeBackend) HealthCheck(ctx context.Context) error {
	return b.err
}

func TestHealthHandler_Health(t *testing.T) {
	router := setupTestRouter(newTestServices())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ticket-inventory", resp.Service)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name           string
		backends       map[string]HealthChecker
		expectedStatus int
		expectedState  string
	}{
		{
			name:           "no backends",
			expectedStatus: http.StatusOK,
			expectedState:  "ready",
		},
		{
			name: "all healthy",
			backends: map[string]HealthChecker{
				"postgres": &fakeBackend{},
				"redis":    &fakeBackend{},
			},
			expectedStatus: http.StatusOK,
			expectedState:  "ready",
		},
		{
			name: "unconfigured backend does not fail readiness",
			backends: map[string]HealthChecker{
				"postgres": &fakeBackend{},
				"kafka":    nil,
			},
			expectedStatus: http.StatusOK,
			expectedState:  "ready",
		},
		{
			name: "redis down",
			backends: map[string]HealthChecker{
				"postgres": &fakeBackend{},
				"redis":    &fakeBackend{err: errors.New("connection refused")},
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServices()
			s.backends = tt.backends
			router := setupTestRouter(s)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp dto.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedState, resp.Status)
			for name := range tt.backends {
				assert.Contains(t, resp.Backends, name)
			}
		})
	}
}
