package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"YOGA_TRAINER/posecoach/internal/models"
	"YOGA_TRAINER/posecoach/internal/services"
)

type probe bool

func (p probe) Health(context.Context) bool { return bool(p) }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type fixedClients int

func (n fixedClients) ActiveClients() int { return int(n) }

func TestHealthReporter_Serving(t *testing.T) {
	m := services.NewMetrics()
	m.AddActiveSessions(2)
	h := NewHealthReporter(probe(true), pinger{}, fixedClients(3), m, "1.0")
	h.Check(context.Background())

	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: SessionService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	var status models.HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 3, status.ActiveClients)
	assert.Equal(t, 2, status.ActiveSessions)
	assert.True(t, status.DatabaseEnabled)
}

func TestHealthReporter_Degraded(t *testing.T) {
	h := NewHealthReporter(probe(true), pinger{err: errors.New("conn refused")}, nil, services.NewMetrics(), "1.0")
	h.Check(context.Background())

	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: SessionService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
	assert.Equal(t, "degraded", h.Status().Status)

	h = NewHealthReporter(probe(false), nil, nil, services.NewMetrics(), "1.0")
	h.Check(context.Background())
	assert.False(t, h.Status().InferenceUp)
	assert.False(t, h.Status().DatabaseEnabled)
}

func TestHealthReporter_Metrics(t *testing.T) {
	m := services.NewMetrics()
	m.IncrementFrames()
	m.RecordHold(true, nil)
	h := NewHealthReporter(probe(true), nil, nil, m, "1.0")

	rec := httptest.NewRecorder()
	h.HandleMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, float64(1), snap["total_frames"])
	assert.Equal(t, float64(1), snap["holds_persisted"])

	rec = httptest.NewRecorder()
	h.HandleMetrics(rec, httptest.NewRequest(http.MethodPost, "/api/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
