package handlers

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"YOGA_TRAINER/posecoach/internal/models"
	"YOGA_TRAINER/posecoach/internal/services"
)

// SessionService is the name reported on the grpc.health.v1 service.
const SessionService = "posecoach.Session"

type Prober interface {
	Health(ctx context.Context) bool
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ClientCounter interface {
	ActiveClients() int
}

// HealthReporter tracks the inference backend and database and publishes
// the result over HTTP and the standard gRPC health service.
type HealthReporter struct {
	server     *health.Server
	classifier Prober
	db         Pinger
	clients    ClientCounter
	metrics    *services.Metrics
	version    string

	inferenceUp atomic.Bool
	dbUp        atomic.Bool
}

func NewHealthReporter(classifier Prober, db Pinger, clients ClientCounter, metrics *services.Metrics, version string) *HealthReporter {
	if metrics == nil {
		metrics = services.GetMetrics()
	}
	return &HealthReporter{
		server:     health.NewServer(),
		classifier: classifier,
		db:         db,
		clients:    clients,
		metrics:    metrics,
		version:    version,
	}
}

func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Check probes every dependency once and updates the serving status.
func (h *HealthReporter) Check(ctx context.Context) {
	up := h.classifier != nil && h.classifier.Health(ctx)
	if up != h.inferenceUp.Load() {
		log.Printf("Inference backend healthy: %v", up)
	}
	h.inferenceUp.Store(up)

	dbUp := true
	if h.db != nil {
		dbUp = h.db.Ping(ctx) == nil
	}
	h.dbUp.Store(dbUp)

	status := healthpb.HealthCheckResponse_SERVING
	if !up || !dbUp {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.server.SetServingStatus(SessionService, status)
}

// Run calls Check every interval until ctx is done.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthReporter) Status() models.HealthStatus {
	status := "healthy"
	if !h.inferenceUp.Load() || !h.dbUp.Load() {
		status = "degraded"
	}
	active := 0
	if h.clients != nil {
		active = h.clients.ActiveClients()
	}
	return models.HealthStatus{
		Status:          status,
		GoBackend:       "running",
		InferenceUp:     h.inferenceUp.Load(),
		ActiveClients:   active,
		ActiveSessions:  h.metrics.GetActiveSessions(),
		UptimeSeconds:   int64(h.metrics.Uptime().Seconds()),
		Version:         h.version,
		DatabaseEnabled: h.db != nil,
	}
}

func (h *HealthReporter) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.Status())
}

func (h *HealthReporter) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	snap := h.metrics.Snapshot()
	snap["timestamp"] = time.Now().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, snap)
}
