package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"YOGA_TRAINER/posecoach/internal/config"
	"YOGA_TRAINER/posecoach/internal/database"
	"YOGA_TRAINER/posecoach/internal/handlers"
	"YOGA_TRAINER/posecoach/internal/models"
	"YOGA_TRAINER/posecoach/internal/services"
	"YOGA_TRAINER/posecoach/internal/session"
)

const version = "1.0"

type classifier interface {
	session.Classifier
	handlers.Prober
	Close() error
}

func main() {
	cfg := config.LoadConfig()

	httpPort := flag.String("http-port", cfg.HTTPPort, "HTTP port")
	grpcPort := flag.String("grpc-port", cfg.GRPCPort, "gRPC port")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("Starting...")
	log.Printf("gRPC port: %s", *grpcPort)
	log.Printf("HTTP port: %s", *httpPort)
	log.Printf("Inference: %s", cfg.InferenceMode)
	log.Printf("Environment: %s", cfg.Environment)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := services.GetMetrics()

	clf, err := newClassifier(cfg)
	if err != nil {
		log.Fatalf("Inference backend unavailable: %v", err)
	}
	defer clf.Close()

	var store *database.Store
	if cfg.DBEnabled {
		log.Printf("Connecting to database: %s", cfg.DSNForLog())
		store, err = database.Open(ctx, cfg.DSN())
		if err != nil {
			log.Fatalf("Database unavailable: %v", err)
		}
		defer store.Close()
	}

	var remote *services.ActivityClient
	if cfg.RemoteActivityLog() {
		remote, err = services.NewActivityClient(cfg.ActivityLogURL, cfg.RequestTimeout)
		if err != nil {
			log.Fatalf("Activity backend: %v", err)
		}
		if cfg.ActivityEmail != "" {
			if err := remote.Login(ctx, cfg.ActivityEmail, cfg.ActivityPassword); err != nil {
				log.Printf("Activity backend login failed: %v", err)
			}
		}
		log.Printf("Persisting holds to %s", cfg.ActivityLogURL)
	}

	assist := services.NewAssistClient(cfg.AssistURL, cfg.RequestTimeout)
	auth := handlers.NewAuthSessions()

	sessionCfg := session.Config{
		CaptureInterval:  cfg.CaptureInterval,
		GracePeriod:      cfg.GracePeriod,
		ConfirmationTime: cfg.ConfirmationTime,
		RequestTimeout:   cfg.RequestTimeout,
		Stabilization:    cfg.Stabilization,
		Language:         cfg.Language,
	}
	factory := func(userID int, events session.EventSink) *session.Controller {
		deps := session.Deps{
			Classifier: clf,
			Assistant:  assist,
			Events:     events,
			Metrics:    metrics,
		}
		switch {
		case remote != nil:
			deps.Activities = remote
			deps.Beacon = services.NewHTTPBeacon(remote)
		case store != nil:
			userLog := store.ForUser(userID)
			deps.Activities = userLog
			deps.Beacon = services.NewBeacon(func(e models.PoseLogEntry) error {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
				defer cancel()
				_, err := userLog.LogActivity(ctx, e)
				return err
			})
		}
		if store != nil {
			deps.Sessions = store
		}
		return session.NewController(sessionCfg, deps)
	}

	hub := handlers.NewSessionHub(handlers.HubConfig{
		RequireAuth:    store != nil && remote == nil,
		Language:       cfg.Language,
		RequestTimeout: cfg.RequestTimeout,
		MaxMessageSize: int64(cfg.MaxMessageSizeMB) << 20,
		AllowedOrigin:  cfg.CORSOrigins,
	}, factory, auth, assist, metrics)

	var db handlers.Pinger
	if store != nil {
		db = store
	}
	reporter := handlers.NewHealthReporter(clf, db, hub, metrics, version)
	go reporter.Run(ctx, 10*time.Second)

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxMessageSizeMB<<20),
		grpc.MaxSendMsgSize(cfg.MaxMessageSizeMB<<20),
	)
	reporter.Register(grpcServer)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/api/health", reporter.HandleHealth)
	mux.HandleFunc("/api/metrics", reporter.HandleMetrics)
	if store != nil {
		handlers.NewAPI(store, store, auth, cfg.CORSOrigins).Routes(mux)
	}

	httpServer := &http.Server{
		Addr:         ":" + trimPort(*httpPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Println("Starting gRPC server...")
	go startGRPCServer(grpcServer, *grpcPort)

	log.Println("Starting HTTP server...")
	go startHTTPServer(httpServer)

	<-done
	log.Println("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	log.Println("Stopping live sessions...")
	hub.Close(shutdownCtx)
	reporter.Shutdown()

	stopped := make(chan struct{})
	go func() {
		log.Println("Stopping gRPC server...")
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		log.Println("Stopped")
	case <-shutdownCtx.Done():
		log.Println("Forced shutdown")
		grpcServer.Stop()
	}

	log.Println("Stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	} else {
		log.Println("HTTP server gracefully stopped")
	}

	log.Println("Goodbye!")
}

func newClassifier(cfg *config.Config) (classifier, error) {
	if cfg.UseGRPCInference() {
		gc, err := services.NewGRPCClassifier(cfg.InferenceGRPCAddr, cfg.RequestTimeout)
		if err != nil {
			return nil, err
		}
		return gc, nil
	}
	return services.NewPredictClient(cfg.PredictURL, cfg.RequestTimeout), nil
}

func trimPort(port string) string {
	return strings.TrimPrefix(port, ":")
}

func startGRPCServer(s *grpc.Server, grpcPort string) {
	port := trimPort(grpcPort)
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Fatalf("failed to listen on gRPC port %v", err)
	}

	log.Printf("gRPC server listening on port %s", port)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("failed to serve gRPC server %v", err)
	}
}

func startHTTPServer(s *http.Server) {
	log.Printf("HTTP server listening on %s", s.Addr)
	log.Printf("WebSocket:  ws://localhost%s/ws", s.Addr)
	log.Printf("REST API:   http://localhost%s/api/*", s.Addr)

	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to serve HTTP: %v", err)
	}
}
