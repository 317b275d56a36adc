package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/attend/internal/anomaly"
	"github.com/your-org/attend/internal/api"
	"github.com/your-org/attend/internal/api/ws"
	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/biometric"
	"github.com/your-org/attend/internal/certificate"
	"github.com/your-org/attend/internal/config"
	"github.com/your-org/attend/internal/consent"
	"github.com/your-org/attend/internal/observability"
	"github.com/your-org/attend/internal/queue"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/internal/vision"
	"github.com/your-org/attend/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting attendance API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Domain services
	ledger := consent.NewLedger(db, cfg.Consent.PolicyVersion)
	store := biometric.NewStore(db, ledger,
		cfg.Recognition.MaxTemplatesPerSubject,
		cfg.Recognition.AcceptThreshold,
		cfg.Recognition.CandidateLimit,
	)
	detector := &anomaly.Detector{
		RapidSuccessionWindow: cfg.Attendance.RapidSuccessionWindow,
		LowConfidence:         cfg.Recognition.LowConfidence,
		VeryLowConfidence:     cfg.Recognition.VeryLowConfidence,
	}
	anomalies := anomaly.NewService(db)
	att := attendance.NewService(db, detector, anomalies,
		cfg.Recognition.AcceptThreshold,
		cfg.Attendance.RecentHistoryWindow,
	)
	certs := certificate.NewService(db, minioStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume the event stream and fan it out to WebSocket clients
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		// Subject layout: attendance.<kind>.<sessionID>
		parts := strings.Split(msg.Subject(), ".")
		if len(parts) != 3 {
			return fmt.Errorf("unexpected subject %q", msg.Subject())
		}
		sessionID, err := uuid.Parse(parts[2])
		if err != nil {
			return fmt.Errorf("parse session id from subject %q: %w", msg.Subject(), err)
		}

		hub.BroadcastEvent(&dto.WSEvent{
			Type:      parts[1],
			SessionID: sessionID,
			Data:      msg.Data(),
		})
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Initialize ONNX Runtime for image enrollment. Raw descriptor enrollment
	// works without it.
	var embedFn func([]byte) ([]float64, float64, error)

	if cfg.Recognition.ModelPath != "" {
		ort.SetSharedLibraryPath(getONNXLibPath())
		if err := ort.InitializeEnvironment(); err != nil {
			slog.Warn("onnx runtime init failed, image enrollment unavailable", "error", err)
		} else {
			extractor, err := vision.NewExtractor(cfg.Recognition.ModelPath)
			if err != nil {
				slog.Warn("extractor init failed, image enrollment unavailable", "error", err)
			} else {
				embedFn = extractor.EmbedImage
				defer extractor.Close()
				defer ort.DestroyEnvironment()
				slog.Info("descriptor extractor ready", "model", cfg.Recognition.ModelPath)
			}
		}
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		DB:         db,
		MinIO:      minioStore,
		Producer:   producer,
		Hub:        hub,
		Ledger:     ledger,
		Store:      store,
		Attendance: att,
		Anomalies:  anomalies,
		Certs:      certs,
		EmbedFn:    embedFn,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
