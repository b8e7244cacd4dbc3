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
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/sam2engine/internal/api"
	"github.com/your-org/sam2engine/internal/api/handlers"
	"github.com/your-org/sam2engine/internal/api/ws"
	"github.com/your-org/sam2engine/internal/capability"
	"github.com/your-org/sam2engine/internal/config"
	"github.com/your-org/sam2engine/internal/engine"
	"github.com/your-org/sam2engine/internal/eventbus"
	"github.com/your-org/sam2engine/internal/external"
	"github.com/your-org/sam2engine/internal/modelstore"
	"github.com/your-org/sam2engine/internal/observability"
	"github.com/your-org/sam2engine/internal/orchestrator"
	"github.com/your-org/sam2engine/internal/provider"
	"github.com/your-org/sam2engine/internal/storage"
)

// Events mirrored onto both the WebSocket hub and (when NATS is configured)
// an external subject, so out-of-process observers see the same stream
// connected browser clients do (spec §4.4, §6).
var mirroredEvents = []string{
	orchestrator.EventCaptured,
	orchestrator.EventSegmentProgress,
	orchestrator.EventSegmentComplete,
	orchestrator.EventMaskApplied,
	orchestrator.EventMaskCancelled,
	orchestrator.EventError,
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting sam2engine service", "port", cfg.Server.Port)

	// Connect to Postgres (segmentation run audit log).
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO, only needed when the model cache backend is minio.
	var minioStore *storage.MinIOStore
	if cfg.Cache.Backend == "minio" {
		minioStore, err = storage.NewMinIOStore(cfg.Cache.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
	}

	// Optional NATS mirror of segmentation events for out-of-process
	// observers (spec §6 event-bus external surface).
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			slog.Warn("connect to nats — event mirroring disabled", "error", err)
		} else {
			defer nc.Close()
		}
	}

	// Model Store (C2): disk or minio-backed cache for the encoder/decoder.
	backend, err := buildCacheBackend(cfg, minioStore)
	if err != nil {
		slog.Error("build model cache backend", "error", err)
		os.Exit(1)
	}
	store := modelstore.New(backend)

	// GPU capability probe (C1).
	prober := capability.NewProber(capability.Thresholds{
		LowVRAMThresholdBytes: cfg.Capability.LowVRAMThresholdBytes,
		FallbackVRAMBytes:     cfg.Capability.FallbackVRAMBytes,
	})
	if report := prober.Probe(context.Background()); report.GPUAvailable {
		slog.Info("gpu capability detected", "name", report.Name, "vram_bytes", report.VRAMBytes, "low_vram", report.IsLowVRAM)
	} else {
		slog.Info("no gpu capability detected, will run on cpu")
	}

	// ONNX Runtime environment (C4): one process-wide init/destroy pair.
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("onnx runtime init failed", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	eng := engine.New()
	prov := provider.New(eng)

	// Event bus (C7 collaborator) + optional NATS mirror + WS hub.
	bus := eventbus.New()
	if nc != nil {
		mirror := eventbus.NewNATSMirror(nc, cfg.NATS.EventSubject)
		mirror.Attach(bus, mirroredEvents...)

		js, jerr := jetstream.New(nc)
		if jerr != nil {
			slog.Warn("create jetstream context — model load replay disabled", "error", jerr)
		} else {
			jsMirror := eventbus.NewJetStreamMirror(js, cfg.NATS.EventSubject+".modelload")
			if err := jsMirror.EnsureStream(context.Background()); err != nil {
				slog.Warn("ensure modelload jetstream stream — replay disabled", "error", err)
			} else {
				jsMirror.Attach(bus, handlers.ModelLoadProgressEvent)
			}
		}
	}

	hub := ws.NewHub()
	go hub.Run()
	hub.AttachBus(bus, mirroredEvents...)
	hub.AttachBus(bus, handlers.ModelLoadProgressEvent)

	orch := orchestrator.New(bus, prov, external.NoopRenderer{}, external.NoopSelectionSink{}).WithAuditLog(db)

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		DB:         db,
		MinIO:      minioStore,
		Provider:   prov,
		Orch:       orch,
		ModelStore: store,
		Prober:     prober,
		Bus:        bus,
		ModelsCfg:  cfg.Models,
		EngineCfg:  cfg.Engine,
		Hub:        hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("sam2engine server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down sam2engine server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	prov.Dispose()

	slog.Info("sam2engine server stopped")
}

func buildCacheBackend(cfg *config.Config, minioStore *storage.MinIOStore) (modelstore.CacheBackend, error) {
	switch cfg.Cache.Backend {
	case "minio":
		return modelstore.NewMinIOBackend(minioStore, "sam2-models"), nil
	default:
		return modelstore.NewDiskBackend(cfg.Cache.Disk.Dir)
	}
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
