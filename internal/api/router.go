package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/sam2engine/internal/api/handlers"
	"github.com/your-org/sam2engine/internal/api/ws"
	"github.com/your-org/sam2engine/internal/auth"
	"github.com/your-org/sam2engine/internal/capability"
	"github.com/your-org/sam2engine/internal/config"
	"github.com/your-org/sam2engine/internal/eventbus"
	"github.com/your-org/sam2engine/internal/modelstore"
	"github.com/your-org/sam2engine/internal/orchestrator"
	"github.com/your-org/sam2engine/internal/provider"
	"github.com/your-org/sam2engine/internal/storage"
)

// RouterConfig wires every collaborator the HTTP surface needs: the
// provider lifecycle, the orchestrated segmentation flow, the model
// store's cache/download reporting, the event-carrying WS hub, and the
// storage pings used by readyz.
type RouterConfig struct {
	APIKey string
	DB     *storage.PostgresStore
	MinIO  *storage.MinIOStore

	Provider   *provider.Provider
	Orch       *orchestrator.Orchestrator
	ModelStore *modelstore.Store
	Prober     *capability.Prober
	Bus        *eventbus.Bus
	ModelsCfg  config.ModelsConfig
	EngineCfg  config.EngineConfig
	Hub        *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket: mirrors orchestrator/provider events to connected clients.
	v1.GET("/ws", cfg.Hub.HandleWS)

	// GPU capability probe (C1).
	capH := handlers.NewCapabilityHandler(cfg.Prober)
	v1.GET("/capability", capH.Get)

	// Provider lifecycle (C6).
	providerH := handlers.NewProviderHandler(cfg.Provider, cfg.ModelStore, cfg.Prober, cfg.Bus, cfg.ModelsCfg, cfg.EngineCfg)
	v1.POST("/provider/init", providerH.Init)
	v1.GET("/provider/status", providerH.Status)
	v1.POST("/provider/dispose", providerH.Dispose)

	// Model store cache state (C2).
	modelsH := handlers.NewModelsHandler(cfg.ModelStore, cfg.ModelsCfg)
	v1.GET("/models/cached", modelsH.Cached)
	v1.GET("/models/download-info", modelsH.DownloadInfo)

	// Capture/segment/apply flow (C7).
	segH := handlers.NewSegmentHandler(cfg.Orch)
	v1.POST("/segment/capture", segH.Capture)
	v1.POST("/segment/run", segH.Segment)
	v1.POST("/segment/apply", segH.ApplyMask)
	v1.POST("/segment/cancel", segH.CancelMask)
	v1.POST("/segment/abort", segH.Abort)

	return r
}
