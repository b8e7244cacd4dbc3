package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/sam2engine/internal/capability"
	"github.com/your-org/sam2engine/internal/config"
	"github.com/your-org/sam2engine/internal/engine"
	"github.com/your-org/sam2engine/internal/eventbus"
	"github.com/your-org/sam2engine/internal/modelstore"
	"github.com/your-org/sam2engine/internal/provider"
	"github.com/your-org/sam2engine/pkg/dto"
)

// ModelLoadProgressEvent is the event name fired on the bus for every
// model-download progress tick during init, mirrored onto both the
// WebSocket hub and the JetStream MODELLOAD stream (spec §4.6 overall
// progress aggregation).
const ModelLoadProgressEvent = "sam2.modelload.progress"

// ProviderHandler exposes the C6 lifecycle over HTTP: init (load models +
// start sessions), status, and dispose (spec §6, §4.6).
type ProviderHandler struct {
	prov   *provider.Provider
	store  *modelstore.Store
	prober *capability.Prober
	bus    *eventbus.Bus
	cfg    config.ModelsConfig
	eng    config.EngineConfig
}

func NewProviderHandler(prov *provider.Provider, store *modelstore.Store, prober *capability.Prober, bus *eventbus.Bus, cfg config.ModelsConfig, eng config.EngineConfig) *ProviderHandler {
	return &ProviderHandler{prov: prov, store: store, prober: prober, bus: bus, cfg: cfg, eng: eng}
}

func (h *ProviderHandler) Init(c *gin.Context) {
	var req dto.ProviderInitRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Kind: "InvalidArguments", Message: err.Error()})
		return
	}

	preferred := engine.Provider(h.eng.PreferredProvider)
	if req.PreferredProvider != "" {
		preferred = engine.Provider(req.PreferredProvider)
	}

	if preferred == engine.ProviderGPU {
		if report := h.prober.Probe(c.Request.Context()); !report.GPUAvailable {
			preferred = engine.ProviderCPU
		}
	}

	sources := provider.SourcesFor(h.cfg.EncoderURL, h.cfg.DecoderURL, h.cfg.ExpectedEncoderSize, h.cfg.ExpectedDecoderSize)

	artifacts, err := h.store.LoadAll(c.Request.Context(), sources, func(p modelstore.ProgressEvent) {
		h.bus.Fire(ModelLoadProgressEvent, p)
	})
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}

	result, err := h.prov.Initialize(c.Request.Context(), artifacts[modelstore.KeyEncoder], artifacts[modelstore.KeyDecoder], engine.Options{
		PreferredProvider: preferred,
		IntraOpThreads:    h.eng.IntraOpThreads,
		InterOpThreads:    h.eng.InterOpThreads,
		Verbose:           h.eng.Verbose,
		NumCandidates:     h.eng.NumCandidates,
	})
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, dto.ProviderInitResponse{ProviderUsed: result.ProviderUsed})
}

func (h *ProviderHandler) Status(c *gin.Context) {
	status := h.prov.Status()
	c.JSON(http.StatusOK, dto.ProviderStatusResponse{State: status.State})
}

func (h *ProviderHandler) Dispose(c *gin.Context) {
	h.prov.Dispose()
	c.Status(http.StatusNoContent)
}
