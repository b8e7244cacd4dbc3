package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/sam2engine/internal/config"
	"github.com/your-org/sam2engine/internal/modelstore"
	"github.com/your-org/sam2engine/pkg/dto"
)

// ModelsHandler reports Model Store (C2) cache state and expected
// download sizes, so a caller can show progress before kicking off
// Init (spec §4.6).
type ModelsHandler struct {
	store *modelstore.Store
	cfg   config.ModelsConfig
}

func NewModelsHandler(store *modelstore.Store, cfg config.ModelsConfig) *ModelsHandler {
	return &ModelsHandler{store: store, cfg: cfg}
}

func (h *ModelsHandler) Cached(c *gin.Context) {
	encCached, err := h.store.IsCached(c.Request.Context(), modelstore.KeyEncoder)
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}
	decCached, err := h.store.IsCached(c.Request.Context(), modelstore.KeyDecoder)
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, dto.ModelCacheStatusResponse{
		EncoderCached: encCached,
		DecoderCached: decCached,
	})
}

func (h *ModelsHandler) DownloadInfo(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ModelDownloadInfoResponse{
		EncoderBytes: h.cfg.ExpectedEncoderSize,
		DecoderBytes: h.cfg.ExpectedDecoderSize,
		TotalBytes:   h.cfg.ExpectedEncoderSize + h.cfg.ExpectedDecoderSize,
	})
}
