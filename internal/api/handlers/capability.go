package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/sam2engine/internal/capability"
	"github.com/your-org/sam2engine/pkg/dto"
)

// CapabilityHandler exposes the GPU capability probe (C1) over HTTP, so a
// caller can decide up front whether requesting the GPU provider makes
// sense (spec §4.1, §9).
type CapabilityHandler struct {
	prober *capability.Prober
}

func NewCapabilityHandler(prober *capability.Prober) *CapabilityHandler {
	return &CapabilityHandler{prober: prober}
}

func (h *CapabilityHandler) Get(c *gin.Context) {
	report := h.prober.Probe(c.Request.Context())
	c.JSON(http.StatusOK, dto.CapabilityResponse{
		GPUAvailable:  report.GPUAvailable,
		IsDiscreteGPU: report.IsDiscreteGPU,
		VRAMBytes:     report.VRAMBytes,
		IsLowVRAM:     report.IsLowVRAM,
		Name:          report.Name,
	})
}
