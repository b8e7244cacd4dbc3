package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/your-org/sam2engine/internal/api/handlers"
	"github.com/your-org/sam2engine/internal/capability"
	"github.com/your-org/sam2engine/pkg/dto"
)

func TestCapabilityHandlerGetReturnsProbeReport(t *testing.T) {
	gin.SetMode(gin.TestMode)

	prober := capability.NewProber(capability.Thresholds{})
	// Warm the cache so Get doesn't shell out during the request.
	prober.Probe(context.Background())

	h := handlers.NewCapabilityHandler(prober)

	r := gin.New()
	r.GET("/v1/capability", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/v1/capability", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.CapabilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// In this sandbox there is no GPU, so the report must be internally
	// consistent with "not available".
	if !resp.GPUAvailable {
		require.False(t, resp.IsDiscreteGPU)
		require.False(t, resp.IsLowVRAM)
	}
}
