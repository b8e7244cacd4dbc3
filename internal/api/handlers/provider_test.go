package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/your-org/sam2engine/internal/api/handlers"
	"github.com/your-org/sam2engine/internal/capability"
	"github.com/your-org/sam2engine/internal/config"
	"github.com/your-org/sam2engine/internal/engine"
	"github.com/your-org/sam2engine/internal/eventbus"
	"github.com/your-org/sam2engine/internal/modelstore"
	"github.com/your-org/sam2engine/internal/provider"
	"github.com/your-org/sam2engine/pkg/dto"
)

func newTestProviderHandler(t *testing.T) *handlers.ProviderHandler {
	backend, err := modelstore.NewDiskBackend(t.TempDir())
	require.NoError(t, err)
	store := modelstore.New(backend)

	prov := provider.New(engine.New())
	prober := capability.NewProber(capability.Thresholds{})
	bus := eventbus.New()

	return handlers.NewProviderHandler(prov, store, prober, bus, config.ModelsConfig{}, config.EngineConfig{})
}

func TestProviderStatusReportsIdleBeforeInit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestProviderHandler(t)

	r := gin.New()
	r.GET("/v1/provider/status", h.Status)

	req := httptest.NewRequest(http.MethodGet, "/v1/provider/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.ProviderStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "idle", resp.State)
}

func TestProviderDisposeReturnsNoContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestProviderHandler(t)

	r := gin.New()
	r.POST("/v1/provider/dispose", h.Dispose)

	req := httptest.NewRequest(http.MethodPost, "/v1/provider/dispose", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestProviderInitFailsWithEmptyModelURLs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestProviderHandler(t)

	r := gin.New()
	r.POST("/v1/provider/init", h.Init)

	req := httptest.NewRequest(http.MethodPost, "/v1/provider/init", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// Empty EncoderURL/DecoderURL gives LoadAll a request with no URL
	// scheme, so the HTTP client fails to send it, surfacing as a network
	// error.
	require.Equal(t, http.StatusBadGateway, w.Code)
}
