package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsDiscreteGPUNameMatchesKnownVendors(t *testing.T) {
	require.True(t, isDiscreteGPUName("NVIDIA GeForce RTX 4090"))
	require.True(t, isDiscreteGPUName("Quadro P2000"))
	require.True(t, isDiscreteGPUName("AMD Radeon RX 6800"))
	require.False(t, isDiscreteGPUName("Intel(R) UHD Graphics 630"))
	require.False(t, isDiscreteGPUName(""))
}

func TestQueryNvidiaSMIFailsGracefullyWhenBinaryMissing(t *testing.T) {
	// In this sandbox nvidia-smi is not installed, so the query must fall
	// back to an empty report rather than erroring.
	name, vram := queryNvidiaSMI(context.Background())
	require.Empty(t, name)
	require.Zero(t, vram)
}

func TestProbeCachesResultAcrossCalls(t *testing.T) {
	p := NewProber(Thresholds{LowVRAMThresholdBytes: 4 << 30, FallbackVRAMBytes: 8 << 30})

	first := p.Probe(context.Background())
	second := p.Probe(context.Background())

	require.Equal(t, first, second)
}

func TestProbeReportsNoGPUWhenCUDAUnavailable(t *testing.T) {
	// cudaProviderLoads will fail in this sandbox (no CUDA runtime), so
	// detection must fold that into a non-fatal "no GPU" report.
	p := NewProber(Thresholds{})
	report := p.Probe(context.Background())

	if !report.GPUAvailable {
		require.False(t, report.IsDiscreteGPU)
		require.Zero(t, report.VRAMBytes)
		require.False(t, report.IsLowVRAM)
	}
}
