// Package capability probes GPU availability without making it fatal when
// absent. It mirrors the non-fatal "try NVML, fall back" posture of a GPU
// telemetry sidecar, but avoids cgo: detection goes through the ONNX
// Runtime CUDA execution provider itself (the thing we actually care
// about) and VRAM sizing shells out to nvidia-smi, which is either present
// or silently skipped.
package capability

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

// Report describes what GPU capability, if any, was detected.
type Report struct {
	GPUAvailable  bool
	IsDiscreteGPU bool
	VRAMBytes     int64 // 0 if unknown
	IsLowVRAM     bool
	Name          string
}

// Thresholds configures the low-VRAM classification (spec's capability
// knobs, wired from internal/config.CapabilityConfig).
type Thresholds struct {
	LowVRAMThresholdBytes int64
	FallbackVRAMBytes     int64 // assumed VRAM when nvidia-smi is unavailable but CUDA EP loads
}

var discreteVendorSubstrings = []string{
	"nvidia", "geforce", "rtx", "quadro", "radeon pro", "radeon rx",
}

// Prober caches the result of the first probe; repeated calls are cheap
// (spec §4.1: capability detection runs once at startup).
type Prober struct {
	mu       sync.Mutex
	cached   *Report
	thresh   Thresholds
}

func NewProber(thresh Thresholds) *Prober {
	return &Prober{thresh: thresh}
}

// Probe returns the cached report if present, otherwise runs detection.
// Detection failures are folded into a "no GPU" report rather than
// returned as errors — absence of a GPU is an expected outcome, not a
// fault (spec §7: GpuUnavailable is non-fatal).
func (p *Prober) Probe(ctx context.Context) Report {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return *p.cached
	}

	report := detect(ctx, p.thresh)
	p.cached = &report
	return report
}

func detect(ctx context.Context, thresh Thresholds) Report {
	available := cudaProviderLoads()
	if !available {
		return Report{GPUAvailable: false}
	}

	name, vram := queryNvidiaSMI(ctx)
	if vram == 0 {
		vram = thresh.FallbackVRAMBytes
	}

	discrete := isDiscreteGPUName(name)
	lowVRAM := thresh.LowVRAMThresholdBytes > 0 && vram > 0 && vram < thresh.LowVRAMThresholdBytes

	return Report{
		GPUAvailable:  true,
		IsDiscreteGPU: discrete,
		VRAMBytes:     vram,
		IsLowVRAM:     lowVRAM,
		Name:          name,
	}
}

// cudaProviderLoads attempts to construct CUDA provider options purely to
// see whether the CUDA execution provider can be loaded on this host. It
// does not create a session or touch any model.
func cudaProviderLoads() bool {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return false
	}
	opts.Destroy()
	return true
}

// queryNvidiaSMI shells out to nvidia-smi for the device name and total
// VRAM. Absence of the binary, or any parse failure, yields (empty, 0)
// rather than an error — this is best-effort telemetry, not a hard
// dependency.
func queryNvidiaSMI(ctx context.Context) (name string, vramBytes int64) {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, "nvidia-smi",
		"--query-gpu=name,memory.total", "--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		return "", 0
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if !scanner.Scan() {
		return "", 0
	}
	line := scanner.Text()
	parts := strings.SplitN(line, ",", 2)
	if len(parts) != 2 {
		return "", 0
	}
	name = strings.TrimSpace(parts[0])
	mib, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return name, 0
	}
	return name, mib * 1024 * 1024
}

func isDiscreteGPUName(name string) bool {
	lower := strings.ToLower(name)
	for _, substr := range discreteVendorSubstrings {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}
