// Package config loads service configuration from YAML with environment
// variable overrides, following the teacher's config-loading conventions.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Models     ModelsConfig     `yaml:"models"`
	Cache      CacheConfig      `yaml:"cache"`
	NATS       NATSConfig       `yaml:"nats"`
	Database   DatabaseConfig   `yaml:"database"`
	Capability CapabilityConfig `yaml:"capability"`
	Engine     EngineConfig     `yaml:"engine"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// ModelsConfig points at the two SAM2 ONNX artifacts served by the Model Store.
type ModelsConfig struct {
	EncoderURL          string `yaml:"encoder_url"`
	DecoderURL          string `yaml:"decoder_url"`
	ExpectedEncoderSize int64  `yaml:"expected_encoder_bytes"`
	ExpectedDecoderSize int64  `yaml:"expected_decoder_bytes"`
	LocalDir            string `yaml:"local_dir"`
}

// CacheConfig selects and configures the durable key/value cache backend
// for downloaded model bytes (spec §6: "a single durable key/value store").
type CacheConfig struct {
	Backend string      `yaml:"backend"` // "disk" or "minio"
	Disk    DiskConfig  `yaml:"disk"`
	MinIO   MinIOConfig `yaml:"minio"`
}

type DiskConfig struct {
	Dir string `yaml:"dir"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type NATSConfig struct {
	URL          string `yaml:"url"`
	EventSubject string `yaml:"event_subject"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// CapabilityConfig tunes the GPU capability probe (C1).
type CapabilityConfig struct {
	LowVRAMThresholdBytes int64 `yaml:"low_vram_threshold_bytes"`
	FallbackVRAMBytes     int64 `yaml:"fallback_vram_bytes"`
}

// EngineConfig tunes the inference engine (C4).
type EngineConfig struct {
	PreferredProvider string `yaml:"preferred_provider"` // "gpu" or "cpu"
	IntraOpThreads    int    `yaml:"intra_op_threads"`
	InterOpThreads    int    `yaml:"inter_op_threads"`
	Verbose           bool   `yaml:"verbose"`
	// NumCandidates is the decoder's exported mask-candidate count (K).
	// Pinned SAM2 ONNX exports commonly use 3 or 4 — it must match the
	// decoder model actually loaded, or every decode fails with a shape
	// mismatch (spec §4.1, §6).
	NumCandidates int `yaml:"num_candidates"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Models.LocalDir == "" {
		cfg.Models.LocalDir = "./models"
	}
	if cfg.Models.ExpectedEncoderSize == 0 {
		cfg.Models.ExpectedEncoderSize = 42 * 1024 * 1024
	}
	if cfg.Models.ExpectedDecoderSize == 0 {
		cfg.Models.ExpectedDecoderSize = 15 * 1024 * 1024
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "disk"
	}
	if cfg.Cache.Disk.Dir == "" {
		cfg.Cache.Disk.Dir = "./cache/sam2-models"
	}
	if cfg.Cache.MinIO.Bucket == "" {
		cfg.Cache.MinIO.Bucket = "supersplat-sam2-models"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.NATS.EventSubject == "" {
		cfg.NATS.EventSubject = "sam2.events"
	}
	if cfg.Capability.LowVRAMThresholdBytes == 0 {
		cfg.Capability.LowVRAMThresholdBytes = 4 * 1024 * 1024 * 1024
	}
	if cfg.Capability.FallbackVRAMBytes == 0 {
		cfg.Capability.FallbackVRAMBytes = 2 * 1024 * 1024 * 1024
	}
	if cfg.Engine.PreferredProvider == "" {
		cfg.Engine.PreferredProvider = "gpu"
	}
	if cfg.Engine.NumCandidates == 0 {
		cfg.Engine.NumCandidates = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SAM2_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SAM2_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SAM2_MODELS_DIR"); v != "" {
		cfg.Models.LocalDir = v
	}
	if v := os.Getenv("SAM2_ENCODER_URL"); v != "" {
		cfg.Models.EncoderURL = v
	}
	if v := os.Getenv("SAM2_DECODER_URL"); v != "" {
		cfg.Models.DecoderURL = v
	}
	if v := os.Getenv("SAM2_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("SAM2_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SAM2_MINIO_ENDPOINT"); v != "" {
		cfg.Cache.MinIO.Endpoint = v
	}
	if v := os.Getenv("SAM2_MINIO_ACCESS_KEY"); v != "" {
		cfg.Cache.MinIO.AccessKey = v
	}
	if v := os.Getenv("SAM2_MINIO_SECRET_KEY"); v != "" {
		cfg.Cache.MinIO.SecretKey = v
	}
	if v := os.Getenv("SAM2_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SAM2_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SAM2_PREFERRED_PROVIDER"); v != "" {
		cfg.Engine.PreferredProvider = v
	}
}
