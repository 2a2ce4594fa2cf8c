package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sensingclues/harmonie-grib/internal/domain"
)

// Config holds all run settings, populated from environment variables.
type Config struct {
	InputDir      string
	InputPattern  string
	WorkDir       string
	DataDir       string
	StaleDir      string
	StalePattern  string
	ExpectedFiles int
	ProductPrefix string

	CropTool     string
	CompressTool string
	ToolTimeout  time.Duration
	ToolRetries  int

	RegionsFile string
	Regions     []domain.Region

	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	PushgatewayURL  string

	// Optional run notification and bookkeeping; empty disables.
	KafkaBrokers []string
	KafkaTopic   string
	DatabaseURL  string
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	toolTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("TOOL_TIMEOUT", "5m"))
	if err != nil || toolTimeout <= 0 {
		return nil, errors.New("invalid TOOL_TIMEOUT")
	}

	toolRetries, err := strconv.Atoi(sharedcfg.EnvOrDefault("TOOL_RETRIES", "1"))
	if err != nil || toolRetries < 0 {
		return nil, errors.New("invalid TOOL_RETRIES")
	}

	expected, err := strconv.Atoi(sharedcfg.EnvOrDefault("EXPECTED_FILES", "49"))
	if err != nil || expected <= 0 {
		return nil, errors.New("invalid EXPECTED_FILES")
	}

	cfg := &Config{
		InputDir:      sharedcfg.EnvOrDefault("INPUT_DIR", "tmp"),
		InputPattern:  sharedcfg.EnvOrDefault("INPUT_PATTERN", "*_GB"),
		WorkDir:       sharedcfg.EnvOrDefault("WORK_DIR", "tmp"),
		DataDir:       sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		StaleDir:      sharedcfg.EnvOrDefault("STALE_DIR", "."),
		StalePattern:  sharedcfg.EnvOrDefault("STALE_PATTERN", "harm36_v1_*.grb.bz2"),
		ExpectedFiles: expected,
		ProductPrefix: sharedcfg.EnvOrDefault("PRODUCT_PREFIX", "harmonie_zy"),

		CropTool:     sharedcfg.EnvOrDefault("CROP_TOOL", "ggrib"),
		CompressTool: sharedcfg.EnvOrDefault("COMPRESS_TOOL", "bzip2"),
		ToolTimeout:  toolTimeout,
		ToolRetries:  toolRetries,

		RegionsFile: os.Getenv("REGIONS_FILE"),

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		ShutdownTimeout: shutdownTimeout,
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),

		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "harmonie-runs"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
	}

	if cfg.InputPattern == "" {
		return nil, errors.New("INPUT_PATTERN is required")
	}
	if cfg.ProductPrefix == "" {
		return nil, errors.New("PRODUCT_PREFIX is required")
	}
	if cfg.CompressTool == "" {
		return nil, errors.New("COMPRESS_TOOL is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	cfg.Regions = domain.DefaultRegions()
	if cfg.RegionsFile != "" {
		regions, err := LoadRegions(cfg.RegionsFile)
		if err != nil {
			return nil, fmt.Errorf("REGIONS_FILE: %w", err)
		}
		cfg.Regions = regions
	}

	return cfg, nil
}

type regionsFile struct {
	Regions []domain.Region `yaml:"regions"`
}

// LoadRegions reads a YAML region registry of the form
//
//	regions:
//	  - name: nl
//	    bounds: {sw: {lng: 3.071, lat: 50.748}, ne: {lng: 7.252, lat: 53.761}}
func LoadRegions(path string) ([]domain.Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var rf regionsFile
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := domain.ValidateRegions(rf.Regions); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rf.Regions, nil
}
