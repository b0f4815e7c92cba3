package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Rastreador configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Tier determines which storage backends are used
	Tier Tier `yaml:"tier" json:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository" json:"repository"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus" json:"eventBus"`
	Analysis   AnalysisConfig   `yaml:"analysis" json:"analysis"`

	// Observability
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" json:"writeTimeout"` // seconds
	MaxUploadMB  int    `yaml:"max_upload_mb" json:"maxUploadMb"`
}

// AnalysisConfig holds defaults for the linkage engine and its loaders.
type AnalysisConfig struct {
	DefaultWindowMonths int    `yaml:"default_window_months" json:"defaultWindowMonths"`
	TopSuspects         int    `yaml:"top_suspects" json:"topSuspects"`
	TopDonors           int    `yaml:"top_donors" json:"topDonors"`
	ContributionsSheet  string `yaml:"contributions_sheet" json:"contributionsSheet"`
	ContractsSheet      string `yaml:"contracts_sheet" json:"contractsSheet"`
	MaskIdentities      bool   `yaml:"mask_identities" json:"maskIdentities"`
	ResultTTL           int    `yaml:"result_ttl" json:"resultTtl"` // seconds

	// WarmWorkspaces lists workspaces whose default analysis is recomputed
	// in the background whenever one of their datasets is replaced.
	WarmWorkspaces []string `yaml:"warm_workspaces" json:"warmWorkspaces,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	ServiceName string `yaml:"service_name" json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite and an in-process LRU cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL and Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
			MaxUploadMB:  64,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./rastreador.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 256,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 256,
		},
		Analysis: AnalysisConfig{
			DefaultWindowMonths: 6,
			TopSuspects:         5,
			TopDonors:           20,
			ContributionsSheet:  "BBDD",
			ContractsSheet:      "Informacion de contratos",
			MaskIdentities:      true,
			ResultTTL:           900,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "rastreador",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "rastreador",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   64,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig builds the configuration: tier defaults, then the YAML file at
// path (if non-empty and present), then RASTREADOR_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if os.Getenv("RASTREADOR_TIER") == string(TierPro) {
		cfg = ProConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RASTREADOR_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("RASTREADOR_HOST"); v != "" {
		c.Server.Host = v
	}
	if err := envInt("RASTREADOR_PORT", &c.Server.Port); err != nil {
		return err
	}
	if v := os.Getenv("RASTREADOR_DB_DRIVER"); v != "" {
		c.Repository.Driver = v
	}
	if v := os.Getenv("RASTREADOR_SQLITE_PATH"); v != "" {
		c.Repository.SQLitePath = v
	}
	if v := os.Getenv("RASTREADOR_PG_HOST"); v != "" {
		c.Repository.PostgresHost = v
	}
	if err := envInt("RASTREADOR_PG_PORT", &c.Repository.PostgresPort); err != nil {
		return err
	}
	if v := os.Getenv("RASTREADOR_PG_USER"); v != "" {
		c.Repository.PostgresUser = v
	}
	if v := os.Getenv("RASTREADOR_PG_PASSWORD"); v != "" {
		c.Repository.PostgresPassword = v
	}
	if v := os.Getenv("RASTREADOR_PG_DB"); v != "" {
		c.Repository.PostgresDB = v
	}
	if v := os.Getenv("RASTREADOR_PG_SSLMODE"); v != "" {
		c.Repository.PostgresSSLMode = v
	}
	if v := os.Getenv("RASTREADOR_CACHE"); v != "" {
		c.Cache.Type = v
	}
	if v := os.Getenv("RASTREADOR_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("RASTREADOR_REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv("RASTREADOR_BUS"); v != "" {
		c.EventBus.Type = v
	}
	if v := os.Getenv("RASTREADOR_NATS_URL"); v != "" {
		c.EventBus.NATSUrl = v
	}
	if v := os.Getenv("RASTREADOR_NATS_TOKEN"); v != "" {
		c.EventBus.NATSToken = v
	}
	if v := os.Getenv("RASTREADOR_WARM_WORKSPACES"); v != "" {
		c.Analysis.WarmWorkspaces = splitList(v)
	}
	if err := envInt("RASTREADOR_WINDOW_MONTHS", &c.Analysis.DefaultWindowMonths); err != nil {
		return err
	}
	if v := os.Getenv("RASTREADOR_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if os.Getenv("RASTREADOR_DEBUG") == "true" {
		c.Logging.Level = "debug"
	}
	if v := os.Getenv("RASTREADOR_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("RASTREADOR_TRACING"); v != "" {
		c.Tracing.Enabled = v == "true"
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
