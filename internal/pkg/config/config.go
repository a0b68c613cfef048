package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Log        LogConfig        `mapstructure:"log"`
	Geocoding  GeocodingConfig  `mapstructure:"geocoding"`
	Routing    RoutingConfig    `mapstructure:"routing"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GeocodingConfig configures the geocoding providers and gateway.
type GeocodingConfig struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	Language        string        `mapstructure:"language"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`

	NominatimURL       string  `mapstructure:"nominatim_url"`
	NominatimUserAgent string  `mapstructure:"nominatim_user_agent"`
	NominatimRate      float64 `mapstructure:"nominatim_rate"`

	YandexURL    string `mapstructure:"yandex_url"`
	YandexAPIKey string `mapstructure:"yandex_api_key"`

	HoverDebounce time.Duration `mapstructure:"hover_debounce"`
}

// RoutingConfig configures the routing providers and gateway.
type RoutingConfig struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	Language        string        `mapstructure:"language"`
	Timeout         time.Duration `mapstructure:"timeout"`

	OSRMURL string `mapstructure:"osrm_url"`

	GraphHopperURL    string `mapstructure:"graphhopper_url"`
	GraphHopperAPIKey string `mapstructure:"graphhopper_api_key"`
}

// ClusteringConfig holds clusterer defaults used by the API and the relay.
type ClusteringConfig struct {
	GridSize        int           `mapstructure:"grid_size"`
	MinClusterSize  int           `mapstructure:"min_cluster_size"`
	MaxZoom         int           `mapstructure:"max_zoom"`
	ZoomMargin      int           `mapstructure:"zoom_margin"`
	RevealThreshold int           `mapstructure:"reveal_threshold"`
	BoundsDebounce  time.Duration `mapstructure:"bounds_debounce"`
	MaxMarkers      int           `mapstructure:"max_markers"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	BatchSize int    `mapstructure:"batch_size"`
	// Interval between batch geocoding runs. Zero disables the schedule.
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mapcore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "mapcore")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("geocoding.default_provider", "nominatim")
	v.SetDefault("geocoding.language", "ru")
	v.SetDefault("geocoding.timeout", 10*time.Second)
	v.SetDefault("geocoding.cache_ttl", 24*time.Hour)
	v.SetDefault("geocoding.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoding.nominatim_user_agent", "mapcore/1.0")
	v.SetDefault("geocoding.nominatim_rate", 1.0)
	v.SetDefault("geocoding.yandex_url", "https://geocode-maps.yandex.ru/1.x/")
	v.SetDefault("geocoding.yandex_api_key", "")
	v.SetDefault("geocoding.hover_debounce", 500*time.Millisecond)

	v.SetDefault("routing.default_provider", "osrm")
	v.SetDefault("routing.language", "ru")
	v.SetDefault("routing.timeout", 10*time.Second)
	v.SetDefault("routing.osrm_url", "https://router.project-osrm.org")
	v.SetDefault("routing.graphhopper_url", "https://graphhopper.com/api/1")
	v.SetDefault("routing.graphhopper_api_key", "")

	v.SetDefault("clustering.grid_size", 60)
	v.SetDefault("clustering.min_cluster_size", 2)
	v.SetDefault("clustering.max_zoom", 16)
	v.SetDefault("clustering.zoom_margin", 2)
	v.SetDefault("clustering.reveal_threshold", 5)
	v.SetDefault("clustering.bounds_debounce", 300*time.Millisecond)
	v.SetDefault("clustering.max_markers", 5000)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "mapcore-geocoding")
	v.SetDefault("temporal.batch_size", 50)
	v.SetDefault("temporal.interval", "5m")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: MAPCORE_GEOCODING_YANDEX_API_KEY → geocoding.yandex_api_key
	v.SetEnvPrefix("MAPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var (
	geocodingProviders = map[string]bool{"nominatim": true, "yandex": true}
	routingProviders   = map[string]bool{"osrm": true, "graphhopper": true}
)

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	if !geocodingProviders[c.Geocoding.DefaultProvider] {
		errs = append(errs, fmt.Sprintf("geocoding.default_provider must be nominatim or yandex, got %q", c.Geocoding.DefaultProvider))
	}
	if c.Geocoding.DefaultProvider == "yandex" && c.Geocoding.YandexAPIKey == "" {
		errs = append(errs, "geocoding.yandex_api_key is required when yandex is the default provider")
	}
	if c.Geocoding.Timeout <= 0 {
		errs = append(errs, "geocoding.timeout must be positive")
	}
	if c.Geocoding.NominatimRate <= 0 {
		errs = append(errs, "geocoding.nominatim_rate must be positive")
	}
	if !routingProviders[c.Routing.DefaultProvider] {
		errs = append(errs, fmt.Sprintf("routing.default_provider must be osrm or graphhopper, got %q", c.Routing.DefaultProvider))
	}
	if c.Routing.DefaultProvider == "graphhopper" && c.Routing.GraphHopperAPIKey == "" {
		errs = append(errs, "routing.graphhopper_api_key is required when graphhopper is the default provider")
	}
	if c.Routing.Timeout <= 0 {
		errs = append(errs, "routing.timeout must be positive")
	}

	if c.Clustering.GridSize < 10 || c.Clustering.GridSize > 300 {
		errs = append(errs, fmt.Sprintf("clustering.grid_size must be 10-300, got %d", c.Clustering.GridSize))
	}
	if c.Clustering.MinClusterSize < 2 || c.Clustering.MinClusterSize > 100 {
		errs = append(errs, fmt.Sprintf("clustering.min_cluster_size must be 2-100, got %d", c.Clustering.MinClusterSize))
	}
	if c.Clustering.MaxZoom < 0 || c.Clustering.MaxZoom > 21 {
		errs = append(errs, fmt.Sprintf("clustering.max_zoom must be 0-21, got %d", c.Clustering.MaxZoom))
	}

	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
