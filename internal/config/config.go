// Package config loads service configuration from defaults, an optional
// wayfinder.yaml file and WAYFINDER_* environment variables, in that order of
// precedence from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wayfinder/wayfinder/internal/database"
	"github.com/wayfinder/wayfinder/internal/render"
)

// FileName is the config file looked up in the search paths, without extension.
const FileName = "wayfinder"

// EnvPrefix prefixes environment overrides, e.g. WAYFINDER_SERVER_PORT.
const EnvPrefix = "WAYFINDER"

// Config is the full service configuration.
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"logLevel"`
	Server      ServerConfig     `mapstructure:"server"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Navigation  NavigationConfig `mapstructure:"navigation"`
	Render      RenderConfig     `mapstructure:"render"`
	Providers   ProvidersConfig  `mapstructure:"providers"`
	PubSub      PubSubConfig     `mapstructure:"pubsub"`
	Sessions    SessionsConfig   `mapstructure:"sessions"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
	RequireTLS   bool          `mapstructure:"requireTLS"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	OTLPEndpoint   string        `mapstructure:"otlpEndpoint"`
	SampleRatio    float64       `mapstructure:"sampleRatio"`
	MetricInterval time.Duration `mapstructure:"metricInterval"`
}

// DatabaseConfig configures the optional Postgres venue directory. An empty
// host keeps the built-in venue list.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslMode"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// NavigationConfig tunes the navigation state machine.
type NavigationConfig struct {
	ProximityInterval time.Duration `mapstructure:"proximityInterval"`
	ArrivalRadius     float64       `mapstructure:"arrivalRadius"`
	IndoorSwitchDelay time.Duration `mapstructure:"indoorSwitchDelay"`
	NearbyRadius      float64       `mapstructure:"nearbyRadius"`
	NearbyLimit       int           `mapstructure:"nearbyLimit"`
	WatchInterval     time.Duration `mapstructure:"watchInterval"`
}

// RenderConfig tunes the resource cache and quality controller.
type RenderConfig struct {
	InitialTier              string        `mapstructure:"initialTier"`
	FrameLoop                bool          `mapstructure:"frameLoop"`
	TargetFrameRate          float64       `mapstructure:"targetFrameRate"`
	MinFrameRate             float64       `mapstructure:"minFrameRate"`
	MaterialLimit            int           `mapstructure:"materialLimit"`
	GeometryLimit            int           `mapstructure:"geometryLimit"`
	TextureLimit             int           `mapstructure:"textureLimit"`
	EvictBatch               int           `mapstructure:"evictBatch"`
	MemoryThreshold          float64       `mapstructure:"memoryThreshold"`
	BatteryThreshold         float64       `mapstructure:"batteryThreshold"`
	QualityInterval          time.Duration `mapstructure:"qualityInterval"`
	DisableThermalThrottling bool          `mapstructure:"disableThermalThrottling"`
}

// ProvidersConfig configures the upstream geocoding and routing services.
type ProvidersConfig struct {
	Nominatim        NominatimConfig        `mapstructure:"nominatim"`
	OpenRouteService OpenRouteServiceConfig `mapstructure:"openRouteService"`
}

// NominatimConfig configures forward and reverse geocoding.
type NominatimConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"baseUrl"`
	UserAgent    string        `mapstructure:"userAgent"`
	Email        string        `mapstructure:"email"`
	CountryCodes string        `mapstructure:"countryCodes"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// OpenRouteServiceConfig configures walking directions. Without an API key
// routes are straight-line estimates.
type OpenRouteServiceConfig struct {
	APIKey   string        `mapstructure:"apiKey"`
	BaseURL  string        `mapstructure:"baseUrl"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cacheTtl"`
}

// PubSubConfig configures the navigation event stream. An empty project id
// disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"projectId"`
	Topic     string `mapstructure:"topic"`
	QueueSize int    `mapstructure:"queueSize"`
}

// SessionsConfig bounds the live sessions of the API.
type SessionsConfig struct {
	MaxSessions int           `mapstructure:"maxSessions"`
	IdleTimeout time.Duration `mapstructure:"idleTimeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "15s")
	v.SetDefault("server.idleTimeout", "60s")
	v.SetDefault("server.requireTLS", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlpEndpoint", "localhost:4317")
	v.SetDefault("telemetry.sampleRatio", 1.0)
	v.SetDefault("telemetry.metricInterval", "15s")

	// The DB_* variables stay honored underneath the file and WAYFINDER_*.
	db := database.ConfigFromEnv()
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.name", db.Database)
	v.SetDefault("database.sslMode", db.SSLMode)
	v.SetDefault("database.maxOpenConns", db.MaxOpenConns)
	v.SetDefault("database.maxIdleConns", db.MaxIdleConns)
	v.SetDefault("database.connMaxLifetime", db.ConnMaxLifetime)

	v.SetDefault("navigation.proximityInterval", "5s")
	v.SetDefault("navigation.arrivalRadius", 100)
	v.SetDefault("navigation.indoorSwitchDelay", "2s")
	v.SetDefault("navigation.nearbyRadius", 50000)
	v.SetDefault("navigation.nearbyLimit", 20)
	v.SetDefault("navigation.watchInterval", "1s")

	v.SetDefault("render.initialTier", string(render.TierMedium))
	v.SetDefault("render.frameLoop", true)
	v.SetDefault("render.targetFrameRate", 60)
	v.SetDefault("render.minFrameRate", 20)
	v.SetDefault("render.materialLimit", 50)
	v.SetDefault("render.geometryLimit", 50)
	v.SetDefault("render.textureLimit", 30)
	v.SetDefault("render.evictBatch", 10)
	v.SetDefault("render.memoryThreshold", 0.8)
	v.SetDefault("render.batteryThreshold", 0.2)
	v.SetDefault("render.qualityInterval", "1s")
	v.SetDefault("render.disableThermalThrottling", false)

	v.SetDefault("providers.nominatim.enabled", false)
	v.SetDefault("providers.nominatim.baseUrl", "")
	v.SetDefault("providers.nominatim.userAgent", "wayfinder/1.0")
	v.SetDefault("providers.nominatim.email", "")
	v.SetDefault("providers.nominatim.countryCodes", "")
	v.SetDefault("providers.nominatim.timeout", "5s")
	v.SetDefault("providers.openRouteService.apiKey", "")
	v.SetDefault("providers.openRouteService.baseUrl", "")
	v.SetDefault("providers.openRouteService.language", "en")
	v.SetDefault("providers.openRouteService.timeout", "10s")
	v.SetDefault("providers.openRouteService.cacheTtl", "5m")

	v.SetDefault("pubsub.projectId", "")
	v.SetDefault("pubsub.topic", "navigation-events")
	v.SetDefault("pubsub.queueSize", 256)

	v.SetDefault("sessions.maxSessions", 1000)
	v.SetDefault("sessions.idleTimeout", "30m")
}

// Load reads the configuration. Each entry in paths is a directory searched
// for wayfinder.yaml; a missing file is not an error.
func Load(paths ...string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(paths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the components cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := render.ParseTier(c.Render.InitialTier); err != nil {
		errs = append(errs, fmt.Errorf("render.initialTier %q: %w", c.Render.InitialTier, err))
	}
	if c.Render.TargetFrameRate < c.Render.MinFrameRate {
		errs = append(errs, fmt.Errorf("render.targetFrameRate %.0f below render.minFrameRate %.0f",
			c.Render.TargetFrameRate, c.Render.MinFrameRate))
	}
	if c.Render.MemoryThreshold <= 0 || c.Render.MemoryThreshold > 1 {
		errs = append(errs, fmt.Errorf("render.memoryThreshold %v not in (0, 1]", c.Render.MemoryThreshold))
	}
	if c.Navigation.ArrivalRadius <= 0 {
		errs = append(errs, fmt.Errorf("navigation.arrivalRadius %v must be positive", c.Navigation.ArrivalRadius))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampleRatio %v not in [0, 1]", c.Telemetry.SampleRatio))
	}
	if c.PubSub.ProjectID != "" && c.PubSub.Topic == "" {
		errs = append(errs, errors.New("pubsub.topic is required when pubsub.projectId is set"))
	}
	return errors.Join(errs...)
}

// Tier returns the parsed initial quality tier.
func (r RenderConfig) Tier() render.Tier {
	t, err := render.ParseTier(r.InitialTier)
	if err != nil {
		return render.TierMedium
	}
	return t
}
