package config

import (
	"github.com/wayfinder/wayfinder/internal/database"
	"github.com/wayfinder/wayfinder/internal/navigation"
	"github.com/wayfinder/wayfinder/internal/render/cache"
	"github.com/wayfinder/wayfinder/internal/render/quality"
	"github.com/wayfinder/wayfinder/internal/session"
	"github.com/wayfinder/wayfinder/internal/telemetry"
)

// DatabaseConfig returns the connection settings for database.Connect.
func (c Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Name,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// TelemetryConfig returns the settings for telemetry.Init.
func (c Config) TelemetryConfig(serviceName, version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		Enabled:        c.Telemetry.Enabled,
		SampleRatio:    c.Telemetry.SampleRatio,
		MetricInterval: c.Telemetry.MetricInterval,
	}
}

// SessionConfig returns the session template tuning. The caller fills in the
// venue directory, route engine, geocoder, metrics and logger.
func (c Config) SessionConfig() session.Config {
	n, r := c.Navigation, c.Render
	return session.Config{
		Navigation: navigation.Config{
			ProximityInterval: n.ProximityInterval,
			ArrivalRadius:     n.ArrivalRadius,
			IndoorSwitchDelay: n.IndoorSwitchDelay,
			NearbyRadius:      n.NearbyRadius,
			NearbyLimit:       n.NearbyLimit,
		},
		Cache: cache.Config{
			MaterialLimit:   r.MaterialLimit,
			GeometryLimit:   r.GeometryLimit,
			TextureLimit:    r.TextureLimit,
			EvictBatch:      r.EvictBatch,
			TargetFrameRate: r.TargetFrameRate,
			MinFrameRate:    r.MinFrameRate,
			MemoryThreshold: r.MemoryThreshold,
		},
		Quality: quality.Config{
			Interval:                 r.QualityInterval,
			TargetFrameRate:          r.TargetFrameRate,
			MemoryThreshold:          r.MemoryThreshold,
			BatteryThreshold:         r.BatteryThreshold,
			DisableThermalThrottling: r.DisableThermalThrottling,
		},
		InitialTier:   r.Tier(),
		FrameLoop:     r.FrameLoop,
		WatchInterval: n.WatchInterval,
	}
}

// ManagerConfig returns the session manager settings around template.
func (c Config) ManagerConfig(template session.Config) session.ManagerConfig {
	return session.ManagerConfig{
		Session:     template,
		MaxSessions: c.Sessions.MaxSessions,
		IdleTimeout: c.Sessions.IdleTimeout,
		Logger:      template.Logger,
	}
}
