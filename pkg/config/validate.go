package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

const (
	defaultPort            = 8080
	defaultHost            = "localhost"
	defaultLogLevel        = "info"
	defaultPresenceTimeout = 30 * time.Second
	defaultSweepCron       = "* * * * *"
	defaultMaxBodySize     = 256 * 1024
	defaultRateRPS         = 100
	defaultRateBurst       = 200
	defaultSubjectPrefix   = "chatrelay.deliver"
	defaultRedisURL        = "redis://localhost:6379"

	BackendPebble = "pebble"
	BackendRedis  = "redis"
)

// ValidateConfig fills defaults and fails fast on invalid values.
func ValidateConfig(eff EffectiveConfigResult) error {
	c := eff.Config
	if c == nil {
		return fmt.Errorf("effective config is nil")
	}
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, %sDB_PATH env, or server.db_path in config", envPrefix)
	}

	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if strings.ContainsAny(c.Server.Host, "@/") {
		return fmt.Errorf("server.host %q must be a bare domain", c.Server.Host)
	}
	if c.Server.MaxBodySize <= 0 {
		c.Server.MaxBodySize = SizeBytes(defaultMaxBodySize)
	}
	if c.Server.RateLimit.RPS <= 0 {
		c.Server.RateLimit.RPS = defaultRateRPS
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = defaultRateBurst
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	if c.Presence.Timeout < 0 {
		return fmt.Errorf("presence.timeout must be positive, got %s", c.Presence.Timeout.Duration())
	}
	if c.Presence.Timeout == 0 {
		c.Presence.Timeout = Duration(defaultPresenceTimeout)
	}
	if c.Presence.Timeout.Duration() < time.Second {
		return fmt.Errorf("presence.timeout must be at least 1s, got %s", c.Presence.Timeout.Duration())
	}
	if c.Presence.Sweep.Cron == "" {
		c.Presence.Sweep.Cron = defaultSweepCron
	}
	if c.Presence.Sweep.Enabled && !gronx.New().IsValid(c.Presence.Sweep.Cron) {
		return fmt.Errorf("invalid presence.sweep.cron expression: %q", c.Presence.Sweep.Cron)
	}

	switch c.Storage.PresenceBackend {
	case "":
		c.Storage.PresenceBackend = BackendPebble
	case BackendPebble:
	case BackendRedis:
		if c.Storage.Redis.URL == "" {
			c.Storage.Redis.URL = defaultRedisURL
		}
	default:
		return fmt.Errorf("unknown storage.presence_backend %q (want %s or %s)", c.Storage.PresenceBackend, BackendPebble, BackendRedis)
	}

	if c.Relay.NATS.Enabled && c.Relay.NATS.URL == "" {
		return fmt.Errorf("relay.nats.enabled requires relay.nats.url")
	}
	if c.Relay.NATS.SubjectPrefix == "" {
		c.Relay.NATS.SubjectPrefix = defaultSubjectPrefix
	}
	return nil
}
