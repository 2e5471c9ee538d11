package app

import (
	"fmt"
	"net/url"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"

	"chatrelay/pkg/config"
	"chatrelay/pkg/state/logger"
)

// validateConfig runs the startup checks that need more than the config
// values themselves, after config.ValidateConfig has filled defaults.
func validateConfig(eff config.EffectiveConfigResult) error {
	if err := config.ValidateConfig(eff); err != nil {
		return err
	}
	cfg := eff.Config

	keys := cfg.Server.APIKeys
	if len(keys.Backend)+len(keys.Frontend)+len(keys.Admin) == 0 {
		return fmt.Errorf("no api keys configured: set server.api_keys or CHATRELAY_API_*_KEYS")
	}
	if len(keys.Frontend) > 0 && len(keys.Backend) == 0 {
		return fmt.Errorf("frontend keys need at least one backend key to sign user ids")
	}

	if cfg.Storage.PresenceBackend == config.BackendRedis {
		if _, err := redis.ParseURL(cfg.Storage.Redis.URL); err != nil {
			return fmt.Errorf("invalid storage.redis.url: %w", err)
		}
	}
	if cfg.Relay.NATS.Enabled {
		u, err := url.Parse(cfg.Relay.NATS.URL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid relay.nats.url %q", cfg.Relay.NATS.URL)
		}
	}

	logger.Summary("config_presence_summary", []string{
		fmt.Sprintf("host: %s", cfg.Server.Host),
		fmt.Sprintf("timeout: %s", cfg.Presence.Timeout.Duration()),
		fmt.Sprintf("sweep_enabled: %t", cfg.Presence.Sweep.Enabled),
		fmt.Sprintf("backend: %s", cfg.Storage.PresenceBackend),
		fmt.Sprintf("max_body_size: %s", humanize.IBytes(uint64(cfg.Server.MaxBodySize.Int64()))),
		fmt.Sprintf("seed_users: %s", humanize.Comma(int64(len(cfg.Directory.Users)))),
	})
	return nil
}
