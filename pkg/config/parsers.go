package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "CHATRELAY_"

// Flags holds parsed command-line values and which of them were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged config plus where it came from.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "env" or "config"
}

// ParseConfigFlags parses -addr, -db and -config from args.
func ParseConfigFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("chatrelay", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "HTTP listen address")
	db := fs.String("db", "./.database", "Pebble DB path")
	cfg := fs.String("config", "./config.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addr, DB: *db, Config: *cfg, Set: set}, nil
}

// ResolveConfigPath lets CHATRELAY_CONFIG override the default path unless
// the flag was given explicitly.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv(envPrefix + "CONFIG"); v != "" {
		return v
	}
	return flagVal
}

// ParseConfigFile loads the config file named by the flags. A missing file
// is not an error; the bool reports whether it existed.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfg, err := LoadConfigFile(ResolveConfigPath(flags.Config, flags.Set["config"]))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs builds a sparse Config from CHATRELAY_* variables and
// reports whether any were set.
func ParseConfigEnvs(getenv func(string) string) (*Config, bool, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := func(k string) string { return strings.TrimSpace(getenv(envPrefix + k)) }
	used := false
	c := &Config{}

	if v := env("ADDR"); v != "" {
		used = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			c.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				c.Server.Port = pi
			}
		} else {
			c.Server.Address = v
		}
	}
	if v := env("DB_PATH"); v != "" {
		used = true
		c.Server.DBPath = v
	}
	if v := env("HOST"); v != "" {
		used = true
		c.Server.Host = v
	}
	if v := env("MAX_BODY_SIZE"); v != "" {
		used = true
		s, err := parseSizeBytes(v)
		if err != nil {
			return nil, used, err
		}
		c.Server.MaxBodySize = s
	}
	if v := env("CORS_ORIGINS"); v != "" {
		used = true
		c.Server.CORS.AllowedOrigins = parseList(v)
	}
	if v := env("RATE_RPS"); v != "" {
		used = true
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, used, err
		}
		c.Server.RateLimit.RPS = f
	}
	if v := env("RATE_BURST"); v != "" {
		used = true
		i, err := strconv.Atoi(v)
		if err != nil {
			return nil, used, err
		}
		c.Server.RateLimit.Burst = i
	}
	if v := env("IP_WHITELIST"); v != "" {
		used = true
		c.Server.IPWhitelist = parseList(v)
	}
	if v := env("API_BACKEND_KEYS"); v != "" {
		used = true
		c.Server.APIKeys.Backend = parseList(v)
	}
	if v := env("API_FRONTEND_KEYS"); v != "" {
		used = true
		c.Server.APIKeys.Frontend = parseList(v)
	}
	if v := env("API_ADMIN_KEYS"); v != "" {
		used = true
		c.Server.APIKeys.Admin = parseList(v)
	}
	if v := env("LOG_LEVEL"); v != "" {
		used = true
		c.Logging.Level = v
	}
	if v := env("PRESENCE_TIMEOUT"); v != "" {
		used = true
		d, err := parseDuration(v)
		if err != nil {
			return nil, used, err
		}
		c.Presence.Timeout = d
	}
	if v := env("SWEEP_ENABLED"); v != "" {
		used = true
		c.Presence.Sweep.Enabled = parseBool(v)
	}
	if v := env("SWEEP_CRON"); v != "" {
		used = true
		c.Presence.Sweep.Cron = v
	}
	if v := env("PRESENCE_BACKEND"); v != "" {
		used = true
		c.Storage.PresenceBackend = v
	}
	if v := env("REDIS_URL"); v != "" {
		used = true
		c.Storage.Redis.URL = v
	}
	if v := env("REDIS_DB"); v != "" {
		used = true
		i, err := strconv.Atoi(v)
		if err != nil {
			return nil, used, err
		}
		c.Storage.Redis.DB = i
	}
	if v := env("NATS_ENABLED"); v != "" {
		used = true
		c.Relay.NATS.Enabled = parseBool(v)
	}
	if v := env("NATS_URL"); v != "" {
		used = true
		c.Relay.NATS.URL = v
	}
	if v := env("NATS_SUBJECT_PREFIX"); v != "" {
		used = true
		c.Relay.NATS.SubjectPrefix = v
	}
	if v := env("DIRECTORY_USERS"); v != "" {
		used = true
		c.Directory.Users = parseList(v)
	}
	return c, used, nil
}

// LoadEffectiveConfig merges file, env and flags. Precedence: flags > env > file.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envUsed bool) (EffectiveConfigResult, error) {
	cfg := &Config{}
	if fileCfg != nil {
		*cfg = *fileCfg
	}
	if envCfg != nil {
		overlay(cfg, envCfg)
	}

	res := EffectiveConfigResult{Config: cfg, Source: "flags"}
	switch {
	case envUsed:
		res.Source = "env"
	case fileExists:
		res.Source = "config"
	}

	if flags.Set["addr"] {
		if h, p, err := net.SplitHostPort(flags.Addr); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		}
	}
	res.Addr = cfg.Addr()

	switch {
	case flags.Set["db"]:
		res.DBPath = flags.DB
	case cfg.Server.DBPath != "":
		res.DBPath = cfg.Server.DBPath
	default:
		res.DBPath = flags.DB
	}
	cfg.Server.DBPath = res.DBPath
	return res, nil
}

// overlay copies every non-zero field of src onto dst.
func overlay(dst, src *Config) {
	s, d := &src.Server, &dst.Server
	if s.Address != "" {
		d.Address = s.Address
	}
	if s.Port != 0 {
		d.Port = s.Port
	}
	if s.DBPath != "" {
		d.DBPath = s.DBPath
	}
	if s.Host != "" {
		d.Host = s.Host
	}
	if s.MaxBodySize != 0 {
		d.MaxBodySize = s.MaxBodySize
	}
	if len(s.CORS.AllowedOrigins) > 0 {
		d.CORS.AllowedOrigins = s.CORS.AllowedOrigins
	}
	if s.RateLimit.RPS != 0 {
		d.RateLimit.RPS = s.RateLimit.RPS
	}
	if s.RateLimit.Burst != 0 {
		d.RateLimit.Burst = s.RateLimit.Burst
	}
	if len(s.IPWhitelist) > 0 {
		d.IPWhitelist = s.IPWhitelist
	}
	if len(s.APIKeys.Backend) > 0 {
		d.APIKeys.Backend = s.APIKeys.Backend
	}
	if len(s.APIKeys.Frontend) > 0 {
		d.APIKeys.Frontend = s.APIKeys.Frontend
	}
	if len(s.APIKeys.Admin) > 0 {
		d.APIKeys.Admin = s.APIKeys.Admin
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Presence.Timeout != 0 {
		dst.Presence.Timeout = src.Presence.Timeout
	}
	if src.Presence.Sweep.Enabled {
		dst.Presence.Sweep.Enabled = true
	}
	if src.Presence.Sweep.Cron != "" {
		dst.Presence.Sweep.Cron = src.Presence.Sweep.Cron
	}
	if src.Storage.PresenceBackend != "" {
		dst.Storage.PresenceBackend = src.Storage.PresenceBackend
	}
	if src.Storage.Redis.URL != "" {
		dst.Storage.Redis.URL = src.Storage.Redis.URL
	}
	if src.Storage.Redis.DB != 0 {
		dst.Storage.Redis.DB = src.Storage.Redis.DB
	}
	if src.Relay.NATS.Enabled {
		dst.Relay.NATS.Enabled = true
	}
	if src.Relay.NATS.URL != "" {
		dst.Relay.NATS.URL = src.Relay.NATS.URL
	}
	if src.Relay.NATS.SubjectPrefix != "" {
		dst.Relay.NATS.SubjectPrefix = src.Relay.NATS.SubjectPrefix
	}
	if len(src.Directory.Users) > 0 {
		dst.Directory.Users = src.Directory.Users
	}
}

func parseList(v string) []string {
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
