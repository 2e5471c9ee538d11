package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"chatrelay/internal/sweeper"
	"chatrelay/pkg/api"
	"chatrelay/pkg/api/auth"
	"chatrelay/pkg/config"
	"chatrelay/pkg/config/banner"
	"chatrelay/pkg/directory"
	"chatrelay/pkg/presence"
	"chatrelay/pkg/relay"
	"chatrelay/pkg/stanza"
	"chatrelay/pkg/state"
	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/state/sensor"
	"chatrelay/pkg/store"
	"chatrelay/pkg/telemetry"
)

// redisNamespace prefixes every key chatrelay writes to redis.
const redisNamespace = "chatrelay:"

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	paths     state.Paths
	version   string
	commit    string
	buildDate string

	db        *store.DB
	presence  store.PresenceStore
	redis     *redis.Client
	nats      *nats.Conn
	metrics   *telemetry.Metrics
	gateway   *auth.Gateway
	api       *api.API
	sweeper   *sweeper.Scheduler
	sweepStop context.CancelFunc
	disk      *sensor.Sensor

	srvFast *fasthttp.Server
	state   string
}

// New opens storage and builds every component. It starts nothing: call
// Run to serve and Shutdown to release resources.
func New(eff config.EffectiveConfigResult, paths state.Paths, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config
	config.SetConfig(cfg)

	// backend keys double as signing keys for user identities
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range cfg.Server.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	a := &App{eff: eff, paths: paths, version: version, commit: commit, buildDate: buildDate, state: "init"}
	if err := a.open(); err != nil {
		a.closeStores()
		return nil, err
	}
	return a, nil
}

func (a *App) open() error {
	cfg := a.eff.Config
	db, err := store.Open(a.paths.Store, true)
	if err != nil {
		return fmt.Errorf("failed to open pebble at %s: %w", a.paths.Store, err)
	}
	a.db = db
	a.metrics = telemetry.New()

	var lease sweeper.Lease
	switch cfg.Storage.PresenceBackend {
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := store.DialRedis(ctx, cfg.Storage.Redis.URL, cfg.Storage.Redis.DB)
		cancel()
		if err != nil {
			return err
		}
		a.redis = client
		a.presence = store.NewRedisPresence(client, redisNamespace)
		lease = sweeper.NewRedisLease(client, redisNamespace)
	default:
		a.presence = store.NewPebblePresence(db)
		lease = sweeper.NewFileLease(a.paths.Lease)
	}

	dir := directory.New(db)
	if _, err := dir.Seed(context.Background(), cfg.Directory.Users); err != nil {
		return fmt.Errorf("seed directory: %w", err)
	}

	mailbox := store.NewMessageLog(db)
	var sink presence.Sink = mailbox
	if cfg.Relay.NATS.Enabled {
		nc, err := relay.Connect(cfg.Relay.NATS.URL, "chatrelay")
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		a.nats = nc
		sink = relay.NewPublisher(mailbox, nc, cfg.Relay.NATS.SubjectPrefix, a.metrics)
	}

	svc := presence.NewService(a.presence, dir, sink, presence.Options{
		Host:    cfg.Server.Host,
		Timeout: cfg.Presence.Timeout.Duration(),
		Metrics: a.metrics,
	})

	a.api = api.New(api.Deps{
		Presence:  svc,
		Stanzas:   stanza.NewHandler(dir, sink, a.metrics),
		Mailbox:   mailbox,
		Directory: dir,
		Metrics:   a.metrics,
		Ready:     func() bool { return a.db.Ready() && a.presence.Ready() },
		Version:   a.versionString(),
	})

	if cfg.Presence.Sweep.Enabled {
		sw, err := sweeper.New(svc, cfg.Presence.Sweep.Cron, lease)
		if err != nil {
			return err
		}
		a.sweeper = sw
	}

	a.gateway = auth.NewGateway(secConfig(cfg))
	return nil
}

// Run prints the banner, starts the sweep scheduler and the HTTP server,
// and blocks until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	banner.Print(os.Stdout, a.eff, a.versionString())

	if a.sweeper != nil {
		a.sweepStop = a.sweeper.Start(ctx)
	} else {
		logger.Info("sweep_scheduler_disabled")
	}

	a.disk = sensor.New(sensor.Config{
		Path:           a.paths.DB,
		PollInterval:   30 * time.Second,
		DiskHighPct:    90,
		DiskLowPct:     80,
		RecoveryWindow: 5 * time.Minute,
	}, a.metrics.SetDiskUsage)
	a.disk.Start()

	a.state = "running"
	errCh := a.startHTTP()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) versionString() string {
	v := a.version
	if a.commit != "" && a.commit != "none" {
		v += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		v += " @ " + a.buildDate
	}
	return v
}

func secConfig(cfg *config.Config) auth.SecConfig {
	sec := auth.SecConfig{
		AllowedOrigins: append([]string{}, cfg.Server.CORS.AllowedOrigins...),
		RPS:            cfg.Server.RateLimit.RPS,
		Burst:          cfg.Server.RateLimit.Burst,
		IPWhitelist:    append([]string{}, cfg.Server.IPWhitelist...),
		BackendKeys:    map[string]struct{}{},
		FrontendKeys:   map[string]struct{}{},
		AdminKeys:      map[string]struct{}{},
	}
	for _, k := range cfg.Server.APIKeys.Backend {
		sec.BackendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Server.APIKeys.Frontend {
		sec.FrontendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Server.APIKeys.Admin {
		sec.AdminKeys[k] = struct{}{}
	}
	return sec
}
