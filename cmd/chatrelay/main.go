package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"

	"chatrelay/internal/app"
	"chatrelay/pkg/config"
	"chatrelay/pkg/state"
	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/state/shutdown"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	flags, err := config.ParseConfigFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if !flags.Set["db"] {
		if root := state.ArtifactRoot(); root != "" {
			flags.DB = filepath.Join(root, "database")
		}
	}

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		shutdown.Abort("failed to load config file", err, "")
	}

	envCfg, envUsed, err := config.ParseConfigEnvs(os.Getenv)
	if err != nil {
		shutdown.Abort("failed to parse environment", err, "")
	}

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envUsed)
	if err != nil {
		shutdown.Abort("failed to build effective config", err, "")
	}

	// level may still be empty here; it defaults to info
	logger.Init(eff.Config.Logging.Level)
	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "db_path", eff.DBPath)
	logger.Info("system_logical_cores", "logical_cores", runtime.NumCPU())

	paths, err := state.Init(eff.DBPath)
	if err != nil {
		shutdown.Abort("failed to ensure state directories under "+eff.DBPath, err, "")
	}

	a, err := app.New(eff, paths, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize app", err, paths.Crash)
	}
	// validation filled defaults, including the log level
	logger.Init(eff.Config.Logging.Level)

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	runErr := a.Run(ctx)

	// bounded so teardown cannot hang forever
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	_ = a.Shutdown(shutdownCtx)

	if runErr != nil {
		shutdown.Abort("app run failed", runErr, paths.Crash)
	}
}
