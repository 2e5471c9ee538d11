package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"chatrelay/pkg/state/logger"
)

// Step is one named teardown action.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Run executes steps in order. Every step runs even if an earlier one
// failed; the first error is returned. A canceled ctx skips what is left.
func Run(ctx context.Context, steps ...Step) error {
	logger.Info("shutdown_requested", "steps", len(steps))
	var first error
	for _, s := range steps {
		if s.Fn == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			logger.Error("shutdown_deadline_exceeded", "step", s.Name, "error", err)
			if first == nil {
				first = err
			}
			break
		}
		logger.Info("shutdown_step", "step", s.Name)
		if err := s.Fn(ctx); err != nil {
			logger.Error("shutdown_step_failed", "step", s.Name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	logger.Info("shutdown_complete")
	return first
}

// SetupSignalHandler returns a context canceled on SIGINT or SIGTERM.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()
	return ctx, cancel
}

// Abort logs a fatal startup error, writes a crash dump under crashDir
// when it is set and exits with status 2.
func Abort(contextMsg string, err error, crashDir string) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", contextMsg, err)
	if crashDir != "" {
		if path, derr := WriteCrashDump(crashDir, contextMsg, err); derr != nil {
			logger.Error("crash_dump_failed", "error", derr)
		} else {
			fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", path)
		}
	}
	os.Exit(2)
}

// WriteCrashDump writes the reason, error and goroutine stacks to a new
// file in dir and returns its path.
func WriteCrashDump(dir, reason string, err error) (string, error) {
	if e := os.MkdirAll(dir, 0o700); e != nil {
		return "", fmt.Errorf("failed to create crash dir: %w", e)
	}
	f, ferr := os.CreateTemp(dir, ".crash-*.tmp")
	if ferr != nil {
		return "", fmt.Errorf("failed to create temp crash file: %w", ferr)
	}
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", err)
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	_, _ = f.Write(buf[:n])
	_ = f.Sync()
	_ = f.Close()

	dumpPath := filepath.Join(dir, fmt.Sprintf("crash-%d.log", time.Now().UnixNano()))
	if err := os.Rename(tmpName, dumpPath); err != nil {
		return "", fmt.Errorf("failed to move crash dump into place: %w", err)
	}
	return dumpPath, nil
}
