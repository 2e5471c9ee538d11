package banner

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"chatrelay/pkg/config"
)

const banner = `
  ___ _         _   ___     _
 / __| |_  __ _| |_| _ \___| |__ _ _  _
| (__| ' \/ _' |  _|   / -_) / _' | || |
 \___|_||_\__,_|\__|_|_\___|_\__,_|\_, |
                                   |__/
`

// Print writes the startup banner and a deployment checklist for eff.
func Print(w io.Writer, eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:   %s\n", eff.Addr)
	fmt.Fprintf(w, "DB Path:  %s\n", eff.DBPath)
	fmt.Fprintf(w, "Host:     %s\n", cfg.Server.Host)
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Config:   %s\n", src)
	fmt.Fprintf(w, "Max body: %s\n", humanize.IBytes(uint64(cfg.Server.MaxBodySize.Int64())))

	fmt.Fprintln(w, "\n== Production? =================================================")
	keyLine(w, "Backend API keys", len(cfg.Server.APIKeys.Backend), "required for backend services")
	keyLine(w, "Frontend API keys", len(cfg.Server.APIKeys.Frontend), "required for client access")
	keyLine(w, "Admin API keys", len(cfg.Server.APIKeys.Admin), "required for admin tooling")

	fmt.Fprintf(w, "- Presence timeout: %s\n", cfg.Presence.Timeout.Duration())
	if cfg.Presence.Sweep.Enabled {
		fmt.Fprintf(w, "- Scheduled sweep: enabled (cron=%s)\n", cfg.Presence.Sweep.Cron)
	} else {
		fmt.Fprintln(w, "- Scheduled sweep: disabled (sweeps run on poll only)")
	}
	fmt.Fprintf(w, "- Presence backend: %s\n", cfg.Storage.PresenceBackend)
	if cfg.Relay.NATS.Enabled {
		fmt.Fprintf(w, "- NATS relay: enabled (%s.*)\n", cfg.Relay.NATS.SubjectPrefix)
	} else {
		fmt.Fprintln(w, "- NATS relay: disabled")
	}
	fmt.Fprintf(w, "- Seeded users: %s\n", humanize.Comma(int64(len(cfg.Directory.Users))))
	fmt.Fprintln(w)
}

func keyLine(w io.Writer, name string, n int, need string) {
	if n > 0 {
		fmt.Fprintf(w, "- %s: OK (%d)\n", name, n)
		return
	}
	fmt.Fprintf(w, "- %s: MISSING (%s)\n", name, need)
}
