package banner

import (
	"bytes"
	"testing"

	"chatrelay/pkg/config"

	"github.com/stretchr/testify/assert"
)

func TestPrint(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host = "example.org"
	cfg.Server.MaxBodySize = 256 * 1024
	cfg.Server.APIKeys.Backend = []string{"sk"}
	cfg.Presence.Sweep.Enabled = true
	cfg.Presence.Sweep.Cron = "* * * * *"
	cfg.Storage.PresenceBackend = config.BackendPebble
	cfg.Directory.Users = []string{"a", "b"}

	var buf bytes.Buffer
	Print(&buf, config.EffectiveConfigResult{Config: cfg, Addr: "0.0.0.0:8080", DBPath: "/tmp/db"}, "v1")
	out := buf.String()

	assert.Contains(t, out, "Listen:   0.0.0.0:8080")
	assert.Contains(t, out, "Max body: 256 KiB")
	assert.Contains(t, out, "- Backend API keys: OK (1)")
	assert.Contains(t, out, "- Frontend API keys: MISSING")
	assert.Contains(t, out, "cron=* * * * *")
	assert.Contains(t, out, "- NATS relay: disabled")
	assert.Contains(t, out, "- Seeded users: 2")
	assert.Contains(t, out, "Config:   flags")
}
