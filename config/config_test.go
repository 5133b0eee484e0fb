package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchgate/patchgate/config"
	"github.com/patchgate/patchgate/policy"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patchgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "work", cfg.Workspace.Root)
	assert.Equal(t, "dev", cfg.Policy.Mode)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, ":8091", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
workspace:
  root: /srv/agent/work
policy:
  mode: prod
  overrides:
    net: forbid
store:
  backend: fs
  path: /var/lib/patchgate/records
server:
  addr: ":9000"
audit:
  path: /var/log/patchgate/audit.jsonl
logger:
  level: debug
  format: console
`))
	require.NoError(t, err)

	assert.Equal(t, "/srv/agent/work", cfg.Workspace.Root)
	assert.Equal(t, "prod", cfg.Policy.Mode)
	assert.Equal(t, "fs", cfg.Store.Backend)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/var/log/patchgate/audit.jsonl", cfg.Audit.Path)

	engine, err := cfg.PolicyEngine()
	require.NoError(t, err)
	assert.Equal(t, policy.ModeProd, engine.Snapshot().Mode)
	decision, err := engine.Decide(policy.CapabilityNet)
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionForbid, decision)
}

func TestLoadPolicyFileReference(t *testing.T) {
	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte("mode: trusted\n"), 0o644))

	cfg, err := config.Load(writeConfig(t, "policy:\n  file: "+policyPath+"\n"))
	require.NoError(t, err)

	engine, err := cfg.PolicyEngine()
	require.NoError(t, err)
	assert.Equal(t, policy.ModeTrusted, engine.Snapshot().Mode)
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "bad backend", content: "store:\n  backend: redis\n"},
		{name: "fs without path", content: "store:\n  backend: fs\n"},
		{name: "bad mode", content: "policy:\n  mode: yolo\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "logger:\n  level: warn\n  format: console\n"))
	require.NoError(t, err)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	cfg.Logger.Level = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
