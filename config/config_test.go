package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadTemperature(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Temperature = 1.5
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsHardTimeoutNotExceedingSoft(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jobs.SoftTimeout = cfg.Jobs.HardTimeout
	require.Error(t, cfg.Validate())
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finmodel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "anthropic", cfg.Providers.Default, "unset fields keep their default")
}

func TestMergeOverlaysNonZeroFields(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{Store: StoreConfig{DSN: "postgres://x"}}
	base.Merge(overlay)
	require.Equal(t, "postgres://x", base.Store.DSN)
	require.Equal(t, ":8080", base.Server.Addr, "untouched fields are preserved")
}
