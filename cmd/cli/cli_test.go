package cli

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/gvmbridge/internal/config"
)

func TestRootCommandStructure(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["version"])
	assert.True(t, names["config"])
}

func TestGetVersion(t *testing.T) {
	assert.Contains(t, getVersion(), "dev")
	assert.Contains(t, getVersion(), "commit")
}

func TestApplyOverrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("gvm.host", "gvm.internal")
	viper.Set("gvm.transport", "tls")
	viper.Set("api.port", 9000)
	viper.Set("poller.enabled", false)

	cfg := config.Default()
	applyOverrides(cfg)

	assert.Equal(t, "gvm.internal", cfg.GVM.Host)
	assert.Equal(t, "tls", cfg.GVM.Transport)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.False(t, cfg.Poller.Enabled)

	// Values never set stay at their file/default values.
	assert.Equal(t, "admin", cfg.GVM.Username)
}

func TestApplyOverridesVerboseForcesDebug(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	verbose = true
	defer func() { verbose = false }()

	cfg := config.Default()
	applyOverrides(cfg)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfgFile = "/nonexistent/config.yaml"
	defer func() { cfgFile = "" }()

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPortListID, cfg.Scanning.PortListID)
}
