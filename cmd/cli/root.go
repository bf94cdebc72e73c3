// Package cli provides the Cobra-based command-line interface for
// gvmbridge: serving the bridge daemon and inspecting its configuration.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gvmbridge",
	Short: "HTTP bridge for GVM/OpenVAS scanning engines",
	Long: `gvmbridge brokers HTTP clients to a GVM/OpenVAS scanning engine over
the GMP protocol. It launches scans, tracks their lifecycle in a scan
registry and translates engine reports into a stable JSON shape.`,
	Version: getVersion(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("GVMBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setConfigDefaults()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setConfigDefaults sets default values for configuration read via viper.
func setConfigDefaults() {
	// Engine connection
	viper.SetDefault("gvm.transport", "unix")
	viper.SetDefault("gvm.socket_path", "/var/run/gvmd.sock")
	viper.SetDefault("gvm.host", "127.0.0.1")
	viper.SetDefault("gvm.port", 9390)
	viper.SetDefault("gvm.username", "admin")

	// API
	viper.SetDefault("api.listen_addr", "127.0.0.1")
	viper.SetDefault("api.port", 8080)

	// Poller
	viper.SetDefault("poller.enabled", true)
	viper.SetDefault("poller.schedule", "@every 1m")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")
}

func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}
