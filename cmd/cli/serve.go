package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/gvmbridge/internal/config"
	"github.com/anstrom/gvmbridge/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gvmbridge service",
	Long: `Serve starts the gvmbridge daemon: the HTTP API, the scan registry
with its optional PostgreSQL store, and the background status poller.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "API listen address (host)")
	serveCmd.Flags().Int("port", 0, "API listen port")
	serveCmd.Flags().Bool("no-poller", false, "disable the background status poller")

	_ = viper.BindPFlag("api.listen_addr", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("api.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if noPoller, _ := cmd.Flags().GetBool("no-poller"); noPoller {
		cfg.Poller.Enabled = false
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	return d.Run()
}

// loadConfig builds the effective configuration: file values layered on
// defaults, then environment and flag overrides from viper.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	applyOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyOverrides layers viper-bound environment and flag values over the
// file configuration. Only values the caller actually set are applied.
func applyOverrides(cfg *config.Config) {
	if v := viper.GetString("gvm.transport"); viper.IsSet("gvm.transport") && v != "" {
		cfg.GVM.Transport = v
	}
	if v := viper.GetString("gvm.socket_path"); viper.IsSet("gvm.socket_path") && v != "" {
		cfg.GVM.SocketPath = v
	}
	if v := viper.GetString("gvm.host"); viper.IsSet("gvm.host") && v != "" {
		cfg.GVM.Host = v
	}
	if v := viper.GetInt("gvm.port"); viper.IsSet("gvm.port") && v != 0 {
		cfg.GVM.Port = v
	}
	if v := viper.GetString("gvm.username"); viper.IsSet("gvm.username") && v != "" {
		cfg.GVM.Username = v
	}
	if v := viper.GetString("gvm.password"); viper.IsSet("gvm.password") && v != "" {
		cfg.GVM.Password = v
	}
	if v := viper.GetString("api.listen_addr"); viper.IsSet("api.listen_addr") && v != "" {
		cfg.API.ListenAddr = v
	}
	if v := viper.GetInt("api.port"); viper.IsSet("api.port") && v != 0 {
		cfg.API.Port = v
	}
	if viper.IsSet("poller.enabled") {
		cfg.Poller.Enabled = viper.GetBool("poller.enabled")
	}
	if v := viper.GetString("logging.level"); viper.IsSet("logging.level") && v != "" {
		cfg.Logging.Level = v
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}
