package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/davide97g/nami/nami/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	// cfg is the device configuration, bound to the persistent flags.
	cfg = simConfig()

	logLevel string

	rootCmd = &cobra.Command{
		Use:   "namisim",
		Short: "Run the nami display device on a desktop",
		Long: `namisim runs the nami device code against a terminal panel and the
host network, so payloads and connection handling can be tried without a
Pico W.`,
		Run:               runRoot,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "session endpoint (ws://, wss:// or mqtt://)")
	f.StringVar(&cfg.Role, "role", cfg.Role, "client role announced in the identify frame")
	f.StringVar(&cfg.SSID, "ssid", cfg.SSID, "simulated WiFi network name")
	f.StringVar(&cfg.Hostname, "hostname", cfg.Hostname, "client id used with MQTT brokers")
	f.StringVar(&cfg.InfoURL, "info-url", cfg.InfoURL, "system info URL, empty disables the panel")
	f.StringVar(&cfg.InfoInterface, "info-interface", cfg.InfoInterface, "network interface shown on the system panel")
	f.DurationVar(&cfg.InfoInterval, "info-interval", cfg.InfoInterval, "system panel refresh interval")
	f.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "session connect timeout")
	f.DurationVar(&cfg.ReconnectInterval, "reconnect", cfg.ReconnectInterval, "delay between session reconnect attempts")
	f.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "keep-alive ping interval, 0 disables")
	f.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(infoCmd)
}

func simConfig() config.Config {
	c := config.Default()
	if c.SSID == "" {
		c.SSID = "namisim"
	}
	c.Dwell = 500 * time.Millisecond
	return c
}

func runRoot(cmd *cobra.Command, args []string) {
	cmd.Help()
}

// newLogger returns a tint logger writing to w. Colors are only used for
// terminals.
func newLogger(w io.Writer, color bool) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !color,
	})), nil
}
