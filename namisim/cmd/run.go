package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davide97g/nami/nami/device"
	"github.com/davide97g/nami/nami/session"
	"github.com/davide97g/nami/nami/store"
	"github.com/davide97g/nami/nami/surface"
	"github.com/davide97g/nami/nami/sysinfo"
	"github.com/davide97g/nami/namisim/flash"
	"github.com/davide97g/nami/namisim/hostlink"
	"github.com/davide97g/nami/namisim/panel"
	"github.com/spf13/cobra"
)

var (
	logFile   string
	joinDelay time.Duration
	persist   bool
	flashFile string
)

// runCmd runs the full device loop against the terminal panel
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the device loop in the terminal",
	Long: `Run the device loop against a terminal panel and the host network.

Press d to drop or restore the simulated WiFi link and q to quit. Logs go to
a file because the panel owns the terminal.

Examples:
  # Connect to a local peer
  namisim run --endpoint ws://localhost:3000/

  # Use an MQTT broker instead
  namisim run --endpoint mqtt://localhost:1883/nami/content`,
	Args: cobra.NoArgs,
	RunE: runDevice,
}

func init() {
	runCmd.Flags().StringVar(&logFile, "log-file", "namisim.log", "file to write logs to")
	runCmd.Flags().DurationVar(&joinDelay, "join-delay", 800*time.Millisecond, "simulated WiFi association time")
	runCmd.Flags().BoolVar(&persist, "persist", cfg.Persist, "save each payload and replay it on the next run")
	runCmd.Flags().StringVar(&flashFile, "flash", "namisim.flash", "flash image backing the payload store")
}

func runDevice(cmd *cobra.Command, args []string) error {
	cfg.Persist = persist
	if err := cfg.Validate(); err != nil {
		return err
	}
	ep, err := session.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	logger, err := newLogger(f, false)
	if err != nil {
		return err
	}

	radio := hostlink.New(joinDelay)
	var dialer net.Dialer
	deps := device.Deps{
		Config:    cfg,
		Radio:     radio,
		Transport: session.ForEndpoint(ep, cfg.Hostname, dialer.DialContext, logger),
		Info:      sysinfo.HTTPGetter{Client: &http.Client{Timeout: 5 * time.Second}},
		Logger:    logger,
	}
	if cfg.Persist {
		img, err := flash.Open(flashFile, 256, 4096, 64)
		if err != nil {
			return fmt.Errorf("open flash image: %w", err)
		}
		defer img.Close()
		st, err := store.New(img, true)
		if err != nil {
			return fmt.Errorf("mount store: %w", err)
		}
		defer st.Close()
		deps.Store = st
	}

	term, err := panel.OpenTerminal()
	if err != nil {
		return err
	}
	defer term.Close()
	deps.Canvas = surface.New(term)

	dev, err := device.New(deps)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case k := <-term.Keys():
				switch k {
				case panel.KeyQuit:
					cancel()
				case panel.KeyToggle:
					off := !radio.Offline()
					radio.SetOffline(off)
					logger.Info("sim:link-toggled", "offline", off)
				}
			}
		}
	}()

	err = dev.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
