package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/davide97g/nami/nami/surface"
	"github.com/davide97g/nami/nami/sysinfo"
	"github.com/davide97g/nami/namisim/panel"
	"github.com/spf13/cobra"
)

// infoCmd fetches the system info document once
var infoCmd = &cobra.Command{
	Use:   "info [url]",
	Short: "Fetch system info and print the panel as text",
	Long: `Fetch the peer's system info document and print the system panel the
device shows while no session is active. The URL defaults to --info-url.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	url := cfg.InfoURL
	if len(args) == 1 {
		url = args[0]
	}
	if url == "" {
		return fmt.Errorf("no info URL given")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	body, err := sysinfo.HTTPGetter{Client: &http.Client{}}.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	info, err := sysinfo.Parse(body)
	if err != nil {
		return err
	}
	return sysinfo.Render(surface.New(panel.NewText(cmd.OutOrStdout())), info, cfg.InfoInterface)
}
