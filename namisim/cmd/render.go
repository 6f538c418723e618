package cmd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/davide97g/nami/nami/router"
	"github.com/davide97g/nami/nami/session"
	"github.com/davide97g/nami/nami/surface"
	"github.com/davide97g/nami/namisim/panel"
	"github.com/spf13/cobra"
)

// renderCmd routes one payload and dumps the panel
var renderCmd = &cobra.Command{
	Use:   "render [payload]",
	Short: "Render a payload and print the panel as text",
	Long: `Route a payload exactly as the device does and print the resulting
128x64 panel, '#' for lit pixels. The payload is read from stdin when no
argument is given; a single trailing newline is dropped.

Examples:
  namisim render Hello
  namisim render '{"type":"pokemon_bitmap","id":25,"name":"pikachu","width":8,"height":1,"data":[255]}'
  cat art.txt | namisim render`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	var raw []byte
	if len(args) == 1 {
		raw = []byte(args[0])
	} else {
		var err error
		raw, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), session.MaxFrame+1))
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		if len(raw) > session.MaxFrame {
			return fmt.Errorf("payload larger than %d bytes", session.MaxFrame)
		}
		raw = bytes.TrimSuffix(raw, []byte("\n"))
	}

	logger, err := newLogger(cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	s := surface.New(panel.NewText(cmd.OutOrStdout()))
	out := router.New(s, logger).Route(raw)
	if !out.Rendered() {
		return fmt.Errorf("payload not rendered (%s): %w", out.Kind, out.Err)
	}
	return nil
}
