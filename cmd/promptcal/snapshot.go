package main

import (
	"errors"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"promptcal/internal/capture"
	appLog "promptcal/internal/log"
)

var snapFlags struct {
	view   string
	date   string
	url    string
	out    string
	width  int
	height int
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Render a calendar view to a PNG with headless Chromium",
	Long: `snapshot renders one view of the calendar UI and writes it to preview_path
(served at /preview.png). Without --url an in-process server on a loopback
port is used, so no running "promptcal serve" is needed.`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

func init() {
	f := snapshotCmd.Flags()
	f.StringVar(&snapFlags.view, "view", "month", "view to render: day, 3day, week, month, schedule")
	f.StringVar(&snapFlags.date, "date", "", "anchor date yyyy-mm-dd (default today)")
	f.StringVar(&snapFlags.url, "url", "", "base URL of a running server instead of an in-process one")
	f.StringVar(&snapFlags.out, "out", "", "output PNG path (default preview_path)")
	f.IntVar(&snapFlags.width, "width", capture.DefaultWidth, "viewport width in pixels")
	f.IntVar(&snapFlags.height, "height", capture.DefaultHeight, "viewport height in pixels")
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	base := snapFlags.url
	if base == "" {
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.subs.Refresh(ctx); err != nil {
			appLog.Warn("some subscriptions failed to refresh", "error", err.Error())
		}

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		local := *cfg
		local.BasicAuth = nil
		srv := &http.Server{Handler: a.handler(&local)}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLog.Error("snapshot server failed", err)
			}
		}()
		defer srv.Close()
		base = "http://" + ln.Addr().String()
	}

	target, err := capture.ViewURL(base, snapFlags.view, snapFlags.date)
	if err != nil {
		return err
	}
	out := snapFlags.out
	if out == "" {
		out = cfg.PreviewPath
	}
	return capture.Snapshot(ctx, capture.Options{
		URL:        target,
		OutputPath: out,
		Width:      snapFlags.width,
		Height:     snapFlags.height,
	})
}
