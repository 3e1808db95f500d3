package main

import (
	"fmt"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	appLog "promptcal/internal/log"
	"promptcal/internal/web"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI and API and keep ICS subscriptions fresh",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch every ICS subscription once and report its status",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", a.loc.String(),
		"week_start", cfg.WeekStart,
		"database", cfg.Database,
		"refresh", cfg.RefreshCron,
		"ics_count", len(cfg.ICS),
		"caldav", cfg.CalDAV != nil,
		"provider", a.settings.Current().Provider,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.subs.Run(ctx, cfg.RefreshCron); err != nil {
			appLog.Error("subscription refresher stopped", err)
		}
	}()

	err = web.Serve(ctx, cfg, a.handler(cfg))
	cancel()
	wg.Wait()
	appLog.Info("promptcal exiting")
	return err
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	refreshErr := a.subs.Refresh(ctx)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEVENTS\tCACHED\tERROR")
	for _, st := range a.subs.Status() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", st.ID, st.Name, st.Events, st.FromCache, st.Error)
	}
	tw.Flush()
	return refreshErr
}
