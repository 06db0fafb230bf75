package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ferro-labs/ferroinfer/internal/requestlog"
	"github.com/spf13/cobra"
)

func newPredictionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predictions",
		Short: "List recent entries from the prediction log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			driver, dsn := cfg.RequestLog.Driver, cfg.RequestLog.DSN
			if f := cmd.Flags().Lookup("driver"); f.Changed {
				driver = f.Value.String()
			}
			if f := cmd.Flags().Lookup("dsn"); f.Changed {
				dsn = f.Value.String()
			}

			var w *requestlog.SQLWriter
			switch strings.ToLower(driver) {
			case requestlog.DriverSQLite:
				w, err = requestlog.NewSQLiteWriter(dsn)
			case requestlog.DriverPostgres:
				w, err = requestlog.NewPostgresWriter(dsn)
			default:
				return fmt.Errorf("prediction log is disabled: set --driver or request_log.driver")
			}
			if err != nil {
				return err
			}
			defer w.Close()

			q := requestlog.Query{}
			q.Limit, _ = cmd.Flags().GetInt("limit")
			q.Offset, _ = cmd.Flags().GetInt("offset")
			q.Label, _ = cmd.Flags().GetString("label")
			q.Status, _ = cmd.Flags().GetInt("status")
			if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
				t := time.Now().Add(-since)
				q.Since = &t
			}
			res, err := w.List(cmd.Context(), q)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSTATUS\tLABEL\tCONFIDENCE\tLATENCY\tTEXT HASH\tTRACE ID")
			for _, e := range res.Data {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%.4f\t%dms\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.Status, orDash(e.Label),
					e.Confidence, e.LatencyMs, shortHash(e.TextHash), orDash(e.TraceID))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries\n", len(res.Data), res.Total)
			return nil
		},
	}
	cmd.Flags().String("driver", "", "sqlite or postgres (overrides request_log.driver)")
	cmd.Flags().String("dsn", "", "database DSN (overrides request_log.dsn)")
	cmd.Flags().Int("limit", 20, "maximum entries to show")
	cmd.Flags().Int("offset", 0, "skip this many of the newest entries")
	cmd.Flags().String("label", "", "only show predictions with this label")
	cmd.Flags().Int("status", 0, "only show entries with this HTTP status")
	cmd.Flags().Duration("since", 0, "only show entries newer than this age, e.g. 24h")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
