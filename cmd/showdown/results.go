package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcrodman/showdown/internal/core"
	"github.com/dcrodman/showdown/internal/core/data"
	"github.com/dcrodman/showdown/internal/session"
)

var limitFlag int

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Lists the match results recorded in the configured database",
	Args:  cobra.NoArgs,
	RunE:  resultsCommand,
}

func resultsCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := core.LoadConfig(configFlag)
	if err != nil {
		return err
	}
	if cfg.Database.Engine == "" {
		return fmt.Errorf("no database configured; set database.engine to record match results")
	}

	db, err := data.Open(cfg)
	if err != nil {
		return err
	}
	defer data.Close(db)

	results, err := data.FindMatchResults(db, limitFlag)
	if err != nil {
		return fmt.Errorf("error listing match results: %w", err)
	}

	return writeResults(os.Stdout, results)
}

func writeResults(out io.Writer, results []data.MatchResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPORTED\tGAME SESSION\tWINNER\tDELIVERED\tSTATUS\tERROR")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n",
			r.ReportedAt.Format(time.RFC3339), r.GameSessionID, session.TeamName(r.WinningTeam), r.Delivered, r.StatusCode, r.Error)
	}
	return w.Flush()
}
