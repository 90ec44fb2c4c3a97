package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forgepoint/gentuner/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show attempt-flow health for the recent window",
	Long: `Collects a snapshot of recent attempt activity: totals, failure rate,
composite score statistics, and the per-component-type breakdown. With
--check the configured alert thresholds are evaluated against it.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		lookback, _ := cmd.Flags().GetInt("lookback")
		if lookback <= 0 {
			lookback = cfg.Monitor.LookbackHours
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		formatSnapshot(os.Stdout, snap)

		if check, _ := cmd.Flags().GetBool("check"); check {
			alerts := monitoring.NewAlerter(cfg.Monitor).Evaluate(snap)
			printAlerts(os.Stdout, alerts)
		}
		return nil
	},
}

func init() {
	f := statusCmd.Flags()
	f.Int("lookback", 0, "window in hours (0 = configured default)")
	f.Bool("check", false, "evaluate alert thresholds against the snapshot")
	f.Bool("json", false, "print the snapshot as JSON")

	rootCmd.AddCommand(statusCmd)
}

// formatSnapshot writes the health snapshot to w.
func formatSnapshot(out io.Writer, snap *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Attempts:\t%d\n", snap.AttemptsTotal)
	_, _ = fmt.Fprintf(w, "  Succeeded:\t%d\n", snap.AttemptsSuccess)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", snap.AttemptsFailed)
	_, _ = fmt.Fprintf(w, "  Archived:\t%d\n", snap.AttemptsArchived)
	if snap.AttemptsTotal > 0 {
		_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.FailRate*100)
		_, _ = fmt.Fprintf(w, "Avg composite:\t%.1f\n", snap.AvgScore)
		_, _ = fmt.Fprintf(w, "Max composite:\t%.1f\n", snap.MaxScore)
	}
	_ = w.Flush()

	if len(snap.ByComponentType) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out, "\nBy component type:")
	types := make([]string, 0, len(snap.ByComponentType))
	for name := range snap.ByComponentType {
		types = append(types, name)
	}
	sort.Strings(types)
	for _, name := range types {
		_, _ = fmt.Fprintf(out, "  %-22s %d\n", name, snap.ByComponentType[name])
	}
}

// printAlerts writes evaluated alerts, one per line.
func printAlerts(out io.Writer, alerts []monitoring.Alert) {
	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts.")
		return
	}
	_, _ = fmt.Fprintln(out, "\nAlerts:")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "  [%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
}
