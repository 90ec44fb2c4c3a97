package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/recommend"
	"github.com/forgepoint/gentuner/internal/store"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Inspect recorded generation attempts",
	Long:  "Commands for listing, viewing, and archiving attempts in the store.",
}

// -- attempts list --

var attemptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded attempts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter, err := attemptFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		recs, err := env.Store.Query(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "attempts list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No attempts found.")
			return nil
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "table":
			formatAttemptsList(os.Stdout, recs)
		case "csv":
			if err := writeAttemptsCSV(os.Stdout, recs); err != nil {
				return err
			}
		default:
			return eris.Errorf("attempts list: --format must be table or csv (got %q)", format)
		}
		return nil
	},
}

// -- attempts show --

var attemptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the full record of an attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("attempts show: invalid id %q", args[0])
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Store.Get(ctx, id)
		if err != nil {
			return eris.Wrap(err, "attempts show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- attempts archive --

var attemptsArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive an attempt so analysis ignores it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("attempts archive: invalid id %q", args[0])
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Store.Get(ctx, id)
		if err != nil {
			return eris.Wrap(err, "attempts archive")
		}
		if err := env.Store.Archive(ctx, id); err != nil {
			return eris.Wrap(err, "attempts archive")
		}

		// Mined ranges covering this attempt may have shrunk.
		for _, sc := range recommend.WideningScopes(rec.ComponentType, rec.ItemKey) {
			env.Analyzer.Invalidate(sc)
		}

		fmt.Printf("Archived attempt %d (%s)\n", id, model.ItemScope(rec.ComponentType, rec.ItemKey))
		return nil
	},
}

func init() {
	f := attemptsListCmd.Flags()
	f.String("component-type", "", "filter by content type")
	f.String("item-key", "", "filter by item key (requires --component-type)")
	f.Bool("success-only", false, "only attempts that passed acceptance")
	f.Float64("min-score", 0, "minimum composite score")
	f.Duration("since", 0, "time window (e.g. 24h, 168h); zero means all history")
	f.Bool("include-archived", false, "include archived attempts")
	f.Int("limit", 50, "max number of attempts to display")
	f.Int("offset", 0, "number of attempts to skip")
	f.String("format", "table", "output format: table or csv")

	attemptsCmd.AddCommand(attemptsListCmd)
	attemptsCmd.AddCommand(attemptsShowCmd)
	attemptsCmd.AddCommand(attemptsArchiveCmd)
	rootCmd.AddCommand(attemptsCmd)
}

func attemptFilterFromFlags(cmd *cobra.Command) (store.AttemptFilter, error) {
	componentType, _ := cmd.Flags().GetString("component-type")
	itemKey, _ := cmd.Flags().GetString("item-key")
	successOnly, _ := cmd.Flags().GetBool("success-only")
	minScore, _ := cmd.Flags().GetFloat64("min-score")
	since, _ := cmd.Flags().GetDuration("since")
	includeArchived, _ := cmd.Flags().GetBool("include-archived")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	filter := store.AttemptFilter{
		SuccessOnly:     successOnly,
		MinScore:        minScore,
		IncludeArchived: includeArchived,
		Limit:           limit,
		Offset:          offset,
	}

	switch {
	case componentType != "" && itemKey != "":
		filter.Scope = model.ItemScope(componentType, itemKey)
	case componentType != "":
		filter.Scope = model.TypeScope(componentType)
	case itemKey != "":
		return store.AttemptFilter{}, eris.New("attempts list: --item-key requires --component-type")
	}

	if since > 0 {
		filter.Since = time.Now().UTC().Add(-since)
	}

	return filter, nil
}

// formatAttemptsList writes a tabular list of attempts to w.
func formatAttemptsList(out io.Writer, recs []model.AttemptRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCOPE\tSCORE\tSUCCESS\tARCHIVED\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t-----\t-------\t--------\t-------")

	for _, r := range recs {
		scope := model.ItemScope(r.ComponentType, r.ItemKey).String()
		if len(scope) > 40 {
			scope = scope[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%.1f\t%v\t%v\t%s\n",
			r.ID,
			scope,
			r.CompositeScore,
			r.Success,
			r.Archived,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// writeAttemptsCSV writes attempts as CSV, parameters and signals as JSON
// cells so a row round-trips.
func writeAttemptsCSV(out io.Writer, recs []model.AttemptRecord) error {
	cw := csv.NewWriter(out)
	defer cw.Flush()

	header := []string{"id", "uid", "component_type", "item_key", "composite_score", "success", "archived", "created_at", "parameters", "raw_signals"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "attempts list: write CSV header")
	}

	for _, r := range recs {
		params, err := json.Marshal(r.Parameters)
		if err != nil {
			return eris.Wrapf(err, "attempts list: marshal parameters for %d", r.ID)
		}
		signals, err := json.Marshal(r.RawSignals)
		if err != nil {
			return eris.Wrapf(err, "attempts list: marshal signals for %d", r.ID)
		}

		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.UID,
			r.ComponentType,
			r.ItemKey,
			fmt.Sprintf("%.2f", r.CompositeScore),
			strconv.FormatBool(r.Success),
			strconv.FormatBool(r.Archived),
			r.CreatedAt.UTC().Format(time.RFC3339),
			string(params),
			string(signals),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "attempts list: write CSV row")
		}
	}
	return nil
}
