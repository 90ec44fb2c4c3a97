package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/report"
	"github.com/forgepoint/gentuner/internal/store"
	"github.com/forgepoint/gentuner/internal/sweetspot"
)

var sweetspotsCmd = &cobra.Command{
	Use:   "sweetspots",
	Short: "Mine high-scoring parameter ranges",
	Long:  "Commands for analyzing the parameter ranges behind successful attempts, per scope or across the whole store.",
}

// -- sweetspots analyze --

var sweetspotsAnalyzeCmd = &cobra.Command{
	Use:   "analyze <scope>",
	Short: "Mine the sweet spot for one scope",
	Long: `Analyzes exactly the named scope, without widening. A scope is a component
type ("caption"), an item within it ("caption/pump-a100"), or "global".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		scope, err := model.ParseScope(args[0])
		if err != nil {
			return err
		}
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		spot, err := env.Analyzer.Analyze(ctx, scope, threshold)
		if err != nil {
			if eris.Is(err, sweetspot.ErrNotEnoughData) {
				fmt.Fprintf(os.Stderr, "Not enough qualifying attempts for %s.\n", scope)
				return nil
			}
			return eris.Wrapf(err, "sweetspots analyze %s", scope)
		}

		printSweetSpot(os.Stdout, spot)
		return nil
	},
}

// -- sweetspots export --

var sweetspotsExportCmd = &cobra.Command{
	Use:   "export [scope...]",
	Short: "Export mined sweet spots as a table, CSV, or XLSX workbook",
	Long: `Mines the given scopes and writes the results in the chosen format. With no
arguments every scope present in the store is mined, plus the global corpus.
Scopes without enough data are skipped.

Examples:
  # Everything the store knows about, as a terminal table
  sweetspots export

  # One component type and one item, as CSV
  sweetspots export caption caption/pump-a100 --format csv --output spots.csv

  # Workbook for the content team
  sweetspots export --format xlsx --output spots.xlsx`,
	RunE: runSweetspotsExport,
}

func init() {
	sweetspotsAnalyzeCmd.Flags().Float64("threshold", 0, "success threshold override (0 = configured default)")

	f := sweetspotsExportCmd.Flags()
	f.Float64("threshold", 0, "success threshold override (0 = configured default)")
	f.String("format", "table", "output format: table, csv, or xlsx")
	f.String("output", "", "output file path (default: stdout; required for xlsx)")

	sweetspotsCmd.AddCommand(sweetspotsAnalyzeCmd)
	sweetspotsCmd.AddCommand(sweetspotsExportCmd)
	rootCmd.AddCommand(sweetspotsCmd)
}

func runSweetspotsExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	threshold, _ := cmd.Flags().GetFloat64("threshold")

	if format != "table" && format != "csv" && format != "xlsx" {
		return eris.Errorf("sweetspots export: --format must be table, csv, or xlsx (got %q)", format)
	}
	if format == "xlsx" && outputPath == "" {
		return eris.New("sweetspots export: --output is required for xlsx")
	}

	env, err := initEngine(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	scopes, err := exportScopes(ctx, env.Store, args)
	if err != nil {
		return err
	}

	log := zap.L().With(zap.String("command", "sweetspots"))

	var spots []*model.SweetSpot
	for _, scope := range scopes {
		spot, err := env.Analyzer.Analyze(ctx, scope, threshold)
		if err != nil {
			if eris.Is(err, sweetspot.ErrNotEnoughData) {
				log.Debug("skipping scope without enough data", zap.String("scope", scope.String()))
				continue
			}
			return eris.Wrapf(err, "sweetspots export: analyze %s", scope)
		}
		spots = append(spots, spot)
	}

	log.Info("sweet spots mined",
		zap.Int("scopes", len(scopes)),
		zap.Int("spots", len(spots)),
	)

	w := io.Writer(os.Stdout)
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "sweetspots export: create output file %s", outputPath)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	rows := report.Rows(spots)
	switch format {
	case "csv":
		return report.WriteCSV(w, rows)
	case "xlsx":
		return report.WriteXLSX(w, rows)
	default:
		return report.WriteTable(w, rows)
	}
}

// exportScopes resolves the scope list for an export: the parsed arguments,
// or every scope seen in the store plus the global corpus.
func exportScopes(ctx context.Context, st store.Store, args []string) ([]model.Scope, error) {
	if len(args) > 0 {
		scopes := make([]model.Scope, 0, len(args))
		for _, arg := range args {
			scope, err := model.ParseScope(arg)
			if err != nil {
				return nil, err
			}
			scopes = append(scopes, scope)
		}
		return scopes, nil
	}

	recs, err := st.Query(ctx, store.AttemptFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "sweetspots export: query scopes")
	}
	return distinctScopes(recs), nil
}

// distinctScopes returns every scope the records cover, sorted: each item
// scope, each component type, and the global corpus when anything exists.
func distinctScopes(recs []model.AttemptRecord) []model.Scope {
	seen := make(map[model.Scope]struct{})
	for _, r := range recs {
		seen[model.TypeScope(r.ComponentType)] = struct{}{}
		if r.ItemKey != "" {
			seen[model.ItemScope(r.ComponentType, r.ItemKey)] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	seen[model.GlobalScope()] = struct{}{}

	scopes := make([]model.Scope, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Slice(scopes, func(i, j int) bool {
		return scopes[i].String() < scopes[j].String()
	})
	return scopes
}

// printSweetSpot writes a single mined spot in a fixed layout.
func printSweetSpot(w io.Writer, spot *model.SweetSpot) {
	fmt.Fprintf(w, "Scope:       %s\n", spot.Scope)
	fmt.Fprintf(w, "Samples:     %d\n", spot.SampleCount)
	fmt.Fprintf(w, "Avg score:   %.1f\n", spot.AvgScore)
	fmt.Fprintf(w, "Max score:   %.1f\n", spot.MaxScore)
	fmt.Fprintf(w, "Confidence:  %s\n", spot.Confidence)

	if len(spot.ParameterRanges) == 0 {
		return
	}
	fmt.Fprintln(w, "\nParameters:")
	names := make([]string, 0, len(spot.ParameterRanges))
	for name := range spot.ParameterRanges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pr := spot.ParameterRanges[name]
		fmt.Fprintf(w, "  %-20s %8.3f .. %-8.3f median %.3f\n",
			name, pr.Min, pr.Max, pr.Median)
	}
}
