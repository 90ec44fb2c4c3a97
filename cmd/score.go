package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forgepoint/gentuner/internal/config"
	"github.com/forgepoint/gentuner/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute a composite quality score without storing anything",
	Long: `Combines raw quality signals into a 0-100 composite using the configured
weights. Nothing is written; use this to check how a set of signals would
score before ingesting, or to tune weights.

Examples:
  # Score a signal set
  score --signal human_likeness=0.87 --signal readability=72

  # Same, with a weight override
  score --signal human_likeness=0.87 --signal readability=72 \
    --human-likeness-weight 0.7 --readability-weight 0.3

  # Signals from JSON
  score --json '{"human_likeness":0.87,"subjective_quality":8.5}'`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.StringArray("signal", nil, "raw quality signal as name=value (repeatable)")
	f.String("json", "", "inline JSON object of raw signals")
	f.Float64("human-likeness-weight", 0, "override configured human_likeness weight")
	f.Float64("subjective-quality-weight", 0, "override configured subjective_quality weight")
	f.Float64("readability-weight", 0, "override configured readability weight")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	signals, err := scoreSignals(cmd)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		return eris.New("score: at least one --signal (or --json) is required")
	}

	sc, err := scorer.New(applyWeightOverrides(cmd, cfg.Scorer))
	if err != nil {
		return err
	}

	result, err := sc.Score(signals)
	if err != nil {
		return eris.Wrap(err, "score")
	}

	printScoreResult(os.Stdout, result)
	return nil
}

func scoreSignals(cmd *cobra.Command) (map[string]float64, error) {
	if raw, _ := cmd.Flags().GetString("json"); raw != "" {
		var signals map[string]float64
		if err := json.Unmarshal([]byte(raw), &signals); err != nil {
			return nil, eris.Wrap(err, "score: parse --json")
		}
		return signals, nil
	}

	signals, err := parseKVFloats(mustGetStringArray(cmd, "signal"))
	if err != nil {
		return nil, eris.Wrap(err, "score: --signal")
	}
	return signals, nil
}

// applyWeightOverrides returns a copy of the base config with CLI flag
// overrides applied.
func applyWeightOverrides(cmd *cobra.Command, base config.ScorerConfig) config.ScorerConfig {
	c := base

	if v, _ := cmd.Flags().GetFloat64("human-likeness-weight"); v > 0 {
		c.HumanLikenessWeight = v
	}
	if v, _ := cmd.Flags().GetFloat64("subjective-quality-weight"); v > 0 {
		c.SubjectiveQualityWeight = v
	}
	if v, _ := cmd.Flags().GetFloat64("readability-weight"); v > 0 {
		c.ReadabilityWeight = v
	}

	return c
}

// printScoreResult writes a composite score breakdown.
func printScoreResult(w io.Writer, r *scorer.Result) {
	fmt.Fprintf(w, "Composite: %.2f / 100\n", r.Composite)
	if len(r.Normalized) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSignals:")
	for _, name := range sortedKeys(r.Normalized) {
		fmt.Fprintf(w, "  %-22s %6.2f  (weight %.3f)\n",
			name, r.Normalized[name], r.EffectiveWeights[name])
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
