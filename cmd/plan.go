package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forgepoint/gentuner/internal/genconfig"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute generation parameters for an upcoming piece",
	Long: `Computes a full parameter set for one generation: learned sweet-spot values
where history exists, static defaults where it does not, adjusted for length
and locale and clamped to the registered bounds.

Examples:
  plan --component-type caption --item-key pump-a100
  plan --component-type blog_post --length-hint 1800 --locale de --json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		componentType, _ := cmd.Flags().GetString("component-type")
		itemKey, _ := cmd.Flags().GetString("item-key")
		lengthHint, _ := cmd.Flags().GetInt("length-hint")
		locale, _ := cmd.Flags().GetString("locale")

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		plan, err := env.Calculator.ComputePlan(ctx, genconfig.Request{
			ComponentType: componentType,
			ItemKey:       itemKey,
			LengthHint:    lengthHint,
			Locale:        locale,
		})
		if err != nil {
			return eris.Wrap(err, "plan")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		}

		printPlan(os.Stdout, plan)
		return nil
	},
}

func init() {
	f := planCmd.Flags()
	f.String("component-type", "", "content type to plan for (required)")
	f.String("item-key", "", "stable key of the concrete item, if any")
	f.Int("length-hint", 0, "expected word count of the finished piece")
	f.String("locale", "", "BCP 47 locale tag (e.g. en-GB, de)")
	f.Bool("json", false, "print the plan as JSON")
	_ = planCmd.MarkFlagRequired("component-type")

	rootCmd.AddCommand(planCmd)
}

// printPlan writes the computed parameters and their provenance.
func printPlan(w io.Writer, plan *genconfig.Plan) {
	switch plan.Source {
	case genconfig.SourceLearned:
		fmt.Fprintf(w, "Source:      learned (%s, %s confidence, %d samples)\n",
			plan.Scope, plan.Confidence, plan.SampleCount)
	default:
		fmt.Fprintln(w, "Source:      static defaults")
	}

	fmt.Fprintln(w, "\nParameters:")
	for _, name := range sortedKeys(plan.Parameters) {
		fmt.Fprintf(w, "  %-20s %g\n", name, plan.Parameters[name])
	}
}
