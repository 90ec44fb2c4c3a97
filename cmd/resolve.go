package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/recommend"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <scope>",
	Short: "Resolve the best available recommendation for a scope",
	Long: `Walks the fallback path from item history to component-type history to the
global corpus and prints the most specific sweet spot with enough data.

Examples:
  resolve caption/pump-a100
  resolve blog_post --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		scope, err := model.ParseScope(args[0])
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		spot, err := env.Resolver.Resolve(ctx, scope.ComponentType, scope.ItemKey)
		if err != nil {
			if eris.Is(err, recommend.ErrNoPriorKnowledge) {
				fmt.Fprintf(os.Stderr, "No prior knowledge for %s; a plan would fall back to static defaults.\n", scope)
				return nil
			}
			return eris.Wrapf(err, "resolve %s", scope)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(spot)
		}

		fmt.Printf("Requested:   %s\n", scope)
		if spot.Scope != scope {
			fmt.Printf("Widened to:  %s\n", spot.Scope)
		}
		fmt.Println()
		printSweetSpot(os.Stdout, spot)
		return nil
	},
}

func init() {
	resolveCmd.Flags().Bool("json", false, "print the resolved sweet spot as JSON")
	rootCmd.AddCommand(resolveCmd)
}
