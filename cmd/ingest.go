package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forgepoint/gentuner/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Record generation attempts with their quality signals",
	Long: `Scores raw quality signals into a composite and appends the attempt to the
store. A single attempt comes from flags or an inline JSON document; bulk
loads read one JSON attempt per line from a file.

Examples:
  # Single attempt from flags
  ingest --component-type caption --item-key pump-a100 \
    --param temperature=0.8 --param top_p=0.95 --param max_tokens=256 \
    --signal human_likeness=0.87 --signal readability=72 --success

  # Single attempt from inline JSON
  ingest --json '{"component_type":"caption","parameters":{...},"raw_signals":{...},"success":true}'

  # Bulk load a JSONL file with 8 concurrent appends
  ingest --file attempts.jsonl --workers 8

  # Bulk load in one transaction
  ingest --file attempts.jsonl --bulk`,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.String("component-type", "", "content type of the attempt (e.g. caption, blog_post)")
	f.String("item-key", "", "stable key of the concrete item, if any")
	f.StringArray("param", nil, "generation parameter as name=value (repeatable)")
	f.StringArray("signal", nil, "raw quality signal as name=value (repeatable)")
	f.Bool("success", false, "whether the attempt passed downstream acceptance")
	f.String("json", "", "inline JSON attempt document (overrides the field flags)")
	f.String("file", "", "path to a JSONL file of attempts for bulk ingestion")
	f.Int("workers", 4, "concurrent appends during bulk ingestion")
	f.Bool("bulk", false, "load the whole file in a single transaction instead of concurrent appends")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEngine(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	filePath, _ := cmd.Flags().GetString("file")
	if filePath != "" {
		workers, _ := cmd.Flags().GetInt("workers")
		bulk, _ := cmd.Flags().GetBool("bulk")
		return ingestFile(ctx, env, filePath, workers, bulk)
	}

	rec, err := attemptFromFlags(cmd)
	if err != nil {
		return err
	}

	result, err := env.Scorer.Score(rec.RawSignals)
	if err != nil {
		return eris.Wrap(err, "ingest: score signals")
	}
	rec.CompositeScore = result.Composite

	id, err := env.Store.Append(ctx, rec)
	if err != nil {
		return eris.Wrap(err, "ingest: append attempt")
	}

	fmt.Printf("Ingested attempt %d (uid %s)\n", id, rec.UID)
	printScoreResult(os.Stdout, result)
	return nil
}

// attemptFromFlags builds a record from --json when given, otherwise from
// the individual field flags.
func attemptFromFlags(cmd *cobra.Command) (*model.AttemptRecord, error) {
	if raw, _ := cmd.Flags().GetString("json"); raw != "" {
		var rec model.AttemptRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, eris.Wrap(err, "ingest: parse --json")
		}
		return &rec, nil
	}

	componentType, _ := cmd.Flags().GetString("component-type")
	if componentType == "" {
		return nil, eris.New("ingest: --component-type is required (or pass --json / --file)")
	}

	params, err := parseKVFloats(mustGetStringArray(cmd, "param"))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: --param")
	}
	signals, err := parseKVFloats(mustGetStringArray(cmd, "signal"))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: --signal")
	}

	itemKey, _ := cmd.Flags().GetString("item-key")
	success, _ := cmd.Flags().GetBool("success")

	return &model.AttemptRecord{
		ComponentType: componentType,
		ItemKey:       itemKey,
		Parameters:    params,
		RawSignals:    signals,
		Success:       success,
	}, nil
}

// ingestFile scores and appends every attempt in a JSONL file, either
// concurrently or as one transaction.
func ingestFile(ctx context.Context, env *engineEnv, path string, workers int, bulk bool) error {
	recs, err := readAttemptLines(path)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No attempts found in file.")
		return nil
	}

	// Score up front so a malformed signal map fails the whole load before
	// anything is written.
	for i := range recs {
		result, err := env.Scorer.Score(recs[i].RawSignals)
		if err != nil {
			return eris.Wrapf(err, "ingest: score line %d", i+1)
		}
		recs[i].CompositeScore = result.Composite
	}

	log := zap.L().With(zap.String("command", "ingest"))

	if bulk {
		n, err := env.Store.AppendBulk(ctx, recs)
		if err != nil {
			return eris.Wrap(err, "ingest: bulk append")
		}
		fmt.Printf("Ingested %d attempts from %s\n", n, path)
		return nil
	}

	log.Info("ingesting attempts",
		zap.Int("attempts", len(recs)),
		zap.Int("workers", workers),
	)

	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var succeeded, failed atomic.Int64

	for i := range recs {
		rec := &recs[i]
		g.Go(func() error {
			if _, err := env.Store.Append(gctx, rec); err != nil {
				failed.Add(1)
				log.Error("append failed",
					zap.String("component_type", rec.ComponentType),
					zap.String("item_key", rec.ItemKey),
					zap.Error(err),
				)
				return nil // don't abort the load on individual failure
			}
			succeeded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "ingest: bulk load")
	}

	fmt.Printf("Ingested %d attempts from %s (%d failed)\n",
		succeeded.Load(), path, failed.Load())
	return nil
}

// readAttemptLines parses one JSON attempt per line, skipping blank lines.
func readAttemptLines(path string) ([]model.AttemptRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var recs []model.AttemptRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec model.AttemptRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, eris.Wrapf(err, "ingest: parse line %d", lineNo)
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	return recs, nil
}

// parseKVFloats parses repeated name=value flags into a map.
func parseKVFloats(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, eris.Errorf("malformed pair %q, want name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, eris.Errorf("malformed value in %q, want a number", pair)
		}
		m[name] = v
	}
	return m, nil
}

func mustGetStringArray(cmd *cobra.Command, name string) []string {
	v, _ := cmd.Flags().GetStringArray(name)
	return v
}
