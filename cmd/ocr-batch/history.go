// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ocr-batch/internal/ledger"
	"github.com/pdiddy/ocr-batch/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded conversion runs",
	Long: `History reads the run ledger kept under <output-dir>/.ocr-batch/ and lists
recent runs with their success and failure counts.

Use --failed to print the failed document paths of the latest run, one per
line, ready to pass back to "ocr-batch convert".`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	failedOnly, _ := cmd.Flags().GetBool("failed")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	path, err := historyLedgerPath(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	store, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if failedOnly {
		return printLatestFailed(ctx, out, store)
	}

	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return err
	}
	return formatRuns(out, runs, jsonOutput)
}

// historyLedgerPath resolves the ledger from --ledger, then --output-dir,
// then the configured output directory.
func historyLedgerPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("ledger"); p != "" {
		return p, nil
	}
	if cmd.Flags().Changed("output-dir") {
		dir, _ := cmd.Flags().GetString("output-dir")
		return ledger.DefaultPath(dir), nil
	}
	cfg, err := resolveConfig(viper.GetViper(), loadedSecrets, false)
	if err != nil {
		return "", err
	}
	return cfg.LedgerPath, nil
}

func printLatestFailed(ctx context.Context, w io.Writer, store *ledger.Store) error {
	run, err := store.LatestRun(ctx)
	if errors.Is(err, ledger.ErrNoRuns) {
		fmt.Fprintln(os.Stderr, "No runs recorded.")
		return nil
	}
	if err != nil {
		return err
	}

	docs, err := store.Documents(ctx, run.ID, types.ConversionFailed)
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Fprintln(w, d.Path)
	}
	return nil
}

func formatRuns(w io.Writer, runs []ledger.Run, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-8s  %-20s  %-30s  %-9s  %7s  %6s  %s\n",
		"Run", "Started", "Model", "Task", "Success", "Failed", "Duration")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		model := r.Model
		if len(model) > 30 {
			model = model[:27] + "..."
		}
		fmt.Fprintf(w, "%-8s  %-20s  %-30s  %-9s  %7d  %6d  %s\n",
			id, r.StartedAt.Local().Format("2006-01-02 15:04:05"), model, r.TaskType,
			r.Success, r.Failed, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
		if r.Message != "" {
			fmt.Fprintf(w, "%-8s  %s\n", "", r.Message)
		}
	}

	fmt.Fprintf(w, "\n%d runs\n", len(runs))
	return nil
}

func init() {
	historyCmd.Flags().Int("limit", 10, "maximum runs to list (0 = all)")
	historyCmd.Flags().Bool("failed", false, "print the failed document paths of the latest run")
	historyCmd.Flags().Bool("json", false, "output runs as JSON")
	historyCmd.Flags().String("output-dir", defaultOutputDir, "output directory whose ledger is read")
	historyCmd.Flags().String("ledger", "", "ledger database path (overrides --output-dir)")

	rootCmd.AddCommand(historyCmd)
}
