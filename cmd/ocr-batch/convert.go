// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ocr-batch/internal/convert"
	"github.com/pdiddy/ocr-batch/internal/httputil"
	"github.com/pdiddy/ocr-batch/internal/inference"
	"github.com/pdiddy/ocr-batch/internal/ledger"
	"github.com/pdiddy/ocr-batch/internal/pdf"
	"github.com/pdiddy/ocr-batch/internal/prompt"
	"github.com/pdiddy/ocr-batch/internal/report"
	"github.com/pdiddy/ocr-batch/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [pdfs...]",
	Short: "Convert PDF documents to text through the OCR model",
	Long: `Convert renders the last page of every PDF in the input directory, sends
it to the OCR model, and writes <output-dir>/<stem>.txt for each document.
With explicit PDF paths only those documents are converted.

A document that fails is recorded and the batch continues. The command
exits non-zero only when the input directory is missing; per-document
failures are listed in the summary.`,
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	noLedger, _ := cmd.Flags().GetBool("no-ledger")
	reportPath, _ := cmd.Flags().GetString("report")
	quiet, _ := cmd.Flags().GetBool("quiet")

	cfg, err := resolveConfig(viper.GetViper(), loadedSecrets, noLedger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printBanner(out, cfg)

	// Validate before any collaborator is built.
	total := len(args)
	if len(args) == 0 {
		if err := convert.CheckInputDir(cfg.Conversion.InputDir); err != nil {
			logger.Error().Err(err).Msg("aborting")
			return err
		}
		docs, err := convert.Discover(cfg.Conversion.InputDir)
		if err != nil {
			return err
		}
		total = len(docs)
	}

	httpClient := httputil.NewClient(cfg.Inference.HTTPConfig, cfg.Conversion.Workers)
	conv := convert.NewDocumentConverter(
		pdf.NewPageCounter(),
		prompt.NewBuilder(pdf.NewRasterizer()),
		inference.NewClient(cfg.Inference, httpClient),
		cfg.Conversion,
		logger,
	)
	batch := convert.NewBatch(conv, cfg.Conversion.Workers, logger)

	if !quiet && total > 0 {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("converting"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		batch.OnResult = func(types.ConversionResult) { bar.Add(1) }
		defer bar.Finish()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	var br types.BatchReport
	if len(args) > 0 {
		br = batch.RunPaths(ctx, args, cfg.Conversion.OutputDir)
	} else {
		br = batch.Run(ctx, cfg.Conversion.InputDir, cfg.Conversion.OutputDir)
	}

	printSummary(out, br)

	runID := recordRun(ctx, cfg, started, br)
	if reportPath != "" {
		if err := report.Write(reportPath, report.New(reportRun(cfg, runID, started), br)); err != nil {
			return fmt.Errorf("writing report %s: %w", reportPath, err)
		}
		fmt.Fprintf(out, "Report written to %s\n", reportPath)
	}
	return nil
}

// recordRun stores the run in the ledger and returns its ID. Runs that
// attempted no documents are not recorded, so the output directory stays
// untouched. Ledger failures are logged and never change the outcome of the run.
func recordRun(ctx context.Context, cfg types.Config, started time.Time, br types.BatchReport) string {
	if cfg.LedgerPath == "" || br.Total() == 0 {
		return ""
	}

	store, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		logger.Warn().Err(err).Str("ledger", cfg.LedgerPath).Msg("run history unavailable")
		return ""
	}
	defer store.Close()

	// Record even when the batch was interrupted.
	run, err := store.RecordRun(context.WithoutCancel(ctx), ledger.RunMeta{
		StartedAt: started,
		InputDir:  cfg.Conversion.InputDir,
		OutputDir: cfg.Conversion.OutputDir,
		Model:     cfg.Inference.Model,
		TaskType:  cfg.Conversion.TaskType,
	}, br)
	if err != nil {
		logger.Warn().Err(err).Msg("recording run history")
		return ""
	}
	logger.Debug().Str("run_id", run.ID).Msg("run recorded")
	return run.ID
}

func reportRun(cfg types.Config, runID string, started time.Time) report.Run {
	return report.Run{
		ID:        runID,
		StartedAt: started.UTC(),
		InputDir:  cfg.Conversion.InputDir,
		OutputDir: cfg.Conversion.OutputDir,
		Endpoint:  cfg.Inference.Endpoint(),
		Model:     cfg.Inference.Model,
		TaskType:  cfg.Conversion.TaskType,
	}
}

func printBanner(w io.Writer, cfg types.Config) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "PDF to Text Converter using Typhoon OCR + Ollama")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Ollama Server: %s\n", cfg.Inference.Endpoint())
	fmt.Fprintf(w, "Model: %s\n", cfg.Inference.Model)
	fmt.Fprintf(w, "Task: %s\n", cfg.Conversion.TaskType)
	fmt.Fprintf(w, "Input dir: %s\n", cfg.Conversion.InputDir)
	fmt.Fprintf(w, "Output dir: %s\n", cfg.Conversion.OutputDir)
	fmt.Fprintln(w, rule)
}

// printSummary writes the counts and every failed document path so
// operators can re-run just those.
func printSummary(w io.Writer, br types.BatchReport) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(w, "\nRESULTS")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Success: %s | Failed: %s\n", green(br.Success), red(br.Failed))
	if len(br.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range br.Errors {
			fmt.Fprintln(w, "  -", e)
		}
	}
}

func init() {
	convertCmd.Flags().String("input-dir", defaultInputDir, "directory scanned for PDF documents (env DOC_DIR)")
	convertCmd.Flags().String("output-dir", defaultOutputDir, "directory receiving .txt outputs (env DOC_TEXT_DIR)")
	convertCmd.Flags().String("host", defaultHost, "inference host name or base URL (env OLLAMA_HOST)")
	convertCmd.Flags().Int("port", defaultPort, "inference port (env OLLAMA_PORT)")
	convertCmd.Flags().String("model", defaultModel, "OCR model identifier (env MODEL_NAME)")
	convertCmd.Flags().String("task", string(types.TaskDefault), "prompt variant: default or structure")
	convertCmd.Flags().Int("workers", 1, "documents converted concurrently")
	convertCmd.Flags().Duration("timeout", defaultTimeout, "per-request inference timeout")
	convertCmd.Flags().Bool("extract-natural-text", false, `write the "natural_text" field when the model answers with JSON`)
	convertCmd.Flags().String("report", "", "write a run report to this .yaml, .yml or .json file")
	convertCmd.Flags().Bool("no-ledger", false, "do not record the run in the history ledger")
	convertCmd.Flags().Bool("quiet", false, "hide the progress bar")

	bindings := map[string]string{
		"conversion.input_dir":            "input-dir",
		"conversion.output_dir":           "output-dir",
		"inference.host":                  "host",
		"inference.port":                  "port",
		"inference.model":                 "model",
		"conversion.task_type":            "task",
		"conversion.workers":              "workers",
		"inference.timeout":               "timeout",
		"conversion.extract_natural_text": "extract-natural-text",
	}
	for key, flag := range bindings {
		viper.BindPFlag(key, convertCmd.Flags().Lookup(flag))
	}

	rootCmd.AddCommand(convertCmd)
}
