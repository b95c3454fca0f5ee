// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns a directory of PDFs into text files through an OCR
// model. A DocumentConverter handles one document; a Batch discovers
// documents, isolates per-document failures and aggregates a BatchReport.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/ocr-batch/pkg/types"
)

const (
	// DocumentExt is the extension of input documents, matched case-insensitively.
	DocumentExt = ".pdf"
	// TextExt is the extension of output text files.
	TextExt = ".txt"
)

// Whole-batch messages reported in BatchReport.Errors.
const (
	msgInputDirNotFound = "Input dir not found: %s"
	msgNoDocuments      = "No PDF files found"
)

// Converter converts one document. DocumentConverter is the production
// implementation; tests supply fakes.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) types.ConversionResult
}

// Batch runs a Converter over every document in a directory.
type Batch struct {
	conv    Converter
	workers int
	log     zerolog.Logger

	// OnResult, when set, is called after each document completes. With more
	// than one worker it is called from several goroutines at once.
	OnResult func(res types.ConversionResult)
}

// NewBatch returns a Batch converting up to workers documents at a time.
// Values below 1 mean sequential processing.
func NewBatch(conv Converter, workers int, log zerolog.Logger) *Batch {
	if workers < 1 {
		workers = 1
	}
	return &Batch{conv: conv, workers: workers, log: log}
}

// CheckInputDir returns an ErrConfiguration error when dir does not exist or
// is not a directory.
func CheckInputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return kindError(ErrConfiguration, fmt.Errorf("input dir missing: %s: %w", dir, err))
	}
	if !info.IsDir() {
		return kindError(ErrConfiguration, fmt.Errorf("input path is not a directory: %s", dir))
	}
	return nil
}

// DeriveOutputPath maps a document to its text output: outputDir/<stem>.txt.
func DeriveOutputPath(inputPath, outputDir string) string {
	return filepath.Join(outputDir, types.NewDocument(inputPath).Stem+TextExt)
}

// Discover lists the PDF documents directly inside dir, sorted by name.
// Subdirectories are not searched.
func Discover(dir string) ([]types.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory %s: %w", dir, err)
	}

	var docs []types.Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), DocumentExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		docs = append(docs, types.NewDocument(path))
	}

	sort.Slice(docs, func(i, j int) bool {
		return filepath.Base(docs[i].Path) < filepath.Base(docs[j].Path)
	})
	return docs, nil
}

// Run converts every PDF in inputDir into outputDir. A missing input
// directory or an empty document set yields a zero-count report with a
// single explanatory error, and outputDir is left untouched.
func (b *Batch) Run(ctx context.Context, inputDir, outputDir string) types.BatchReport {
	if err := CheckInputDir(inputDir); err != nil {
		b.log.Error().Err(err).Str("input_dir", inputDir).Msg("input dir not found")
		return types.BatchReport{Errors: []string{fmt.Sprintf(msgInputDirNotFound, inputDir)}}
	}

	docs, err := Discover(inputDir)
	if err != nil {
		b.log.Error().Err(err).Msg("listing documents")
		return types.BatchReport{Errors: []string{err.Error()}}
	}
	if len(docs) == 0 {
		b.log.Warn().Str("input_dir", inputDir).Msg("no PDF files found")
		return types.BatchReport{Errors: []string{msgNoDocuments}}
	}

	return b.RunDocuments(ctx, docs, outputDir)
}

// RunPaths converts an explicit list of PDF paths, in the order given.
func (b *Batch) RunPaths(ctx context.Context, paths []string, outputDir string) types.BatchReport {
	docs := make([]types.Document, len(paths))
	for i, p := range paths {
		docs[i] = types.NewDocument(p)
	}
	if len(docs) == 0 {
		return types.BatchReport{Errors: []string{msgNoDocuments}}
	}
	return b.RunDocuments(ctx, docs, outputDir)
}

// RunDocuments converts docs into outputDir. A failing document never stops
// the others. Each worker fills only its own result slot; the report is
// assembled afterwards in document order, so Errors is deterministic for any
// worker count. Documents not started before ctx is cancelled are recorded
// as failures.
func (b *Batch) RunDocuments(ctx context.Context, docs []types.Document, outputDir string) types.BatchReport {
	start := time.Now()
	results := make([]types.ConversionResult, len(docs))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, doc := range docs {
		g.Go(func() error {
			b.log.Info().Msgf("[%d/%d] %s", i+1, len(docs), filepath.Base(doc.Path))
			results[i] = b.convertOne(ctx, doc, outputDir)
			if b.OnResult != nil {
				b.OnResult(results[i])
			}
			return nil
		})
	}
	g.Wait()

	report := types.BatchReport{Errors: []string{}}
	for _, res := range results {
		report.Record(res)
	}
	report.Duration = time.Since(start)

	b.log.Info().
		Int("success", report.Success).
		Int("failed", report.Failed).
		Msgf("Batch done in %.2fs", report.Duration.Seconds())
	return report
}

func (b *Batch) convertOne(ctx context.Context, doc types.Document, outputDir string) types.ConversionResult {
	if err := ctx.Err(); err != nil {
		return types.ConversionResult{
			Status:       types.ConversionFailed,
			DocumentPath: doc.Path,
			Err:          fmt.Errorf("not started: %w", err),
		}
	}
	return b.conv.Convert(ctx, doc.Path, DeriveOutputPath(doc.Path, outputDir))
}
