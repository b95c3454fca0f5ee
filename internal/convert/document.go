// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/ocr-batch/pkg/types"
)

// PageCounter reports the total number of pages in a document.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// PromptBuilder prepares the chat messages for one page of a document.
type PromptBuilder interface {
	Build(path string, task types.TaskType, page int) ([]types.Message, error)
}

// InferenceClient sends prepared messages to the OCR model and returns its text.
type InferenceClient interface {
	Generate(ctx context.Context, messages []types.Message) (string, error)
}

var errEmptyText = errors.New("model returned empty text")

// DocumentConverter converts one PDF into one text file. Only the last page
// of a document is sent to the model: the OCR model accepts a single page per
// request, so multi-page documents lose every other page.
type DocumentConverter struct {
	pages       PageCounter
	prompts     PromptBuilder
	inference   InferenceClient
	task        types.TaskType
	naturalText bool
	log         zerolog.Logger
}

// NewDocumentConverter wires the collaborators together. The task type and
// natural_text unwrapping come from cfg; an empty task type means default.
func NewDocumentConverter(pages PageCounter, prompts PromptBuilder, inference InferenceClient, cfg types.ConversionConfig, log zerolog.Logger) *DocumentConverter {
	task := cfg.TaskType
	if task == "" {
		task = types.TaskDefault
	}
	return &DocumentConverter{
		pages:       pages,
		prompts:     prompts,
		inference:   inference,
		task:        task,
		naturalText: cfg.ExtractNaturalText,
		log:         log,
	}
}

// Convert converts the PDF at inputPath and writes the text to outputPath,
// overwriting any existing file. Every failure is reported in the returned
// result; Convert never returns an error or panics past this boundary.
func (c *DocumentConverter) Convert(ctx context.Context, inputPath, outputPath string) types.ConversionResult {
	start := time.Now()
	log := c.log.With().Str("document", inputPath).Logger()
	log.Info().Msg("processing")

	err := c.safeConvert(ctx, inputPath, outputPath)
	res := types.ConversionResult{
		DocumentPath: inputPath,
		Duration:     time.Since(start),
	}
	if err != nil {
		log.Error().Err(err).Dur("elapsed", res.Duration).Msg("conversion failed")
		res.Status = types.ConversionFailed
		res.Err = err
		return res
	}

	log.Info().Str("output", outputPath).Dur("elapsed", res.Duration).Msg("converted")
	res.Status = types.ConversionDone
	res.OutputPath = outputPath
	return res
}

// safeConvert runs convert, turning a panic in a collaborator into an error.
func (c *DocumentConverter) safeConvert(ctx context.Context, inputPath, outputPath string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic converting %s: %v", inputPath, r)
		}
	}()
	return c.convert(ctx, inputPath, outputPath)
}

func (c *DocumentConverter) convert(ctx context.Context, inputPath, outputPath string) error {
	total, err := c.pages.PageCount(inputPath)
	if err != nil {
		return kindError(ErrDocumentRead, err)
	}

	req := types.ConversionRequest{
		DocumentPath: inputPath,
		TaskType:     c.task,
		Page:         total,
	}

	messages, err := c.prompts.Build(req.DocumentPath, req.TaskType, req.Page)
	if err != nil {
		return kindError(ErrPromptBuild, err)
	}

	text, err := c.inference.Generate(ctx, messages)
	if err != nil {
		return kindError(ErrInference, err)
	}
	if c.naturalText {
		text = unwrapNaturalText(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return kindError(ErrInference, errEmptyText)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return kindError(ErrOutputWrite, fmt.Errorf("creating output directory: %w", err))
	}
	if err := os.WriteFile(outputPath, []byte(text), 0o644); err != nil {
		return kindError(ErrOutputWrite, fmt.Errorf("writing %s: %w", outputPath, err))
	}
	return nil
}

// unwrapNaturalText returns the natural_text field when s is the JSON
// envelope the OCR prompt asks for, and s unchanged otherwise.
func unwrapNaturalText(s string) string {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var envelope struct {
		NaturalText *string `json:"natural_text"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &envelope); err != nil || envelope.NaturalText == nil {
		return s
	}
	return *envelope.NaturalText
}
