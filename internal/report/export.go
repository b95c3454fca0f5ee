// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report writes the outcome of a batch run to a YAML or JSON file.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ocr-batch/pkg/types"
)

// Run holds the metadata written alongside the per-document results.
type Run struct {
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	InputDir  string         `json:"input_dir" yaml:"input_dir"`
	OutputDir string         `json:"output_dir" yaml:"output_dir"`
	Endpoint  string         `json:"endpoint" yaml:"endpoint"`
	Model     string         `json:"model" yaml:"model"`
	TaskType  types.TaskType `json:"task_type" yaml:"task_type"`
}

// Report is the exported document.
type Report struct {
	Run      Run           `json:"run" yaml:"run"`
	Success  int           `json:"success" yaml:"success"`
	Failed   int           `json:"failed" yaml:"failed"`
	Errors   []string      `json:"errors" yaml:"errors"`
	Duration string        `json:"duration" yaml:"duration"`
	Results  []ResultEntry `json:"results" yaml:"results"`
}

// ResultEntry is one document outcome.
type ResultEntry struct {
	Document string                 `json:"document" yaml:"document"`
	Status   types.ConversionStatus `json:"status" yaml:"status"`
	Output   string                 `json:"output,omitempty" yaml:"output,omitempty"`
	Error    string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Duration string                 `json:"duration" yaml:"duration"`
}

// New builds the exported form of a batch report.
func New(run Run, br types.BatchReport) Report {
	r := Report{
		Run:      run,
		Success:  br.Success,
		Failed:   br.Failed,
		Errors:   br.Errors,
		Duration: br.Duration.Round(time.Millisecond).String(),
		Results:  make([]ResultEntry, len(br.Results)),
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	for i, res := range br.Results {
		r.Results[i] = ResultEntry{
			Document: res.DocumentPath,
			Status:   res.Status,
			Output:   res.OutputPath,
			Error:    res.Error(),
			Duration: res.Duration.Round(time.Millisecond).String(),
		}
	}
	return r
}

// Write marshals r to path. The format follows the extension: .yaml and .yml
// write YAML, .json writes indented JSON.
func Write(path string, r Report) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
	case ".json":
		data, err = json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		data = append(data, '\n')
	default:
		return fmt.Errorf("unsupported report format %q: use .yaml, .yml or .json", filepath.Ext(path))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
