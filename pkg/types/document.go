// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ConversionStatus tags the outcome of converting one document.
type ConversionStatus string

const (
	ConversionDone   ConversionStatus = "converted"
	ConversionFailed ConversionStatus = "failed"
)

// TaskType selects the OCR prompt variant.
type TaskType string

const (
	// TaskDefault asks for Markdown with Markdown tables.
	TaskDefault TaskType = "default"
	// TaskStructure asks for Markdown with HTML tables and figure analysis.
	TaskStructure TaskType = "structure"
)

// ParseTaskType validates s as a TaskType. An empty string yields TaskDefault.
func ParseTaskType(s string) (TaskType, error) {
	switch TaskType(strings.ToLower(strings.TrimSpace(s))) {
	case "", TaskDefault:
		return TaskDefault, nil
	case TaskStructure:
		return TaskStructure, nil
	}
	return "", fmt.Errorf("unknown task type %q: use %s or %s", s, TaskDefault, TaskStructure)
}

// Document is an input file discovered for conversion.
type Document struct {
	// Path is the filesystem path as enumerated from the input directory.
	Path string `json:"path" yaml:"path"`

	// Stem is the base name without its extension (e.g. "report" for "report.pdf").
	Stem string `json:"stem" yaml:"stem"`
}

// NewDocument builds a Document for path, deriving its stem.
func NewDocument(path string) Document {
	base := filepath.Base(path)
	return Document{
		Path: path,
		Stem: strings.TrimSuffix(base, filepath.Ext(base)),
	}
}

// ConversionRequest describes the single page sent to the OCR model for a
// document. Page is 1-based and always equals the document's page count.
type ConversionRequest struct {
	DocumentPath string   `json:"document_path" yaml:"document_path"`
	TaskType     TaskType `json:"task_type" yaml:"task_type"`
	Page         int      `json:"page" yaml:"page"`
}

// ConversionResult is the outcome of one document conversion. Status is the
// tag: OutputPath is set for ConversionDone, Err for ConversionFailed.
type ConversionResult struct {
	Status       ConversionStatus `json:"status" yaml:"status"`
	DocumentPath string           `json:"document_path" yaml:"document_path"`
	OutputPath   string           `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Err          error            `json:"-" yaml:"-"`
	Duration     time.Duration    `json:"duration" yaml:"duration"`
}

// Succeeded reports whether the result carries the success tag.
func (r ConversionResult) Succeeded() bool {
	return r.Status == ConversionDone
}

// Error returns the failure message, or "" for a successful result.
func (r ConversionResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// BatchReport aggregates the results of a batch run. Success+Failed always
// equals the number of documents attempted. Errors holds the failed document
// paths in processing order, or a single message when the batch could not
// start (missing input directory, no matching files).
type BatchReport struct {
	Success  int                `json:"success" yaml:"success"`
	Failed   int                `json:"failed" yaml:"failed"`
	Errors   []string           `json:"errors" yaml:"errors"`
	Results  []ConversionResult `json:"results,omitempty" yaml:"results,omitempty"`
	Duration time.Duration      `json:"duration" yaml:"duration"`
}

// Total returns the number of documents attempted.
func (r BatchReport) Total() int {
	return r.Success + r.Failed
}

// HasFailures reports whether any document failed conversion.
func (r BatchReport) HasFailures() bool {
	return r.Failed > 0
}

// Record folds one result into the report.
func (r *BatchReport) Record(res ConversionResult) {
	r.Results = append(r.Results, res)
	if res.Succeeded() {
		r.Success++
		return
	}
	r.Failed++
	r.Errors = append(r.Errors, res.DocumentPath)
}
