// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"errors"
	"fmt"
)

// Error kinds. Per-document kinds are wrapped into ConversionResult.Err and
// matched with errors.Is; they never abort a batch.
var (
	// ErrConfiguration means the run cannot start, e.g. the input directory is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrDocumentRead means the document is missing, unreadable, or not a valid PDF.
	ErrDocumentRead = errors.New("document read error")

	// ErrPromptBuild means the page could not be turned into a model request.
	ErrPromptBuild = errors.New("prompt build error")

	// ErrInference means the model endpoint failed or returned no usable text.
	ErrInference = errors.New("inference error")

	// ErrOutputWrite means the text output could not be written.
	ErrOutputWrite = errors.New("output write error")
)

// kindError tags err with one of the error kinds above.
func kindError(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}
