// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdf reads PDF structure and rasterizes pages for OCR.
package pdf

import (
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var disableConfigOnce sync.Once

// PageCounter reports page counts using pdfcpu. The zero value is ready to use.
type PageCounter struct{}

// NewPageCounter returns a PageCounter. pdfcpu's on-disk config directory is
// disabled so counting never writes under the user's home.
func NewPageCounter() PageCounter {
	disableConfigOnce.Do(api.DisableConfigDir)
	return PageCounter{}
}

// PageCount parses the PDF at path and returns its total page count.
func (PageCounter) PageCount(path string) (int, error) {
	disableConfigOnce.Do(api.DisableConfigDir)

	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("counting pages of %s: %w", path, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s has no pages", path)
	}
	return n, nil
}
