// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdf

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// DefaultLongestDim is the target length in pixels of a rendered page's longest side.
const DefaultLongestDim = 1800

// pointsPerInch is the resolution at which fitz reports page bounds.
const pointsPerInch = 72.0

// Page is a rendered PDF page together with its embedded text layer.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Image is the rasterized page.
	Image image.Image

	// Width and Height are the page dimensions in points.
	Width, Height float64

	// Text is the raw text layer of the page; empty for scanned pages.
	Text string
}

// Rasterizer renders pages with MuPDF through go-fitz.
type Rasterizer struct{}

// NewRasterizer returns a Rasterizer.
func NewRasterizer() Rasterizer {
	return Rasterizer{}
}

// Page renders the 1-based page of the PDF at path so that its longest side
// is longestDim pixels, and extracts the page's text layer.
func (Rasterizer) Page(path string, page, longestDim int) (Page, error) {
	if longestDim <= 0 {
		longestDim = DefaultLongestDim
	}

	doc, err := fitz.New(path)
	if err != nil {
		return Page{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return Page{}, fmt.Errorf("page %d out of range: %s has %d pages", page, path, doc.NumPage())
	}
	idx := page - 1

	bounds, err := doc.Bound(idx)
	if err != nil {
		return Page{}, fmt.Errorf("reading bounds of page %d: %w", page, err)
	}
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	longest := max(w, h)
	if longest <= 0 {
		return Page{}, fmt.Errorf("page %d of %s has empty bounds", page, path)
	}

	img, err := doc.ImageDPI(idx, pointsPerInch*float64(longestDim)/longest)
	if err != nil {
		return Page{}, fmt.Errorf("rendering page %d: %w", page, err)
	}

	text, err := doc.Text(idx)
	if err != nil {
		return Page{}, fmt.Errorf("extracting text of page %d: %w", page, err)
	}

	return Page{
		Number: page,
		Image:  img,
		Width:  w,
		Height: h,
		Text:   text,
	}, nil
}
