// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt turns a PDF page into a chat-completion request for the
// Typhoon OCR model: the rendered page image plus a task-specific
// instruction that embeds the page's raw text layer as an anchor.
package prompt

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"text/template"

	"github.com/pdiddy/ocr-batch/internal/pdf"
	"github.com/pdiddy/ocr-batch/pkg/types"
)

// DefaultAnchorTextLimit caps the raw text embedded in the prompt, in runes.
const DefaultAnchorTextLimit = 8000

// PageSource renders one page of a document. pdf.Rasterizer satisfies it;
// tests supply a fake.
type PageSource interface {
	Page(path string, page, longestDim int) (pdf.Page, error)
}

var promptTmpls = map[types.TaskType]*template.Template{
	types.TaskDefault: template.Must(template.New("default").Parse(
		`Below is an image of a document page along with its dimensions. ` +
			`Simply return the markdown representation of this document, presenting tables in markdown format as they naturally appear.
If the document contains images, use a placeholder like dummy.png for each image.
Your final output must be in JSON format with a single key ` + "`natural_text`" + ` containing the response.
RAW_TEXT_START
{{.AnchorText}}
RAW_TEXT_END`)),
	types.TaskStructure: template.Must(template.New("structure").Parse(
		`Below is an image of a document page, along with its dimensions and possibly some raw textual content previously extracted from it. ` +
			`Note that the text extraction may be incomplete or partially missing. Carefully consider both the layout and any available text to reconstruct the document accurately.
Your task is to return the markdown representation of this document, presenting tables in HTML format as they naturally appear.
If the document contains images or figures, analyze them and include the tag <figure>IMAGE_ANALYSIS</figure> in the appropriate location.
Your final output must be in JSON format with a single key ` + "`natural_text`" + ` containing the response.
RAW_TEXT_START
{{.AnchorText}}
RAW_TEXT_END`)),
}

// Builder prepares OCR messages for a single page.
type Builder struct {
	pages      PageSource
	longestDim int
	anchorMax  int
}

// NewBuilder returns a Builder that renders pages from src at
// pdf.DefaultLongestDim pixels.
func NewBuilder(src PageSource) *Builder {
	return &Builder{
		pages:      src,
		longestDim: pdf.DefaultLongestDim,
		anchorMax:  DefaultAnchorTextLimit,
	}
}

// Build renders the 1-based page of the document at path and returns the
// messages for task. It fails for unknown task types, out-of-range pages and
// documents the page source cannot render.
func (b *Builder) Build(path string, task types.TaskType, page int) ([]types.Message, error) {
	tmpl, ok := promptTmpls[task]
	if !ok {
		return nil, fmt.Errorf("unsupported task type %q", task)
	}
	if page < 1 {
		return nil, fmt.Errorf("invalid page number %d", page)
	}

	p, err := b.pages.Page(path, page, b.longestDim)
	if err != nil {
		return nil, fmt.Errorf("rendering %s page %d: %w", path, page, err)
	}

	var img bytes.Buffer
	if err := png.Encode(&img, p.Image); err != nil {
		return nil, fmt.Errorf("encoding page %d as PNG: %w", page, err)
	}

	var text strings.Builder
	if err := tmpl.Execute(&text, struct{ AnchorText string }{anchorText(p, b.anchorMax)}); err != nil {
		return nil, fmt.Errorf("rendering %s prompt: %w", task, err)
	}

	return []types.Message{{
		Role: "user",
		Content: []types.ContentPart{
			{Type: "text", Text: text.String()},
			{Type: "image_url", ImageURL: &types.ImageURL{
				URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img.Bytes()),
			}},
		},
	}}, nil
}

// anchorText formats the page dimensions and text layer, truncated to limit runes.
func anchorText(p pdf.Page, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page dimensions: %.1fx%.1f\n", p.Width, p.Height)

	body := strings.TrimSpace(p.Text)
	if r := []rune(body); limit > 0 && len(r) > limit {
		body = string(r[:limit])
	}
	b.WriteString(body)
	return b.String()
}
