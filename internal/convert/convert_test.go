// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ocr-batch/pkg/types"
)

// fakePages reports a fixed page count, failing for paths listed in errs.
type fakePages struct {
	count int
	errs  map[string]error
}

func (f *fakePages) PageCount(path string) (int, error) {
	if err, ok := f.errs[filepath.Base(path)]; ok {
		return 0, err
	}
	return f.count, nil
}

// fakePrompts records the last request and returns a single text message.
type fakePrompts struct {
	mu      sync.Mutex
	err     error
	gotTask types.TaskType
	gotPage int
}

func (f *fakePrompts) Build(path string, task types.TaskType, page int) ([]types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotTask, f.gotPage = task, page
	if f.err != nil {
		return nil, f.err
	}
	return []types.Message{{Role: "user", Content: []types.ContentPart{{Type: "text", Text: path}}}}, nil
}

// fakeInference echoes "text of <document>" unless output or err is set.
type fakeInference struct {
	output string
	err    error
	panics bool
}

func (f *fakeInference) Generate(_ context.Context, messages []types.Message) (string, error) {
	if f.panics {
		panic("decoder exploded")
	}
	if f.err != nil {
		return "", f.err
	}
	if f.output != "" {
		return f.output, nil
	}
	return "text of " + filepath.Base(messages[0].Content[0].Text), nil
}

func newTestConverter(pages *fakePages, prompts *fakePrompts, inf *fakeInference) *DocumentConverter {
	return NewDocumentConverter(pages, prompts, inf, types.ConversionConfig{}, zerolog.Nop())
}

// writePDFs creates placeholder documents in dir. Content is irrelevant
// because page counting is faked.
func writePDFs(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4 fake"), 0o644))
	}
}

func TestDeriveOutputPath(t *testing.T) {
	tests := []struct {
		input, outDir, want string
	}{
		{"/a/b/report.pdf", "/out", "/out/report.txt"},
		{"rel/scan.v2.PDF", "txt", "txt/scan.v2.txt"},
		{"/in/ใบเสร็จ.pdf", "/out/nested", "/out/nested/ใบเสร็จ.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveOutputPath(tt.input, tt.outDir))
	}
}

func TestDocumentConverter_Convert(t *testing.T) {
	readErr := errors.New("EOF while parsing xref")
	tests := []struct {
		name      string
		pages     *fakePages
		prompts   *fakePrompts
		inference *fakeInference
		wantKind  error
		wantText  string
	}{
		{
			name:      "successful conversion",
			pages:     &fakePages{count: 1},
			prompts:   &fakePrompts{},
			inference: &fakeInference{output: "  บรรทัดแรก\nline two  \n"},
			wantText:  "บรรทัดแรก\nline two",
		},
		{
			name:      "unreadable document",
			pages:     &fakePages{errs: map[string]error{"doc.pdf": readErr}},
			prompts:   &fakePrompts{},
			inference: &fakeInference{},
			wantKind:  ErrDocumentRead,
		},
		{
			name:      "prompt builder rejects page",
			pages:     &fakePages{count: 2},
			prompts:   &fakePrompts{err: errors.New("page 2 out of range")},
			inference: &fakeInference{},
			wantKind:  ErrPromptBuild,
		},
		{
			name:      "endpoint failure",
			pages:     &fakePages{count: 1},
			prompts:   &fakePrompts{},
			inference: &fakeInference{err: errors.New("connection refused")},
			wantKind:  ErrInference,
		},
		{
			name:      "whitespace-only response",
			pages:     &fakePages{count: 1},
			prompts:   &fakePrompts{},
			inference: &fakeInference{output: " \n\t "},
			wantKind:  ErrInference,
		},
		{
			name:      "collaborator panic",
			pages:     &fakePages{count: 1},
			prompts:   &fakePrompts{},
			inference: &fakeInference{panics: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			in := filepath.Join(tmpDir, "doc.pdf")
			out := filepath.Join(tmpDir, "out", "deep", "doc.txt")

			res := newTestConverter(tt.pages, tt.prompts, tt.inference).Convert(context.Background(), in, out)
			assert.Equal(t, in, res.DocumentPath)

			if tt.wantText == "" {
				assert.False(t, res.Succeeded())
				assert.Equal(t, types.ConversionFailed, res.Status)
				require.Error(t, res.Err)
				if tt.wantKind != nil {
					assert.ErrorIs(t, res.Err, tt.wantKind)
				}
				assert.Empty(t, res.OutputPath)
				assert.NoFileExists(t, out)
				return
			}

			require.True(t, res.Succeeded(), "unexpected failure: %v", res.Err)
			assert.Equal(t, out, res.OutputPath)
			data, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, string(data))
		})
	}
}

func TestDocumentConverter_TargetsLastPage(t *testing.T) {
	prompts := &fakePrompts{}
	conv := NewDocumentConverter(&fakePages{count: 7}, prompts, &fakeInference{},
		types.ConversionConfig{TaskType: types.TaskStructure}, zerolog.Nop())

	tmpDir := t.TempDir()
	res := conv.Convert(context.Background(), filepath.Join(tmpDir, "a.pdf"), filepath.Join(tmpDir, "a.txt"))
	require.True(t, res.Succeeded())

	assert.Equal(t, 7, prompts.gotPage)
	assert.Equal(t, types.TaskStructure, prompts.gotTask)
}

func TestDocumentConverter_DefaultTask(t *testing.T) {
	prompts := &fakePrompts{}
	tmpDir := t.TempDir()
	res := newTestConverter(&fakePages{count: 1}, prompts, &fakeInference{}).
		Convert(context.Background(), filepath.Join(tmpDir, "a.pdf"), filepath.Join(tmpDir, "a.txt"))
	require.True(t, res.Succeeded())
	assert.Equal(t, types.TaskDefault, prompts.gotTask)
}

func TestDocumentConverter_OutputWriteError(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "out")
	require.NoError(t, os.WriteFile(blocker, []byte("a file, not a dir"), 0o644))

	res := newTestConverter(&fakePages{count: 1}, &fakePrompts{}, &fakeInference{}).
		Convert(context.Background(), filepath.Join(tmpDir, "a.pdf"), filepath.Join(blocker, "a.txt"))

	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, ErrOutputWrite)
}

func TestDocumentConverter_Overwrites(t *testing.T) {
	tmpDir := t.TempDir()
	out := filepath.Join(tmpDir, "a.txt")
	require.NoError(t, os.WriteFile(out, []byte("stale content that is longer"), 0o644))

	res := newTestConverter(&fakePages{count: 1}, &fakePrompts{}, &fakeInference{output: "fresh"}).
		Convert(context.Background(), filepath.Join(tmpDir, "a.pdf"), out)
	require.True(t, res.Succeeded())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestDocumentConverter_NaturalText(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		output   string
		wantText string
		wantFail bool
	}{
		{"unwraps envelope", true, `{"natural_text": "# Title\nBody"}`, "# Title\nBody", false},
		{"unwraps fenced envelope", true, "```json\n{\"natural_text\": \"fenced\"}\n```", "fenced", false},
		{"keeps plain text", true, "plain text", "plain text", false},
		{"disabled keeps envelope", false, `{"natural_text": "x"}`, `{"natural_text": "x"}`, false},
		{"empty natural_text fails", true, `{"natural_text": "  "}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewDocumentConverter(&fakePages{count: 1}, &fakePrompts{}, &fakeInference{output: tt.output},
				types.ConversionConfig{ExtractNaturalText: tt.enabled}, zerolog.Nop())

			tmpDir := t.TempDir()
			out := filepath.Join(tmpDir, "a.txt")
			res := conv.Convert(context.Background(), filepath.Join(tmpDir, "a.pdf"), out)

			if tt.wantFail {
				assert.ErrorIs(t, res.Err, ErrInference)
				return
			}
			require.True(t, res.Succeeded(), "unexpected failure: %v", res.Err)
			data, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, string(data))
		})
	}
}

func TestBatchRun_IsolatesFailures(t *testing.T) {
	tmpDir := t.TempDir()
	inDir := filepath.Join(tmpDir, "doc")
	outDir := filepath.Join(tmpDir, "doc_text")
	writePDFs(t, inDir, "a.pdf", "b.pdf", "c.pdf", "d.pdf")

	pages := &fakePages{count: 1, errs: map[string]error{"b.pdf": errors.New("corrupt xref")}}
	var log bytes.Buffer
	batch := NewBatch(newTestConverter(pages, &fakePrompts{}, &fakeInference{}), 1, zerolog.New(&log))

	report := batch.Run(context.Background(), inDir, outDir)

	assert.Equal(t, 3, report.Success)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 4, report.Total())
	assert.True(t, report.HasFailures())
	assert.Equal(t, []string{filepath.Join(inDir, "b.pdf")}, report.Errors)

	for _, name := range []string{"a", "c", "d"} {
		data, err := os.ReadFile(filepath.Join(outDir, name+".txt"))
		require.NoError(t, err)
		assert.Equal(t, "text of "+name+".pdf", string(data))
	}
	assert.NoFileExists(t, filepath.Join(outDir, "b.txt"))

	output := log.String()
	assert.Contains(t, output, "[1/4] a.pdf")
	assert.Contains(t, output, "[4/4] d.pdf")
	assert.Contains(t, output, "Batch done in")
}

// recordingConverter records the order of Convert calls and fails listed stems.
type recordingConverter struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (r *recordingConverter) Convert(_ context.Context, inputPath, outputPath string) types.ConversionResult {
	r.mu.Lock()
	r.calls = append(r.calls, filepath.Base(inputPath))
	r.mu.Unlock()

	if r.fail[types.NewDocument(inputPath).Stem] {
		return types.ConversionResult{Status: types.ConversionFailed, DocumentPath: inputPath, Err: errors.New("boom")}
	}
	return types.ConversionResult{Status: types.ConversionDone, DocumentPath: inputPath, OutputPath: outputPath}
}

func TestBatchRun_SortedNonRecursive(t *testing.T) {
	inDir := filepath.Join(t.TempDir(), "in")
	writePDFs(t, inDir, "zeta.pdf", "Alpha.PDF", "mid.pdf", "notes.txt", "image.png")
	writePDFs(t, filepath.Join(inDir, "sub"), "nested.pdf")
	require.NoError(t, os.Mkdir(filepath.Join(inDir, "folder.pdf"), 0o755))

	conv := &recordingConverter{}
	report := NewBatch(conv, 1, zerolog.Nop()).Run(context.Background(), inDir, t.TempDir())

	assert.Equal(t, []string{"Alpha.PDF", "mid.pdf", "zeta.pdf"}, conv.calls)
	assert.Equal(t, 3, report.Success)
	assert.Empty(t, report.Errors)
}

func TestBatchRun_MissingInputDir(t *testing.T) {
	tmpDir := t.TempDir()
	missing := filepath.Join(tmpDir, "nope")
	outDir := filepath.Join(tmpDir, "out")

	conv := &recordingConverter{}
	report := NewBatch(conv, 1, zerolog.Nop()).Run(context.Background(), missing, outDir)

	assert.Zero(t, report.Success)
	assert.Zero(t, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], missing)
	assert.Empty(t, conv.calls)
	assert.NoDirExists(t, outDir)
}

func TestBatchRun_InputDirIsFile(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "scan.pdf")
	writePDFs(t, tmpDir, "scan.pdf")
	outDir := filepath.Join(tmpDir, "out")

	conv := &recordingConverter{}
	report := NewBatch(conv, 1, zerolog.Nop()).Run(context.Background(), file, outDir)

	assert.Equal(t, types.BatchReport{Errors: []string{"Input dir not found: " + file}}, report)
	assert.Empty(t, conv.calls)
	assert.NoDirExists(t, outDir)
}

func TestBatchRun_NoDocuments(t *testing.T) {
	tmpDir := t.TempDir()
	inDir := filepath.Join(tmpDir, "in")
	outDir := filepath.Join(tmpDir, "out")
	writePDFs(t, inDir, "readme.md")

	conv := &recordingConverter{}
	report := NewBatch(conv, 1, zerolog.Nop()).Run(context.Background(), inDir, outDir)

	assert.Equal(t, types.BatchReport{Errors: []string{"No PDF files found"}}, report)
	assert.Empty(t, conv.calls)
	assert.NoDirExists(t, outDir)
}

func TestBatchRun_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	inDir := filepath.Join(tmpDir, "in")
	outDir := filepath.Join(tmpDir, "out")
	writePDFs(t, inDir, "a.pdf", "bad.pdf", "c.pdf")

	pages := &fakePages{count: 2, errs: map[string]error{"bad.pdf": errors.New("not a pdf")}}
	batch := NewBatch(newTestConverter(pages, &fakePrompts{}, &fakeInference{}), 1, zerolog.Nop())

	first := batch.Run(context.Background(), inDir, outDir)
	second := batch.Run(context.Background(), inDir, outDir)

	assert.Equal(t, first.Success, second.Success)
	assert.Equal(t, first.Failed, second.Failed)
	assert.Equal(t, first.Errors, second.Errors)

	data, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "text of a.pdf", string(data))
}

func TestBatchRunDocuments_Workers(t *testing.T) {
	const n = 40
	docs := make([]types.Document, n)
	fail := map[string]bool{}
	var wantErrors []string
	for i := range docs {
		stem := fmt.Sprintf("doc-%02d", i)
		docs[i] = types.NewDocument(filepath.Join("/in", stem+".pdf"))
		if i%7 == 3 {
			fail[stem] = true
			wantErrors = append(wantErrors, docs[i].Path)
		}
	}

	for _, workers := range []int{0, 1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			conv := &recordingConverter{fail: fail}
			batch := NewBatch(conv, workers, zerolog.Nop())

			var mu sync.Mutex
			seen := 0
			batch.OnResult = func(types.ConversionResult) {
				mu.Lock()
				seen++
				mu.Unlock()
			}

			report := batch.RunDocuments(context.Background(), docs, "/out")

			assert.Equal(t, n, report.Success+report.Failed)
			assert.Equal(t, len(wantErrors), report.Failed)
			assert.Equal(t, wantErrors, report.Errors)
			assert.Len(t, report.Results, n)
			assert.Equal(t, n, seen)
			assert.Len(t, conv.calls, n)
		})
	}
}

func TestBatchRunDocuments_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conv := &recordingConverter{}
	docs := []types.Document{types.NewDocument("/in/a.pdf"), types.NewDocument("/in/b.pdf")}
	report := NewBatch(conv, 2, zerolog.Nop()).RunDocuments(ctx, docs, "/out")

	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 2, report.Total())
	assert.Empty(t, conv.calls)
	for _, res := range report.Results {
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestBatchRunPaths(t *testing.T) {
	conv := &recordingConverter{fail: map[string]bool{"b": true}}
	report := NewBatch(conv, 1, zerolog.Nop()).RunPaths(context.Background(), []string{"/x/b.pdf", "/y/a.pdf"}, "/out")

	assert.Equal(t, []string{"b.pdf", "a.pdf"}, conv.calls)
	assert.Equal(t, 1, report.Success)
	assert.Equal(t, []string{"/x/b.pdf"}, report.Errors)
	assert.Equal(t, "/out/a.txt", report.Results[1].OutputPath)

	empty := NewBatch(conv, 1, zerolog.Nop()).RunPaths(context.Background(), nil, "/out")
	assert.Equal(t, []string{"No PDF files found"}, empty.Errors)
}

func TestCheckInputDir(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "file.pdf")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.NoError(t, CheckInputDir(tmpDir))

	err := CheckInputDir(filepath.Join(tmpDir, "missing"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.True(t, strings.Contains(err.Error(), "missing"))

	assert.ErrorIs(t, CheckInputDir(file), ErrConfiguration)
}
