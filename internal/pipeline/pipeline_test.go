package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"formledger/internal/ledger"
	"formledger/internal/ocr"
	"formledger/internal/store"
)

func box(text string, x, y, w, h float64) ledger.RawToken {
	return ledger.RawToken{
		Text: text,
		Polygon: []ledger.Point{
			{X: x, Y: y},
			{X: x + w, Y: y},
			{X: x + w, Y: y + h},
			{X: x, Y: y + h},
		},
	}
}

func ledgerTokens() []ledger.RawToken {
	return []ledger.RawToken{
		box("A", 0, 0, 20, 40),
		box("1682415", 50, 0, 150, 40),
		box("23:50", 220, 0, 70, 40),
		box("✓", 300, 0, 20, 40),

		box("\"", 0, 100, 20, 40),
		box("2416", 50, 100, 80, 40),
		box("01:10", 220, 100, 70, 40),
		box("x", 300, 100, 20, 40),

		box("B", 0, 200, 20, 40),
		box("2417", 50, 200, 80, 40),
		box("21.05", 220, 200, 70, 40),
	}
}

type fakeSource struct {
	tokens []ledger.RawToken
	err    error

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) DetectTokens(ctx context.Context, image io.Reader) ([]ledger.RawToken, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

func (f *fakeSource) DetectTokensWithMetadata(ctx context.Context, image io.Reader) (*ocr.TokenResult, error) {
	tokens, err := f.DetectTokens(ctx, image)
	if err != nil {
		return nil, err
	}
	return &ocr.TokenResult{Tokens: tokens, Provider: "fake"}, nil
}

func (f *fakeSource) Close() error { return nil }

// memoryStore rejects a key it has already seen, or any key listed in reject.
type memoryStore struct {
	mu      sync.Mutex
	records []store.Record
	reject  map[string]error
}

func (m *memoryStore) Insert(ctx context.Context, rec store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.reject[rec.Label()]; ok {
		return err
	}
	for _, r := range m.records {
		if r.DocumentNumber == rec.DocumentNumber && r.Time == rec.Time {
			return store.NewStoreError("Insert", store.ErrDuplicate, rec.Label())
		}
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryStore) Close() error { return nil }

func TestProcessReconstructsAndStores(t *testing.T) {
	src := &fakeSource{tokens: ledgerTokens()}
	st := &memoryStore{}
	p := NewProcessor(src, st, Options{MaxOCRConcurrent: 1})

	report := p.Process(context.Background(), "page1.png", strings.NewReader("img"))
	if report.Err != nil {
		t.Fatalf("Process() error = %v", report.Err)
	}

	res := report.Result
	if !res.Success {
		t.Errorf("Success = false, errors = %v", res.Errors)
	}
	if res.Source != "page1.png" || res.RequestID == "" {
		t.Errorf("source = %q, request id = %q", res.Source, res.RequestID)
	}
	if res.Processed == nil || *res.Processed != 3 {
		t.Errorf("Processed = %v, want 3", res.Processed)
	}
	if res.Inserted == nil || *res.Inserted != 3 {
		t.Errorf("Inserted = %v, want 3", res.Inserted)
	}
	if res.Table == nil || !strings.HasPrefix(*res.Table, "Document | Time | Status\nB1682417 | 21:05") {
		t.Errorf("unexpected table: %v", res.Table)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}

	want := []string{"B1682417", "A1682415", "A1682416"}
	if len(st.records) != len(want) {
		t.Fatalf("stored %d records, want %d", len(st.records), len(want))
	}
	for i, label := range want {
		if got := st.records[i].Label(); got != label {
			t.Errorf("stored[%d] = %q, want %q", i, got, label)
		}
	}
}

func TestProcessPartialInsertFailure(t *testing.T) {
	st := &memoryStore{reject: map[string]error{
		"A1682416": store.NewStoreError("Insert", store.ErrConnectivity, "connection reset"),
	}}
	p := NewProcessor(&fakeSource{tokens: ledgerTokens()}, st, Options{})

	res := p.Process(context.Background(), "page.png", strings.NewReader("img")).Result
	if !res.Success {
		t.Error("Success = false, want true when some records were stored")
	}
	if *res.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", *res.Inserted)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "A1682416 01:10:") {
		t.Errorf("Errors = %q", res.Errors)
	}
	if !strings.Contains(res.Summary, "1 failed") {
		t.Errorf("Summary = %q", res.Summary)
	}
}

func TestProcessAllInsertsFail(t *testing.T) {
	p := NewProcessor(&fakeSource{tokens: ledgerTokens()}, &memoryStore{}, Options{})
	ctx := context.Background()

	first := p.Process(ctx, "page.png", strings.NewReader("img")).Result
	if !first.Success {
		t.Fatalf("first run failed: %v", first.Errors)
	}

	again := p.Process(ctx, "page.png", strings.NewReader("img")).Result
	if again.Success {
		t.Error("Success = true, want false when every record is a duplicate")
	}
	if *again.Inserted != 0 || len(again.Errors) != 3 {
		t.Errorf("Inserted = %d, errors = %d", *again.Inserted, len(again.Errors))
	}
	if first.RequestID == again.RequestID {
		t.Error("request IDs repeat across documents")
	}
}

func TestProcessDryRunSkipsStore(t *testing.T) {
	st := &memoryStore{}
	p := NewProcessor(&fakeSource{tokens: ledgerTokens()}, st, Options{DryRun: true})

	report := p.Process(context.Background(), "page.png", strings.NewReader("img"))
	if !report.Result.Success || report.Result.Inserted != nil {
		t.Errorf("result = %+v", report.Result)
	}
	if len(st.records) != 0 {
		t.Errorf("dry run stored %d records", len(st.records))
	}
	if report.Reconstruction == nil || len(report.Reconstruction.Records) != 3 {
		t.Error("reconstruction missing from report")
	}
}

func TestProcessAcquisitionFailures(t *testing.T) {
	tests := []struct {
		name    string
		source  *fakeSource
		wantErr error
		summary string
	}{
		{
			name:    "credentials",
			source:  &fakeSource{err: ocr.NewOCRError("NewVisionTokenSource", ocr.ErrMissingCredentials, "")},
			wantErr: ocr.ErrMissingCredentials,
			summary: "credentials",
		},
		{
			name:    "no tokens",
			source:  &fakeSource{},
			wantErr: ocr.ErrEmptyDocument,
			summary: "no text",
		},
		{
			name:    "engine failure",
			source:  &fakeSource{err: ocr.WrapOCRError("DetectTokens", ocr.ErrOCRFailed, "503")},
			wantErr: ocr.ErrOCRFailed,
			summary: "could not process",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(tt.source, &memoryStore{}, Options{})
			report := p.Process(context.Background(), "page.png", strings.NewReader("img"))

			if !errors.Is(report.Err, ErrAcquisition) {
				t.Errorf("error = %v, want ErrAcquisition", report.Err)
			}
			if !errors.Is(report.Err, tt.wantErr) {
				t.Errorf("error = %v, want %v", report.Err, tt.wantErr)
			}
			if report.Result.Success || report.Result.Table != nil {
				t.Errorf("result = %+v", report.Result)
			}
			if !strings.Contains(report.Result.Summary, tt.summary) {
				t.Errorf("Summary = %q, want it to mention %q", report.Result.Summary, tt.summary)
			}
			if len(report.Result.Errors) != 1 {
				t.Errorf("Errors = %v", report.Result.Errors)
			}
		})
	}
}

func TestProcessReconstructionShortfall(t *testing.T) {
	src := &fakeSource{tokens: []ledger.RawToken{box("lorem", 0, 0, 50, 20), box("ipsum", 60, 0, 50, 20)}}
	st := &memoryStore{}
	report := NewProcessor(src, st, Options{}).Process(context.Background(), "page.png", strings.NewReader("img"))

	if !errors.Is(report.Err, ErrReconstruction) || !errors.Is(report.Err, ledger.ErrNoRecords) {
		t.Fatalf("error = %v", report.Err)
	}
	var perr *PipelineError
	if !errors.As(report.Err, &perr) || perr.Details != "detected: lorem, ipsum" {
		t.Errorf("pipeline error = %+v", perr)
	}
	if len(st.records) != 0 {
		t.Error("shortfall reached the store")
	}
}

func TestProcessCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProcessor(&fakeSource{tokens: ledgerTokens()}, nil, Options{MaxOCRConcurrent: 1, OCRRatePerMinute: 60})
	report := p.Process(ctx, "page.png", strings.NewReader("img"))
	if !errors.Is(report.Err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", report.Err)
	}
	if report.Result.Summary != "processing was canceled" {
		t.Errorf("Summary = %q", report.Result.Summary)
	}
}

func TestProcessTokensWithoutStore(t *testing.T) {
	report := NewProcessor(nil, nil, Options{}).ProcessTokens(context.Background(), "tokens.json", ledgerTokens())
	if report.Err != nil {
		t.Fatalf("ProcessTokens() error = %v", report.Err)
	}
	if report.Result.Summary != "3 records reconstructed" {
		t.Errorf("Summary = %q", report.Result.Summary)
	}
}

func TestRunBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	sources := []string{"a.png", "missing.png", "b.png", "c.png"}
	open := func(source string) (io.ReadCloser, error) {
		if source == "missing.png" {
			return nil, os.ErrNotExist
		}
		return io.NopCloser(bytes.NewReader([]byte(source))), nil
	}

	src := &fakeSource{tokens: ledgerTokens()}
	p := NewProcessor(src, nil, Options{MaxOCRConcurrent: 2})

	var mu sync.Mutex
	var seen []int
	summary := RunBatch(context.Background(), p, sources, open, 3, func(done, total int, r *Report) {
		mu.Lock()
		defer mu.Unlock()
		if total != len(sources) {
			t.Errorf("total = %d", total)
		}
		seen = append(seen, done)
	})

	if len(summary.Reports) != len(sources) {
		t.Fatalf("got %d reports", len(summary.Reports))
	}
	for i, r := range summary.Reports {
		if r.Result.Source != sources[i] {
			t.Errorf("report[%d] source = %q, want %q", i, r.Result.Source, sources[i])
		}
	}
	if !errors.Is(summary.Reports[1].Err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", summary.Reports[1].Err)
	}
	if summary.Succeeded != 3 || summary.Failed != 1 || summary.Records != 9 {
		t.Errorf("summary = %+v", summary)
	}
	if src.calls != 3 {
		t.Errorf("engine called %d times, want 3", src.calls)
	}
	for i, n := range seen {
		if n != i+1 {
			t.Errorf("progress counts = %v", seen)
			break
		}
	}
}

func TestRunBatchSkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{tokens: ledgerTokens()}
	summary := RunBatch(ctx, NewProcessor(src, nil, Options{}), []string{"a.png", "b.png"}, func(string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("img")), nil
	}, 0, nil)

	if summary.Failed != 2 || src.calls != 0 {
		t.Errorf("failed = %d, calls = %d", summary.Failed, src.calls)
	}
}

func TestFindImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.PNG", "a.jpg", "notes.txt", filepath.Join("sub", "c.tiff")} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := FindImages(dir)
	if err != nil {
		t.Fatalf("FindImages() error = %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "sub", "c.tiff"),
	}
	if fmt.Sprint(files) != fmt.Sprint(want) {
		t.Errorf("FindImages() = %v, want %v", files, want)
	}

	single, err := FindImages(want[0])
	if err != nil || len(single) != 1 {
		t.Errorf("FindImages(file) = %v, %v", single, err)
	}

	if _, err := FindImages(filepath.Join(dir, "nope")); err == nil {
		t.Error("FindImages(missing) error = nil")
	}
}
