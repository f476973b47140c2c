package pipeline

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"formledger/internal/logger"
)

// DefaultConcurrency is used when RunBatch is given a non-positive limit.
const DefaultConcurrency = 4

// ImageExtensions are the file extensions FindImages picks up.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".bmp", ".webp"}

// Opener opens the document named by source.
type Opener func(source string) (io.ReadCloser, error)

// OpenFile is the Opener for local paths.
func OpenFile(source string) (io.ReadCloser, error) {
	return os.Open(source)
}

// Progress is called once per finished document. done counts finished
// documents, including this one. Calls are serialized.
type Progress func(done, total int, report *Report)

// BatchSummary aggregates the reports of one batch.
type BatchSummary struct {
	Reports   []*Report
	Succeeded int
	Failed    int
	Records   int
	Inserted  int
	Duration  time.Duration
}

// RunBatch processes sources with at most concurrency documents in flight.
// Reports keep the order of sources. A failing document never cancels the
// others; only ctx does.
func RunBatch(ctx context.Context, p *Processor, sources []string, open Opener, concurrency int, progress Progress) *BatchSummary {
	log := logger.WithComponent("batch")
	started := time.Now()

	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if open == nil {
		open = OpenFile
	}

	reports := make([]*Report, len(sources))
	done := make(chan int)
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		n := 0
		for i := range done {
			n++
			if progress != nil {
				progress(n, len(sources), reports[i])
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, source := range sources {
		g.Go(func() error {
			reports[i] = processOne(ctx, p, source, open)
			done <- i
			return nil
		})
	}
	_ = g.Wait()
	close(done)
	<-finished

	summary := &BatchSummary{Reports: reports, Duration: time.Since(started)}
	for _, r := range reports {
		if r.Result.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		if r.Result.Processed != nil {
			summary.Records += *r.Result.Processed
		}
		if r.Result.Inserted != nil {
			summary.Inserted += *r.Result.Inserted
		}
	}

	log.Info().
		Int("documents", len(sources)).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("records", summary.Records).
		Dur("duration", summary.Duration).
		Msg("Batch finished")

	return summary
}

func processOne(ctx context.Context, p *Processor, source string, open Opener) *Report {
	const op = "RunBatch"

	if err := ctx.Err(); err != nil {
		return failed(source, "", NewPipelineError(op, ErrAcquisition, err, ""), "processing was canceled")
	}

	rc, err := open(source)
	if err != nil {
		return failed(source, "", NewPipelineError(op, ErrAcquisition, err, "opening document"),
			fmt.Sprintf("could not open %s", source))
	}
	defer rc.Close()

	return p.Process(ctx, source, rc)
}

// FindImages lists the image files under root, sorted by path. root may also
// be a single file.
func FindImages(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isImagePath(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isImagePath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
