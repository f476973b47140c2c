// Package pipeline runs one document through token acquisition, ledger
// reconstruction and persistence, and reports a models.Result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"formledger/internal/ledger"
	"formledger/internal/logger"
	"formledger/internal/ocr"
	"formledger/internal/store"
	"formledger/pkg/models"
)

// Options configures a Processor.
type Options struct {
	Ledger ledger.Options

	// OCRTimeout bounds every engine call. Zero means no bound beyond ctx.
	OCRTimeout time.Duration

	// MaxOCRConcurrent caps simultaneous engine calls. Zero means no cap.
	MaxOCRConcurrent int64

	// OCRRatePerMinute throttles engine calls. Zero means unthrottled.
	OCRRatePerMinute int

	// DryRun skips persistence even when a store is set.
	DryRun bool
}

// Report is the outcome of one document: the caller-facing result plus the
// reconstruction for callers that export it.
type Report struct {
	Result         models.Result
	Reconstruction *ledger.Reconstruction

	// Err is the document-level failure, if any. Persistence failures are
	// per record and only appear in Result.Errors.
	Err error
}

// Processor is safe for concurrent use. Nothing is shared between documents
// except the token source, the store and the throttles.
type Processor struct {
	source  ocr.TokenSource
	store   store.Store
	opts    Options
	ocrSem  *semaphore.Weighted
	limiter *rate.Limiter
}

// NewProcessor creates a processor. st may be nil to skip persistence.
func NewProcessor(source ocr.TokenSource, st store.Store, opts Options) *Processor {
	p := &Processor{
		source: source,
		store:  st,
		opts:   opts,
	}
	if opts.MaxOCRConcurrent > 0 {
		p.ocrSem = semaphore.NewWeighted(opts.MaxOCRConcurrent)
	}
	if opts.OCRRatePerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.OCRRatePerMinute)), 1)
	}
	return p
}

// Process runs the whole pipeline over one image.
func (p *Processor) Process(ctx context.Context, source string, image io.Reader) *Report {
	started := time.Now()
	requestID := uuid.NewString()
	log := logger.WithDocument("pipeline", requestID, source)
	ctx = log.WithContext(ctx)

	tokens, err := p.acquire(ctx, image)
	if err != nil {
		log.Warn().Err(err).Msg("Token acquisition failed")
		report := failed(source, requestID, err, acquisitionSummary(err))
		report.Result.Duration = time.Since(started)
		return report
	}
	log.Info().Int("tokens", len(tokens)).Msg("Tokens acquired")

	report := p.processTokens(ctx, source, requestID, tokens)
	report.Result.Duration = time.Since(started)
	return report
}

// ProcessTokens runs reconstruction and persistence over tokens obtained
// elsewhere, such as a token file.
func (p *Processor) ProcessTokens(ctx context.Context, source string, tokens []ledger.RawToken) *Report {
	started := time.Now()
	requestID := uuid.NewString()
	ctx = logger.WithDocument("pipeline", requestID, source).WithContext(ctx)

	report := p.processTokens(ctx, source, requestID, tokens)
	report.Result.Duration = time.Since(started)
	return report
}

func (p *Processor) processTokens(ctx context.Context, source, requestID string, tokens []ledger.RawToken) *Report {
	const op = "Process"
	log := logger.WithContext(ctx)

	rec, err := ledger.Reconstruct(tokens, p.opts.Ledger)
	if err != nil {
		var details string
		var shortfall *ledger.ShortfallError
		if errors.As(err, &shortfall) && len(shortfall.Sample) > 0 {
			details = "detected: " + strings.Join(shortfall.Sample, ", ")
		}
		perr := NewPipelineError(op, ErrReconstruction, err, details)
		log.Warn().Err(err).Int("tokens", len(tokens)).Msg("Reconstruction produced no records")
		return failed(source, requestID, perr, reconstructionSummary(err, len(tokens)))
	}

	report := &Report{
		Reconstruction: rec,
		Result: models.Result{
			Source:    source,
			RequestID: requestID,
			Success:   true,
			Errors:    []string{},
		},
	}
	report.Result.SetTable(rec.Table)
	report.Result.SetProcessed(len(rec.Records))

	log.Info().
		Int("rows", len(rec.Rows)).
		Int("records", len(rec.Records)).
		Msg("Ledger reconstructed")

	if p.store == nil || p.opts.DryRun {
		report.Result.Summary = fmt.Sprintf("%d records reconstructed", len(rec.Records))
		return report
	}

	outcome := store.InsertAll(ctx, p.store, store.FromOrdered(rec.Records))
	report.Result.SetInserted(outcome.Inserted)
	for _, msg := range outcome.Messages() {
		report.Result.AddError(msg)
	}
	report.Result.Summary = fmt.Sprintf("%d records reconstructed, %d stored", len(rec.Records), outcome.Inserted)
	if n := len(outcome.Failures); n > 0 {
		report.Result.Summary += fmt.Sprintf(", %d failed", n)
	}
	// Some records may fail on their own; the document fails only when none was stored.
	if outcome.Inserted == 0 && outcome.Attempted > 0 {
		report.Result.Success = false
	}

	log.Info().
		Int("inserted", outcome.Inserted).
		Int("failed", len(outcome.Failures)).
		Msg("Records persisted")

	return report
}

// acquire calls the token source under the configured throttles and timeout.
func (p *Processor) acquire(ctx context.Context, image io.Reader) ([]ledger.RawToken, error) {
	const op = "acquire"

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, NewPipelineError(op, ErrAcquisition, err, "waiting for OCR rate limit")
		}
	}
	if p.ocrSem != nil {
		if err := p.ocrSem.Acquire(ctx, 1); err != nil {
			return nil, NewPipelineError(op, ErrAcquisition, err, "waiting for an OCR slot")
		}
		defer p.ocrSem.Release(1)
	}

	if p.opts.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.OCRTimeout)
		defer cancel()
	}

	tokens, err := p.source.DetectTokens(ctx, image)
	if err != nil {
		return nil, NewPipelineError(op, ErrAcquisition, err, "")
	}
	if len(tokens) == 0 {
		return nil, NewPipelineError(op, ErrAcquisition, ocr.ErrEmptyDocument, "engine returned no tokens")
	}
	return tokens, nil
}

func failed(source, requestID string, err error, summary string) *Report {
	return &Report{
		Err: err,
		Result: models.Result{
			Source:    source,
			RequestID: requestID,
			Success:   false,
			Summary:   summary,
			Errors:    []string{err.Error()},
		},
	}
}

// acquisitionSummary turns an acquisition failure into an actionable message.
func acquisitionSummary(err error) string {
	switch {
	case errors.Is(err, ocr.ErrMissingCredentials):
		return "OCR engine rejected the credentials; check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS"
	case errors.Is(err, ocr.ErrImageTooLarge):
		return "image is larger than 20MB; downscale it and retry"
	case errors.Is(err, ocr.ErrInvalidImage):
		return "file is not a supported image (PNG, JPEG, GIF, TIFF, BMP, WEBP)"
	case errors.Is(err, ocr.ErrInvalidPayload):
		return "token file does not match the expected token format"
	case errors.Is(err, ocr.ErrEmptyDocument):
		return "OCR engine found no text on the image"
	case errors.Is(err, context.DeadlineExceeded):
		return "OCR engine did not answer in time"
	case errors.Is(err, context.Canceled), errors.Is(err, ocr.ErrContextCanceled):
		return "processing was canceled"
	default:
		return "OCR engine could not process the image"
	}
}

func reconstructionSummary(err error, tokens int) string {
	if errors.Is(err, ledger.ErrNoRows) {
		return fmt.Sprintf("no rows could be grouped from %d tokens", tokens)
	}
	return fmt.Sprintf("no record with a document number and a time was found in %d tokens", tokens)
}
