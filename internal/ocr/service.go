// Package ocr detects positioned word tokens on scanned ledger forms.
//
// Every backend returns the same token shape: the text of one word, the
// polygon that bounds it in image pixels and, when the engine reports one,
// a confidence score. Backends never order or group tokens; that is left to
// the ledger package.
//
// Backends:
//   - vision: Google Cloud Vision DOCUMENT_TEXT_DETECTION, word annotations
//   - documentai: Google Document AI OCR processor, page tokens
//   - tesseract: local Tesseract through gosseract, word bounding boxes
//   - file: a JSON token file produced earlier (see ParseTokenPayload)
//
// Required Environment Variables for the Google backends:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_CLOUD_PROJECT: Google Cloud project ID (Document AI only)
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"formledger/internal/ledger"
)

// MaxImageSizeBytes is the maximum image size accepted by every backend (20MB).
const MaxImageSizeBytes = 20 * 1024 * 1024

// TokenSource defines the interface for OCR token detection backends.
type TokenSource interface {
	// DetectTokens returns the word tokens found on the image.
	DetectTokens(ctx context.Context, image io.Reader) ([]ledger.RawToken, error)

	// DetectTokensWithMetadata returns the tokens together with processing metadata.
	DetectTokensWithMetadata(ctx context.Context, image io.Reader) (*TokenResult, error)

	// Close releases the backend's client.
	Close() error
}

// TokenResult contains the detected tokens with metadata.
type TokenResult struct {
	// Tokens are the detected words in engine order.
	Tokens []ledger.RawToken `json:"tokens"`

	// Provider is the backend that produced the tokens.
	Provider string `json:"provider"`

	// Confidence is the average confidence across tokens that carry one (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// ProcessedAt is the timestamp when detection completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long detection took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// averageConfidence returns the mean confidence of the tokens that report one.
func averageConfidence(tokens []ledger.RawToken) float64 {
	var sum float64
	var n int
	for _, t := range tokens {
		if t.Confidence != nil {
			sum += *t.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func confidence(v float64) *float64 {
	return &v
}

// image signatures accepted by the engines, keyed by MIME type
var imageSignatures = []struct {
	mime   string
	offset int
	magic  []byte
}{
	{"image/png", 0, []byte("\x89PNG\r\n\x1a\n")},
	{"image/jpeg", 0, []byte{0xFF, 0xD8, 0xFF}},
	{"image/gif", 0, []byte("GIF8")},
	{"image/tiff", 0, []byte("II*\x00")},
	{"image/tiff", 0, []byte("MM\x00*")},
	{"image/bmp", 0, []byte("BM")},
	{"image/webp", 8, []byte("WEBP")},
	{"application/pdf", 0, []byte("%PDF")},
}

// DetectMimeType returns the MIME type of a supported image, or false.
func DetectMimeType(data []byte) (string, bool) {
	for _, sig := range imageSignatures {
		end := sig.offset + len(sig.magic)
		if len(data) >= end && bytes.Equal(data[sig.offset:end], sig.magic) {
			return sig.mime, true
		}
	}
	return "", false
}

// readImage reads and validates an image for an engine call.
func readImage(op string, image io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(image, MaxImageSizeBytes+1))
	if err != nil {
		return nil, "", WrapOCRError(op, err, "failed to read image data")
	}

	if len(data) > MaxImageSizeBytes {
		return nil, "", WrapOCRError(op, ErrImageTooLarge, fmt.Sprintf("file size: more than %d bytes", MaxImageSizeBytes))
	}

	mime, ok := DetectMimeType(data)
	if !ok {
		return nil, "", WrapOCRError(op, ErrInvalidImage, "unrecognized image header")
	}
	return data, mime, nil
}

// detectTokens is the DetectTokens half shared by the backends.
func detectTokens(ctx context.Context, src TokenSource, image io.Reader) ([]ledger.RawToken, error) {
	result, err := src.DetectTokensWithMetadata(ctx, image)
	if err != nil {
		return nil, err
	}
	return result.Tokens, nil
}

// contextError maps a finished context to the package errors.
func contextError(op string, ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.Canceled:
		return WrapOCRError(op, ErrContextCanceled, "processing was canceled")
	default:
		return WrapOCRError(op, context.DeadlineExceeded, "processing timeout")
	}
}
