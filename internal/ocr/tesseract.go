//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"formledger/internal/ledger"
	"formledger/internal/logger"
)

// TesseractEnabled reports whether the tesseract backend was compiled in.
const TesseractEnabled = true

// TesseractTokenSource implements TokenSource with a local Tesseract engine.
// A gosseract client is not safe for concurrent use, so every call gets its own.
type TesseractTokenSource struct {
	languages     []string
	clientFactory func() *gosseract.Client
	log           zerolog.Logger
}

// NewTesseractTokenSource creates a token source for the given languages
// (e.g. "spa", "eng").
func NewTesseractTokenSource(languages ...string) (*TesseractTokenSource, error) {
	return &TesseractTokenSource{
		languages:     languages,
		clientFactory: gosseract.NewClient,
		log:           logger.WithComponent("tesseract"),
	}, nil
}

// DetectTokens returns the word tokens found on the image.
func (t *TesseractTokenSource) DetectTokens(ctx context.Context, image io.Reader) ([]ledger.RawToken, error) {
	return detectTokens(ctx, t, image)
}

// DetectTokensWithMetadata runs word-level recognition and returns the word boxes.
func (t *TesseractTokenSource) DetectTokensWithMetadata(ctx context.Context, image io.Reader) (*TokenResult, error) {
	const op = "DetectTokensWithMetadata"
	startTime := time.Now()

	data, mime, err := readImage(op, image)
	if err != nil {
		return nil, err
	}
	if mime == "application/pdf" {
		return nil, WrapOCRError(op, ErrInvalidImage, "tesseract backend takes images, not PDF documents")
	}
	if err := contextError(op, ctx); err != nil {
		return nil, err
	}

	c := t.clientFactory()
	defer c.Close()

	if len(t.languages) > 0 {
		if err := c.SetLanguage(t.languages...); err != nil {
			return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("set languages: %v", err))
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, WrapOCRError(op, ErrInvalidImage, fmt.Sprintf("set image: %v", err))
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("word boxes: %v", err))
	}

	tokens := make([]ledger.RawToken, 0, len(boxes))
	for _, b := range boxes {
		if tok, ok := boxToken(b.Word, b.Box, b.Confidence); ok {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "tesseract found no words")
	}

	processedAt := time.Now()
	t.log.Debug().
		Strs("languages", t.languages).
		Int("tokens", len(tokens)).
		Dur("duration", processedAt.Sub(startTime)).
		Msg("Tesseract detection completed")

	return &TokenResult{
		Tokens:             tokens,
		Provider:           "tesseract",
		Confidence:         averageConfidence(tokens),
		ProcessedAt:        processedAt,
		ProcessingDuration: processedAt.Sub(startTime),
	}, nil
}

// Close is a no-op; clients are released after every call.
func (t *TesseractTokenSource) Close() error {
	return nil
}
