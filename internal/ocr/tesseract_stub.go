//go:build !tesseract

package ocr

import (
	"context"
	"io"

	"formledger/internal/ledger"
)

// TesseractEnabled reports whether the tesseract backend was compiled in.
const TesseractEnabled = false

// TesseractTokenSource is the placeholder used without the tesseract build tag.
type TesseractTokenSource struct{}

// NewTesseractTokenSource always fails without the tesseract build tag.
func NewTesseractTokenSource(languages ...string) (*TesseractTokenSource, error) {
	return nil, WrapOCRError("NewTesseractTokenSource", ErrTesseractNotEnabled, "")
}

func (t *TesseractTokenSource) DetectTokens(ctx context.Context, image io.Reader) ([]ledger.RawToken, error) {
	return nil, ErrTesseractNotEnabled
}

func (t *TesseractTokenSource) DetectTokensWithMetadata(ctx context.Context, image io.Reader) (*TokenResult, error) {
	return nil, ErrTesseractNotEnabled
}

func (t *TesseractTokenSource) Close() error {
	return nil
}
