package ocr

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderVision     = "vision"
	ProviderDocumentAI = "documentai"
	ProviderTesseract  = "tesseract"
	ProviderFile       = "file"
)

// Config selects and configures a backend.
type Config struct {
	Provider string

	// TesseractLanguages is a "+" separated list such as "spa+eng".
	TesseractLanguages string

	DocumentAI DocumentAIConfig
}

// New creates the token source named by cfg.Provider.
func New(ctx context.Context, cfg Config) (TokenSource, error) {
	const op = "New"

	var (
		src TokenSource
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderVision, "":
		src, err = NewVisionTokenSource(ctx)
	case ProviderDocumentAI:
		src, err = NewDocumentAITokenSource(ctx, cfg.DocumentAI)
	case ProviderTesseract:
		src, err = NewTesseractTokenSource(splitLanguages(cfg.TesseractLanguages)...)
	case ProviderFile:
		src = NewFileTokenSource()
	default:
		err = WrapOCRError(op, ErrUnknownProvider, fmt.Sprintf("provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

func splitLanguages(s string) []string {
	var langs []string
	for _, l := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' || r == ' ' }) {
		langs = append(langs, l)
	}
	return langs
}
