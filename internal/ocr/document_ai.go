package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"formledger/internal/ledger"
	"formledger/internal/logger"
)

// DocumentAIConfig holds the processor coordinates.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

// DocumentAITokenSource implements TokenSource using a Google Document AI OCR processor.
type DocumentAITokenSource struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAITokenSource creates a token source with credentials from environment.
// Expects: GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS
func NewDocumentAITokenSource(ctx context.Context, config DocumentAIConfig) (*DocumentAITokenSource, error) {
	const op = "NewDocumentAITokenSource"

	if config.ProjectID == "" {
		return nil, WrapOCRError(op, ErrMissingCredentials, "GOOGLE_CLOUD_PROJECT is required")
	}
	if config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrOCRFailed, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	var clientOptions []option.ClientOption

	// Regional endpoint outside the default location
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(clientOptions) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAITokenSourceWithClient(config, client), nil
}

// NewDocumentAITokenSourceWithClient creates a token source with explicit config and client (for testing).
func NewDocumentAITokenSourceWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAITokenSource {
	return &DocumentAITokenSource{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

// DetectTokens returns the word tokens found on the image.
func (p *DocumentAITokenSource) DetectTokens(ctx context.Context, image io.Reader) ([]ledger.RawToken, error) {
	return detectTokens(ctx, p, image)
}

// DetectTokensWithMetadata sends the image to the OCR processor and returns its page tokens.
func (p *DocumentAITokenSource) DetectTokensWithMetadata(ctx context.Context, image io.Reader) (*TokenResult, error) {
	const op = "DetectTokensWithMetadata"
	startTime := time.Now()

	data, mime, err := readImage(op, image)
	if err != nil {
		return nil, err
	}

	processCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: p.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mime,
			},
		},
	}

	resp, err := p.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, p.handleProcessingError(op, err)
	}

	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	tokens := TokensFromDocument(resp.Document)
	if len(tokens) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "Document AI returned no tokens")
	}

	processedAt := time.Now()
	p.log.Debug().
		Int("pages", len(resp.Document.Pages)).
		Int("tokens", len(tokens)).
		Dur("duration", processedAt.Sub(startTime)).
		Msg("Document AI detection completed")

	return &TokenResult{
		Tokens:             tokens,
		Provider:           "documentai",
		Confidence:         averageConfidence(tokens),
		ProcessedAt:        processedAt,
		ProcessingDuration: processedAt.Sub(startTime),
	}, nil
}

// processorName constructs the full processor name for Document AI API.
func (p *DocumentAITokenSource) processorName() string {
	if p.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			p.config.ProjectID, p.config.Location, p.config.ProcessorID, p.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		p.config.ProjectID, p.config.Location, p.config.ProcessorID)
}

// handleProcessingError converts Document AI errors to package errors.
func (p *DocumentAITokenSource) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"), strings.Contains(errStr, "PermissionDenied"):
		return WrapOCRError(op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "NOT_FOUND"), strings.Contains(errStr, "NotFound"):
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("processor not found: %s", p.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT"), strings.Contains(errStr, "InvalidArgument"):
		return WrapOCRError(op, ErrInvalidImage, "document format not supported or corrupted")
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return WrapOCRError(op, context.DeadlineExceeded, "processing timeout")
	case strings.Contains(errStr, "Canceled") || strings.Contains(errStr, "context canceled"):
		return WrapOCRError(op, ErrContextCanceled, "processing was canceled")
	default:
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// TokensFromDocument converts the page tokens of a Document AI response.
// Pages are stacked vertically so rows of different pages never merge.
func TokensFromDocument(doc *documentaipb.Document) []ledger.RawToken {
	var tokens []ledger.RawToken
	var offset float64

	for _, page := range doc.Pages {
		var width, height float64
		if dim := page.GetDimension(); dim != nil {
			width, height = float64(dim.Width), float64(dim.Height)
		}

		for _, t := range page.Tokens {
			layout := t.GetLayout()
			if layout == nil {
				continue
			}
			text := strings.TrimSpace(anchorText(doc.Text, layout.GetTextAnchor()))
			if text == "" {
				continue
			}
			polygon := documentPolygon(layout.GetBoundingPoly(), width, height)
			for i := range polygon {
				polygon[i].Y += offset
			}
			tok := ledger.RawToken{Text: text, Polygon: polygon}
			if layout.Confidence > 0 {
				tok.Confidence = confidence(float64(layout.Confidence))
			}
			tokens = append(tokens, tok)
		}
		offset += height
	}
	return tokens
}

// anchorText resolves a text anchor against the document text.
func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		start, end := seg.StartIndex, seg.EndIndex
		if start < 0 || end > int64(len(text)) || start >= end {
			continue
		}
		b.WriteString(text[start:end])
	}
	return b.String()
}

func documentPolygon(poly *documentaipb.BoundingPoly, width, height float64) []ledger.Point {
	if poly == nil {
		return nil
	}
	if len(poly.Vertices) > 0 {
		points := make([]ledger.Point, 0, len(poly.Vertices))
		for _, v := range poly.Vertices {
			points = append(points, ledger.Point{X: float64(v.X), Y: float64(v.Y)})
		}
		return points
	}
	points := make([]ledger.Point, 0, len(poly.NormalizedVertices))
	for _, v := range poly.NormalizedVertices {
		points = append(points, ledger.Point{X: float64(v.X) * width, Y: float64(v.Y) * height})
	}
	return points
}

// Close closes the underlying Document AI client.
func (p *DocumentAITokenSource) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
