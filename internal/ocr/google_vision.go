package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"formledger/internal/ledger"
	"formledger/internal/logger"
)

// DefaultLanguageHints steer Vision towards the handwriting on the forms.
var DefaultLanguageHints = []string{"es", "en"}

// VisionTokenSource implements TokenSource using Google Cloud Vision API.
type VisionTokenSource struct {
	client        *vision.ImageAnnotatorClient
	languageHints []string
	log           zerolog.Logger
}

// NewVisionTokenSource creates a token source with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewVisionTokenSource(ctx context.Context) (*VisionTokenSource, error) {
	const op = "NewVisionTokenSource"

	var client *vision.ImageAnnotatorClient
	var err error

	// Check for inline credentials first
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return NewVisionTokenSourceWithClient(client), nil
}

// NewVisionTokenSourceWithClient creates a token source with an explicit client (for testing).
func NewVisionTokenSourceWithClient(client *vision.ImageAnnotatorClient) *VisionTokenSource {
	return &VisionTokenSource{
		client:        client,
		languageHints: DefaultLanguageHints,
		log:           logger.WithComponent("vision"),
	}
}

// DetectTokens returns the word tokens found on the image.
func (v *VisionTokenSource) DetectTokens(ctx context.Context, image io.Reader) ([]ledger.RawToken, error) {
	return detectTokens(ctx, v, image)
}

// DetectTokensWithMetadata runs DOCUMENT_TEXT_DETECTION on the image.
func (v *VisionTokenSource) DetectTokensWithMetadata(ctx context.Context, image io.Reader) (*TokenResult, error) {
	const op = "DetectTokensWithMetadata"
	startTime := time.Now()

	data, mime, err := readImage(op, image)
	if err != nil {
		return nil, err
	}
	if mime == "application/pdf" {
		return nil, WrapOCRError(op, ErrInvalidImage, "vision backend takes images, not PDF documents")
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{
					LanguageHints: v.languageHints,
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		if ctxErr := contextError(op, ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}

	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	imageResp := resp.Responses[0]
	if imageResp.Error != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", imageResp.Error.Message))
	}

	tokens := TokensFromAnnotation(imageResp)
	if len(tokens) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "Vision returned no words")
	}

	processedAt := time.Now()
	v.log.Debug().
		Int("tokens", len(tokens)).
		Dur("duration", processedAt.Sub(startTime)).
		Msg("Vision detection completed")

	return &TokenResult{
		Tokens:             tokens,
		Provider:           "vision",
		Confidence:         averageConfidence(tokens),
		ProcessedAt:        processedAt,
		ProcessingDuration: processedAt.Sub(startTime),
	}, nil
}

// TokensFromAnnotation converts a Vision response into tokens. Words from the
// full text annotation are preferred because they carry a confidence; the
// flat text annotations are used when the structured hierarchy is missing.
func TokensFromAnnotation(resp *visionpb.AnnotateImageResponse) []ledger.RawToken {
	var tokens []ledger.RawToken

	if full := resp.GetFullTextAnnotation(); full != nil {
		for _, page := range full.Pages {
			for _, block := range page.Blocks {
				for _, paragraph := range block.Paragraphs {
					for _, word := range paragraph.Words {
						var text strings.Builder
						for _, symbol := range word.Symbols {
							text.WriteString(symbol.Text)
						}
						tok := ledger.RawToken{
							Text:    text.String(),
							Polygon: visionPolygon(word.BoundingBox, page.Width, page.Height),
						}
						if word.Confidence > 0 {
							tok.Confidence = confidence(float64(word.Confidence))
						}
						tokens = append(tokens, tok)
					}
				}
			}
		}
	}
	if len(tokens) > 0 {
		return tokens
	}

	// The first text annotation is the whole text block; words follow it.
	annotations := resp.GetTextAnnotations()
	if len(annotations) > 1 {
		annotations = annotations[1:]
	}
	for _, a := range annotations {
		tokens = append(tokens, ledger.RawToken{
			Text:    a.Description,
			Polygon: visionPolygon(a.BoundingPoly, 0, 0),
		})
	}
	return tokens
}

// visionPolygon prefers pixel vertices and scales normalized ones by the page
// size when only those are present.
func visionPolygon(poly *visionpb.BoundingPoly, width, height int32) []ledger.Point {
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
		points = append(points, ledger.Point{
			X: float64(v.X) * float64(width),
			Y: float64(v.Y) * float64(height),
		})
	}
	return points
}

// Close closes the underlying Vision client.
func (v *VisionTokenSource) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
