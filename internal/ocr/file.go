package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"formledger/internal/ledger"
)

// tokenPayloadSchema accepts either a bare list of entries or an object with
// a "tokens" list. An entry is a [polygon, text] or [polygon, text,
// confidence] tuple, or an object with a text and one of the polygon keys.
const tokenPayloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "number": {"type": ["number", "string", "null"]},
    "entry": {
      "anyOf": [
        {
          "type": "array",
          "minItems": 2,
          "maxItems": 3,
          "items": [
            {"type": ["array", "object", "null"]},
            {"type": ["string", "null"]},
            {"$ref": "#/definitions/number"}
          ]
        },
        {
          "type": "object",
          "properties": {
            "text": {"type": ["string", "null"]},
            "confidence": {"$ref": "#/definitions/number"},
            "score": {"$ref": "#/definitions/number"},
            "bbox": {"type": ["array", "object", "null"]},
            "polygon": {"type": ["array", "object", "null"]},
            "bounding_box": {"type": ["array", "object", "null"]}
          }
        }
      ]
    },
    "entries": {"type": "array", "items": {"$ref": "#/definitions/entry"}}
  },
  "anyOf": [
    {"$ref": "#/definitions/entries"},
    {
      "type": "object",
      "required": ["tokens"],
      "properties": {"tokens": {"$ref": "#/definitions/entries"}}
    }
  ]
}`

var compileTokenSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tokens.json", strings.NewReader(tokenPayloadSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("tokens.json")
})

// polygonKeys are tried in order on object entries.
var polygonKeys = []string{"bbox", "polygon", "bounding_box"}

// ParseTokenPayload decodes a token file. Entries without text are kept with
// empty text and entries with an unusable polygon are kept without one; the
// ledger grouper ignores both.
func ParseTokenPayload(data []byte) ([]ledger.RawToken, error) {
	const op = "ParseTokenPayload"

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, WrapOCRError(op, ErrInvalidPayload, fmt.Sprintf("unmarshal: %v", err))
	}

	schema, err := compileTokenSchema()
	if err != nil {
		return nil, WrapOCRError(op, err, "compile token schema")
	}
	if err := schema.Validate(doc); err != nil {
		return nil, WrapOCRError(op, ErrInvalidPayload, err.Error())
	}

	entries, _ := doc.([]any)
	if obj, ok := doc.(map[string]any); ok {
		entries, _ = obj["tokens"].([]any)
	}

	tokens := make([]ledger.RawToken, 0, len(entries))
	for _, entry := range entries {
		tokens = append(tokens, parseEntry(entry))
	}
	return tokens, nil
}

func parseEntry(entry any) ledger.RawToken {
	var tok ledger.RawToken
	switch e := entry.(type) {
	case []any:
		tok.Polygon = parsePolygon(e[0])
		tok.Text, _ = e[1].(string)
		if len(e) > 2 {
			if f, ok := toFloat(e[2]); ok {
				tok.Confidence = confidence(f)
			}
		}
	case map[string]any:
		tok.Text, _ = e["text"].(string)
		for _, key := range polygonKeys {
			if v, ok := e[key]; ok && v != nil {
				tok.Polygon = parsePolygon(v)
				break
			}
		}
		for _, key := range []string{"confidence", "score"} {
			if f, ok := toFloat(e[key]); ok {
				tok.Confidence = confidence(f)
				break
			}
		}
	}
	return tok
}

// parsePolygon accepts every polygon form the engines emit:
//
//	[[x, y], ...]
//	[{"x": x, "y": y}, ...]
//	{"vertices": [{"x": x, "y": y}, ...]}
//	{"x": x, "y": y, "width": w, "height": h}
//	[x, y, w, h]
//	[x1, y1, x2, y2, x3, y3, x4, y4]
//
// It returns nil for anything else.
func parsePolygon(v any) []ledger.Point {
	switch p := v.(type) {
	case map[string]any:
		if x, y, w, h, ok := rectFields(p); ok {
			return rectPolygon(x, y, w, h)
		}
		if vertices, ok := p["vertices"].([]any); ok {
			return pointList(vertices)
		}
	case []any:
		if len(p) == 0 {
			return nil
		}
		switch p[0].(type) {
		case []any, map[string]any:
			return pointList(p)
		}
		nums, ok := floats(p)
		if !ok {
			return nil
		}
		switch len(nums) {
		case 4:
			return rectPolygon(nums[0], nums[1], nums[2], nums[3])
		case 8:
			points := make([]ledger.Point, 0, 4)
			for i := 0; i < 8; i += 2 {
				points = append(points, ledger.Point{X: nums[i], Y: nums[i+1]})
			}
			return points
		}
	}
	return nil
}

func rectFields(m map[string]any) (x, y, w, h float64, ok bool) {
	var okX, okY, okW, okH bool
	x, okX = toFloat(m["x"])
	y, okY = toFloat(m["y"])
	w, okW = toFloat(m["width"])
	h, okH = toFloat(m["height"])
	return x, y, w, h, okX && okY && okW && okH
}

// pointList converts [x, y] pairs or {"x", "y"} objects. Any malformed
// vertex invalidates the whole polygon.
func pointList(items []any) []ledger.Point {
	points := make([]ledger.Point, 0, len(items))
	for _, item := range items {
		var x, y float64
		var okX, okY bool
		switch pt := item.(type) {
		case []any:
			if len(pt) < 2 {
				return nil
			}
			x, okX = toFloat(pt[0])
			y, okY = toFloat(pt[1])
		case map[string]any:
			x, okX = toFloat(pt["x"])
			y, okY = toFloat(pt["y"])
		}
		if !okX || !okY {
			return nil
		}
		points = append(points, ledger.Point{X: x, Y: y})
	}
	return points
}

func floats(items []any) ([]float64, bool) {
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// FileTokenSource implements TokenSource over token files: the reader passed
// to DetectTokens holds a JSON payload instead of an image.
type FileTokenSource struct{}

// NewFileTokenSource creates a token-file source.
func NewFileTokenSource() *FileTokenSource {
	return &FileTokenSource{}
}

// DetectTokens returns the tokens stored in the payload.
func (f *FileTokenSource) DetectTokens(ctx context.Context, payload io.Reader) ([]ledger.RawToken, error) {
	return detectTokens(ctx, f, payload)
}

// DetectTokensWithMetadata decodes the payload.
func (f *FileTokenSource) DetectTokensWithMetadata(ctx context.Context, payload io.Reader) (*TokenResult, error) {
	const op = "DetectTokensWithMetadata"
	startTime := time.Now()

	data, err := io.ReadAll(io.LimitReader(payload, MaxImageSizeBytes+1))
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read token file")
	}
	if len(data) > MaxImageSizeBytes {
		return nil, WrapOCRError(op, ErrImageTooLarge, "token file too large")
	}

	tokens, err := ParseTokenPayload(data)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}
	if len(tokens) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "token file has no entries")
	}

	processedAt := time.Now()
	return &TokenResult{
		Tokens:             tokens,
		Provider:           "file",
		Confidence:         averageConfidence(tokens),
		ProcessedAt:        processedAt,
		ProcessingDuration: processedAt.Sub(startTime),
	}, nil
}

// Close is a no-op.
func (f *FileTokenSource) Close() error {
	return nil
}
