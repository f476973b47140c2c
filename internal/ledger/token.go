// Package ledger reconstructs an ordered ledger of records from the unordered
// token output of an OCR engine reading a handwritten tabular form.
//
// The pipeline is synchronous and pure:
//   - GroupRows clusters positioned tokens into rows by vertical overlap
//   - Extractor walks the rows, classifies tokens and carries identifier,
//     prefix, time and status across rows to resolve ditto marks
//   - OrderRecords sorts candidates chronologically with overnight rollover
//   - RenderTable produces the three-column text table
//
// Nothing in this package keeps state between documents. A ParsingContext is
// built fresh for every Extract call.
package ledger

import (
	"math"
)

const (
	// MinTokenHeight is the floor applied to degenerate polygons.
	MinTokenHeight = 1.0

	// MinPolygonPoints is the number of vertices needed to compute extents.
	MinPolygonPoints = 2
)

// Point is a 2D vertex in image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawToken is one OCR-detected text fragment as emitted by the engine.
type RawToken struct {
	Text       string   `json:"text"`
	Polygon    []Point  `json:"polygon"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// PositionedToken is a RawToken with its bounding extent resolved.
type PositionedToken struct {
	RawToken

	XMin    float64
	XMax    float64
	YMin    float64
	YMax    float64
	CenterX float64
	CenterY float64
	Height  float64
}

// Row is a vertical band of tokens in reading order.
type Row struct {
	Tokens []PositionedToken
	YMin   float64
	YMax   float64
}

// Texts returns the raw token texts of the row, left to right.
func (r Row) Texts() []string {
	texts := make([]string, 0, len(r.Tokens))
	for _, t := range r.Tokens {
		texts = append(texts, t.Text)
	}
	return texts
}

// PositionToken computes the bounding extent of a raw token. It reports false
// for tokens with empty text or with too few finite vertices.
func PositionToken(raw RawToken) (PositionedToken, bool) {
	if NormalizeToken(raw.Text).Text == "" {
		return PositionedToken{}, false
	}

	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	valid := 0
	for _, p := range raw.Polygon {
		if !finite(p.X) || !finite(p.Y) {
			continue
		}
		valid++
		xMin = math.Min(xMin, p.X)
		xMax = math.Max(xMax, p.X)
		yMin = math.Min(yMin, p.Y)
		yMax = math.Max(yMax, p.Y)
	}
	if valid < MinPolygonPoints {
		return PositionedToken{}, false
	}

	height := yMax - yMin
	if height < MinTokenHeight {
		height = MinTokenHeight
	}

	return PositionedToken{
		RawToken: raw,
		XMin:     xMin,
		XMax:     xMax,
		YMin:     yMin,
		YMax:     yMax,
		CenterX:  (xMin + xMax) / 2,
		CenterY:  (yMin + yMax) / 2,
		Height:   height,
	}, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
