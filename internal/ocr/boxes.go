package ocr

import (
	"image"
	"strings"

	"formledger/internal/ledger"
)

// boxToken converts an engine word box into a token. Tesseract reports
// confidence on a 0-100 scale; negative values mean none.
func boxToken(word string, box image.Rectangle, conf float64) (ledger.RawToken, bool) {
	word = strings.TrimSpace(word)
	if word == "" || box.Empty() {
		return ledger.RawToken{}, false
	}
	tok := ledger.RawToken{
		Text:    word,
		Polygon: rectPolygon(float64(box.Min.X), float64(box.Min.Y), float64(box.Dx()), float64(box.Dy())),
	}
	if conf >= 0 {
		tok.Confidence = confidence(conf / 100)
	}
	return tok, true
}

// rectPolygon returns the four corners of an axis-aligned rectangle,
// clockwise from the top left.
func rectPolygon(x, y, w, h float64) []ledger.Point {
	return []ledger.Point{
		{X: x, Y: y},
		{X: x + w, Y: y},
		{X: x + w, Y: y + h},
		{X: x, Y: y + h},
	}
}
