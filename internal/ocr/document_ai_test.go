package ocr

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
)

func docToken(start, end int64, conf float32, poly *documentaipb.BoundingPoly) *documentaipb.Document_Page_Token {
	return &documentaipb.Document_Page_Token{
		Layout: &documentaipb.Document_Page_Layout{
			TextAnchor: &documentaipb.Document_TextAnchor{
				TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
					{StartIndex: start, EndIndex: end},
				},
			},
			Confidence:   conf,
			BoundingPoly: poly,
		},
	}
}

func normalizedBox(x, y, w, h float32) *documentaipb.BoundingPoly {
	return &documentaipb.BoundingPoly{NormalizedVertices: []*documentaipb.NormalizedVertex{
		{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h},
	}}
}

func TestTokensFromDocument(t *testing.T) {
	text := "A 1682415\n02:35 ok\n"
	doc := &documentaipb.Document{
		Text: text,
		Pages: []*documentaipb.Document_Page{
			{
				Dimension: &documentaipb.Document_Page_Dimension{Width: 1000, Height: 2000},
				Tokens: []*documentaipb.Document_Page_Token{
					docToken(0, 2, 0.95, normalizedBox(0.25, 0.5, 0.25, 0.25)),
					docToken(2, 10, 0.9, &documentaipb.BoundingPoly{Vertices: []*documentaipb.Vertex{
						{X: 300, Y: 100}, {X: 500, Y: 100}, {X: 500, Y: 140}, {X: 300, Y: 140},
					}}),
				},
			},
			{
				Dimension: &documentaipb.Document_Page_Dimension{Width: 1000, Height: 2000},
				Tokens: []*documentaipb.Document_Page_Token{
					docToken(10, 16, 0, normalizedBox(0, 0, 0.1, 0.01)),
					docToken(16, 16, 0.5, normalizedBox(0, 0, 0.1, 0.01)),
					{},
				},
			},
		},
	}

	tokens := TokensFromDocument(doc)
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}

	wantTexts := []string{"A", "1682415", "02:35"}
	for i, want := range wantTexts {
		if tokens[i].Text != want {
			t.Errorf("tokens[%d].Text = %q, want %q", i, tokens[i].Text, want)
		}
	}

	if p := tokens[0].Polygon; p[0].X != 250 || p[0].Y != 1000 {
		t.Errorf("tokens[0] not scaled by page dimension: %v", p)
	}
	if p := tokens[1].Polygon; p[2].X != 500 || p[2].Y != 140 {
		t.Errorf("tokens[1] pixel vertices changed: %v", p)
	}
	// second page is stacked below the first
	if p := tokens[2].Polygon; p[0].Y != 2000 {
		t.Errorf("tokens[2] not offset by first page height: %v", p)
	}
	if tokens[2].Confidence != nil {
		t.Error("zero confidence should be reported as none")
	}
}

func TestAnchorTextOutOfRange(t *testing.T) {
	anchor := &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
			{StartIndex: 0, EndIndex: 3},
			{StartIndex: 5, EndIndex: 99},
		},
	}
	if got := anchorText("abcdef", anchor); got != "abc" {
		t.Errorf("anchorText() = %q, want %q", got, "abc")
	}
	if got := anchorText("abc", nil); got != "" {
		t.Errorf("anchorText(nil) = %q", got)
	}
}
