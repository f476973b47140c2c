package ledger

// box returns a token with an axis-aligned rectangle polygon.
func box(text string, x, y, w, h float64) RawToken {
	return RawToken{
		Text: text,
		Polygon: []Point{
			{X: x, Y: y},
			{X: x + w, Y: y},
			{X: x + w, Y: y + h},
			{X: x, Y: y + h},
		},
	}
}

// rowOf builds a row from texts alone; extraction never looks at geometry.
func rowOf(texts ...string) Row {
	row := Row{}
	for i, t := range texts {
		x := float64(i * 100)
		pt, ok := PositionToken(box(t, x, 0, 80, 40))
		if !ok {
			pt = PositionedToken{RawToken: RawToken{Text: t}}
		}
		row.Tokens = append(row.Tokens, pt)
	}
	return row
}

func rowTexts(rows []Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Texts())
	}
	return out
}
