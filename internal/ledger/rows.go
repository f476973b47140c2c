package ledger

import (
	"sort"
)

// DefaultRowTolerance is the fraction of a token's height by which a row's
// vertical envelope is widened when testing membership.
const DefaultRowTolerance = 0.5

// GroupRows clusters tokens into rows using DefaultRowTolerance.
func GroupRows(tokens []RawToken) []Row {
	return GroupRowsWithTolerance(tokens, DefaultRowTolerance)
}

// GroupRowsWithTolerance positions every usable token, then assigns each, in
// order of vertical center, to the first row whose envelope (widened by
// tolerance times the token's height) contains the token's center. Rows are
// returned top to bottom with tokens left to right. The partition does not
// depend on the order of the input.
func GroupRowsWithTolerance(tokens []RawToken, tolerance float64) []Row {
	if tolerance < 0 {
		tolerance = 0
	}

	positioned := make([]PositionedToken, 0, len(tokens))
	for _, raw := range tokens {
		if pt, ok := PositionToken(raw); ok {
			positioned = append(positioned, pt)
		}
	}
	if len(positioned) == 0 {
		return nil
	}

	sort.SliceStable(positioned, func(i, j int) bool {
		return tokenLess(positioned[i], positioned[j], byCenterY)
	})

	var rows []Row
	for _, tok := range positioned {
		margin := tolerance * tok.Height
		placed := false
		for i := range rows {
			if tok.CenterY >= rows[i].YMin-margin && tok.CenterY <= rows[i].YMax+margin {
				rows[i].Tokens = append(rows[i].Tokens, tok)
				if tok.YMin < rows[i].YMin {
					rows[i].YMin = tok.YMin
				}
				if tok.YMax > rows[i].YMax {
					rows[i].YMax = tok.YMax
				}
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, Row{
				Tokens: []PositionedToken{tok},
				YMin:   tok.YMin,
				YMax:   tok.YMax,
			})
		}
	}

	for i := range rows {
		row := rows[i].Tokens
		sort.SliceStable(row, func(a, b int) bool {
			return tokenLess(row[a], row[b], byXMin)
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].YMin != rows[j].YMin {
			return rows[i].YMin < rows[j].YMin
		}
		if rows[i].YMax != rows[j].YMax {
			return rows[i].YMax < rows[j].YMax
		}
		return tokenLess(rows[i].Tokens[0], rows[j].Tokens[0], byXMin)
	})

	return rows
}

type tokenOrder int

const (
	byCenterY tokenOrder = iota
	byXMin
)

// tokenLess is a total order over tokens so grouping is deterministic.
func tokenLess(a, b PositionedToken, primary tokenOrder) bool {
	keys := [][2]float64{
		{a.CenterY, b.CenterY},
		{a.XMin, b.XMin},
		{a.YMin, b.YMin},
		{a.XMax, b.XMax},
		{a.YMax, b.YMax},
	}
	if primary == byXMin {
		keys[0], keys[1] = keys[1], keys[0]
	}
	for _, k := range keys {
		if k[0] != k[1] {
			return k[0] < k[1]
		}
	}
	if a.Text != b.Text {
		return a.Text < b.Text
	}
	return confidenceOf(a) < confidenceOf(b)
}

func confidenceOf(t PositionedToken) float64 {
	if t.Confidence == nil {
		return -1
	}
	return *t.Confidence
}
