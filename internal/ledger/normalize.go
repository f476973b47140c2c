package ledger

import (
	"strings"
)

// CanonicalQuote is the quote every confusable quote glyph is mapped to.
const CanonicalQuote = '"'

// quoteVariants are glyphs OCR engines emit for a handwritten quote mark.
var quoteVariants = map[rune]bool{
	'"': true,
	'\'': true,
	'`': true,
	'´': true,
	'‘': true,
	'’': true,
	'‚': true,
	'‛': true,
	'“': true,
	'”': true,
	'„': true,
	'‟': true,
	'′': true,
	'″': true,
	'‶': true,
	'〃': true,
	'«': true,
	'»': true,
}

// repeatMarkers is the set of canonical tokens meaning "same as above".
var repeatMarkers = map[string]bool{
	`"`: true,
	`""`: true,
	`"""`: true,
	"-": true,
	"--": true,
	"–": true,
	"—": true,
	"―": true,
	"~": true,
}

// NormalizedToken is the cleaned text of a token.
type NormalizedToken struct {
	Text   string
	Repeat bool
}

// NormalizeToken trims a token, unifies quote glyphs and flags ditto marks.
// Multi-character tokens lose embedded quotes; single characters are kept so
// that a lone quote used as a marker survives.
func NormalizeToken(raw string) NormalizedToken {
	text := strings.TrimSpace(raw)
	if text == "" {
		return NormalizedToken{}
	}

	var b strings.Builder
	for _, r := range text {
		if quoteVariants[r] {
			b.WriteRune(CanonicalQuote)
			continue
		}
		b.WriteRune(r)
	}
	cleaned := b.String()

	if repeatMarkers[cleaned] {
		return NormalizedToken{Text: cleaned, Repeat: true}
	}

	if len([]rune(cleaned)) > 1 {
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, string(CanonicalQuote), ""))
	}

	return NormalizedToken{Text: cleaned}
}

// digitsOnly projects s onto its ASCII digits.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
