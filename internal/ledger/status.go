package ledger

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Status is the tri-state outcome recorded for an entry.
type Status int

const (
	StatusUnknown Status = iota
	StatusCompleted
	StatusPending
)

// String returns the persisted form of the status.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Icon returns the glyph used in rendered tables.
func (s Status) Icon() string {
	switch s {
	case StatusCompleted:
		return "✅"
	case StatusPending:
		return "⚠️"
	default:
		return "❔"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	*s = ParseStatus(string(b))
	return nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed":
		return StatusCompleted
	case "pending":
		return StatusPending
	default:
		return StatusUnknown
	}
}

var (
	checkGlyphs = []string{"✅", "✔", "✓", "☑", "√"}
	crossGlyphs = []string{"❌", "✖", "✕", "✗", "✘", "⚠"}

	// Words are stored folded: lower case, no diacritics.
	checkWords = map[string]bool{
		"si": true, "ok": true, "hecho": true, "hecha": true, "listo": true,
		"lista": true, "done": true, "yes": true, "v": true,
	}
	crossWords = map[string]bool{
		"no": true, "pendiente": true, "pend": true, "falta": true, "fail": true,
		"error": true, "cancelado": true, "cancelada": true, "x": true,
	}
)

// NormalizeStatus maps a status token to a Status. A literal question mark and
// anything unrecognised map to StatusUnknown.
func NormalizeStatus(text string) Status {
	text = strings.TrimSpace(text)
	if text == "" || text == "?" {
		return StatusUnknown
	}

	for _, g := range checkGlyphs {
		if strings.Contains(text, g) {
			return StatusCompleted
		}
	}
	for _, g := range crossGlyphs {
		if strings.Contains(text, g) {
			return StatusPending
		}
	}

	word := foldWord(text)
	switch {
	case checkWords[word]:
		return StatusCompleted
	case crossWords[word]:
		return StatusPending
	}
	return StatusUnknown
}

// isStatusWord reports whether text is an exact entry of the status
// vocabulary, glyphs included.
func isStatusWord(text string) bool {
	return NormalizeStatus(text) != StatusUnknown && !hasDigit(text)
}

func foldWord(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Trim(strings.ToLower(folded), ".!¡ ")
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
