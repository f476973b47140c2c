package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeSeparator is the canonical separator between hours and minutes.
const TimeSeparator = ':'

// DefaultCharSubstitutions corrects letters OCR reads in place of digits.
var DefaultCharSubstitutions = map[rune]rune{
	'l': '1',
	'I': '1',
	'|': '1',
	'O': '0',
	'o': '0',
	'S': '5',
	's': '5',
	'B': '8',
	'v': '4',
	'V': '4',
}

// DefaultSeparatorVariants are glyphs written or read in place of ':'.
var DefaultSeparatorVariants = map[rune]bool{
	':': true,
	'-': true,
	'–': true,
	'—': true,
	';': true,
	',': true,
	'.': true,
	'*': true,
	'·': true,
}

// HourNormalizer turns noisy OCR text into an HH:MM string. The lookup tables
// are plain fields so substitution policy can be swapped per deployment.
type HourNormalizer struct {
	Substitutions map[rune]rune
	Separators    map[rune]bool
	MaxHour       int
}

var (
	// ClockHours accepts 00:00 through 23:59.
	ClockHours = HourNormalizer{
		Substitutions: DefaultCharSubstitutions,
		Separators:    DefaultSeparatorVariants,
		MaxHour:       23,
	}

	// OvernightHours also accepts 24:00 through 29:59, the notation some
	// forms use for entries written after midnight.
	OvernightHours = HourNormalizer{
		Substitutions: DefaultCharSubstitutions,
		Separators:    DefaultSeparatorVariants,
		MaxHour:       29,
	}
)

// NormalizeHour normalizes text to a clock time using ClockHours.
func NormalizeHour(text string) (string, bool) {
	return ClockHours.Normalize(text)
}

// Normalize returns the HH:MM form of text, or false when the text cannot be
// read as a time within range. It never panics.
func (n HourNormalizer) Normalize(text string) (string, bool) {
	cleaned := n.clean(text)
	if cleaned == "" {
		return "", false
	}

	var hours, minutes string
	if idx := strings.IndexRune(cleaned, TimeSeparator); idx >= 0 {
		hours = cleaned[:idx]
		minutes = strings.ReplaceAll(cleaned[idx+1:], string(TimeSeparator), "")
		if len(hours) == 0 || len(hours) > 2 || len(minutes) == 0 || len(minutes) > 2 {
			return "", false
		}
	} else {
		switch {
		case len(cleaned) > 4:
			cleaned = cleaned[len(cleaned)-4:]
			hours, minutes = cleaned[:2], cleaned[2:]
		case len(cleaned) == 4:
			hours, minutes = cleaned[:2], cleaned[2:]
		case len(cleaned) == 3:
			hours, minutes = cleaned[:1], cleaned[1:]
		default:
			return "", false
		}
	}

	return n.format(hours, minutes)
}

// Candidates tries the splits of an undelimited digit run into hours and
// minutes, two-digit minutes first, and returns the valid readings.
func (n HourNormalizer) Candidates(digits string) []string {
	if len(digits) < 3 || !isDigits(digits) {
		return nil
	}
	var out []string
	for _, minuteLen := range []int{2, 1} {
		cut := len(digits) - minuteLen
		if cut < 1 || cut > 2 {
			continue
		}
		if hm, ok := n.format(digits[:cut], digits[cut:]); ok {
			out = append(out, hm)
		}
	}
	return out
}

func (n HourNormalizer) clean(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	for _, r := range text {
		if sub, ok := n.Substitutions[r]; ok {
			r = sub
		}
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case n.Separators[r]:
			b.WriteRune(TimeSeparator)
		}
	}
	return strings.Trim(b.String(), string(TimeSeparator))
}

func (n HourNormalizer) format(hours, minutes string) (string, bool) {
	h, err := strconv.Atoi(hours)
	if err != nil {
		return "", false
	}
	m, err := strconv.Atoi(minutes)
	if err != nil {
		return "", false
	}
	if h < 0 || h > n.MaxHour || m < 0 || m > 59 {
		return "", false
	}
	return formatClock(h, m), true
}

func formatClock(h, m int) string {
	return fmt.Sprintf("%02d:%02d", h, m)
}

// parseClock splits a normalized HH:MM string.
func parseClock(hm string) (int, int, bool) {
	parts := strings.Split(hm, string(TimeSeparator))
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || h < 0 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
