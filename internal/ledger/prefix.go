package ledger

const (
	// DefaultPrefixWindow is how many leading rows DetectPrefix inspects.
	DefaultPrefixWindow = 5

	// FullNumberDigits is the shortest digit run read as a fully written
	// document number.
	FullNumberDigits = 7

	// SuffixDigits is how many trailing digits of a document number are
	// written per row; everything before them is the prefix.
	SuffixDigits = 4
)

// DetectPrefix scans the first window rows for a token whose digits form a
// full document number and returns everything but its trailing SuffixDigits.
func DetectPrefix(rows []Row, window int) (string, bool) {
	if window <= 0 {
		window = DefaultPrefixWindow
	}
	for i, row := range rows {
		if i >= window {
			break
		}
		for _, tok := range row.Tokens {
			norm := NormalizeToken(tok.Text)
			if norm.Repeat {
				continue
			}
			digits := digitsOnly(norm.Text)
			if len(digits) >= FullNumberDigits {
				return prefixOf(digits), true
			}
		}
	}
	return "", false
}

func prefixOf(digits string) string {
	if len(digits) <= SuffixDigits {
		return ""
	}
	return digits[:len(digits)-SuffixDigits]
}
