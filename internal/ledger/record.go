package ledger

import (
	"fmt"
	"strings"
)

// DefaultFallbackIdentifier stands in for an identifier that was never read.
const DefaultFallbackIdentifier = "?"

// CandidateRecord is an extracted row with at least a document number and a
// time resolved.
type CandidateRecord struct {
	Identifier     string `json:"identifier"`
	DocumentNumber string `json:"document_number"`
	Time           string `json:"time"`
	Status         Status `json:"status"`

	// Row is the index of the row that completed the record.
	Row int `json:"row"`
}

// Label is the identifier followed by the document number, e.g. "A1234567".
func (r CandidateRecord) Label() string {
	return r.Identifier + r.DocumentNumber
}

// ParsingContext is the state carried from one row to the next. It is a plain
// value: Extractor.ParseRow returns the updated copy and never mutates its
// argument.
type ParsingContext struct {
	LastIdentifier string
	LastPrefix     string
	LastDocument   string
	LastTime       string
	LastStatus     Status

	// Rows is the number of rows consumed so far.
	Rows int
}

// NewParsingContext returns the context a document starts with.
func NewParsingContext(prefix string) ParsingContext {
	return ParsingContext{LastPrefix: prefix}
}

// fallbackIdentifier formats the configured fallback. A "%d" verb is replaced
// by the 1-based row ordinal.
func fallbackIdentifier(format string, ordinal int) string {
	if format == "" {
		format = DefaultFallbackIdentifier
	}
	if strings.Contains(format, "%d") {
		return fmt.Sprintf(format, ordinal)
	}
	return format
}
