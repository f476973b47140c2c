package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoRows is returned when no token could be positioned into a row.
	ErrNoRows = errors.New("no rows could be grouped from the detected tokens")

	// ErrNoRecords is returned when rows were found but none yielded a record.
	ErrNoRecords = errors.New("no record with both document number and time was found")
)

// SampleSize is how many raw token texts a ShortfallError carries.
const SampleSize = 10

// Options tunes reconstruction. Zero values take the package defaults.
type Options struct {
	// ManualPrefix overrides prefix detection when set.
	ManualPrefix string

	// FallbackIdentifier replaces an identifier that was never read. A "%d"
	// verb is formatted with the row ordinal.
	FallbackIdentifier string

	RowTolerance float64
	PrefixWindow int

	// Hours is the normalizer used for time cells.
	Hours HourNormalizer
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		FallbackIdentifier: DefaultFallbackIdentifier,
		RowTolerance:       DefaultRowTolerance,
		PrefixWindow:       DefaultPrefixWindow,
		Hours:              OvernightHours,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.FallbackIdentifier == "" {
		o.FallbackIdentifier = def.FallbackIdentifier
	}
	if o.RowTolerance <= 0 {
		o.RowTolerance = def.RowTolerance
	}
	if o.PrefixWindow <= 0 {
		o.PrefixWindow = def.PrefixWindow
	}
	if o.Hours.MaxHour == 0 {
		o.Hours = def.Hours
	}
	if o.Hours.Substitutions == nil {
		o.Hours.Substitutions = DefaultCharSubstitutions
	}
	if o.Hours.Separators == nil {
		o.Hours.Separators = DefaultSeparatorVariants
	}
	return o
}

// Reconstruction is everything the core produced for one document.
type Reconstruction struct {
	Rows       []Row
	Candidates []CandidateRecord
	Records    []OrderedRecord
	Table      string
}

// ShortfallError reports a document that produced no usable output, with a
// sample of what the OCR engine did detect.
type ShortfallError struct {
	Err    error
	Tokens int
	Rows   int
	Sample []string
}

func (e *ShortfallError) Error() string {
	if len(e.Sample) == 0 {
		return fmt.Sprintf("%v (tokens: %d, rows: %d)", e.Err, e.Tokens, e.Rows)
	}
	return fmt.Sprintf("%v (tokens: %d, rows: %d, sample: %s)",
		e.Err, e.Tokens, e.Rows, strings.Join(e.Sample, ", "))
}

func (e *ShortfallError) Unwrap() error {
	return e.Err
}

// Reconstruct runs grouping, extraction and ordering over one document's
// tokens. It fails only with a *ShortfallError wrapping ErrNoRows or
// ErrNoRecords.
func Reconstruct(tokens []RawToken, opts Options) (*Reconstruction, error) {
	opts = opts.withDefaults()

	rows := GroupRowsWithTolerance(tokens, opts.RowTolerance)
	if len(rows) == 0 {
		return nil, &ShortfallError{Err: ErrNoRows, Tokens: len(tokens), Sample: sampleTexts(tokens)}
	}

	candidates := NewExtractor(opts).Extract(rows, opts.ManualPrefix)
	if len(candidates) == 0 {
		return nil, &ShortfallError{Err: ErrNoRecords, Tokens: len(tokens), Rows: len(rows), Sample: sampleTexts(tokens)}
	}

	ordered, table := OrderAndRender(candidates)
	return &Reconstruction{
		Rows:       rows,
		Candidates: candidates,
		Records:    ordered,
		Table:      table,
	}, nil
}

func sampleTexts(tokens []RawToken) []string {
	var sample []string
	for _, t := range tokens {
		if len(sample) == SampleSize {
			break
		}
		if text := strings.TrimSpace(t.Text); text != "" {
			sample = append(sample, text)
		}
	}
	return sample
}
