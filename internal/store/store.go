// Package store persists reconstructed ledger records.
//
// Backends receive one flat record at a time. InsertAll validates every
// record before submitting it, attempts all of them and collects the
// per-record failures instead of stopping at the first one.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"formledger/internal/ledger"
)

// DefaultTable is the table (or worksheet) records are written to.
const DefaultTable = "registros"

// Record is the flat shape handed to every backend.
type Record struct {
	ID             string `json:"id"`
	DocumentNumber string `json:"document_number"`
	Time           string `json:"time"`
	Status         string `json:"status"`
}

// FromCandidate flattens a reconstructed record.
func FromCandidate(rec ledger.CandidateRecord) Record {
	return Record{
		ID:             rec.Identifier,
		DocumentNumber: rec.DocumentNumber,
		Time:           rec.Time,
		Status:         rec.Status.String(),
	}
}

// FromOrdered flattens ordered records, keeping their order.
func FromOrdered(records []ledger.OrderedRecord) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, FromCandidate(rec.CandidateRecord))
	}
	return out
}

// Label is the identifier followed by the document number.
func (r Record) Label() string {
	return r.ID + r.DocumentNumber
}

// Store is a persistence backend.
type Store interface {
	// Insert writes one record. It does not validate: a missing field is
	// left for the backend to reject.
	Insert(ctx context.Context, rec Record) error

	Close() error
}

// Validate reports the first empty field of rec.
func Validate(rec Record) error {
	fields := []struct {
		name  string
		value string
	}{
		{"id", rec.ID},
		{"document_number", rec.DocumentNumber},
		{"time", rec.Time},
		{"status", rec.Status},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return NewStoreError("Validate", ErrMissingField, f.name)
		}
	}
	return nil
}

// Failure is one record that could not be stored.
type Failure struct {
	Record Record
	Err    error
}

// Message is the human-readable form of the failure.
func (f Failure) Message() string {
	return fmt.Sprintf("%s %s: %v", f.Record.Label(), f.Record.Time, f.Err)
}

// Outcome summarizes an InsertAll call.
type Outcome struct {
	Attempted int
	Inserted  int
	Failures  []Failure
}

// Messages returns the failure messages in insertion order.
func (o Outcome) Messages() []string {
	msgs := make([]string, 0, len(o.Failures))
	for _, f := range o.Failures {
		msgs = append(msgs, f.Message())
	}
	return msgs
}

// InsertAll validates and inserts every record, continuing past failures.
// Invalid records count as attempted but are never submitted.
func InsertAll(ctx context.Context, s Store, records []Record) Outcome {
	var out Outcome
	for _, rec := range records {
		out.Attempted++
		if err := Validate(rec); err != nil {
			out.Failures = append(out.Failures, Failure{Record: rec, Err: err})
			continue
		}
		if err := s.Insert(ctx, rec); err != nil {
			out.Failures = append(out.Failures, Failure{Record: rec, Err: err})
			continue
		}
		out.Inserted++
	}
	return out
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkTable rejects table names that would need quoting.
func checkTable(op, table string) error {
	if !tableName.MatchString(table) {
		return NewStoreError(op, ErrInvalidTable, fmt.Sprintf("%q", table))
	}
	return nil
}
