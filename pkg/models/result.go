package models

import "time"

// Result is what the pipeline reports for one document. It carries no
// geometry or intermediate state.
type Result struct {
	// Source names the document (usually the image path).
	Source string `json:"source,omitempty"`

	// RequestID correlates the result with its log lines.
	RequestID string `json:"request_id,omitempty"`

	Success bool   `json:"success"`
	Summary string `json:"summary"`

	// Table is the rendered ledger; nil when nothing was reconstructed.
	Table *string `json:"table,omitempty"`

	// Processed is the number of reconstructed records.
	Processed *int `json:"processed,omitempty"`

	// Inserted is the number of records the store accepted; nil when
	// persistence was skipped.
	Inserted *int `json:"inserted,omitempty"`

	// Errors are human-readable messages in the order they occurred.
	Errors []string `json:"errors"`

	Duration time.Duration `json:"duration"`
}

// AddError appends a message to the result.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// SetTable sets the rendered table.
func (r *Result) SetTable(table string) {
	r.Table = &table
}

// SetProcessed sets the reconstructed record count.
func (r *Result) SetProcessed(n int) {
	r.Processed = &n
}

// SetInserted sets the stored record count.
func (r *Result) SetInserted(n int) {
	r.Inserted = &n
}
