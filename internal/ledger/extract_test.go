package ledger

import (
	"testing"
)

func records(t *testing.T, rows []Row, prefix string) []CandidateRecord {
	t.Helper()
	return NewExtractor(DefaultOptions()).Extract(rows, prefix)
}

func assertRecord(t *testing.T, got CandidateRecord, id, doc, hm string, status Status) {
	t.Helper()
	if got.Identifier != id || got.DocumentNumber != doc || got.Time != hm || got.Status != status {
		t.Errorf("record = {%s %s %s %v}, want {%s %s %s %v}",
			got.Identifier, got.DocumentNumber, got.Time, got.Status, id, doc, hm, status)
	}
}

func TestParseRowRepeatMarkerCarriesIdentifier(t *testing.T) {
	ext := NewExtractor(DefaultOptions())

	_, ctx := ext.ParseRow(NewParsingContext(""), rowOf("A", "1682415", "14:00", "✓"))
	if ctx.LastIdentifier != "A" || ctx.LastPrefix != "168" {
		t.Fatalf("context = %+v, want identifier A and prefix 168", ctx)
	}

	res, next := ext.ParseRow(ctx, rowOf(`"`))
	if res.Identifier != "A" {
		t.Errorf("Identifier = %q, want A", res.Identifier)
	}
	if res.State != AwaitDocument {
		t.Errorf("State = %v, want %v", res.State, AwaitDocument)
	}
	if _, ok := res.Record(); ok {
		t.Error("a row with only a ditto mark must not yield a record")
	}
	if next.LastPrefix != "168" {
		t.Errorf("LastPrefix = %q, want 168", next.LastPrefix)
	}
}

func TestParseRowRepeatMarkerWithoutHistory(t *testing.T) {
	ext := NewExtractor(Options{FallbackIdentifier: "N/A"})
	res, _ := ext.ParseRow(NewParsingContext(""), rowOf("〃"))
	if res.Identifier != "N/A" {
		t.Errorf("Identifier = %q, want N/A", res.Identifier)
	}

	ordinal := NewExtractor(Options{FallbackIdentifier: "#%d"})
	ctx := NewParsingContext("")
	_, ctx = ordinal.ParseRow(ctx, rowOf("noise"))
	res, _ = ordinal.ParseRow(ctx, rowOf("2415", "10:00"))
	if res.Identifier != "#2" {
		t.Errorf("Identifier = %q, want #2", res.Identifier)
	}
}

func TestParseRowDoesNotMutateContext(t *testing.T) {
	ext := NewExtractor(DefaultOptions())
	ctx := NewParsingContext("168")
	_, _ = ext.ParseRow(ctx, rowOf("B", "1705001", "10:00"))
	if ctx.LastPrefix != "168" || ctx.LastIdentifier != "" || ctx.Rows != 0 {
		t.Errorf("ParseRow mutated its argument: %+v", ctx)
	}
}

func TestExtractShorthandLedger(t *testing.T) {
	rows := []Row{
		rowOf("A", "1682415", "21:40", "✓"),
		rowOf(`"`, "2416", "22:05", "x"),
		rowOf("B", "2417", "0:15", "si"),
		rowOf("C", "2418", "23:50", "?"),
	}

	got := records(t, rows, "")
	if len(got) != 4 {
		t.Fatalf("got %d records, want 4: %+v", len(got), got)
	}
	assertRecord(t, got[0], "A", "1682415", "21:40", StatusCompleted)
	assertRecord(t, got[1], "A", "1682416", "22:05", StatusPending)
	assertRecord(t, got[2], "B", "1682417", "00:15", StatusCompleted)
	assertRecord(t, got[3], "C", "1682418", "23:50", StatusUnknown)
}

func TestExtractUndelimitedTime(t *testing.T) {
	got := records(t, []Row{rowOf("D", "1682419", "2235", "ok")}, "")
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	assertRecord(t, got[0], "D", "1682419", "22:35", StatusCompleted)
}

func TestExtractMultiPrefixDocument(t *testing.T) {
	rows := []Row{
		rowOf("A", "1682415", "10:00", "ok"),
		rowOf("B", "2416", "10:30", "ok"),
		rowOf("C", "1705001", "11:00", "ok"),
		rowOf("D", "5002", "12:00", "ok"),
	}

	got := records(t, rows, "")
	if len(got) != 4 {
		t.Fatalf("got %d records, want 4", len(got))
	}
	assertRecord(t, got[1], "B", "1682416", "10:30", StatusCompleted)
	assertRecord(t, got[3], "D", "1705002", "12:00", StatusCompleted)
}

func TestExtractManualPrefix(t *testing.T) {
	got := records(t, []Row{rowOf("A", "1234", "10:00")}, "999")
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	assertRecord(t, got[0], "A", "9991234", "10:00", StatusUnknown)
}

func TestExtractPartialNumbers(t *testing.T) {
	rows := []Row{
		rowOf("A", "16824", "10:00"),
		rowOf("B", "24150", "10:05"),
	}
	got := records(t, rows, "168")
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].DocumentNumber != "16824" {
		t.Errorf("DocumentNumber = %q, want 16824", got[0].DocumentNumber)
	}
	if got[1].DocumentNumber != "16824150" {
		t.Errorf("DocumentNumber = %q, want 16824150", got[1].DocumentNumber)
	}
}

func TestExtractShortNumberWithoutPrefix(t *testing.T) {
	got := records(t, []Row{rowOf("A", "2415", "10:00")}, "")
	if len(got) != 1 || got[0].DocumentNumber != "2415" {
		t.Fatalf("records = %+v, want document 2415", got)
	}
}

func TestExtractNeverEmitsIncompleteRecords(t *testing.T) {
	rows := []Row{
		rowOf("A", "1682415"),
		rowOf("B", "2416", "garbage"),
		rowOf("✓", "10:00"),
		rowOf("lorem", "ipsum"),
		rowOf(),
	}
	got := records(t, rows, "")
	for _, rec := range got {
		if rec.DocumentNumber == "" || rec.Time == "" {
			t.Errorf("incomplete record emitted: %+v", rec)
		}
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0: %+v", len(got), got)
	}
}

func TestExtractStatusDefaultsToUnknown(t *testing.T) {
	got := records(t, []Row{rowOf("A", "1682415", "10:00")}, "")
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].Status != StatusUnknown {
		t.Errorf("Status = %v, want unknown", got[0].Status)
	}
}

func TestExtractOvernightNotation(t *testing.T) {
	got := records(t, []Row{rowOf("A", "1682415", "25:10", "ok")}, "")
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	assertRecord(t, got[0], "A", "1682415", "01:10", StatusCompleted)
}

func TestExtractTaggedNumber(t *testing.T) {
	got := records(t, []Row{rowOf("a1682415", "10:00", "✓")}, "")
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	assertRecord(t, got[0], "A", "1682415", "10:00", StatusCompleted)
}

func TestExtractRepeatTimeAndStatus(t *testing.T) {
	rows := []Row{
		rowOf("A", "1682415", "10:00", "✓"),
		rowOf(`"`, "2416", `"`, `"`),
	}
	got := records(t, rows, "")
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	assertRecord(t, got[1], "A", "1682416", "10:00", StatusCompleted)
}

func TestExtractRecordSpanningRows(t *testing.T) {
	tests := []struct {
		name string
		rows []Row
	}{
		{"delimited time", []Row{rowOf("A", "1234567"), rowOf("02:35", "✓")}},
		{"undelimited time", []Row{rowOf("A", "1234567"), rowOf("0235", "✓")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := records(t, tt.rows, "")
			if len(got) != 1 {
				t.Fatalf("got %d records, want 1", len(got))
			}
			assertRecord(t, got[0], "A", "1234567", "02:35", StatusCompleted)
			if got[0].Row != 1 {
				t.Errorf("Row = %d, want 1", got[0].Row)
			}
		})
	}
}

func TestExtractDittoDocumentNumber(t *testing.T) {
	rows := []Row{
		rowOf("A", "1682415", "10:00", "✓"),
		rowOf(`"`, `"`, "10:30", "✓"),
		rowOf(`"`, `"`, "2417", "11:00", "x"),
	}
	got := records(t, rows, "")
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	assertRecord(t, got[1], "A", "1682415", "10:30", StatusCompleted)
	assertRecord(t, got[2], "A", "1682417", "11:00", StatusPending)
}

func TestExtractStatusLetterInIdentifierColumn(t *testing.T) {
	// "x" opens the row, so it is read as an identifier, not a status.
	got := records(t, []Row{rowOf("x", "1682415", "10:00", "x")}, "")
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	assertRecord(t, got[0], "X", "1682415", "10:00", StatusPending)
}
