package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"formledger/internal/store"
)

// fakeSpreadsheet serves the handful of Sheets endpoints the store calls.
type fakeSpreadsheet struct {
	mu           sync.Mutex
	sheetTitle   string
	header       [][]interface{}
	rows         [][]interface{}
	batchUpdates int
	appendStatus int
}

func (f *fakeSpreadsheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		if f.appendStatus != 0 {
			w.WriteHeader(f.appendStatus)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": f.appendStatus, "message": "rejected"},
			})
			return
		}
		var vr sheets.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.rows = append(f.rows, vr.Values...)
		json.NewEncoder(w).Encode(map[string]any{"updates": map[string]any{}})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		f.batchUpdates++
		json.NewEncoder(w).Encode(map[string]any{
			"replies": []any{map[string]any{
				"addSheet": map[string]any{"properties": map[string]any{"sheetId": 9, "title": DefaultWorksheet}},
			}},
		})

	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var vr sheets.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.header = vr.Values
		json.NewEncoder(w).Encode(map[string]any{})

	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		values := f.rows
		if strings.Contains(path, "A1:") {
			values = f.header
		}
		json.NewEncoder(w).Encode(map[string]any{"values": values})

	case r.Method == http.MethodGet:
		sheetList := []any{}
		if f.sheetTitle != "" {
			sheetList = append(sheetList, map[string]any{
				"properties": map[string]any{"sheetId": 7, "title": f.sheetTitle},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet123", "sheets": sheetList})

	default:
		http.NotFound(w, r)
	}
}

func newTestStore(t *testing.T, srv *httptest.Server) *Store {
	t.Helper()
	svc, err := NewSheetsServiceWithOptions(context.Background(),
		"https://docs.google.com/spreadsheets/d/sheet123/edit#gid=0",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("NewSheetsServiceWithOptions() error = %v", err)
	}
	s := NewStoreWithService(svc, "")
	s.now = func() time.Time { return time.Date(2024, 3, 1, 23, 55, 0, 0, time.UTC) }
	return s
}

func TestStoreInsert(t *testing.T) {
	fake := &fakeSpreadsheet{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := newTestStore(t, srv)
	ctx := context.Background()
	rec := store.Record{ID: "A", DocumentNumber: "1682415", Time: "23:50", Status: "completed"}

	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if len(fake.header) != 1 || len(fake.header[0]) != len(Headers) || fake.header[0][0] != "id" {
		t.Errorf("header = %v", fake.header)
	}
	// one batch update to create the sheet, one to format the header
	if fake.batchUpdates != 2 {
		t.Errorf("batchUpdates = %d, want 2", fake.batchUpdates)
	}
	if len(fake.rows) != 1 || fake.rows[0][1] != "1682415" || fake.rows[0][4] != "01.03.2024 23:55:00" {
		t.Errorf("rows = %v", fake.rows)
	}

	err := s.Insert(ctx, rec)
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("second Insert() error = %v, want ErrDuplicate", err)
	}

	err = s.Insert(ctx, store.Record{ID: "A", DocumentNumber: "1682416", Status: "pending"})
	var storeErr *store.StoreError
	if !errors.As(err, &storeErr) || !errors.Is(err, store.ErrNullConstraint) || storeErr.Details != "time" {
		t.Errorf("Insert(no time) error = %v, want ErrNullConstraint on time", err)
	}
	if len(fake.rows) != 1 {
		t.Errorf("rejected records were appended: %v", fake.rows)
	}
}

func TestStoreLoadsExistingKeys(t *testing.T) {
	fake := &fakeSpreadsheet{
		sheetTitle: DefaultWorksheet,
		header:     [][]interface{}{{"id", "document_number", "time", "status", "recorded_at"}},
		rows:       [][]interface{}{{"1682415", "23:50"}, {"short"}},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := newTestStore(t, srv)
	outcome := store.InsertAll(context.Background(), s, []store.Record{
		{ID: "A", DocumentNumber: "1682415", Time: "23:50", Status: "completed"},
		{ID: "A", DocumentNumber: "1682416", Time: "01:10", Status: "pending"},
	})

	if outcome.Inserted != 1 || len(outcome.Failures) != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if !errors.Is(outcome.Failures[0].Err, store.ErrDuplicate) {
		t.Errorf("failure = %v, want ErrDuplicate", outcome.Failures[0].Err)
	}
	if fake.batchUpdates != 0 {
		t.Errorf("batchUpdates = %d, want 0 for an existing sheet with headers", fake.batchUpdates)
	}
}

func TestStoreAppendRejected(t *testing.T) {
	fake := &fakeSpreadsheet{sheetTitle: DefaultWorksheet, appendStatus: http.StatusBadRequest}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := newTestStore(t, srv)
	err := s.Insert(context.Background(), store.Record{ID: "A", DocumentNumber: "1", Time: "10:00", Status: "completed"})
	if !errors.Is(err, store.ErrInsertFailed) {
		t.Errorf("Insert() error = %v, want ErrInsertFailed", err)
	}
}

func TestStoreUnreachable(t *testing.T) {
	srv := httptest.NewServer(&fakeSpreadsheet{})
	s := newTestStore(t, srv)
	srv.Close()

	err := s.Insert(context.Background(), store.Record{ID: "A", DocumentNumber: "1", Time: "10:00", Status: "completed"})
	if !errors.Is(err, store.ErrConnectivity) {
		t.Errorf("Insert() error = %v, want ErrConnectivity", err)
	}
}

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_E/edit#gid=0")
	if err != nil || id != "1AbC-d_E" {
		t.Errorf("extractSpreadsheetID() = %q, %v", id, err)
	}
	if _, err := extractSpreadsheetID("https://example.com/sheet"); err == nil {
		t.Error("extractSpreadsheetID() accepted a non-sheets URL")
	}
}

func TestColumn(t *testing.T) {
	tests := map[int]string{1: "A", 5: "E", 26: "Z", 27: "AA", 52: "AZ", 53: "BA"}
	for n, want := range tests {
		if got := column(n); got != want {
			t.Errorf("column(%d) = %q, want %q", n, got, want)
		}
	}
}
