package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"

	"formledger/internal/logger"
	"formledger/internal/store"
)

// DefaultWorksheet is the worksheet records are appended to.
const DefaultWorksheet = "Registros"

// Headers is the first row of the worksheet.
var Headers = []string{"id", "document_number", "time", "status", "recorded_at"}

// Store appends ledger records to a worksheet. The sheet has no constraints
// of its own, so the store enforces the same ones as the SQL backends: every
// column is required and (document_number, time) is unique.
type Store struct {
	svc       *Service
	worksheet string
	now       func() time.Time
	log       zerolog.Logger

	mu     sync.Mutex
	loaded bool
	keys   map[string]bool
}

// NewStore connects to the spreadsheet at sheetURL.
func NewStore(ctx context.Context, sheetURL, worksheet string) (*Store, error) {
	svc, err := NewSheetsService(ctx, sheetURL)
	if err != nil {
		return nil, store.WrapStoreError("NewStore", store.ErrConnectivity, err.Error())
	}
	return NewStoreWithService(svc, worksheet), nil
}

// NewStoreWithService creates a store over an existing service.
func NewStoreWithService(svc *Service, worksheet string) *Store {
	if worksheet == "" {
		worksheet = DefaultWorksheet
	}
	return &Store{
		svc:       svc,
		worksheet: worksheet,
		now:       time.Now,
		log:       logger.WithComponent("sheets-store"),
		keys:      make(map[string]bool),
	}
}

// Insert appends one record.
func (s *Store) Insert(ctx context.Context, rec store.Record) error {
	const op = "Insert"

	for i, v := range []string{rec.ID, rec.DocumentNumber, rec.Time, rec.Status} {
		if v == "" {
			return store.NewStoreError(op, store.ErrNullConstraint, Headers[i])
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return store.WrapStoreError(op, classify(err), "load worksheet")
	}

	key := recordKey(rec.DocumentNumber, rec.Time)
	if s.keys[key] {
		return store.NewStoreError(op, store.ErrDuplicate, rec.Label())
	}

	row := []interface{}{rec.ID, rec.DocumentNumber, rec.Time, rec.Status, s.now().Format("02.01.2006 15:04:05")}
	if err := s.svc.AppendRows(ctx, s.worksheet, [][]interface{}{row}); err != nil {
		return store.WrapStoreError(op, classify(err), rec.Label())
	}
	s.keys[key] = true

	s.log.Debug().
		Str("document_number", rec.DocumentNumber).
		Str("time", rec.Time).
		Msg("Record appended")
	return nil
}

// load prepares the worksheet and reads the keys already present. It runs
// once per store.
func (s *Store) load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	if err := s.svc.EnsureSheetWithHeaders(ctx, s.worksheet, Headers); err != nil {
		return err
	}

	values, err := s.svc.ReadRange(ctx, fmt.Sprintf("%s!B2:C", s.worksheet))
	if err != nil {
		return err
	}
	for _, row := range values {
		if len(row) < 2 {
			continue
		}
		s.keys[recordKey(fmt.Sprint(row[0]), fmt.Sprint(row[1]))] = true
	}

	s.log.Info().
		Str("worksheet", s.worksheet).
		Int("existing", len(s.keys)).
		Msg("Loaded worksheet")
	s.loaded = true
	return nil
}

// Close is a no-op; the HTTP client needs no teardown.
func (s *Store) Close() error {
	return nil
}

func recordKey(document, hm string) string {
	return strings.TrimSpace(document) + "|" + strings.TrimSpace(hm)
}

// classify maps API failures to store sentinels. Anything that is not an API
// response is treated as a transport problem.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", store.ErrConnectivity, err)
		default:
			return fmt.Errorf("%w: %v", store.ErrInsertFailed, err)
		}
	}
	return fmt.Errorf("%w: %v", store.ErrConnectivity, err)
}
