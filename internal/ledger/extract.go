package ledger

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"formledger/internal/logger"
)

// ParseState is the position of the row extractor within a record.
type ParseState int

const (
	AwaitIdentifier ParseState = iota
	AwaitDocument
	AwaitTime
	AwaitStatus
	Complete
)

func (s ParseState) String() string {
	switch s {
	case AwaitIdentifier:
		return "await_identifier"
	case AwaitDocument:
		return "await_document"
	case AwaitTime:
		return "await_time"
	case AwaitStatus:
		return "await_status"
	case Complete:
		return "complete"
	default:
		return "invalid"
	}
}

type tokenClass int

const (
	classNoise tokenClass = iota
	classRepeat
	classLetter
	classTagged
	classFullNumber
	classPartialNumber
	classShortNumber
	classTime
	classStatus
)

// classifiedToken is a normalized token with the value its class implies.
type classifiedToken struct {
	class tokenClass
	text  string
	value string
	label string
}

var taggedNumber = regexp.MustCompile(`^([A-Za-z])[-.\s]?(\d{3,})$`)

// action consumes a token and returns the next state.
type action func(b *rowBuilder, tok classifiedToken) ParseState

// transitions is the whole extractor: any (state, class) pair missing from
// the table leaves the state unchanged and drops the token.
var transitions = map[ParseState]map[tokenClass]action{
	AwaitIdentifier: {
		classRepeat:        (*rowBuilder).repeatIdentifier,
		classLetter:        (*rowBuilder).takeIdentifier,
		classTagged:        (*rowBuilder).takeTagged,
		classFullNumber:    (*rowBuilder).takeDocument,
		classPartialNumber: (*rowBuilder).takeDocument,
		classShortNumber:   (*rowBuilder).takeDocument,
		classTime:          (*rowBuilder).takeTime,
		classStatus:        (*rowBuilder).noteStatus,
	},
	AwaitDocument: {
		classRepeat:        (*rowBuilder).repeatPrefix,
		classTagged:        (*rowBuilder).takeTagged,
		classFullNumber:    (*rowBuilder).takeDocument,
		classPartialNumber: (*rowBuilder).takeDocument,
		classShortNumber:   (*rowBuilder).takeDocument,
		classTime:          (*rowBuilder).takeTime,
		classStatus:        (*rowBuilder).noteStatus,
	},
	AwaitTime: {
		classRepeat:        (*rowBuilder).repeatTime,
		classPartialNumber: (*rowBuilder).takeUndelimitedTime,
		classShortNumber:   (*rowBuilder).takeUndelimitedTime,
		classTime:          (*rowBuilder).takeTime,
		classStatus:        (*rowBuilder).noteStatus,
	},
	AwaitStatus: {
		classRepeat: (*rowBuilder).repeatStatus,
		classLetter: (*rowBuilder).takeStatus,
		classStatus: (*rowBuilder).takeStatus,
	},
	Complete: {},
}

// rowBuilder accumulates the fields of one record.
type rowBuilder struct {
	ctx   ParsingContext
	hours HourNormalizer

	state      ParseState
	identifier string
	document   string
	prefix     string
	time       string
	status     Status
	statusSet  bool
}

func newRowBuilder(ctx ParsingContext, hours HourNormalizer) *rowBuilder {
	return &rowBuilder{
		ctx:    ctx,
		hours:  hours,
		state:  AwaitIdentifier,
		prefix: ctx.LastPrefix,
	}
}

func (b *rowBuilder) feed(tok classifiedToken) {
	if act, ok := transitions[b.state][tok.class]; ok {
		b.state = act(b, tok)
	}
}

func (b *rowBuilder) takeIdentifier(tok classifiedToken) ParseState {
	b.identifier = strings.ToUpper(tok.text)
	return AwaitDocument
}

func (b *rowBuilder) repeatIdentifier(classifiedToken) ParseState {
	b.identifier = b.ctx.LastIdentifier
	return AwaitDocument
}

func (b *rowBuilder) takeTagged(tok classifiedToken) ParseState {
	b.identifier = strings.ToUpper(tok.label)
	b.document = b.resolveDocument(tok.value)
	return AwaitTime
}

// repeatPrefix handles a ditto in the document column. It stands for the
// previous document number unless a digit run follows in the same row.
func (b *rowBuilder) repeatPrefix(classifiedToken) ParseState {
	if b.document == "" {
		b.document = b.ctx.LastDocument
	}
	return AwaitDocument
}

func (b *rowBuilder) takeDocument(tok classifiedToken) ParseState {
	b.document = b.resolveDocument(tok.value)
	return AwaitTime
}

// resolveDocument qualifies a digit run with the prefix in force. Full
// numbers replace that prefix for the rest of the document.
func (b *rowBuilder) resolveDocument(digits string) string {
	switch {
	case len(digits) >= FullNumberDigits:
		b.prefix = prefixOf(digits)
		return digits
	case len(digits) >= 5:
		if b.prefix == "" || strings.HasPrefix(digits, b.prefix) {
			return digits
		}
		return b.prefix + digits
	default:
		return b.prefix + digits
	}
}

func (b *rowBuilder) takeTime(tok classifiedToken) ParseState {
	b.time = tok.value
	return AwaitStatus
}

func (b *rowBuilder) takeUndelimitedTime(tok classifiedToken) ParseState {
	if hm, ok := b.readTime(tok.value); ok {
		b.time = hm
		return AwaitStatus
	}
	return b.state
}

// readTime reads a digit run written without separator as a time.
func (b *rowBuilder) readTime(digits string) (string, bool) {
	if hm, ok := b.hours.Normalize(digits); ok {
		return hm, true
	}
	if candidates := b.hours.Candidates(digits); len(candidates) > 0 {
		return candidates[0], true
	}
	return "", false
}

func (b *rowBuilder) repeatTime(classifiedToken) ParseState {
	if b.ctx.LastTime == "" {
		return b.state
	}
	b.time = b.ctx.LastTime
	return AwaitStatus
}

// noteStatus records a status seen before the status column without
// advancing: the record still needs its earlier fields.
func (b *rowBuilder) noteStatus(tok classifiedToken) ParseState {
	b.status = NormalizeStatus(tok.text)
	b.statusSet = true
	return b.state
}

func (b *rowBuilder) takeStatus(tok classifiedToken) ParseState {
	status := NormalizeStatus(tok.text)
	if status == StatusUnknown {
		return b.state
	}
	b.status = status
	b.statusSet = true
	return Complete
}

func (b *rowBuilder) repeatStatus(classifiedToken) ParseState {
	b.status = b.ctx.LastStatus
	b.statusSet = true
	return Complete
}

func (b *rowBuilder) viable() bool {
	return b.document != "" && b.time != ""
}

// continuable reports whether a partial record may take its missing fields
// from the next row.
func (b *rowBuilder) continuable() bool {
	switch b.state {
	case AwaitDocument:
		return b.identifier != ""
	case AwaitTime:
		return b.document != ""
	default:
		return false
	}
}

// accepts reports whether tok continues b rather than starting a new record.
func (b *rowBuilder) accepts(tok classifiedToken) bool {
	switch b.state {
	case AwaitDocument:
		return tok.class == classFullNumber || tok.class == classPartialNumber || tok.class == classShortNumber
	case AwaitTime:
		switch tok.class {
		case classTime:
			return true
		case classShortNumber, classPartialNumber:
			_, ok := b.readTime(tok.value)
			return ok
		}
		return false
	default:
		return false
	}
}

// commit folds the builder's detections into the carried context.
func (b *rowBuilder) commit(ctx ParsingContext) ParsingContext {
	if b.identifier != "" {
		ctx.LastIdentifier = b.identifier
	}
	ctx.LastPrefix = b.prefix
	if b.document != "" {
		ctx.LastDocument = b.document
	}
	if b.time != "" {
		ctx.LastTime = b.time
	}
	if b.statusSet {
		ctx.LastStatus = b.status
	}
	return ctx
}

// RowResult is what a single row resolved to.
type RowResult struct {
	Identifier     string
	DocumentNumber string
	Time           string
	Status         Status
	State          ParseState
}

// Record returns the candidate record for the row when it is viable.
func (r RowResult) Record() (CandidateRecord, bool) {
	if r.DocumentNumber == "" || r.Time == "" {
		return CandidateRecord{}, false
	}
	return CandidateRecord{
		Identifier:     r.Identifier,
		DocumentNumber: r.DocumentNumber,
		Time:           r.Time,
		Status:         r.Status,
	}, true
}

// Extractor turns grouped rows into candidate records.
type Extractor struct {
	opts Options
	log  zerolog.Logger
}

// NewExtractor creates an extractor. Zero-valued options take their defaults.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{
		opts: opts.withDefaults(),
		log:  logger.WithComponent("extractor"),
	}
}

// ParseRow resolves one row on its own, starting from ctx, and returns the
// result together with the context the next row should see.
func (e *Extractor) ParseRow(ctx ParsingContext, row Row) (RowResult, ParsingContext) {
	ctx.Rows++
	b := newRowBuilder(ctx, e.opts.Hours)
	for _, tok := range e.classifyRow(row) {
		b.feed(tok)
	}
	return e.result(b, ctx.Rows), b.commit(ctx)
}

// Extract walks rows top to bottom and returns every viable record. Rows that
// resolve neither a document number nor a time are logged and skipped. The
// prefix starts as manualPrefix, or the detected prefix when that is empty.
func (e *Extractor) Extract(rows []Row, manualPrefix string) []CandidateRecord {
	prefix := strings.TrimSpace(manualPrefix)
	if prefix == "" {
		if detected, ok := DetectPrefix(rows, e.opts.PrefixWindow); ok {
			prefix = detected
			e.log.Debug().Str("prefix", prefix).Msg("Detected document prefix")
		}
	}

	ctx := NewParsingContext(prefix)
	var records []CandidateRecord
	var pending *rowBuilder

	for i, row := range rows {
		ctx.Rows++
		tokens := e.classifyRow(row)

		b := newRowBuilder(ctx, e.opts.Hours)
		if pending != nil {
			if first, ok := firstSignificant(tokens); ok && pending.accepts(first) {
				b = pending
				b.ctx = ctx
			} else {
				e.log.Debug().
					Int("row", i-1).
					Str("state", pending.state.String()).
					Msg("Dropping partial record")
			}
			pending = nil
		}

		for _, tok := range tokens {
			b.feed(tok)
		}
		ctx = b.commit(ctx)

		if b.viable() {
			rec, _ := e.result(b, ctx.Rows).Record()
			rec.Row = i
			records = append(records, rec)
			continue
		}
		if b.continuable() {
			pending = b
			continue
		}
		e.log.Debug().
			Int("row", i).
			Strs("tokens", row.Texts()).
			Str("state", b.state.String()).
			Msg("Row dropped: no document number and time")
	}

	if pending != nil {
		e.log.Debug().
			Int("row", len(rows)-1).
			Str("state", pending.state.String()).
			Msg("Dropping partial record at end of document")
	}

	e.log.Debug().
		Int("rows", len(rows)).
		Int("records", len(records)).
		Msg("Extraction finished")

	return records
}

func (e *Extractor) result(b *rowBuilder, ordinal int) RowResult {
	id := b.identifier
	if id == "" {
		id = fallbackIdentifier(e.opts.FallbackIdentifier, ordinal)
	}
	return RowResult{
		Identifier:     id,
		DocumentNumber: b.document,
		Time:           foldOvernight(b.time),
		Status:         b.status,
		State:          b.state,
	}
}

func (e *Extractor) classifyRow(row Row) []classifiedToken {
	out := make([]classifiedToken, 0, len(row.Tokens))
	for _, tok := range row.Tokens {
		out = append(out, e.classify(tok.Text))
	}
	return out
}

// classify assigns a token its class independently of the row state.
func (e *Extractor) classify(raw string) classifiedToken {
	norm := NormalizeToken(raw)
	text := norm.Text
	switch {
	case text == "":
		return classifiedToken{class: classNoise}
	case norm.Repeat:
		return classifiedToken{class: classRepeat, text: text}
	}

	if r := []rune(text); len(r) == 1 && unicode.IsLetter(r[0]) {
		return classifiedToken{class: classLetter, text: text}
	}
	if m := taggedNumber.FindStringSubmatch(text); m != nil {
		return classifiedToken{class: classTagged, text: text, label: m[1], value: m[2]}
	}

	if compact := strings.Join(strings.Fields(text), ""); isDigits(compact) {
		tok := classifiedToken{text: text, value: compact}
		switch n := len(compact); {
		case n >= FullNumberDigits:
			tok.class = classFullNumber
		case n >= 5:
			tok.class = classPartialNumber
		case n >= 3:
			tok.class = classShortNumber
		default:
			tok.class = classNoise
		}
		return tok
	}

	if isStatusWord(text) {
		return classifiedToken{class: classStatus, text: text}
	}
	if hasDigit(text) {
		if hm, ok := e.opts.Hours.Normalize(text); ok {
			return classifiedToken{class: classTime, text: text, value: hm}
		}
	}
	return classifiedToken{class: classNoise, text: text}
}

func firstSignificant(tokens []classifiedToken) (classifiedToken, bool) {
	for _, tok := range tokens {
		if tok.class != classNoise {
			return tok, true
		}
	}
	return classifiedToken{}, false
}

// foldOvernight maps 24:00-29:59 back onto the clock; ordering restores the
// overnight position through SortKey.
func foldOvernight(hm string) string {
	h, m, ok := parseClock(hm)
	if !ok || h < 24 {
		return hm
	}
	return formatClock(h-24, m)
}
