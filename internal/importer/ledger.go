package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

// Outcome of one ledger entry.
type Outcome string

const (
	OutcomeUploaded  Outcome = "uploaded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
	OutcomeCommitted Outcome = "committed"
)

// LedgerEntry is one row of the import ledger.
type LedgerEntry struct {
	Timestamp time.Time
	Bank      model.Bank // empty for commits
	Period    period.Period
	BatchID   string
	SHA256    string
	Duplicate bool
	Rows      int // raw rows for uploads, derived transactions for commits
	File      string
	Outcome   Outcome
	Detail    string
}

// LedgerHeader is the CSV header of the ledger file.
const LedgerHeader = "timestamp,bank,period,import_batch_id,file_sha256,duplicate,rows,file,outcome,detail"

const (
	ledgerFields = 10
	colTimestamp = 0
	colBank      = 1
	colPeriod    = 2
	colBatchID   = 3
	colSHA256    = 4
	colDuplicate = 5
	colRows      = 6
	colFile      = 7
	colOutcome   = 8
	colDetail    = 9
)

// MarshalLedgerEntry converts an entry to a CSV row.
func MarshalLedgerEntry(e LedgerEntry) []string {
	row := make([]string, ledgerFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colBank] = string(e.Bank)
	row[colPeriod] = e.Period.String()
	row[colBatchID] = e.BatchID
	row[colSHA256] = e.SHA256
	row[colDuplicate] = strconv.FormatBool(e.Duplicate)
	row[colRows] = strconv.Itoa(e.Rows)
	row[colFile] = e.File
	row[colOutcome] = string(e.Outcome)
	row[colDetail] = e.Detail
	return row
}

// UnmarshalLedgerEntry converts a CSV row to an entry.
func UnmarshalLedgerEntry(record []string) (LedgerEntry, error) {
	if len(record) != ledgerFields {
		return LedgerEntry{}, fmt.Errorf("expected %d fields, got %d", ledgerFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	var p period.Period
	if record[colPeriod] != "" {
		if p, err = period.Parse(record[colPeriod]); err != nil {
			return LedgerEntry{}, err
		}
	}
	dup, err := strconv.ParseBool(record[colDuplicate])
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("parsing duplicate %q: %w", record[colDuplicate], err)
	}
	rows, err := strconv.Atoi(record[colRows])
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("parsing rows %q: %w", record[colRows], err)
	}

	return LedgerEntry{
		Timestamp: ts,
		Bank:      model.Bank(record[colBank]),
		Period:    p,
		BatchID:   record[colBatchID],
		SHA256:    record[colSHA256],
		Duplicate: dup,
		Rows:      rows,
		File:      record[colFile],
		Outcome:   Outcome(record[colOutcome]),
		Detail:    record[colDetail],
	}, nil
}

// Ledger is an append-only CSV record of uploads and commits.
type Ledger struct {
	mu   sync.Mutex
	path string
}

func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Path() string { return l.path }

// Append writes entries, creating the file and header if needed.
func (l *Ledger) Append(entries ...LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening import ledger: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(LedgerHeader, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalLedgerEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns every entry. A missing file yields no entries.
func (l *Ledger) Read() ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening import ledger: %w", err)
	}
	defer f.Close()
	return readLedger(f)
}

func readLedger(r io.Reader) ([]LedgerEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = ledgerFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading import ledger CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var entries []LedgerEntry
	for i, rec := range records[1:] {
		e, err := UnmarshalLedgerEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ForPeriod filters entries to one period.
func ForPeriod(entries []LedgerEntry, p period.Period) []LedgerEntry {
	var out []LedgerEntry
	for _, e := range entries {
		if e.Period == p {
			out = append(out, e)
		}
	}
	return out
}

// Pending returns, per bank, the latest upload of p recorded after the last
// commit covering that bank. A commit entry with no bank covers the whole
// period. These batches are staged on the server and waiting for a commit.
func Pending(entries []LedgerEntry, p period.Period) []LedgerEntry {
	byBank := map[model.Bank]LedgerEntry{}
	for _, e := range ForPeriod(entries, p) {
		switch e.Outcome {
		case OutcomeCommitted:
			if e.Bank == "" {
				clear(byBank)
			} else {
				delete(byBank, e.Bank)
			}
		case OutcomeUploaded:
			byBank[e.Bank] = e
		}
	}
	var out []LedgerEntry
	for _, b := range model.Banks {
		if e, ok := byBank[b]; ok {
			out = append(out, e)
		}
	}
	return out
}
