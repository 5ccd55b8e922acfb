package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/personal-pl/plctl/internal/api"
	"github.com/personal-pl/plctl/internal/logging"
	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

// Uploader is the part of the API client the workflow needs.
type Uploader interface {
	Upload(ctx context.Context, req api.UploadRequest) (model.ImportBatch, error)
	Commit(ctx context.Context, req model.CommitRequest) (model.CommitResult, error)
}

// CardState is the upload state of one bank.
type CardState string

const (
	CardIdle      CardState = "idle"
	CardUploading CardState = "uploading"
	CardUploaded  CardState = "uploaded"
	CardDuplicate CardState = "duplicate"
	CardFailed    CardState = "failed"
)

// Phase is the state of the selected period.
type Phase string

const (
	PhaseSelecting   Phase = "selecting"
	PhaseCommittable Phase = "committable"
	PhaseCommitting  Phase = "committing"
	PhaseCommitted   Phase = "committed"
)

// Card is the upload status of one bank for the selected period.
type Card struct {
	Bank  model.Bank
	State CardState
	File  string
	Batch *model.ImportBatch
	Err   error
}

// Workflow runs the two-phase import for one period at a time: per-bank
// uploads, then a single commit. It is safe for concurrent use.
type Workflow struct {
	client   Uploader
	formats  *Registry
	maxBytes int64
	ledger   *Ledger
	log      *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	period     period.Period
	cards      map[model.Bank]*Card
	committing bool
	committed  *model.CommitResult
}

type WorkflowOption func(*Workflow)

// WithRegistry sets the formats used for preflight checks; nil disables
// header checks.
func WithRegistry(r *Registry) WorkflowOption {
	return func(w *Workflow) { w.formats = r }
}

func WithMaxBytes(n int64) WorkflowOption {
	return func(w *Workflow) {
		if n > 0 {
			w.maxBytes = n
		}
	}
}

// WithLedger records every upload and commit outcome.
func WithLedger(l *Ledger) WorkflowOption {
	return func(w *Workflow) { w.ledger = l }
}

func WithLogger(l *slog.Logger) WorkflowOption {
	return func(w *Workflow) { w.log = logging.For(l, logging.ComponentImport) }
}

// NewWorkflow starts a workflow with p selected.
func NewWorkflow(client Uploader, p period.Period, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		client:   client,
		formats:  DefaultRegistry(),
		maxBytes: DefaultMaxBytes,
		log:      logging.Discard(),
		now:      time.Now,
		period:   p,
		cards:    map[model.Bank]*Card{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Select switches to another period and forgets every card.
func (w *Workflow) Select(p period.Period) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.period = p
	w.cards = map[model.Bank]*Card{}
	w.committed = nil
}

// Resume marks banks as uploaded from ledger entries recorded by an earlier
// process, so a later Commit can pick them up. Entries for other periods,
// and banks that already have a card, are ignored. Returns the number of
// cards restored.
func (w *Workflow) Resume(entries []LedgerEntry) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range Pending(entries, w.period) {
		if _, ok := w.cards[e.Bank]; ok {
			continue
		}
		batch := model.ImportBatch{
			ID:              e.BatchID,
			Bank:            e.Bank,
			Period:          e.Period,
			FileSHA256:      e.SHA256,
			RawRowsImported: e.Rows,
			SourceFile:      e.File,
		}
		w.cards[e.Bank] = &Card{Bank: e.Bank, State: CardUploaded, File: e.File, Batch: &batch}
		n++
	}
	return n
}

// Period returns the selected period.
func (w *Workflow) Period() period.Period {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.period
}

// Phase reports where the selected period stands.
func (w *Workflow) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phaseLocked()
}

func (w *Workflow) phaseLocked() Phase {
	switch {
	case w.committing:
		return PhaseCommitting
	case len(w.readyLocked()) > 0:
		return PhaseCommittable
	case w.committed != nil:
		return PhaseCommitted
	default:
		return PhaseSelecting
	}
}

// Card returns the state of bank's upload.
func (w *Workflow) Card(bank model.Bank) Card {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.cards[bank]; ok {
		return *c
	}
	return Card{Bank: bank, State: CardIdle}
}

// Cards returns one card per supported bank, in display order.
func (w *Workflow) Cards() []Card {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Card, 0, len(model.Banks))
	for _, b := range model.Banks {
		if c, ok := w.cards[b]; ok {
			out = append(out, *c)
		} else {
			out = append(out, Card{Bank: b, State: CardIdle})
		}
	}
	return out
}

// Ready returns the banks with an accepted, non-duplicate upload.
func (w *Workflow) Ready() []model.Bank {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readyLocked()
}

func (w *Workflow) readyLocked() []model.Bank {
	var ready []model.Bank
	for b, c := range w.cards {
		if c.State == CardUploaded {
			ready = append(ready, b)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
	return ready
}

// Committable reports whether Commit would be attempted.
func (w *Workflow) Committable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.committing && len(w.readyLocked()) > 0
}

// Upload checks and sends one statement for bank. A duplicate file returns
// a batch with DuplicateDetected set and a nil error; the bank does not
// join the ready set. Content problems come back as *ValidationFailure.
func (w *Workflow) Upload(ctx context.Context, bank model.Bank, name string, r io.Reader) (model.ImportBatch, error) {
	bank, err := model.ParseBank(string(bank))
	if err != nil {
		return model.ImportBatch{}, err
	}

	w.mu.Lock()
	if c, ok := w.cards[bank]; ok && c.State == CardUploading {
		w.mu.Unlock()
		return model.ImportBatch{}, ErrBusy
	}
	if w.committing {
		w.mu.Unlock()
		return model.ImportBatch{}, ErrBusy
	}
	p := w.period
	var prev *Card
	if c, ok := w.cards[bank]; ok && c.State == CardUploaded {
		saved := *c
		prev = &saved
	}
	card := &Card{Bank: bank, State: CardUploading, File: filepath.Base(name)}
	w.cards[bank] = card
	w.mu.Unlock()

	log := w.log.With(
		slog.String(logging.FieldBank, string(bank)),
		slog.String(logging.FieldPeriod, p.String()),
		slog.String(logging.FieldFile, card.File),
	)

	batch, err := w.upload(ctx, p, bank, name, r)

	w.mu.Lock()
	stale := w.period != p || w.cards[bank] != card
	if !stale {
		switch {
		case prev != nil && (err != nil || batch.DuplicateDetected):
			// The earlier accepted batch is still on the server.
			*card = *prev
			card.Err = err
		case err != nil:
			card.State, card.Err = CardFailed, err
		case batch.DuplicateDetected:
			card.State, card.Batch = CardDuplicate, &batch
		default:
			card.State, card.Batch = CardUploaded, &batch
			w.committed = nil
		}
	}
	w.mu.Unlock()

	switch {
	case err != nil:
		log.Warn("upload failed", slog.String(logging.FieldError, err.Error()))
		w.record(LedgerEntry{Bank: bank, Period: p, File: card.File, Outcome: OutcomeFailed, Detail: err.Error()})
	case batch.DuplicateDetected:
		log.Info("duplicate statement, nothing new imported", slog.String(logging.FieldBatchID, batch.ID))
		w.record(ledgerEntry(batch, OutcomeDuplicate))
	default:
		log.Info("statement uploaded",
			slog.String(logging.FieldBatchID, batch.ID),
			slog.Int("rows", batch.RawRowsImported),
		)
		w.record(ledgerEntry(batch, OutcomeUploaded))
	}
	return batch, err
}

func (w *Workflow) upload(ctx context.Context, p period.Period, bank model.Bank, name string, r io.Reader) (model.ImportBatch, error) {
	if p.IsZero() {
		return model.ImportBatch{}, errors.New("no period selected")
	}
	data, err := io.ReadAll(io.LimitReader(r, w.maxBytes+1))
	if err != nil {
		return model.ImportBatch{}, fmt.Errorf("reading %s: %w", name, err)
	}
	if err := Preflight(w.formats, bank, name, data, w.maxBytes); err != nil {
		return model.ImportBatch{}, err
	}

	batch, err := w.client.Upload(ctx, api.UploadRequest{
		Bank:     bank,
		Period:   p,
		Filename: name,
		Content:  bytes.NewReader(data),
	})
	if err != nil {
		return model.ImportBatch{}, classifyUpload(bank, name, err)
	}
	return batch, nil
}

// classifyUpload turns content rejections into *ValidationFailure. Auth,
// transport and server errors pass through unchanged.
func classifyUpload(bank model.Bank, name string, err error) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Kind {
	case api.KindValidation, api.KindConflict:
	default:
		return err
	}
	return &ValidationFailure{
		Bank:    bank,
		File:    filepath.Base(name),
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Hint:    Hint(bank, apiErr.Code, apiErr.Message),
		Err:     err,
	}
}

// Commit derives transactions for every accepted upload of the selected
// period. Naming accounts limits the commit to those banks. It refuses
// locally when none of them is ready. On success the committed banks leave
// the ready set.
func (w *Workflow) Commit(ctx context.Context, accounts ...string) (model.CommitResult, error) {
	only := map[model.Bank]bool{}
	for _, a := range accounts {
		b, err := model.ParseBank(a)
		if err != nil {
			return model.CommitResult{}, err
		}
		only[b] = true
	}

	w.mu.Lock()
	if w.committing {
		w.mu.Unlock()
		return model.CommitResult{}, ErrBusy
	}
	var ready []model.Bank
	for _, b := range w.readyLocked() {
		if len(only) == 0 || only[b] {
			ready = append(ready, b)
		}
	}
	if len(ready) == 0 {
		w.mu.Unlock()
		return model.CommitResult{}, ErrNothingToCommit
	}
	p := w.period
	w.committing = true
	w.mu.Unlock()

	log := w.log.With(slog.String(logging.FieldPeriod, p.String()))
	log.Info("committing period", slog.Any(logging.FieldAccounts, ready))

	req := model.CommitRequest{Period: p}
	if len(only) > 0 {
		for _, b := range ready {
			req.Accounts = append(req.Accounts, string(b))
		}
	}
	res, err := w.client.Commit(ctx, req)

	w.mu.Lock()
	w.committing = false
	if err == nil && w.period == p {
		for _, b := range ready {
			delete(w.cards, b)
		}
		w.committed = &res
	}
	w.mu.Unlock()

	if err != nil {
		log.Warn("commit failed", slog.String(logging.FieldError, err.Error()))
		w.record(LedgerEntry{Period: p, Outcome: OutcomeFailed, Detail: "commit: " + err.Error()})
		return model.CommitResult{}, commitFailure(p, err)
	}

	log.Info("period committed",
		slog.Int("transactions", res.TransactionsDerived),
		slog.Int("uncategorized", res.UncategorizedCount),
	)
	if len(req.Accounts) == 0 {
		w.record(LedgerEntry{Period: p, Rows: res.TransactionsDerived, Outcome: OutcomeCommitted})
		return res, nil
	}
	detail := "accounts " + strings.Join(req.Accounts, ",")
	for i, b := range ready {
		e := LedgerEntry{Bank: b, Period: p, Outcome: OutcomeCommitted, Detail: detail}
		if i == 0 {
			e.Rows = res.TransactionsDerived
		}
		w.record(e)
	}
	return res, nil
}

func commitFailure(p period.Period, err error) error {
	if api.IsAuth(err) || api.KindOf(err) == api.KindTransport {
		return err
	}
	msg := err.Error()
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	return &CommitFailure{Period: p, Message: msg, Err: err}
}

// LastCommit returns the result of the last successful commit of the
// selected period.
func (w *Workflow) LastCommit() (model.CommitResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.committed == nil {
		return model.CommitResult{}, false
	}
	return *w.committed, true
}

func (w *Workflow) record(e LedgerEntry) {
	if w.ledger == nil {
		return
	}
	e.Timestamp = w.now()
	if err := w.ledger.Append(e); err != nil {
		w.log.Warn("writing import ledger", slog.String(logging.FieldError, err.Error()))
	}
}

func ledgerEntry(b model.ImportBatch, o Outcome) LedgerEntry {
	return LedgerEntry{
		Bank:      b.Bank,
		Period:    b.Period,
		BatchID:   b.ID,
		SHA256:    b.FileSHA256,
		Duplicate: b.DuplicateDetected,
		Rows:      b.RawRowsImported,
		File:      b.SourceFile,
		Outcome:   o,
	}
}
