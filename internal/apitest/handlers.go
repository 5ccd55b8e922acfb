package apitest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

const maxUpload = 10 << 20

func validationDetail(field, msg string) map[string]any {
	return map[string]any{"detail": []map[string]any{{"loc": []string{"body", field}, "msg": msg}}}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid upload: " + err.Error(), "code": "invalid_format"})
		return
	}

	bank := model.Bank(r.FormValue("bank"))
	if !bank.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, validationDetail("bank", "Input should be 'BNP', 'Boursorama' or 'Revolut'"))
		return
	}
	p, err := period.Parse(r.FormValue("period_month"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, validationDetail("period_month", "Invalid period, expected YYYY-MM"))
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, validationDetail("file", "Field required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unreadable file", "code": "invalid_format"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.uploadFailures[bank]; ok {
		writeFailure(w, f)
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation error",
			"details": map[string]string{"file": "File is empty"},
			"code":    "empty_file",
		})
		return
	}

	digest := sha256.Sum256(data)
	sum := hex.EncodeToString(digest[:])
	batch := model.ImportBatch{
		Bank:       bank,
		Period:     p,
		FileSHA256: sum,
		SourceFile: hdr.Filename,
	}

	key := string(bank) + "|" + p.String() + "|" + sum
	if s.hashes[key] {
		if s.duplicateAs409 {
			writeJSON(w, http.StatusConflict, map[string]string{"detail": "This file has already been imported"})
			return
		}
		batch.DuplicateDetected = true
		for _, b := range s.batches {
			if b.Bank == bank && b.Period == p && b.FileSHA256 == sum && !b.DuplicateDetected {
				batch.ID = b.ID
				break
			}
		}
		s.batches = append(s.batches, batch)
		writeJSON(w, http.StatusOK, batch)
		return
	}

	s.hashes[key] = true
	batch.ID = uuid.NewString()
	batch.RawRowsImported = countRows(data)
	s.batches = append(s.batches, batch)
	writeJSON(w, http.StatusOK, batch)
}

// countRows counts non-blank lines after the header.
func countRows(data []byte) int {
	n := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return n - 1
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req model.CommitRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Period.IsZero() {
		writeJSON(w, http.StatusUnprocessableEntity, validationDetail("period_month", "Field required"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitFailure != nil {
		writeFailure(w, *s.commitFailure)
		return
	}

	wanted := map[string]bool{}
	for _, a := range req.Accounts {
		wanted[a] = true
	}
	banks := map[string]bool{}
	rows := 0
	for _, b := range s.batches {
		if b.Period != req.Period || b.DuplicateDetected {
			continue
		}
		if len(wanted) > 0 && !wanted[string(b.Bank)] {
			continue
		}
		banks[string(b.Bank)] = true
		rows += b.RawRowsImported
	}
	if len(banks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "No uploaded statements for " + req.Period.String(),
			"code":  "nothing_to_commit",
		})
		return
	}

	processed := make([]string, 0, len(banks))
	for b := range banks {
		processed = append(processed, b)
	}
	sort.Strings(processed)

	s.commits = append(s.commits, req)
	writeJSON(w, http.StatusOK, model.CommitResult{
		Period:              req.Period,
		AccountsProcessed:   processed,
		TransactionsDerived: rows,
		RulesApplied:        rows,
		RollupUpdated:       true,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req model.SummaryRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Month.IsZero() {
		writeJSON(w, http.StatusUnprocessableEntity, validationDetail("month", "Field required"))
		return
	}

	s.mu.Lock()
	delay := s.delays[req.Month]
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	resp, seeded := s.summaries[req.Month]
	if !seeded {
		resp = s.computeLocked(req)
	}
	s.mu.Unlock()

	accounts := req.Accounts
	if accounts == nil {
		accounts = []string{}
	}
	resp.Filters = model.Filters{Month: req.Month, Accounts: accounts}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) matching(month period.Period, accounts []string, excludeTransfers bool) []model.Transaction {
	wanted := map[string]bool{}
	for _, a := range accounts {
		wanted[a] = true
	}
	var out []model.Transaction
	for _, tx := range s.txs {
		if !month.Contains(tx.Timestamp.Time) {
			continue
		}
		if len(wanted) > 0 && !wanted[tx.AccountID] {
			continue
		}
		if excludeTransfers && tx.IsTransfer {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func totals(txs []model.Transaction) (income, expense decimal.Decimal) {
	for _, tx := range txs {
		if tx.Amount.IsPositive() {
			income = income.Add(tx.Amount)
		} else {
			expense = expense.Add(tx.Amount)
		}
	}
	return income, expense
}

// computeLocked aggregates seeded transactions the way the backend does:
// expense negative, savings rate as a ratio, rows sorted by name.
func (s *Server) computeLocked(req model.SummaryRequest) model.PLSummaryResponse {
	exclude := req.ExcludeTransfers == nil || *req.ExcludeTransfers
	txs := s.matching(req.Month, req.Accounts, exclude)

	income, expense := totals(txs)
	net := income.Add(expense)
	prevIncome, prevExpense := totals(s.matching(req.Month.Prev(), req.Accounts, exclude))

	summary := model.PLSummary{
		Month:    req.Month,
		Income:   income,
		Expense:  expense,
		Net:      &net,
		DeltaMoM: net.Sub(prevIncome.Add(prevExpense)),
	}
	if income.IsPositive() {
		rate := net.Div(income).Round(4)
		summary.SavingsRate = &rate
	}

	type bucket struct {
		net  decimal.Decimal
		subs map[string]decimal.Decimal
	}
	buckets := map[string]*bucket{}
	for _, tx := range txs {
		cat := tx.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		b, ok := buckets[cat]
		if !ok {
			b = &bucket{subs: map[string]decimal.Decimal{}}
			buckets[cat] = b
		}
		b.net = b.net.Add(tx.Amount)
		if tx.Subcategory != "" {
			b.subs[tx.Subcategory] = b.subs[tx.Subcategory].Add(tx.Amount)
		}
	}

	rows := make([]model.CategoryRow, 0, len(buckets))
	for cat, b := range buckets {
		row := model.CategoryRow{Category: cat, Net: b.net, Subs: []model.SubcategoryRow{}}
		for name, v := range b.subs {
			row.Subs = append(row.Subs, model.SubcategoryRow{Name: name, Net: v})
		}
		sort.Slice(row.Subs, func(i, j int) bool { return row.Subs[i].Name < row.Subs[j].Name })
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })

	return model.PLSummaryResponse{Summary: summary, Rows: rows}
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	var q model.TransactionQuery
	if !decode(w, r, &q) {
		return
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		writeJSON(w, http.StatusUnprocessableEntity, validationDetail("limit", "Input should be less than or equal to 500"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := map[string]bool{}
	for _, a := range q.Accounts {
		wanted[a] = true
	}
	var hits []model.Transaction
	for _, tx := range s.txs {
		switch {
		case q.Month != nil && !q.Month.Contains(tx.Timestamp.Time):
		case len(wanted) > 0 && !wanted[tx.AccountID]:
		case q.Category != "" && tx.Category != q.Category:
		case q.Subcategory != "" && tx.Subcategory != q.Subcategory:
		case q.Merchant != "" && !strings.Contains(strings.ToLower(tx.Merchant), strings.ToLower(q.Merchant)):
		case q.UncategorizedOnly && tx.Category != "":
		default:
			hits = append(hits, tx)
		}
	}

	page := model.TransactionPage{
		Transactions: []model.Transaction{},
		Total:        len(hits),
		Page:         q.Offset/q.Limit + 1,
		Limit:        q.Limit,
	}
	if q.Offset < len(hits) {
		end := min(q.Offset+q.Limit, len(hits))
		page.Transactions = hits[q.Offset:end]
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleJournalList(w http.ResponseWriter, r *http.Request) {
	var month period.Period
	if m := r.URL.Query().Get("month"); m != "" {
		p, err := period.Parse(m)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "Invalid month"})
			return
		}
		month = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := []model.JournalEntry{}
	for _, e := range s.journal {
		if !month.IsZero() && (e.PeriodEnd.Before(month.Start()) || e.PeriodStart.After(month.End())) {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PeriodStart.After(entries[j].PeriodStart.Time)
	})
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleJournalCreate(w http.ResponseWriter, r *http.Request) {
	var in model.JournalCreate
	if !decode(w, r, &in) {
		return
	}
	if in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() {
		writeJSON(w, http.StatusUnprocessableEntity, validationDetail("period_start", "Field required"))
		return
	}
	if in.PeriodEnd.Before(in.PeriodStart.Time) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "period_end must not be before period_start"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := model.Timestamp{Time: s.now().UTC().Truncate(time.Second)}
	e := model.JournalEntry{
		ID:             uuid.NewString(),
		PeriodStart:    in.PeriodStart,
		PeriodEnd:      in.PeriodEnd,
		ObservationsMD: withSnapshot(in.ObservationsMD, in.PeriodStart, in.PeriodEnd),
		DecisionsMD:    in.DecisionsMD,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.journal[e.ID] = e
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) entry(w http.ResponseWriter, r *http.Request) (model.JournalEntry, bool) {
	e, ok := s.journal[mux.Vars(r)["id"]]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Journal entry not found"})
	}
	return e, ok
}

func (s *Server) handleJournalGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entry(w, r); ok {
		writeJSON(w, http.StatusOK, e)
	}
}

func (s *Server) handleJournalDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	delete(s.journal, e.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Journal entry %s deleted successfully", e.ID)})
}

func (s *Server) handleJournalUpdate(w http.ResponseWriter, r *http.Request) {
	var in model.JournalUpdate
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	if in.ObservationsMD != nil {
		e.ObservationsMD = withSnapshot(*in.ObservationsMD, e.PeriodStart, e.PeriodEnd)
	}
	if in.DecisionsMD != nil {
		e.DecisionsMD = *in.DecisionsMD
	}
	e.UpdatedAt = model.Timestamp{Time: s.now().UTC().Truncate(time.Second)}
	s.journal[e.ID] = e
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleJournalExport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	fmt.Fprintf(w, "# Review %s to %s\n\n## Observations\n\n%s\n\n## Decisions\n\n%s\n",
		e.PeriodStart, e.PeriodEnd, e.ObservationsMD, e.DecisionsMD)
}

// SnapshotHeading starts the generated section appended to observations.
const SnapshotHeading = "## Metrics Snapshot"

// withSnapshot drops any existing snapshot from md and appends a fresh one.
func withSnapshot(md string, start, end model.Date) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == SnapshotHeading {
			lines = lines[:i]
			break
		}
	}
	user := strings.TrimSpace(strings.Join(lines, "\n"))
	snap := fmt.Sprintf("%s\n\n**Period:** %s to %s", SnapshotHeading, start, end)
	return strings.TrimSpace(user + "\n\n" + snap)
}
