// Package pl holds the P&L summary view: fenced refreshes, category
// expansion, and presentation of the server's totals.
package pl

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/personal-pl/plctl/internal/logging"
	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

// ErrSuperseded is returned by a refresh whose result was dropped because
// a newer refresh started after it.
var ErrSuperseded = errors.New("superseded by a newer request")

// Fetcher is the part of the API client the view needs.
type Fetcher interface {
	PLSummary(ctx context.Context, req model.SummaryRequest) (model.PLSummaryResponse, error)
}

// Filter selects what the view shows. Empty Accounts means all accounts.
type Filter struct {
	Month            period.Period
	Accounts         []string
	ExcludeTransfers *bool
	CurrencyView     model.CurrencyView
}

func (f Filter) request(month period.Period) model.SummaryRequest {
	accounts := f.Accounts
	if accounts == nil {
		accounts = []string{}
	}
	return model.SummaryRequest{
		Month:            month,
		Accounts:         accounts,
		ExcludeTransfers: f.ExcludeTransfers,
		CurrencyView:     f.CurrencyView,
	}
}

// Result is one accepted refresh.
type Result struct {
	Seq      uint64
	Filter   Filter
	Response model.PLSummaryResponse
	Previous *model.PLSummaryResponse // nil if not fetched or unavailable
}

// View owns the latest accepted summary and the set of expanded
// categories. It is safe for concurrent use.
type View struct {
	client  Fetcher
	log     *slog.Logger
	compare bool

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	current  *Result
	expanded map[string]bool
}

type ViewOption func(*View)

func WithLogger(l *slog.Logger) ViewOption {
	return func(v *View) { v.log = logging.For(l, logging.ComponentPL) }
}

// WithPrevious also fetches the previous month on each refresh, for
// per-category month-over-month direction.
func WithPrevious(on bool) ViewOption {
	return func(v *View) { v.compare = on }
}

func NewView(client Fetcher, opts ...ViewOption) *View {
	v := &View{
		client:   client,
		log:      logging.Discard(),
		expanded: map[string]bool{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Refresh fetches the summary for f. Starting a refresh cancels the one
// in flight; only the latest refresh's result is ever installed, and older
// ones return ErrSuperseded.
func (v *View) Refresh(ctx context.Context, f Filter) (Result, error) {
	if f.Month.IsZero() {
		return Result{}, errors.New("month is required")
	}

	v.mu.Lock()
	v.seq++
	seq := v.seq
	if v.cancel != nil {
		v.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.mu.Unlock()
	defer cancel()

	log := v.log.With(
		slog.Uint64(logging.FieldSeq, seq),
		slog.String(logging.FieldPeriod, f.Month.String()),
		slog.Any(logging.FieldAccounts, f.Accounts),
	)
	log.Debug("refreshing summary")

	var resp model.PLSummaryResponse
	var prev *model.PLSummaryResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resp, err = v.client.PLSummary(gctx, f.request(f.Month))
		return err
	})
	if v.compare {
		g.Go(func() error {
			p, err := v.client.PLSummary(gctx, f.request(f.Month.Prev()))
			if err != nil {
				log.Debug("previous month unavailable", slog.String(logging.FieldError, err.Error()))
				return nil
			}
			prev = &p
			return nil
		})
	}
	err := g.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()

	if seq != v.seq {
		log.Debug("dropping superseded summary")
		return Result{}, ErrSuperseded
	}
	if err != nil {
		return Result{}, err
	}
	if resp.Filters.Month != f.Month || !slices.Equal(resp.Filters.Accounts, f.Accounts) {
		log.Warn("summary filters differ from request",
			slog.String("echo_month", resp.Filters.Month.String()),
			slog.Any("echo_accounts", resp.Filters.Accounts),
		)
	}

	res := Result{Seq: seq, Filter: f, Response: resp, Previous: prev}
	v.current = &res
	return res, nil
}

// Current returns the installed result.
func (v *View) Current() (Result, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return Result{}, false
	}
	return *v.current, true
}

// Toggle flips the expansion of a category and returns its new state. It
// is a no-op returning false for unknown categories and categories without
// subcategories.
func (v *View) Toggle(category string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return false
	}
	row, ok := v.current.Response.Row(category)
	if !ok || len(row.Subs) == 0 {
		return false
	}
	v.expanded[category] = !v.expanded[category]
	return v.expanded[category]
}

// Expanded reports whether category is expanded.
func (v *View) Expanded(category string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expanded[category]
}

// Report shapes the installed result for display.
func (v *View) Report(opts Options) (Report, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return Report{}, false
	}
	opts.Expanded = make(map[string]bool, len(v.expanded))
	for k, on := range v.expanded {
		opts.Expanded[k] = on
	}
	return Shape(v.current.Response, v.current.Previous, opts), true
}
