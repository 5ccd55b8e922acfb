// Package transactions lists and exports derived transactions.
package transactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/personal-pl/plctl/internal/model"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Lister is the part of the API client this package needs.
type Lister interface {
	Transactions(ctx context.Context, q model.TransactionQuery) (model.TransactionPage, error)
}

// ErrStop ends Each early without an error.
var ErrStop = errors.New("stop iteration")

func normalize(q model.TransactionQuery) (model.TransactionQuery, error) {
	switch {
	case q.Limit < 0:
		return q, fmt.Errorf("limit must not be negative")
	case q.Limit == 0:
		q.Limit = DefaultPageSize
	case q.Limit > MaxPageSize:
		return q, fmt.Errorf("limit %d exceeds %d", q.Limit, MaxPageSize)
	}
	if q.Offset < 0 {
		return q, fmt.Errorf("offset must not be negative")
	}
	return q, nil
}

// List fetches one page.
func List(ctx context.Context, l Lister, q model.TransactionQuery) (model.TransactionPage, error) {
	q, err := normalize(q)
	if err != nil {
		return model.TransactionPage{}, err
	}
	return l.Transactions(ctx, q)
}

// Each calls fn for every transaction matching q, page by page, starting
// at q.Offset. Returning ErrStop from fn ends the walk cleanly.
func Each(ctx context.Context, l Lister, q model.TransactionQuery, fn func(model.Transaction) error) error {
	q, err := normalize(q)
	if err != nil {
		return err
	}
	for {
		page, err := l.Transactions(ctx, q)
		if err != nil {
			return err
		}
		for _, tx := range page.Transactions {
			if err := fn(tx); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		q.Offset += len(page.Transactions)
		if len(page.Transactions) == 0 || q.Offset >= page.Total {
			return nil
		}
	}
}

// Collect gathers up to max transactions (0 means no cap).
func Collect(ctx context.Context, l Lister, q model.TransactionQuery, max int) ([]model.Transaction, error) {
	var out []model.Transaction
	err := Each(ctx, l, q, func(tx model.Transaction) error {
		out = append(out, tx)
		if max > 0 && len(out) >= max {
			return ErrStop
		}
		return nil
	})
	return out, err
}
