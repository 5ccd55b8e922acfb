package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/personal-pl/plctl/internal/model"
)

// PLSummary fetches totals and category rows for a month. A nil account
// list is sent as [] meaning all accounts.
func (c *Client) PLSummary(ctx context.Context, req model.SummaryRequest) (model.PLSummaryResponse, error) {
	if req.Month.IsZero() {
		return model.PLSummaryResponse{}, errors.New("month is required")
	}
	if req.Accounts == nil {
		req.Accounts = []string{}
	}

	var resp model.PLSummaryResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/pl/summary", nil, req, &resp, true); err != nil {
		return model.PLSummaryResponse{}, err
	}
	if resp.Filters.Accounts == nil {
		resp.Filters.Accounts = []string{}
	}
	return resp, nil
}

// Transactions fetches one page of transactions.
func (c *Client) Transactions(ctx context.Context, q model.TransactionQuery) (model.TransactionPage, error) {
	var page model.TransactionPage
	err := c.doJSON(ctx, http.MethodPost, "/api/tx", nil, q, &page, true)
	return page, err
}
