package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

// ListJournal returns the entries overlapping month, or all entries when
// month is zero.
func (c *Client) ListJournal(ctx context.Context, month period.Period) ([]model.JournalEntry, error) {
	var q url.Values
	if !month.IsZero() {
		q = url.Values{"month": {month.String()}}
	}
	var entries []model.JournalEntry
	err := c.doJSON(ctx, http.MethodGet, "/api/journal", q, nil, &entries, true)
	return entries, err
}

func (c *Client) CreateJournal(ctx context.Context, in model.JournalCreate) (model.JournalEntry, error) {
	var e model.JournalEntry
	err := c.doJSON(ctx, http.MethodPost, "/api/journal", nil, in, &e, true)
	return e, err
}

func (c *Client) GetJournal(ctx context.Context, id string) (model.JournalEntry, error) {
	if id == "" {
		return model.JournalEntry{}, errors.New("entry id is required")
	}
	var e model.JournalEntry
	err := c.doJSON(ctx, http.MethodGet, "/api/journal/"+url.PathEscape(id), nil, nil, &e, true)
	return e, err
}

func (c *Client) UpdateJournal(ctx context.Context, id string, in model.JournalUpdate) (model.JournalEntry, error) {
	if id == "" {
		return model.JournalEntry{}, errors.New("entry id is required")
	}
	var e model.JournalEntry
	err := c.doJSON(ctx, http.MethodPatch, "/api/journal/"+url.PathEscape(id), nil, in, &e, true)
	return e, err
}

// DeleteJournal removes an entry. A missing entry is a KindNotFound error.
func (c *Client) DeleteJournal(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("entry id is required")
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/journal/"+url.PathEscape(id), nil, nil, nil, true)
}

// ExportJournal returns an entry rendered as markdown by the server.
func (c *Client) ExportJournal(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", errors.New("entry id is required")
	}
	body, err := c.send(ctx, request{
		method: http.MethodGet,
		path:   "/api/journal/" + url.PathEscape(id) + "/export",
		auth:   true,
	})
	return string(body), err
}
