package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/personal-pl/plctl/internal/logging"
	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

// Backend is the subset of the API client the review log needs.
type Backend interface {
	ListJournal(ctx context.Context, month period.Period) ([]model.JournalEntry, error)
	CreateJournal(ctx context.Context, in model.JournalCreate) (model.JournalEntry, error)
	GetJournal(ctx context.Context, id string) (model.JournalEntry, error)
	UpdateJournal(ctx context.Context, id string, in model.JournalUpdate) (model.JournalEntry, error)
	ExportJournal(ctx context.Context, id string) (string, error)
	DeleteJournal(ctx context.Context, id string) error
}

// Service provides the review log operations on top of the API.
type Service struct {
	backend Backend
	log     *slog.Logger
}

// NewService creates a review Service.
func NewService(backend Backend, log *slog.Logger) *Service {
	return &Service{backend: backend, log: logging.For(log, logging.ComponentReview)}
}

// ForMonth returns a create request covering the whole of p.
func ForMonth(p period.Period, observations, decisions string) model.JournalCreate {
	return model.JournalCreate{
		PeriodStart:    model.Date{Time: p.Start()},
		PeriodEnd:      model.Date{Time: p.End()},
		ObservationsMD: observations,
		DecisionsMD:    decisions,
	}
}

// Add validates and creates an entry. A metrics section pasted into the
// observations is dropped; the server generates its own.
func (s *Service) Add(ctx context.Context, in model.JournalCreate) (model.JournalEntry, error) {
	in.ObservationsMD = UserContent(in.ObservationsMD)
	in.DecisionsMD = strings.TrimSpace(in.DecisionsMD)
	if errs := ValidateCreate(in); len(errs) > 0 {
		return model.JournalEntry{}, Invalid(errs)
	}
	e, err := s.backend.CreateJournal(ctx, in)
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("creating review entry: %w", err)
	}
	s.log.Info("review entry created", "id", e.ID, logging.FieldPeriod, in.PeriodStart.String()+".."+in.PeriodEnd.String())
	return e, nil
}

// List returns the entries overlapping month, newest first. A zero month
// lists everything.
func (s *Service) List(ctx context.Context, month period.Period) ([]model.JournalEntry, error) {
	entries, err := s.backend.ListJournal(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("listing review entries: %w", err)
	}
	return entries, nil
}

// Show fetches a single entry.
func (s *Service) Show(ctx context.Context, id string) (model.JournalEntry, error) {
	e, err := s.backend.GetJournal(ctx, id)
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("fetching review entry %s: %w", id, err)
	}
	return e, nil
}

// EditParams selects what Edit changes. Nil fields are left alone.
// AppendObservations is added below the current user content, and is
// ignored when Observations is set.
type EditParams struct {
	Observations       *string
	Decisions          *string
	AppendObservations string
}

// Edit updates an entry. Observations always go out without a metrics
// section so the server can regenerate it.
func (s *Service) Edit(ctx context.Context, id string, p EditParams) (model.JournalEntry, error) {
	var in model.JournalUpdate

	switch {
	case p.Observations != nil:
		obs := UserContent(*p.Observations)
		in.ObservationsMD = &obs
	case strings.TrimSpace(p.AppendObservations) != "":
		cur, err := s.Show(ctx, id)
		if err != nil {
			return model.JournalEntry{}, err
		}
		obs := strings.TrimSpace(UserContent(cur.ObservationsMD) + "\n\n" + strings.TrimSpace(p.AppendObservations))
		in.ObservationsMD = &obs
	}
	if p.Decisions != nil {
		dec := strings.TrimSpace(*p.Decisions)
		in.DecisionsMD = &dec
	}

	if errs := ValidateUpdate(in); len(errs) > 0 {
		return model.JournalEntry{}, Invalid(errs)
	}
	e, err := s.backend.UpdateJournal(ctx, id, in)
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("updating review entry %s: %w", id, err)
	}
	s.log.Info("review entry updated", "id", id)
	return e, nil
}

// Delete removes an entry.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.backend.DeleteJournal(ctx, id); err != nil {
		return fmt.Errorf("deleting review entry %s: %w", id, err)
	}
	s.log.Info("review entry deleted", "id", id)
	return nil
}

// Export returns the server's markdown rendering of an entry.
func (s *Service) Export(ctx context.Context, id string) (string, error) {
	md, err := s.backend.ExportJournal(ctx, id)
	if err != nil {
		return "", fmt.Errorf("exporting review entry %s: %w", id, err)
	}
	return md, nil
}
