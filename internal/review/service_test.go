package review

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personal-pl/plctl/internal/api"
	"github.com/personal-pl/plctl/internal/apitest"
	"github.com/personal-pl/plctl/internal/logging"
	"github.com/personal-pl/plctl/internal/period"
	"github.com/personal-pl/plctl/internal/session"
)

func newService(t *testing.T) (*apitest.Server, *Service) {
	t.Helper()
	srv := apitest.New(t)
	srv.AddUser("alice", "alice@example.com", "pw-long-enough")
	sess := session.New(session.NewMemoryStore())
	require.NoError(t, sess.Login(srv.IssueToken("alice")))
	client, err := api.New(srv.URL, sess)
	require.NoError(t, err)
	return srv, NewService(client, logging.Discard())
}

func TestForMonth(t *testing.T) {
	in := ForMonth(period.MustParse("2024-02"), "obs", "dec")
	assert.Equal(t, "2024-02-01", in.PeriodStart.String())
	assert.Equal(t, "2024-02-29", in.PeriodEnd.String())
	assert.Equal(t, "obs", in.ObservationsMD)
	assert.Equal(t, "dec", in.DecisionsMD)
}

func TestService_AddShowList(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	july := period.MustParse("2025-07")

	e, err := svc.Add(ctx, ForMonth(july, "Groceries up.\n\n## Metrics Snapshot\nstale", " Cap at 250. "))
	require.NoError(t, err)
	assert.Equal(t, "Groceries up.", UserContent(e.ObservationsMD))
	assert.Contains(t, Metrics(e.ObservationsMD), "**Period:** 2025-07-01 to 2025-07-31")
	assert.NotContains(t, e.ObservationsMD, "stale")
	assert.Equal(t, "Cap at 250.", e.DecisionsMD)

	got, err := svc.Show(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	list, err := svc.List(ctx, july)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = svc.List(ctx, period.MustParse("2025-08"))
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.List(ctx, period.Period{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_AddInvalidSendsNothing(t *testing.T) {
	srv, svc := newService(t)
	in := ForMonth(period.MustParse("2025-07"), "", "")
	in.PeriodEnd, in.PeriodStart = in.PeriodStart, in.PeriodEnd

	_, err := svc.Add(context.Background(), in)
	var invalid Invalid
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "period_end", invalid[0].Field)
	assert.Zero(t, srv.Count(http.MethodPost, "/api/journal"))
}

func TestService_EditReplacesObservations(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	e, err := svc.Add(ctx, ForMonth(period.MustParse("2025-07"), "Groceries up.", ""))
	require.NoError(t, err)

	// Editing the full text as shown keeps exactly one generated section.
	obs := "Groceries down.\n\n" + Metrics(e.ObservationsMD)
	updated, err := svc.Edit(ctx, e.ID, EditParams{Observations: &obs})
	require.NoError(t, err)
	assert.Equal(t, "Groceries down.", UserContent(updated.ObservationsMD))
	assert.Equal(t, Metrics(e.ObservationsMD), Metrics(updated.ObservationsMD))
}

func TestService_EditAppend(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	e, err := svc.Add(ctx, ForMonth(period.MustParse("2025-07"), "Groceries up.", "Cap at 250."))
	require.NoError(t, err)

	updated, err := svc.Edit(ctx, e.ID, EditParams{AppendObservations: "Rent flat."})
	require.NoError(t, err)
	assert.Equal(t, "Groceries up.\n\nRent flat.", UserContent(updated.ObservationsMD))
	assert.Equal(t, "Cap at 250.", updated.DecisionsMD)
}

func TestService_EditDecisionsOnly(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	e, err := svc.Add(ctx, ForMonth(period.MustParse("2025-07"), "Groceries up.", "Cap at 250."))
	require.NoError(t, err)

	dec := "Cap at 200."
	updated, err := svc.Edit(ctx, e.ID, EditParams{Decisions: &dec})
	require.NoError(t, err)
	assert.Equal(t, "Cap at 200.", updated.DecisionsMD)
	assert.Equal(t, e.ObservationsMD, updated.ObservationsMD)
}

func TestService_EditNothing(t *testing.T) {
	_, svc := newService(t)
	_, err := svc.Edit(context.Background(), "any", EditParams{AppendObservations: "  "})
	var invalid Invalid
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "nothing to change", invalid[0].Description)
}

func TestService_NotFound(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()

	_, err := svc.Show(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, api.KindNotFound, api.KindOf(err))
	assert.Contains(t, err.Error(), "Journal entry not found")

	_, err = svc.Edit(ctx, "missing", EditParams{AppendObservations: "x"})
	assert.Equal(t, api.KindNotFound, api.KindOf(err))

	_, err = svc.Export(ctx, "missing")
	assert.Equal(t, api.KindNotFound, api.KindOf(err))
}

func TestService_Delete(t *testing.T) {
	srv, svc := newService(t)
	ctx := context.Background()
	e, err := svc.Add(ctx, ForMonth(period.MustParse("2025-07"), "Groceries up.", ""))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, e.ID))
	assert.Equal(t, 1, srv.Count(http.MethodDelete, "/api/journal/"+e.ID))

	_, err = svc.Show(ctx, e.ID)
	assert.Equal(t, api.KindNotFound, api.KindOf(err))
	err = svc.Delete(ctx, e.ID)
	assert.Equal(t, api.KindNotFound, api.KindOf(err))

	list, err := svc.List(ctx, period.Period{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_Export(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	e, err := svc.Add(ctx, ForMonth(period.MustParse("2025-07"), "Groceries up.", "Cap at 250."))
	require.NoError(t, err)

	md, err := svc.Export(ctx, e.ID)
	require.NoError(t, err)
	assert.Contains(t, md, "Groceries up.")
	assert.Contains(t, md, "Cap at 250.")
}

func TestService_AuthErrorPassesThrough(t *testing.T) {
	srv, svc := newService(t)
	srv.RevokeAll()

	_, err := svc.List(context.Background(), period.Period{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrUnauthorized))
}
