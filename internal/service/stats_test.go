package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-reservation/internal/model"
)

func TestEventAndOrganizerStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	rival := env.user(t, model.RoleOrganizer)
	client := env.user(t, model.RoleClient)
	ev := env.publishedEvent(t, org, eventOpts{capacity: 20, price: 100})
	other := env.publishedEvent(t, rival, eventOpts{capacity: 20, price: 999})

	a, err := env.reservations.Create(ctx, client.ID, ev.ID, 4, "")
	require.NoError(t, err)
	_, err = env.reservations.Confirm(ctx, a.ID)
	require.NoError(t, err)
	b, err := env.reservations.Create(ctx, client.ID, ev.ID, 1, "")
	require.NoError(t, err)
	_, err = env.reservations.Cancel(ctx, b.ID, client.ID)
	require.NoError(t, err)
	_, err = env.reservations.Create(ctx, client.ID, ev.ID, 1, "")
	require.NoError(t, err)
	c, err := env.reservations.Create(ctx, client.ID, other.ID, 1, "")
	require.NoError(t, err)
	_, err = env.reservations.Confirm(ctx, c.ID)
	require.NoError(t, err)

	_, err = env.stats.EventStats(ctx, ev.ID, rival.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	st, err := env.stats.EventStats(ctx, ev.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Reservations)
	assert.Equal(t, 5, st.ReservedSeats)
	assert.Equal(t, 15, st.AvailableSeats)
	assert.InDelta(t, 25.0, st.FillRate, 0.001)
	assert.Equal(t, int64(400), st.RevenueCents)
	assert.Equal(t, map[model.ReservationStatus]int64{
		model.ReservationPending:   1,
		model.ReservationConfirmed: 1,
		model.ReservationCancelled: 1,
	}, st.ByStatus)

	orgStats, err := env.stats.OrganizerStats(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), orgStats.Events)
	assert.Equal(t, int64(1), orgStats.EventsByStatus[model.EventPublished])
	assert.Equal(t, int64(3), orgStats.Reservations)
	assert.Equal(t, int64(400), orgStats.RevenueCents)

	revenue, err := env.stats.OrganizerRevenue(ctx, rival.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(999), revenue)

	total, err := env.stats.TotalRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1399), total)

	monthly, err := env.stats.MonthlyRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1399), monthly)

	env.clock.Advance(31 * 24 * time.Hour)
	monthly, err = env.stats.MonthlyRevenue(ctx)
	require.NoError(t, err)
	assert.Zero(t, monthly)
}

func TestGlobalStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	env.user(t, model.RoleAdmin)
	client := env.user(t, model.RoleClient)
	ev := env.publishedEvent(t, org, eventOpts{capacity: 20, price: 10})
	env.draftEvent(t, org, eventOpts{capacity: 5})

	empty, err := env.stats.ConversionRate(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty)

	for i := 0; i < 4; i++ {
		res, err := env.reservations.Create(ctx, client.ID, ev.ID, 1, "")
		require.NoError(t, err)
		if i < 3 {
			_, err = env.reservations.Confirm(ctx, res.ID)
			require.NoError(t, err)
		}
	}

	rate, err := env.stats.ConversionRate(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, rate, 0.001)

	g, err := env.stats.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), g.Reservations)
	assert.Equal(t, int64(30), g.RevenueCents)
	assert.Equal(t, int64(1), g.EventsByStatus[model.EventPublished])
	assert.Equal(t, int64(1), g.EventsByStatus[model.EventDraft])
	assert.Equal(t, int64(1), g.UsersByRole[model.RoleAdmin])
	assert.Equal(t, int64(1), g.UsersByRole[model.RoleClient])

	recent, err := env.stats.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestConfirmedByMonth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	client := env.user(t, model.RoleClient)
	ev := env.publishedEvent(t, org, eventOpts{capacity: 50, startsIn: 200 * 24 * time.Hour})

	book := func(confirm bool) {
		t.Helper()
		res, err := env.reservations.Create(ctx, client.ID, ev.ID, 1, "")
		require.NoError(t, err)
		if confirm {
			_, err = env.reservations.Confirm(ctx, res.ID)
			require.NoError(t, err)
		}
	}

	book(true)
	env.clock.Set(time.Date(2026, time.August, 15, 9, 0, 0, 0, time.UTC))
	book(true)
	book(true)
	book(false)

	months, err := env.stats.ConfirmedByMonth(ctx, 2026)
	require.NoError(t, err)
	var want [12]int64
	want[time.June-1] = 1
	want[time.August-1] = 2
	assert.Equal(t, want, months)

	months, err = env.stats.ConfirmedByMonth(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, [12]int64{}, months)

	_, err = env.stats.ConfirmedByMonth(ctx, 0)
	assert.ErrorIs(t, err, ErrBadRequest)
}
