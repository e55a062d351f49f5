package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/queue"
	"github.com/iliyamo/event-reservation/internal/repository"
)

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	client := env.user(t, model.RoleClient)
	start := env.clock.Now().Add(24 * time.Hour)

	valid := EventInput{Title: "Derby", StartsAt: start, EndsAt: start.Add(2 * time.Hour), Capacity: 100}

	_, err := env.events.Create(ctx, client.ID, valid)
	assert.ErrorIs(t, err, ErrForbidden)

	cases := map[string]func(in *EventInput){
		"missing title":     func(in *EventInput) { in.Title = "  " },
		"end before start":  func(in *EventInput) { in.EndsAt = in.StartsAt.Add(-time.Minute) },
		"start in the past": func(in *EventInput) { in.StartsAt = env.clock.Now().Add(-time.Hour) },
		"zero capacity":     func(in *EventInput) { in.Capacity = 0 },
		"negative price":    func(in *EventInput) { in.UnitPriceCents = -1 },
		"unknown category":  func(in *EventInput) { in.Category = "PICNIC" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := env.events.Create(ctx, org.ID, in)
			assert.ErrorIs(t, err, ErrBadRequest)
		})
	}

	ev, err := env.events.Create(ctx, org.ID, valid)
	require.NoError(t, err)
	assert.Equal(t, model.EventDraft, ev.Status)
	assert.Equal(t, org.ID, ev.OrganizerID)
}

func TestPublishEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	other := env.user(t, model.RoleOrganizer)
	start := env.clock.Now().Add(24 * time.Hour)

	incomplete, err := env.events.Create(ctx, org.ID, EventInput{
		Title: "Open mic", StartsAt: start, EndsAt: start.Add(time.Hour), Capacity: 30,
	})
	require.NoError(t, err)

	_, err = env.events.Publish(ctx, incomplete.ID, org.ID)
	require.ErrorIs(t, err, ErrBusinessRule)
	msg, _ := Message(err)
	assert.Contains(t, msg, "category")
	assert.Contains(t, msg, "venue")
	assert.Contains(t, msg, "city")

	_, err = env.events.Get(ctx, incomplete.ID, other.ID)
	assert.ErrorIs(t, err, ErrNotFound, "drafts stay hidden from other users")

	venue, city, cat := "Hall 9", "Nantes", model.CategoryOther
	_, err = env.events.Update(ctx, incomplete.ID, org.ID, EventPatch{Venue: &venue, City: &city, Category: &cat})
	require.NoError(t, err)

	_, err = env.events.Publish(ctx, incomplete.ID, other.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	ev, err := env.events.Publish(ctx, incomplete.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventPublished, ev.Status)

	_, err = env.events.Publish(ctx, incomplete.ID, org.ID)
	assert.ErrorIs(t, err, ErrBusinessRule)

	v, err := env.events.Get(ctx, ev.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.EventPublished, v.Status)
	assert.True(t, env.events.IsBookable(&v.Event))
}

func TestCancelEventCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	client := env.user(t, model.RoleClient)
	ev := env.publishedEvent(t, org, eventOpts{capacity: 30, price: 10, startsIn: 5 * time.Hour})

	var ids []uint64
	for i := 1; i <= 3; i++ {
		res, err := env.reservations.Create(ctx, client.ID, ev.ID, i, "")
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}
	_, err := env.reservations.Confirm(ctx, ids[0])
	require.NoError(t, err)

	got, cancelled, err := env.events.Cancel(ctx, ev.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventCancelled, got.Status)
	assert.ElementsMatch(t, ids, cancelled)
	for _, id := range ids {
		assert.Equal(t, model.ReservationCancelled, env.reservation(t, id).Status)
	}
	assert.Equal(t, 0, env.reserved(t, ev.ID))

	msg := env.pub.last()
	assert.Equal(t, queue.EventCancelled, msg.Type)
	assert.ElementsMatch(t, ids, msg.CancelledIDs)

	_, _, err = env.events.Cancel(ctx, ev.ID, org.ID)
	assert.ErrorIs(t, err, ErrBusinessRule)
	_, err = env.reservations.Create(ctx, client.ID, ev.ID, 1, "")
	assert.ErrorIs(t, err, ErrBusinessRule)
}

func TestDeleteEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	client := env.user(t, model.RoleClient)
	ev := env.publishedEvent(t, org, eventOpts{capacity: 10})

	res, err := env.reservations.Create(ctx, client.ID, ev.ID, 2, "")
	require.NoError(t, err)

	err = env.events.Delete(ctx, ev.ID, client.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	err = env.events.Delete(ctx, ev.ID, org.ID)
	assert.ErrorIs(t, err, ErrBusinessRule)

	_, err = env.reservations.Cancel(ctx, res.ID, client.ID)
	require.NoError(t, err)
	require.NoError(t, env.events.Delete(ctx, ev.ID, org.ID))

	_, err = env.events.Get(ctx, ev.ID, org.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.deps.Reservations.GetByID(ctx, res.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = env.events.Delete(ctx, ev.ID, org.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	admin := env.user(t, model.RoleAdmin)
	client := env.user(t, model.RoleClient)
	ev := env.publishedEvent(t, org, eventOpts{capacity: 10, price: 100})

	pending, err := env.reservations.Create(ctx, client.ID, ev.ID, 4, "")
	require.NoError(t, err)
	cancelled, err := env.reservations.Create(ctx, client.ID, ev.ID, 1, "")
	require.NoError(t, err)
	_, err = env.reservations.Cancel(ctx, cancelled.ID, client.ID)
	require.NoError(t, err)

	capacity := 3
	_, err = env.events.Update(ctx, ev.ID, org.ID, EventPatch{Capacity: &capacity})
	assert.ErrorIs(t, err, ErrBusinessRule)

	title := "Renamed"
	_, err = env.events.Update(ctx, ev.ID, client.ID, EventPatch{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	empty := ""
	_, err = env.events.Update(ctx, ev.ID, org.ID, EventPatch{Venue: &empty})
	assert.ErrorIs(t, err, ErrBadRequest)

	capacity, price := 4, int64(150)
	got, err := env.events.Update(ctx, ev.ID, admin.ID, EventPatch{Capacity: &capacity, UnitPriceCents: &price, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 4, got.Capacity)
	assert.Equal(t, "Renamed", got.Title)

	assert.Equal(t, int64(600), env.reservation(t, pending.ID).TotalAmountCents)
	assert.Equal(t, int64(100), env.reservation(t, cancelled.ID).TotalAmountCents)

	_, err = env.reservations.Create(ctx, client.ID, ev.ID, 1, "")
	assert.ErrorIs(t, err, ErrBusinessRule)

	_, _, err = env.events.Cancel(ctx, ev.ID, org.ID)
	require.NoError(t, err)
	_, err = env.events.Update(ctx, ev.ID, org.ID, EventPatch{Title: &title})
	assert.ErrorIs(t, err, ErrBusinessRule)
}

func TestMarkFinished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	client := env.user(t, model.RoleClient)
	short := env.publishedEvent(t, org, eventOpts{capacity: 10, startsIn: time.Hour, length: time.Hour})
	long := env.publishedEvent(t, org, eventOpts{capacity: 10, startsIn: 48 * time.Hour})
	draft := env.draftEvent(t, org, eventOpts{capacity: 10, startsIn: time.Hour, length: time.Hour})

	n, err := env.events.MarkFinished(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Set(short.EndsAt.Add(time.Second))
	n, err = env.events.MarkFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = env.events.MarkFinished(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	v, err := env.events.Get(ctx, short.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.EventFinished, v.Status)
	v, err = env.events.Get(ctx, long.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.EventPublished, v.Status)
	v, err = env.events.Get(ctx, draft.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventDraft, v.Status)

	_, err = env.reservations.Create(ctx, client.ID, short.ID, 1, "")
	assert.ErrorIs(t, err, ErrBusinessRule)
	_, _, err = env.events.Cancel(ctx, short.ID, org.ID)
	assert.ErrorIs(t, err, ErrBusinessRule)
}

func TestEventListings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	client := env.user(t, model.RoleClient)
	quiet := env.publishedEvent(t, org, eventOpts{capacity: 10, price: 500})
	busy := env.publishedEvent(t, org, eventOpts{capacity: 10, price: 1500})
	env.draftEvent(t, org, eventOpts{capacity: 10})

	_, err := env.reservations.Create(ctx, client.ID, busy.ID, 5, "")
	require.NoError(t, err)

	available, err := env.events.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 2)

	popular, err := env.events.Popular(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, popular)
	assert.Equal(t, busy.ID, popular[0].ID)
	assert.Equal(t, 5, popular[0].Usage.Reserved)

	minPrice := int64(1000)
	found, total, err := env.events.Search(ctx, repository.EventFilter{MinPriceCents: &minPrice, Status: model.EventPublished})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, found, 1)
	assert.Equal(t, busy.ID, found[0].ID)

	maxPrice := int64(600)
	found, _, err = env.events.Search(ctx, repository.EventFilter{MaxPriceCents: &maxPrice})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.ElementsMatch(t, []model.EventStatus{model.EventPublished, model.EventDraft}, []model.EventStatus{found[0].Status, found[1].Status})
	assert.Contains(t, []uint64{found[0].ID, found[1].ID}, quiet.ID)

	_, _, err = env.events.Search(ctx, repository.EventFilter{MinPriceCents: &minPrice, MaxPriceCents: &maxPrice})
	assert.ErrorIs(t, err, ErrBadRequest)
	_, _, err = env.events.Search(ctx, repository.EventFilter{Category: "PICNIC"})
	assert.ErrorIs(t, err, ErrBadRequest)

	mine, err := env.events.ListByOrganizer(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	cities, err := env.events.Cities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lyon"}, cities)

	counts, err := env.events.CountByStatus(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.EventPublished])
	assert.Equal(t, int64(1), counts[model.EventDraft])
	assert.Equal(t, int64(0), counts[model.EventCancelled])
}
