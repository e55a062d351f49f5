package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventTransitions(t *testing.T) {
	allowed := map[[2]EventStatus]bool{
		{EventDraft, EventPublished}:     true,
		{EventDraft, EventCancelled}:     true,
		{EventPublished, EventCancelled}: true,
		{EventPublished, EventFinished}:  true,
	}
	for _, from := range EventStatuses {
		for _, to := range EventStatuses {
			assert.Equal(t, allowed[[2]EventStatus{from, to}], from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, EventCancelled.Terminal())
	assert.True(t, EventFinished.Terminal())
	assert.False(t, EventDraft.Terminal())
	assert.False(t, EventStatus("ARCHIVED").Valid())
	assert.False(t, EventStatus("ARCHIVED").CanTransition(EventDraft))
}

func TestReservationTransitions(t *testing.T) {
	assert.True(t, ReservationPending.CanTransition(ReservationConfirmed))
	assert.True(t, ReservationPending.CanTransition(ReservationCancelled))
	assert.True(t, ReservationConfirmed.CanTransition(ReservationCancelled))
	assert.False(t, ReservationConfirmed.CanTransition(ReservationConfirmed))
	assert.False(t, ReservationConfirmed.CanTransition(ReservationPending))
	for _, to := range ReservationStatuses {
		assert.False(t, ReservationCancelled.CanTransition(to))
	}
	assert.True(t, ReservationPending.Active())
	assert.True(t, ReservationConfirmed.Active())
	assert.False(t, ReservationCancelled.Active())
}

func TestEventIsBookable(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	e := &Event{Status: EventPublished, StartsAt: now.Add(time.Hour), EndsAt: now.Add(3 * time.Hour)}
	assert.True(t, e.IsBookable(now))
	assert.True(t, e.IsBookable(now.Add(2*time.Hour)), "running events stay bookable until they end")
	assert.False(t, e.IsBookable(now.Add(3*time.Hour)))

	e.Status = EventDraft
	assert.False(t, e.IsBookable(now))
	e.Status = EventCancelled
	assert.False(t, e.IsBookable(now))
}

func TestMissingForPublish(t *testing.T) {
	e := &Event{Title: "Jazz night", Capacity: 10}
	assert.ElementsMatch(t, []string{"category", "starts_at", "ends_at", "venue", "city"}, e.MissingForPublish())

	now := time.Now()
	e.Category = CategoryConcert
	e.StartsAt, e.EndsAt = now, now.Add(time.Hour)
	e.Venue, e.City = "Blue Room", "Lyon"
	assert.Empty(t, e.MissingForPublish())
}
