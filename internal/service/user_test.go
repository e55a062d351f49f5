package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/repository"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.Register(ctx, RegisterInput{
		Email: " Ada@Example.com ", Password: "s3cret!", FirstName: "Ada", Role: model.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, model.RoleClient, u.Role, "self-registration never grants admin")
	assert.NotEqual(t, "s3cret!", u.PasswordHash)

	_, err = env.users.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "other"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = env.users.Register(ctx, RegisterInput{Email: "", Password: "x"})
	assert.ErrorIs(t, err, ErrBadRequest)

	org, err := env.users.Register(ctx, RegisterInput{Email: "org@example.com", Password: "pw", Role: model.RoleOrganizer})
	require.NoError(t, err)
	assert.Equal(t, model.RoleOrganizer, org.Role)

	got, err := env.users.Authenticate(ctx, "ada@example.com", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = env.users.Authenticate(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.users.Authenticate(ctx, "nobody@example.com", "s3cret!")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.users.Get(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	admin := env.user(t, model.RoleAdmin)
	client := env.user(t, model.RoleClient)
	stranger := env.user(t, model.RoleClient)
	ev := env.publishedEvent(t, org, eventOpts{capacity: 10})

	res, err := env.reservations.Create(ctx, client.ID, ev.ID, 3, "")
	require.NoError(t, err)

	assert.ErrorIs(t, env.users.Delete(ctx, client.ID, stranger.ID), ErrForbidden)
	assert.ErrorIs(t, env.users.Delete(ctx, org.ID, admin.ID), ErrBusinessRule)

	require.NoError(t, env.users.Delete(ctx, client.ID, client.ID))
	_, err = env.deps.Reservations.GetByID(ctx, res.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 0, env.reserved(t, ev.ID))

	require.NoError(t, env.users.Delete(ctx, stranger.ID, admin.ID))
	_, err = env.users.Get(ctx, stranger.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, model.RoleClient)
	b := env.user(t, model.RoleClient)
	admin := env.user(t, model.RoleAdmin)

	first, phone := " Grace ", "+33 6 12 34 56 78"
	u, err := env.users.UpdateProfile(ctx, a.ID, a.ID, ProfileInput{FirstName: &first, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Grace", u.FirstName)
	assert.Equal(t, a.LastName, u.LastName)
	assert.Equal(t, phone, u.Phone)

	_, err = env.users.UpdateProfile(ctx, a.ID, b.ID, ProfileInput{FirstName: &first})
	assert.ErrorIs(t, err, ErrForbidden)

	taken := strings.ToUpper(b.Email)
	_, err = env.users.UpdateProfile(ctx, a.ID, a.ID, ProfileInput{Email: &taken})
	assert.ErrorIs(t, err, ErrConflict)
	empty := " "
	_, err = env.users.UpdateProfile(ctx, a.ID, a.ID, ProfileInput{Email: &empty})
	assert.ErrorIs(t, err, ErrBadRequest)

	fresh := " Grace@Example.org "
	u, err = env.users.UpdateProfile(ctx, a.ID, admin.ID, ProfileInput{Email: &fresh})
	require.NoError(t, err)
	assert.Equal(t, "grace@example.org", u.Email)

	stored, err := env.users.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.org", stored.Email)
	assert.Equal(t, "Grace", stored.FirstName)

	_, err = env.users.UpdateProfile(ctx, 9999, admin.ID, ProfileInput{FirstName: &first})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u, err := env.users.Register(ctx, RegisterInput{Email: "pw@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	err = env.users.ChangePassword(ctx, u.ID, "wrong", "N3wPassword")
	assert.ErrorIs(t, err, ErrBadRequest)
	msg, _ := Message(err)
	assert.Equal(t, "Current password is incorrect.", msg)

	for _, weak := range []string{"Sh0rt", "alllower1", "ALLUPPER1", "NoDigitsHere"} {
		assert.ErrorIs(t, env.users.ChangePassword(ctx, u.ID, "s3cret!", weak), ErrBadRequest, weak)
	}

	require.NoError(t, env.users.ChangePassword(ctx, u.ID, "s3cret!", "N3wPassword"))
	_, err = env.users.Authenticate(ctx, "pw@example.com", "s3cret!")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.users.Authenticate(ctx, "pw@example.com", "N3wPassword")
	assert.NoError(t, err)
}

func TestDeactivateAndActivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, model.RoleAdmin)
	other := env.user(t, model.RoleClient)
	u, err := env.users.Register(ctx, RegisterInput{Email: "off@example.com", Password: "s3cret!"})
	require.NoError(t, err)

	_, err = env.users.Deactivate(ctx, u.ID, other.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := env.users.Deactivate(ctx, u.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	_, err = env.users.Authenticate(ctx, "off@example.com", "s3cret!")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.users.Activate(ctx, u.ID, u.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	got, err = env.users.Activate(ctx, u.ID, admin.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	_, err = env.users.Authenticate(ctx, "off@example.com", "s3cret!")
	assert.NoError(t, err)

	_, err = env.users.Deactivate(ctx, other.ID, admin.ID)
	assert.NoError(t, err)
	_, err = env.users.Activate(ctx, 9999, admin.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangeRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, model.RoleAdmin)
	client := env.user(t, model.RoleClient)

	_, err := env.users.ChangeRole(ctx, client.ID, client.ID, model.RoleAdmin)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.users.ChangeRole(ctx, client.ID, admin.ID, model.Role("ROOT"))
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = env.users.ChangeRole(ctx, admin.ID, admin.ID, model.RoleClient)
	assert.ErrorIs(t, err, ErrBusinessRule)

	u, err := env.users.ChangeRole(ctx, client.ID, admin.ID, model.RoleOrganizer)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOrganizer, u.Role)

	// the new organizer can create events right away
	env.draftEvent(t, u, eventOpts{capacity: 5})
}

func TestUserStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleOrganizer)
	admin := env.user(t, model.RoleAdmin)
	client := env.user(t, model.RoleClient)
	ev := env.publishedEvent(t, org, eventOpts{capacity: 20, price: 1250})
	env.draftEvent(t, org, eventOpts{capacity: 5})

	confirmed, err := env.reservations.Create(ctx, client.ID, ev.ID, 2, "")
	require.NoError(t, err)
	_, err = env.reservations.Confirm(ctx, confirmed.ID)
	require.NoError(t, err)
	_, err = env.reservations.Create(ctx, client.ID, ev.ID, 1, "")
	require.NoError(t, err)

	st, err := env.users.Stats(ctx, client.ID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, &UserStats{
		UserID: client.ID, Role: model.RoleClient, Reservations: 2, SpentCents: 2500,
	}, st)

	st, err = env.users.Stats(ctx, org.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.EventsOrganized)
	assert.Zero(t, st.Reservations)

	_, err = env.users.Stats(ctx, org.ID, client.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, model.RoleAdmin)
	org := env.user(t, model.RoleOrganizer)
	client := env.user(t, model.RoleClient)
	_, err := env.users.Register(ctx, RegisterInput{Email: "lovelace@example.com", Password: "s3cret!", LastName: "Lovelace"})
	require.NoError(t, err)
	_, err = env.users.Deactivate(ctx, client.ID, admin.ID)
	require.NoError(t, err)

	_, _, err = env.users.List(ctx, repository.UserFilter{}, org.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = env.users.List(ctx, repository.UserFilter{Role: "ROOT"}, admin.ID)
	assert.ErrorIs(t, err, ErrBadRequest)

	all, total, err := env.users.List(ctx, repository.UserFilter{}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)

	orgs, _, err := env.users.List(ctx, repository.UserFilter{Role: model.RoleOrganizer}, admin.ID)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, org.ID, orgs[0].ID)

	inactive := false
	off, _, err := env.users.List(ctx, repository.UserFilter{Active: &inactive}, admin.ID)
	require.NoError(t, err)
	require.Len(t, off, 1)
	assert.Equal(t, client.ID, off[0].ID)

	found, total, err := env.users.List(ctx, repository.UserFilter{Keyword: "LOVE"}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, found, 1)
	assert.Equal(t, "lovelace@example.com", found[0].Email)

	page, total, err := env.users.List(ctx, repository.UserFilter{Page: 2, PageSize: 3}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, page, 1)
}
