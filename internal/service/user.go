package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/repository"
	"github.com/iliyamo/event-reservation/internal/utils"
)

// UserService registers and authenticates users. It is the identity
// lookup the other services consult.
type UserService struct {
	Deps
	bcryptCost int
}

// NewUserService panics when a required dependency is missing.
func NewUserService(d Deps, bcryptCost int) *UserService {
	return &UserService{Deps: d.withDefaults("users"), bcryptCost: bcryptCost}
}

// RegisterInput holds the fields of a new account. Role may be CLIENT or
// ORGANIZER; anything else registers a CLIENT.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      model.Role
}

// Register creates an active account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, badRequestf("Email and password are required.")
	}
	exists, err := s.Users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, newErr(ErrConflict, "Email %s is already registered.", email)
	}
	role := in.Role
	if role != model.RoleOrganizer {
		role = model.RoleClient
	}
	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return nil, badRequestf("Password must be at most %d bytes.", utils.MaxPasswordBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		Active:       true,
		CreatedAt:    s.Clock.Now(),
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, newErr(ErrConflict, "Email %s is already registered.", email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.Logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Authenticate returns the active user matching email and password.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newErr(ErrUnauthorized, "Invalid credentials.")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, newErr(ErrUnauthorized, "Invalid credentials.")
	}
	if !u.Active {
		return nil, forbiddenf("Account is disabled.")
	}
	return u, nil
}

// Get returns user id.
func (s *UserService) Get(ctx context.Context, id uint64) (*model.User, error) {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "User %d not found.", id)
	}
	return u, nil
}

// Delete removes userID and every reservation they made. Only the user
// themselves or an admin may do it, and not while the user still
// organizes events. The events the user booked are locked in ascending
// order first so the removal serializes with bookings on them.
func (s *UserService) Delete(ctx context.Context, userID, actorID uint64) error {
	var removed int64
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		actor, err := s.Users.GetByIDTx(ctx, tx, actorID)
		if err != nil || (actor.ID != userID && actor.Role != model.RoleAdmin) {
			return forbiddenf("You are not allowed to delete this account.")
		}
		if _, err := s.Users.GetByIDTx(ctx, tx, userID); err != nil {
			return lookupErr(err, "User %d not found.", userID)
		}
		organized, err := s.Events.CountByOrganizerTx(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("count events of user %d: %w", userID, err)
		}
		if organized > 0 {
			return businessRulef("User %d still organizes %d events.", userID, organized)
		}
		eventIDs, err := s.Reservations.EventIDsByUserTx(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("events of user %d: %w", userID, err)
		}
		for _, id := range eventIDs {
			if _, err := s.Events.GetForUpdateTx(ctx, tx, id); err != nil {
				return fmt.Errorf("lock event %d: %w", id, err)
			}
		}
		if removed, err = s.Reservations.DeleteByUserTx(ctx, tx, userID); err != nil {
			return fmt.Errorf("delete reservations of user %d: %w", userID, err)
		}
		return s.Users.DeleteTx(ctx, tx, userID)
	})
	if err != nil {
		return err
	}
	s.Logger.Info("user deleted", "user_id", userID, "actor_id", actorID, "reservations_removed", removed)
	return nil
}

// ProfileInput carries the profile fields to change; nil leaves a field
// as it is.
type ProfileInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Phone     *string
}

// UpdateProfile changes the profile of userID. Only the user or an admin
// may do it, and a new e-mail must not belong to another account.
func (s *UserService) UpdateProfile(ctx context.Context, userID, actorID uint64, in ProfileInput) (*model.User, error) {
	if err := s.selfOrAdmin(ctx, userID, actorID, "update this profile"); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" {
			return nil, badRequestf("Email must not be empty.")
		}
		if email != u.Email {
			exists, err := s.Users.ExistsByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("check email: %w", err)
			}
			if exists {
				return nil, newErr(ErrConflict, "Email %s is already registered.", email)
			}
			u.Email = email
		}
	}
	if err := s.Users.Update(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, newErr(ErrConflict, "Email %s is already registered.", u.Email)
		}
		return nil, fmt.Errorf("update user %d: %w", userID, err)
	}
	s.Logger.Info("profile updated", "user_id", userID, "actor_id", actorID)
	return u, nil
}

// ChangePassword replaces the password of userID after checking current.
// The new password must satisfy utils.StrongPassword.
func (s *UserService) ChangePassword(ctx context.Context, userID uint64, current, next string) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return badRequestf("Current password is incorrect.")
	}
	if !utils.StrongPassword(next) {
		return badRequestf("Password must have at least %d characters with an upper case letter, a lower case letter and a digit.",
			utils.MinStrongPasswordLen)
	}
	hash, err := utils.HashPassword(next, s.bcryptCost)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return badRequestf("Password must be at most %d bytes.", utils.MaxPasswordBytes)
	}
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Users.SetPasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("store password of user %d: %w", userID, err)
	}
	s.Logger.Info("password changed", "user_id", userID)
	return nil
}

// Deactivate disables userID so it can no longer sign in. Users may
// deactivate themselves; admins may deactivate anyone.
func (s *UserService) Deactivate(ctx context.Context, userID, actorID uint64) (*model.User, error) {
	if err := s.selfOrAdmin(ctx, userID, actorID, "deactivate this account"); err != nil {
		return nil, err
	}
	return s.setActive(ctx, userID, actorID, false)
}

// Activate enables userID again. Admin only.
func (s *UserService) Activate(ctx context.Context, userID, actorID uint64) (*model.User, error) {
	if err := s.requireAdmin(ctx, actorID, "activate accounts"); err != nil {
		return nil, err
	}
	return s.setActive(ctx, userID, actorID, true)
}

func (s *UserService) setActive(ctx context.Context, userID, actorID uint64, active bool) (*model.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.Users.SetActive(ctx, userID, active); err != nil {
		return nil, fmt.Errorf("set active on user %d: %w", userID, err)
	}
	u.Active = active
	s.Logger.Info("account state changed", "user_id", userID, "actor_id", actorID, "active", active)
	return u, nil
}

// ChangeRole gives userID a new role. Admin only, and an admin cannot
// change their own role.
func (s *UserService) ChangeRole(ctx context.Context, userID, actorID uint64, role model.Role) (*model.User, error) {
	if err := s.requireAdmin(ctx, actorID, "change roles"); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, badRequestf("Unknown role %q.", role)
	}
	if userID == actorID {
		return nil, businessRulef("Admins cannot change their own role.")
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.Users.SetRole(ctx, userID, role); err != nil {
		return nil, fmt.Errorf("set role on user %d: %w", userID, err)
	}
	s.Logger.Info("role changed", "user_id", userID, "actor_id", actorID, "from", u.Role, "to", role)
	u.Role = role
	return u, nil
}

// UserStats summarizes the activity of one account.
type UserStats struct {
	UserID          uint64     `json:"user_id"`
	Role            model.Role `json:"role"`
	EventsOrganized int64      `json:"events_organized"`
	Reservations    int64      `json:"reservations"`
	SpentCents      int64      `json:"spent_cents"`
}

// Stats reports on userID for the user or an admin. Spending only counts
// confirmed reservations.
func (s *UserService) Stats(ctx context.Context, userID, actorID uint64) (*UserStats, error) {
	if err := s.selfOrAdmin(ctx, userID, actorID, "see these statistics"); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	events, err := s.Events.CountByStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	t, err := s.Reservations.TotalsByStatus(ctx, repository.TotalsScope{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("reservation totals: %w", err)
	}
	out := &UserStats{
		UserID:       userID,
		Role:         u.Role,
		Reservations: totals(t).count(),
		SpentCents:   totals(t).revenue(),
	}
	for _, n := range events {
		out.EventsOrganized += n
	}
	return out, nil
}

// List returns the accounts matching f and the total number of matches.
// Admin only.
func (s *UserService) List(ctx context.Context, f repository.UserFilter, actorID uint64) ([]model.User, int64, error) {
	if err := s.requireAdmin(ctx, actorID, "list users"); err != nil {
		return nil, 0, err
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, badRequestf("Unknown role %q.", f.Role)
	}
	return s.Users.Search(ctx, f)
}

func (s *UserService) selfOrAdmin(ctx context.Context, userID, actorID uint64, verb string) error {
	if userID == actorID {
		return nil
	}
	return s.requireAdmin(ctx, actorID, verb)
}

func (s *UserService) requireAdmin(ctx context.Context, actorID uint64, verb string) error {
	actor, err := s.Users.GetByID(ctx, actorID)
	if err != nil || actor.Role != model.RoleAdmin {
		return forbiddenf("You are not allowed to %s.", verb)
	}
	return nil
}
