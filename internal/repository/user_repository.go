package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/event-reservation/internal/model"
)

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, email, password_hash, first_name, last_name, phone, role, is_active, created_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Phone, &u.Role, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts u and sets its ID. The e-mail is normalized to lower case.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = dbTime(u.CreatedAt)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, phone, role, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, u.Role, u.Active, u.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email = ? LIMIT 1", email))
	return u, notFound(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getByID(ctx, r.db, id)
}

// GetByIDTx is GetByID inside tx.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.User, error) {
	return r.getByID(ctx, tx, id)
}

func (r *UserRepo) getByID(ctx context.Context, q dbtx, id uint64) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, "SELECT "+userCols+" FROM users WHERE id = ? LIMIT 1", id))
	return u, notFound(err)
}

// ExistsByEmail reports whether an account uses email.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email))).Scan(&n)
	return n > 0, err
}

// CountByRole returns the number of users per role.
func (r *UserRepo) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT role, COUNT(*) FROM users GROUP BY role")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.Role]int64{}
	for rows.Next() {
		var role model.Role
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[role] = n
	}
	return out, rows.Err()
}

// DeleteTx removes the user row. Dependent reservations must have been
// removed by the caller in the same transaction.
func (r *UserRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Update writes the profile fields of u: email, names and phone. The
// e-mail is normalized like on Create.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET email = ?, first_name = ?, last_name = ?, phone = ? WHERE id = ?",
		u.Email, u.FirstName, u.LastName, u.Phone, u.ID)
	if isDuplicate(err) {
		return ErrEmailExists
	}
	return err
}

// SetPasswordHash replaces the stored bcrypt hash of user id.
func (r *UserRepo) SetPasswordHash(ctx context.Context, id uint64, hash string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
	return err
}

// SetActive enables or disables user id.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET is_active = ? WHERE id = ?", active, id)
	return err
}

// SetRole changes the role of user id.
func (r *UserRepo) SetRole(ctx context.Context, id uint64, role model.Role) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET role = ? WHERE id = ?", role, id)
	return err
}

// UserFilter narrows Search. Zero values disable a filter.
type UserFilter struct {
	Role     model.Role
	Active   *bool
	Keyword  string // matched against email, first and last name
	Page     int
	PageSize int
}

// Search returns the users matching f ordered by id, and the total number
// of matches.
func (r *UserRepo) Search(ctx context.Context, f UserFilter) ([]model.User, int64, error) {
	where := []string{"1=1"}
	var args []any
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.Active)
	}
	if kw := strings.ToLower(strings.TrimSpace(f.Keyword)); kw != "" {
		where = append(where, "(LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)")
		like := "%" + kw + "%"
		args = append(args, like, like, like)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, size := normalizePage(f.Page, f.PageSize)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userCols+" FROM users WHERE "+cond+" ORDER BY id ASC LIMIT ? OFFSET ?",
		append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}
