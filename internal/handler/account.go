package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/repository"
	"github.com/iliyamo/event-reservation/internal/service"
)

type profileReq struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
}

type passwordReq struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password" validate:"required,max=72"`
}

type roleReq struct {
	Role string `json:"role" validate:"required,oneof=CLIENT ORGANIZER ADMIN client organizer admin"`
}

// UpdateMe handles PATCH /v1/me.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req profileReq
	if msg := bind(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.UpdateProfile(ctx, uid, uid, service.ProfileInput{
		Email: req.Email, FirstName: req.FirstName, LastName: req.LastName, Phone: req.Phone,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// ChangePassword handles PUT /v1/me/password.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req passwordReq
	if msg := bind(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.ChangePassword(ctx, uid, req.Current, req.New); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MyStats handles GET /v1/me/stats.
func (h *AuthHandler) MyStats(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	return h.stats(c, uid, uid)
}

// UserStats handles GET /v1/admin/users/:id/stats.
func (h *AuthHandler) UserStats(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "user")
	}
	return h.stats(c, id, actor)
}

func (h *AuthHandler) stats(c echo.Context, id, actor uint64) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Users.Stats(ctx, id, actor)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// ListUsers handles GET /v1/admin/users.
//
// Query: role, active (true/false), q, page, page_size.
func (h *AuthHandler) ListUsers(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	f := repository.UserFilter{
		Role:    model.Role(strings.ToUpper(strings.TrimSpace(c.QueryParam("role")))),
		Keyword: strings.TrimSpace(c.QueryParam("q")),
	}
	if s := strings.TrimSpace(c.QueryParam("active")); s != "" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid active"})
		}
		f.Active = &active
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))

	ctx, cancel := reqCtx(c)
	defer cancel()
	users, total, err := h.Users.List(ctx, f, actor)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]userResp, 0, len(users))
	for i := range users {
		out = append(out, toUserResp(&users[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"data": out, "total": total})
}

// Activate handles POST /v1/admin/users/:id/activate.
func (h *AuthHandler) Activate(c echo.Context) error {
	return h.userAction(c, h.Users.Activate)
}

// Deactivate handles POST /v1/admin/users/:id/deactivate.
func (h *AuthHandler) Deactivate(c echo.Context) error {
	return h.userAction(c, h.Users.Deactivate)
}

// ChangeRole handles PUT /v1/admin/users/:id/role.
func (h *AuthHandler) ChangeRole(c echo.Context) error {
	var req roleReq
	if msg := bind(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	role := model.Role(strings.ToUpper(req.Role))
	return h.userAction(c, func(ctx context.Context, id, actor uint64) (*model.User, error) {
		return h.Users.ChangeRole(ctx, id, actor, role)
	})
}

func (h *AuthHandler) userAction(c echo.Context, fn func(ctx context.Context, id, actor uint64) (*model.User, error)) error {
	actor, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "user")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := fn(ctx, id, actor)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// DeactivateMe handles POST /v1/me/deactivate.
func (h *AuthHandler) DeactivateMe(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.Deactivate(ctx, uid, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}
