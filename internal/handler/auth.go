package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/service"
	"github.com/iliyamo/event-reservation/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Users        *service.UserService
	JWTSecret    string
	AccessTTLMin int
	Log          *slog.Logger
}

// NewAuthHandler panics when users is nil or the secret is empty.
func NewAuthHandler(users *service.UserService, jwtSecret string, accessTTLMin int, logger *slog.Logger) *AuthHandler {
	if users == nil || jwtSecret == "" {
		panic("nil dependency passed to NewAuthHandler")
	}
	return &AuthHandler{Users: users, JWTSecret: jwtSecret, AccessTTLMin: accessTTLMin, Log: loggerOr(logger, "auth")}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Phone     string `json:"phone" validate:"max=30"`
	Role      string `json:"role" validate:"omitempty,oneof=CLIENT ORGANIZER client organizer"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User   userResp  `json:"user"`
	Access tokenPart `json:"access"`
}

// Register creates a CLIENT or ORGANIZER account and returns an access
// token for it.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if msg := bind(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      model.Role(strings.ToUpper(req.Role)),
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return h.issue(c, http.StatusCreated, u)
}

// Login verifies the credentials and returns a fresh access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if msg := bind(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return h.issue(c, http.StatusOK, u)
}

func (h *AuthHandler) issue(c echo.Context, status int, u *model.User) error {
	access, err := utils.NewAccessToken(h.JWTSecret, u.ID, string(u.Role), h.AccessTTLMin)
	if err != nil {
		h.Log.Error("issue access token", "user_id", u.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(status, authResp{
		User:   toUserResp(u),
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.Get(ctx, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// DeleteMe removes the authenticated account and its reservations.
func (h *AuthHandler) DeleteMe(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	return h.deleteUser(c, uid, uid)
}

// DeleteUser lets an admin remove any account.
func (h *AuthHandler) DeleteUser(c echo.Context) error {
	actor, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "user")
	}
	return h.deleteUser(c, id, actor)
}

func (h *AuthHandler) deleteUser(c echo.Context, id, actor uint64) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.Delete(ctx, id, actor); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
