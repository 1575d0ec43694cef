package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"taskhub/internal/api/respond"
	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/pkg/metrics"
	"taskhub/internal/session"

	"github.com/gin-gonic/gin"
)

// Registrar 是注册所需的凭证存储能力。
type Registrar interface {
	Create(ctx context.Context, user *model.User) error
}

// Authenticator 校验凭证并签发令牌。
type Authenticator interface {
	Authenticate(ctx context.Context, usernameOrEmail, plaintext string) (*session.Result, error)
}

// Handler 提供注册与登录接口。
type Handler struct {
	users    Registrar
	sessions Authenticator
	logger   *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(users Registrar, sessions Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		users:    users,
		sessions: sessions,
		logger:   logger,
	}
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	Role      string `json:"role"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token string            `json:"token"`
	User  model.UserSummary `json:"user"`
}

// Register 创建新用户，role 仅在显式为 "admin" 时生效。
//
// POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, err)
		return
	}

	user := model.User{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Username:  req.Username,
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		Role:      model.ParseRole(req.Role),
	}
	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		respond.Error(c, h.logger, err)
		return
	}

	if h.logger != nil {
		h.logger.Info("user registered",
			slog.String("user_id", user.ID),
			slog.String("username", user.Username),
			slog.String("role", string(user.Role)),
		)
	}
	c.JSON(http.StatusCreated, user.Summary())
}

// Login 校验用户并返回 JWT。
//
// POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, err)
		return
	}

	res, err := h.sessions.Authenticate(c.Request.Context(), strings.TrimSpace(req.UsernameOrEmail), req.Password)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			metrics.AuthFailuresTotal.WithLabelValues("invalid_credentials").Inc()
		}
		respond.Error(c, h.logger, err)
		return
	}

	if h.logger != nil {
		h.logger.Info("user logged in",
			slog.String("user_id", res.User.ID),
			slog.String("role", string(res.User.Role)),
		)
	}
	c.JSON(http.StatusOK, loginResponse{Token: res.Token, User: res.User.Summary()})
}
