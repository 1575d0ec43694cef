package api

import (
	"log/slog"
	"net/http"

	"taskhub/internal/api/middleware"
	"taskhub/internal/api/respond"
	"taskhub/internal/model"
	"taskhub/internal/optional"
	"taskhub/internal/policy"
	"taskhub/internal/store"

	"github.com/gin-gonic/gin"
)

// updateProfileRequest 自助更新资料的请求，不包含角色。
type updateProfileRequest struct {
	FirstName optional.Field[string] `json:"firstName"`
	LastName  optional.Field[string] `json:"lastName"`
	Username  optional.Field[string] `json:"username"`
	Email     optional.Field[string] `json:"email"`
	Password  optional.Field[string] `json:"password"`
}

// adminUpdateUserRequest 管理员更新任意用户，可修改角色。
type adminUpdateUserRequest struct {
	updateProfileRequest
	Role optional.Field[string] `json:"role"`
}

func (r updateProfileRequest) toUpdate() store.UserUpdate {
	return store.UserUpdate{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Username:  r.Username,
		Email:     r.Email,
		Password:  r.Password,
	}
}

// handleGetMe 返回当前用户资料。
//
// GET /api/users/me
func (s *Server) handleGetMe(c *gin.Context) {
	actor := actorOf(c)
	if !s.authorize(c, actor, policy.ReadSelf, policy.Resource{}) {
		return
	}
	identity := middleware.GetIdentity(c)
	c.JSON(http.StatusOK, identity.User.Profile())
}

// handleUpdateMe 更新当前用户资料，请求中的 role 字段被忽略。
//
// PUT /api/users/me
func (s *Server) handleUpdateMe(c *gin.Context) {
	actor := actorOf(c)
	if !s.authorize(c, actor, policy.UpdateSelf, policy.Resource{}) {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, err)
		return
	}
	user, err := s.users.Update(c.Request.Context(), actor.UserID, req.toUpdate())
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, user.Profile())
}

// handleListUsers 列出全部用户（仅管理员）。
//
// GET /api/users
func (s *Server) handleListUsers(c *gin.Context) {
	if !s.authorize(c, actorOf(c), policy.ListUsers, policy.Resource{}) {
		return
	}
	users, err := s.users.List(c.Request.Context())
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// handleUpdateUser 管理员更新任意用户。
//
// PUT /api/users/:id
func (s *Server) handleUpdateUser(c *gin.Context) {
	actor := actorOf(c)
	if !s.authorize(c, actor, policy.UpdateUser, policy.Resource{}) {
		return
	}

	var req adminUpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, err)
		return
	}
	upd := req.toUpdate()
	if req.Role.IsSet() && policy.CanSetRole(actor, policy.UpdateUser) {
		if v, ok := req.Role.Get(); ok {
			upd.Role = optional.Some(model.Role(v))
		} else {
			upd.Role = optional.Null[model.Role]()
		}
	}

	user, err := s.users.Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	if s.logger != nil {
		s.logger.Info("user updated by admin",
			slog.String("admin_id", actor.UserID),
			slog.String("user_id", user.ID),
			slog.String("role", string(user.Role)),
		)
	}
	c.JSON(http.StatusOK, user.Profile())
}
