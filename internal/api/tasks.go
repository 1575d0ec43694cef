package api

import (
	"log/slog"
	"net/http"

	"taskhub/internal/api/middleware"
	"taskhub/internal/api/respond"
	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/optional"
	"taskhub/internal/policy"
	"taskhub/internal/store"

	"github.com/gin-gonic/gin"
)

// createTaskRequest 创建任务的请求参数。
type createTaskRequest struct {
	Body string `json:"body"`
}

// updateTaskRequest 更新任务的请求参数，未提供 body 时不修改。
type updateTaskRequest struct {
	Body optional.Field[string] `json:"body"`
}

var errTaskNotFound = apperr.NotFound("task not found")

// handleCreateTask 为当前用户创建任务，管理员不可创建。
//
// POST /api/tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	actor := actorOf(c)
	if !s.authorize(c, actor, policy.CreateTask, policy.Resource{}) {
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, err)
		return
	}

	task, err := s.tasks.Create(c.Request.Context(), actor.UserID, req.Body)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	if identity := middleware.GetIdentity(c); identity != nil {
		task.User = identity.User
	}

	if s.logger != nil {
		s.logger.Info("task created",
			slog.String("task_id", task.ID),
			slog.String("user_id", actor.UserID),
		)
	}
	c.JSON(http.StatusCreated, task)
}

// handleListTasks 分页返回任务，普通用户只看到自己的任务。
//
// GET /api/tasks?page=1&limit=10&sort=desc
func (s *Server) handleListTasks(c *gin.Context) {
	actor := actorOf(c)
	if !s.authorize(c, actor, policy.ListTasks, policy.Resource{}) {
		return
	}

	page := store.ParsePage(c.Query("page"), c.Query("limit"), c.Query("sort"))
	result, err := s.tasks.List(c.Request.Context(), store.TaskFilter{OwnerID: policy.TaskScope(actor)}, page)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// loadTask 查询任务并执行访问决策；失败时已写出响应，返回 nil。
// 先判断存在性再判断归属，不存在的任务总是 404。
func (s *Server) loadTask(c *gin.Context, actor *policy.Actor, action policy.Action) *model.Task {
	task, err := s.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, s.logger, err)
		return nil
	}
	if task == nil {
		respond.Error(c, s.logger, errTaskNotFound)
		return nil
	}
	if !s.authorize(c, actor, action, policy.Resource{OwnerID: task.UserID}) {
		return nil
	}
	return task
}

// handleGetTask 返回任务及其所有者摘要。
//
// GET /api/tasks/:id
func (s *Server) handleGetTask(c *gin.Context) {
	task := s.loadTask(c, actorOf(c), policy.ReadTask)
	if task == nil {
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleUpdateTask 更新任务内容。
//
// PUT /api/tasks/:id
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, err)
		return
	}

	task := s.loadTask(c, actorOf(c), policy.UpdateTask)
	if task == nil {
		return
	}

	updated, err := s.tasks.UpdateBody(c.Request.Context(), task.ID, req.Body)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// handleDeleteTask 删除任务，成功返回 204。
//
// DELETE /api/tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	actor := actorOf(c)
	task := s.loadTask(c, actor, policy.DeleteTask)
	if task == nil {
		return
	}

	if err := s.tasks.Delete(c.Request.Context(), task.ID); err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	if s.logger != nil {
		s.logger.Info("task deleted",
			slog.String("task_id", task.ID),
			slog.String("owner_id", task.UserID),
			slog.String("actor_id", actor.UserID),
		)
	}
	c.Status(http.StatusNoContent)
}
