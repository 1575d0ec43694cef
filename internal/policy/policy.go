// Package policy 根据调用者角色与资源归属做访问决策，不做任何 I/O。
package policy

import (
	"taskhub/internal/apperr"
	"taskhub/internal/model"
)

// Actor 已认证的调用者。
type Actor struct {
	UserID string
	Role   model.Role
}

// IsAdmin 是否为管理员。
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == model.RoleAdmin
}

// Action 受控操作。
type Action string

const (
	CreateTask Action = "create_task"
	ListTasks  Action = "list_tasks"
	ReadTask   Action = "read_task"
	UpdateTask Action = "update_task"
	DeleteTask Action = "delete_task"
	ReadSelf   Action = "read_self"
	UpdateSelf Action = "update_self"
	ListUsers  Action = "list_users"
	UpdateUser Action = "update_user"
)

// Resource 被访问的资源，只有任务类操作需要 OwnerID。
type Resource struct {
	OwnerID string
}

var (
	errNoActor         = apperr.Unauthorized("authentication required")
	errAdminCreateTask = apperr.Forbidden("admins cannot create tasks")
	errNotOwner        = apperr.Forbidden("forbidden")
	errAdminOnly       = apperr.Forbidden("admin access required")
)

// Authorize 判断 actor 能否对 res 执行 action，允许时返回 nil。
func Authorize(actor *Actor, action Action, res Resource) error {
	if actor == nil || actor.UserID == "" {
		return errNoActor
	}

	switch action {
	case CreateTask:
		if actor.IsAdmin() {
			return errAdminCreateTask
		}
		return nil
	case ListTasks, ReadSelf, UpdateSelf:
		return nil
	case ReadTask, UpdateTask, DeleteTask:
		if actor.IsAdmin() || res.OwnerID == actor.UserID {
			return nil
		}
		return errNotOwner
	case ListUsers, UpdateUser:
		if actor.IsAdmin() {
			return nil
		}
		return errAdminOnly
	default:
		return apperr.Forbidden("unknown action")
	}
}

// TaskScope 返回列表查询应限定的所有者 ID，管理员返回空串表示全部。
func TaskScope(actor *Actor) string {
	if actor.IsAdmin() {
		return ""
	}
	return actor.UserID
}

// CanSetRole 只有管理员更新任意用户时可以修改角色。
func CanSetRole(actor *Actor, action Action) bool {
	return actor.IsAdmin() && action == UpdateUser
}
