package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/optional"

	"gorm.io/gorm"
)

// TaskFilter 列表过滤条件，OwnerID 为空表示不过滤。
type TaskFilter struct {
	OwnerID string
}

// TaskPage 一页任务及分页信息。
type TaskPage struct {
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"totalPages"`
	TotalItems int64        `json:"totalItems"`
	Items      []model.Task `json:"items"`
}

// TaskStore 是任务存储。
type TaskStore struct {
	db *gorm.DB
}

// NewTaskStore 创建 TaskStore。
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

func preloadOwner(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "email", "role")
}

// Create 为 ownerID 创建任务。
func (s *TaskStore) Create(ctx context.Context, ownerID, body string) (*model.Task, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperr.Validation("body is required")
	}
	task := &model.Task{UserID: ownerID, Body: body}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// Get 按 ID 查询任务并加载所有者，不存在时返回 (nil, nil)。
func (s *TaskStore) Get(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := s.db.WithContext(ctx).
		Preload("User", preloadOwner).
		Where("id = ?", id).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// List 分页查询任务，按创建时间排序，ID 作为同一时间戳下的稳定次序。
func (s *TaskStore) List(ctx context.Context, filter TaskFilter, page Page) (*TaskPage, error) {
	scoped := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.Task{})
		if filter.OwnerID != "" {
			q = q.Where("user_id = ?", filter.OwnerID)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	dir := "DESC"
	if page.Sort == SortAsc {
		dir = "ASC"
	}

	items := make([]model.Task, 0, page.Limit)
	err := scoped().Preload("User", preloadOwner).
		Order("created_at " + dir).
		Order("id " + dir).
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	totalPages := 0
	if page.Limit > 0 {
		totalPages = int((total + int64(page.Limit) - 1) / int64(page.Limit))
	}
	return &TaskPage{
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: totalPages,
		TotalItems: total,
		Items:      items,
	}, nil
}

// UpdateBody 更新任务内容。未提供 body 时不修改，显式 null 或空字符串视为校验错误。
func (s *TaskStore) UpdateBody(ctx context.Context, id string, body optional.Field[string]) (*model.Task, error) {
	if body.IsSet() {
		v, ok := body.Get()
		if !ok || strings.TrimSpace(v) == "" {
			return nil, apperr.Validation("body must not be empty")
		}
		res := s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Update("body", v)
		if res.Error != nil {
			return nil, fmt.Errorf("update task: %w", res.Error)
		}
	}

	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound("task not found")
	}
	return task, nil
}

// Delete 删除任务，不存在时返回 NotFound。
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("task not found")
	}
	return nil
}
