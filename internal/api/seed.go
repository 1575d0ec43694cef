package api

import (
	"context"
	"fmt"
	"log/slog"

	"taskhub/internal/apperr"
	"taskhub/internal/config"
	"taskhub/internal/model"
)

// AdminBootstrapper 是初始化管理员所需的存储能力。
type AdminBootstrapper interface {
	CountByRole(ctx context.Context, role model.Role) (int64, error)
	FindByUsernameOrEmail(ctx context.Context, value string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
}

// EnsureDefaultAdmin 在系统中没有任何管理员时创建配置中的默认管理员。
//
// 可重复调用；cfg.Username 为空时跳过。配置的用户名或邮箱已被占用（例如默认管理员
// 被降级为 basic）时同样跳过，不修改已有账号。返回本次是否创建了管理员。
func EnsureDefaultAdmin(ctx context.Context, users AdminBootstrapper, cfg config.AdminConfig, logger *slog.Logger) (bool, error) {
	if cfg.Username == "" {
		return false, nil
	}

	n, err := users.CountByRole(ctx, model.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	for _, key := range []string{cfg.Username, cfg.Email} {
		existing, err := users.FindByUsernameOrEmail(ctx, key)
		if err != nil {
			return false, fmt.Errorf("find default admin: %w", err)
		}
		if existing != nil {
			if logger != nil {
				logger.Warn("default admin skipped, identity already in use",
					slog.String("user_id", existing.ID),
					slog.String("role", string(existing.Role)),
				)
			}
			return false, nil
		}
	}

	admin := &model.User{
		FirstName: cfg.FirstName,
		LastName:  cfg.LastName,
		Username:  cfg.Username,
		Email:     cfg.Email,
		Password:  cfg.Password,
		Role:      model.RoleAdmin,
	}
	if err := users.Create(ctx, admin); err != nil {
		// 多实例同时启动时由另一实例先创建
		if apperr.KindOf(err) == apperr.KindConflict {
			return false, nil
		}
		return false, fmt.Errorf("create default admin: %w", err)
	}

	if logger != nil {
		logger.Info("default admin created",
			slog.String("user_id", admin.ID),
			slog.String("username", admin.Username),
		)
	}
	return true, nil
}
