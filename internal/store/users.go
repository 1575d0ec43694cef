package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/optional"
	"taskhub/internal/pkg/password"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

var (
	errUsernameTaken = apperr.Conflict("username already taken")
	errEmailTaken    = apperr.Conflict("email already taken")
)

// UserUpdate 描述一次部分更新，只有 Set 的字段会被写入。
type UserUpdate struct {
	FirstName optional.Field[string]
	LastName  optional.Field[string]
	Username  optional.Field[string]
	Email     optional.Field[string]
	Password  optional.Field[string]
	Role      optional.Field[model.Role]
}

// UserStore 是凭证存储。
type UserStore struct {
	db     *gorm.DB
	hasher password.Hasher
}

// NewUserStore 创建 UserStore。
func NewUserStore(db *gorm.DB, hasher password.Hasher) *UserStore {
	return &UserStore{db: db, hasher: hasher}
}

// Create 创建用户。user.Password 传入明文，写入前会被替换为哈希。
//
// 先检查用户名再检查邮箱；并发注册时以唯一索引为准，冲突同样返回 Conflict。
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	if strings.TrimSpace(user.Username) == "" {
		return apperr.Validation("username is required")
	}
	if strings.TrimSpace(user.Email) == "" {
		return apperr.Validation("email is required")
	}
	if user.Password == "" {
		return apperr.Validation("password is required")
	}
	if !user.Role.Valid() {
		user.Role = model.RoleBasic
	}

	if err := s.checkUnique(ctx, "", user.Username, user.Email); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(user.Password)
	if err != nil {
		return err
	}
	user.Password = hash

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicate(err) {
			return s.duplicateError(ctx, "", user.Username, user.Email, err)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByUsernameOrEmail 按用户名或邮箱查找用户，不存在时返回 (nil, nil)。
func (s *UserStore) FindByUsernameOrEmail(ctx context.Context, value string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", value, value).
		Order("created_at ASC").
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// FindByID 按 ID 查找用户，不存在时返回 (nil, nil)。
func (s *UserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// Update 部分更新用户，返回更新后的记录。
func (s *UserStore) Update(ctx context.Context, id string, upd UserUpdate) (*model.User, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}

	changes := map[string]interface{}{}

	if upd.FirstName.IsSet() {
		v, _ := upd.FirstName.Get()
		changes["first_name"] = v
	}
	if upd.LastName.IsSet() {
		v, _ := upd.LastName.Get()
		changes["last_name"] = v
	}

	newUsername, newEmail := "", ""
	if upd.Username.IsSet() {
		v, ok := upd.Username.Get()
		if !ok || strings.TrimSpace(v) == "" {
			return nil, apperr.Validation("username must not be empty")
		}
		if v != user.Username {
			newUsername = v
			changes["username"] = v
		}
	}
	if upd.Email.IsSet() {
		v, ok := upd.Email.Get()
		if !ok || strings.TrimSpace(v) == "" {
			return nil, apperr.Validation("email must not be empty")
		}
		if err := validate.Var(v, "email"); err != nil {
			return nil, apperr.Validation("email must be a valid email address")
		}
		if v != user.Email {
			newEmail = v
			changes["email"] = v
		}
	}
	if upd.Password.IsSet() {
		v, ok := upd.Password.Get()
		if !ok || v == "" {
			return nil, apperr.Validation("password must not be empty")
		}
		hash, err := s.hasher.Hash(v)
		if err != nil {
			return nil, err
		}
		changes["password"] = hash
	}
	if upd.Role.IsSet() {
		v, ok := upd.Role.Get()
		if !ok || !v.Valid() {
			return nil, apperr.Validation("role must be basic or admin")
		}
		changes["role"] = v
	}

	if len(changes) == 0 {
		return user, nil
	}

	if err := s.checkUnique(ctx, id, newUsername, newEmail); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(changes).Error; err != nil {
		if isDuplicate(err) {
			return nil, s.duplicateError(ctx, id, newUsername, newEmail, err)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	return s.FindByID(ctx, id)
}

// List 返回全部用户的公开视图，按创建时间排序。
func (s *UserStore) List(ctx context.Context) ([]model.UserProfile, error) {
	var users []model.User
	err := s.db.WithContext(ctx).
		Select("id", "first_name", "last_name", "username", "email", "role", "created_at").
		Order("created_at ASC").Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]model.UserProfile, 0, len(users))
	for i := range users {
		out = append(out, users[i].Profile())
	}
	return out, nil
}

// CountByRole 统计某角色的用户数。
func (s *UserStore) CountByRole(ctx context.Context, role model.Role) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("role = ?", role).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// checkUnique 检查用户名、邮箱是否已被 excludeID 以外的用户占用，空值跳过。
func (s *UserStore) checkUnique(ctx context.Context, excludeID, username, email string) error {
	taken, err := s.exists(ctx, excludeID, "username", username)
	if err != nil {
		return err
	}
	if taken {
		return errUsernameTaken
	}
	taken, err = s.exists(ctx, excludeID, "email", email)
	if err != nil {
		return err
	}
	if taken {
		return errEmailTaken
	}
	return nil
}

func (s *UserStore) exists(ctx context.Context, excludeID, column, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	q := s.db.WithContext(ctx).Model(&model.User{}).Where(column+" = ?", value)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check %s: %w", column, err)
	}
	return n > 0, nil
}

// duplicateError 在插入因唯一索引失败后，确定是哪一列冲突。
func (s *UserStore) duplicateError(ctx context.Context, excludeID, username, email string, cause error) error {
	if err := s.checkUnique(ctx, excludeID, username, email); err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return apperr.Wrap(apperr.KindConflict, appErr.Message, cause)
		}
	}
	return apperr.Wrap(apperr.KindConflict, "username or email already taken", cause)
}
