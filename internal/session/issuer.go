// Package session 负责凭证校验以及 JWT 的签发与验证。
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/pkg/password"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL 令牌默认有效期。
const DefaultTTL = 8 * time.Hour

// UserFinder 是 Issuer 对凭证存储的最小依赖。
type UserFinder interface {
	FindByUsernameOrEmail(ctx context.Context, value string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Result 登录成功的结果。
type Result struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Identity 是一次请求中已验证的调用者。
type Identity struct {
	UserID string
	Role   model.Role
	User   *model.User
}

type customClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Issuer 签发并验证会话令牌。
type Issuer struct {
	users     UserFinder
	hasher    password.Hasher
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
	dummyHash string
}

// Option 调整 Issuer 的可选参数。
type Option func(*Issuer)

// WithClock 替换时间来源，用于测试过期逻辑。
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer 创建 Issuer。ttl 不大于 0 时使用 DefaultTTL。
func NewIssuer(users UserFinder, hasher password.Hasher, secret string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("session: empty signing secret")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	i := &Issuer{
		users:  users,
		hasher: hasher,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	// 未知用户也做一次哈希比较，使两种失败耗时接近
	dummy, err := hasher.Hash("taskhub-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("session: prepare dummy hash: %w", err)
	}
	i.dummyHash = dummy
	return i, nil
}

// Authenticate 校验用户名/邮箱与密码，成功后签发令牌。
// 用户不存在与密码错误返回同一个 ErrInvalidCredentials。
func (i *Issuer) Authenticate(ctx context.Context, usernameOrEmail, plaintext string) (*Result, error) {
	user, err := i.users.FindByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = i.hasher.Compare(i.dummyHash, plaintext)
		return nil, apperr.ErrInvalidCredentials
	}
	if err := i.hasher.Compare(user.Password, plaintext); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, err
	}

	token, exp, err := i.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Result{Token: token, ExpiresAt: exp, User: user}, nil
}

// Issue 为用户签发 HS256 令牌。
func (i *Issuer) Issue(user *model.User) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: string(user.Role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Validate 校验令牌并解析出仍然存在的用户。
// 返回的角色取自存储，而非令牌中的声明。
func (i *Issuer) Validate(ctx context.Context, token string) (*Identity, error) {
	claims := &customClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, apperr.Wrap(apperr.KindUnauthorized, apperr.ErrInvalidToken.Message, err)
	}
	if claims.Subject == "" {
		return nil, apperr.ErrInvalidToken
	}

	user, err := i.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.ErrInvalidToken
	}
	return &Identity{UserID: user.ID, Role: user.Role, User: user}, nil
}
