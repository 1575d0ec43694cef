// Package apperr 定义 API 层统一的错误分类。
//
// 存储层、会话层与权限层只返回这里的错误类型，请求管道在边界处统一映射为 HTTP 状态码。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别。
type Kind int

const (
	KindInternal     Kind = iota // 未预期的内部错误
	KindUnauthorized             // 缺失/无效/过期的令牌，或凭证错误
	KindForbidden                // 身份已知但无权限
	KindNotFound                 // 资源不存在
	KindConflict                 // 用户名或邮箱唯一性冲突
	KindValidation               // 缺失或非法的必填字段
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error 是带类别的业务错误。Message 可以直接返回给客户端。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 让同类别、同消息的错误在 errors.Is 下相等。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

var (
	// ErrInvalidCredentials 登录失败时的统一错误，不区分用户不存在还是密码错误。
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Message: "invalid credentials"}
	// ErrInvalidToken 令牌无法通过校验，或其主体已不存在。
	ErrInvalidToken = &Error{Kind: KindUnauthorized, Message: "invalid token"}
)

func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func Validation(msg string) *Error   { return &Error{Kind: KindValidation, Message: msg} }

// Wrap 为底层错误附加类别与对外消息。
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf 返回 err 链上第一个 *Error 的类别，找不到时为 KindInternal。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Message 返回可对外展示的消息；内部错误统一返回通用描述。
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "internal server error"
}
