// Package identity 封装外部身份提供方：创建账户、邮箱密码登录、验证邮件和重置密码邮件。
// 角色信息不在这里，由 accounts 集合决定。
package identity

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound      = errors.New("identity: user not found")
	ErrWrongPassword     = errors.New("identity: wrong password")
	ErrInvalidCredential = errors.New("identity: invalid credential")
	ErrInvalidEmail      = errors.New("identity: invalid email")
	ErrEmailExists       = errors.New("identity: email already in use")
	ErrWeakPassword      = errors.New("identity: weak password")
	ErrUserDisabled      = errors.New("identity: user disabled")
	ErrTooManyRequests   = errors.New("identity: too many requests")
)

// MinPasswordLength 身份提供方接受的最短密码
const MinPasswordLength = 6

// Session 登录成功后身份提供方返回的信息
type Session struct {
	UID           string
	Email         string
	EmailVerified bool
	IDToken       string
}

// Provider 身份提供方
type Provider interface {
	// CreateAccount 创建邮箱密码账户并发送验证邮件，返回 uid
	CreateAccount(ctx context.Context, email, password string) (string, error)
	// DeleteAccount 注册后续步骤失败时回滚
	DeleteAccount(ctx context.Context, uid string) error
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SendVerification(ctx context.Context, idToken string) error
	SendPasswordReset(ctx context.Context, email string) error
}
