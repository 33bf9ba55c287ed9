package identity

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

// FirebaseProvider 账户管理走 Admin SDK，密码登录和发信走 REST 接口
type FirebaseProvider struct {
	admin *auth.Client
	rest  *RESTClient
}

func NewFirebaseProvider(admin *auth.Client, rest *RESTClient) *FirebaseProvider {
	return &FirebaseProvider{admin: admin, rest: rest}
}

func (p *FirebaseProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}

	user, err := p.admin.CreateUser(ctx, (&auth.UserToCreate{}).Email(email).Password(password))
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", ErrEmailExists
		}
		return "", fmt.Errorf("创建身份账户失败: %w", err)
	}

	// 注册后立即登录一次以获取发送验证邮件所需的 idToken
	sess, err := p.rest.SignInWithPassword(ctx, email, password)
	if err != nil {
		zap.S().Warnf("新账户 %s 登录失败，未发送验证邮件: %v", user.UID, err)
		return user.UID, nil
	}
	if err := p.rest.SendVerification(ctx, sess.IDToken); err != nil {
		zap.S().Warnf("发送验证邮件失败 uid=%s: %v", user.UID, err)
	}
	return user.UID, nil
}

func (p *FirebaseProvider) DeleteAccount(ctx context.Context, uid string) error {
	if err := p.admin.DeleteUser(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("删除身份账户失败: %w", err)
	}
	return nil
}

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	sess, err := p.rest.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	user, err := p.admin.GetUser(ctx, sess.UID)
	if err != nil {
		return nil, fmt.Errorf("查询身份账户失败: %w", err)
	}
	sess.EmailVerified = user.EmailVerified
	if sess.Email == "" {
		sess.Email = user.Email
	}
	return sess, nil
}

func (p *FirebaseProvider) SendVerification(ctx context.Context, idToken string) error {
	return p.rest.SendVerification(ctx, idToken)
}

func (p *FirebaseProvider) SendPasswordReset(ctx context.Context, email string) error {
	return p.rest.SendPasswordReset(ctx, email)
}
