package service

import (
	"context"

	"github.com/lvdashuaibi/campusvote/internal/model"
)

// Principal 当前请求的登录身份
type Principal struct {
	SessionID string
	UID       string
	Role      model.Role
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == model.RoleAdmin
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// RequireRole 未登录返回 ErrUnauthenticated，角色不符返回 ErrForbidden；不传角色时只要求登录
func RequireRole(ctx context.Context, roles ...model.Role) (*Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if len(roles) == 0 {
		return p, nil
	}
	for _, r := range roles {
		if p.Role == r {
			return p, nil
		}
	}
	return nil, ErrForbidden
}
