package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type memoryUser struct {
	uid      string
	email    string
	hash     [32]byte
	verified bool
}

// MemoryProvider 进程内身份提供方，配合 memory 存储用于本地开发与测试
type MemoryProvider struct {
	mu         sync.Mutex
	users      map[string]*memoryUser // email -> user
	autoVerify bool

	// 已发送的邮件，按类型记录收件人
	Verifications []string
	Resets        []string
}

// NewMemoryProvider autoVerify 为 true 时新账户直接视为已验证邮箱
func NewMemoryProvider(autoVerify bool) *MemoryProvider {
	return &MemoryProvider{users: make(map[string]*memoryUser), autoVerify: autoVerify}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *MemoryProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.users[email]; ok {
		return "", ErrEmailExists
	}
	u := &memoryUser{
		uid:      uuid.NewString(),
		email:    email,
		hash:     sha256.Sum256([]byte(password)),
		verified: p.autoVerify,
	}
	p.users[email] = u
	if !u.verified {
		p.Verifications = append(p.Verifications, email)
	}
	return u.uid, nil
}

func (p *MemoryProvider) DeleteAccount(ctx context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for email, u := range p.users {
		if u.uid == uid {
			delete(p.users, email)
			return nil
		}
	}
	return ErrUserNotFound
}

func (p *MemoryProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	hash := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(hash[:], u.hash[:]) != 1 {
		return nil, ErrWrongPassword
	}
	// idToken 在内存实现中即为邮箱
	return &Session{UID: u.uid, Email: u.email, EmailVerified: u.verified, IDToken: u.email}, nil
}

func (p *MemoryProvider) SendVerification(ctx context.Context, idToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.users[idToken]; !ok {
		return ErrInvalidCredential
	}
	p.Verifications = append(p.Verifications, idToken)
	return nil
}

func (p *MemoryProvider) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.users[email]; !ok {
		return ErrUserNotFound
	}
	p.Resets = append(p.Resets, email)
	return nil
}

// Verify 模拟用户点击验证邮件中的链接
func (p *MemoryProvider) Verify(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u, ok := p.users[normalizeEmail(email)]; ok {
		u.verified = true
	}
}
