package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/identity"
	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/repository"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
)

// maxTokenLifetime 令牌的绝对有效期，空闲过期由Redis会话的滑动TTL控制
const maxTokenLifetime = 7 * 24 * time.Hour

// SessionStore 会话存储，由 RedisRepository 实现
type SessionStore interface {
	SaveSession(ctx context.Context, s *model.Session, ttl time.Duration) error
	TouchSession(ctx context.Context, sessionID string, ttl time.Duration) (*model.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// StudentRegistration 学生注册表单
type StudentRegistration struct {
	FirstName       string `validate:"required"`
	LastName        string `validate:"required"`
	MatricNumber    string `validate:"required"`
	Faculty         string `validate:"required"`
	Department      string `validate:"required"`
	Level           string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required"`
}

// AdminRegistration 管理员注册表单，StaffID 可选，填写后可用工号登录
type AdminRegistration struct {
	FirstName       string `validate:"required"`
	LastName        string `validate:"required"`
	Email           string `validate:"required,email"`
	StaffID         string
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required"`
	SignupCode      string
}

// LoginResult 登录成功后返回给客户端
type LoginResult struct {
	Token     string
	Account   model.Account
	Redirect  string
	ExpiresAt time.Time
}

type AuthService struct {
	accounts   repository.AccountRepository
	provider   identity.Provider
	sessions   SessionStore
	registry   *subscription.Registry
	cfg        config.SessionConfig
	signupCode string
	now        func() time.Time
}

func NewAuthService(
	accounts repository.AccountRepository,
	provider identity.Provider,
	sessions SessionStore,
	registry *subscription.Registry,
	sessionCfg config.SessionConfig,
	signupCode string,
) *AuthService {
	if sessionCfg.TTL <= 0 {
		sessionCfg.TTL = 2 * time.Hour
	}
	return &AuthService{
		accounts:   accounts,
		provider:   provider,
		sessions:   sessions,
		registry:   registry,
		cfg:        sessionCfg,
		signupCode: signupCode,
		now:        time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterStudent 创建身份账户、占用学号并写入 accounts 记录，任一步失败都回滚前面的步骤
func (s *AuthService) RegisterStudent(ctx context.Context, in StudentRegistration) (*model.Student, error) {
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	in.Email = normalizeEmail(in.Email)
	in.MatricNumber = strings.TrimSpace(in.MatricNumber)
	if err := model.Validate(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	key := model.NormalizeLoginID(in.MatricNumber)
	uid, err := s.createIdentity(ctx, key, in.Email, in.Password, ErrMatricTaken)
	if err != nil {
		return nil, err
	}
	if err := s.reserveLoginID(ctx, &model.LoginID{Key: key, Email: in.Email, UID: uid, Kind: model.LoginIDMatric}, ErrMatricTaken); err != nil {
		s.rollbackIdentity(ctx, uid)
		return nil, err
	}

	profile := model.StudentProfile{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		MatricNumber: in.MatricNumber,
		Faculty:      in.Faculty,
		Department:   in.Department,
		Level:        in.Level,
		Email:        in.Email,
	}
	rec := model.NewStudentRecord(uid, profile, s.now())
	if err := s.accounts.CreateAccount(ctx, rec); err != nil {
		s.rollbackLoginID(ctx, key)
		s.rollbackIdentity(ctx, uid)
		return nil, fmt.Errorf("保存学生账户失败: %w", err)
	}

	zap.S().Infof("学生注册成功: uid=%s matric=%s", uid, in.MatricNumber)
	return &model.Student{ID: uid, Profile: profile, CreatedAt: rec.CreatedAt}, nil
}

// RegisterAdmin 配置了注册码时必须匹配
func (s *AuthService) RegisterAdmin(ctx context.Context, in AdminRegistration) (*model.Admin, error) {
	if s.signupCode != "" && subtle.ConstantTimeCompare([]byte(in.SignupCode), []byte(s.signupCode)) != 1 {
		return nil, ErrInvalidSignupCode
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	in.Email = normalizeEmail(in.Email)
	in.StaffID = strings.TrimSpace(in.StaffID)
	if err := model.Validate(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	key := ""
	if in.StaffID != "" {
		key = model.NormalizeLoginID(in.StaffID)
	}
	uid, err := s.createIdentity(ctx, key, in.Email, in.Password, ErrStaffIDTaken)
	if err != nil {
		return nil, err
	}
	if key != "" {
		if err := s.reserveLoginID(ctx, &model.LoginID{Key: key, Email: in.Email, UID: uid, Kind: model.LoginIDStaff}, ErrStaffIDTaken); err != nil {
			s.rollbackIdentity(ctx, uid)
			return nil, err
		}
	}

	rec := &model.AccountRecord{
		UID:       uid,
		Email:     in.Email,
		Role:      model.RoleAdmin,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		StaffID:   in.StaffID,
		CreatedAt: s.now(),
	}
	if err := s.accounts.CreateAccount(ctx, rec); err != nil {
		if key != "" {
			s.rollbackLoginID(ctx, key)
		}
		s.rollbackIdentity(ctx, uid)
		return nil, fmt.Errorf("保存管理员账户失败: %w", err)
	}

	zap.S().Infof("管理员注册成功: uid=%s", uid)
	return &model.Admin{
		ID:        uid,
		Email:     rec.Email,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		StaffID:   rec.StaffID,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// createIdentity 先检查登录ID是否已被占用，避免为注定失败的注册发送验证邮件；
// 最终的唯一性由 reserveLoginID 保证
func (s *AuthService) createIdentity(ctx context.Context, key, email, password string, taken error) (string, error) {
	if key != "" {
		_, err := s.accounts.GetLoginID(ctx, key)
		switch {
		case err == nil:
			return "", taken
		case !errors.Is(err, repository.ErrNotFound):
			return "", fmt.Errorf("查询登录ID失败: %w", err)
		}
	}
	uid, err := s.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return "", fmt.Errorf("创建身份账户失败: %w", err)
	}
	return uid, nil
}

func (s *AuthService) reserveLoginID(ctx context.Context, rec *model.LoginID, taken error) error {
	err := s.accounts.ReserveLoginID(ctx, rec)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return taken
	}
	if err != nil {
		return fmt.Errorf("占用登录ID失败: %w", err)
	}
	return nil
}

func (s *AuthService) rollbackIdentity(ctx context.Context, uid string) {
	if err := s.provider.DeleteAccount(ctx, uid); err != nil {
		zap.S().Errorf("回滚身份账户 %s 失败: %v", uid, err)
	}
}

func (s *AuthService) rollbackLoginID(ctx context.Context, key string) {
	if err := s.accounts.ReleaseLoginID(ctx, key); err != nil {
		zap.S().Errorf("回滚登录ID %s 失败: %v", key, err)
	}
}

// ResolveEmail 含 "@" 的标识直接作为邮箱，否则按学号/工号查找
func (s *AuthService) ResolveEmail(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", ErrInvalidInput
	}
	if strings.Contains(identifier, "@") {
		return normalizeEmail(identifier), nil
	}

	rec, err := s.accounts.GetLoginID(ctx, model.NormalizeLoginID(identifier))
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrLoginIDNotFound
	}
	if err != nil {
		return "", fmt.Errorf("查询登录ID失败: %w", err)
	}
	return rec.Email, nil
}

// LookupAccount 唯一的角色来源：accounts/{uid}
func (s *AuthService) LookupAccount(ctx context.Context, uid string) (model.Account, error) {
	rec, err := s.accounts.GetAccount(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoRoleRecord
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountLookup, err)
	}
	acct, err := rec.Account()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountLookup, err)
	}
	return acct, nil
}

// Login 支持邮箱或学号/工号登录；邮箱未验证时重发验证邮件并拒绝登录
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	email, err := s.ResolveEmail(ctx, identifier)
	if err != nil {
		return nil, err
	}

	sess, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("登录失败: %w", err)
	}
	if !sess.EmailVerified {
		if err := s.provider.SendVerification(ctx, sess.IDToken); err != nil {
			zap.S().Warnf("重发验证邮件失败 uid=%s: %v", sess.UID, err)
		}
		return nil, ErrEmailNotVerified
	}

	acct, err := s.LookupAccount(ctx, sess.UID)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issueSession(ctx, acct)
	if err != nil {
		return nil, err
	}
	zap.S().Infof("用户登录成功: uid=%s role=%s", acct.AccountID(), acct.Role())
	return &LoginResult{Token: token, Account: acct, Redirect: acct.Redirect(), ExpiresAt: expiresAt}, nil
}

func (s *AuthService) issueSession(ctx context.Context, acct model.Account) (string, time.Time, error) {
	now := s.now()
	sess := &model.Session{
		ID:        uuid.NewString(),
		UID:       acct.AccountID(),
		Role:      acct.Role(),
		CreatedAt: now,
	}
	if err := s.sessions.SaveSession(ctx, sess, s.cfg.TTL); err != nil {
		return "", time.Time{}, fmt.Errorf("保存会话失败: %w", err)
	}

	expiresAt := now.Add(maxTokenLifetime)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid":  sess.ID,
		"sub":  sess.UID,
		"role": string(sess.Role),
		"iss":  s.cfg.Issuer,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, expiresAt, nil
}

// Authenticate 校验令牌签名并续期Redis会话；角色以会话中保存的为准
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*Principal, error) {
	// 时间类声明用服务自己的时钟校验
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthenticated
	}
	if !claims.VerifyExpiresAt(s.now().Unix(), true) {
		return nil, ErrUnauthenticated
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return nil, ErrUnauthenticated
	}

	sess, err := s.sessions.TouchSession(ctx, sid, s.cfg.TTL)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("读取会话失败: %w", err)
	}
	return &Principal{SessionID: sess.ID, UID: sess.UID, Role: sess.Role}, nil
}

// Logout 删除会话并释放该会话持有的所有订阅
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if s.registry != nil {
		s.registry.Release(sessionID)
	}
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	return nil
}

func (s *AuthService) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	if err := s.provider.SendPasswordReset(ctx, email); err != nil {
		return fmt.Errorf("发送重置密码邮件失败: %w", err)
	}
	return nil
}
