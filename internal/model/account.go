package model

import (
	"errors"
	"fmt"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

var ErrInvalidAccount = errors.New("账户记录无效")

// Account 已认证账户: *Admin 或 *Student
type Account interface {
	AccountID() string
	AccountEmail() string
	Role() Role
	// Redirect 登录后的跳转页面
	Redirect() string
	isAccount()
}

type Admin struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	StaffID   string
	CreatedAt time.Time
}

func (a *Admin) AccountID() string    { return a.ID }
func (a *Admin) AccountEmail() string { return a.Email }
func (a *Admin) Role() Role           { return RoleAdmin }
func (a *Admin) Redirect() string     { return "/admin-dashboard" }
func (a *Admin) isAccount()           {}

// StudentProfile 注册时填写的学生资料
type StudentProfile struct {
	FirstName    string
	LastName     string
	MatricNumber string
	Faculty      string
	Department   string
	Level        string
	Email        string
}

type Student struct {
	ID        string
	Profile   StudentProfile
	CreatedAt time.Time
}

func (s *Student) AccountID() string    { return s.ID }
func (s *Student) AccountEmail() string { return s.Profile.Email }
func (s *Student) Role() Role           { return RoleStudent }
func (s *Student) Redirect() string     { return "/student/dashboard" }
func (s *Student) isAccount()           {}

// Account 把存储记录转换为带标签的账户类型
func (r *AccountRecord) Account() (Account, error) {
	if err := Validate(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	switch r.Role {
	case RoleAdmin:
		return &Admin{
			ID:        r.UID,
			Email:     r.Email,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			StaffID:   r.StaffID,
			CreatedAt: r.CreatedAt,
		}, nil
	case RoleStudent:
		return &Student{
			ID: r.UID,
			Profile: StudentProfile{
				FirstName:    r.FirstName,
				LastName:     r.LastName,
				MatricNumber: r.MatricNumber,
				Faculty:      r.Faculty,
				Department:   r.Department,
				Level:        r.Level,
				Email:        r.Email,
			},
			CreatedAt: r.CreatedAt,
		}, nil
	}
	return nil, fmt.Errorf("%w: 未知角色 %q", ErrInvalidAccount, r.Role)
}

// NewStudentRecord 由学生资料构建 accounts 记录
func NewStudentRecord(uid string, p StudentProfile, now time.Time) *AccountRecord {
	return &AccountRecord{
		UID:          uid,
		Email:        p.Email,
		Role:         RoleStudent,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		MatricNumber: p.MatricNumber,
		Faculty:      p.Faculty,
		Department:   p.Department,
		Level:        p.Level,
		CreatedAt:    now,
	}
}
