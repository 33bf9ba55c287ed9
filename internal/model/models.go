package model

import (
	"strings"
	"time"
)

// AccountRecord accounts 集合中的文档，按身份提供方 uid 存储；角色只由此处决定
type AccountRecord struct {
	UID          string    `firestore:"-" json:"uid" validate:"required"`
	Email        string    `firestore:"email" json:"email" validate:"required,email"`
	Role         Role      `firestore:"role" json:"role" validate:"required,oneof=admin student"`
	FirstName    string    `firestore:"firstName" json:"firstName" validate:"required"`
	LastName     string    `firestore:"lastName" json:"lastName" validate:"required"`
	MatricNumber string    `firestore:"matricNumber,omitempty" json:"matricNumber,omitempty" validate:"required_if=Role student"`
	Faculty      string    `firestore:"faculty,omitempty" json:"faculty,omitempty" validate:"required_if=Role student"`
	Department   string    `firestore:"department,omitempty" json:"department,omitempty" validate:"required_if=Role student"`
	Level        string    `firestore:"level,omitempty" json:"level,omitempty" validate:"required_if=Role student"`
	StaffID      string    `firestore:"staffId,omitempty" json:"staffId,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt" json:"createdAt"`
}

// LoginID 学号/工号 -> 邮箱 的映射，文档ID为 NormalizeLoginID 的结果
type LoginID struct {
	Key   string      `firestore:"-" json:"key" validate:"required"`
	Email string      `firestore:"email" json:"email" validate:"required,email"`
	UID   string      `firestore:"uid" json:"uid"`
	Kind  LoginIDKind `firestore:"kind" json:"kind" validate:"required,oneof=matric staff"`
}

type LoginIDKind string

const (
	LoginIDMatric LoginIDKind = "matric"
	LoginIDStaff  LoginIDKind = "staff"
)

// NormalizeLoginID 把 "21/0166" 之类的学号转换为可作文档ID的键
func NormalizeLoginID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	return strings.NewReplacer("/", "-", " ", "", "\\", "-").Replace(id)
}

// Candidate 候选人
type Candidate struct {
	ID        string    `firestore:"-" json:"id"`
	Name      string    `firestore:"name" json:"name" validate:"required,max=120"`
	Position  string    `firestore:"position" json:"position" validate:"required,max=120"`
	ImageURL  string    `firestore:"imageUrl" json:"imageUrl"`
	Manifesto string    `firestore:"manifesto,omitempty" json:"manifesto,omitempty" validate:"max=5000"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
}

// VoteRecord 每个学生至多一条，文档ID即 StudentID
type VoteRecord struct {
	StudentID          string            `firestore:"studentId" json:"studentId" validate:"required"`
	PositionSelections map[string]string `firestore:"positionSelections" json:"positionSelections" validate:"required,min=1,dive,keys,required,endkeys,required"`
	Submitted          bool              `firestore:"submitted" json:"submitted"`
	Timestamp          time.Time         `firestore:"timestamp" json:"timestamp" validate:"required"`
}

// VoteEvent Kafka投票事件
type VoteEvent struct {
	StudentID string    `json:"studentId"`
	Positions []string  `json:"positions"`
	VotedAt   time.Time `json:"votedAt"`
}

// Session 登录会话，保存在Redis中
type Session struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// CandidateCount 候选人计票
type CandidateCount struct {
	CandidateID string `json:"candidateId"`
	Name        string `json:"name"`
	ImageURL    string `json:"imageUrl"`
	Votes       int    `json:"votes"`
}

// PositionResult 单个职位的计票结果
type PositionResult struct {
	Position   string           `json:"position"`
	Candidates []CandidateCount `json:"candidates"`
	TotalVotes int              `json:"totalVotes"`
}

// Leader 返回唯一领先且票数大于0的候选人；平票或无人得票时 ok=false
func (p PositionResult) Leader() (CandidateCount, bool) {
	if len(p.Candidates) == 0 || p.Candidates[0].Votes == 0 {
		return CandidateCount{}, false
	}
	if len(p.Candidates) > 1 && p.Candidates[1].Votes == p.Candidates[0].Votes {
		return CandidateCount{}, false
	}
	return p.Candidates[0], true
}

// Percent 候选人得票占该职位总票数的百分比，保留一位小数
func (p PositionResult) Percent(c CandidateCount) float64 {
	if p.TotalVotes == 0 {
		return 0
	}
	v := float64(c.Votes) / float64(p.TotalVotes) * 100
	return float64(int64(v*10+0.5)) / 10
}

// Results 全部职位的计票快照
type Results struct {
	Positions   []PositionResult `json:"positions"`
	TotalVoters int              `json:"totalVoters"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Position 按名称查找职位结果
func (r *Results) Position(name string) (PositionResult, bool) {
	for _, p := range r.Positions {
		if p.Position == name {
			return p, true
		}
	}
	return PositionResult{}, false
}
