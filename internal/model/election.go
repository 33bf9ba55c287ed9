package model

import (
	"fmt"
	"strings"
	"time"
)

type ElectionStatus string

const (
	StatusUpcoming  ElectionStatus = "Upcoming"
	StatusOngoing   ElectionStatus = "Ongoing"
	StatusCompleted ElectionStatus = "Completed"
)

// ParseElectionStatus 大小写不敏感，"Active" 视为 Ongoing
func ParseElectionStatus(s string) (ElectionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upcoming":
		return StatusUpcoming, nil
	case "ongoing", "active":
		return StatusOngoing, nil
	case "completed", "closed":
		return StatusCompleted, nil
	}
	return "", fmt.Errorf("未知的选举状态: %q", s)
}

type ResultsVisibility string

const (
	// VisibilityLive 学生投票后即可查看实时结果
	VisibilityLive       ResultsVisibility = "live"
	VisibilityAfterClose ResultsVisibility = "after_close"
	VisibilityHidden     ResultsVisibility = "hidden"
)

func ParseResultsVisibility(s string) (ResultsVisibility, error) {
	switch ResultsVisibility(strings.ToLower(strings.TrimSpace(s))) {
	case "", VisibilityLive:
		return VisibilityLive, nil
	case VisibilityAfterClose:
		return VisibilityAfterClose, nil
	case VisibilityHidden:
		return VisibilityHidden, nil
	}
	return "", fmt.Errorf("未知的结果可见性: %q", s)
}

// ElectionConfig 单例选举配置，文档 election/status
type ElectionConfig struct {
	Title             string            `firestore:"title" json:"title" validate:"max=200"`
	Description       string            `firestore:"description" json:"description"`
	Instructions      string            `firestore:"instructions" json:"instructions"`
	Status            ElectionStatus    `firestore:"status" json:"status" validate:"required,oneof=Upcoming Ongoing Completed"`
	StartDate         time.Time         `firestore:"startDate" json:"startDate"`
	EndDate           time.Time         `firestore:"endDate" json:"endDate"`
	CandidateDeadline time.Time         `firestore:"candidateDeadline" json:"candidateDeadline"`
	ResultsVisibility ResultsVisibility `firestore:"resultsVisibility" json:"resultsVisibility" validate:"required,oneof=live after_close hidden"`
	AutoTransition    bool              `firestore:"autoTransition" json:"autoTransition"`
	LastUpdated       time.Time         `firestore:"lastUpdated" json:"lastUpdated"`
}

// DefaultElection 尚未配置时返回的默认值
func DefaultElection() *ElectionConfig {
	return &ElectionConfig{
		Title:             "Student Union Election",
		Status:            StatusUpcoming,
		ResultsVisibility: VisibilityLive,
	}
}

// CheckDates 开始时间必须早于结束时间
func (e *ElectionConfig) CheckDates() error {
	if !e.StartDate.IsZero() && !e.EndDate.IsZero() && !e.StartDate.Before(e.EndDate) {
		return fmt.Errorf("开始时间必须早于结束时间")
	}
	return nil
}

// StatusAt 根据起止时间推算状态，未设置日期时保持原状态
func (e *ElectionConfig) StatusAt(now time.Time) ElectionStatus {
	switch {
	case !e.EndDate.IsZero() && !now.Before(e.EndDate):
		return StatusCompleted
	case !e.StartDate.IsZero() && now.Before(e.StartDate):
		return StatusUpcoming
	case !e.StartDate.IsZero():
		return StatusOngoing
	}
	return e.Status
}

// CandidateRegistrationOpen 候选人登记截止前返回 true
func (e *ElectionConfig) CandidateRegistrationOpen(now time.Time) bool {
	return e.CandidateDeadline.IsZero() || now.Before(e.CandidateDeadline)
}

// VotingState 学生投票生命周期: NotVoted -> Submitting -> Submitted
type VotingState string

const (
	NotVoted   VotingState = "NOT_VOTED"
	Submitting VotingState = "SUBMITTING"
	Submitted  VotingState = "SUBMITTED"
)
