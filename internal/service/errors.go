package service

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/lvdashuaibi/campusvote/internal/ballot"
	"github.com/lvdashuaibi/campusvote/internal/identity"
	"github.com/lvdashuaibi/campusvote/internal/repository"
)

var (
	ErrEmailNotVerified = errors.New("邮箱未验证")

	// ErrNoRoleRecord 已通过身份认证，但 accounts 中没有记录
	ErrNoRoleRecord = errors.New("账户记录不存在")

	// ErrAccountLookup accounts 查询失败或记录无效
	ErrAccountLookup   = errors.New("查询账户记录失败")
	ErrLoginIDNotFound = errors.New("学号或工号未注册")

	ErrUnauthenticated = errors.New("未登录")
	ErrForbidden       = errors.New("无权限")

	ErrPasswordMismatch  = errors.New("两次输入的密码不一致")
	ErrMatricTaken       = errors.New("学号已被注册")
	ErrStaffIDTaken      = errors.New("工号已被注册")
	ErrInvalidSignupCode = errors.New("管理员注册码错误")
	ErrInvalidInput      = errors.New("输入无效")

	ErrCandidateNotFound  = errors.New("候选人不存在")
	ErrCandidateDeadline  = errors.New("候选人登记已截止")
	ErrNoCandidates       = errors.New("没有待提交的候选人")
	ErrResultsNotVisible  = errors.New("结果暂不可见")
	ErrResultsRequireVote = errors.New("投票后才能查看结果")
	ErrImageTooLarge      = errors.New("图片超过大小限制")
	ErrWatchUnsupported   = errors.New("当前存储不支持实时订阅")
)

const (
	MsgUnknown         = "An unknown error occurred."
	MsgIncompleteVote  = "Please make a selection for all positions before submitting your vote."
	MsgAlreadyVoted    = "You have already voted in this election."
	MsgNoRoleRecord    = "User data not found. Please contact support."
	MsgEmailNotVerfied = "Please verify your email before logging in."
)

// UserMessage 把内部错误映射为面向用户的固定文案，未识别的错误统一为 MsgUnknown
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var verr *ballot.ValidationError
	if errors.As(err, &verr) {
		if verr.Incomplete() {
			return MsgIncompleteVote
		}
		return "Your ballot contains an invalid selection. Please review it and try again."
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) || errors.Is(err, ErrInvalidInput) {
		return "Some of the information provided is missing or invalid."
	}

	switch {
	case errors.Is(err, repository.ErrAlreadyVoted):
		return MsgAlreadyVoted
	case errors.Is(err, ballot.ErrNoOpenPositions):
		return "There are no positions open for voting."
	case errors.Is(err, ballot.ErrVotingNotStarted):
		return "Voting has not started yet."
	case errors.Is(err, ballot.ErrVotingClosed):
		return "Voting has ended for this election."

	case errors.Is(err, ErrEmailNotVerified):
		return MsgEmailNotVerfied
	case errors.Is(err, ErrNoRoleRecord):
		return MsgNoRoleRecord
	case errors.Is(err, ErrAccountLookup):
		return "Failed to load your account. Please try again later."
	case errors.Is(err, ErrLoginIDNotFound):
		return "No account found with this matric number."
	case errors.Is(err, ErrUnauthenticated):
		return "You must be logged in."
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrPasswordMismatch):
		return "Passwords do not match"
	case errors.Is(err, ErrMatricTaken):
		return "This matric number is already registered."
	case errors.Is(err, ErrStaffIDTaken):
		return "This staff ID is already registered."
	case errors.Is(err, ErrInvalidSignupCode):
		return "Invalid admin signup code."

	case errors.Is(err, identity.ErrUserNotFound):
		return "No user found with this email."
	case errors.Is(err, identity.ErrWrongPassword), errors.Is(err, identity.ErrInvalidCredential):
		return "Incorrect email or password."
	case errors.Is(err, identity.ErrInvalidEmail):
		return "Invalid email format."
	case errors.Is(err, identity.ErrEmailExists):
		return "An account with this email already exists."
	case errors.Is(err, identity.ErrWeakPassword):
		return "Password should be at least 6 characters."
	case errors.Is(err, identity.ErrUserDisabled):
		return "This account has been disabled."
	case errors.Is(err, identity.ErrTooManyRequests):
		return "Too many attempts. Please try again later."

	case errors.Is(err, ErrCandidateNotFound):
		return "Candidate not found."
	case errors.Is(err, ErrCandidateDeadline):
		return "The candidate registration deadline has passed."
	case errors.Is(err, ErrImageTooLarge):
		return "The image is too large."
	case errors.Is(err, ErrNoCandidates):
		return "Please add at least one candidate."
	case errors.Is(err, ErrResultsRequireVote):
		return "You must vote before viewing results"
	case errors.Is(err, ErrResultsNotVisible):
		return "Results are not available yet."
	}
	return MsgUnknown
}
