package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lvdashuaibi/campusvote/internal/ballot"
	"github.com/lvdashuaibi/campusvote/internal/identity"
	"github.com/lvdashuaibi/campusvote/internal/repository"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("保存投票失败: %w", repository.ErrAlreadyVoted), MsgAlreadyVoted},
		{&ballot.ValidationError{Missing: []string{"President"}}, MsgIncompleteVote},
		{&ballot.ValidationError{Unknown: []string{"Secretary"}}, "Your ballot contains an invalid selection. Please review it and try again."},
		{identity.ErrInvalidEmail, "Invalid email format."},
		{fmt.Errorf("登录失败: %w", identity.ErrInvalidCredential), "Incorrect email or password."},
		{ErrEmailNotVerified, MsgEmailNotVerfied},
		{ErrNoRoleRecord, MsgNoRoleRecord},
		{ErrResultsRequireVote, "You must vote before viewing results"},
		{ErrCandidateNotFound, "Candidate not found."},
		{errors.New("connection reset"), MsgUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UserMessage(tt.err), "%v", tt.err)
	}
}
