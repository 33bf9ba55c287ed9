package graph

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/internal/ballot"
	"github.com/lvdashuaibi/campusvote/internal/repository"
	"github.com/lvdashuaibi/campusvote/internal/service"
)

// UserError 返回给客户端的错误，只包含固定文案和错误码
type UserError struct {
	Message string
	Code    string
}

func (e *UserError) Error() string { return e.Message }

// Extensions graphql-go 会把它输出到 errors[].extensions
func (e *UserError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.Code}
}

func errorCode(err error) string {
	var verr *ballot.ValidationError
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, service.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, repository.ErrAlreadyVoted):
		return "ALREADY_VOTED"
	case errors.Is(err, ballot.ErrVotingClosed), errors.Is(err, ballot.ErrVotingNotStarted):
		return "VOTING_CLOSED"
	case errors.As(err, &verr), errors.As(err, &fieldErrs), errors.Is(err, service.ErrInvalidInput):
		return "BAD_USER_INPUT"
	case errors.Is(err, service.ErrCandidateNotFound):
		return "NOT_FOUND"
	}
	if service.UserMessage(err) == service.MsgUnknown {
		return "INTERNAL"
	}
	return "REQUEST_FAILED"
}

// userError 记录原始错误，只把映射后的文案交给客户端
func userError(op string, err error) error {
	if err == nil {
		return nil
	}
	ue := &UserError{Message: service.UserMessage(err), Code: errorCode(err)}
	if ue.Code == "INTERNAL" {
		zap.S().Errorf("GraphQL %s 失败: %v", op, err)
	} else {
		zap.S().Infof("GraphQL %s 被拒绝: %v", op, err)
	}
	return ue
}
