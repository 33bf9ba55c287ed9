package graph

import (
	"context"
	"fmt"
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/service"
)

const voteRecordedMessage = "Your vote has been successfully recorded!"

// Resolver GraphQL根解析器，Query 和 Mutation 字段都在这里
type Resolver struct {
	svc *service.Services
	now func() time.Time
}

func NewResolver(svc *service.Services) *Resolver {
	return &Resolver{svc: svc, now: time.Now}
}

// 学生注册输入
type StudentRegistrationInput struct {
	FirstName       string
	LastName        string
	MatricNumber    string
	Faculty         string
	Department      string
	Level           string
	Email           string
	Password        string
	ConfirmPassword string
}

// 管理员注册输入
type AdminRegistrationInput struct {
	FirstName       string
	LastName        string
	Email           string
	StaffID         *string
	Password        string
	ConfirmPassword string
	SignupCode      *string
}

// 候选人输入
type CandidateInput struct {
	Name      string
	Position  string
	Manifesto *string
	ImageURL  *string
}

// 选举设置输入，未提供的字段保持不变
type ElectionInput struct {
	Title             *string
	Description       *string
	Instructions      *string
	Status            *string
	StartDate         *graphql.Time
	EndDate           *graphql.Time
	CandidateDeadline *graphql.Time
	ResultsVisibility *string
	AutoTransition    *bool
}

// 单个职位的选择
type SelectionInput struct {
	Position    string
	CandidateID graphql.ID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timePtr(t *graphql.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

// ---- Query ----

func (r *Resolver) Me(ctx context.Context) (*AccountResolver, error) {
	p, err := service.RequireRole(ctx)
	if err != nil {
		return nil, userError("me", err)
	}
	acct, err := r.svc.Auth.LookupAccount(ctx, p.UID)
	if err != nil {
		return nil, userError("me", err)
	}
	return &AccountResolver{account: acct}, nil
}

func (r *Resolver) StudentDashboard(ctx context.Context) (*StudentDashboardResolver, error) {
	p, err := service.RequireRole(ctx, model.RoleStudent)
	if err != nil {
		return nil, userError("studentDashboard", err)
	}
	d, err := r.svc.Dashboard.Student(ctx, p.UID)
	if err != nil {
		return nil, userError("studentDashboard", err)
	}
	return &StudentDashboardResolver{d: d, now: r.now()}, nil
}

func (r *Resolver) AdminDashboard(ctx context.Context) (*AdminDashboardResolver, error) {
	if _, err := service.RequireRole(ctx, model.RoleAdmin); err != nil {
		return nil, userError("adminDashboard", err)
	}
	d, err := r.svc.Dashboard.Admin(ctx)
	if err != nil {
		return nil, userError("adminDashboard", err)
	}
	return &AdminDashboardResolver{d: d, now: r.now()}, nil
}

func (r *Resolver) Election(ctx context.Context) (*ElectionResolver, error) {
	if _, err := service.RequireRole(ctx); err != nil {
		return nil, userError("election", err)
	}
	cfg, err := r.svc.Elections.Get(ctx)
	if err != nil {
		return nil, userError("election", err)
	}
	return &ElectionResolver{cfg: cfg, now: r.now()}, nil
}

func (r *Resolver) Positions(ctx context.Context) ([]string, error) {
	if _, err := service.RequireRole(ctx); err != nil {
		return nil, userError("positions", err)
	}
	positions, err := r.svc.Candidates.Positions(ctx)
	if err != nil {
		return nil, userError("positions", err)
	}
	return positions, nil
}

func (r *Resolver) Candidates(ctx context.Context, args struct{ Position *string }) ([]*CandidateResolver, error) {
	if _, err := service.RequireRole(ctx); err != nil {
		return nil, userError("candidates", err)
	}
	cs, err := r.svc.Candidates.ListCandidates(ctx, deref(args.Position))
	if err != nil {
		return nil, userError("candidates", err)
	}
	return candidateResolvers(cs), nil
}

func (r *Resolver) Candidate(ctx context.Context, args struct{ ID graphql.ID }) (*CandidateResolver, error) {
	if _, err := service.RequireRole(ctx); err != nil {
		return nil, userError("candidate", err)
	}
	c, err := r.svc.Candidates.GetCandidate(ctx, string(args.ID))
	if err != nil {
		return nil, userError("candidate", err)
	}
	return &CandidateResolver{c: c}, nil
}

func (r *Resolver) Ballot(ctx context.Context) ([]*BallotPositionResolver, error) {
	if _, err := service.RequireRole(ctx); err != nil {
		return nil, userError("ballot", err)
	}
	b, err := r.svc.Candidates.Ballot(ctx)
	if err != nil {
		return nil, userError("ballot", err)
	}
	positions := b.Positions()
	out := make([]*BallotPositionResolver, len(positions))
	for i, pos := range positions {
		out[i] = &BallotPositionResolver{position: pos, candidates: b.Candidates(pos)}
	}
	return out, nil
}

func (r *Resolver) HasVoted(ctx context.Context) (bool, error) {
	p, err := service.RequireRole(ctx, model.RoleStudent)
	if err != nil {
		return false, userError("hasVoted", err)
	}
	voted, err := r.svc.Votes.HasVoted(ctx, p.UID)
	if err != nil {
		return false, userError("hasVoted", err)
	}
	return voted, nil
}

func (r *Resolver) VotingState(ctx context.Context) (string, error) {
	p, err := service.RequireRole(ctx, model.RoleStudent)
	if err != nil {
		return "", userError("votingState", err)
	}
	state, err := r.svc.Votes.State(ctx, p.UID)
	if err != nil {
		return "", userError("votingState", err)
	}
	return string(state), nil
}

func (r *Resolver) Results(ctx context.Context) (*ResultsResolver, error) {
	p, err := service.RequireRole(ctx)
	if err != nil {
		return nil, userError("results", err)
	}
	res, err := r.svc.Results.View(ctx, p)
	if err != nil {
		return nil, userError("results", err)
	}
	return &ResultsResolver{res: res}, nil
}

func (r *Resolver) RegisteredVoters(ctx context.Context, args struct{ Search *string }) ([]*AccountResolver, error) {
	if _, err := service.RequireRole(ctx, model.RoleAdmin); err != nil {
		return nil, userError("registeredVoters", err)
	}
	students, err := r.svc.Dashboard.RegisteredVoters(ctx, deref(args.Search))
	if err != nil {
		return nil, userError("registeredVoters", err)
	}
	out := make([]*AccountResolver, len(students))
	for i, st := range students {
		out[i] = &AccountResolver{account: st}
	}
	return out, nil
}

// ---- Mutation ----

func (r *Resolver) RegisterStudent(ctx context.Context, args struct{ Input StudentRegistrationInput }) (*AccountResolver, error) {
	in := args.Input
	st, err := r.svc.Auth.RegisterStudent(ctx, service.StudentRegistration{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		MatricNumber:    in.MatricNumber,
		Faculty:         in.Faculty,
		Department:      in.Department,
		Level:           in.Level,
		Email:           in.Email,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
	})
	if err != nil {
		return nil, userError("registerStudent", err)
	}
	return &AccountResolver{account: st}, nil
}

func (r *Resolver) RegisterAdmin(ctx context.Context, args struct{ Input AdminRegistrationInput }) (*AccountResolver, error) {
	in := args.Input
	admin, err := r.svc.Auth.RegisterAdmin(ctx, service.AdminRegistration{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		StaffID:         deref(in.StaffID),
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
		SignupCode:      deref(in.SignupCode),
	})
	if err != nil {
		return nil, userError("registerAdmin", err)
	}
	return &AccountResolver{account: admin}, nil
}

func (r *Resolver) Login(ctx context.Context, args struct{ Identifier, Password string }) (*LoginPayloadResolver, error) {
	res, err := r.svc.Auth.Login(ctx, args.Identifier, args.Password)
	if err != nil {
		return nil, userError("login", err)
	}
	return &LoginPayloadResolver{res: res}, nil
}

func (r *Resolver) Logout(ctx context.Context) (bool, error) {
	p, err := service.RequireRole(ctx)
	if err != nil {
		return false, userError("logout", err)
	}
	if err := r.svc.Auth.Logout(ctx, p.SessionID); err != nil {
		return false, userError("logout", err)
	}
	return true, nil
}

func (r *Resolver) RequestPasswordReset(ctx context.Context, args struct{ Email string }) (bool, error) {
	if err := r.svc.Auth.SendPasswordReset(ctx, args.Email); err != nil {
		return false, userError("requestPasswordReset", err)
	}
	return true, nil
}

func (r *Resolver) AddCandidates(ctx context.Context, args struct{ Input []CandidateInput }) ([]*CandidateResolver, error) {
	if _, err := service.RequireRole(ctx, model.RoleAdmin); err != nil {
		return nil, userError("addCandidates", err)
	}
	inputs := make([]service.CandidateInput, len(args.Input))
	for i, in := range args.Input {
		inputs[i] = service.CandidateInput{
			Name:      in.Name,
			Position:  in.Position,
			Manifesto: deref(in.Manifesto),
			ImageURL:  deref(in.ImageURL),
		}
	}
	created, err := r.svc.Candidates.AddCandidates(ctx, inputs)
	if err != nil {
		return nil, userError("addCandidates", err)
	}
	return candidateResolvers(created), nil
}

func (r *Resolver) RemoveCandidate(ctx context.Context, args struct{ ID graphql.ID }) (bool, error) {
	if _, err := service.RequireRole(ctx, model.RoleAdmin); err != nil {
		return false, userError("removeCandidate", err)
	}
	if err := r.svc.Candidates.RemoveCandidate(ctx, string(args.ID)); err != nil {
		return false, userError("removeCandidate", err)
	}
	return true, nil
}

func (r *Resolver) UpdateElection(ctx context.Context, args struct{ Input ElectionInput }) (*ElectionResolver, error) {
	if _, err := service.RequireRole(ctx, model.RoleAdmin); err != nil {
		return nil, userError("updateElection", err)
	}
	in := args.Input
	cfg, err := r.svc.Elections.Update(ctx, service.ElectionUpdate{
		Title:             in.Title,
		Description:       in.Description,
		Instructions:      in.Instructions,
		Status:            in.Status,
		StartDate:         timePtr(in.StartDate),
		EndDate:           timePtr(in.EndDate),
		CandidateDeadline: timePtr(in.CandidateDeadline),
		ResultsVisibility: in.ResultsVisibility,
		AutoTransition:    in.AutoTransition,
	})
	if err != nil {
		return nil, userError("updateElection", err)
	}
	return &ElectionResolver{cfg: cfg, now: r.now()}, nil
}

func (r *Resolver) SubmitVote(ctx context.Context, args struct{ Selections []SelectionInput }) (*VotePayloadResolver, error) {
	p, err := service.RequireRole(ctx, model.RoleStudent)
	if err != nil {
		return nil, userError("submitVote", err)
	}

	selections := make(map[string]string, len(args.Selections))
	for _, s := range args.Selections {
		if _, dup := selections[s.Position]; dup {
			return nil, userError("submitVote", fmt.Errorf("%w: 职位 %s 重复选择", service.ErrInvalidInput, s.Position))
		}
		selections[s.Position] = string(s.CandidateID)
	}

	rec, err := r.svc.Votes.SubmitVote(ctx, p.UID, selections)
	if err != nil {
		return nil, userError("submitVote", err)
	}
	return &VotePayloadResolver{success: true, message: voteRecordedMessage, timestamp: rec.Timestamp}, nil
}
