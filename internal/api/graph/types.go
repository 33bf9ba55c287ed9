package graph

import (
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/lvdashuaibi/campusvote/internal/ballot"
	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/service"
)

func optionalTime(t time.Time) *graphql.Time {
	if t.IsZero() {
		return nil
	}
	return &graphql.Time{Time: t}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AccountResolver 账户解析器，按具体类型输出学生或管理员字段
type AccountResolver struct {
	account model.Account
}

func (r *AccountResolver) ID() graphql.ID   { return graphql.ID(r.account.AccountID()) }
func (r *AccountResolver) Email() string    { return r.account.AccountEmail() }
func (r *AccountResolver) Role() string     { return string(r.account.Role()) }
func (r *AccountResolver) Redirect() string { return r.account.Redirect() }

func (r *AccountResolver) FirstName() string {
	switch a := r.account.(type) {
	case *model.Student:
		return a.Profile.FirstName
	case *model.Admin:
		return a.FirstName
	}
	return ""
}

func (r *AccountResolver) LastName() string {
	switch a := r.account.(type) {
	case *model.Student:
		return a.Profile.LastName
	case *model.Admin:
		return a.LastName
	}
	return ""
}

func (r *AccountResolver) profile() *model.StudentProfile {
	if s, ok := r.account.(*model.Student); ok {
		return &s.Profile
	}
	return nil
}

func (r *AccountResolver) MatricNumber() *string {
	if p := r.profile(); p != nil {
		return optionalString(p.MatricNumber)
	}
	return nil
}

func (r *AccountResolver) Faculty() *string {
	if p := r.profile(); p != nil {
		return optionalString(p.Faculty)
	}
	return nil
}

func (r *AccountResolver) Department() *string {
	if p := r.profile(); p != nil {
		return optionalString(p.Department)
	}
	return nil
}

func (r *AccountResolver) Level() *string {
	if p := r.profile(); p != nil {
		return optionalString(p.Level)
	}
	return nil
}

func (r *AccountResolver) StaffID() *string {
	if a, ok := r.account.(*model.Admin); ok {
		return optionalString(a.StaffID)
	}
	return nil
}

// CandidateResolver 候选人解析器
type CandidateResolver struct {
	c *model.Candidate
}

func (r *CandidateResolver) ID() graphql.ID          { return graphql.ID(r.c.ID) }
func (r *CandidateResolver) Name() string            { return r.c.Name }
func (r *CandidateResolver) Position() string        { return r.c.Position }
func (r *CandidateResolver) ImageURL() string        { return r.c.ImageURL }
func (r *CandidateResolver) Manifesto() string       { return r.c.Manifesto }
func (r *CandidateResolver) CreatedAt() graphql.Time { return graphql.Time{Time: r.c.CreatedAt} }

func candidateResolvers(cs []*model.Candidate) []*CandidateResolver {
	out := make([]*CandidateResolver, len(cs))
	for i, c := range cs {
		out[i] = &CandidateResolver{c: c}
	}
	return out
}

// ElectionResolver 选举配置解析器
type ElectionResolver struct {
	cfg *model.ElectionConfig
	now time.Time
}

func (r *ElectionResolver) Title() string                    { return r.cfg.Title }
func (r *ElectionResolver) Description() string              { return r.cfg.Description }
func (r *ElectionResolver) Instructions() string             { return r.cfg.Instructions }
func (r *ElectionResolver) Status() string                   { return string(r.cfg.Status) }
func (r *ElectionResolver) StartDate() *graphql.Time         { return optionalTime(r.cfg.StartDate) }
func (r *ElectionResolver) EndDate() *graphql.Time           { return optionalTime(r.cfg.EndDate) }
func (r *ElectionResolver) CandidateDeadline() *graphql.Time { return optionalTime(r.cfg.CandidateDeadline) }
func (r *ElectionResolver) ResultsVisibility() string        { return string(r.cfg.ResultsVisibility) }
func (r *ElectionResolver) AutoTransition() bool             { return r.cfg.AutoTransition }
func (r *ElectionResolver) LastUpdated() *graphql.Time       { return optionalTime(r.cfg.LastUpdated) }
func (r *ElectionResolver) VotingOpen() bool                 { return ballot.CheckOpen(r.cfg, r.now) == nil }

func (r *ElectionResolver) CandidateRegistrationOpen() bool {
	return r.cfg.CandidateRegistrationOpen(r.now)
}

// BallotPositionResolver 选票上的一个职位
type BallotPositionResolver struct {
	position   string
	candidates []*model.Candidate
}

func (r *BallotPositionResolver) Position() string { return r.position }
func (r *BallotPositionResolver) Candidates() []*CandidateResolver {
	return candidateResolvers(r.candidates)
}

// CandidateCountResolver 候选人计票解析器
type CandidateCountResolver struct {
	count   model.CandidateCount
	percent float64
}

func (r *CandidateCountResolver) CandidateID() graphql.ID { return graphql.ID(r.count.CandidateID) }
func (r *CandidateCountResolver) Name() string            { return r.count.Name }
func (r *CandidateCountResolver) ImageURL() string        { return r.count.ImageURL }
func (r *CandidateCountResolver) Votes() int32            { return int32(r.count.Votes) }
func (r *CandidateCountResolver) Percent() float64        { return r.percent }

// PositionResultResolver 职位计票解析器
type PositionResultResolver struct {
	p model.PositionResult
}

func (r *PositionResultResolver) Position() string  { return r.p.Position }
func (r *PositionResultResolver) TotalVotes() int32 { return int32(r.p.TotalVotes) }

func (r *PositionResultResolver) Candidates() []*CandidateCountResolver {
	out := make([]*CandidateCountResolver, len(r.p.Candidates))
	for i, c := range r.p.Candidates {
		out[i] = &CandidateCountResolver{count: c, percent: r.p.Percent(c)}
	}
	return out
}

func (r *PositionResultResolver) Leader() *CandidateCountResolver {
	c, ok := r.p.Leader()
	if !ok {
		return nil
	}
	return &CandidateCountResolver{count: c, percent: r.p.Percent(c)}
}

// ResultsResolver 计票结果解析器
type ResultsResolver struct {
	res *model.Results
}

func (r *ResultsResolver) Positions() []*PositionResultResolver {
	out := make([]*PositionResultResolver, len(r.res.Positions))
	for i, p := range r.res.Positions {
		out[i] = &PositionResultResolver{p: p}
	}
	return out
}

func (r *ResultsResolver) TotalVoters() int32      { return int32(r.res.TotalVoters) }
func (r *ResultsResolver) UpdatedAt() graphql.Time { return graphql.Time{Time: r.res.UpdatedAt} }

// StudentDashboardResolver 学生首页解析器
type StudentDashboardResolver struct {
	d   *service.StudentDashboard
	now time.Time
}

func (r *StudentDashboardResolver) Student() *AccountResolver {
	return &AccountResolver{account: r.d.Student}
}
func (r *StudentDashboardResolver) Election() *ElectionResolver {
	return &ElectionResolver{cfg: r.d.Election, now: r.now}
}
func (r *StudentDashboardResolver) HasVoted() bool { return r.d.HasVoted }
func (r *StudentDashboardResolver) CanVote() bool  { return r.d.CanVote }

// AdminDashboardResolver 管理员首页解析器
type AdminDashboardResolver struct {
	d   *service.AdminDashboard
	now time.Time
}

func (r *AdminDashboardResolver) Election() *ElectionResolver {
	return &ElectionResolver{cfg: r.d.Election, now: r.now}
}
func (r *AdminDashboardResolver) RegisteredVoters() int32 { return int32(r.d.RegisteredVoters) }
func (r *AdminDashboardResolver) VotesCast() int32        { return int32(r.d.VotesCast) }
func (r *AdminDashboardResolver) Candidates() int32       { return int32(r.d.Candidates) }
func (r *AdminDashboardResolver) Positions() int32        { return int32(r.d.Positions) }
func (r *AdminDashboardResolver) Turnout() float64        { return r.d.Turnout() }

// LoginPayloadResolver 登录结果解析器
type LoginPayloadResolver struct {
	res *service.LoginResult
}

func (r *LoginPayloadResolver) Token() string             { return r.res.Token }
func (r *LoginPayloadResolver) ExpiresAt() graphql.Time   { return graphql.Time{Time: r.res.ExpiresAt} }
func (r *LoginPayloadResolver) Redirect() string          { return r.res.Redirect }
func (r *LoginPayloadResolver) Account() *AccountResolver { return &AccountResolver{account: r.res.Account} }

// VotePayloadResolver 投票结果解析器
type VotePayloadResolver struct {
	success   bool
	message   string
	timestamp time.Time
}

func (r *VotePayloadResolver) Success() bool           { return r.success }
func (r *VotePayloadResolver) Message() string         { return r.message }
func (r *VotePayloadResolver) Timestamp() graphql.Time { return graphql.Time{Time: r.timestamp} }
