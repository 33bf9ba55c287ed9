package service

import "github.com/lvdashuaibi/campusvote/internal/subscription"

// Services 接口层使用的全部服务
type Services struct {
	Auth       *AuthService
	Elections  *ElectionService
	Candidates *CandidateService
	Votes      *VoteService
	Results    *ResultService
	Dashboard  *DashboardService

	// Registry 按会话收集实时订阅，登出时统一释放
	Registry *subscription.Registry
}
