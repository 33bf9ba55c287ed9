package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/api/graph"
	"github.com/lvdashuaibi/campusvote/internal/ballot"
	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/repository"
	"github.com/lvdashuaibi/campusvote/internal/service"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
)

// Server HTTP服务：GraphQL端点、实时推送和照片上传
type Server struct {
	cfg     config.ServerConfig
	gqlPath string
	svc     *service.Services
	graphql *graph.GraphQLServer
	engine  *gin.Engine
	httpSrv *http.Server
}

func NewServer(cfg config.ServerConfig, gqlCfg config.GraphQLConfig, svc *service.Services) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if gqlCfg.Path == "" {
		gqlCfg.Path = "/graphql"
	}

	s := &Server{
		cfg:     cfg,
		gqlPath: gqlCfg.Path,
		svc:     svc,
		graphql: graph.NewGraphQLServer(svc),
		engine:  gin.New(),
	}
	s.routes()
	s.httpSrv = &http.Server{Handler: s.engine}
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), requestLogger(), cors(s.cfg.AllowedOrigins), authenticate(s.svc.Auth))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// GraphQL Playground
	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(graph.PlaygroundHTML(s.gqlPath)))
	})
	r.POST(s.gqlPath, gin.WrapH(s.graphql.Handler()))

	protected := r.Group("/api", requireRole())
	protected.GET("/results/stream", s.streamResults)
	protected.GET("/election/stream", s.streamElection)
	protected.POST("/candidates/:id/image", requireRole(model.RoleAdmin), s.uploadImage)
}

// Handler 供测试和自定义 http.Server 使用
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 阻塞直到服务关闭
func (s *Server) Start(port int) error {
	s.httpSrv.Addr = fmt.Sprintf(":%d", port)
	zap.S().Infof("HTTP服务已启动，GraphQL端点: %s, Playground: http://localhost:%d/", s.gqlPath, port)

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// streamResults 以 SSE 推送计票结果，连接断开或登出时释放订阅
func (s *Server) streamResults(c *gin.Context) {
	ctx := c.Request.Context()
	p, _ := service.PrincipalFrom(ctx)

	current, err := s.svc.Results.View(ctx, p)
	if err != nil {
		writeError(c, err)
		return
	}

	ch, sub := s.svc.Results.Subscribe()
	if s.svc.Registry != nil {
		sub = s.svc.Registry.Add(p.SessionID, sub)
	}
	defer sub.Unsubscribe()

	c.SSEvent("results", current)
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case res, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("results", res)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// streamElection 以 SSE 推送选举配置变化
func (s *Server) streamElection(c *gin.Context) {
	ctx := c.Request.Context()
	p, _ := service.PrincipalFrom(ctx)

	current, err := s.svc.Elections.Get(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	updates := make(chan *model.ElectionConfig, 1)
	watch, err := s.svc.Elections.Watch(ctx, func(cfg *model.ElectionConfig) {
		// 只保留最新配置
		select {
		case updates <- cfg:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- cfg:
			default:
			}
		}
	})
	if err != nil {
		writeError(c, err)
		return
	}
	// 登出时 done 关闭，结束推送
	done := make(chan struct{})
	sub := subscription.New(func() {
		watch.Unsubscribe()
		close(done)
	})
	if s.svc.Registry != nil {
		sub = s.svc.Registry.Add(p.SessionID, sub)
	}
	defer sub.Unsubscribe()

	c.SSEvent("election", current)
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case cfg := <-updates:
			c.SSEvent("election", cfg)
			return true
		case <-done:
			return false
		case <-ctx.Done():
			return false
		}
	})
}

func (s *Server) uploadImage(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		writeError(c, fmt.Errorf("%w: 缺少图片文件", service.ErrInvalidInput))
		return
	}
	defer file.Close()

	cand, err := s.svc.Candidates.UploadImage(c.Request.Context(), c.Param("id"), header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": cand.ID, "imageUrl": cand.ImageURL})
}

func statusCode(err error) int {
	var verr *ballot.ValidationError
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrResultsNotVisible),
		errors.Is(err, service.ErrResultsRequireVote):
		return http.StatusForbidden
	case errors.Is(err, service.ErrCandidateNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrWatchUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &verr), errors.As(err, &fieldErrs), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		zap.S().Errorf("%s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, gin.H{"error": service.UserMessage(err)})
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}
