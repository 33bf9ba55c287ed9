package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/service"
)

// requestLogger 记录每个请求的方法、路径、状态码和耗时
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.S().Debugf("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// cors 只对配置中的来源回显 Origin 并允许携带凭证；
// 未配置或配置为 "*" 时放行所有来源，但不允许携带凭证
func cors(allowed []string) gin.HandlerFunc {
	allow := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		allow[o] = true
	}
	wildcard := len(allow) == 0 || allow["*"]

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origin == "":
		case allow[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
			corsMethods(c)
		case wildcard:
			c.Header("Access-Control-Allow-Origin", "*")
			corsMethods(c)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func corsMethods(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// authenticate 解析 Bearer 令牌并把登录身份放入请求上下文。
// 没有令牌的请求继续处理，由具体接口决定是否需要登录。
func authenticate(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			abortWithError(c, service.ErrUnauthenticated)
			return
		}

		p, err := auth.Authenticate(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Request = c.Request.WithContext(service.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// requireRole 不传角色时只要求登录
func requireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := service.RequireRole(c.Request.Context(), roles...); err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}
