package graph

import (
	"context"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/lvdashuaibi/campusvote/internal/service"
)

// GraphQLServer GraphQL服务
type GraphQLServer struct {
	schema   *graphql.Schema
	handler  *relay.Handler
	resolver *Resolver
}

// NewGraphQLServer 创建新的GraphQL服务
func NewGraphQLServer(svc *service.Services) *GraphQLServer {
	resolver := NewResolver(svc)

	// 解析Schema并创建GraphQL实例
	schema := graphql.MustParseSchema(schemaString, resolver,
		graphql.UseFieldResolvers(),
		graphql.MaxDepth(10),
	)

	return &GraphQLServer{
		schema:   schema,
		handler:  &relay.Handler{Schema: schema},
		resolver: resolver,
	}
}

// Handler API端点，登录身份由上游中间件放入请求上下文
func (s *GraphQLServer) Handler() http.Handler {
	return s.handler
}

// Exec 直接执行查询
func (s *GraphQLServer) Exec(ctx context.Context, query, operationName string, variables map[string]interface{}) *graphql.Response {
	return s.schema.Exec(ctx, query, operationName, variables)
}

// PlaygroundHTML GraphQL Playground 页面
func PlaygroundHTML(endpoint string) string {
	return `<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>Campus Vote GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <link rel="shortcut icon" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/favicon.png" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root"></div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '` + endpoint + `',
        settings: { 'request.credentials': 'include' }
      })
    })</script>
</body>
</html>
`
}
