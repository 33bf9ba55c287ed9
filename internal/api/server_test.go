package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/identity"
	"github.com/lvdashuaibi/campusvote/internal/objectstore"
	"github.com/lvdashuaibi/campusvote/internal/repository"
	"github.com/lvdashuaibi/campusvote/internal/service"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	svc    *service.Services
	server *Server
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithOrigins(t, []string{"http://localhost:5173"})
}

func newTestServerWithOrigins(t *testing.T, origins []string) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	redisRepo, err := repository.NewRedisRepository(context.Background(), config.RedisConfig{
		DataAddress: mr.Addr(),
		ResultsTTL:  time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { redisRepo.Close() })

	store := repository.NewMemoryStore()
	registry := subscription.NewRegistry()
	auth := service.NewAuthService(store, identity.NewMemoryProvider(true), redisRepo, registry, config.SessionConfig{
		Secret: "http-secret",
		TTL:    time.Hour,
		Issuer: "campusvote-test",
	}, "letmein")
	elections := service.NewElectionService(store)
	candidates := service.NewCandidateService(store, elections, objectstore.NewMemoryStore(), config.StorageConfig{MaxImageBytes: 1024})
	results := service.NewResultService(store, store, elections, redisRepo)

	svc := &service.Services{
		Auth:       auth,
		Elections:  elections,
		Candidates: candidates,
		Votes:      service.NewVoteService(store, candidates, elections, nil, results),
		Results:    results,
		Dashboard:  service.NewDashboardService(auth, store, store, candidates, elections),
		Registry:   registry,
	}
	server := NewServer(config.ServerConfig{AllowedOrigins: origins}, config.GraphQLConfig{Path: "/graphql"}, svc)
	return &testServer{svc: svc, server: server}
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := ts.svc.Auth.RegisterAdmin(ctx, service.AdminRegistration{
		FirstName:       "Grace",
		LastName:        "Eze",
		Email:           "admin@uni.edu",
		Password:        "secret123",
		ConfirmPassword: "secret123",
		SignupCode:      "letmein",
	})
	require.NoError(t, err)
	res, err := ts.svc.Auth.Login(ctx, "admin@uni.edu", "secret123")
	require.NoError(t, err)
	return res.Token
}

func (ts *testServer) studentToken(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := ts.svc.Auth.RegisterStudent(ctx, service.StudentRegistration{
		FirstName:       "Test",
		LastName:        "Student",
		MatricNumber:    "21/0166",
		Faculty:         "Science",
		Department:      "Computer Science",
		Level:           "300",
		Email:           "student@uni.edu",
		Password:        "secret123",
		ConfirmPassword: "secret123",
	})
	require.NoError(t, err)
	res, err := ts.svc.Auth.Login(ctx, "21/0166", "secret123")
	require.NoError(t, err)
	return res.Token
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func imageUpload(t *testing.T, url, token, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="photo"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	t.Run("allowed origin preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := ts.do(req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := ts.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("no origins configured", func(t *testing.T) {
		anyOrigin := newTestServerWithOrigins(t, nil)
		req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := anyOrigin.do(req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestGraphQLEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := ts.studentToken(t)

	body := `{"query":"{ me { email matricNumber redirect } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Me struct {
				Email        string
				MatricNumber string
				Redirect     string
			}
		}
		Errors []json.RawMessage
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Errors)
	assert.Equal(t, "student@uni.edu", resp.Data.Me.Email)
	assert.Equal(t, "21/0166", resp.Data.Me.MatricNumber)
	assert.Equal(t, "/student/dashboard", resp.Data.Me.Redirect)
}

func TestInvalidBearerToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ election { title } }"}`))
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadImage(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.adminToken(t)

	created, err := ts.svc.Candidates.AddCandidate(context.Background(), service.CandidateInput{Name: "Jane Doe", Position: "Treasurer"})
	require.NoError(t, err)
	url := "/api/candidates/" + created.ID + "/image"
	png := []byte("\x89PNG fake image")

	t.Run("requires login", func(t *testing.T) {
		w := ts.do(imageUpload(t, url, "", "image/png", png))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("students forbidden", func(t *testing.T) {
		w := ts.do(imageUpload(t, url, ts.studentToken(t), "image/png", png))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("rejects non image", func(t *testing.T) {
		w := ts.do(imageUpload(t, url, adminToken, "text/plain", []byte("hello")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects oversized", func(t *testing.T) {
		w := ts.do(imageUpload(t, url, adminToken, "image/png", bytes.Repeat([]byte{1}, 2048)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("unknown candidate", func(t *testing.T) {
		w := ts.do(imageUpload(t, "/api/candidates/missing/image", adminToken, "image/png", png))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		w := ts.do(imageUpload(t, url, adminToken, "image/png", png))
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, strings.HasPrefix(resp["imageUrl"], "memory://"+created.ID+"/"))

		got, err := ts.svc.Candidates.GetCandidate(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, resp["imageUrl"], got.ImageURL)
	})
}

func TestResultsStreamHiddenFromStudentBeforeVoting(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/results/stream", nil)
	req.Header.Set("Authorization", "Bearer "+ts.studentToken(t))
	w := ts.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestResultsStreamEndsOnLogout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)
	p, err := ts.svc.Auth.Authenticate(context.Background(), token)
	require.NoError(t, err)

	srv := httptest.NewServer(ts.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/results/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	assert.Equal(t, "event:results", scanner.Text())

	require.Eventually(t, func() bool { return ts.svc.Results.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, ts.svc.Auth.Logout(context.Background(), p.SessionID))

	// 登出后订阅被释放，服务端结束响应
	for scanner.Scan() {
	}
	assert.NoError(t, scanner.Err())
	assert.Equal(t, 0, ts.svc.Results.SubscriberCount())
	assert.Equal(t, 0, ts.svc.Registry.Sessions())
}

func TestElectionStreamEndsOnLogout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.studentToken(t)
	p, err := ts.svc.Auth.Authenticate(context.Background(), token)
	require.NoError(t, err)

	srv := httptest.NewServer(ts.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/election/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	assert.Equal(t, "event:election", scanner.Text())

	require.Eventually(t, func() bool { return ts.svc.Registry.Len(p.SessionID) == 1 }, time.Second, 10*time.Millisecond)
	start := time.Now()
	require.NoError(t, ts.svc.Auth.Logout(context.Background(), p.SessionID))

	for scanner.Scan() {
	}
	assert.NoError(t, scanner.Err())
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, 0, ts.svc.Registry.Sessions())
}
