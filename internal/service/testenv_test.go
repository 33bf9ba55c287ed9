package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/identity"
	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/objectstore"
	"github.com/lvdashuaibi/campusvote/internal/repository"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
)

// stepClock 每次调用前进一毫秒，保证候选人创建时间有序
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{t: start}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.VoteEvent
	err    error
}

func (p *recordingPublisher) PublishVoteEvent(ctx context.Context, event *model.VoteEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type testEnv struct {
	store     *repository.MemoryStore
	provider  *identity.MemoryProvider
	redis     *repository.RedisRepository
	mr        *miniredis.Miniredis
	images    *objectstore.MemoryStore
	registry  *subscription.Registry
	publisher *recordingPublisher
	clock     *stepClock

	auth       *AuthService
	elections  *ElectionService
	candidates *CandidateService
	results    *ResultService
	votes      *VoteService
	dashboard  *DashboardService
}

func newTestEnv(t *testing.T, autoVerify bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	redisRepo, err := repository.NewRedisRepository(ctx, config.RedisConfig{
		DataAddress: mr.Addr(),
		ResultsTTL:  time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { redisRepo.Close() })

	env := &testEnv{
		store:     repository.NewMemoryStore(),
		provider:  identity.NewMemoryProvider(autoVerify),
		redis:     redisRepo,
		mr:        mr,
		images:    objectstore.NewMemoryStore(),
		registry:  subscription.NewRegistry(),
		publisher: &recordingPublisher{},
		clock:     newStepClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}

	env.auth = NewAuthService(env.store, env.provider, redisRepo, env.registry, config.SessionConfig{
		Secret: "test-secret",
		TTL:    time.Hour,
		Issuer: "campusvote-test",
	}, "letmein")
	env.elections = NewElectionService(env.store)
	env.candidates = NewCandidateService(env.store, env.elections, env.images, config.StorageConfig{MaxImageBytes: 16})
	env.results = NewResultService(env.store, env.store, env.elections, redisRepo)
	env.votes = NewVoteService(env.store, env.candidates, env.elections, env.publisher, env.results)
	env.dashboard = NewDashboardService(env.auth, env.store, env.store, env.candidates, env.elections)

	env.auth.now = env.clock.Now
	env.elections.now = env.clock.Now
	env.candidates.now = env.clock.Now
	env.results.now = env.clock.Now
	env.votes.now = env.clock.Now
	env.dashboard.now = env.clock.Now
	return env
}

func (e *testEnv) openElection(t *testing.T) {
	t.Helper()
	status := "Ongoing"
	_, err := e.elections.Update(context.Background(), ElectionUpdate{Status: &status})
	require.NoError(t, err)
}

func (e *testEnv) setStatus(t *testing.T, status string) {
	t.Helper()
	_, err := e.elections.Update(context.Background(), ElectionUpdate{Status: &status})
	require.NoError(t, err)
}

// seedCandidates President: Ada, Ben; Treasurer: Jane Doe
func (e *testEnv) seedCandidates(t *testing.T) map[string]*model.Candidate {
	t.Helper()
	created, err := e.candidates.AddCandidates(context.Background(), []CandidateInput{
		{Name: "Ada", Position: "President"},
		{Name: "Ben", Position: "President"},
		{Name: "Jane Doe", Position: "Treasurer"},
	})
	require.NoError(t, err)

	byName := make(map[string]*model.Candidate)
	for _, c := range created {
		byName[c.Name] = c
	}
	return byName
}

func (e *testEnv) registerStudent(t *testing.T, matric, email string) *model.Student {
	t.Helper()
	st, err := e.auth.RegisterStudent(context.Background(), StudentRegistration{
		FirstName:       "Test",
		LastName:        "Student",
		MatricNumber:    matric,
		Faculty:         "Science",
		Department:      "Computer Science",
		Level:           "300",
		Email:           email,
		Password:        "secret123",
		ConfirmPassword: "secret123",
	})
	require.NoError(t, err)
	return st
}

func studentPrincipal(uid string) *Principal {
	return &Principal{SessionID: "sid-" + uid, UID: uid, Role: model.RoleStudent}
}
