package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/passwords"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories/memory"
	"github.com/Poneaswaran/College-Management-System-Backend/tokens"
)

const testPassword = "correct horse battery staple"

var fastParams = passwords.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink keeps events in memory and mirrors them into the event repository
type recordingSink struct {
	mu     sync.Mutex
	events []*models.AuthEvent
	repo   repositories.AuthEventRepository
}

func (r *recordingSink) Record(ctx context.Context, event *models.AuthEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	_ = r.repo.Insert(ctx, event)
}

func (r *recordingSink) actions() []models.AuthAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuthAction, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

type capturingSender struct {
	mu    sync.Mutex
	codes []string
}

func (s *capturingSender) Send(_ context.Context, _ models.GuardianLink, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	return nil
}

func (s *capturingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

type lifecycleFixture struct {
	store       *memory.Store
	repos       *repositories.Repositories
	clock       *testClock
	codec       *tokens.Codec
	hasher      *passwords.Hasher
	sink        *recordingSink
	sender      *capturingSender
	revocations *RevocationService
	sessions    *SessionService
	otps        *GuardianOTPService
}

func newLifecycleFixture(t *testing.T, cache RevocationCache) *lifecycleFixture {
	t.Helper()

	store := memory.NewStore()
	f := &lifecycleFixture{
		store:  store,
		repos:  store.Repositories(),
		clock:  &testClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)},
		hasher: passwords.NewHasher(fastParams),
		sender: &capturingSender{},
	}
	f.sink = &recordingSink{repo: f.repos.AuthEvents}

	codec, err := tokens.NewCodec(tokens.Config{
		Secret:     []byte("lifecycle-test-secret-0123456789abcdef"),
		Issuer:     "cms-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, tokens.WithClock(f.clock.Now))
	require.NoError(t, err)
	f.codec = codec

	opts := []Option{WithClock(f.clock.Now), WithEventRecorder(f.sink)}
	f.revocations = NewRevocationService(f.repos, cache, zap.NewNop(), opts...)
	f.sessions = NewSessionService(f.repos, store.TransactionManager(), codec, f.hasher, f.revocations, zap.NewNop(), opts...)
	f.otps = NewGuardianOTPService(f.repos, f.sessions, f.sender, 5*time.Minute, 5, zap.NewNop(), opts...)
	return f
}

func (f *lifecycleFixture) addPrincipal(t *testing.T, role models.Role, email string) *models.Principal {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)
	p := models.NewPrincipal(role, hash).WithEmail(email)
	require.NoError(t, f.repos.Principals.Create(context.Background(), p))
	return p
}

func (f *lifecycleFixture) login(t *testing.T, identifier string) *LoginResult {
	t.Helper()
	result, err := f.sessions.Login(context.Background(), LoginInput{Identifier: identifier, Password: testPassword})
	require.NoError(t, err)
	return result
}
