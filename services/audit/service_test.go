package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
)

// MockAuthEventRepository is a mock implementation of AuthEventRepository
type MockAuthEventRepository struct {
	mock.Mock
	mu       sync.Mutex
	inserted []*models.AuthEvent
}

func (m *MockAuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	args := m.Called(ctx, event)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, event)
	return args.Error(0)
}

func (m *MockAuthEventRepository) ListByPrincipal(ctx context.Context, principalID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error) {
	args := m.Called(ctx, principalID, limit, offset)
	if events := args.Get(0); events != nil {
		return events.([]*models.AuthEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthEventRepository) Inserted() []*models.AuthEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuthEvent, len(m.inserted))
	copy(out, m.inserted)
	return out
}

func TestAuditService_StartStop(t *testing.T) {
	service := NewAuditService(new(MockAuthEventRepository), zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)
	assert.Error(t, service.Stop(time.Second))
}

func TestAuditService_LogEvent(t *testing.T) {
	repo := new(MockAuthEventRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	service := NewAuditService(repo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())
	defer service.Stop(5 * time.Second)

	principalID := uuid.New()
	event := models.NewAuthEvent(models.AuthActionLoginSucceeded).WithPrincipal(principalID)
	require.NoError(t, service.LogEvent(event))

	assert.Eventually(t, func() bool { return len(repo.Inserted()) == 1 }, time.Second, 10*time.Millisecond)
	inserted := repo.Inserted()[0]
	assert.Equal(t, models.AuthActionLoginSucceeded, inserted.Action)
	assert.Equal(t, principalID, *inserted.PrincipalID)
}

func TestAuditService_LogEventBlocking(t *testing.T) {
	repo := new(MockAuthEventRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	service := NewAuditService(repo, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())
	defer service.Stop(5 * time.Second)

	for i := 0; i < 5; i++ {
		require.NoError(t, service.LogEventBlocking(context.Background(), models.NewAuthEvent(models.AuthActionLogout)))
	}

	assert.Eventually(t, func() bool { return len(repo.Inserted()) == 5 }, time.Second, 10*time.Millisecond)
}

func TestAuditService_ConcurrentRecord(t *testing.T) {
	repo := new(MockAuthEventRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	service := NewAuditService(repo, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 4})
	require.NoError(t, service.Start())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				service.Record(context.Background(), models.NewAuthEvent(models.AuthActionTokenRefreshed))
			}
		}()
	}
	wg.Wait()

	// Stop drains the buffer.
	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, repo.Inserted(), 100)
}

func TestAuditService_BufferFullDrops(t *testing.T) {
	repo := new(MockAuthEventRepository)
	release := make(chan struct{})
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		<-release
	})
	service := NewAuditService(repo, zap.NewNop(), Config{BufferSize: 2, WorkerCount: 1})
	require.NoError(t, service.Start())

	var accepted, dropped int
	for i := 0; i < 10; i++ {
		if err := service.LogEvent(models.NewAuthEvent(models.AuthActionLoginFailed)); err != nil {
			dropped++
		} else {
			accepted++
		}
	}
	close(release)
	require.NoError(t, service.Stop(5*time.Second))

	assert.Greater(t, dropped, 0)
	assert.LessOrEqual(t, accepted, 3)
}

func TestAuditService_InsertFailureDoesNotStopWorkers(t *testing.T) {
	repo := new(MockAuthEventRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down"))
	service := NewAuditService(repo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	service.Record(context.Background(), models.NewAuthEvent(models.AuthActionOTPFailed))
	service.Record(context.Background(), models.NewAuthEvent(models.AuthActionOTPFailed))

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, repo.Inserted(), 2)
}

func TestAuditService_NotRunning(t *testing.T) {
	service := NewAuditService(new(MockAuthEventRepository), zap.NewNop(), DefaultConfig())
	assert.Error(t, service.LogEvent(models.NewAuthEvent(models.AuthActionLogout)))

	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(time.Second))
	assert.Error(t, service.LogEvent(models.NewAuthEvent(models.AuthActionLogout)))
}
