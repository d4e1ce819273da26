package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/models"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

type memoryQuotaStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	forgot  []string
}

func newMemoryQuotaStore() *memoryQuotaStore {
	return &memoryQuotaStore{entries: map[string][]byte{}}
}

func (m *memoryQuotaStore) Get(ctx context.Context, userID, slot string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[userID+"/"+slot]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryQuotaStore) Set(ctx context.Context, userID, slot string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID+"/"+slot] = raw
	return nil
}

func (m *memoryQuotaStore) Forget(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgot = append(m.forgot, userID)
	for key := range m.entries {
		if strings.HasPrefix(key, userID+"/") {
			delete(m.entries, key)
		}
	}
	return nil
}

type countingStore struct {
	*memoryRequestStore
	calls int
}

func (c *countingStore) CountInWindow(ctx context.Context, userID string, category models.RequestCategory, from, until time.Time) (int, error) {
	c.calls++
	return c.memoryRequestStore.CountInWindow(ctx, userID, category, from, until)
}

func seedRequest(t *testing.T, store *memoryRequestStore, userID string, category models.RequestCategory, createdAt time.Time) {
	t.Helper()
	require.NoError(t, store.CreateWithItems(context.Background(), &models.Request{
		RequesterID: userID,
		Category:    category,
		Status:      models.RequestStatusPending,
		CreatedAt:   createdAt,
	}))
}

func TestQuotaStatusReportsWindow(t *testing.T) {
	store := newMemoryRequestStore()
	seedRequest(t, store, "u1", models.RequestCategoryPersonalUse, time.Date(2024, time.December, 16, 8, 0, 0, 0, time.UTC))
	seedRequest(t, store, "u1", models.RequestCategoryPersonalUse, time.Date(2024, time.December, 15, 23, 0, 0, 0, time.UTC))
	seedRequest(t, store, "u1", models.RequestCategoryTeacherWork, time.Date(2025, time.January, 8, 8, 0, 0, 0, time.UTC))

	svc := NewQuotaService(store, settingsStub{limit: 5}, nil, nil, QuotaServiceConfig{})
	status, err := svc.Status(context.Background(), "u1", time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, status.Used)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, 4, status.Remaining)
	assert.Equal(t, 2, status.TrimesterIndex)
	assert.False(t, status.OutsideCoursePeriod)
	require.NotNil(t, status.WindowFrom)
	assert.Equal(t, time.Date(2024, time.December, 16, 0, 0, 0, 0, time.UTC), *status.WindowFrom)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), *status.WindowLastDay)
}

func TestQuotaStatusOutsideCoursePeriod(t *testing.T) {
	svc := NewQuotaService(newMemoryRequestStore(), settingsStub{limit: 5}, nil, nil, QuotaServiceConfig{})
	status, err := svc.Status(context.Background(), "u1", time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, status.OutsideCoursePeriod)
	assert.Nil(t, status.WindowFrom)
	assert.Equal(t, 5, status.Remaining)
}

func TestQuotaStatusUsesCacheUntilInvalidated(t *testing.T) {
	store := &countingStore{memoryRequestStore: newMemoryRequestStore()}
	repo := newMemoryQuotaStore()
	cache := NewQuotaCache(repo, NewMetricsService(), time.Minute, nil)
	svc := NewQuotaService(store, settingsStub{limit: 5}, cache, nil, QuotaServiceConfig{})
	asOf := time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)

	_, err := svc.Status(context.Background(), "u1", asOf)
	require.NoError(t, err)
	_, err = svc.Status(context.Background(), "u1", asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)
	assert.Contains(t, repo.entries, "u1/2024-12-16")

	seedRequest(t, store.memoryRequestStore, "u1", models.RequestCategoryPersonalUse, asOf)
	svc.Invalidate(context.Background(), "u1")
	assert.Equal(t, []string{"u1"}, repo.forgot)
	assert.Empty(t, repo.entries)

	status, err := svc.Status(context.Background(), "u1", asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 1, status.Used)
}

func TestQuotaCheckIgnoresCache(t *testing.T) {
	store := &countingStore{memoryRequestStore: newMemoryRequestStore()}
	cache := NewQuotaCache(newMemoryQuotaStore(), nil, time.Minute, nil)
	svc := NewQuotaService(store, settingsStub{limit: 1}, cache, nil, QuotaServiceConfig{})
	today := time.Date(2024, time.October, 2, 9, 0, 0, 0, time.UTC)

	_, err := svc.Status(context.Background(), "u1", today)
	require.NoError(t, err)
	seedRequest(t, store.memoryRequestStore, "u1", models.RequestCategoryPersonalUse, today)

	err = svc.Check(context.Background(), "u1", models.RequestCategoryPersonalUse, today)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "QUOTA_EXCEEDED", appErr.Code)
	assert.Equal(t, 1, appErr.Details["limit"])
	assert.Equal(t, 1, appErr.Details["trimesterIndex"])

	require.NoError(t, svc.Check(context.Background(), "u1", models.RequestCategoryTeacherWork, today))
}

type failingQuotaStore struct{}

func (failingQuotaStore) Get(ctx context.Context, userID, slot string, dest interface{}) error {
	return errors.New("connection refused")
}

func (failingQuotaStore) Set(ctx context.Context, userID, slot string, value interface{}, ttl time.Duration) error {
	return errors.New("connection refused")
}

func (failingQuotaStore) Forget(ctx context.Context, userID string) error {
	return errors.New("connection refused")
}

func TestQuotaCacheFailuresFallBackToCounter(t *testing.T) {
	store := &countingStore{memoryRequestStore: newMemoryRequestStore()}
	cache := NewQuotaCache(failingQuotaStore{}, NewMetricsService(), 0, nil)
	svc := NewQuotaService(store, settingsStub{limit: 5}, cache, nil, QuotaServiceConfig{})
	asOf := time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		status, err := svc.Status(context.Background(), "u1", asOf)
		require.NoError(t, err)
		assert.Equal(t, 5, status.Remaining)
	}
	assert.Equal(t, 2, store.calls)
	svc.Invalidate(context.Background(), "u1")
}

func TestQuotaCacheNilIsDisabled(t *testing.T) {
	var cache *QuotaCache
	assert.False(t, cache.Enabled())
	assert.False(t, NewQuotaCache(nil, nil, time.Minute, nil).Enabled())

	var dest dto.QuotaStatus
	assert.False(t, cache.Load(context.Background(), "u1", "2024-12-16", &dest))
	cache.Store(context.Background(), "u1", "2024-12-16", &dest)
	cache.Forget(context.Background(), "u1")
}
