package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	db  *sql.DB
	err error
}

func (f *fakePinger) Primary() *sql.DB                    { return f.db }
func (f *fakePinger) HealthCheck(ctx context.Context) error { return f.err }

func newFakePinger(t *testing.T, err error) *fakePinger {
	t.Helper()
	db, _, err2 := sqlmock.New()
	require.NoError(t, err2)
	t.Cleanup(func() { db.Close() })
	return &fakePinger{db: db, err: err}
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		_, client := setupRedis(t)
		h := NewHealthChecker(newFakePinger(t, nil), client, "test")

		status := h.Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["postgres"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
	})

	t.Run("redis down is degraded", func(t *testing.T) {
		mr, client := setupRedis(t)
		mr.Close()
		h := NewHealthChecker(newFakePinger(t, nil), client, "test")

		status := h.Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("postgres down is unhealthy", func(t *testing.T) {
		_, client := setupRedis(t)
		h := NewHealthChecker(newFakePinger(t, errors.New("connection refused")), client, "test")

		status := h.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "connection refused", status.Dependencies["postgres"].Message)
	})

	t.Run("no dependencies", func(t *testing.T) {
		h := NewHealthChecker(nil, nil, "")
		assert.Equal(t, StatusHealthy, h.Check(context.Background()).Status)
	})
}

func TestHealthChecker_Handlers(t *testing.T) {
	h := NewHealthChecker(newFakePinger(t, errors.New("down")), nil, "v1")

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "v1", status.Version)
}
