package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapulse/internal/domain"
	"datapulse/internal/repository"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	user := &domain.User{Username: "alice", PasswordHash: "hash", Role: domain.RoleAdmin}
	id, err := repo.Create(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.Equal(t, domain.RoleAdmin, got.Role)
}

func TestUserRepository_DefaultRole(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	_, err := repo.Create(ctx, &domain.User{Username: "bob", PasswordHash: "hash"})
	require.NoError(t, err)

	got, err := repo.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, got.Role)
}

func TestUserRepository_Duplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	_, err := repo.Create(ctx, &domain.User{Username: "alice", PasswordHash: "a"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &domain.User{Username: "alice", PasswordHash: "b"})
	require.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestUserRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	_, err := repo.GetByUsername(ctx, "ghost")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDataPointRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewDataPointRepository(openTestDB(t))
	require.NoError(t, InitAll(ctx, repo))

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	inputs := []domain.DataPoint{
		{Label: "temp", Value: 21.5, Date: day.AddDate(0, 0, 2)},
		{Label: "humidity", Value: 40, Date: day},
		{Label: "temp", Value: 19, Date: day.AddDate(0, 0, 1)},
	}
	for i := range inputs {
		_, err := repo.Create(ctx, &inputs[i])
		require.NoError(t, err)
		assert.NotZero(t, inputs[i].ID)
	}

	all, err := repo.List(ctx, domain.DataFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	temps, err := repo.List(ctx, domain.DataFilter{Label: "temp", Sort: domain.SortDateAsc})
	require.NoError(t, err)
	require.Len(t, temps, 2)
	assert.Equal(t, 19.0, temps[0].Value)
	assert.True(t, temps[0].Date.Equal(day.AddDate(0, 0, 1)))
	assert.Equal(t, 21.5, temps[1].Value)

	byValue, err := repo.List(ctx, domain.DataFilter{Sort: domain.SortValueDesc})
	require.NoError(t, err)
	require.Len(t, byValue, 3)
	assert.Equal(t, 40.0, byValue[0].Value)
	assert.Equal(t, 19.0, byValue[2].Value)
}

func TestDataPointRepository_DuplicateLabelsAllowed(t *testing.T) {
	ctx := context.Background()
	repo := NewDataPointRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	for i := 0; i < 2; i++ {
		_, err := repo.Create(ctx, &domain.DataPoint{Label: "dup", Value: 1, Date: time.Now()})
		require.NoError(t, err)
	}
	points, err := repo.List(ctx, domain.DataFilter{Label: "dup"})
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestDataPointRepository_EmptyListIsNotNil(t *testing.T) {
	ctx := context.Background()
	repo := NewDataPointRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	points, err := repo.List(ctx, domain.DataFilter{})
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestDataPointRepository_RejectsUnknownSort(t *testing.T) {
	ctx := context.Background()
	repo := NewDataPointRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	_, err := repo.List(ctx, domain.DataFilter{Sort: "label; DROP TABLE data_points"})
	require.Error(t, err)
}
