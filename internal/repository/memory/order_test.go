package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

func TestOrderRepository_CreateAndGetReturnsCopy(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	order := &domain.Order{ID: "o-1", ClientName: "Lee", Status: domain.OrderStatusPending, CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, order))

	got, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	got.Status = domain.OrderStatusCompleted

	again, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, again.Status, "stored order must not change without Update")
}

func TestOrderRepository_CreateDuplicateFails(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Order{ID: "o-1"}))
	assert.ErrorIs(t, repo.Create(ctx, &domain.Order{ID: "o-1"}), repository.ErrAlreadyExists)
}

func TestOrderRepository_UpdateUnknownFails(t *testing.T) {
	repo := NewOrderRepository()
	assert.ErrorIs(t, repo.Update(context.Background(), &domain.Order{ID: "missing"}), repository.ErrNotFound)
}

func TestOrderRepository_ListHidesCancelledByDefault(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &domain.Order{ID: "a", Status: domain.OrderStatusPending, CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, &domain.Order{ID: "b", Status: domain.OrderStatusCancelled, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repo.Create(ctx, &domain.Order{ID: "c", Status: domain.OrderStatusAssigned, CreatedAt: base.Add(2 * time.Minute)}))

	active, err := repo.List(ctx, repository.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "c", active[0].ID, "newest first")
	assert.Equal(t, "a", active[1].ID)

	all, err := repo.List(ctx, repository.OrderFilter{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cancelled, err := repo.List(ctx, repository.OrderFilter{Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "b", cancelled[0].ID)
}
