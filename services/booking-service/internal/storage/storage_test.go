package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/model"
	"github.com/apptbook/platform/services/booking-service/internal/storage/memstore"
)

func TestMapWriteError(t *testing.T) {
	excl := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})
	err := mapWriteError(excl)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.True(t, IsConflict(err))

	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: "40001"}), apperr.ErrConflict)
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: "23505"}), apperr.ErrConflict)

	other := errors.New("connection reset")
	assert.Same(t, other, mapWriteError(other))
	assert.NoError(t, mapWriteError(nil))
	assert.True(t, IsNotFound(fmt.Errorf("x: %w", pgx.ErrNoRows)))
}

type countingCatalog struct {
	*memstore.Store
	providerCalls int
}

func (c *countingCatalog) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	c.providerCalls++
	return c.Store.GetProvider(ctx, id)
}

func TestCachedCatalog(t *testing.T) {
	store := memstore.New()
	store.PutProvider(model.Provider{ID: "alice"})
	next := &countingCatalog{Store: store}
	c := NewCachedCatalog(next, time.Minute)

	for range 3 {
		p, err := c.GetProvider(t.Context(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", p.ID)
	}
	assert.Equal(t, 1, next.providerCalls)

	for range 2 {
		_, err := c.GetProvider(t.Context(), "ghost")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}
	assert.Equal(t, 3, next.providerCalls, "not-found results are not cached")

	c.Flush()
	_, err := c.GetProvider(t.Context(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, next.providerCalls)
}
