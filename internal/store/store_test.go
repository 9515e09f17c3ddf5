package store

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/domain"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/kasir?sslmode=disable", migrateURL("postgres://u:p@db:5432/kasir?sslmode=disable"))
	require.Equal(t, "pgx5://db/kasir", migrateURL("postgresql://db/kasir"))
	require.Equal(t, "pgx5://db/kasir", migrateURL("pgx5://db/kasir"))
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)
	_, _, err = src.ReadUp(first)
	require.NoError(t, err)
	_, _, err = src.ReadDown(first)
	require.NoError(t, err)
}

func TestRepositoriesRequireBusiness(t *testing.T) {
	db := &DB{}
	ctx := context.Background()

	_, err := Products{DB: db}.Get(ctx, "7f1c2f4e-5a8d-4d8e-9a4f-2b1f7f3c9a10")
	require.ErrorIs(t, err, business.ErrMissing)
	_, err = Sales{DB: db}.Get(ctx, "x")
	require.ErrorIs(t, err, business.ErrMissing)
	_, err = Refunds{DB: db}.ListBySale(ctx, "x")
	require.ErrorIs(t, err, business.ErrMissing)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	db := &DB{}
	ctx := business.With(context.Background(), "7f1c2f4e-5a8d-4d8e-9a4f-2b1f7f3c9a10")

	_, err := Products{DB: db}.Get(ctx, "not-a-uuid")
	require.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = Sales{DB: db}.GetForUpdate(ctx, "nope")
	require.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = Orders{DB: db}.Get(ctx, "nope")
	require.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = Customers{DB: db}.Get(ctx, "nope")
	require.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestInTxWithoutPool(t *testing.T) {
	db := &DB{}
	err := db.InTx(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
}
