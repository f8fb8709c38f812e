package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

func TestPostgresInstantiationStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store := NewPostgresInstantiationStore(pool)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migration is idempotent")
	require.NoError(t, store.Ping(ctx))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := &models.Instantiation{
		ID:              uuid.New().String(),
		TemplateID:      "faq-bot",
		TemplateVersion: "1.0.0",
		UserID:          "u1",
		WorkspaceID:     "w1",
		Resources: []models.ResourceOutcome{{
			ResourceID:    "faq",
			Type:          models.ResourceTypeVectorCollection,
			BlockID:       "kb",
			StorageClass:  models.StorageClassInternal,
			RebuildStatus: models.RebuildCompleted,
		}},
		CreatedAt: base,
	}
	newer := &models.Instantiation{
		ID:              uuid.New().String(),
		TemplateID:      "corpus",
		TemplateVersion: "2.1.0",
		UserID:          "u1",
		WorkspaceID:     "w2",
		Resources: []models.ResourceOutcome{{
			ResourceID:   "text",
			Type:         models.ResourceTypeExternalStorage,
			BlockID:      "doc",
			StorageClass: models.StorageClassExternal,
			ResourceKey:  "u1/doc/v1",
			PartCount:    3,
		}},
		CreatedAt: base.Add(time.Hour),
	}

	t.Run("Save and Get", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, older))
		require.NoError(t, store.Save(ctx, newer))

		got, err := store.Get(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, older.TemplateID, got.TemplateID)
		assert.Equal(t, older.Resources, got.Resources)
		assert.True(t, older.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListByUser", func(t *testing.T) {
		list, err := store.ListByUser(ctx, "u1", 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, "u1/doc/v1", list[0].Resources[0].ResourceKey)

		none, err := store.ListByUser(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
