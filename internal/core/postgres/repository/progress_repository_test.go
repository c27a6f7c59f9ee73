package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-onboard/internal/domain"
)

func setupTestContainer(t *testing.T) *gorm.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s user=test password=test dbname=testdb port=%s sslmode=disable", host, port.Port())
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, db))
	return db
}

func TestProgressRepository(t *testing.T) {
	db := setupTestContainer(t)
	repo := NewProgressRepository(db)
	ctx := context.Background()

	t.Run("load missing", func(t *testing.T) {
		_, err := repo.Load(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("save and load round trip", func(t *testing.T) {
		rec := domain.NewProgressRecord("owner-rt", domain.StepInit, time.Now().UTC().Truncate(time.Microsecond))
		rec.CurrentStep = domain.StepAdminCreation
		rec.CompletedSteps = append(rec.CompletedSteps, domain.StepInit, domain.StepPricingSelection)
		rec.LastCompleted = domain.StepPricingSelection
		rec.StepPayloads[domain.StepPricingSelection] = datatypes.JSON(`{"plan":"monthly","seats":{"max":5}}`)
		rec.Version = 3
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.Load(ctx, "owner-rt")
		require.NoError(t, err)
		assert.Equal(t, domain.StepAdminCreation, got.CurrentStep)
		assert.Equal(t, rec.CompletedSteps, got.CompletedSteps)
		assert.Equal(t, domain.StepPricingSelection, got.LastCompleted)
		assert.Equal(t, 3, got.Version)
		assert.JSONEq(t, `{"plan":"monthly","seats":{"max":5}}`, string(got.StepPayloads[domain.StepPricingSelection]))

		rec.CurrentStep = domain.StepOrgCreation
		rec.Version = 4
		require.NoError(t, repo.Save(ctx, rec))
		got, err = repo.Load(ctx, "owner-rt")
		require.NoError(t, err)
		assert.Equal(t, domain.StepOrgCreation, got.CurrentStep)
		assert.Equal(t, 4, got.Version)
	})

	t.Run("reset archives", func(t *testing.T) {
		rec := domain.NewProgressRecord("owner-reset", domain.StepInit, time.Now().UTC())
		rec.CurrentStep = domain.StepCompleted
		require.NoError(t, repo.Save(ctx, rec))

		stale := domain.NewProgressRecord("owner-reset", domain.StepInit, time.Now().UTC())
		assert.ErrorIs(t, repo.Reset(ctx, stale, domain.ArchiveReasonCompleted), domain.ErrVersionConflict)

		fresh := domain.NewProgressRecord("owner-reset", domain.StepInit, time.Now().UTC())
		fresh.Version = rec.Version + 1
		require.NoError(t, repo.Reset(ctx, fresh, domain.ArchiveReasonCompleted))

		got, err := repo.Load(ctx, "owner-reset")
		require.NoError(t, err)
		assert.Equal(t, domain.StepInit, got.CurrentStep)
		assert.Empty(t, got.CompletedSteps)

		history, err := repo.History(ctx, "owner-reset")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, domain.ArchiveReasonCompleted, history[0].Reason)
		assert.Equal(t, domain.StepCompleted, history[0].Record.CurrentStep)
	})

	t.Run("stale save is rejected", func(t *testing.T) {
		newer := domain.NewProgressRecord("owner-stale", domain.StepInit, time.Now().UTC())
		newer.CurrentStep = domain.StepAdminCreation
		newer.Version = 3
		require.NoError(t, repo.Save(ctx, newer))

		late := domain.NewProgressRecord("owner-stale", domain.StepInit, time.Now().UTC())
		late.CurrentStep = domain.StepPricingSelection
		late.Version = 2
		assert.ErrorIs(t, repo.Save(ctx, late), domain.ErrVersionConflict)

		got, err := repo.Load(ctx, "owner-stale")
		require.NoError(t, err)
		assert.Equal(t, domain.StepAdminCreation, got.CurrentStep)
		assert.Equal(t, 3, got.Version)
	})

	t.Run("concurrent saves keep the newest", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				rec := domain.NewProgressRecord("owner-race", domain.StepInit, time.Now().UTC())
				rec.Version = v
				rec.StepPayloads[domain.StepInit] = datatypes.JSON(fmt.Sprintf(`{"v":%d}`, v))
				if err := repo.Save(ctx, rec); err != nil {
					assert.ErrorIs(t, err, domain.ErrVersionConflict)
				}
			}(i)
		}
		wg.Wait()

		got, err := repo.Load(ctx, "owner-race")
		require.NoError(t, err)
		assert.Equal(t, 20, got.Version)
		assert.JSONEq(t, `{"v":20}`, string(got.StepPayloads[domain.StepInit]))
	})
}
