package repositories

import (
	"RatedApp/models"
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupJobRepoTest(t *testing.T) *JobRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.AnalyticsJob{}))
	return NewJobRepository(db)
}

func TestMarkRunningStartsPendingJob(t *testing.T) {
	repo := setupJobRepoTest(t)
	ctx := context.Background()

	job := &models.AnalyticsJob{}
	require.NoError(t, repo.Create(ctx, job))

	started, err := repo.MarkRunning(ctx, job.ID, 7)
	require.NoError(t, err)
	assert.True(t, started)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, 7, got.TotalPatients)
	require.NotNil(t, got.StartedAt)
}

func TestMarkRunningKeepsCancelRequest(t *testing.T) {
	repo := setupJobRepoTest(t)
	ctx := context.Background()

	job := &models.AnalyticsJob{}
	require.NoError(t, repo.Create(ctx, job))
	// The cancel arrives before the runner has moved the job to running.
	require.NoError(t, repo.RequestCancel(ctx, job.ID))

	started, err := repo.MarkRunning(ctx, job.ID, 7)
	require.NoError(t, err)
	assert.False(t, started)

	status, err := repo.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelling, status)
}
