package repositories

import (
	"RatedApp/cache"
	"RatedApp/database"
	"RatedApp/models"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupConfigRepoTest(t *testing.T) *ConfigRepository {
	t.Helper()

	mr := miniredis.RunT(t)
	database.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { database.RedisClient = nil })

	c, err := cache.NewCache()
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.ScoringConfiguration{}, &models.AgeBracket{}, &models.SpendBracket{}))
	require.NoError(t, models.SeedScoringConfiguration(db))

	return NewConfigRepository(db, c)
}

func namedPreset(name string) *models.ScoringConfiguration {
	return &models.ScoringConfiguration{
		Name:                           name,
		FutureAppointmentsWeight:       10,
		AgeDemographicsWeight:          10,
		YearlySpendWeight:              10,
		ConsecutiveAttendanceWeight:    10,
		ReferrerScoreWeight:            10,
		OpenDNAInvoiceWeight:           10,
		UnpaidInvoicesWeight:           10,
		CancellationsWeight:            10,
		DNAWeight:                      10,
		PointsPerConsecutiveAttendance: 1,
		PointsPerReferral:              1,
		PointsPerUnpaidInvoice:         1,
		PointsPerCancellation:          1,
		PointsPerDNA:                   1,
	}
}

func TestGetActiveReturnsSeededDefault(t *testing.T) {
	repo := setupConfigRepoTest(t)
	ctx := context.Background()

	config, err := repo.GetActive(ctx, PurposeScoring)
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, "Default", config.Name)
	assert.True(t, config.ActiveForScoring)

	require.Len(t, config.AgeBrackets, 4)
	assert.Equal(t, 0, config.AgeBrackets[0].MinAge)
	assert.Equal(t, 60, config.AgeBrackets[3].MinAge)
	require.Len(t, config.SpendBrackets, 4)
	assert.Equal(t, float64(2000), config.SpendBrackets[3].MinSpend)
}

func TestGetActiveUnknownPurpose(t *testing.T) {
	repo := setupConfigRepoTest(t)

	_, err := repo.GetActive(context.Background(), "nightly")
	assert.Error(t, err)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	repo := setupConfigRepoTest(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, namedPreset("Strict")))

	err := repo.Create(ctx, namedPreset("Strict"))
	assert.ErrorIs(t, err, ErrDuplicatePresetName)
}

func TestApplyMovesActiveFlag(t *testing.T) {
	repo := setupConfigRepoTest(t)
	ctx := context.Background()

	preset := namedPreset("Lenient")
	require.NoError(t, repo.Create(ctx, preset))

	require.NoError(t, repo.Apply(ctx, preset.ID, PurposeAnalytics))

	active, err := repo.GetActive(ctx, PurposeAnalytics)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "Lenient", active.Name)

	// The seeded default keeps its scoring flag but loses analytics.
	scoring, err := repo.GetActive(ctx, PurposeScoring)
	require.NoError(t, err)
	require.NotNil(t, scoring)
	assert.Equal(t, "Default", scoring.Name)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, cfg := range all {
		if cfg.ActiveForAnalytics {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestApplyUnknownConfiguration(t *testing.T) {
	repo := setupConfigRepoTest(t)

	err := repo.Apply(context.Background(), 9999, PurposeScoring)
	assert.Error(t, err)
}

func TestDeleteRefusesActiveConfiguration(t *testing.T) {
	repo := setupConfigRepoTest(t)
	ctx := context.Background()

	active, err := repo.GetActive(ctx, PurposeScoring)
	require.NoError(t, err)

	err = repo.Delete(ctx, active.ID)
	assert.Error(t, err)
}

func TestDeleteRemovesPresetAndBrackets(t *testing.T) {
	repo := setupConfigRepoTest(t)
	ctx := context.Background()

	preset := namedPreset("Disposable")
	preset.AgeBrackets = []models.AgeBracket{{MinAge: 0, MaxAge: 120, Percentage: 100}}
	require.NoError(t, repo.Create(ctx, preset))

	require.NoError(t, repo.Delete(ctx, preset.ID))

	got, err := repo.GetByID(ctx, preset.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReplaceAgeBrackets(t *testing.T) {
	repo := setupConfigRepoTest(t)
	ctx := context.Background()

	preset := namedPreset("Reshaped")
	preset.AgeBrackets = []models.AgeBracket{{MinAge: 0, MaxAge: 120, Percentage: 100}}
	require.NoError(t, repo.Create(ctx, preset))

	newBrackets := []models.AgeBracket{
		{MinAge: 0, MaxAge: 39, Percentage: 50},
		{MinAge: 40, MaxAge: 120, Percentage: 100},
	}
	require.NoError(t, repo.ReplaceAgeBrackets(ctx, preset.ID, newBrackets))

	got, err := repo.GetByID(ctx, preset.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.AgeBrackets, 2)
	assert.Equal(t, 39, got.AgeBrackets[0].MaxAge)
}

func TestUpdateInvalidatesActiveCache(t *testing.T) {
	repo := setupConfigRepoTest(t)
	ctx := context.Background()

	// Prime the cache.
	config, err := repo.GetActive(ctx, PurposeScoring)
	require.NoError(t, err)

	config.DNAWeight = 42
	require.NoError(t, repo.Update(ctx, config))

	refreshed, err := repo.GetActive(ctx, PurposeScoring)
	require.NoError(t, err)
	assert.Equal(t, 42, refreshed.DNAWeight)
}
