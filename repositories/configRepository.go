package repositories

import (
	"RatedApp/cache"
	"RatedApp/database"
	"RatedApp/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ConfigCacheExpiry = 24 * time.Hour

	// PurposeScoring and PurposeAnalytics select which "active" flag a
	// configuration lookup or preset apply targets.
	PurposeScoring   = "scoring"
	PurposeAnalytics = "analytics"
)

var ErrDuplicatePresetName = errors.New("a preset with that name already exists")

// behaviorReportCachePattern matches the per-patient reports the scoring
// service caches; a configuration change makes every one of them stale.
const behaviorReportCachePattern = "behavior_cache:*"

type ConfigRepository struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewConfigRepository(db *gorm.DB, cache *cache.Cache) *ConfigRepository {
	return &ConfigRepository{db: db, cache: cache}
}

// GetActive returns the configuration flagged active for the given purpose,
// with both bracket tables preloaded in ascending order.
func (r *ConfigRepository) GetActive(ctx context.Context, purpose string) (*models.ScoringConfiguration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cacheKey := r.getActiveCacheKey(purpose)
	cachedConfig, err := r.cache.Get(ctx, cacheKey)
	if err == nil && cachedConfig != "" {
		var config models.ScoringConfiguration
		if err := json.Unmarshal([]byte(cachedConfig), &config); err == nil {
			return &config, nil
		}
	} else if err != nil && err != redis.Nil {
		log.Printf("Failed to get configuration from cache: %v", err)
	}

	column, err := activeColumn(purpose)
	if err != nil {
		return nil, err
	}

	var config models.ScoringConfiguration
	err = r.db.WithContext(ctx).
		Preload("AgeBrackets", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_age ASC")
		}).
		Preload("SpendBrackets", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_spend ASC")
		}).
		Where(column+" = ?", true).
		First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active configuration: %w", err)
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if err := r.cache.Set(ctx, cacheKey, configJSON, ConfigCacheExpiry); err != nil {
		log.Printf("Failed to set configuration in cache: %v", err)
	}

	return &config, nil
}

// GetByID returns one configuration with its brackets preloaded.
func (r *ConfigRepository) GetByID(ctx context.Context, id uint) (*models.ScoringConfiguration, error) {
	var config models.ScoringConfiguration
	err := r.db.WithContext(ctx).
		Preload("AgeBrackets", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_age ASC")
		}).
		Preload("SpendBrackets", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_spend ASC")
		}).
		First(&config, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return &config, nil
}

// GetAll returns every saved preset ordered by name.
func (r *ConfigRepository) GetAll(ctx context.Context) ([]models.ScoringConfiguration, error) {
	var configs []models.ScoringConfiguration
	err := r.db.WithContext(ctx).
		Preload("AgeBrackets", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_age ASC")
		}).
		Preload("SpendBrackets", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_spend ASC")
		}).
		Order("name ASC").
		Find(&configs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get configurations: %w", err)
	}
	return configs, nil
}

// Create saves a new named preset. Duplicate names are rejected before any
// mutation.
func (r *ConfigRepository) Create(ctx context.Context, config *models.ScoringConfiguration) error {
	lockKey := fmt.Sprintf("config_lock:%s", config.Name)
	lockValue := uuid.New().String()
	locked, err := database.NewLock(ctx, lockKey, lockValue, 10*time.Second)
	if err != nil || !locked {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := database.ReleaseLock(ctx, lockKey, lockValue); err != nil {
			log.Printf("Failed to release lock: %v", err)
		}
	}()

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ScoringConfiguration{}).Where("name = ?", config.Name).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check preset name: %w", err)
	}
	if count > 0 {
		return ErrDuplicatePresetName
	}

	if err := r.db.WithContext(ctx).Create(config).Error; err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}
	return r.invalidateCache(ctx)
}

// Update saves weight and points-per-event changes on an existing
// configuration.
func (r *ConfigRepository) Update(ctx context.Context, config *models.ScoringConfiguration) error {
	lockKey := fmt.Sprintf("config_lock:%d", config.ID)
	lockValue := uuid.New().String()
	locked, err := database.NewLock(ctx, lockKey, lockValue, 10*time.Second)
	if err != nil || !locked {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := database.ReleaseLock(ctx, lockKey, lockValue); err != nil {
			log.Printf("Failed to release lock: %v", err)
		}
	}()

	if err := r.db.WithContext(ctx).Omit("AgeBrackets", "SpendBrackets").Save(config).Error; err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}
	return r.invalidateCache(ctx)
}

// Apply flags one configuration active for the given purpose and clears the
// flag everywhere else, in a single transaction.
func (r *ConfigRepository) Apply(ctx context.Context, id uint, purpose string) error {
	column, err := activeColumn(purpose)
	if err != nil {
		return err
	}

	lockKey := fmt.Sprintf("config_apply_lock:%s", purpose)
	lockValue := uuid.New().String()
	locked, err := database.NewLock(ctx, lockKey, lockValue, 10*time.Second)
	if err != nil || !locked {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := database.ReleaseLock(ctx, lockKey, lockValue); err != nil {
			log.Printf("Failed to release lock: %v", err)
		}
	}()

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ScoringConfiguration{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errors.New("configuration not found")
		}
		if err := tx.Model(&models.ScoringConfiguration{}).Where(column+" = ?", true).Update(column, false).Error; err != nil {
			return err
		}
		return tx.Model(&models.ScoringConfiguration{}).Where("id = ?", id).Update(column, true).Error
	})
	if err != nil {
		return fmt.Errorf("failed to apply configuration: %w", err)
	}
	return r.invalidateCache(ctx)
}

// Delete removes a preset. The configuration active for either purpose cannot
// be deleted.
func (r *ConfigRepository) Delete(ctx context.Context, id uint) error {
	config, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if config == nil {
		return errors.New("configuration not found")
	}
	if config.ActiveForScoring || config.ActiveForAnalytics {
		return errors.New("cannot delete an active configuration")
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.AgeBracket{}, "configuration_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.SpendBracket{}, "configuration_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ScoringConfiguration{}, "id = ?", id).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	return r.invalidateCache(ctx)
}

// ReplaceAgeBrackets swaps a configuration's age bracket table.
func (r *ConfigRepository) ReplaceAgeBrackets(ctx context.Context, configID uint, brackets []models.AgeBracket) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.AgeBracket{}, "configuration_id = ?", configID).Error; err != nil {
			return err
		}
		for i := range brackets {
			brackets[i].ID = 0
			brackets[i].ConfigurationID = configID
		}
		if len(brackets) == 0 {
			return nil
		}
		return tx.Create(&brackets).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace age brackets: %w", err)
	}
	return r.invalidateCache(ctx)
}

// ReplaceSpendBrackets swaps a configuration's spend bracket table.
func (r *ConfigRepository) ReplaceSpendBrackets(ctx context.Context, configID uint, brackets []models.SpendBracket) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.SpendBracket{}, "configuration_id = ?", configID).Error; err != nil {
			return err
		}
		for i := range brackets {
			brackets[i].ID = 0
			brackets[i].ConfigurationID = configID
		}
		if len(brackets) == 0 {
			return nil
		}
		return tx.Create(&brackets).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace spend brackets: %w", err)
	}
	return r.invalidateCache(ctx)
}

func (r *ConfigRepository) invalidateCache(ctx context.Context) error {
	for _, purpose := range []string{PurposeScoring, PurposeAnalytics} {
		if err := r.cache.Delete(ctx, r.getActiveCacheKey(purpose)); err != nil {
			return fmt.Errorf("failed to delete configuration cache: %w", err)
		}
	}
	if err := r.cache.DeleteAll(ctx, behaviorReportCachePattern); err != nil {
		return fmt.Errorf("failed to delete behavior report cache: %w", err)
	}
	return nil
}

func (r *ConfigRepository) getActiveCacheKey(purpose string) string {
	return fmt.Sprintf("config_cache:active_%s", purpose)
}

func activeColumn(purpose string) (string, error) {
	switch purpose {
	case PurposeScoring:
		return "active_for_scoring", nil
	case PurposeAnalytics:
		return "active_for_analytics", nil
	default:
		return "", fmt.Errorf("unknown configuration purpose: %s", purpose)
	}
}
