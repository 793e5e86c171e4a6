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
	"gorm.io/gorm/clause"
)

const (
	PatientCacheExpiry = 24 * time.Hour
)

type PatientRepository struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewPatientRepository(db *gorm.DB, cache *cache.Cache) *PatientRepository {
	return &PatientRepository{db: db, cache: cache}
}

// Upsert inserts or refreshes the local row for a Cliniko patient. Scoring
// fields are left untouched so a demographic refresh never clobbers a grade.
func (r *PatientRepository) Upsert(ctx context.Context, patient *models.Patient) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cliniko_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "date_of_birth", "updated_at"}),
	}).Create(patient).Error
	if err != nil {
		return fmt.Errorf("failed to upsert patient: %w", err)
	}
	return r.invalidateCache(ctx, patient.ClinikoID)
}

// GetByClinikoID returns the local patient row, or nil when we have never seen
// that patient.
func (r *PatientRepository) GetByClinikoID(ctx context.Context, clinikoID string) (*models.Patient, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cacheKey := r.getPatientCacheKey(clinikoID)
	cachedPatient, err := r.cache.Get(ctx, cacheKey)
	if err == nil && cachedPatient != "" {
		var patient models.Patient
		if err := json.Unmarshal([]byte(cachedPatient), &patient); err == nil {
			return &patient, nil
		}
	} else if err != nil && err != redis.Nil {
		log.Printf("Failed to get patient from cache: %v", err)
	}

	var patient models.Patient
	err = r.db.WithContext(ctx).Where("cliniko_id = ?", clinikoID).First(&patient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	patientJSON, err := json.Marshal(patient)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patient: %w", err)
	}
	if err := r.cache.Set(ctx, cacheKey, patientJSON, PatientCacheExpiry); err != nil {
		log.Printf("Failed to set patient in cache: %v", err)
	}

	return &patient, nil
}

// GetAll returns every locally-known patient ordered by last name.
func (r *PatientRepository) GetAll(ctx context.Context) ([]models.Patient, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var patients []models.Patient
	err := r.db.WithContext(ctx).Order("last_name ASC, first_name ASC").Find(&patients).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get patients: %w", err)
	}
	return patients, nil
}

// UpdateLikability sets the manually-entered likability value, creating the
// local row first when the patient has never been scored.
func (r *PatientRepository) UpdateLikability(ctx context.Context, clinikoID string, likability int) error {
	lockKey := fmt.Sprintf("patient_lock:%s", clinikoID)
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

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cliniko_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"likability", "updated_at"}),
	}).Create(&models.Patient{ClinikoID: clinikoID, Likability: likability}).Error
	if err != nil {
		return fmt.Errorf("failed to update likability: %w", err)
	}
	return r.invalidateCache(ctx, clinikoID)
}

// SaveRating stores the outcome of a scoring run on the local row.
func (r *PatientRepository) SaveRating(ctx context.Context, clinikoID string, totalScore int, letterGrade string, ratedAt time.Time) error {
	lockKey := fmt.Sprintf("patient_lock:%s", clinikoID)
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

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cliniko_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_score", "letter_grade", "rated_at", "updated_at"}),
	}).Create(&models.Patient{
		ClinikoID:   clinikoID,
		TotalScore:  totalScore,
		LetterGrade: letterGrade,
		RatedAt:     &ratedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to save rating: %w", err)
	}
	return r.invalidateCache(ctx, clinikoID)
}

func (r *PatientRepository) invalidateCache(ctx context.Context, clinikoID string) error {
	if err := r.cache.Delete(ctx, r.getPatientCacheKey(clinikoID)); err != nil {
		return fmt.Errorf("failed to delete patient cache: %w", err)
	}
	return nil
}

func (r *PatientRepository) getPatientCacheKey(clinikoID string) string {
	return fmt.Sprintf("patient_cache:%s", clinikoID)
}
