package services

import (
	"RatedApp/cache"
	"RatedApp/models"
	"RatedApp/repositories"
	"RatedApp/utils"
	"context"
	"fmt"
	"log"
)

type PatientService struct {
	repository *repositories.PatientRepository
	cache      *cache.Cache
}

func NewPatientService(repository *repositories.PatientRepository, cache *cache.Cache) *PatientService {
	return &PatientService{repository: repository, cache: cache}
}

func (s *PatientService) GetAll(ctx context.Context) ([]models.Patient, error) {
	return s.repository.GetAll(ctx)
}

func (s *PatientService) GetByClinikoID(ctx context.Context, clinikoID string) (*models.Patient, error) {
	return s.repository.GetByClinikoID(ctx, clinikoID)
}

// UpdateLikability stores a new manually-entered likability value and drops
// the cached behavior report so the next read reflects it.
func (s *PatientService) UpdateLikability(ctx context.Context, clinikoID string, likability int) error {
	if err := utils.ValidateLikability(likability); err != nil {
		return fmt.Errorf("invalid likability: %w", err)
	}
	if err := s.repository.UpdateLikability(ctx, clinikoID, likability); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, behaviorCacheKey(clinikoID)); err != nil {
		log.Printf("Failed to delete behavior report cache: %v", err)
	}
	return nil
}
