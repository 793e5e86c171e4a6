package services

import (
	"RatedApp/models"
	"RatedApp/repositories"
	"RatedApp/utils"
	"context"
	"fmt"
)

type PresetService struct {
	repository *repositories.ConfigRepository
}

func NewPresetService(repository *repositories.ConfigRepository) *PresetService {
	return &PresetService{repository: repository}
}

func (s *PresetService) GetActive(ctx context.Context, purpose string) (*models.ScoringConfiguration, error) {
	return s.repository.GetActive(ctx, purpose)
}

func (s *PresetService) GetAll(ctx context.Context) ([]models.ScoringConfiguration, error) {
	return s.repository.GetAll(ctx)
}

func (s *PresetService) GetByID(ctx context.Context, id uint) (*models.ScoringConfiguration, error) {
	return s.repository.GetByID(ctx, id)
}

func (s *PresetService) Create(ctx context.Context, config *models.ScoringConfiguration) error {
	if err := utils.ValidateScoringConfiguration(*config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// New presets never arrive active; they are applied explicitly.
	config.ActiveForScoring = false
	config.ActiveForAnalytics = false
	return s.repository.Create(ctx, config)
}

func (s *PresetService) Update(ctx context.Context, config *models.ScoringConfiguration) error {
	if err := utils.ValidateScoringConfiguration(*config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return s.repository.Update(ctx, config)
}

// Apply makes one preset the active configuration for either on-demand
// scoring or bulk analytics.
func (s *PresetService) Apply(ctx context.Context, id uint, purpose string) error {
	return s.repository.Apply(ctx, id, purpose)
}

func (s *PresetService) Delete(ctx context.Context, id uint) error {
	return s.repository.Delete(ctx, id)
}

func (s *PresetService) ReplaceAgeBrackets(ctx context.Context, configID uint, brackets []models.AgeBracket) error {
	if err := utils.ValidateAgeBrackets(brackets); err != nil {
		return err
	}
	return s.repository.ReplaceAgeBrackets(ctx, configID, brackets)
}

func (s *PresetService) ReplaceSpendBrackets(ctx context.Context, configID uint, brackets []models.SpendBracket) error {
	if err := utils.ValidateSpendBrackets(brackets); err != nil {
		return err
	}
	return s.repository.ReplaceSpendBrackets(ctx, configID, brackets)
}
