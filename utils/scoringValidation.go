package utils

import (
	"RatedApp/models"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ValidateScoringConfiguration checks an administrator-supplied configuration:
// weights are 0-100 slider caps, points-per-event multipliers are non-negative.
func ValidateScoringConfiguration(cfg models.ScoringConfiguration) error {
	err := validation.ValidateStruct(&cfg,
		validation.Field(&cfg.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&cfg.FutureAppointmentsWeight, validation.Min(0), validation.Max(100)),
		validation.Field(&cfg.AgeDemographicsWeight, validation.Min(0), validation.Max(100)),
		validation.Field(&cfg.YearlySpendWeight, validation.Min(0), validation.Max(100)),
		validation.Field(&cfg.ConsecutiveAttendanceWeight, validation.Min(0), validation.Max(100)),
		validation.Field(&cfg.ReferrerScoreWeight, validation.Min(0), validation.Max(100)),
		validation.Field(&cfg.OpenDNAInvoiceWeight, validation.Min(0), validation.Max(100)),
		validation.Field(&cfg.UnpaidInvoicesWeight, validation.Min(0), validation.Max(100)),
		validation.Field(&cfg.CancellationsWeight, validation.Min(0), validation.Max(100)),
		validation.Field(&cfg.DNAWeight, validation.Min(0), validation.Max(100)),
		validation.Field(&cfg.PointsPerConsecutiveAttendance, validation.Min(0)),
		validation.Field(&cfg.PointsPerReferral, validation.Min(0)),
		validation.Field(&cfg.PointsPerUnpaidInvoice, validation.Min(0)),
		validation.Field(&cfg.PointsPerCancellation, validation.Min(0)),
		validation.Field(&cfg.PointsPerDNA, validation.Min(0)),
	)
	if err != nil {
		return err
	}
	if err := ValidateAgeBrackets(cfg.AgeBrackets); err != nil {
		return err
	}
	return ValidateSpendBrackets(cfg.SpendBrackets)
}

// ValidateLikability checks the manually-entered likability range.
func ValidateLikability(value int) error {
	return validation.Validate(value,
		validation.Min(-100).Error("likability must be at least -100"),
		validation.Max(100).Error("likability must be at most 100"),
	)
}

// ValidateAgeBrackets checks each bracket's range and percentage.
func ValidateAgeBrackets(brackets []models.AgeBracket) error {
	for i, bracket := range brackets {
		if bracket.MinAge < 0 {
			return fmt.Errorf("age bracket %d: min_age must not be negative", i+1)
		}
		if bracket.MaxAge < bracket.MinAge {
			return fmt.Errorf("age bracket %d: max_age must not be below min_age", i+1)
		}
		if bracket.Percentage < 0 || bracket.Percentage > 100 {
			return fmt.Errorf("age bracket %d: percentage must be between 0 and 100", i+1)
		}
	}
	return nil
}

// ValidateSpendBrackets checks each bracket's range and percentage.
func ValidateSpendBrackets(brackets []models.SpendBracket) error {
	for i, bracket := range brackets {
		if bracket.MinSpend < 0 {
			return fmt.Errorf("spend bracket %d: min_spend must not be negative", i+1)
		}
		if bracket.MaxSpend < bracket.MinSpend {
			return fmt.Errorf("spend bracket %d: max_spend must not be below min_spend", i+1)
		}
		if bracket.Percentage < 0 || bracket.Percentage > 100 {
			return fmt.Errorf("spend bracket %d: percentage must be between 0 and 100", i+1)
		}
	}
	return nil
}

// ValidateJobRange checks an analytics job's date range.
func ValidateJobRange(startDate, endDate time.Time) error {
	if startDate.IsZero() || endDate.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if endDate.Before(startDate) {
		return errors.New("end_date must not be before start_date")
	}
	return nil
}
