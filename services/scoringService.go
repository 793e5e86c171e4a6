package services

import (
	"RatedApp/cache"
	"RatedApp/cliniko"
	"RatedApp/models"
	"RatedApp/repositories"
	"RatedApp/scoring"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// BehaviorCacheExpiry keeps a computed report around briefly so the
	// dashboard can re-render without re-fetching the patient from Cliniko.
	BehaviorCacheExpiry = 5 * time.Minute
)

var ErrNoActiveConfiguration = errors.New("no active scoring configuration")

type ScoringService struct {
	cliniko     cliniko.API
	configRepo  *repositories.ConfigRepository
	patientRepo *repositories.PatientRepository
	cache       *cache.Cache
	location    *time.Location
	now         func() time.Time
}

func NewScoringService(
	api cliniko.API,
	configRepo *repositories.ConfigRepository,
	patientRepo *repositories.PatientRepository,
	cache *cache.Cache,
	location *time.Location,
) *ScoringService {
	return &ScoringService{
		cliniko:     api,
		configRepo:  configRepo,
		patientRepo: patientRepo,
		cache:       cache,
		location:    location,
		now:         time.Now,
	}
}

// GetPatientBehavior computes the behavior report for one patient using the
// configuration active for on-demand scoring. Recent results are served from
// cache.
func (s *ScoringService) GetPatientBehavior(ctx context.Context, patientID string) (*scoring.BehaviorReport, error) {
	cacheKey := behaviorCacheKey(patientID)
	cachedReport, err := s.cache.Get(ctx, cacheKey)
	if err == nil && cachedReport != "" {
		var report scoring.BehaviorReport
		if err := json.Unmarshal([]byte(cachedReport), &report); err == nil {
			return &report, nil
		}
	} else if err != nil && err != redis.Nil {
		log.Printf("Failed to get behavior report from cache: %v", err)
	}

	cfg, err := s.configRepo.GetActive(ctx, repositories.PurposeScoring)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNoActiveConfiguration
	}

	report, _, err := s.buildReport(ctx, patientID, cfg)
	if err != nil {
		return nil, err
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal behavior report: %w", err)
	}
	if err := s.cache.Set(ctx, cacheKey, reportJSON, BehaviorCacheExpiry); err != nil {
		log.Printf("Failed to set behavior report in cache: %v", err)
	}

	return report, nil
}

// RatePatient scores a patient with the on-demand configuration, persists the
// result locally and writes the grade back into Cliniko.
func (s *ScoringService) RatePatient(ctx context.Context, patientID string) (*scoring.BehaviorReport, error) {
	cfg, err := s.configRepo.GetActive(ctx, repositories.PurposeScoring)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNoActiveConfiguration
	}
	return s.RateWithConfiguration(ctx, patientID, cfg)
}

// RateWithConfiguration scores a patient against an explicit configuration.
// The analytics runner calls this with the bulk configuration so an on-demand
// preset swap mid-run cannot change results.
func (s *ScoringService) RateWithConfiguration(ctx context.Context, patientID string, cfg *models.ScoringConfiguration) (*scoring.BehaviorReport, error) {
	report, appointments, err := s.buildReport(ctx, patientID, cfg)
	if err != nil {
		return nil, err
	}

	ratedAt := s.now()
	if err := s.patientRepo.SaveRating(ctx, patientID, report.TotalScore, report.LetterGrade, ratedAt); err != nil {
		return nil, err
	}

	if appointmentID := latestRatableAppointment(appointments, ratedAt); appointmentID != "" {
		if err := s.cliniko.WriteRating(ctx, appointmentID, report.LetterGrade); err != nil {
			return nil, fmt.Errorf("failed to write rating to appointment %s: %w", appointmentID, err)
		}
	}

	if err := s.cache.Delete(ctx, behaviorCacheKey(patientID)); err != nil {
		log.Printf("Failed to delete behavior report cache: %v", err)
	}

	return report, nil
}

// buildReport pulls everything the processor needs from Cliniko and the local
// likability store, then runs the scorer. The raw appointment list is returned
// as well so callers can pick a write-back target.
func (s *ScoringService) buildReport(ctx context.Context, patientID string, cfg *models.ScoringConfiguration) (*scoring.BehaviorReport, []cliniko.Appointment, error) {
	patient, err := s.cliniko.GetPatient(ctx, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch patient %s: %w", patientID, err)
	}

	appointments, err := s.cliniko.GetAppointments(ctx, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch appointments for patient %s: %w", patientID, err)
	}

	invoices, err := s.cliniko.GetInvoices(ctx, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch invoices for patient %s: %w", patientID, err)
	}

	referralCount, err := s.cliniko.GetReferralCount(ctx, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch referrals for patient %s: %w", patientID, err)
	}

	// Keep the local demographics row fresh while we have the record in hand.
	if err := s.patientRepo.Upsert(ctx, &models.Patient{
		ClinikoID:   patientID,
		FirstName:   patient.FirstName,
		LastName:    patient.LastName,
		DateOfBirth: patient.DateOfBirth,
	}); err != nil {
		log.Printf("Failed to upsert patient %s: %v", patientID, err)
	}

	likability := 0
	if local, err := s.patientRepo.GetByClinikoID(ctx, patientID); err != nil {
		log.Printf("Failed to load likability for patient %s: %v", patientID, err)
	} else if local != nil {
		likability = local.Likability
	}

	data := scoring.PatientData{
		DateOfBirth:   patient.DateOfBirth,
		Appointments:  toScoringAppointments(appointments),
		Invoices:      toScoringInvoices(invoices),
		ReferralCount: referralCount,
		Likability:    likability,
	}

	report := scoring.Process(data, cfg, s.now(), s.location)
	return report, appointments, nil
}

// latestRatableAppointment picks the most recent non-cancelled appointment
// that has already started; its notes receive the grade marker.
func latestRatableAppointment(appointments []cliniko.Appointment, now time.Time) string {
	var bestID string
	var bestStart time.Time
	for _, a := range appointments {
		if a.CancelledAt != nil || a.StartsAt.After(now) {
			continue
		}
		if bestID == "" || a.StartsAt.After(bestStart) {
			bestID = a.ID.String()
			bestStart = a.StartsAt
		}
	}
	return bestID
}

func toScoringAppointments(appointments []cliniko.Appointment) []scoring.Appointment {
	out := make([]scoring.Appointment, 0, len(appointments))
	for _, a := range appointments {
		out = append(out, scoring.Appointment{
			ID:           a.ID.String(),
			StartsAt:     a.StartsAt,
			CancelledAt:  a.CancelledAt,
			DidNotArrive: a.DidNotArrive,
		})
	}
	return out
}

func toScoringInvoices(invoices []cliniko.Invoice) []scoring.Invoice {
	out := make([]scoring.Invoice, 0, len(invoices))
	for _, i := range invoices {
		out = append(out, scoring.Invoice{
			ID:            i.ID.String(),
			CreatedAt:     i.CreatedAt,
			ClosedAt:      i.ClosedAt,
			TotalAmount:   i.Amount(),
			AppointmentID: i.Appointment.ResourceID(),
		})
	}
	return out
}

func behaviorCacheKey(patientID string) string {
	return fmt.Sprintf("behavior_cache:%s", patientID)
}
