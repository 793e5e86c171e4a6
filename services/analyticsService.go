package services

import (
	"RatedApp/cliniko"
	"RatedApp/models"
	"RatedApp/repositories"
	"RatedApp/utils"
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

const (
	// defaultPatientDelay spaces patients out so a bulk run stays well under
	// Cliniko's rate limit; defaultBatchPause adds a longer breather after
	// every batchSize patients.
	defaultPatientDelay = 600 * time.Millisecond
	defaultBatchPause   = 5 * time.Second
	batchSize           = 10
)

var ErrJobAlreadyRunning = errors.New("an analytics job is already in progress")

// JobStore is the job bookkeeping the runner depends on, satisfied by
// repositories.JobRepository. Tests substitute failing implementations.
type JobStore interface {
	Create(ctx context.Context, job *models.AnalyticsJob) error
	GetByID(ctx context.Context, id uint) (*models.AnalyticsJob, error)
	GetAll(ctx context.Context) ([]models.AnalyticsJob, error)
	HasActiveJob(ctx context.Context) (bool, error)
	MarkRunning(ctx context.Context, id uint, totalPatients int) (bool, error)
	MarkFinished(ctx context.Context, id uint, status string) error
	IncrementProcessed(ctx context.Context, id uint) error
	RecordFailure(ctx context.Context, id uint, note string) error
	RequestCancel(ctx context.Context, id uint) error
	GetStatus(ctx context.Context, id uint) (string, error)
}

type AnalyticsService struct {
	cliniko        cliniko.API
	jobRepo        JobStore
	configRepo     *repositories.ConfigRepository
	emailLogRepo   *repositories.EmailLogRepository
	scoringService *ScoringService
	adminEmail     string

	patientDelay time.Duration
	batchPause   time.Duration

	// sendSummary is swapped for a recorder in tests.
	sendSummary func(email string, job *models.AnalyticsJob) error
}

func NewAnalyticsService(
	api cliniko.API,
	jobRepo JobStore,
	configRepo *repositories.ConfigRepository,
	emailLogRepo *repositories.EmailLogRepository,
	scoringService *ScoringService,
	adminEmail string,
) *AnalyticsService {
	return &AnalyticsService{
		cliniko:        api,
		jobRepo:        jobRepo,
		configRepo:     configRepo,
		emailLogRepo:   emailLogRepo,
		scoringService: scoringService,
		adminEmail:     adminEmail,
		patientDelay:   defaultPatientDelay,
		batchPause:     defaultBatchPause,
		sendSummary:    utils.SendJobSummaryEmail,
	}
}

// StartJob validates the range, rejects overlapping runs, records the job and
// launches the runner in the background.
func (s *AnalyticsService) StartJob(ctx context.Context, startDate, endDate time.Time) (*models.AnalyticsJob, error) {
	if err := utils.ValidateJobRange(startDate, endDate); err != nil {
		return nil, err
	}

	active, err := s.jobRepo.HasActiveJob(ctx)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrJobAlreadyRunning
	}

	cfg, err := s.configRepo.GetActive(ctx, repositories.PurposeAnalytics)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNoActiveConfiguration
	}

	job := &models.AnalyticsJob{
		ConfigurationID: cfg.ID,
		StartDate:       startDate,
		EndDate:         endDate,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	go s.run(job.ID, cfg, startDate, endDate)
	return job, nil
}

// GetJob returns one job's bookkeeping row.
func (s *AnalyticsService) GetJob(ctx context.Context, id uint) (*models.AnalyticsJob, error) {
	return s.jobRepo.GetByID(ctx, id)
}

// GetAllJobs returns the job history, newest first.
func (s *AnalyticsService) GetAllJobs(ctx context.Context) ([]models.AnalyticsJob, error) {
	return s.jobRepo.GetAll(ctx)
}

// CancelJob asks a pending or running job to stop. The runner honors the
// request at the next patient boundary.
func (s *AnalyticsService) CancelJob(ctx context.Context, id uint) error {
	return s.jobRepo.RequestCancel(ctx, id)
}

// run walks every patient seen in the range, scoring each one sequentially.
// It detaches from the request context so the job survives the HTTP response.
func (s *AnalyticsService) run(jobID uint, cfg *models.ScoringConfiguration, startDate, endDate time.Time) {
	ctx := context.Background()

	patientIDs, err := s.cliniko.ListPatientIDs(ctx, startDate, endDate)
	if err != nil {
		log.Printf("Analytics job %d: failed to list patients: %v", jobID, err)
		s.finish(ctx, jobID, models.JobStatusFailed)
		return
	}

	started, err := s.jobRepo.MarkRunning(ctx, jobID, len(patientIDs))
	if err != nil {
		log.Printf("Analytics job %d: failed to mark running: %v", jobID, err)
		s.finish(ctx, jobID, models.JobStatusFailed)
		return
	}
	if !started {
		// A cancel landed while we were listing patients.
		s.finish(ctx, jobID, models.JobStatusCancelled)
		return
	}

	status := models.JobStatusCompleted
	for i, patientID := range patientIDs {
		if s.cancelRequested(ctx, jobID) {
			status = models.JobStatusCancelled
			break
		}

		if _, err := s.scoringService.RateWithConfiguration(ctx, patientID, cfg); err != nil {
			log.Printf("Analytics job %d: patient %s failed: %v", jobID, patientID, err)
			note := fmt.Sprintf("patient %s: %v", patientID, err)
			if err := s.jobRepo.RecordFailure(ctx, jobID, note); err != nil {
				log.Printf("Analytics job %d: failed to record failure: %v", jobID, err)
			}
		} else if err := s.jobRepo.IncrementProcessed(ctx, jobID); err != nil {
			log.Printf("Analytics job %d: failed to increment processed count: %v", jobID, err)
		}

		if i == len(patientIDs)-1 {
			break
		}
		if (i+1)%batchSize == 0 {
			time.Sleep(s.batchPause)
		} else {
			time.Sleep(s.patientDelay)
		}
	}

	s.finish(ctx, jobID, status)
}

// cancelRequested checks the cooperative cancel flag between patients.
func (s *AnalyticsService) cancelRequested(ctx context.Context, jobID uint) bool {
	status, err := s.jobRepo.GetStatus(ctx, jobID)
	if err != nil {
		log.Printf("Analytics job %d: failed to read status: %v", jobID, err)
		return false
	}
	return status == models.JobStatusCancelling
}

// finish records the terminal status and mails the summary to the clinic
// administrator, logging the send either way.
func (s *AnalyticsService) finish(ctx context.Context, jobID uint, status string) {
	if err := s.jobRepo.MarkFinished(ctx, jobID, status); err != nil {
		log.Printf("Analytics job %d: failed to mark finished: %v", jobID, err)
	}

	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil || job == nil {
		log.Printf("Analytics job %d: failed to reload for summary: %v", jobID, err)
		return
	}

	if s.adminEmail == "" {
		return
	}

	entry := &models.EmailLog{
		Recipient: s.adminEmail,
		Subject:   fmt.Sprintf("Analytics job #%d %s", job.ID, job.Status),
		Kind:      "job_summary",
		Success:   true,
	}
	if err := s.sendSummary(s.adminEmail, job); err != nil {
		log.Printf("Analytics job %d: failed to send summary email: %v", jobID, err)
		entry.Success = false
		entry.Error = err.Error()
	}
	if err := s.emailLogRepo.Create(ctx, entry); err != nil {
		log.Printf("Analytics job %d: failed to log email: %v", jobID, err)
	}
}
