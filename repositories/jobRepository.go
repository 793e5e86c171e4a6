package repositories

import (
	"RatedApp/models"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrJobNotCancellable = errors.New("job is not running")

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *models.AnalyticsJob) error {
	job.Status = models.JobStatusPending
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create analytics job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uint) (*models.AnalyticsJob, error) {
	var job models.AnalyticsJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get analytics job: %w", err)
	}
	return &job, nil
}

// GetAll returns jobs newest first.
func (r *JobRepository) GetAll(ctx context.Context) ([]models.AnalyticsJob, error) {
	var jobs []models.AnalyticsJob
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics jobs: %w", err)
	}
	return jobs, nil
}

// HasActiveJob reports whether a job is currently pending or running. Only one
// analytics run may be in flight at a time.
func (r *JobRepository) HasActiveJob(ctx context.Context) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AnalyticsJob{}).
		Where("status IN ?", []string{models.JobStatusPending, models.JobStatusRunning, models.JobStatusCancelling}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check active jobs: %w", err)
	}
	return count > 0, nil
}

// MarkRunning moves a pending job to running and stamps its start time. The
// update is guarded on the pending status so a cancel requested before the
// runner gets going is not overwritten; the bool reports whether the job
// actually started.
func (r *JobRepository) MarkRunning(ctx context.Context, id uint, totalPatients int) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.AnalyticsJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":         models.JobStatusRunning,
			"total_patients": totalPatients,
			"started_at":     &now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark job running: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkFinished records the terminal status and completion time.
func (r *JobRepository) MarkFinished(ctx context.Context, id uint, status string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&models.AnalyticsJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark job finished: %w", err)
	}
	return nil
}

// IncrementProcessed bumps the processed counter after each patient.
func (r *JobRepository) IncrementProcessed(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.AnalyticsJob{}).Where("id = ?", id).
		UpdateColumn("processed_count", gorm.Expr("processed_count + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment processed count: %w", err)
	}
	return nil
}

// RecordFailure bumps the failed counter and appends a note naming the patient.
func (r *JobRepository) RecordFailure(ctx context.Context, id uint, note string) error {
	err := r.db.WithContext(ctx).Model(&models.AnalyticsJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"failed_count":  gorm.Expr("failed_count + 1"),
			"failure_notes": gorm.Expr("failure_notes || ?", note+"\n"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}
	return nil
}

// RequestCancel flips a running job to cancelling. The runner notices the flag
// between patients and stops.
func (r *JobRepository) RequestCancel(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.AnalyticsJob{}).
		Where("id = ? AND status IN ?", id, []string{models.JobStatusPending, models.JobStatusRunning}).
		Update("status", models.JobStatusCancelling)
	if result.Error != nil {
		return fmt.Errorf("failed to request job cancel: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotCancellable
	}
	return nil
}

// GetStatus reads just the status column, used by the runner's cancel check.
func (r *JobRepository) GetStatus(ctx context.Context, id uint) (string, error) {
	var job models.AnalyticsJob
	err := r.db.WithContext(ctx).Select("status").First(&job, "id = ?", id).Error
	if err != nil {
		return "", fmt.Errorf("failed to get job status: %w", err)
	}
	return job.Status, nil
}
