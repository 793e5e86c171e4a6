package models

import (
	"time"
)

// Patient mirrors the slice of Cliniko patient data we keep locally: the
// manually-entered likability value plus the cached result of the last scoring
// run. Cliniko remains the system of record for everything else.
type Patient struct {
	ClinikoID   string     `gorm:"primaryKey;column:cliniko_id" json:"cliniko_id"`
	FirstName   string     `gorm:"column:first_name" json:"first_name"`
	LastName    string     `gorm:"column:last_name;index" json:"last_name"`
	DateOfBirth string     `gorm:"column:date_of_birth" json:"date_of_birth"`
	Likability  int        `gorm:"column:likability;not null;default:0" json:"likability"`
	TotalScore  int        `gorm:"column:total_score" json:"total_score"`
	LetterGrade string     `gorm:"column:letter_grade" json:"letter_grade"`
	RatedAt     *time.Time `gorm:"column:rated_at" json:"rated_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Patient) TableName() string {
	return "patient"
}

// AnalyticsJob states. A job moves pending -> running -> one of
// {completed, failed, cancelled}; cancelling marks a cooperative cancel request
// that the runner honors between patients.
const (
	JobStatusPending    = "pending"
	JobStatusRunning    = "running"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelling = "cancelling"
	JobStatusCancelled  = "cancelled"
)

// AnalyticsJob is the bookkeeping row for one bulk scoring run over the
// patients seen in a date range.
type AnalyticsJob struct {
	ID              uint       `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	ConfigurationID uint       `gorm:"column:configuration_id;index" json:"configuration_id"`
	StartDate       time.Time  `gorm:"column:start_date;not null" json:"start_date"`
	EndDate         time.Time  `gorm:"column:end_date;not null" json:"end_date"`
	Status          string     `gorm:"column:status;not null;index" json:"status"`
	TotalPatients   int        `gorm:"column:total_patients" json:"total_patients"`
	ProcessedCount  int        `gorm:"column:processed_count" json:"processed_count"`
	FailedCount     int        `gorm:"column:failed_count" json:"failed_count"`
	FailureNotes    string     `gorm:"column:failure_notes;type:text" json:"failure_notes"`
	StartedAt       *time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (AnalyticsJob) TableName() string {
	return "analytics_job"
}

// EmailLog records every outbound email (job summaries, reset codes) for audit.
type EmailLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Recipient string    `gorm:"column:recipient;not null;index" json:"recipient"`
	Subject   string    `gorm:"column:subject;not null" json:"subject"`
	Kind      string    `gorm:"column:kind;not null" json:"kind"`
	Success   bool      `gorm:"column:success;not null" json:"success"`
	Error     string    `gorm:"column:error" json:"error"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (EmailLog) TableName() string {
	return "email_log"
}
