package services

import (
	"RatedApp/models"
	"RatedApp/repositories"
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summaryRecorder struct {
	mu   sync.Mutex
	sent []*models.AnalyticsJob
	err  error
}

func (r *summaryRecorder) send(email string, job *models.AnalyticsJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, job)
	return r.err
}

func (r *summaryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newAnalyticsService(f *serviceFixture, recorder *summaryRecorder) *AnalyticsService {
	svc := NewAnalyticsService(f.api, f.jobRepo, f.configRepo, f.emailLogRepo, f.scoring, "admin@clinic.example")
	svc.patientDelay = time.Millisecond
	svc.batchPause = time.Millisecond
	svc.sendSummary = recorder.send
	return svc
}

func waitForTerminalStatus(t *testing.T, f *serviceFixture, jobID uint) *models.AnalyticsJob {
	t.Helper()
	var job *models.AnalyticsJob
	require.Eventually(t, func() bool {
		var err error
		job, err = f.jobRepo.GetByID(context.Background(), jobID)
		if err != nil || job == nil {
			return false
		}
		switch job.Status {
		case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
			return true
		}
		return false
	}, 10*time.Second, 20*time.Millisecond)
	return job
}

func TestStartJobRejectsBadRange(t *testing.T) {
	f := setupServiceTest(t)
	svc := newAnalyticsService(f, &summaryRecorder{})

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.StartJob(context.Background(), start, end)
	assert.Error(t, err)
}

func TestStartJobRejectsConcurrentRun(t *testing.T) {
	f := setupServiceTest(t)
	svc := newAnalyticsService(f, &summaryRecorder{})
	ctx := context.Background()

	// A pending row blocks new jobs regardless of how it got there.
	blocker := &models.AnalyticsJob{StartDate: testNow, EndDate: testNow}
	require.NoError(t, f.jobRepo.Create(ctx, blocker))

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.StartJob(ctx, start, end)
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)
}

func TestRunProcessesEveryPatient(t *testing.T) {
	f := setupServiceTest(t)
	recorder := &summaryRecorder{}
	svc := newAnalyticsService(f, recorder)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		f.addScenarioPatient(id)
		f.api.patientIDs = append(f.api.patientIDs, id)
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job, err := svc.StartJob(ctx, start, end)
	require.NoError(t, err)

	finished := waitForTerminalStatus(t, f, job.ID)
	assert.Equal(t, models.JobStatusCompleted, finished.Status)
	assert.Equal(t, 3, finished.TotalPatients)
	assert.Equal(t, 3, finished.ProcessedCount)
	assert.Equal(t, 0, finished.FailedCount)
	require.NotNil(t, finished.StartedAt)
	require.NotNil(t, finished.CompletedAt)

	// Every patient got a stored grade.
	for _, id := range []string{"1", "2", "3"} {
		patient, err := f.patientRepo.GetByClinikoID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, patient)
		assert.Equal(t, "C", patient.LetterGrade)
	}

	// Summary email was sent and logged.
	assert.Equal(t, 1, recorder.count())
	logs, err := f.emailLogRepo.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "admin@clinic.example", logs[0].Recipient)
	assert.True(t, logs[0].Success)
}

func TestRunRecordsPerPatientFailures(t *testing.T) {
	f := setupServiceTest(t)
	recorder := &summaryRecorder{}
	svc := newAnalyticsService(f, recorder)
	ctx := context.Background()

	f.addScenarioPatient("1")
	f.addScenarioPatient("3")
	f.api.patientIDs = []string{"1", "2", "3"}
	f.api.failPatients["2"] = errors.New("upstream timeout")

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job, err := svc.StartJob(ctx, start, end)
	require.NoError(t, err)

	finished := waitForTerminalStatus(t, f, job.ID)
	assert.Equal(t, models.JobStatusCompleted, finished.Status)
	assert.Equal(t, 2, finished.ProcessedCount)
	assert.Equal(t, 1, finished.FailedCount)
	assert.Contains(t, finished.FailureNotes, "patient 2")
	assert.Contains(t, finished.FailureNotes, "upstream timeout")
}

func TestRunHonorsCancellation(t *testing.T) {
	f := setupServiceTest(t)
	recorder := &summaryRecorder{}
	svc := newAnalyticsService(f, recorder)
	svc.patientDelay = 50 * time.Millisecond
	svc.batchPause = 50 * time.Millisecond
	ctx := context.Background()

	ids := make([]string, 0, 40)
	for i := 1; i <= 40; i++ {
		id := "p" + strconv.Itoa(i)
		f.addScenarioPatient(id)
		ids = append(ids, id)
	}
	f.api.patientIDs = ids

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job, err := svc.StartJob(ctx, start, end)
	require.NoError(t, err)

	// Let a couple of patients through, then ask it to stop.
	require.Eventually(t, func() bool {
		j, err := f.jobRepo.GetByID(ctx, job.ID)
		return err == nil && j != nil && j.ProcessedCount >= 2
	}, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.CancelJob(ctx, job.ID))

	finished := waitForTerminalStatus(t, f, job.ID)
	assert.Equal(t, models.JobStatusCancelled, finished.Status)
	assert.Less(t, finished.ProcessedCount, 40)
	assert.Equal(t, 1, recorder.count())
}

func TestRunHonorsCancelRequestedBeforeStart(t *testing.T) {
	f := setupServiceTest(t)
	recorder := &summaryRecorder{}
	svc := newAnalyticsService(f, recorder)
	ctx := context.Background()

	f.addScenarioPatient("1")
	f.api.patientIDs = []string{"1"}

	cfg, err := f.configRepo.GetActive(ctx, repositories.PurposeAnalytics)
	require.NoError(t, err)

	job := &models.AnalyticsJob{StartDate: testNow, EndDate: testNow}
	require.NoError(t, f.jobRepo.Create(ctx, job))
	// The cancel lands while the runner is still listing patients.
	require.NoError(t, f.jobRepo.RequestCancel(ctx, job.ID))

	svc.run(job.ID, cfg, testNow.AddDate(0, -1, 0), testNow)

	finished, err := f.jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, finished)
	assert.Equal(t, models.JobStatusCancelled, finished.Status)
	assert.Equal(t, 0, finished.ProcessedCount)
	assert.Equal(t, 1, recorder.count())
}

// brokenStartStore wraps the real store with an initial status update that
// fails as if the database connection dropped.
type brokenStartStore struct {
	JobStore
}

func (s *brokenStartStore) MarkRunning(ctx context.Context, id uint, totalPatients int) (bool, error) {
	return false, errors.New("connection reset by peer")
}

func TestRunFailsJobWhenStartUpdateErrors(t *testing.T) {
	f := setupServiceTest(t)
	recorder := &summaryRecorder{}
	svc := newAnalyticsService(f, recorder)
	svc.jobRepo = &brokenStartStore{f.jobRepo}
	ctx := context.Background()

	f.addScenarioPatient("1")
	f.api.patientIDs = []string{"1"}

	cfg, err := f.configRepo.GetActive(ctx, repositories.PurposeAnalytics)
	require.NoError(t, err)

	job := &models.AnalyticsJob{StartDate: testNow, EndDate: testNow}
	require.NoError(t, f.jobRepo.Create(ctx, job))

	svc.run(job.ID, cfg, testNow.AddDate(0, -1, 0), testNow)

	finished, err := f.jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, finished)
	assert.Equal(t, models.JobStatusFailed, finished.Status)

	// The slot frees up for the next run.
	active, err := f.jobRepo.HasActiveJob(ctx)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCancelJobRejectsFinishedJob(t *testing.T) {
	f := setupServiceTest(t)
	svc := newAnalyticsService(f, &summaryRecorder{})
	ctx := context.Background()

	job := &models.AnalyticsJob{StartDate: testNow, EndDate: testNow}
	require.NoError(t, f.jobRepo.Create(ctx, job))
	require.NoError(t, f.jobRepo.MarkFinished(ctx, job.ID, models.JobStatusCompleted))

	err := svc.CancelJob(ctx, job.ID)
	assert.Error(t, err)
}
