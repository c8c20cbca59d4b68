package services

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/pipeline"
	"github.com/ucext/citizenconnect/internal/staging"
	"github.com/ucext/citizenconnect/test/mocks"
)

func (s *ServiceTestSuite) TestSubmitValidation() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)

	valid := SubmitRequest{Platform: "instagram", AccountID: testIGAccount, Data: pngBytes}
	tests := []struct {
		name  string
		edit  func(r *SubmitRequest)
		field string
	}{
		{name: "unknown platform", edit: func(r *SubmitRequest) { r.Platform = "myspace" }, field: "platform"},
		{name: "text only platform", edit: func(r *SubmitRequest) { r.Platform = "linkedin" }, field: "platform"},
		{name: "missing account", edit: func(r *SubmitRequest) { r.AccountID = "" }, field: "account_id"},
		{name: "account not connected", edit: func(r *SubmitRequest) { r.AccountID = "ig-unknown" }, field: "account_id"},
		{name: "unknown kind", edit: func(r *SubmitRequest) { r.Kind = "gif" }, field: "kind"},
		{name: "no media", edit: func(r *SubmitRequest) { r.Data = nil }, field: "file"},
		{name: "not media", edit: func(r *SubmitRequest) { r.Data = []byte("plain text") }, field: "file"},
		{name: "kind mismatch", edit: func(r *SubmitRequest) { r.Kind = "video" }, field: "file"},
		{name: "caption too long", edit: func(r *SubmitRequest) { r.Caption = strings.Repeat("a", MaxCaptionLength+1) }, field: "caption"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := valid
			tt.edit(&req)
			job, err := s.jobs.Submit(s.ctx, testOwner, req)
			assert.Nil(s.T(), job)
			var verr *pipeline.ValidationError
			require.True(s.T(), errors.As(err, &verr), "got %v", err)
			assert.Equal(s.T(), tt.field, verr.Field)
		})
	}

	jobs, total, err := s.jobs.List(s.ctx, testOwner, &models.ListOptions{})
	require.NoError(s.T(), err)
	assert.Empty(s.T(), jobs, "rejected submissions never create a job")
	assert.Zero(s.T(), total)

	entries, err := os.ReadDir(s.stager.Dir())
	require.NoError(s.T(), err)
	assert.Empty(s.T(), entries, "rejected submissions stage nothing")
}

func (s *ServiceTestSuite) TestSubmitPublishesImage() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.startPool()

	job := s.submitImage("hello")
	assert.Equal(s.T(), models.JobStateStaged, job.State)
	assert.Equal(s.T(), models.MediaKindImage, job.Kind)
	assert.True(s.T(), strings.HasPrefix(job.MediaReference, "https://media.test"+staging.MediaRoute+"/"))

	done := s.waitTerminal(job.PublicID)
	assert.Equal(s.T(), models.JobStateFinished, done.State)
	assert.NotEmpty(s.T(), done.ResultMediaID)
	assert.Empty(s.T(), done.FailureReason)
	assert.Equal(s.T(), 1, done.PollCount)

	creates, _, publishes := s.graph.Counts()
	assert.Equal(s.T(), 1, creates)
	assert.Equal(s.T(), 1, publishes)
	assert.Equal(s.T(), "hello", s.graph.LastForm()["caption"])
	assert.Equal(s.T(), "page-token-"+testPageID, s.graph.LastForm()["access_token"])

	_, err := os.Stat(filepath.Join(s.stager.Dir(), filepath.FromSlash(done.StagedKey)))
	assert.True(s.T(), os.IsNotExist(err), "staged media is removed after publishing")
}

func (s *ServiceTestSuite) TestSubmitProcessingError() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.graph.StatusSequence = []string{mocks.GraphStatusProgress, mocks.GraphStatusError}
	s.startPool()

	done := s.waitTerminal(s.submitImage("").PublicID)
	assert.Equal(s.T(), models.JobStateFailed, done.State)
	assert.Equal(s.T(), models.FailureProcessingFailed, done.FailureKind)
	assert.Equal(s.T(), 2, done.PollCount)

	_, _, publishes := s.graph.Counts()
	assert.Zero(s.T(), publishes, "a failed container is never published")
}

func (s *ServiceTestSuite) TestSubmitRejectedContainer() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.graph.CreateContainerFunc = func(string, map[string]string) (int, string) {
		return http.StatusBadRequest, mocks.GraphError("Only photo or video can be accepted as media type.")
	}
	s.startPool()

	done := s.waitTerminal(s.submitImage("").PublicID)
	assert.Equal(s.T(), models.JobStateFailed, done.State)
	assert.Equal(s.T(), models.FailureUpstreamRejected, done.FailureKind)
	assert.Contains(s.T(), done.FailureReason, "Only photo or video")
	assert.Empty(s.T(), done.ContainerHandle)
}

func (s *ServiceTestSuite) TestGetIsOwnerScoped() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	job := s.submitImage("")

	got, err := s.jobs.Get(s.ctx, testOwner, job.PublicID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), job.PublicID, got.PublicID)

	_, err = s.jobs.Get(s.ctx, otherOwner, job.PublicID)
	assert.ErrorIs(s.T(), err, ErrJobNotFound)
}

func (s *ServiceTestSuite) TestListFiltersByState() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.submitImage("one")
	s.submitImage("two")

	staged := models.JobStateStaged
	jobs, total, err := s.jobs.List(s.ctx, testOwner, &models.ListOptions{State: &staged, Limit: 1})
	require.NoError(s.T(), err)
	assert.Len(s.T(), jobs, 1)
	assert.Equal(s.T(), int64(2), total)

	finished := models.JobStateFinished
	jobs, total, err = s.jobs.List(s.ctx, testOwner, &models.ListOptions{State: &finished})
	require.NoError(s.T(), err)
	assert.Empty(s.T(), jobs)
	assert.Zero(s.T(), total)
}

func (s *ServiceTestSuite) TestCancelQueuedJob() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	job := s.submitImage("")

	_, err := s.jobs.Cancel(s.ctx, testOwner, job.PublicID)
	require.NoError(s.T(), err)
	s.startPool()

	done := s.waitTerminal(job.PublicID)
	assert.Equal(s.T(), models.JobStateFailed, done.State)
	assert.Equal(s.T(), models.FailureCanceled, done.FailureKind)
	creates, _, publishes := s.graph.Counts()
	assert.Zero(s.T(), creates)
	assert.Zero(s.T(), publishes)

	_, err = s.jobs.Cancel(s.ctx, testOwner, job.PublicID)
	assert.ErrorIs(s.T(), err, ErrJobNotCancelable)

	_, err = s.jobs.Cancel(s.ctx, otherOwner, job.PublicID)
	assert.ErrorIs(s.T(), err, ErrJobNotFound)
}

func (s *ServiceTestSuite) TestSubmitAfterPoolStopped() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.startPool()
	s.cancel()
	s.pool.Wait()

	ctx := context.Background()
	_, err := s.jobs.Submit(ctx, testOwner, SubmitRequest{Platform: "instagram", AccountID: testIGAccount, Data: pngBytes})
	assert.ErrorIs(s.T(), err, ErrPoolStopped)

	jobs, _, err := s.jobs.List(ctx, testOwner, &models.ListOptions{})
	require.NoError(s.T(), err)
	require.Len(s.T(), jobs, 1)
	assert.Equal(s.T(), models.JobStateFailed, jobs[0].State)
	assert.Equal(s.T(), models.FailureCanceled, jobs[0].FailureKind)
}

// stageJob stores a job in the given state with freshly staged media
func (s *ServiceTestSuite) stageJob(state models.JobState, handle string) *models.PublishJob {
	staged, err := s.stager.Put(s.ctx, staging.StageRequest{Data: pngBytes})
	require.NoError(s.T(), err)
	job := &models.PublishJob{
		OwnerID:         testOwner,
		Platform:        models.PlatformInstagram,
		AccountRef:      testIGAccount,
		Kind:            staged.Kind,
		MediaReference:  staged.URL,
		StagedKey:       staged.Key,
		ContainerHandle: handle,
		State:           state,
	}
	require.NoError(s.T(), s.jobRepo.Create(s.ctx, job))
	return job
}

func (s *ServiceTestSuite) TestRecoverStaleJobs() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)

	interrupted := s.stageJob(models.JobStateProcessing, "container-x")
	finished := s.stageJob(models.JobStateFinished, "container-y")
	queued := s.stageJob(models.JobStateStaged, "")

	s.startPool()
	require.NoError(s.T(), s.jobs.RecoverStaleJobs(s.ctx))

	got, err := s.jobRepo.Find(s.ctx, interrupted.PublicID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.JobStateFailed, got.State)
	assert.Equal(s.T(), models.FailureInterrupted, got.FailureKind)
	assert.True(s.T(), got.CleanedUp)

	got, err = s.jobRepo.Find(s.ctx, finished.PublicID)
	require.NoError(s.T(), err)
	assert.True(s.T(), got.CleanedUp)

	done := s.waitTerminal(queued.PublicID)
	assert.Equal(s.T(), models.JobStateFinished, done.State)

	_, _, publishes := s.graph.Counts()
	assert.Equal(s.T(), 1, publishes, "interrupted jobs are never published again")
}

func (s *ServiceTestSuite) TestRecoverBacklogLargerThanQueue() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.pool = NewWorkerPool(s.jobRepo, s.pipeline, 1, 1, nil)
	s.jobs = NewJobService(s.jobRepo, s.accounts, s.stager, s.pipeline, s.pool, nil)

	backlog := make([]*models.PublishJob, 0, 4)
	for i := 0; i < 4; i++ {
		backlog = append(backlog, s.stageJob(models.JobStateStaged, ""))
	}

	s.startPool()
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(s.T(), s.jobs.RecoverStaleJobs(ctx))
	assert.Less(s.T(), time.Since(start), time.Second, "recovery must not wait for the queue to drain")

	for _, job := range backlog {
		done := s.waitTerminal(job.PublicID)
		assert.Equal(s.T(), models.JobStateFinished, done.State)
	}
	_, _, publishes := s.graph.Counts()
	assert.Equal(s.T(), len(backlog), publishes)
}

func (s *ServiceTestSuite) TestRecoverRequiresStartedPool() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	queued := s.stageJob(models.JobStateStaged, "")

	err := s.jobs.RecoverStaleJobs(s.ctx)
	assert.ErrorIs(s.T(), err, ErrPoolNotStarted)

	got, err := s.jobRepo.Find(s.ctx, queued.PublicID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.JobStateStaged, got.State)
}

func (s *ServiceTestSuite) TestCancelJobNotHeldByPool() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	// a staged row the pool never received, as when a job settles between
	// the lookup and the cancel
	orphan := s.stageJob(models.JobStateStaged, "")

	_, err := s.jobs.Cancel(s.ctx, testOwner, orphan.PublicID)
	assert.ErrorIs(s.T(), err, ErrJobNotCancelable)
	assert.False(s.T(), s.pool.Cancel("unknown-job"))

	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	assert.Empty(s.T(), s.pool.canceled)
	assert.Empty(s.T(), s.pool.queued)
}

func (s *ServiceTestSuite) TestCancelFinishedJobAfterRun() {
	s.connectFacebook(testOwner, "fb-1", testPageID, testIGAccount)
	s.startPool()
	job := s.submitImage("")
	s.waitTerminal(job.PublicID)

	assert.False(s.T(), s.pool.Cancel(job.PublicID))
	_, err := s.jobs.Cancel(s.ctx, testOwner, job.PublicID)
	assert.ErrorIs(s.T(), err, ErrJobNotCancelable)

	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	assert.Empty(s.T(), s.pool.canceled)
	assert.Empty(s.T(), s.pool.queued)
}
