package repos

import (
	"time"

	"gorm.io/gorm"

	"github.com/ucext/citizenconnect/internal/db/models"
)

func (s *DBRepositoryTestSuite) TestCreateJobDefaults() {
	job := s.createTestJob(1, models.PlatformInstagram, models.MediaKindImage)

	s.NotZero(job.ID)
	s.Len(job.PublicID, 36)
	s.Equal(models.JobStateStaged, job.State)
	s.Empty(job.ContainerHandle)
	s.False(job.CleanedUp)
}

func (s *DBRepositoryTestSuite) TestCreateJobRejectsInvalid() {
	err := s.jobRepo.Create(s.ctx, &models.PublishJob{
		OwnerID:        1,
		Platform:       models.PlatformX,
		AccountRef:     "123",
		Kind:           models.MediaKindImage,
		MediaReference: "https://media.example.com/a.jpg",
	})
	s.Error(err)

	err = s.jobRepo.Create(s.ctx, &models.PublishJob{
		Platform:       models.PlatformInstagram,
		AccountRef:     "123",
		Kind:           models.MediaKindImage,
		MediaReference: "https://media.example.com/a.jpg",
	})
	s.ErrorIs(err, models.ErrInvalidOwnerID)
}

func (s *DBRepositoryTestSuite) TestGetByPublicIDIsOwnerScoped() {
	job := s.createTestJob(1, models.PlatformFacebook, models.MediaKindVideo)

	got, err := s.jobRepo.GetByPublicID(s.ctx, 1, job.PublicID)
	s.Require().NoError(err)
	s.Equal(job.ID, got.ID)
	s.Equal(models.MediaKindVideo, got.Kind)

	_, err = s.jobRepo.GetByPublicID(s.ctx, 2, job.PublicID)
	s.ErrorIs(err, gorm.ErrRecordNotFound)

	found, err := s.jobRepo.Find(s.ctx, job.PublicID)
	s.Require().NoError(err)
	s.Equal(uint(1), found.OwnerID)
}

func (s *DBRepositoryTestSuite) TestSaveProgress() {
	job := s.createTestJob(1, models.PlatformInstagram, models.MediaKindVideo)

	job.ContainerHandle = "17900000000000001"
	s.Require().NoError(job.Transition(models.JobStateContainerCreated))
	s.Require().NoError(job.Transition(models.JobStateProcessing))
	started := time.Now().UTC().Truncate(time.Second)
	job.StartedAt = &started
	job.PollCount = 3
	s.Require().NoError(s.jobRepo.Save(s.ctx, job))

	got, err := s.jobRepo.Find(s.ctx, job.PublicID)
	s.Require().NoError(err)
	s.Equal(models.JobStateProcessing, got.State)
	s.Equal("17900000000000001", got.ContainerHandle)
	s.Equal(3, got.PollCount)
	s.Require().NotNil(got.StartedAt)
	s.True(started.Equal(got.StartedAt.UTC()))

	s.Error(s.jobRepo.Save(s.ctx, &models.PublishJob{}))
}

func (s *DBRepositoryTestSuite) TestListAndCount() {
	for i := 0; i < 3; i++ {
		s.createTestJob(1, models.PlatformInstagram, models.MediaKindImage)
	}
	failed := s.createTestJob(1, models.PlatformFacebook, models.MediaKindImage)
	failed.State = models.JobStateFailed
	failed.FailureKind = models.FailureValidation
	s.Require().NoError(s.jobRepo.Save(s.ctx, failed))
	s.createTestJob(2, models.PlatformInstagram, models.MediaKindImage)

	jobs, err := s.jobRepo.List(s.ctx, 1, &models.ListOptions{Limit: 2})
	s.Require().NoError(err)
	s.Len(jobs, 2)

	total, err := s.jobRepo.Count(s.ctx, 1, &models.ListOptions{Limit: 2})
	s.Require().NoError(err)
	s.Equal(int64(4), total)

	state := models.JobStateFailed
	jobs, err = s.jobRepo.List(s.ctx, 1, &models.ListOptions{State: &state})
	s.Require().NoError(err)
	s.Require().Len(jobs, 1)
	s.Equal(failed.PublicID, jobs[0].PublicID)

	jobs, err = s.jobRepo.List(s.ctx, 1, &models.ListOptions{Platform: models.PlatformInstagram})
	s.Require().NoError(err)
	s.Len(jobs, 3)

	_, err = s.jobRepo.List(s.ctx, 0, nil)
	s.ErrorIs(err, models.ErrInvalidOwnerID)
}

func (s *DBRepositoryTestSuite) TestRecoveryQueries() {
	staged := s.createTestJob(1, models.PlatformInstagram, models.MediaKindImage)

	processing := s.createTestJob(1, models.PlatformInstagram, models.MediaKindVideo)
	processing.ContainerHandle = "c-1"
	processing.State = models.JobStateProcessing
	s.Require().NoError(s.jobRepo.Save(s.ctx, processing))

	done := s.createTestJob(1, models.PlatformInstagram, models.MediaKindImage)
	done.ContainerHandle = "c-2"
	done.State = models.JobStateFinished
	done.ResultMediaID = "m-2"
	s.Require().NoError(s.jobRepo.Save(s.ctx, done))

	active, err := s.jobRepo.ListByStates(s.ctx, models.JobStateStaged, models.JobStateProcessing)
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal(staged.PublicID, active[0].PublicID)
	s.Equal(processing.PublicID, active[1].PublicID)

	pending, err := s.jobRepo.ListPendingCleanup(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(done.PublicID, pending[0].PublicID)

	s.Require().NoError(s.jobRepo.MarkCleanedUp(s.ctx, done.PublicID, time.Now()))
	pending, err = s.jobRepo.ListPendingCleanup(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)

	got, err := s.jobRepo.Find(s.ctx, done.PublicID)
	s.Require().NoError(err)
	s.True(got.CleanedUp)
	s.NotNil(got.CleanedUpAt)
}
