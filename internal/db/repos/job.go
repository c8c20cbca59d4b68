// Package repos provides the gorm repositories
package repos

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ucext/citizenconnect/internal/db/models"
)

// JobRepository handles database operations for publish jobs
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new instance of JobRepository
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{
		db: db,
	}
}

// Create creates a new job in the database
func (r *JobRepository) Create(ctx context.Context, job *models.PublishJob) error {
	if err := models.ValidateOwnerID(job.OwnerID); err != nil {
		return fmt.Errorf("invalid owner_id: %w", err)
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByPublicID retrieves a job of the given owner by its public id
func (r *JobRepository) GetByPublicID(ctx context.Context, ownerID uint, publicID string) (*models.PublishJob, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner_id: %w", err)
	}
	var job models.PublishJob
	if err := r.db.WithContext(ctx).
		Where(&models.PublishJob{PublicID: publicID, OwnerID: ownerID}).
		First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Find retrieves a job by its public id regardless of owner. Used by the
// workers, which act on behalf of whoever submitted the job.
func (r *JobRepository) Find(ctx context.Context, publicID string) (*models.PublishJob, error) {
	var job models.PublishJob
	if err := r.db.WithContext(ctx).
		Where(&models.PublishJob{PublicID: publicID}).
		First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List retrieves the jobs of an owner, newest first
func (r *JobRepository) List(ctx context.Context, ownerID uint, opts *models.ListOptions) ([]models.PublishJob, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner_id: %w", err)
	}
	var jobs []models.PublishJob
	err := r.filtered(ctx, ownerID, opts).
		Order(models.JobCreatedAtField + " DESC, id DESC").
		Find(&jobs).Error
	return jobs, err
}

// Count returns how many jobs of an owner match the filters, ignoring pagination
func (r *JobRepository) Count(ctx context.Context, ownerID uint, opts *models.ListOptions) (int64, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return 0, fmt.Errorf("invalid owner_id: %w", err)
	}
	var count int64
	var filter *models.ListOptions
	if opts != nil {
		filter = &models.ListOptions{State: opts.State, Platform: opts.Platform}
	}
	err := r.filtered(ctx, ownerID, filter).Model(&models.PublishJob{}).Count(&count).Error
	return count, err
}

func (r *JobRepository) filtered(ctx context.Context, ownerID uint, opts *models.ListOptions) *gorm.DB {
	query := r.db.WithContext(ctx).Where(&models.PublishJob{OwnerID: ownerID})
	if opts == nil {
		return query
	}
	if opts.State != nil {
		query = query.Where(models.JobStateField+" = ?", *opts.State)
	}
	if opts.Platform != "" {
		query = query.Where("platform = ?", opts.Platform)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	return query
}

// Save persists every column of the job
func (r *JobRepository) Save(ctx context.Context, job *models.PublishJob) error {
	if job.ID == 0 {
		return fmt.Errorf("cannot save a job that was never created")
	}
	return r.db.WithContext(ctx).Save(job).Error
}

// MarkCleanedUp flags the staged media of a job as deleted
func (r *JobRepository) MarkCleanedUp(ctx context.Context, publicID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.PublishJob{}).
		Where(models.JobPublicIDField+" = ?", publicID).
		Updates(map[string]interface{}{
			models.JobCleanedUpField:   true,
			models.JobCleanedUpAtField: at,
		}).Error
}

// ListByStates retrieves every job currently in one of the given states
func (r *JobRepository) ListByStates(ctx context.Context, states ...models.JobState) ([]models.PublishJob, error) {
	var jobs []models.PublishJob
	err := r.db.WithContext(ctx).
		Where(models.JobStateField+" IN ?", states).
		Order(models.JobCreatedAtField + " ASC, id ASC").
		Find(&jobs).Error
	return jobs, err
}

// ListPendingCleanup retrieves terminal jobs whose staged media was never deleted
func (r *JobRepository) ListPendingCleanup(ctx context.Context) ([]models.PublishJob, error) {
	var jobs []models.PublishJob
	err := r.db.WithContext(ctx).
		Where(models.JobStateField+" IN ?", []models.JobState{models.JobStateFinished, models.JobStateFailed}).
		Where(models.JobCleanedUpField+" = ?", false).
		Find(&jobs).Error
	return jobs, err
}
