package batch

import (
	"context"
	"errors"
	"time"

	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("batch job not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&JobModel{}, &ItemModel{})
}

// CreateJob writes the job and all its items in one transaction so a
// partial batch never becomes visible.
func (r *Repository) CreateJob(ctx context.Context, job *JobModel, items []ItemModel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

func (r *Repository) GetJob(ctx context.Context, jobID uuid.UUID) (*JobModel, error) {
	var job JobModel
	result := r.db.WithContext(ctx).First(&job, "id = ?", jobID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	return &job, result.Error
}

func (r *Repository) ListJobs(ctx context.Context, status, createdBy string, limit int) ([]JobModel, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if createdBy != "" {
		query = query.Where("created_by = ?", createdBy)
	}
	var jobs []JobModel
	result := query.Find(&jobs)
	return jobs, result.Error
}

func (r *Repository) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_job_id = ?", jobID).Delete(&ItemModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", jobID).Delete(&JobModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrJobNotFound
		}
		return nil
	})
}

func (r *Repository) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Model(&JobModel{}).Where("id = ?", jobID).Updates(updates).Error
}

func (r *Repository) SetJobTimestamps(ctx context.Context, jobID uuid.UUID, startedAt, completedAt *time.Time) error {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if startedAt != nil {
		updates["started_at"] = *startedAt
	}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}
	return r.db.WithContext(ctx).Model(&JobModel{}).Where("id = ?", jobID).Updates(updates).Error
}

// Items returns a job's items in position order.
func (r *Repository) Items(ctx context.Context, jobID uuid.UUID) ([]ItemModel, error) {
	var items []ItemModel
	result := r.db.WithContext(ctx).
		Where("batch_job_id = ?", jobID).
		Order("position asc").
		Find(&items)
	return items, result.Error
}

// NextQueuedItem returns the first queued item by position, or nil
// when none remain.
func (r *Repository) NextQueuedItem(ctx context.Context, jobID uuid.UUID) (*ItemModel, error) {
	var item ItemModel
	result := r.db.WithContext(ctx).
		Where("batch_job_id = ? AND status = ?", jobID, ItemQueued).
		Order("position asc").
		First(&item)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &item, nil
}

func (r *Repository) UpdateItemStatus(ctx context.Context, itemID uuid.UUID, status, conversationID, errorMessage string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if conversationID != "" {
		updates["conversation_id"] = conversationID
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}
	return r.db.WithContext(ctx).Model(&ItemModel{}).Where("id = ?", itemID).Updates(updates).Error
}

// RecountJob recomputes the job's counters from its item states. The
// counters are a pure function of the items, never incremented
// independently, so a recount after any item change cannot drift.
func (r *Repository) RecountJob(ctx context.Context, jobID uuid.UUID) (completed, failed int, err error) {
	type countRow struct {
		Status string
		N      int
	}
	var rows []countRow
	err = r.db.WithContext(ctx).Model(&ItemModel{}).
		Select("status, count(*) as n").
		Where("batch_job_id = ?", jobID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, row := range rows {
		switch row.Status {
		case ItemCompleted:
			completed = row.N
		case ItemFailed:
			failed = row.N
		}
	}
	updates := map[string]interface{}{
		"completed_items": completed,
		"failed_items":    failed,
		"updated_at":      time.Now().UTC(),
	}
	err = r.db.WithContext(ctx).Model(&JobModel{}).Where("id = ?", jobID).Updates(updates).Error
	return completed, failed, err
}

// NewJobModel builds the job and item rows from a create request.
func NewJobModel(req models.CreateBatchRequest) (*JobModel, []ItemModel) {
	now := time.Now().UTC()
	policy := req.ErrorHandling
	if policy == "" {
		policy = PolicyContinue
	}
	job := &JobModel{
		ID:            uuid.New(),
		Name:          req.Name,
		Status:        StatusQueued,
		TotalItems:    len(req.Items),
		ErrorHandling: policy,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	items := make([]ItemModel, 0, len(req.Items))
	for i, item := range req.Items {
		params := map[string]interface{}{}
		for k, v := range req.SharedParams {
			params[k] = v
		}
		for k, v := range item.Parameters {
			params[k] = v
		}
		items = append(items, ItemModel{
			ID:         uuid.New(),
			BatchJobID: job.ID,
			Position:   i + 1,
			Topic:      item.Topic,
			Tier:       item.Tier,
			Parameters: datatypes.JSONMap(params),
			Status:     ItemQueued,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return job, items
}
