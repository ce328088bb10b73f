package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/convoforge-ai/platform/pkg/generation"
	"github.com/convoforge-ai/platform/pkg/observability/metrics"
	"github.com/google/uuid"
)

var (
	ErrInvalidState   = errors.New("operation not valid in current job state")
	ErrAlreadyRunning = errors.New("job already has an active scheduler")
)

// Store is the persistence surface the scheduler drives. Implemented
// by *Repository; tests supply an in-memory version.
type Store interface {
	CreateJob(ctx context.Context, job *JobModel, items []ItemModel) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*JobModel, error)
	ListJobs(ctx context.Context, status, createdBy string, limit int) ([]JobModel, error)
	DeleteJob(ctx context.Context, jobID uuid.UUID) error
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status string) error
	SetJobTimestamps(ctx context.Context, jobID uuid.UUID, startedAt, completedAt *time.Time) error
	Items(ctx context.Context, jobID uuid.UUID) ([]ItemModel, error)
	NextQueuedItem(ctx context.Context, jobID uuid.UUID) (*ItemModel, error)
	UpdateItemStatus(ctx context.Context, itemID uuid.UUID, status, conversationID, errorMessage string) error
	RecountJob(ctx context.Context, jobID uuid.UUID) (completed, failed int, err error)
}

// ItemProcessor turns one batch item into a generated conversation.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, item models.BatchItem) (conversationID string, err error)
}

// EventPublisher emits job and item transitions. Nil disables events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

// Scheduler executes batch jobs sequentially by item position. Each
// job gets at most one scheduler loop at a time; pause and cancel are
// observed at item boundaries.
type Scheduler struct {
	store       Store
	processor   ItemProcessor
	events      EventPublisher
	workerSem   chan struct{}
	itemTimeout time.Duration
	maxRetries  int

	mu     sync.Mutex
	active map[uuid.UUID]bool
}

func NewScheduler(store Store, processor ItemProcessor, events EventPublisher, maxWorkers int, itemTimeout time.Duration) *Scheduler {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Scheduler{
		store:       store,
		processor:   processor,
		events:      events,
		workerSem:   make(chan struct{}, maxWorkers),
		itemTimeout: itemTimeout,
		maxRetries:  2,
		active:      map[uuid.UUID]bool{},
	}
}

// CreateJob validates and persists a new job with its items queued.
func (s *Scheduler) CreateJob(ctx context.Context, req models.CreateBatchRequest) (models.BatchJob, error) {
	if req.Name == "" {
		return models.BatchJob{}, fmt.Errorf("job name required")
	}
	if len(req.Items) == 0 {
		return models.BatchJob{}, fmt.Errorf("at least one item required")
	}
	if req.ErrorHandling != "" && req.ErrorHandling != PolicyStop && req.ErrorHandling != PolicyContinue {
		return models.BatchJob{}, fmt.Errorf("error_handling must be %q or %q", PolicyStop, PolicyContinue)
	}
	for i, item := range req.Items {
		if item.Tier == "" {
			return models.BatchJob{}, fmt.Errorf("item %d missing tier", i)
		}
	}

	job, items := NewJobModel(req)
	if err := s.store.CreateJob(ctx, job, items); err != nil {
		return models.BatchJob{}, fmt.Errorf("persisting batch job: %w", err)
	}
	s.publish(ctx, "batch.job", map[string]interface{}{
		"job_id": job.ID.String(),
		"status": StatusQueued,
		"items":  len(items),
	})
	return job.ToDomain(), nil
}

// Start begins processing a queued job.
func (s *Scheduler) Start(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusQueued {
		return fmt.Errorf("%w: cannot start job in state %s", ErrInvalidState, job.Status)
	}
	if !s.claim(jobID) {
		return ErrAlreadyRunning
	}

	now := time.Now().UTC()
	if err := s.store.UpdateJobStatus(ctx, jobID, StatusProcessing); err != nil {
		s.release(jobID)
		return err
	}
	if err := s.store.SetJobTimestamps(ctx, jobID, &now, nil); err != nil {
		logger.Log.WithError(err).Error("failed to set job start time")
	}
	metrics.IncActiveJobs()
	s.publishJobStatus(ctx, jobID, StatusProcessing)

	go s.acquireAndRun(jobID)
	return nil
}

// Pause asks a processing job to stop after the current item. Items
// keep their states; remaining items stay queued.
func (s *Scheduler) Pause(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusProcessing {
		return fmt.Errorf("%w: cannot pause job in state %s", ErrInvalidState, job.Status)
	}
	if err := s.store.UpdateJobStatus(ctx, jobID, StatusPaused); err != nil {
		return err
	}
	s.publishJobStatus(ctx, jobID, StatusPaused)
	return nil
}

// Resume continues a paused job from the first queued item in
// position order.
func (s *Scheduler) Resume(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusPaused {
		return fmt.Errorf("%w: cannot resume job in state %s", ErrInvalidState, job.Status)
	}
	if !s.claim(jobID) {
		return ErrAlreadyRunning
	}
	if err := s.store.UpdateJobStatus(ctx, jobID, StatusProcessing); err != nil {
		s.release(jobID)
		return err
	}
	metrics.IncActiveJobs()
	s.publishJobStatus(ctx, jobID, StatusProcessing)

	go s.acquireAndRun(jobID)
	return nil
}

// Cancel terminally stops a job. Item states are left exactly as they
// are: completed items stay completed, queued items stay queued.
func (s *Scheduler) Cancel(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case StatusQueued, StatusProcessing, StatusPaused:
	default:
		return fmt.Errorf("%w: cannot cancel job in state %s", ErrInvalidState, job.Status)
	}
	if err := s.store.UpdateJobStatus(ctx, jobID, StatusCancelled); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.store.SetJobTimestamps(ctx, jobID, nil, &now); err != nil {
		logger.Log.WithError(err).Error("failed to set job completion time")
	}
	s.publishJobStatus(ctx, jobID, StatusCancelled)
	return nil
}

func (s *Scheduler) GetJob(ctx context.Context, jobID uuid.UUID) (models.BatchJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return models.BatchJob{}, err
	}
	domain := job.ToDomain()
	items, err := s.store.Items(ctx, jobID)
	if err != nil {
		return models.BatchJob{}, err
	}
	for i := range items {
		domain.Items = append(domain.Items, items[i].ToDomain())
	}
	return domain, nil
}

func (s *Scheduler) ListJobs(ctx context.Context, status, createdBy string, limit int) ([]models.BatchJob, error) {
	jobs, err := s.store.ListJobs(ctx, status, createdBy, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.BatchJob, 0, len(jobs))
	for i := range jobs {
		out = append(out, jobs[i].ToDomain())
	}
	return out, nil
}

// Summary derives progress counts from current item states.
func (s *Scheduler) Summary(ctx context.Context, jobID uuid.UUID) (models.BatchSummary, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return models.BatchSummary{}, err
	}
	items, err := s.store.Items(ctx, jobID)
	if err != nil {
		return models.BatchSummary{}, err
	}
	summary := models.BatchSummary{
		JobID:  jobID,
		Status: job.Status,
		Total:  len(items),
	}
	for _, item := range items {
		switch item.Status {
		case ItemCompleted:
			summary.Completed++
		case ItemFailed:
			summary.Failed++
		default:
			summary.Pending++
		}
	}
	if job.Status == StatusQueued || job.Status == StatusProcessing || job.Status == StatusPaused {
		summary.EstimatedSecondsRemaining = generation.Estimate(summary.Pending).EstimatedSeconds
	}
	return summary, nil
}

// ActiveJobs lists jobs currently in the processing state.
func (s *Scheduler) ActiveJobs(ctx context.Context) ([]models.BatchJob, error) {
	return s.ListJobs(ctx, StatusProcessing, "", 0)
}

// DeleteJob removes a job and its items. Processing jobs must be
// paused or cancelled first.
func (s *Scheduler) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == StatusProcessing || s.isActive(jobID) {
		return ErrInvalidState
	}
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	s.publish(ctx, "batch.job", map[string]interface{}{
		"job_id":  jobID.String(),
		"deleted": true,
	})
	return nil
}

func (s *Scheduler) acquireAndRun(jobID uuid.UUID) {
	s.workerSem <- struct{}{}
	defer func() { <-s.workerSem }()
	s.runLoop(context.Background(), jobID)
}

// runLoop processes items in position order until none remain or the
// job leaves the processing state. It owns the job's active flag.
func (s *Scheduler) runLoop(ctx context.Context, jobID uuid.UUID) {
	defer s.release(jobID)
	defer metrics.DecActiveJobs()

	for {
		if !s.shouldContinue(ctx, jobID) {
			return
		}

		item, err := s.store.NextQueuedItem(ctx, jobID)
		if err != nil {
			logger.Log.WithError(err).WithField("job_id", jobID).Error("failed to fetch next item")
			s.parkJob(ctx, jobID)
			return
		}
		if item == nil {
			s.finalize(ctx, jobID)
			return
		}

		if err := s.processOne(ctx, jobID, item); err != nil {
			// stop policy: the job is already marked failed.
			return
		}
	}
}

// parkJob pauses a job whose loop died on a store error. The items are
// untouched, so Resume picks up where the loop stopped once the store
// recovers.
func (s *Scheduler) parkJob(ctx context.Context, jobID uuid.UUID) {
	if err := s.store.UpdateJobStatus(ctx, jobID, StatusPaused); err != nil {
		logger.Log.WithError(err).WithField("job_id", jobID).Error("failed to pause job after store error")
	}
}

// shouldContinue re-reads the job between items so pause and cancel
// take effect at the next item boundary.
func (s *Scheduler) shouldContinue(ctx context.Context, jobID uuid.UUID) bool {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		logger.Log.WithError(err).WithField("job_id", jobID).Error("failed to re-read job state")
		return false
	}
	return job.Status == StatusProcessing
}

// processOne runs a single item. The returned error is non-nil only
// when the loop must halt (stop policy after a failure).
func (s *Scheduler) processOne(ctx context.Context, jobID uuid.UUID, item *ItemModel) error {
	if err := s.store.UpdateItemStatus(ctx, item.ID, ItemProcessing, "", ""); err != nil {
		logger.Log.WithError(err).Error("failed to mark item processing")
		s.parkJob(ctx, jobID)
		return err
	}

	conversationID, procErr := s.processWithRetry(ctx, item.ToDomain())
	if procErr != nil {
		if err := s.store.UpdateItemStatus(ctx, item.ID, ItemFailed, "", procErr.Error()); err != nil {
			logger.Log.WithError(err).Error("failed to mark item failed")
		}
		metrics.IncItemFailed()
		s.recount(ctx, jobID)
		s.publish(ctx, "batch.item", map[string]interface{}{
			"job_id":   jobID.String(),
			"item_id":  item.ID.String(),
			"position": item.Position,
			"status":   ItemFailed,
			"error":    procErr.Error(),
		})

		job, err := s.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.ErrorHandling == PolicyStop {
			now := time.Now().UTC()
			if err := s.store.UpdateJobStatus(ctx, jobID, StatusFailed); err != nil {
				logger.Log.WithError(err).Error("failed to mark job failed")
			}
			if err := s.store.SetJobTimestamps(ctx, jobID, nil, &now); err != nil {
				logger.Log.WithError(err).Error("failed to set job completion time")
			}
			s.publishJobStatus(ctx, jobID, StatusFailed)
			logger.Log.WithFields(map[string]interface{}{
				"job_id":   jobID,
				"position": item.Position,
			}).Warn("halting batch on item failure per stop policy")
			return procErr
		}
		return nil
	}

	if err := s.store.UpdateItemStatus(ctx, item.ID, ItemCompleted, conversationID, ""); err != nil {
		logger.Log.WithError(err).Error("failed to mark item completed")
	}
	metrics.IncItemCompleted()
	s.recount(ctx, jobID)
	s.publish(ctx, "batch.item", map[string]interface{}{
		"job_id":          jobID.String(),
		"item_id":         item.ID.String(),
		"position":        item.Position,
		"status":          ItemCompleted,
		"conversation_id": conversationID,
	})
	return nil
}

// processWithRetry retries transient generation failures with a short
// backoff; permanent failures surface immediately.
func (s *Scheduler) processWithRetry(ctx context.Context, item models.BatchItem) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}
		itemCtx := ctx
		var cancel context.CancelFunc
		if s.itemTimeout > 0 {
			itemCtx, cancel = context.WithTimeout(ctx, s.itemTimeout)
		}
		conversationID, err := s.processor.ProcessItem(itemCtx, item)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return conversationID, nil
		}
		lastErr = err
		if !generation.IsTransient(err) {
			return "", err
		}
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"item_id": item.ID,
			"attempt": attempt + 1,
		}).Warn("transient item failure, retrying")
	}
	return "", lastErr
}

// finalize runs when no queued items remain: recount and settle the
// terminal state.
func (s *Scheduler) finalize(ctx context.Context, jobID uuid.UUID) {
	_, failed, err := s.store.RecountJob(ctx, jobID)
	if err != nil {
		logger.Log.WithError(err).WithField("job_id", jobID).Error("failed to recount job")
	}

	status := StatusCompleted
	if failed > 0 {
		job, err := s.store.GetJob(ctx, jobID)
		if err == nil && job.ErrorHandling == PolicyStop {
			status = StatusFailed
		}
	}
	now := time.Now().UTC()
	if err := s.store.UpdateJobStatus(ctx, jobID, status); err != nil {
		logger.Log.WithError(err).Error("failed to set final job status")
	}
	if err := s.store.SetJobTimestamps(ctx, jobID, nil, &now); err != nil {
		logger.Log.WithError(err).Error("failed to set job completion time")
	}
	s.publishJobStatus(ctx, jobID, status)
	logger.Log.WithFields(map[string]interface{}{
		"job_id": jobID,
		"status": status,
	}).Info("batch job finished")
}

func (s *Scheduler) recount(ctx context.Context, jobID uuid.UUID) {
	if _, _, err := s.store.RecountJob(ctx, jobID); err != nil {
		logger.Log.WithError(err).WithField("job_id", jobID).Error("failed to recount job")
	}
}

func (s *Scheduler) claim(jobID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[jobID] {
		return false
	}
	s.active[jobID] = true
	return true
}

func (s *Scheduler) release(jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, jobID)
}

func (s *Scheduler) isActive(jobID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[jobID]
}

func (s *Scheduler) publishJobStatus(ctx context.Context, jobID uuid.UUID, status string) {
	s.publish(ctx, "batch.job", map[string]interface{}{
		"job_id": jobID.String(),
		"status": status,
	})
}

func (s *Scheduler) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, eventType, "generation-service", data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).
			Warn("failed to publish batch event")
	}
}
