package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/google/uuid"
)

type memStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*JobModel
	items map[uuid.UUID][]*ItemModel
}

func newMemStore() *memStore {
	return &memStore{
		jobs:  map[uuid.UUID]*JobModel{},
		items: map[uuid.UUID][]*ItemModel{},
	}
}

func (m *memStore) CreateJob(ctx context.Context, job *JobModel, items []ItemModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	for i := range items {
		item := items[i]
		m.items[job.ID] = append(m.items[job.ID], &item)
	}
	return nil
}

func (m *memStore) GetJob(ctx context.Context, jobID uuid.UUID) (*JobModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memStore) ListJobs(ctx context.Context, status, createdBy string, limit int) ([]JobModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []JobModel
	for _, job := range m.jobs {
		if status != "" && job.Status != status {
			continue
		}
		if createdBy != "" && job.CreatedBy != createdBy {
			continue
		}
		out = append(out, *job)
	}
	return out, nil
}

func (m *memStore) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return ErrJobNotFound
	}
	delete(m.jobs, jobID)
	delete(m.items, jobID)
	return nil
}

func (m *memStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) SetJobTimestamps(ctx context.Context, jobID uuid.UUID, startedAt, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if startedAt != nil {
		job.StartedAt = startedAt
	}
	if completedAt != nil {
		job.CompletedAt = completedAt
	}
	return nil
}

func (m *memStore) Items(ctx context.Context, jobID uuid.UUID) ([]ItemModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]*ItemModel{}, m.items[jobID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	out := make([]ItemModel, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (m *memStore) NextQueuedItem(ctx context.Context, jobID uuid.UUID) (*ItemModel, error) {
	items, err := m.Items(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Status == ItemQueued {
			item := items[i]
			return &item, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateItemStatus(ctx context.Context, itemID uuid.UUID, status, conversationID, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, items := range m.items {
		for _, item := range items {
			if item.ID == itemID {
				item.Status = status
				if conversationID != "" {
					item.ConversationID = conversationID
				}
				if errorMessage != "" {
					item.ErrorMessage = errorMessage
				}
				item.UpdatedAt = time.Now().UTC()
				return nil
			}
		}
	}
	return fmt.Errorf("item %s not found", itemID)
}

func (m *memStore) RecountJob(ctx context.Context, jobID uuid.UUID) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return 0, 0, ErrJobNotFound
	}
	var completed, failed int
	for _, item := range m.items[jobID] {
		switch item.Status {
		case ItemCompleted:
			completed++
		case ItemFailed:
			failed++
		}
	}
	job.CompletedItems = completed
	job.FailedItems = failed
	return completed, failed, nil
}

// scriptedProcessor fails items whose topic appears in failTopics and
// records processing order.
type scriptedProcessor struct {
	mu         sync.Mutex
	failTopics map[string]bool
	processed  []string
	// onProcess, when set, runs before each item completes. Used to
	// pause or cancel mid-run.
	onProcess func(item models.BatchItem)
}

func (p *scriptedProcessor) ProcessItem(ctx context.Context, item models.BatchItem) (string, error) {
	p.mu.Lock()
	p.processed = append(p.processed, item.Topic)
	hook := p.onProcess
	fail := p.failTopics[item.Topic]
	p.mu.Unlock()

	if hook != nil {
		hook(item)
	}
	if fail {
		return "", fmt.Errorf("generation failed for %s", item.Topic)
	}
	return "conv-" + item.Topic, nil
}

func (p *scriptedProcessor) order() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.processed...)
}

func newTestScheduler(store Store, processor ItemProcessor) *Scheduler {
	return NewScheduler(store, processor, nil, 1, 0)
}

func createJob(t *testing.T, s *Scheduler, policy string, topics ...string) uuid.UUID {
	t.Helper()
	req := models.CreateBatchRequest{
		Name:          "test batch",
		ErrorHandling: policy,
	}
	for _, topic := range topics {
		req.Items = append(req.Items, models.CreateBatchItem{Topic: topic, Tier: "template"})
	}
	job, err := s.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("creating job: %v", err)
	}
	return job.ID
}

// runSync drives the scheduler loop on the test goroutine.
func runSync(t *testing.T, s *Scheduler, store Store, jobID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	if err := store.UpdateJobStatus(ctx, jobID, StatusProcessing); err != nil {
		t.Fatalf("marking job processing: %v", err)
	}
	if !s.claim(jobID) {
		t.Fatal("job already claimed")
	}
	s.runLoop(ctx, jobID)
}

func itemStatuses(t *testing.T, store Store, jobID uuid.UUID) []string {
	t.Helper()
	items, err := store.Items(context.Background(), jobID)
	if err != nil {
		t.Fatalf("listing items: %v", err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Status)
	}
	return out
}

func TestCreateJobValidation(t *testing.T) {
	s := newTestScheduler(newMemStore(), &scriptedProcessor{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.CreateBatchRequest
	}{
		{"missing name", models.CreateBatchRequest{Items: []models.CreateBatchItem{{Tier: "template"}}}},
		{"no items", models.CreateBatchRequest{Name: "x"}},
		{"bad policy", models.CreateBatchRequest{Name: "x", ErrorHandling: "retry", Items: []models.CreateBatchItem{{Tier: "template"}}}},
		{"item missing tier", models.CreateBatchRequest{Name: "x", Items: []models.CreateBatchItem{{Topic: "t"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateJob(ctx, tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateJobDefaults(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, &scriptedProcessor{})
	job, err := s.CreateJob(context.Background(), models.CreateBatchRequest{
		Name:  "defaults",
		Items: []models.CreateBatchItem{{Topic: "a", Tier: "template"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusQueued {
		t.Errorf("status = %s, want queued", job.Status)
	}
	if job.ErrorHandling != PolicyContinue {
		t.Errorf("error_handling = %s, want continue", job.ErrorHandling)
	}
	if job.TotalItems != 1 {
		t.Errorf("total_items = %d", job.TotalItems)
	}
}

func TestRunLoopProcessesInPositionOrder(t *testing.T) {
	store := newMemStore()
	proc := &scriptedProcessor{}
	s := newTestScheduler(store, proc)
	jobID := createJob(t, s, PolicyContinue, "first", "second", "third")

	runSync(t, s, store, jobID)

	order := proc.order()
	want := []string{"first", "second", "third"}
	for i, topic := range want {
		if order[i] != topic {
			t.Errorf("processed[%d] = %s, want %s", i, order[i], topic)
		}
	}

	job, _ := store.GetJob(context.Background(), jobID)
	if job.Status != StatusCompleted {
		t.Errorf("final status = %s, want completed", job.Status)
	}
	if job.CompletedItems != 3 || job.FailedItems != 0 {
		t.Errorf("counters = %d/%d, want 3/0", job.CompletedItems, job.FailedItems)
	}
	if job.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	items, _ := store.Items(context.Background(), jobID)
	for _, item := range items {
		if item.ConversationID == "" {
			t.Errorf("item %d missing conversation link", item.Position)
		}
	}
}

func TestStopPolicyHaltsAndLeavesRemainingQueued(t *testing.T) {
	store := newMemStore()
	proc := &scriptedProcessor{failTopics: map[string]bool{"second": true}}
	s := newTestScheduler(store, proc)
	jobID := createJob(t, s, PolicyStop, "first", "second", "third")

	runSync(t, s, store, jobID)

	job, _ := store.GetJob(context.Background(), jobID)
	if job.Status != StatusFailed {
		t.Errorf("job status = %s, want failed", job.Status)
	}
	got := itemStatuses(t, store, jobID)
	want := []string{ItemCompleted, ItemFailed, ItemQueued}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %s, want %s", i+1, got[i], want[i])
		}
	}
	if job.CompletedItems != 1 || job.FailedItems != 1 {
		t.Errorf("counters = %d/%d, want 1/1", job.CompletedItems, job.FailedItems)
	}
	if len(proc.order()) != 2 {
		t.Errorf("third item must not be processed, order = %v", proc.order())
	}
}

func TestContinuePolicyProcessesAllItems(t *testing.T) {
	store := newMemStore()
	proc := &scriptedProcessor{failTopics: map[string]bool{"second": true}}
	s := newTestScheduler(store, proc)
	jobID := createJob(t, s, PolicyContinue, "first", "second", "third")

	runSync(t, s, store, jobID)

	job, _ := store.GetJob(context.Background(), jobID)
	if job.Status != StatusCompleted {
		t.Errorf("job status = %s, want completed", job.Status)
	}
	got := itemStatuses(t, store, jobID)
	want := []string{ItemCompleted, ItemFailed, ItemCompleted}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %s, want %s", i+1, got[i], want[i])
		}
	}
	if job.CompletedItems != 2 || job.FailedItems != 1 {
		t.Errorf("counters = %d/%d, want 2/1", job.CompletedItems, job.FailedItems)
	}
}

func TestPauseStopsAtItemBoundary(t *testing.T) {
	store := newMemStore()
	proc := &scriptedProcessor{}
	s := newTestScheduler(store, proc)
	jobID := createJob(t, s, PolicyContinue, "first", "second", "third")

	// Pause while the first item is in flight; the loop must notice at
	// the boundary and stop before item two.
	proc.onProcess = func(item models.BatchItem) {
		if item.Topic == "first" {
			if err := s.Pause(context.Background(), jobID); err != nil {
				t.Errorf("pause failed: %v", err)
			}
		}
	}

	runSync(t, s, store, jobID)

	job, _ := store.GetJob(context.Background(), jobID)
	if job.Status != StatusPaused {
		t.Fatalf("job status = %s, want paused", job.Status)
	}
	got := itemStatuses(t, store, jobID)
	want := []string{ItemCompleted, ItemQueued, ItemQueued}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %s, want %s", i+1, got[i], want[i])
		}
	}

	// Resume picks up from the first queued item in position order.
	proc.onProcess = nil
	if err := store.UpdateJobStatus(context.Background(), jobID, StatusProcessing); err != nil {
		t.Fatal(err)
	}
	if !s.claim(jobID) {
		t.Fatal("claim after pause should succeed")
	}
	s.runLoop(context.Background(), jobID)

	order := proc.order()
	if len(order) != 3 || order[1] != "second" || order[2] != "third" {
		t.Errorf("resume order = %v", order)
	}
	job, _ = store.GetJob(context.Background(), jobID)
	if job.Status != StatusCompleted {
		t.Errorf("final status = %s, want completed", job.Status)
	}
}

func TestCancelNeverTouchesItems(t *testing.T) {
	store := newMemStore()
	proc := &scriptedProcessor{}
	s := newTestScheduler(store, proc)
	jobID := createJob(t, s, PolicyContinue, "first", "second", "third")

	proc.onProcess = func(item models.BatchItem) {
		if item.Topic == "first" {
			if err := s.Cancel(context.Background(), jobID); err != nil {
				t.Errorf("cancel failed: %v", err)
			}
		}
	}

	runSync(t, s, store, jobID)

	job, _ := store.GetJob(context.Background(), jobID)
	if job.Status != StatusCancelled {
		t.Fatalf("job status = %s, want cancelled", job.Status)
	}
	if job.CompletedAt == nil {
		t.Error("cancelled job should record completion time")
	}
	got := itemStatuses(t, store, jobID)
	want := []string{ItemCompleted, ItemQueued, ItemQueued}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %s, want %s (cancel must not rewrite items)", i+1, got[i], want[i])
		}
	}
}

func TestTransitionGuards(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, &scriptedProcessor{})
	ctx := context.Background()
	jobID := createJob(t, s, PolicyContinue, "only")

	// queued job: pause and resume are invalid.
	if err := s.Pause(ctx, jobID); err == nil {
		t.Error("pause on queued job should fail")
	}
	if err := s.Resume(ctx, jobID); err == nil {
		t.Error("resume on queued job should fail")
	}

	runSync(t, s, store, jobID)

	// completed job: everything is invalid.
	if err := s.Pause(ctx, jobID); err == nil {
		t.Error("pause on completed job should fail")
	}
	if err := s.Resume(ctx, jobID); err == nil {
		t.Error("resume on completed job should fail")
	}
	if err := s.Cancel(ctx, jobID); err == nil {
		t.Error("cancel on completed job should fail")
	}
}

func TestSingleActiveScheduler(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, &scriptedProcessor{})
	jobID := createJob(t, s, PolicyContinue, "only")

	if !s.claim(jobID) {
		t.Fatal("first claim should succeed")
	}
	if err := s.Start(context.Background(), jobID); err == nil {
		t.Error("start while claimed should fail")
	}
	s.release(jobID)
	if s.isActive(jobID) {
		t.Error("release should clear the active flag")
	}
}

func TestSummaryDerivesFromItemStates(t *testing.T) {
	store := newMemStore()
	proc := &scriptedProcessor{failTopics: map[string]bool{"second": true}}
	s := newTestScheduler(store, proc)
	jobID := createJob(t, s, PolicyContinue, "first", "second", "third")

	summary, err := s.Summary(context.Background(), jobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Total != 3 || summary.Pending != 3 {
		t.Errorf("fresh summary = %+v", summary)
	}

	runSync(t, s, store, jobID)

	summary, err = s.Summary(context.Background(), jobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Completed != 2 || summary.Failed != 1 || summary.Pending != 0 {
		t.Errorf("final summary = %+v", summary)
	}
	if summary.Completed+summary.Failed+summary.Pending != summary.Total {
		t.Error("summary counts must partition the total")
	}
}

func TestSummaryEstimatesRemainingTime(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, &scriptedProcessor{})
	jobID := createJob(t, s, PolicyContinue, "first", "second", "third")

	summary, err := s.Summary(context.Background(), jobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.EstimatedSecondsRemaining != 36 {
		t.Errorf("queued job estimate = %d, want 36", summary.EstimatedSecondsRemaining)
	}

	runSync(t, s, store, jobID)

	summary, err = s.Summary(context.Background(), jobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.EstimatedSecondsRemaining != 0 {
		t.Errorf("completed job estimate = %d, want 0", summary.EstimatedSecondsRemaining)
	}
}

func TestDeleteJob(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, &scriptedProcessor{})
	jobID := createJob(t, s, PolicyContinue, "only")

	if err := s.DeleteJob(context.Background(), jobID); err != nil {
		t.Fatalf("delete queued job: %v", err)
	}
	if _, err := store.GetJob(context.Background(), jobID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("job should be gone, got %v", err)
	}
	if err := s.DeleteJob(context.Background(), jobID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("second delete = %v, want ErrJobNotFound", err)
	}
}

func TestDeleteJobRefusedWhileProcessing(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, &scriptedProcessor{})
	jobID := createJob(t, s, PolicyContinue, "only")

	if err := store.UpdateJobStatus(context.Background(), jobID, StatusProcessing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.DeleteJob(context.Background(), jobID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("delete processing job = %v, want ErrInvalidState", err)
	}
	if _, err := store.GetJob(context.Background(), jobID); err != nil {
		t.Errorf("job should survive refused delete, got %v", err)
	}
}

func TestListJobsFiltersByCreator(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, &scriptedProcessor{})

	for _, creator := range []string{"alice", "bob", "alice"} {
		_, err := s.CreateJob(context.Background(), models.CreateBatchRequest{
			Name:      "job for " + creator,
			CreatedBy: creator,
			Items:     []models.CreateBatchItem{{Tier: "template", Topic: "budgeting"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	jobs, err := s.ListJobs(context.Background(), "", "alice", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs for alice, want 2", len(jobs))
	}
	for _, job := range jobs {
		if job.CreatedBy != "alice" {
			t.Errorf("job %s created by %q", job.ID, job.CreatedBy)
		}
	}
}

// flakyStore simulates a store outage on the item-fetch path.
type flakyStore struct {
	*memStore
	failNext bool
}

func (f *flakyStore) NextQueuedItem(ctx context.Context, jobID uuid.UUID) (*ItemModel, error) {
	if f.failNext {
		return nil, fmt.Errorf("store unavailable")
	}
	return f.memStore.NextQueuedItem(ctx, jobID)
}

func TestStoreErrorParksJobForResume(t *testing.T) {
	store := &flakyStore{memStore: newMemStore()}
	processor := &scriptedProcessor{}
	s := newTestScheduler(store, processor)
	jobID := createJob(t, s, PolicyContinue, "alpha", "beta")

	store.failNext = true
	runSync(t, s, store, jobID)

	job, err := store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusPaused {
		t.Fatalf("status after store error = %s, want %s", job.Status, StatusPaused)
	}

	// Once the store recovers the job resumes where it stopped.
	store.failNext = false
	runSync(t, s, store, jobID)

	job, err = store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Errorf("status after resume = %s, want %s", job.Status, StatusCompleted)
	}
	if got := processor.order(); len(got) != 2 {
		t.Errorf("processed %v, want both items", got)
	}
}
