package enrichment

import (
	"context"
	"errors"
	"fmt"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/convoforge-ai/platform/pkg/conversation"
	"github.com/convoforge-ai/platform/pkg/observability/metrics"
)

const (
	StageValidation    = "validation"
	StageEnrichment    = "enrichment"
	StageNormalization = "normalization"
)

// Store is the slice of the conversation repository the pipeline
// writes through.
type Store interface {
	Get(ctx context.Context, conversationID string) (*conversation.ConversationModel, error)
	UpdateStatus(ctx context.Context, conversationID, status, enrichmentError string) error
	SaveValidationReport(ctx context.Context, conversationID string, report map[string]interface{}, status string) error
	SetEnrichedFile(ctx context.Context, conversationID, path string, size int64, qualityScore float64, turnCount int) error
	ResetForRetry(ctx context.Context, conversationID string) error
	LatestGenerationLog(ctx context.Context, conversationID string) (*conversation.GenerationLogModel, error)
}

// FileStore covers the raw read and enriched write the pipeline needs.
type FileStore interface {
	Read(relPath string) ([]byte, error)
	StoreEnriched(userID, conversationID string, payload []byte) (string, int64, error)
}

// EventPublisher emits stage transitions to the event bus. A nil
// publisher disables events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

type conversationEnricher interface {
	Enrich(conversationID string, validated []byte, systemPrompt string) ([]byte, EnrichmentSummary, error)
}

// Orchestrator drives a conversation through validation, enrichment,
// and normalization. Status is persisted after every stage so a crash
// mid-pipeline leaves an honest record.
type Orchestrator struct {
	store     Store
	files     FileStore
	validator *Validator
	enricher  conversationEnricher
	norm      *Normalizer
	events    EventPublisher
	dlq       EventPublisher
}

func NewOrchestrator(store Store, files FileStore, validator *Validator, enricher *Enricher, norm *Normalizer, events, dlq EventPublisher) *Orchestrator {
	return &Orchestrator{
		store:     store,
		files:     files,
		validator: validator,
		enricher:  enricher,
		norm:      norm,
		events:    events,
		dlq:       dlq,
	}
}

// RunPipeline executes the full pipeline for one conversation. A
// conversation already in the completed state is a no-op: nothing is
// read or written. A conversation in a failed state restarts from
// validation.
func (o *Orchestrator) RunPipeline(ctx context.Context, conversationID string) (models.PipelineResult, error) {
	result := models.PipelineResult{
		ConversationID:  conversationID,
		StagesCompleted: []string{},
	}

	conv, err := o.store.Get(ctx, conversationID)
	if err != nil {
		return result, err
	}

	if conv.EnrichmentStatus == conversation.StatusCompleted {
		result.Success = true
		result.FinalStatus = conversation.StatusCompleted
		return result, nil
	}
	if conv.RawResponsePath == "" {
		return result, fmt.Errorf("conversation %s has no raw response to enrich", conversationID)
	}

	raw, err := o.files.Read(conv.RawResponsePath)
	if err != nil {
		return result, fmt.Errorf("reading raw response: %w", err)
	}

	// Stage 1: validation.
	report := o.validator.Validate(conversationID, raw)
	result.ValidationReport = &report
	if !report.IsValid {
		if err := o.store.SaveValidationReport(ctx, conversationID, ReportToMap(report), conversation.StatusValidationFailed); err != nil {
			return result, err
		}
		metrics.IncValidationFailure()
		metrics.IncPipelineFailed()
		o.publishFailure(ctx, map[string]interface{}{
			"conversation_id": conversationID,
			"stage":           StageValidation,
			"blockers":        len(report.Blockers),
		})
		result.FinalStatus = conversation.StatusValidationFailed
		result.Error = report.Summary
		return result, nil
	}
	if err := o.store.SaveValidationReport(ctx, conversationID, ReportToMap(report), conversation.StatusValidated); err != nil {
		return result, err
	}
	result.StagesCompleted = append(result.StagesCompleted, StageValidation)
	o.publishStage(ctx, conversationID, StageValidation)

	// Stage 2: enrichment. The in-progress status goes down before any
	// enrichment work so an interrupted run is visible.
	if err := o.store.UpdateStatus(ctx, conversationID, conversation.StatusEnrichmentInProgress, ""); err != nil {
		return result, err
	}

	systemPrompt := ""
	if genLog, err := o.store.LatestGenerationLog(ctx, conversationID); err == nil {
		systemPrompt = genLog.SystemPrompt
	} else if !errors.Is(err, conversation.ErrNotFound) {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).
			Warn("could not load generation log, using default system prompt")
	}

	enriched, summary, err := o.enricher.Enrich(conversationID, raw, systemPrompt)
	if err != nil {
		// The failure reuses the validation_failed status, so the
		// message has to name the stage.
		msg := fmt.Sprintf("%s: %v", StageEnrichment, err)
		if updateErr := o.store.UpdateStatus(ctx, conversationID, conversation.StatusValidationFailed, msg); updateErr != nil {
			logger.Log.WithError(updateErr).Error("failed to record enrichment failure")
		}
		metrics.IncPipelineFailed()
		result.FinalStatus = conversation.StatusValidationFailed
		result.Error = msg
		return result, nil
	}
	if err := o.store.UpdateStatus(ctx, conversationID, conversation.StatusEnriched, ""); err != nil {
		return result, err
	}
	result.StagesCompleted = append(result.StagesCompleted, StageEnrichment)
	o.publishStage(ctx, conversationID, StageEnrichment)

	// Stage 3: normalization and storage.
	canonical, issues, err := o.norm.Normalize(enriched)
	result.Issues = issues
	if err != nil {
		if updateErr := o.store.UpdateStatus(ctx, conversationID, conversation.StatusNormalizationFailed, err.Error()); updateErr != nil {
			logger.Log.WithError(updateErr).Error("failed to record normalization failure")
		}
		metrics.IncPipelineFailed()
		o.publishFailure(ctx, map[string]interface{}{
			"conversation_id": conversationID,
			"stage":           StageNormalization,
		})
		result.FinalStatus = conversation.StatusNormalizationFailed
		result.Error = err.Error()
		return result, nil
	}

	relPath, size, err := o.files.StoreEnriched(conv.CreatedBy, conversationID, canonical)
	if err != nil {
		if updateErr := o.store.UpdateStatus(ctx, conversationID, conversation.StatusNormalizationFailed, err.Error()); updateErr != nil {
			logger.Log.WithError(updateErr).Error("failed to record storage failure")
		}
		metrics.IncPipelineFailed()
		result.FinalStatus = conversation.StatusNormalizationFailed
		result.Error = err.Error()
		return result, nil
	}
	if err := o.store.SetEnrichedFile(ctx, conversationID, relPath, size, summary.QualityScore, summary.TurnCount); err != nil {
		return result, err
	}
	if err := o.store.UpdateStatus(ctx, conversationID, conversation.StatusCompleted, ""); err != nil {
		return result, err
	}
	result.StagesCompleted = append(result.StagesCompleted, StageNormalization)
	o.publishStage(ctx, conversationID, StageNormalization)

	metrics.IncPipelineCompleted()
	logger.Log.WithFields(map[string]interface{}{
		"conversation_id": conversationID,
		"quality_score":   summary.QualityScore,
		"quality_tier":    summary.QualityTier,
		"enriched_bytes":  size,
	}).Info("enrichment pipeline completed")

	result.Success = true
	result.FinalStatus = conversation.StatusCompleted
	result.EnrichedPath = relPath
	result.EnrichedSize = size
	return result, nil
}

// RetryPipeline clears the previous run's artifacts and starts over
// from the stored raw response.
func (o *Orchestrator) RetryPipeline(ctx context.Context, conversationID string) (models.PipelineResult, error) {
	if err := o.store.ResetForRetry(ctx, conversationID); err != nil {
		return models.PipelineResult{ConversationID: conversationID}, err
	}
	return o.RunPipeline(ctx, conversationID)
}

// BulkEnrich runs the pipeline over a set of conversations.
// Conversations already completed, or without a raw response, are
// skipped with a recorded reason. One conversation's panic or failure
// never stops the rest.
func (o *Orchestrator) BulkEnrich(ctx context.Context, conversationIDs []string) models.BulkEnrichResult {
	bulk := models.BulkEnrichResult{
		Total:   len(conversationIDs),
		Results: []models.BulkEnrichEntry{},
	}

	for _, id := range conversationIDs {
		entry := o.enrichOne(ctx, id)
		switch entry.Outcome {
		case "enriched":
			bulk.Successful++
		case "skipped":
			bulk.Skipped++
		default:
			bulk.Failed++
		}
		bulk.Results = append(bulk.Results, entry)
	}

	logger.Log.WithFields(map[string]interface{}{
		"total":      bulk.Total,
		"successful": bulk.Successful,
		"failed":     bulk.Failed,
		"skipped":    bulk.Skipped,
	}).Info("bulk enrichment finished")
	return bulk
}

func (o *Orchestrator) enrichOne(ctx context.Context, conversationID string) (entry models.BulkEnrichEntry) {
	entry = models.BulkEnrichEntry{ConversationID: conversationID}
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithField("conversation_id", conversationID).
				Errorf("pipeline panicked: %v", r)
			entry.Outcome = "failed"
			entry.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()

	conv, err := o.store.Get(ctx, conversationID)
	if err != nil {
		entry.Outcome = "failed"
		entry.Reason = err.Error()
		return entry
	}
	if conv.EnrichmentStatus == conversation.StatusCompleted {
		entry.Outcome = "skipped"
		entry.Reason = "already completed"
		return entry
	}
	if conv.RawResponsePath == "" {
		entry.Outcome = "skipped"
		entry.Reason = "no raw response stored"
		logger.Log.WithField("conversation_id", conversationID).
			Warn("skipping conversation with no raw response")
		return entry
	}

	result, err := o.RunPipeline(ctx, conversationID)
	if err != nil {
		entry.Outcome = "failed"
		entry.Reason = err.Error()
		return entry
	}
	if !result.Success {
		entry.Outcome = "failed"
		entry.Reason = result.Error
		return entry
	}
	entry.Outcome = "enriched"
	return entry
}

func (o *Orchestrator) publishStage(ctx context.Context, conversationID, stage string) {
	o.publish(ctx, "pipeline.stage", map[string]interface{}{
		"conversation_id": conversationID,
		"stage":           stage,
	})
}

// publishFailure mirrors the failure onto the dead-letter topic so
// stalled conversations can be replayed without scanning the main
// event stream.
func (o *Orchestrator) publishFailure(ctx context.Context, data map[string]interface{}) {
	o.publish(ctx, "pipeline.failed", data)
	if o.dlq == nil {
		return
	}
	if err := o.dlq.PublishEvent(ctx, "pipeline.failed", "enrichment-service", data); err != nil {
		logger.Log.WithError(err).Warn("failed to publish to pipeline DLQ")
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishEvent(ctx, eventType, "enrichment-service", data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).
			Warn("failed to publish pipeline event")
	}
}
