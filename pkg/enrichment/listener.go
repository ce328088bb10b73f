package enrichment

import (
	"context"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
)

// Listener reacts to batch item events so conversations flow into the
// pipeline as soon as generation finishes, without waiting for a bulk
// request.
type Listener struct {
	orchestrator *Orchestrator
}

func NewListener(orchestrator *Orchestrator) *Listener {
	return &Listener{orchestrator: orchestrator}
}

// HandleEvent runs the pipeline for completed batch items. Other event
// types, and failed items, are acknowledged without action.
func (l *Listener) HandleEvent(ctx context.Context, event models.Event) error {
	if event.Type != "batch.item" {
		return nil
	}
	status, _ := event.Data["status"].(string)
	if status != "completed" {
		return nil
	}
	conversationID, _ := event.Data["conversation_id"].(string)
	if conversationID == "" {
		logger.Log.WithField("event_id", event.ID).
			Warn("completed batch item event without conversation_id")
		return nil
	}

	result, err := l.orchestrator.RunPipeline(ctx, conversationID)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).
			Error("event-driven pipeline run failed")
		// Ack anyway: pipeline failures are recorded on the conversation
		// and retried over HTTP, not by redelivering the event.
		return nil
	}

	logger.Log.WithFields(map[string]interface{}{
		"conversation_id": conversationID,
		"status":          result.FinalStatus,
	}).Info("pipeline completed from batch event")
	return nil
}
