package models

import (
	"time"

	"github.com/google/uuid"
)

// Batch job lifecycle
type BatchJob struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Status         string      `json:"status"` // queued, processing, paused, cancelled, completed, failed
	TotalItems     int         `json:"total_items"`
	CompletedItems int         `json:"completed_items"`
	FailedItems    int         `json:"failed_items"`
	ErrorHandling  string      `json:"error_handling"` // stop, continue
	CreatedBy      string      `json:"created_by,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	Items          []BatchItem `json:"items,omitempty"`
}

type BatchItem struct {
	ID             uuid.UUID              `json:"id"`
	BatchJobID     uuid.UUID              `json:"batch_job_id"`
	Position       int                    `json:"position"`
	Topic          string                 `json:"topic,omitempty"`
	Tier           string                 `json:"tier"` // template, scenario, edge_case
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	Status         string                 `json:"status"` // queued, processing, completed, failed
	ConversationID string                 `json:"conversation_id,omitempty"`
	ErrorMessage   string                 `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type BatchSummary struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Pending   int       `json:"pending"`

	// Recomputed on every read from the pending item count.
	EstimatedSecondsRemaining int `json:"estimated_seconds_remaining"`
}

type CreateBatchRequest struct {
	Name          string                 `json:"name"`
	ErrorHandling string                 `json:"error_handling,omitempty"`
	CreatedBy     string                 `json:"created_by,omitempty"`
	Items         []CreateBatchItem      `json:"items"`
	SharedParams  map[string]interface{} `json:"shared_parameters,omitempty"`
}

type CreateBatchItem struct {
	Topic      string                 `json:"topic,omitempty"`
	Tier       string                 `json:"tier"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Conversation record produced by generation and refined by the
// enrichment pipeline. ConversationID is the business key and is
// distinct from the storage primary key.
type Conversation struct {
	ID               uuid.UUID              `json:"id"`
	ConversationID   string                 `json:"conversation_id"`
	EnrichmentStatus string                 `json:"enrichment_status"`
	RawResponsePath  string                 `json:"raw_response_path,omitempty"`
	EnrichedFilePath string                 `json:"enriched_file_path,omitempty"`
	EnrichedSize     int64                  `json:"enriched_size,omitempty"`
	ValidationReport map[string]interface{} `json:"validation_report,omitempty"`
	EnrichmentError  string                 `json:"enrichment_error,omitempty"`
	QualityScore     float64                `json:"quality_score,omitempty"`
	TurnCount        int                    `json:"turn_count,omitempty"`
	PersonaID        *uuid.UUID             `json:"persona_id,omitempty"`
	EmotionalArcID   *uuid.UUID             `json:"emotional_arc_id,omitempty"`
	TrainingTopicID  *uuid.UUID             `json:"training_topic_id,omitempty"`
	TemplateID       *uuid.UUID             `json:"template_id,omitempty"`
	ReviewerID       string                 `json:"reviewer_id,omitempty"`
	ReviewNotes      string                 `json:"review_notes,omitempty"`
	CreatedBy        string                 `json:"created_by,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Scaffolding reference entities, consumed read-only by the selector.
type Template struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Tier             string    `json:"tier"`
	TemplateText     string    `json:"template_text"`
	EmotionalArcType string    `json:"emotional_arc_type"`
	SuitablePersonas []string  `json:"suitable_personas,omitempty"`
	SuitableTopics   []string  `json:"suitable_topics,omitempty"`
	SuccessRate      float64   `json:"success_rate"`
	UsageCount       int       `json:"usage_count"`
	IsActive         bool      `json:"is_active"`
}

type Persona struct {
	ID                  uuid.UUID `json:"id"`
	Key                 string    `json:"key"`
	Name                string    `json:"name"`
	Archetype           string    `json:"archetype,omitempty"`
	Demographics        string    `json:"demographics,omitempty"`
	FinancialBackground string    `json:"financial_background,omitempty"`
	IsActive            bool      `json:"is_active"`
}

type EmotionalArc struct {
	ID              uuid.UUID `json:"id"`
	Key             string    `json:"key"`
	Name            string    `json:"name"`
	ArcType         string    `json:"arc_type"`
	StartingEmotion string    `json:"starting_emotion"`
	EndingEmotion   string    `json:"ending_emotion"`
	ArcStrategy     string    `json:"arc_strategy,omitempty"`
	IsActive        bool      `json:"is_active"`
}

type TrainingTopic struct {
	ID              uuid.UUID `json:"id"`
	Key             string    `json:"key"`
	Name            string    `json:"name"`
	ComplexityLevel string    `json:"complexity_level,omitempty"`
	IsActive        bool      `json:"is_active"`
}

// Template selection
type SelectionCriteria struct {
	EmotionalArcType string `json:"emotional_arc_type"`
	Tier             string `json:"tier,omitempty"`
	PersonaType      string `json:"persona_type,omitempty"`
	TopicKey         string `json:"topic_key,omitempty"`
}

type CompatibilityResult struct {
	IsCompatible bool     `json:"is_compatible"`
	Warnings     []string `json:"warnings"`
	Suggestions  []string `json:"suggestions"`
}

type RankedTemplate struct {
	TemplateID      uuid.UUID             `json:"template_id"`
	TemplateName    string                `json:"template_name"`
	ConfidenceScore float64               `json:"confidence_score"`
	Rationale       string                `json:"rationale"`
	Alternatives    []TemplateAlternative `json:"alternatives,omitempty"`
}

type TemplateAlternative struct {
	TemplateID      uuid.UUID `json:"template_id"`
	TemplateName    string    `json:"template_name"`
	ConfidenceScore float64   `json:"confidence_score"`
}

// Generation client contract
type ResolvedTemplate struct {
	TemplateID   uuid.UUID              `json:"template_id"`
	TemplateText string                 `json:"template_text"`
	Tier         string                 `json:"tier"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
}

type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type GenerationResult struct {
	RawResponse string     `json:"raw_response"`
	Usage       TokenUsage `json:"usage"`
	StopReason  string     `json:"stop_reason"`
}

// Validation report produced by the enrichment pipeline's first stage.
type ValidationIssue struct {
	Code       string `json:"code"`
	Severity   string `json:"severity"` // blocker, warning
	Field      string `json:"field"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

type ValidationReport struct {
	IsValid        bool              `json:"is_valid"`
	Blockers       []ValidationIssue `json:"blockers"`
	Warnings       []ValidationIssue `json:"warnings"`
	ConversationID string            `json:"conversation_id"`
	ValidatedAt    time.Time         `json:"validated_at"`
	Summary        string            `json:"summary"`
}

// Normalization
type NormalizationIssue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Fixed    bool   `json:"fixed"`
}

// Pipeline outcome
type PipelineResult struct {
	Success          bool                 `json:"success"`
	ConversationID   string               `json:"conversation_id"`
	FinalStatus      string               `json:"final_status"`
	StagesCompleted  []string             `json:"stages_completed"`
	Error            string               `json:"error,omitempty"`
	ValidationReport *ValidationReport    `json:"validation_report,omitempty"`
	Issues           []NormalizationIssue `json:"issues,omitempty"`
	EnrichedPath     string               `json:"enriched_path,omitempty"`
	EnrichedSize     int64                `json:"enriched_size,omitempty"`
}

// Bulk enrichment summary. One entry per requested conversation,
// tagged enriched, failed, or skipped.
type BulkEnrichResult struct {
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	Results    []BulkEnrichEntry `json:"results"`
}

type BulkEnrichEntry struct {
	ConversationID string `json:"conversation_id"`
	Outcome        string `json:"outcome"` // enriched, failed, skipped
	Reason         string `json:"reason,omitempty"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // batch.item, batch.job, pipeline.stage, pipeline.failed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
