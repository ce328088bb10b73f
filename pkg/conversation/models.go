package conversation

import (
	"time"

	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Enrichment pipeline states. The *_failed states are terminal for a
// run; a retry resets the record and starts over from validation.
const (
	StatusRawStored            = "raw_stored"
	StatusValidated            = "validated"
	StatusEnrichmentInProgress = "enrichment_in_progress"
	StatusEnriched             = "enriched"
	StatusCompleted            = "completed"
	StatusValidationFailed     = "validation_failed"
	StatusNormalizationFailed  = "normalization_failed"
)

type ConversationModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID   string    `gorm:"uniqueIndex;size:128;not null"`
	EnrichmentStatus string    `gorm:"size:32;index;not null"`
	RawResponsePath  string    `gorm:"size:512"`
	EnrichedFilePath string    `gorm:"size:512"`
	EnrichedSize     int64
	ValidationReport datatypes.JSONMap `gorm:"type:jsonb"`
	EnrichmentError  string            `gorm:"type:text"`
	QualityScore     float64
	TurnCount        int
	PersonaID        *uuid.UUID `gorm:"type:uuid;index"`
	EmotionalArcID   *uuid.UUID `gorm:"type:uuid;index"`
	TrainingTopicID  *uuid.UUID `gorm:"type:uuid;index"`
	TemplateID       *uuid.UUID `gorm:"type:uuid;index"`
	ReviewerID       string     `gorm:"size:128"`
	ReviewNotes      string     `gorm:"type:text"`
	CreatedBy        string     `gorm:"size:128"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ConversationModel) TableName() string {
	return "conversations"
}

func (m *ConversationModel) ToDomain() models.Conversation {
	return models.Conversation{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		EnrichmentStatus: m.EnrichmentStatus,
		RawResponsePath:  m.RawResponsePath,
		EnrichedFilePath: m.EnrichedFilePath,
		EnrichedSize:     m.EnrichedSize,
		ValidationReport: map[string]interface{}(m.ValidationReport),
		EnrichmentError:  m.EnrichmentError,
		QualityScore:     m.QualityScore,
		TurnCount:        m.TurnCount,
		PersonaID:        m.PersonaID,
		EmotionalArcID:   m.EmotionalArcID,
		TrainingTopicID:  m.TrainingTopicID,
		TemplateID:       m.TemplateID,
		ReviewerID:       m.ReviewerID,
		ReviewNotes:      m.ReviewNotes,
		CreatedBy:        m.CreatedBy,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// GenerationLogModel records the request that produced a conversation:
// the resolved prompt, system prompt, token usage, and stop reason.
type GenerationLogModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ConversationID string     `gorm:"index;size:128;not null"`
	TemplateID     *uuid.UUID `gorm:"type:uuid;index"`
	SystemPrompt   string     `gorm:"type:text"`
	RenderedPrompt string     `gorm:"type:text"`
	ModelName      string     `gorm:"size:64"`
	InputTokens    int
	OutputTokens   int
	StopReason     string            `gorm:"size:32"`
	Parameters     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

func (GenerationLogModel) TableName() string {
	return "generation_logs"
}

// QualityRollupModel is an append-only quality history row, one per
// completed pipeline run. The conversation row keeps only the latest
// score; rollups keep every run for trend queries.
type QualityRollupModel struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ConversationID string            `gorm:"index;size:128;not null"`
	Metric         string            `gorm:"size:64;not null"`
	Value          datatypes.JSONMap `gorm:"type:jsonb"`
	EventTime      time.Time         `gorm:"index"`
	CreatedAt      time.Time
}

func (QualityRollupModel) TableName() string {
	return "quality_rollups"
}
