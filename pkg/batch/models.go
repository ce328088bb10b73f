package batch

import (
	"time"

	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job states.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusPaused     = "paused"
	StatusCancelled  = "cancelled"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Item states. Pause and cancel never rewrite item states; an item is
// only ever queued, processing, completed, or failed.
const (
	ItemQueued     = "queued"
	ItemProcessing = "processing"
	ItemCompleted  = "completed"
	ItemFailed     = "failed"
)

// Error-handling policies.
const (
	PolicyStop     = "stop"
	PolicyContinue = "continue"
)

type JobModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name           string    `gorm:"size:256;not null"`
	Status         string    `gorm:"size:32;index;not null"`
	TotalItems     int
	CompletedItems int
	FailedItems    int
	ErrorHandling  string `gorm:"size:16;not null"`
	CreatedBy      string `gorm:"size:128"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

func (JobModel) TableName() string {
	return "batch_jobs"
}

type ItemModel struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	BatchJobID     uuid.UUID         `gorm:"type:uuid;index;not null"`
	Position       int               `gorm:"not null"`
	Topic          string            `gorm:"size:128"`
	Tier           string            `gorm:"size:32;not null"`
	Parameters     datatypes.JSONMap `gorm:"type:jsonb"`
	Status         string            `gorm:"size:32;index;not null"`
	ConversationID string            `gorm:"size:128"`
	ErrorMessage   string            `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ItemModel) TableName() string {
	return "batch_items"
}

func (m *JobModel) ToDomain() models.BatchJob {
	return models.BatchJob{
		ID:             m.ID,
		Name:           m.Name,
		Status:         m.Status,
		TotalItems:     m.TotalItems,
		CompletedItems: m.CompletedItems,
		FailedItems:    m.FailedItems,
		ErrorHandling:  m.ErrorHandling,
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}
}

func (m *ItemModel) ToDomain() models.BatchItem {
	item := models.BatchItem{
		ID:             m.ID,
		BatchJobID:     m.BatchJobID,
		Position:       m.Position,
		Topic:          m.Topic,
		Tier:           m.Tier,
		Status:         m.Status,
		ConversationID: m.ConversationID,
		ErrorMessage:   m.ErrorMessage,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.Parameters != nil {
		item.Parameters = map[string]interface{}(m.Parameters)
	}
	return item
}
