package scaffolding

import (
	"encoding/json"
	"time"

	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TierTemplate = "template"
	TierScenario = "scenario"
	TierEdgeCase = "edge_case"
)

type TemplateModel struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	Name             string         `gorm:"column:name"`
	Description      string         `gorm:"column:description"`
	Tier             string         `gorm:"column:tier"`
	TemplateText     string         `gorm:"column:template_text"`
	EmotionalArcType string         `gorm:"column:emotional_arc_type"`
	SuitablePersonas datatypes.JSON `gorm:"column:suitable_personas"`
	SuitableTopics   datatypes.JSON `gorm:"column:suitable_topics"`
	SuccessRate      float64        `gorm:"column:success_rate"`
	UsageCount       int            `gorm:"column:usage_count"`
	IsActive         bool           `gorm:"column:is_active"`
	CreatedAt        time.Time      `gorm:"column:created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at"`
}

func (TemplateModel) TableName() string {
	return "prompt_templates"
}

type PersonaModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey;column:id"`
	Key                 string    `gorm:"column:key;uniqueIndex"`
	Name                string    `gorm:"column:name"`
	Archetype           string    `gorm:"column:archetype"`
	Demographics        string    `gorm:"column:demographics"`
	FinancialBackground string    `gorm:"column:financial_background"`
	IsActive            bool      `gorm:"column:is_active"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

func (PersonaModel) TableName() string {
	return "personas"
}

type ArcModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;column:id"`
	Key             string    `gorm:"column:key;uniqueIndex"`
	Name            string    `gorm:"column:name"`
	ArcType         string    `gorm:"column:arc_type"`
	StartingEmotion string    `gorm:"column:starting_emotion"`
	EndingEmotion   string    `gorm:"column:ending_emotion"`
	ArcStrategy     string    `gorm:"column:arc_strategy"`
	IsActive        bool      `gorm:"column:is_active"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (ArcModel) TableName() string {
	return "emotional_arcs"
}

type TopicModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;column:id"`
	Key             string    `gorm:"column:key;uniqueIndex"`
	Name            string    `gorm:"column:name"`
	ComplexityLevel string    `gorm:"column:complexity_level"`
	IsActive        bool      `gorm:"column:is_active"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (TopicModel) TableName() string {
	return "training_topics"
}

func templateToDomain(m *TemplateModel) models.Template {
	result := models.Template{
		ID:               m.ID,
		Name:             m.Name,
		Description:      m.Description,
		Tier:             m.Tier,
		TemplateText:     m.TemplateText,
		EmotionalArcType: m.EmotionalArcType,
		SuccessRate:      m.SuccessRate,
		UsageCount:       m.UsageCount,
		IsActive:         m.IsActive,
	}
	if len(m.SuitablePersonas) > 0 {
		_ = json.Unmarshal(m.SuitablePersonas, &result.SuitablePersonas)
	}
	if len(m.SuitableTopics) > 0 {
		_ = json.Unmarshal(m.SuitableTopics, &result.SuitableTopics)
	}
	return result
}

func personaToDomain(m *PersonaModel) models.Persona {
	return models.Persona{
		ID:                  m.ID,
		Key:                 m.Key,
		Name:                m.Name,
		Archetype:           m.Archetype,
		Demographics:        m.Demographics,
		FinancialBackground: m.FinancialBackground,
		IsActive:            m.IsActive,
	}
}

func arcToDomain(m *ArcModel) models.EmotionalArc {
	return models.EmotionalArc{
		ID:              m.ID,
		Key:             m.Key,
		Name:            m.Name,
		ArcType:         m.ArcType,
		StartingEmotion: m.StartingEmotion,
		EndingEmotion:   m.EndingEmotion,
		ArcStrategy:     m.ArcStrategy,
		IsActive:        m.IsActive,
	}
}

func topicToDomain(m *TopicModel) models.TrainingTopic {
	return models.TrainingTopic{
		ID:              m.ID,
		Key:             m.Key,
		Name:            m.Name,
		ComplexityLevel: m.ComplexityLevel,
		IsActive:        m.IsActive,
	}
}
