package scaffolding

import (
	"context"
	"errors"
	"fmt"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("scaffolding record not found")

type Repository struct {
	db    *gorm.DB
	cache *redis.Client
}

func NewRepository(db *gorm.DB, cache *redis.Client) *Repository {
	return &Repository{db: db, cache: cache}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&TemplateModel{}, &PersonaModel{}, &ArcModel{}, &TopicModel{})
}

func (r *Repository) ActiveTemplatesByArc(ctx context.Context, arcType string) ([]models.Template, error) {
	var rows []TemplateModel
	result := r.db.WithContext(ctx).
		Where("emotional_arc_type = ? AND is_active = ?", arcType, true).
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	templates := make([]models.Template, 0, len(rows))
	for i := range rows {
		templates = append(templates, templateToDomain(&rows[i]))
	}
	return templates, nil
}

func (r *Repository) Template(ctx context.Context, id uuid.UUID) (models.Template, error) {
	var row TemplateModel
	result := r.db.WithContext(ctx).First(&row, "id = ? AND is_active = ?", id, true)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.Template{}, ErrNotFound
	}
	if result.Error != nil {
		return models.Template{}, result.Error
	}
	return templateToDomain(&row), nil
}

func (r *Repository) RecordTemplateUse(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&TemplateModel{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
	if err != nil {
		return err
	}
	// Hot counter for dashboards; Postgres stays the source of truth.
	if r.cache != nil {
		if cerr := r.cache.Incr(ctx, usageKey(id)).Err(); cerr != nil {
			logger.Log.WithError(cerr).WithField("template_id", id.String()).
				Warn("failed to bump template usage counter")
		}
	}
	return nil
}

// RecentUsage reads the cached usage counter. Returns 0 when the
// cache is cold or disabled.
func (r *Repository) RecentUsage(ctx context.Context, id uuid.UUID) int64 {
	if r.cache == nil {
		return 0
	}
	count, err := r.cache.Get(ctx, usageKey(id)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.WithError(err).WithField("template_id", id.String()).
				Warn("failed to read template usage counter")
		}
		return 0
	}
	return count
}

func usageKey(id uuid.UUID) string {
	return fmt.Sprintf("template:usage:%s", id)
}

func (r *Repository) ListTemplates(ctx context.Context, limit int) ([]models.Template, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []TemplateModel
	result := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("name asc").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	templates := make([]models.Template, 0, len(rows))
	for i := range rows {
		templates = append(templates, templateToDomain(&rows[i]))
	}
	return templates, nil
}

func (r *Repository) ListPersonas(ctx context.Context, limit int) ([]models.Persona, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []PersonaModel
	result := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("name asc").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	personas := make([]models.Persona, 0, len(rows))
	for i := range rows {
		personas = append(personas, personaToDomain(&rows[i]))
	}
	return personas, nil
}

func (r *Repository) PersonaByKey(ctx context.Context, key string) (models.Persona, error) {
	var row PersonaModel
	result := r.db.WithContext(ctx).First(&row, "key = ? AND is_active = ?", key, true)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.Persona{}, ErrNotFound
	}
	if result.Error != nil {
		return models.Persona{}, result.Error
	}
	return personaToDomain(&row), nil
}

func (r *Repository) Persona(ctx context.Context, id uuid.UUID) (models.Persona, error) {
	var row PersonaModel
	result := r.db.WithContext(ctx).First(&row, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.Persona{}, ErrNotFound
	}
	if result.Error != nil {
		return models.Persona{}, result.Error
	}
	return personaToDomain(&row), nil
}

func (r *Repository) ListArcs(ctx context.Context, limit int) ([]models.EmotionalArc, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ArcModel
	result := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("name asc").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	arcs := make([]models.EmotionalArc, 0, len(rows))
	for i := range rows {
		arcs = append(arcs, arcToDomain(&rows[i]))
	}
	return arcs, nil
}

func (r *Repository) Arc(ctx context.Context, id uuid.UUID) (models.EmotionalArc, error) {
	var row ArcModel
	result := r.db.WithContext(ctx).First(&row, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.EmotionalArc{}, ErrNotFound
	}
	if result.Error != nil {
		return models.EmotionalArc{}, result.Error
	}
	return arcToDomain(&row), nil
}

func (r *Repository) ListTopics(ctx context.Context, limit int) ([]models.TrainingTopic, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []TopicModel
	result := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("name asc").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	topics := make([]models.TrainingTopic, 0, len(rows))
	for i := range rows {
		topics = append(topics, topicToDomain(&rows[i]))
	}
	return topics, nil
}

func (r *Repository) Topic(ctx context.Context, id uuid.UUID) (models.TrainingTopic, error) {
	var row TopicModel
	result := r.db.WithContext(ctx).First(&row, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.TrainingTopic{}, ErrNotFound
	}
	if result.Error != nil {
		return models.TrainingTopic{}, result.Error
	}
	return topicToDomain(&row), nil
}
