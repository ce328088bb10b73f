package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("conversation not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&ConversationModel{}, &GenerationLogModel{}, &QualityRollupModel{})
}

func (r *Repository) Create(ctx context.Context, conv *ConversationModel) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *Repository) Get(ctx context.Context, conversationID string) (*ConversationModel, error) {
	var conv ConversationModel
	result := r.db.WithContext(ctx).First(&conv, "conversation_id = ?", conversationID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &conv, result.Error
}

func (r *Repository) List(ctx context.Context, status string, limit int) ([]ConversationModel, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if status != "" {
		query = query.Where("enrichment_status = ?", status)
	}
	var convs []ConversationModel
	result := query.Find(&convs)
	return convs, result.Error
}

func (r *Repository) UpdateStatus(ctx context.Context, conversationID, status, enrichmentError string) error {
	updates := map[string]interface{}{
		"enrichment_status": status,
		"enrichment_error":  enrichmentError,
		"updated_at":        time.Now().UTC(),
	}
	return r.updateByConversationID(ctx, conversationID, updates)
}

func (r *Repository) SetRawResponsePath(ctx context.Context, conversationID, path string) error {
	return r.updateByConversationID(ctx, conversationID, map[string]interface{}{
		"raw_response_path": path,
		"enrichment_status": StatusRawStored,
		"updated_at":        time.Now().UTC(),
	})
}

func (r *Repository) SaveValidationReport(ctx context.Context, conversationID string, report map[string]interface{}, status string) error {
	return r.updateByConversationID(ctx, conversationID, map[string]interface{}{
		"validation_report": datatypes.JSONMap(report),
		"enrichment_status": status,
		"updated_at":        time.Now().UTC(),
	})
}

func (r *Repository) SetEnrichedFile(ctx context.Context, conversationID, path string, size int64, qualityScore float64, turnCount int) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ConversationModel{}).
			Where("conversation_id = ?", conversationID).
			Updates(map[string]interface{}{
				"enriched_file_path": path,
				"enriched_size":      size,
				"quality_score":      qualityScore,
				"turn_count":         turnCount,
				"updated_at":         now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		rollup := QualityRollupModel{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Metric:         "quality_score",
			Value: datatypes.JSONMap{
				"score":      qualityScore,
				"turn_count": turnCount,
				"size_bytes": size,
			},
			EventTime: now,
			CreatedAt: now,
		}
		return tx.Create(&rollup).Error
	})
}

func (r *Repository) RollupsForConversation(ctx context.Context, conversationID string) ([]QualityRollupModel, error) {
	var rollups []QualityRollupModel
	result := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("event_time desc").
		Find(&rollups)
	return rollups, result.Error
}

// ResetForRetry clears enrichment artifacts so a failed conversation
// can re-enter the pipeline from its raw response.
func (r *Repository) ResetForRetry(ctx context.Context, conversationID string) error {
	return r.updateByConversationID(ctx, conversationID, map[string]interface{}{
		"enrichment_status":  StatusRawStored,
		"enrichment_error":   "",
		"validation_report":  nil,
		"enriched_file_path": "",
		"enriched_size":      0,
		"updated_at":         time.Now().UTC(),
	})
}

func (r *Repository) SetReview(ctx context.Context, conversationID, reviewerID, notes string) error {
	return r.updateByConversationID(ctx, conversationID, map[string]interface{}{
		"reviewer_id":  reviewerID,
		"review_notes": notes,
		"updated_at":   time.Now().UTC(),
	})
}

func (r *Repository) updateByConversationID(ctx context.Context, conversationID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&ConversationModel{}).
		Where("conversation_id = ?", conversationID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CreateGenerationLog(ctx context.Context, log *GenerationLogModel) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *Repository) LatestGenerationLog(ctx context.Context, conversationID string) (*GenerationLogModel, error) {
	var log GenerationLogModel
	result := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		First(&log)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &log, result.Error
}
