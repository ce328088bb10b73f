package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/convoforge-ai/platform/pkg/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
)

// Store is the persistence surface the service needs from the
// repository.
type Store interface {
	Create(ctx context.Context, conv *ConversationModel) error
	Get(ctx context.Context, conversationID string) (*ConversationModel, error)
	List(ctx context.Context, status string, limit int) ([]ConversationModel, error)
	UpdateStatus(ctx context.Context, conversationID, status, enrichmentError string) error
	SetRawResponsePath(ctx context.Context, conversationID, path string) error
	SaveValidationReport(ctx context.Context, conversationID string, report map[string]interface{}, status string) error
	SetEnrichedFile(ctx context.Context, conversationID, path string, size int64, qualityScore float64, turnCount int) error
	ResetForRetry(ctx context.Context, conversationID string) error
	SetReview(ctx context.Context, conversationID, reviewerID, notes string) error
	CreateGenerationLog(ctx context.Context, log *GenerationLogModel) error
	LatestGenerationLog(ctx context.Context, conversationID string) (*GenerationLogModel, error)
	RollupsForConversation(ctx context.Context, conversationID string) ([]QualityRollupModel, error)
}

type Service struct {
	repo     Store
	files    *storage.FileStore
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewService wires the repository, file store, and an optional redis
// client for the status cache. A nil cache disables caching.
func NewService(repo Store, files *storage.FileStore, cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{repo: repo, files: files, cache: cache, cacheTTL: cacheTTL}
}

type cachedStatus struct {
	EnrichmentStatus string    `json:"enrichment_status"`
	EnrichmentError  string    `json:"enrichment_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RecordGeneration persists a new conversation record, writes the raw
// model output to the file store, and logs the generation request.
func (s *Service) RecordGeneration(ctx context.Context, conversationID, createdBy string, result models.GenerationResult, template models.ResolvedTemplate) (models.Conversation, error) {
	conv := &ConversationModel{
		ID:               uuid.New(),
		ConversationID:   conversationID,
		EnrichmentStatus: StatusRawStored,
		TemplateID:       templateRef(template.TemplateID),
		CreatedBy:        createdBy,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return models.Conversation{}, fmt.Errorf("creating conversation record: %w", err)
	}

	relPath, _, err := s.files.StoreRaw(createdBy, conversationID, []byte(result.RawResponse))
	if err != nil {
		return models.Conversation{}, fmt.Errorf("storing raw response: %w", err)
	}
	if err := s.repo.SetRawResponsePath(ctx, conversationID, relPath); err != nil {
		return models.Conversation{}, err
	}
	conv.RawResponsePath = relPath

	genLog := &GenerationLogModel{
		ID:             uuid.New(),
		ConversationID: conversationID,
		TemplateID:     templateRef(template.TemplateID),
		SystemPrompt:   template.SystemPrompt,
		RenderedPrompt: template.TemplateText,
		InputTokens:    result.Usage.InputTokens,
		OutputTokens:   result.Usage.OutputTokens,
		StopReason:     result.StopReason,
		Parameters:     datatypes.JSONMap(template.Parameters),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.CreateGenerationLog(ctx, genLog); err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).
			Warn("failed to persist generation log")
	}

	s.invalidateStatus(ctx, conversationID)
	return conv.ToDomain(), nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	conv, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	return conv.ToDomain(), nil
}

func (s *Service) ListConversations(ctx context.Context, status string, limit int) ([]models.Conversation, error) {
	records, err := s.repo.List(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(records))
	for i := range records {
		out = append(out, records[i].ToDomain())
	}
	return out, nil
}

// Status reads the enrichment status through the redis cache. A cache
// miss falls through to postgres and repopulates the entry.
func (s *Service) Status(ctx context.Context, conversationID string) (string, string, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, statusKey(conversationID)).Result()
		if err == nil {
			var cached cachedStatus
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return cached.EnrichmentStatus, cached.EnrichmentError, nil
			}
		} else if err != redis.Nil {
			logger.Log.WithError(err).Debug("status cache read failed")
		}
	}

	conv, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return "", "", err
	}

	if s.cache != nil {
		entry, _ := json.Marshal(cachedStatus{
			EnrichmentStatus: conv.EnrichmentStatus,
			EnrichmentError:  conv.EnrichmentError,
			UpdatedAt:        conv.UpdatedAt,
		})
		if err := s.cache.Set(ctx, statusKey(conversationID), entry, s.cacheTTL).Err(); err != nil {
			logger.Log.WithError(err).Debug("status cache write failed")
		}
	}
	return conv.EnrichmentStatus, conv.EnrichmentError, nil
}

// UpdateStatus writes the new status to postgres and drops the cache
// entry so the next read observes it.
func (s *Service) UpdateStatus(ctx context.Context, conversationID, status, enrichmentError string) error {
	if err := s.repo.UpdateStatus(ctx, conversationID, status, enrichmentError); err != nil {
		return err
	}
	s.invalidateStatus(ctx, conversationID)
	return nil
}

// Get returns the raw conversation record. The enrichment pipeline
// reads and writes through the service rather than the repository so
// every status mutation drops the cache entry.
func (s *Service) Get(ctx context.Context, conversationID string) (*ConversationModel, error) {
	return s.repo.Get(ctx, conversationID)
}

func (s *Service) SaveValidationReport(ctx context.Context, conversationID string, report map[string]interface{}, status string) error {
	if err := s.repo.SaveValidationReport(ctx, conversationID, report, status); err != nil {
		return err
	}
	s.invalidateStatus(ctx, conversationID)
	return nil
}

func (s *Service) SetEnrichedFile(ctx context.Context, conversationID, path string, size int64, qualityScore float64, turnCount int) error {
	if err := s.repo.SetEnrichedFile(ctx, conversationID, path, size, qualityScore, turnCount); err != nil {
		return err
	}
	s.invalidateStatus(ctx, conversationID)
	return nil
}

func (s *Service) ResetForRetry(ctx context.Context, conversationID string) error {
	if err := s.repo.ResetForRetry(ctx, conversationID); err != nil {
		return err
	}
	s.invalidateStatus(ctx, conversationID)
	return nil
}

func (s *Service) SetReview(ctx context.Context, conversationID, reviewerID, notes string) error {
	return s.repo.SetReview(ctx, conversationID, reviewerID, notes)
}

// RawResponse reads the stored model output for a conversation.
func (s *Service) RawResponse(ctx context.Context, conversationID string) ([]byte, error) {
	conv, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.RawResponsePath == "" {
		return nil, fmt.Errorf("conversation %s has no raw response", conversationID)
	}
	return s.files.Read(conv.RawResponsePath)
}

// EnrichedDownloadURL returns a time-limited link to the enriched file.
func (s *Service) EnrichedDownloadURL(ctx context.Context, conversationID string, expiresIn time.Duration) (string, error) {
	conv, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if conv.EnrichedFilePath == "" {
		return "", fmt.Errorf("conversation %s has no enriched file", conversationID)
	}
	return s.files.DownloadURL(conv.EnrichedFilePath, expiresIn)
}

func (s *Service) LatestGenerationLog(ctx context.Context, conversationID string) (*GenerationLogModel, error) {
	return s.repo.LatestGenerationLog(ctx, conversationID)
}

// QualityHistory lists rollup rows for a conversation, newest first.
func (s *Service) QualityHistory(ctx context.Context, conversationID string) ([]QualityRollupModel, error) {
	if _, err := s.repo.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.repo.RollupsForConversation(ctx, conversationID)
}

func (s *Service) invalidateStatus(ctx context.Context, conversationID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statusKey(conversationID)).Err(); err != nil {
		logger.Log.WithError(err).Debug("status cache invalidation failed")
	}
}

func statusKey(conversationID string) string {
	return "conversation:status:" + conversationID
}

func templateRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
