package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/convoforge-ai/platform/pkg/conversation"
	"github.com/convoforge-ai/platform/pkg/scaffolding"
	"github.com/google/uuid"
)

// TemplateCatalog is the scaffolding surface the processor needs
// beyond selection.
type TemplateCatalog interface {
	RecordTemplateUse(ctx context.Context, id uuid.UUID) error
}

// Processor turns one batch item into a stored conversation: select a
// template, render it with the item's parameters, call the generation
// API, and persist the result.
type Processor struct {
	selector      *scaffolding.Selector
	catalog       TemplateCatalog
	client        *Client
	conversations *conversation.Service
}

func NewProcessor(selector *scaffolding.Selector, catalog TemplateCatalog, client *Client, conversations *conversation.Service) *Processor {
	return &Processor{
		selector:      selector,
		catalog:       catalog,
		client:        client,
		conversations: conversations,
	}
}

func (p *Processor) ProcessItem(ctx context.Context, item models.BatchItem) (string, error) {
	criteria := models.SelectionCriteria{
		EmotionalArcType: paramString(item.Parameters, "emotional_arc_type"),
		Tier:             item.Tier,
		PersonaType:      paramString(item.Parameters, "persona_type"),
		TopicKey:         item.Topic,
	}
	if criteria.EmotionalArcType == "" {
		return "", fmt.Errorf("item %s has no emotional_arc_type parameter", item.ID)
	}

	candidates, err := p.selector.SelectTemplates(ctx, criteria)
	if err != nil {
		return "", fmt.Errorf("selecting template: %w", err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no templates available for arc %s", criteria.EmotionalArcType)
	}
	chosen := candidates[0]

	resolved := models.ResolvedTemplate{
		TemplateID:   chosen.ID,
		TemplateText: renderTemplate(chosen.TemplateText, item),
		Tier:         chosen.Tier,
		Parameters:   item.Parameters,
	}

	result, err := p.client.Generate(ctx, resolved)
	if err != nil {
		return "", err
	}

	conversationID := "conv-" + uuid.New().String()
	createdBy := paramString(item.Parameters, "created_by")
	if createdBy == "" {
		createdBy = "batch"
	}
	if _, err := p.conversations.RecordGeneration(ctx, conversationID, createdBy, result, resolved); err != nil {
		return "", fmt.Errorf("recording conversation: %w", err)
	}

	if err := p.catalog.RecordTemplateUse(ctx, chosen.ID); err != nil {
		logger.Log.WithError(err).WithField("template_id", chosen.ID).
			Warn("failed to record template usage")
	}
	return conversationID, nil
}

// renderTemplate substitutes {{key}} placeholders with the item's
// topic, tier, and parameters.
func renderTemplate(text string, item models.BatchItem) string {
	out := strings.ReplaceAll(text, "{{topic}}", item.Topic)
	out = strings.ReplaceAll(out, "{{tier}}", item.Tier)
	for key, value := range item.Parameters {
		out = strings.ReplaceAll(out, "{{"+key+"}}", fmt.Sprintf("%v", value))
	}
	return out
}

func paramString(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	if value, ok := params[key].(string); ok {
		return value
	}
	return ""
}
