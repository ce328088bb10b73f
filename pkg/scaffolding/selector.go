package scaffolding

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/google/uuid"
)

// TemplateSource is the read surface the selector needs. Satisfied by
// *Repository; tests supply an in-memory implementation.
type TemplateSource interface {
	ActiveTemplatesByArc(ctx context.Context, arcType string) ([]models.Template, error)
	Template(ctx context.Context, id uuid.UUID) (models.Template, error)
}

type Selector struct {
	source TemplateSource
}

func NewSelector(source TemplateSource) *Selector {
	return &Selector{source: source}
}

// SelectTemplates returns candidate templates ordered by fit. The
// emotional arc is the primary selector: candidates matching both arc
// and tier are preferred, falling back to arc-only matches when the
// tier yields nothing. An empty result means generation cannot proceed
// for these criteria; it is not an error.
func (s *Selector) SelectTemplates(ctx context.Context, criteria models.SelectionCriteria) ([]models.Template, error) {
	arcType := strings.TrimSpace(criteria.EmotionalArcType)
	if arcType == "" {
		return nil, fmt.Errorf("emotional_arc_type required")
	}

	byArc, err := s.source.ActiveTemplatesByArc(ctx, arcType)
	if err != nil {
		return nil, fmt.Errorf("loading templates for arc %s: %w", arcType, err)
	}
	if len(byArc) == 0 {
		return []models.Template{}, nil
	}

	candidates := byArc
	if criteria.Tier != "" {
		tiered := make([]models.Template, 0, len(byArc))
		for _, t := range byArc {
			if t.Tier == criteria.Tier {
				tiered = append(tiered, t)
			}
		}
		if len(tiered) > 0 {
			candidates = tiered
		} else {
			logger.Log.WithFields(map[string]interface{}{
				"arc_type": arcType,
				"tier":     criteria.Tier,
			}).Debug("no tier match, falling back to arc-only candidates")
		}
	}

	scored := make([]scoredTemplate, 0, len(candidates))
	for _, t := range candidates {
		scored = append(scored, scoredTemplate{
			template: t,
			score:    compatibilityScore(t, criteria),
		})
	}
	sortScored(scored)

	ordered := make([]models.Template, 0, len(scored))
	for _, st := range scored {
		ordered = append(ordered, st.template)
	}
	return ordered, nil
}

// RankedTemplates scores arc-matching templates and explains each
// score. Unlike SelectTemplates, a tier mismatch disqualifies the
// candidate here: the rationale output is used to justify a concrete
// pick, not to find a fallback.
func (s *Selector) RankedTemplates(ctx context.Context, criteria models.SelectionCriteria) ([]models.RankedTemplate, error) {
	arcType := strings.TrimSpace(criteria.EmotionalArcType)
	if arcType == "" {
		return nil, fmt.Errorf("emotional_arc_type required")
	}
	byArc, err := s.source.ActiveTemplatesByArc(ctx, arcType)
	if err != nil {
		return nil, err
	}

	type rated struct {
		template  models.Template
		score     float64
		rationale []string
	}
	var ratings []rated
	for _, t := range byArc {
		score := 0.5
		var parts []string

		if criteria.Tier != "" {
			if t.Tier != criteria.Tier {
				continue
			}
			score += 0.2
			parts = append(parts, fmt.Sprintf("tier match (%s)", criteria.Tier))
		}

		if criteria.PersonaType != "" {
			switch {
			case len(t.SuitablePersonas) == 0:
				score += 0.1
				parts = append(parts, "works with all personas")
			case contains(t.SuitablePersonas, criteria.PersonaType):
				score += 0.15
				parts = append(parts, fmt.Sprintf("persona match (%s)", criteria.PersonaType))
			default:
				score -= 0.05
				parts = append(parts, "persona mismatch")
			}
		}

		if criteria.TopicKey != "" {
			switch {
			case len(t.SuitableTopics) == 0:
				score += 0.05
				parts = append(parts, "works with all topics")
			case contains(t.SuitableTopics, criteria.TopicKey):
				score += 0.1
				parts = append(parts, fmt.Sprintf("topic match (%s)", criteria.TopicKey))
			}
		}

		if t.SuccessRate >= 0.9 {
			score += 0.05
			parts = append(parts, fmt.Sprintf("high success rate (%.2f)", t.SuccessRate))
		}

		if score > 1.0 {
			score = 1.0
		}
		ratings = append(ratings, rated{template: t, score: score, rationale: parts})
	}

	sort.SliceStable(ratings, func(i, j int) bool {
		if ratings[i].score != ratings[j].score {
			return ratings[i].score > ratings[j].score
		}
		if ratings[i].template.SuccessRate != ratings[j].template.SuccessRate {
			return ratings[i].template.SuccessRate > ratings[j].template.SuccessRate
		}
		return ratings[i].template.UsageCount < ratings[j].template.UsageCount
	})

	results := make([]models.RankedTemplate, 0, len(ratings))
	for i, r := range ratings {
		entry := models.RankedTemplate{
			TemplateID:      r.template.ID,
			TemplateName:    r.template.Name,
			ConfidenceScore: r.score,
			Rationale:       strings.Join(r.rationale, ", "),
		}
		for _, alt := range ratings[min(i+1, len(ratings)):min(i+3, len(ratings))] {
			entry.Alternatives = append(entry.Alternatives, models.TemplateAlternative{
				TemplateID:      alt.template.ID,
				TemplateName:    alt.template.Name,
				ConfidenceScore: alt.score,
			})
		}
		results = append(results, entry)
	}
	return results, nil
}

// ValidateCompatibility reports whether a template suits a persona and
// topic. Incompatibility produces warnings and suggestions, never an
// error: the caller decides whether to proceed.
func (s *Selector) ValidateCompatibility(ctx context.Context, templateID uuid.UUID, personaKey, topicKey string) (models.CompatibilityResult, error) {
	template, err := s.source.Template(ctx, templateID)
	if err != nil {
		if err == ErrNotFound {
			return models.CompatibilityResult{
				IsCompatible: false,
				Warnings:     []string{"template not found"},
				Suggestions:  []string{},
			}, nil
		}
		return models.CompatibilityResult{}, err
	}

	warnings := []string{}
	suggestions := []string{}

	if personaKey != "" && len(template.SuitablePersonas) > 0 && !contains(template.SuitablePersonas, personaKey) {
		warnings = append(warnings, fmt.Sprintf("persona %q not in template's suitable personas", personaKey))
		suggestions = append(suggestions, fmt.Sprintf("suitable personas: %s", strings.Join(template.SuitablePersonas, ", ")))
	}
	if topicKey != "" && len(template.SuitableTopics) > 0 && !contains(template.SuitableTopics, topicKey) {
		warnings = append(warnings, fmt.Sprintf("topic %q not in template's suitable topics", topicKey))
		suggestions = append(suggestions, fmt.Sprintf("suitable topics: %s", strings.Join(template.SuitableTopics, ", ")))
	}

	return models.CompatibilityResult{
		IsCompatible: len(warnings) == 0,
		Warnings:     warnings,
		Suggestions:  suggestions,
	}, nil
}

type scoredTemplate struct {
	template models.Template
	score    float64
}

func compatibilityScore(t models.Template, criteria models.SelectionCriteria) float64 {
	score := 0.0
	if criteria.PersonaType != "" {
		switch {
		case len(t.SuitablePersonas) == 0:
			score += 0.5
		case contains(t.SuitablePersonas, criteria.PersonaType):
			score += 1.0
		default:
			score -= 0.25
		}
	}
	if criteria.TopicKey != "" {
		switch {
		case len(t.SuitableTopics) == 0:
			score += 0.25
		case contains(t.SuitableTopics, criteria.TopicKey):
			score += 0.5
		}
	}
	return score
}

// Ties prefer higher historical success, then lower usage so that
// under-used templates still get coverage.
func sortScored(scored []scoredTemplate) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].template.SuccessRate != scored[j].template.SuccessRate {
			return scored[i].template.SuccessRate > scored[j].template.SuccessRate
		}
		if scored[i].template.UsageCount != scored[j].template.UsageCount {
			return scored[i].template.UsageCount < scored[j].template.UsageCount
		}
		return scored[i].template.Name < scored[j].template.Name
	})
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
