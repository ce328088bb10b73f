package scaffolding

import (
	"context"
	"testing"

	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/google/uuid"
)

type fakeTemplateSource struct {
	templates []models.Template
}

func (f *fakeTemplateSource) ActiveTemplatesByArc(ctx context.Context, arcType string) ([]models.Template, error) {
	var out []models.Template
	for _, t := range f.templates {
		if t.EmotionalArcType == arcType && t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTemplateSource) Template(ctx context.Context, id uuid.UUID) (models.Template, error) {
	for _, t := range f.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Template{}, ErrNotFound
}

func testTemplates() []models.Template {
	return []models.Template{
		{
			ID:               uuid.MustParse("00000000-0000-0000-0000-000000000001"),
			Name:             "anxiety-to-confidence-standard",
			Tier:             TierTemplate,
			EmotionalArcType: "anxiety_to_confidence",
			SuitablePersonas: []string{"anxious_planner", "overwhelmed_inheritor"},
			SuitableTopics:   []string{"retirement_planning"},
			SuccessRate:      0.92,
			UsageCount:       40,
			IsActive:         true,
		},
		{
			ID:               uuid.MustParse("00000000-0000-0000-0000-000000000002"),
			Name:             "anxiety-to-confidence-scenario",
			Tier:             TierScenario,
			EmotionalArcType: "anxiety_to_confidence",
			SuccessRate:      0.85,
			UsageCount:       12,
			IsActive:         true,
		},
		{
			ID:               uuid.MustParse("00000000-0000-0000-0000-000000000003"),
			Name:             "grief-to-acceptance-standard",
			Tier:             TierTemplate,
			EmotionalArcType: "grief_to_acceptance",
			SuccessRate:      0.78,
			UsageCount:       5,
			IsActive:         true,
		},
		{
			ID:               uuid.MustParse("00000000-0000-0000-0000-000000000004"),
			Name:             "anxiety-to-confidence-inactive",
			Tier:             TierTemplate,
			EmotionalArcType: "anxiety_to_confidence",
			SuccessRate:      0.99,
			UsageCount:       1,
			IsActive:         false,
		},
	}
}

func TestSelectTemplatesArcFirst(t *testing.T) {
	selector := NewSelector(&fakeTemplateSource{templates: testTemplates()})

	tests := []struct {
		name      string
		criteria  models.SelectionCriteria
		wantNames []string
		wantErr   bool
	}{
		{
			name:     "arc and tier match",
			criteria: models.SelectionCriteria{EmotionalArcType: "anxiety_to_confidence", Tier: TierTemplate},
			wantNames: []string{
				"anxiety-to-confidence-standard",
			},
		},
		{
			name:     "tier miss falls back to arc-only",
			criteria: models.SelectionCriteria{EmotionalArcType: "anxiety_to_confidence", Tier: TierEdgeCase},
			wantNames: []string{
				"anxiety-to-confidence-standard",
				"anxiety-to-confidence-scenario",
			},
		},
		{
			name:      "no arc match yields empty list",
			criteria:  models.SelectionCriteria{EmotionalArcType: "frustration_to_relief"},
			wantNames: []string{},
		},
		{
			name:     "missing arc is an error",
			criteria: models.SelectionCriteria{Tier: TierTemplate},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selector.SelectTemplates(context.Background(), tt.criteria)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil {
				t.Fatal("expected non-nil slice")
			}
			if len(got) != len(tt.wantNames) {
				t.Fatalf("got %d templates, want %d", len(got), len(tt.wantNames))
			}
			for i, name := range tt.wantNames {
				if got[i].Name != name {
					t.Errorf("position %d: got %s, want %s", i, got[i].Name, name)
				}
			}
		})
	}
}

func TestSelectTemplatesPersonaScoring(t *testing.T) {
	templates := []models.Template{
		{
			ID:               uuid.New(),
			Name:             "persona-match",
			Tier:             TierTemplate,
			EmotionalArcType: "anxiety_to_confidence",
			SuitablePersonas: []string{"anxious_planner"},
			SuccessRate:      0.5,
			IsActive:         true,
		},
		{
			ID:               uuid.New(),
			Name:             "persona-open",
			Tier:             TierTemplate,
			EmotionalArcType: "anxiety_to_confidence",
			SuccessRate:      0.95,
			IsActive:         true,
		},
		{
			ID:               uuid.New(),
			Name:             "persona-mismatch",
			Tier:             TierTemplate,
			EmotionalArcType: "anxiety_to_confidence",
			SuitablePersonas: []string{"skeptical_retiree"},
			SuccessRate:      0.99,
			IsActive:         true,
		},
	}
	selector := NewSelector(&fakeTemplateSource{templates: templates})

	got, err := selector.SelectTemplates(context.Background(), models.SelectionCriteria{
		EmotionalArcType: "anxiety_to_confidence",
		PersonaType:      "anxious_planner",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"persona-match", "persona-open", "persona-mismatch"}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d: got %s, want %s", i, got[i].Name, name)
		}
	}
}

func TestSelectTemplatesTieBreaks(t *testing.T) {
	templates := []models.Template{
		{
			ID:               uuid.New(),
			Name:             "busy",
			Tier:             TierTemplate,
			EmotionalArcType: "arc",
			SuccessRate:      0.8,
			UsageCount:       100,
			IsActive:         true,
		},
		{
			ID:               uuid.New(),
			Name:             "fresh",
			Tier:             TierTemplate,
			EmotionalArcType: "arc",
			SuccessRate:      0.8,
			UsageCount:       2,
			IsActive:         true,
		},
		{
			ID:               uuid.New(),
			Name:             "proven",
			Tier:             TierTemplate,
			EmotionalArcType: "arc",
			SuccessRate:      0.95,
			UsageCount:       500,
			IsActive:         true,
		},
	}
	selector := NewSelector(&fakeTemplateSource{templates: templates})

	got, err := selector.SelectTemplates(context.Background(), models.SelectionCriteria{EmotionalArcType: "arc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"proven", "fresh", "busy"}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d: got %s, want %s", i, got[i].Name, name)
		}
	}
}

func TestRankedTemplatesTierMismatchDisqualifies(t *testing.T) {
	selector := NewSelector(&fakeTemplateSource{templates: testTemplates()})

	ranked, err := selector.RankedTemplates(context.Background(), models.SelectionCriteria{
		EmotionalArcType: "anxiety_to_confidence",
		Tier:             TierScenario,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d ranked templates, want 1", len(ranked))
	}
	if ranked[0].TemplateName != "anxiety-to-confidence-scenario" {
		t.Errorf("got %s, want anxiety-to-confidence-scenario", ranked[0].TemplateName)
	}
	if ranked[0].ConfidenceScore <= 0.5 {
		t.Errorf("tier match should raise score above base, got %f", ranked[0].ConfidenceScore)
	}
	if ranked[0].Rationale == "" {
		t.Error("expected a rationale string")
	}
}

func TestRankedTemplatesAlternatives(t *testing.T) {
	templates := testTemplates()
	selector := NewSelector(&fakeTemplateSource{templates: templates})

	ranked, err := selector.RankedTemplates(context.Background(), models.SelectionCriteria{
		EmotionalArcType: "anxiety_to_confidence",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d ranked templates, want 2", len(ranked))
	}
	if len(ranked[0].Alternatives) != 1 {
		t.Fatalf("top result should list 1 alternative, got %d", len(ranked[0].Alternatives))
	}
	if ranked[0].Alternatives[0].TemplateName != ranked[1].TemplateName {
		t.Error("alternative should be the runner-up template")
	}
	if len(ranked[1].Alternatives) != 0 {
		t.Errorf("last result should have no alternatives, got %d", len(ranked[1].Alternatives))
	}
}

func TestValidateCompatibility(t *testing.T) {
	templates := testTemplates()
	selector := NewSelector(&fakeTemplateSource{templates: templates})
	ctx := context.Background()

	tests := []struct {
		name           string
		templateID     uuid.UUID
		persona        string
		topic          string
		wantCompatible bool
		wantWarnings   int
	}{
		{
			name:           "compatible pair",
			templateID:     templates[0].ID,
			persona:        "anxious_planner",
			topic:          "retirement_planning",
			wantCompatible: true,
		},
		{
			name:           "persona outside suitable list",
			templateID:     templates[0].ID,
			persona:        "skeptical_retiree",
			topic:          "retirement_planning",
			wantCompatible: false,
			wantWarnings:   1,
		},
		{
			name:           "both mismatched",
			templateID:     templates[0].ID,
			persona:        "skeptical_retiree",
			topic:          "tax_strategy",
			wantCompatible: false,
			wantWarnings:   2,
		},
		{
			name:           "empty suitable lists accept anything",
			templateID:     templates[1].ID,
			persona:        "skeptical_retiree",
			topic:          "tax_strategy",
			wantCompatible: true,
		},
		{
			name:           "unknown template",
			templateID:     uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff"),
			persona:        "anxious_planner",
			wantCompatible: false,
			wantWarnings:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := selector.ValidateCompatibility(ctx, tt.templateID, tt.persona, tt.topic)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.IsCompatible != tt.wantCompatible {
				t.Errorf("is_compatible = %v, want %v", result.IsCompatible, tt.wantCompatible)
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("got %d warnings, want %d: %v", len(result.Warnings), tt.wantWarnings, result.Warnings)
			}
			if result.Warnings == nil || result.Suggestions == nil {
				t.Error("warnings and suggestions must be non-nil")
			}
		})
	}
}

func TestLoadProfileDefault(t *testing.T) {
	profile, err := LoadProfile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Name != "Elena Morales" {
		t.Errorf("got %s, want Elena Morales", profile.Name)
	}
	if profile.Firm != "Pathways Financial Planning" {
		t.Errorf("got %s, want Pathways Financial Planning", profile.Firm)
	}
}
