package generation

import (
	"testing"

	"github.com/convoforge-ai/platform/pkg/common/models"
)

func TestRenderTemplate(t *testing.T) {
	item := models.BatchItem{
		Topic: "retirement_planning",
		Tier:  "scenario",
		Parameters: map[string]interface{}{
			"persona_type": "anxious_planner",
			"turn_target":  8,
		},
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "substitutes builtins and parameters",
			text: "Generate a {{tier}} conversation about {{topic}} with an {{persona_type}} persona over {{turn_target}} turns.",
			want: "Generate a scenario conversation about retirement_planning with an anxious_planner persona over 8 turns.",
		},
		{
			name: "unknown placeholders pass through",
			text: "Discuss {{topic}} in {{style}}.",
			want: "Discuss retirement_planning in {{style}}.",
		},
		{
			name: "no placeholders",
			text: "plain text",
			want: "plain text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderTemplate(tt.text, item); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParamString(t *testing.T) {
	params := map[string]interface{}{
		"name":  "value",
		"count": 3,
	}
	if got := paramString(params, "name"); got != "value" {
		t.Errorf("got %q", got)
	}
	if got := paramString(params, "count"); got != "" {
		t.Errorf("non-string params should yield empty, got %q", got)
	}
	if got := paramString(nil, "name"); got != "" {
		t.Errorf("nil params should yield empty, got %q", got)
	}
}
