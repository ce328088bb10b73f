package enrichment

import (
	"encoding/json"
	"testing"
)

func validConversation() map[string]interface{} {
	return map[string]interface{}{
		"conversation_metadata": map[string]interface{}{
			"client_persona":     "anxious_planner",
			"session_context":    "first meeting about retirement readiness",
			"conversation_phase": "exploration",
		},
		"turns": []map[string]interface{}{
			{
				"turn_number": 1,
				"role":        "user",
				"content":     "I keep avoiding my retirement statements because they stress me out.",
				"emotional_context": map[string]interface{}{
					"primary_emotion":   "anxiety",
					"secondary_emotion": "shame",
					"intensity":         0.7,
				},
			},
			{
				"turn_number": 2,
				"role":        "advisor",
				"content":     "That avoidance usually means the stakes feel high. Let's open just one statement together and name what we actually see, no judgment attached.",
				"emotional_context": map[string]interface{}{
					"primary_emotion":   "reassurance",
					"secondary_emotion": "patience",
					"intensity":         0.4,
				},
				"expected_outcome": "client agrees to review one statement",
			},
			{
				"turn_number": 3,
				"role":        "user",
				"content":     "Okay. I can do one statement if you walk me through what the numbers mean.",
				"emotional_context": map[string]interface{}{
					"primary_emotion":   "hope",
					"secondary_emotion": "caution",
					"intensity":         0.5,
				},
			},
		},
	}
}

func marshal(t *testing.T, doc interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshaling fixture: %v", err)
	}
	return raw
}

func TestValidateCleanConversation(t *testing.T) {
	v := NewValidator()
	report := v.Validate("conv-1", marshal(t, validConversation()))

	if !report.IsValid {
		t.Fatalf("expected valid, got blockers: %+v", report.Blockers)
	}
	if len(report.Blockers) != 0 {
		t.Errorf("expected no blockers, got %d", len(report.Blockers))
	}
	if report.ConversationID != "conv-1" {
		t.Errorf("conversation_id = %s", report.ConversationID)
	}
	if report.Summary == "" {
		t.Error("expected a summary")
	}
}

func TestValidateMalformedJSON(t *testing.T) {
	v := NewValidator()
	report := v.Validate("conv-1", []byte(`{"turns": [`))

	if report.IsValid {
		t.Fatal("expected invalid")
	}
	if len(report.Blockers) != 1 || report.Blockers[0].Code != CodeInvalidJSONSyntax {
		t.Errorf("expected single %s blocker, got %+v", CodeInvalidJSONSyntax, report.Blockers)
	}
}

func TestValidateStructuralBlockers(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(doc map[string]interface{})
		wantCode string
	}{
		{
			name: "missing metadata",
			mutate: func(doc map[string]interface{}) {
				delete(doc, "conversation_metadata")
			},
			wantCode: CodeMissingMetadata,
		},
		{
			name: "missing turns",
			mutate: func(doc map[string]interface{}) {
				delete(doc, "turns")
			},
			wantCode: CodeMissingTurnsArray,
		},
		{
			name: "too few turns",
			mutate: func(doc map[string]interface{}) {
				turns := doc["turns"].([]map[string]interface{})
				doc["turns"] = turns[:2]
			},
			wantCode: CodeInsufficientTurns,
		},
		{
			name: "missing client persona",
			mutate: func(doc map[string]interface{}) {
				meta := doc["conversation_metadata"].(map[string]interface{})
				delete(meta, "client_persona")
			},
			wantCode: CodeMissingClientPersona,
		},
		{
			name: "missing session context",
			mutate: func(doc map[string]interface{}) {
				meta := doc["conversation_metadata"].(map[string]interface{})
				delete(meta, "session_context")
			},
			wantCode: CodeMissingSessionContext,
		},
		{
			name: "missing conversation phase",
			mutate: func(doc map[string]interface{}) {
				meta := doc["conversation_metadata"].(map[string]interface{})
				delete(meta, "conversation_phase")
			},
			wantCode: CodeMissingPhase,
		},
		{
			name: "invalid role",
			mutate: func(doc map[string]interface{}) {
				turns := doc["turns"].([]map[string]interface{})
				turns[1]["role"] = "moderator"
			},
			wantCode: CodeInvalidRole,
		},
		{
			name: "missing content",
			mutate: func(doc map[string]interface{}) {
				turns := doc["turns"].([]map[string]interface{})
				delete(turns[1], "content")
			},
			wantCode: CodeMissingContent,
		},
		{
			name: "missing emotional context",
			mutate: func(doc map[string]interface{}) {
				turns := doc["turns"].([]map[string]interface{})
				delete(turns[0], "emotional_context")
			},
			wantCode: CodeMissingEmotionalContext,
		},
		{
			name: "missing primary emotion",
			mutate: func(doc map[string]interface{}) {
				turns := doc["turns"].([]map[string]interface{})
				ec := turns[0]["emotional_context"].(map[string]interface{})
				delete(ec, "primary_emotion")
			},
			wantCode: CodeMissingPrimaryEmotion,
		},
		{
			name: "missing intensity",
			mutate: func(doc map[string]interface{}) {
				turns := doc["turns"].([]map[string]interface{})
				ec := turns[0]["emotional_context"].(map[string]interface{})
				delete(ec, "intensity")
			},
			wantCode: CodeMissingIntensity,
		},
		{
			name: "intensity out of range",
			mutate: func(doc map[string]interface{}) {
				turns := doc["turns"].([]map[string]interface{})
				ec := turns[0]["emotional_context"].(map[string]interface{})
				ec["intensity"] = 1.5
			},
			wantCode: CodeIntensityOutOfRange,
		},
		{
			name: "invalid turn number",
			mutate: func(doc map[string]interface{}) {
				turns := doc["turns"].([]map[string]interface{})
				turns[0]["turn_number"] = 0
			},
			wantCode: CodeInvalidTurnNumber,
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validConversation()
			tt.mutate(doc)
			report := v.Validate("conv-1", marshal(t, doc))

			if report.IsValid {
				t.Fatal("expected invalid report")
			}
			found := false
			for _, b := range report.Blockers {
				if b.Code == tt.wantCode {
					found = true
				}
			}
			if !found {
				t.Errorf("expected blocker %s, got %+v", tt.wantCode, report.Blockers)
			}
		})
	}
}

func TestValidateEnumeratesAllViolations(t *testing.T) {
	doc := validConversation()
	delete(doc["conversation_metadata"].(map[string]interface{}), "client_persona")
	turns := doc["turns"].([]map[string]interface{})
	turns[1]["role"] = "moderator"

	v := NewValidator()
	report := v.Validate("conv-1", marshal(t, doc))

	codes := map[string]bool{}
	for _, b := range report.Blockers {
		codes[b.Code] = true
	}
	if !codes[CodeMissingClientPersona] || !codes[CodeInvalidRole] {
		t.Errorf("expected both violations reported, got %v", codes)
	}
}

func TestValidateSemanticWarnings(t *testing.T) {
	doc := validConversation()
	turns := doc["turns"].([]map[string]interface{})
	turns[2]["turn_number"] = 7
	turns[2]["role"] = "advisor" // consecutive advisor turns
	turns[2]["content"] = "Sure."
	ec := turns[2]["emotional_context"].(map[string]interface{})
	ec["intensity"] = 0.95
	delete(ec, "secondary_emotion")

	v := NewValidator()
	report := v.Validate("conv-1", marshal(t, doc))

	if !report.IsValid {
		t.Fatalf("warnings must not fail validation, blockers: %+v", report.Blockers)
	}
	want := []string{
		CodeTurnNumberMismatch,
		CodeRoleNotAlternating,
		CodeShortContent,
		CodeExtremeIntensity,
		CodeMissingSecondaryEmotion,
	}
	got := map[string]bool{}
	for _, warning := range report.Warnings {
		got[warning.Code] = true
	}
	for _, code := range want {
		if !got[code] {
			t.Errorf("expected warning %s, got %v", code, got)
		}
	}
}

func TestValidateMissingExpectedOutcomeWarning(t *testing.T) {
	doc := validConversation()
	turns := doc["turns"].([]map[string]interface{})
	delete(turns[1], "expected_outcome")

	v := NewValidator()
	report := v.Validate("conv-1", marshal(t, doc))

	if !report.IsValid {
		t.Fatalf("unexpected blockers: %+v", report.Blockers)
	}
	found := false
	for _, warning := range report.Warnings {
		if warning.Code == CodeMissingExpectedOutcome {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s warning", CodeMissingExpectedOutcome)
	}
}
