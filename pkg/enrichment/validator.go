package enrichment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Rule codes surfaced in validation reports. Blockers fail the
// conversation; warnings are recorded and the pipeline proceeds.
const (
	CodeInvalidJSONSyntax       = "INVALID_JSON_SYNTAX"
	CodeMissingMetadata         = "MISSING_CONVERSATION_METADATA"
	CodeMissingTurnsArray       = "MISSING_TURNS_ARRAY"
	CodeInsufficientTurns       = "INSUFFICIENT_TURNS"
	CodeMissingClientPersona    = "MISSING_CLIENT_PERSONA"
	CodeMissingSessionContext   = "MISSING_SESSION_CONTEXT"
	CodeMissingPhase            = "MISSING_CONVERSATION_PHASE"
	CodeInvalidTurnNumber       = "INVALID_TURN_NUMBER"
	CodeInvalidRole             = "INVALID_ROLE"
	CodeMissingContent          = "MISSING_CONTENT"
	CodeMissingEmotionalContext = "MISSING_EMOTIONAL_CONTEXT"
	CodeMissingPrimaryEmotion   = "MISSING_PRIMARY_EMOTION"
	CodeMissingIntensity        = "MISSING_INTENSITY"
	CodeIntensityOutOfRange     = "INTENSITY_OUT_OF_RANGE"

	CodeMissingExpectedOutcome  = "MISSING_EXPECTED_OUTCOME"
	CodeTurnNumberMismatch      = "TURN_NUMBER_MISMATCH"
	CodeRoleNotAlternating      = "ROLE_NOT_ALTERNATING"
	CodeShortContent            = "SHORT_CONTENT"
	CodeExtremeIntensity        = "EXTREME_INTENSITY"
	CodeMissingSecondaryEmotion = "MISSING_SECONDARY_EMOTION"
)

const minTurns = 3
const shortContentThreshold = 20

const conversationSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["conversation_metadata", "turns"],
	"properties": {
		"conversation_metadata": {
			"type": "object",
			"required": ["client_persona", "session_context", "conversation_phase"]
		},
		"turns": {
			"type": "array",
			"minItems": 3,
			"items": {
				"type": "object",
				"required": ["turn_number", "role", "content", "emotional_context"],
				"properties": {
					"turn_number": {"type": "integer", "minimum": 1},
					"role": {"enum": ["user", "advisor"]},
					"content": {"type": "string", "minLength": 1},
					"emotional_context": {
						"type": "object",
						"required": ["primary_emotion", "intensity"],
						"properties": {
							"intensity": {"type": "number", "minimum": 0, "maximum": 1}
						}
					}
				}
			}
		}
	}
}`

// conversationDoc is the decoded shape used by the semantic checks.
// Pointer fields distinguish absent from zero.
type conversationDoc struct {
	ConversationMetadata map[string]interface{} `json:"conversation_metadata"`
	Turns                []turnDoc              `json:"turns"`
}

type turnDoc struct {
	TurnNumber       int               `json:"turn_number"`
	Role             string            `json:"role"`
	Content          string            `json:"content"`
	EmotionalContext *emotionalContext `json:"emotional_context"`
	ExpectedOutcome  string            `json:"expected_outcome"`
}

type emotionalContext struct {
	PrimaryEmotion   string   `json:"primary_emotion"`
	SecondaryEmotion string   `json:"secondary_emotion"`
	Intensity        *float64 `json:"intensity"`
}

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{
		schema: jsonschema.MustCompileString("conversation.json", conversationSchema),
	}
}

// Validate runs every rule against the raw document and reports all
// violations at once, rather than stopping at the first. Structural
// rules come from the compiled schema; the semantic pass covers
// ordering, alternation, and emotional-context quality.
func (v *Validator) Validate(conversationID string, raw []byte) models.ValidationReport {
	report := models.ValidationReport{
		ConversationID: conversationID,
		Blockers:       []models.ValidationIssue{},
		Warnings:       []models.ValidationIssue{},
		ValidatedAt:    time.Now().UTC(),
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		report.Blockers = append(report.Blockers, models.ValidationIssue{
			Code:       CodeInvalidJSONSyntax,
			Severity:   "blocker",
			Field:      "$",
			Message:    fmt.Sprintf("document is not valid JSON: %v", err),
			Suggestion: "regenerate the conversation or repair the raw response",
		})
		return finalize(report)
	}

	if err := v.schema.Validate(decoded); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			for _, unit := range ve.BasicOutput().Errors {
				issue, ok := mapSchemaError(unit)
				if !ok {
					continue
				}
				report.Blockers = append(report.Blockers, issue)
			}
		} else {
			report.Blockers = append(report.Blockers, models.ValidationIssue{
				Code:     CodeInvalidJSONSyntax,
				Severity: "blocker",
				Field:    "$",
				Message:  err.Error(),
			})
		}
	}

	var doc conversationDoc
	if err := json.Unmarshal(raw, &doc); err == nil {
		v.semanticPass(&doc, &report)
	}

	return finalize(report)
}

// mapSchemaError turns a schema output unit into a coded issue.
// Aggregate units ("doesn't validate with ...") are skipped; only leaf
// violations carry a rule.
func mapSchemaError(unit jsonschema.BasicError) (models.ValidationIssue, bool) {
	msg := unit.Error
	if msg == "" || strings.HasPrefix(msg, "doesn't validate with") {
		return models.ValidationIssue{}, false
	}

	field := unit.InstanceLocation
	if field == "" {
		field = "$"
	}
	keyword := lastSegment(unit.KeywordLocation)

	issue := models.ValidationIssue{
		Severity: "blocker",
		Field:    field,
		Message:  msg,
	}

	switch {
	case keyword == "required" && unit.InstanceLocation == "":
		if strings.Contains(msg, "conversation_metadata") {
			issue.Code = CodeMissingMetadata
			issue.Suggestion = "include a conversation_metadata object"
		} else {
			issue.Code = CodeMissingTurnsArray
			issue.Suggestion = "include a turns array"
		}
	case keyword == "minItems":
		issue.Code = CodeInsufficientTurns
		issue.Suggestion = fmt.Sprintf("conversations need at least %d turns", minTurns)
	case keyword == "required" && unit.InstanceLocation == "/conversation_metadata":
		switch {
		case strings.Contains(msg, "client_persona"):
			issue.Code = CodeMissingClientPersona
		case strings.Contains(msg, "session_context"):
			issue.Code = CodeMissingSessionContext
		default:
			issue.Code = CodeMissingPhase
		}
	case keyword == "required" && strings.HasPrefix(unit.InstanceLocation, "/turns/"):
		switch {
		case strings.Contains(msg, "turn_number"):
			issue.Code = CodeInvalidTurnNumber
		case strings.Contains(msg, "role"):
			issue.Code = CodeInvalidRole
		case strings.Contains(msg, "content"):
			issue.Code = CodeMissingContent
		case strings.Contains(msg, "primary_emotion"):
			issue.Code = CodeMissingPrimaryEmotion
		case strings.Contains(msg, "intensity"):
			issue.Code = CodeMissingIntensity
		default:
			issue.Code = CodeMissingEmotionalContext
		}
	case strings.HasSuffix(unit.InstanceLocation, "/turn_number"):
		issue.Code = CodeInvalidTurnNumber
		issue.Suggestion = "turn_number must be a positive integer"
	case strings.HasSuffix(unit.InstanceLocation, "/role"):
		issue.Code = CodeInvalidRole
		issue.Suggestion = `role must be "user" or "advisor"`
	case strings.HasSuffix(unit.InstanceLocation, "/content"):
		issue.Code = CodeMissingContent
	case strings.HasSuffix(unit.InstanceLocation, "/intensity"):
		issue.Code = CodeIntensityOutOfRange
		issue.Suggestion = "intensity must be between 0 and 1"
	case strings.HasSuffix(unit.InstanceLocation, "/emotional_context"):
		issue.Code = CodeMissingEmotionalContext
	default:
		issue.Code = CodeInvalidJSONSyntax
	}
	return issue, true
}

func (v *Validator) semanticPass(doc *conversationDoc, report *models.ValidationReport) {
	var prevRole string
	for i, turn := range doc.Turns {
		field := fmt.Sprintf("/turns/%d", i)

		if turn.TurnNumber != 0 && turn.TurnNumber != i+1 {
			report.Warnings = append(report.Warnings, models.ValidationIssue{
				Code:     CodeTurnNumberMismatch,
				Severity: "warning",
				Field:    field + "/turn_number",
				Message:  fmt.Sprintf("turn_number %d does not match position %d", turn.TurnNumber, i+1),
			})
		}

		if turn.Role != "" && turn.Role == prevRole {
			report.Warnings = append(report.Warnings, models.ValidationIssue{
				Code:     CodeRoleNotAlternating,
				Severity: "warning",
				Field:    field + "/role",
				Message:  fmt.Sprintf("consecutive %s turns at positions %d and %d", turn.Role, i, i+1),
			})
		}
		prevRole = turn.Role

		if turn.Content != "" && len(turn.Content) < shortContentThreshold {
			report.Warnings = append(report.Warnings, models.ValidationIssue{
				Code:       CodeShortContent,
				Severity:   "warning",
				Field:      field + "/content",
				Message:    fmt.Sprintf("content is only %d characters", len(turn.Content)),
				Suggestion: "turns this short rarely carry enough signal for training",
			})
		}

		if turn.ExpectedOutcome == "" && turn.Role == "advisor" {
			report.Warnings = append(report.Warnings, models.ValidationIssue{
				Code:     CodeMissingExpectedOutcome,
				Severity: "warning",
				Field:    field,
				Message:  "advisor turn has no expected_outcome",
			})
		}

		if ec := turn.EmotionalContext; ec != nil {
			if ec.Intensity != nil && (*ec.Intensity < 0.1 || *ec.Intensity > 0.9) {
				report.Warnings = append(report.Warnings, models.ValidationIssue{
					Code:     CodeExtremeIntensity,
					Severity: "warning",
					Field:    field + "/emotional_context/intensity",
					Message:  fmt.Sprintf("intensity %.2f is at the edge of the scale", *ec.Intensity),
				})
			}
			if ec.SecondaryEmotion == "" {
				report.Warnings = append(report.Warnings, models.ValidationIssue{
					Code:     CodeMissingSecondaryEmotion,
					Severity: "warning",
					Field:    field + "/emotional_context",
					Message:  "no secondary_emotion recorded",
				})
			}
		}
	}
}

func finalize(report models.ValidationReport) models.ValidationReport {
	report.IsValid = len(report.Blockers) == 0
	report.Summary = fmt.Sprintf("%d blockers, %d warnings", len(report.Blockers), len(report.Warnings))
	return report
}

func lastSegment(location string) string {
	idx := strings.LastIndex(location, "/")
	if idx < 0 {
		return location
	}
	return location[idx+1:]
}

// ReportToMap flattens a report for storage in the conversation
// record's jsonb column.
func ReportToMap(report models.ValidationReport) map[string]interface{} {
	raw, err := json.Marshal(report)
	if err != nil {
		return map[string]interface{}{"summary": report.Summary}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{"summary": report.Summary}
	}
	return out
}
