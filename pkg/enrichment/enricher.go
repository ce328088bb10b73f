package enrichment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/convoforge-ai/platform/pkg/scaffolding"
)

var positiveEmotions = map[string]bool{
	"confidence":  true,
	"relief":      true,
	"hope":        true,
	"optimism":    true,
	"reassurance": true,
	"empowerment": true,
	"trust":       true,
	"calm":        true,
	"acceptance":  true,
	"gratitude":   true,
	"pride":       true,
}

var negativeEmotions = map[string]bool{
	"anxiety":     true,
	"fear":        true,
	"grief":       true,
	"shame":       true,
	"anger":       true,
	"frustration": true,
	"overwhelm":   true,
	"worry":       true,
	"guilt":       true,
	"sadness":     true,
	"stress":      true,
	"confusion":   true,
	"dread":       true,
}

type EnrichmentSummary struct {
	QualityScore  float64 `json:"quality_score"`
	QualityTier   string  `json:"quality_tier"`
	TurnCount     int     `json:"turn_count"`
	TrainingPairs int     `json:"training_pairs"`
}

// Enricher augments a validated conversation with the consultant
// profile, dataset metadata, and instruction-tuning training pairs.
type Enricher struct {
	profile scaffolding.ConsultantProfile
}

func NewEnricher(profile scaffolding.ConsultantProfile) *Enricher {
	return &Enricher{profile: profile}
}

// Enrich builds the enriched document from a validated conversation.
// systemPrompt comes from the generation log when available; otherwise
// a default prompt is reconstructed from the consultant profile.
func (e *Enricher) Enrich(conversationID string, validated []byte, systemPrompt string) ([]byte, EnrichmentSummary, error) {
	var doc conversationDoc
	if err := json.Unmarshal(validated, &doc); err != nil {
		return nil, EnrichmentSummary{}, fmt.Errorf("decoding validated conversation: %w", err)
	}
	var full map[string]interface{}
	if err := json.Unmarshal(validated, &full); err != nil {
		return nil, EnrichmentSummary{}, fmt.Errorf("decoding validated conversation: %w", err)
	}

	if systemPrompt == "" {
		systemPrompt = e.defaultSystemPrompt()
	}

	breakdown := qualityBreakdown(&doc)
	score := overallScore(breakdown)
	tier := qualityTier(score)
	pairs := e.buildTrainingPairs(&doc, systemPrompt)

	full["consultant_profile"] = e.profile
	full["dataset_metadata"] = map[string]interface{}{
		"conversation_id":      conversationID,
		"quality_score":        score,
		"quality_tier":         tier,
		"quality_breakdown":    breakdown,
		"turn_count":           len(doc.Turns),
		"training_pair_count":  len(pairs),
		"emotional_trajectory": trajectory(&doc),
		"enriched_at":          time.Now().UTC().Format(time.RFC3339),
	}
	full["training_pairs"] = pairs

	enriched, err := json.Marshal(full)
	if err != nil {
		return nil, EnrichmentSummary{}, fmt.Errorf("encoding enriched document: %w", err)
	}

	return enriched, EnrichmentSummary{
		QualityScore:  score,
		QualityTier:   tier,
		TurnCount:     len(doc.Turns),
		TrainingPairs: len(pairs),
	}, nil
}

func (e *Enricher) defaultSystemPrompt() string {
	return fmt.Sprintf(
		"You are %s, %s at %s. You specialize in %s. Respond with %s.",
		e.profile.Name,
		strings.Join(e.profile.Credentials, ", "),
		e.profile.Firm,
		strings.Join(e.profile.Specialties, "; "),
		e.profile.Approach,
	)
}

type trainingPair struct {
	SystemPrompt        string                   `json:"system_prompt"`
	ConversationHistory []map[string]interface{} `json:"conversation_history"`
	CurrentUserInput    string                   `json:"current_user_input"`
	TargetResponse      string                   `json:"target_response"`
	EmotionalState      map[string]interface{}   `json:"emotional_state"`
}

// buildTrainingPairs emits one pair per advisor turn. The history
// accumulates every turn before the triggering user input, so later
// pairs carry the full preceding dialogue.
func (e *Enricher) buildTrainingPairs(doc *conversationDoc, systemPrompt string) []trainingPair {
	pairs := []trainingPair{}
	var lastUserContent string

	for i, turn := range doc.Turns {
		if turn.Role == "user" {
			lastUserContent = turn.Content
			continue
		}
		if turn.Role != "advisor" {
			continue
		}

		history := []map[string]interface{}{}
		for _, prev := range doc.Turns[:i] {
			history = append(history, map[string]interface{}{
				"role":    prev.Role,
				"content": prev.Content,
			})
		}
		// Drop the triggering user message from history; it is the
		// current input.
		if len(history) > 0 && history[len(history)-1]["role"] == "user" {
			history = history[:len(history)-1]
		}

		state := map[string]interface{}{"valence": "neutral"}
		if prevEC := precedingUserContext(doc, i); prevEC != nil {
			state["primary_emotion"] = prevEC.PrimaryEmotion
			state["valence"] = classifyValence(prevEC.PrimaryEmotion)
			if prevEC.Intensity != nil {
				state["intensity"] = *prevEC.Intensity
			}
		}

		pairs = append(pairs, trainingPair{
			SystemPrompt:        systemPrompt,
			ConversationHistory: history,
			CurrentUserInput:    lastUserContent,
			TargetResponse:      turn.Content,
			EmotionalState:      state,
		})
	}
	return pairs
}

// precedingUserContext finds the emotional context of the most recent
// user turn before position i.
func precedingUserContext(doc *conversationDoc, i int) *emotionalContext {
	for j := i - 1; j >= 0; j-- {
		if doc.Turns[j].Role == "user" && doc.Turns[j].EmotionalContext != nil {
			return doc.Turns[j].EmotionalContext
		}
	}
	return nil
}

func classifyValence(emotion string) string {
	e := strings.ToLower(strings.TrimSpace(emotion))
	if positiveEmotions[e] {
		return "positive"
	}
	if negativeEmotions[e] {
		return "negative"
	}
	return "neutral"
}

// qualityBreakdown scores four criteria from observable document
// features. Scores are deterministic so re-enrichment of the same
// document yields the same tier.
func qualityBreakdown(doc *conversationDoc) map[string]float64 {
	breakdown := map[string]float64{
		"emotional_authenticity": 3.5,
		"advisor_quality":        3.5,
		"conversation_flow":      3.5,
		"educational_value":      3.5,
	}

	allContexts := true
	var minIntensity, maxIntensity float64 = 1, 0
	for _, turn := range doc.Turns {
		if turn.EmotionalContext == nil || turn.EmotionalContext.Intensity == nil {
			allContexts = false
			continue
		}
		in := *turn.EmotionalContext.Intensity
		if in < minIntensity {
			minIntensity = in
		}
		if in > maxIntensity {
			maxIntensity = in
		}
	}
	if allContexts && len(doc.Turns) > 0 {
		breakdown["emotional_authenticity"] += 0.5
	}
	if maxIntensity-minIntensity > 0.2 {
		breakdown["emotional_authenticity"] += 0.5
	}

	var advisorTurns, substantive, withOutcome int
	for _, turn := range doc.Turns {
		if turn.Role != "advisor" {
			continue
		}
		advisorTurns++
		if len(turn.Content) >= 150 {
			substantive++
		}
		if turn.ExpectedOutcome != "" {
			withOutcome++
		}
	}
	if advisorTurns > 0 && substantive == advisorTurns {
		breakdown["advisor_quality"] += 0.5
	}
	if advisorTurns > 0 && withOutcome == advisorTurns {
		breakdown["advisor_quality"] += 0.5
	}

	alternating := len(doc.Turns) > 1
	sequential := true
	for i, turn := range doc.Turns {
		if turn.TurnNumber != i+1 {
			sequential = false
		}
		if i > 0 && turn.Role == doc.Turns[i-1].Role {
			alternating = false
		}
	}
	if alternating {
		breakdown["conversation_flow"] += 0.5
	}
	if sequential && len(doc.Turns) > 0 {
		breakdown["conversation_flow"] += 0.5
	}

	if len(doc.Turns) >= 6 {
		breakdown["educational_value"] += 0.5
	}
	if resolved(doc) {
		breakdown["educational_value"] += 0.5
	}

	return breakdown
}

// resolved reports whether emotional intensity eased over the
// conversation, the signature of a completed arc.
func resolved(doc *conversationDoc) bool {
	var first, last *float64
	for _, turn := range doc.Turns {
		if turn.Role != "user" || turn.EmotionalContext == nil || turn.EmotionalContext.Intensity == nil {
			continue
		}
		if first == nil {
			first = turn.EmotionalContext.Intensity
		}
		last = turn.EmotionalContext.Intensity
	}
	return first != nil && last != nil && *last < *first
}

func overallScore(breakdown map[string]float64) float64 {
	if len(breakdown) == 0 {
		return 0
	}
	var sum float64
	for _, v := range breakdown {
		sum += v
	}
	score := sum / float64(len(breakdown))
	if score > 5 {
		score = 5
	}
	return score
}

func qualityTier(score float64) string {
	switch {
	case score >= 4.5:
		return "seed_dataset"
	case score >= 3.5:
		return "production"
	default:
		return "experimental"
	}
}

func trajectory(doc *conversationDoc) []map[string]interface{} {
	points := []map[string]interface{}{}
	for i, turn := range doc.Turns {
		if turn.EmotionalContext == nil {
			continue
		}
		point := map[string]interface{}{
			"turn":            i + 1,
			"role":            turn.Role,
			"primary_emotion": turn.EmotionalContext.PrimaryEmotion,
			"valence":         classifyValence(turn.EmotionalContext.PrimaryEmotion),
		}
		if turn.EmotionalContext.Intensity != nil {
			point["intensity"] = *turn.EmotionalContext.Intensity
		}
		points = append(points, point)
	}
	return points
}
