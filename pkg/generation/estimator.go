package generation

import "time"

// Per-conversation planning constants observed from historical batches.
const (
	inputCostPer1K  = 0.003
	outputCostPer1K = 0.015

	avgInputTokens  = 2000
	avgOutputTokens = 1500

	avgItemDuration = 12 * time.Second
)

type BatchEstimate struct {
	ItemCount         int           `json:"item_count"`
	EstimatedCostUSD  float64       `json:"estimated_cost_usd"`
	EstimatedDuration time.Duration `json:"-"`
	EstimatedSeconds  int           `json:"estimated_seconds"`
	InputTokens       int           `json:"estimated_input_tokens"`
	OutputTokens      int           `json:"estimated_output_tokens"`
}

// Estimate projects cost and duration for a batch before it is queued.
// Duration assumes sequential processing; parallelism shortens wall
// time but not cost.
func Estimate(itemCount int) BatchEstimate {
	if itemCount < 0 {
		itemCount = 0
	}
	inputTokens := itemCount * avgInputTokens
	outputTokens := itemCount * avgOutputTokens
	cost := float64(inputTokens)/1000*inputCostPer1K + float64(outputTokens)/1000*outputCostPer1K
	duration := time.Duration(itemCount) * avgItemDuration

	return BatchEstimate{
		ItemCount:         itemCount,
		EstimatedCostUSD:  cost,
		EstimatedDuration: duration,
		EstimatedSeconds:  int(duration / time.Second),
		InputTokens:       inputTokens,
		OutputTokens:      outputTokens,
	}
}
