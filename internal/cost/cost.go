// Package cost implements the CostModel and TokenEstimator (component E): a
// static per-model price lookup against the model catalog, and a cheap
// byte-length heuristic for estimating token counts before a request is
// sent.
package cost

import (
	"fmt"

	"github.com/haasonsaas/orchestrator-core/internal/models"
)

// Catalog prices are USD per million tokens; token counts are divided by
// perMillion before the price is applied.
const perMillion = 1_000_000.0

// Estimate computes the USD cost of a completion from its catalog model and
// token counts. It returns an error when modelID is not in the catalog,
// since an unpriced model cannot be charged silently.
func Estimate(catalog *models.Catalog, modelID string, promptTokens, completionTokens int) (float64, error) {
	m, ok := catalog.Get(modelID)
	if !ok {
		return 0, fmt.Errorf("cost: unknown model %q", modelID)
	}
	promptCost := float64(promptTokens) / perMillion * m.InputPrice
	completionCost := float64(completionTokens) / perMillion * m.OutputPrice
	return promptCost + completionCost, nil
}

// bytesPerToken is the heuristic used when no tokenizer is available: most
// English and code text averages roughly 4 bytes per token across the major
// tokenizer families (tiktoken/BPE-style).
const bytesPerToken = 4.0

// EstimateTokens approximates the token count of text without invoking a
// real tokenizer. It rounds up, since under-counting tokens leads to
// under-estimating cost and budget consumption.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text)
	tokens := int(float64(n)/bytesPerToken + 0.999999)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
