package llm

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ModelPricing holds per-token USD rates and the context window of a model.
type ModelPricing struct {
	PromptPerToken     decimal.Decimal
	CompletionPerToken decimal.Decimal
	ContextSize        int
}

var perMillion = decimal.NewFromInt(1_000_000)

func priced(promptPerMillion, completionPerMillion string, contextSize int) ModelPricing {
	return ModelPricing{
		PromptPerToken:     decimal.RequireFromString(promptPerMillion).Div(perMillion),
		CompletionPerToken: decimal.RequireFromString(completionPerMillion).Div(perMillion),
		ContextSize:        contextSize,
	}
}

// Prices per million tokens, keyed by model family prefix.
var pricingTable = map[string]ModelPricing{
	"gpt-4o-mini":       priced("0.15", "0.60", 128_000),
	"gpt-4o":            priced("2.50", "10.00", 128_000),
	"gpt-4.1-nano":      priced("0.10", "0.40", 1_047_576),
	"gpt-4.1-mini":      priced("0.40", "1.60", 1_047_576),
	"gpt-4.1":           priced("2.00", "8.00", 1_047_576),
	"gpt-4-turbo":       priced("10.00", "30.00", 128_000),
	"gpt-4-32k":         priced("60.00", "120.00", 32_768),
	"gpt-4":             priced("30.00", "60.00", 8_192),
	"gpt-3.5-turbo":     priced("0.50", "1.50", 16_385),
	"claude-sonnet-4":   priced("3.00", "15.00", 200_000),
	"claude-haiku-4-5":  priced("1.00", "5.00", 200_000),
	"claude-3-5-haiku":  priced("0.80", "4.00", 200_000),
	"claude-3-5-sonnet": priced("3.00", "15.00", 200_000),
	"claude-3-haiku":    priced("0.25", "1.25", 200_000),
}

// PricingPerMillion converts configured per-million-token prices.
func PricingPerMillion(prompt, completion float64, contextSize int) ModelPricing {
	return ModelPricing{
		PromptPerToken:     decimal.NewFromFloat(prompt).Div(perMillion),
		CompletionPerToken: decimal.NewFromFloat(completion).Div(perMillion),
		ContextSize:        contextSize,
	}
}

// LookupPricing finds the longest table prefix matching model, so dated
// variants such as "gpt-4o-2024-08-06" resolve to their family.
func LookupPricing(model string) (ModelPricing, bool) {
	model = strings.ToLower(strings.TrimSpace(model))

	prefixes := make([]string, 0, len(pricingTable))
	for prefix := range pricingTable {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	for _, prefix := range prefixes {
		if strings.HasPrefix(model, prefix) {
			return pricingTable[prefix], true
		}
	}
	return ModelPricing{}, false
}
