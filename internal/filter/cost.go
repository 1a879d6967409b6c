package filter

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Rates are USD prices of a single token.
type Rates struct {
	PromptPerToken     decimal.Decimal
	CompletionPerToken decimal.Decimal
}

// CostCalculator bounds the worst-case price of one filter query.
type CostCalculator struct {
	rates       Rates
	contextSize int
	ratio       float64
}

// NewCostCalculator resolves the effective context size: the smaller of the
// inferred and configured limits when both are known, otherwise whichever is.
// ratio is the share of the context reserved for the prompt.
func NewCostCalculator(rates Rates, inferredContext, configuredLimit int, ratio float64) (*CostCalculator, error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("prompt to completion ratio must be in (0, 1), got %v", ratio)
	}
	if !rates.PromptPerToken.IsPositive() || !rates.CompletionPerToken.IsPositive() {
		return nil, fmt.Errorf("token rates must be positive, got prompt %s and completion %s",
			rates.PromptPerToken, rates.CompletionPerToken)
	}

	var size int
	switch {
	case inferredContext > 0 && configuredLimit > 0:
		size = min(inferredContext, configuredLimit)
	case configuredLimit > 0:
		size = configuredLimit
	case inferredContext > 0:
		size = inferredContext
	default:
		return nil, fmt.Errorf("context size is unknown for this model and no limit is configured")
	}

	return &CostCalculator{rates: rates, contextSize: size, ratio: ratio}, nil
}

// ContextSize is the effective context window in tokens.
func (c *CostCalculator) ContextSize() int {
	return c.contextSize
}

// MaxPromptTokens is floor(context * ratio).
func (c *CostCalculator) MaxPromptTokens() int {
	return int(math.Floor(float64(c.contextSize) * c.ratio))
}

// MaxCompletionTokens is whatever the prompt leaves of the context.
func (c *CostCalculator) MaxCompletionTokens() int {
	return c.contextSize - c.MaxPromptTokens()
}

func (c *CostCalculator) MaxPromptCost() decimal.Decimal {
	return decimal.NewFromInt(int64(c.MaxPromptTokens())).Mul(c.rates.PromptPerToken)
}

func (c *CostCalculator) MaxCompletionCost() decimal.Decimal {
	return decimal.NewFromInt(int64(c.MaxCompletionTokens())).Mul(c.rates.CompletionPerToken)
}

// MaxQueryCost is the price of a query that fills the whole context.
func (c *CostCalculator) MaxQueryCost() decimal.Decimal {
	return c.MaxPromptCost().Add(c.MaxCompletionCost())
}

// MaxChunksWithinBudget is floor(ceiling / MaxQueryCost).
func (c *CostCalculator) MaxChunksWithinBudget(ceiling decimal.Decimal) int {
	perQuery := c.MaxQueryCost()
	if !perQuery.IsPositive() || !ceiling.IsPositive() {
		return 0
	}
	return int(ceiling.Div(perQuery).Floor().IntPart())
}
