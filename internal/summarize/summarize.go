// Package summarize condenses article pages with a language model under a per-source spending ceiling.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/prompts"
	"NewsDigest/internal/resilience"
)

// FailedSummary replaces the summary of an item the model could not handle.
const FailedSummary = "Failed to summarize."

var thousand = decimal.NewFromInt(1000)

// Budget prices summaries by characters rather than tokens.
type Budget struct {
	CostPer1kChars decimal.Decimal
	// Ratio is the expected prompt to completion length ratio.
	Ratio   float64
	Ceiling decimal.Decimal
}

// Deps wires the engine.
type Deps struct {
	Completer ports.Completer
	Pages     ports.PageReader
	Prompts   *prompts.Set
	Budget    Budget
	MaxTokens int
	Logger    *zap.Logger
}

// Engine summarizes items one after another until the budget runs out.
type Engine struct {
	completer ports.Completer
	pages     ports.PageReader
	prompts   *prompts.Set
	budget    Budget
	maxTokens int
	// templateLen is the rendered prompt length without any article text.
	templateLen int
	logger      *zap.Logger
}

func New(deps Deps) (*Engine, error) {
	if deps.Completer == nil || deps.Pages == nil || deps.Prompts == nil {
		return nil, fmt.Errorf("summarizer misconfigured")
	}
	if deps.Budget.Ratio <= 0 {
		return nil, fmt.Errorf("summary prompt to completion ratio must be positive, got %v", deps.Budget.Ratio)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	empty, err := deps.Prompts.Summary("")
	if err != nil {
		return nil, err
	}

	return &Engine{
		completer:   deps.Completer,
		pages:       deps.Pages,
		prompts:     deps.Prompts,
		budget:      deps.Budget,
		maxTokens:   deps.MaxTokens,
		templateLen: utf8.RuneCountInString(empty),
		logger:      deps.Logger,
	}, nil
}

// Cost estimates the price of summarizing text, completion included.
func (e *Engine) Cost(text string) decimal.Decimal {
	chars := decimal.NewFromInt(int64(utf8.RuneCountInString(text) + e.templateLen))
	prompt := chars.Div(thousand).Mul(e.budget.CostPer1kChars)
	completionShare := decimal.NewFromInt(1).Div(decimal.NewFromFloat(e.budget.Ratio))
	return prompt.Mul(decimal.NewFromInt(1).Add(completionShare))
}

// Summarize returns one summary per item, in input order, plus the estimated spend.
// Items past the ceiling and items whose page could not be read keep an empty summary.
func (e *Engine) Summarize(ctx context.Context, items []domain.ItemMetadata) ([]domain.ItemSummary, decimal.Decimal, error) {
	results := make([]domain.ItemSummary, len(items))
	for i, item := range items {
		results[i] = domain.ItemSummary{Metadata: item}
	}

	total := decimal.Zero
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, total, err
		}

		text, err := e.pages.ReadText(ctx, item.Link())
		if err != nil || strings.TrimSpace(text) == "" {
			e.logger.Warn("no text to summarize", zap.String("url", item.Link()), zap.Error(err))
			continue
		}

		total = total.Add(e.Cost(text))
		if total.GreaterThan(e.budget.Ceiling) {
			e.logger.Info("summary budget exhausted",
				zap.Int("summarized", i), zap.Int("items", len(items)),
				zap.String("ceiling_usd", e.budget.Ceiling.StringFixed(3)))
			break
		}

		summary, err := e.summarizeOne(ctx, item, text)
		if err != nil {
			return nil, total, err
		}
		results[i].Summary = summary
	}

	e.logger.Info("estimated summarization cost", zap.String("cost_usd", total.StringFixed(3)))
	return results, total, nil
}

func (e *Engine) summarizeOne(ctx context.Context, item domain.ItemMetadata, text string) (string, error) {
	summary, ok, err := resilience.FailGracefully(e.logger, "summarize "+item.Title, func() (string, error) {
		prompt, err := e.prompts.Summary(text)
		if err != nil {
			return "", err
		}
		return e.completer.Complete(ctx, prompt, ports.CompletionOptions{MaxTokens: e.maxTokens})
	})
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if !ok || summary == "" {
		return FailedSummary, nil
	}
	return summary, nil
}
