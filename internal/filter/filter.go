// Package filter asks a language model which items deserve a place in the digest,
// without letting the number of queries exceed a monetary ceiling.
package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/prompts"
	"NewsDigest/internal/resilience"
)

// chunkSafety leaves room for the "n. " prefixes added after chunking.
const chunkSafety = 0.95

var (
	// ErrPromptTooLong means the template alone leaves no room for items.
	ErrPromptTooLong = errors.New("filter prompt leaves no room for items")
	// ErrContract means the model answer does not have the expected shape.
	ErrContract = errors.New("filter response violates contract")
)

// Engine runs the relevance filter for one model configuration.
type Engine struct {
	completer ports.Completer
	tokens    ports.TokenCounter
	costs     *CostCalculator
	ceiling   decimal.Decimal
	prompts   *prompts.Set
	logger    *zap.Logger
}

// Deps wires the engine.
type Deps struct {
	Completer ports.Completer
	Tokens    ports.TokenCounter
	Costs     *CostCalculator
	// Ceiling is the USD limit for all queries of one filter call.
	Ceiling decimal.Decimal
	Prompts *prompts.Set
	Logger  *zap.Logger
}

type response struct {
	Reasonings       *[]string `json:"reasonings"`
	RelevantArticles *[]int    `json:"relevant_articles"`
}

func New(deps Deps) (*Engine, error) {
	if deps.Completer == nil || deps.Tokens == nil || deps.Costs == nil || deps.Prompts == nil {
		return nil, fmt.Errorf("filter engine misconfigured")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Engine{
		completer: deps.Completer,
		tokens:    deps.Tokens,
		costs:     deps.Costs,
		ceiling:   deps.Ceiling,
		prompts:   deps.Prompts,
		logger:    deps.Logger,
	}, nil
}

// FilterMetadata returns the selected items sorted by score, each carrying the model's reason.
func (e *Engine) FilterMetadata(ctx context.Context, items []domain.ItemMetadata) ([]domain.ItemMetadata, error) {
	return run(ctx, e, items,
		func(m domain.ItemMetadata) domain.ItemMetadata { return m },
		func(m domain.ItemMetadata, reason string) domain.ItemMetadata { return m.WithReason(reason) })
}

// FilterSummaries is FilterMetadata for items that already carry a summary.
func (e *Engine) FilterSummaries(ctx context.Context, items []domain.ItemSummary) ([]domain.ItemSummary, error) {
	return run(ctx, e, items,
		func(s domain.ItemSummary) domain.ItemMetadata { return s.Metadata },
		func(s domain.ItemSummary, reason string) domain.ItemSummary {
			s.Metadata = s.Metadata.WithReason(reason)
			return s
		})
}

func run[T any](ctx context.Context, e *Engine, items []T, meta func(T) domain.ItemMetadata, withReason func(T, string) T) ([]T, error) {
	if len(items) == 0 {
		return nil, nil
	}
	source := meta(items[0]).Source
	e.logger.Info("filtering items",
		zap.String("source", source.String()),
		zap.Int("items", len(items)),
		zap.String("max_query_cost_usd", e.costs.MaxQueryCost().StringFixed(4)))

	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return meta(sorted[i]).Score > meta(sorted[j]).Score })

	metas := make([]domain.ItemMetadata, len(sorted))
	for i, item := range sorted {
		metas[i] = meta(item)
	}

	accepted, err := e.selectTitles(ctx, source, metas)
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(accepted))
	seen := make(map[string]struct{}, len(accepted))
	for _, item := range sorted {
		title := meta(item).Title
		reason, ok := accepted[title]
		if !ok {
			continue
		}
		if _, dup := seen[title]; dup {
			e.logger.Debug("dropping duplicate title", zap.String("title", title))
			continue
		}
		seen[title] = struct{}{}
		result = append(result, withReason(item, reason))
	}
	return result, nil
}

// selectTitles returns title -> reason for every line the model picked.
func (e *Engine) selectTitles(ctx context.Context, source domain.Source, items []domain.ItemMetadata) (map[string]string, error) {
	budget, err := e.chunkTokenBudget(source)
	if err != nil {
		return nil, err
	}

	descriptions := make([]string, len(items))
	for i, item := range items {
		descriptions[i] = Describe(item)
	}
	chunks := e.chunk(descriptions, budget)

	if maxChunks := e.costs.MaxChunksWithinBudget(e.ceiling); len(chunks) > maxChunks {
		e.logger.Info("dropping chunks over budget",
			zap.String("source", source.String()),
			zap.Int("chunks", len(chunks)),
			zap.Int("kept", maxChunks))
		chunks = chunks[:maxChunks]
	}

	accepted := map[string]string{}
	for _, chunk := range chunks {
		lines := make([]string, len(chunk))
		for i, idx := range chunk {
			lines[i] = descriptions[idx]
		}

		prompt, err := e.prompts.Filter(source, NumberLines(lines))
		if err != nil {
			return nil, err
		}
		raw, err := e.completer.Complete(ctx, prompt, ports.CompletionOptions{
			JSON:      true,
			MaxTokens: e.costs.MaxCompletionTokens(),
		})
		if err != nil {
			return nil, fmt.Errorf("filter query: %w", err)
		}

		resp, err := decodeResponse(raw)
		if err != nil {
			return nil, err
		}

		for pos, line := range *resp.RelevantArticles {
			if line < 1 || line > len(chunk) {
				e.logger.Warn("model referenced a line outside the chunk",
					zap.Int("line", line), zap.Int("chunk_len", len(chunk)))
				continue
			}
			accepted[items[chunk[line-1]].Title] = reasonFor(*resp.Reasonings, *resp.RelevantArticles, line, pos, len(chunk))
		}
	}

	return accepted, nil
}

// chunkTokenBudget is the token room left for item lines in one query.
func (e *Engine) chunkTokenBudget(source domain.Source) (int, error) {
	empty, err := e.prompts.Filter(source, "")
	if err != nil {
		return 0, err
	}
	templateTokens := e.tokens.Count(empty)
	room := e.costs.MaxPromptTokens() - templateTokens
	if room <= 0 {
		return 0, resilience.Fatal(fmt.Errorf(
			"%w: context size %d, prompt share %d tokens, template %d tokens",
			ErrPromptTooLong, e.costs.ContextSize(), e.costs.MaxPromptTokens(), templateTokens))
	}
	return int(float64(room) * chunkSafety), nil
}

// chunk packs consecutive lines greedily; a line larger than budget gets a chunk of its own.
func (e *Engine) chunk(lines []string, budget int) [][]int {
	var (
		chunks  [][]int
		current []int
		used    int
	)
	for i, line := range lines {
		cost := e.tokens.Count(line) + 1
		if len(current) > 0 && used+cost > budget {
			chunks = append(chunks, current)
			current, used = nil, 0
		}
		if cost > budget {
			e.logger.Warn("single item exceeds the chunk budget", zap.Int("tokens", cost), zap.Int("budget", budget))
		}
		current = append(current, i)
		used += cost
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func decodeResponse(raw string) (response, error) {
	var resp response
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return response{}, resilience.Fatal(fmt.Errorf("%w: %v", ErrContract, err))
	}
	if resp.Reasonings == nil || resp.RelevantArticles == nil {
		return response{}, resilience.Fatal(fmt.Errorf("%w: missing reasonings or relevant_articles", ErrContract))
	}
	return resp, nil
}

// reasonFor accepts one reasoning per listed line or one per selected line.
func reasonFor(reasonings []string, selected []int, line, pos, chunkLen int) string {
	switch {
	case len(reasonings) == chunkLen:
		return reasonings[line-1]
	case len(reasonings) == len(selected):
		return reasonings[pos]
	case line-1 < len(reasonings):
		return reasonings[line-1]
	default:
		return ""
	}
}

// Describe renders "Title: t. Key: v." with context keys in sorted order.
func Describe(item domain.ItemMetadata) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(item.Title)
	b.WriteString(".")

	keys := make([]string, 0, len(item.Context))
	for k := range item.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s: %s.", capitalize(k), item.Context[k])
	}
	return b.String()
}

// NumberLines prefixes lines with "1. ", "2. ", ...
func NumberLines(lines []string) string {
	numbered := make([]string, len(lines))
	for i, line := range lines {
		numbered[i] = fmt.Sprintf("%d. %s", i+1, line)
	}
	return strings.Join(numbered, "\n")
}

func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(first)) + strings.ToLower(s[size:])
}
