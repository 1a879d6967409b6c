package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/prompts"
	"NewsDigest/internal/resilience"
)

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

type scriptedCompleter struct {
	mu      sync.Mutex
	answers []string
	prompts []string
	err     error
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !opts.JSON {
		return "", errors.New("expected JSON mode")
	}
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	answer := s.answers[0]
	if len(s.answers) > 1 {
		s.answers = s.answers[1:]
	}
	return answer, nil
}

func testPrompts(t *testing.T, filterTemplate string) *prompts.Set {
	t.Helper()
	set, err := prompts.LoadFS(fstest.MapFS{
		"filter_prompt.tmpl":    {Data: []byte(filterTemplate)},
		"summarize_prompt.tmpl": {Data: []byte("{{.Text}}")},
	})
	require.NoError(t, err)
	return set
}

// newEngine uses a 100 token context, so one full query costs 100*rate.
func newEngine(t *testing.T, completer ports.Completer, rate, ceiling string) *Engine {
	t.Helper()
	r := decimal.RequireFromString(rate)
	costs, err := NewCostCalculator(Rates{PromptPerToken: r, CompletionPerToken: r}, 100, 0, 0.5)
	require.NoError(t, err)

	engine, err := New(Deps{
		Completer: completer,
		Tokens:    wordCounter{},
		Costs:     costs,
		Ceiling:   decimal.RequireFromString(ceiling),
		Prompts:   testPrompts(t, "{{.ArticlesList}}"),
	})
	require.NoError(t, err)
	return engine
}

func item(title string, score int) domain.ItemMetadata {
	return domain.ItemMetadata{Title: title, Source: domain.SourceHackerNews, Score: score}
}

func TestFilterMetadataSortsAndAttachesReasons(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{answers: []string{
		`{"reasonings": ["rb", "rc", "ra"], "relevant_articles": [1, 3]}`,
	}}
	engine := newEngine(t, completer, "0.0001", "1")

	got, err := engine.FilterMetadata(context.Background(), []domain.ItemMetadata{
		item("A", 1), item("B", 5), item("C", 3),
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Title)
	assert.Equal(t, "rb", got[0].RelevanceReason)
	assert.Equal(t, "A", got[1].Title)
	assert.Equal(t, "ra", got[1].RelevanceReason)

	require.Len(t, completer.prompts, 1)
	assert.Equal(t, "1. Title: B.\n2. Title: C.\n3. Title: A.", completer.prompts[0])
}

func TestFilterRespectsCostCeiling(t *testing.T) {
	t.Parallel()

	// 30-word titles: one line per chunk, five chunks, each query worth $0.02.
	long := strings.Repeat("word ", 29)
	var items []domain.ItemMetadata
	for i := 0; i < 5; i++ {
		items = append(items, item(long+string(rune('a'+i)), 10-i))
	}

	completer := &scriptedCompleter{answers: []string{`{"reasonings": ["ok"], "relevant_articles": [1]}`}}
	engine := newEngine(t, completer, "0.0002", "0.05")

	got, err := engine.FilterMetadata(context.Background(), items)
	require.NoError(t, err)

	assert.Len(t, completer.prompts, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 10, got[0].Score)
	assert.Equal(t, 9, got[1].Score)
}

func TestFilterContractViolationIsFatal(t *testing.T) {
	t.Parallel()

	for _, answer := range []string{`not json`, `{"relevant_articles": [1]}`, `{"reasonings": []}`} {
		completer := &scriptedCompleter{answers: []string{answer}}
		engine := newEngine(t, completer, "0.0001", "1")

		_, err := engine.FilterMetadata(context.Background(), []domain.ItemMetadata{item("A", 1)})
		require.ErrorIs(t, err, ErrContract, answer)
		assert.True(t, resilience.IsFatal(err), answer)
	}
}

func TestFilterPromptTooLong(t *testing.T) {
	t.Parallel()

	rate := decimal.RequireFromString("0.0001")
	costs, err := NewCostCalculator(Rates{PromptPerToken: rate, CompletionPerToken: rate}, 10, 0, 0.5)
	require.NoError(t, err)
	engine, err := New(Deps{
		Completer: &scriptedCompleter{},
		Tokens:    wordCounter{},
		Costs:     costs,
		Ceiling:   decimal.NewFromInt(1),
		Prompts:   testPrompts(t, "one two three four five six {{.ArticlesList}}"),
	})
	require.NoError(t, err)

	_, err = engine.FilterMetadata(context.Background(), []domain.ItemMetadata{item("A", 1)})
	require.ErrorIs(t, err, ErrPromptTooLong)
	assert.True(t, resilience.IsFatal(err))
}

func TestFilterIgnoresOutOfRangeLinesAndDuplicates(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{answers: []string{
		`{"reasonings": ["first", "second"], "relevant_articles": [1, 2, 7]}`,
	}}
	engine := newEngine(t, completer, "0.0001", "1")

	got, err := engine.FilterMetadata(context.Background(), []domain.ItemMetadata{
		item("Same", 4), item("Same", 2),
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Score)
}

func TestFilterSummariesKeepsSummaryText(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{answers: []string{`{"reasonings": ["why"], "relevant_articles": [1]}`}}
	engine := newEngine(t, completer, "0.0001", "1")

	got, err := engine.FilterSummaries(context.Background(), []domain.ItemSummary{
		{Metadata: item("Paper", 3), Summary: "abstract"},
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "abstract", got[0].Summary)
	assert.Equal(t, "why", got[0].Metadata.RelevanceReason)
}

func TestFilterEmptyInputSkipsModel(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{}
	engine := newEngine(t, completer, "0.0001", "1")

	got, err := engine.FilterMetadata(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, completer.prompts)
}

func TestFilterPropagatesCompleterErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("network down")
	engine := newEngine(t, &scriptedCompleter{err: boom}, "0.0001", "1")

	_, err := engine.FilterMetadata(context.Background(), []domain.ItemMetadata{item("A", 1)})
	require.ErrorIs(t, err, boom)
	assert.False(t, resilience.IsFatal(err))
}

func TestDescribeAndNumberLines(t *testing.T) {
	t.Parallel()

	desc := Describe(domain.ItemMetadata{
		Title:   "Big news",
		Context: map[string]string{"subreddit": "MachineLearning", "flair": "Research"},
	})
	assert.Equal(t, "Title: Big news. Flair: Research. Subreddit: MachineLearning.", desc)
	assert.Equal(t, "1. a\n2. b", NumberLines([]string{"a", "b"}))
}

func TestCapitalizeMultiByteFirstRune(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Éditeur", capitalize("éDITEUR"))
	assert.Equal(t, "Ñame", capitalize("ñAME"))
	assert.Equal(t, "X", capitalize("x"))
	assert.Empty(t, capitalize(""))

	desc := Describe(domain.ItemMetadata{Title: "T", Context: map[string]string{"ñandú": "sí"}})
	assert.Equal(t, "Title: T. Ñandú: sí.", desc)
}

func TestCostCalculator(t *testing.T) {
	t.Parallel()

	rate := decimal.RequireFromString("0.0002")
	costs, err := NewCostCalculator(Rates{PromptPerToken: rate, CompletionPerToken: rate}, 128_000, 100, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 100, costs.ContextSize())
	assert.Equal(t, 50, costs.MaxPromptTokens())
	assert.Equal(t, 50, costs.MaxCompletionTokens())
	assert.True(t, costs.MaxQueryCost().Equal(decimal.RequireFromString("0.02")))
	assert.Equal(t, 2, costs.MaxChunksWithinBudget(decimal.RequireFromString("0.05")))
	assert.Equal(t, 0, costs.MaxChunksWithinBudget(decimal.Zero))

	onlyConfigured, err := NewCostCalculator(Rates{PromptPerToken: rate, CompletionPerToken: rate}, 0, 4096, 0.75)
	require.NoError(t, err)
	assert.Equal(t, 4096, onlyConfigured.ContextSize())

	_, err = NewCostCalculator(Rates{PromptPerToken: rate, CompletionPerToken: rate}, 0, 0, 0.5)
	require.Error(t, err)
	_, err = NewCostCalculator(Rates{PromptPerToken: rate, CompletionPerToken: rate}, 10, 0, 1)
	require.Error(t, err)
}

func TestCostCalculatorRequiresPricedModel(t *testing.T) {
	t.Parallel()

	rate := decimal.RequireFromString("0.0002")
	for name, rates := range map[string]Rates{
		"unknown":         {},
		"free prompt":     {CompletionPerToken: rate},
		"free completion": {PromptPerToken: rate},
		"negative":        {PromptPerToken: rate.Neg(), CompletionPerToken: rate},
	} {
		_, err := NewCostCalculator(rates, 100, 0, 0.5)
		require.Error(t, err, name)
	}
}

func TestFilterNeverExceedsCeiling(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{answers: []string{`{"reasonings": ["r"], "relevant_articles": [1]}`}}
	engine := newEngine(t, completer, "0.0002", "0.05")

	items := make([]domain.ItemMetadata, 50)
	for i := range items {
		items[i] = item(fmt.Sprintf("%02d %s", i, strings.Repeat("word ", 40)), 50-i)
	}
	_, err := engine.FilterMetadata(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, completer.prompts, 2, "floor(0.05 / 0.02) queries")
}
