package summarize

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/prompts"
)

type fakePages map[string]string

func (f fakePages) ReadText(_ context.Context, pageURL string) (string, error) {
	text, ok := f[pageURL]
	if !ok {
		return "", errors.New("404")
	}
	return text, nil
}

type fakeCompleter struct {
	calls []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ ports.CompletionOptions) (string, error) {
	f.calls = append(f.calls, prompt)
	if strings.HasPrefix(prompt, "fail") {
		return "", errors.New("model overloaded")
	}
	if strings.HasPrefix(prompt, "panic") {
		panic("decoder bug")
	}
	return "summary of " + prompt[:4], nil
}

func meta(t *testing.T, title, link string) domain.ItemMetadata {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return domain.ItemMetadata{Title: title, Source: domain.SourceHackerNews, URL: u}
}

func newEngine(t *testing.T, pages ports.PageReader, completer ports.Completer, ceiling string) *Engine {
	t.Helper()
	set, err := prompts.LoadFS(fstest.MapFS{
		"filter_prompt.tmpl":    {Data: []byte("{{.ArticlesList}}")},
		"summarize_prompt.tmpl": {Data: []byte("{{.Text}}")},
	})
	require.NoError(t, err)

	engine, err := New(Deps{
		Completer: completer,
		Pages:     pages,
		Prompts:   set,
		Budget: Budget{
			CostPer1kChars: decimal.NewFromInt(1),
			Ratio:          1,
			Ceiling:        decimal.RequireFromString(ceiling),
		},
	})
	require.NoError(t, err)
	return engine
}

func TestCostCountsCompletionShare(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, fakePages{}, &fakeCompleter{}, "1")
	assert.True(t, engine.Cost(strings.Repeat("a", 500)).Equal(decimal.NewFromInt(1)))
}

func TestSummarizeKeepsEveryItemInOrder(t *testing.T) {
	t.Parallel()

	body := func(prefix string) string { return prefix + strings.Repeat(".", 100-len(prefix)) }
	pages := fakePages{
		"https://a.example/ok":    body("good"),
		"https://a.example/fail":  body("fail"),
		"https://a.example/late":  body("late"),
		"https://a.example/blank": "   ",
	}
	completer := &fakeCompleter{}
	// Each page costs 0.2; the third priced page crosses 0.5.
	engine := newEngine(t, pages, completer, "0.5")

	items := []domain.ItemMetadata{
		meta(t, "ok", "https://a.example/ok"),
		meta(t, "missing", "https://a.example/missing"),
		meta(t, "blank", "https://a.example/blank"),
		meta(t, "fail", "https://a.example/fail"),
		meta(t, "late", "https://a.example/late"),
	}

	got, total, err := engine.Summarize(context.Background(), items)
	require.NoError(t, err)

	require.Len(t, got, len(items))
	for i := range items {
		assert.Equal(t, items[i].Title, got[i].Metadata.Title)
	}
	assert.Equal(t, "summary of good", got[0].Summary)
	assert.Empty(t, got[1].Summary)
	assert.Empty(t, got[2].Summary)
	assert.Equal(t, FailedSummary, got[3].Summary)
	assert.Empty(t, got[4].Summary, "over budget")

	assert.Len(t, completer.calls, 2)
	assert.True(t, total.Equal(decimal.RequireFromString("0.6")), total.String())
}

func TestSummarizeRecoversFromPanickingModel(t *testing.T) {
	t.Parallel()

	pages := fakePages{"https://a.example/p": "panic in the model"}
	engine := newEngine(t, pages, &fakeCompleter{}, "10")

	got, _, err := engine.Summarize(context.Background(), []domain.ItemMetadata{meta(t, "p", "https://a.example/p")})
	require.NoError(t, err)
	assert.Equal(t, FailedSummary, got[0].Summary)
}

func TestSummarizeStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newEngine(t, fakePages{}, &fakeCompleter{}, "10")
	_, _, err := engine.Summarize(ctx, []domain.ItemMetadata{meta(t, "x", "https://a.example/x")})
	require.ErrorIs(t, err, context.Canceled)
}
