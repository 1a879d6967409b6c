package prompts

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
)

func TestBuiltinPromptsRender(t *testing.T) {
	t.Parallel()

	set, err := Load("")
	require.NoError(t, err)

	prompt, err := set.Filter(domain.SourceFutureTools, "1. Title: A.")
	require.NoError(t, err)
	assert.Contains(t, prompt, "articles from Future Tools, a site aggregating AI news")
	assert.Contains(t, prompt, "1. Title: A.")
	assert.Contains(t, prompt, "relevant_articles")
	assert.Contains(t, prompt, "Gemini 1.5", "few-shot examples included")

	summary, err := set.Summary("body text")
	require.NoError(t, err)
	assert.Contains(t, summary, "body text")
}

func TestLoadFSWithoutExamples(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		filterFile:  {Data: []byte("{{.SourcePrompt}}|{{.Examples}}|{{.ArticlesList}}")},
		summaryFile: {Data: []byte("S:{{.Text}}")},
	}
	set, err := LoadFS(fsys)
	require.NoError(t, err)

	prompt, err := set.Filter(domain.SourceReddit, "x")
	require.NoError(t, err)
	assert.Equal(t, "Reddit posts||x", prompt)
}

func TestLoadFSRequiresTemplates(t *testing.T) {
	t.Parallel()

	_, err := LoadFS(fstest.MapFS{})
	require.Error(t, err)
}
