// Package prompts renders the filter and summary prompts from built-in or user-supplied templates.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/template"

	"NewsDigest/internal/domain"
)

const (
	filterFile  = "filter_prompt.tmpl"
	summaryFile = "summarize_prompt.tmpl"
	nShotDir    = "n_shot"
)

//go:embed templates
var builtin embed.FS

var sourcePrompts = map[domain.Source]string{
	domain.SourceReddit:      "Reddit posts",
	domain.SourceHackerNews:  "Hacker News posts",
	domain.SourceResearchHub: "Research Hub posts",
	domain.SourceFutureTools: "articles from Future Tools, a site aggregating AI news",
}

// Set holds parsed templates plus the few-shot examples of every source.
type Set struct {
	filter   *template.Template
	summary  *template.Template
	examples map[domain.Source]string
}

type filterVars struct {
	SourcePrompt string
	Examples     string
	ArticlesList string
}

type summaryVars struct {
	Text string
}

// Load parses templates from dir, or the built-in ones when dir is empty.
func Load(dir string) (*Set, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(builtin, "templates")
		if err != nil {
			return nil, fmt.Errorf("built-in prompts: %w", err)
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}
	return LoadFS(fsys)
}

// LoadFS parses templates from fsys. A source without an examples file gets none.
func LoadFS(fsys fs.FS) (*Set, error) {
	filter, err := template.ParseFS(fsys, filterFile)
	if err != nil {
		return nil, fmt.Errorf("parse filter prompt: %w", err)
	}
	summary, err := template.ParseFS(fsys, summaryFile)
	if err != nil {
		return nil, fmt.Errorf("parse summary prompt: %w", err)
	}

	examples := make(map[domain.Source]string, len(sourcePrompts))
	for _, source := range domain.Sources() {
		raw, err := fs.ReadFile(fsys, fmt.Sprintf("%s/%s_n_shot.txt", nShotDir, source))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s examples: %w", source, err)
		}
		examples[source] = string(bytes.TrimSpace(raw))
	}

	return &Set{filter: filter, summary: summary, examples: examples}, nil
}

// SourcePrompt describes what kind of entries a source lists.
func SourcePrompt(source domain.Source) string {
	if p, ok := sourcePrompts[source]; ok {
		return p
	}
	return "posts from " + source.String()
}

// Filter renders the relevance prompt around an already numbered list.
func (s *Set) Filter(source domain.Source, articlesList string) (string, error) {
	var buf bytes.Buffer
	err := s.filter.Execute(&buf, filterVars{
		SourcePrompt: SourcePrompt(source),
		Examples:     s.examples[source],
		ArticlesList: articlesList,
	})
	if err != nil {
		return "", fmt.Errorf("render filter prompt: %w", err)
	}
	return buf.String(), nil
}

// Summary renders the summarization prompt for one article text.
func (s *Set) Summary(text string) (string, error) {
	var buf bytes.Buffer
	if err := s.summary.Execute(&buf, summaryVars{Text: text}); err != nil {
		return "", fmt.Errorf("render summary prompt: %w", err)
	}
	return buf.String(), nil
}
