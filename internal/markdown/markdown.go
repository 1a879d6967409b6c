// Package markdown renders digest sections.
package markdown

import (
	"fmt"
	"strings"
	"time"

	"NewsDigest/internal/domain"
)

const (
	defaultSummaryTitle = "Summary"
	fileNameTimeForm    = "2006-01-02-15"
)

func Header(title string, level int) string {
	return strings.Repeat("#", level) + " " + title
}

func Link(text, target string) string {
	return fmt.Sprintf("[%s](%s)", text, target)
}

// Collapsible wraps details in an HTML <details> block titled title.
func Collapsible(details, title string) string {
	return "<details>\n" +
		"    <summary>" + title + "</summary>\n" +
		"    " + details + "\n" +
		"</details>"
}

// Entry renders one item as a linked level-4 header plus its collapsible summary,
// or its relevance reason when it has no summary.
func Entry(item domain.ItemSummary) string {
	m := item.Metadata
	title := Header(Link(fmt.Sprintf("[%d] %s", m.Score, m.Title), m.Link()), 4)

	summaryTitle := m.RelevanceReason
	if summaryTitle == "" {
		summaryTitle = defaultSummaryTitle
	}
	body := item.Summary
	if body == "" {
		body = m.RelevanceReason
	}
	return title + "\n" + Collapsible(body, summaryTitle)
}

// Section renders "### label" followed by the entries. It is empty when there are no items.
func Section(label string, items []domain.ItemSummary) string {
	if len(items) == 0 {
		return ""
	}
	entries := make([]string, len(items))
	for i, item := range items {
		entries[i] = Entry(item)
	}
	return Header(label, 3) + "\n" + strings.Join(entries, "\n\n") + "\n\n"
}

// DigestHeader opens a new digest file.
func DigestHeader(since, until time.Time) string {
	return Header(fmt.Sprintf("News digest %s to %s",
		since.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339)), 2) + "\n\n"
}

// FileName is the default digest name for a window.
func FileName(since, until time.Time) string {
	return fmt.Sprintf("news_digest_%s_%s.md",
		since.UTC().Format(fileNameTimeForm), until.UTC().Format(fileNameTimeForm))
}
