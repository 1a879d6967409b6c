package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Source enumerates the supported upstream listings.
type Source string

const (
	SourceReddit      Source = "reddit"
	SourceHackerNews  Source = "hackernews"
	SourceResearchHub Source = "researchhub"
	SourceFutureTools Source = "futuretools"
)

// Sources lists every known source in declaration order.
func Sources() []Source {
	return []Source{SourceReddit, SourceHackerNews, SourceResearchHub, SourceFutureTools}
}

// ParseSource maps a configured name onto the closed Source set.
func ParseSource(name string) (Source, error) {
	candidate := Source(strings.ToLower(strings.TrimSpace(name)))
	for _, s := range Sources() {
		if s == candidate {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", name)
}

func (s Source) String() string {
	return string(s)
}

// ItemMetadata is a single listing entry bounded to the requested window.
type ItemMetadata struct {
	Title           string
	Source          Source
	URL             *url.URL
	PublishedAt     time.Time
	Score           int
	Context         map[string]string
	RelevanceReason string
}

// WithReason returns a copy carrying the relevance explanation.
func (m ItemMetadata) WithReason(reason string) ItemMetadata {
	m.RelevanceReason = reason
	return m
}

// Link renders the URL or an empty string when absent.
func (m ItemMetadata) Link() string {
	if m.URL == nil {
		return ""
	}
	return m.URL.String()
}

// ItemSummary pairs metadata with a summary text.
type ItemSummary struct {
	Metadata ItemMetadata
	Summary  string
}
