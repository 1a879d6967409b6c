package parser

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/infrastructure/web"
	"NewsDigest/internal/resilience"
	"NewsDigest/internal/scanner"
)

const (
	hackerNewsBaseURL = "https://news.ycombinator.com"
	hackerNewsAgeForm = "2006-01-02T15:04:05"
)

// HackerNewsScraper walks the "newest" listing page by page through its "More" link.
type HackerNewsScraper struct {
	client   *web.Client
	startURL string
	delay    resilience.DelayRange
	logger   *zap.Logger
}

// NewHackerNewsScraper starts from baseURL/newest; an empty baseURL means the public site.
func NewHackerNewsScraper(client *web.Client, baseURL string, delay resilience.DelayRange, logger *zap.Logger) *HackerNewsScraper {
	if baseURL == "" {
		baseURL = hackerNewsBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HackerNewsScraper{
		client:   client,
		startURL: strings.TrimSuffix(baseURL, "/") + "/newest",
		delay:    delay,
		logger:   logger,
	}
}

// Name identifies the strategy inside the registry.
func (h *HackerNewsScraper) Name() domain.Source {
	return domain.SourceHackerNews
}

// Scan follows "More" links until an entry older than the window shows up or the links run out.
func (h *HackerNewsScraper) Scan(ctx context.Context, req scanner.Request) ([]domain.ItemMetadata, error) {
	var results []domain.ItemMetadata
	pageURL := h.startURL

	for pageURL != "" {
		h.logger.Info("fetching page", zap.String("url", pageURL))
		doc, err := h.client.Document(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("hackernews page %s: %w", pageURL, err)
		}

		page, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("parse page url: %w", err)
		}

		items, stop, err := extractHackerNewsRows(doc, page, req.Window)
		if err != nil {
			return nil, err
		}
		results = append(results, items...)
		if stop {
			break
		}

		pageURL = nextHackerNewsPage(doc, page)
		if pageURL == "" {
			break
		}
		if err := resilience.Sleep(ctx, h.delay); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func extractHackerNewsRows(doc *goquery.Document, page *url.URL, w scanner.Window) ([]domain.ItemMetadata, bool, error) {
	var (
		collected []domain.ItemMetadata
		stop      bool
		rowErr    error
	)

	doc.Find("tr.athing").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		item, err := parseHackerNewsRow(row, page)
		if err != nil {
			rowErr = err
			return false
		}

		switch scanner.Decide(item.PublishedAt, w) {
		case scanner.Skip:
		case scanner.Accept:
			collected = append(collected, item)
		case scanner.Stop:
			stop = true
			return false
		}
		return true
	})

	if rowErr != nil {
		return nil, false, rowErr
	}
	return collected, stop, nil
}

func parseHackerNewsRow(row *goquery.Selection, page *url.URL) (domain.ItemMetadata, error) {
	link := row.Find("span.titleline > a").First()
	if link.Length() == 0 {
		return domain.ItemMetadata{}, invalidElement("hackernews row without title link")
	}

	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return domain.ItemMetadata{}, invalidElement("hackernews title link without href")
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return domain.ItemMetadata{}, invalidElement("hackernews link %q: %v", href, err)
	}

	subtext := row.NextFiltered("tr")
	age := subtext.Find("span.age").First()
	stamp, ok := age.Attr("title")
	if !ok {
		return domain.ItemMetadata{}, invalidElement("hackernews row without age")
	}
	// The attribute may carry a trailing unix timestamp: "2024-01-01T12:00:00 1704110400".
	fields := strings.Fields(stamp)
	if len(fields) == 0 {
		return domain.ItemMetadata{}, invalidElement("hackernews empty age")
	}
	publishedAt, err := time.ParseInLocation(hackerNewsAgeForm, fields[0], time.UTC)
	if err != nil {
		return domain.ItemMetadata{}, invalidElement("hackernews age %q: %v", stamp, err)
	}

	return domain.ItemMetadata{
		Title:       strings.TrimSpace(link.Text()),
		Source:      domain.SourceHackerNews,
		URL:         page.ResolveReference(ref),
		PublishedAt: publishedAt,
		Score:       parseLeadingInt(subtext.Find("span.score").First().Text()),
	}, nil
}

func nextHackerNewsPage(doc *goquery.Document, page *url.URL) string {
	more := doc.Find("a.morelink").First()
	if more.Length() == 0 {
		more = doc.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.TrimSpace(s.Text()) == "More"
		}).First()
	}

	href, ok := more.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return page.ResolveReference(ref).String()
}

// parseLeadingInt reads "123 points" as 123; anything unparsable is 0.
func parseLeadingInt(text string) int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}
