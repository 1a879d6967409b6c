package parser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/infrastructure/web"
	"NewsDigest/internal/scanner"
)

const (
	futureToolsNewsURL  = "https://www.futuretools.io/news"
	futureToolsDateForm = "January 2, 2006"
)

// FutureToolsScanner reads the single news page; the site exposes no scores.
type FutureToolsScanner struct {
	client  *web.Client
	pageURL string
	logger  *zap.Logger
}

// NewFutureToolsScanner reads pageURL, or the public news page when empty.
func NewFutureToolsScanner(client *web.Client, pageURL string, logger *zap.Logger) *FutureToolsScanner {
	if pageURL == "" {
		pageURL = futureToolsNewsURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FutureToolsScanner{client: client, pageURL: pageURL, logger: logger}
}

// Name identifies the strategy inside the registry.
func (f *FutureToolsScanner) Name() domain.Source {
	return domain.SourceFutureTools
}

// Scan reads list items top to bottom and stops at the first one older than the window.
func (f *FutureToolsScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.ItemMetadata, error) {
	f.logger.Info("fetching news page", zap.String("url", f.pageURL))

	doc, err := f.client.Document(ctx, f.pageURL)
	if err != nil {
		return nil, fmt.Errorf("futuretools: %w", err)
	}
	page, err := url.Parse(f.pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	list := doc.Find(`div[role="list"]`).First()
	if list.Length() == 0 {
		return nil, invalidElement("futuretools news list is missing")
	}

	var (
		results []domain.ItemMetadata
		itemErr error
	)
	list.Find(`div[role="listitem"]`).EachWithBreak(func(_ int, entry *goquery.Selection) bool {
		item, err := parseFutureToolsItem(entry, page)
		if err != nil {
			itemErr = err
			return false
		}
		switch scanner.Decide(item.PublishedAt, req.Window) {
		case scanner.Skip:
			return true
		case scanner.Stop:
			return false
		default:
			results = append(results, item)
			return true
		}
	})
	if itemErr != nil {
		return nil, itemErr
	}

	return results, nil
}

// parseFutureToolsItem treats the printed date as UTC midnight.
func parseFutureToolsItem(entry *goquery.Selection, page *url.URL) (domain.ItemMetadata, error) {
	dateDiv := entry.ChildrenFiltered("div").First()
	if dateDiv.Length() == 0 {
		return domain.ItemMetadata{}, invalidElement("futuretools item without date")
	}
	dateText := strings.TrimSpace(dateDiv.Text())
	publishedAt, err := time.ParseInLocation(futureToolsDateForm, dateText, time.UTC)
	if err != nil {
		return domain.ItemMetadata{}, invalidElement("futuretools date %q: %v", dateText, err)
	}

	link := entry.Find("a").First()
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return domain.ItemMetadata{}, invalidElement("futuretools item without link")
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return domain.ItemMetadata{}, invalidElement("futuretools link %q: %v", href, err)
	}

	titleDiv := link.Find("div").First()
	if titleDiv.Length() == 0 {
		return domain.ItemMetadata{}, invalidElement("futuretools link without title")
	}

	return domain.ItemMetadata{
		Title:       strings.TrimSpace(titleDiv.Text()),
		Source:      domain.SourceFutureTools,
		URL:         page.ResolveReference(ref),
		PublishedAt: publishedAt,
		Score:       0,
	}, nil
}
