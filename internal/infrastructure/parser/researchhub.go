package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/infrastructure/web"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/resilience"
	"NewsDigest/internal/scanner"
)

const (
	researchHubAPIURL   = "https://backend.researchhub.com/api/researchhub_unified_document/get_unified_documents/"
	researchHubPaperURL = "https://www.researchhub.com/paper"
	backupKeyTimeForm   = "2006-01-02T15-04-05"
)

// ResearchHubScanner pages through the unified-documents feed, newest first.
type ResearchHubScanner struct {
	client  *web.Client
	store   ports.BackupStore
	listURL string
	delay   resilience.DelayRange
	logger  *zap.Logger
}

var _ scanner.SummaryScanner = (*ResearchHubScanner)(nil)

type researchHubPage struct {
	Results []researchHubResult `json:"results"`
}

type researchHubResult struct {
	CreatedDate string          `json:"created_date"`
	Score       float64         `json:"score"`
	Documents   json.RawMessage `json:"documents"`
}

type researchHubDocument struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Abstract string `json:"abstract"`
	File     string `json:"file"`
}

// NewResearchHubScanner reads from listURL (the public API when empty); store may be nil.
func NewResearchHubScanner(client *web.Client, store ports.BackupStore, listURL string, delay resilience.DelayRange, logger *zap.Logger) *ResearchHubScanner {
	if listURL == "" {
		listURL = researchHubAPIURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchHubScanner{client: client, store: store, listURL: listURL, delay: delay, logger: logger}
}

// Name identifies the strategy inside the registry.
func (r *ResearchHubScanner) Name() domain.Source {
	return domain.SourceResearchHub
}

// Scan returns the metadata part of ScanSummaries.
func (r *ResearchHubScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.ItemMetadata, error) {
	summaries, err := r.ScanSummaries(ctx, req)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ItemMetadata, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, s.Metadata)
	}
	return items, nil
}

// ScanSummaries walks page 1, 2, ... until a document older than the window, an empty page or a 404.
// Every page body is persisted in the backup store before it is parsed.
func (r *ResearchHubScanner) ScanSummaries(ctx context.Context, req scanner.Request) ([]domain.ItemSummary, error) {
	var results []domain.ItemSummary

	for page := 1; ; page++ {
		pageURL, err := r.pageURL(page)
		if err != nil {
			return nil, err
		}
		r.logger.Info("fetching page", zap.Int("page", page))

		key := fmt.Sprintf("researchhub/%s_%s/page-%d",
			req.Window.Since.Format(backupKeyTimeForm), req.Window.Until.Format(backupKeyTimeForm), page)
		body, err := storage.Memoize(ctx, r.store, key, func(ctx context.Context) ([]byte, error) {
			return r.client.Get(ctx, pageURL)
		})
		var statusErr *web.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("researchhub page %d: %w", page, err)
		}

		var decoded researchHubPage
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("decode researchhub page %d: %w", page, err)
		}
		if len(decoded.Results) == 0 {
			break
		}

		stop := false
		for _, result := range decoded.Results {
			summary, err := r.toSummary(result)
			if err != nil {
				return nil, err
			}
			decision := scanner.Decide(summary.Metadata.PublishedAt, req.Window)
			if decision == scanner.Stop {
				stop = true
				break
			}
			if decision == scanner.Accept {
				if summary.Metadata.Title == "" {
					r.logger.Debug("skipping untitled document", zap.Time("created", summary.Metadata.PublishedAt))
					continue
				}
				results = append(results, summary)
			}
		}
		if stop {
			break
		}
		if err := resilience.Sleep(ctx, r.delay); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func (r *ResearchHubScanner) pageURL(page int) (string, error) {
	parsed, err := url.Parse(r.listURL)
	if err != nil {
		return "", fmt.Errorf("invalid researchhub url %s: %w", r.listURL, err)
	}

	query := parsed.Query()
	query.Set("ordering", "new")
	query.Set("time", "all")
	query.Set("type", "all")
	query.Set("page", strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (r *ResearchHubScanner) toSummary(result researchHubResult) (domain.ItemSummary, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, result.CreatedDate)
	if err != nil {
		return domain.ItemSummary{}, invalidElement("researchhub created_date %q: %v", result.CreatedDate, err)
	}

	doc, err := firstDocument(result.Documents)
	if err != nil {
		return domain.ItemSummary{}, err
	}

	link := doc.File
	if link == "" {
		link = fmt.Sprintf("%s/%d/%s", researchHubPaperURL, doc.ID, doc.Slug)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return domain.ItemSummary{}, invalidElement("researchhub url %q: %v", link, err)
	}

	return domain.ItemSummary{
		Metadata: domain.ItemMetadata{
			Title:       strings.TrimSpace(doc.Title),
			Source:      domain.SourceResearchHub,
			URL:         parsed,
			PublishedAt: createdAt.UTC(),
			Score:       int(math.Round(result.Score)),
		},
		Summary: plainText(doc.Abstract),
	}, nil
}

// firstDocument accepts both the object and the array shape of "documents".
func firstDocument(raw json.RawMessage) (researchHubDocument, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return researchHubDocument{}, invalidElement("researchhub result without documents")
	}

	if strings.HasPrefix(trimmed, "[") {
		var docs []researchHubDocument
		if err := json.Unmarshal(raw, &docs); err != nil {
			return researchHubDocument{}, invalidElement("researchhub documents: %v", err)
		}
		if len(docs) == 0 {
			return researchHubDocument{}, invalidElement("researchhub result with empty documents")
		}
		return docs[0], nil
	}

	var doc researchHubDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return researchHubDocument{}, invalidElement("researchhub document: %v", err)
	}
	return doc, nil
}

func plainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
