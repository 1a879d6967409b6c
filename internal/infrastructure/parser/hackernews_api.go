package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/infrastructure/web"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/scanner"
)

const (
	hackerNewsAPIBaseURL     = "https://hacker-news.firebaseio.com/v0"
	defaultMaxJump           = 100
	defaultMaxItemMisses     = 4
	defaultAPIRequestsPerSec = 10
)

var errNullItem = errors.New("item body is null")

// HackerNewsAPIOptions tunes the ID scan.
type HackerNewsAPIOptions struct {
	BaseURL string
	// MaxJump caps how many IDs one step may skip while entries are newer than the window.
	MaxJump int
	// MaxMisses is the number of consecutive failed lookups tolerated before aborting.
	MaxMisses         int
	RequestsPerSecond float64
}

// HackerNewsAPI scans item IDs downward from the newest one.
type HackerNewsAPI struct {
	client    *web.Client
	store     ports.BackupStore
	limiter   *rate.Limiter
	baseURL   string
	maxJump   int
	maxMisses int
	logger    *zap.Logger
}

type hackerNewsItem struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Score   int    `json:"score"`
	Time    int64  `json:"time"`
	Deleted bool   `json:"deleted"`
	Dead    bool   `json:"dead"`
}

func (i hackerNewsItem) isStory() bool {
	return i.Type == "story" && !i.Deleted && !i.Dead && strings.TrimSpace(i.Title) != ""
}

// NewHackerNewsAPI applies defaults for zero options; store may be nil.
func NewHackerNewsAPI(client *web.Client, store ports.BackupStore, opts HackerNewsAPIOptions, logger *zap.Logger) *HackerNewsAPI {
	if opts.BaseURL == "" {
		opts.BaseURL = hackerNewsAPIBaseURL
	}
	if opts.MaxJump <= 0 {
		opts.MaxJump = defaultMaxJump
	}
	if opts.MaxMisses <= 0 {
		opts.MaxMisses = defaultMaxItemMisses
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultAPIRequestsPerSec
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HackerNewsAPI{
		client:    client,
		store:     store,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		maxJump:   opts.MaxJump,
		maxMisses: opts.MaxMisses,
		logger:    logger,
	}
}

// Name identifies the strategy inside the registry.
func (h *HackerNewsAPI) Name() domain.Source {
	return domain.SourceHackerNews
}

// Scan walks IDs from the newest item down until an item older than the window appears.
func (h *HackerNewsAPI) Scan(ctx context.Context, req scanner.Request) ([]domain.ItemMetadata, error) {
	maxID, err := h.maxItem(ctx)
	if err != nil {
		return nil, err
	}
	h.logger.Info("scanning items", zap.Int("max_id", maxID))

	var (
		results []domain.ItemMetadata
		misses  int
	)
	for id := maxID; id > 0; {
		item, err := h.item(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			misses++
			h.logger.Warn("item lookup failed", zap.Int("id", id), zap.Int("misses", misses), zap.Error(err))
			if misses > h.maxMisses {
				return nil, fmt.Errorf("%w: last id %d: %w", ErrTooManyMisses, id, err)
			}
			id--
			continue
		}
		misses = 0

		publishedAt := time.Unix(item.Time, 0).UTC()
		switch scanner.Decide(publishedAt, req.Window) {
		case scanner.Skip:
			id -= JumpSize(publishedAt, req.Window.Until, h.maxJump)
		case scanner.Stop:
			return results, nil
		case scanner.Accept:
			if item.isStory() {
				results = append(results, h.toMetadata(item, publishedAt))
			}
			id--
		}
	}

	return results, nil
}

// JumpSize is the ID step taken from an item published at t while t is after until.
// It shrinks as t approaches until and is 1 once they are less than two minutes apart.
func JumpSize(t, until time.Time, maxJump int) int {
	if maxJump < 1 {
		maxJump = 1
	}
	minutes := int(t.Sub(until) / time.Minute)
	switch {
	case minutes < 1:
		return 1
	case minutes > maxJump:
		return maxJump
	default:
		return minutes
	}
}

func (h *HackerNewsAPI) maxItem(ctx context.Context) (int, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	body, err := h.client.Get(ctx, h.baseURL+"/maxitem.json")
	if err != nil {
		return 0, fmt.Errorf("max item: %w", err)
	}
	id, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("decode max item %q: %w", body, err)
	}
	return id, nil
}

func (h *HackerNewsAPI) item(ctx context.Context, id int) (hackerNewsItem, error) {
	key := fmt.Sprintf("hackernews/item/%d", id)
	body, err := storage.Memoize(ctx, h.store, key, func(ctx context.Context) ([]byte, error) {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		payload, err := h.client.Get(ctx, fmt.Sprintf("%s/item/%d.json", h.baseURL, id))
		if err != nil {
			return nil, err
		}
		// Not persisted: the item may simply not be visible yet.
		if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
			return nil, errNullItem
		}
		return payload, nil
	})
	if err != nil {
		return hackerNewsItem{}, err
	}

	var item hackerNewsItem
	if err := json.Unmarshal(body, &item); err != nil {
		return hackerNewsItem{}, fmt.Errorf("decode item %d: %w", id, err)
	}
	if item.Time == 0 {
		return hackerNewsItem{}, fmt.Errorf("item %d has no timestamp", id)
	}
	return item, nil
}

func (h *HackerNewsAPI) toMetadata(item hackerNewsItem, publishedAt time.Time) domain.ItemMetadata {
	link := item.URL
	if link == "" {
		link = fmt.Sprintf("%s/item?id=%d", hackerNewsBaseURL, item.ID)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		h.logger.Debug("unparsable story url", zap.Int("id", item.ID), zap.String("url", link))
		parsed, _ = url.Parse(fmt.Sprintf("%s/item?id=%d", hackerNewsBaseURL, item.ID))
	}

	return domain.ItemMetadata{
		Title:       strings.TrimSpace(item.Title),
		Source:      domain.SourceHackerNews,
		URL:         parsed,
		PublishedAt: publishedAt,
		Score:       item.Score,
	}
}
