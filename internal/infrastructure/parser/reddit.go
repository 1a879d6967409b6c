package parser

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/infrastructure/web"
	"NewsDigest/internal/resilience"
	"NewsDigest/internal/scanner"
)

const (
	redditPublicURL  = "https://www.reddit.com"
	redditOAuthURL   = "https://oauth.reddit.com"
	redditTokenURL   = "https://www.reddit.com/api/v1/access_token"
	redditPageLimit  = 100
	subredditContext = "subreddit"
)

// RedditScanner reads a subreddit's "new" listing through the after-cursor.
type RedditScanner struct {
	client  *web.Client
	baseURL string
	delay   resilience.DelayRange
	logger  *zap.Logger
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title      string  `json:"title"`
	Subreddit  string  `json:"subreddit"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	IsSelf     bool    `json:"is_self"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

// NewRedditScanner uses baseURL for listings; an empty value means the public host.
func NewRedditScanner(client *web.Client, baseURL string, delay resilience.DelayRange, logger *zap.Logger) *RedditScanner {
	if baseURL == "" {
		baseURL = redditPublicURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedditScanner{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		delay:   delay,
		logger:  logger,
	}
}

// NewRedditOAuthScanner authenticates with application-only credentials against the OAuth host.
func NewRedditOAuthScanner(ctx context.Context, client *web.Client, clientID, clientSecret string, timeout time.Duration, delay resilience.DelayRange, logger *zap.Logger) *RedditScanner {
	creds := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     redditTokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	httpClient := creds.Client(ctx)
	if timeout > 0 {
		httpClient.Timeout = timeout
	}
	return NewRedditScanner(client.WithHTTPClient(httpClient), redditOAuthURL, delay, logger)
}

// Name identifies the strategy inside the registry.
func (r *RedditScanner) Name() domain.Source {
	return domain.SourceReddit
}

// Scan pages through /r/{subspace}/new until a post older than the window or the last page.
func (r *RedditScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.ItemMetadata, error) {
	subreddit := strings.TrimSpace(req.Subspace)
	if subreddit == "" {
		return nil, fmt.Errorf("reddit scan requires a subreddit")
	}
	r.logger.Info("fetching subreddit",
		zap.String("subreddit", subreddit),
		zap.Time("since", req.Window.Since),
		zap.Time("until", req.Window.Until))

	var (
		results []domain.ItemMetadata
		after   string
	)
	for {
		var listing redditListing
		if err := r.client.GetJSON(ctx, r.listingURL(subreddit, after), &listing); err != nil {
			return nil, fmt.Errorf("subreddit %s: %w", subreddit, err)
		}

		stop := false
		for _, child := range listing.Data.Children {
			item, err := r.toMetadata(child.Data, subreddit)
			if err != nil {
				return nil, err
			}
			decision := scanner.Decide(item.PublishedAt, req.Window)
			if decision == scanner.Stop {
				stop = true
				break
			}
			if decision == scanner.Accept {
				results = append(results, item)
			}
		}

		after = listing.Data.After
		if stop || after == "" || len(listing.Data.Children) == 0 {
			break
		}
		if err := resilience.Sleep(ctx, r.delay); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func (r *RedditScanner) listingURL(subreddit, after string) string {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(redditPageLimit))
	query.Set("raw_json", "1")
	if after != "" {
		query.Set("after", after)
	}
	return fmt.Sprintf("%s/r/%s/new.json?%s", r.baseURL, url.PathEscape(subreddit), query.Encode())
}

func (r *RedditScanner) toMetadata(post redditPost, subreddit string) (domain.ItemMetadata, error) {
	if post.CreatedUTC <= 0 {
		return domain.ItemMetadata{}, invalidElement("reddit post %q without created_utc", post.Title)
	}

	link := post.URL
	if post.IsSelf || link == "" {
		link = redditPublicURL + post.Permalink
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return domain.ItemMetadata{}, invalidElement("reddit post url %q: %v", link, err)
	}

	name := post.Subreddit
	if name == "" {
		name = subreddit
	}

	sec, frac := math.Modf(post.CreatedUTC)
	return domain.ItemMetadata{
		Title:       strings.TrimSpace(post.Title),
		Source:      domain.SourceReddit,
		URL:         parsed,
		PublishedAt: time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(),
		Score:       post.Score,
		Context:     map[string]string{subredditContext: name},
	}, nil
}
