package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/resilience"
	"NewsDigest/internal/scanner"
)

func redditPage(after string, posts ...map[string]any) map[string]any {
	children := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		children = append(children, map[string]any{"kind": "t3", "data": p})
	}
	return map[string]any{"data": map[string]any{"after": after, "children": children}}
}

func TestRedditScannerPagesThroughAfterCursor(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	var (
		mu       sync.Mutex
		afters   []string
		limits   []string
		overread bool
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/golang/new.json" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		afters = append(afters, r.URL.Query().Get("after"))
		limits = append(limits, r.URL.Query().Get("limit"))
		mu.Unlock()

		var page map[string]any
		switch r.URL.Query().Get("after") {
		case "":
			page = redditPage("t3_b",
				map[string]any{"title": "Future", "created_utc": float64(until.Add(time.Hour).Unix()), "url": "https://x.example/f"},
				map[string]any{"title": "Self post", "subreddit": "golang", "is_self": true,
					"permalink": "/r/golang/comments/abc/self_post/", "score": 12, "created_utc": float64(until.Add(-time.Hour).Unix())},
			)
		case "t3_b":
			page = redditPage("t3_d",
				map[string]any{"title": "Link post", "url": "https://blog.example/go", "score": 3, "created_utc": float64(since.Unix())},
				map[string]any{"title": "Old", "url": "https://x.example/o", "created_utc": float64(since.Add(-time.Second).Unix())},
			)
		default:
			overread = true
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	reddit := NewRedditScanner(testClient(), server.URL, resilience.DelayRange{}, nil)
	items, err := reddit.Scan(context.Background(), scanner.Request{
		Window:   mustWindow(t, since, until),
		Subspace: "golang",
	})
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "Self post", items[0].Title)
	assert.Equal(t, 12, items[0].Score)
	assert.Equal(t, "https://www.reddit.com/r/golang/comments/abc/self_post/", items[0].Link())
	assert.Equal(t, map[string]string{"subreddit": "golang"}, items[0].Context)

	assert.Equal(t, "Link post", items[1].Title)
	assert.Equal(t, "https://blog.example/go", items[1].Link())
	assert.Equal(t, "golang", items[1].Context["subreddit"], "falls back to the requested subreddit")
	assert.True(t, items[1].PublishedAt.Equal(since))

	assert.Equal(t, []string{"", "t3_b"}, afters)
	assert.Equal(t, []string{"100", "100"}, limits)
	assert.False(t, overread, "no page past the stopping post")
}

func TestRedditScannerRequiresSubreddit(t *testing.T) {
	t.Parallel()

	reddit := NewRedditScanner(testClient(), "http://127.0.0.1:1", resilience.DelayRange{}, nil)
	_, err := reddit.Scan(context.Background(), scanner.Request{Window: mustWindow(t, time.Unix(0, 0), time.Now())})
	require.Error(t, err)
}

func TestRedditScannerRejectsPostWithoutTimestamp(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(redditPage("", map[string]any{"title": "No time", "url": "https://x.example"}))
	}))
	defer server.Close()

	reddit := NewRedditScanner(testClient(), server.URL, resilience.DelayRange{}, nil)
	_, err := reddit.Scan(context.Background(), scanner.Request{
		Window:   mustWindow(t, time.Unix(0, 0), time.Now()),
		Subspace: "golang",
	})
	require.ErrorIs(t, err, ErrInvalidElement)
}
