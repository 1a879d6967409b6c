package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPrefersLineBreaks(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Split("  ", 10))
	assert.Equal(t, []string{"short"}, Split("short", 10))
	assert.Equal(t, []string{"aaaa\nbbb", "cccc"}, Split("aaaa\nbbb\ncccc", 9))
	assert.Equal(t, []string{"abcde", "fghij", "k"}, Split("abcdefghijk", 5))

	parts := Split(strings.Repeat("żółw ", 2000), MaxMessageLen)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), MaxMessageLen)
		assert.True(t, utf8.ValidString(p))
	}
}

func TestPublishDigestSendsEveryPart(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		texts []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "42", r.PostForm.Get("chat_id"))
		mu.Lock()
		texts = append(texts, r.PostForm.Get("text"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewNotifier(server.URL, "token", "42", nil)
	digest := strings.Repeat("line of digest\n", 600)
	require.NoError(t, n.PublishDigest(context.Background(), digest))

	require.Len(t, texts, 3)
	assert.Equal(t, strings.TrimSpace(digest), strings.Join(texts, "\n"))
}

func TestPublishDigestReportsAPIErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewNotifier(server.URL, "token", "42", nil).PublishDigest(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	err = NewNotifier(server.URL, "", "", nil).PublishDigest(context.Background(), "hello")
	require.Error(t, err)
}
