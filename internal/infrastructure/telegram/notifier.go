package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"NewsDigest/internal/ports"
)

const (
	defaultEndpoint = "https://api.telegram.org"
	// MaxMessageLen is the Bot API limit for one message, in characters.
	MaxMessageLen = 4096
)

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	endpoint string
	botToken string
	chatID   string
	client   *http.Client
	logger   *zap.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier; an empty endpoint means the public Bot API.
func NewNotifier(endpoint, botToken, chatID string, logger *zap.Logger) *Notifier {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// PublishDigest posts the digest as plain text, split into parts the API accepts.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	parts := Split(digest, MaxMessageLen)
	for i, part := range parts {
		if err := n.send(ctx, part); err != nil {
			return fmt.Errorf("telegram part %d/%d: %w", i+1, len(parts), err)
		}
	}
	n.logger.Info("digest delivered", zap.Int("parts", len(parts)))
	return nil
}

func (n *Notifier) send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.endpoint, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}

// Split cuts text into parts of at most limit characters, preferring line breaks.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// byteOffset returns the byte index just after the first n runes.
func byteOffset(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
