package web

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"NewsDigest/internal/ports"
)

// PageReader turns an article URL into plain text for summarization.
type PageReader struct {
	client *Client
	logger *zap.Logger
}

var _ ports.PageReader = (*PageReader)(nil)

func NewPageReader(client *Client, logger *zap.Logger) *PageReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageReader{client: client, logger: logger}
}

// ReadText prefers the readability extraction and falls back to the whole body text.
func (r *PageReader) ReadText(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url %s: %w", pageURL, err)
	}

	body, err := r.client.Get(ctx, pageURL)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err == nil {
		if text := collapseSpace(article.TextContent); text != "" {
			return text, nil
		}
	} else {
		r.logger.Debug("readability failed, using body text", zap.String("url", pageURL), zap.Error(err))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	text := collapseSpace(doc.Find("body").Text())
	if text == "" {
		return "", fmt.Errorf("no readable text at %s", pageURL)
	}
	return text, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
