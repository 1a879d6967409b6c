package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/scanner"
)

// ItemSource pulls window-bounded items for one configured target.
type ItemSource interface {
	Fetch(ctx context.Context, target scanner.Target, window scanner.Window) ([]domain.ItemMetadata, error)
	FetchSummaries(ctx context.Context, target scanner.Target, window scanner.Window) ([]domain.ItemSummary, error)
}

// BackupStore keeps raw upstream responses so repeated runs skip the network.
type BackupStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
}

// CompletionOptions tunes a single text-generation request.
type CompletionOptions struct {
	// JSON asks the service for a single JSON object as the whole answer.
	JSON      bool
	MaxTokens int
}

// Completer sends a prompt to a text-generation service (OpenAI, Anthropic, etc.).
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// TokenCounter measures prompt size in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// PageReader extracts the readable text of a web page.
type PageReader interface {
	ReadText(ctx context.Context, pageURL string) (string, error)
}

// ItemFilter keeps the items a language model considers relevant.
type ItemFilter interface {
	FilterMetadata(ctx context.Context, items []domain.ItemMetadata) ([]domain.ItemMetadata, error)
	FilterSummaries(ctx context.Context, items []domain.ItemSummary) ([]domain.ItemSummary, error)
}

// Summarizer attaches summaries to items and reports the estimated spend.
type Summarizer interface {
	Summarize(ctx context.Context, items []domain.ItemMetadata) ([]domain.ItemSummary, decimal.Decimal, error)
}

// RunMarker remembers where the last successful run ended.
type RunMarker interface {
	Read() (time.Time, bool, error)
	Write(t time.Time) error
}

// Notifier streams finished digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
