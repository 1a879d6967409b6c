package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/filter"
	"NewsDigest/internal/infrastructure/llm"
	"NewsDigest/internal/infrastructure/parser"
	"NewsDigest/internal/infrastructure/scheduler"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/infrastructure/telegram"
	"NewsDigest/internal/infrastructure/web"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/prompts"
	"NewsDigest/internal/resilience"
	"NewsDigest/internal/scanner"
	"NewsDigest/internal/summarize"
	"NewsDigest/internal/usecase"
)

// Source options understood by the wiring.
const (
	optionEndpoint = "endpoint"
	optionMode     = "mode"

	hackerNewsModeAPI = "api"
)

// Backup drivers.
const (
	BackupFile     = "file"
	BackupSQLite   = "sqlite"
	BackupPostgres = "postgres"
	BackupNone     = "none"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *zap.Logger
	job     *usecase.DigestJob
	metrics *metrics.Metrics
	closers []io.Closer
}

// New builds every adapter the configuration asks for. Call Close when done.
func New(ctx context.Context, cfg config.Config, baseLogger *zap.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	store, err := a.openBackup(ctx)
	if err != nil {
		return nil, err
	}

	client := web.NewClient(web.Options{
		UserAgent: cfg.Web.UserAgent,
		Timeout:   cfg.Web.Timeout,
		Retry: resilience.Policy{
			Attempts: cfg.Web.Retries,
			Delay:    resilience.DelayRange{Min: cfg.Web.DelayMin, Max: cfg.Web.DelayMax},
		},
	}, baseLogger.With(zap.String("component", "web")))

	registry := a.buildRegistry(ctx, client, store)
	source := parser.NewStrategySource(registry, baseLogger.With(zap.String("component", "source")))

	metadataTargets, err := parser.Targets(cfg.Sources.WithoutSummary)
	if err != nil {
		return nil, a.fail(err)
	}
	summaryTargets, err := parser.Targets(cfg.Sources.WithSummary)
	if err != nil {
		return nil, a.fail(err)
	}

	promptSet, err := prompts.Load(cfg.Digest.PromptDir)
	if err != nil {
		return nil, a.fail(err)
	}

	filterEngine, err := a.buildFilter(promptSet)
	if err != nil {
		return nil, a.fail(err)
	}
	summarizer, err := a.buildSummarizer(client, promptSet)
	if err != nil {
		return nil, a.fail(err)
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		notifier = telegram.NewNotifier(tg.Endpoint, tg.BotToken, tg.ChatID, baseLogger.With(zap.String("component", "telegram")))
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:          source,
		Filter:          filterEngine,
		Summarizer:      summarizer,
		Notifier:        notifier,
		Metrics:         a.metrics,
		Logger:          baseLogger.With(zap.String("component", "pipeline")),
		MetadataTargets: metadataTargets,
		SummaryTargets:  summaryTargets,
		PerSourceLimit:  cfg.Sources.ArticlesPerSourceLimit,
		Concurrency:     cfg.Digest.Concurrency,
	})

	var marker ports.RunMarker
	if cfg.Digest.StateFile != "" {
		marker = storage.NewRunMarker(cfg.Digest.StateFile)
	}
	a.job = usecase.NewDigestJob(pipeline, marker, cfg.Digest.OutputDir, baseLogger.With(zap.String("component", "job")))

	return a, nil
}

// RunOnce writes a single digest and returns its path.
func (a *Application) RunOnce(ctx context.Context, opts usecase.RunOptions) (string, error) {
	return a.job.Execute(ctx, opts)
}

// Schedule runs the digest on the configured cron expression and serves /metrics
// until ctx is cancelled.
func (a *Application) Schedule(ctx context.Context) error {
	driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(),
		a.logger.With(zap.String("component", "cron")))
	if err != nil {
		return err
	}
	sched := usecase.NewScheduler(driver, a.job, a.logger.With(zap.String("component", "scheduler")))

	var server *http.Server
	if addr := a.cfg.Scheduler.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		a.logger.Info("serving metrics", zap.String("addr", addr))
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduler running", zap.Time("next", driver.Next()))
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	return sched.Stop(shutdownCtx)
}

// Close releases the backup database, if any.
func (a *Application) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) fail(err error) error {
	_ = a.Close()
	return err
}

func (a *Application) openBackup(ctx context.Context) (ports.BackupStore, error) {
	cfg := a.cfg.Backup
	switch strings.ToLower(cfg.Driver) {
	case "", BackupNone:
		return nil, nil
	case BackupFile:
		return storage.NewFileStore(cfg.Dir), nil
	case BackupSQLite, BackupPostgres:
		store, err := storage.OpenSQLStore(ctx, storage.Dialect(strings.ToLower(cfg.Driver)), cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open backup store: %w", err)
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backup driver %q", cfg.Driver)
	}
}

func (a *Application) buildRegistry(ctx context.Context, client *web.Client, store ports.BackupStore) *scanner.Registry {
	cfg := a.cfg
	delay := resilience.DelayRange{Min: cfg.Web.DelayMin, Max: cfg.Web.DelayMax}
	component := func(name string) *zap.Logger {
		return a.logger.With(zap.String("component", "scanner."+name))
	}

	registry := scanner.NewRegistry()

	redditEndpoint := a.sourceOption(domain.SourceReddit, optionEndpoint)
	if cfg.Secrets.RedditClientID != "" && cfg.Secrets.RedditClientSecret != "" && redditEndpoint == "" {
		registry.Register(parser.NewRedditOAuthScanner(ctx, client,
			cfg.Secrets.RedditClientID, cfg.Secrets.RedditClientSecret, cfg.Web.Timeout, delay, component("reddit")))
	} else {
		registry.Register(parser.NewRedditScanner(client, redditEndpoint, delay, component("reddit")))
	}

	hnEndpoint := a.sourceOption(domain.SourceHackerNews, optionEndpoint)
	if a.sourceOption(domain.SourceHackerNews, optionMode) == hackerNewsModeAPI {
		registry.Register(parser.NewHackerNewsAPI(client, store, parser.HackerNewsAPIOptions{
			BaseURL:           hnEndpoint,
			RequestsPerSecond: cfg.Web.RequestsPerSecond,
		}, component("hackernews")))
	} else {
		registry.Register(parser.NewHackerNewsScraper(client, hnEndpoint, delay, component("hackernews")))
	}

	registry.Register(parser.NewResearchHubScanner(client, store,
		a.sourceOption(domain.SourceResearchHub, optionEndpoint), delay, component("researchhub")))
	registry.Register(parser.NewFutureToolsScanner(client,
		a.sourceOption(domain.SourceFutureTools, optionEndpoint), component("futuretools")))

	return registry
}

// sourceOption reads an option of the first configured entry for source.
func (a *Application) sourceOption(source domain.Source, key string) string {
	all := append(append([]config.SourceConfig{}, a.cfg.Sources.WithoutSummary...), a.cfg.Sources.WithSummary...)
	for _, sc := range all {
		if parsed, err := domain.ParseSource(sc.Name); err == nil && parsed == source {
			return sc.Options[key]
		}
	}
	return ""
}

func (a *Application) buildFilter(promptSet *prompts.Set) (*filter.Engine, error) {
	fc := a.cfg.LLM.Filter
	logger := a.logger.With(zap.String("component", "filter"))

	completer, err := a.completer(fc.Provider, fc.Name, fc.Endpoint, logger)
	if err != nil {
		return nil, err
	}

	pricing, known := llm.LookupPricing(fc.Name)
	switch {
	case fc.HasRates():
		pricing = llm.PricingPerMillion(fc.PromptCostPerMillionUSD, fc.CompletionCostPerMillionUSD, pricing.ContextSize)
	case !known:
		return nil, fmt.Errorf("no pricing for filter model %s: set llm.filterModel.promptCostPerMillionUsd and completionCostPerMillionUsd", fc.Name)
	}
	costs, err := filter.NewCostCalculator(filter.Rates{
		PromptPerToken:     pricing.PromptPerToken,
		CompletionPerToken: pricing.CompletionPerToken,
	}, pricing.ContextSize, fc.ContextSizeLimit, fc.PromptToCompletionLenRatio)
	if err != nil {
		return nil, fmt.Errorf("filter model %s: %w", fc.Name, err)
	}

	var tokens ports.TokenCounter
	if counter, err := llm.NewTiktokenCounter(fc.Name); err == nil {
		tokens = counter
	} else {
		logger.Warn("tiktoken unavailable, approximating token counts", zap.Error(err))
		tokens = llm.ApproxCounter{}
	}

	return filter.New(filter.Deps{
		Completer: completer,
		Tokens:    tokens,
		Costs:     costs,
		Ceiling:   decimal.NewFromFloat(fc.QueryCostLimitUSD),
		Prompts:   promptSet,
		Logger:    logger,
	})
}

func (a *Application) buildSummarizer(client *web.Client, promptSet *prompts.Set) (*summarize.Engine, error) {
	sc := a.cfg.LLM.Summary
	logger := a.logger.With(zap.String("component", "summarize"))

	completer, err := a.completer(sc.Provider, sc.Name, sc.Endpoint, logger)
	if err != nil {
		return nil, err
	}

	return summarize.New(summarize.Deps{
		Completer: completer,
		Pages:     web.NewPageReader(client, logger),
		Prompts:   promptSet,
		Budget: summarize.Budget{
			CostPer1kChars: decimal.NewFromFloat(sc.CostPer1kCharactersUSD),
			Ratio:          sc.PromptToCompletionLenRatio,
			Ceiling:        decimal.NewFromFloat(sc.QueryCostLimitUSD),
		},
		MaxTokens: sc.MaxTokens,
		Logger:    logger,
	})
}

func (a *Application) completer(provider, model, endpoint string, logger *zap.Logger) (ports.Completer, error) {
	switch provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIClient(endpoint, model, a.cfg.Secrets.OpenAIAPIKey, logger), nil
	case config.ProviderAnthropic:
		return llm.NewAnthropicClient(a.cfg.Secrets.AnthropicAPIKey, model, endpoint, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
