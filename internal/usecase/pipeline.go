package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/markdown"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/resilience"
	"NewsDigest/internal/scanner"
)

// PipelineDeps wires all driven adapters into the digest pipeline.
type PipelineDeps struct {
	Source     ports.ItemSource
	Filter     ports.ItemFilter
	Summarizer ports.Summarizer
	Notifier   ports.Notifier
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// MetadataTargets are filtered, capped and then summarized by the pipeline.
	MetadataTargets []scanner.Target
	// SummaryTargets ship their own summaries and are only filtered.
	SummaryTargets []scanner.Target
	PerSourceLimit int
	// Concurrency bounds how many targets are processed at once; below 2 means sequential.
	Concurrency int
}

// Pipeline implements the digest workflow.
type Pipeline struct {
	source     ports.ItemSource
	filter     ports.ItemFilter
	summarizer ports.Summarizer
	notifier   ports.Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger

	units       []unit
	limit       int
	concurrency int
}

type unit struct {
	target       scanner.Target
	hasSummaries bool
}

type unitResult struct {
	items   []domain.ItemSummary
	fetched int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	units := make([]unit, 0, len(deps.MetadataTargets)+len(deps.SummaryTargets))
	for _, t := range deps.MetadataTargets {
		units = append(units, unit{target: t})
	}
	for _, t := range deps.SummaryTargets {
		units = append(units, unit{target: t, hasSummaries: true})
	}

	return &Pipeline{
		source:      deps.Source,
		filter:      deps.Filter,
		summarizer:  deps.Summarizer,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logger:      logger,
		units:       units,
		limit:       deps.PerSourceLimit,
		concurrency: max(deps.Concurrency, 1),
	}
}

// Run appends one section per target to outputPath, in configured order.
// A failing target is logged and skipped; only fatal errors end the run early.
func (p *Pipeline) Run(ctx context.Context, window scanner.Window, outputPath string) (err error) {
	defer func() { p.metrics.ObserveRun(err, time.Now()) }()

	if p.source == nil || p.filter == nil {
		return fmt.Errorf("pipeline misconfigured")
	}
	if err := p.openDigest(outputPath, window); err != nil {
		return err
	}
	p.logger.Info("digest run started",
		zap.Time("since", window.Since), zap.Time("until", window.Until),
		zap.String("output", outputPath), zap.Int("targets", len(p.units)))

	sections := make([]string, len(p.units))
	done := make([]chan struct{}, len(p.units))
	for i := range done {
		done[i] = make(chan struct{})
	}

	flushed := make(chan flushResult, 1)
	go func() { flushed <- p.flush(outputPath, sections, done) }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, u := range p.units {
		g.Go(func() error {
			defer close(done[i])
			if gctx.Err() != nil {
				return nil
			}
			section, err := p.runUnit(gctx, u, window)
			sections[i] = section
			return err
		})
	}

	runErr := g.Wait()
	result := <-flushed
	if runErr != nil {
		return runErr
	}
	if result.err != nil {
		return result.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.logger.Info("digest run finished", zap.String("output", outputPath), zap.Int("sections", len(result.written)))
	p.notify(ctx, result.written)
	return nil
}

func (p *Pipeline) runUnit(ctx context.Context, u unit, window scanner.Window) (string, error) {
	label := u.target.Label()
	logger := p.logger.With(zap.String("target", label))
	start := time.Now()

	res, ok, err := resilience.FailGracefully(logger, label, func() (unitResult, error) {
		if u.hasSummaries {
			return p.collectSummaries(ctx, u.target, window)
		}
		return p.collectMetadata(ctx, u.target, window)
	})
	p.metrics.ObserveSource(label, res.fetched, len(res.items), !ok, time.Since(start))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	logger.Info("target done", zap.Int("fetched", res.fetched), zap.Int("selected", len(res.items)))
	return markdown.Section(label, res.items), nil
}

// collectMetadata is fetch, filter, cap, summarize.
func (p *Pipeline) collectMetadata(ctx context.Context, target scanner.Target, window scanner.Window) (unitResult, error) {
	items, err := p.source.Fetch(ctx, target, window)
	if err != nil {
		return unitResult{}, err
	}
	if len(items) == 0 {
		return unitResult{}, nil
	}

	selected, err := p.filter.FilterMetadata(ctx, items)
	if err != nil {
		return unitResult{fetched: len(items)}, err
	}
	if p.limit > 0 && len(selected) > p.limit {
		selected = selected[:p.limit]
	}

	if p.summarizer == nil {
		summaries := make([]domain.ItemSummary, len(selected))
		for i, m := range selected {
			summaries[i] = domain.ItemSummary{Metadata: m}
		}
		return unitResult{items: summaries, fetched: len(items)}, nil
	}

	summaries, cost, err := p.summarizer.Summarize(ctx, selected)
	if err != nil {
		return unitResult{fetched: len(items)}, err
	}
	spend, _ := cost.Float64()
	p.metrics.AddSpend("summary", spend)
	return unitResult{items: summaries, fetched: len(items)}, nil
}

// collectSummaries is fetch, filter for sources that ship their own summaries.
func (p *Pipeline) collectSummaries(ctx context.Context, target scanner.Target, window scanner.Window) (unitResult, error) {
	items, err := p.source.FetchSummaries(ctx, target, window)
	if err != nil {
		return unitResult{}, err
	}
	if len(items) == 0 {
		return unitResult{}, nil
	}

	selected, err := p.filter.FilterSummaries(ctx, items)
	if err != nil {
		return unitResult{fetched: len(items)}, err
	}
	return unitResult{items: selected, fetched: len(items)}, nil
}

type flushResult struct {
	written []string
	err     error
}

// flush appends sections in order, each once it and all earlier ones are finished.
func (p *Pipeline) flush(outputPath string, sections []string, done []chan struct{}) flushResult {
	var res flushResult
	for i := range sections {
		<-done[i]
		if sections[i] == "" || res.err != nil {
			continue
		}
		if err := appendFile(outputPath, sections[i]); err != nil {
			res.err = err
			continue
		}
		res.written = append(res.written, sections[i])
	}
	return res
}

// openDigest writes the digest header when the file does not exist yet.
func (p *Pipeline) openDigest(outputPath string, window scanner.Window) error {
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	_, err := os.Stat(outputPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat digest: %w", err)
	}
	return appendFile(outputPath, markdown.DigestHeader(window.Since, window.Until))
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open digest: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("write digest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close digest: %w", err)
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, sections []string) {
	if p.notifier == nil || len(sections) == 0 {
		return
	}
	if err := p.notifier.PublishDigest(ctx, strings.Join(sections, "")); err != nil {
		p.logger.Warn("digest delivery failed", zap.Error(err))
	}
}
