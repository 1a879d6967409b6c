package parser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/scanner"
)

// StrategySource implements ItemSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	logger   *zap.Logger
}

var _ ports.ItemSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry.
func NewStrategySource(reg *scanner.Registry, logger *zap.Logger) *StrategySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrategySource{registry: reg, logger: logger}
}

// Targets expands configured sources into units of work, one per subspace.
func Targets(sources []config.SourceConfig) ([]scanner.Target, error) {
	var targets []scanner.Target
	for _, src := range sources {
		source, err := domain.ParseSource(src.Name)
		if err != nil {
			return nil, err
		}
		if len(src.Subspaces) == 0 {
			if source == domain.SourceReddit {
				return nil, fmt.Errorf("source %s needs at least one subspace", source)
			}
			targets = append(targets, scanner.Target{Source: source, Options: src.Options})
			continue
		}
		for _, sub := range src.Subspaces {
			targets = append(targets, scanner.Target{Source: source, Subspace: sub, Options: src.Options})
		}
	}
	return targets, nil
}

// Fetch runs the target's scanner over the window.
func (s *StrategySource) Fetch(ctx context.Context, target scanner.Target, window scanner.Window) ([]domain.ItemMetadata, error) {
	strategy, err := s.resolve(target)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("scan target", zap.String("target", target.Label()))
	items, err := strategy.Scan(ctx, request(target, window))
	if err != nil {
		return nil, fmt.Errorf("scan source %s: %w", target.Label(), err)
	}
	s.logger.Debug("target produced items", zap.String("target", target.Label()), zap.Int("count", len(items)))
	return items, nil
}

// FetchSummaries runs a scanner that ships its own summaries.
func (s *StrategySource) FetchSummaries(ctx context.Context, target scanner.Target, window scanner.Window) ([]domain.ItemSummary, error) {
	strategy, err := s.resolve(target)
	if err != nil {
		return nil, err
	}
	summarizing, ok := strategy.(scanner.SummaryScanner)
	if !ok {
		return nil, fmt.Errorf("source %s does not provide summaries", target.Source)
	}

	s.logger.Debug("scan target with summaries", zap.String("target", target.Label()))
	items, err := summarizing.ScanSummaries(ctx, request(target, window))
	if err != nil {
		return nil, fmt.Errorf("scan source %s: %w", target.Label(), err)
	}
	s.logger.Debug("target produced items", zap.String("target", target.Label()), zap.Int("count", len(items)))
	return items, nil
}

func (s *StrategySource) resolve(target scanner.Target) (scanner.Scanner, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}
	return s.registry.Resolve(target.Source)
}

func request(target scanner.Target, window scanner.Window) scanner.Request {
	return scanner.Request{Window: window, Subspace: target.Subspace, Options: target.Options}
}
