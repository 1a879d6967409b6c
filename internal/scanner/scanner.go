package scanner

import (
	"context"
	"fmt"
	"time"

	"NewsDigest/internal/domain"
)

// Window is the inclusive [Since, Until] publication range of a run.
type Window struct {
	Since time.Time
	Until time.Time
}

// NewWindow validates bounds and normalises them to UTC.
func NewWindow(since, until time.Time) (Window, error) {
	since, until = since.UTC(), until.UTC()
	if since.After(until) {
		return Window{}, fmt.Errorf("invalid window: since %s is after until %s",
			since.Format(time.RFC3339), until.Format(time.RFC3339))
	}
	return Window{Since: since, Until: until}, nil
}

// Contains reports whether t lies inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since) && !t.After(w.Until)
}

// Decision tells a traversal what to do with the entry it just read.
type Decision int

const (
	// Skip means the entry is newer than the window; keep walking.
	Skip Decision = iota
	// Accept means the entry belongs to the window.
	Accept
	// Stop means the entry is older than the window; nothing further can match.
	Stop
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Accept:
		return "accept"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Decide applies the shared newest-first termination rule.
func Decide(t time.Time, w Window) Decision {
	switch {
	case t.After(w.Until):
		return Skip
	case t.Before(w.Since):
		return Stop
	default:
		return Accept
	}
}

// Target names one unit of work: a source, optionally narrowed to a subspace.
type Target struct {
	Source   domain.Source
	Subspace string
	Options  map[string]string
}

// Label renders "source" or "source: subspace".
func (t Target) Label() string {
	if t.Subspace == "" {
		return t.Source.String()
	}
	return t.Source.String() + ": " + t.Subspace
}

// Request carries all parameters required to execute a scan.
type Request struct {
	Window   Window
	Subspace string
	Options  map[string]string
}

// Scanner captures a single source strategy (Hacker News, Reddit, etc.).
type Scanner interface {
	Name() domain.Source
	Scan(ctx context.Context, req Request) ([]domain.ItemMetadata, error)
}

// SummaryScanner is implemented by sources that ship their own summaries.
type SummaryScanner interface {
	Scanner
	ScanSummaries(ctx context.Context, req Request) ([]domain.ItemSummary, error)
}

// Registry keeps a mapping from sources to their implementations.
type Registry struct {
	scanners map[domain.Source]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[domain.Source]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[domain.Source]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by source or an error if it is absent.
func (r *Registry) Resolve(source domain.Source) (Scanner, error) {
	if scanner, ok := r.scanners[source]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", source)
}
