package chatsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultHashWorkers = 8

// Scanner enumerates local items and refreshes their content hashes.
type Scanner struct {
	source     ContentSource
	cache      *HashCache
	logger     *slog.Logger
	exclude    []string
	recentDays int
	workers    int
	now        func() time.Time
}

// ScannerOptions tunes a Scanner.
type ScannerOptions struct {
	ExcludeWorkspaces []string
	// RecentDays keeps only items active within this many days; 0 keeps all.
	RecentDays int
	// HashWorkers bounds parallel hashing; 0 means the default.
	HashWorkers int
}

// NewScanner creates a Scanner over source backed by cache.
func NewScanner(source ContentSource, cache *HashCache, logger *slog.Logger, opts ScannerOptions) *Scanner {
	workers := opts.HashWorkers
	if workers <= 0 {
		workers = defaultHashWorkers
	}

	return &Scanner{
		source:     source,
		cache:      cache,
		logger:     logger,
		exclude:    opts.ExcludeWorkspaces,
		recentDays: opts.RecentDays,
		workers:    workers,
		now:        time.Now,
	}
}

// Scan lists local metadata, applying the workspace exclusion and the
// recent-activity filter.
func (s *Scanner) Scan(ctx context.Context) ([]Metadata, error) {
	items, err := s.source.ListItems(ctx, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("listing local items: %w", err)
	}

	return FilterRecent(items, s.recentDays, s.now()), nil
}

// ScanResult is a scan with content hashes attached.
type ScanResult struct {
	Items  map[string]Metadata
	Hashes map[string]string
	// Failed holds identities whose content could not be hashed. They
	// are left out of Items so resolution never acts on them blindly.
	Failed map[string]error
	// Read counts items whose content had to be read to hash.
	Read int
}

// ScanAndHash scans and computes hashes in parallel through the cache.
func (s *Scanner) ScanAndHash(ctx context.Context) (*ScanResult, error) {
	items, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}

	res := &ScanResult{
		Items:  make(map[string]Metadata, len(items)),
		Hashes: make(map[string]string, len(items)),
		Failed: make(map[string]error),
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, m := range items {
		g.Go(func() error {
			hash, wasRead, err := s.cache.GetOrCompute(gctx, m, s.readContent)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}

				res.Failed[m.ID] = err

				return nil
			}

			res.Items[m.ID] = m
			res.Hashes[m.ID] = hash

			if wasRead {
				res.Read++
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for id, err := range res.Failed {
		s.logger.Warn("hashing item", slog.String("item_id", id), slog.String("error", err.Error()))
	}

	return res, nil
}

func (s *Scanner) readContent(ctx context.Context, m Metadata) ([]byte, error) {
	return s.source.ReadContent(ctx, m.WorkspaceID, m.ID)
}

// FilterRecent keeps items whose last activity falls within days of now.
// Items with no known activity or creation time are always kept. days <= 0
// disables the filter.
func FilterRecent(items []Metadata, days int, now time.Time) []Metadata {
	if days <= 0 {
		return items
	}

	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
	out := make([]Metadata, 0, len(items))

	for _, m := range items {
		last := m.LastActivity()
		if last == 0 || last >= cutoff {
			out = append(out, m)
		}
	}

	return out
}
