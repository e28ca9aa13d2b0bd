// Package search serves queries over a site's persisted index. The index is
// restored from the blob store exactly once per process; a rebuilt index is
// only picked up by a restart (or a fresh Lambda environment).
package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"podsearch/internal/searchindex"
	"podsearch/internal/storage"
)

const (
	defaultLimit = 10
	maxLimit     = 100

	// SortByRelevance orders hits by TF-IDF score, best first.
	SortByRelevance = "relevance"
	// SortByPublished orders hits by episode publication time.
	SortByPublished = "episodePublishedUnixTimestamp"
)

// Hit is one result row: the matching entry plus its relevance score.
type Hit struct {
	searchindex.Entry
	Score float64 `json:"score"`
}

// Response is the wire shape of a search result.
type Response struct {
	Hits             []Hit `json:"hits"`
	Total            int   `json:"total"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// Engine lazily restores an index and answers queries against it. Safe for
// concurrent use; the restored index is immutable.
type Engine struct {
	store      storage.Storage
	siteID     string
	scratchDir string

	once       sync.Once
	idx        *searchindex.Index
	restoreErr error
}

// NewEngine wires an engine against a site's store. scratchDir holds the
// downloaded index file; empty means the system temp dir. The scratch
// filename carries the site id so engines for different sites sharing one
// host never clobber each other's download.
func NewEngine(store storage.Storage, siteID, scratchDir string) *Engine {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Engine{store: store, siteID: siteID, scratchDir: scratchDir}
}

// Warmup forces the one-time restore now instead of on the first query.
func (e *Engine) Warmup(ctx context.Context) error {
	return e.restore(ctx)
}

// restore downloads and loads the index on first call; every later call
// returns the memoized outcome, including a failure. A failed restore stays
// failed for the process lifetime so callers surface a clean 503 instead of
// hammering the store.
func (e *Engine) restore(ctx context.Context) error {
	e.once.Do(func() {
		start := time.Now()
		name := "orama_index.msp"
		if e.siteID != "" {
			name = e.siteID + "_" + name
		}
		local := filepath.Join(e.scratchDir, name)
		if err := e.store.Download(ctx, searchindex.IndexKey, local); err != nil {
			e.restoreErr = fmt.Errorf("failed to fetch index: %w", err)
			return
		}
		idx, err := searchindex.LoadFile(local)
		if err != nil {
			e.restoreErr = fmt.Errorf("failed to restore index: %w", err)
			return
		}
		e.idx = idx
		slog.Info("Search index restored", "entries", idx.Len(), "duration", time.Since(start).Round(time.Millisecond))
	})
	return e.restoreErr
}

// Search runs one query. Requests are normalized before execution: limit is
// clamped to [1, 100] with a default of 10, sort falls back to relevance, and
// ties are broken by entry id ascending so paging is stable.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*Response, error) {
	start := time.Now()

	if err := e.restore(ctx); err != nil {
		return nil, err
	}
	if req.HealthCheckOnly {
		return &Response{Hits: []Hit{}, ProcessingTimeMs: time.Since(start).Milliseconds()}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	raw := e.idx.Search(req.Query, req.EpisodeIDs)

	hits := make([]Hit, len(raw))
	for i, h := range raw {
		hits[i] = Hit{Entry: e.idx.Entry(h.Pos), Score: h.Score}
	}
	sortHits(hits, req.SortBy, req.Order)

	total := len(hits)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := hits[offset:end]
	if page == nil {
		page = []Hit{}
	}

	return &Response{
		Hits:             page,
		Total:            total,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// sortHits orders results. Relevance ignores order and always ranks best
// first; the published sort honors asc/desc with desc as the default. Entry
// id ascending breaks every tie.
func sortHits(hits []Hit, sortBy, order string) {
	asc := strings.EqualFold(order, "asc")
	switch sortBy {
	case SortByPublished:
		sort.SliceStable(hits, func(i, j int) bool {
			a, b := hits[i].EpisodePublishedUnixTimestamp, hits[j].EpisodePublishedUnixTimestamp
			if a != b {
				if asc {
					return a < b
				}
				return a > b
			}
			return hits[i].ID < hits[j].ID
		})
	default:
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].ID < hits[j].ID
		})
	}
}
