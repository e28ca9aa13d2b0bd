// Package synccheck compares a site's local mirror against its blob store and
// reports the gaps. It never transfers anything; callers act on the report.
package synccheck

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"podsearch/internal/storage"
)

// Mode gates which direction of gap the report includes.
type Mode int

const (
	// Bidirectional reports gaps on both sides.
	Bidirectional Mode = iota
	// PullOnly reports only keys present remotely but missing locally.
	PullOnly
	// PushOnly reports only keys present locally but missing remotely.
	PushOnly
)

// Categories are the synchronized artifact prefixes. The search index is
// deliberately absent: it is derived data, rebuilt rather than synced.
var Categories = []string{"audio", "transcripts", "episode-manifest", "rss"}

// CategoryReport holds the comparison for one category prefix.
type CategoryReport struct {
	LocalOnly  []string
	RemoteOnly []string
	Consistent []string
}

// GapReport is the full comparison keyed by category.
type GapReport struct {
	Categories map[string]*CategoryReport
}

// LocalOnlyCount sums local-only keys across categories.
func (r *GapReport) LocalOnlyCount() int {
	n := 0
	for _, c := range r.Categories {
		n += len(c.LocalOnly)
	}
	return n
}

// RemoteOnlyCount sums remote-only keys across categories.
func (r *GapReport) RemoteOnlyCount() int {
	n := 0
	for _, c := range r.Categories {
		n += len(c.RemoteOnly)
	}
	return n
}

// Check walks the local site directory and lists the remote store for each
// category, producing a gap report. localRoot is the storage root; the site's
// files live under {localRoot}/sites/{siteID}.
func Check(ctx context.Context, store storage.Storage, localRoot, siteID string, mode Mode) (*GapReport, error) {
	siteDir := filepath.Join(localRoot, "sites", siteID)

	report := &GapReport{Categories: make(map[string]*CategoryReport, len(Categories))}
	for _, category := range Categories {
		local, err := walkLocal(filepath.Join(siteDir, category), category)
		if err != nil {
			return nil, fmt.Errorf("failed to walk local %s: %w", category, err)
		}
		remoteKeys, err := store.List(ctx, category+"/")
		if err != nil {
			return nil, fmt.Errorf("failed to list remote %s: %w", category, err)
		}
		remote := make(map[string]struct{}, len(remoteKeys))
		for _, key := range remoteKeys {
			remote[key] = struct{}{}
		}

		cat := &CategoryReport{}
		for key := range local {
			if _, ok := remote[key]; ok {
				cat.Consistent = append(cat.Consistent, key)
			} else if mode != PullOnly {
				cat.LocalOnly = append(cat.LocalOnly, key)
			}
		}
		if mode != PushOnly {
			for key := range remote {
				if _, ok := local[key]; !ok {
					cat.RemoteOnly = append(cat.RemoteOnly, key)
				}
			}
		}
		sort.Strings(cat.LocalOnly)
		sort.Strings(cat.RemoteOnly)
		sort.Strings(cat.Consistent)
		report.Categories[category] = cat
	}
	return report, nil
}

// walkLocal collects site-relative keys under one category directory. Hidden
// files (dotfiles, .DS_Store) are ignored; a missing directory is an empty
// category, not an error.
func walkLocal(dir, category string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		keys[category+"/"+filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
