// Package corrections applies per-site spelling fixes to transcripts.
// Speech-to-text providers reliably mangle proper nouns; each site carries a
// table of known misspellings, optionally merged with an operator-scoped one.
package corrections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"podsearch/internal/storage"
)

// SiteKey is where a site's correction table lives inside its store.
const SiteKey = "config/spelling-corrections.json"

// Rule maps a set of misspellings to their corrected spelling.
type Rule struct {
	Misspellings      []string `json:"misspellings"`
	CorrectedSpelling string   `json:"correctedSpelling"`
}

// File is the on-disk shape of a corrections table.
type File struct {
	CorrectionsToApply []Rule `json:"correctionsToApply"`
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Table holds compiled rules, applied in document order.
type Table struct {
	rules []compiledRule
}

// Report counts actual substitutions per correctedSpelling for one document.
type Report map[string]int

// Load reads the site table from the store (missing file is non-fatal) and
// merges the operator table from customPath when set.
func Load(ctx context.Context, store storage.Storage, customPath string) (*Table, error) {
	var rules []Rule

	data, err := store.Get(ctx, SiteKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		slog.Debug("No site corrections table found", "key", SiteKey)
	case err != nil:
		return nil, fmt.Errorf("failed to load site corrections: %w", err)
	default:
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse site corrections: %w", err)
		}
		rules = append(rules, f.CorrectionsToApply...)
	}

	if customPath != "" {
		data, err := os.ReadFile(customPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read custom corrections %s: %w", customPath, err)
		}
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse custom corrections %s: %w", customPath, err)
		}
		rules = append(rules, f.CorrectionsToApply...)
	}

	return Compile(rules)
}

// Compile builds a table from raw rules. Each misspelling becomes a
// whole-word, case-insensitive pattern.
func Compile(rules []Rule) (*Table, error) {
	t := &Table{}
	for _, rule := range rules {
		if len(rule.Misspellings) == 0 || rule.CorrectedSpelling == "" {
			continue
		}
		quoted := make([]string, 0, len(rule.Misspellings))
		for _, m := range rule.Misspellings {
			if m == "" {
				continue
			}
			quoted = append(quoted, regexp.QuoteMeta(m))
		}
		if len(quoted) == 0 {
			continue
		}
		pattern, err := regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("failed to compile correction for %q: %w", rule.CorrectedSpelling, err)
		}
		t.rules = append(t.rules, compiledRule{pattern: pattern, replacement: rule.CorrectedSpelling})
	}
	return t, nil
}

// Len returns the number of compiled rules.
func (t *Table) Len() int { return len(t.rules) }

// Apply runs every rule over text in order and returns the corrected text
// plus a count of actual substitutions per corrected spelling. A match that
// already equals the replacement is not counted.
func (t *Table) Apply(text string) (string, Report) {
	report := make(Report)
	out := text
	for _, rule := range t.rules {
		out = rule.pattern.ReplaceAllStringFunc(out, func(match string) string {
			if match == rule.replacement {
				return match
			}
			report[rule.replacement]++
			return rule.replacement
		})
	}
	return out, report
}

// Merge adds counts from another report.
func (r Report) Merge(other Report) {
	for k, v := range other {
		r[k] += v
	}
}

// Total sums all substitution counts.
func (r Report) Total() int {
	total := 0
	for _, v := range r {
		total += v
	}
	return total
}
