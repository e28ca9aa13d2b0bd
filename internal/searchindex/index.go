// Package searchindex implements the in-memory full-text structure behind
// search, one instance per site. Entries are SRT cues lifted into documents;
// the index keeps term posting lists for TF-IDF scoring and an episode-id
// map for pre-search filtering.
package searchindex

import (
	"math"
	"strings"
	"unicode"
)

// Entry is one searchable segment (one SRT cue).
type Entry struct {
	ID                            string `msgpack:"id" json:"id"`
	Text                          string `msgpack:"text" json:"text"`
	SequentialEpisodeIDAsString   string `msgpack:"sequentialEpisodeIdAsString" json:"sequentialEpisodeIdAsString"`
	StartTimeMs                   int64  `msgpack:"startTimeMs" json:"startTimeMs"`
	EndTimeMs                     int64  `msgpack:"endTimeMs" json:"endTimeMs"`
	EpisodePublishedUnixTimestamp int64  `msgpack:"episodePublishedUnixTimestamp" json:"episodePublishedUnixTimestamp"`
}

type posting struct {
	Doc  int32
	Freq int32
}

// Index is the in-memory search structure. It is immutable once restored;
// concurrent readers need no locking.
type Index struct {
	entries   []Entry
	postings  map[string][]posting
	byEpisode map[string][]int32
}

// New creates an empty index.
func New() *Index {
	return &Index{
		postings:  make(map[string][]posting),
		byEpisode: make(map[string][]int32),
	}
}

// Len returns the number of entries.
func (idx *Index) Len() int { return len(idx.entries) }

// Entry returns the entry at a position.
func (idx *Index) Entry(pos int32) Entry { return idx.entries[pos] }

// Insert adds one entry. Insertion order across entries is irrelevant;
// deterministic ids guarantee uniqueness.
func (idx *Index) Insert(e Entry) {
	doc := int32(len(idx.entries))
	idx.entries = append(idx.entries, e)
	idx.byEpisode[e.SequentialEpisodeIDAsString] = append(idx.byEpisode[e.SequentialEpisodeIDAsString], doc)

	for term, freq := range termFrequencies(e.Text) {
		idx.postings[term] = append(idx.postings[term], posting{Doc: doc, Freq: freq})
	}
}

// Hit is one matching entry position with its relevance score.
type Hit struct {
	Pos   int32
	Score float64
}

// Search scores every entry matching any query term, optionally restricted
// to a set of episode ids. An empty query matches everything (the caller
// then sorts by a numeric field). The episode filter is applied before
// scoring; walking a handful of per-episode doc lists beats post-filtering a
// site-wide result set.
func (idx *Index) Search(query string, episodeIDs []string) []Hit {
	allowed := idx.allowedDocs(episodeIDs)

	terms := tokenize(query)
	if len(terms) == 0 {
		return idx.matchAll(allowed)
	}

	n := float64(len(idx.entries))
	scores := make(map[int32]float64)
	for _, term := range terms {
		plist := idx.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			if allowed != nil {
				if _, ok := allowed[p.Doc]; !ok {
					continue
				}
			}
			scores[p.Doc] += float64(p.Freq) * idf
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, Hit{Pos: doc, Score: score})
	}
	return hits
}

func (idx *Index) allowedDocs(episodeIDs []string) map[int32]struct{} {
	if len(episodeIDs) == 0 {
		return nil
	}
	allowed := make(map[int32]struct{})
	for _, id := range episodeIDs {
		for _, doc := range idx.byEpisode[id] {
			allowed[doc] = struct{}{}
		}
	}
	return allowed
}

func (idx *Index) matchAll(allowed map[int32]struct{}) []Hit {
	if allowed == nil {
		hits := make([]Hit, len(idx.entries))
		for i := range idx.entries {
			hits[i] = Hit{Pos: int32(i)}
		}
		return hits
	}
	hits := make([]Hit, 0, len(allowed))
	for doc := range allowed {
		hits = append(hits, Hit{Pos: doc})
	}
	return hits
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termFrequencies(text string) map[string]int32 {
	tokens := tokenize(text)
	freqs := make(map[string]int32, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	return freqs
}
