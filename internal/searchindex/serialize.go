package searchindex

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// The persisted index is a gzip stream of msgpack values. Everything is
// written incrementally, entry by entry and term by term: a site index can
// decompress to hundreds of MB, and materializing it as one value (let alone
// one string) does not survive at that size.
//
// Layout: header, N, N entries, T, T×(term, postings).

const formatVersion = 1

type header struct {
	Version int      `msgpack:"version"`
	Fields  []string `msgpack:"fields"`
}

var schemaFields = []string{
	"id",
	"text",
	"sequentialEpisodeIdAsString",
	"startTimeMs",
	"endTimeMs",
	"episodePublishedUnixTimestamp",
}

// WriteTo streams the index through gzip into w.
func (idx *Index) WriteTo(w io.Writer) error {
	gz := gzip.NewWriter(w)
	enc := msgpack.NewEncoder(gz)

	if err := enc.Encode(header{Version: formatVersion, Fields: schemaFields}); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}

	if err := enc.EncodeInt(int64(len(idx.entries))); err != nil {
		return fmt.Errorf("failed to encode entry count: %w", err)
	}
	for i := range idx.entries {
		if err := enc.Encode(&idx.entries[i]); err != nil {
			return fmt.Errorf("failed to encode entry %d: %w", i, err)
		}
	}

	// Deterministic term order keeps the artifact byte-stable for identical
	// inputs.
	terms := make([]string, 0, len(idx.postings))
	for term := range idx.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	if err := enc.EncodeInt(int64(len(terms))); err != nil {
		return fmt.Errorf("failed to encode term count: %w", err)
	}
	for _, term := range terms {
		if err := enc.EncodeString(term); err != nil {
			return fmt.Errorf("failed to encode term: %w", err)
		}
		plist := idx.postings[term]
		if err := enc.EncodeInt(int64(len(plist))); err != nil {
			return fmt.Errorf("failed to encode posting count: %w", err)
		}
		for _, p := range plist {
			if err := enc.EncodeInt(int64(p.Doc)); err != nil {
				return err
			}
			if err := enc.EncodeInt(int64(p.Freq)); err != nil {
				return err
			}
		}
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

// Read restores an index from a gzip+msgpack stream produced by WriteTo.
func Read(r io.Reader) (*Index, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	dec := msgpack.NewDecoder(gz)

	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("unsupported index format version %d", h.Version)
	}
	if len(h.Fields) != len(schemaFields) {
		return nil, fmt.Errorf("index schema mismatch: %v", h.Fields)
	}

	idx := New()

	entryCount, err := dec.DecodeInt64()
	if err != nil {
		return nil, fmt.Errorf("failed to decode entry count: %w", err)
	}
	idx.entries = make([]Entry, entryCount)
	for i := int64(0); i < entryCount; i++ {
		if err := dec.Decode(&idx.entries[i]); err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", i, err)
		}
		idx.byEpisode[idx.entries[i].SequentialEpisodeIDAsString] = append(
			idx.byEpisode[idx.entries[i].SequentialEpisodeIDAsString], int32(i))
	}

	termCount, err := dec.DecodeInt64()
	if err != nil {
		return nil, fmt.Errorf("failed to decode term count: %w", err)
	}
	for i := int64(0); i < termCount; i++ {
		term, err := dec.DecodeString()
		if err != nil {
			return nil, fmt.Errorf("failed to decode term: %w", err)
		}
		postingCount, err := dec.DecodeInt64()
		if err != nil {
			return nil, fmt.Errorf("failed to decode posting count: %w", err)
		}
		plist := make([]posting, postingCount)
		for j := int64(0); j < postingCount; j++ {
			doc, err := dec.DecodeInt64()
			if err != nil {
				return nil, err
			}
			freq, err := dec.DecodeInt64()
			if err != nil {
				return nil, err
			}
			plist[j] = posting{Doc: int32(doc), Freq: int32(freq)}
		}
		idx.postings[term] = plist
	}

	return idx, nil
}

// SaveFile streams the index to a file on disk.
func (idx *Index) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := idx.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile restores an index from a file on disk.
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}
