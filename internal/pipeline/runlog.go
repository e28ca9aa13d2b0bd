package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// runLogHeader anchors the log file; entries are prepended below it so the
// newest run reads first.
const runLogHeader = "# Ingestion Pipeline Run History"

// RunLogName is the log file name under the local storage root.
const RunLogName = "pipeline-runs.md"

// RunEntry is one pipeline run for the log.
type RunEntry struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Sites    []SiteResult
}

// AppendRunLog prepends an entry to the run log, creating the file with its
// header on first use. The write goes through a rename so a crash never
// leaves a torn log.
func AppendRunLog(root string, entry RunEntry) error {
	path := filepath.Join(root, RunLogName)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read run log: %w", err)
	}

	tail := strings.TrimPrefix(string(existing), runLogHeader)
	tail = strings.TrimLeft(tail, "\n")

	var b strings.Builder
	b.WriteString(runLogHeader)
	b.WriteString("\n\n")
	writeEntry(&b, entry)
	if tail != "" {
		b.WriteString("\n")
		b.WriteString(tail)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	if err := renameio.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write run log: %w", err)
	}
	return nil
}

func writeEntry(b *strings.Builder, entry RunEntry) {
	ok := 0
	for _, s := range entry.Sites {
		if s.OK {
			ok++
		}
	}
	fmt.Fprintf(b, "## %s (run %s)\n\n", entry.Started.UTC().Format(time.RFC3339), entry.RunID)
	fmt.Fprintf(b, "- duration: %s\n", entry.Duration.Round(time.Second))
	fmt.Fprintf(b, "- sites: %d ok / %d total\n\n", ok, len(entry.Sites))

	for _, s := range entry.Sites {
		status := "ok"
		if !s.OK {
			status = "FAILED"
		}
		fmt.Fprintf(b, "- **%s** %s — audio %d, transcripts %d, uploads %d, feed errors %d (%s)\n",
			s.SiteID, status, s.NewAudio, s.NewSRT, s.Uploads, s.FeedErrors, s.Duration.Round(time.Second))
		if s.Err != nil {
			fmt.Fprintf(b, "  - error: %v\n", s.Err)
		}
	}
}
