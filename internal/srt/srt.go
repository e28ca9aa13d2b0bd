// Package srt reads and writes SubRip transcripts with millisecond precision.
package srt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Cue is one subtitle block. Cues are 1-indexed in the serialized form.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Parse reads all cues from an SRT document. Malformed blocks abort parsing
// with an error naming the offending line.
func Parse(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		index, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("srt: expected cue index at line %d, got %q", line, text)
		}

		if !scanner.Scan() {
			return nil, fmt.Errorf("srt: missing timing line for cue %d", index)
		}
		line++
		start, end, err := parseTiming(strings.TrimSpace(scanner.Text()))
		if err != nil {
			return nil, fmt.Errorf("srt: cue %d: %w", index, err)
		}

		var textLines []string
		for scanner.Scan() {
			line++
			t := scanner.Text()
			if strings.TrimSpace(t) == "" {
				break
			}
			textLines = append(textLines, t)
		}

		cues = append(cues, Cue{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.Join(textLines, "\n"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("srt: read failed: %w", err)
	}
	return cues, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) ([]Cue, error) {
	return Parse(strings.NewReader(s))
}

// Format renders cues as an SRT document, renumbering them from 1.
func Format(cues []Cue) string {
	var b strings.Builder
	Write(&b, cues)
	return b.String()
}

// Write renders cues to w, renumbering them from 1.
func Write(w io.Writer, cues []Cue) {
	for i, cue := range cues {
		fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTimestamp(cue.Start), FormatTimestamp(cue.End), cue.Text)
	}
}

// FormatTimestamp renders a duration as "HH:MM:SS,mmm".
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ms := (d - s*time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func parseTiming(line string) (time.Duration, time.Duration, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start, err := ParseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseTimestamp parses "HH:MM:SS,mmm" (a dot separator is tolerated).
func ParseTimestamp(ts string) (time.Duration, error) {
	normalized := strings.ReplaceAll(ts, ".", ",")
	var h, m, s, ms int
	if _, err := fmt.Sscanf(normalized, "%d:%d:%d,%d", &h, &m, &s, &ms); err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}
