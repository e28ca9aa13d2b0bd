package transcribe

import (
	"sort"
	"time"

	"podsearch/internal/srt"
)

// cueGroup is one chunk's cues plus the chunk's absolute offset.
type cueGroup struct {
	offset time.Duration
	cues   []srt.Cue
}

// stitchCues re-bases each chunk's cue timestamps to absolute offsets and
// concatenates them. Inside the overlap window at each chunk boundary the
// earlier chunk wins: the later chunk only contributes cues that start after
// the overlap it shares with its predecessor.
func stitchCues(groups []cueGroup, overlap time.Duration) []srt.Cue {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].offset < groups[j].offset
	})

	var out []srt.Cue
	for i, group := range groups {
		cutoff := time.Duration(-1)
		if i > 0 {
			cutoff = group.offset + overlap
		}
		for _, cue := range group.cues {
			rebased := srt.Cue{
				Start: cue.Start + group.offset,
				End:   cue.End + group.offset,
				Text:  cue.Text,
			}
			if rebased.Start < cutoff {
				continue
			}
			out = append(out, rebased)
		}
	}

	for i := range out {
		out[i].Index = i + 1
	}
	return out
}
