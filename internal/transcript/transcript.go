// Package transcript turns lecture caption dumps into chat sessions that can
// be ingested as sample classroom dialogue.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	DefaultSessions  = 5
	DefaultMinLength = 20
	DefaultMaxLength = 200
	MaxSegments      = 30
)

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// Entry is one caption line.
type Entry struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Video is one transcript in the import file. Videos whose download failed
// carry Error instead of entries.
type Video struct {
	Title   string  `json:"title"`
	Subject string  `json:"subject"`
	Entries []Entry `json:"entries"`
	Error   string  `json:"error,omitempty"`
}

// Session is the dialogue extracted from one slice of a video.
type Session struct {
	Number   int      `json:"session"`
	Segments []string `json:"segments"`
}

// Load decodes a {video_id: Video} document and drops failed videos.
func Load(r io.Reader) (map[string]Video, error) {
	var videos map[string]Video
	if err := json.NewDecoder(r).Decode(&videos); err != nil {
		return nil, fmt.Errorf("decode transcripts: %w", err)
	}
	for id, v := range videos {
		if v.Error != "" || v.Entries == nil {
			delete(videos, id)
		}
	}
	return videos, nil
}

// SplitSessions cuts entries into n consecutive slices of len/n entries; the
// last slice also takes the remainder.
func SplitSessions(entries []Entry, n int) [][]Entry {
	if n <= 0 {
		return nil
	}
	per := len(entries) / n
	out := make([][]Entry, n)
	for i := range n {
		start := i * per
		end := start + per
		if i == n-1 {
			end = len(entries)
		}
		out[i] = entries[start:end]
	}
	return out
}

// ExtractSegments joins caption lines and cuts them at sentence ends. Only
// sentences of minLen..maxLen runes are kept; the unfinished tail carries
// over to the next line. At most MaxSegments segments are returned.
func ExtractSegments(entries []Entry, minLen, maxLen int) []string {
	var (
		segments []string
		current  string
	)
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		if current != "" {
			current += " " + text
		} else {
			current = text
		}
		if utf8.RuneCountInString(current) < minLen {
			continue
		}

		sentences := sentenceEnd.Split(current, -1)
		for _, s := range sentences[:len(sentences)-1] {
			s = strings.TrimSpace(s)
			if n := utf8.RuneCountInString(s); n >= minLen && n <= maxLen {
				segments = append(segments, s)
			}
		}
		current = sentences[len(sentences)-1]
	}
	if utf8.RuneCountInString(current) >= minLen {
		segments = append(segments, current)
	}
	if len(segments) > MaxSegments {
		segments = segments[:MaxSegments]
	}
	return segments
}

// Sessions splits v into n sessions with the default segment bounds.
func Sessions(v Video, n int) []Session {
	parts := SplitSessions(v.Entries, n)
	out := make([]Session, 0, len(parts))
	for i, part := range parts {
		out = append(out, Session{
			Number:   i + 1,
			Segments: ExtractSegments(part, DefaultMinLength, DefaultMaxLength),
		})
	}
	return out
}

// SortedIDs returns the video ids in a stable order.
func SortedIDs(videos map[string]Video) []string {
	ids := make([]string, 0, len(videos))
	for id := range videos {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
