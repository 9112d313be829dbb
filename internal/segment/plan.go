// Package segment cuts a recording into sequential clips whose boundaries
// fall on word ends reported by the transcription provider.
package segment

import (
	"fmt"
	"strings"
	"time"

	"github.com/mgpai22/vaani/internal/transcribe"
)

// DefaultThreshold is the intended maximum clip duration.
const DefaultThreshold = 30 * time.Second

// Mode selects how the window length is compared against the threshold.
type Mode string

const (
	// ModeTruncated truncates both window ends to whole seconds before
	// comparing. A window flushes once the truncated difference is greater
	// than the threshold, that is at threshold+1 truncated seconds or more
	// (31 for a 30s threshold).
	ModeTruncated Mode = "truncated"
	// ModeStrict compares the exact window length in milliseconds.
	ModeStrict Mode = "strict"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeTruncated:
		return ModeTruncated, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("unknown segmentation mode %q: use truncated or strict", s)
	}
}

// Options controls segmentation.
type Options struct {
	Threshold   time.Duration
	Mode        Mode
	Concurrency int // clip encoders running at once
}

func DefaultOptions() Options {
	return Options{
		Threshold:   DefaultThreshold,
		Mode:        ModeTruncated,
		Concurrency: 4,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = def.Threshold
	}
	if o.Mode == "" {
		o.Mode = def.Mode
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	return o
}

// Clip is one output segment. Words FirstWord..LastWord-1 of the input
// fall inside it; Path is empty until the clip has been written.
type Clip struct {
	Index     int    `json:"index"`
	StartMS   int64  `json:"start_ms"`
	EndMS     int64  `json:"end_ms"`
	Path      string `json:"path,omitempty"`
	Text      string `json:"text"`
	FirstWord int    `json:"first_word"`
	LastWord  int    `json:"last_word"`
}

func (c Clip) Start() time.Duration { return time.Duration(c.StartMS) * time.Millisecond }
func (c Clip) End() time.Duration   { return time.Duration(c.EndMS) * time.Millisecond }

func (c Clip) Duration() time.Duration { return c.End() - c.Start() }

// Plan computes clip boundaries from word timings with a greedy flush:
// before a word extends the window, the window is flushed if it already
// exceeds the threshold. The word that trips the threshold therefore opens
// the next clip. The last window is always flushed.
//
// Clips are contiguous, start at 0 and end at the last word's end. An
// empty word list yields no clips.
func Plan(words []transcribe.WordTiming, opts Options) []Clip {
	if len(words) == 0 {
		return nil
	}
	opts = opts.withDefaults()

	var (
		clips      []Clip
		start, end int64
		first      int
	)

	flush := func(last int) {
		clips = append(clips, Clip{
			Index:     len(clips),
			StartMS:   start,
			EndMS:     end,
			Text:      joinWords(words[first:last]),
			FirstWord: first,
			LastWord:  last,
		})
	}

	for i, w := range words {
		if exceeds(start, end, opts) {
			flush(i)
			start = end
			first = i
		}
		end = w.End
	}
	flush(len(words))

	return clips
}

func exceeds(start, end int64, opts Options) bool {
	threshold := opts.Threshold.Milliseconds()
	if opts.Mode == ModeStrict {
		return end-start > threshold
	}
	return end/1000-start/1000 > threshold/1000
}

func joinWords(words []transcribe.WordTiming) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if t := strings.TrimSpace(w.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
