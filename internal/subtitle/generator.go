package subtitle

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mgpai22/vaani/internal/segment"
	"github.com/mgpai22/vaani/internal/transcribe"
)

// Generator turns clips or word timings into caption cues.
type Generator struct {
	MaxCharsPerLine int
	MaxLinesPerSub  int
	MaxDuration     time.Duration
	MaxGap          time.Duration // silence that forces a new word cue
}

func NewDefaultGenerator() *Generator {
	return &Generator{
		MaxCharsPerLine: 42, // Standard subtitle line length
		MaxLinesPerSub:  2,  // Most players support 2 lines
		MaxDuration:     7 * time.Second,
		MaxGap:          1500 * time.Millisecond,
	}
}

func (g *Generator) Generate(
	style CueStyle,
	clips []segment.Clip,
	words []transcribe.WordTiming,
) *Subtitle {
	if style == CueStyleWords {
		return g.FromWords(words)
	}
	return g.FromClips(clips)
}

// FromClips emits one cue per clip spanning its boundaries. Clips without
// text are skipped.
func (g *Generator) FromClips(clips []segment.Clip) *Subtitle {
	entries := []Entry{}
	for _, c := range clips {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		entries = append(entries, Entry{
			Index:     len(entries) + 1,
			StartTime: c.Start(),
			EndTime:   c.End(),
			Text:      g.wrap(text, 0),
		})
	}
	return &Subtitle{Entries: entries}
}

// FromWords groups consecutive words into cues that fit MaxLinesPerSub
// lines and MaxDuration, breaking early on long pauses.
func (g *Generator) FromWords(words []transcribe.WordTiming) *Subtitle {
	entries := []Entry{}
	maxChars := g.MaxCharsPerLine * g.MaxLinesPerSub

	var (
		cue        []string
		cueChars   int
		start, end time.Duration
	)

	flush := func() {
		if len(cue) == 0 {
			return
		}
		entries = append(entries, Entry{
			Index:     len(entries) + 1,
			StartTime: start,
			EndTime:   end,
			Text:      g.wrap(strings.Join(cue, " "), g.MaxLinesPerSub),
		})
		cue = cue[:0]
		cueChars = 0
	}

	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		ws := time.Duration(w.Start) * time.Millisecond
		we := time.Duration(w.End) * time.Millisecond

		if len(cue) > 0 {
			n := cueChars + 1 + utf8.RuneCountInString(text)
			if n > maxChars || we-start > g.MaxDuration || ws-end > g.MaxGap {
				flush()
			}
		}

		if len(cue) == 0 {
			start = ws
			cueChars = utf8.RuneCountInString(text)
		} else {
			cueChars += 1 + utf8.RuneCountInString(text)
		}
		cue = append(cue, text)
		end = we
	}
	flush()

	return &Subtitle{Entries: entries}
}

// wrap breaks text into lines of at most MaxCharsPerLine. With maxLines
// above zero and a two-line budget the break is balanced around the middle.
func (g *Generator) wrap(text string, maxLines int) string {
	text = strings.TrimSpace(text)
	runeCount := utf8.RuneCountInString(text)

	// if text fits on one line, return as is
	if runeCount <= g.MaxCharsPerLine {
		return text
	}

	words := strings.Fields(text)
	if len(words) < 2 {
		return text
	}

	if maxLines == 2 && runeCount <= 2*g.MaxCharsPerLine {
		return balancedSplit(words, runeCount)
	}

	var (
		lines []string
		line  strings.Builder
	)
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if line.Len() > 0 && utf8.RuneCountInString(line.String())+1+n > g.MaxCharsPerLine {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// balancedSplit splits words into two lines at the break closest to the
// middle of the text.
func balancedSplit(words []string, runeCount int) string {
	middle := runeCount / 2
	bestSplit := 0
	bestDiff := runeCount

	currentLen := 0
	for i, word := range words[:len(words)-1] {
		currentLen += utf8.RuneCountInString(word)
		if i > 0 {
			currentLen++ // space
		}

		diff := abs(currentLen - middle)
		if diff < bestDiff {
			bestDiff = diff
			bestSplit = i + 1
		}
	}

	line1 := strings.Join(words[:bestSplit], " ")
	line2 := strings.Join(words[bestSplit:], " ")
	return line1 + "\n" + line2
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
