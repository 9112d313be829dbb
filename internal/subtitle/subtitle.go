package subtitle

import (
	"fmt"
	"strings"
	"time"
)

// represents single caption cue
type Entry struct {
	Index     int           `json:"index"`
	StartTime time.Duration `json:"start"`
	EndTime   time.Duration `json:"end"`
	Text      string        `json:"text"`
}

// represents complete caption track
type Subtitle struct {
	Entries  []Entry
	Language string
}

// represents supported caption formats
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatSRT:
		return FormatSRT, nil
	case FormatVTT:
		return FormatVTT, nil
	default:
		return "", fmt.Errorf("unsupported format %q: use srt or vtt", s)
	}
}

// how cues are cut
type CueStyle string

const (
	// one cue per audio clip
	CueStyleClips CueStyle = "clips"
	// short cues timed from word boundaries
	CueStyleWords CueStyle = "words"
)

func ParseCueStyle(s string) (CueStyle, error) {
	switch CueStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", CueStyleClips:
		return CueStyleClips, nil
	case CueStyleWords:
		return CueStyleWords, nil
	default:
		return "", fmt.Errorf("unsupported cue style %q: use clips or words", s)
	}
}

// file extension for a format
func ExtensionFor(format Format) string {
	switch format {
	case FormatVTT:
		return ".vtt"
	default:
		return ".srt"
	}
}

// MIME type served for a format
func ContentType(format Format) string {
	switch format {
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	default:
		return "application/x-subrip; charset=utf-8"
	}
}
