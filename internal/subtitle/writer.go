package subtitle

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// interface for encoding captions
type Writer interface {
	Write(w io.Writer, sub *Subtitle) error
}

// SubRip format
type SRTWriter struct{}

// WebVTT format
type VTTWriter struct{}

func NewWriter(format Format) (Writer, error) {
	switch format {
	case FormatSRT:
		return &SRTWriter{}, nil
	case FormatVTT:
		return &VTTWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// writes the captions in SRT form
func (sw *SRTWriter) Write(w io.Writer, sub *Subtitle) error {
	var buf bytes.Buffer
	for i, entry := range sub.Entries {
		// index (1-based)
		fmt.Fprintf(&buf, "%d\n", i+1)

		// timestamps: 00:00:00,000 --> 00:00:00,000
		fmt.Fprintf(&buf, "%s --> %s\n",
			formatTime(entry.StartTime, ','),
			formatTime(entry.EndTime, ','))

		buf.WriteString(entry.Text)
		buf.WriteString("\n\n")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// writes the captions in WebVTT form
func (vw *VTTWriter) Write(w io.Writer, sub *Subtitle) error {
	var buf bytes.Buffer

	buf.WriteString("WEBVTT\n\n")

	for i, entry := range sub.Entries {
		// optional cue identifier
		fmt.Fprintf(&buf, "%d\n", i+1)

		// timestamps: 00:00:00.000 --> 00:00:00.000
		fmt.Fprintf(&buf, "%s --> %s\n",
			formatTime(entry.StartTime, '.'),
			formatTime(entry.EndTime, '.'))

		buf.WriteString(entry.Text)
		buf.WriteString("\n\n")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile encodes sub into path, creating parent directories.
func WriteFile(sub *Subtitle, format Format, path string) error {
	writer, err := NewWriter(format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create caption file: %w", err)
	}
	if err := writer.Write(f, sub); err != nil {
		f.Close()
		return fmt.Errorf("failed to write captions: %w", err)
	}
	return f.Close()
}

func formatTime(d time.Duration, sep byte) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, seconds, sep, millis)
}
