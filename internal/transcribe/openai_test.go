package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestParseVerboseJSONResponse(t *testing.T) {
	tests := []struct {
		name      string
		rawJSON   string
		wantWords int
		wantErr   bool
	}{
		{
			name: "valid verbose_json with words",
			rawJSON: `{
				"text": "Hello world.",
				"words": [
					{"word": "Hello", "start": 0.0, "end": 0.42},
					{"word": "world.", "start": 0.42, "end": 1.1}
				],
				"language": "english",
				"duration": 1.2
			}`,
			wantWords: 2,
		},
		{
			name: "blank words filtered out",
			rawJSON: `{
				"text": "Hi",
				"words": [
					{"word": " ", "start": 0.0, "end": 0.1},
					{"word": "Hi", "start": 0.1, "end": 0.3}
				]
			}`,
			wantWords: 1,
		},
		{
			name:      "text without words",
			rawJSON:   `{"text": "No word timestamps requested.", "duration": 2.0}`,
			wantWords: 0,
		},
		{
			name:    "empty response",
			rawJSON: "",
			wantErr: true,
		},
		{
			name:    "invalid JSON",
			rawJSON: `{"text": "incomplete`,
			wantErr: true,
		},
		{
			name:    "no words and no text",
			rawJSON: `{"text": "", "words": []}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := parseVerboseJSONResponse(tt.rawJSON)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if job.Status != StatusCompleted {
				t.Errorf("status = %q, want completed", job.Status)
			}
			if job.ID == "" {
				t.Error("expected a generated job id")
			}
			if len(job.Words) != tt.wantWords {
				t.Errorf("got %d words, want %d", len(job.Words), tt.wantWords)
			}
		})
	}
}

func TestParseVerboseJSONResponseTimestamps(t *testing.T) {
	rawJSON := `{
		"text": "Hello world.",
		"words": [
			{"word": "Hello", "start": 1.5, "end": 2.0004},
			{"word": "world.", "start": 2.1, "end": 3.0}
		],
		"language": "english"
	}`

	job, err := parseVerboseJSONResponse(rawJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []WordTiming{
		{Start: 1500, End: 2000, Text: "Hello"},
		{Start: 2100, End: 3000, Text: "world."},
	}
	if len(job.Words) != len(want) {
		t.Fatalf("got %d words, want %d", len(job.Words), len(want))
	}
	for i, w := range want {
		if job.Words[i] != w {
			t.Errorf("word %d = %+v, want %+v", i, job.Words[i], w)
		}
	}
	if job.LanguageCode != "english" {
		t.Errorf("language = %q, want english", job.LanguageCode)
	}
}

func TestOpenAITranscriberUploadReturnsPath(t *testing.T) {
	tr, err := NewOpenAITranscriber(context.Background(), "fake-key", Options{})
	if err != nil {
		t.Fatalf("NewOpenAITranscriber error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	ref, err := tr.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if ref != path {
		t.Errorf("ref = %q, want %q", ref, path)
	}

	if _, err := tr.Upload(context.Background(), path+".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewOpenAITranscriberRequiresKey(t *testing.T) {
	if _, err := NewOpenAITranscriber(context.Background(), "", Options{}); err == nil {
		t.Error("expected error for empty API key")
	}
}

func newFakeWhisper(t *testing.T, handler http.HandlerFunc) (*OpenAITranscriber, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tr, err := NewOpenAITranscriber(context.Background(), "fake-key", Options{
		BaseURL:    srv.URL + "/",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewOpenAITranscriber error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "lecture.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return tr, path
}

func TestOpenAITranscriberTranscribe(t *testing.T) {
	tr, path := newFakeWhisper(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"aaj ka","language":"hindi","duration":1.2,
			"words":[{"word":"aaj","start":0,"end":0.4},{"word":"ka","start":0.4,"end":0.9}]}`))
	})

	job, err := tr.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if len(job.Words) != 2 || job.Words[1].End != 900 {
		t.Errorf("unexpected words: %+v", job.Words)
	}
}

func TestOpenAITranscriberRejected(t *testing.T) {
	tr, path := newFakeWhisper(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid file format","type":"invalid_request_error"}}`))
	})

	_, err := tr.Transcribe(context.Background(), path)
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
	}
}

func TestOpenAITranscriberCancelled(t *testing.T) {
	var calls atomic.Int32
	tr, path := newFakeWhisper(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Transcribe(ctx, path)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTranscriptionFailed) {
		t.Error("cancellation reported as a provider failure")
	}
	if calls.Load() != 0 {
		t.Errorf("server saw %d requests after cancel", calls.Load())
	}
}

// Integration test: only runs if OPENAI_API_KEY and VAANI_TEST_AUDIO are set
func TestOpenAITranscriberIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	audioPath := os.Getenv("VAANI_TEST_AUDIO")
	if apiKey == "" || audioPath == "" {
		t.Skip("OPENAI_API_KEY or VAANI_TEST_AUDIO not set; skipping integration test")
	}

	ctx := context.Background()
	tr, err := NewOpenAITranscriber(ctx, apiKey, Options{})
	if err != nil {
		t.Fatalf("NewOpenAITranscriber error: %v", err)
	}

	job, err := tr.Transcribe(ctx, audioPath)
	if err != nil {
		if errors.Is(err, ErrTranscriptionFailed) {
			t.Fatalf("provider rejected audio: %v", err)
		}
		t.Fatalf("Transcribe error: %v", err)
	}
	if len(job.Words) == 0 {
		t.Error("expected word timings")
	}
}
