package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAssemblyAI mimics the three v2 endpoints the client uses.
type fakeAssemblyAI struct {
	mu        sync.Mutex
	apiKey    string
	uploaded  []byte
	submitted submitRequest
	statuses  []Job
	polls     int
	failFirst int
}

func (f *fakeAssemblyAI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v2/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != f.apiKey {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failFirst > 0 {
			f.failFirst--
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		f.uploaded, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(uploadResponse{UploadURL: "https://cdn.example/upload/abc"})
	})

	mux.HandleFunc("POST /v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&f.submitted); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(Job{ID: "tx-1", Status: StatusQueued})
	})

	mux.HandleFunc("GET /v2/transcript/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.PathValue("id") != "tx-1" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		i := f.polls
		if i >= len(f.statuses) {
			i = len(f.statuses) - 1
		}
		f.polls++
		_ = json.NewEncoder(w).Encode(f.statuses[i])
	})

	return mux
}

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lecture.mp3")
	if err := os.WriteFile(path, []byte("ID3fake-audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAssemblyAITranscriberEndToEnd(t *testing.T) {
	fake := &fakeAssemblyAI{
		apiKey: "secret",
		statuses: []Job{
			{ID: "tx-1", Status: StatusQueued},
			{ID: "tx-1", Status: StatusProcessing},
			{
				ID:           "tx-1",
				Status:       StatusCompleted,
				Text:         "namaste class",
				LanguageCode: "hi",
				Words: []WordTiming{
					{Start: 0, End: 500, Text: "namaste", Confidence: 0.9},
					{Start: 520, End: 900, Text: "class", Confidence: 0.8},
				},
			},
		},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tr, err := NewAssemblyAITranscriber(
		AssemblyAIConfig{APIKey: "secret", BaseURL: srv.URL + "/"},
		PollConfig{Interval: time.Millisecond, Retry: fastRetry()},
		nil,
	)
	if err != nil {
		t.Fatalf("NewAssemblyAITranscriber error: %v", err)
	}

	ctx := context.Background()
	ref, err := tr.Upload(ctx, writeTempAudio(t))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if ref != "https://cdn.example/upload/abc" {
		t.Errorf("upload ref = %q", ref)
	}
	if string(fake.uploaded) != "ID3fake-audio" {
		t.Errorf("uploaded body = %q", fake.uploaded)
	}

	job, err := tr.Transcribe(ctx, ref)
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if fake.submitted.AudioURL != ref || !fake.submitted.LanguageDetection {
		t.Errorf("unexpected submit body: %+v", fake.submitted)
	}
	if job.Text != "namaste class" || len(job.Words) != 2 {
		t.Errorf("unexpected job: %+v", job)
	}
	if job.LanguageCode != "hi" {
		t.Errorf("language = %q, want hi", job.LanguageCode)
	}
	if fake.polls != 3 {
		t.Errorf("polls = %d, want 3", fake.polls)
	}
}

func TestAssemblyAIUploadRetriesServerErrors(t *testing.T) {
	fake := &fakeAssemblyAI{apiKey: "secret", failFirst: 2}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tr, err := NewAssemblyAITranscriber(
		AssemblyAIConfig{APIKey: "secret", BaseURL: srv.URL},
		PollConfig{Retry: fastRetry()},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Upload(context.Background(), writeTempAudio(t)); err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if string(fake.uploaded) != "ID3fake-audio" {
		t.Errorf("file must be re-sent in full on retry, got %q", fake.uploaded)
	}
}

func TestAssemblyAIUnauthorized(t *testing.T) {
	fake := &fakeAssemblyAI{apiKey: "secret"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client, err := NewAssemblyAIClient(AssemblyAIConfig{APIKey: "wrong", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Upload(context.Background(), writeTempAudio(t))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Body, "unauthorized") {
		t.Errorf("body = %q", apiErr.Body)
	}
	if IsTransient(err) {
		t.Error("401 must not be transient")
	}
}

func TestAssemblyAIErrorJob(t *testing.T) {
	fake := &fakeAssemblyAI{
		apiKey:   "secret",
		statuses: []Job{{ID: "tx-1", Status: StatusError, Error: "decode failed"}},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tr, err := NewAssemblyAITranscriber(
		AssemblyAIConfig{APIKey: "secret", BaseURL: srv.URL},
		PollConfig{Interval: time.Millisecond, Retry: fastRetry()},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = tr.Transcribe(context.Background(), "https://cdn.example/upload/abc")
	var failure *FailureError
	if !errors.As(err, &failure) || failure.Message != "decode failed" {
		t.Fatalf("expected decode failed FailureError, got %v", err)
	}
}

func TestAssemblyAISubmitWithLanguageCode(t *testing.T) {
	fake := &fakeAssemblyAI{apiKey: "secret"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client, err := NewAssemblyAIClient(AssemblyAIConfig{
		APIKey:       "secret",
		BaseURL:      srv.URL,
		LanguageCode: "hi",
	})
	if err != nil {
		t.Fatal(err)
	}

	id, err := client.Submit(context.Background(), "https://cdn.example/a")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if id != "tx-1" {
		t.Errorf("id = %q", id)
	}
	if fake.submitted.LanguageCode != "hi" || fake.submitted.LanguageDetection {
		t.Errorf("unexpected submit body: %+v", fake.submitted)
	}
}

func TestNewAssemblyAIClientRequiresKey(t *testing.T) {
	if _, err := NewAssemblyAIClient(AssemblyAIConfig{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	tr, err := Factory(ctx, ProviderAssemblyAI, "fake-key", Options{})
	if err != nil {
		t.Fatalf("Factory(assemblyai) error: %v", err)
	}
	if _, ok := tr.(*AssemblyAITranscriber); !ok {
		t.Errorf("expected *AssemblyAITranscriber, got %T", tr)
	}

	tr, err = Factory(ctx, ProviderOpenAI, "fake-key", Options{})
	if err != nil {
		t.Fatalf("Factory(openai) error: %v", err)
	}
	if _, ok := tr.(*OpenAITranscriber); !ok {
		t.Errorf("expected *OpenAITranscriber, got %T", tr)
	}

	if _, err := Factory(ctx, Provider("unknown"), "fake-key", Options{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"", ProviderAssemblyAI, false},
		{"AssemblyAI", ProviderAssemblyAI, false},
		{" openai ", ProviderOpenAI, false},
		{"deepgram", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProvider(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Integration test: only runs if ASSEMBLYAI_API_KEY and VAANI_TEST_AUDIO are set
func TestAssemblyAIIntegration(t *testing.T) {
	apiKey := os.Getenv("ASSEMBLYAI_API_KEY")
	audioPath := os.Getenv("VAANI_TEST_AUDIO")
	if apiKey == "" || audioPath == "" {
		t.Skip("ASSEMBLYAI_API_KEY or VAANI_TEST_AUDIO not set; skipping integration test")
	}

	ctx := context.Background()
	tr, err := NewAssemblyAITranscriber(AssemblyAIConfig{APIKey: apiKey}, DefaultPollConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ref, err := tr.Upload(ctx, audioPath)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	job, err := tr.Transcribe(ctx, ref)
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if len(job.Words) == 0 {
		t.Error("expected word timings")
	}
}
