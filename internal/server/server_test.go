package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mgpai22/vaani/internal/pipeline"
	"github.com/mgpai22/vaani/internal/segment"
	"github.com/mgpai22/vaani/internal/summarize"
	"github.com/mgpai22/vaani/internal/transcribe"
)

type fakeRunner struct {
	root    string
	release chan struct{} // when set, Execute blocks until closed or cancelled

	mu sync.Mutex
	n  int
}

func (f *fakeRunner) NewRun() (*pipeline.Report, error) {
	f.mu.Lock()
	f.n++
	id := fmt.Sprintf("run-%d", f.n)
	f.mu.Unlock()

	dir := filepath.Join(f.root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &pipeline.Report{RunID: id, WorkDir: dir, Clips: []segment.Clip{}}, nil
}

func (f *fakeRunner) Execute(
	ctx context.Context,
	rep *pipeline.Report,
	input string,
	observe pipeline.Observer,
) error {
	rep.Input = input
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	clipPath := filepath.Join(rep.WorkDir, "clip_0.mp3")
	if err := os.WriteFile(clipPath, []byte("clip-bytes"), 0644); err != nil {
		return err
	}

	rep.Transcript = &transcribe.Job{
		ID:     "tx-1",
		Status: transcribe.StatusCompleted,
		Text:   "hello world",
		Words: []transcribe.WordTiming{
			{Start: 0, End: 400, Text: "hello"},
			{Start: 400, End: 1000, Text: "world"},
		},
	}
	rep.Clips = []segment.Clip{{Index: 0, StartMS: 0, EndMS: 1000, Path: clipPath, Text: "hello world"}}
	rep.Summaries = summarize.Pair{English: "english summary", Hindi: "hindi summary"}
	for _, stage := range pipeline.Stages {
		rep.Stages = append(rep.Stages, pipeline.StageResult{Stage: stage, Status: pipeline.StatusOK})
		snapshot := *rep
		observe(rep.Stages[len(rep.Stages)-1], &snapshot)
	}
	rep.FinishedAt = time.Now()
	return nil
}

func newTestServer(t *testing.T, runner *fakeRunner) *Server {
	t.Helper()
	runner.root = t.TempDir()
	s := New(runner, Config{MaxUploadBytes: 1 << 20}, nil)
	t.Cleanup(s.Close)
	return s
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/runs", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	return serve(s, httptest.NewRequest(http.MethodGet, path, nil))
}

func submit(t *testing.T, s *Server, filename string) string {
	t.Helper()
	rec := serve(s, uploadRequest(t, "audio", filename, []byte("media")))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/runs = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.RunID == "" || body.Status != stateRunning {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
	return body.RunID
}

func waitDone(t *testing.T, s *Server, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, state, _, ok := s.runs.snapshot(id); ok && state == stateDone {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", id)
}

func TestRunLifecycle(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(t, runner)

	id := submit(t, s, "Lecture.MP3")
	waitDone(t, s, id)

	rec := get(s, "/api/runs/"+id)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET run = %d", rec.Code)
	}
	var view struct {
		Status     string                 `json:"status"`
		RunID      string                 `json:"run_id"`
		Input      string                 `json:"input"`
		Transcript *transcribe.Job        `json:"transcript"`
		Clips      []segment.Clip         `json:"clips"`
		Summaries  summarize.Pair         `json:"summaries"`
		Stages     []pipeline.StageResult `json:"stages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Status != stateDone || view.RunID != id {
		t.Errorf("unexpected view: %s", rec.Body.String())
	}
	if filepath.Base(view.Input) != "input.mp3" {
		t.Errorf("upload saved as %q", view.Input)
	}
	if view.Transcript == nil || view.Transcript.Text != "hello world" {
		t.Errorf("transcript = %+v", view.Transcript)
	}
	if len(view.Clips) != 1 || len(view.Stages) != len(pipeline.Stages) {
		t.Errorf("clips = %d, stages = %d", len(view.Clips), len(view.Stages))
	}
	if view.Summaries.Hindi != "hindi summary" {
		t.Errorf("summaries = %+v", view.Summaries)
	}

	rec = get(s, "/api/runs/"+id+"/clips/0")
	if rec.Code != http.StatusOK || rec.Body.String() != "clip-bytes" {
		t.Errorf("GET clip = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("clip content type = %q", ct)
	}

	rec = get(s, "/api/runs/"+id+"/captions")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "WEBVTT") {
		t.Errorf("GET captions = %d %q", rec.Code, rec.Body.String())
	}

	rec = get(s, "/api/runs/"+id+"/captions?format=srt&style=words")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "1\n00:00:00,000 --> ") {
		t.Errorf("GET srt captions = %d %q", rec.Code, rec.Body.String())
	}

	workDir := filepath.Join(runner.root, id)
	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/api/runs/"+id, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE run = %d", rec.Code)
	}
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Error("work directory should be removed")
	}
	if rec := get(s, "/api/runs/"+id); rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted run = %d", rec.Code)
	}
}

func TestCreateRunRejects(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
	}{
		{
			name:     "missing field",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "file", "a.mp3", []byte("x")) },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unsupported type",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "audio", "notes.txt", []byte("x")) },
			wantCode: http.StatusUnsupportedMediaType,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "audio", "a.mp3", bytes.Repeat([]byte("x"), 2<<20))
			},
			wantCode: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeRunner{})
			rec := serve(s, tt.req(t))
			if rec.Code != tt.wantCode {
				t.Errorf("got %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if s.runs.len() != 0 {
				t.Error("rejected upload must not register a run")
			}
		})
	}
}

func TestRunningRun(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	s := newTestServer(t, runner)

	id := submit(t, s, "recording.webm")

	rec := get(s, "/api/runs/"+id)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"running"`) {
		t.Errorf("GET running run = %d %s", rec.Code, rec.Body.String())
	}
	if rec := get(s, "/api/runs/"+id+"/captions"); rec.Code != http.StatusConflict {
		t.Errorf("captions before transcript = %d", rec.Code)
	}
	if rec := get(s, "/api/runs/"+id+"/clips/0"); rec.Code != http.StatusNotFound {
		t.Errorf("clip before segmentation = %d", rec.Code)
	}

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/api/runs/"+id, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE running run = %d", rec.Code)
	}
	s.wg.Wait()

	if _, err := os.Stat(filepath.Join(runner.root, id)); !os.IsNotExist(err) {
		t.Error("cancelled run should remove its work directory")
	}
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, &fakeRunner{})
	id := submit(t, s, "a.wav")
	waitDone(t, s, id)

	tests := []struct {
		method, path string
		wantCode     int
	}{
		{http.MethodGet, "/api/runs/missing", http.StatusNotFound},
		{http.MethodDelete, "/api/runs/missing", http.StatusNotFound},
		{http.MethodGet, "/api/runs/missing/clips/0", http.StatusNotFound},
		{http.MethodGet, "/api/runs/" + id + "/clips/7", http.StatusNotFound},
		{http.MethodGet, "/api/runs/" + id + "/clips/first", http.StatusBadRequest},
		{http.MethodGet, "/api/runs/" + id + "/captions?format=ass", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("got %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestSweep(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(t, runner)

	id := submit(t, s, "a.mp3")
	waitDone(t, s, id)

	if n := s.sweep(); n != 0 {
		t.Fatalf("fresh run swept: %d", n)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n := s.sweep(); n != 1 {
		t.Fatalf("sweep removed %d runs, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(runner.root, id)); !os.IsNotExist(err) {
		t.Error("expired run should be removed from disk")
	}
}

func TestClose(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	runner.root = t.TempDir()
	s := New(runner, Config{}, nil)

	running := submit(t, s, "a.mp3")
	s.Close()

	if s.runs.len() != 0 {
		t.Error("registry should be empty after close")
	}
	if _, err := os.Stat(filepath.Join(runner.root, running)); !os.IsNotExist(err) {
		t.Error("close should remove work directories")
	}
}

func TestStaticEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeRunner{})

	rec := get(s, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "MediaRecorder") {
		t.Errorf("GET / = %d", rec.Code)
	}

	rec = get(s, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("GET /healthz = %d %s", rec.Code, rec.Body.String())
	}

	if rec = get(s, "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d", rec.Code)
	}

	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("responses should carry a request id")
	}
}
