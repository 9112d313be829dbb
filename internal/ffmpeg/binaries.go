package ffmpeg

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	bundleVersion = "6.1"
	bundleBaseURL = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download"

	downloadTimeout = 5 * time.Minute
)

// BinaryPaths holds the locations of the ffmpeg tools. An empty field in
// an override means "find it".
type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

func (p BinaryPaths) complete() bool {
	return p.FFmpeg != "" && p.FFprobe != ""
}

func (p BinaryPaths) installed() bool {
	return isRegularFile(p.FFmpeg) && isRegularFile(p.FFprobe)
}

// Resolver locates ffmpeg and ffprobe. Overrides win, then PATH, then a
// bundle downloaded into the user cache directory. A successful lookup is
// remembered; a failed one is retried on the next call.
type Resolver struct {
	override BinaryPaths
	dir      string
	lookPath func(file string) (string, error)
	fetch    func(asset, dir string) error

	mu    sync.Mutex
	found *BinaryPaths
}

// NewResolver returns a Resolver that prefers the non-empty fields of
// override.
func NewResolver(override BinaryPaths) *Resolver {
	return &Resolver{
		override: override,
		dir:      bundleDir(),
		lookPath: exec.LookPath,
		fetch:    downloadBundle,
	}
}

func (r *Resolver) Resolve() (BinaryPaths, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.found != nil {
		return *r.found, nil
	}
	paths, err := r.resolve()
	if err != nil {
		return BinaryPaths{}, err
	}
	r.found = &paths
	return paths, nil
}

func (r *Resolver) resolve() (BinaryPaths, error) {
	paths := r.override
	if paths.FFmpeg == "" {
		paths.FFmpeg = r.search("ffmpeg")
	}
	if paths.FFprobe == "" {
		paths.FFprobe = r.search("ffprobe")
	}
	if paths.complete() {
		return paths, nil
	}

	bundle, err := r.bundled()
	if err != nil {
		return BinaryPaths{}, err
	}
	if paths.FFmpeg == "" {
		paths.FFmpeg = bundle.FFmpeg
	}
	if paths.FFprobe == "" {
		paths.FFprobe = bundle.FFprobe
	}
	return paths, nil
}

func (r *Resolver) search(name string) string {
	found, err := r.lookPath(name)
	if err != nil {
		return ""
	}
	return found
}

// bundled returns the cached bundle, downloading it first if needed.
func (r *Resolver) bundled() (BinaryPaths, error) {
	bundle := BinaryPaths{
		FFmpeg:  filepath.Join(r.dir, "ffmpeg"+exeSuffix()),
		FFprobe: filepath.Join(r.dir, "ffprobe"+exeSuffix()),
	}
	if bundle.installed() {
		return bundle, nil
	}

	asset, err := assetForPlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return BinaryPaths{}, err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return BinaryPaths{}, fmt.Errorf("create ffmpeg cache dir: %w", err)
	}
	if err := r.fetch(asset, r.dir); err != nil {
		return BinaryPaths{}, err
	}
	if !bundle.installed() {
		return BinaryPaths{}, errors.New("ffmpeg bundle incomplete after download")
	}
	if runtime.GOOS != "windows" {
		for _, p := range []string{bundle.FFmpeg, bundle.FFprobe} {
			if err := os.Chmod(p, 0o755); err != nil {
				return BinaryPaths{}, fmt.Errorf("chmod %s: %w", filepath.Base(p), err)
			}
		}
	}
	return bundle, nil
}

// bundleDir is keyed by release and platform so an upgrade never reuses a
// stale executable.
func bundleDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "vaani", "ffmpeg", bundleVersion, runtime.GOOS, runtime.GOARCH)
}

func assetForPlatform(goos, goarch string) (string, error) {
	platforms := map[string]string{
		"linux/amd64":   "linux-64",
		"linux/arm64":   "linux-arm-64",
		"darwin/amd64":  "macos-64",
		"windows/amd64": "win-64",
	}
	suffix, ok := platforms[goos+"/"+goarch]
	if !ok {
		return "", fmt.Errorf("no ffmpeg bundle for %s/%s: install ffmpeg or set VAANI_FFMPEG_PATH", goos, goarch)
	}
	return fmt.Sprintf("ffmpeg-%s-%s.zip", bundleVersion, suffix), nil
}

func downloadBundle(asset, dir string) error {
	url := fmt.Sprintf("%s/v%s/%s", bundleBaseURL, bundleVersion, asset)
	client := &http.Client{Timeout: downloadTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("download %s: %w", asset, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", asset, resp.Status)
	}

	tmp, err := os.CreateTemp("", "vaani-ffmpeg-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return fmt.Errorf("save %s: %w", asset, err)
	}

	if err := extractArchive(tmp.Name(), dir); err != nil {
		return fmt.Errorf("extract %s: %w", asset, err)
	}
	return nil
}

// extractArchive copies ffmpeg and ffprobe out of a zip bundle into dir,
// ignoring every other entry.
func extractArchive(archivePath, dir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open ffmpeg archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	wanted := map[string]bool{"ffmpeg": false, "ffprobe": false}
	for _, entry := range zr.File {
		tool, ok := toolName(filepath.Base(entry.Name))
		if !ok {
			continue
		}
		if err := writeEntry(entry, filepath.Join(dir, tool+exeSuffix())); err != nil {
			return err
		}
		wanted[tool] = true
	}

	for tool, seen := range wanted {
		if !seen {
			return fmt.Errorf("ffmpeg archive has no %s", tool)
		}
	}
	return nil
}

func writeEntry(entry *zip.File, dest string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Name, err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}
	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dest), err)
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}
	return nil
}

// toolName maps an archive entry such as "FFMPEG.exe" to "ffmpeg".
func toolName(base string) (string, bool) {
	name := strings.TrimSuffix(strings.ToLower(base), ".exe")
	switch name {
	case "ffmpeg", "ffprobe":
		return name, true
	}
	return "", false
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
