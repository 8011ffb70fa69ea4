package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/shiori/internal/ingest"
)

type recordingIngester struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingIngester) IngestFile(_ context.Context, path string) (*ingest.FileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return &ingest.FileResult{Path: path, Chunks: 1}, nil
}

func (r *recordingIngester) Allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".md"
}

func (r *recordingIngester) ingested() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func (r *recordingIngester) count(suffix string) int {
	n := 0
	for _, p := range r.ingested() {
		if strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

// blockingIngester holds every ingestion until release is closed.
type blockingIngester struct {
	release <-chan struct{}
}

func (b *blockingIngester) IngestFile(ctx context.Context, path string) (*ingest.FileResult, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &ingest.FileResult{Path: path}, nil
}

func (b *blockingIngester) Allowed(path string) bool {
	return filepath.Ext(path) == ".txt"
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, roots []string, recursive bool, rec *recordingIngester) *Watcher {
	t.Helper()
	w := New(roots, recursive, rec, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingIngester{}
	startWatcher(t, []string{dir}, true, rec)

	path := filepath.Join(dir, "notes.txt")
	writeFile(t, path, "one")
	writeFile(t, path, "two")
	writeFile(t, path, "three")

	if !waitFor(t, func() bool { return rec.count("notes.txt") >= 1 }) {
		t.Fatalf("file was not ingested, got %v", rec.ingested())
	}
	time.Sleep(300 * time.Millisecond)
	if n := rec.count("notes.txt"); n != 1 {
		t.Errorf("expected one debounced ingestion, got %d", n)
	}
}

func TestWatcher_ExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingIngester{}
	startWatcher(t, []string{dir}, true, rec)

	writeFile(t, filepath.Join(dir, "ignore.xyz"), "skip")
	writeFile(t, filepath.Join(dir, "keep.md"), "keep")

	if !waitFor(t, func() bool { return rec.count("keep.md") == 1 }) {
		t.Fatalf("keep.md not ingested, got %v", rec.ingested())
	}
	if rec.count("ignore.xyz") != 0 {
		t.Error("ignore.xyz should not be ingested")
	}
}

func TestWatcher_RemovalIsNotIngested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	writeFile(t, path, "x")

	rec := &recordingIngester{}
	startWatcher(t, []string{dir}, true, rec)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := rec.ingested(); len(got) != 0 {
		t.Errorf("removal should not ingest, got %v", got)
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingIngester{}
	startWatcher(t, []string{dir}, true, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directories.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(nested, "deep.txt"), "deep content")

	if !waitFor(t, func() bool { return rec.count("deep.txt") >= 1 }) {
		t.Errorf("expected deep.txt to be ingested, got %v", rec.ingested())
	}
}

func TestWatcher_SyncExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	writeFile(t, filepath.Join(dir, "ignore.xyz"), "x")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "nested")

	rec := &recordingIngester{}
	w := startWatcher(t, []string{dir}, false, rec)
	w.SyncExisting()

	if !waitFor(t, func() bool { return rec.count("a.txt") == 1 }) {
		t.Fatalf("a.txt not ingested, got %v", rec.ingested())
	}
	time.Sleep(100 * time.Millisecond)
	if got := rec.ingested(); len(got) != 1 {
		t.Errorf("non-recursive sync should ingest only a.txt, got %v", got)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, []string{root}, true, &recordingIngester{})

	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_SyncExistingReturnsAfterCancel(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < queueSize+50; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("f%03d.txt", i)), "x")
	}
	rec := &recordingIngester{}
	w := New([]string{root}, true, rec, WithDebounce(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	cancel()
	defer w.Stop()

	done := make(chan struct{})
	go func() {
		w.SyncExisting()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("SyncExisting still blocked after cancel; ingested %d", len(rec.ingested()))
	}
}

func TestWatcher_SyncExistingReturnsAfterStop(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < queueSize+50; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("f%03d.txt", i)), "x")
	}
	release := make(chan struct{})
	w := New([]string{root}, true, &blockingIngester{release: release})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		w.SyncExisting()
		close(done)
	}()
	// Stop waits for the in-flight ingestion, which holds until release.
	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SyncExisting still blocked after Stop")
	}
	close(release)
	<-stopped
}

func TestWatcher_SyncExistingBeforeStart(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	rec := &recordingIngester{}
	w := New([]string{root}, true, rec)

	done := make(chan struct{})
	go func() {
		w.SyncExisting()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SyncExisting blocked on a watcher that was never started")
	}
	if got := rec.ingested(); len(got) != 0 {
		t.Errorf("nothing should be ingested before Start, got %v", got)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New([]string{t.TempDir()}, true, &recordingIngester{})
	w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
