package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
embedding:
  provider: ollama
  model: nomic-embed-text
  dimensions: 768
  timeout: 5s
  max_retries: 0
  initial_backoff: 50ms
retrieval:
  chunk_size: 800
  chunk_overlap: 0
  keyword_enabled: false
  source_boost: 2.5
  fuzzy: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	e := cfg.Embedding
	if e.Provider != "ollama" || e.Dimensions != 768 || e.Timeout != 5*time.Second {
		t.Errorf("unexpected embedding config: %+v", e)
	}
	if *e.MaxRetries != 0 {
		t.Errorf("explicit max_retries 0 must be kept, got %d", *e.MaxRetries)
	}
	if e.InitialBackoff != 50*time.Millisecond || e.MaxBackoff != 5*time.Second {
		t.Errorf("backoff = %s..%s", e.InitialBackoff, e.MaxBackoff)
	}
	if cfg.Retrieval.ChunkSize != 800 || cfg.Retrieval.Overlap() != 0 {
		t.Errorf("chunking = %d/%d", cfg.Retrieval.ChunkSize, cfg.Retrieval.Overlap())
	}
	if cfg.Retrieval.KeywordEnabledOrDefault() {
		t.Error("keyword_enabled: false should be kept")
	}
	if r := cfg.Retrieval; r.SourceBoost != 2.5 || !r.Fuzzy || r.Fuzziness != 1 {
		t.Errorf("keyword options = boost %g fuzzy %v fuzziness %d", r.SourceBoost, r.Fuzzy, r.Fuzziness)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  index_path: "./data/index.bin"
  catalog_path: "./data/catalog.db"
watch:
  directories: ["./dev/sample"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "index.bin"); cfg.Storage.IndexPath != want {
		t.Errorf("index_path = %s, want %s", cfg.Storage.IndexPath, want)
	}
	if want := filepath.Join(dir, "data", "catalog.db"); cfg.Storage.CatalogPath != want {
		t.Errorf("catalog_path = %s, want %s", cfg.Storage.CatalogPath, want)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	if want := filepath.Join(dir, "dev", "sample"); cfg.Watch.Directories[0] != want {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], want)
	}
}

func TestLoad_rejectsInvalidChunking(t *testing.T) {
	path := writeConfig(t, `
retrieval:
  chunk_size: 100
  chunk_overlap: 100
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for overlap >= chunk_size")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	r := cfg.Retrieval
	if r.ChunkSize != 500 || r.Overlap() != 50 || r.DefaultTopK != 3 || r.MaxTopK != 100 {
		t.Errorf("default retrieval: %+v overlap=%d", r, r.Overlap())
	}
	if r.SemanticWeight != 0.7 || r.KeywordWeight != 0.3 || !r.KeywordEnabledOrDefault() {
		t.Errorf("default weights: %+v", r)
	}
	e := cfg.Embedding
	if e.Provider != "hash" || e.Dimensions != 384 || e.BatchSize != 64 || *e.MaxRetries != 3 {
		t.Errorf("default embedding: %+v", e)
	}
	if e.Timeout != 30*time.Second || e.InitialBackoff != 200*time.Millisecond {
		t.Errorf("default timings: %+v", e)
	}
	if len(cfg.Watch.Extensions) != len(DefaultExtensions) || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate_keywordOptions(t *testing.T) {
	for name, mutate := range map[string]func(*RetrievalConfig){
		"negative source_boost": func(r *RetrievalConfig) { r.SourceBoost = -1 },
		"fuzziness 3":           func(r *RetrievalConfig) { r.Fuzziness = 3 },
	} {
		cfg := &Config{}
		ApplyDefaults(cfg)
		mutate(&cfg.Retrieval)
		if err := Validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestApplyDefaults_smallChunkSize(t *testing.T) {
	cfg := &Config{Retrieval: RetrievalConfig{ChunkSize: 40}}
	ApplyDefaults(cfg)
	if cfg.Retrieval.Overlap() != 4 {
		t.Errorf("overlap for chunk_size 40 = %d, want 4", cfg.Retrieval.Overlap())
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{
		Server:    ServerConfig{Host: "localhost", Port: 9090},
		Storage:   StorageConfig{IndexPath: "/tmp/index.bin"},
		Embedding: EmbeddingConfig{Timeout: 7 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Storage.IndexPath != "/tmp/index.bin" {
		t.Errorf("loaded: %+v", loaded)
	}
	if loaded.Embedding.Timeout != 7*time.Second {
		t.Errorf("timeout round trip: %s", loaded.Embedding.Timeout)
	}
}

func TestApplyDefaults_dimensionsByProvider(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     int
	}{
		{"", "", 384},
		{"hash", "", 384},
		{"onnx", "", 384},
		{"ollama", "nomic-embed-text", 768},
		{"openai", "", 1536},
		{"openai", "text-embedding-3-large", 3072},
	}
	for _, tt := range tests {
		cfg := &Config{Embedding: EmbeddingConfig{Provider: tt.provider, Model: tt.model}}
		ApplyDefaults(cfg)
		if cfg.Embedding.Dimensions != tt.want {
			t.Errorf("%s/%s: dimensions = %d, want %d", tt.provider, tt.model, cfg.Embedding.Dimensions, tt.want)
		}
	}
}
