package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
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
storage:
  database_path: "test.db"
embedding:
  providers:
    - name: openai
      model: text-embedding-3-small
      api_key_env: YOMU_TEST_EMBED_KEY
  timeout: 45s
llm:
  model: gpt-4o
retrieval:
  mode: smart
  use_hybrid_search: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if !filepath.IsAbs(cfg.Storage.DatabasePath) {
		t.Errorf("database_path should be absolute, got %s", cfg.Storage.DatabasePath)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if len(cfg.Embedding.Providers) != 1 || cfg.Embedding.Providers[0].Model != "text-embedding-3-small" {
		t.Errorf("unexpected providers: %+v", cfg.Embedding.Providers)
	}
	if cfg.Embedding.Timeout != 45*time.Second {
		t.Errorf("embedding timeout = %s, want 45s", cfg.Embedding.Timeout)
	}
	if cfg.LLM.Model != "gpt-4o" || cfg.LLM.Provider != "openai" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Retrieval.Mode != ModeSmart {
		t.Errorf("mode = %s, want smart", cfg.Retrieval.Mode)
	}
	if cfg.Retrieval.HybridOrDefault() {
		t.Error("hybrid search should be off when set to false")
	}
	if !cfg.Retrieval.EnhancementOrDefault() {
		t.Error("enhancement should default to true")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, `
debug: true
storage:
  database_path: "test.db"
`)
	cfg, err := Load(path)
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
  database_path: "./data/db/yomu.db"
  bleve_index_path: "./data/bleve"
watch:
  directories: ["./dev/sample"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "yomu.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if cfg.Storage.BleveIndexPath != filepath.Join(dir, "data", "bleve") {
		t.Errorf("bleve_index_path = %s", cfg.Storage.BleveIndexPath)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "dev", "sample")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
	if cfg.Storage.SnapshotPath != "" {
		t.Errorf("snapshot path should stay empty for sqlite, got %s", cfg.Storage.SnapshotPath)
	}
}

func TestLoad_envFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  api_key_env: YOMU_TEST_LLM_KEY
`)
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envPath, []byte("YOMU_TEST_LLM_KEY=sk-from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("YOMU_TEST_LLM_KEY") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LLM.APIKey(); got != "sk-from-dotenv" {
		t.Errorf("APIKey() = %q, want sk-from-dotenv", got)
	}
}

func TestLoad_envDoesNotOverride(t *testing.T) {
	path := writeConfig(t, `
llm:
  api_key_env: YOMU_TEST_LLM_KEY2
`)
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envPath, []byte("YOMU_TEST_LLM_KEY2=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("YOMU_TEST_LLM_KEY2", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LLM.APIKey(); got != "from-env" {
		t.Errorf("APIKey() = %q, want from-env", got)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"mode", "retrieval:\n  mode: fuzzy\n", "retrieval.mode"},
		{"backend", "storage:\n  backend: postgres\n", "storage.backend"},
		{"strategy", "chunking:\n  strategy: words\n", "chunking.strategy"},
		{"overlap", "chunking:\n  chunk_size: 100\n  chunk_overlap: 100\n", "chunk_overlap"},
		{"keyword backend", "retrieval:\n  keyword_backend: lucene\n", "keyword_backend"},
		{"min score", "retrieval:\n  min_score: 1.5\n", "min_score"},
		{"provider name", "embedding:\n  providers:\n    - model: x\n", "providers[0].name"},
		{"yaml", "server: [", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("default backend: got %s", cfg.Storage.Backend)
	}
	if cfg.Chunking.ChunkSize != 1000 || cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("default chunking: got %d/%d", cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.MinScore != 0.3 || cfg.Retrieval.SmartThreshold != 50000 {
		t.Errorf("default retrieval: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.VectorWeight != 0.7 || cfg.Retrieval.KeywordWeight != 0.3 {
		t.Errorf("default weights: %v/%v", cfg.Retrieval.VectorWeight, cfg.Retrieval.KeywordWeight)
	}
	if len(cfg.Embedding.Providers) != 1 || cfg.Embedding.Providers[0].Name != "onnx" {
		t.Errorf("default providers: %+v", cfg.Embedding.Providers)
	}
	if cfg.LLM.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("default api_key_env: got %s", cfg.LLM.APIKeyEnv)
	}
	if len(cfg.Watch.Extensions) != len(DefaultExtensions) || cfg.Watch.Extensions[0] != ".pdf" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if cfg.Watch.ThreadID != "watched" {
		t.Errorf("watch thread: got %s", cfg.Watch.ThreadID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_keepsOneExplicitWeight(t *testing.T) {
	cfg := &Config{Retrieval: RetrievalConfig{KeywordWeight: 1}}
	ApplyDefaults(cfg)
	if cfg.Retrieval.VectorWeight != 0 || cfg.Retrieval.KeywordWeight != 1 {
		t.Errorf("weights = %v/%v, want 0/1", cfg.Retrieval.VectorWeight, cfg.Retrieval.KeywordWeight)
	}
}

func TestApplyDefaults_memorySnapshot(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: BackendMemory}}
	ApplyDefaults(cfg)
	if cfg.Storage.SnapshotPath == "" {
		t.Error("memory backend should get a default snapshot path")
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
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Storage.DatabasePath = "/tmp/db"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Embedding.Timeout != cfg.Embedding.Timeout {
		t.Errorf("timeout round trip: got %s", loaded.Embedding.Timeout)
	}
}

func TestExpandPath(t *testing.T) {
	if got := expandPath("", "/cfg"); got != "" {
		t.Errorf("empty path expanded to %q", got)
	}
	if got := expandPath(":memory:", "/cfg"); got != ":memory:" {
		t.Errorf(":memory: expanded to %q", got)
	}
	if got := expandPath("/abs/x", "/cfg"); got != "/abs/x" {
		t.Errorf("absolute path changed to %q", got)
	}
	if got := expandPath("./x", "/cfg"); got != filepath.Join("/cfg", "x") {
		t.Errorf("./x expanded to %q", got)
	}
}
