package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/enhance"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/llm"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/storage"
)

const foxText = "Foxes live in dens and hunt at night."

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testServer struct {
	*Server
	store    *storage.MemoryStore
	provider *embedding.MockProvider
	handler  http.Handler
}

type serverOptions struct {
	enhancer   Enhancer
	watch      WatchService
	configPath string
}

func newTestServer(t *testing.T, o serverOptions) testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	provider := embedding.NewMockProvider(8)
	gen := embedding.NewGenerator(embedding.NewChain(nil, provider), embedding.WithProgressInterval(0))
	t.Cleanup(func() { _ = gen.Close() })

	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "yomu.db")
	pipeline := indexer.NewPipeline(store, nil, gen)
	builder := search.NewBuilder(store, gen)
	s := NewServer(store, pipeline, builder, gen, o.enhancer, cfg, nil, o.watch, o.configPath)
	return testServer{Server: s, store: store, provider: provider, handler: s.Router()}
}

func (ts testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts testServer) upload(t *testing.T, threadID, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("folder_id", "folder-1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/threads/"+threadID+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func uploadFox(t *testing.T, ts testServer) *models.FileIndex {
	t.Helper()
	rec := ts.upload(t, "t1", "fox.txt", foxText)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[uploadResponse](t, rec)
	require.NotNil(t, resp.File)
	return resp.File
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestHandleUploadFile(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.upload(t, "t1", "fox.txt", foxText)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[uploadResponse](t, rec)
	require.NotNil(t, resp.File)
	assert.Equal(t, "t1", resp.File.ThreadID)
	assert.Equal(t, "fox.txt", resp.File.FileName)
	assert.Equal(t, "folder-1", resp.File.FolderID)
	assert.Equal(t, 1, resp.File.ChunkCount)
	assert.Equal(t, "mock-embedding", resp.File.EmbeddingModel)
	require.NotEmpty(t, resp.Progress)
	assert.Equal(t, models.StageComplete, resp.Progress[len(resp.Progress)-1].Stage)

	stored, err := ts.store.GetFileMetadata(context.Background(), resp.File.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.File.ContentHash, stored.ContentHash)
}

func TestHandleUploadFile_errors(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.upload(t, "t1", "fox.xyz", foxText)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "unsupported document type")

	rec = ts.upload(t, "t1", "broken.txt", "\xff\xfe\xfd")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	ts.provider.Err = errors.New("quota exceeded")
	rec = ts.upload(t, "t1", "fox.txt", foxText)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/threads/t1/files", bytes.NewBufferString("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	out := httptest.NewRecorder()
	ts.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestHandleUploadFile_tooLarge(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.maxUploadBytes = 64
	rec := ts.upload(t, "t1", "big.txt", string(bytes.Repeat([]byte("a"), 1024)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleFiles(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	fi := uploadFox(t, ts)

	rec := ts.do(t, http.MethodGet, "/api/v1/threads/t1/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	files := decode[map[string][]models.FileIndex](t, rec)["files"]
	require.Len(t, files, 1)
	assert.Equal(t, fi.ID, files[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/v1/threads/empty/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"files":[]}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/files/"+fi.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fox.txt", decode[models.FileIndex](t, rec).FileName)

	rec = ts.do(t, http.MethodGet, "/api/v1/files/"+fi.ID+"/chunks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chunks := decode[map[string][]models.Chunk](t, rec)["chunks"]
	require.Len(t, chunks, 1)
	assert.Equal(t, foxText, chunks[0].Text)

	rec = ts.do(t, http.MethodGet, "/api/v1/files/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/files/missing/chunks", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpdateFile(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	fi := uploadFox(t, ts)

	rec := ts.do(t, http.MethodPatch, "/api/v1/files/"+fi.ID, map[string]string{"file_name": "renamed.txt"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.FileIndex](t, rec)
	assert.Equal(t, "renamed.txt", updated.FileName)
	assert.Equal(t, "folder-1", updated.FolderID)

	rec = ts.do(t, http.MethodPatch, "/api/v1/files/"+fi.ID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/v1/files/missing", map[string]string{"folder_id": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDelete(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	fi := uploadFox(t, ts)
	rec := ts.upload(t, "t1", "other.md", "# Other\n\nSomething else entirely.")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodDelete, "/api/v1/files/"+fi.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/v1/files/"+fi.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/threads/t1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "t1", resp["thread_id"])
	assert.EqualValues(t, 1, resp["deleted_files"])

	stats, err := ts.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Files)
	assert.Zero(t, stats.Chunks)
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	uploadFox(t, ts)

	rec := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]interface{}](t, rec)
	assert.EqualValues(t, 1, resp["files"])
	assert.EqualValues(t, 1, resp["chunks"])
	assert.EqualValues(t, 1, resp["threads"])
	cfg, ok := resp["config"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "mock-embedding", cfg["embedding_model"])
	assert.Equal(t, config.BackendSQLite, cfg["storage_backend"])
	assert.Contains(t, resp, "disk_usage_bytes")
}

func TestHandleBuildContext(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	fi := uploadFox(t, ts)
	off := false

	rec := ts.do(t, http.MethodPost, "/api/v1/context", models.ContextRequest{
		Query:           foxText,
		ThreadID:        "t1",
		UseEnhancement:  &off,
		UseHybridSearch: &off,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[contextResponse](t, rec)
	require.Len(t, resp.Context.RelevantChunks, 1)
	assert.Equal(t, fi.ID, resp.Context.RelevantChunks[0].FileID)
	assert.InDelta(t, 1.0, resp.Context.RelevantChunks[0].Score, 1e-6)
	assert.Contains(t, resp.EnhancedMessage, foxText)

	rec = ts.do(t, http.MethodPost, "/api/v1/context", models.ContextRequest{
		Query:   foxText,
		FileIDs: []string{fi.ID},
		Mode:    models.ModeFullText,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[contextResponse](t, rec)
	assert.True(t, resp.Context.IsFullText)
	assert.Contains(t, resp.Context.ContextText, foxText)
}

func TestHandleBuildContext_validation(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	tests := []struct {
		name string
		body interface{}
	}{
		{"empty query", models.ContextRequest{ThreadID: "t1"}},
		{"no scope", models.ContextRequest{Query: "q"}},
		{"bad mode", models.ContextRequest{Query: "q", ThreadID: "t1", Mode: "fuzzy"}},
		{"not json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/context", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestContextOptions(t *testing.T) {
	rc := config.Default().Retrieval
	rc.IncludeOverview = true

	opts := ContextOptions(rc, models.ContextRequest{})
	assert.Equal(t, 5, opts.TopK)
	assert.Equal(t, 0.3, opts.MinScore)
	assert.True(t, opts.UseEnhancement)
	assert.True(t, opts.UseHybridSearch)
	assert.True(t, opts.IncludeOverview)

	zero := 0.0
	off := false
	opts = ContextOptions(rc, models.ContextRequest{TopK: 9, MinScore: &zero, UseHybridSearch: &off, Mode: models.ModeSmart})
	assert.Equal(t, 9, opts.TopK)
	assert.Zero(t, opts.MinScore)
	assert.False(t, opts.UseHybridSearch)
	assert.Equal(t, models.ModeSmart, opts.Mode)
}

func TestHandleEnhanceQuery(t *testing.T) {
	t.Run("without llm", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		rec := ts.do(t, http.MethodPost, "/api/v1/query-enhancement", queryEnhancementRequest{Query: "fox habits"})
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[enhance.EnhancedQuery](t, rec)
		assert.Equal(t, "fox habits", got.EnhancedQuery)
		assert.Empty(t, got.SearchTerms)
	})

	t.Run("with llm", func(t *testing.T) {
		gen := llm.NewMock(`{"enhancedQuery":"fox habitat and behaviour","keyConcepts":["fox"],"synonyms":["vixen"],"searchTerms":["fox","den"]}`)
		ts := newTestServer(t, serverOptions{enhancer: enhance.New(gen)})
		rec := ts.do(t, http.MethodPost, "/api/v1/query-enhancement", queryEnhancementRequest{Query: "fox habits", FileIDs: []string{"missing"}})
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[enhance.EnhancedQuery](t, rec)
		assert.Equal(t, "fox habits", got.Original)
		assert.Equal(t, "fox habitat and behaviour", got.EnhancedQuery)
		assert.Equal(t, []string{"fox", "den"}, got.SearchTerms)
		assert.Len(t, gen.Requests(), 1)
	})

	t.Run("empty query", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		rec := ts.do(t, http.MethodPost, "/api/v1/query-enhancement", queryEnhancementRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleDocumentMetadata(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.do(t, http.MethodPost, "/api/v1/document-metadata", documentMetadataRequest{Text: foxText})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	gen := llm.NewMock(`{"summary":"About foxes.","keywords":["fox"],"topics":["Wildlife"],"keyPhrases":["hunt at night"]}`)
	ts = newTestServer(t, serverOptions{enhancer: enhance.New(gen)})
	rec = ts.do(t, http.MethodPost, "/api/v1/document-metadata", documentMetadataRequest{Text: foxText, FileName: "fox.txt"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[models.DocumentMetadata](t, rec)
	assert.Equal(t, "About foxes.", got.Summary)
	assert.Equal(t, []string{"fox"}, got.Keywords)

	rec = ts.do(t, http.MethodPost, "/api/v1/document-metadata", documentMetadataRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEmbeddings(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.do(t, http.MethodPost, "/api/v1/embeddings", embeddingsRequest{Texts: []string{"a", "b", "c"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[embeddingsResponse](t, rec)
	assert.Len(t, got.Embeddings, 3)
	assert.Equal(t, 8, got.Dimensions)
	assert.Equal(t, "mock-embedding", got.Model)

	rec = ts.do(t, http.MethodPost, "/api/v1/embeddings", embeddingsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.provider.Err = errors.New("boom")
	rec = ts.do(t, http.MethodPost, "/api/v1/embeddings", embeddingsRequest{Texts: []string{"x"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleVectorSearch(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	fi := uploadFox(t, ts)

	rec := ts.do(t, http.MethodPost, "/api/v1/vector-search", models.VectorSearchRequest{Query: foxText, ThreadID: "t1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[vectorSearchResponse](t, rec)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "fox.txt", got.Results[0].FileName)

	rec = ts.do(t, http.MethodPost, "/api/v1/vector-search", models.VectorSearchRequest{Query: foxText, FileID: fi.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[vectorSearchResponse](t, rec).Results, 1)

	rec = ts.do(t, http.MethodPost, "/api/v1/vector-search", models.VectorSearchRequest{Query: foxText, ThreadID: "nobody"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/vector-search", models.VectorSearchRequest{Query: foxText})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("file x %w", storage.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("parse failed for .bin: %w", extract.ErrUnsupported), http.StatusUnsupportedMediaType},
		{fmt.Errorf("%w for .pdf: bad xref", extract.ErrParseFailed), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: timeout", embedding.ErrAPIFailed), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestHandleWatchDirectories_notEnabled(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/watch/directories", watchAddRequest{Path: t.TempDir()})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/v1/watch/directories?path=/tmp", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandleWatchDirectories(t *testing.T) {
	watch := &mockWatchService{}
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	ts := newTestServer(t, serverOptions{watch: watch, configPath: configPath})
	dir := t.TempDir()

	rec := ts.do(t, http.MethodPost, "/api/v1/watch/directories", watchAddRequest{Path: dir})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []string{dir}, watch.Directories())

	rec = ts.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{dir}, decode[map[string][]string](t, rec)["directories"])

	saved, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, saved.Watch.Directories)

	rec = ts.do(t, http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, watch.Directories())

	saved, err = config.Load(configPath)
	require.NoError(t, err)
	assert.Empty(t, saved.Watch.Directories)
}

func TestHandleWatchDirectoriesAdd_invalid(t *testing.T) {
	ts := newTestServer(t, serverOptions{watch: &mockWatchService{}})

	rec := ts.do(t, http.MethodPost, "/api/v1/watch/directories", watchAddRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/watch/directories", watchAddRequest{Path: filepath.Join(t.TempDir(), "nope")})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))
	rec = ts.do(t, http.MethodPost, "/api/v1/watch/directories", watchAddRequest{Path: file})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/watch/directories", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
