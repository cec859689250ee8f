// Package main is the yomu CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/cli"
	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/fileid"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/server"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/watcher"
	"github.com/hyperjump/yomu/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/yomu/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "yomu server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "files":
		runFiles()
	case "delete":
		runDelete()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("yomu version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads the config, creates the logger and initializes components.
// The caller must call the returned cleanup.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger, *Components, func()) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		fatalf("Failed to initialize: %v", err)
	}
	return cfg, resolved, logger, components, func() {
		components.Close()
		_ = logger.Sync()
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (directory changes, file ingestion, etc.)")
	noWatch := fs.Bool("no-watch", false, "do not watch the configured directories")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, components, cleanup := setup(*configPath, *debug)
	defer cleanup()

	var watchSvc server.WatchService
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if !*noWatch {
		w := watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			cfg.Watch.ThreadID,
			components.Pipeline,
			watcher.WithLogger(logger),
		)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		w.SyncExistingFiles()
		watchSvc = w
	}

	srv := server.NewServer(
		components.Store,
		components.Pipeline,
		components.Builder,
		components.Embedder,
		components.ServerEnhancer(),
		cfg,
		logger,
		watchSvc,
		resolvedConfigPath,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front of the slice so that flag.Parse() sees
// them. Go's flag package stops at the first non-flag argument, so
// "yomu query \"question\" -thread t1" would otherwise leave -thread unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	threadID := fs.String("thread", "", "thread to ingest into (required)")
	folderID := fs.String("folder", "", "folder ID recorded on single files")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	exts := fs.String("ext", "", "comma-separated extensions to accept in directories (default: config watch.extensions)")
	force := fs.Bool("force", false, "re-ingest files whose content is unchanged")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: yomu ingest --thread <id> [flags] <file-or-directory>...\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if *threadID == "" || fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	cfg, _, _, components, cleanup := setup(*configPath, *debug)

	allowed := splitList(*exts)
	if len(allowed) == 0 {
		allowed = cfg.Watch.Extensions
	}
	ctx := context.Background()
	progress := cli.NewIngestProgress(os.Stderr, cli.DefaultProgressEnabled())
	var ok, failed int
	for _, arg := range fs.Args() {
		path, _ := filepath.Abs(arg)
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", arg, err)
			failed++
			continue
		}
		if info.IsDir() {
			n, err := components.Pipeline.IngestDirectory(ctx, path, *threadID, *recursive, allowed, func(res indexer.DirectoryResult) {
				if res.Err != nil {
					fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Path, res.Err)
					failed++
					return
				}
				fmt.Fprintf(os.Stderr, "✓ %s\n", res.Path)
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", arg, err)
				failed++
				continue
			}
			ok += n
			continue
		}

		progress.Start(filepath.Base(path))
		fi, err := components.Pipeline.IngestFile(ctx, indexer.IngestRequest{
			Path:          path,
			ThreadID:      *threadID,
			FolderID:      *folderID,
			FileID:        fileid.FromPath(*threadID, path),
			SkipUnchanged: !*force,
		}, progress.Update)
		progress.Finish(err)
		if err != nil {
			failed++
			continue
		}
		cli.WriteFileIndex(os.Stdout, fi)
		ok++
	}
	cleanup()
	fmt.Printf("Ingested %d file(s) into thread %s", ok, *threadID)
	if failed > 0 {
		fmt.Printf(", %d failed\n", failed)
		os.Exit(1)
	}
	fmt.Println()
}

func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: yomu query --thread <id> [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  yomu query --thread t1 what does the contract say about termination
  yomu query --thread t1 --mode full-text "summarize the report"
  yomu query --file 3f2a...,9bc1... --output json "quarterly revenue"
  yomu query --server "" --thread t1 "question"    # direct storage access
`)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)")
	threadID := fs.String("thread", "", "thread to search")
	fileIDs := fs.String("file", "", "comma-separated file IDs to search instead of the whole thread")
	mode := fs.String("mode", "", "retrieval mode: rag, full-text or smart (default from config)")
	topK := fs.Int("top-k", 0, "chunks per file (default from config)")
	var minScore *float64
	fs.Func("min-score", "minimum similarity in [-1, 1] (default from config)", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		minScore = &f
		return nil
	})
	noEnhance := fs.Bool("no-enhance", false, "disable LLM query enhancement")
	noHybrid := fs.Bool("no-hybrid", false, "disable keyword fusion")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	req := models.ContextRequest{
		Query:    buildQuery(fs.Args()),
		ThreadID: *threadID,
		FileIDs:  splitList(*fileIDs),
		TopK:     *topK,
		MinScore: minScore,
		Mode:     models.RetrievalMode(*mode),
	}
	if *noEnhance {
		req.UseEnhancement = new(bool)
	}
	if *noHybrid {
		req.UseHybridSearch = new(bool)
	}
	if err := req.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		printQueryUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	var res cli.ContextResult
	if *serverURL != "" {
		// Use HTTP API when server is running (avoids SQLite/Bleve lock conflict).
		if err := postJSON(*serverURL+"/api/v1/context", req, http.StatusOK, &res); err != nil {
			fatalf("Query failed: %v", err)
		}
	} else {
		cfg, _, _, components, cleanup := setup(*configPath, false)
		defer cleanup()
		res = buildContextDirect(components.Builder, server.ContextOptions(cfg.Retrieval, req), req)
	}
	if err := cli.WriteContext(os.Stdout, &res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// buildContextDirect builds a context in-process, as POST /api/v1/context does.
func buildContextDirect(builder *search.Builder, opts search.ContextOptions, req models.ContextRequest) cli.ContextResult {
	ctx := context.Background()
	var rc models.RAGContext
	if len(req.FileIDs) > 0 {
		rc = builder.BuildRAGContext(ctx, req.FileIDs, req.Query, opts)
	} else {
		rc = builder.BuildThreadContext(ctx, req.ThreadID, req.Query, opts)
	}
	return cli.ContextResult{Context: rc, EnhancedMessage: search.BuildEnhancedMessage(req.Query, &rc)}
}

func runFiles() {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	threadID := fs.String("thread", "", "thread to list (required)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if *threadID == "" {
		fmt.Println("Usage: yomu files --thread <id> [flags]")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	var files []*models.FileIndex
	if *serverURL != "" {
		var out struct {
			Files []*models.FileIndex `json:"files"`
		}
		if err := getJSON(*serverURL+"/api/v1/threads/"+url.PathEscape(*threadID)+"/files", &out); err != nil {
			fatalf("List failed: %v", err)
		}
		files = out.Files
	} else {
		_, _, _, components, cleanup := setup(*configPath, false)
		defer cleanup()
		var err error
		files, err = components.Store.GetFilesByThreadID(context.Background(), *threadID)
		if err != nil {
			fatalf("List failed: %v", err)
		}
	}
	if err := cli.WriteFiles(os.Stdout, files, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	threadID := fs.String("thread", "", "delete every file of this thread instead of one file")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if *threadID == "" && fs.NArg() < 1 {
		fmt.Println("Usage: yomu delete [flags] <file-id>")
		fmt.Println("       yomu delete --thread <id>")
		os.Exit(1)
	}

	_, _, _, components, cleanup := setup(*configPath, false)
	defer cleanup()

	ctx := context.Background()
	if *threadID != "" {
		n, err := components.Pipeline.DeleteThread(ctx, *threadID)
		if err != nil {
			fatalf("Deletion failed: %v", err)
		}
		fmt.Printf("Thread %s deleted (%d file(s))\n", *threadID, n)
		return
	}
	fileID := fs.Arg(0)
	if err := components.Pipeline.DeleteFile(ctx, fileID); err != nil {
		fatalf("Deletion failed: %v", err)
	}
	fmt.Printf("File deleted: %s\n", fileID)
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	StorageBackend string `json:"storage_backend,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	ChunkStrategy  string `json:"chunk_strategy,omitempty"`
	ChunkSize      int    `json:"chunk_size,omitempty"`
	ChunkOverlap   int    `json:"chunk_overlap,omitempty"`
	RetrievalMode  string `json:"retrieval_mode,omitempty"`
	KeywordBackend string `json:"keyword_backend,omitempty"`
	DatabasePath   string `json:"database_path,omitempty"`
	BleveIndexPath string `json:"bleve_index_path,omitempty"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Files          int64                 `json:"files"`
	Chunks         int64                 `json:"chunks"`
	Threads        int64                 `json:"threads"`
	DiskUsageBytes *int64                `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		cfg, _, _, components, cleanup := setup(*configPath, false)
		defer cleanup()
		stats, err := components.Store.Stats(context.Background())
		if err != nil {
			fatalf("Stats failed: %v", err)
		}
		status = statusResponse{
			Files:   stats.Files,
			Chunks:  stats.Chunks,
			Threads: stats.Threads,
			Config: &statusConfigResponse{
				StorageBackend: cfg.Storage.Backend,
				EmbeddingModel: components.Embedder.Model(),
				ChunkStrategy:  cfg.Chunking.Strategy,
				ChunkSize:      cfg.Chunking.ChunkSize,
				ChunkOverlap:   cfg.Chunking.ChunkOverlap,
				RetrievalMode:  cfg.Retrieval.Mode,
				KeywordBackend: cfg.Retrieval.KeywordBackend,
				DatabasePath:   cfg.Storage.DatabasePath,
				BleveIndexPath: cfg.Storage.BleveIndexPath,
			},
		}
		diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.SnapshotPath)
		if err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	if format == cli.OutputJSON {
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	writeStatusText(os.Stdout, &status)
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "files:              %d   # count of ingested files\n", status.Files)
	fmt.Fprintf(w, "chunks:             %d   # count of embedded chunks\n", status.Chunks)
	fmt.Fprintf(w, "threads:            %d\n", status.Threads)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage:         %s   # storage + indices on disk\n", cli.FormatBytes(*status.DiskUsageBytes))
	}
	c := status.Config
	if c == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	rows := []struct{ key, value string }{
		{"storage_backend", c.StorageBackend},
		{"embedding_model", c.EmbeddingModel},
		{"chunk_strategy", c.ChunkStrategy},
		{"retrieval_mode", c.RetrievalMode},
		{"keyword_backend", c.KeywordBackend},
		{"database_path", c.DatabasePath},
		{"bleve_index_path", c.BleveIndexPath},
	}
	if c.ChunkSize > 0 {
		rows = append(rows, struct{ key, value string }{"chunk_size", fmt.Sprint(c.ChunkSize)})
	}
	if c.ChunkOverlap > 0 {
		rows = append(rows, struct{ key, value string }{"chunk_overlap", fmt.Sprint(c.ChunkOverlap)})
	}
	for _, r := range rows {
		if r.value != "" {
			fmt.Fprintf(w, "%-19s %s\n", r.key+":", r.value)
		}
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: yomu watch <add|remove|list> [path]")
		fmt.Println("  yomu watch add <path>     Add directory to watch")
		fmt.Println("  yomu watch remove <path>  Remove directory from watch")
		fmt.Println("  yomu watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	noSync := fs.Bool("no-sync", false, "do not ingest files already in the directory")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	endpoint := *serverURL + "/api/v1/watch/directories"

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fatalf("Usage: yomu watch add <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body := map[string]interface{}{"path": path, "sync": !*noSync}
		if err := postJSON(endpoint, body, http.StatusCreated, nil); err != nil {
			fatalf("Add failed: %v", err)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fatalf("Usage: yomu watch remove <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, endpoint+"?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if err := checkStatus(resp, http.StatusOK); err != nil {
			fatalf("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := getJSON(endpoint, &out); err != nil {
			fatalf("List failed: %v", err)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fatalf("Unknown watch subcommand: %s", sub)
	}
}

func postJSON(endpoint string, body interface{}, want int, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, want); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getJSON(endpoint string, out interface{}) error {
	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func printUsage() {
	fmt.Println(`yomu - Document ingestion and retrieval-augmented context service

Usage:
  yomu server [flags]                      Start the HTTP server and folder watcher
  yomu ingest --thread <id> <path>...      Ingest files or directories
  yomu query --thread <id> <question>      Build RAG context for a question
  yomu files --thread <id>                 List a thread's files
  yomu delete [flags] <file-id>            Delete a file (or --thread <id>)
  yomu status [flags]                      Show store and configuration status
  yomu watch <add|remove|list>             Manage watched directories
  yomu version                             Show version
  yomu help                                Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/yomu/config.yaml)
  --debug            Enable debug logging
  --no-watch         Do not watch the configured directories

Ingest Flags:
  --thread string    Thread to ingest into (required)
  --folder string    Folder ID recorded on single files
  --recursive        Descend into subdirectories (default: true)
  --ext string       Comma-separated extensions accepted in directories
  --force            Re-ingest unchanged files

Query Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --thread string    Thread to search
  --file string      Comma-separated file IDs to search
  --mode string      rag, full-text or smart
  --top-k int        Chunks per file
  --min-score float  Minimum similarity
  --no-enhance       Disable query enhancement
  --no-hybrid        Disable keyword fusion
  --output string    text or json

Files/Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --output string    text or json

Examples:
  yomu server
  yomu ingest --thread research ~/papers
  yomu query --thread research "what datasets were used"
  yomu query --output json --thread research "evaluation metrics"
  yomu files --thread research
  yomu delete 3f2a9c...
  yomu status --output json
  yomu watch add /path/to/docs`)
}
