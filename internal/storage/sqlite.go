package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/yomu/internal/models"
)

// SQLiteStore implements VectorStore on SQLite. Embeddings are stored as
// little-endian float32 BLOBs next to their model name and dimension count.
type SQLiteStore struct {
	db *sql.DB
}

var _ VectorStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		page_count INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		processed_at INTEGER NOT NULL,
		parser_request_id TEXT,
		embedding_model TEXT,
		folder_id TEXT,
		content_hash TEXT,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_files_thread_id ON files(thread_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL,
		thread_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		start_char INTEGER NOT NULL,
		end_char INTEGER NOT NULL,
		embedding BLOB,
		embedding_model TEXT,
		dimensions INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_file_chunk ON chunks(file_id, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_chunks_thread_id ON chunks(thread_id);
	`
	_, err := db.Exec(schema)
	return err
}

const chunkColumns = `c.id, c.file_id, c.thread_id, c.chunk_index, c.text, c.start_char, c.end_char,
	c.embedding, c.embedding_model, c.dimensions, c.metadata, c.created_at`

const fileColumns = `id, thread_id, file_name, file_size, page_count, chunk_count, processed_at,
	parser_request_id, embedding_model, folder_id, content_hash, metadata`

// StoreChunks upserts chunks in one transaction. An upsert keeps the row's
// original position so thread-wide reads stay in first-insertion order.
func (s *SQLiteStore) StoreChunks(ctx context.Context, fileID, threadID string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, file_id, thread_id, chunk_index, text, start_char, end_char,
			embedding, embedding_model, dimensions, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_id = excluded.file_id,
			thread_id = excluded.thread_id,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			start_char = excluded.start_char,
			end_char = excluded.end_char,
			embedding = excluded.embedding,
			embedding_model = excluded.embedding_model,
			dimensions = excluded.dimensions,
			metadata = excluded.metadata,
			created_at = excluded.created_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range prepareChunks(fileID, threadID, chunks) {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}
		var blob []byte
		if len(c.Embedding) > 0 {
			blob = encodeVector(c.Embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.FileID, c.ThreadID, c.ChunkIndex, c.Text, c.StartChar, c.EndChar,
			blob, c.EmbeddingModel, len(c.Embedding), string(metadataJSON), c.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// GetChunksByFileID returns the file's chunks ordered by chunk index.
func (s *SQLiteStore) GetChunksByFileID(ctx context.Context, fileID string) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks c WHERE c.file_id = ? ORDER BY c.chunk_index`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetChunksByThreadID returns the thread's chunks grouped by file in insertion
// order, each file's chunks ordered by chunk index.
func (s *SQLiteStore) GetChunksByThreadID(ctx context.Context, threadID string) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks c
		JOIN (SELECT file_id, MIN(rowid) AS seq FROM chunks WHERE thread_id = ? GROUP BY file_id) o
			ON o.file_id = c.file_id
		WHERE c.thread_id = ?
		ORDER BY o.seq, c.chunk_index`, threadID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]models.Chunk, error) {
	var out []models.Chunk
	for rows.Next() {
		var (
			c         models.Chunk
			blob      []byte
			model     sql.NullString
			dims      int
			metadata  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.FileID, &c.ThreadID, &c.ChunkIndex, &c.Text, &c.StartChar, &c.EndChar,
			&blob, &model, &dims, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		vec, err := decodeVector(blob, dims)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		c.Embedding = vec
		c.EmbeddingModel = model.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
			}
		}
		c.CreatedAt = time.Unix(0, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// StoreFileMetadata upserts the file record.
func (s *SQLiteStore) StoreFileMetadata(ctx context.Context, file *models.FileIndex) error {
	if file == nil || file.ID == "" {
		return errors.New("file id is required")
	}
	if file.ProcessedAt.IsZero() {
		file.ProcessedAt = time.Now()
	}
	return upsertFile(ctx, s.db, file)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertFile(ctx context.Context, db execer, file *models.FileIndex) error {
	metadataJSON, err := marshalFileMetadata(file.Metadata)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id = excluded.thread_id,
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			page_count = excluded.page_count,
			chunk_count = excluded.chunk_count,
			processed_at = excluded.processed_at,
			parser_request_id = excluded.parser_request_id,
			embedding_model = excluded.embedding_model,
			folder_id = excluded.folder_id,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata`,
		file.ID, file.ThreadID, file.FileName, file.FileSize, file.PageCount, file.ChunkCount,
		file.ProcessedAt.UnixNano(), file.ParserRequestID, file.EmbeddingModel, file.FolderID, file.ContentHash, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to store file %s: %w", file.ID, err)
	}
	return nil
}

func marshalFileMetadata(md *models.DocumentMetadata) (sql.NullString, error) {
	if md == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal file metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.FileIndex, error) {
	var (
		f           models.FileIndex
		processedAt int64
		parserReqID sql.NullString
		model       sql.NullString
		folderID    sql.NullString
		contentHash sql.NullString
		metadata    sql.NullString
	)
	if err := row.Scan(&f.ID, &f.ThreadID, &f.FileName, &f.FileSize, &f.PageCount, &f.ChunkCount,
		&processedAt, &parserReqID, &model, &folderID, &contentHash, &metadata); err != nil {
		return nil, err
	}
	f.ProcessedAt = time.Unix(0, processedAt)
	f.ParserRequestID = parserReqID.String
	f.EmbeddingModel = model.String
	f.FolderID = folderID.String
	f.ContentHash = contentHash.String
	if metadata.Valid && metadata.String != "" {
		var md models.DocumentMetadata
		if err := json.Unmarshal([]byte(metadata.String), &md); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file metadata: %w", err)
		}
		f.Metadata = &md
	}
	return &f, nil
}

// GetFileMetadata returns the file record or ErrNotFound.
func (s *SQLiteStore) GetFileMetadata(ctx context.Context, fileID string) (*models.FileIndex, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, fileID)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, fileNotFound(fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetFilesByThreadID returns the thread's files in insertion order.
func (s *SQLiteStore) GetFilesByThreadID(ctx context.Context, threadID string) ([]*models.FileIndex, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE thread_id = ? ORDER BY rowid`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var out []*models.FileIndex
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFileMetadata applies update to the stored record and returns the result.
func (s *SQLiteStore) UpdateFileMetadata(ctx context.Context, fileID string, update models.FileUpdate) (*models.FileIndex, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, fileID)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, fileNotFound(fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if update.Empty() {
		return f, nil
	}
	applyUpdate(f, update)
	if err := upsertFile(ctx, tx, f); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return f, nil
}

// DeleteFile removes the file record and all of its chunks atomically.
func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunksRes, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	fileRes, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	nChunks, _ := chunksRes.RowsAffected()
	nFiles, _ := fileRes.RowsAffected()
	if nChunks == 0 && nFiles == 0 {
		return fileNotFound(fileID)
	}
	return tx.Commit()
}

// DeleteThreadData removes all files and chunks belonging to threadID.
func (s *SQLiteStore) DeleteThreadData(ctx context.Context, threadID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE thread_id = ?`, threadID); err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE thread_id = ?`, threadID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete files: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return int(n), nil
}

// Stats counts files, chunks and distinct threads.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(DISTINCT thread_id) FROM (SELECT thread_id FROM files UNION SELECT thread_id FROM chunks))`,
	).Scan(&st.Files, &st.Chunks, &st.Threads)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count: %w", err)
	}
	return st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
