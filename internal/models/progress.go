package models

// Stage is an ingestion pipeline stage.
type Stage string

const (
	StageUploading Stage = "uploading"
	StageParsing   Stage = "parsing"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageStoring   Stage = "storing"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// ProgressEvent reports ingestion progress. Progress is in [0, 100] and
// never decreases within one ingestion run.
type ProgressEvent struct {
	Stage    Stage  `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// ProgressFunc receives progress events.
type ProgressFunc func(ProgressEvent)
