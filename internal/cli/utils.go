// Package cli provides output helpers for the yomu command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hyperjump/yomu/internal/models"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" and "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// ContextResult is what the query command prints.
type ContextResult struct {
	Context         models.RAGContext `json:"context"`
	EnhancedMessage string            `json:"enhanced_message"`
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteContext writes a built context in the given format.
func WriteContext(w io.Writer, res *ContextResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	rc := res.Context
	mode := string(rc.Mode)
	if rc.IsFullText {
		mode += ", full text"
	}
	fmt.Fprintf(w, "\nQuery: %s (%s)\n", rc.Query, mode)
	if len(rc.SearchTerms) > 0 {
		fmt.Fprintf(w, "Search terms: %s\n", strings.Join(rc.SearchTerms, ", "))
	}
	if rc.Empty() {
		fmt.Fprintln(w, "\nNo relevant context found.")
		return nil
	}
	if len(rc.RelevantChunks) > 0 {
		fmt.Fprintf(w, "\n%d relevant chunk(s)\n\n", len(rc.RelevantChunks))
		for i, c := range rc.RelevantChunks {
			writeChunk(w, i+1, c)
		}
	}
	fmt.Fprintln(w, "--- Enhanced message ---")
	fmt.Fprintln(w, res.EnhancedMessage)
	return nil
}

func writeChunk(w io.Writer, rank int, c models.ScoredChunk) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%d] %s #%d | Score: %.4f", rank, c.FileName, c.ChunkIndex, c.Score)
	if c.KeywordScore > 0 {
		fmt.Fprintf(w, " (Vector: %.4f, Keyword: %.4f)", c.VectorScore, c.KeywordScore)
	}
	fmt.Fprintf(w, "\n\n%s\n\n", TruncateWords(c.Text, 60))
}

// WriteFiles writes a file listing in the given format.
func WriteFiles(w io.Writer, files []*models.FileIndex, format OutputFormat) error {
	if format == OutputJSON {
		if files == nil {
			files = []*models.FileIndex{}
		}
		return WriteJSON(w, map[string]interface{}{"files": files})
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "No files.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tCHUNKS\tMODEL\tPROCESSED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			f.ID, Truncate(f.FileName, 40), FormatBytes(f.FileSize), f.ChunkCount,
			f.EmbeddingModel, f.ProcessedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// WriteFileIndex prints a one-file summary after ingestion.
func WriteFileIndex(w io.Writer, f *models.FileIndex) {
	fmt.Fprintf(w, "%s  %s  (%d chunks, %s)\n", f.ID, f.FileName, f.ChunkCount, FormatBytes(f.FileSize))
	if f.Metadata != nil && f.Metadata.Summary != "" {
		fmt.Fprintf(w, "  %s\n", TruncateWords(f.Metadata.Summary, 30))
	}
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 0 || len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
