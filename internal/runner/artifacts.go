package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ahrav/go-evalrun/internal/domain"
)

// ArtifactWriter persists the run's outputs. Records arrive already sorted,
// so implementations write them in order and repeated runs over identical
// inputs produce byte-comparable artifacts modulo timestamps.
type ArtifactWriter interface {
	WriteResponses(records []domain.ResponseRecord) error
	WriteJudgments(records []domain.JudgmentRecord) error
	WriteSummary(summary domain.RunSummary) error
}

// JSONLWriter writes newline-delimited JSON artifacts into one run
// directory: responses.jsonl, judgments.jsonl and summary.json.
type JSONLWriter struct {
	dir string
}

// NewJSONLWriter creates the run output directory and a writer rooted there.
func NewJSONLWriter(outputDir, runID string) (*JSONLWriter, error) {
	dir := filepath.Join(outputDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", dir, err)
	}
	return &JSONLWriter{dir: dir}, nil
}

// Dir returns the run output directory.
func (w *JSONLWriter) Dir() string { return w.dir }

// WriteResponses implements ArtifactWriter.
func (w *JSONLWriter) WriteResponses(records []domain.ResponseRecord) error {
	return writeJSONL(filepath.Join(w.dir, "responses.jsonl"), records)
}

// WriteJudgments implements ArtifactWriter.
func (w *JSONLWriter) WriteJudgments(records []domain.JudgmentRecord) error {
	return writeJSONL(filepath.Join(w.dir, "judgments.jsonl"), records)
}

// WriteSummary implements ArtifactWriter.
func (w *JSONLWriter) WriteSummary(summary domain.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	path := filepath.Join(w.dir, "summary.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeJSONL[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	enc := json.NewEncoder(f)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
