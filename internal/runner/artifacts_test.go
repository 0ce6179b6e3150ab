package runner

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalrun/internal/domain"
)

func TestJSONLWriterRoundTrip(t *testing.T) {
	outputDir := t.TempDir()
	w, err := NewJSONLWriter(outputDir, "run-test")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outputDir, "run-test"), w.Dir())

	responses := []domain.ResponseRecord{
		{ExampleID: "a", Dataset: "d", TaskType: domain.TaskReferenceQA, Candidate: "c1", Text: "first"},
		{ExampleID: "b", Dataset: "d", TaskType: domain.TaskReferenceQA, Candidate: "c1", Error: "boom"},
	}
	judgments := []domain.JudgmentRecord{
		{ExampleID: "a", Dataset: "d", Candidate: "c1", Score: 0.8, Passed: true},
		{ExampleID: "b", Dataset: "d", Candidate: "c1", Unjudged: true, Error: "generation failed: boom"},
	}
	summary := domain.ComputeSummary("run-test", responses, judgments)

	require.NoError(t, w.WriteResponses(responses))
	require.NoError(t, w.WriteJudgments(judgments))
	require.NoError(t, w.WriteSummary(summary))

	var gotResponses []domain.ResponseRecord
	readJSONL(t, filepath.Join(w.Dir(), "responses.jsonl"), func(line []byte) {
		var r domain.ResponseRecord
		require.NoError(t, json.Unmarshal(line, &r))
		gotResponses = append(gotResponses, r)
	})
	assert.Equal(t, responses, gotResponses)

	var gotJudgments []domain.JudgmentRecord
	readJSONL(t, filepath.Join(w.Dir(), "judgments.jsonl"), func(line []byte) {
		var r domain.JudgmentRecord
		require.NoError(t, json.Unmarshal(line, &r))
		gotJudgments = append(gotJudgments, r)
	})
	assert.Equal(t, judgments, gotJudgments)

	data, err := os.ReadFile(filepath.Join(w.Dir(), "summary.json"))
	require.NoError(t, err)
	var gotSummary domain.RunSummary
	require.NoError(t, json.Unmarshal(data, &gotSummary))
	assert.Equal(t, summary, gotSummary)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestJSONLWriterEmptyRecords(t *testing.T) {
	w, err := NewJSONLWriter(t.TempDir(), "run-empty")
	require.NoError(t, err)

	require.NoError(t, w.WriteResponses(nil))
	data, err := os.ReadFile(filepath.Join(w.Dir(), "responses.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func readJSONL(t *testing.T, path string, fn func([]byte)) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		fn(scanner.Bytes())
	}
	require.NoError(t, scanner.Err())
}
