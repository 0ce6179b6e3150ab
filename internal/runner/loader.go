package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ahrav/go-evalrun/internal/config"
	"github.com/ahrav/go-evalrun/internal/domain"
)

// ExampleLoader yields normalized examples for one configured dataset.
// Attachments are already resolved to extracted text upstream; loaders here
// only read canonical rows.
type ExampleLoader interface {
	Load(ctx context.Context, dataset config.DatasetConfig) ([]domain.NormalizedExample, error)
}

// JSONLLoader reads canonical datasets stored as one NormalizedExample JSON
// object per line.
type JSONLLoader struct{}

// Load implements ExampleLoader. Every row is validated on read; a malformed
// row is fatal because the canonical dataset build is broken.
func (JSONLLoader) Load(ctx context.Context, dataset config.DatasetConfig) ([]domain.NormalizedExample, error) {
	f, err := os.Open(dataset.Path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", dataset.Name, err)
	}
	defer f.Close()

	var examples []domain.NormalizedExample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var example domain.NormalizedExample
		if err := json.Unmarshal(raw, &example); err != nil {
			return nil, fmt.Errorf("dataset %s line %d: %w", dataset.Name, line, err)
		}
		if example.Dataset == "" {
			example.Dataset = dataset.Name
		}
		if err := example.Validate(); err != nil {
			return nil, fmt.Errorf("dataset %s line %d: %w", dataset.Name, line, err)
		}

		examples = append(examples, example)
		if dataset.Limit > 0 && len(examples) >= dataset.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", dataset.Name, err)
	}
	return examples, nil
}
