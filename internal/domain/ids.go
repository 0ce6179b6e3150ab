package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Stage labels requests by the phase that issued them. The stage is part of
// the request id and the cache key, so a generation call and a judge call
// over identical messages never collide.
type Stage string

const (
	// StageGeneration marks candidate response calls.
	StageGeneration Stage = "generation"

	// StageJudging marks judge calls.
	StageJudging Stage = "judging"
)

// RequestID derives a deterministic request id from the run, stage, model,
// and unit key. Name-based UUIDs keep ids stable across re-runs so cached
// artifacts from identical inputs are directly comparable.
func RequestID(runID string, stage Stage, modelName, unitKey string) string {
	name := fmt.Sprintf("%s:%s:%s:%s", runID, stage, modelName, unitKey)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
