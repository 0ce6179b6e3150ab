package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahrav/go-evalrun/internal/domain"
)

// CurrentCanonicalVersion identifies the canonicalization format. Increment
// when the canonical payload shape changes so stale cache entries stop
// matching instead of colliding.
const CurrentCanonicalVersion = "v1"

// Canonical payload validation errors.
var (
	ErrOperationRequired = errors.New("operation is required")
	ErrProviderRequired  = errors.New("provider is required")
	ErrModelRequired     = errors.New("model is required")
)

// CacheKey is the deterministic SHA-256 hex digest of a canonical payload.
// Two requests are cache-equivalent iff every normalized field matches
// exactly; any difference — provider, model, message content or order, a
// decoding parameter, the schema tag — changes the key.
type CacheKey string

// String returns the hex digest.
func (k CacheKey) String() string { return string(k) }

// canonicalPayload is the stable serialized form of a logical request.
// Field set and order are fixed; encoding/json emits struct fields in
// declaration order, so marshaling is deterministic without extra sorting.
type canonicalPayload struct {
	Version         string           `json:"version"`
	Operation       OperationType    `json:"operation"`
	Provider        string           `json:"provider"`
	Model           string           `json:"model"`
	Messages        []domain.Message `json:"messages"`
	Temperature     float64          `json:"temperature"`
	TopP            *float64         `json:"top_p"`
	MaxTokens       int64            `json:"max_tokens"`
	Seed            *int64           `json:"seed"`
	ReasoningEffort string           `json:"reasoning_effort"`
	SchemaTag       string           `json:"schema_tag"`
}

// BuildCacheKey computes the content-addressed key for a request.
// The request id deliberately does not participate: re-issued requests with
// fresh ids but identical content must hit the same entry.
func BuildCacheKey(req *Request) (CacheKey, error) {
	if req.Operation == "" {
		return "", ErrOperationRequired
	}
	if req.Provider == "" {
		return "", ErrProviderRequired
	}
	if req.Model == "" {
		return "", ErrModelRequired
	}

	payload := canonicalPayload{
		Version:         CurrentCanonicalVersion,
		Operation:       req.Operation,
		Provider:        req.Provider,
		Model:           req.Model,
		Messages:        req.Messages,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxTokens:       req.MaxTokens,
		Seed:            req.Seed,
		ReasoningEffort: req.ReasoningEffort,
		SchemaTag:       req.SchemaTag,
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical payload: %w", err)
	}

	sum := sha256.Sum256(blob)
	return CacheKey(hex.EncodeToString(sum[:])), nil
}
