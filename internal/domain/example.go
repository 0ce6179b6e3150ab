// Package domain defines the core evaluation types shared across the run
// engine: normalized benchmark examples, response and judgment records, run
// summaries, and the deterministic scoring helpers used by the judging phase.
//
// Types in this package are immutable after construction by convention.
// Records are written once by the phase that owns them and never mutated;
// summaries are derived values that can be recomputed from the record set
// at any time.
package domain

import (
	"errors"
	"fmt"
)

// Example validation errors. Validation failures are fatal to the run:
// a malformed example means the canonical dataset build is broken and
// re-running will not help.
var (
	// ErrExampleIDRequired indicates a missing stable example identifier.
	ErrExampleIDRequired = errors.New("example id is required")

	// ErrDatasetRequired indicates a missing dataset name.
	ErrDatasetRequired = errors.New("dataset name is required")

	// ErrInvalidTaskType indicates an unrecognized task type.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrRubricRequired indicates a rubric_qa example without criteria.
	ErrRubricRequired = errors.New("rubric_qa example requires at least one rubric criterion")

	// ErrReferenceRequired indicates a reference_qa example without reference answers.
	ErrReferenceRequired = errors.New("reference_qa example requires at least one reference answer")

	// ErrCorrectChoicesRequired indicates an mcq example without correct choice ids.
	ErrCorrectChoicesRequired = errors.New("mcq example requires metadata.correct_choice_ids")
)

// TaskType selects the grading protocol for an example.
// Each type maps to a distinct judging strategy: independent per-criterion
// rubric calls, one holistic reference comparison, or programmatic
// exact-match grading with no model call.
type TaskType string

const (
	// TaskRubricQA grades with one isolated judge call per rubric criterion.
	TaskRubricQA TaskType = "rubric_qa"

	// TaskReferenceQA grades with a single holistic judge call against
	// the full set of reference answers.
	TaskReferenceQA TaskType = "reference_qa"

	// TaskMCQ grades programmatically by exact choice-id match.
	TaskMCQ TaskType = "mcq"
)

// Valid reports whether the task type is one of the recognized protocols.
func (t TaskType) Valid() bool {
	switch t {
	case TaskRubricQA, TaskReferenceQA, TaskMCQ:
		return true
	default:
		return false
	}
}

// Message roles used in conversation transcripts.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single (role, content) turn in a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DefaultCriterionWeight is applied when a rubric criterion carries no
// explicit weight.
const DefaultCriterionWeight = 1.0

// RubricCriterion is one independently judged aspect of a rubric.
// Weight zero means "unset"; use EffectiveWeight when aggregating.
type RubricCriterion struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
}

// EffectiveWeight returns the criterion weight, defaulting to
// DefaultCriterionWeight when no weight was provided.
func (c RubricCriterion) EffectiveWeight() float64 {
	if c.Weight == 0 {
		return DefaultCriterionWeight
	}
	return c.Weight
}

// Choice is one selectable option of a multiple-choice example.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// NormalizedExample is a canonical benchmark row produced by the dataset
// loader. The id is stable across re-runs so cached responses and artifact
// diffs line up. Attachments are already resolved to extracted text by the
// loader; this engine never touches raw files.
type NormalizedExample struct {
	ID       string   `json:"example_id"`
	Dataset  string   `json:"dataset"`
	TaskType TaskType `json:"task_type"`

	// Instructions and Context form the prompt when Messages is empty.
	// Messages, when present, is a pre-built conversation that takes
	// precedence (e.g. multi-turn datasets).
	Instructions string    `json:"instructions"`
	Context      string    `json:"context,omitempty"`
	Messages     []Message `json:"messages,omitempty"`

	// Task-type-specific payloads. Exactly one family is populated,
	// enforced by Validate.
	Rubric           []RubricCriterion `json:"rubric,omitempty"`
	ReferenceAnswers []string          `json:"reference_answers,omitempty"`
	Choices          []Choice          `json:"choices,omitempty"`
	CorrectChoiceIDs []string          `json:"correct_choice_ids,omitempty"`

	// PolicyID selects the prompt policy; unknown or empty ids fall back
	// to the baseline policy deterministically.
	PolicyID string            `json:"policy_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks the structural invariants of a normalized example.
// It enforces the task-type-specific required fields; a failure here is a
// ValidationError in the run taxonomy and aborts the run before any
// provider call is made.
func (e *NormalizedExample) Validate() error {
	if e.ID == "" {
		return ErrExampleIDRequired
	}
	if e.Dataset == "" {
		return ErrDatasetRequired
	}
	if !e.TaskType.Valid() {
		return fmt.Errorf("%w: %q (example %s)", ErrInvalidTaskType, e.TaskType, e.ID)
	}

	switch e.TaskType {
	case TaskRubricQA:
		if len(e.Rubric) == 0 {
			return fmt.Errorf("%w (example %s)", ErrRubricRequired, e.ID)
		}
	case TaskReferenceQA:
		if len(e.ReferenceAnswers) == 0 {
			return fmt.Errorf("%w (example %s)", ErrReferenceRequired, e.ID)
		}
	case TaskMCQ:
		if len(e.CorrectChoiceIDs) == 0 {
			return fmt.Errorf("%w (example %s)", ErrCorrectChoicesRequired, e.ID)
		}
	}
	return nil
}
