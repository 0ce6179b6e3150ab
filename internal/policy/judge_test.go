package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalrun/internal/domain"
)

func rubricExample(policyID string) *domain.NormalizedExample {
	return &domain.NormalizedExample{
		ID:           "rub-1",
		Dataset:      "prbench",
		TaskType:     domain.TaskRubricQA,
		PolicyID:     policyID,
		Instructions: "Draft the clause.",
		Rubric: []domain.RubricCriterion{
			{ID: "c1", Title: "Mentions governing law", Weight: 2},
			{ID: "c2", Title: "Cites precedent", Description: "Cites at least one controlling case."},
		},
	}
}

func TestJudgeMessagesDefault(t *testing.T) {
	ex := referenceExample()
	msgs := JudgeMessages(ex, "The defendant is liable.", 0.7)

	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `"score": float`)

	user := msgs[1].Content
	assert.Contains(t, user, "Dataset: lexam")
	assert.Contains(t, user, "Reference answer:\nLiability under Art. 41 OR.")
	assert.Contains(t, user, "Candidate answer:\nThe defendant is liable.")
	assert.Contains(t, user, "pass=true when score >= 0.700")
}

func TestJudgeMessagesLexam(t *testing.T) {
	ex := referenceExample()
	ex.PolicyID = LexamOQV1

	msgs := JudgeMessages(ex, "Art. 41 applies.", 0.7)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "Swiss law schools exams")

	user := msgs[1].Content
	assert.Contains(t, user, "increments of 0.1")
	assert.Contains(t, user, "Question:\n```Discuss the liability question.```")
	assert.Contains(t, user, "Model's Answer:\n```[Art. 41 applies.]```")
}

func TestJudgeMessagesMultipleReferences(t *testing.T) {
	ex := referenceExample()
	ex.ReferenceAnswers = []string{"first", "second"}

	msgs := JudgeMessages(ex, "answer", 0.7)
	assert.Contains(t, msgs[1].Content, "first\n---\nsecond")
}

func TestCriterionJudgeMessagesDefault(t *testing.T) {
	ex := rubricExample("")
	msgs := CriterionJudgeMessages(ex, "My draft.", ex.Rubric[0], 0)

	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, `"grade": 0|1`)

	user := msgs[1].Content
	assert.Contains(t, user, "Evaluate only this single rubric criterion:")
	assert.Contains(t, user, "- c1: Mentions governing law (weight_hint=2)")
	assert.Contains(t, user, `Set criterion_id exactly to "c1"`)
}

func TestCriterionJudgeMessagesPRBench(t *testing.T) {
	ex := rubricExample(PRBenchV1)
	ex.Messages = []domain.Message{{Role: domain.RoleUser, Content: "Draft the clause."}}

	output := "<think>secret steps</think>Final clause text."
	msgs := CriterionJudgeMessages(ex, output, ex.Rubric[0], 0)

	// Transcript grader is a single user turn with no system prompt.
	require.Len(t, msgs, 1)
	user := msgs[0].Content
	assert.Contains(t, user, "# Conversation")
	assert.Contains(t, user, "user: Draft the clause.")
	assert.Contains(t, user, "assistant: Final clause text.")
	assert.NotContains(t, user, "secret steps")
	assert.Contains(t, user, "# Rubric item\nMentions governing law")
	assert.Contains(t, user, `"criteria_met"`)
}

func TestCriterionJudgeMessagesApex(t *testing.T) {
	ex := rubricExample(ApexV1ExtendedV1)
	msgs := CriterionJudgeMessages(ex, "The response.", ex.Rubric[1], 1)

	require.Len(t, msgs, 1)
	user := msgs[0].Content
	// Apex prefers the description over the title.
	assert.Contains(t, user, "Criterion to evaluate: Cites at least one controlling case.")
	assert.Contains(t, user, "Response to evaluate: The response.")
	assert.Contains(t, user, `"result": <1 or 0>`)
}

func TestCriterionJudgeMessagesPositionalID(t *testing.T) {
	ex := rubricExample("")
	anon := domain.RubricCriterion{}

	msgs := CriterionJudgeMessages(ex, "output", anon, 2)
	assert.Contains(t, msgs[1].Content, "criterion_3")
}

func TestPostprocessJudgeResultLexam(t *testing.T) {
	ex := referenceExample()
	ex.PolicyID = LexamOQV1

	result := PostprocessJudgeResult(ex, domain.JudgeResult{
		Score:    0.73,
		Passed:   true,
		Criteria: map[string]float64{"overall": 0.73},
	}, 0.7)

	assert.InDelta(t, 0.7, result.Score, 1e-9)
	assert.True(t, result.Passed)
	assert.InDelta(t, 0.7, result.Criteria["overall"], 1e-9)

	// Round-half-up at the midpoint.
	result = PostprocessJudgeResult(ex, domain.JudgeResult{Score: 0.65}, 0.7)
	assert.InDelta(t, 0.7, result.Score, 1e-9)
	assert.True(t, result.Passed)
}

func TestPostprocessJudgeResultOtherPoliciesUntouched(t *testing.T) {
	in := domain.JudgeResult{Score: 0.73, Passed: true}

	out := PostprocessJudgeResult(referenceExample(), in, 0.7)
	assert.Equal(t, in, out)

	// Lexam MCQ examples are graded programmatically, never quantized.
	ex := referenceExample()
	ex.PolicyID = LexamMCQV1
	assert.Equal(t, in, PostprocessJudgeResult(ex, in, 0.7))
}

func TestPostprocessPreservesDetailedCriteria(t *testing.T) {
	ex := referenceExample()
	ex.PolicyID = LexamOQV1

	result := PostprocessJudgeResult(ex, domain.JudgeResult{
		Score:    0.82,
		Criteria: map[string]float64{"accuracy": 0.9, "completeness": 0.7},
	}, 0.7)

	assert.InDelta(t, 0.8, result.Score, 1e-9)
	// Criterion-level detail from the judge is not collapsed.
	assert.Equal(t, map[string]float64{"accuracy": 0.9, "completeness": 0.7}, result.Criteria)
}
