package policy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ahrav/go-evalrun/internal/domain"
)

const judgeSystemPrompt = "You are a strict LLM judge. Return only valid JSON and no markdown. " +
	"The JSON schema is: " +
	`{"score": float, "pass": bool, "rationale": str, "criteria": {"name": float}}. ` +
	"score must be between 0 and 1."

const criterionJudgeSystemPrompt = "You are a strict LLM judge. Return only valid JSON and no markdown. " +
	"The JSON schema is: " +
	`{"grade": 0|1, "reasoning": str, "criterion_id": str}. ` +
	"grade must be exactly 0 or 1."

const lexamJudgeSystem = "Act as a Judge specializing in the evaluation of Swiss law schools exams. " +
	"Your task is to assess how well the response aligns with the reference answer, with a focus on " +
	"accuracy, completeness, and legal reasoning."

const lexamJudgeUserPrompt = `Goal:
Your task is to assess how well the response aligns with the reference answer, with a focus on accuracy, completeness, and legal reasoning.

Context:
You will be provided with a response (labeled: Model's Answer) to a law school exam question (labeled: Question) and a reference answer (labeled: Reference Answer).

Return format:
    After reviewing the response:
    1. Explanation: Briefly explain your reasoning regarding how the response conforms to or deviates from the reference answer.
    2. Constructive feedback: Additionally, provide neutral, constructive feedback and corrections in the style of a university professor.
    3. Correctness score: Assign a final correctness score on a scale from 0.0 to 1.0 (in increments of 0.1). This score should reflect the extent to which the response satisfies the reference answer, where
        - 1.0 = complete fulfillment (100%)
        - lower scores reflect proportionate shortfalls (e.g. 0.5 = 50% fulfillment).
        - The correctness score will be provided in the JSON output format specified below.

Warnings:
    - In some cases, the reference answer may include only keywords or factual elements to be examined, along with (+), (-) or (+/-). Respect these indications when determining correctness:
        - (+) means the element must be affirmed.
        - (–) means the element must be denied.
        - (-/+) indicates that arguments in either direction are acceptable if legally sound.
    - Deviations or additional elements not found in the reference answer should generally be penalized unless you are certain they are legally correct and relevant. Assume the reference answer includes all information necessary for a perfect response.
    - The reference answer may contain citations (e.g., from books or law review articles), which the response does not need to replicate. However, statutes should be cited precisely, specifying Abs., Ziff., or lit. whenever applicable.
    - If the reference answer includes separate sub-points, use these for proportional scoring guidance (e.g., addressing 2 out of 4 sub-points correctly equals approximately a 0.5 score).
Judge the below case, give the brief reasoning process and the final grade.
`

const lexamJSONOutputInstruction = "Return only valid JSON (no markdown) with exactly this schema:\n" +
	`{"score": <float 0.0-1.0 step 0.1>, "rationale": "<brief explanation>", "constructive_feedback": "<neutral professor-style feedback>", "criteria": {"overall": <same score>}, "pass": <bool>}`

const prbenchGraderTemplate = `Your job is to look at a conversation and a rubric item, and score the last turn (i.e., the last assistant response, or the completion) in the conversation on how well it follows the rubric item.

# Conversation
<<conversation>>

# Rubric item
<<rubric_item>>

# Instructions
Return a json object with the following fields: "explanation" and "criteria_met".
- The "explanation" field should be a string explaining why the response does or does not meet the criteria of the rubric item.
- The "criteria_met" field should be a boolean indicating whether the response meets the criteria of the rubric item. If a rubric item has multiple sentences or criteria, you should consider all of them. If any of the criteria is not met, the answer should be false. Only return true if all of the criteria are met.
- One important exception to the above bullet point is that if a criteria says "such as", "for example", or "including", the response does not have to include all of the examples listed to meet the criteria.
- Note that sometimes the criteria may be something undesirable. In this case, you should still return whether the criteria is met, and not whether the response is good or not: a good response should be classified as false because it does not meet the undesirable criteria.

# Final instruction
Return just the json object in markdown format. Do not include any other text in the response.
`

const apexGraderTemplate = `You are evaluating a model-generated response
against a specific criterion. Your task is to
determine if the response satisfies this criterion and provide a concise explanation.

Criterion to evaluate: %s

Response to evaluate: %s

Instructions:
1. First, analyze the response against the given criterion.
2. Determine if the response fully satisfies the criterion (result = 1) or not (result = 0).
3. Provide a concise explanation (maximum 2-3 sentences) that:
    a. States whether the criterion is met or not
    b. Points to specific evidence from the response
    c. Avoids unnecessary details or repetition

Return your evaluation in the following JSON format:
{
    "result": <1 or 0>,
    "reason": "<concise explanation>"
}

Keep your explanation brief and focus on the key points that justify your result.
`

// JudgeMessages builds the holistic judge prompt for reference and MCQ
// examples graded by a model. Rubric examples normally go through
// CriterionJudgeMessages instead.
func JudgeMessages(example *domain.NormalizedExample, modelOutput string, passThreshold float64) []domain.Message {
	p := Resolve(example.PolicyID)
	if p.ID == LexamOQV1 && example.TaskType == domain.TaskReferenceQA {
		return lexamJudgeMessages(example, modelOutput)
	}

	user := fmt.Sprintf(
		"Dataset: %s\nTask type: %s\n\nTask instructions:\n%s\n\nTask context:\n%s\n\nReference answer:\n%s\n\nRubric criteria:\n%s\n\nCandidate answer:\n%s\n\n%s",
		example.Dataset,
		example.TaskType,
		example.Instructions,
		orNone(example.Context),
		orNone(referenceText(example)),
		rubricForPrompt(example.Rubric),
		modelOutput,
		judgeInstruction(example, passThreshold),
	)
	return []domain.Message{
		{Role: domain.RoleSystem, Content: judgeSystemPrompt},
		{Role: domain.RoleUser, Content: user},
	}
}

// CriterionJudgeMessages builds the isolated judge prompt for one rubric
// criterion. ordinal is the criterion's zero-based position in the rubric.
// The prompt family depends on the policy's rubric style; every family asks
// for a binary verdict so criterion scores compose into the weighted mean.
func CriterionJudgeMessages(example *domain.NormalizedExample, modelOutput string, criterion domain.RubricCriterion, ordinal int) []domain.Message {
	p := Resolve(example.PolicyID)
	cleaned := cleanModelOutput(p, modelOutput)

	switch {
	case p.RubricStyle == RubricStyleCriterionBinary:
		item := strings.TrimSpace(criterion.Title)
		if item == "" {
			item = criterionID(criterion, ordinal)
		}
		user := strings.NewReplacer(
			"<<conversation>>", conversationForJudge(example, cleaned),
			"<<rubric_item>>", item,
		).Replace(prbenchGraderTemplate)
		return []domain.Message{{Role: domain.RoleUser, Content: user}}

	case p.ID == ApexV1ExtendedV1:
		desc := strings.TrimSpace(criterion.Description)
		if desc == "" {
			desc = strings.TrimSpace(criterion.Title)
		}
		if desc == "" {
			desc = criterionID(criterion, ordinal)
		}
		user := fmt.Sprintf(apexGraderTemplate, desc, cleaned)
		return []domain.Message{{Role: domain.RoleUser, Content: user}}
	}

	id := criterionID(criterion, ordinal)
	idJSON, _ := json.Marshal(id)
	user := fmt.Sprintf(
		"Dataset: %s\nTask type: rubric_qa\n\nTask instructions:\n%s\n\nTask context:\n%s\n\nReference answer:\n%s\n\nEvaluate only this single rubric criterion:\n%s\n\nCandidate answer:\n%s\n\nScore only criterion '%s'. Assign grade=1 only if the criterion is clearly satisfied; otherwise grade=0. Set criterion_id exactly to %s. Return only this JSON object: {\"grade\": 0|1, \"reasoning\": str, \"criterion_id\": str}.",
		example.Dataset,
		example.Instructions,
		orNone(example.Context),
		orNone(referenceText(example)),
		criterionLine(criterion, ordinal),
		cleaned,
		id,
		string(idJSON),
	)
	return []domain.Message{
		{Role: domain.RoleSystem, Content: criterionJudgeSystemPrompt},
		{Role: domain.RoleUser, Content: user},
	}
}

func lexamJudgeMessages(example *domain.NormalizedExample, modelOutput string) []domain.Message {
	user := fmt.Sprintf(
		"%s\n\n%s\n\nQuestion:\n```%s```\n\nReference Answer:\n```%s```\n\nModel's Answer:\n```[%s]```\n\nYour Judgment:\n",
		lexamJudgeUserPrompt,
		lexamJSONOutputInstruction,
		example.Instructions,
		referenceText(example),
		modelOutput,
	)
	return []domain.Message{
		{Role: domain.RoleSystem, Content: lexamJudgeSystem},
		{Role: domain.RoleUser, Content: user},
	}
}

func judgeInstruction(example *domain.NormalizedExample, passThreshold float64) string {
	switch example.TaskType {
	case domain.TaskMCQ:
		return fmt.Sprintf(
			"Evaluate as multiple-choice grading. Infer the option selected by the candidate answer. "+
				"Give score=1.0 only if selected option matches the reference option exactly; else score=0.0. "+
				"Set criteria as {'exact_match': score}. Set pass=true only when score >= %.3f.", passThreshold)
	case domain.TaskRubricQA:
		if Resolve(example.PolicyID).RubricStyle == RubricStyleCriterionBinary {
			return fmt.Sprintf(
				"Evaluate each rubric criterion independently with a binary score (1 if met, 0 if not met). "+
					"Set criteria as a mapping from criterion IDs to 0 or 1. "+
					"Set overall score as weighted criterion fulfillment in [0,1]. "+
					"Set pass=true when score >= %.3f.", passThreshold)
		}
		return fmt.Sprintf(
			"Evaluate against the rubric criteria. Score should reflect weighted rubric fulfillment and overall quality. "+
				"Populate criteria with criterion-level scores in [0,1]. Set pass=true when score >= %.3f.", passThreshold)
	default:
		return fmt.Sprintf(
			"Evaluate against reference answer and context for factual/semantic correctness. "+
				"Populate criteria as {'overall': score}. Set pass=true when score >= %.3f.", passThreshold)
	}
}

var thinkingBlockRE = regexp.MustCompile(`(?is)<(?:think|thinking|reasoning|analysis)\b[^>]*>.*?</(?:think|thinking|reasoning|analysis)>`)

// cleanModelOutput strips chain-of-thought blocks before judging for
// policies graded on the visible answer only.
func cleanModelOutput(p Policy, text string) string {
	if p.ID != PRBenchV1 {
		return text
	}
	return strings.TrimSpace(thinkingBlockRE.ReplaceAllString(text, ""))
}

// conversationForJudge renders the full exchange, candidate turn last, for
// transcript-style grader prompts.
func conversationForJudge(example *domain.NormalizedExample, modelOutput string) string {
	var lines []string
	if len(example.Messages) > 0 {
		for _, msg := range example.Messages {
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			lines = append(lines, msg.Role+": "+msg.Content)
		}
	} else {
		lines = append(lines, "user: "+example.Instructions)
		if example.Context != "" {
			lines = append(lines, "context: "+example.Context)
		}
	}
	lines = append(lines, "assistant: "+modelOutput)
	return strings.Join(lines, "\n")
}

func rubricForPrompt(rubric []domain.RubricCriterion) string {
	if len(rubric) == 0 {
		return "No rubric provided."
	}
	lines := make([]string, 0, len(rubric))
	for i, item := range rubric {
		lines = append(lines, criterionLine(item, i))
	}
	return strings.Join(lines, "\n")
}

func criterionLine(item domain.RubricCriterion, ordinal int) string {
	title := item.Title
	if title == "" {
		title = fmt.Sprintf("Criterion %d", ordinal+1)
	}
	return fmt.Sprintf("- %s: %s (weight_hint=%g)", criterionID(item, ordinal), title, item.EffectiveWeight())
}

func criterionID(item domain.RubricCriterion, ordinal int) string {
	if id := strings.TrimSpace(item.ID); id != "" {
		return id
	}
	return fmt.Sprintf("criterion_%d", ordinal+1)
}

func referenceText(example *domain.NormalizedExample) string {
	return strings.Join(example.ReferenceAnswers, "\n---\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
