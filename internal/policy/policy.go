// Package policy maps benchmark datasets to their prompt construction and
// judging behavior. The policy set is closed: every known policy lives in a
// static table, and unknown or empty policy ids resolve deterministically to
// the baseline policy so a typo in dataset metadata degrades to default
// behavior instead of failing the run.
package policy

// RubricStyle selects how per-criterion judge prompts ask for verdicts.
type RubricStyle string

const (
	// RubricStyleDefault asks for a 0/1 grade with the engine's own prompt.
	RubricStyleDefault RubricStyle = "default"

	// RubricStyleCriterionBinary uses the conversation-transcript grader
	// prompt with a criteria_met boolean verdict.
	RubricStyleCriterionBinary RubricStyle = "criterion_binary"
)

// Known policy ids.
const (
	DefaultV1        = "default_v1"
	PRBenchV1        = "prbench_v1"
	ApexV1ExtendedV1 = "apexv1_extended_v1"
	LexamOQV1        = "lexam_oq_v1"
	LexamMCQV1       = "lexam_mcq_v1"
	IncludeBaseV1    = "includebase_default_v1"
	LarECHRMCQV1     = "lar_echr_mcq_v1"
)

// Policy bundles the prompt-construction knobs for one dataset family.
type Policy struct {
	ID string

	// UseDefaultSystemPrompt prepends the run-level system prompt to
	// generation messages. Benchmarks that ship their own conversation
	// turns disable it to match the source harness.
	UseDefaultSystemPrompt bool

	// GenerationPrefix is prepended task guidance, empty for most policies.
	GenerationPrefix string

	// MCQJSONAnswer appends the JSON answer-format instruction to MCQ
	// generation prompts so the grader can parse the selected choice.
	MCQJSONAnswer bool

	// RubricStyle selects the per-criterion judge prompt family.
	RubricStyle RubricStyle

	// MergeGuidanceIntoUser folds policy guidance into the first user turn
	// instead of appending a separate message.
	MergeGuidanceIntoUser bool
}

var defaultPolicy = Policy{
	ID:                     DefaultV1,
	UseDefaultSystemPrompt: true,
	MCQJSONAnswer:          true,
	RubricStyle:            RubricStyleDefault,
}

var policies = map[string]Policy{
	PRBenchV1: {
		ID:            PRBenchV1,
		MCQJSONAnswer: true,
		RubricStyle:   RubricStyleCriterionBinary,
	},
	ApexV1ExtendedV1: {
		ID:                    ApexV1ExtendedV1,
		MCQJSONAnswer:         true,
		RubricStyle:           RubricStyleDefault,
		MergeGuidanceIntoUser: true,
	},
	LexamOQV1: {
		ID:            LexamOQV1,
		MCQJSONAnswer: true,
		RubricStyle:   RubricStyleDefault,
	},
	LexamMCQV1: {
		ID:            LexamMCQV1,
		MCQJSONAnswer: true,
		RubricStyle:   RubricStyleDefault,
	},
	IncludeBaseV1: {
		ID:                     IncludeBaseV1,
		UseDefaultSystemPrompt: true,
		MCQJSONAnswer:          true,
		RubricStyle:            RubricStyleDefault,
	},
	LarECHRMCQV1: {
		ID:                     LarECHRMCQV1,
		UseDefaultSystemPrompt: true,
		GenerationPrefix: "You are answering an ECHR argument-continuation multiple-choice question. " +
			"Choose the single best continuation based on the provided facts and argument excerpt.",
		MCQJSONAnswer: true,
		RubricStyle:   RubricStyleDefault,
	},
}

// Resolve returns the policy for the given id, falling back to the baseline
// policy when the id is empty or unknown.
func Resolve(id string) Policy {
	if p, ok := policies[id]; ok {
		return p
	}
	return defaultPolicy
}
