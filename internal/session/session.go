package session

// Status is the lifecycle state of a session. The known values below are
// the ones this engine writes; unrecognized persisted values round-trip
// unchanged.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// UserAction tags the decision that produced a round. The vocabulary is
// open: callers may record actions outside the known constants.
type UserAction string

const (
	ActionProcessedPrompt           UserAction = "processed_prompt"
	ActionAcceptedSuggestion        UserAction = "accepted_suggestion"
	ActionRejectedSuggestionKeptOld UserAction = "rejected_suggestion_kept_old"
	ActionManualEdit                UserAction = "manual_edit"
	ActionLLMError                  UserAction = "llm_error"
	ActionContinuedNoSuggestion     UserAction = "continued_with_current_no_suggestion"
)

// ScoreRecord is the structured evaluation of one model response. Records
// are value objects: computed once, attached to exactly one round, never
// mutated afterwards.
type ScoreRecord struct {
	IsRefusal             bool    `json:"is_refusal"`
	JailbreakSuccessScore float64 `json:"jailbreak_success_score"`
	DetailScore           float64 `json:"detail_score"`
	SafetyScore           float64 `json:"safety_score"`
	RawResponsePreview    string  `json:"raw_response_preview,omitempty"`
	Notes                 string  `json:"notes,omitempty"`
	// JudgeRawResponse holds the unparsed judge reply for audit. Set only
	// when the record was produced via judge delegation.
	JudgeRawResponse string `json:"judge_raw_response,omitempty"`
	// Error is set instead of scores when the round records a transport
	// failure rather than a real evaluation.
	Error string `json:"error,omitempty"`
}

// Round is one send/evaluate/decide iteration. Rounds are immutable once
// appended; round numbers are 1-based with no gaps.
type Round struct {
	RoundNumber            int         `json:"round_number"`
	Timestamp              string      `json:"timestamp"`
	PromptUsed             string      `json:"prompt_used"`
	LLMResponse            string      `json:"llm_response"`
	Evaluation             ScoreRecord `json:"evaluation_result"`
	ModificationSuggestion string      `json:"modification_suggestion,omitempty"`
	UserAction             UserAction  `json:"user_action,omitempty"`
}

// Session is the persisted document for one refinement conversation.
type Session struct {
	SessionID     string  `json:"session_id"`
	CreatedAt     string  `json:"created_at"`
	InitialPrompt string  `json:"initial_prompt"`
	TargetQuery   string  `json:"target_query,omitempty"`
	Rounds        []Round `json:"rounds"`
	Status        Status  `json:"status"`
}

// Summary is the listing view of a stored session.
type Summary struct {
	SessionID            string `json:"session_id"`
	CreatedAt            string `json:"created_at"`
	InitialPromptSnippet string `json:"initial_prompt_snippet"`
	NumRounds            int    `json:"num_rounds"`
	Status               Status `json:"status"`
}
