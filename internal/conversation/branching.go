package conversation

import (
	"sort"
	"strings"
)

// BranchReason is why a branch point was suggested, grounded on
// original_source/crates/sagitta-code/src/agent/conversation/branching.rs's
// BranchReason enum.
type BranchReason string

const (
	ReasonUserUncertainty    BranchReason = "user_uncertainty"
	ReasonErrorRecovery      BranchReason = "error_recovery"
	ReasonAlternativeApproach BranchReason = "alternative_approach"
	ReasonComplexProblem     BranchReason = "complex_problem"
)

// ConversationState is a coarse read of the recent message window used to
// bias branch-point confidence.
type ConversationState string

const (
	StateNormal            ConversationState = "normal"
	StateErrorState        ConversationState = "error_state"
	StateOptionEvaluation  ConversationState = "option_evaluation"
	StateProblemExploration ConversationState = "problem_exploration"
)

// BranchingConfig tunes the Branching Engine.
type BranchingConfig struct {
	AutoBranchThreshold   float64
	MaxActiveBranches     int
	MinMessagesForBranching int
	ContextWindowSize     int
}

// DefaultBranchingConfig mirrors the Rust original's Default impl.
func DefaultBranchingConfig() BranchingConfig {
	return BranchingConfig{
		AutoBranchThreshold:     0.7,
		MaxActiveBranches:       5,
		MinMessagesForBranching: 3,
		ContextWindowSize:       10,
	}
}

var (
	uncertaintyPatterns = []string{"not sure", "uncertain", "maybe", "perhaps", "might work", "could try", "not confident", "unsure"}
	errorPatterns       = []string{"error", "failed", "doesn't work", "not working", "issue", "problem", "bug", "exception"}
	branchKeywords      = []string{"alternative", "different approach", "another way", "try something else", "what if", "maybe we could", "alternatively", "or we could", "let's try", "experiment"}
)

// BranchSuggestion is one candidate branch point with its supporting
// analysis.
type BranchSuggestion struct {
	MessageID          string
	Confidence         float64
	Reason             BranchReason
	SuggestedTitle     string
	SuccessProbability float64
}

// BranchingEngine scans a Conversation for branch-worthy messages, scoring
// each by keyword/state heuristics.
type BranchingEngine struct {
	Config BranchingConfig
}

// NewBranchingEngine returns an engine with the default configuration.
func NewBranchingEngine() *BranchingEngine {
	return &BranchingEngine{Config: DefaultBranchingConfig()}
}

// AnalyzeBranchOpportunities returns branch suggestions sorted by
// confidence descending, truncated to MaxActiveBranches.
func (e *BranchingEngine) AnalyzeBranchOpportunities(conv Conversation) []BranchSuggestion {
	if len(conv.Messages) < e.Config.MinMessagesForBranching {
		return nil
	}

	window := e.recentMessages(conv)
	var suggestions []BranchSuggestion
	for i, msg := range window {
		if s, ok := e.analyzeMessage(msg, window, i); ok && s.Confidence >= e.Config.AutoBranchThreshold {
			suggestions = append(suggestions, s)
		}
	}

	sort.Slice(suggestions, func(i, j int) bool { return suggestions[i].Confidence > suggestions[j].Confidence })
	if len(suggestions) > e.Config.MaxActiveBranches {
		suggestions = suggestions[:e.Config.MaxActiveBranches]
	}
	return suggestions
}

func (e *BranchingEngine) recentMessages(conv Conversation) []Message {
	start := len(conv.Messages) - e.Config.ContextWindowSize
	if start < 0 {
		start = 0
	}
	return conv.Messages[start:]
}

// analyzeMessage scores one message, returning false if confidence never
// reaches the 0.3 floor below which the Rust original discards a
// candidate outright (distinct from AutoBranchThreshold, which gates
// whether a floor-clearing candidate is actually surfaced).
func (e *BranchingEngine) analyzeMessage(msg Message, window []Message, index int) (BranchSuggestion, bool) {
	content := strings.ToLower(msg.Text())
	var confidence float64
	var primaryReason BranchReason
	haveReason := false

	setReason := func(r BranchReason) {
		if !haveReason {
			primaryReason = r
			haveReason = true
		}
	}

	for _, p := range uncertaintyPatterns {
		if strings.Contains(content, p) {
			confidence += 0.3
			setReason(ReasonUserUncertainty)
		}
	}
	for _, p := range errorPatterns {
		if strings.Contains(content, p) {
			confidence += 0.4
			setReason(ReasonErrorRecovery)
		}
	}
	for _, k := range branchKeywords {
		if strings.Contains(content, k) {
			confidence += 0.2
			setReason(ReasonAlternativeApproach)
		}
	}

	switch e.conversationState(window) {
	case StateErrorState:
		confidence += 0.3
	case StateOptionEvaluation:
		confidence += 0.2
	case StateProblemExploration:
		confidence += 0.1
	}

	if msg.Role == RoleUser && strings.Contains(content, "?") {
		confidence += 0.1
		setReason(ReasonUserUncertainty)
	}
	if len(content) > 500 {
		confidence += 0.1
		setReason(ReasonComplexProblem)
	}

	if confidence < 0.3 {
		return BranchSuggestion{}, false
	}
	if !haveReason {
		primaryReason = ReasonAlternativeApproach
	}
	if confidence > 1 {
		confidence = 1
	}

	return BranchSuggestion{
		MessageID:          msg.ID,
		Confidence:         confidence,
		Reason:             primaryReason,
		SuggestedTitle:     branchTitle(primaryReason),
		SuccessProbability: predictSuccess(msg, window, primaryReason),
	}, true
}

// conversationState is a coarse heuristic read of the window: any error
// pattern anywhere in it signals ErrorState; an unanswered "?" in the
// last message signals OptionEvaluation; otherwise Normal.
func (e *BranchingEngine) conversationState(window []Message) ConversationState {
	for _, msg := range window {
		content := strings.ToLower(msg.Text())
		for _, p := range errorPatterns {
			if strings.Contains(content, p) {
				return StateErrorState
			}
		}
	}
	if len(window) > 0 {
		last := strings.ToLower(window[len(window)-1].Text())
		if strings.Contains(last, "?") {
			return StateOptionEvaluation
		}
	}
	return StateNormal
}

func branchTitle(reason BranchReason) string {
	switch reason {
	case ReasonErrorRecovery:
		return "Alternative approach after error"
	case ReasonUserUncertainty:
		return "Exploring an uncertain direction"
	case ReasonComplexProblem:
		return "Deeper dive into complex problem"
	default:
		return "Alternative approach"
	}
}

// predictSuccess blends a base probability with reason- and
// context-length-specific adjustments (the predictor), grounded
// on BranchSuccessPredictor::predict_success.
func predictSuccess(msg Message, window []Message, reason BranchReason) float64 {
	prediction := 0.5
	switch reason {
	case ReasonErrorRecovery:
		prediction += 0.2
	case ReasonAlternativeApproach:
		prediction += 0.1
	}
	if msg.Role == RoleUser {
		prediction += 0.1
	}
	contextFactor := float64(len(window)) / 10.0
	if contextFactor > 1 {
		contextFactor = 1
	}
	prediction += contextFactor * 0.1
	if prediction > 1 {
		prediction = 1
	}
	if prediction < 0 {
		prediction = 0
	}
	return prediction
}
