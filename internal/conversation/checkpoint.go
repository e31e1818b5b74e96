package conversation

// CheckpointEngine suggests checkpoints — messages worth being able to
// return to — within a conversation. This is a light heuristic rather
// than a ported algorithm: every message whose BranchingEngine-style
// confidence score would clear a (lower) checkpoint threshold, plus the
// first and last
// message of the conversation, is suggested.
type CheckpointEngine struct {
	Branching           *BranchingEngine
	CheckpointThreshold float64
}

// NewCheckpointEngine returns a CheckpointEngine sharing the pattern
// lists and scoring of a BranchingEngine, at a lower bar than branching
// since not every checkpoint-worthy moment is branch-worthy.
func NewCheckpointEngine() *CheckpointEngine {
	return &CheckpointEngine{Branching: NewBranchingEngine(), CheckpointThreshold: 0.4}
}

// SuggestCheckpoints returns Checkpoints for messages scoring above
// CheckpointThreshold, plus the conversation's first and last message if
// not already covered — so a restore point always exists at the start
// and end of the conversation regardless of content.
func (e *CheckpointEngine) SuggestCheckpoints(conv Conversation) []Checkpoint {
	if len(conv.Messages) == 0 {
		return nil
	}

	seen := map[string]struct{}{}
	var out []Checkpoint

	addCheckpoint := func(msg Message, title string, importance float64, auto bool) {
		if _, ok := seen[msg.ID]; ok {
			return
		}
		seen[msg.ID] = struct{}{}
		out = append(out, Checkpoint{
			MessageID:     msg.ID,
			Title:         title,
			AutoGenerated: auto,
			Importance:    importance,
			CreatedAt:     msg.Timestamp,
		})
	}

	for i, msg := range conv.Messages {
		suggestion, ok := e.Branching.analyzeMessage(msg, conv.Messages, i)
		if !ok || suggestion.Confidence < e.CheckpointThreshold {
			continue
		}
		addCheckpoint(msg, branchTitle(suggestion.Reason), suggestion.Confidence, true)
	}

	addCheckpoint(conv.Messages[0], "Conversation start", 1.0, true)
	addCheckpoint(conv.Messages[len(conv.Messages)-1], "Latest message", 0.5, true)

	return out
}
