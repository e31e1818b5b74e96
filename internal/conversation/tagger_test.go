package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleBasedTaggerDetectsRustKeywords(t *testing.T) {
	tagger := NewRuleBasedTagger()
	conv := Conversation{
		Title:    "fixing a cargo build error",
		Messages: []Message{NewUserMessage("1", "my impl Trait won't compile with cargo")},
	}
	suggestions := tagger.SuggestTags(conv)
	var tags []string
	for _, s := range suggestions {
		tags = append(tags, s.Tag)
	}
	assert.Contains(t, tags, "rust")
	assert.Contains(t, tags, "debugging")
}

func TestRuleBasedTaggerRulesAreSortedByPriority(t *testing.T) {
	tagger := NewRuleBasedTagger()
	for i := 1; i < len(tagger.rules); i++ {
		assert.GreaterOrEqual(t, tagger.rules[i-1].Priority, tagger.rules[i].Priority)
	}
}

type stubEmbedder struct {
	vec []float32
	dim int
}

func (s stubEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = s.vec
	}
	return out, nil
}

func (s stubEmbedder) Dimensions() int { return s.dim }

func TestTaggerFusesRuleAndEmbeddingByMaxConfidence(t *testing.T) {
	tagger := NewTagger(stubEmbedder{vec: []float32{1, 0, 0}, dim: 3})
	tagger.Config.SimilarityThreshold = 0.1
	tagger.Corpus = []TagCorpusEntry{
		{Tag: "rust", Embedding: []float32{1, 0, 0}},
	}
	conv := Conversation{Title: "cargo build", Messages: []Message{NewUserMessage("1", "cargo build failing")}}

	suggestions, err := tagger.SuggestTags(context.Background(), conv)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, s := range suggestions {
		seen[s.Tag]++
	}
	assert.Equal(t, 1, seen["rust"], "rust tag must appear once, fused across both sources")
}

func TestTaggerCapsAtMaxSuggestions(t *testing.T) {
	tagger := NewTagger(nil)
	tagger.Config.MaxSuggestions = 1
	tagger.Config.SimilarityThreshold = 0
	conv := Conversation{
		Title:    "how do I fix this cargo error? help",
		Messages: []Message{NewUserMessage("1", "cargo build trait impl error bug slow performance help stuck")},
	}
	suggestions, err := tagger.SuggestTags(context.Background(), conv)
	require.NoError(t, err)
	assert.Len(t, suggestions, 1)
}

func TestRecordFeedbackUpdatesRunningMeanSuccessRate(t *testing.T) {
	tagger := NewTagger(nil)
	tagger.Corpus = []TagCorpusEntry{{Tag: "rust", SuccessRate: 1, UsageCount: 1}}
	tagger.RecordFeedback("rust", false)
	assert.Equal(t, 0.5, tagger.Corpus[0].SuccessRate)
	assert.Equal(t, 2, tagger.Corpus[0].UsageCount)
}

func TestFuseByMaxConfidenceKeepsHighest(t *testing.T) {
	fused := fuseByMaxConfidence([]TagSuggestion{
		{Tag: "rust", Confidence: 0.4, Source: SourceRule},
		{Tag: "rust", Confidence: 0.8, Source: SourceEmbedding},
		{Tag: "python", Confidence: 0.5, Source: SourceRule},
	})
	require.Len(t, fused, 2)
	byTag := map[string]float64{}
	for _, f := range fused {
		byTag[f.Tag] = f.Confidence
	}
	assert.Equal(t, 0.8, byTag["rust"])
	assert.Equal(t, 0.5, byTag["python"])
}
