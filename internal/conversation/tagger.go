package conversation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/llamaha/sagitta-sub008/internal/embedding"
	"github.com/llamaha/sagitta-sub008/internal/llmport"
)

// TagSource identifies which stage of the Tagger produced a suggestion.
type TagSource string

const (
	SourceRule      TagSource = "rule"
	SourceEmbedding TagSource = "embedding"
	SourceLLM       TagSource = "llm"
)

// TagSuggestion is one candidate tag with its supporting confidence and
// provenance.
type TagSuggestion struct {
	Tag       string
	Confidence float64
	Reasoning string
	Source    TagSource
}

// TagRuleType discriminates a TagRule's matching strategy, grounded on
// the Rust original's TagRuleType enum (tagging/rules.rs); only the
// five variants below are carried over — there is no ProjectType or
// Duration rule type.
type TagRuleType int

const (
	RuleKeywordMatch TagRuleType = iota
	RuleTitlePattern
	RuleFileExtension
	RuleMessageCount
	RuleBranchCount
)

// TagRule is one rule-based tag-suggestion policy.
type TagRule struct {
	Name        string
	Tag         string
	Confidence  float64
	Type        TagRuleType
	Keywords    []string
	Patterns    []string
	Extensions  []string
	Min, Max    int // MessageCount/BranchCount; Max<=0 means unbounded
	Description string
	Enabled     bool
	Priority    int
}

func (r TagRule) matches(conv Conversation) bool {
	if !r.Enabled {
		return false
	}
	switch r.Type {
	case RuleKeywordMatch:
		text := strings.ToLower(conversationText(conv))
		for _, k := range r.Keywords {
			if strings.Contains(text, strings.ToLower(k)) {
				return true
			}
		}
		return false
	case RuleTitlePattern:
		title := strings.ToLower(conv.Title)
		for _, p := range r.Patterns {
			if strings.Contains(title, strings.ToLower(p)) {
				return true
			}
		}
		return false
	case RuleFileExtension:
		text := strings.ToLower(conversationText(conv))
		for _, ext := range r.Extensions {
			if strings.Contains(text, "."+strings.ToLower(ext)) {
				return true
			}
		}
		return false
	case RuleMessageCount:
		count := len(conv.Messages)
		return count >= r.Min && (r.Max <= 0 || count <= r.Max)
	case RuleBranchCount:
		count := len(conv.Branches)
		return count >= r.Min && (r.Max <= 0 || count <= r.Max)
	default:
		return false
	}
}

func conversationText(conv Conversation) string {
	parts := make([]string, 0, len(conv.Messages)+1)
	parts = append(parts, conv.Title)
	for _, m := range conv.Messages {
		parts = append(parts, m.Text())
	}
	return strings.Join(parts, " ")
}

// RuleBasedTagger evaluates a prioritized list of TagRules against a
// conversation, grounded on tagging/rules.rs's RuleBasedTagger.
type RuleBasedTagger struct {
	rules []TagRule
}

// NewRuleBasedTagger returns a tagger preloaded with the default rule set.
func NewRuleBasedTagger() *RuleBasedTagger {
	t := &RuleBasedTagger{}
	t.AddRules(defaultTagRules())
	return t
}

// AddRule inserts a rule, keeping rules sorted by descending priority.
func (t *RuleBasedTagger) AddRule(rule TagRule) {
	if !rule.Enabled {
		rule.Enabled = true
	}
	t.rules = append(t.rules, rule)
	sort.SliceStable(t.rules, func(i, j int) bool { return t.rules[i].Priority > t.rules[j].Priority })
}

// AddRules inserts multiple rules.
func (t *RuleBasedTagger) AddRules(rules []TagRule) {
	for _, r := range rules {
		t.AddRule(r)
	}
}

// SuggestTags evaluates every enabled rule against conv.
func (t *RuleBasedTagger) SuggestTags(conv Conversation) []TagSuggestion {
	var out []TagSuggestion
	for _, rule := range t.rules {
		if rule.matches(conv) {
			out = append(out, TagSuggestion{
				Tag:        rule.Tag,
				Confidence: rule.Confidence,
				Reasoning:  fmt.Sprintf("rule %q: %s", rule.Name, rule.Description),
				Source:     SourceRule,
			})
		}
	}
	return out
}

func defaultTagRules() []TagRule {
	return []TagRule{
		{Name: "rust_keywords", Tag: "rust", Confidence: 0.8, Type: RuleKeywordMatch, Enabled: true, Priority: 200,
			Keywords: []string{"cargo", "rustc", "trait", "impl"}, Description: "Detects Rust programming language keywords"},
		{Name: "python_keywords", Tag: "python", Confidence: 0.8, Type: RuleKeywordMatch, Enabled: true, Priority: 200,
			Keywords: []string{"def ", "import ", "python", "pip"}, Description: "Detects Python programming language keywords"},
		{Name: "javascript_keywords", Tag: "javascript", Confidence: 0.8, Type: RuleKeywordMatch, Enabled: true, Priority: 200,
			Keywords: []string{"function", "const ", "npm", "node"}, Description: "Detects JavaScript programming language keywords"},
		{Name: "error_debugging", Tag: "debugging", Confidence: 0.7, Type: RuleKeywordMatch, Enabled: true, Priority: 150,
			Keywords: []string{"error", "bug", "debug", "fix"}, Description: "Conversation about debugging or fixing errors"},
		{Name: "performance_optimization", Tag: "performance", Confidence: 0.7, Type: RuleKeywordMatch, Enabled: true, Priority: 150,
			Keywords: []string{"slow", "optimize", "performance", "speed"}, Description: "Conversation about performance optimization"},
		{Name: "question_title", Tag: "question", Confidence: 0.6, Type: RuleTitlePattern, Enabled: true, Priority: 100,
			Patterns: []string{"how", "what", "why", "?"}, Description: "Title contains question words or question mark"},
		{Name: "rust_files", Tag: "rust", Confidence: 0.6, Type: RuleFileExtension, Enabled: true, Priority: 120,
			Extensions: []string{"rs", "toml"}, Description: "Mentions Rust file extensions"},
		{Name: "python_files", Tag: "python", Confidence: 0.6, Type: RuleFileExtension, Enabled: true, Priority: 120,
			Extensions: []string{"py", "pyx", "pyi"}, Description: "Mentions Python file extensions"},
		{Name: "long_conversation", Tag: "long-conversation", Confidence: 0.5, Type: RuleMessageCount, Enabled: true, Priority: 50,
			Min: 20, Description: "Conversation with many messages"},
		{Name: "branched_conversation", Tag: "branched", Confidence: 0.6, Type: RuleBranchCount, Enabled: true, Priority: 80,
			Min: 1, Description: "Conversation with branches"},
		{Name: "help_request", Tag: "help", Confidence: 0.6, Type: RuleKeywordMatch, Enabled: true, Priority: 110,
			Keywords: []string{"help", "stuck", "assist", "support"}, Description: "Request for help or assistance"},
	}
}

// TaggerConfig tunes the fusing Tagger.
type TaggerConfig struct {
	SimilarityThreshold float64
	MaxSuggestions      int
}

// DefaultTaggerConfig mirrors the Rust original's TagSuggesterConfig
// defaults for similarity_threshold and max_suggestions;
// auto_apply_threshold/enable_* flags have no analog here: every source
// that is configured (rules always, embeddings and LLM when set) runs and
// is fused.
func DefaultTaggerConfig() TaggerConfig {
	return TaggerConfig{SimilarityThreshold: 0.4, MaxSuggestions: 5}
}

// llmTagConfidence is the fixed confidence assigned to every LLM-suggested
// tag: the fast LLM pass has no similarity score or rule priority of its
// own to report, so it competes with the other two sources at one flat,
// middling value.
const llmTagConfidence = 0.65

// Tagger fuses rule-based, embedding-similarity, and LLM-suggested tags
// into one ranked list, grounded on tagging/suggester.rs's
// TagSuggester::suggest_tags.
type Tagger struct {
	Config   TaggerConfig
	Rules    *RuleBasedTagger
	Embedder embedding.Embedder
	Corpus   []TagCorpusEntry

	// LLM, when set, runs a fast tag-suggestion pass the same way
	// ClusterNamer runs its naming pass: a single prompt, parsed, with
	// failures skipped rather than propagated since this source is
	// optional. Model selects the provider's model; empty uses the
	// provider's default.
	LLM   llmport.Provider
	Model string
}

// NewTagger builds a Tagger with default rules and config. Embedder may
// be nil, in which case embedding-similarity suggestions are skipped. LLM
// suggestion is opt-in via the Tagger.LLM field after construction.
func NewTagger(embedder embedding.Embedder) *Tagger {
	return &Tagger{Config: DefaultTaggerConfig(), Rules: NewRuleBasedTagger(), Embedder: embedder}
}

// SuggestTags runs the rule engine, the corpus-similarity pass when an
// embedder is configured, and the fast-LLM pass when a provider is
// configured, then fuses all three by keeping each tag's
// highest-confidence suggestion when multiple sources suggest the same tag.
func (t *Tagger) SuggestTags(ctx context.Context, conv Conversation) ([]TagSuggestion, error) {
	suggestions := t.Rules.SuggestTags(conv)

	if t.Embedder != nil && len(t.Corpus) > 0 {
		embedded, err := t.suggestFromEmbeddings(ctx, conv)
		if err != nil {
			return nil, fmt.Errorf("embedding tag suggestions: %w", err)
		}
		suggestions = append(suggestions, embedded...)
	}

	if t.LLM != nil {
		if llmSuggestions, ok := t.suggestFromLLM(ctx, conv); ok {
			suggestions = append(suggestions, llmSuggestions...)
		}
	}

	fused := fuseByMaxConfidence(suggestions)
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Confidence > fused[j].Confidence })

	var kept []TagSuggestion
	for _, s := range fused {
		if s.Confidence >= t.Config.SimilarityThreshold {
			kept = append(kept, s)
		}
	}
	if len(kept) > t.Config.MaxSuggestions {
		kept = kept[:t.Config.MaxSuggestions]
	}
	return kept, nil
}

// suggestFromLLM asks the configured provider for a short comma-separated
// list of tags and parses it into suggestions. Like ClusterNamer's LLM
// pass, a provider error or unparseable reply just yields ok=false rather
// than failing the whole SuggestTags call, since this source is optional.
func (t *Tagger) suggestFromLLM(ctx context.Context, conv Conversation) ([]TagSuggestion, bool) {
	prompt := fmt.Sprintf(
		"Suggest up to %d short, lowercase tags (single words or hyphenated phrases) "+
			"describing the topic of this conversation. Reply with only a comma-separated "+
			"list, no other text.\n\nTitle: %s\n\n%s",
		t.Config.MaxSuggestions, conv.Title, conversationText(conv))
	resp, err := t.LLM.Generate(ctx, []llmport.Message{{Role: llmport.RoleUser, Content: prompt}}, nil, t.Model)
	if err != nil {
		return nil, false
	}
	var out []TagSuggestion
	for _, raw := range strings.Split(resp.Message.Content, ",") {
		tag := strings.ToLower(strings.Trim(strings.TrimSpace(raw), `"'.`))
		if tag == "" {
			continue
		}
		out = append(out, TagSuggestion{
			Tag:        tag,
			Confidence: llmTagConfidence,
			Reasoning:  "suggested by LLM",
			Source:     SourceLLM,
		})
	}
	return out, len(out) > 0
}

func (t *Tagger) suggestFromEmbeddings(ctx context.Context, conv Conversation) ([]TagSuggestion, error) {
	vecs, err := t.Embedder.Embed(ctx, []string{conversationText(conv)})
	if err != nil || len(vecs) == 0 {
		return nil, err
	}
	convVec := vecs[0]

	var out []TagSuggestion
	for _, entry := range t.Corpus {
		sim := cosineSimilarity(convVec, entry.Embedding)
		if sim <= 0 {
			continue
		}
		successRate := entry.SuccessRate
		if successRate <= 0 {
			successRate = 1 // an unused tag has no track record to penalize it with
		}
		out = append(out, TagSuggestion{
			Tag:        entry.Tag,
			Confidence: sim * successRate,
			Reasoning:  fmt.Sprintf("similar to %d prior conversation(s) tagged %q", len(entry.ExampleConversationIDs), entry.Tag),
			Source:     SourceEmbedding,
		})
	}
	return out, nil
}

// RecordFeedback updates usage_count and the running-mean success_rate for
// tag in the corpus after a user accepts or rejects a suggestion. It is a
// no-op if tag is not yet in the corpus.
func (t *Tagger) RecordFeedback(tag string, accepted bool) {
	for i := range t.Corpus {
		if t.Corpus[i].Tag != tag {
			continue
		}
		entry := &t.Corpus[i]
		outcome := 0.0
		if accepted {
			outcome = 1.0
		}
		n := float64(entry.UsageCount)
		entry.SuccessRate = (entry.SuccessRate*n + outcome) / (n + 1)
		entry.UsageCount++
		return
	}
}

// fuseByMaxConfidence keeps, per tag, the suggestion with the highest
// confidence across sources.
func fuseByMaxConfidence(suggestions []TagSuggestion) []TagSuggestion {
	best := make(map[string]TagSuggestion, len(suggestions))
	order := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		cur, ok := best[s.Tag]
		if !ok {
			order = append(order, s.Tag)
			best[s.Tag] = s
			continue
		}
		if s.Confidence > cur.Confidence {
			best[s.Tag] = s
		}
	}
	out := make([]TagSuggestion, 0, len(order))
	for _, tag := range order {
		out = append(out, best[tag])
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
