package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/llamaha/sagitta-sub008/internal/llmport"
)

// ClusterNamerConfig tunes name generation, grounded on
// cluster_namer.rs's ClusterNamerConfig defaults.
type ClusterNamerConfig struct {
	MaxNameLength  int
	FallbackPrefix string
}

// DefaultClusterNamerConfig mirrors the Rust original's Default impl.
func DefaultClusterNamerConfig() ClusterNamerConfig {
	return ClusterNamerConfig{MaxNameLength: 40, FallbackPrefix: "Cluster"}
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "for": {}, "of": {}, "in": {},
	"on": {}, "with": {}, "is": {}, "are": {}, "how": {}, "what": {}, "why": {}, "do": {}, "i": {},
}

// clusterNamerMember is the minimal per-conversation view ClusterNamer
// needs to generate a name, mirroring clusterInput's role in Clusterer.
type clusterNamerMember struct {
	ID             string
	Title          string
	ProjectContext string
}

// projectTypeNames maps a lowercased ProjectContext value to the display
// name the Rust original's ProjectType enum used, grounded on
// cluster_namer.rs's generate_name_from_project_type match arms.
var projectTypeNames = map[string]string{
	"rust":       "Rust Development",
	"python":     "Python Development",
	"javascript": "JavaScript Development",
	"typescript": "TypeScript Development",
	"go":         "Go Development",
	"ruby":       "Ruby Development",
	"markdown":   "Documentation",
	"yaml":       "Configuration",
	"html":       "Web Development",
}

// titleThemes maps a keyword a title may contain to the theme it scores,
// grounded on cluster_namer.rs's generate_thematic_name keyword table.
// Every keyword a title contains adds its weight, so a title matching
// several keywords of the same theme scores that theme once per keyword.
var titleThemes = []struct {
	keyword string
	theme   string
	weight  int
}{
	{"machine learning", "Machine Learning", 3},
	{"neural network", "Machine Learning", 3},
	{"deep learning", "Machine Learning", 3},
	{"artificial intelligence", "Machine Learning", 3},
	{"algorithm", "Machine Learning", 3},
	{"error", "Error Resolution", 2},
	{"debug", "Error Resolution", 2},
	{"fix", "Error Resolution", 2},
	{"api", "API Development", 2},
	{"endpoint", "API Development", 2},
	{"database", "Database Queries", 2},
	{"sql", "Database Queries", 2},
	{"test", "Testing & QA", 2},
	{"deploy", "Deployment", 2},
	{"performance", "Performance", 2},
	{"optimization", "Performance", 2},
	{"security", "Security", 2},
	{"auth", "Security", 2},
	{"help", "Help & Support", 1},
	{"assist", "Help & Support", 1},
	{"review", "Code Review", 1},
	{"feedback", "Code Review", 1},
	{"learn", "Learning", 1},
	{"tutorial", "Learning", 1},
}

// ClusterNamer generates a human-readable title for a Cluster: an LLM
// pass first when a Provider is configured, falling back to rule-based
// generation from tags, titles, or a generic label,
// grounded on cluster_namer.rs's ClusterNamer.
type ClusterNamer struct {
	Config ClusterNamerConfig
	LLM    llmport.Provider
	Model  string
}

// NewClusterNamer returns a namer with default config. LLM may be nil,
// in which case naming is purely rule-based.
func NewClusterNamer(provider llmport.Provider) *ClusterNamer {
	return &ClusterNamer{Config: DefaultClusterNamerConfig(), LLM: provider}
}

// GenerateName picks a title for cluster given the full set of member
// conversations (used to look up titles by ID).
func (n *ClusterNamer) GenerateName(ctx context.Context, cluster Cluster, conversations []Conversation) string {
	members := n.membersOf(cluster, conversations)
	if len(members) == 0 {
		return n.fallbackName(cluster)
	}

	if n.LLM != nil {
		if name, ok := n.generateWithLLM(ctx, cluster, members); ok {
			return name
		}
	}

	return n.generateRuleBased(cluster, members)
}

func (n *ClusterNamer) membersOf(cluster Cluster, conversations []Conversation) []clusterNamerMember {
	ids := make(map[string]struct{}, len(cluster.ConversationIDs))
	for _, id := range cluster.ConversationIDs {
		ids[id] = struct{}{}
	}
	var out []clusterNamerMember
	for _, conv := range conversations {
		if _, ok := ids[conv.ID]; ok {
			out = append(out, clusterNamerMember{ID: conv.ID, Title: conv.Title, ProjectContext: conv.ProjectContext})
		}
	}
	return out
}

func (n *ClusterNamer) generateWithLLM(ctx context.Context, cluster Cluster, members []clusterNamerMember) (string, bool) {
	prompt := n.buildPrompt(cluster, members)
	resp, err := n.LLM.Generate(ctx, []llmport.Message{{Role: llmport.RoleUser, Content: prompt}}, nil, n.Model)
	if err != nil {
		return "", false
	}
	name := strings.Trim(strings.TrimSpace(resp.Message.Content), `"'`)
	name = n.truncate(name)
	if len(name) <= 3 {
		return "", false
	}
	return name, true
}

func (n *ClusterNamer) buildPrompt(cluster Cluster, members []clusterNamerMember) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a concise, descriptive name for a cluster of related conversations. The name should be under %d characters and capture the main theme or topic. Do not include quotes or extra formatting.\n\nConversation Titles:\n", n.Config.MaxNameLength)
	limit := len(members)
	if limit > 5 {
		limit = 5
	}
	for _, m := range members[:limit] {
		fmt.Fprintf(&b, "- %s\n", m.Title)
	}
	if len(cluster.CommonTags) > 0 {
		fmt.Fprintf(&b, "Common Tags: %s\n", strings.Join(cluster.CommonTags, ", "))
	}
	fmt.Fprintf(&b, "Cohesion Score: %.2f\n\nCluster Name:", cluster.Cohesion)
	return b.String()
}

// generateRuleBased falls through common tags → project type → thematic
// title detection → common words → a generic fallback, the tier order
// cluster_namer.rs's generate_rule_based_name uses.
func (n *ClusterNamer) generateRuleBased(cluster Cluster, members []clusterNamerMember) string {
	if len(cluster.CommonTags) > 0 {
		name := n.nameFromTags(cluster.CommonTags, len(members))
		if name != "" {
			return n.truncate(name)
		}
	}

	if name := n.nameFromProjectType(cluster, members); name != "" {
		return n.truncate(name)
	}

	titles := make([]string, len(members))
	for i, m := range members {
		titles[i] = m.Title
	}
	if theme := thematicName(titles); theme != "" {
		return n.truncate(theme)
	}

	if common := commonWords(titles); len(common) > 0 {
		return n.truncate(strings.Join(common, " ") + " Discussions")
	}

	return n.fallbackName(cluster)
}

// nameFromProjectType names the cluster after its dominant project type
// (Cluster.DominantProjectType when set, otherwise the majority
// ProjectContext value among members), appending a context tag like
// "debugging" when one of the common tags suggests it.
func (n *ClusterNamer) nameFromProjectType(cluster Cluster, members []clusterNamerMember) string {
	projectType := dominantProjectType(cluster, members)
	base, ok := projectTypeNames[strings.ToLower(projectType)]
	if !ok {
		return ""
	}
	for _, tag := range cluster.CommonTags {
		lower := strings.ToLower(tag)
		if strings.Contains(lower, "error") || strings.Contains(lower, "debug") ||
			strings.Contains(lower, "help") || strings.Contains(lower, "question") {
			return base + " " + capitalizeFirst(tag)
		}
	}
	return base
}

func dominantProjectType(cluster Cluster, members []clusterNamerMember) string {
	if cluster.DominantProjectType != "" {
		return cluster.DominantProjectType
	}
	counts := map[string]int{}
	for _, m := range members {
		if m.ProjectContext == "" {
			continue
		}
		counts[strings.ToLower(m.ProjectContext)]++
	}
	return maxByCountAlphaTiebreak(counts)
}

// maxByCountAlphaTiebreak returns the key with the highest count, breaking
// ties alphabetically so results are deterministic regardless of map
// iteration order.
func maxByCountAlphaTiebreak(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var best string
	var bestCount int
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// thematicName scores each title against titleThemes (plus the two-part
// "how" + "?" heuristic for how-to questions) and returns the
// highest-scoring theme, or "" if no title matches anything.
func thematicName(titles []string) string {
	scores := map[string]int{}
	for _, title := range titles {
		lower := strings.ToLower(title)
		for _, kw := range titleThemes {
			if strings.Contains(lower, kw.keyword) {
				scores[kw.theme] += kw.weight
			}
		}
		if strings.Contains(lower, "how") && strings.Contains(lower, "?") {
			scores["How-To Questions"] += 2
		}
	}
	return maxByCountAlphaTiebreak(scores)
}

func (n *ClusterNamer) nameFromTags(tags []string, count int) string {
	sorted := append([]string{}, tags...)
	sort.Strings(sorted)
	limit := len(sorted)
	if limit > 3 {
		limit = 3
	}
	return fmt.Sprintf("%s (%d conversations)", strings.Join(sorted[:limit], ", "), count)
}

func (n *ClusterNamer) fallbackName(cluster Cluster) string {
	if len(cluster.ConversationIDs) > 0 {
		return fmt.Sprintf("%s of %d conversations", n.Config.FallbackPrefix, len(cluster.ConversationIDs))
	}
	return n.Config.FallbackPrefix
}

func (n *ClusterNamer) truncate(name string) string {
	if len(name) <= n.Config.MaxNameLength {
		return name
	}
	return strings.TrimSpace(name[:n.Config.MaxNameLength])
}

// commonWords returns words (length > 2, not a stop word) shared across
// every title, preserving first-occurrence order.
func commonWords(titles []string) []string {
	if len(titles) == 0 {
		return nil
	}
	counts := map[string]int{}
	var order []string
	for _, title := range titles {
		seen := map[string]struct{}{}
		for _, word := range strings.Fields(strings.ToLower(title)) {
			word = strings.Trim(word, ".,!?:;\"'")
			if len(word) <= 2 {
				continue
			}
			if _, stop := stopWords[word]; stop {
				continue
			}
			if _, dup := seen[word]; dup {
				continue
			}
			seen[word] = struct{}{}
			if counts[word] == 0 {
				order = append(order, word)
			}
			counts[word]++
		}
	}
	var out []string
	for _, word := range order {
		if counts[word] == len(titles) {
			out = append(out, word)
		}
	}
	return out
}
