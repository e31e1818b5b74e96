package conversation

import (
	"context"
	"fmt"
	"sort"

	"github.com/llamaha/sagitta-sub008/internal/embedding"
)

// ClusteringConfig tunes the Clusterer, grounded on
// clustering.rs's ClusteringConfig defaults.
type ClusteringConfig struct {
	SimilarityThreshold      float64
	MaxClusterSize           int
	MinClusterSize           int
	UseTemporalProximity     bool
	MaxTemporalDistanceHours float64
}

// DefaultClusteringConfig mirrors the Rust original's Default impl.
func DefaultClusteringConfig() ClusteringConfig {
	return ClusteringConfig{
		SimilarityThreshold:      0.7,
		MaxClusterSize:           20,
		MinClusterSize:           2,
		UseTemporalProximity:     true,
		MaxTemporalDistanceHours: 24 * 7,
	}
}

// ClusteringMetrics summarizes one clustering pass's quality.
type ClusteringMetrics struct {
	ClusterCount    int
	OutlierCount    int
	AverageCohesion float64
}

// ClusteringResult is the output of one Clusterer.Cluster call.
type ClusteringResult struct {
	Clusters []Cluster
	Outliers []string
	Metrics  ClusteringMetrics
}

// Clusterer groups conversations by title-embedding similarity, with
// optional temporal-proximity and shared-tag adjustments,
// grounded on clustering.rs's ConversationClusteringManager.
type Clusterer struct {
	Config   ClusteringConfig
	Embedder embedding.Embedder
}

// NewClusterer returns a Clusterer with the default config.
func NewClusterer(embedder embedding.Embedder) *Clusterer {
	return &Clusterer{Config: DefaultClusteringConfig(), Embedder: embedder}
}

// clusterInput is the minimal per-conversation view the Clusterer needs;
// callers project Conversation down to this rather than passing whole
// conversations, mirroring the Rust original's use of ConversationSummary
// for the clustering pass.
type clusterInput struct {
	ID         string
	Title      string
	Tags       []string
	LastActive int64 // unix seconds
}

// Cluster groups conv into clusters by greedy single-pass similarity
// matching: the first unassigned conversation seeds a
// cluster, every later unassigned conversation whose similarity to the
// seed clears the threshold joins it, up to MaxClusterSize; clusters
// below MinClusterSize are dissolved back into outliers. Disjointness
// follows directly: every conversation is assigned to at most
// one cluster because `assigned` is checked before any comparison.
func (c *Clusterer) Cluster(ctx context.Context, conversations []Conversation) (ClusteringResult, error) {
	if len(conversations) == 0 {
		return ClusteringResult{}, nil
	}

	inputs := make([]clusterInput, len(conversations))
	for i, conv := range conversations {
		inputs[i] = clusterInput{ID: conv.ID, Title: conv.Title, Tags: conv.Tags, LastActive: conv.LastActive.Unix()}
	}

	sim, err := c.similarityMatrix(ctx, inputs)
	if err != nil {
		return ClusteringResult{}, fmt.Errorf("building similarity matrix: %w", err)
	}

	assigned := make([]bool, len(inputs))
	var clusters []Cluster
	var cohesions []float64

	for i := range inputs {
		if assigned[i] {
			continue
		}
		members := []int{i}
		assigned[i] = true

		for j := i + 1; j < len(inputs); j++ {
			if assigned[j] {
				continue
			}
			if sim[i][j] >= c.Config.SimilarityThreshold {
				members = append(members, j)
				assigned[j] = true
				if len(members) >= c.Config.MaxClusterSize {
					break
				}
			}
		}

		if len(members) < c.Config.MinClusterSize {
			for _, m := range members {
				assigned[m] = false
			}
			continue
		}

		cluster, cohesion := c.buildCluster(members, inputs, conversations, sim)
		clusters = append(clusters, cluster)
		cohesions = append(cohesions, cohesion)
	}

	var outliers []string
	for i, in := range inputs {
		if !assigned[i] {
			outliers = append(outliers, in.ID)
		}
	}

	var avgCohesion float64
	for _, c := range cohesions {
		avgCohesion += c
	}
	if len(cohesions) > 0 {
		avgCohesion /= float64(len(cohesions))
	}

	return ClusteringResult{
		Clusters: clusters,
		Outliers: outliers,
		Metrics: ClusteringMetrics{
			ClusterCount:    len(clusters),
			OutlierCount:    len(outliers),
			AverageCohesion: avgCohesion,
		},
	}, nil
}

func (c *Clusterer) similarityMatrix(ctx context.Context, inputs []clusterInput) ([][]float64, error) {
	n := len(inputs)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}

	titles := make([]string, n)
	for i, in := range inputs {
		titles[i] = in.Title
	}

	var embeddings [][]float32
	if c.Embedder != nil {
		vecs, err := c.Embedder.Embed(ctx, titles)
		if err != nil {
			return nil, err
		}
		embeddings = vecs
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := c.pairSimilarity(inputs[i], inputs[j], embeddings, i, j)
			matrix[i][j] = s
			matrix[j][i] = s
		}
	}
	return matrix, nil
}

func (c *Clusterer) pairSimilarity(a, b clusterInput, embeddings [][]float32, i, j int) float64 {
	var semantic float64
	if embeddings != nil {
		semantic = cosineSimilarity(embeddings[i], embeddings[j])
	}

	if c.Config.UseTemporalProximity {
		diff := a.LastActive - b.LastActive
		if diff < 0 {
			diff = -diff
		}
		hours := float64(diff) / 3600
		maxHours := c.Config.MaxTemporalDistanceHours
		if hours <= maxHours {
			temporal := 1 - hours/maxHours
			semantic = semantic*0.7 + temporal*0.3
		} else {
			semantic *= 0.5
		}
	}

	common := countCommonTags(a.Tags, b.Tags)
	if common > 0 {
		tagSim := float64(common) / float64(len(a.Tags)+len(b.Tags))
		semantic = semantic*0.8 + tagSim*0.2
	}

	if semantic < 0 {
		return 0
	}
	if semantic > 1 {
		return 1
	}
	return semantic
}

func countCommonTags(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	count := 0
	for _, t := range a {
		if _, ok := set[t]; ok {
			count++
		}
	}
	return count
}

func (c *Clusterer) buildCluster(members []int, inputs []clusterInput, conversations []Conversation, sim [][]float64) (Cluster, float64) {
	ids := make([]string, len(members))
	for k, m := range members {
		ids[k] = inputs[m].ID
	}

	var total float64
	var pairs int
	for a := 0; a < len(members); a++ {
		for b := a + 1; b < len(members); b++ {
			total += sim[members[a]][members[b]]
			pairs++
		}
	}
	cohesion := 1.0
	if pairs > 0 {
		cohesion = total / float64(pairs)
	}

	tagCounts := map[string]int{}
	for _, m := range members {
		for _, tag := range inputs[m].Tags {
			tagCounts[tag]++
		}
	}
	var commonTags []string
	for tag, count := range tagCounts {
		if count*2 >= len(members) {
			commonTags = append(commonTags, tag)
		}
	}
	sort.Strings(commonTags)

	start, end := conversations[members[0]].LastActive, conversations[members[0]].LastActive
	for _, m := range members {
		ts := conversations[m].LastActive
		if ts.Before(start) {
			start = ts
		}
		if ts.After(end) {
			end = ts
		}
	}

	return Cluster{
		ConversationIDs: ids,
		Cohesion:        cohesion,
		CommonTags:      commonTags,
		TimeRangeStart:  start,
		TimeRangeEnd:    end,
	}, cohesion
}
