// Command sagitta is the CLI entrypoint wiring the Git-aware Sync Engine
// (CORE-A), the streaming Agent Loop (CORE-B), and the Conversation
// Organization Core (CORE-C) behind a handful of subcommands, grounded on
// manifold's cmd/agent layout: config loaded first, plain flag.FlagSet
// subcommands, observability initialized before any provider or port is
// built, and a run(cfg, ...) error helper kept separate from main so errors
// have one place to surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/llamaha/sagitta-sub008/internal/agent"
	"github.com/llamaha/sagitta-sub008/internal/config"
	"github.com/llamaha/sagitta-sub008/internal/conversation"
	"github.com/llamaha/sagitta-sub008/internal/embedding"
	"github.com/llamaha/sagitta-sub008/internal/events"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/codeparser"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/gitport"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/indexer"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/planner"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/statestore"
	"github.com/llamaha/sagitta-sub008/internal/gitsync/switcher"
	"github.com/llamaha/sagitta-sub008/internal/llmport"
	"github.com/llamaha/sagitta-sub008/internal/llmport/claude"
	"github.com/llamaha/sagitta-sub008/internal/llmport/openai"
	"github.com/llamaha/sagitta-sub008/internal/observability"
	"github.com/llamaha/sagitta-sub008/internal/toolport"
	"github.com/llamaha/sagitta-sub008/internal/vectorstore"
)

func main() {
	cfg, err := config.Load(os.Getenv("SAGITTA_CONFIG"), ".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var cmdErr error
	switch os.Args[1] {
	case "sync":
		cmdErr = runSync(cfg, os.Args[2:])
	case "chat":
		cmdErr = runChat(cfg, os.Args[2:])
	case "conversations":
		cmdErr = runConversations(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		log.Fatal().Err(cmdErr).Msg("sagitta")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sagitta <sync|chat|conversations> [flags]")
}

// runSync drives one Branch Switcher pass over a repository:
// open it, resolve the target branch, and let the switcher plan and index
// whatever the Sync Planner decides is required.
func runSync(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	repoPath := fs.String("repo", ".", "path to the git repository to sync")
	branch := fs.String("branch", "", "branch to sync (defaults to the currently checked-out branch)")
	force := fs.Bool("force", false, "checkout despite uncommitted changes, discarding them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	repo, err := gitport.Open(ctx, *repoPath)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	targetBranch := *branch
	if targetBranch == "" {
		targetBranch, err = repo.CurrentBranch(ctx)
		if err != nil {
			return fmt.Errorf("resolve current branch: %w", err)
		}
	}

	cacheDir := cfg.GitSync.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(repo.Root(), ".sagitta")
	}
	states, err := statestore.Open(cacheDir)
	if err != nil {
		return fmt.Errorf("open repository state: %w", err)
	}

	store, err := newVectorStore(cfg)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer store.Close()

	embedder := embedding.NewHTTPEmbedder(cfg.Embeddings)
	exec := indexer.New(codeparser.NewSimpleParser(), embedder, store)
	idx := &switcherIndexer{
		exec: exec,
		opts: indexer.Options{
			Repo:            *repoPath,
			IgnorePatterns:  cfg.GitSync.IgnorePatterns,
			BatchSize:       cfg.GitSync.EmbedBatchSize,
			MaxFailureRatio: cfg.GitSync.MaxFileFailureRatio,
			MaxWorkers:      cfg.GitSync.MaxIndexingWorkers,
		},
	}

	result := switcher.Switch(ctx, repo, targetBranch, idx, states, switcher.Options{
		Force:         *force,
		AutoResync:    true,
		SafetyStash:   "sagitta-sync",
		DetectRenames: cfg.GitSync.DetectRenames,
	})
	if result.Err != nil {
		return fmt.Errorf("switch to %s: %w", targetBranch, result.Err)
	}
	log.Info().
		Str("branch", result.NewBranch).
		Str("state", string(result.FinalState)).
		Int("files_changed", result.FilesChangedCount).
		Msg("sync complete")
	return nil
}

// switcherIndexer adapts an indexer.Executor (which takes branch/repo via
// indexer.Options) to switcher.Indexer's per-call (repo, branch, req)
// signature.
type switcherIndexer struct {
	exec *indexer.Executor
	opts indexer.Options
}

func (s *switcherIndexer) Index(ctx context.Context, repo gitport.Repository, branch string, req planner.Requirement) (int, error) {
	opts := s.opts
	opts.Branch = branch
	return s.exec.Run(ctx, repo, req, opts)
}

func newVectorStore(cfg config.Config) (vectorstore.Store, error) {
	if cfg.VectorStore.Backend == "qdrant" {
		return vectorstore.NewQdrantStore(cfg.VectorStore.DSN, cfg.VectorStore.Collection, cfg.VectorStore.Dimensions, cfg.VectorStore.Metric)
	}
	return vectorstore.NewMemoryStore(cfg.VectorStore.Dimensions), nil
}

// runChat drives one Agent Loop turn against a
// Conversation, persisting the result and running the Tagger and Branching
// Engine over it afterward.
func runChat(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	query := fs.String("q", "", "user message")
	convID := fs.String("conversation", "", "existing conversation id to continue (a new one is created if empty or not found)")
	provider := fs.String("provider", "openai", "llm provider: openai|claude")
	repoPath := fs.String("repo", "", "repository path to expose via the read_file tool (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*query) == "" {
		return fmt.Errorf("chat requires -q")
	}

	timeout := time.Duration(cfg.Agent.ProviderTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	llm, err := newProvider(cfg, *provider)
	if err != nil {
		return err
	}

	tools := toolport.NewRegistry()
	if *repoPath != "" {
		registerFileTools(tools, *repoPath)
	}

	bus := events.New()
	kafkaPublisher, err := maybeStartKafkaPublisher(cfg, bus)
	if err != nil {
		log.Warn().Err(err).Msg("kafka event mirror disabled")
	}
	if kafkaPublisher != nil {
		defer kafkaPublisher.Close()
	}

	var activeConvID string // set once the conversation id is resolved, for event tagging
	eng := &agent.Engine{
		LLM:                llm,
		Tools:              tools,
		MaxSteps:           cfg.Agent.MaxSteps,
		MaxToolParallelism: cfg.Agent.MaxToolParallelism,
		System:             "You are Sagitta, a git-aware coding assistant.",
		OnAssistant: func(llmport.Message) {
			bus.Publish(events.Event{Kind: events.KindLlmChunk, ConversationID: activeConvID})
		},
		OnToolStart: func(toolName string, args []byte, toolCallID string) {
			bus.Publish(events.Event{Kind: events.KindToolRunStarted, ConversationID: activeConvID, Payload: map[string]any{"tool": toolName, "tool_call_id": toolCallID}})
		},
		OnTool: func(toolName string, args, result []byte, toolCallID string) {
			bus.Publish(events.Event{Kind: events.KindToolRunCompleted, ConversationID: activeConvID, Payload: map[string]any{"tool": toolName, "tool_call_id": toolCallID}})
		},
		OnThought: func(thought string) {
			bus.Publish(events.Event{Kind: events.KindReasoningStep, ConversationID: activeConvID, Payload: map[string]any{"thought": thought}})
		},
		OnUsage: func(usage llmport.TokenUsage) {
			bus.Publish(events.Event{Kind: events.KindTokenUsageReport, ConversationID: activeConvID, Payload: map[string]any{
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
				"total_tokens":      usage.TotalTokens,
			}})
		},
	}

	rawStore, err := conversation.NewStore(contentDir(cfg))
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	store, err := conversation.NewCachedStore(rawStore, conversation.RedisConfig{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      time.Duration(cfg.Redis.TTLSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open conversation cache: %w", err)
	}
	defer store.Close()

	conv, err := loadOrCreateConversation(ctx, store.Store, *convID, *query)
	if err != nil {
		return err
	}
	activeConvID = conv.ID

	history := toLLMHistory(conv.AllMessages())
	conv.Messages = append(conv.Messages, conversation.NewUserMessage(conv.ID+"-u"+fmt.Sprint(len(conv.Messages)), *query))

	reply, err := eng.RunStream(ctx, *query, history)
	if err != nil {
		return fmt.Errorf("agent run: %w", err)
	}
	conv.Messages = append(conv.Messages, conversation.NewAssistantMessage(conv.ID+"-a"+fmt.Sprint(len(conv.Messages)), reply))
	conv.LastActive = time.Now()

	tagger := conversation.NewTagger(nil)
	tagger.LLM = llm
	suggestions, err := tagger.SuggestTags(ctx, conv)
	if err != nil {
		log.Warn().Err(err).Msg("tag suggestion failed")
	}
	for _, s := range suggestions {
		if s.Confidence >= cfg.Conversation.AutoApplyTagThreshold {
			conv.Tags = appendUnique(conv.Tags, s.Tag)
		}
	}

	branching := conversation.NewBranchingEngine()
	for _, b := range branching.AnalyzeBranchOpportunities(conv) {
		log.Info().Str("message_id", b.MessageID).Float64("confidence", b.Confidence).Str("title", b.SuggestedTitle).Msg("branch suggestion")
		bus.Publish(events.Event{Kind: events.KindBranchSuggested, ConversationID: conv.ID, Payload: map[string]any{"message_id": b.MessageID, "confidence": b.Confidence}})
	}

	checkpoints := conversation.NewCheckpointEngine()
	for _, c := range checkpoints.SuggestCheckpoints(conv) {
		log.Info().Str("message_id", c.MessageID).Float64("importance", c.Importance).Str("title", c.Title).Msg("checkpoint suggestion")
		bus.Publish(events.Event{Kind: events.KindCheckpointSuggested, ConversationID: conv.ID, Payload: map[string]any{"message_id": c.MessageID, "title": c.Title, "importance": c.Importance}})
	}

	if err := store.Save(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	bus.Publish(events.Event{Kind: events.KindConversationUpdated, ConversationID: conv.ID})

	fmt.Println(reply)
	return nil
}

// maybeStartKafkaPublisher starts the optional Kafka mirror of bus when
// cfg.Events.KafkaEnabled; returns (nil, nil) when disabled.
func maybeStartKafkaPublisher(cfg config.Config, bus *events.Bus) (*events.KafkaPublisher, error) {
	if !cfg.Events.KafkaEnabled {
		return nil, nil
	}
	return events.NewKafkaPublisher(events.KafkaPublisherConfig{
		Brokers: cfg.Events.KafkaBrokers,
		Topic:   cfg.Events.KafkaTopic,
	}, bus)
}

func contentDir(cfg config.Config) string {
	if cfg.Conversation.ContentDir != "" {
		return cfg.Conversation.ContentDir
	}
	return "conversations"
}

func loadOrCreateConversation(ctx context.Context, store *conversation.Store, id, query string) (conversation.Conversation, error) {
	if id != "" {
		conv, ok, err := store.Load(ctx, id)
		if err != nil {
			return conversation.Conversation{}, fmt.Errorf("load conversation %s: %w", id, err)
		}
		if ok {
			return conv, nil
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	return conversation.Conversation{
		ID:        id,
		Title:     query,
		Status:    conversation.StatusActive,
		CreatedAt: time.Now(),
	}, nil
}

func toLLMHistory(msgs []conversation.Message) []llmport.Message {
	out := make([]llmport.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llmport.RoleUser
		switch m.Role {
		case conversation.RoleAssistant:
			role = llmport.RoleAssistant
		case conversation.RoleSystem:
			role = llmport.RoleSystem
		case conversation.RoleTool:
			role = llmport.RoleTool
		}
		out = append(out, llmport.Message{Role: role, Content: m.Text()})
	}
	return out
}

func appendUnique(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

func newProvider(cfg config.Config, name string) (llmport.Provider, error) {
	switch name {
	case "claude":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic.api_key is not configured")
		}
		return claude.New(claude.Config{
			APIKey:  cfg.Anthropic.APIKey,
			BaseURL: cfg.Anthropic.BaseURL,
			Model:   cfg.Anthropic.Model,
		}), nil
	case "openai", "":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai.api_key is not configured")
		}
		return openai.New(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// registerFileTools gives the Agent Loop a read_file tool scoped to
// repoRoot, bridging CORE-A's synced working tree into CORE-B's tool-call
// surface without granting the model access outside the repository.
func registerFileTools(reg *toolport.Registry, repoRoot string) {
	root := filepath.Clean(repoRoot)
	reg.Register(toolport.Tool{
		Definition: llmport.ToolDefinition{
			Name:        "read_file",
			Description: "Read a UTF-8 text file from the synced repository, given a path relative to the repository root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string"},
				},
				"required": []string{"path"},
			},
		},
		Handler: func(ctx context.Context, args []byte) ([]byte, error) {
			var req struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, fmt.Errorf("decode read_file args: %w", err)
			}
			full := filepath.Join(root, filepath.Clean(string(os.PathSeparator)+req.Path))
			if !strings.HasPrefix(full, root+string(os.PathSeparator)) && full != root {
				return nil, fmt.Errorf("path escapes repository root")
			}
			content, err := os.ReadFile(full)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", req.Path, err)
			}
			return json.Marshal(map[string]string{"content": string(content)})
		},
	})
}

// runConversations dispatches read-side CORE-C operations: listing stored
// conversation summaries and running the Clusterer over the whole store.
func runConversations(cfg config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("conversations requires a subcommand: list|cluster")
	}

	rawStore, err := conversation.NewStore(contentDir(cfg))
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	store, err := conversation.NewCachedStore(rawStore, conversation.RedisConfig{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      time.Duration(cfg.Redis.TTLSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open conversation cache: %w", err)
	}
	defer store.Close()
	ctx := context.Background()

	switch args[0] {
	case "list":
		for _, s := range store.Summaries(ctx) {
			fmt.Printf("%s\t%s\t%s\t%v\n", s.ID, s.Status, s.Title, s.Tags)
		}
		return nil
	case "cluster":
		return runCluster(ctx, cfg, store.Store)
	default:
		return fmt.Errorf("unknown conversations subcommand %q", args[0])
	}
}

func runCluster(ctx context.Context, cfg config.Config, store *conversation.Store) error {
	ids := store.ListIDs(ctx)
	convs := make([]conversation.Conversation, 0, len(ids))
	byID := make(map[string]conversation.Conversation, len(ids))
	for _, id := range ids {
		conv, ok, err := store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("load conversation %s: %w", id, err)
		}
		if !ok {
			continue
		}
		convs = append(convs, conv)
		byID[conv.ID] = conv
	}

	embedder := embedding.NewHTTPEmbedder(cfg.Embeddings)
	clusterer := conversation.NewClusterer(embedder)
	result, err := clusterer.Cluster(ctx, convs)
	if err != nil {
		return fmt.Errorf("cluster conversations: %w", err)
	}

	namer := conversation.NewClusterNamer(nil)
	for i, cl := range result.Clusters {
		members := make([]conversation.Conversation, 0, len(cl.ConversationIDs))
		for _, id := range cl.ConversationIDs {
			members = append(members, byID[id])
		}
		name := namer.GenerateName(ctx, cl, members)
		fmt.Printf("cluster %d: %s (%d conversations, cohesion %.2f)\n", i, name, len(cl.ConversationIDs), cl.Cohesion)
	}
	fmt.Printf("%d outliers\n", len(result.Outliers))
	return nil
}
