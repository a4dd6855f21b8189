// Command workflowrunner is a minimal composition root: it loads
// configuration, wires the Model Registry, a State Store, a vector
// index, and a Progress Channel, then runs one invocation of a workflow
// definition loaded from disk. It is explicitly NOT the transport spec
// §1 places out of scope — a real deployment's HTTP/gRPC/queue frontend
// would perform this same wiring once at startup and call
// executor.Engine.Run per incoming request.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/workflowrunner/workflowrunner/budget"
	"github.com/workflowrunner/workflowrunner/executor"
	"github.com/workflowrunner/workflowrunner/internal/config"
	"github.com/workflowrunner/workflowrunner/model"
	"github.com/workflowrunner/workflowrunner/model/anthropic"
	"github.com/workflowrunner/workflowrunner/model/google"
	"github.com/workflowrunner/workflowrunner/model/openai"
	"github.com/workflowrunner/workflowrunner/node"
	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/store"
	"github.com/workflowrunner/workflowrunner/vectorstore"
	"github.com/workflowrunner/workflowrunner/workflow"
)

func main() {
	workflowPath := flag.String("workflow", "", "path to a workflow definition JSON file")
	envPath := flag.String("env", ".env", "path to a .env file (missing file is not an error)")
	conversationID := flag.String("conversation", "", "conversation id")
	userID := flag.String("user", "", "invoking user id")
	userPrompt := flag.String("prompt", "", "this invocation's user prompt")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if err := run(*workflowPath, *envPath, *conversationID, *userID, *userPrompt, log); err != nil {
		log.Fatal().Err(err).Msg("workflowrunner: run failed")
	}
}

func run(workflowPath, envPath, conversationID, userID, userPrompt string, log zerolog.Logger) error {
	if workflowPath == "" {
		return fmt.Errorf("workflowrunner: -workflow is required")
	}
	if conversationID == "" {
		return fmt.Errorf("workflowrunner: -conversation is required")
	}

	cfg, err := config.Load(envPath)
	if err != nil {
		return fmt.Errorf("workflowrunner: %w", err)
	}

	wf, err := loadWorkflow(workflowPath)
	if err != nil {
		return fmt.Errorf("workflowrunner: %w", err)
	}

	stateStore, convStore, progressSinkFromStore, closeStore, err := buildStateStore(cfg)
	if err != nil {
		return fmt.Errorf("workflowrunner: %w", err)
	}
	defer closeStore()

	vectorIndex, err := buildVectorIndex(cfg)
	if err != nil {
		return fmt.Errorf("workflowrunner: %w", err)
	}

	registry, resolveModel, err := buildModelRegistry(cfg)
	if err != nil {
		return fmt.Errorf("workflowrunner: %w", err)
	}

	sink := buildProgressSink(cfg, progressSinkFromStore, log)
	progressChannel := progress.NewChannel(sink, log)

	services := node.Services{
		Registry:          registry,
		ResolveModel:      resolveModel,
		BudgetCaps:        budgetCapsFromConfig(cfg),
		VectorIndex:       vectorIndex,
		ConversationStore: convStore,
		Progress:          progressChannel,
	}

	metrics := executor.NewMetrics(nil)
	eng, err := executor.NewEngine(wf, nil, stateStore, services, executor.Options{
		StepCap:            cfg.StepCap,
		WallClockBudget:    cfg.WallClockBudget,
		DefaultNodeTimeout: cfg.DefaultNodeTimeout,
		Metrics:            metrics,
	}, log)
	if err != nil {
		return fmt.Errorf("workflowrunner: build engine: %w", err)
	}

	ctx := context.Background()
	st, err := eng.Run(ctx, executor.InvocationRequest{
		WorkflowID:     wf.ID,
		UserID:         userID,
		ConversationID: conversationID,
		UserPrompt:     userPrompt,
	})
	if err != nil {
		return fmt.Errorf("workflowrunner: invocation failed: %w", err)
	}

	if err := progressChannel.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("workflowrunner: progress flush failed")
	}

	if st.NeedsUserInput {
		log.Info().Str("awaitingInputFor", st.AwaitingInputFor).Msg("workflowrunner: suspended awaiting user input")
		return nil
	}
	response := st.FormattedResponse
	if response == "" {
		response = st.ModelResponse
	}
	fmt.Println(response)
	return nil
}

func loadWorkflow(path string) (workflow.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.Workflow{}, fmt.Errorf("read workflow definition: %w", err)
	}
	var wf workflow.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return workflow.Workflow{}, fmt.Errorf("parse workflow definition: %w", err)
	}
	return wf, nil
}

// buildStateStore wires the persistence backend selected by
// cfg.StateStoreDriver. The same concrete store satisfies
// executor.StateStore, node.ConversationStore, and progress.Sink, so it
// is also offered back as a candidate progress sink (spec §6: "the
// persistent stores for workflow definitions, conversation history, and
// progress rows" are named as one external family of collaborators).
func buildStateStore(cfg config.Config) (executor.StateStore, node.ConversationStore, progress.Sink, func(), error) {
	noop := func() {}
	switch cfg.StateStoreDriver {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s, s, func() { _ = s.Close() }, nil
	case "mysql":
		s, err := store.NewMySQLStore(cfg.MySQLDSN)
		if err != nil {
			return nil, nil, nil, noop, fmt.Errorf("open mysql store: %w", err)
		}
		return s, s, s, func() { _ = s.Close() }, nil
	default:
		s := store.NewMemoryStore()
		return s, s, s, noop, nil
	}
}

// buildVectorIndex wires the node.VectorIndex backend selected by
// cfg.VectorStoreDriver. chromem requires an embedding function; this
// composition root uses chromem-go's own OpenAI-backed helper rather
// than hand-rolling one, since no embedding-producing library appears
// anywhere else in the retrieval pack.
func buildVectorIndex(cfg config.Config) (node.VectorIndex, error) {
	if cfg.VectorStoreDriver != "chromem" {
		return vectorstore.NewMock(), nil
	}
	embeddingFunc := chromem.NewEmbeddingFuncOpenAI(cfg.OpenAIEmbeddingKey, chromem.EmbeddingModelOpenAI3Small)
	if cfg.ChromemPersistDir == "" {
		return vectorstore.NewChromemStore(embeddingFunc), nil
	}
	return vectorstore.NewPersistentChromemStore(cfg.ChromemPersistDir, embeddingFunc)
}

// buildModelRegistry wires model.DefaultCapabilities() against whichever
// provider adapters have an API key configured, falling back to a
// deterministic mock for any capability whose provider key is absent —
// letting this composition root run end-to-end in a sandboxed or CI
// environment with zero external credentials.
func buildModelRegistry(cfg config.Config) (*model.Registry, node.ChatModelResolver, error) {
	registry, err := model.NewRegistry(model.DefaultCapabilities(), cfg.DefaultModelID)
	if err != nil {
		return nil, nil, fmt.Errorf("build model registry: %w", err)
	}

	mockFallback := &model.MockChatModel{}

	resolve := func(cap model.Capability) (model.ChatModel, error) {
		apiModelID := cap.APIModelIDs[cap.Provider]
		switch cap.Provider {
		case "anthropic":
			if cfg.AnthropicAPIKey == "" {
				return mockFallback, nil
			}
			return anthropic.NewChatModel(cfg.AnthropicAPIKey, apiModelID), nil
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				return mockFallback, nil
			}
			return openai.NewChatModel(cfg.OpenAIAPIKey, apiModelID), nil
		case "google":
			if cfg.GoogleAPIKey == "" {
				return mockFallback, nil
			}
			return google.NewChatModel(cfg.GoogleAPIKey, apiModelID), nil
		default:
			return mockFallback, nil
		}
	}
	return registry, resolve, nil
}

// buildProgressSink wires the Progress Channel's sink per
// cfg.ProgressSinkDriver. "store" reuses the state store's own Sink
// implementation (dual-writing progress rows to the same backend as
// snapshots/turns); the others are standalone sinks from the progress
// package.
func buildProgressSink(cfg config.Config, storeSink progress.Sink, log zerolog.Logger) progress.Sink {
	switch cfg.ProgressSinkDriver {
	case "log":
		return progress.NewLogSink(log)
	case "buffered":
		return progress.NewBufferedSink()
	case "otel":
		return progress.NewOTelSink(otel.Tracer("workflowrunner"))
	case "null":
		return progress.NewNullSink()
	default:
		return storeSink
	}
}

func budgetCapsFromConfig(cfg config.Config) budget.Caps {
	return budget.Caps{
		RequestCostCapUSD:         cfg.RequestCostCapUSD,
		TokenCap:                  cfg.TokenCap,
		EmergencyCostThresholdUSD: cfg.EmergencyCostThresholdUSD,
	}
}
