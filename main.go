package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/wiroonsak/accountiq/agent/access"
	"github.com/wiroonsak/accountiq/agent/agents"
	"github.com/wiroonsak/accountiq/agent/agents/graphagent"
	"github.com/wiroonsak/accountiq/agent/agents/structured"
	"github.com/wiroonsak/accountiq/agent/assistant"
	"github.com/wiroonsak/accountiq/agent/composer"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
	"github.com/wiroonsak/accountiq/agent/directory"
	"github.com/wiroonsak/accountiq/agent/executor"
	llmx "github.com/wiroonsak/accountiq/agent/llm"
	"github.com/wiroonsak/accountiq/agent/planner"
	promptx "github.com/wiroonsak/accountiq/agent/prompt"
	"github.com/wiroonsak/accountiq/agent/resolver"
	turnx "github.com/wiroonsak/accountiq/agent/turn"
	cachex "github.com/wiroonsak/accountiq/pkg/cache"
	configx "github.com/wiroonsak/accountiq/pkg/config"
	_ "github.com/wiroonsak/accountiq/pkg/logger/autoload"
	openrouterx "github.com/wiroonsak/accountiq/pkg/openrouter"
)

type AppConfig struct {
	PostgresDSN    string `envconfig:"POSTGRES_DSN"`
	GraphServerURL string `envconfig:"GRAPH_SERVER_URL"`
	CallerID       string `envconfig:"CALLER_ID" default:"demo-user"`
	CallerRole     string `envconfig:"CALLER_ROLE" default:"admin"`
}

func main() {
	ctx := context.Background()

	appCfg := configx.MustNew[AppConfig]("")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm config")
	}

	client := openrouterx.NewClient(llmCfg.OpenRouterFor(llmx.RoleClassifier))
	if client == nil {
		log.Fatal().Msg("failed to initialize openrouter client")
	}

	prompts := promptx.LoadPromptSet()

	sqlgen := mustCompleter(client, llmCfg.ModelFor(llmx.RoleSQLGen))
	graphgen := mustCompleter(client, llmCfg.ModelFor(llmx.RoleGraphGen))
	answerer := mustCompleter(client, llmCfg.ModelFor(llmx.RoleAnswer))

	embedder, err := openrouterx.NewEmbeddingClient(client, llmCfg.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("create embedding client")
	}

	dir, db := buildDirectory(appCfg.PostgresDSN)

	resolverCfg := configx.MustNew[resolver.Config]("RESOLVER")
	res, err := resolver.New(dir, embedder, *resolverCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create resolver")
	}

	var adapters []contractx.AgentAdapter
	if db != nil {
		structuredCfg := configx.MustNew[structured.Config]("STRUCTURED")
		agent, err := structured.New(db, sqlgen, prompts.SQLGen, *structuredCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create structured agent")
		}
		adapters = append(adapters, agent)
	} else {
		log.Warn().Msg("POSTGRES_DSN not set, structured agent disabled")
	}
	if strings.TrimSpace(appCfg.GraphServerURL) != "" {
		agent, err := graphagent.New(graphagent.Config{URL: appCfg.GraphServerURL}, graphgen, prompts.GraphGen)
		if err != nil {
			log.Fatal().Err(err).Msg("create graph agent")
		}
		adapters = append(adapters, agent)
	} else {
		log.Warn().Msg("GRAPH_SERVER_URL not set, relationship agent disabled")
	}

	composerCfg := configx.MustNew[composer.Config]("COMPOSER")
	executorCfg := configx.MustNew[executor.Config]("EXECUTOR")

	exec, err := executor.New(agents.NewRegistry(adapters...), res, access.NewGate(), composer.New(*composerCfg), *executorCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create executor")
	}

	classifierCfg := llmCfg.OpenRouterFor(llmx.RoleClassifier)
	classifierModel, err := classifierCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create classifier model")
	}

	plannerCfg := configx.MustNew[planner.Config]("PLANNER")
	pln, err := planner.NewWithModel(ctx, classifierModel, prompts.Classifier, *plannerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create planner")
	}

	resultCache, err := cachex.New(*configx.MustNew[cachex.Config]("CACHE"))
	if err != nil {
		log.Fatal().Err(err).Msg("create result cache")
	}

	turns := buildTurnStore()

	assistantCfg := configx.MustNew[assistant.Config]("ASSISTANT")
	svc, err := assistant.New(pln, exec, turns, resultCache, answerer, prompts.Answer, *assistantCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create assistant")
	}

	query := strings.Join(os.Args[1:], " ")
	if strings.TrimSpace(query) == "" {
		query = "Show me sales data and contacts for Acme"
	}

	caller := contractx.Caller{
		ID:   appCfg.CallerID,
		Role: contractx.Role(appCfg.CallerRole),
	}

	result, err := svc.Answer(ctx, caller, query)
	if err != nil {
		log.Fatal().Err(err).Msg("answer failed")
	}

	encoded, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(encoded))
}

func mustCompleter(client *openaisdk.Client, model string) contractx.Completer {
	c, err := openrouterx.NewChatCompleter(client, model)
	if err != nil {
		log.Fatal().Err(err).Msg("create completer")
	}
	return c
}

func buildDirectory(dsn string) (contractx.AccountDirectory, *bun.DB) {
	if strings.TrimSpace(dsn) == "" {
		// Demo account set, embeddings resolved on the fly.
		return directory.NewStaticDirectory([]contractx.Account{
			{ID: "acme", DisplayName: "Acme Corporation"},
			{ID: "globex", DisplayName: "Globex International"},
			{ID: "initech", DisplayName: "Initech Solutions"},
		}), nil
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	dir, err := directory.NewPostgresDirectory(db)
	if err != nil {
		log.Fatal().Err(err).Msg("create account directory")
	}
	return dir, db
}

func buildTurnStore() contractx.TurnStore {
	cfg, err := configx.New[turnx.UpstashRedisConfig]("UPSTASH_REDIS")
	if err != nil {
		log.Warn().Err(err).Msg("turn store not configured, conversation history disabled")
		return nil
	}
	store, err := turnx.NewUpstashRedisStore(*cfg)
	if err != nil {
		log.Warn().Err(err).Msg("turn store unavailable, conversation history disabled")
		return nil
	}
	return store
}
