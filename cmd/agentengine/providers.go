package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"golang.org/x/oauth2/google"
	"google.golang.org/genai"

	"github.com/hupe1980/agentengine/agent"
	"github.com/hupe1980/agentengine/config"
	"github.com/hupe1980/agentengine/graph"
	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/model"
	"github.com/hupe1980/agentengine/model/anthropic"
	"github.com/hupe1980/agentengine/model/gemini"
	"github.com/hupe1980/agentengine/model/openai"
	"github.com/hupe1980/agentengine/remote"
	"github.com/hupe1980/agentengine/runner"
	"github.com/hupe1980/agentengine/tool/webfetch"
	"github.com/hupe1980/agentengine/tool/websearch"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// remoteClient returns a client for the configured service. Requests to the
// regional endpoint carry application default credentials; an explicit
// endpoint (the local emulator) is called without credentials.
func remoteClient(ctx context.Context, cfg *config.Config, logger logging.Logger) (*remote.Client, error) {
	httpClient := http.DefaultClient
	if cfg.Endpoint == "" {
		var err error
		httpClient, err = google.DefaultClient(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("load application default credentials: %w", err)
		}
	}

	return remote.New(cfg.Project, cfg.Location, func(o *remote.Options) {
		if cfg.Endpoint != "" {
			o.Endpoint = cfg.Endpoint
		}
		o.HTTPClient = httpClient
		o.Logger = logger
	})
}

// modelResolver creates one model per model id with the configured provider.
func modelResolver(ctx context.Context, cfg *config.Config) runner.ModelResolver {
	var (
		mu     sync.Mutex
		models = map[string]model.Model{}
	)

	return func(a *agent.Agent) (model.Model, error) {
		mu.Lock()
		defer mu.Unlock()

		if m, ok := models[a.ModelID()]; ok {
			return m, nil
		}

		m, err := newModel(ctx, cfg, a.ModelID())
		if err != nil {
			return nil, err
		}
		models[a.ModelID()] = m
		return m, nil
	}
}

func newModel(ctx context.Context, cfg *config.Config, id string) (model.Model, error) {
	switch cfg.Models.Provider {
	case "gemini":
		cc := &genai.ClientConfig{APIKey: cfg.Models.GeminiAPIKey, Backend: genai.BackendGeminiAPI}
		if cfg.Models.Vertex {
			cc = &genai.ClientConfig{Project: cfg.Project, Location: cfg.Location, Backend: genai.BackendVertexAI}
		}
		return gemini.NewModel(ctx, cc, func(o *gemini.Options) {
			o.Model = id
		})
	case "openai":
		var opts []openaioption.RequestOption
		if cfg.Models.OpenAIAPIKey != "" {
			opts = append(opts, openaioption.WithAPIKey(cfg.Models.OpenAIAPIKey))
		}
		client := openaisdk.NewClient(opts...)
		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			o.Model = id
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(id)
			o.APIKey = cfg.Models.AnthropicAPIKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Models.Provider)
	}
}

// newRunner builds a local runner for g with the configured providers. A
// searcher is only created when an agent of g needs one.
func newRunner(ctx context.Context, cfg *config.Config, g *graph.Graph, logger logging.Logger) (*runner.Runner, error) {
	var searcher *websearch.Searcher
	for _, a := range g.Agents() {
		if a.HasCapability(agent.KindSearch) {
			var err error
			searcher, err = websearch.New(ctx, cfg.Search.APIKey, cfg.Search.EngineID, func(o *websearch.Options) {
				o.Logger = logger
			})
			if err != nil {
				return nil, err
			}
			break
		}
	}

	return runner.New(g, func(o *runner.Options) {
		o.Models = modelResolver(ctx, cfg)
		if searcher != nil {
			o.Searcher = searcher
		}
		o.Fetcher = webfetch.New(func(o *webfetch.Options) {
			o.Logger = logger
		})
		o.Logger = logger
	})
}
