// Package adk materializes an agent graph as Agent Development Kit agents,
// the form served by the google-adk entrypoint of a deployed engine.
package adk

import (
	"context"
	"fmt"
	"sync"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	adkmodel "google.golang.org/adk/model"
	adkgemini "google.golang.org/adk/model/gemini"
	adktool "google.golang.org/adk/tool"
	"google.golang.org/adk/tool/agenttool"
	"google.golang.org/adk/tool/geminitool"
	"google.golang.org/genai"

	"github.com/hupe1980/agentengine/agent"
	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/graph"
	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/tool"
)

// LLMFactory returns the model serving an agent.
type LLMFactory func(a *agent.Agent) (adkmodel.LLM, error)

// GeminiLLMs returns a factory creating one Gemini model per model id.
func GeminiLLMs(ctx context.Context, cfg *genai.ClientConfig) LLMFactory {
	var (
		mu     sync.Mutex
		models = map[string]adkmodel.LLM{}
	)

	return func(a *agent.Agent) (adkmodel.LLM, error) {
		mu.Lock()
		defer mu.Unlock()

		if m, ok := models[a.ModelID()]; ok {
			return m, nil
		}

		m, err := adkgemini.NewModel(ctx, a.ModelID(), cfg)
		if err != nil {
			return nil, fmt.Errorf("adk: gemini model %s: %w", a.ModelID(), err)
		}
		models[a.ModelID()] = m
		return m, nil
	}
}

// Options configures Materialize.
type Options struct {
	Logger logging.Logger
}

// Result holds the materialized agents.
type Result struct {
	Root   adkagent.Agent
	Agents map[string]adkagent.Agent
	// Tools lists the tool names attached to each agent.
	Tools map[string][]string
}

// Materialize converts g leaves first. Search becomes the built-in Google
// Search tool, URL fetch the built-in URL context tool, a delegation an
// agent tool wrapping the target, and children become sub-agents.
func Materialize(g *graph.Graph, llms LLMFactory, optFns ...func(o *Options)) (*Result, error) {
	if g == nil {
		return nil, core.NewValidationError("graph", nil, "graph must not be nil")
	}
	if llms == nil {
		return nil, core.NewValidationError("llms", nil, "an LLM factory is required")
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	res := &Result{
		Agents: make(map[string]adkagent.Agent, g.Len()),
		Tools:  make(map[string][]string, g.Len()),
	}

	for _, a := range g.Agents() {
		built, names, err := materializeAgent(a, llms, res.Agents)
		if err != nil {
			return nil, err
		}
		res.Agents[a.Name()] = built
		res.Tools[a.Name()] = names

		opts.Logger.Debug("adk.materialize.agent", "agent", a.Name(), "model", a.ModelID(), "tools", names)
	}

	res.Root = res.Agents[g.Root().Name()]
	return res, nil
}

func materializeAgent(a *agent.Agent, llms LLMFactory, built map[string]adkagent.Agent) (adkagent.Agent, []string, error) {
	llm, err := llms(a)
	if err != nil {
		return nil, nil, fmt.Errorf("adk: agent %s: %w", a.Name(), err)
	}

	instruction, err := a.RenderInstruction(nil)
	if err != nil {
		return nil, nil, err
	}

	var (
		tools []adktool.Tool
		names []string
	)
	for _, c := range a.Capabilities() {
		switch ct := c.(type) {
		case agent.SearchCapability:
			tools = append(tools, geminitool.GoogleSearch{})
			names = append(names, tool.SearchToolName)
		case agent.URLFetchCapability:
			tools = append(tools, geminitool.New(tool.URLContextToolName, &genai.Tool{URLContext: &genai.URLContext{}}))
			names = append(names, tool.URLContextToolName)
		case agent.AgentDelegation:
			target, ok := built[ct.Target.Name()]
			if !ok {
				return nil, nil, fmt.Errorf("adk: agent %s: delegation target %s not materialized", a.Name(), ct.Target.Name())
			}
			tools = append(tools, agenttool.New(target, nil))
			names = append(names, ct.Target.Name())
		}
	}

	subAgents := make([]adkagent.Agent, 0, len(a.Children()))
	for _, child := range a.Children() {
		sub, ok := built[child.Name()]
		if !ok {
			return nil, nil, fmt.Errorf("adk: agent %s: child %s not materialized", a.Name(), child.Name())
		}
		subAgents = append(subAgents, sub)
	}

	out, err := llmagent.New(llmagent.Config{
		Name:        a.Name(),
		Description: a.Description(),
		Model:       llm,
		Instruction: instruction,
		Tools:       tools,
		SubAgents:   subAgents,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("adk: agent %s: %w", a.Name(), err)
	}
	return out, names, nil
}
