package testutil

import (
	"github.com/hupe1980/agentengine/agent"
	"github.com/hupe1980/agentengine/graph"
)

// CoachModel is the model id used by the coach fixture.
const CoachModel = "gemini-2.5-flash"

// CoachGraph builds the reference graph: a "lawyer" root that delegates to a
// search agent and a URL context agent.
func CoachGraph() (*graph.Graph, error) {
	search, err := agent.New("google_search_agent", CoachModel, func(o *agent.Options) {
		o.Description = "Searches the web."
		o.Instruction = "Use the google_search tool to find information on the web."
		o.Capabilities = []agent.Capability{agent.Search()}
	})
	if err != nil {
		return nil, err
	}

	urls, err := agent.New("url_context_agent", CoachModel, func(o *agent.Options) {
		o.Description = "Reads web pages."
		o.Instruction = "Use the url_context tool to read the pages you are given."
		o.Capabilities = []agent.Capability{agent.URLFetch()}
	})
	if err != nil {
		return nil, err
	}

	lawyer, err := agent.New("lawyer", CoachModel, func(o *agent.Options) {
		o.Description = "A legal research coach."
		o.Instruction = "You are a lawyer. Research questions with your helpers before answering."
		o.Capabilities = []agent.Capability{agent.Delegate(search), agent.Delegate(urls)}
	})
	if err != nil {
		return nil, err
	}

	return graph.New(lawyer)
}
