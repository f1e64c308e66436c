package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/hupe1980/agentengine/agent"
	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/graph"
	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/model"
	"github.com/hupe1980/agentengine/session"
	"github.com/hupe1980/agentengine/tool"
)

// ModelResolver returns the model that backs an agent.
type ModelResolver func(a *agent.Agent) (model.Model, error)

// StaticModels resolves models from a map keyed by agent name or, failing
// that, by model id.
func StaticModels(models map[string]model.Model) ModelResolver {
	return func(a *agent.Agent) (model.Model, error) {
		if m, ok := models[a.Name()]; ok {
			return m, nil
		}
		if m, ok := models[a.ModelID()]; ok {
			return m, nil
		}
		return nil, fmt.Errorf("no model for agent %s (model id %q)", a.Name(), a.ModelID())
	}
}

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// Models resolves the model of each agent. Required.
	Models ModelResolver
	// Searcher backs the search capability.
	Searcher tool.Searcher
	// Fetcher backs the URL fetch capability.
	Fetcher tool.Fetcher
	// Tools are additional function tools per agent name.
	Tools map[string][]tool.Tool
	// SessionStore persists the root conversation.
	SessionStore core.SessionStore
	// Logger receives runner events.
	Logger logging.Logger
	// MaxTurns bounds the model calls per agent invocation.
	MaxTurns int
	// MaxParallelTools bounds concurrent function calls within one turn.
	MaxParallelTools int
	// Stream emits partial text events while the model generates.
	Stream bool
	// RecoverDelegation reports a failed delegation to the delegating model
	// as an error function response instead of terminating the invocation.
	RecoverDelegation bool
	// Callbacks are lifecycle hooks run for every agent of the graph.
	Callbacks []Callback
}

// Runner executes an agent graph. Public methods are safe for concurrent use.
type Runner struct {
	graph     *graph.Graph
	opts      Options
	exec      *executor
	callbacks *CallbackManager
}

// New constructs a Runner for g.
func New(g *graph.Graph, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{
		SessionStore:     session.NewInMemoryStore(),
		Logger:           logging.NoOpLogger{},
		MaxTurns:         10,
		MaxParallelTools: 1,
		Stream:           true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	opts.Logger = logging.WithComponent(opts.Logger, "runner")

	if g == nil {
		return nil, core.NewValidationError("graph", nil, "graph must not be nil")
	}
	if opts.Models == nil {
		return nil, core.NewValidationError("models", nil, "a model resolver is required")
	}
	if opts.MaxTurns < 1 {
		return nil, core.NewValidationError("max_turns", opts.MaxTurns, "must be at least 1")
	}

	for _, a := range g.Agents() {
		if a.HasCapability(agent.KindSearch) && opts.Searcher == nil {
			return nil, core.NewValidationError("searcher", nil, "agent %s has the search capability but no searcher is configured", a.Name())
		}
		if a.HasCapability(agent.KindURLFetch) && opts.Fetcher == nil {
			return nil, core.NewValidationError("fetcher", nil, "agent %s has the url fetch capability but no fetcher is configured", a.Name())
		}
	}

	return &Runner{
		graph:     g,
		opts:      opts,
		exec:      &executor{maxParallel: opts.MaxParallelTools},
		callbacks: NewCallbackManager(opts.Callbacks...),
	}, nil
}

// Graph returns the graph executed by the runner.
func (r *Runner) Graph() *graph.Graph { return r.graph }

// SessionStore returns the store holding root conversations.
func (r *Runner) SessionStore() core.SessionStore { return r.opts.SessionStore }

// errStopped signals that the consumer stopped pulling events.
var errStopped = errors.New("runner: consumer stopped")

// invocation carries the state shared by all agents of one Run. logger is
// bound to the conversation key and invocation id.
type invocation struct {
	id     string
	key    core.SessionKey
	logger logging.Logger
}

// Run sends message to the root agent within the conversation (userID,
// sessionID) and yields the resulting events in order. Partial text events
// are yielded when Options.Stream is set. A terminal error is yielded once
// with a zero event; the sequence ends after it.
func (r *Runner) Run(ctx context.Context, userID, sessionID, message string) iter.Seq2[core.Event, error] {
	return func(yield func(core.Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if err := validateQuery(userID, sessionID, message); err != nil {
			yield(core.Event{}, err)
			return
		}

		inv := invocation{id: core.NewID(), key: core.SessionKey{UserID: userID, SessionID: sessionID}}
		inv.logger = logging.WithSession(r.opts.Logger, userID, sessionID, inv.id)
		root := r.graph.Root()
		logger := inv.logger

		history, err := r.loadHistory(inv.key)
		if err != nil {
			yield(core.Event{}, err)
			return
		}

		userEvent := core.NewUserMessageEvent(inv.id, message)
		if err := r.opts.SessionStore.AppendEvent(inv.key, userEvent); err != nil {
			yield(core.Event{}, fmt.Errorf("failed to append user event: %w", err))
			return
		}
		history = append(history, *userEvent.Content)

		logger.Info("runner.run.start", "agent", root.Name())

		emit := func(ev core.Event) error {
			if !ev.Partial {
				if err := r.opts.SessionStore.AppendEvent(inv.key, ev); err != nil {
					return fmt.Errorf("failed to append event to session: %w", err)
				}
			}
			if !yield(ev, nil) {
				return errStopped
			}
			return nil
		}

		_, err = r.runAgent(ctx, inv, root, history, emit)
		switch {
		case errors.Is(err, errStopped):
			logger.Debug("runner.run.stopped")
		case err != nil:
			logger.Error("runner.run.failed", "error", err.Error())

			failed := core.NewEvent(inv.id, root.Name())
			failed.ErrorCode = string(core.CodeOf(err))
			failed.ErrorMessage = err.Error()
			if perr := r.opts.SessionStore.AppendEvent(inv.key, failed); perr != nil {
				logger.Warn("runner.run.persist_failed", "error", perr.Error())
			}

			cc := inv.callback(CallbackOnError, root.Name())
			cc.Event = &failed
			cc.Err = err
			if cerr := r.callbacks.Execute(ctx, cc); cerr != nil {
				logger.Warn("runner.callback.failed", "type", string(CallbackOnError), "error", cerr.Error())
			}

			yield(core.Event{}, err)
		default:
			logger.Info("runner.run.completed")
		}
	}
}

// Query runs message to completion and returns the final text of the agent
// that answered, the root or a sub-agent it transferred to.
func (r *Runner) Query(ctx context.Context, userID, sessionID, message string) (string, error) {
	var final string
	for ev, err := range r.Run(ctx, userID, sessionID, message) {
		if err != nil {
			return "", err
		}
		if ev.TurnComplete {
			final = ev.Text()
		}
	}
	return final, nil
}

func (r *Runner) loadHistory(key core.SessionKey) ([]core.Content, error) {
	sess, err := r.opts.SessionStore.Get(key)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			if _, err := r.opts.SessionStore.Create(key); err != nil {
				return nil, fmt.Errorf("failed to create session: %w", err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	events := sess.GetConversationHistory()
	history := make([]core.Content, 0, len(events))
	for _, ev := range events {
		history = append(history, *ev.Content)
	}
	return history, nil
}

// runAgent drives the turn loop of a and returns its final text.
func (r *Runner) runAgent(ctx context.Context, inv invocation, a *agent.Agent, contents []core.Content, emit func(core.Event) error) (string, error) {
	m, err := r.opts.Models(a)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	instructions, err := a.RenderInstruction(agent.InstructionVars{
		"user_id":    inv.key.UserID,
		"session_id": inv.key.SessionID,
	})
	if err != nil {
		return "", fmt.Errorf("agent %s: render instruction: %w", a.Name(), err)
	}

	tools := r.toolsFor(inv, a)
	defs := make([]model.ToolDefinition, 0, len(tools))
	registry := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		defs = append(defs, model.NewFunctionTool(t.Name(), t.Description(), t.Parameters()))
		registry[t.Name()] = t
	}

	logger := inv.logger

	if err := r.hook(ctx, inv.callback(CallbackBeforeAgent, a.Name())); err != nil {
		return "", err
	}

	for turn := 0; turn < r.opts.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		req := model.Request{
			Instructions: instructions,
			Contents:     contents,
			Tools:        defs,
			Stream:       r.opts.Stream,
		}

		cc := inv.callback(CallbackBeforeModel, a.Name())
		cc.Request = &req
		if err := r.hook(ctx, cc); err != nil {
			return "", err
		}

		start := time.Now()
		resp, err := model.Collect(ctx, m, req, func(p model.Response) error {
			text := p.Content.Text()
			if text == "" {
				return nil
			}
			ev := core.NewMessageEvent(inv.id, a.Name(), text)
			ev.Partial = true
			return emit(ev)
		})
		if errors.Is(err, errStopped) {
			return "", err
		}
		logging.LogModelCall(logger, a.Name(), m.Info().Name, time.Since(start), err)
		if err != nil {
			return "", fmt.Errorf("agent %s: model %s: %w", a.Name(), m.Info().Name, err)
		}

		content := withCallIDs(resp.Content)
		content.Role = core.RoleAssistant
		calls := functionCalls(content)

		ev := core.NewEvent(inv.id, a.Name())
		ev.Content = &content
		ev.TurnComplete = len(calls) == 0

		cc = inv.callback(CallbackAfterModel, a.Name())
		cc.Event = &ev
		if err := r.hook(ctx, cc); err != nil {
			return "", err
		}
		if err := emit(ev); err != nil {
			return "", err
		}

		if len(calls) == 0 {
			logger.Debug("runner.agent.final", "agent", a.Name(), "turns", turn+1)

			cc = inv.callback(CallbackAfterAgent, a.Name())
			cc.Event = &ev
			if err := r.hook(ctx, cc); err != nil {
				return "", err
			}
			return content.Text(), nil
		}

		for i := range calls {
			cc = inv.callback(CallbackBeforeTool, a.Name())
			cc.Call = &calls[i]
			if err := r.hook(ctx, cc); err != nil {
				return "", err
			}
		}

		contents = append(contents, content)

		results := r.exec.execute(func(fc core.FunctionCall) *core.ToolContext {
			return core.NewToolContext(ctx, inv.key, a.Name(), fc.ID, func(o *core.ToolContextOptions) {
				o.InvocationID = inv.id
				o.Logger = r.opts.Logger
			})
		}, logger, a.Name(), registry, calls)

		for _, res := range results {
			if errors.Is(res.err, errStopped) {
				return "", res.err
			}
			var de *core.DelegationError
			if errors.As(res.err, &de) && !r.opts.RecoverDelegation {
				return "", res.err
			}
			if res.err != nil && ctx.Err() != nil {
				return "", ctx.Err()
			}

			cc = inv.callback(CallbackAfterTool, a.Name())
			cc.Call = &res.call
			cc.Result = res.result
			cc.Err = res.err
			if err := r.hook(ctx, cc); err != nil {
				return "", err
			}
		}

		transferTo := ""
		for _, res := range results {
			respEv := core.NewFunctionResponseEvent(inv.id, a.Name(), res.call.ID, res.call.Name, res.result, res.err)
			if err := emit(respEv); err != nil {
				return "", err
			}
			contents = append(contents, *respEv.Content)

			if t, ok := res.result.(tool.Transfer); ok && res.err == nil && transferTo == "" {
				transferTo = t.AgentName
			}
		}

		if transferTo != "" {
			child, ok := r.graph.Lookup(transferTo)
			if !ok {
				return "", fmt.Errorf("agent %s: transfer to unknown agent %q", a.Name(), transferTo)
			}
			logger.Info("runner.transfer", "agent", a.Name(), "target", transferTo)
			return r.runAgent(ctx, inv, child, contents, emit)
		}
	}

	return "", fmt.Errorf("agent %s: no final response after %d turns", a.Name(), r.opts.MaxTurns)
}

func (inv invocation) callback(t CallbackType, agentName string) *CallbackContext {
	return &CallbackContext{Type: t, InvocationID: inv.id, Key: inv.key, Agent: agentName}
}

// hook runs the callbacks of cc.Type; a failure terminates the agent.
func (r *Runner) hook(ctx context.Context, cc *CallbackContext) error {
	if err := r.callbacks.Execute(ctx, cc); err != nil {
		return fmt.Errorf("agent %s: %s callback: %w", cc.Agent, cc.Type, err)
	}
	return nil
}

// toolsFor materializes the capabilities and extra tools of a. Children are
// reachable through transfer_to_agent, delegation targets through agent tools.
func (r *Runner) toolsFor(inv invocation, a *agent.Agent) []tool.Tool {
	var tools []tool.Tool
	seen := map[string]bool{}
	add := func(t tool.Tool) {
		if seen[t.Name()] {
			return
		}
		seen[t.Name()] = true
		tools = append(tools, t)
	}

	for _, c := range a.Capabilities() {
		switch c := c.(type) {
		case agent.SearchCapability:
			add(tool.NewSearchTool(r.opts.Searcher))
		case agent.URLFetchCapability:
			add(tool.NewURLContextTool(r.opts.Fetcher))
		case agent.AgentDelegation:
			add(tool.NewAgentTool(c.Target.Name(), c.Target.Description(), r.delegate(inv)))
		}
	}
	if children := a.Children(); len(children) > 0 {
		names := make([]string, len(children))
		for i, child := range children {
			names[i] = child.Name()
		}
		add(tool.NewTransferTool(names...))
	}
	for _, t := range r.opts.Tools[a.Name()] {
		add(t)
	}

	return tools
}

// delegate returns the invoker used by delegation tools. The target runs with
// the request as its only input; its events are not part of the root
// conversation.
func (r *Runner) delegate(inv invocation) tool.AgentInvoker {
	return func(tc *core.ToolContext, target, request string) (string, error) {
		a, ok := r.graph.Lookup(target)
		if !ok {
			return "", fmt.Errorf("unknown agent %q", target)
		}

		inv.logger.Info("runner.delegation.start", "agent", tc.AgentName(), "target", target)

		contents := []core.Content{core.NewTextContent(core.RoleUser, request)}
		out, err := r.runAgent(tc.Context(), inv, a, contents, func(ev core.Event) error {
			if !ev.Partial {
				inv.logger.Debug("runner.delegation.event", "agent", ev.Author, "event_id", ev.ID)
			}
			return nil
		})
		if err != nil {
			return "", err
		}

		return strings.TrimSpace(out), nil
	}
}

func validateQuery(userID, sessionID, message string) error {
	if userID == "" {
		return core.NewValidationError("user_id", userID, "must not be empty")
	}
	if sessionID == "" {
		return core.NewValidationError("session_id", sessionID, "must not be empty")
	}
	if message == "" {
		return core.NewValidationError("message", message, "must not be empty")
	}
	return nil
}

// withCallIDs assigns ids to function calls the model left unnamed.
func withCallIDs(c core.Content) core.Content {
	parts := make([]core.Part, len(c.Parts))
	for i, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = core.NewID()
			p = fc
		}
		parts[i] = p
	}
	return core.Content{Role: c.Role, Parts: parts}
}

func functionCalls(c core.Content) []core.FunctionCall {
	var calls []core.FunctionCall
	for _, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}
