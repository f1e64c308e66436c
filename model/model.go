package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentengine/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewFunctionTool builds a function ToolDefinition.
func NewFunctionTool(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Request captures the normalized model input for one agent turn.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// FunctionCalls returns the function calls of the response in order.
func (r Response) FunctionCalls() []core.FunctionCall {
	var calls []core.FunctionCall
	for _, p := range r.Content.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "gemini", "openai", "anthropic", "scripted"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the runner to drive generation.
//
// Generate streams zero or more partial responses followed by exactly one
// final (non-partial) response. Both channels are closed when generation ends;
// at most one error is sent.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call. onPartial, if set, is called for every
// partial response in order. The final response is returned.
func Collect(ctx context.Context, m Model, req Request, onPartial func(Response) error) (Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	respCh, errCh := m.Generate(ctx, req)

	var (
		final    Response
		hasFinal bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				if onPartial != nil {
					if err := onPartial(r); err != nil {
						return Response{}, err
					}
				}
				continue
			}
			final, hasFinal = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !hasFinal {
		return Response{}, errors.New("model returned no final response")
	}

	return final, nil
}

// Turn is one scripted model reply.
type Turn struct {
	// Text is the final assistant text.
	Text string
	// Calls are function calls requested by the model.
	Calls []core.FunctionCall
	// Err fails the turn.
	Err error
}

// Reply returns a text turn.
func Reply(text string) Turn { return Turn{Text: text} }

// Call returns a turn requesting a single function call with JSON encoded args.
func Call(name string, args map[string]any) Turn {
	raw, _ := json.Marshal(args)
	return Turn{Calls: []core.FunctionCall{{Name: name, Arguments: string(raw)}}}
}

// Fail returns a failing turn.
func Fail(err error) Turn { return Turn{Err: err} }

// ScriptedModel replays a fixed sequence of turns, one per Generate call.
// It records every request it receives and is safe for concurrent use.
type ScriptedModel struct {
	info Info

	mu       sync.Mutex
	turns    []Turn
	requests []Request
}

// NewScriptedModel creates a model replaying turns in order.
func NewScriptedModel(name string, turns ...Turn) *ScriptedModel {
	return &ScriptedModel{
		info: Info{
			Name:          name,
			Provider:      "scripted",
			SupportsTools: true,
		},
		turns: turns,
	}
}

// Requests returns a copy of the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Remaining returns the number of unconsumed turns.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Generate implements Model. In stream mode the text is emitted word by word
// as partial responses before the final response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var (
		turn Turn
		ok   bool
	)
	if len(m.turns) > 0 {
		turn, ok = m.turns[0], true
		m.turns = m.turns[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if !ok {
			errCh <- fmt.Errorf("scripted model %s: no turns left", m.info.Name)
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if req.Stream && turn.Text != "" {
			words := strings.SplitAfter(turn.Text, " ")
			for _, w := range words {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, w),
				}:
				}
			}
		}

		parts := make([]core.Part, 0, len(turn.Calls)+1)
		if turn.Text != "" {
			parts = append(parts, core.TextPart{Text: turn.Text})
		}
		finish := "stop"
		for _, fc := range turn.Calls {
			if fc.ID == "" {
				fc.ID = core.NewID()
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
			finish = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{
			Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
			FinishReason: finish,
		}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
