// Package openai implements model.Model on the OpenAI Chat Completions API.
// Agent instructions become the system message and tool results are replayed
// as tool messages directly after the assistant turn that requested them.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/model"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model adapts an OpenAI chat model to model.Model.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a model with a client configured from the environment
// (OPENAI_API_KEY).
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a model on an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		messages, err := conversation(req)
		if err != nil {
			errCh <- err
			return
		}
		params := m.params(req, messages)

		if req.Stream {
			err = m.stream(ctx, params, out)
		} else {
			err = m.complete(ctx, params, out)
		}
		if err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai", SupportsTools: true}
}

// conversation flattens normalized contents into chat messages. Tool results
// follow the assistant message carrying the matching call; results without a
// matching call are appended at the end in the order they were recorded.
func conversation(req model.Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	results := map[string]string{}
	var pending []string

	for _, c := range req.Contents {
		if c.Role != core.RoleTool {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if _, seen := results[fr.FunctionResponse.ID]; seen {
				continue
			}
			text, err := toolMessageText(fr.FunctionResponse)
			if err != nil {
				return nil, err
			}
			results[fr.FunctionResponse.ID] = text
			pending = append(pending, fr.FunctionResponse.ID)
		}
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, c := range req.Contents {
		text := c.Text()

		switch c.Role {
		case core.RoleTool:
			continue
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case core.RoleAssistant:
			calls := toolCalls(c)
			if len(calls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{ToolCalls: calls},
			})
			for _, call := range calls {
				if res, ok := results[call.ID]; ok {
					messages = append(messages, openai.ToolMessage(res, call.ID))
					delete(results, call.ID)
				}
			}
		default:
			if c.Role == core.RoleUser || text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}

	for _, id := range pending {
		if res, ok := results[id]; ok {
			messages = append(messages, openai.ToolMessage(res, id))
		}
	}

	return messages, nil
}

// toolMessageText renders a function result as tool message content: strings
// pass through, everything else is JSON encoded.
func toolMessageText(fr core.FunctionResponse) (string, error) {
	if fr.Error != "" {
		raw, err := json.Marshal(map[string]string{"error": fr.Error})
		return string(raw), err
	}
	if s, ok := fr.Response.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(fr.Response)
	if err != nil {
		return "", fmt.Errorf("openai: encode result of %s: %w", fr.Name, err)
	}
	return string(raw), nil
}

func toolCalls(c core.Content) []openai.ChatCompletionMessageToolCallParam {
	var calls []openai.ChatCompletionMessageToolCallParam
	for _, p := range c.Parts {
		fc, ok := p.(core.FunctionCallPart)
		if !ok || fc.FunctionCall.ID == "" {
			continue
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.FunctionCall.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.FunctionCall.Name,
				Arguments: fc.FunctionCall.Arguments,
			},
		})
	}
	return calls
}

func (m *Model) params(req model.Request, messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Function.Name,
				Description: openai.String(def.Function.Description),
				Parameters:  def.Function.Parameters,
			},
		})
	}

	return params
}

func (m *Model) complete(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response) error {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("openai: no choices returned")
	}

	choice := resp.Choices[0]
	parts := make([]core.Part, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	return send(ctx, out, model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	})
}

func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response) error {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := newAccumulator()
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if delta := choice.Delta.Content; delta != "" {
				acc.text.WriteString(delta)
				partial := model.Response{
					ID:      chunk.ID,
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, delta),
				}
				if err := send(ctx, out, partial); err != nil {
					return err
				}
			}
			acc.addCalls(choice.Delta.ToolCalls)
			if choice.FinishReason != "" {
				if err := send(ctx, out, acc.final(chunk.ID, choice.FinishReason)); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", err)
	}
	return nil
}

// accumulator rebuilds the final message from stream deltas. Tool calls
// arrive in fragments keyed by index and are only surfaced complete.
type accumulator struct {
	text  strings.Builder
	calls map[int64]*core.FunctionCall
}

func newAccumulator() *accumulator {
	return &accumulator{calls: map[int64]*core.FunctionCall{}}
}

func (a *accumulator) addCalls(deltas []openai.ChatCompletionChunkChoiceDeltaToolCall) {
	for _, d := range deltas {
		fc, ok := a.calls[d.Index]
		if !ok {
			fc = &core.FunctionCall{}
			a.calls[d.Index] = fc
		}
		if d.ID != "" {
			fc.ID = d.ID
		}
		if d.Function.Name != "" {
			fc.Name = d.Function.Name
		}
		fc.Arguments += d.Function.Arguments
	}
}

func (a *accumulator) final(id, finishReason string) model.Response {
	indexes := make([]int64, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	parts := make([]core.Part, 0, len(indexes)+1)
	if a.text.Len() > 0 {
		parts = append(parts, core.TextPart{Text: a.text.String()})
	}
	for _, i := range indexes {
		parts = append(parts, core.FunctionCallPart{FunctionCall: *a.calls[i]})
	}

	return model.Response{
		ID:           id,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finishReason,
	}
}

func send(ctx context.Context, out chan<- model.Response, r model.Response) error {
	select {
	case out <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
