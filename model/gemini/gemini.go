// Package gemini provides an implementation of model.Model on the Google Gen
// AI SDK (Gemini API or Vertex AI backend), including streaming and function
// calling.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/model"
)

// DefaultModel is the model used when Options.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Options configure the Gemini model adapter.
type Options struct {
	Model           string
	Temperature     *float32
	MaxOutputTokens int32
}

// Model wraps the Gemini generate content API behind the generic model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

// NewModel creates a Gemini model. A nil config reads credentials from the
// environment (GOOGLE_API_KEY / GEMINI_API_KEY or Vertex AI settings).
func NewModel(ctx context.Context, cfg *genai.ClientConfig, optFns ...func(o *Options)) (*Model, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return NewModelFromClient(client, optFns...), nil
}

// NewModelFromClient creates a Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{Model: DefaultModel}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
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

		contents, err := toContents(req.Contents)
		if err != nil {
			errCh <- err
			return
		}
		config := m.buildConfig(req)

		if req.Stream {
			m.handleStreaming(ctx, contents, config, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, contents, config, out, errCh)
	}()

	return out, errCh
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: m.opts.Temperature,
	}
	if m.opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = m.opts.MaxOutputTokens
	}
	if req.Instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Function.Name,
				Description:          t.Function.Description,
				ParametersJsonSchema: t.Function.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return config
}

func (m *Model) handleNonStreaming(
	ctx context.Context,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, config)
	if err != nil {
		errCh <- fmt.Errorf("gemini api error: %w", err)
		return
	}

	parts, finish, err := fromCandidates(resp)
	if err != nil {
		errCh <- err
		return
	}

	send(ctx, out, model.Response{
		ID:           resp.ResponseID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
		Usage:        usage(resp),
	})
}

func (m *Model) handleStreaming(
	ctx context.Context,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	out chan<- model.Response,
	errCh chan<- error,
) {
	var (
		text   strings.Builder
		calls  []core.Part
		finish string
		last   *genai.GenerateContentResponse
	)

	for resp, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, contents, config) {
		if err != nil {
			errCh <- fmt.Errorf("gemini streaming error: %w", err)
			return
		}
		last = resp

		parts, reason, err := fromCandidates(resp)
		if err != nil {
			errCh <- err
			return
		}
		if reason != "" {
			finish = reason
		}

		for _, p := range parts {
			switch pt := p.(type) {
			case core.TextPart:
				text.WriteString(pt.Text)
				if !send(ctx, out, model.Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, pt.Text),
				}) {
					errCh <- ctx.Err()
					return
				}
			case core.FunctionCallPart:
				calls = append(calls, pt)
			}
		}
	}

	final := make([]core.Part, 0, len(calls)+1)
	if text.Len() > 0 {
		final = append(final, core.TextPart{Text: text.String()})
	}
	final = append(final, calls...)

	resp := model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: final},
		FinishReason: finish,
	}
	if last != nil {
		resp.ID = last.ResponseID
		resp.Usage = usage(last)
	}
	send(ctx, out, resp)
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}

func send(ctx context.Context, out chan<- model.Response, r model.Response) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// toContents maps the normalized conversation to Gemini contents. Assistant
// turns become "model" turns; tool results are sent as user function responses.
func toContents(contents []core.Content) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		role := string(genai.RoleUser)
		if c.Role == core.RoleAssistant {
			role = string(genai.RoleModel)
		}

		gc := &genai.Content{Role: role}
		for _, p := range c.Parts {
			switch pt := p.(type) {
			case core.TextPart:
				if pt.Text != "" {
					gc.Parts = append(gc.Parts, genai.NewPartFromText(pt.Text))
				}
			case core.DataPart:
				raw, err := json.Marshal(pt.Data)
				if err != nil {
					return nil, fmt.Errorf("gemini: encode data part: %w", err)
				}
				gc.Parts = append(gc.Parts, genai.NewPartFromText(string(raw)))
			case core.FunctionCallPart:
				args := map[string]any{}
				if raw := strings.TrimSpace(pt.FunctionCall.Arguments); raw != "" {
					if err := json.Unmarshal([]byte(raw), &args); err != nil {
						return nil, fmt.Errorf("gemini: decode arguments of %s: %w", pt.FunctionCall.Name, err)
					}
				}
				gc.Parts = append(gc.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   pt.FunctionCall.ID,
					Name: pt.FunctionCall.Name,
					Args: args,
				}})
			case core.FunctionResponsePart:
				gc.Parts = append(gc.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       pt.FunctionResponse.ID,
					Name:     pt.FunctionResponse.Name,
					Response: responseMap(pt.FunctionResponse),
				}})
			}
		}
		if len(gc.Parts) > 0 {
			out = append(out, gc)
		}
	}
	return out, nil
}

// responseMap shapes a function result as the JSON object Gemini expects.
func responseMap(fr core.FunctionResponse) map[string]any {
	if fr.Error != "" {
		return map[string]any{"error": fr.Error}
	}
	if m, ok := fr.Response.(map[string]any); ok {
		return m
	}
	if raw, err := json.Marshal(fr.Response); err == nil {
		var m map[string]any
		if json.Unmarshal(raw, &m) == nil && m != nil {
			return m
		}
	}
	return map[string]any{"output": fr.Response}
}

func fromCandidates(resp *genai.GenerateContentResponse) ([]core.Part, string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, "", fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, "", nil
	}

	cand := resp.Candidates[0]
	finish := strings.ToLower(string(cand.FinishReason))
	if cand.Content == nil {
		return nil, finish, nil
	}

	var parts []core.Part
	for _, p := range cand.Content.Parts {
		switch {
		case p == nil || p.Thought:
			continue
		case p.FunctionCall != nil:
			args, err := json.Marshal(p.FunctionCall.Args)
			if err != nil {
				return nil, "", fmt.Errorf("gemini: encode arguments of %s: %w", p.FunctionCall.Name, err)
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        p.FunctionCall.ID,
				Name:      p.FunctionCall.Name,
				Arguments: string(args),
			}})
		case p.Text != "":
			parts = append(parts, core.TextPart{Text: p.Text})
		}
	}

	if len(parts) == 0 && cand.FinishReason == genai.FinishReasonSafety {
		return nil, finish, errors.New("gemini: response blocked by safety filters")
	}

	return parts, finish, nil
}

func usage(resp *genai.GenerateContentResponse) *model.TokenUsage {
	if resp.UsageMetadata == nil {
		return nil
	}
	return &model.TokenUsage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}
