package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Conversation roles used in Content.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., JSON object map).
type DataPart struct {
	Data map[string]any // Structured key/value payload
}

// isPart implements the Part interface for DataPart.
func (DataPart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Optional stable id (can be supplied later)
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized JSON argument object
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string `json:"name"`               // Function name
	Response any    `json:"response,omitempty"` // Successful result (any shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string // Conversation role (user, assistant, tool, system,...)
	Parts []Part // Ordered heterogeneous parts
}

// NewTextContent builds a single text part content for role.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts in order.
func (c Content) Text() string {
	var b strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// wirePart is the JSON shape of a single part. Exactly one field is set.
type wirePart struct {
	Text             *string               `json:"text,omitempty"`
	Data             map[string]any        `json:"data,omitempty"`
	FunctionCall     *wireFunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *wireFunctionResponse `json:"function_response,omitempty"`
}

type wireFunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type wireFunctionResponse struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

// MarshalJSON encodes content using snake_case part keys
// (text | data | function_call | function_response).
func (c Content) MarshalJSON() ([]byte, error) {
	wc := wireContent{Role: c.Role, Parts: make([]wirePart, 0, len(c.Parts))}
	for _, p := range c.Parts {
		switch pt := p.(type) {
		case TextPart:
			text := pt.Text
			wc.Parts = append(wc.Parts, wirePart{Text: &text})
		case DataPart:
			wc.Parts = append(wc.Parts, wirePart{Data: pt.Data})
		case FunctionCallPart:
			args := json.RawMessage("{}")
			if raw := strings.TrimSpace(pt.FunctionCall.Arguments); raw != "" {
				if !json.Valid([]byte(raw)) {
					return nil, fmt.Errorf("function call %s: arguments are not valid JSON", pt.FunctionCall.Name)
				}
				args = json.RawMessage(raw)
			}
			wc.Parts = append(wc.Parts, wirePart{FunctionCall: &wireFunctionCall{
				ID:   pt.FunctionCall.ID,
				Name: pt.FunctionCall.Name,
				Args: args,
			}})
		case FunctionResponsePart:
			fr := pt.FunctionResponse
			wc.Parts = append(wc.Parts, wirePart{FunctionResponse: &wireFunctionResponse{
				ID:       fr.ID,
				Name:     fr.Name,
				Response: fr.Response,
				Error:    fr.Error,
			}})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}
	return json.Marshal(wc)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON. Parts with no
// recognised field are skipped so newer producers stay readable.
func (c *Content) UnmarshalJSON(data []byte) error {
	var wc wireContent
	if err := json.Unmarshal(data, &wc); err != nil {
		return err
	}
	c.Role = wc.Role
	c.Parts = make([]Part, 0, len(wc.Parts))
	for _, wp := range wc.Parts {
		switch {
		case wp.Text != nil:
			c.Parts = append(c.Parts, TextPart{Text: *wp.Text})
		case wp.FunctionCall != nil:
			args := string(wp.FunctionCall.Args)
			if args == "null" {
				args = ""
			}
			c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: FunctionCall{
				ID:        wp.FunctionCall.ID,
				Name:      wp.FunctionCall.Name,
				Arguments: args,
			}})
		case wp.FunctionResponse != nil:
			c.Parts = append(c.Parts, FunctionResponsePart{FunctionResponse: FunctionResponse{
				ID:       wp.FunctionResponse.ID,
				Name:     wp.FunctionResponse.Name,
				Response: wp.FunctionResponse.Response,
				Error:    wp.FunctionResponse.Error,
			}})
		case wp.Data != nil:
			c.Parts = append(c.Parts, DataPart{Data: wp.Data})
		}
	}
	return nil
}
