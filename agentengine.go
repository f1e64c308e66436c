// Package agentengine chains the stages of deploying an agent graph to the
// remote agent execution service: descriptor construction, registration and
// querying. Each stage keeps its own error kind:
//   - *core.ValidationError for local failures (no request was sent)
//   - *core.RegistrationError when the service rejects a registration
//   - *core.InvocationError when a query fails remotely
//
// Most applications build a graph.Graph, call Deploy once and query the
// returned handle with StreamQuery or Query. Local execution of the same
// graph is provided by the runner package.
package agentengine

import (
	"context"
	"iter"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
	"github.com/hupe1980/agentengine/graph"
	"github.com/hupe1980/agentengine/remote"
)

// Deployment is a registered graph together with the descriptor it was
// registered from.
type Deployment struct {
	Handle     remote.Handle
	Descriptor *descriptor.Descriptor
}

// Deploy builds the descriptor of g and registers it with a single request.
func Deploy(ctx context.Context, c *remote.Client, g *graph.Graph, pkg descriptor.Package, optFns ...func(o *descriptor.Options)) (*Deployment, error) {
	if c == nil {
		return nil, core.NewValidationError("client", nil, "client must not be nil")
	}

	d, err := descriptor.Build(g, pkg, optFns...)
	if err != nil {
		return nil, err
	}

	h, err := c.Register(ctx, d)
	if err != nil {
		return nil, err
	}

	return &Deployment{Handle: h, Descriptor: d}, nil
}

// StreamQuery opens a lazy stream of the chunks the deployed graph produces
// for message.
func StreamQuery(ctx context.Context, c *remote.Client, h remote.Handle, userID, sessionID, message string) (*remote.Stream, error) {
	if c == nil {
		return nil, core.NewValidationError("client", nil, "client must not be nil")
	}
	return c.StreamQuery(ctx, h, remote.QueryRequest{UserID: userID, SessionID: sessionID, Message: message})
}

// Chunks adapts a stream to a range-over-func sequence. A terminal error is
// yielded once with a zero chunk. Breaking out of the loop closes the stream.
func Chunks(s *remote.Stream) iter.Seq2[remote.Chunk, error] {
	return func(yield func(remote.Chunk, error) bool) {
		defer s.Close()

		for s.Next() {
			if !yield(s.Current(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(remote.Chunk{}, err)
		}
	}
}

// Result is the outcome of Query.
type Result struct {
	// Text is the text of the last turn-complete event, or of the last
	// non-partial text event when no event marks the end of a turn.
	Text   string
	Chunks []remote.Chunk
}

// Query drains the stream of one message and returns its final text.
func Query(ctx context.Context, c *remote.Client, h remote.Handle, userID, sessionID, message string) (*Result, error) {
	s, err := StreamQuery(ctx, c, h, userID, sessionID, message)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var fallback string
	for chunk, err := range Chunks(s) {
		if err != nil {
			return res, err
		}
		res.Chunks = append(res.Chunks, chunk)

		ev := chunk.Event
		if ev == nil || ev.Partial {
			continue
		}
		if text := ev.Text(); text != "" {
			fallback = text
			if ev.TurnComplete {
				res.Text = text
			}
		}
	}

	if res.Text == "" {
		res.Text = fallback
	}
	return res, nil
}
