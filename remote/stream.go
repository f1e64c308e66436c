package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
)

// QueryRequest is the input of a streaming query.
type QueryRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	// Method is the exposed stream method to call. Defaults to stream_query.
	Method string `json:"-"`
}

func (r QueryRequest) validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return core.NewValidationError("user_id", r.UserID, "user id must not be empty")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return core.NewValidationError("session_id", r.SessionID, "session id must not be empty")
	}
	if r.Message == "" {
		return core.NewValidationError("message", r.Message, "message must not be empty")
	}
	return nil
}

// Chunk is one element of a query stream: the raw JSON object as produced
// by the remote graph plus its decoding as an event when it has that shape.
type Chunk struct {
	Event *core.Event
	Raw   json.RawMessage
}

// Text returns the text of the decoded event, if any.
func (c Chunk) Text() string {
	if c.Event == nil {
		return ""
	}
	return c.Event.Text()
}

type queryBody struct {
	ClassMethod string `json:"classMethod"`
	Input       any    `json:"input"`
}

// StreamQuery returns a lazy stream of the chunks produced by the deployed
// graph for one message. The request is sent on the first call to Next.
// Empty user id, session id or message yield a *core.ValidationError and no
// stream. Every call re-runs inference from scratch; streams are not
// restartable.
func (c *Client) StreamQuery(ctx context.Context, h Handle, q QueryRequest) (*Stream, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	if q.Method == "" {
		q.Method = descriptor.StreamQueryMethod
	}

	body, err := json.Marshal(queryBody{ClassMethod: q.Method, Input: q})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Stream{
		ctx:    ctx,
		cancel: cancel,
		client: c,
		handle: h,
		query:  q,
		body:   body,
	}, nil
}

// Stream is a pull-based sequence of chunks. It is finite and ordered:
// chunks are delivered in arrival order and Next returns false at the end
// of the response body or on the first error. A Stream is not safe for
// concurrent use.
//
//	stream, err := client.StreamQuery(ctx, h, remote.QueryRequest{UserID: "u1", SessionID: "s1", Message: "hi"})
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next() {
//		fmt.Print(stream.Current().Text())
//	}
//	if err := stream.Err(); err != nil { ... }
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	client *Client
	handle Handle
	query  QueryRequest
	body   []byte

	started bool
	done    bool
	resp    *http.Response
	dec     *chunkDecoder
	span    trace.Span
	start   time.Time
	count   int
	cur     Chunk
	err     error

	closeOnce sync.Once
}

// Next advances to the next chunk. It returns false when the stream ended
// or failed; Err distinguishes the two.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	if !s.started {
		s.started = true
		if err := s.open(); err != nil {
			s.fail(err)
			return false
		}
	}

	raw, err := s.dec.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.finish()
			return false
		}
		s.fail(s.invocationError(0, err.Error(), err))
		return false
	}

	chunk, err := decodeChunk(raw)
	if err != nil {
		var ie *core.InvocationError
		if errors.As(err, &ie) {
			ie.ResourceName = s.handle.ResourceName
		}
		s.fail(err)
		return false
	}

	s.count++
	s.cur = chunk
	return true
}

// Current returns the chunk read by the last successful Next.
func (s *Stream) Current() Chunk { return s.cur }

// Err returns the terminal error of the stream, nil after a clean end.
func (s *Stream) Err() error { return s.err }

// Close stops requesting chunks and releases the connection. Whether the
// remote execution halts is up to the service.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.cancel()
		if s.resp != nil {
			_ = s.resp.Body.Close()
		}
		if s.span != nil {
			s.span.SetAttributes(attribute.Int("agentengine.chunks", s.count))
			s.span.End()
		}
	})
	return nil
}

// Chunks returns the number of chunks delivered so far.
func (s *Stream) Chunks() int { return s.count }

func (s *Stream) open() error {
	c := s.client
	ctx, span := c.tracer.Start(s.ctx, "remote.StreamQuery", trace.WithAttributes(
		attribute.String("agentengine.resource_name", s.handle.ResourceName),
		attribute.String("agentengine.method", s.query.Method),
		attribute.String("agentengine.session_id", s.query.SessionID),
	))
	s.span = span
	s.start = time.Now()

	c.logger.Debug("remote.stream_query.start", "resource_name", s.handle.ResourceName, "user_id", s.query.UserID, "session_id", s.query.SessionID)

	req, err := c.newRequest(ctx, http.MethodPost, c.url(s.handle.ResourceName, ":streamQuery?alt=sse"), s.body)
	if err != nil {
		return s.invocationError(0, err.Error(), err)
	}
	req.Header.Set("Accept", "text/event-stream, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return s.invocationError(0, err.Error(), err)
	}
	s.resp = resp
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if !isSuccess(resp.StatusCode) {
		payload, _ := io.ReadAll(resp.Body)
		_, message := decodeError(resp.StatusCode, payload)
		return s.invocationError(resp.StatusCode, message, nil)
	}

	s.dec = newChunkDecoder(resp.Body)
	return nil
}

func (s *Stream) invocationError(status int, message string, cause error) error {
	if cause == nil && s.ctx.Err() != nil {
		cause = s.ctx.Err()
	}
	return &core.InvocationError{
		ResourceName: s.handle.ResourceName,
		StatusCode:   status,
		Message:      message,
		Err:          cause,
	}
}

func (s *Stream) fail(err error) {
	s.err = err
	if s.span != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.client.logger.Error("remote.stream_query.failed", "resource_name", s.handle.ResourceName, "chunks", s.count, "error", err.Error())
	_ = s.Close()
}

func (s *Stream) finish() {
	s.client.logger.Info("remote.stream_query.completed", "resource_name", s.handle.ResourceName, "chunks", s.count, "duration", time.Since(s.start))
	_ = s.Close()
}

// decodeChunk classifies a raw chunk. An {"error": {...}} object is a
// remote failure; any other JSON value is delivered as is.
func decodeChunk(raw []byte) (Chunk, error) {
	if !json.Valid(raw) {
		return Chunk{}, &core.InvocationError{Message: "malformed chunk: " + truncate(string(raw), 120)}
	}

	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Error) > 0 && string(env.Error) != "null" {
		return Chunk{}, chunkError(env.Error)
	}

	chunk := Chunk{Raw: append(json.RawMessage(nil), raw...)}
	var ev core.Event
	if err := json.Unmarshal(raw, &ev); err == nil && (ev.Content != nil || ev.Author != "" || ev.ErrorCode != "") {
		chunk.Event = &ev
	}
	return chunk, nil
}

// chunkError converts the error member of a chunk into an InvocationError.
// The message falls back to the status, then to the raw object.
func chunkError(raw json.RawMessage) *core.InvocationError {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &core.InvocationError{Message: text}
	}

	var e struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	_ = json.Unmarshal(raw, &e)

	msg := e.Message
	if msg == "" {
		msg = e.Status
	}
	if msg == "" {
		msg = "remote error: " + truncate(string(raw), 120)
	}
	return &core.InvocationError{StatusCode: e.Code, Message: msg}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// chunkDecoder reads either server-sent events ("data:" framed) or a plain
// sequence of JSON values (newline delimited or concatenated). The framing
// is detected from the first non-blank byte.
type chunkDecoder struct {
	r    *bufio.Reader
	sse  bool
	json *json.Decoder
	init bool
}

func newChunkDecoder(r io.Reader) *chunkDecoder {
	return &chunkDecoder{r: bufio.NewReader(r)}
}

func (d *chunkDecoder) next() ([]byte, error) {
	if !d.init {
		d.init = true
		if err := d.detect(); err != nil {
			return nil, err
		}
	}
	if d.sse {
		return d.nextEvent()
	}
	var raw json.RawMessage
	if err := d.json.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (d *chunkDecoder) detect() error {
	for {
		b, err := d.r.Peek(1)
		if err != nil {
			return err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = d.r.ReadByte()
			continue
		case '{', '[', '"':
			d.json = json.NewDecoder(d.r)
			return nil
		default:
			d.sse = true
			return nil
		}
	}
}

// nextEvent returns the data of the next server-sent event. Multi-line data
// fields are joined with newlines; comments and other fields are ignored.
func (d *chunkDecoder) nextEvent() ([]byte, error) {
	var buf bytes.Buffer
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if buf.Len() > 0 {
				return buf.Bytes(), nil
			}
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if payload == "[DONE]" {
				return nil, io.EOF
			}
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(payload)
		}

		if eof {
			if buf.Len() > 0 {
				return buf.Bytes(), nil
			}
			return nil, io.EOF
		}
	}
}
