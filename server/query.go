package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
	"github.com/hupe1980/agentengine/session"
)

type queryRequest struct {
	ClassMethod string         `json:"classMethod"`
	Input       map[string]any `json:"input"`
}

func bindQuery(c *gin.Context, e *Engine, mode descriptor.Mode) (queryRequest, descriptor.MethodSpec, bool) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
		return req, descriptor.MethodSpec{}, false
	}
	if req.ClassMethod == "" {
		req.ClassMethod = descriptor.StreamQueryMethod
	}

	m, ok := e.Descriptor.Method(req.ClassMethod)
	if !ok {
		writeError(c, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("method %s is not exposed by %s", req.ClassMethod, e.ResourceName))
		return req, m, false
	}
	if m.Mode != mode {
		writeError(c, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("method %s is not a %s method", req.ClassMethod, mode))
		return req, m, false
	}
	for name, p := range m.Parameters {
		if p.Required && stringInput(req.Input, name) == "" {
			writeError(c, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("method %s: missing required parameter %s", req.ClassMethod, name))
			return req, m, false
		}
	}
	return req, m, true
}

func stringInput(input map[string]any, name string) string {
	v, _ := input[name].(string)
	return v
}

// handleStreamQuery runs the root agent and writes every event as one
// chunk, framed as server-sent events when alt=sse and as newline delimited
// JSON otherwise. A failure after the stream started is written as an
// {"error": {...}} chunk.
func (s *Server) handleStreamQuery(c *gin.Context, e *Engine) {
	req, _, ok := bindQuery(c, e, descriptor.ModeStream)
	if !ok {
		return
	}

	userID := stringInput(req.Input, "user_id")
	sessionID := stringInput(req.Input, "session_id")
	message := stringInput(req.Input, "message")
	sse := c.Query("alt") == "sse"

	if sse {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
	} else {
		c.Header("Content-Type", "application/json")
	}
	c.Status(http.StatusOK)

	write := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if sse {
			_, err = fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		} else {
			_, err = fmt.Fprintf(c.Writer, "%s\n", data)
		}
		if err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	chunks := 0
	for ev, err := range e.runner.Run(c.Request.Context(), userID, sessionID, message) {
		if err != nil {
			code, status := httpStatus(err)
			s.opts.Logger.Error("server.stream_query.failed", "resource_name", e.ResourceName, "chunks", chunks, "error", err.Error())
			write(envelope(code, status, err.Error()))
			return
		}
		if !write(ev) {
			return
		}
		chunks++
	}

	s.opts.Logger.Info("server.stream_query.completed", "resource_name", e.ResourceName, "chunks", chunks)
}

// handleQuery serves the unary session management methods.
func (s *Server) handleQuery(c *gin.Context, e *Engine) {
	req, _, ok := bindQuery(c, e, descriptor.ModeUnary)
	if !ok {
		return
	}

	out, err := s.callUnary(e, req)
	if err != nil {
		code, status := httpStatus(err)
		writeError(c, code, status, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"output": out})
}

func (s *Server) callUnary(e *Engine, req queryRequest) (any, error) {
	store := e.runner.SessionStore()
	key := core.SessionKey{
		UserID:    stringInput(req.Input, "user_id"),
		SessionID: stringInput(req.Input, "session_id"),
	}

	switch req.ClassMethod {
	case "create_session":
		if key.SessionID == "" {
			key.SessionID = s.opts.NewID()
		}
		return store.Create(key)
	case "get_session":
		return store.Get(key)
	case "list_sessions":
		sessions, err := store.List(key.UserID)
		if err != nil {
			return nil, err
		}
		return gin.H{"sessions": sessions}, nil
	case "delete_session":
		return nil, store.Delete(key)
	default:
		return nil, fmt.Errorf("method %s has no handler: %w", req.ClassMethod, errUnimplemented)
	}
}

var errUnimplemented = errors.New("unimplemented")

// httpStatus maps an execution error to the status code and status string
// of the error envelope.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, errUnimplemented):
		return http.StatusNotImplemented, "UNIMPLEMENTED"
	case core.IsValidation(err):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func envelope(code int, status, message string) errorBody {
	var b errorBody
	b.Error.Code = code
	b.Error.Message = message
	b.Error.Status = status
	return b
}

func writeError(c *gin.Context, code int, status, message string) {
	c.AbortWithStatusJSON(code, envelope(code, status, message))
}
