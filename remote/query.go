package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/logging"
)

// Query calls a unary method of the deployed graph and returns its raw
// output. Failures are returned as *core.InvocationError.
func (c *Client) Query(ctx context.Context, h Handle, method string, input map[string]any) (json.RawMessage, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	if method == "" {
		return nil, core.NewValidationError("method", method, "method must not be empty")
	}
	if input == nil {
		input = map[string]any{}
	}

	body, err := json.Marshal(queryBody{ClassMethod: method, Input: input})
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "remote.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("agentengine.resource_name", h.ResourceName),
		attribute.String("agentengine.method", method),
	)

	start := time.Now()
	out, status, err := c.query(ctx, h, body)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.LogRemoteCall(c.logger, "query:"+method, h.ResourceName, status, time.Since(start), err)
		return nil, err
	}

	logging.LogRemoteCall(c.logger, "query:"+method, h.ResourceName, status, time.Since(start), nil)
	return out, nil
}

func (c *Client) query(ctx context.Context, h Handle, body []byte) (json.RawMessage, int, error) {
	fail := func(status int, msg string, cause error) (json.RawMessage, int, error) {
		return nil, status, &core.InvocationError{ResourceName: h.ResourceName, StatusCode: status, Message: msg, Err: cause}
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.url(h.ResourceName, ":query"), body)
	if err != nil {
		return fail(0, err.Error(), err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, err.Error(), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(resp.StatusCode, err.Error(), err)
	}

	if !isSuccess(resp.StatusCode) {
		_, message := decodeError(resp.StatusCode, payload)
		return fail(resp.StatusCode, message, nil)
	}

	var out struct {
		Output json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return fail(resp.StatusCode, "decode output: "+err.Error(), err)
	}
	if len(out.Output) == 0 {
		out.Output = json.RawMessage("null")
	}
	return out.Output, resp.StatusCode, nil
}
