package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
	"github.com/hupe1980/agentengine/logging"
)

// operation is the long running operation returned by reasoningEngines.create.
type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		GenericMetadata struct {
			CreateTime time.Time `json:"createTime"`
		} `json:"genericMetadata"`
	} `json:"metadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Register submits d to the registration service with a single blocking
// request. d is validated locally first; a *core.ValidationError means no
// request was sent. A rejection is returned as *core.RegistrationError
// carrying the remote status and message verbatim.
func (c *Client) Register(ctx context.Context, d *descriptor.Descriptor) (Handle, error) {
	if d == nil {
		return Handle{}, core.NewValidationError("descriptor", nil, "descriptor must not be nil")
	}
	if err := d.Validate(); err != nil {
		return Handle{}, err
	}

	archive, err := c.archiver.Archive(d)
	if err != nil {
		ve := core.NewValidationError("source_location", d.SourceLocation, "archive source: %v", err)
		ve.Err = err
		return Handle{}, ve
	}

	body, err := d.EncodeRequest(archive)
	if err != nil {
		ve := core.NewValidationError("descriptor", nil, "encode descriptor: %v", err)
		ve.Err = err
		return Handle{}, ve
	}

	ctx, span := c.tracer.Start(ctx, "remote.Register")
	defer span.End()
	span.SetAttributes(
		attribute.String("agentengine.display_name", d.DisplayName),
		attribute.String("agentengine.entrypoint", d.Entrypoint.String()),
		attribute.Int("agentengine.archive_bytes", len(archive)),
	)

	c.logger.Info("remote.register.start", "display_name", d.DisplayName, "entrypoint", d.Entrypoint.String(), "archive_bytes", len(archive))
	start := time.Now()

	h, status, err := c.register(ctx, body)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.LogRemoteCall(c.logger, "register", c.Parent(), status, time.Since(start), err)
		return Handle{}, err
	}

	span.SetAttributes(attribute.String("agentengine.resource_name", h.ResourceName))
	logging.LogRemoteCall(c.logger, "register", h.ResourceName, status, time.Since(start), nil)
	return h, nil
}

func (c *Client) register(ctx context.Context, body []byte) (Handle, int, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.url(c.Parent(), "/reasoningEngines"), body)
	if err != nil {
		return Handle{}, 0, &core.RegistrationError{Message: err.Error(), Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Handle{}, 0, &core.RegistrationError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Handle{}, resp.StatusCode, &core.RegistrationError{StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	if !isSuccess(resp.StatusCode) {
		status, message := decodeError(resp.StatusCode, payload)
		return Handle{}, resp.StatusCode, &core.RegistrationError{
			StatusCode: resp.StatusCode,
			Status:     status,
			Message:    message,
			Body:       payload,
		}
	}

	var op operation
	if err := json.Unmarshal(payload, &op); err != nil {
		return Handle{}, resp.StatusCode, &core.RegistrationError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decode operation: %v", err),
			Body:       payload,
			Err:        err,
		}
	}

	if op.Done && op.Error != nil {
		return Handle{}, resp.StatusCode, &core.RegistrationError{
			StatusCode: resp.StatusCode,
			Status:     fmt.Sprintf("%d", op.Error.Code),
			Message:    op.Error.Message,
			Body:       payload,
		}
	}

	resource, err := resourceFromOperation(op.Name)
	if err != nil {
		return Handle{}, resp.StatusCode, &core.RegistrationError{StatusCode: resp.StatusCode, Message: err.Error(), Body: payload, Err: err}
	}

	created := op.Metadata.GenericMetadata.CreateTime
	if created.IsZero() {
		created = time.Now().UTC()
	}

	return Handle{ResourceName: resource, CreatedAt: created}, resp.StatusCode, nil
}
