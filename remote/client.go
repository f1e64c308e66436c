// Package remote is the client of the remote agent execution service. It
// registers deployment descriptors (reasoningEngines.create) and queries the
// deployed graphs through the unary (:query) and streaming (:streamQuery)
// APIs.
//
// The client performs exactly one HTTP request per operation and never
// retries. Remote failures are returned verbatim as *core.RegistrationError
// or *core.InvocationError; local validation failures are returned as
// *core.ValidationError before any request is sent.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
	"github.com/hupe1980/agentengine/logging"
)

// APIVersion is the path prefix of the service API.
const APIVersion = "v1"

const tracerName = "github.com/hupe1980/agentengine/remote"

// Options configures a Client.
type Options struct {
	// Endpoint is the service base URL. Defaults to the regional endpoint
	// https://{location}-aiplatform.googleapis.com.
	Endpoint string
	// HTTPClient performs the requests. Authentication is the caller's
	// concern, e.g. an oauth2 client.
	HTTPClient *http.Client
	// Headers are added to every request.
	Headers  map[string]string
	Logger   logging.Logger
	Tracer   trace.Tracer
	Archiver descriptor.Archiver
}

// Client talks to the remote agent execution service of one project and
// location. It is safe for concurrent use.
type Client struct {
	project    string
	location   string
	endpoint   string
	httpClient *http.Client
	headers    map[string]string
	logger     logging.Logger
	tracer     trace.Tracer
	archiver   descriptor.Archiver
}

// New creates a client for the given project and location.
func New(project, location string, optFns ...func(o *Options)) (*Client, error) {
	if strings.TrimSpace(project) == "" {
		return nil, core.NewValidationError("project", project, "project must not be empty")
	}
	if strings.TrimSpace(location) == "" {
		return nil, core.NewValidationError("location", location, "location must not be empty")
	}

	opts := Options{
		Endpoint:   fmt.Sprintf("https://%s-aiplatform.googleapis.com", location),
		HTTPClient: http.DefaultClient,
		Logger:     logging.NoOpLogger{},
		Tracer:     otel.Tracer(tracerName),
		Archiver:   descriptor.TarGzArchiver{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	opts.Logger = logging.WithComponent(opts.Logger, "remote")
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.Archiver == nil {
		opts.Archiver = descriptor.TarGzArchiver{}
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		project:    project,
		location:   location,
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		httpClient: opts.HTTPClient,
		headers:    headers,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
		archiver:   opts.Archiver,
	}, nil
}

// Project returns the project the client is bound to.
func (c *Client) Project() string { return c.project }

// Location returns the location the client is bound to.
func (c *Client) Location() string { return c.location }

// Parent returns the collection resource name engines are registered under.
func (c *Client) Parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.project, c.location)
}

func (c *Client) url(resource string, suffix string) string {
	return c.endpoint + "/" + APIVersion + "/" + strings.TrimLeft(resource, "/") + suffix
}

func (c *Client) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

// apiError is the error envelope returned by the service.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// decodeError extracts status and message from an error response body. The
// message is returned verbatim; a body that is not an error envelope is
// returned as the message itself.
func decodeError(statusCode int, body []byte) (status string, message string) {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Status, e.Error.Message
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return "", msg
	}
	return "", http.StatusText(statusCode)
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }
