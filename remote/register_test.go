package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
)

func TestRegister_Success(t *testing.T) {
	var got map[string]any
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/p1/locations/us-central1/reasoningEngines", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"name": "`+testResource+`/operations/7",
			"metadata": {"genericMetadata": {"createTime": "2025-06-01T10:00:00Z"}}
		}`)
	})

	h, err := newTestClient(t, srv).Register(context.Background(), testDescriptor(t))
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, testResource, h.ResourceName)
	assert.Equal(t, "42", h.ID())
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), h.CreatedAt)

	assert.Equal(t, "coach", got["displayName"])
	spec := got["spec"].(map[string]any)
	assert.Equal(t, "google-adk", spec["agentFramework"])
	source := spec["sourceCodeSpec"].(map[string]any)
	assert.NotEmpty(t, source["inlineSource"].(map[string]any)["sourceArchive"])
	assert.Equal(t, "requirements.txt", source["pythonSpec"].(map[string]any)["requirementsFile"])
}

func TestRegister_PermissionDeniedVerbatim(t *testing.T) {
	const message = "Permission 'aiplatform.reasoningEngines.create' denied on resource '//aiplatform.googleapis.com/projects/p1/locations/us-central1' (or it may not exist)."

	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 403, "message": message, "status": "PERMISSION_DENIED"},
		})
	})

	_, err := newTestClient(t, srv).Register(context.Background(), testDescriptor(t))

	var re *core.RegistrationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.StatusCode)
	assert.Equal(t, "PERMISSION_DENIED", re.Status)
	assert.Equal(t, message, re.Message)
	assert.Contains(t, string(re.Body), "PERMISSION_DENIED")
	assert.Equal(t, int32(1), calls.Load(), "no retry")
}

func TestRegister_PlainTextError(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream connect error", http.StatusBadGateway)
	})

	_, err := newTestClient(t, srv).Register(context.Background(), testDescriptor(t))

	var re *core.RegistrationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadGateway, re.StatusCode)
	assert.Equal(t, "upstream connect error", re.Message)
}

func TestRegister_OperationError(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"name":"`+testResource+`/operations/1","done":true,"error":{"code":3,"message":"invalid entrypoint"}}`)
	})

	_, err := newTestClient(t, srv).Register(context.Background(), testDescriptor(t))

	var re *core.RegistrationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "invalid entrypoint", re.Message)
}

func TestRegister_ValidationBeforeRequest(t *testing.T) {
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	c := newTestClient(t, srv)

	d := testDescriptor(t)
	m := descriptor.StreamQuery()
	delete(m.Parameters, "session_id")
	d.Methods = []descriptor.MethodSpec{m}

	_, err := c.Register(context.Background(), d)
	assert.True(t, core.IsValidation(err))

	_, err = c.Register(context.Background(), nil)
	assert.True(t, core.IsValidation(err))

	assert.Equal(t, int32(0), calls.Load())
}

func TestRegister_ArchiverFailure(t *testing.T) {
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c, err := New("p1", "us-central1", func(o *Options) {
		o.Endpoint = srv.URL
		o.Archiver = descriptor.ArchiverFunc(func(*descriptor.Descriptor) ([]byte, error) {
			return nil, io.ErrUnexpectedEOF
		})
	})
	require.NoError(t, err)

	_, err = c.Register(context.Background(), testDescriptor(t))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, core.ErrCodeValidation, core.CodeOf(err))

	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "source_location", ve.Field)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRegister_TransportError(t *testing.T) {
	c, err := New("p1", "us-central1", func(o *Options) { o.Endpoint = "http://127.0.0.1:1" })
	require.NoError(t, err)

	_, err = c.Register(context.Background(), testDescriptor(t))

	var re *core.RegistrationError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, re.StatusCode)
	assert.NotNil(t, re.Unwrap())
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", "us-central1")
	assert.True(t, core.IsValidation(err))

	_, err = New("p1", " ")
	assert.True(t, core.IsValidation(err))

	c, err := New("p1", "europe-west4")
	require.NoError(t, err)
	assert.Equal(t, "https://europe-west4-aiplatform.googleapis.com/v1/projects/p1/locations/europe-west4/reasoningEngines", c.url(c.Parent(), "/reasoningEngines"))
}

func TestRegister_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	var header string
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("traceparent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name": "`+testResource+`/operations/1"}`)
	})

	_, err := newTestClient(t, srv).Register(ctx, testDescriptor(t))
	require.NoError(t, err)
	assert.Contains(t, header, "4bf92f3577b34da6a3ce929d0e0e4736")
}
