package remote

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hupe1980/agentengine/core"
)

var resourcePattern = regexp.MustCompile(`^projects/[^/]+/locations/[^/]+/reasoningEngines/[^/]+$`)

// Handle addresses a registered agent graph. It is the sole durable
// identifier for later invocation and is immutable.
type Handle struct {
	ResourceName string    `json:"resource_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// ParseHandle returns a handle for an existing resource name of the form
// projects/{project}/locations/{location}/reasoningEngines/{id}.
func ParseHandle(resourceName string) (Handle, error) {
	name := strings.Trim(strings.TrimSpace(resourceName), "/")
	if !resourcePattern.MatchString(name) {
		return Handle{}, core.NewValidationError("resource_name", resourceName,
			"resource name must match projects/{project}/locations/{location}/reasoningEngines/{id}")
	}
	return Handle{ResourceName: name}, nil
}

// ID returns the engine id, the last segment of the resource name.
func (h Handle) ID() string {
	if i := strings.LastIndex(h.ResourceName, "/"); i >= 0 {
		return h.ResourceName[i+1:]
	}
	return h.ResourceName
}

// String returns the resource name.
func (h Handle) String() string { return h.ResourceName }

func (h Handle) validate() error {
	if h.ResourceName == "" {
		return core.NewValidationError("resource_name", h.ResourceName, "handle has no resource name")
	}
	return nil
}

// resourceFromOperation strips the "/operations/{id}" suffix of a long
// running operation name.
func resourceFromOperation(op string) (string, error) {
	i := strings.Index(op, "/operations/")
	if i <= 0 {
		return "", fmt.Errorf("unexpected operation name %q", op)
	}
	return op[:i], nil
}
