package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("name", "", "must not be empty")
	assert.Equal(t, `validation error for field "name": must not be empty`, err.Error())
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
	assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", err)))
}

func TestRegistrationError(t *testing.T) {
	err := &RegistrationError{StatusCode: 403, Status: "PERMISSION_DENIED", Message: "Permission 'aiplatform.reasoningEngines.create' denied"}
	assert.Contains(t, err.Error(), "403 PERMISSION_DENIED")
	assert.Contains(t, err.Error(), "Permission 'aiplatform.reasoningEngines.create' denied")
	assert.Equal(t, ErrCodeRegistration, CodeOf(err))

	noStatus := &RegistrationError{StatusCode: 500, Message: "x"}
	assert.Contains(t, noStatus.Error(), "Internal Server Error")
}

func TestInvocationError_Unwrap(t *testing.T) {
	err := &InvocationError{ResourceName: "projects/p/locations/l/reasoningEngines/1", Err: context.Canceled}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "context canceled")
	assert.Equal(t, ErrCodeInvocation, CodeOf(err))
}

func TestDelegationError_Chain(t *testing.T) {
	cause := &DelegationError{Agent: "b", Target: "c", Err: errors.New("model unavailable")}
	err := &DelegationError{Agent: "a", Target: "b", Err: cause}

	var de *DelegationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "a", de.Agent)
	assert.Equal(t, "agent a: delegation to b failed: agent b: delegation to c failed: model unavailable", err.Error())
	assert.Equal(t, ErrCodeDelegation, CodeOf(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
