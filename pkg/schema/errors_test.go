package schema

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineError_Error(t *testing.T) {
	err := NewError(ErrCodeAction, "plugin call failed")
	assert.Equal(t, "[ACTION_ERROR] plugin call failed", err.Error())

	err = err.WithNode("send")
	assert.Equal(t, "[ACTION_ERROR] node send: plugin call failed", err.Error())
}

func TestEngineError_Unwrap(t *testing.T) {
	err := NewErrorf(ErrCodeStore, "query failed for %s", "wf-1").WithCause(io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var engineErr *EngineError
	require.True(t, errors.As(error(err), &engineErr))
	assert.Equal(t, ErrCodeStore, engineErr.Code)
}

func TestEngineError_Details(t *testing.T) {
	err := NewError(ErrCodeAction, "bad status").
		WithDetails(map[string]any{"status": 502, "body": "upstream down"})
	assert.Equal(t, 502, err.Details["status"])
}

func TestEngineError_RunTerminal(t *testing.T) {
	assert.True(t, NewError(ErrCodeAction, "x").RunTerminal())
	assert.True(t, NewError(ErrCodeTimeout, "x").RunTerminal())
	assert.True(t, NewError(ErrCodeTransform, "x").RunTerminal())
	assert.False(t, NewError(ErrCodeResolutionWarning, "x").RunTerminal())
	assert.False(t, NewError(ErrCodeSchedulerSkip, "x").RunTerminal())
}
