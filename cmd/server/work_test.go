package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferenceWorkEchoesInput(t *testing.T) {
	result, err := inferenceWork(context.Background(), map[string]any{"input": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Processed input: hello", result["output"])
}

func TestInferenceWorkHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := inferenceWork(ctx, map[string]any{"input": "hello"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), processingDelay,
		"cancelled work must return before the processing delay elapses")
}
