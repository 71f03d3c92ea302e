package main

import (
	"context"
	"fmt"
	"time"
)

// processingDelay simulates the time an inference call takes. The real
// model integration plugs in here by replacing inferenceWork.
const processingDelay = 2 * time.Second

// inferenceWork is the work function supplied to the task engine. It echoes
// the submitted input after a simulated processing delay, honoring ctx so
// cancellation and timeouts interrupt the wait.
func inferenceWork(ctx context.Context, payload map[string]any) (map[string]any, error) {
	select {
	case <-time.After(processingDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	input, _ := payload["input"].(string)
	return map[string]any{
		"output": fmt.Sprintf("Processed input: %s", input),
	}, nil
}
