package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/dagflow"
)

// WaitHandler sleeps for the node config "duration" (a duration string or a
// number of seconds), respecting context cancellation.
type WaitHandler struct{}

func NewWaitHandler() *WaitHandler {
	return &WaitHandler{}
}

func (h *WaitHandler) Name() string {
	return "wait"
}

func (h *WaitHandler) Start(ctx context.Context, input *dagflow.HandlerInput) (*dagflow.HandlerResult, error) {
	duration, err := waitDuration(input.Config["duration"])
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(duration):
	}
	return &dagflow.HandlerResult{Output: duration.String()}, nil
}

func waitDuration(v any) (time.Duration, error) {
	switch v := v.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid wait duration %q: %w", v, err)
		}
		return d, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("wait duration required")
	}
}
