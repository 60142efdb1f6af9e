package handlers

import (
	"context"
	"errors"

	"github.com/deepnoodle-ai/dagflow"
)

// FailHandler fails with the node config "message". Useful for exercising
// error paths in workflow definitions.
type FailHandler struct{}

func NewFailHandler() *FailHandler {
	return &FailHandler{}
}

func (h *FailHandler) Name() string {
	return "fail"
}

func (h *FailHandler) Start(ctx context.Context, input *dagflow.HandlerInput) (*dagflow.HandlerResult, error) {
	message, _ := input.Config["message"].(string)
	if message == "" {
		message = "intentional failure"
	}
	return nil, errors.New(message)
}
