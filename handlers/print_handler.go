package handlers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/deepnoodle-ai/dagflow"
)

// PrintHandler writes the node config "message" to a writer, stdout by
// default. The message passes through config templating before it gets here.
type PrintHandler struct {
	w io.Writer
}

func NewPrintHandler(w io.Writer) *PrintHandler {
	if w == nil {
		w = os.Stdout
	}
	return &PrintHandler{w: w}
}

func (h *PrintHandler) Name() string {
	return "print"
}

func (h *PrintHandler) Start(ctx context.Context, input *dagflow.HandlerInput) (*dagflow.HandlerResult, error) {
	message, _ := input.Config["message"].(string)
	if _, err := fmt.Fprintln(h.w, message); err != nil {
		return nil, err
	}
	return &dagflow.HandlerResult{Output: message}, nil
}
