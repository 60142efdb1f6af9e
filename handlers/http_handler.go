package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepnoodle-ai/dagflow"
)

// HTTPHandler makes an HTTP request described by the node config: "url",
// "method" (default GET), "headers", "body" or "json_payload", and "timeout"
// in seconds (default 30). The response becomes the node output.
type HTTPHandler struct{}

func NewHTTPHandler() *HTTPHandler {
	return &HTTPHandler{}
}

func (h *HTTPHandler) Name() string {
	return "http"
}

func (h *HTTPHandler) Start(ctx context.Context, input *dagflow.HandlerInput) (*dagflow.HandlerResult, error) {
	url, _ := input.Config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}
	method, _ := input.Config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	timeout := 30 * time.Second
	if v, ok := input.Config["timeout"].(float64); ok && v > 0 {
		timeout = time.Duration(v * float64(time.Second))
	}

	var body io.Reader
	contentType := ""
	if payload, ok := input.Config["json_payload"]; ok && payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal json payload: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	} else if text, ok := input.Config["body"].(string); ok && text != "" {
		body = strings.NewReader(text)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := input.Config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if text, ok := value.(string); ok {
				req.Header.Set(key, text)
			}
		}
	}

	if logger, ok := dagflow.GetLoggerFromContext(ctx); ok {
		logger.Debug("http request", "node_id", input.Node.ID, "method", method, "url", url)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"status":      resp.Status,
		"body":        string(data),
		"success":     resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	var parsed map[string]any
	if json.Unmarshal(data, &parsed) == nil {
		output["json_response"] = parsed
	}
	return &dagflow.HandlerResult{Output: output}, nil
}
