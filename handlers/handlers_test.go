package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/dagflow"
	"github.com/deepnoodle-ai/dagflow/script"
)

func TestScriptHandler(t *testing.T) {
	h := NewScriptHandler(nil)
	result, err := h.Start(context.Background(), &dagflow.HandlerInput{
		Node:   &dagflow.Node{ID: "calc"},
		Config: map[string]any{"code": "inputs.base * 2 + upstream.fetch.rows"},
		Inputs: map[string]any{"base": 10},
		Upstream: map[string]any{
			"fetch": map[string]any{"rows": 3},
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, 23, result.Output)
}

func TestScriptHandlerUsesContextCompiler(t *testing.T) {
	compiler := script.NewRisorScriptingEngine(map[string]any{
		"limit":    41,
		"inputs":   map[string]any{},
		"upstream": map[string]any{},
	})
	ctx := dagflow.WithCompiler(context.Background(), compiler)

	h := NewScriptHandler(nil)
	result, err := h.Start(ctx, &dagflow.HandlerInput{
		Node:   &dagflow.Node{ID: "calc"},
		Config: map[string]any{"code": "limit + 1"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 42, result.Output)
}

func TestScriptHandlerRequiresCode(t *testing.T) {
	h := NewScriptHandler(nil)
	_, err := h.Start(context.Background(), &dagflow.HandlerInput{
		Node:   &dagflow.Node{ID: "calc"},
		Config: map[string]any{},
	})
	require.ErrorContains(t, err, "no code")
}

func TestPrintHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrintHandler(&buf)
	result, err := h.Start(context.Background(), &dagflow.HandlerInput{
		Config: map[string]any{"message": "loaded 18 rows"},
	})
	require.NoError(t, err)
	require.Equal(t, "loaded 18 rows", result.Output)
	require.Equal(t, "loaded 18 rows\n", buf.String())
}

func TestWaitHandler(t *testing.T) {
	h := NewWaitHandler()
	result, err := h.Start(context.Background(), &dagflow.HandlerInput{
		Config: map[string]any{"duration": "1ms"},
	})
	require.NoError(t, err)
	require.Equal(t, "1ms", result.Output)

	_, err = h.Start(context.Background(), &dagflow.HandlerInput{
		Config: map[string]any{"duration": "soon"},
	})
	require.ErrorContains(t, err, "invalid wait duration")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = h.Start(ctx, &dagflow.HandlerInput{
		Config: map[string]any{"duration": "10s"},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailHandler(t *testing.T) {
	h := NewFailHandler()
	_, err := h.Start(context.Background(), &dagflow.HandlerInput{
		Config: map[string]any{"message": "simulated outage"},
	})
	require.EqualError(t, err, "simulated outage")

	_, err = h.Start(context.Background(), &dagflow.HandlerInput{Config: map[string]any{}})
	require.EqualError(t, err, "intentional failure")
}

func TestHTTPHandler(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	h := NewHTTPHandler()
	result, err := h.Start(context.Background(), &dagflow.HandlerInput{
		Config: map[string]any{
			"url":          ts.URL,
			"method":       "post",
			"json_payload": map[string]any{"rows": 18},
		},
	})
	require.NoError(t, err)

	output := result.Output.(map[string]any)
	require.Equal(t, http.StatusOK, output["status_code"])
	require.Equal(t, true, output["success"])
	require.Equal(t, map[string]any{"ok": true}, output["json_response"])
}

func TestHTTPHandlerRequiresURL(t *testing.T) {
	h := NewHTTPHandler()
	_, err := h.Start(context.Background(), &dagflow.HandlerInput{Config: map[string]any{}})
	require.ErrorContains(t, err, "URL cannot be empty")
}
