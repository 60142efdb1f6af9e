package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/dagflow"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	build := dagflow.NewHandlerFunc("build", func(ctx context.Context, input *dagflow.HandlerInput) (*dagflow.HandlerResult, error) {
		return &dagflow.HandlerResult{Output: "artifact-1"}, nil
	})
	publish := dagflow.NewHandlerFunc("publish", func(ctx context.Context, input *dagflow.HandlerInput) (*dagflow.HandlerResult, error) {
		return &dagflow.HandlerResult{Output: "published"}, nil
	})
	launch := dagflow.NewHandlerFunc("launch", func(ctx context.Context, input *dagflow.HandlerInput) (*dagflow.HandlerResult, error) {
		return &dagflow.HandlerResult{Pending: true, Handle: "job-" + input.Node.ID}, nil
	})

	release, err := dagflow.New(dagflow.Options{
		Name: "release",
		Nodes: []*dagflow.Node{
			{ID: "build", Kind: dagflow.NodeKindCompute, Handler: "build"},
			{ID: "signoff", Kind: dagflow.NodeKindApproval},
			{ID: "publish", Kind: dagflow.NodeKindCompute, Handler: "publish"},
		},
		Edges: []*dagflow.Edge{
			{From: "build", To: "signoff"},
			{From: "signoff", To: "publish"},
		},
	})
	require.NoError(t, err)

	deploy, err := dagflow.New(dagflow.Options{
		Name:  "deploy",
		Nodes: []*dagflow.Node{{ID: "deploy", Kind: dagflow.NodeKindTask, Handler: "launch"}},
	})
	require.NoError(t, err)

	engine, err := dagflow.NewEngine(dagflow.EngineOptions{
		Graphs:   []*dagflow.Graph{release, deploy},
		Handlers: []dagflow.Handler{build, publish, launch},
		Logger:   dagflow.NewJSONLogger(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(New(engine, dagflow.NewJSONLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func startRun(t *testing.T, ts *httptest.Server, graph string) *dagflow.Run {
	t.Helper()
	resp := postJSON(t, ts.URL+"/runs", map[string]any{"graph": graph})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[*dagflow.Run](t, resp)
}

func getSnapshot(t *testing.T, ts *httptest.Server, runID string) *dagflow.RunSnapshot {
	t.Helper()
	resp, err := http.Get(ts.URL + "/runs/" + runID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[*dagflow.RunSnapshot](t, resp)
}

func awaitStatus(t *testing.T, ts *httptest.Server, runID string, want dagflow.RunStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return getSnapshot(t, ts, runID).Run.Status == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	run := startRun(t, ts, "release")
	awaitStatus(t, ts, run.ID, dagflow.RunStatusPaused)

	snapshot := getSnapshot(t, ts, run.ID)
	require.Equal(t, "signoff", snapshot.Run.WaitingNodeID)
	require.Equal(t, dagflow.NodeStatusCompleted, snapshot.NodeStates["build"].Status)

	resp := postJSON(t, ts.URL+"/runs/"+run.ID+"/nodes/signoff/approve", map[string]any{"note": "ship it"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	awaitStatus(t, ts, run.ID, dagflow.RunStatusCompleted)
	snapshot = getSnapshot(t, ts, run.ID)
	require.Equal(t, "published", snapshot.Outputs["publish"])

	listResp, err := http.Get(ts.URL + "/runs")
	require.NoError(t, err)
	defer listResp.Body.Close()
	runs := decodeBody[[]*dagflow.Run](t, listResp)
	require.Len(t, runs, 1)
	require.Equal(t, run.ID, runs[0].ID)
}

func TestTaskSignalsOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	run := startRun(t, ts, "deploy")

	var pending []*dagflow.NodeState
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/runs/" + run.ID + "/pending")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		pending = decodeBody[[]*dagflow.NodeState](t, resp)
		return len(pending) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "deploy", pending[0].NodeID)
	require.Equal(t, "job-deploy", pending[0].Handle)

	resp := postJSON(t, ts.URL+"/runs/"+run.ID+"/nodes/deploy/complete", map[string]any{
		"output": map[string]any{"version": "v2"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	awaitStatus(t, ts, run.ID, dagflow.RunStatusCompleted)
	snapshot := getSnapshot(t, ts, run.ID)
	require.Equal(t, map[string]any{"version": "v2"}, snapshot.Outputs["deploy"])
}

func TestFailNodeOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	run := startRun(t, ts, "deploy")
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/runs/" + run.ID + "/pending")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return len(decodeBody[[]*dagflow.NodeState](t, resp)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// An empty body is fine; the default reason applies.
	resp, err := http.Post(ts.URL+"/runs/"+run.ID+"/nodes/deploy/fail", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	awaitStatus(t, ts, run.ID, dagflow.RunStatusError)
	snapshot := getSnapshot(t, ts, run.ID)
	require.Contains(t, snapshot.Run.Error, "failed by external signal")
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	// Unknown run is 404.
	resp, err := http.Get(ts.URL + "/runs/run_ghost")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Unknown graph on start is 400.
	resp = postJSON(t, ts.URL+"/runs", map[string]any{"graph": "ghost"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	run := startRun(t, ts, "release")
	awaitStatus(t, ts, run.ID, dagflow.RunStatusPaused)

	// Unknown node is 404.
	resp = postJSON(t, ts.URL+"/runs/"+run.ID+"/nodes/ghost/approve", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Completing a node that awaits an approval, not a task signal, is a
	// conflict.
	resp = postJSON(t, ts.URL+"/runs/"+run.ID+"/nodes/signoff/complete", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	require.Contains(t, body["error"], "signal conflict")
}

func TestValidateEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/graphs/validate", map[string]any{
		"name":  "ok",
		"nodes": []map[string]any{{"id": "a", "kind": "compute"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]any{"valid": true}, decodeBody[map[string]any](t, resp))

	resp = postJSON(t, ts.URL+"/graphs/validate", map[string]any{
		"name": "cyclic",
		"nodes": []map[string]any{
			{"id": "a", "kind": "compute"},
			{"id": "b", "kind": "compute"},
		},
		"edges": []map[string]any{
			{"from": "a", "to": "b"},
			{"from": "b", "to": "a"},
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	require.Contains(t, body["error"], "cycle")
}

func TestEventsStreamReplaysTerminalRun(t *testing.T) {
	ts := newTestServer(t)

	run := startRun(t, ts, "deploy")
	resp := postJSON(t, ts.URL+"/runs/"+run.ID+"/nodes/deploy/complete", nil)
	require.Eventually(t, func() bool {
		return getSnapshot(t, ts, run.ID).Run.Status == dagflow.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The run is terminal, so the stream replays history and ends.
	eventsResp, err := http.Get(ts.URL + "/runs/" + run.ID + "/events")
	require.NoError(t, err)
	defer eventsResp.Body.Close()
	require.Equal(t, "text/event-stream", eventsResp.Header.Get("Content-Type"))

	var kinds []string
	scanner := bufio.NewScanner(eventsResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			kinds = append(kinds, strings.TrimPrefix(line, "event: "))
		}
	}
	require.NoError(t, scanner.Err())
	require.Contains(t, kinds, string(dagflow.EventNodeStart))
	require.Contains(t, kinds, string(dagflow.EventRunCompleted))
}

func TestEventsStreamLive(t *testing.T) {
	ts := newTestServer(t)

	run := startRun(t, ts, "release")
	awaitStatus(t, ts, run.ID, dagflow.RunStatusPaused)

	eventsResp, err := http.Get(ts.URL + "/runs/" + run.ID + "/events")
	require.NoError(t, err)
	defer eventsResp.Body.Close()

	done := make(chan []string, 1)
	go func() {
		var kinds []string
		scanner := bufio.NewScanner(eventsResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				kinds = append(kinds, strings.TrimPrefix(line, "event: "))
			}
		}
		done <- kinds
	}()

	resp := postJSON(t, ts.URL+"/runs/"+run.ID+"/nodes/signoff/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case kinds := <-done:
		// Replay covers the pause; live delivery covers the finish.
		require.Contains(t, kinds, string(dagflow.EventRunPaused))
		require.Contains(t, kinds, string(dagflow.EventRunCompleted))
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after run completion")
	}
}

func TestUnknownRunEventsIs404(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/runs/run_ghost/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
