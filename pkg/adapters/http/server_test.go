package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/internal/runtime"
	"github.com/aretw0/convograph/internal/testutils"
	"github.com/aretw0/convograph/pkg/adapters/memory"
	httpadapter "github.com/aretw0/convograph/pkg/adapters/http"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/session"
)

func newTestServer(t *testing.T, oracle *testutils.FakeOracle) (*httptest.Server, *httpadapter.StreamManager) {
	t.Helper()
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	streams := httpadapter.NewStreamManager(nil)
	mgr := session.NewManager(runtime.NewEngine(g, oracle), memory.NewStore(), session.WithObserver(streams.Publish))
	t.Cleanup(mgr.Close)

	srv := httptest.NewServer(httpadapter.NewHandler(mgr,
		httpadapter.WithStreams(streams),
		httpadapter.WithVersion("1.2.3\n"),
		httpadapter.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})),
	))
	t.Cleanup(srv.Close)
	return srv, streams
}

func do(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func createSession(t *testing.T, base, id string) {
	t.Helper()
	resp, _ := do(t, http.MethodPost, base+"/sessions", map[string]string{"session_id": id})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestServer_HealthInfoGraph(t *testing.T) {
	srv, _ := newTestServer(t, testutils.NewFakeOracle())

	resp, body := do(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ready", body["oracle"])

	_, body = do(t, http.MethodGet, srv.URL+"/info", nil)
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "difficulty", body["scoring_policy"])

	_, body = do(t, http.MethodGet, srv.URL+"/graph", nil)
	assert.Equal(t, "B", body["terminal"])
	assert.Equal(t, 26.0, body["max_score"])
	assert.Len(t, body["nodes"], 2)

	resp, _ = do(t, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_SessionLifecycle(t *testing.T) {
	oracle := testutils.NewFakeOracle().Script("hello there", "A", 0.9)
	srv, _ := newTestServer(t, oracle)
	createSession(t, srv.URL, "s1")

	resp, body := do(t, http.MethodPost, srv.URL+"/sessions/s1/utterances", map[string]string{"text": "hello there"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outcome := body["outcome"].(map[string]any)
	assert.Equal(t, "visited", outcome["kind"])
	assert.Equal(t, "A", outcome["node_id"])
	state := body["state"].(map[string]any)
	assert.Equal(t, []any{"A"}, state["visited"])
	progress := body["progress"].(map[string]any)
	assert.Equal(t, 1.0, progress["visited"])

	resp, body = do(t, http.MethodGet, srv.URL+"/sessions/s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	projections := body["projections"].([]any)
	require.Len(t, projections, 2)
	assert.Equal(t, true, projections[1].(map[string]any)["available"])

	_, body = do(t, http.MethodGet, srv.URL+"/sessions", nil)
	assert.Equal(t, []any{"s1"}, body["sessions"])

	resp, body = do(t, http.MethodPost, srv.URL+"/sessions/s1/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["state"].(map[string]any)["visited"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/sessions/s1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/sessions/s1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CreateWithoutBodyGeneratesID(t *testing.T) {
	srv, _ := newTestServer(t, testutils.NewFakeOracle())

	resp, body := do(t, http.MethodPost, srv.URL+"/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["state"].(map[string]any)["session_id"])
}

func TestServer_SubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*testutils.FakeOracle)
		session    string
		body       any
		wantStatus int
		wantKind   string
	}{
		{"Invalid JSON", nil, "s1", "not an object", http.StatusBadRequest, ""},
		{"Blank Text", nil, "s1", map[string]string{"text": "   "}, http.StatusBadRequest, ""},
		{"Oversized Text", nil, "s1", map[string]string{"text": strings.Repeat("a", 5000)}, http.StatusBadRequest, ""},
		{"Unknown Session", nil, "ghost", map[string]string{"text": "hi"}, http.StatusNotFound, ""},
		{"Oracle Loading", func(o *testutils.FakeOracle) { o.SetReady(false) }, "s1", map[string]string{"text": "hi"}, http.StatusServiceUnavailable, "loading"},
		{"Oracle Failure", func(o *testutils.FakeOracle) { o.Err = errors.New("boom") }, "s1", map[string]string{"text": "hi"}, http.StatusBadGateway, "failed"},
		{"No Match", nil, "s1", map[string]string{"text": "xyz"}, http.StatusOK, "no_confident_match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := testutils.NewFakeOracle()
			if tt.setup != nil {
				tt.setup(oracle)
			}
			srv, _ := newTestServer(t, oracle)
			createSession(t, srv.URL, "s1")

			resp, body := do(t, http.MethodPost, srv.URL+"/sessions/"+tt.session+"/utterances", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, body["outcome"].(map[string]any)["kind"])
			}
			if tt.wantStatus == http.StatusServiceUnavailable {
				assert.Equal(t, "loading", body["status"])
			}
		})
	}
}

func TestServer_BusyWhileAwaitingOracle(t *testing.T) {
	oracle := testutils.NewFakeOracle().Script("hello there", "A", 0.9)
	gate := make(chan struct{})
	oracle.Gate = gate
	oracle.Entered = make(chan struct{}, 1)
	srv, _ := newTestServer(t, oracle)
	createSession(t, srv.URL, "s1")

	done := make(chan int, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/sessions/s1/utterances", "application/json", strings.NewReader(`{"text":"hello there"}`))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-oracle.Entered

	resp, body := do(t, http.MethodPost, srv.URL+"/sessions/s1/utterances", map[string]string{"text": "hello there"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "busy", body["outcome"].(map[string]any)["kind"])

	close(gate)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestServer_SessionGraph(t *testing.T) {
	oracle := testutils.NewFakeOracle().Script("hello there", "A", 0.9)
	srv, _ := newTestServer(t, oracle)
	createSession(t, srv.URL, "s1")
	do(t, http.MethodPost, srv.URL+"/sessions/s1/utterances", map[string]string{"text": "hello there"})

	resp, err := http.Get(srv.URL + "/sessions/s1/graph.mmd")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "graph LR")
	assert.Contains(t, buf.String(), "class A visited;")
	assert.Contains(t, buf.String(), "class B available;")
}

func TestServer_SubscribeEventsStreamsDiffs(t *testing.T) {
	oracle := testutils.NewFakeOracle().Script("hello there", "A", 0.9)
	srv, streams := newTestServer(t, oracle)
	createSession(t, srv.URL, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/s1/events?watch=visited", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	require.Eventually(t, func() bool { return streams.Subscribers("s1") == 1 }, 2*time.Second, 10*time.Millisecond)

	do(t, http.MethodPost, srv.URL+"/sessions/s1/utterances", map[string]string{"text": "hello there"})

	var data []string
	timeout := time.After(2 * time.Second)
	for len(data) == 0 {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if strings.HasPrefix(line, "data: {") {
				data = append(data, strings.TrimPrefix(line, "data: "))
			}
		case <-timeout:
			t.Fatal("no diff received")
		}
	}

	// The awaiting-oracle diff only touches status and is filtered out.
	var diff domain.StateDiff
	require.NoError(t, json.Unmarshal([]byte(data[0]), &diff))
	require.NotNil(t, diff.VisitedDelta)
	assert.Equal(t, []string{"A"}, diff.VisitedDelta.Appended)
}

func TestServer_SubscribeUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, testutils.NewFakeOracle())
	resp, _ := do(t, http.MethodGet, srv.URL+"/sessions/ghost/events", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamManager_DropsForSlowClients(t *testing.T) {
	sm := httpadapter.NewStreamManager(nil)
	ch, cancel := sm.Subscribe("s")
	defer cancel()

	for i := 0; i < 100; i++ {
		sm.Publish(&domain.StateDiff{SessionID: "s"})
	}
	assert.Equal(t, 16, len(ch))

	cancel()
	cancel() // idempotent
	assert.Zero(t, sm.Subscribers("s"))
}

func TestServer_MaxInputSize(t *testing.T) {
	oracle := testutils.NewFakeOracle().Script("hello", "A", 0.9)
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	mgr := session.NewManager(runtime.NewEngine(g, oracle), memory.NewStore())
	t.Cleanup(mgr.Close)

	srv := httptest.NewServer(httpadapter.NewHandler(mgr, httpadapter.WithMaxInputSize(8)))
	t.Cleanup(srv.Close)
	createSession(t, srv.URL, "s1")

	resp, _ := do(t, http.MethodPost, srv.URL+"/sessions/s1/utterances", map[string]string{"text": "hello there friends"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/sessions/s1/utterances", map[string]string{"text": " hello\n"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "A", body["outcome"].(map[string]any)["node_id"])
}
