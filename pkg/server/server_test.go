package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/relay/pkg/agent"
	"github.com/jllopis/relay/pkg/coordinator"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/llm"
	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/resilience"
	"github.com/jllopis/relay/pkg/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	catalog, err := handoff.NewCatalog("")
	require.NoError(t, err)

	hub := NewHub(nil)
	client := llm.NewClient(&llm.FailingMockProvider{})
	m := coordinator.NewManager(catalog, func(d session.Domain) (*agent.Registry, error) {
		return agent.DefaultRegistry(d, client)
	}, session.NewMemoryStore(),
		coordinator.WithSink(hub),
		coordinator.WithRetry(resilience.DefaultRetryConfig().
			WithInitialDelay(time.Millisecond).
			WithMaxDelay(time.Millisecond)),
	)

	ts := httptest.NewServer(New(m, catalog, hub, nil))
	t.Cleanup(ts.Close)
	return ts, hub
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func travel(seed int64) session.Request {
	return session.Request{
		Domain: session.DomainTravel,
		Seed:   seed,
		Travel: &session.TravelRequest{
			Mood:      session.MoodRelaxation,
			Budget:    session.BudgetModerate,
			Travelers: 2,
		},
	}
}

func startSession(t *testing.T, ts *httptest.Server) session.View {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/sessions", travel(7))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var view session.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view
}

func TestSessionLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	view := startSession(t, ts)
	assert.Equal(t, session.StatusComplete, view.Status)
	require.NotEmpty(t, view.ID)

	resp, err := http.Get(ts.URL + "/api/sessions/" + view.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	planResp, err := http.Get(ts.URL + "/api/sessions/" + view.ID + "/plan")
	require.NoError(t, err)
	defer planResp.Body.Close()
	require.Equal(t, http.StatusOK, planResp.StatusCode)
	var plan session.CompositePlan
	require.NoError(t, json.NewDecoder(planResp.Body).Decode(&plan))
	assert.Equal(t, []string{"destination", "booking", "explore"}, plan.StageNames())
	assert.True(t, plan.MockSourced())

	statsResp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer statsResp.Body.Close()
	var stats coordinator.Stats
	require.NoError(t, json.NewDecoder(statsResp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Completed)
}

func TestStartRejectsInvalidRequest(t *testing.T) {
	ts, _ := newTestServer(t)

	req := travel(1)
	req.Travel.Mood = "grumpy"
	resp := postJSON(t, ts.URL+"/api/sessions", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "VALIDATION_ERROR", body["error"]["code"])
}

func TestMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/sessions", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sessions/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestModifyAndHandoff(t *testing.T) {
	ts, _ := newTestServer(t)
	view := startSession(t, ts)

	changed := travel(7)
	changed.Travel.Budget = session.BudgetLuxury
	resp := postJSON(t, ts.URL+"/api/sessions/"+view.ID+"/modify", modifyRequest{Request: &changed})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var modified session.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&modified))
	assert.Equal(t, 1, modified.Modifications)
	assert.Equal(t, session.BudgetLuxury, modified.Request.Travel.Budget)

	resp = postJSON(t, ts.URL+"/api/sessions/"+view.ID+"/modify", modifyRequest{From: "explore"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/sessions/"+view.ID+"/modify", modifyRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConsult(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/consult", consultRequest{Query: "which skills should I learn for data work?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res session.AgentResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "skill", res.Stage)
	assert.True(t, res.Success)
}

func TestPipelineExport(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/pipelines/game?format=mermaid")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "graph TD")

	missing, err := http.Get(ts.URL + "/api/pipelines/cooking")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketStreamsSnapshots(t *testing.T) {
	ts, hub := newTestServer(t)
	view := startSession(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + view.ID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first present.Event
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, present.EventSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, session.StatusComplete, first.Snapshot.Status)

	var initialPlan present.Event
	require.NoError(t, wsjson.Read(ctx, conn, &initialPlan))
	assert.Equal(t, present.EventPlan, initialPlan.Type)
	assert.Equal(t, 1, hub.Subscribers(view.ID))

	resp := postJSON(t, ts.URL+"/api/sessions/"+view.ID+"/modify", modifyRequest{From: "booking"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for {
		var ev present.Event
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		if ev.Type == present.EventPlan {
			require.NotNil(t, ev.Plan)
			assert.Equal(t, view.ID, ev.Plan.SessionID)
			return
		}
	}
}
