package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/adapters/memory"
	"github.com/AshkanYarmoradi/go-dugout/game"
	"github.com/AshkanYarmoradi/go-dugout/scorebook"
	"github.com/AshkanYarmoradi/go-dugout/testing/testutil"
)

type testServer struct {
	srv *httptest.Server
	svc *scorebook.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := memory.NewAdapter()
	store := scorebook.NewStore(mem, dugout.New(mem))

	n := 0
	svc := scorebook.NewService(store, scorebook.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))

	idem := memory.NewIdempotencyStore()
	t.Cleanup(func() { _ = idem.Close() })
	bus := dugout.NewCommandBus(dugout.WithMiddleware(
		dugout.RecoveryMiddleware(),
		dugout.ValidationMiddleware(),
		dugout.IdempotencyMiddleware(dugout.DefaultIdempotencyConfig(idem)),
	))
	scorebook.RegisterHandlers(bus, svc)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "dugout_test_total", Help: "test"}))

	router := NewRouter(NewHandler(bus, svc, nil),
		WithAllowedOrigins("http://localhost:5173"),
		WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (ts *testServer) start(t *testing.T) {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/matches", scorebook.MatchSetup{
		MatchID:     "m1",
		AwayTeam:    "Owls",
		HomeTeam:    "Hawks",
		ManagedSide: game.Away,
		Roster:      testutil.WithBench(testutil.TenPlayerRoster("Owls"), "Reyes"),
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
}

func TestInitializeMatch(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t)

	resp, body := ts.do(t, http.MethodGet, "/api/matches/m1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "m1", body["matchId"])
	assert.Equal(t, "in_progress", body["status"])
	assert.Equal(t, true, body["placeholderOpponent"])

	resp, body = ts.do(t, http.MethodPost, "/api/matches", scorebook.MatchSetup{
		MatchID:     "m1",
		AwayTeam:    "Owls",
		HomeTeam:    "Hawks",
		ManagedSide: game.Away,
		Roster:      testutil.TenPlayerRoster("Owls"),
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "match already exists: m1", body["error"])
}

func TestInitializeMatch_Validation(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/matches", scorebook.MatchSetup{ManagedSide: game.Away}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields, ok := body["fields"].(map[string]interface{})
	require.True(t, ok, body)
	assert.Contains(t, fields, "awayTeam")

	resp, body = ts.do(t, http.MethodPost, "/api/matches", `{"nope":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", body["error"])
	assert.Equal(t, map[string]interface{}{"nope": []interface{}{"unknown field"}}, body["fields"])
}

func TestDecode_DoesNotEchoDecoderErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		want   string
		fields map[string]interface{}
	}{
		{"wrong type", `{"awayTeam":42}`, "invalid request body", map[string]interface{}{"awayTeam": []interface{}{"has the wrong type"}}},
		{"malformed", `{"awayTeam":`, "invalid request body: malformed JSON", nil},
		{"syntax", `{awayTeam}`, "invalid request body: malformed JSON", nil},
		{"empty", ``, "invalid request body", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, "/api/matches", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, body["error"])
			assert.NotContains(t, body["error"], "json:")
			assert.NotContains(t, body["error"], "Go struct")
			if tt.fields != nil {
				assert.Equal(t, tt.fields, body["fields"])
			} else {
				assert.NotContains(t, body, "fields")
			}
		})
	}
}

func TestRecordAtBat(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t)

	resp, body := ts.do(t, http.MethodPost, "/api/matches/m1/at-bats", AtBatRequest{Result: game.Double}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "AT_BAT", body["action"])
	assert.Equal(t, float64(2), body["seq"])

	resp, body = ts.do(t, http.MethodPost, "/api/matches/m1/at-bats", AtBatRequest{Result: "bunt"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["fields"], "result")

	resp, _ = ts.do(t, http.MethodPost, "/api/matches/nope/at-bats", AtBatRequest{Result: game.Single}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t)

	headers := map[string]string{IdempotencyKeyHeader: "tablet-7-42", CorrelationIDHeader: "corr-1"}
	resp, first := ts.do(t, http.MethodPost, "/api/matches/m1/at-bats", AtBatRequest{Result: game.Single}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "corr-1", resp.Header.Get(CorrelationIDHeader))
	assert.Nil(t, first["replayed"])

	resp, second := ts.do(t, http.MethodPost, "/api/matches/m1/at-bats", AtBatRequest{Result: game.Single}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, second["replayed"])
	assert.Equal(t, float64(2), second["version"])

	hist, err := ts.svc.History(t.Context(), "m1")
	require.NoError(t, err)
	assert.Len(t, hist.Entries, 2)
}

func TestUndoRedo(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t)
	ts.do(t, http.MethodPost, "/api/matches/m1/at-bats", AtBatRequest{Result: game.HomeRun}, nil)

	resp, body := ts.do(t, http.MethodPost, "/api/matches/m1/undo", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["position"])

	resp, body = ts.do(t, http.MethodPost, "/api/matches/m1/redo", LimitRequest{Limit: 3}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "requested 3, only 1 available", body["error"])
	result, ok := body["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, result["processed"], 1)

	resp, body = ts.do(t, http.MethodPost, "/api/matches/m1/redo", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "No actions available to redo", body["error"])

	resp, body = ts.do(t, http.MethodGet, "/api/matches/m1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	score := body["score"].(map[string]interface{})
	assert.Equal(t, float64(1), score["away"])

	resp, _ = ts.do(t, http.MethodPost, "/api/matches/m1/undo", LimitRequest{Limit: 0}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOtherActions(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t)

	resp, body := ts.do(t, http.MethodPost, "/api/matches/m1/substitutions", SubstitutionRequest{
		Side: game.Away, Slot: 1, PlayerID: "Owls-reyes", Position: game.Pitcher,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "SUBSTITUTION", body["action"])

	resp, body = ts.do(t, http.MethodPost, "/api/matches/m1/adjustments", AdjustmentRequest{Side: game.Home, Delta: 2, Reason: "scorer error"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = ts.do(t, http.MethodPost, "/api/matches/m1/half-innings/end", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "INNING_END", body["action"])

	resp, _ = ts.do(t, http.MethodPost, "/api/matches/m1/end", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, "/api/matches/m1/at-bats", AtBatRequest{Result: game.Single}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "match is completed", body["error"])

	resp, body = ts.do(t, http.MethodGet, "/api/matches/m1/history", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["entries"], 5)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{dugout.NewValidationError("RecordAtBat", "result", "bad"), http.StatusBadRequest},
		{&dugout.NotFoundError{Kind: "MatchState", ID: "m1"}, http.StatusNotFound},
		{scorebook.ErrUndoDisabled, http.StatusConflict},
		{fmt.Errorf("wrap: %w", game.ErrMatchNotStarted), http.StatusConflict},
		{game.ErrReentryNotAllowed, http.StatusUnprocessableEntity},
		{&dugout.PersistenceError{Kind: dugout.PersistenceEventLog, Cause: errors.New("disk")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), fmt.Sprint(tt.err))
	}
}
