package httpapi

import (
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

	mem "treeguardian/adapters/memory"
	"treeguardian/analytics"
	"treeguardian/core"
	"treeguardian/engine"
	"treeguardian/leaderboard"
)

func newTestService() *engine.ProgressionService {
	storage := mem.New()
	bus := engine.NewEventBus(engine.DispatchSync)
	clock := func() time.Time { return time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC) }
	return engine.NewProgressionService(storage, bus, core.DefaultRules(),
		engine.WithClock(clock),
		engine.WithLeaderboard(leaderboard.NewSkipList()),
	)
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRecordIdentificationSuccess(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/players/Alice/identifications", `{"species":"Potato","confidence":91.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res core.IdentificationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.IsNewDiscovery)
	assert.True(t, res.HealthCheckSupported)
	assert.Equal(t, int64(80), res.TotalPoints)
	require.Len(t, res.Achievements, 1)
	assert.Equal(t, core.AchievementID("first_tree"), res.Achievements[0].ID)
}

func TestRecordIdentificationValidation(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	cases := []string{
		`{"species":"","confidence":50}`,
		`{"species":"Oak","confidence":150}`,
		`{"species":"Oak","confidence":50,"points":-1}`,
		`{"species":"Oak","unknown":true}`,
		`{"species":"Oak"}`,
		`{"species":"Oak","confidence":null}`,
		`not json`,
	}
	for _, body := range cases {
		rec := do(t, handler, http.MethodPost, "/api/players/alice/identifications", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestMissingRequiredFieldsAreRejected(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/players/alice/identifications", `{"species":"Oak"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var apiErr apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "invalid_input", apiErr.Code)
	assert.Contains(t, apiErr.Message, "confidence")

	// nothing was stored for the rejected call
	st, err := svc.GetState(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, st.Collection)

	rec = do(t, handler, http.MethodPost, "/api/players/alice/identifications", `{"species":"Oak","confidence":0}`)
	require.Equal(t, http.StatusOK, rec.Code, "an explicit zero confidence is valid")

	rec = do(t, handler, http.MethodPost, "/api/players/alice/diagnoses", `{"species":"oak"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "invalid_input", apiErr.Code)
	assert.Contains(t, apiErr.Message, "healthy")

	st, err = svc.GetState(context.Background(), "alice")
	require.NoError(t, err)
	rec0, ok := st.Record("oak")
	require.True(t, ok)
	assert.Equal(t, core.HealthUnknown, rec0.Health, "a missing verdict must not mark the plant diseased")
	assert.Zero(t, st.Stats.DiagnosesRecorded)
}

func TestDiagnosisFlow(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/players/alice/diagnoses", `{"species":"Potato","healthy":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	do(t, handler, http.MethodPost, "/api/players/alice/identifications", `{"species":"Potato","confidence":80}`)
	rec = do(t, handler, http.MethodPost, "/api/players/alice/diagnoses", `{"species":"potato","healthy":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, handler, http.MethodGet, "/api/players/alice/collection?health=diseased", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []core.SpeciesRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, core.HealthDiseased, records[0].Health)

	rec = do(t, handler, http.MethodGet, "/api/players/alice/collection?health=healthy", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Empty(t, records)

	rec = do(t, handler, http.MethodGet, "/api/players/alice/collection?health=wilted", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionsAndPlayerView(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/players/bob/sessions", `{"today":"2024-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, handler, http.MethodPost, "/api/players/bob/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var roll core.RolloverResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roll))
	assert.True(t, roll.Changed)
	assert.Equal(t, int64(2), roll.Streak)

	rec = do(t, handler, http.MethodPost, "/api/players/bob/sessions", `{"today":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/players/bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view PlayerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, core.DefaultPlayerName, view.Profile.Name)
	assert.Equal(t, int64(2), view.Profile.Streak)
	assert.Equal(t, int64(2), view.Stats.DaysActive)
	assert.Equal(t, int64(3), view.Mission.Target)
}

func TestPlayerViewIncludesRank(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	do(t, handler, http.MethodPost, "/api/players/amy/identifications", `{"species":"Oak","confidence":70}`)
	do(t, handler, http.MethodPost, "/api/players/ben/identifications", `{"species":"Oak","confidence":70,"points":200}`)

	var view PlayerView
	rec := do(t, handler, http.MethodGet, "/api/players/amy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 2, view.Rank)

	rec = do(t, handler, http.MethodGet, "/api/players/ben", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 1, view.Rank)

	rec = do(t, handler, http.MethodGet, "/api/players/zoe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"rank"`)
}

func TestAchievementsEndpoint(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{})

	do(t, handler, http.MethodPost, "/players/carol/identifications", `{"species":"Oak","confidence":70}`)
	rec := do(t, handler, http.MethodGet, "/players/carol/achievements", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var statuses []core.AchievementStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, len(core.Catalog))
	assert.True(t, statuses[0].Unlocked)
	assert.Equal(t, int64(1), statuses[1].Current)
	assert.False(t, statuses[1].Unlocked)
}

func TestLeaderboardEndpoint(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api/"})

	do(t, handler, http.MethodPost, "/api/players/amy/identifications", `{"species":"Oak","confidence":70}`)
	do(t, handler, http.MethodPost, "/api/players/ben/identifications", `{"species":"Oak","confidence":70,"points":200}`)

	rec := do(t, handler, http.MethodGet, "/api/leaderboard?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []leaderboard.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, core.PlayerID("ben"), entries[0].Player)

	rec = do(t, handler, http.MethodGet, "/api/leaderboard?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidPlayer(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})
	rec := do(t, handler, http.MethodGet, "/api/players/%20%20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})
	rec := do(t, handler, http.MethodGet, "/api/users/alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{
		PathPrefix: "/api",
		Checks: map[string]func(context.Context) error{
			"classifier": func(context.Context) error { return errors.New("down") },
		},
	})
	rec := do(t, handler, http.MethodGet, "/api/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Checks["storage"])
	assert.Equal(t, "failed: down", body.Checks["classifier"])
}

func TestDailyStats(t *testing.T) {
	svc := newTestService()
	metrics := analytics.NewMetrics()
	svc.Subscribe("", metrics.OnEvent)
	handler := NewMux(svc, nil, Options{PathPrefix: "/api", Metrics: metrics})

	do(t, handler, http.MethodPost, "/api/players/amy/identifications", `{"species":"Oak","confidence":70}`)
	rec := do(t, handler, http.MethodGet, "/api/stats/daily?day=2024-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ActivePlayers int                   `json:"active_players"`
		Counters      analytics.DayCounters `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.ActivePlayers)
	assert.Equal(t, int64(1), body.Counters.Identifications)
	assert.Equal(t, int64(1), body.Counters.Discoveries)
}

func TestPopulationStats(t *testing.T) {
	svc := newTestService()
	metrics := analytics.NewMetrics()
	svc.Subscribe("", metrics.OnEvent)
	handler := NewMux(svc, nil, Options{PathPrefix: "/api", Metrics: metrics})

	do(t, handler, http.MethodPost, "/api/players/amy/identifications", `{"species":"Oak","confidence":70}`)
	do(t, handler, http.MethodPost, "/api/players/ben/identifications", `{"species":"oak","confidence":70}`)
	do(t, handler, http.MethodPost, "/api/players/ben/identifications", `{"species":"Pine","confidence":70}`)

	rec := do(t, handler, http.MethodGet, "/api/stats/species?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var top []analytics.SpeciesCount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, 1)
	assert.Equal(t, analytics.SpeciesCount{Species: "oak", Count: 2}, top[0])

	rec = do(t, handler, http.MethodGet, "/api/stats/species?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/stats/achievements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var unlocks map[core.AchievementID]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unlocks))
	assert.Len(t, unlocks, len(core.Catalog))
	assert.Equal(t, int64(2), unlocks["first_tree"])

	rec = do(t, handler, http.MethodGet, "/api/stats/levels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestRollupRoutes(t *testing.T) {
	svc := newTestService()
	metrics := analytics.NewMetrics()
	svc.Subscribe("", metrics.OnEvent)
	agg := analytics.NewAggregationEngine(metrics, time.Hour, nil)
	handler := NewMux(svc, nil, Options{PathPrefix: "/api", Metrics: metrics, Aggregator: agg})

	do(t, handler, http.MethodPost, "/api/players/amy/identifications", `{"species":"Oak","confidence":70}`)
	require.NoError(t, agg.AggregateAt(time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)))

	rec := do(t, handler, http.MethodGet, "/api/stats/rollups/weekly", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []analytics.AggregatedData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, "2024-W01", all[0].Key)
	assert.Equal(t, int64(1), all[0].Identifications)
	assert.Equal(t, 1, all[0].ActivePlayers)

	rec = do(t, handler, http.MethodGet, "/api/stats/rollups/daily?key=2024-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one analytics.AggregatedData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, analytics.PeriodDaily, one.Period)
	assert.Equal(t, int64(80), one.PointsAwarded)

	rec = do(t, handler, http.MethodGet, "/api/stats/rollups/daily?key=1999-01-01", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/stats/rollups/yearly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/stats/rollups/monthly/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "rollups-monthly.json")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, "2024-01", all[0].Key)
}

func TestRollupRoutesNeedAggregator(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api", Metrics: analytics.NewMetrics()})
	rec := do(t, handler, http.MethodGet, "/api/stats/rollups/daily", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{
		PathPrefix:      "/api",
		APIKeys:         []string{"secret"},
		AllowCORSOrigin: "*",
	})

	rec := do(t, handler, http.MethodGet, "/api/players/alice", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/players/alice", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodOptions, "/api/players/alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	rec := do(t, handler, http.MethodGet, "/api/players/alice", "", "X-API-Key", "k")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, handler, http.MethodGet, "/api/players/alice", "", "X-API-Key", "k")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
