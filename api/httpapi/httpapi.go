package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	wsadapter "treeguardian/adapters/websocket"
	"treeguardian/analytics"
	"treeguardian/core"
	"treeguardian/engine"
	"treeguardian/leaderboard"
	"treeguardian/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Metrics, when set, backs the live GET {prefix}/stats/* routes.
	Metrics *analytics.Metrics
	// Aggregator, when set, serves its rollups under {prefix}/stats/rollups.
	Aggregator *analytics.AggregationEngine
	// Checks are extra named health probes reported by /healthz.
	Checks map[string]func(context.Context) error
	Logger *slog.Logger
}

// PlayerView is the GET {prefix}/players/{id} payload.
type PlayerView struct {
	Profile      core.ProfileSummary `json:"profile"`
	Stats        core.AggregateStats `json:"stats"`
	Mission      core.DailyMission   `json:"dailyMission"`
	Achievements int                 `json:"achievementsUnlocked"`
	Collected    int                 `json:"speciesCollected"`
	// Rank is the 1-based leaderboard position, omitted when unranked.
	Rank int `json:"rank,omitempty"`
}

type sessionRequest struct {
	Today string `json:"today"`
}

// Pointer fields tell an omitted value apart from its zero value.
type identificationRequest struct {
	Species    string   `json:"species"`
	Confidence *float64 `json:"confidence"`
	Points     *int64   `json:"points,omitempty"`
}

type diagnosisRequest struct {
	Species string `json:"species"`
	Healthy *bool  `json:"healthy"`
}

type api struct {
	svc    *engine.ProgressionService
	opts   Options
	logger *slog.Logger
}

// NewMux builds an http.Handler exposing the progression REST API and WebSocket stream.
// Routes:
//   - POST {prefix}/players/{id}/sessions        {"today":"2024-01-02"}
//   - POST {prefix}/players/{id}/identifications {"species","confidence","points"}
//   - POST {prefix}/players/{id}/diagnoses       {"species","healthy"}
//   - GET  {prefix}/players/{id}
//   - GET  {prefix}/players/{id}/collection?health=all|healthy|diseased
//   - GET  {prefix}/players/{id}/achievements
//   - GET  {prefix}/leaderboard?limit=10
//   - GET  {prefix}/stats/daily?day=2024-01-02
//   - GET  {prefix}/stats/species?limit=10
//   - GET  {prefix}/stats/levels
//   - GET  {prefix}/stats/achievements
//   - GET  {prefix}/stats/rollups/{period}?key=2024-W01   period: daily|weekly|monthly
//   - GET  {prefix}/stats/rollups/{period}/export
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(svc *engine.ProgressionService, hub *realtime.Hub, opts Options) http.Handler {
	a := &api{svc: svc, opts: opts, logger: opts.Logger}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	p := func(method, path string) string { return method + " " + withPrefix(opts.PathPrefix, path) }

	mux := http.NewServeMux()
	mux.HandleFunc(p(http.MethodGet, "/healthz"), a.healthCheck)
	if hub != nil {
		mux.Handle(p(http.MethodGet, "/ws"), wsadapter.Handler(hub))
	}
	mux.HandleFunc(p(http.MethodPost, "/players/{id}/sessions"), a.startSession)
	mux.HandleFunc(p(http.MethodPost, "/players/{id}/identifications"), a.recordIdentification)
	mux.HandleFunc(p(http.MethodPost, "/players/{id}/diagnoses"), a.recordDiagnosis)
	mux.HandleFunc(p(http.MethodGet, "/players/{id}"), a.getPlayer)
	mux.HandleFunc(p(http.MethodGet, "/players/{id}/collection"), a.getCollection)
	mux.HandleFunc(p(http.MethodGet, "/players/{id}/achievements"), a.getAchievements)
	mux.HandleFunc(p(http.MethodGet, "/leaderboard"), a.getLeaderboard)
	if opts.Metrics != nil {
		mux.HandleFunc(p(http.MethodGet, "/stats/daily"), a.getDailyStats)
		mux.HandleFunc(p(http.MethodGet, "/stats/species"), a.getTopSpecies)
		mux.HandleFunc(p(http.MethodGet, "/stats/levels"), a.getLevelDistribution)
		mux.HandleFunc(p(http.MethodGet, "/stats/achievements"), a.getAchievementUnlocks)
	}
	if opts.Aggregator != nil {
		mux.HandleFunc(p(http.MethodGet, "/stats/rollups/{period}"), a.getRollups)
		mux.HandleFunc(p(http.MethodGet, "/stats/rollups/{period}/export"), a.exportRollups)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})

	var handler http.Handler = mux
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	// CORS outermost so preflight requests skip auth
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	return handler
}

func playerID(w http.ResponseWriter, r *http.Request) (core.PlayerID, bool) {
	id, err := core.NormalizePlayerID(core.PlayerID(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_player", err.Error(), nil)
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return false
	}
	return true
}

// writeServiceError maps engine errors to HTTP statuses.
func (a *api) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidIdentification), errors.Is(err, core.ErrInvalidDiagnosis):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, core.ErrSpeciesNotFound):
		writeError(w, http.StatusNotFound, "species_not_found", err.Error(), nil)
	case errors.Is(err, core.ErrInvalidPlayer):
		writeError(w, http.StatusBadRequest, "invalid_player", err.Error(), nil)
	default:
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func (a *api) startSession(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}
	var body sessionRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &body) {
			return
		}
	}
	var today core.Date
	if body.Today != "" {
		d, err := core.ParseDate(body.Today)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error(), nil)
			return
		}
		today = d
	}
	res, err := a.svc.StartSession(r.Context(), player, today)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) recordIdentification(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}
	var body identificationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Confidence == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "confidence is required", nil)
		return
	}
	in := core.Identification{Species: body.Species, Confidence: *body.Confidence, Points: body.Points}
	res, err := a.svc.RecordIdentification(r.Context(), player, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) recordDiagnosis(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}
	var body diagnosisRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Healthy == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "healthy is required", nil)
		return
	}
	in := core.Diagnosis{Species: body.Species, IsHealthy: *body.Healthy}
	res, err := a.svc.RecordDiagnosis(r.Context(), player, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) getPlayer(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}
	st, err := a.svc.GetState(r.Context(), player)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	view := PlayerView{
		Profile:      a.svc.Rules().Summary(st),
		Stats:        st.Stats,
		Mission:      st.Mission,
		Achievements: len(st.User.Achievements),
		Collected:    len(st.Collection),
	}
	if e, ok := a.svc.Rank(player); ok {
		view.Rank = e.Rank
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) getCollection(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}
	filter, err := core.ParseHealthFilter(r.URL.Query().Get("health"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", err.Error(), nil)
		return
	}
	st, err := a.svc.GetState(r.Context(), player)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, core.Collection(st, filter))
}

func (a *api) getAchievements(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}
	st, err := a.svc.GetState(r.Context(), player)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.svc.Rules().AchievementProgress(st))
}

// parseLimit reads ?limit=, defaulting to 10 and capped at 100.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 10, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 100 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100", nil)
		return 0, false
	}
	return n, true
}

func (a *api) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	entries := a.svc.Leaderboard(limit)
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *api) getDailyStats(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	} else if _, err := core.ParseDate(day); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":            day,
		"active_players": a.opts.Metrics.DailyActivePlayers(day),
		"counters":       a.opts.Metrics.Day(day),
	})
}

func (a *api) getTopSpecies(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.opts.Metrics.TopSpecies(limit))
}

func (a *api) getLevelDistribution(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Metrics.LevelDistribution())
}

// getAchievementUnlocks reports how many players unlocked each catalog entry.
func (a *api) getAchievementUnlocks(w http.ResponseWriter, _ *http.Request) {
	catalog := a.svc.Rules().Achievements
	if catalog == nil {
		catalog = core.Catalog
	}
	out := make(map[core.AchievementID]int64, len(catalog))
	for _, def := range catalog {
		out[def.ID] = a.opts.Metrics.AchievementUnlocks(def.ID)
	}
	writeJSON(w, http.StatusOK, out)
}

func rollupPeriod(w http.ResponseWriter, r *http.Request) (analytics.AggregationPeriod, bool) {
	period := analytics.AggregationPeriod(r.PathValue("period"))
	switch period {
	case analytics.PeriodDaily, analytics.PeriodWeekly, analytics.PeriodMonthly:
		return period, true
	}
	writeError(w, http.StatusBadRequest, "invalid_period", "period must be daily, weekly or monthly", nil)
	return "", false
}

// getRollups lists the aggregator's rollups for a period, or one rollup
// when ?key= is given.
func (a *api) getRollups(w http.ResponseWriter, r *http.Request) {
	period, ok := rollupPeriod(w, r)
	if !ok {
		return
	}
	if key := r.URL.Query().Get("key"); key != "" {
		data, ok := a.opts.Aggregator.GetAggregatedData(period, key)
		if !ok {
			writeError(w, http.StatusNotFound, "rollup_not_found", "no rollup for "+key, nil)
			return
		}
		writeJSON(w, http.StatusOK, data)
		return
	}
	writeJSON(w, http.StatusOK, a.opts.Aggregator.GetAllAggregatedData(period))
}

func (a *api) exportRollups(w http.ResponseWriter, r *http.Request) {
	period, ok := rollupPeriod(w, r)
	if !ok {
		return
	}
	b, err := a.opts.Aggregator.ExportData(period)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="rollups-`+string(period)+`.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// healthCheck verifies the service is working properly
func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// A read of a probe player exercises storage without writing.
	_, err := a.svc.GetState(ctx, core.PlayerID("healthcheck_probe"))

	checks := map[string]any{"storage": "ok"}
	healthy := err == nil
	if err != nil {
		checks["storage"] = "failed"
	}
	for name, probe := range a.opts.Checks {
		if perr := probe(ctx); perr != nil {
			// extra probes are informational; only storage decides health
			checks[name] = "failed: " + perr.Error()
			continue
		}
		checks[name] = "ok"
	}

	status := map[string]any{"status": "healthy", "checks": checks}
	code := http.StatusOK
	if !healthy {
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[0] != '/' {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/") + path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, apiError{Code: code, Message: msg, Details: details})
}
