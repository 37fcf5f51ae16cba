package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treeguardian/adapters/jsonfile"
	redisAdapter "treeguardian/adapters/redis"
	"treeguardian/config"
	"treeguardian/core"
	"treeguardian/leaderboard"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadProfile("testing")
	require.NoError(t, err)
	return cfg
}

func TestSetupStorageFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Adapter = "file"
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "state.json")

	store, err := setupStorage(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &jsonfile.Store{}, store)
}

func TestSetupStorageUnknownAdapter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Adapter = "etcd"
	_, err := setupStorage(context.Background(), cfg)
	assert.Error(t, err)
}

func TestProvideBoardFollowsStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisAdapter.DefaultConfig()
	cfg.Addr = mr.Addr()
	store, err := redisAdapter.New(cfg)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &redisAdapter.Board{}, provideBoard(store, slog.Default()))

	mem, err := setupStorage(context.Background(), testConfig(t))
	require.NoError(t, err)
	assert.IsType(t, &leaderboard.SkipList{}, provideBoard(mem, slog.Default()))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("chatty"))
}

func TestAssembledHandlerServesRequests(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))

	storage, cleanup, err := provideStorage(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	hub := provideHub()
	metrics := provideMetrics()
	assert.Nil(t, provideAggregator(cfg, metrics, logger), "testing profile disables analytics")

	remote, err := provideClassifier(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, remote)

	svc, closeSvc, err := provideService(cfg, logger, hub, metrics, storage, provideBoard(storage, logger))
	require.NoError(t, err)
	defer closeSvc()

	srv := httptest.NewServer(provideHandler(cfg, logger, svc, hub, metrics, nil, remote))
	defer srv.Close()

	body := strings.NewReader(`{"species":"Oak","confidence":0.9}`)
	resp, err := http.Post(srv.URL+"/api/players/alice/identifications", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/leaderboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	var board []struct {
		Player core.PlayerID `json:"player"`
		Points int64         `json:"points"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&board))
	require.Len(t, board, 1)
	assert.Equal(t, core.PlayerID("alice"), board[0].Player)
	assert.Equal(t, int64(80), board[0].Points)

	// metrics subscribe asynchronously
	assert.Eventually(t, func() bool {
		return metrics.Day(time.Now().UTC().Format("2006-01-02")).Identifications == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAssembledHandlerServesRollups(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analytics.Enabled = true
	cfg.Analytics.Interval = time.Hour
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))

	storage, cleanup, err := provideStorage(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	hub := provideHub()
	metrics := provideMetrics()
	agg := provideAggregator(cfg, metrics, logger)
	require.NotNil(t, agg)

	svc, closeSvc, err := provideService(cfg, logger, hub, metrics, storage, provideBoard(storage, logger))
	require.NoError(t, err)
	defer closeSvc()

	srv := httptest.NewServer(provideHandler(cfg, logger, svc, hub, metrics, agg, nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/players/alice/identifications", "application/json",
		strings.NewReader(`{"species":"Oak","confidence":0.9}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	today := time.Now().UTC().Format("2006-01-02")
	require.Eventually(t, func() bool { return metrics.Day(today).Identifications == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, agg.AggregateNow())

	resp, err = http.Get(srv.URL + "/api/stats/rollups/daily?key=" + today)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rollup struct {
		Identifications int64 `json:"identifications"`
		ActivePlayers   int   `json:"active_players"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rollup))
	assert.Equal(t, int64(1), rollup.Identifications)
	assert.Equal(t, 1, rollup.ActivePlayers)
}
