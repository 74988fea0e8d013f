package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"roombot/internal/core/domain"
	"roombot/internal/core/services"
	"roombot/internal/infrastructure/monitoring"
	"roombot/internal/infrastructure/repositories/memory"
	"roombot/pkg/config"
)

type dashboardFixture struct {
	router *gin.Engine
	env    *services.Env
	store  *memory.Store
	auth   services.AuthService
	online bool
}

func newDashboardFixture(t *testing.T, requireAuth bool) *dashboardFixture {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()

	room := services.NewRoomState("roombot", logger)
	room.SetUserlist([]domain.User{
		{Name: "alice", Rank: domain.RankUser},
		{Name: "mod", Rank: domain.RankModerator},
	})

	cooldowns := services.NewCooldownEngine(logger)
	require.NoError(t, cooldowns.Register(domain.CooldownDefinition{
		TypeID:   "roll",
		Personal: domain.Since(3 * time.Second),
		Shared:   domain.Bucket(5, 2*time.Second),
	}))

	registry := services.NewCommandRegistry(logger)
	require.NoError(t, registry.Register("roll", services.Command{
		Handler: func(context.Context, *services.Env, services.Call) error { return nil },
		Help:    "Roll some dice.",
	}))

	store := memory.NewStore()
	env := &services.Env{
		Room:      room,
		Registry:  registry,
		Cooldowns: cooldowns,
		Store:     store,
		Logger:    logger,
	}

	f := &dashboardFixture{env: env, store: store, online: true}

	health := monitoring.NewHealthChecker()
	health.AddStoreCheck(store, time.Second)
	health.AddRoomCheck(func() bool { return f.online })

	reg := prometheus.NewRegistry()
	collector := monitoring.NewPrometheusCollector(reg)
	collector.SetConnected(true)

	cfg := config.DefaultConfig()
	cfg.Dashboard.RateLimit.Enabled = false
	cfg.Dashboard.RequireAuth = requireAuth
	cfg.Dashboard.JWTSecret = "test-secret"

	f.auth = services.NewAuthService(cfg.Dashboard.JWTSecret, time.Hour)
	f.router = NewRouter(cfg, NewDashboardHandler(env, health, reg), f.auth, logger)
	return f
}

func (f *dashboardFixture) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	f.router.ServeHTTP(w, req)
	return w
}

func (f *dashboardFixture) token(t *testing.T, scope string) string {
	t.Helper()
	tok, err := f.auth.GenerateToken("tester", scope, 0)
	require.NoError(t, err)
	return tok
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDashboard_HealthAndReady(t *testing.T) {
	f := newDashboardFixture(t, false)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ready", "").Code)

	f.online = false
	w := f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, monitoring.StatusUnhealthy, decode(t, w)["status"])
}

func TestDashboard_Metrics(t *testing.T) {
	f := newDashboardFixture(t, false)

	w := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "roombot_room_connected 1")
}

func TestDashboard_ReadEndpoints(t *testing.T) {
	f := newDashboardFixture(t, false)

	w := f.do(t, http.MethodGet, "/api/v1/commands", "")
	require.Equal(t, http.StatusOK, w.Code)
	commands := decode(t, w)["commands"].([]any)
	require.Len(t, commands, 1)
	assert.Equal(t, "roll", commands[0].(map[string]any)["name"])

	w = f.do(t, http.MethodGet, "/api/v1/cooldowns", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["cooldowns"], 1)

	w = f.do(t, http.MethodGet, "/api/v1/room/users", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["count"])

	w = f.do(t, http.MethodGet, "/api/v1/room", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "roombot", decode(t, w)["bot_name"])

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/room/playlist", "").Code)
}

func TestDashboard_UserLookup(t *testing.T) {
	f := newDashboardFixture(t, false)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/users/alice", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/users/al!ce", "").Code)

	require.NoError(t, f.store.RecordUser(context.Background(), "alice", domain.RankUser))
	w := f.do(t, http.MethodGet, "/api/v1/users/alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["online"])
	assert.Equal(t, "alice", body["user"].(map[string]any)["name"])
}

func TestDashboard_RecentMedia(t *testing.T) {
	f := newDashboardFixture(t, false)
	require.NoError(t, f.store.RecordMediaStat(context.Background(), domain.MediaStat{
		Media: domain.MediaRef{Type: "yt", ID: "abc"}, QueuedBy: "alice", At: time.Now(),
	}))

	w := f.do(t, http.MethodGet, "/api/v1/media/recent?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/media/recent?limit=0", "").Code)
}

func TestDashboard_RequireAuth(t *testing.T) {
	f := newDashboardFixture(t, true)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/commands", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/commands", f.token(t, services.ScopeRead)).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code, "probes stay open")
}

func TestDashboard_AdminBlocks(t *testing.T) {
	f := newDashboardFixture(t, false)
	ctx := context.Background()

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPut, "/api/v1/admin/users/troll/block", "").Code)
	assert.Equal(t, http.StatusForbidden,
		f.do(t, http.MethodPut, "/api/v1/admin/users/troll/block", f.token(t, services.ScopeRead)).Code)

	admin := f.token(t, services.ScopeAdmin)
	w := f.do(t, http.MethodPut, "/api/v1/admin/users/troll/block", admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tester", decode(t, w)["by"])

	blocked, err := f.store.IsUserBlocked(ctx, "troll")
	require.NoError(t, err)
	assert.True(t, blocked)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/v1/admin/users/troll/block", admin).Code)
	blocked, err = f.store.IsUserBlocked(ctx, "troll")
	require.NoError(t, err)
	assert.False(t, blocked)

	ref := domain.MediaRef{Type: "yt", ID: "dQw4w9WgXcQ"}
	require.NoError(t, f.store.SetMediaFlags(ctx, ref, domain.FlagNoRepeat))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/v1/admin/media/yt/dQw4w9WgXcQ/block", admin).Code)
	flags, err := f.store.GetMediaFlags(ctx, ref)
	require.NoError(t, err)
	assert.True(t, flags.Has(domain.FlagBlocked))
	assert.True(t, flags.Has(domain.FlagNoRepeat), "other flags survive")

	w = f.do(t, http.MethodDelete, "/api/v1/admin/media/yt/dQw4w9WgXcQ/norepeat", admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"media":"yt:dQw4w9WgXcQ","no_repeat":false,"by":"tester"}`, w.Body.String())
	flags, err = f.store.GetMediaFlags(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.FlagBlocked, flags)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/v1/admin/media/yt/dQw4w9WgXcQ/norepeat", admin).Code)
	flags, err = f.store.GetMediaFlags(ctx, ref)
	require.NoError(t, err)
	assert.True(t, flags.Has(domain.FlagNoRepeat))
}
