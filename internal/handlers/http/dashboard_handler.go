package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
	"roombot/internal/core/services"
	"roombot/internal/infrastructure/middleware"
	"roombot/internal/infrastructure/monitoring"
	apperrors "roombot/pkg/errors"
	"roombot/pkg/validation"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
	readyTimeout       = 2 * time.Second
)

// DashboardHandler serves the read-mostly view of the bot's state.
type DashboardHandler struct {
	room      *services.RoomState
	registry  *services.CommandRegistry
	cooldowns *services.CooldownEngine
	store     ports.Store
	health    *monitoring.HealthChecker
	gatherer  prometheus.Gatherer
	started   time.Time
}

// NewDashboardHandler wires the handler to the bot's env. gatherer may be
// nil to disable /metrics.
func NewDashboardHandler(env *services.Env, health *monitoring.HealthChecker, gatherer prometheus.Gatherer) *DashboardHandler {
	return &DashboardHandler{
		room:      env.Room,
		registry:  env.Registry,
		cooldowns: env.Cooldowns,
		store:     env.Store,
		health:    health,
		gatherer:  gatherer,
		started:   env.Now(),
	}
}

// SetupRoutes mounts every route. readAuth and adminAuth guard the API
// groups; nil leaves a group open.
func (h *DashboardHandler) SetupRoutes(router *gin.Engine, readAuth, adminAuth gin.HandlerFunc) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	if readAuth != nil {
		api.Use(readAuth)
	}
	{
		api.GET("/commands", h.ListCommands)
		api.GET("/cooldowns", h.ListCooldowns)
		api.GET("/room", h.GetRoom)
		api.GET("/room/users", h.ListUsers)
		api.GET("/room/playlist", h.GetPlaylist)
		api.GET("/users/:name", h.GetUser)
		api.GET("/media/recent", h.RecentMedia)
	}

	admin := router.Group("/api/v1/admin")
	if adminAuth != nil {
		admin.Use(adminAuth)
	}
	{
		admin.PUT("/users/:name/block", h.setUserBlocked(true))
		admin.DELETE("/users/:name/block", h.setUserBlocked(false))
		admin.PUT("/media/:type/:id/block", h.setMediaFlag(domain.FlagBlocked, "blocked", true))
		admin.DELETE("/media/:type/:id/block", h.setMediaFlag(domain.FlagBlocked, "blocked", false))
		admin.PUT("/media/:type/:id/norepeat", h.setMediaFlag(domain.FlagNoRepeat, "no_repeat", true))
		admin.DELETE("/media/:type/:id/norepeat", h.setMediaFlag(domain.FlagNoRepeat, "no_repeat", false))
	}
}

func (h *DashboardHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *DashboardHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	status := h.health.CheckAll(ctx)
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *DashboardHandler) ListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": h.registry.Help()})
}

func (h *DashboardHandler) ListCooldowns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cooldowns": h.cooldowns.Definitions()})
}

func (h *DashboardHandler) GetRoom(c *gin.Context) {
	c.JSON(http.StatusOK, h.room.Snapshot())
}

func (h *DashboardHandler) ListUsers(c *gin.Context) {
	users := h.room.Users()
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (h *DashboardHandler) GetPlaylist(c *gin.Context) {
	current, _ := h.room.Current()
	c.JSON(http.StatusOK, gin.H{
		"playlist": h.room.Playlist(),
		"current":  current,
	})
}

func (h *DashboardHandler) GetUser(c *gin.Context) {
	name, ok := userParam(c)
	if !ok {
		return
	}

	rec, err := h.store.GetUser(c.Request.Context(), name)
	if errors.Is(err, domain.ErrUserNotFound) {
		_ = c.Error(apperrors.NewNotFoundError("user"))
		return
	}
	if err != nil {
		_ = c.Error(storeError(err, "failed to load user"))
		return
	}

	resp := gin.H{"user": rec}
	if live, ok := h.room.User(name); ok {
		resp["online"] = true
		resp["rank"] = live.Rank
	} else {
		resp["online"] = false
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DashboardHandler) RecentMedia(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentLimit {
			_ = c.Error(apperrors.Newf(apperrors.ErrCodeInvalidInput, "limit must be between 1 and %d", maxRecentLimit))
			return
		}
		limit = n
	}

	stats, err := h.store.RecentMedia(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(storeError(err, "failed to load media history"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": stats, "count": len(stats)})
}

func (h *DashboardHandler) setUserBlocked(blocked bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := userParam(c)
		if !ok {
			return
		}
		if err := h.store.SetUserBlocked(c.Request.Context(), name, blocked); err != nil {
			_ = c.Error(storeError(err, "failed to update user block"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": name, "blocked": blocked, "by": middleware.Subject(c)})
	}
}

// setMediaFlag turns one media flag on or off and leaves the others alone.
func (h *DashboardHandler) setMediaFlag(flag domain.MediaFlags, field string, on bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := domain.MediaRef{Type: c.Param("type"), ID: c.Param("id")}
		if err := validation.ValidateMediaRef(ref.Type, ref.ID); err != nil {
			_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
			return
		}

		ctx := c.Request.Context()
		flags, err := h.store.GetMediaFlags(ctx, ref)
		if err != nil {
			_ = c.Error(storeError(err, "failed to load media flags"))
			return
		}
		if on {
			flags |= flag
		} else {
			flags &^= flag
		}
		if err := h.store.SetMediaFlags(ctx, ref, flags); err != nil {
			_ = c.Error(storeError(err, "failed to update media flags"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"media": ref.String(), field: on, "by": middleware.Subject(c)})
	}
}

func userParam(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if err := validation.ValidateUsername(name); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return name, true
}

func storeError(err error, message string) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "store unavailable")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, message)
}
