package http

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/realm/internal/adapters/rtc"
	"github.com/dkeye/realm/internal/adapters/signal"
	"github.com/dkeye/realm/internal/app"
	"github.com/dkeye/realm/internal/app/orch"
	"github.com/dkeye/realm/internal/config"
	"github.com/dkeye/realm/internal/domain"
	"github.com/dkeye/realm/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	sessionName     = "RealmSessions"
	sessionTokenKey = "token"
)

// TokenFrom finds the handshake token: Authorization bearer header first,
// then the token query parameter, then the cookie session.
func TokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if t := c.Query("token"); t != "" {
		return t
	}
	if v, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
		return v
	}
	return ""
}

// AuthMiddleware resolves the caller before any handler runs. Rejected
// requests never reach the upgrade.
func AuthMiddleware(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := o.Authenticate(c.Request.Context(), TokenFrom(c))
		if err != nil {
			metrics.HandshakeFailures.Inc()
			log.Info().Str("module", "adapters.http").Str("path", c.FullPath()).Str("remote", c.ClientIP()).Msg("unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  app.KindOf(err).Code(),
				"error": app.PublicMessage(err),
			})
			return
		}
		c.Set(signal.UserKey, user)
		c.Next()
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) (*gin.Engine, error) {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	iceServers, err := rtc.ICEServers(cfg.ICEServers)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(MetricsMiddleware())

	secret := cfg.Secret
	if secret == "" {
		secret = cfg.JWTSecret
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": o.Registry.Count(), "calls": o.Calls.Count()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/ice-servers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": iceServers})
	})

	// Browsers cannot set headers on a WebSocket handshake, so the token
	// can be parked in the cookie session first.
	api.POST("/session", func(c *gin.Context) {
		var body struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": app.KindBadRequest.Code(), "error": "token required"})
			return
		}
		user, err := o.Authenticate(c.Request.Context(), body.Token)
		if err != nil {
			metrics.HandshakeFailures.Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"code": app.KindOf(err).Code(), "error": app.PublicMessage(err)})
			return
		}
		sess := sessions.Default(c)
		sess.Set(sessionTokenKey, body.Token)
		if err := sess.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			c.JSON(http.StatusInternalServerError, gin.H{"code": app.KindInternal.Code(), "error": "session not saved"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user.Profile()})
	})

	authed := api.Group("", AuthMiddleware(o))
	authed.DELETE("/session", func(c *gin.Context) {
		user := c.MustGet(signal.UserKey).(*domain.User)
		sess := sessions.Default(c)
		sess.Clear()
		sess.Options(sessions.Options{Path: "/", MaxAge: -1})
		if err := sess.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("clear session")
		}
		kicked := o.Kick(user.ID)
		log.Info().Str("module", "adapters.http").Str("user", string(user.ID)).Bool("kicked", kicked).Msg("logout")
		c.JSON(http.StatusOK, gin.H{"kicked": kicked})
	})
	authed.GET("/online", func(c *gin.Context) {
		ids := o.Registry.List()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		c.JSON(http.StatusOK, gin.H{"users": ids})
	})
	authed.GET("/rooms", func(c *gin.Context) {
		rooms := o.Rooms.List()
		sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})
	authed.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Int("ice_servers", len(iceServers)).Msg("router setup")
	return r, nil
}
