package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/adapters/signal"
	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins a stable anonymous id on the browser demo
// page, independent of the bearer account.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// BearerAuthMiddleware resolves the Authorization bearer token to a
// directory account and aborts unknown callers.
func BearerAuthMiddleware(dir *app.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if t, ok := strings.CutPrefix(token, "Bearer "); ok {
			token = t
		}
		account, ok := dir.ByToken(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown token"})
			return
		}
		c.Set("account", account)
		c.Next()
	}
}

func SetupRouter(
	ctx context.Context,
	cfg *config.Server,
	dir *app.Directory,
	reg *app.Registry,
	ctrl *signal.SignalWSController,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConsultSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.Use(BearerAuthMiddleware(dir))

	h := &BackendHandlers{Directory: dir, Registry: reg}
	api.GET("/profile", h.Profile)
	api.GET("/tenant", h.Tenant)
	api.GET("/user-info", h.UserInfo)
	api.GET("/participant-roles", h.ParticipantRoles)
	api.POST("/messages", h.LogMessage)
	api.POST("/sessions", h.LogSession)
	api.POST("/connections", h.LogConnection)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
