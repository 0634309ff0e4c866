package http

import (
	"context"

	"github.com/dkeye/Moderation/internal/adapters/signal"
	"github.com/dkeye/Moderation/internal/app/orch"
	"github.com/dkeye/Moderation/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName    = "ModerationSessions"
	clientTokenKey = "client_token"
	sessionMaxAge  = 3600 * 24 * 7
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every client a stable token kept in the
// signed session cookie and exposes it as "client_token".
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: sessionMaxAge, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{orch: o}
	ws := signal.NewSignalWSController(o, cfg.Signal)

	r.GET("/healthz", h.health)

	api := r.Group("/api")

	api.GET("/session", h.whoAmI)
	api.POST("/session", h.login)
	api.DELETE("/session", h.logout)

	api.GET("/rooms", h.listRooms)
	api.POST("/rooms", h.createRoom)
	api.GET("/rooms/:id", h.getRoom)
	api.DELETE("/rooms/:id", h.deleteRoom)
	api.GET("/rooms/:id/members", h.listMembers)
	api.POST("/rooms/:id/members", h.addMember)
	api.POST("/rooms/:id/leave", h.leave)
	api.GET("/rooms/:id/capabilities", h.capabilities)

	api.GET("/rooms/:id/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		if err := ws.HandleSignal(ctx, c); err != nil {
			writeError(c, err)
		}
	})

	api.GET("/features", h.listFeatures)
	api.PUT("/features/:name", h.setFeature)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
