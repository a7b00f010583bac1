package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/helia-labs/helia-server/internal/chat"
	"github.com/helia-labs/helia-server/internal/common"
	"github.com/helia-labs/helia-server/internal/config"
	"github.com/helia-labs/helia-server/internal/httpapi/handlers"
	"github.com/helia-labs/helia-server/internal/httpapi/middleware"
	"github.com/helia-labs/helia-server/internal/persona"
	"github.com/helia-labs/helia-server/internal/store/rabbitmq"
	"github.com/helia-labs/helia-server/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, personas *persona.Registry, svc *chat.Service, engine *chat.Engine, rabbit *rabbitmq.Publisher, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, rds, personas, svc, engine, rabbit, log)

	r.GET("/ping", h.Ping)
	r.GET("/personas", h.ListPersonas)

	// registration & login
	r.POST("/verification-codes", h.SendVerificationCode)
	r.POST("/users", h.Register)
	r.POST("/login", h.Login)

	authed := r.Group("/")
	authed.Use(middleware.AuthRequired(cfg.JWTSecret))
	authed.GET("/me", h.Me)

	// sessions
	authed.POST("/chat/sessions", h.CreateChatSession)
	authed.GET("/chat/sessions", h.ListChatSessions)
	authed.PATCH("/chat/sessions/:session_id", h.RenameChatSession)
	authed.DELETE("/chat/sessions/:session_id", h.DeleteChatSession)
	authed.GET("/chat/sessions/:session_id/messages", h.ListChatMessages)

	// turns
	authed.POST("/chat/messages", h.SendChatMessage)
	authed.POST("/chat/messages/stream", h.SendChatMessageStream)
	authed.POST("/chat/messages/async", h.SendChatMessageAsync)
	authed.GET("/chat/jobs/:job_id", h.GetChatJob)

	return r
}
