package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/helia-labs/helia-server/internal/chat"
	"github.com/helia-labs/helia-server/internal/common"
	"github.com/helia-labs/helia-server/internal/config"
	"github.com/helia-labs/helia-server/internal/httpapi/middleware"
	"github.com/helia-labs/helia-server/internal/persona"
	"github.com/helia-labs/helia-server/internal/store/rabbitmq"
	"github.com/helia-labs/helia-server/internal/store/redisstore"
)

// Rabbit may be nil, which disables the async chat endpoints.
type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Redis    *redisstore.Store
	Personas *persona.Registry
	ChatSvc  *chat.Service
	Engine   *chat.Engine
	Rabbit   *rabbitmq.Publisher
	Log      zerolog.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, personas *persona.Registry, svc *chat.Service, engine *chat.Engine, rabbit *rabbitmq.Publisher, log zerolog.Logger) *Handler {
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Redis:    rds,
		Personas: personas,
		ChatSvc:  svc,
		Engine:   engine,
		Rabbit:   rabbit,
		Log:      log.With().Str("component", "httpapi").Logger(),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
