package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/helia-labs/helia-server/internal/common"
)

// ListPersonas exposes the selectable personas. System prompts stay
// server-side.
func (h *Handler) ListPersonas(c *gin.Context) {
	common.OK(c, gin.H{"personas": h.Personas.List()})
}
