package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/helia-labs/helia-server/internal/chat"
	"github.com/helia-labs/helia-server/internal/common"
)

type sendMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

func (h *Handler) failChatErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
	case errors.Is(err, chat.ErrInvalidPersona):
		common.Fail(c, http.StatusBadRequest, 10010, "unknown persona")
	case errors.Is(err, chat.ErrNoCredits):
		common.Fail(c, http.StatusPaymentRequired, 40201, "no credits remaining")
	case errors.Is(err, chat.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 10005, "message is empty")
	default:
		h.Log.Error().Err(err).Msg("chat turn failed")
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to send message")
	}
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, msgID, err := h.ChatSvc.SendMessage(c.Request.Context(), uid, req.SessionID, req.Message)
	if err != nil {
		h.failChatErr(c, err)
		return
	}

	common.OK(c, gin.H{
		"session_id": req.SessionID,
		"reply":      reply,
		"message_id": msgID,
	})
}

// SendChatMessageStream runs one turn over SSE. Events: chunk, ping, done,
// error. The stored assistant message is always the concatenation of the
// chunk events the client received.
func (h *Handler) SendChatMessageStream(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"streaming unsupported\"}\n\n")
		return
	}

	writeEvent := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	ctx := c.Request.Context()
	chunks, results := h.Engine.StreamTurn(ctx, uid, req.SessionID, req.Message)

	// heartbeat keeps idle proxies from cutting the connection
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	// Drain every chunk before looking at the result; the engine closes the
	// chunk channel strictly before the result is delivered.
	for chunks != nil {
		select {
		case chunk, open := <-chunks:
			if !open {
				chunks = nil
				continue
			}
			writeEvent("chunk", gin.H{"type": "chunk", "delta": chunk})

		case <-ticker.C:
			writeEvent("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})

		case <-ctx.Done():
			// Client went away; the engine persists the partial on its own.
			return
		}
	}

	r := <-results
	if r.Err != nil {
		msg := "turn failed"
		switch {
		case errors.Is(r.Err, chat.ErrNotFound):
			msg = "session not found"
		case errors.Is(r.Err, chat.ErrNoCredits):
			msg = "no credits remaining"
		case errors.Is(r.Err, chat.ErrEmptyMessage):
			msg = "message is empty"
		}
		writeEvent("error", gin.H{
			"type":       "error",
			"message":    msg,
			"partial":    r.Partial,
			"message_id": r.MessageID,
		})
		return
	}
	writeEvent("done", gin.H{
		"type":       "done",
		"message_id": r.MessageID,
		"filtered":   r.Filtered,
	})
}

// SendChatMessageAsync persists the user message, records a job and enqueues
// it; the worker produces the assistant reply.
func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async chat disabled")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	if err := h.ChatSvc.InsertUserMessage(c.Request.Context(), uid, req.SessionID, req.Message); err != nil {
		h.failChatErr(c, err)
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		SessionID:      req.SessionID,
		Prompt:         req.Message,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}
	j, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		h.Log.Error().Err(err).Str("session_id", req.SessionID).Msg("create job failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if created {
		if err := h.Rabbit.PublishTurnJob(c.Request.Context(), j.ID); err != nil {
			h.Log.Error().Err(err).Str("job_id", j.ID).Msg("publish job failed")
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"session_id":        j.SessionID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
