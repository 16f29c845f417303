package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/core"
	"github.com/vovakirdan/mentorwire/internal/proto"
	"github.com/vovakirdan/mentorwire/internal/store"
)

// ConversationHandlers serves message history and the online user list.
type ConversationHandlers struct {
	store    store.MessageStore
	presence *core.Presence
	log      *zerolog.Logger
}

func NewConversationHandlers(st store.MessageStore, presence *core.Presence, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{store: st, presence: presence, log: logger}
}

// MessagesResponse is the body of GET /api/conversations/:peerId/messages.
type MessagesResponse struct {
	Messages []proto.ChatMessage `json:"messages"`
}

// PresenceResponse is the body of GET /api/presence.
type PresenceResponse struct {
	UserIDs []int64 `json:"userIds"`
}

// ListMessages handles GET /api/conversations/:peerId/messages?limit=&before=
// Messages are returned newest first.
func (h *ConversationHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	peerID, err := strconv.ParseInt(c.Param("peerId"), 10, 64)
	if err != nil || peerID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid peer id"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 || limit > 200 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
	}
	var before *int64
	if v := c.Query("before"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		before = &id
	}

	msgs, err := h.store.ListConversation(c.Request.Context(), uid, peerID, limit, before)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Int64("peer_id", peerID).Msg("list conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]proto.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, storeMessageToWire(m))
	}
	c.JSON(http.StatusOK, MessagesResponse{Messages: out})
}

// Presence handles GET /api/presence
func (h *ConversationHandlers) Presence(c *gin.Context) {
	c.JSON(http.StatusOK, PresenceResponse{UserIDs: h.presence.Snapshot()})
}
