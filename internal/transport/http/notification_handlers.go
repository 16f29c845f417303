package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/core"
	"github.com/vovakirdan/mentorwire/internal/proto"
	"github.com/vovakirdan/mentorwire/internal/store"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationHandlers exposes the notification read side over REST.
type NotificationHandlers struct {
	notifier *core.Notifier
	log      *zerolog.Logger
}

func NewNotificationHandlers(n *core.Notifier, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{notifier: n, log: logger}
}

// NotificationsResponse is the body of GET /api/notifications.
type NotificationsResponse struct {
	Notifications []proto.Notification `json:"notifications"`
	UnreadCount   int64                `json:"unreadCount"`
}

// UnreadCountResponse is the body of GET /api/notifications/unread-count.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// ChangedResponse reports how many notifications a bulk update touched.
type ChangedResponse struct {
	Changed int64 `json:"changed"`
}

// List handles GET /api/notifications?limit=&offset=
func (h *NotificationHandlers) List(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	limit, offset, err := pageParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	items, err := h.notifier.List(ctx, uid, limit, offset)
	if err != nil {
		h.internal(c, err, "list notifications")
		return
	}
	count, err := h.notifier.UnreadCount(ctx, uid)
	if err != nil {
		h.internal(c, err, "count unread")
		return
	}

	out := make([]proto.Notification, 0, len(items))
	for _, n := range items {
		out = append(out, notificationToWire(n))
	}
	c.JSON(http.StatusOK, NotificationsResponse{Notifications: out, UnreadCount: count})
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandlers) UnreadCount(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	count, err := h.notifier.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		h.internal(c, err, "count unread")
		return
	}
	c.JSON(http.StatusOK, UnreadCountResponse{Count: count})
}

// MarkRead handles PATCH /api/notifications/:id/read
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.notifier.MarkRead(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.writeStoreError(c, err, "mark read")
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandlers) MarkAllRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	changed, err := h.notifier.MarkAllRead(c.Request.Context(), uid)
	if err != nil {
		h.internal(c, err, "mark all read")
		return
	}
	c.JSON(http.StatusOK, ChangedResponse{Changed: changed})
}

// MarkAllSeen handles POST /api/notifications/seen-all
func (h *NotificationHandlers) MarkAllSeen(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	changed, err := h.notifier.MarkAllSeen(c.Request.Context(), uid)
	if err != nil {
		h.internal(c, err, "mark all seen")
		return
	}
	c.JSON(http.StatusOK, ChangedResponse{Changed: changed})
}

// Delete handles DELETE /api/notifications/:id
func (h *NotificationHandlers) Delete(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.notifier.Delete(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.writeStoreError(c, err, "delete notification")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotificationHandlers) writeStoreError(c *gin.Context, err error, op string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "notification not found"})
		return
	}
	h.internal(c, err, op)
}

func (h *NotificationHandlers) internal(c *gin.Context, err error, op string) {
	h.log.Error().Err(err).Str("op", op).Msg("notification request failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func pageParams(c *gin.Context) (limit, offset int, err error) {
	limit = defaultNotificationLimit
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset")
		}
	}
	return limit, offset, nil
}
