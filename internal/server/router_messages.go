package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/huddle/internal/messaging"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type messageRequestPayload struct {
	Message string `json:"message"`
}

type sendLaterRequestPayload struct {
	Message  string `json:"message"`
	TimeSent int64  `json:"time_sent"`
}

type reactRequestPayload struct {
	ReactID int `json:"react_id"`
}

type shareRequestPayload struct {
	Message   string `json:"message"`
	ChannelID int64  `json:"channel_id"`
	DMID      int64  `json:"dm_id"`
}

type reactPayload struct {
	ReactID           int     `json:"react_id"`
	UserIDs           []int64 `json:"u_ids"`
	IsThisUserReacted bool    `json:"is_this_user_reacted"`
}

type messagePayload struct {
	MessageID string         `json:"message_id"`
	UserID    int64          `json:"u_id"`
	Message   string         `json:"message"`
	TimeSent  int64          `json:"time_sent"`
	Reacts    []reactPayload `json:"reacts"`
	IsPinned  bool           `json:"is_pinned"`
}

type pagePayload struct {
	Messages []messagePayload `json:"messages"`
	Start    int              `json:"start"`
	End      int              `json:"end"`
}

type notificationPayload struct {
	ChannelID           int64  `json:"channel_id"`
	DMID                int64  `json:"dm_id"`
	NotificationMessage string `json:"notification_message"`
}

func (h *httpHandler) handleSend(c *gin.Context) {
	var request messageRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	id, err := h.engine.Send(requestRef(c), callerID(c), request.Message)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": id.String()})
}

func (h *httpHandler) handleSendLater(c *gin.Context) {
	var request sendLaterRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	id, err := h.engine.SendLater(requestRef(c), callerID(c), request.Message, request.TimeSent)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": id.String()})
}

func (h *httpHandler) handlePaginate(c *gin.Context) {
	start, ok := queryInt(c, "start", 0)
	if !ok {
		h.badRequest(c, "invalid_start")
		return
	}
	page, err := h.engine.Paginate(requestRef(c), callerID(c), start)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagePayload{
		Messages: lo.Map(page.Messages, toMessagePayload),
		Start:    page.Start,
		End:      page.End,
	})
}

func (h *httpHandler) handleEdit(c *gin.Context) {
	id, ok := messageParam(c)
	if !ok {
		h.badRequest(c, "invalid_message_id")
		return
	}
	var request messageRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	if err := h.engine.Edit(id, callerID(c), request.Message); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *httpHandler) handleRemove(c *gin.Context) {
	h.messageAction(c, h.engine.Remove)
}

func (h *httpHandler) handlePin(c *gin.Context) {
	h.messageAction(c, h.engine.Pin)
}

func (h *httpHandler) handleUnpin(c *gin.Context) {
	h.messageAction(c, h.engine.Unpin)
}

func (h *httpHandler) handleReact(c *gin.Context) {
	h.reactAction(c, h.engine.React)
}

func (h *httpHandler) handleUnreact(c *gin.Context) {
	h.reactAction(c, h.engine.Unreact)
}

func (h *httpHandler) messageAction(c *gin.Context, action func(messaging.MessageID, messaging.UserID) error) {
	id, ok := messageParam(c)
	if !ok {
		h.badRequest(c, "invalid_message_id")
		return
	}
	if err := action(id, callerID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *httpHandler) reactAction(c *gin.Context, action func(messaging.MessageID, messaging.UserID, int) error) {
	id, ok := messageParam(c)
	if !ok {
		h.badRequest(c, "invalid_message_id")
		return
	}
	var request reactRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	if err := action(id, callerID(c), request.ReactID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *httpHandler) handleShare(c *gin.Context) {
	id, ok := messageParam(c)
	if !ok {
		h.badRequest(c, "invalid_message_id")
		return
	}
	var request shareRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	target, ok := shareTarget(request)
	if !ok {
		h.badRequest(c, "invalid_target")
		return
	}
	sharedID, err := h.engine.Share(id, callerID(c), request.Message, target)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shared_message_id": sharedID.String()})
}

// shareTarget accepts exactly one of channel_id and dm_id; the other is -1.
func shareTarget(request shareRequestPayload) (messaging.ConversationRef, bool) {
	switch {
	case request.ChannelID > 0 && request.DMID == -1:
		return messaging.Channel(messaging.ConversationID(request.ChannelID)), true
	case request.DMID > 0 && request.ChannelID == -1:
		return messaging.DM(messaging.ConversationID(request.DMID)), true
	default:
		return messaging.ConversationRef{}, false
	}
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	results, err := h.engine.Search(callerID(c), c.Query("query"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	messages := lo.Map(results, func(result messaging.SearchResult, index int) messagePayload {
		return toMessagePayload(result.Message, index)
	})
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *httpHandler) handleNotifications(c *gin.Context) {
	rendered := h.engine.Notifications(callerID(c))
	c.JSON(http.StatusOK, gin.H{"notifications": lo.Map(rendered, toNotificationPayload)})
}

func toMessagePayload(view messaging.MessageView, _ int) messagePayload {
	return messagePayload{
		MessageID: view.ID.String(),
		UserID:    view.AuthorID.Int64(),
		Message:   view.Body,
		TimeSent:  view.CreatedAt,
		Reacts: lo.Map(view.Reacts, func(summary messaging.ReactSummary, _ int) reactPayload {
			return reactPayload{
				ReactID:           int(summary.ReactKind),
				UserIDs:           userIDsToInt64(summary.UserIDs),
				IsThisUserReacted: summary.IsThisUserReacted,
			}
		}),
		IsPinned: view.Pinned,
	}
}

func toNotificationPayload(rendered messaging.RenderedNotification, _ int) notificationPayload {
	return notificationPayload{
		ChannelID:           rendered.ChannelID,
		DMID:                rendered.DMID,
		NotificationMessage: rendered.Message,
	}
}
