package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/huddle/internal/messaging"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type createChannelRequestPayload struct {
	Name     string `json:"name"`
	IsPublic *bool  `json:"is_public"`
}

type createDMRequestPayload struct {
	UserIDs []int64 `json:"u_ids"`
}

type inviteRequestPayload struct {
	UserID int64 `json:"u_id"`
}

type conversationDetailsPayload struct {
	ChannelID int64   `json:"channel_id"`
	DMID      int64   `json:"dm_id"`
	Name      string  `json:"name"`
	IsPublic  bool    `json:"is_public"`
	OwnerIDs  []int64 `json:"owner_members"`
	MemberIDs []int64 `json:"all_members"`
}

func (h *httpHandler) handleCreateChannel(c *gin.Context) {
	var request createChannelRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	public := true
	if request.IsPublic != nil {
		public = *request.IsPublic
	}
	ref, err := h.engine.CreateChannel(callerID(c), request.Name, public)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": ref.ID.Int64()})
}

func (h *httpHandler) handleCreateDM(c *gin.Context) {
	var request createDMRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	members := make([]messaging.UserID, 0, len(request.UserIDs))
	for _, raw := range request.UserIDs {
		userID, err := messaging.NewUserID(raw)
		if err != nil {
			h.badRequest(c, "invalid_user_id")
			return
		}
		members = append(members, userID)
	}
	ref, err := h.engine.CreateDM(callerID(c), members)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dm_id": ref.ID.Int64()})
}

func (h *httpHandler) handleJoin(c *gin.Context) {
	ref, ok := channelParam(c)
	if !ok {
		h.badRequest(c, "invalid_conversation_id")
		return
	}
	if err := h.engine.Join(ref, callerID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *httpHandler) handleInvite(c *gin.Context) {
	var request inviteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	userID, err := messaging.NewUserID(request.UserID)
	if err != nil {
		h.badRequest(c, "invalid_user_id")
		return
	}
	if err := h.engine.Invite(requestRef(c), callerID(c), userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *httpHandler) handleConversationDetails(c *gin.Context) {
	ref := requestRef(c)
	view, err := h.engine.Conversation(ref)
	if err != nil {
		h.respondError(c, err)
		return
	}
	caller := callerID(c)
	if !h.engine.IsMember(ref, caller) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not_member"})
		return
	}
	c.JSON(http.StatusOK, conversationDetailsPayload{
		ChannelID: ref.ChannelIDOrSentinel(),
		DMID:      ref.DMIDOrSentinel(),
		Name:      view.Name,
		IsPublic:  view.Public,
		OwnerIDs:  userIDsToInt64(view.OwnerIDs),
		MemberIDs: userIDsToInt64(view.MemberIDs),
	})
}

func (h *httpHandler) handleRemoveConversation(c *gin.Context) {
	if err := h.engine.RemoveConversation(requestRef(c), callerID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

type renameRequestPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleRename(c *gin.Context) {
	ref, ok := channelParam(c)
	if !ok {
		h.badRequest(c, "invalid_conversation_id")
		return
	}
	var request renameRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	if err := h.engine.Rename(ref, callerID(c), request.Name); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *httpHandler) handleAddOwner(c *gin.Context) {
	ref, ok := channelParam(c)
	if !ok {
		h.badRequest(c, "invalid_conversation_id")
		return
	}
	var request inviteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	userID, err := messaging.NewUserID(request.UserID)
	if err != nil {
		h.badRequest(c, "invalid_user_id")
		return
	}
	if err := h.engine.AddOwner(ref, callerID(c), userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

type permissionRequestPayload struct {
	PermissionID int `json:"permission_id"`
}

func (h *httpHandler) handleSetPermission(c *gin.Context) {
	if h.permissions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "permissions_unavailable"})
		return
	}
	targetID, err := messaging.ParseUserID(c.Param("user_id"))
	if err != nil {
		h.badRequest(c, "invalid_user_id")
		return
	}
	var request permissionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	err = h.permissions.SetPermission(callerID(c), targetID, users.Permission(request.PermissionID))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{})
	case errors.Is(err, users.ErrUnknownUser):
		h.badRequest(c, "unknown_user")
	case errors.Is(err, users.ErrInvalidPermission):
		h.badRequest(c, "invalid_permission")
	default:
		h.respondError(c, err)
	}
}

type standupStartRequestPayload struct {
	Length *int `json:"length"`
}

type standupLineRequestPayload struct {
	Message string `json:"message"`
}

func (h *httpHandler) handleStandupStart(c *gin.Context) {
	ref, ok := channelParam(c)
	if !ok {
		h.badRequest(c, "invalid_conversation_id")
		return
	}
	var request standupStartRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Length == nil {
		h.badRequest(c, "invalid_request")
		return
	}
	deadline, err := h.engine.StartStandup(ref, callerID(c), *request.Length)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"time_finish": deadline})
}

func (h *httpHandler) handleStandupSend(c *gin.Context) {
	ref, ok := channelParam(c)
	if !ok {
		h.badRequest(c, "invalid_conversation_id")
		return
	}
	var request standupLineRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.badRequest(c, "invalid_request")
		return
	}
	if err := h.engine.SendStandup(ref, callerID(c), request.Message); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *httpHandler) handleStandupActive(c *gin.Context) {
	ref, ok := channelParam(c)
	if !ok {
		h.badRequest(c, "invalid_conversation_id")
		return
	}
	status, err := h.engine.StandupActive(ref)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_active": status.IsActive, "time_finish": status.Deadline})
}

func userIDsToInt64(ids []messaging.UserID) []int64 {
	return lo.Map(ids, func(id messaging.UserID, _ int) int64 {
		return id.Int64()
	})
}
