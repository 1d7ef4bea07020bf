package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/MarcoPoloResearchLab/huddle/internal/messaging"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "huddle_user_id"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingEngine   = errors.New("messaging engine dependency required")
	errMissingSessions = errors.New("session resolver dependency required")
)

// SessionResolver authenticates a request and returns the caller.
type SessionResolver interface {
	ResolveRequest(r *http.Request) (messaging.UserID, error)
}

// PermissionManager changes global permissions on behalf of a caller.
type PermissionManager interface {
	SetPermission(actorID, targetID messaging.UserID, permission users.Permission) error
}

// Dependencies lists the collaborators of the HTTP handler.
type Dependencies struct {
	Engine            *messaging.Engine
	Sessions          SessionResolver
	Permissions       PermissionManager
	Realtime          *RealtimeDispatcher
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin router for the messaging API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		engine:      deps.Engine,
		sessions:    deps.Sessions,
		permissions: deps.Permissions,
		realtime:    deps.Realtime,
		heartbeat:   heartbeat,
		logger:      logger,
	}
	if deps.Realtime != nil {
		BridgeNotifications(deps.Engine, deps.Realtime)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.POST("/channels", handler.handleCreateChannel)
	protected.POST("/channels/:id/join", handler.handleJoin)
	protected.PUT("/channels/:id", handler.handleRename)
	protected.POST("/channels/:id/owners", handler.handleAddOwner)
	protected.POST("/dms", handler.handleCreateDM)
	protected.POST("/channels/:id/standup/start", handler.handleStandupStart)
	protected.POST("/channels/:id/standup/send", handler.handleStandupSend)
	protected.GET("/channels/:id/standup", handler.handleStandupActive)
	for _, kind := range []messaging.ConversationKind{messaging.KindChannel, messaging.KindDM} {
		group := protected.Group(conversationPrefix(kind))
		group.Use(conversationRef(kind))
		group.GET("/:id", handler.handleConversationDetails)
		group.DELETE("/:id", handler.handleRemoveConversation)
		group.POST("/:id/invite", handler.handleInvite)
		group.POST("/:id/messages", handler.handleSend)
		group.GET("/:id/messages", handler.handlePaginate)
		group.POST("/:id/messages/later", handler.handleSendLater)
	}

	protected.PUT("/messages/:message_id", handler.handleEdit)
	protected.DELETE("/messages/:message_id", handler.handleRemove)
	protected.POST("/messages/:message_id/react", handler.handleReact)
	protected.POST("/messages/:message_id/unreact", handler.handleUnreact)
	protected.POST("/messages/:message_id/pin", handler.handlePin)
	protected.POST("/messages/:message_id/unpin", handler.handleUnpin)
	protected.POST("/messages/:message_id/share", handler.handleShare)

	protected.GET("/notifications", handler.handleNotifications)
	protected.GET("/notifications/stream", handler.handleNotificationStream)
	protected.GET("/search", handler.handleSearch)
	protected.POST("/users/:user_id/permission", handler.handleSetPermission)

	return router, nil
}

func corsMiddleware(origins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || containsWildcard(origins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

type httpHandler struct {
	engine      *messaging.Engine
	sessions    SessionResolver
	permissions PermissionManager
	realtime    *RealtimeDispatcher
	heartbeat   time.Duration
	logger      *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	userID, err := h.sessions.ResolveRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrMissingToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func callerID(c *gin.Context) messaging.UserID {
	value, _ := c.Get(userIDContextKey)
	userID, _ := value.(messaging.UserID)
	return userID
}

// respondError maps engine error kinds onto HTTP statuses.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	code := "internal_error"
	var serviceErr *messaging.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	switch {
	case errors.Is(err, messaging.ErrInvalidInput):
		if code == "internal_error" {
			code = "invalid_input"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": code})
	case errors.Is(err, messaging.ErrUnauthorized):
		if code == "internal_error" {
			code = "unauthorized"
		}
		c.JSON(http.StatusForbidden, gin.H{"error": code})
	default:
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": code})
	}
}

func (h *httpHandler) badRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": reason})
}

func conversationPrefix(kind messaging.ConversationKind) string {
	if kind == messaging.KindDM {
		return "/dms"
	}
	return "/channels"
}

const conversationRefContextKey = "huddle_conversation"

// conversationRef parses the :id path parameter for routes shared by channels and DMs.
func conversationRef(kind messaging.ConversationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("id")
		if raw == "" {
			c.Next()
			return
		}
		id, err := messaging.ParseConversationID(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_conversation_id"})
			return
		}
		c.Set(conversationRefContextKey, messaging.ConversationRef{Kind: kind, ID: id})
		c.Next()
	}
}

func requestRef(c *gin.Context) messaging.ConversationRef {
	value, _ := c.Get(conversationRefContextKey)
	ref, _ := value.(messaging.ConversationRef)
	return ref
}

func channelParam(c *gin.Context) (messaging.ConversationRef, bool) {
	id, err := messaging.ParseConversationID(c.Param("id"))
	if err != nil {
		return messaging.ConversationRef{}, false
	}
	return messaging.Channel(id), true
}

func messageParam(c *gin.Context) (messaging.MessageID, bool) {
	id, err := messaging.NewMessageID(c.Param("message_id"))
	return id, err == nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	return value, err == nil
}
