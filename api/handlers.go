package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"

	"courier/auth"
	"courier/domain"
	"courier/errors"
	"courier/repositories"
	"courier/search"
	"courier/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Handlers struct {
	chat          services.IChatService
	conversations *services.ConversationService
	users         repositories.IUserRepository
	log           *slog.Logger
}

func NewHandlers(chat services.IChatService, conversations *services.ConversationService,
	users repositories.IUserRepository, log *slog.Logger) *Handlers {
	return &Handlers{chat: chat, conversations: conversations, users: users, log: log}
}

type sendMessageRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Content   string `json:"content" binding:"required,notblank"`
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids" binding:"required,min=1"`
}

// RegisterValidations installs the custom rules used by the request
// bindings on gin's validator engine.
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	}
}

func (h *Handlers) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.chat.SendMessage(c.Request.Context(), auth.UserID(c), req.Recipient, req.Content)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toWireMessage(message))
}

func (h *Handlers) GetConversation(c *gin.Context) {
	counterpart := c.Param("userId")
	var cursor *string
	if raw := c.Query("cursor"); raw != "" {
		cursor = &raw
	}

	messages, next, err := h.chat.GetConversation(c.Request.Context(), auth.UserID(c), counterpart, cursor)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages":    toWireMessages(messages),
		"next_cursor": next,
	})
}

func (h *Handlers) ListConversations(c *gin.Context) {
	summaries, err := h.conversations.Summarize(auth.UserID(c))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toWireConversations(summaries))
}

func (h *Handlers) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids := make([]uuid.UUID, 0, len(req.MessageIDs))
	for _, raw := range req.MessageIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id: " + raw})
			return
		}
		ids = append(ids, id)
	}

	if err := h.chat.MarkRead(ids, auth.UserID(c)); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) SearchMessages(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	hits, err := h.chat.Search(c.Request.Context(), auth.UserID(c), query)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(hits, func(hit search.Hit, _ int) gin.H {
		return gin.H{
			"message_id": hit.MessageID.String(),
			"sender":     hit.Sender,
			"recipient":  hit.Recipient,
			"content":    hit.Content,
			"created_at": hit.CreatedAt,
		}
	}))
}

func (h *Handlers) ListUsers(c *gin.Context) {
	profiles, err := h.users.List()
	if err != nil {
		h.renderError(c, err)
		return
	}
	viewer := auth.UserID(c)
	c.JSON(http.StatusOK, lo.FilterMap(profiles, func(p domain.Profile, _ int) (gin.H, bool) {
		if p.ID == viewer {
			return nil, false
		}
		return gin.H{"id": p.ID, "username": p.Username, "avatar_ref": p.AvatarRef}, true
	}))
}

func (h *Handlers) GetUser(c *gin.Context) {
	profile, err := h.users.Get(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": profile.ID, "username": profile.Username, "avatar_ref": profile.AvatarRef})
}

func (h *Handlers) renderError(c *gin.Context, err error) {
	switch {
	case stderrors.Is(err, errors.ErrInvalidRecipient):
		c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
	case stderrors.Is(err, errors.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case stderrors.Is(err, errors.ErrInvalidContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content"})
	case stderrors.Is(err, errors.ErrStoreUnavailable):
		h.log.Error("Store unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		h.log.Error("Unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
