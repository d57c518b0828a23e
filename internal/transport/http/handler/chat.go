package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chatvault/internal/app"
	"chatvault/internal/model"
	"chatvault/internal/ratelimit"
	"chatvault/internal/transport/http/middleware"
	"chatvault/internal/transport/http/response"
)

type ChatHandler struct {
	chatService   *app.ChatService
	uploadService *app.UploadService
}

func NewChatHandler(chatService *app.ChatService, uploadService *app.UploadService) *ChatHandler {
	return &ChatHandler{chatService: chatService, uploadService: uploadService}
}

type CreateChatRequest struct {
	Title string `json:"title" binding:"max=128"`
}

type RenameChatRequest struct {
	Title string `json:"title" binding:"required,max=512"`
}

type VisibilityRequest struct {
	Visibility string `json:"visibility" binding:"required"`
}

type BulkVisibilityRequest struct {
	ChatIDs    []string `json:"chatIds" binding:"required,min=1"`
	Visibility string   `json:"visibility" binding:"required"`
}

type AddMessageRequest struct {
	Role    string `json:"role" binding:"max=16"`
	Content string `json:"content" binding:"required"`
}

func (h *ChatHandler) Search(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var cursor *model.Cursor
	cursorDate := c.Query("cursorDate")
	cursorID := c.Query("cursorId")
	if cursorDate != "" && cursorID != "" {
		date, err := time.Parse(time.RFC3339, cursorDate)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid cursorDate")
			return
		}
		cursor = &model.Cursor{Date: date, ID: cursorID}
	}

	page, err := h.chatService.SearchChats(c.Request.Context(), app.SearchChatsInput{
		UserID: userID,
		Query:  c.Query("query"),
		Cursor: cursor,
		Limit:  intQuery(c, "limit", 0),
	})
	if err != nil {
		h.renderError(c, err, "search chats failed")
		return
	}

	response.OK(c, page, "")
}

func (h *ChatHandler) ListShared(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	page, err := h.chatService.GetUserSharedChats(
		c.Request.Context(),
		userID,
		intQuery(c, "offset", 0),
		intQuery(c, "limit", 0),
	)
	if err != nil {
		h.renderError(c, err, "list shared chats failed")
		return
	}

	response.OK(c, page, "")
}

func (h *ChatHandler) ListByDate(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var from, to time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = parsed
	}

	chats, err := h.chatService.GetUserChatsByDate(app.ChatsByDateInput{
		UserID:  userID,
		From:    from,
		To:      to,
		OrderBy: c.Query("orderBy"),
		Limit:   intQuery(c, "limit", 0),
	})
	if err != nil {
		h.renderError(c, err, "list chats failed")
		return
	}

	response.OK(c, chats, "")
}

func (h *ChatHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	chat, err := h.chatService.GetChatByID(userID, c.Param("id"), true)
	if err != nil {
		h.renderError(c, err, "get chat failed")
		return
	}

	response.OK(c, chat, "")
}

func (h *ChatHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	chat, err := h.chatService.CreateChat(c.Request.Context(), app.CreateChatInput{
		UserID: userID,
		Title:  req.Title,
	})
	if err != nil {
		h.renderError(c, err, "create chat failed")
		return
	}

	response.OK(c, chat, "chat created")
}

func (h *ChatHandler) Rename(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var req RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	title, err := h.chatService.RenameChat(c.Request.Context(), userID, c.Param("id"), req.Title)
	if err != nil {
		h.renderError(c, err, "rename chat failed")
		return
	}

	response.OK(c, gin.H{"id": c.Param("id"), "title": title}, "chat renamed")
}

func (h *ChatHandler) UpdateVisibility(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.chatService.UpdateChatVisibility(c.Request.Context(), userID, c.Param("id"), req.Visibility); err != nil {
		h.renderError(c, err, "update visibility failed")
		return
	}

	response.OK(c, gin.H{"id": c.Param("id"), "visibility": req.Visibility}, "visibility updated")
}

func (h *ChatHandler) UpdateManyVisibility(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var req BulkVisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	affected, err := h.chatService.UpdateManyChatsVisibility(c.Request.Context(), userID, req.ChatIDs, req.Visibility)
	if err != nil {
		h.renderError(c, err, "update visibility failed")
		return
	}

	response.OK(c, gin.H{"updated": affected}, "visibility updated")
}

func (h *ChatHandler) SetAllVisibility(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	affected, err := h.chatService.SetAllUserChatsVisibility(c.Request.Context(), userID, req.Visibility)
	if err != nil {
		h.renderError(c, err, "update visibility failed")
		return
	}

	response.OK(c, gin.H{"updated": affected}, "visibility updated")
}

func (h *ChatHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	chatID := c.Param("id")
	if err := h.chatService.DeleteChat(c.Request.Context(), userID, chatID); err != nil {
		h.renderError(c, err, "delete chat failed")
		return
	}

	response.OK(c, gin.H{"deletedChatId": chatID}, "chat deleted")
}

func (h *ChatHandler) AddMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var req AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	message, err := h.chatService.AddMessage(c.Request.Context(), app.AddMessageInput{
		UserID:  userID,
		ChatID:  c.Param("id"),
		Role:    req.Role,
		Content: req.Content,
	})
	if err != nil {
		h.renderError(c, err, "add message failed")
		return
	}

	response.OK(c, message, "message added")
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	messages, err := h.chatService.GetChatMessages(userID, c.Param("id"), intQuery(c, "limit", 0))
	if err != nil {
		h.renderError(c, err, "list messages failed")
		return
	}

	response.OK(c, messages, "")
}

func (h *ChatHandler) UploadFiles(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var files []app.FileUpload
	var closers []func() error
	defer func() {
		for _, close := range closers {
			_ = close()
		}
	}()
	for _, header := range form.File["files"] {
		f, err := header.Open()
		if err != nil {
			response.Error(c, http.StatusBadRequest, "unreadable file in upload")
			return
		}
		closers = append(closers, f.Close)
		files = append(files, app.FileUpload{
			Name:        header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Reader:      f,
		})
	}

	uploaded, err := h.uploadService.UploadFiles(c.Request.Context(), userID, c.Param("id"), files)
	if err != nil {
		h.renderError(c, err, "upload files failed")
		return
	}

	response.OK(c, uploaded, "files uploaded")
}

// renderError maps service sentinels onto envelope status codes. Anything
// unmapped funnels through the generic 500 with fallback text so the
// envelope shape stays consistent regardless of failure origin.
func (h *ChatHandler) renderError(c *gin.Context, err error, fallback string) {
	var rateErr *ratelimit.Error
	switch {
	case errors.As(err, &rateErr):
		response.ErrorWithDetails(c, http.StatusTooManyRequests, rateErr.Error(), rateErr)
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrEmptyQuery),
		errors.Is(err, app.ErrEmptyUpload),
		errors.Is(err, app.ErrTooManyFiles),
		errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrChatNotAccessible):
		response.Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrChatNotFound):
		response.Error(c, http.StatusNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, fallback)
	}
}

func getUserIDFromContext(c *gin.Context) (string, bool) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return "", false
	}
	userID, ok := raw.(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
