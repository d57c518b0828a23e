package app

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"chatvault/internal/cache"
	"chatvault/internal/model"
	"chatvault/internal/ratelimit"
	"chatvault/internal/repository"
	"chatvault/internal/syncer"
)

var (
	ErrChatNotFound      = errors.New("chat not found")
	ErrChatNotAccessible = errors.New("chat not accessible")
	ErrEmptyQuery        = errors.New("search query is empty")
)

const (
	// Titles longer than this are stored truncated with a "..." suffix.
	maxTitleLen = 25

	defaultPageSize = 20
	maxPageSize     = 100

	snippetRadius = 60
)

// cleanupQueue receives ids of deleted chats whose storage objects still
// need removal. Satisfied by the debounced batcher feeding the cleanup
// publisher.
type cleanupQueue interface {
	Add(chatID string)
}

// quota charges usage against the user's rate-limit counters.
type quota interface {
	Consume(userID, kind string, n int64) error
}

type ChatService struct {
	chatRepo    *repository.ChatRepository
	messageRepo *repository.MessageRepository
	tagCache    *cache.TagCache
	sync        *syncer.Provider
	cleanup     cleanupQueue
	usage       quota
}

func NewChatService(
	chatRepo *repository.ChatRepository,
	messageRepo *repository.MessageRepository,
	tagCache *cache.TagCache,
	sync *syncer.Provider,
	cleanup cleanupQueue,
	usage quota,
) *ChatService {
	return &ChatService{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		tagCache:    tagCache,
		sync:        sync,
		cleanup:     cleanup,
		usage:       usage,
	}
}

type SearchChatsInput struct {
	UserID string
	Query  string
	Cursor *model.Cursor
	Limit  int
}

// SearchChats pages through the user's chats matching query by message
// content or title, newest first. Cursor pagination uses the strict
// (createdAt, id) compound key; the page carries a cursor iff another
// page exists.
func (s *ChatService) SearchChats(ctx context.Context, input SearchChatsInput) (*model.PaginatedData[model.ChatSearchResult], error) {
	if input.UserID == "" {
		return nil, ErrInvalidInput
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		// Rejected before any store access.
		return nil, ErrEmptyQuery
	}
	limit := clampLimit(input.Limit)

	searchTag := cache.UserChatsSearch(input.UserID, query)
	if input.Cursor == nil && s.tagCache != nil {
		var cached model.PaginatedData[model.ChatSearchResult]
		if hit, err := s.tagCache.Get(ctx, searchTag, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	contentIDs, firstMatch, err := s.chatRepo.FirstContentMatches(input.UserID, query)
	if err != nil {
		return nil, err
	}

	chats, err := s.chatRepo.Search(input.UserID, query, contentIDs, input.Cursor, limit+1)
	if err != nil {
		return nil, err
	}

	hasNextPage := len(chats) > limit
	if hasNextPage {
		chats = chats[:limit]
	}

	results := make([]model.ChatSearchResult, 0, len(chats))
	for _, chat := range chats {
		source, fromContent := firstMatch[chat.ID]
		if !fromContent {
			source = chat.Title
		}
		results = append(results, model.ChatSearchResult{
			Chat:    chat,
			Snippet: buildSnippet(source, query),
		})
	}

	page := &model.PaginatedData[model.ChatSearchResult]{
		Data:        results,
		HasNextPage: hasNextPage,
	}
	if hasNextPage {
		last := chats[len(chats)-1]
		page.Cursor = &model.Cursor{Date: last.CreatedAt, ID: last.ID}
	}

	if input.Cursor == nil && s.tagCache != nil {
		if err := s.tagCache.Set(ctx, searchTag, page); err != nil {
			log.Printf("cache search page failed: %v", err)
		}
	}
	return page, nil
}

// GetUserSharedChats returns the [offset, offset+limit) window of the
// user's public chats. Negative offsets and non-positive limits are
// silently clamped, not rejected.
func (s *ChatService) GetUserSharedChats(ctx context.Context, userID string, offset, limit int) (*model.PaginatedData[model.Chat], error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = defaultPageSize
	}

	sharedTag := cache.UserSharedChats(userID)
	if offset == 0 && s.tagCache != nil {
		var cached model.PaginatedData[model.Chat]
		if hit, err := s.tagCache.Get(ctx, sharedTag, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	chats, total, err := s.chatRepo.ListSharedByUser(userID, offset, limit)
	if err != nil {
		return nil, err
	}

	// The store already orders by visible_at, but re-sort on the same key
	// to guard against ordering variance.
	sort.SliceStable(chats, func(i, j int) bool {
		if !chats[i].VisibleAt.Equal(chats[j].VisibleAt) {
			return chats[i].VisibleAt.After(chats[j].VisibleAt)
		}
		return chats[i].ID > chats[j].ID
	})

	page := &model.PaginatedData[model.Chat]{
		Data:        chats,
		HasNextPage: offset+limit < int(total),
		TotalCount:  &total,
	}
	if page.HasNextPage {
		next := offset + limit
		page.NextOffset = &next
	}

	if offset == 0 && s.tagCache != nil {
		if err := s.tagCache.Set(ctx, sharedTag, page); err != nil {
			log.Printf("cache shared chats failed: %v", err)
		}
	}
	return page, nil
}

type ChatsByDateInput struct {
	UserID  string
	From    time.Time
	To      time.Time
	OrderBy string
	Limit   int
}

// GetUserChatsByDate lists the user's chats whose OrderBy column falls
// inside [From, To], newest first. A zero From is unbounded (epoch); a
// zero To defaults to now. No pagination envelope: callers get a flat,
// possibly empty list. The fetched window also hydrates the user's sync
// list cache, so later mutations and their reverts act on real pages.
func (s *ChatService) GetUserChatsByDate(input ChatsByDateInput) ([]model.Chat, error) {
	if input.UserID == "" {
		return nil, ErrInvalidInput
	}
	column, err := orderByColumn(input.OrderBy)
	if err != nil {
		return nil, err
	}

	from := input.From
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	to := input.To
	if to.IsZero() {
		to = time.Now()
	}
	limit := clampLimit(input.Limit)

	chats, err := s.chatRepo.ListByUserAndDateRange(input.UserID, from, to, column, limit)
	if err != nil {
		return nil, err
	}
	s.sync.Cache(input.UserID).Hydrate([]model.PaginatedData[model.Chat]{
		{Data: chats, HasNextPage: false},
	})
	return chats, nil
}

// ChatWithAccess is a chat plus the caller's relationship to it.
type ChatWithAccess struct {
	model.Chat
	IsOwner bool `json:"isOwner"`
}

// GetChatByID resolves a chat for userID. Owners always see their chat;
// anyone else sees it only while public. Private chats are reported as
// not accessible, a distinct condition from not found, without confirming
// anything else about them.
func (s *ChatService) GetChatByID(userID, chatID string, throwOnNotFound bool) (*ChatWithAccess, error) {
	if userID == "" || chatID == "" {
		return nil, ErrInvalidInput
	}
	chat, err := s.chatRepo.GetByID(chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		if throwOnNotFound {
			return nil, ErrChatNotFound
		}
		return nil, nil
	}
	if chat.UserID == userID {
		return &ChatWithAccess{Chat: *chat, IsOwner: true}, nil
	}
	if chat.Visibility == model.VisibilityPublic {
		return &ChatWithAccess{Chat: *chat, IsOwner: false}, nil
	}
	return nil, ErrChatNotAccessible
}

// RenameChat stores a new title for the owner's chat, truncating anything
// over 25 characters to the first 25 plus "...". The local chat-list cache
// is mutated optimistically and reverted if the store write fails.
func (s *ChatService) RenameChat(ctx context.Context, userID, chatID, title string) (string, error) {
	if userID == "" || chatID == "" {
		return "", ErrInvalidInput
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrInvalidInput
	}
	if _, err := s.ownedChat(userID, chatID); err != nil {
		return "", err
	}

	stored := truncateTitle(title)

	msg, err := syncer.NewMessage(syncer.TypeChatRenamed, syncer.ChatRenamedData{ChatID: chatID, Title: stored})
	if err != nil {
		return "", err
	}
	revert, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeLocal)
	if err != nil {
		return "", err
	}

	if err := s.chatRepo.UpdateTitle(chatID, stored); err != nil {
		revert()
		return "", err
	}

	s.invalidateChatTags(ctx, userID, chatID)
	if _, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeRemote); err != nil {
		log.Printf("broadcast rename failed: %v", err)
	}
	return stored, nil
}

// UpdateChatVisibility flips one chat between private and public, stamping
// visibleAt when it turns public.
func (s *ChatService) UpdateChatVisibility(ctx context.Context, userID, chatID, visibility string) error {
	if userID == "" || chatID == "" || !model.ValidVisibility(visibility) {
		return ErrInvalidInput
	}
	chat, err := s.ownedChat(userID, chatID)
	if err != nil {
		return err
	}

	visibleAt := chat.VisibleAt
	if visibility == model.VisibilityPublic {
		visibleAt = time.Now()
	}

	msg, err := syncer.NewMessage(syncer.TypeChatVisibilityChanged, syncer.ChatVisibilityData{
		ChatID:     chatID,
		Visibility: visibility,
		VisibleAt:  visibleAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	revert, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeLocal)
	if err != nil {
		return err
	}

	if err := s.chatRepo.UpdateVisibility(chatID, visibility, visibleAt); err != nil {
		revert()
		return err
	}

	s.invalidateChatTags(ctx, userID, chatID)
	if _, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeRemote); err != nil {
		log.Printf("broadcast visibility change failed: %v", err)
	}
	return nil
}

// UpdateManyChatsVisibility flips visibility on the given chats. Rows not
// owned by userID are never touched, whatever ids were passed; the count
// of actually updated rows is returned.
func (s *ChatService) UpdateManyChatsVisibility(ctx context.Context, userID string, chatIDs []string, visibility string) (int64, error) {
	if userID == "" || len(chatIDs) == 0 || !model.ValidVisibility(visibility) {
		return 0, ErrInvalidInput
	}

	visibleAt := time.Now()
	affected, err := s.chatRepo.UpdateManyVisibility(userID, chatIDs, visibility, visibleAt)
	if err != nil {
		return 0, err
	}

	s.invalidateUserTags(ctx, userID)
	for _, chatID := range chatIDs {
		msg, err := syncer.NewMessage(syncer.TypeChatVisibilityChanged, syncer.ChatVisibilityData{
			ChatID:     chatID,
			Visibility: visibility,
			VisibleAt:  visibleAt.Format(time.RFC3339),
		})
		if err != nil {
			continue
		}
		if _, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeBoth); err != nil {
			log.Printf("broadcast bulk visibility change failed: %v", err)
		}
	}
	return affected, nil
}

// SetAllUserChatsVisibility applies one visibility to every chat the user
// owns.
func (s *ChatService) SetAllUserChatsVisibility(ctx context.Context, userID, visibility string) (int64, error) {
	if userID == "" || !model.ValidVisibility(visibility) {
		return 0, ErrInvalidInput
	}

	affected, err := s.chatRepo.SetAllVisibility(userID, visibility, time.Now())
	if err != nil {
		return 0, err
	}
	s.invalidateUserTags(ctx, userID)
	return affected, nil
}

// DeleteChat removes the owner's chat and its messages, then hands the
// chat id to the cleanup queue so its storage directories in all three
// buckets are deleted off the critical path. Cache tags are invalidated
// whether or not that cleanup has settled.
func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID string) error {
	if userID == "" || chatID == "" {
		return ErrInvalidInput
	}
	if _, err := s.ownedChat(userID, chatID); err != nil {
		return err
	}

	msg, err := syncer.NewMessage(syncer.TypeChatDeleted, syncer.ChatDeletedData{ChatID: chatID})
	if err != nil {
		return err
	}
	revert, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeLocal)
	if err != nil {
		return err
	}

	if err := s.chatRepo.DeleteWithMessages(chatID); err != nil {
		revert()
		return err
	}

	if s.cleanup != nil {
		s.cleanup.Add(chatID)
	}
	s.invalidateChatTags(ctx, userID, chatID)
	if _, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeRemote); err != nil {
		log.Printf("broadcast delete failed: %v", err)
	}
	return nil
}

type CreateChatInput struct {
	UserID string
	Title  string
}

func (s *ChatService) CreateChat(ctx context.Context, input CreateChatInput) (*model.Chat, error) {
	if input.UserID == "" {
		return nil, ErrInvalidInput
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	chat := &model.Chat{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		Title:      truncateTitle(title),
		Visibility: model.VisibilityPrivate,
	}
	if err := s.chatRepo.Create(chat); err != nil {
		return nil, err
	}
	s.invalidateUserTags(ctx, chat.UserID)
	return chat, nil
}

type AddMessageInput struct {
	UserID  string
	ChatID  string
	Role    string
	Content string
}

// AddMessage appends a message to the owner's chat, charging the messages
// quota first. An exhausted quota surfaces as *ratelimit.Error.
func (s *ChatService) AddMessage(ctx context.Context, input AddMessageInput) (*model.Message, error) {
	if input.UserID == "" || input.ChatID == "" || strings.TrimSpace(input.Content) == "" {
		return nil, ErrInvalidInput
	}
	role := input.Role
	if role == "" {
		role = "user"
	}
	if _, err := s.ownedChat(input.UserID, input.ChatID); err != nil {
		return nil, err
	}
	if s.usage != nil {
		if err := s.usage.Consume(input.UserID, ratelimit.ReasonMessages, 1); err != nil {
			return nil, err
		}
	}

	message := &model.Message{
		ID:      uuid.NewString(),
		ChatID:  input.ChatID,
		UserID:  input.UserID,
		Role:    role,
		Content: input.Content,
	}
	if err := s.messageRepo.Create(message); err != nil {
		return nil, err
	}
	s.invalidateChatTags(ctx, input.UserID, input.ChatID)
	return message, nil
}

func (s *ChatService) GetChatMessages(userID, chatID string, limit int) ([]model.Message, error) {
	access, err := s.GetChatByID(userID, chatID, true)
	if err != nil {
		return nil, err
	}
	return s.messageRepo.ListByChatID(access.ID, limit)
}

// ownedChat loads the chat and enforces that userID owns it. Ownership
// failures do not reveal whether the chat exists beyond "not accessible".
func (s *ChatService) ownedChat(userID, chatID string) (*model.Chat, error) {
	chat, err := s.chatRepo.GetByID(chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	if chat.UserID != userID {
		return nil, ErrChatNotAccessible
	}
	return chat, nil
}

func (s *ChatService) invalidateChatTags(ctx context.Context, userID, chatID string) {
	if s.tagCache == nil {
		return
	}
	err := s.tagCache.Invalidate(ctx,
		cache.UserChat(chatID),
		cache.UserChats(userID),
		cache.UserSharedChats(userID),
	)
	if err != nil {
		log.Printf("invalidate chat tags failed: %v", err)
	}
	if err := s.tagCache.InvalidateScope(ctx, "user-chats-search", userID); err != nil {
		log.Printf("invalidate search tags failed: %v", err)
	}
}

func (s *ChatService) invalidateUserTags(ctx context.Context, userID string) {
	if s.tagCache == nil {
		return
	}
	err := s.tagCache.Invalidate(ctx,
		cache.UserChats(userID),
		cache.UserSharedChats(userID),
	)
	if err != nil {
		log.Printf("invalidate user tags failed: %v", err)
	}
	if err := s.tagCache.InvalidateScope(ctx, "user-chats-search", userID); err != nil {
		log.Printf("invalidate search tags failed: %v", err)
	}
}

// truncateTitle caps a title at 25 characters; longer titles keep their
// first 25 plus a literal "...", landing at 28. Exactly 25 is unchanged.
func truncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleLen {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleLen]) + "..."
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func orderByColumn(orderBy string) (string, error) {
	switch orderBy {
	case "", "createdAt":
		return "created_at", nil
	case "updatedAt":
		return "updated_at", nil
	default:
		return "", ErrInvalidInput
	}
}

// buildSnippet extracts a window around the first occurrence of query in
// source, case-insensitively, bounded to rune boundaries. When the term is
// absent (title fallback for content matches of other chats) the head of
// the source is used.
func buildSnippet(source, query string) string {
	idx := strings.Index(strings.ToLower(source), strings.ToLower(query))
	if idx < 0 {
		idx = 0
	}

	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(source[start]) {
		start--
	}

	end := idx + len(query) + snippetRadius
	if end > len(source) {
		end = len(source)
	}
	for end < len(source) && !utf8.RuneStart(source[end]) {
		end++
	}

	snippet := source[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(source) {
		snippet = snippet + "..."
	}
	return snippet
}
