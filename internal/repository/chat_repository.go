package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"chatvault/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(chat *model.Chat) error {
	if err := r.db.Create(chat).Error; err != nil {
		return fmt.Errorf("create chat failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.Where("id = ?", chatID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}
	return &chat, nil
}

// Search fetches one page of chats owned by userID matching query by title
// or whose id is in contentIDs. Results descend strictly by (created_at, id);
// the cursor filter is strict-less on the same compound key so rows sharing
// a timestamp are neither skipped nor duplicated across pages. Callers pass
// limit+1 to detect a next page in one round trip.
func (r *ChatRepository) Search(userID, query string, contentIDs []string, cursor *model.Cursor, limit int) ([]model.Chat, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	tx := r.db.Where("user_id = ?", userID)
	if len(contentIDs) > 0 {
		tx = tx.Where(`id IN ? OR LOWER(title) LIKE ? ESCAPE '\'`, contentIDs, pattern)
	} else {
		tx = tx.Where(`LOWER(title) LIKE ? ESCAPE '\'`, pattern)
	}
	if cursor != nil {
		tx = tx.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.Date, cursor.Date, cursor.ID)
	}

	var chats []model.Chat
	if err := tx.Order("created_at DESC, id DESC").Limit(limit).Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("search chats failed: %w", err)
	}
	return chats, nil
}

// FirstContentMatches returns the distinct ids of the user's chats that have
// a message whose content contains query (case-insensitive), together with
// the content of the first matching message per chat. Duplicate chat ids
// from multiple matching messages are collapsed; the earliest match wins.
func (r *ChatRepository) FirstContentMatches(userID, query string) ([]string, map[string]string, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var rows []struct {
		ChatID  string
		Content string
	}
	err := r.db.Model(&model.Message{}).
		Select("chat_id", "content").
		Where(`user_id = ? AND LOWER(content) LIKE ? ESCAPE '\'`, userID, pattern).
		Order("created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("search messages failed: %w", err)
	}

	ids := make([]string, 0, len(rows))
	firstMatch := make(map[string]string, len(rows))
	for _, row := range rows {
		if _, seen := firstMatch[row.ChatID]; seen {
			continue
		}
		firstMatch[row.ChatID] = row.Content
		ids = append(ids, row.ChatID)
	}
	return ids, firstMatch, nil
}

// ListSharedByUser returns the [offset, offset+limit) window of the user's
// public chats ordered by visible_at descending, plus the exact total count.
func (r *ChatRepository) ListSharedByUser(userID string, offset, limit int) ([]model.Chat, int64, error) {
	base := r.db.Model(&model.Chat{}).
		Where("user_id = ? AND visibility = ?", userID, model.VisibilityPublic)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count shared chats failed: %w", err)
	}

	var chats []model.Chat
	err := base.
		Order("visible_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&chats).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list shared chats failed: %w", err)
	}
	return chats, total, nil
}

// ListByUserAndDateRange returns the user's chats with orderBy column inside
// [from, to], newest first, capped at limit. orderBy must be a validated
// column name; the service layer maps the API enum to it.
func (r *ChatRepository) ListByUserAndDateRange(userID string, from, to time.Time, orderBy string, limit int) ([]model.Chat, error) {
	var chats []model.Chat
	err := r.db.
		Where("user_id = ?", userID).
		Where(fmt.Sprintf("%s BETWEEN ? AND ?", orderBy), from, to).
		Order(orderBy + " DESC").
		Limit(limit).
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("list chats by date failed: %w", err)
	}
	return chats, nil
}

func (r *ChatRepository) UpdateTitle(chatID, title string) error {
	if err := r.db.Model(&model.Chat{}).Where("id = ?", chatID).Update("title", title).Error; err != nil {
		return fmt.Errorf("update chat title failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) UpdateVisibility(chatID, visibility string, visibleAt time.Time) error {
	updates := map[string]any{"visibility": visibility, "visible_at": visibleAt}
	if err := r.db.Model(&model.Chat{}).Where("id = ?", chatID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update chat visibility failed: %w", err)
	}
	return nil
}

// UpdateManyVisibility flips visibility on the given chats, touching only
// rows owned by userID regardless of what ids were passed in.
func (r *ChatRepository) UpdateManyVisibility(userID string, chatIDs []string, visibility string, visibleAt time.Time) (int64, error) {
	if len(chatIDs) == 0 {
		return 0, nil
	}
	updates := map[string]any{"visibility": visibility, "visible_at": visibleAt}
	res := r.db.Model(&model.Chat{}).
		Where("user_id = ? AND id IN ?", userID, chatIDs).
		Updates(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("update many chats visibility failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *ChatRepository) SetAllVisibility(userID, visibility string, visibleAt time.Time) (int64, error) {
	updates := map[string]any{"visibility": visibility, "visible_at": visibleAt}
	res := r.db.Model(&model.Chat{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("set all chats visibility failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteWithMessages removes the chat's messages and then the chat row in
// one transaction. Object storage cleanup is the caller's concern.
func (r *ChatRepository) DeleteWithMessages(chatID string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("delete chat messages failed: %w", err)
		}
		if err := tx.Where("id = ?", chatID).Delete(&model.Chat{}).Error; err != nil {
			return fmt.Errorf("delete chat failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete chat transaction failed: %w", err)
	}
	return nil
}

// escapeLike neutralizes LIKE wildcards in user-supplied search terms.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
