package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatvault/internal/platform/objectstore"
	"chatvault/internal/ratelimit"
	"chatvault/internal/repository"
)

var (
	ErrFileTooLarge  = errors.New("file exceeds the size limit")
	ErrTooManyFiles  = errors.New("too many files in one upload")
	ErrEmptyUpload   = errors.New("upload contains no files")
	ErrUploadFailure = errors.New("file upload failed")
)

type UploadService struct {
	chatRepo    *repository.ChatRepository
	attachments objectstore.Store
	usage       quota
	maxFileSize int64
	maxFiles    int
}

type FileUpload struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
}

type UploadedFile struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url,omitempty"`
}

func NewUploadService(chatRepo *repository.ChatRepository, attachments objectstore.Store, usage quota, maxFileSizeMB, maxFiles int) *UploadService {
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 20
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &UploadService{
		chatRepo:    chatRepo,
		attachments: attachments,
		usage:       usage,
		maxFileSize: int64(maxFileSizeMB) << 20,
		maxFiles:    maxFiles,
	}
}

// UploadFiles stores the chat owner's attachments under the chat's storage
// prefix and charges the files quota. Validation happens entirely before
// the first byte is written.
func (s *UploadService) UploadFiles(ctx context.Context, userID, chatID string, files []FileUpload) ([]UploadedFile, error) {
	if userID == "" || chatID == "" {
		return nil, ErrInvalidInput
	}
	if len(files) == 0 {
		return nil, ErrEmptyUpload
	}
	if len(files) > s.maxFiles {
		return nil, ErrTooManyFiles
	}
	for _, f := range files {
		if f.Size > s.maxFileSize {
			return nil, ErrFileTooLarge
		}
	}

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

	if s.usage != nil {
		if err := s.usage.Consume(userID, ratelimit.ReasonFiles, int64(len(files))); err != nil {
			return nil, err
		}
	}

	uploaded := make([]UploadedFile, 0, len(files))
	for _, f := range files {
		key := ChatStoragePrefix(chatID) + uuid.NewString() + "-" + sanitizeFilename(f.Name)
		if err := s.attachments.Put(ctx, key, f.Reader, f.Size, f.ContentType); err != nil {
			return uploaded, fmt.Errorf("%w: %s", ErrUploadFailure, f.Name)
		}
		entry := UploadedFile{Key: key, Name: f.Name, Size: f.Size}
		if url, err := s.attachments.PresignGet(ctx, key, 15*time.Minute); err == nil {
			entry.URL = url
		}
		uploaded = append(uploaded, entry)
	}
	return uploaded, nil
}

// ChatStoragePrefix is the object-key prefix holding everything a chat has
// in storage. The cleanup worker deletes this prefix in every bucket.
func ChatStoragePrefix(chatID string) string {
	return "chats/" + chatID + "/"
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, `/`))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	return name
}
