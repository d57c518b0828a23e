package app

import (
	"time"

	"chatvault/internal/model"
	"chatvault/internal/ratelimit"
	"chatvault/internal/repository"
)

// UsageService maintains the per-user quota counters. Periods are fixed
// windows: when a consume call arrives past periodEnd the counters reset
// and a new window starts at that instant.
type UsageService struct {
	repo   *repository.UsageRepository
	period time.Duration

	messagesLimit int64
	tokensLimit   int64
	filesLimit    int64
}

func NewUsageService(repo *repository.UsageRepository, period time.Duration, messagesLimit, tokensLimit, filesLimit int64) *UsageService {
	if period <= 0 {
		period = 30 * 24 * time.Hour
	}
	return &UsageService{
		repo:          repo,
		period:        period,
		messagesLimit: messagesLimit,
		tokensLimit:   tokensLimit,
		filesLimit:    filesLimit,
	}
}

// Consume charges n units of kind against the user's counters. When the
// charge lands over the limit the counter row is marked over-limit and a
// *ratelimit.Error carrying the retry window is returned.
func (s *UsageService) Consume(userID, kind string, n int64) error {
	if userID == "" || n <= 0 {
		return ErrInvalidInput
	}

	now := time.Now()
	counter, err := s.repo.GetByUserID(userID)
	if err != nil {
		return err
	}
	if counter == nil {
		counter = &model.UsageCounter{
			UserID:      userID,
			PeriodStart: now,
			PeriodEnd:   now.Add(s.period),
		}
	} else if now.After(counter.PeriodEnd) {
		counter.MessagesCounter = 0
		counter.TokensCounter = 0
		counter.FilesCounter = 0
		counter.IsOverLimit = false
		counter.PeriodStart = now
		counter.PeriodEnd = now.Add(s.period)
	}

	var used, limit int64
	switch kind {
	case ratelimit.ReasonMessages:
		counter.MessagesCounter += n
		used, limit = counter.MessagesCounter, s.messagesLimit
	case ratelimit.ReasonTokens:
		counter.TokensCounter += n
		used, limit = counter.TokensCounter, s.tokensLimit
	case ratelimit.ReasonFiles:
		counter.FilesCounter += n
		used, limit = counter.FilesCounter, s.filesLimit
	default:
		return ErrInvalidInput
	}

	if limit > 0 && used > limit {
		counter.IsOverLimit = true
		if err := s.repo.Save(counter); err != nil {
			return err
		}
		return &ratelimit.Error{
			Reason:      kind,
			PeriodStart: counter.PeriodStart,
			PeriodEnd:   counter.PeriodEnd,
		}
	}

	return s.repo.Save(counter)
}

func (s *UsageService) Get(userID string) (*model.UsageCounter, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	counter, err := s.repo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		now := time.Now()
		counter = &model.UsageCounter{
			UserID:      userID,
			PeriodStart: now,
			PeriodEnd:   now.Add(s.period),
		}
	}
	return counter, nil
}
