package assistant

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"mentorgo/internal/logger"
	"mentorgo/internal/service/ai"
	"mentorgo/internal/storage"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already in use")
	// ErrOAuthAccount is returned when a password-based operation targets an
	// account that signs in through a third party.
	ErrOAuthAccount = errors.New("operation not available for oauth accounts")
)

const defaultHistoryLimit = 20

// Options carries the optional collaborators of Service. Zero values fall
// back to the deterministic, model-free behavior.
type Options struct {
	Composer     *ai.ResponseComposer
	Summaries    *ai.SummaryAnalyzer
	HistoryLimit int
	Logger       *zap.Logger
}

// Service handles user lifecycle, sessions, chat turns and summaries.
type Service struct {
	store        storage.Store
	composer     *ai.ResponseComposer
	summaries    *ai.SummaryAnalyzer
	locks        *keyedMutex
	historyLimit int
	logger       *zap.Logger
	now          func() time.Time
}

// NewService builds a new assistant service.
func NewService(store storage.Store, opts Options) *Service {
	log := logger.OrNop(opts.Logger)
	composer := opts.Composer
	if composer == nil {
		composer = ai.NewResponseComposer(nil, nil, log)
	}
	summaries := opts.Summaries
	if summaries == nil {
		summaries = ai.NewSummaryAnalyzer(nil, log)
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &Service{
		store:        store,
		composer:     composer,
		summaries:    summaries,
		locks:        newKeyedMutex(),
		historyLimit: limit,
		logger:       log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the persistence layer for collaborators such as analytics.
func (s *Service) Store() storage.Store {
	return s.store
}

func mapNotFound(err, target error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return target
	}
	return err
}
