package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mentorgo/internal/models"
	"mentorgo/internal/storage"
	"mentorgo/internal/validation"
)

type FeedbackInput struct {
	SessionID   string
	Rating      int
	Comments    string
	Suggestions string
	Category    string
}

// SubmitFeedback stores write-once feedback. Without a session id the most
// recently completed session is linked, when there is one.
func (s *Service) SubmitFeedback(ctx context.Context, userID string, in FeedbackInput) (*models.Feedback, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}

	sessionID := in.SessionID
	if sessionID != "" {
		if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
			return nil, err
		}
	} else {
		latest, err := s.store.LatestCompletedSession(ctx, userID)
		switch {
		case err == nil:
			sessionID = latest.ID
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}

	fb := &models.Feedback{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionID:   sessionID,
		Rating:      in.Rating,
		Comments:    validation.SanitizeInput(in.Comments, validation.DefaultMaxInput),
		Suggestions: validation.SanitizeInput(in.Suggestions, validation.DefaultMaxInput),
		Category:    validation.SanitizeInput(in.Category, validation.DefaultMaxInput),
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateFeedback(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}
