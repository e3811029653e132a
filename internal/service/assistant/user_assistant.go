package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mentorgo/internal/logger"
	"mentorgo/internal/models"
	"mentorgo/internal/storage"
	"mentorgo/internal/validation"
)

const minPasswordLength = 6

// RegisterUser creates an email account together with its profile and
// default preferences. name becomes the screen name; it defaults to the
// local part of the email.
func (s *Service) RegisterUser(ctx context.Context, email, password, name string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if err := validation.Validate.Var(email, "email"); err != nil {
		return nil, fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters long", ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		AuthMethod:   models.AuthMethodEmail,
		IsVerified:   true,
		CreatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	name = validation.SanitizeInput(name, validation.DefaultMaxInput)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	profile := &models.Profile{UserID: user.ID, ScreenName: name, CreatedAt: now, UpdatedAt: now}
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	if err := s.store.UpsertPreferences(ctx, models.DefaultPreferences(user.ID)); err != nil {
		return nil, err
	}
	s.logger.Info("user_registered", zap.String("user_id", logger.SanitizeID(user.ID)))
	return user, nil
}

// Login validates credentials, stamps last_login and returns the user.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, mapNotFound(err, ErrInvalidCredentials)
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	now := s.now()
	if err := s.store.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return fmt.Errorf("%w: current password and new password are required", ErrInvalidInput)
	}
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: new password must be at least %d characters long", ErrInvalidInput, minPasswordLength)
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.AuthMethod == models.AuthMethodOAuth {
		return ErrOAuthAccount
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return mapNotFound(s.store.UpdateUserPassword(ctx, userID, string(hash)), ErrUserNotFound)
}

// ChangeEmail moves the account to a new address after checking the password.
func (s *Service) ChangeEmail(ctx context.Context, userID, newEmail, password string) error {
	newEmail = normalizeEmail(newEmail)
	if newEmail == "" || password == "" {
		return fmt.Errorf("%w: new email and password are required", ErrInvalidInput)
	}
	if err := validation.Validate.Var(newEmail, "email"); err != nil {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.AuthMethod == models.AuthMethodOAuth {
		return ErrOAuthAccount
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	if err := s.store.UpdateUserEmail(ctx, userID, newEmail); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return ErrEmailTaken
		}
		return mapNotFound(err, ErrUserNotFound)
	}
	return nil
}

// DeleteUser removes a user and cascaded data.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: invalid user id", ErrInvalidInput)
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return mapNotFound(err, ErrUserNotFound)
	}
	s.logger.Info("user_deleted", zap.String("user_id", logger.SanitizeID(userID)))
	return nil
}

// GetProfile returns the user's profile, creating an empty one on first access.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	now := s.now()
	profile = &models.Profile{UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetPreferences returns the user's preferences, creating the defaults on first access.
func (s *Service) GetPreferences(ctx context.Context, userID string) (*models.Preferences, error) {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	prefs = models.DefaultPreferences(userID)
	if err := s.store.UpsertPreferences(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// ProfileUpdate lists the profile fields a caller may change. Nil fields
// keep their stored value.
type ProfileUpdate struct {
	ScreenName    *string
	Pronouns      *string
	IdentityGoals *string
	FocusAreas    []string
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.Profile, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.ScreenName != nil {
		profile.ScreenName = validation.SanitizeInput(*upd.ScreenName, validation.DefaultMaxInput)
	}
	if upd.Pronouns != nil {
		profile.Pronouns = validation.SanitizeInput(*upd.Pronouns, validation.DefaultMaxInput)
	}
	if upd.IdentityGoals != nil {
		profile.IdentityGoals = validation.SanitizeInput(*upd.IdentityGoals, validation.DefaultMaxInput)
	}
	if upd.FocusAreas != nil {
		areas := make([]string, 0, len(upd.FocusAreas))
		for _, a := range upd.FocusAreas {
			if a = validation.SanitizeInput(a, validation.DefaultMaxInput); a != "" {
				areas = append(areas, a)
			}
		}
		profile.FocusArea = strings.Join(areas, ",")
	}
	profile.UpdatedAt = s.now()
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// PreferencesUpdate mirrors ProfileUpdate for reply preferences.
type PreferencesUpdate struct {
	ResponseLength     *models.ResponseLength
	CommunicationStyle *string
}

func (s *Service) UpdatePreferences(ctx context.Context, userID string, upd PreferencesUpdate) (*models.Preferences, error) {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.ResponseLength != nil {
		if err := validation.Validate.Var(string(*upd.ResponseLength), "response_length"); err != nil {
			return nil, fmt.Errorf("%w: invalid response length %q", ErrInvalidInput, *upd.ResponseLength)
		}
		prefs.ResponseLength = *upd.ResponseLength
	}
	if upd.CommunicationStyle != nil {
		style := validation.SanitizeInput(*upd.CommunicationStyle, validation.DefaultMaxInput)
		if style == "" {
			style = models.DefaultCommunicationStyle
		}
		prefs.CommunicationStyle = style
	}
	prefs.UpdatedAt = s.now()
	if err := s.store.UpsertPreferences(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
