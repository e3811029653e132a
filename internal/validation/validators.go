package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"mentorgo/internal/models"
)

const (
	// DefaultMaxInput bounds free-text profile and feedback fields.
	DefaultMaxInput = 1000
	// MaxMessageLength bounds a single chat message.
	MaxMessageLength = 2000
	MaxTitleLength   = 200
)

var (
	// Validate is a shared validator instance.
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()
	// Report json names so errors match the request body.
	Validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := Validate.RegisterValidation("response_length", validateResponseLength); err != nil {
		panic(fmt.Sprintf("failed to register response_length validator: %v", err))
	}
	if err := Validate.RegisterValidation("chat_mode", validateChatMode); err != nil {
		panic(fmt.Sprintf("failed to register chat_mode validator: %v", err))
	}
	if err := Validate.RegisterValidation("mood", validateMood); err != nil {
		panic(fmt.Sprintf("failed to register mood validator: %v", err))
	}
}

func validateResponseLength(fl validator.FieldLevel) bool {
	switch models.ResponseLength(fl.Field().String()) {
	case models.ResponseShort, models.ResponseMedium, models.ResponseDetailed:
		return true
	default:
		return false
	}
}

func validateChatMode(fl validator.FieldLevel) bool {
	switch models.ChatMode(fl.Field().String()) {
	case models.ChatModeMentor, models.ChatModeBestFriend, models.ChatModeChallenge:
		return true
	default:
		return false
	}
}

func validateMood(fl validator.FieldLevel) bool {
	return IsMood(fl.Field().String())
}

// IsMood reports whether s is one of the stored summary moods.
func IsMood(s string) bool {
	switch models.Mood(s) {
	case models.MoodPositive, models.MoodNeutral, models.MoodNegative:
		return true
	default:
		return false
	}
}

// Struct validates v and flattens the first failure into a readable error.
func Struct(v interface{}) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid %s: failed %q", fe.Field(), fe.Tag())
	}
	return err
}

// SanitizeInput strips markup-significant quote/angle characters and control
// characters, caps the result at maxLength runes and trims it.
func SanitizeInput(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxInput
	}
	var b strings.Builder
	n := 0
	for _, r := range text {
		if n >= maxLength {
			break
		}
		switch r {
		case '<', '>', '"', '\'':
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
