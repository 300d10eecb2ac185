package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// MinPasswordLength matches the hosted provider's default policy.
const MinPasswordLength = 6

var (
	emailRules    = []validation.Rule{validation.Required, is.EmailFormat}
	passwordRules = []validation.Rule{validation.Required, validation.Length(MinPasswordLength, 72)}

	errPasswordsDiffer = errors.New("passwords don't match")
)

type SignUpData struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (data SignUpData) Validate() error {
	data.Email = normaliseEmail(data.Email)
	return validation.ValidateStruct(&data,
		validation.Field(&data.Email, emailRules...),
		validation.Field(&data.Password, passwordRules...),
		validation.Field(&data.ConfirmPassword, validation.Required, matches(data.Password)),
	)
}

type SignInData struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (data SignInData) Validate() error {
	data.Email = normaliseEmail(data.Email)
	return validation.ValidateStruct(&data,
		validation.Field(&data.Email, emailRules...),
		validation.Field(&data.Password, validation.Required),
	)
}

type ForgotPasswordData struct {
	Email string `json:"email"`
}

func (data ForgotPasswordData) Validate() error {
	data.Email = normaliseEmail(data.Email)
	return validation.ValidateStruct(&data, validation.Field(&data.Email, emailRules...))
}

type UpdatePasswordData struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (data UpdatePasswordData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.Password, passwordRules...),
		validation.Field(&data.ConfirmPassword, validation.Required, matches(data.Password)),
	)
}

type RefreshData struct {
	RefreshToken string `json:"refreshToken"`
}

func (data RefreshData) Validate() error {
	return validation.ValidateStruct(&data, validation.Field(&data.RefreshToken, validation.Required))
}

// OAuthProviders lists the identity providers users can sign in with.
var OAuthProviders = []interface{}{"google", "github", "apple"}

func validateOAuthProvider(provider string) error {
	return validation.Validate(provider, validation.Required, validation.In(OAuthProviders...))
}

func matches(password string) validation.Rule {
	return validation.By(func(value interface{}) error {
		if confirmation, _ := value.(string); confirmation != password {
			return errPasswordsDiffer
		}
		return nil
	})
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// defaultName derives a display name from the local part of an email address.
func defaultName(email string) string {
	var local, _, _ = strings.Cut(email, "@")
	if local = strings.TrimSpace(local); local == "" {
		return "Reader"
	}
	return truncate(local, 50)
}

// displayName prefers the names OAuth providers put in the user's metadata.
func displayName(user AuthUser) string {
	for _, key := range []string{"full_name", "name", "user_name"} {
		if name, ok := user.UserMetadata[key].(string); ok && strings.TrimSpace(name) != "" {
			return truncate(strings.TrimSpace(name), 50)
		}
	}
	return defaultName(user.Email)
}

func truncate(s string, runes int) string {
	if r := []rune(s); len(r) > runes {
		return string(r[:runes])
	}
	return s
}
