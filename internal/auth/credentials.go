package auth

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 16
)

var (
	passwordDigit   = regexp.MustCompile(`[0-9]`)
	passwordSpecial = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// Credentials is the transient state of the email sign-in flow. It is never persisted.
type Credentials struct {
	Email         string
	IsEmailValid  *bool
	Password      string
	PasswordError string
	EmailSignIn   bool
	UserExists    bool
	OAuthEnabled  bool
}

// ResetCredentials returns the empty credential set.
func ResetCredentials() Credentials {
	return Credentials{}
}

// VerifyPassword returns a user-facing complaint about password, or "" when it is acceptable.
func VerifyPassword(password string) string {
	if n := utf8.RuneCountInString(password); n < minPasswordLength || n > maxPasswordLength {
		return fmt.Sprintf("The password should be between %d and %d characters", minPasswordLength, maxPasswordLength)
	}
	if !passwordDigit.MatchString(password) || !passwordSpecial.MatchString(password) {
		return "Please include at least a number and a special character in your password"
	}
	return ""
}
