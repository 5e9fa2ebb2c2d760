package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrNameTooShort     = errors.New("name must be at least 2 characters")
	ErrNameTooLong      = errors.New("name must be at most 100 characters")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
)

// ValidateEmail checks that an email address is well-formed
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateName checks that a display name is a sensible length
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 2 {
		return ErrNameTooShort
	}
	if n > 100 {
		return ErrNameTooLong
	}
	return nil
}

// ValidatePassword checks minimum password length
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}
