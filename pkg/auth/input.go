package auth

import (
	"fmt"
	"html"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Disposable domains rejected for new accounts.
var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"throwaway.email":   true,
}

// Stricter than RFC 5322 for practical use.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

const (
	maxEmailLength = 254 // RFC 5321
	maxNameLength  = 100
)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks an already normalized email for format and length and
// rejects disposable domains.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email address is required")
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("email address is too long (max %d characters)", maxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email address format")
	}
	if _, domain, ok := strings.Cut(email, "@"); ok && disposableDomains[domain] {
		return fmt.Errorf("disposable email addresses are not allowed")
	}
	return nil
}

// CleanName trims a display name, drops control characters and escapes HTML.
// It returns an error when the result is empty or too long.
func CleanName(field, name string) (string, error) {
	name = html.EscapeString(removeControlChars(strings.TrimSpace(name)))
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return "", fmt.Errorf("%s is required", field)
	case n > maxNameLength:
		return "", fmt.Errorf("%s must be at most %d characters long", field, maxNameLength)
	}
	return name, nil
}

// CleanText drops control characters other than newline and tab from free text.
func CleanText(s string) string {
	return removeControlChars(strings.TrimSpace(s))
}

func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
