package users

import (
	"regexp"
	"strings"

	"jobportal/internal/auth"
	"jobportal/internal/errcode"
)

const passwordSpecials = "@$!%*?&"

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	fullNamePattern = regexp.MustCompile(`^[A-Za-z\s]+$`)
)

// Registration is the raw sign-up input.
type Registration struct {
	FullName string
	Email    string
	Password string
	Role     string
}

// RegistrationCheck records, per input field, whether it passed validation.
type RegistrationCheck struct {
	FullName    bool
	Email       bool
	EmailDomain bool
	Password    bool
	Role        bool
}

// ValidateRegistration checks every field of in. An empty requiredDomain
// accepts any email domain.
func ValidateRegistration(in Registration, requiredDomain string) RegistrationCheck {
	_, roleOK := auth.ParseRole(in.Role)
	return RegistrationCheck{
		FullName:    ValidFullName(in.FullName),
		Email:       ValidEmail(in.Email),
		EmailDomain: InDomain(in.Email, requiredDomain),
		Password:    ValidPassword(in.Password),
		Role:        roleOK,
	}
}

// OK reports whether every field passed.
func (c RegistrationCheck) OK() bool {
	return c.FullName && c.Email && c.EmailDomain && c.Password && c.Role
}

// Err returns a validation error describing the first failing field, or nil.
func (c RegistrationCheck) Err() error {
	switch {
	case !c.Role:
		return errcode.Invalid(`Validation failed. Type must be "admin" or "employee".`)
	case !c.Email:
		return errcode.Invalid("Validation failed. Invalid email format.")
	case !c.EmailDomain:
		return errcode.Invalid("Validation failed. Email domain is not allowed.")
	case !c.FullName:
		return errcode.Invalid("Validation failed. Full name may contain letters and spaces only.")
	case !c.Password:
		return errcode.Invalid("Validation failed. Password must be at least 8 characters with upper and lower case letters, a digit and one of " + passwordSpecials + ".")
	}
	return nil
}

// ValidEmail reports whether email looks like local@host.tld.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// InDomain reports whether email belongs to domain (case-insensitive).
func InDomain(email, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "@")
	if domain == "" {
		return true
	}
	return strings.HasSuffix(NormalizeEmail(email), "@"+domain)
}

// ValidFullName accepts letters and spaces with at least one letter.
func ValidFullName(name string) bool {
	return strings.TrimSpace(name) != "" && fullNamePattern.MatchString(name)
}

// ValidPassword enforces length >= 8 with lower, upper, digit and special
// characters, drawn only from letters, digits and the special set.
func ValidPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}

// NormalizeEmail trims and lower-cases email; stored emails are always normalised.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
