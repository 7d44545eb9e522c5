package identity

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier indicates the input could not be resolved to a Goodreads identity.
var ErrInvalidIdentifier = errors.New("identity: invalid identifier")

// Kind discriminates the two identifier namespaces. A numeric platform ID and
// a username are never considered equal, even when they name the same profile.
type Kind string

const (
	// KindNumeric is a Goodreads numeric user id (three or more digits).
	KindNumeric Kind = "numeric"
	// KindUsername is a vanity handle chosen by the user.
	KindUsername Kind = "username"
)

const usernameTagPrefix = "username:"

// CanonicalID is the normalized form of a user-supplied profile reference.
type CanonicalID struct {
	Kind  Kind
	Value string
}

// Numeric wraps a digit-string user id.
func Numeric(digits string) CanonicalID {
	return CanonicalID{Kind: KindNumeric, Value: digits}
}

// Username wraps a vanity handle.
func Username(handle string) CanonicalID {
	return CanonicalID{Kind: KindUsername, Value: handle}
}

// IsZero reports whether the identifier is unset.
func (id CanonicalID) IsZero() bool {
	return id.Value == ""
}

// String renders the storage form: bare digits for numeric ids and a
// "username:" tagged handle otherwise, so the two namespaces never collide
// as persistence keys.
func (id CanonicalID) String() string {
	if id.Kind == KindUsername {
		return usernameTagPrefix + id.Value
	}
	return id.Value
}

var (
	userShowPattern     = regexp.MustCompile(`/user/show/(\d+)`)
	profilePathPattern  = regexp.MustCompile(`^/([A-Za-z][A-Za-z0-9_-]*)$`)
	idWithSlugPattern   = regexp.MustCompile(`(?i)^(\d{3,})(?:-[a-z0-9-]+)?$`)
	bareUsernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	looseDigitPattern   = regexp.MustCompile(`(?:^|[^0-9A-Za-z])(\d{3,})(?:[^0-9A-Za-z]|$)`)
)

// Extract parses free-form input into a canonical identifier. Supported
// shapes, in priority order:
//
//	42944663
//	42944663-ben-wallace
//	https://www.goodreads.com/user/show/42944663-ben-wallace
//	https://www.goodreads.com/user/show/42944663
//	https://www.goodreads.com/bewal416
//	bewal416
//	any string containing a standalone run of 3+ digits
//
// The second return value is false when no identifier could be found.
func Extract(input string) (CanonicalID, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return CanonicalID{}, false
	}

	if parsed, err := url.Parse(trimmed); err == nil && isGoodreadsHost(parsed.Hostname()) {
		if match := userShowPattern.FindStringSubmatch(parsed.Path); match != nil {
			return Numeric(match[1]), true
		}
		if match := profilePathPattern.FindStringSubmatch(parsed.Path); match != nil {
			return Username(match[1]), true
		}
		// Unrecognized goodreads path shapes fall through to the token rules.
	}

	if match := idWithSlugPattern.FindStringSubmatch(trimmed); match != nil {
		return Numeric(match[1]), true
	}

	if bareUsernamePattern.MatchString(trimmed) {
		return Username(trimmed), true
	}

	// Last resort: a standalone digit run embedded anywhere in the input.
	// Runs butted against letters (as in "123abc") do not count.
	if match := looseDigitPattern.FindStringSubmatch(trimmed); match != nil {
		return Numeric(match[1]), true
	}

	return CanonicalID{}, false
}

// Parse is the caller-facing validator: it applies Extract and rejects any
// result that is not a numeric id of at least three digits or a letter-first
// username.
func Parse(raw string) (CanonicalID, error) {
	id, ok := Extract(raw)
	if !ok {
		return CanonicalID{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, strings.TrimSpace(raw))
	}
	switch id.Kind {
	case KindNumeric:
		if len(id.Value) < 3 {
			return CanonicalID{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
		}
	case KindUsername:
		if !bareUsernamePattern.MatchString(id.Value) {
			return CanonicalID{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
		}
	default:
		return CanonicalID{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	return id, nil
}

func isGoodreadsHost(hostname string) bool {
	return hostname == "goodreads.com" || hostname == "www.goodreads.com"
}
