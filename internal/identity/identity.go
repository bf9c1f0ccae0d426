// Package identity models who an order or enrollment belongs to.
package identity

import (
	"net/mail"
	"strings"
)

// Kind distinguishes guest checkouts from registered accounts.
type Kind string

const (
	KindGuest      Kind = "guest"
	KindRegistered Kind = "registered"
)

// Identity is either Guest(email) or Registered(id).
type Identity struct {
	Kind  Kind
	Value string
}

// Guest returns a guest identity keyed by the buyer's email.
func Guest(email string) Identity {
	return Identity{Kind: KindGuest, Value: strings.ToLower(strings.TrimSpace(email))}
}

// Registered returns an identity for an account id issued by the identity provider.
func Registered(id string) Identity {
	return Identity{Kind: KindRegistered, Value: id}
}

// IsGuest reports whether the identity is only an email address.
func (i Identity) IsGuest() bool { return i.Kind == KindGuest }

// String returns the stored user id: the account id, or the email for guests.
func (i Identity) String() string { return i.Value }

// Resolve picks the identity for a checkout. An authenticated id always wins.
// A claimed id that is empty or looks like an email falls back to Guest(email).
func Resolve(authUserID, claimedUserID, email string) Identity {
	if authUserID != "" {
		return Registered(authUserID)
	}
	claimed := strings.TrimSpace(claimedUserID)
	if claimed == "" || LooksLikeEmail(claimed) {
		return Guest(email)
	}
	return Registered(claimed)
}

// FromStored rebuilds an identity from a stored user id and kind tag.
// Unknown tags are inferred from the value's shape.
func FromStored(kind, value string) Identity {
	switch Kind(kind) {
	case KindGuest:
		return Guest(value)
	case KindRegistered:
		return Registered(value)
	}
	if LooksLikeEmail(value) {
		return Guest(value)
	}
	return Registered(value)
}

// LooksLikeEmail reports whether s parses as a bare email address.
func LooksLikeEmail(s string) bool {
	if !strings.Contains(s, "@") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
