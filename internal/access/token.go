package access

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
)

// Purpose binds an access token to a single kind of action.
type Purpose string

const (
	PurposePortal        Purpose = "member_portal_access"
	PurposePasswordSetup Purpose = "admin_password_setup"
	PurposePasswordReset Purpose = "admin_password_reset"
	PurposeSignup        Purpose = "opportunity_signup"
	PurposePoll          Purpose = "poll_response"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposePortal, PurposePasswordSetup, PurposePasswordReset, PurposeSignup, PurposePoll:
		return true
	}
	return false
}

// SingleUse reports whether tokens with this purpose are consumed on use.
// Poll tokens stay usable so members can change their vote.
func (p Purpose) SingleUse() bool {
	return p != PurposePoll
}

// Path returns the first path segment of links for this purpose.
func (p Purpose) Path() string {
	switch p {
	case PurposePortal:
		return "portal"
	case PurposePasswordSetup:
		return "set-password"
	case PurposePasswordReset:
		return "reset-password"
	case PurposeSignup:
		return "signup"
	case PurposePoll:
		return "vote"
	}
	return ""
}

// Token is the stored state of an access token. The token value itself
// is never stored, only its digest.
type Token struct {
	ID         uuid.UUID
	Digest     string
	Purpose    Purpose
	Subject    email.Address
	TenantID   uuid.NullUUID
	ContextRef uuid.NullUUID
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Usable returns nil if the token can still be used at the given time.
func (t Token) Usable(now time.Time) error {
	if t.ConsumedAt != nil {
		return fmt.Errorf("token %s: %w", t.ID, errorz.ErrConsumed)
	}

	if now.After(t.ExpiresAt) {
		return fmt.Errorf("token %s: %w", t.ID, errorz.ErrExpired)
	}

	return nil
}

// Capability returns the principal that holding this token represents.
func (t Token) Capability() authz.TokenCapability {
	return authz.TokenCapability{
		Email:      t.Subject,
		TenantID:   t.TenantID,
		Purpose:    string(t.Purpose),
		ContextRef: t.ContextRef,
	}
}

// TokenFilter is used to filter access tokens.
// Returned tokens must match all the provided fields.
// If a field is empty or nil, it's ignored.
type TokenFilter struct {
	IDs         []uuid.UUID
	Digests     []string
	Purposes    []Purpose
	Subjects    []email.Address
	ContextRefs []uuid.UUID
	IsConsumed  *bool
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Find methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit() error
	Rollback() error

	CreateAccessToken(t *Token) error
	FindAccessTokens(filter *TokenFilter) ([]Token, error)
	// ConsumeAccessToken sets consumed_at if it is not set yet. It returns
	// errorz.ErrConsumed when the token was consumed before.
	ConsumeAccessToken(id uuid.UUID, at time.Time) error
	DeleteAccessToken(id uuid.UUID) error
}
