package access

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/krypto"
	"github.com/willemschots/volunteerhub/internal/obs"
)

// Config is the configuration for the Service.
type Config struct {
	// BaseURL is used to construct the links that are emailed.
	BaseURL *url.URL

	PortalTTL   time.Duration
	PasswordTTL time.Duration
	SignupTTL   time.Duration
	// PollTTL is used for polls without an expiry.
	PollTTL time.Duration
}

// DefaultConfig returns the default token lifetimes.
func DefaultConfig(baseURL *url.URL) Config {
	return Config{
		BaseURL:     baseURL,
		PortalTTL:   2 * time.Hour,
		PasswordTTL: 24 * time.Hour,
		SignupTTL:   30 * 24 * time.Hour,
		PollTTL:     30 * 24 * time.Hour,
	}
}

// Service issues and validates access tokens. It does not manage
// transactions itself, callers pass in the transaction the token
// work should be part of.
type Service struct {
	cfg Config

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(cfg Config) *Service {
	return &Service{
		cfg:     cfg,
		NowFunc: time.Now,
	}
}

// TTL returns the lifetime of new tokens with purpose p.
func (s *Service) TTL(p Purpose) time.Duration {
	switch p {
	case PurposePortal:
		return s.cfg.PortalTTL
	case PurposePasswordSetup, PurposePasswordReset:
		return s.cfg.PasswordTTL
	case PurposeSignup:
		return s.cfg.SignupTTL
	default:
		return s.cfg.PollTTL
	}
}

// Request describes a token to issue.
type Request struct {
	Purpose    Purpose
	Subject    email.Address
	TenantID   uuid.NullUUID
	ContextRef uuid.NullUUID
	// ExpiresAt overrides the default lifetime when set.
	ExpiresAt time.Time
}

// Issued is a newly created token. Value and URL contain the secret and
// should only end up in the email to the subject.
type Issued struct {
	Token Token
	Value krypto.Token
	URL   string
}

// Issue creates a new token in tx.
func (s *Service) Issue(tx Tx, req Request) (Issued, error) {
	if !req.Purpose.Valid() {
		return Issued{}, fmt.Errorf("unknown purpose %q", req.Purpose)
	}

	value, err := krypto.GenerateToken()
	if err != nil {
		return Issued{}, err
	}

	now := s.NowFunc()
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.TTL(req.Purpose))
	}

	tok := Token{
		ID:         uuid.New(),
		Digest:     value.Digest(),
		Purpose:    req.Purpose,
		Subject:    req.Subject,
		TenantID:   req.TenantID,
		ContextRef: req.ContextRef,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}

	err = tx.CreateAccessToken(&tok)
	if err != nil {
		return Issued{}, err
	}

	obs.TokensIssued.WithLabelValues(string(req.Purpose)).Inc()

	return Issued{
		Token: tok,
		Value: value,
		URL:   s.cfg.BaseURL.JoinPath(req.Purpose.Path(), value.String()).String(),
	}, nil
}

// Validate looks up the token with the raw value and checks that it can
// be used for purpose p. Unknown values and purpose mismatches result in
// errorz.ErrNotFound. Validate does not consume the token.
func (s *Service) Validate(tx Tx, raw string, p Purpose) (Token, error) {
	tok, err := s.validate(tx, raw, p)
	outcome := obs.OutcomeOK
	if err != nil {
		outcome = checkOutcome(err)
	}
	obs.TokenChecks.WithLabelValues(string(p), outcome).Inc()

	return tok, err
}

func (s *Service) validate(tx Tx, raw string, p Purpose) (Token, error) {
	value, err := krypto.ParseToken(raw)
	if err != nil {
		return Token{}, fmt.Errorf("malformed token: %w", errorz.ErrNotFound)
	}

	tokens, err := tx.FindAccessTokens(&TokenFilter{
		Digests: []string{value.Digest()},
	})
	if err != nil {
		return Token{}, err
	}

	if len(tokens) != 1 || tokens[0].Purpose != p {
		return Token{}, fmt.Errorf("no %s token: %w", p, errorz.ErrNotFound)
	}

	tok := tokens[0]
	err = tok.Usable(s.NowFunc())
	if err != nil {
		return Token{}, err
	}

	return tok, nil
}

// Consume marks a single-use token as consumed. Multi-use tokens are left untouched.
func (s *Service) Consume(tx Tx, tok Token) error {
	if !tok.Purpose.SingleUse() {
		return nil
	}

	return tx.ConsumeAccessToken(tok.ID, s.NowFunc())
}

// Revoke deletes a token, used when the email containing it could not be sent.
func (s *Service) Revoke(tx Tx, id uuid.UUID) error {
	return tx.DeleteAccessToken(id)
}

func checkOutcome(err error) string {
	switch {
	case errors.Is(err, errorz.ErrNotFound):
		return "not_found"
	case errors.Is(err, errorz.ErrConsumed):
		return "consumed"
	case errors.Is(err, errorz.ErrExpired):
		return "expired"
	default:
		return obs.OutcomeError
	}
}
