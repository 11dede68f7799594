package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/errorz"
)

// CreateAccessToken stores a new access token.
func (t *Tx) CreateAccessToken(tok *access.Token) error {
	if tok.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO access_tokens (id, token_digest, purpose, subject_email, tenant_id, context_ref, issued_at, expires_at, consumed_at) VALUES (`)
	q.Params(tok.ID, tok.Digest, tok.Purpose, tok.Subject, tok.TenantID, tok.ContextRef, utc(tok.IssuedAt), utc(tok.ExpiresAt), utcPtr(tok.ConsumedAt))
	q.Unsafe(`)`)

	_, err := t.exec(&q)
	return err
}

// FindAccessTokens queries for access tokens based on the provided filter.
// It returns an empty slice if no tokens are found.
func (t *Tx) FindAccessTokens(f *access.TokenFilter) ([]access.Token, error) {
	var q db.Query
	q.Unsafe(`SELECT id, token_digest, purpose, subject_email, tenant_id, context_ref, issued_at, expires_at, consumed_at FROM access_tokens WHERE 1=1`)

	db.In(&q, "id", f.IDs)
	db.In(&q, "token_digest", f.Digests)
	db.In(&q, "purpose", f.Purposes)
	db.In(&q, "subject_email", f.Subjects)
	db.In(&q, "context_ref", f.ContextRefs)

	if f.IsConsumed != nil {
		q.Unsafe(" AND consumed_at IS ")
		if *f.IsConsumed {
			q.Unsafe("NOT ")
		}
		q.Unsafe("NULL")
	}

	q.Unsafe(` ORDER BY issued_at ASC, id ASC`)

	return query(t, &q, func(rows *sql.Rows) (access.Token, error) {
		var tok access.Token
		err := rows.Scan(&tok.ID, &tok.Digest, &tok.Purpose, &tok.Subject, &tok.TenantID, &tok.ContextRef, &tok.IssuedAt, &tok.ExpiresAt, &tok.ConsumedAt)
		return tok, err
	})
}

// ConsumeAccessToken marks the token as consumed, unless it already was.
func (t *Tx) ConsumeAccessToken(id uuid.UUID, at time.Time) error {
	var q db.Query
	q.Unsafe(`UPDATE access_tokens SET consumed_at = `)
	q.Param(utc(at))
	q.Unsafe(` WHERE consumed_at IS NULL AND id = `)
	q.Param(id)

	rows, err := t.exec(&q)
	if err != nil {
		return err
	}

	if rows == 0 {
		return fmt.Errorf("token %s: %w", id, errorz.ErrConsumed)
	}

	return nil
}

// DeleteAccessToken removes a token.
func (t *Tx) DeleteAccessToken(id uuid.UUID) error {
	var q db.Query
	q.Unsafe(`DELETE FROM access_tokens WHERE id = `)
	q.Param(id)

	return t.execOne(&q, "access token")
}
