package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/poll"
)

// CreatePoll stores a new poll.
func (t *Tx) CreatePoll(p *poll.Poll) error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	options, err := json.Marshal(p.Options)
	if err != nil {
		return err
	}

	var q db.Query
	q.Unsafe(`INSERT INTO polls (id, tenant_id, question, kind, options, anonymous, status, expires_at, response_count, created_at, updated_at) VALUES (`)
	q.Params(p.ID, p.TenantID, p.Question, p.Kind, string(options), p.Anonymous, p.Status, utcPtr(p.ExpiresAt), p.ResponseCount, utc(p.CreatedAt), utc(p.UpdatedAt))
	q.Unsafe(`)`)

	_, err = t.exec(&q)
	return err
}

// UpdatePollStatus changes the status of a poll.
// It returns errorz.ErrNotFound if no poll is found.
func (t *Tx) UpdatePollStatus(id uuid.UUID, status poll.Status, at time.Time) error {
	var q db.Query
	q.Unsafe(`UPDATE polls SET status = `)
	q.Param(status)
	q.Unsafe(`, updated_at = `)
	q.Param(utc(at))
	q.Unsafe(` WHERE id = `)
	q.Param(id)

	return t.execOne(&q, "poll")
}

// FindPolls queries for polls based on the provided filter.
// Newest polls come first.
func (t *Tx) FindPolls(f *poll.PollFilter) ([]poll.Poll, error) {
	var q db.Query
	q.Unsafe(`SELECT id, tenant_id, question, kind, options, anonymous, status, expires_at, response_count, created_at, updated_at FROM polls WHERE 1=1`)

	db.In(&q, "id", f.IDs)
	db.In(&q, "tenant_id", f.TenantIDs)
	db.In(&q, "status", f.Statuses)

	q.Unsafe(` ORDER BY created_at DESC, id ASC`)

	return query(t, &q, func(rows *sql.Rows) (poll.Poll, error) {
		var (
			p       poll.Poll
			options string
		)
		err := rows.Scan(&p.ID, &p.TenantID, &p.Question, &p.Kind, &options, &p.Anonymous, &p.Status, &p.ExpiresAt, &p.ResponseCount, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return p, err
		}

		err = json.Unmarshal([]byte(options), &p.Options)
		if err != nil {
			return p, fmt.Errorf("invalid options of poll %s: %w", p.ID, err)
		}

		return p, nil
	})
}

// IncrementResponseCount atomically adds one to the response count of a poll.
func (t *Tx) IncrementResponseCount(pollID uuid.UUID, at time.Time) error {
	var q db.Query
	q.Unsafe(`UPDATE polls SET response_count = response_count + 1, updated_at = `)
	q.Param(utc(at))
	q.Unsafe(` WHERE id = `)
	q.Param(pollID)

	return t.execOne(&q, "poll")
}

// CreateResponse stores a new, possibly empty, response.
func (t *Tx) CreateResponse(r *poll.Response) error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO poll_responses (id, poll_id, member_email, response, responded_at, updated_at) VALUES (`)
	q.Params(r.ID, r.PollID, r.MemberEmail, r.Value, utcPtr(r.RespondedAt), utcPtr(r.UpdatedAt))
	q.Unsafe(`)`)

	_, err := t.exec(&q)
	return err
}

// FindResponses queries for responses based on the provided filter.
func (t *Tx) FindResponses(f *poll.ResponseFilter) ([]poll.Response, error) {
	var q db.Query
	q.Unsafe(`SELECT id, poll_id, member_email, response, responded_at, updated_at FROM poll_responses WHERE 1=1`)

	db.In(&q, "poll_id", f.PollIDs)
	db.In(&q, "member_email", f.MemberEmails)

	q.Unsafe(` ORDER BY member_email ASC`)

	return query(t, &q, func(rows *sql.Rows) (poll.Response, error) {
		var r poll.Response
		err := rows.Scan(&r.ID, &r.PollID, &r.MemberEmail, &r.Value, &r.RespondedAt, &r.UpdatedAt)
		return r, err
	})
}

// RecordFirstResponse sets the first answer of a response.
func (t *Tx) RecordFirstResponse(id uuid.UUID, value string, at time.Time) error {
	var q db.Query
	q.Unsafe(`UPDATE poll_responses SET response = `)
	q.Param(value)
	q.Unsafe(`, responded_at = `)
	q.Param(utc(at))
	q.Unsafe(` WHERE responded_at IS NULL AND id = `)
	q.Param(id)

	rows, err := t.exec(&q)
	if err != nil {
		return err
	}

	if rows == 0 {
		return fmt.Errorf("response %s already recorded: %w", id, errorz.ErrConflict)
	}

	return nil
}

// UpdateResponse changes an answer that was recorded before.
func (t *Tx) UpdateResponse(id uuid.UUID, value string, at time.Time) error {
	var q db.Query
	q.Unsafe(`UPDATE poll_responses SET response = `)
	q.Param(value)
	q.Unsafe(`, updated_at = `)
	q.Param(utc(at))
	q.Unsafe(` WHERE id = `)
	q.Param(id)

	return t.execOne(&q, "response")
}
